// Package arxiv fetches recent papers of a category from the arXiv Atom API.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bananya-ml/arxiv-feed/internal/apperr"
	"github.com/bananya-ml/arxiv-feed/internal/logging"
)

const DefaultBaseURL = "http://export.arxiv.org/api/query"

// Paper is one feed entry. Link is the entry id (the abs page URL).
type Paper struct {
	ID              string
	Title           string
	Authors         []string
	Published       string
	Abstract        string
	Link            string
	PrimaryCategory string
}

type feed struct {
	Entries []entry `xml:"http://www.w3.org/2005/Atom entry"`
}

type entry struct {
	ID        string `xml:"http://www.w3.org/2005/Atom id"`
	Title     string `xml:"http://www.w3.org/2005/Atom title"`
	Published string `xml:"http://www.w3.org/2005/Atom published"`
	Summary   string `xml:"http://www.w3.org/2005/Atom summary"`
	Authors   []struct {
		Name string `xml:"http://www.w3.org/2005/Atom name"`
	} `xml:"http://www.w3.org/2005/Atom author"`
	PrimaryCategory *struct {
		Term string `xml:"term,attr"`
	} `xml:"http://arxiv.org/schemas/atom primary_category"`
}

type Client struct {
	baseURL string
	http    *http.Client
	log     *logging.Logger
}

func New(baseURL string, timeout time.Duration, log *logging.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}, log: log}
}

// Fetch returns up to maxResults papers of category, most recently submitted first.
// Entries missing an id, title, summary, publication date or primary category are skipped.
func (c *Client) Fetch(ctx context.Context, maxResults int, category string) ([]Paper, error) {
	q := url.Values{}
	q.Set("search_query", "cat:"+category)
	q.Set("max_results", strconv.Itoa(maxResults))
	q.Set("sortBy", "submittedDate")
	q.Set("sortOrder", "descending")
	reqURL := c.baseURL + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, apperr.Fatal("arxiv", err)
	}
	c.log.Debug("requesting arxiv feed", "url", reqURL)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Transient("arxiv", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Transient("arxiv", fmt.Errorf("reading feed: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		serr := fmt.Errorf("status %s", resp.Status)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, apperr.Transient("arxiv", serr)
		}
		return nil, apperr.Fatal("arxiv", serr)
	}

	var f feed
	if err := xml.Unmarshal(data, &f); err != nil {
		return nil, apperr.Fatal("arxiv", fmt.Errorf("decoding feed: %w", err))
	}

	papers := make([]Paper, 0, len(f.Entries))
	for _, e := range f.Entries {
		p, ok := e.paper()
		if !ok {
			c.log.Warn("skipping incomplete arxiv entry", "id", e.ID)
			continue
		}
		papers = append(papers, p)
	}
	c.log.Info("fetched papers from arxiv", "category", category, "count", len(papers))
	return papers, nil
}

func (e entry) paper() (Paper, bool) {
	if e.ID == "" || e.Title == "" || e.Summary == "" || e.Published == "" || e.PrimaryCategory == nil {
		return Paper{}, false
	}
	authors := make([]string, 0, len(e.Authors))
	for _, a := range e.Authors {
		authors = append(authors, a.Name)
	}
	return Paper{
		ID:              e.ID,
		Title:           flatten(e.Title),
		Authors:         authors,
		Published:       e.Published,
		Abstract:        flatten(e.Summary),
		Link:            e.ID,
		PrimaryCategory: e.PrimaryCategory.Term,
	}, true
}

func flatten(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
}

// PDFURL derives the PDF location from an abs link or a bare arXiv id.
func PDFURL(base, link string) string {
	if base == "" {
		base = "https://arxiv.org/pdf"
	}
	id := link
	if strings.Contains(link, "arxiv.org") {
		id = link[strings.LastIndex(link, "/")+1:]
	}
	return strings.TrimRight(base, "/") + "/" + id + ".pdf"
}
