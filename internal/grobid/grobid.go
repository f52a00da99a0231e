// Package grobid sends PDFs to a GROBID service and turns the TEI response
// into text blocks.
package grobid

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/bananya-ml/arxiv-feed/internal/apperr"
	"github.com/bananya-ml/arxiv-feed/internal/logging"
	"github.com/bananya-ml/arxiv-feed/internal/parsing"
)

const (
	processEndpoint = "/api/processFulltextDocument"
	healthEndpoint  = "/api/isalive"
	source          = "grobid"
)

type Config struct {
	URL string
	// Timeout bounds a single processing request.
	Timeout time.Duration
	// MinimumGapBetweenRequests spaces consecutive processing requests.
	MinimumGapBetweenRequests time.Duration
}

type Client struct {
	baseURL string
	http    *http.Client
	log     *logging.Logger
	// limiter spaces processing requests; nil when no gap is configured.
	limiter *rate.Limiter

	healthy atomic.Bool
}

func New(cfg Config, log *logging.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if log == nil {
		log = logging.Nop()
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log,
	}
	if cfg.MinimumGapBetweenRequests > 0 {
		c.limiter = rate.NewLimiter(rate.Every(cfg.MinimumGapBetweenRequests), 1)
	}
	return c
}

// Parse sends the PDF for full text processing. An empty slice with a nil
// error means GROBID produced no text; callers decide whether to retry.
// Failures are apperr collaborator errors: unreachable service, 429 and 5xx
// are transient, any other status or an undecodable body is fatal.
func (c *Client) Parse(ctx context.Context, pdf []byte) ([]parsing.Block, error) {
	if len(pdf) == 0 {
		return nil, apperr.Fatal(source, errors.New("empty pdf"))
	}
	if err := c.waitForGap(ctx); err != nil {
		return nil, err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("input", "paper.pdf")
	if err != nil {
		return nil, apperr.Fatal(source, err)
	}
	if _, err := part.Write(pdf); err != nil {
		return nil, apperr.Fatal(source, err)
	}
	if err := writer.WriteField("consolidateHeader", "1"); err != nil {
		return nil, apperr.Fatal(source, err)
	}
	if err := writer.Close(); err != nil {
		return nil, apperr.Fatal(source, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+processEndpoint, &body)
	if err != nil {
		return nil, apperr.Fatal(source, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/xml")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.Transient(source, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Transient(source, fmt.Errorf("reading response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, apperr.Transient(source, fmt.Errorf("status %s", resp.Status))
	case resp.StatusCode != http.StatusOK:
		return nil, apperr.Fatal(source, fmt.Errorf("status %s", resp.Status))
	}

	doc, err := parsing.DecodeTEI(data)
	if err != nil {
		return nil, apperr.Fatal(source, err)
	}
	return doc.Blocks(), nil
}

// Alive reports whether GROBID answers its health endpoint with a 2xx.
func (c *Client) Alive(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthEndpoint, nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("grobid health check failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Healthy is the result of the last health check.
func (c *Client) Healthy() bool {
	return c.healthy.Load()
}

// MonitorHealth checks GROBID now and then every interval until ctx is done.
func (c *Client) MonitorHealth(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	check := func() {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		healthy := c.Alive(checkCtx)
		if prev := c.healthy.Swap(healthy); prev != healthy {
			c.log.Info("grobid health changed", "healthy", healthy)
		}
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

// waitForGap blocks until the limiter grants the next processing request.
// Each grant is taken right before the request is sent, so concurrent
// callers are spaced by the minimum gap.
func (c *Client) waitForGap(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}
