// Package pdf acquires paper PDFs, optionally through an S3 cache.
package pdf

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bananya-ml/arxiv-feed/internal/apperr"
	"github.com/bananya-ml/arxiv-feed/internal/arxiv"
	"github.com/bananya-ml/arxiv-feed/internal/logging"
)

// Fetcher returns the PDF bytes of the paper at link.
type Fetcher interface {
	Fetch(ctx context.Context, link string) ([]byte, error)
}

// maxPDFSize caps a download; arXiv PDFs are far below it.
const maxPDFSize = 100 << 20

type Downloader struct {
	baseURL string
	http    *http.Client
	log     *logging.Logger
}

func NewDownloader(baseURL string, timeout time.Duration, log *logging.Logger) *Downloader {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Downloader{baseURL: baseURL, http: &http.Client{Timeout: timeout}, log: log}
}

func (d *Downloader) Fetch(ctx context.Context, link string) ([]byte, error) {
	pdfURL := arxiv.PDFURL(d.baseURL, link)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return nil, apperr.Fatal("pdf", err)
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return nil, apperr.Transient("pdf", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		serr := fmt.Errorf("downloading %s: status %s", pdfURL, resp.Status)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, apperr.Transient("pdf", serr)
		}
		return nil, apperr.Fatal("pdf", serr)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFSize+1))
	if err != nil {
		return nil, apperr.Transient("pdf", fmt.Errorf("reading %s: %w", pdfURL, err))
	}
	if len(data) > maxPDFSize {
		return nil, apperr.Fatal("pdf", fmt.Errorf("%s exceeds %d bytes", pdfURL, maxPDFSize))
	}
	if len(data) == 0 {
		return nil, apperr.Fatal("pdf", fmt.Errorf("%s is empty", pdfURL))
	}
	d.log.Debug("downloaded pdf", "url", pdfURL, "bytes", len(data))
	return data, nil
}
