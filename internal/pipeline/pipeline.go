// Package pipeline is the ingestion write path: fetch candidates, reuse cached
// artifacts when the whole batch is known, otherwise acquire, parse, extract,
// persist and schedule indexing for each paper in order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"github.com/bananya-ml/arxiv-feed/internal/apperr"
	"github.com/bananya-ml/arxiv-feed/internal/arxiv"
	"github.com/bananya-ml/arxiv-feed/internal/dispatcher"
	"github.com/bananya-ml/arxiv-feed/internal/extract"
	"github.com/bananya-ml/arxiv-feed/internal/logging"
	"github.com/bananya-ml/arxiv-feed/internal/parsing"
	"github.com/bananya-ml/arxiv-feed/internal/pdf"
	"github.com/bananya-ml/arxiv-feed/internal/store"
	"github.com/bananya-ml/arxiv-feed/internal/summarize"
)

const (
	MinResults = 1
	MaxResults = 10
)

type Source interface {
	Fetch(ctx context.Context, maxResults int, category string) ([]arxiv.Paper, error)
}

type Parser interface {
	Parse(ctx context.Context, pdf []byte) ([]parsing.Block, error)
}

type Extractor interface {
	Extract(ctx context.Context, text string) extract.Metadata
}

type Summarizer interface {
	Summarize(ctx context.Context, text string) summarize.Result
}

// ErrEmptyParse marks a parse that returned no text; it is retried like a transient failure.
var ErrEmptyParse = errors.New("parser returned no text")

type Config struct {
	DefaultCategory string
	// ParseMaxAttempts bounds parse attempts per paper.
	ParseMaxAttempts   int
	ParseRetryInterval time.Duration
	ParseMaxInterval   time.Duration
}

type Deps struct {
	Source     Source
	Fetcher    pdf.Fetcher
	Parser     Parser
	Extractor  Extractor
	Summarizer Summarizer
	Store      store.ArtifactStore
	Queue      dispatcher.Queue
	Tracker    dispatcher.Tracker
}

type Pipeline struct {
	Deps
	cfg   Config
	log   *logging.Logger
	group singleflight.Group
}

func New(deps Deps, cfg Config, log *logging.Logger) *Pipeline {
	if cfg.DefaultCategory == "" {
		cfg.DefaultCategory = "astro-ph.SR"
	}
	if cfg.ParseMaxAttempts <= 0 {
		cfg.ParseMaxAttempts = 8
	}
	if cfg.ParseRetryInterval <= 0 {
		cfg.ParseRetryInterval = 2 * time.Second
	}
	if cfg.ParseMaxInterval <= 0 {
		cfg.ParseMaxInterval = 30 * time.Second
	}
	if deps.Tracker == nil {
		deps.Tracker = dispatcher.NewMemoryTracker()
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Pipeline{Deps: deps, cfg: cfg, log: log}
}

// Ingest returns the document records of the maxCount most recent papers of
// category. Identical concurrent calls share one run, which keeps going when
// a caller's context is cancelled.
func (p *Pipeline) Ingest(ctx context.Context, maxCount int, category string) ([]store.DocumentRecord, error) {
	if maxCount < MinResults || maxCount > MaxResults {
		return nil, apperr.BadRequest("max_results must be between %d and %d", MinResults, MaxResults)
	}
	if category == "" {
		category = p.cfg.DefaultCategory
	}

	key := strconv.Itoa(maxCount) + "|" + category
	// The shared run is detached from any single caller: a caller that goes
	// away stops waiting, the run and the other callers carry on.
	ch := p.group.DoChan(key, func() (any, error) {
		return p.ingest(context.WithoutCancel(ctx), maxCount, category)
	})
	select {
	case <-ctx.Done():
		p.log.Info("caller stopped waiting for ingestion", "max_results", maxCount, "category", category, "error", ctx.Err())
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			p.log.Debug("joined running ingestion", "max_results", maxCount, "category", category)
		}
		records := res.Val.([]store.DocumentRecord)
		return append([]store.DocumentRecord(nil), records...), nil
	}
}

func (p *Pipeline) ingest(ctx context.Context, maxCount int, category string) ([]store.DocumentRecord, error) {
	log := p.log.With("category", category, "max_results", maxCount)
	started := time.Now()

	papers, err := p.Source.Fetch(ctx, maxCount, category)
	if err != nil {
		log.Error("fetching papers failed", "error", err)
		return nil, apperr.Internal(err, "Failed to fetch papers")
	}
	if len(papers) == 0 {
		return nil, apperr.NotFound("No papers found")
	}

	if cached, ok := p.cached(ctx, papers); ok {
		log.Info("returning cached papers", "count", len(cached))
		return cached, nil
	}

	records := make([]store.DocumentRecord, 0, len(papers))
	for i, paper := range papers {
		rec, err := p.process(ctx, paper, log.With("link", paper.Link, "position", i+1, "of", len(papers)))
		if err != nil {
			log.Error("processing paper failed", "link", paper.Link, "error", err)
			return nil, apperr.Internal(err, "Failed to process paper: %s", paper.Link)
		}
		records = append(records, rec)
	}
	log.Info("ingestion finished", "count", len(records), "elapsed", time.Since(started))
	return records, nil
}

// cached reports the stored records when every paper has a document with the
// same title and link plus a summary for the link. One miss invalidates the batch.
func (p *Pipeline) cached(ctx context.Context, papers []arxiv.Paper) ([]store.DocumentRecord, bool) {
	out := make([]store.DocumentRecord, 0, len(papers))
	for _, paper := range papers {
		doc, ok, err := p.Store.GetDocument(ctx, paper.Title)
		if err != nil {
			p.log.Warn("cache lookup failed", "link", paper.Link, "error", err)
			return nil, false
		}
		if !ok || doc.Link != paper.Link {
			return nil, false
		}
		_, ok, err = p.Store.GetSummary(ctx, paper.Link)
		if err != nil {
			p.log.Warn("cache lookup failed", "link", paper.Link, "error", err)
			return nil, false
		}
		if !ok {
			return nil, false
		}
		out = append(out, doc)
	}
	return out, true
}

func (p *Pipeline) process(ctx context.Context, paper arxiv.Paper, log *logging.Logger) (store.DocumentRecord, error) {
	log.Info("processing paper", "state", "acquiring")
	data, err := p.Fetcher.Fetch(ctx, paper.Link)
	if err != nil {
		return store.DocumentRecord{}, fmt.Errorf("acquiring pdf: %w", err)
	}

	log.Info("processing paper", "state", "parsing", "bytes", len(data))
	blocks, err := p.parse(ctx, data, log)
	if err != nil {
		return store.DocumentRecord{}, err
	}
	text := parsing.FullText(blocks)

	log.Info("processing paper", "state", "extracting", "blocks", len(blocks))
	md := p.Extractor.Extract(ctx, text)
	rec := store.DocumentRecord{
		Title:           paper.Title,
		Authors:         paper.Authors,
		Published:       paper.Published,
		Abstract:        paper.Abstract,
		Link:            paper.Link,
		PrimaryCategory: paper.PrimaryCategory,
		Conclusion:      &md.Conclusion,
		RefCount:        &md.RefCount,
	}
	if err := p.Store.UpsertDocument(ctx, rec); err != nil {
		return store.DocumentRecord{}, fmt.Errorf("saving document: %w", err)
	}

	res := p.Summarizer.Summarize(ctx, text)
	err = p.Store.UpsertSummary(ctx, store.SummaryRecord{
		Link:     paper.Link,
		Summary:  res.Summary,
		Insights: res.Insights,
		FullText: text,
	})
	if err != nil {
		return store.DocumentRecord{}, fmt.Errorf("saving summary: %w", err)
	}
	log.Info("processing paper", "state", "persisted")

	p.scheduleIndexing(ctx, paper.Link, log)
	return rec, nil
}

// parse retries transient failures and empty results with exponential backoff,
// at most ParseMaxAttempts times. Exhaustion wraps apperr.ErrRetriesExhausted.
func (p *Pipeline) parse(ctx context.Context, data []byte, log *logging.Logger) ([]parsing.Block, error) {
	attempt := 0
	op := func() ([]parsing.Block, error) {
		attempt++
		blocks, err := p.Parser.Parse(ctx, data)
		switch {
		case err != nil && apperr.IsTransient(err):
			log.Warn("parsing failed, retrying", "attempt", attempt, "error", err)
			return nil, err
		case err != nil:
			return nil, backoff.Permanent(err)
		case len(blocks) == 0:
			log.Warn("parsing returned no text, retrying", "attempt", attempt)
			return nil, ErrEmptyParse
		}
		return blocks, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.ParseRetryInterval
	b.MaxInterval = p.cfg.ParseMaxInterval
	blocks, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.cfg.ParseMaxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)
	if err == nil {
		return blocks, nil
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	if apperr.IsTransient(err) || errors.Is(err, ErrEmptyParse) {
		return nil, fmt.Errorf("parsing pdf after %d attempts: %w: %w", attempt, apperr.ErrRetriesExhausted, err)
	}
	return nil, fmt.Errorf("parsing pdf: %w", err)
}

// scheduleIndexing hands the paper to the index queue. Failures are logged only:
// the artifacts are persisted and a later ingestion schedules the paper again.
func (p *Pipeline) scheduleIndexing(ctx context.Context, link string, log *logging.Logger) {
	if err := p.Tracker.Incr(ctx, link); err != nil {
		log.Warn("error updating index tracker", "error", err)
	}
	if err := p.Queue.Enqueue(ctx, dispatcher.Work{Link: link}); err != nil {
		log.Error("scheduling indexing failed", "error", err)
		if derr := p.Tracker.Decr(ctx, link); derr != nil {
			log.Warn("error updating index tracker", "error", derr)
		}
		return
	}
	log.Info("processing paper", "state", "indexing_scheduled")
}
