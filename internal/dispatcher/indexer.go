package dispatcher

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bananya-ml/arxiv-feed/internal/chunker"
	"github.com/bananya-ml/arxiv-feed/internal/embedding"
	"github.com/bananya-ml/arxiv-feed/internal/index"
	"github.com/bananya-ml/arxiv-feed/internal/logging"
	"github.com/bananya-ml/arxiv-feed/internal/store"
)

type SummaryReader interface {
	GetSummary(ctx context.Context, link string) (store.SummaryRecord, bool, error)
}

type EntryWriter interface {
	Add(ctx context.Context, entries []index.Entry) error
}

// Indexer is the Handler that turns a stored paper text into index entries.
// Handling the same link twice adds a second set of entries under the same doc id.
type Indexer struct {
	texts    SummaryReader
	splitter *chunker.Splitter
	embedder embedding.Embedder
	index    EntryWriter
	tracker  Tracker
	log      *logging.Logger
}

func NewIndexer(texts SummaryReader, splitter *chunker.Splitter, embedder embedding.Embedder, idx EntryWriter, tracker Tracker, log *logging.Logger) *Indexer {
	if tracker == nil {
		tracker = NewMemoryTracker()
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Indexer{texts: texts, splitter: splitter, embedder: embedder, index: idx, tracker: tracker, log: log}
}

func (ix *Indexer) Handle(ctx context.Context, w Work) error {
	log := ix.log.With("link", w.Link, "attempt", w.Attempt)

	rec, ok, err := ix.texts.GetSummary(ctx, w.Link)
	if err != nil {
		return fmt.Errorf("loading text for %s: %w", w.Link, err)
	}
	if !ok || rec.FullText == "" {
		log.Warn("no stored text to index")
		return ix.done(ctx, w.Link)
	}

	chunks := ix.splitter.Split(rec.FullText)
	if len(chunks) == 0 {
		log.Warn("text produced no chunks")
		return ix.done(ctx, w.Link)
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding chunks of %s: %w", w.Link, err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedding chunks of %s: got %d vectors for %d chunks", w.Link, len(vectors), len(chunks))
	}

	docID := index.DocID(w.Link)
	entries := make([]index.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = index.Entry{
			ID:        uuid.NewString(),
			Embedding: vectors[i],
			Text:      c.Text,
			DocID:     docID,
			PaperURL:  w.Link,
		}
	}
	if err := ix.index.Add(ctx, entries); err != nil {
		return fmt.Errorf("adding %d entries for %s: %w", len(entries), w.Link, err)
	}
	log.Info("indexed paper", "chunks", len(entries), "doc_id", docID)
	return ix.done(ctx, w.Link)
}

func (ix *Indexer) done(ctx context.Context, link string) error {
	if err := ix.tracker.Decr(ctx, link); err != nil {
		ix.log.Warn("error updating index tracker", "link", link, "error", err)
	}
	return nil
}
