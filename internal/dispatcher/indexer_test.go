package dispatcher

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bananya-ml/arxiv-feed/internal/chunker"
	"github.com/bananya-ml/arxiv-feed/internal/embedding"
	"github.com/bananya-ml/arxiv-feed/internal/index"
	"github.com/bananya-ml/arxiv-feed/internal/store"
)

type failingEmbedder struct{ embedding.Embedder }

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedder down")
}

func newIndexerFixture(t *testing.T) (*store.FileStore, *index.Index, *MemoryTracker) {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return fs, index.NewMemory(), NewMemoryTracker()
}

func TestIndexerAddsChunks(t *testing.T) {
	ctx := context.Background()
	fs, idx, tr := newIndexerFixture(t)
	link := "http://arxiv.org/abs/2405.00001v1"
	text := strings.Repeat("Starspots modulate the light curves of young suns. ", 30)
	require.NoError(t, fs.UpsertSummary(ctx, store.SummaryRecord{Link: link, Summary: "s", Insights: "i", FullText: text}))
	require.NoError(t, tr.Incr(ctx, link))

	splitter := chunker.New(200, 20)
	ix := NewIndexer(fs, splitter, embedding.NewHashing(64), idx, tr, nil)
	require.NoError(t, ix.Handle(ctx, Work{Link: link, Attempt: 1}))

	want := len(splitter.Split(text))
	assert.Equal(t, want, idx.Count())
	n, _ := tr.Pending(ctx, link)
	assert.Equal(t, 0, n)

	vec, _ := embedding.NewHashing(64).Embed(ctx, []string{"starspots light curves"})
	matches, err := idx.Query(ctx, vec[0], 3, index.DocID(link))
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, link, matches[0].PaperURL)

	// redelivery appends a second set under the same doc id
	require.NoError(t, ix.Handle(ctx, Work{Link: link, Attempt: 2}))
	assert.Equal(t, 2*want, idx.Count())
}

func TestIndexerMissingTextIsDropped(t *testing.T) {
	ctx := context.Background()
	fs, idx, tr := newIndexerFixture(t)
	require.NoError(t, tr.Incr(ctx, "missing"))

	ix := NewIndexer(fs, chunker.New(100, 10), embedding.NewHashing(8), idx, tr, nil)
	require.NoError(t, ix.Handle(ctx, Work{Link: "missing"}))
	assert.Equal(t, 0, idx.Count())
	n, _ := tr.Pending(ctx, "missing")
	assert.Equal(t, 0, n)
}

func TestIndexerEmbedFailureAsksForRetry(t *testing.T) {
	ctx := context.Background()
	fs, idx, tr := newIndexerFixture(t)
	require.NoError(t, fs.UpsertSummary(ctx, store.SummaryRecord{Link: "l", FullText: "some text to index"}))
	require.NoError(t, tr.Incr(ctx, "l"))

	ix := NewIndexer(fs, chunker.New(100, 10), failingEmbedder{embedding.NewHashing(8)}, idx, tr, nil)
	err := ix.Handle(ctx, Work{Link: "l"})
	require.Error(t, err)
	assert.Equal(t, 0, idx.Count())
	n, _ := tr.Pending(ctx, "l")
	assert.Equal(t, 1, n)
}

func TestIndexerWithLocalQueue(t *testing.T) {
	ctx := context.Background()
	fs, idx, tr := newIndexerFixture(t)
	links := []string{"a", "b", "c"}
	for _, l := range links {
		require.NoError(t, fs.UpsertSummary(ctx, store.SummaryRecord{Link: l, FullText: "text of paper " + l}))
	}

	q := NewLocalQueue(2, 2, nil)
	ix := NewIndexer(fs, chunker.New(100, 10), embedding.NewHashing(16), idx, tr, nil)
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx, ix.Handle) }()
	for _, l := range links {
		require.NoError(t, q.Enqueue(ctx, Work{Link: l}))
	}
	q.Close()
	require.NoError(t, <-done)
	assert.Equal(t, 3, idx.Count())
}
