package index

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id, url string, vec ...float32) Entry {
	return Entry{ID: id, Embedding: vec, Text: "chunk " + id, DocID: DocID(url), PaperURL: url}
}

func TestDocIDStable(t *testing.T) {
	a := DocID("http://arxiv.org/abs/2401.00001v1")
	b := DocID("http://arxiv.org/abs/2401.00001v1")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", DocID(""))
	assert.NotEqual(t, a, DocID("http://arxiv.org/abs/2401.00002v1"))
}

func TestQueryOrdersByDistance(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()
	require.NoError(t, idx.Add(ctx, []Entry{
		entry("far", "u1", 0, 1),
		entry("near", "u1", 1, 0.1),
		entry("exact", "u2", 1, 0),
	}))

	got, err := idx.Query(ctx, []float32{1, 0}, 3, "")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "chunk exact", got[0].Text)
	assert.Equal(t, "chunk near", got[1].Text)
	assert.Equal(t, "chunk far", got[2].Text)
	assert.InDelta(t, 0, got[0].Distance, 1e-9)
	assert.InDelta(t, 1, got[2].Distance, 1e-9)
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].Distance, got[i].Distance)
	}
}

func TestQueryTiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()
	require.NoError(t, idx.Add(ctx, []Entry{entry("a", "u", 1, 1), entry("b", "u", 2, 2)}))
	require.NoError(t, idx.Add(ctx, []Entry{entry("c", "u", 3, 3)}))

	for i := 0; i < 5; i++ {
		got, err := idx.Query(ctx, []float32{1, 1}, 3, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"chunk a", "chunk b", "chunk c"}, texts(got))
	}
}

func TestQueryParallelVectorsTieRegardlessOfMagnitude(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()
	scales := []float32{7, 0.3, 3, 1e-3, 11, 0.1, 5}
	entries := make([]Entry, len(scales))
	want := make([]string, len(scales))
	for i, s := range scales {
		id := fmt.Sprintf("e%d", i)
		entries[i] = Entry{ID: id, Embedding: []float32{0.1 * s, 0.3 * s, 0.7 * s}, Text: "chunk " + id, DocID: DocID("u"), PaperURL: "u"}
		want[i] = "chunk " + id
	}
	require.NoError(t, idx.Add(ctx, entries))

	got, err := idx.Query(ctx, []float32{0.3, 0.9, 2.1}, len(scales), "")
	require.NoError(t, err)
	assert.Equal(t, want, texts(got))
	for _, m := range got {
		assert.Equal(t, 0.0, m.Distance)
	}
}

func TestQueryFiltersByDocID(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()
	require.NoError(t, idx.Add(ctx, []Entry{
		entry("a1", "paper-a", 1, 0),
		entry("b1", "paper-b", 1, 0),
		entry("a2", "paper-a", 0, 1),
	}))

	got, err := idx.Query(ctx, []float32{1, 0}, 10, DocID("paper-a"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, m := range got {
		assert.Equal(t, "paper-a", m.PaperURL)
		assert.Equal(t, DocID("paper-a"), m.DocID)
	}

	got, err = idx.Query(ctx, []float32{1, 0}, 10, DocID("unknown"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueryTopKBounds(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()

	got, err := idx.Query(ctx, []float32{1}, 5, "")
	require.NoError(t, err)
	assert.Empty(t, got, "empty index")

	require.NoError(t, idx.Add(ctx, []Entry{entry("a", "u", 1), entry("b", "u", 2)}))
	got, err = idx.Query(ctx, []float32{1}, 1, "")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = idx.Query(ctx, []float32{1}, 0, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAddRejectsMismatchedDimensions(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()
	require.NoError(t, idx.Add(ctx, []Entry{entry("a", "u", 1, 0)}))

	err := idx.Add(ctx, []Entry{entry("b", "u", 1, 0), entry("c", "u", 1, 0, 0)})
	require.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 1, idx.Count(), "failed batch must not be partially visible")

	_, err = idx.Query(ctx, []float32{1, 0, 0}, 1, "")
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestAddCopiesEmbedding(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()
	vec := []float32{1, 0}
	require.NoError(t, idx.Add(ctx, []Entry{{ID: "a", Embedding: vec, Text: "t", DocID: "d", PaperURL: "u"}}))
	vec[0], vec[1] = 0, 1

	got, err := idx.Query(ctx, []float32{1, 0}, 1, "")
	require.NoError(t, err)
	assert.InDelta(t, 0, got[0].Distance, 1e-9)
}

func TestPersistenceReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := Open(ctx, dir)
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, []Entry{entry("a", "u1", 0.5, 0.25), entry("b", "u2", -1, 2)}))
	require.NoError(t, idx.Add(ctx, []Entry{entry("c", "u1", 3, 3)}))
	before, err := idx.Query(ctx, []float32{1, 1}, 3, "")
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	reopened, err := Open(ctx, dir)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 3, reopened.Count())
	after, err := reopened.Query(ctx, []float32{1, 1}, 3, "")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestPersistenceRejectsDuplicateIDsAtomically(t *testing.T) {
	ctx := context.Background()
	idx, err := Open(ctx, t.TempDir())
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Add(ctx, []Entry{entry("a", "u", 1)}))
	err = idx.Add(ctx, []Entry{entry("b", "u", 1), entry("a", "u", 1)})
	require.Error(t, err)
	assert.Equal(t, 1, idx.Count())
}

func TestConcurrentAddAndQuery(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()
	require.NoError(t, idx.Add(ctx, []Entry{entry("seed", "u", 1, 1)}))

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				batch := []Entry{
					entry(fmt.Sprintf("%d-%d-a", w, i), "u", 1, float32(i)),
					entry(fmt.Sprintf("%d-%d-b", w, i), "u", float32(i), 1),
				}
				assert.NoError(t, idx.Add(ctx, batch))
			}
		}(w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				got, err := idx.Query(ctx, []float32{1, 1}, 5, "")
				assert.NoError(t, err)
				assert.NotEmpty(t, got)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1+4*50*2, idx.Count())
}

func texts(ms []Match) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Text
	}
	return out
}
