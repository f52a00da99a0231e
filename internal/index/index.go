// Package index is the append-only vector index over paper chunks.
//
// Entries live in memory for brute-force cosine search and, when the index is
// opened on a directory, are mirrored to a sqlite file so a restart reloads
// them. Nothing is ever updated or deleted.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/bananya-ml/arxiv-feed/internal/helpers"
)

// Entry is one embedded chunk.
type Entry struct {
	ID        string    `json:"entry_id"`
	Embedding []float32 `json:"-"`
	Text      string    `json:"chunk_text"`
	DocID     string    `json:"doc_id"`
	PaperURL  string    `json:"paper_url"`
}

// Match is a query hit. Distance is the cosine distance (1 - cosine similarity).
type Match struct {
	Text     string  `json:"chunk_text"`
	Distance float64 `json:"distance"`
	DocID    string  `json:"doc_id"`
	PaperURL string  `json:"paper_url"`
}

var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrEmptyEmbedding    = errors.New("empty embedding")
)

// DocID is the stable identifier of a paper inside the index: the hex SHA-256 of its link.
func DocID(paperURL string) string {
	return helpers.Sha256Hex(paperURL)
}

type Index struct {
	mu        sync.RWMutex
	entries   []stored
	dimension int
	db        *sqliteStore
}

// stored keeps the unit-length copy of the embedding; unit is nil for a zero vector.
type stored struct {
	Entry
	unit []float64
}

// NewMemory returns an index that is not persisted.
func NewMemory() *Index {
	return &Index{}
}

// Open loads (or creates) the index persisted under dir.
func Open(ctx context.Context, dir string) (*Index, error) {
	db, err := openSQLite(ctx, dir)
	if err != nil {
		return nil, err
	}
	idx := &Index{db: db}
	err = db.load(ctx, func(e Entry) error {
		if idx.dimension == 0 {
			idx.dimension = len(e.Embedding)
		}
		if len(e.Embedding) != idx.dimension {
			return fmt.Errorf("entry %s: %w", e.ID, ErrDimensionMismatch)
		}
		idx.entries = append(idx.entries, stored{Entry: e, unit: unitVector(e.Embedding)})
		return nil
	})
	if err != nil {
		_ = db.close()
		return nil, err
	}
	return idx, nil
}

// Add appends entries as one unit: either all of them become visible to
// queries or none do.
func (idx *Index) Add(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	dim := idx.dimension
	batch := make([]stored, 0, len(entries))
	for _, e := range entries {
		if len(e.Embedding) == 0 {
			return fmt.Errorf("entry %s: %w", e.ID, ErrEmptyEmbedding)
		}
		if dim == 0 {
			dim = len(e.Embedding)
		}
		if len(e.Embedding) != dim {
			return fmt.Errorf("entry %s: got %d want %d: %w", e.ID, len(e.Embedding), dim, ErrDimensionMismatch)
		}
		vec := make([]float32, len(e.Embedding))
		copy(vec, e.Embedding)
		e.Embedding = vec
		batch = append(batch, stored{Entry: e, unit: unitVector(vec)})
	}

	if idx.db != nil {
		if err := idx.db.insert(ctx, entries); err != nil {
			return err
		}
	}
	idx.dimension = dim
	idx.entries = append(idx.entries, batch...)
	return nil
}

// Query returns up to topK entries closest to embedding, ordered by ascending
// distance. Ties keep insertion order. A non-empty docID restricts the search
// to that paper.
func (idx *Index) Query(ctx context.Context, embedding []float32, topK int, docID string) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	if len(embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.entries) == 0 {
		return nil, nil
	}
	if len(embedding) != idx.dimension {
		return nil, fmt.Errorf("query: got %d want %d: %w", len(embedding), idx.dimension, ErrDimensionMismatch)
	}

	q := unitVector(embedding)
	type hit struct {
		pos  int
		dist float64
	}
	hits := make([]hit, 0, len(idx.entries))
	for i := range idx.entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := &idx.entries[i]
		if docID != "" && e.DocID != docID {
			continue
		}
		hits = append(hits, hit{pos: i, dist: cosineDistance(q, e.unit)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
	if topK > len(hits) {
		topK = len(hits)
	}
	out := make([]Match, 0, topK)
	for _, h := range hits[:topK] {
		e := idx.entries[h.pos]
		out = append(out, Match{Text: e.Text, Distance: h.dist, DocID: e.DocID, PaperURL: e.PaperURL})
	}
	return out, nil
}

// Count returns the number of stored entries.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

func (idx *Index) Close() error {
	if idx.db == nil {
		return nil
	}
	return idx.db.close()
}

func unitVector(v []float32) []float64 {
	sum := 0.0
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x) * inv
	}
	return out
}

// distancePrecision is the granularity distances are rounded to, so parallel
// vectors tie exactly instead of differing by rounding error.
const distancePrecision = 1e9

// cosineDistance takes unit vectors. It is 1 for zero vectors so they never
// outrank real matches, and is clamped to [0, 2].
func cosineDistance(a, b []float64) float64 {
	if a == nil || b == nil {
		return 1
	}
	dot := 0.0
	for i := range a {
		dot += a[i] * b[i]
	}
	d := math.Round((1-dot)*distancePrecision) / distancePrecision
	return math.Min(math.Max(d, 0), 2)
}
