// Package embedding turns chunk and query text into vectors. The same
// Embedder must serve both indexing and querying so distances are comparable.
package embedding

import (
	"context"
	"math"
)

type Embedder interface {
	// Name identifies the model; it is part of cache keys.
	Name() string
	Dimension() int
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

func normalize(v []float32) {
	sum := 0.0
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
