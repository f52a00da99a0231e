package dispatcher

import (
	"context"
	"sync"
)

// Tracker counts outstanding index work per link so callers can tell whether
// a paper is still waiting to become searchable.
type Tracker interface {
	Incr(ctx context.Context, key string) error
	// Decr removes the key once its count reaches zero.
	Decr(ctx context.Context, key string) error
	Pending(ctx context.Context, key string) (int, error)
}

type MemoryTracker struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{counts: map[string]int{}}
}

func (t *MemoryTracker) Incr(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[key]++
	return nil
}

func (t *MemoryTracker) Decr(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.counts[key] <= 1 {
		delete(t.counts, key)
		return nil
	}
	t.counts[key]--
	return nil
}

func (t *MemoryTracker) Pending(_ context.Context, key string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[key], nil
}
