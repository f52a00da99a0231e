package dispatcher

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bananya-ml/arxiv-feed/internal/logging"
)

var ErrClosed = errors.New("queue closed")

// LocalQueue is an in-process queue. Failed work is requeued until it has
// been attempted maxAttempts times.
type LocalQueue struct {
	workers     int
	maxAttempts int
	log         *logging.Logger

	mu       sync.Mutex
	pending  []Work
	inFlight int
	closed   bool
	signal   chan struct{}
}

func NewLocalQueue(workers, maxAttempts int, log *logging.Logger) *LocalQueue {
	if workers <= 0 {
		workers = 1
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if log == nil {
		log = logging.Nop()
	}
	return &LocalQueue{workers: workers, maxAttempts: maxAttempts, log: log, signal: make(chan struct{})}
}

func (q *LocalQueue) Enqueue(_ context.Context, w Work) error {
	if !w.IsValid() {
		return errors.New("invalid work: empty link")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.pending = append(q.pending, w)
	q.broadcastLocked()
	return nil
}

// Len is the number of queued and running items.
func (q *LocalQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) + q.inFlight
}

func (q *LocalQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.broadcastLocked()
	}
}

func (q *LocalQueue) Run(ctx context.Context, handler Handler) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 1; i <= q.workers; i++ {
		id := i
		g.Go(func() error {
			q.log.Debug("starting worker", "worker", id)
			return q.work(ctx, id, handler)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (q *LocalQueue) work(ctx context.Context, id int, handler Handler) error {
	for {
		w, ok, wait := q.next()
		if !ok {
			if wait == nil {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-wait:
			}
			continue
		}

		w.Attempt++
		err := handler(ctx, w)
		q.finish(id, w, err)
	}
}

// next pops work. With nothing pending it returns a channel closed on the next
// change, or nil once the queue is closed and idle.
func (q *LocalQueue) next() (Work, bool, <-chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) > 0 {
		w := q.pending[0]
		q.pending = q.pending[1:]
		q.inFlight++
		return w, true, nil
	}
	if q.closed && q.inFlight == 0 {
		return Work{}, false, nil
	}
	return Work{}, false, q.signal
}

func (q *LocalQueue) finish(id int, w Work, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inFlight--
	switch {
	case err == nil:
	case w.Attempt < q.maxAttempts:
		q.log.Warn("work failed, requeueing", "worker", id, "link", w.Link, "attempt", w.Attempt, "error", err)
		q.pending = append(q.pending, w)
	default:
		q.log.Error("work failed, giving up", "worker", id, "link", w.Link, "attempt", w.Attempt, "error", err)
	}
	q.broadcastLocked()
}

func (q *LocalQueue) broadcastLocked() {
	close(q.signal)
	q.signal = make(chan struct{})
}
