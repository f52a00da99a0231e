package dispatcher

import "context"

// Work asks for the paper at Link to be chunked, embedded and indexed.
// The text is read from the stored SummaryRecord, so messages stay small.
type Work struct {
	Link    string `json:"link"`
	Attempt int    `json:"attempt,omitempty"`
}

// IsValid For example, a method to check if the work is valid
func (w *Work) IsValid() bool {
	return w.Link != ""
}

// Handler processes one unit of work. A returned error asks for redelivery.
type Handler func(ctx context.Context, w Work) error

// Queue delivers work at least once. Enqueue never waits for processing.
type Queue interface {
	Enqueue(ctx context.Context, w Work) error
	// Run feeds workers until ctx is cancelled, or until Close was called and
	// everything accepted so far has been handled.
	Run(ctx context.Context, handler Handler) error
	Close()
}
