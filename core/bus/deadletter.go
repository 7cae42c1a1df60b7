package bus

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/codewandler/axon-go/core/es"
)

// DeadLetter is an event a subscriber failed to handle within its
// redelivery budget.
type DeadLetter struct {
	Subscriber string
	Envelope   es.Envelope
	Err        error
	Attempts   int
	FailedAt   time.Time
}

func (d DeadLetter) LogAttrs() []any {
	return []any{
		slog.String("subscriber", d.Subscriber),
		d.Envelope.SlogAttr(),
		slog.Int("attempts", d.Attempts),
		slog.Any("error", d.Err),
	}
}

type DeadLetterSink interface {
	DeadLetter(ctx context.Context, dl DeadLetter)
}

// DeadLetterQueue keeps dead letters in memory for inspection and manual
// redelivery.
type DeadLetterQueue struct {
	mu      sync.Mutex
	letters []DeadLetter
}

func NewDeadLetterQueue() *DeadLetterQueue { return &DeadLetterQueue{} }

func (q *DeadLetterQueue) DeadLetter(_ context.Context, dl DeadLetter) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.letters = append(q.letters, dl)
}

func (q *DeadLetterQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.letters)
}

// List returns a copy of the queued dead letters.
func (q *DeadLetterQueue) List() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.letters)
}

// Drain removes and returns all dead letters.
func (q *DeadLetterQueue) Drain() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.letters
	q.letters = nil
	return out
}

var _ DeadLetterSink = (*DeadLetterQueue)(nil)
