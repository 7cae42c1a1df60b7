package es

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// InMemoryStore keeps all streams in process memory. Appends serialize on
// a single mutex; reads copy a view of the stream under a read lock and
// iterate it without holding the lock.
type InMemoryStore struct {
	mu      sync.RWMutex
	log     *slog.Logger
	metrics ESMetrics
	seq     uint64
	streams map[StreamID][]Envelope
	all     []Envelope
}

func NewInMemoryStore(opts ...StoreOption) *InMemoryStore {
	options := storeOptions{log: slog.Default(), metrics: NopESMetrics()}
	for _, opt := range opts {
		opt.applyToStore(&options)
	}
	return &InMemoryStore{
		log:     options.log.With(slog.String("store", "memory")),
		metrics: options.metrics,
		streams: map[StreamID][]Envelope{},
	}
}

func (s *InMemoryStore) Read(ctx context.Context, stream StreamID, opts ...ReadOption) iter.Seq2[Envelope, error] {
	ro := newReadOptions(opts)
	return func(yield func(Envelope, error) bool) {
		defer s.metrics.StoreReadDuration(stream.Type).ObserveDuration()

		if err := ctx.Err(); err != nil {
			yield(Envelope{}, err)
			return
		}

		s.mu.RLock()
		// stored envelopes are never modified, so the slice header is a
		// stable snapshot of the stream even after further appends
		events := s.streams[stream]
		s.mu.RUnlock()

		// versions are 1..n at indexes 0..n-1
		start := min(int(ro.afterVersion), len(events))
		for _, e := range events[start:] {
			if e.Seq <= ro.afterSeq {
				continue
			}
			if err := ctx.Err(); err != nil {
				yield(Envelope{}, err)
				return
			}
			if !yield(e.Clone(), nil) {
				return
			}
		}
	}
}

func (s *InMemoryStore) ReadAll(ctx context.Context, afterSeq uint64) iter.Seq2[Envelope, error] {
	return func(yield func(Envelope, error) bool) {
		s.mu.RLock()
		all := s.all
		s.mu.RUnlock()

		// sequences are 1..n at indexes 0..n-1
		start := min(int(afterSeq), len(all))
		for _, e := range all[start:] {
			if err := ctx.Err(); err != nil {
				yield(Envelope{}, err)
				return
			}
			if !yield(e.Clone(), nil) {
				return
			}
		}
	}
}

func (s *InMemoryStore) Version(ctx context.Context, stream StreamID) (Version, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Version(len(s.streams[stream])), nil
}

func (s *InMemoryStore) Append(
	ctx context.Context,
	stream StreamID,
	expected Version,
	events []Envelope,
) (*AppendResult, error) {
	if len(events) == 0 {
		return nil, ErrNoEvents
	}
	if err := stream.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.metrics.StoreAppendDuration(stream.Type).ObserveDuration()

	// prepare copies outside the lock; versions and stream identity are
	// assigned by the store
	batch := make([]Envelope, len(events))
	for i, e := range events {
		e = e.Clone()
		e.AggregateType, e.AggregateID = stream.Type, stream.ID
		e.Version = expected + Version(i+1)
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("%w: event %d of %s: %w", ErrStoreFault, i, stream, err)
		}
		batch[i] = e
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.streams[stream]
	if actual := Version(len(cur)); actual != expected {
		return nil, &ConflictError{Stream: stream, Expected: expected, Actual: actual}
	}

	firstSeq := s.seq + 1
	for i := range batch {
		s.seq++
		batch[i].Seq = s.seq
	}

	// readers only ever look at indexes below the length they captured
	s.streams[stream] = append(cur, batch...)
	s.all = append(s.all, batch...)

	s.metrics.EventsAppended(stream.Type, len(batch))
	s.log.Debug(
		"append",
		stream.SlogAttr(),
		expected.SlogAttrWithKey("expected"),
		slog.Uint64("last_seq", s.seq),
		slog.Int("num_events", len(batch)),
	)

	out := make([]Envelope, len(batch))
	for i, e := range batch {
		out[i] = e.Clone()
	}
	return &AppendResult{
		Version:  expected + Version(len(batch)),
		FirstSeq: firstSeq,
		LastSeq:  s.seq,
		Events:   out,
	}, nil
}

// Streams returns the ids of all streams with at least one event.
func (s *InMemoryStore) Streams() []StreamID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StreamID, 0, len(s.streams))
	for id := range s.streams {
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b StreamID) int {
		return cmp.Or(strings.Compare(a.Type, b.Type), strings.Compare(a.ID, b.ID))
	})
	return out
}

// LastSeq returns the global sequence of the most recent event.
func (s *InMemoryStore) LastSeq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

var (
	_ EventStore = (*InMemoryStore)(nil)
	_ AllReader  = (*InMemoryStore)(nil)
)
