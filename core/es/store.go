package es

import (
	"context"
	"iter"
)

type (
	readOptions struct {
		afterVersion Version
		afterSeq     uint64
	}
	ReadOption interface{ applyToRead(*readOptions) }

	afterVersionOption valueOption[Version]
	afterSeqOption     valueOption[uint64]
)

// WithAfterVersion only reads events that bring the stream past v,
// e.g. the events following a snapshot taken at v.
func WithAfterVersion(v Version) ReadOption { return afterVersionOption{v: v} }

// WithAfterSeq only reads events with a global sequence greater than seq.
func WithAfterSeq(seq uint64) ReadOption { return afterSeqOption{v: seq} }

func (o afterVersionOption) applyToRead(opts *readOptions) { opts.afterVersion = o.v }
func (o afterSeqOption) applyToRead(opts *readOptions)     { opts.afterSeq = o.v }

func newReadOptions(opts []ReadOption) readOptions {
	var ro readOptions
	for _, opt := range opts {
		opt.applyToRead(&ro)
	}
	return ro
}

// AppendResult describes a successful append.
type AppendResult struct {
	// Version is the stream version after the append.
	Version  Version
	FirstSeq uint64
	LastSeq  uint64
	// Events are the committed envelopes with their final Seq.
	Events []Envelope
}

// EventStore is an append-only log of events partitioned into streams.
type EventStore interface {
	// Read iterates the events of stream in version order. The sequence is
	// lazy; iteration stops at the first error. An unknown stream yields
	// nothing.
	Read(ctx context.Context, stream StreamID, opts ...ReadOption) iter.Seq2[Envelope, error]
	// Append stores events if stream is at version expected, all or nothing.
	// It fails with a *ConflictError otherwise.
	Append(ctx context.Context, stream StreamID, expected Version, events []Envelope) (*AppendResult, error)
	// Version returns the current version of stream (0 if it has no events).
	Version(ctx context.Context, stream StreamID) (Version, error)
}

// AllReader iterates events across all streams in global sequence order.
// It is used to rebuild projections.
type AllReader interface {
	ReadAll(ctx context.Context, afterSeq uint64) iter.Seq2[Envelope, error]
}

// LoadAll collects the events of stream.
func LoadAll(ctx context.Context, store EventStore, stream StreamID, opts ...ReadOption) ([]Envelope, error) {
	var out []Envelope
	for e, err := range store.Read(ctx, stream, opts...) {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// AppendEvents encodes events with reg and appends them to stream.
func AppendEvents(
	ctx context.Context,
	store EventStore,
	reg *EventRegistry,
	stream StreamID,
	expected Version,
	events ...any,
) (*AppendResult, error) {
	if len(events) == 0 {
		return nil, ErrNoEvents
	}
	envs, err := NewEnvelopes(reg, stream, expected, nil, events...)
	if err != nil {
		return nil, storeFault("encode events", err)
	}
	return store.Append(ctx, stream, expected, envs)
}
