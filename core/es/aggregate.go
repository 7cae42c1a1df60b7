package es

import (
	"fmt"
	"log/slog"

	"github.com/codewandler/axon-go/core/es/assert"
)

// Command is an intent addressed to one aggregate instance. Commands are
// never persisted. CommandType is the routing tag resolved when handlers
// are registered.
type Command interface {
	AggregateID() string
	CommandType() string
}

// Aggregate is the decision logic of one aggregate type over state S.
//
// Apply and Decide must be pure: no I/O, no clocks, no mutation of the
// given state. S should be a value type, or be treated as immutable.
type Aggregate[S any] interface {
	// Type is the aggregate type name, used as the stream type.
	Type() string
	// Initial returns the state of an aggregate without events.
	Initial() S
	// Apply folds one event onto state.
	Apply(state S, event any) (S, error)
	// Decide returns the events a command produces, or a rejection.
	Decide(state S, cmd Command) ([]any, error)
	// Events lists the event types this aggregate produces.
	Events() []EventDef
}

// Root is an aggregate instance: its state after Version events.
type Root[S any] struct {
	Stream StreamID
	// Version is the number of events folded into State (0 = new).
	Version Version
	// Seq is the global sequence of the last folded event.
	Seq   uint64
	State S
}

func (r *Root[S]) ID() string  { return r.Stream.ID }
func (r *Root[S]) IsNew() bool { return r.Version == 0 }

func (r *Root[S]) LogAttr() slog.Attr {
	return slog.Group("agg",
		slog.String("type", r.Stream.Type),
		slog.String("id", r.Stream.ID),
		r.Version.SlogAttr(),
		slog.Uint64("seq", r.Seq),
	)
}

// NewRoot returns the root of an aggregate that has no events yet.
func NewRoot[S any](agg Aggregate[S], id string) *Root[S] {
	return &Root[S]{Stream: NewStreamID(agg.Type(), id), State: agg.Initial()}
}

// Fold applies events in order onto state.
func Fold[S any](agg Aggregate[S], state S, events ...any) (S, error) {
	var err error
	for i, ev := range events {
		if state, err = agg.Apply(state, ev); err != nil {
			return state, fmt.Errorf("apply event %d (%s): %w", i, EventTypeOf(ev), err)
		}
	}
	return state, nil
}

// Require returns a rejection named after the first failing condition.
func Require(conds ...assert.Cond) error {
	if c := assert.FirstFailed(conds...); c != nil {
		return &RejectionError{Reason: c.String()}
	}
	return nil
}

// === func-based aggregate ===

// AggregateFuncs builds an Aggregate from plain functions.
type AggregateFuncs[S any] struct {
	Name      string
	InitialFn func() S
	ApplyFn   func(state S, event any) (S, error)
	DecideFn  func(state S, cmd Command) ([]any, error)
	EventDefs []EventDef
}

func (a AggregateFuncs[S]) Type() string { return a.Name }

func (a AggregateFuncs[S]) Initial() S {
	if a.InitialFn == nil {
		var zero S
		return zero
	}
	return a.InitialFn()
}

func (a AggregateFuncs[S]) Apply(state S, event any) (S, error) { return a.ApplyFn(state, event) }

func (a AggregateFuncs[S]) Decide(state S, cmd Command) ([]any, error) {
	return a.DecideFn(state, cmd)
}

func (a AggregateFuncs[S]) Events() []EventDef { return a.EventDefs }

var _ Aggregate[int] = AggregateFuncs[int]{}

// UnknownEvent is the error Apply implementations return for events they
// do not handle.
func UnknownEvent(event any) error {
	return fmt.Errorf("%w: %T", ErrUnknownEventType, event)
}

// UnknownCommand is the rejection Decide implementations return for
// commands they do not handle.
func UnknownCommand(cmd Command) error {
	return Reject("unsupported command %s", cmd.CommandType())
}
