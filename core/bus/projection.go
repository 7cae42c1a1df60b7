package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/axon-go/core/es"
)

// ProjectionObjType is the snapshot ObjType under which projections persist
// their state.
const ProjectionObjType = "projection"

// ApplyFunc folds one event into a read model.
type ApplyFunc[T any] func(state T, msg *Msg) (T, error)

// ErrProjectionGap is returned by InMemoryProjection.Handle when an event
// arrives early and the projection already holds MaxPending early events.
// The bus redelivers it.
var ErrProjectionGap = errors.New("projection gap")

// DefaultMaxPending bounds the early events a projection holds.
const DefaultMaxPending = 1024

// InMemoryProjection is a read model kept up to date by bus deliveries. It
// tracks the applied version per stream: duplicates are ignored, so
// replaying history into a live projection is safe. An event that arrives
// before its predecessor is held and applied once the gap closes.
type InMemoryProjection[T any] struct {
	name        string
	log         *slog.Logger
	apply       ApplyFunc[T]
	snapshotter es.Snapshotter
	every       uint64

	mu       sync.RWMutex
	state    T
	versions map[es.StreamID]es.Version
	applied  uint64

	maxPending int
	pending    map[es.StreamID]map[es.Version]*Msg
	held       int
}

type projectionSnapshot[T any] struct {
	State    T                     `json:"state"`
	Versions map[string]es.Version `json:"versions"`
}

type ProjectionOpts struct {
	Name string
	Log  *slog.Logger
	// Snapshotter persists the state as JSON. The state is restored from it
	// on construction.
	Snapshotter es.Snapshotter
	// SnapshotEvery saves a snapshot after every n applied events (default 1).
	SnapshotEvery uint64
	// MaxPending bounds the early events held across all streams (default
	// DefaultMaxPending).
	MaxPending int
}

func NewInMemoryProjection[T any](ctx context.Context, opts ProjectionOpts, initial T, apply ApplyFunc[T]) (*InMemoryProjection[T], error) {
	if opts.Name == "" {
		return nil, errors.New("projection name is required")
	}
	if apply == nil {
		return nil, errors.New("projection apply func is required")
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	p := &InMemoryProjection[T]{
		name:        opts.Name,
		log:         log.With(slog.String("projection", opts.Name)),
		apply:       apply,
		snapshotter: opts.Snapshotter,
		every:       max(opts.SnapshotEvery, 1),
		state:       initial,
		versions:    make(map[es.StreamID]es.Version),
		maxPending:  opts.MaxPending,
		pending:     make(map[es.StreamID]map[es.Version]*Msg),
	}
	if p.maxPending <= 0 {
		p.maxPending = DefaultMaxPending
	}
	if p.snapshotter != nil {
		if err := p.restore(ctx); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *InMemoryProjection[T]) stream() es.StreamID {
	return es.StreamID{Type: ProjectionObjType, ID: p.name}
}

func (p *InMemoryProjection[T]) restore(ctx context.Context) error {
	s, err := p.snapshotter.LoadSnapshot(ctx, p.stream())
	switch {
	case errors.Is(err, es.ErrSnapshotNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("restore projection %s: %w", p.name, err)
	}
	if err := s.Verify(); err != nil {
		p.log.Warn("ignoring projection snapshot", slog.Any("error", err))
		return nil
	}
	var data projectionSnapshot[T]
	if err := json.Unmarshal(s.Data, &data); err != nil {
		p.log.Warn("ignoring projection snapshot", slog.Any("error", err))
		return nil
	}
	versions := make(map[es.StreamID]es.Version, len(data.Versions))
	for k, v := range data.Versions {
		stream, err := es.ParseStreamID(k)
		if err != nil {
			p.log.Warn("ignoring projection snapshot", slog.Any("error", err))
			return nil
		}
		versions[stream] = v
	}
	p.state = data.State
	p.versions = versions
	p.applied = s.ObjVersion.Uint64()
	p.log.Debug("restored projection", slog.Int("streams", len(versions)), slog.Uint64("applied", p.applied))
	return nil
}

func (p *InMemoryProjection[T]) Name() string { return p.name }

// State returns the current read model. T should be a value type or be
// treated as read-only by callers.
func (p *InMemoryProjection[T]) State() T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// View calls fn with the current read model under the read lock. Use it
// for states holding maps or slices that Handle updates in place.
func (p *InMemoryProjection[T]) View(fn func(state T)) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	fn(p.state)
}

// StreamVersion is the last applied version of stream.
func (p *InMemoryProjection[T]) StreamVersion(stream es.StreamID) es.Version {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.versions[stream]
}

// Pending is the number of early events held until their predecessors
// arrive.
func (p *InMemoryProjection[T]) Pending() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.held
}

// Applied is the number of events folded into the state.
func (p *InMemoryProjection[T]) Applied() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.applied
}

func (p *InMemoryProjection[T]) Handle(msg *Msg) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	stream := msg.Stream()
	last := p.versions[stream]
	switch {
	case msg.Version() <= last:
		return p.drainLocked(msg.Context(), stream)
	case msg.Version() != last.Next():
		return p.holdLocked(msg, last)
	}

	if err := p.applyLocked(msg.Context(), msg); err != nil {
		return err
	}
	return p.drainLocked(msg.Context(), stream)
}

func (p *InMemoryProjection[T]) holdLocked(msg *Msg, last es.Version) error {
	stream := msg.Stream()
	held := p.pending[stream]
	if _, ok := held[msg.Version()]; ok {
		return nil
	}
	if p.held >= p.maxPending {
		return fmt.Errorf("%w: %s at %d, got %d", ErrProjectionGap, stream, last, msg.Version())
	}
	if held == nil {
		held = make(map[es.Version]*Msg)
		p.pending[stream] = held
	}
	held[msg.Version()] = msg
	p.held++
	p.log.Debug("holding early event", stream.SlogAttr(), slog.Uint64("at", last.Uint64()), msg.Version().SlogAttr())
	return nil
}

// drainLocked applies the held events of stream that are now in order.
func (p *InMemoryProjection[T]) drainLocked(ctx context.Context, stream es.StreamID) error {
	held := p.pending[stream]
	for len(held) > 0 {
		next := p.versions[stream].Next()
		msg, ok := held[next]
		if !ok {
			break
		}
		if err := p.applyLocked(ctx, msg); err != nil {
			return fmt.Errorf("apply held %s at %d: %w", stream, next, err)
		}
		delete(held, next)
		p.held--
	}
	for v := range held {
		if v <= p.versions[stream] {
			delete(held, v)
			p.held--
		}
	}
	if len(held) == 0 {
		delete(p.pending, stream)
	}
	return nil
}

func (p *InMemoryProjection[T]) applyLocked(ctx context.Context, msg *Msg) error {
	next, err := p.apply(p.state, msg)
	if err != nil {
		return err
	}
	p.state = next
	p.versions[msg.Stream()] = msg.Version()
	p.applied++

	if p.snapshotter != nil && p.applied%p.every == 0 {
		if err := p.saveLocked(ctx); err != nil {
			p.log.Warn("projection snapshot failed", slog.Any("error", err))
		}
	}
	return nil
}

// Shutdown stores a final snapshot.
func (p *InMemoryProjection[T]) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.held > 0 {
		p.log.Warn("projection shut down with held events", slog.Int("held", p.held))
	}
	if p.snapshotter == nil || p.applied == 0 {
		return nil
	}
	return p.saveLocked(ctx)
}

func (p *InMemoryProjection[T]) saveLocked(ctx context.Context) error {
	versions := make(map[string]es.Version, len(p.versions))
	for stream, v := range p.versions {
		versions[stream.String()] = v
	}
	data, err := json.Marshal(projectionSnapshot[T]{State: p.state, Versions: versions})
	if err != nil {
		return fmt.Errorf("encode projection %s: %w", p.name, err)
	}
	s := &es.Snapshot{
		SnapshotID: gonanoid.Must(),
		ObjType:    ProjectionObjType,
		ObjID:      p.name,
		ObjVersion: es.Version(p.applied),
		CreatedAt:  time.Now(),
		Encoding:   "json",
		Data:       data,
	}
	s.Seal()
	return p.snapshotter.SaveSnapshot(ctx, s)
}

var (
	_ Handler    = (*InMemoryProjection[int])(nil)
	_ Shutdowner = (*InMemoryProjection[int])(nil)
)
