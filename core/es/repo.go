package es

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/axon-go/core/sf"
	"github.com/codewandler/axon-go/internal/codec"
)

// SaveResult is the outcome of a successful Save.
type SaveResult[S any] struct {
	// Root is the aggregate after the saved events were applied.
	Root *Root[S]
	// Envelopes are the committed events, in order.
	Envelopes []Envelope
	// Events are the committed events in decoded form.
	Events []any
}

// Repository loads and saves the aggregates of one aggregate type.
// It holds no per-aggregate state; every Load replays from the store.
type Repository[S any] struct {
	agg           Aggregate[S]
	log           *slog.Logger
	store         EventStore
	registry      *EventRegistry
	metrics       ESMetrics
	snapshotter   Snapshotter
	snapshotEvery int
	schemaVersion int
	codec         codec.Codec
	newID         func() string
	now           func() time.Time
	snapshots     sf.Group[*Snapshot]
}

// NewRepository creates a repository for agg. Unless WithRegistry is
// given, the aggregate's events are registered in a private registry.
func NewRepository[S any](agg Aggregate[S], store EventStore, opts ...RepositoryOption) (*Repository[S], error) {
	if agg.Type() == "" {
		return nil, fmt.Errorf("%w: aggregate type is empty", ErrInvalidStream)
	}
	options := repoOptions{
		log:           slog.Default(),
		metrics:       NopESMetrics(),
		schemaVersion: 1,
		newID:         func() string { return gonanoid.Must() },
		now:           time.Now,
	}
	for _, opt := range opts {
		opt.applyToRepository(&options)
	}
	if options.registry == nil {
		options.registry = NewRegistry()
		if err := RegisterEvents(options.registry, agg.Events()...); err != nil {
			return nil, fmt.Errorf("register events of %s: %w", agg.Type(), err)
		}
	}

	return &Repository[S]{
		agg:           agg,
		log:           options.log.With(slog.String("repo", agg.Type())),
		store:         store,
		registry:      options.registry,
		metrics:       options.metrics,
		snapshotter:   options.snapshotter,
		snapshotEvery: options.snapshotEvery,
		schemaVersion: options.schemaVersion,
		codec:         codec.JSON{},
		newID:         options.newID,
		now:           options.now,
	}, nil
}

func (r *Repository[S]) Aggregate() Aggregate[S]  { return r.agg }
func (r *Repository[S]) Registry() *EventRegistry { return r.registry }

// Load rebuilds the aggregate with id. An id without events yields the
// initial state at version 0. Snapshots are used when a snapshotter is
// configured, unless WithSnapshot(false) is given.
func (r *Repository[S]) Load(ctx context.Context, id string, opts ...LoadOption) (*Root[S], error) {
	stream := NewStreamID(r.agg.Type(), id)
	if err := stream.Validate(); err != nil {
		return nil, err
	}
	loadOpts := repoLoadOptions{snapshot: r.snapshotter != nil}
	for _, opt := range opts {
		opt.applyToLoad(&loadOpts)
	}

	defer r.metrics.RepoLoadDuration(stream.Type).ObserveDuration()

	root := NewRoot(r.agg, id)
	if loadOpts.snapshot {
		if r.snapshotter == nil {
			return nil, ErrSnapshotterUnconfigured
		}
		if err := r.applySnapshot(ctx, root); err != nil {
			return nil, err
		}
	}

	for e, err := range r.store.Read(ctx, stream, WithAfterVersion(root.Version)) {
		if err != nil {
			return nil, storeFault("read "+stream.String(), err)
		}
		if e.Version != root.Version.Next() {
			return nil, fmt.Errorf("%w: %s: expected version %d, got %d", ErrStoreFault, stream, root.Version.Next(), e.Version)
		}
		ev, err := r.registry.Decode(e)
		if err != nil {
			return nil, storeFault("decode "+stream.String(), err)
		}
		if root.State, err = r.agg.Apply(root.State, ev); err != nil {
			return nil, fmt.Errorf("replay %s at version %d: %w", stream, e.Version, err)
		}
		root.Version, root.Seq = e.Version, e.Seq
	}

	r.log.Debug("loaded", root.LogAttr())
	return root, nil
}

// Get is Load, but fails with ErrAggregateNotFound for an empty stream.
func (r *Repository[S]) Get(ctx context.Context, id string, opts ...LoadOption) (*Root[S], error) {
	root, err := r.Load(ctx, id, opts...)
	if err != nil {
		return nil, err
	}
	if root.IsNew() {
		return nil, fmt.Errorf("%w: %s", ErrAggregateNotFound, root.Stream)
	}
	return root, nil
}

// Save appends events decided on root, expecting the stream to still be at
// root.Version. The events are encoded, decoded and applied before anything
// is written; any failure leaves the store untouched. root is not modified.
func (r *Repository[S]) Save(ctx context.Context, root *Root[S], events []any, opts ...SaveOption) (*SaveResult[S], error) {
	if len(events) == 0 {
		return &SaveResult[S]{Root: root}, nil
	}
	if err := root.Stream.Validate(); err != nil {
		return nil, err
	}
	saveOpts := repoSaveOptions{}
	for _, opt := range opts {
		opt.applyToSave(&saveOpts)
	}

	defer r.metrics.RepoSaveDuration(root.Stream.Type).ObserveDuration()

	envs, err := newEnvelopes(r.registry, root.Stream, root.Version, saveOpts.metadata, r.newID, r.now, events)
	if err != nil {
		return nil, storeFault("encode events", err)
	}

	// apply the decoded form so the resulting state is exactly what a
	// replay produces
	decoded := make([]any, len(envs))
	for i, e := range envs {
		if decoded[i], err = r.registry.Decode(e); err != nil {
			return nil, storeFault("decode events", err)
		}
	}
	state, err := Fold(r.agg, root.State, decoded...)
	if err != nil {
		return nil, err
	}

	res, err := r.store.Append(ctx, root.Stream, root.Version, envs)
	if err != nil {
		if errors.Is(err, ErrConcurrencyConflict) {
			r.metrics.ConcurrencyConflict(root.Stream.Type)
		}
		return nil, storeFault("append to "+root.Stream.String(), err)
	}

	next := &Root[S]{Stream: root.Stream, Version: res.Version, Seq: res.LastSeq, State: state}
	r.log.Debug("saved", next.LogAttr(), slog.Int("num_events", len(res.Events)))

	if r.shouldSnapshot(root.Version, next.Version, saveOpts) {
		// the commit stands regardless of the snapshot
		if _, err := r.Snapshot(ctx, next); err != nil {
			r.log.Warn("snapshot failed", next.LogAttr(), slog.Any("error", err))
		}
	}

	return &SaveResult[S]{Root: next, Envelopes: res.Events, Events: decoded}, nil
}

func (r *Repository[S]) shouldSnapshot(from, to Version, opts repoSaveOptions) bool {
	if r.snapshotter == nil {
		return false
	}
	if opts.snapshot != nil {
		return *opts.snapshot
	}
	if r.snapshotEvery <= 0 {
		return false
	}
	every := Version(r.snapshotEvery)
	return from/every != to/every
}

// Snapshot encodes and stores the state of root.
func (r *Repository[S]) Snapshot(ctx context.Context, root *Root[S]) (*Snapshot, error) {
	if r.snapshotter == nil {
		return nil, ErrSnapshotterUnconfigured
	}
	defer r.metrics.SnapshotSaveDuration(root.Stream.Type).ObserveDuration()

	data, err := r.codec.Marshal(root.State)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot of %s: %w", root.Stream, err)
	}
	ss := &Snapshot{
		SnapshotID:    r.newID(),
		ObjType:       root.Stream.Type,
		ObjID:         root.Stream.ID,
		ObjVersion:    root.Version,
		StreamSeq:     root.Seq,
		CreatedAt:     r.now(),
		SchemaVersion: r.schemaVersion,
		Encoding:      r.codec.Name(),
		Data:          data,
	}
	ss.Seal()
	if err := r.snapshotter.SaveSnapshot(ctx, ss); err != nil {
		return nil, fmt.Errorf("save snapshot of %s: %w", root.Stream, err)
	}
	r.log.Debug("snapshot saved", ss.logAttrs())
	return ss, nil
}

// applySnapshot seeds root from the latest usable snapshot. Unusable
// snapshots are logged and ignored. A snapshot is usable only if the
// stream holds the event it was taken at.
func (r *Repository[S]) applySnapshot(ctx context.Context, root *Root[S]) error {
	stream := root.Stream
	ss, err := r.snapshots.Do(stream.String(), func() (*Snapshot, error) {
		defer r.metrics.SnapshotLoadDuration(stream.Type).ObserveDuration()
		return r.snapshotter.LoadSnapshot(ctx, stream)
	})
	if err != nil {
		if !errors.Is(err, ErrSnapshotNotFound) {
			r.discardSnapshot(stream, "load", err)
		}
		return nil
	}

	if ss.Stream() != stream {
		r.discardSnapshot(stream, "stream", fmt.Errorf("snapshot belongs to %s", ss.Stream()))
		return nil
	}
	if ss.SchemaVersion != r.schemaVersion {
		r.discardSnapshot(stream, "schema", fmt.Errorf("schema version %d, want %d", ss.SchemaVersion, r.schemaVersion))
		return nil
	}
	if err := ss.Verify(); err != nil {
		r.discardSnapshot(stream, "checksum", err)
		return nil
	}
	c, err := codec.Lookup(ss.Encoding)
	if err != nil {
		r.discardSnapshot(stream, "encoding", err)
		return nil
	}
	state := r.agg.Initial()
	if err := c.Unmarshal(ss.Data, &state); err != nil {
		r.discardSnapshot(stream, "decode", err)
		return nil
	}

	if ss.ObjVersion > 0 {
		at, found, err := r.eventAt(ctx, stream, ss.ObjVersion)
		if err != nil {
			return err
		}
		switch {
		case !found:
			r.discardSnapshot(stream, "ahead", fmt.Errorf("snapshot at version %d, stream is shorter", ss.ObjVersion))
			return nil
		case at.Seq != ss.StreamSeq:
			r.discardSnapshot(stream, "seq", fmt.Errorf("snapshot at seq %d, stream has %d", ss.StreamSeq, at.Seq))
			return nil
		}
	}

	root.State, root.Version, root.Seq = state, ss.ObjVersion, ss.StreamSeq
	r.log.Debug("snapshot applied", ss.logAttrs())
	return nil
}

func (r *Repository[S]) eventAt(ctx context.Context, stream StreamID, v Version) (Envelope, bool, error) {
	for e, err := range r.store.Read(ctx, stream, WithAfterVersion(v-1)) {
		if err != nil {
			return Envelope{}, false, storeFault("read "+stream.String(), err)
		}
		return e, e.Version == v, nil
	}
	return Envelope{}, false, nil
}

func (r *Repository[S]) discardSnapshot(stream StreamID, reason string, err error) {
	r.metrics.SnapshotDiscarded(stream.Type, reason)
	r.log.Warn(
		"snapshot discarded, replaying stream",
		stream.SlogAttr(),
		slog.String("reason", reason),
		slog.Any("error", err),
	)
}
