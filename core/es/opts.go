package es

import (
	"log/slog"
	"time"
)

type (
	valueOption[T any] struct{ v T }

	LogOption           valueOption[*slog.Logger]
	ESMetricsOption     valueOption[ESMetrics]
	SnapshotterOption   valueOption[Snapshotter]
	SnapshotEveryOption valueOption[int]
	SchemaVersionOption valueOption[int]
	RegistryOption      valueOption[*EventRegistry]
	IDGeneratorOption   valueOption[func() string]
	ClockOption         valueOption[func() time.Time]
	SnapshotOption      valueOption[bool]
	MetadataOption      valueOption[Metadata]
)

func WithLog(l *slog.Logger) LogOption                { return LogOption{v: l} }
func WithMetrics(m ESMetrics) ESMetricsOption         { return ESMetricsOption{v: m} }
func WithSnapshotter(s Snapshotter) SnapshotterOption { return SnapshotterOption{v: s} }

// WithSnapshotEvery takes a snapshot whenever a save crosses a multiple of n events.
func WithSnapshotEvery(n int) SnapshotEveryOption { return SnapshotEveryOption{v: n} }

// WithSchemaVersion sets the state schema version recorded in snapshots.
// Snapshots of another schema version are ignored on load.
func WithSchemaVersion(v int) SchemaVersionOption { return SchemaVersionOption{v: v} }

// WithRegistry shares an event registry; the aggregate's events must
// already be registered in it.
func WithRegistry(r *EventRegistry) RegistryOption      { return RegistryOption{v: r} }
func WithIDGenerator(f func() string) IDGeneratorOption { return IDGeneratorOption{v: f} }
func WithClock(now func() time.Time) ClockOption        { return ClockOption{v: now} }

// WithSnapshot forces (or, on load, allows) the use of a snapshot.
func WithSnapshot(v bool) SnapshotOption { return SnapshotOption{v: v} }

// WithMetadata attaches md to every event of a save.
func WithMetadata(md Metadata) MetadataOption { return MetadataOption{v: md} }

// === store ===

type (
	storeOptions struct {
		log     *slog.Logger
		metrics ESMetrics
	}
	StoreOption interface{ applyToStore(*storeOptions) }
)

func (o LogOption) applyToStore(opts *storeOptions)       { opts.log = o.v }
func (o ESMetricsOption) applyToStore(opts *storeOptions) { opts.metrics = o.v }

// === repository ===

type (
	repoOptions struct {
		log           *slog.Logger
		metrics       ESMetrics
		snapshotter   Snapshotter
		snapshotEvery int
		schemaVersion int
		registry      *EventRegistry
		newID         func() string
		now           func() time.Time
	}
	RepositoryOption interface{ applyToRepository(*repoOptions) }

	repoLoadOptions struct{ snapshot bool }
	LoadOption      interface{ applyToLoad(*repoLoadOptions) }

	repoSaveOptions struct {
		snapshot *bool
		metadata Metadata
	}
	SaveOption interface{ applyToSave(*repoSaveOptions) }
)

func (o LogOption) applyToRepository(opts *repoOptions)           { opts.log = o.v }
func (o ESMetricsOption) applyToRepository(opts *repoOptions)     { opts.metrics = o.v }
func (o SnapshotterOption) applyToRepository(opts *repoOptions)   { opts.snapshotter = o.v }
func (o SnapshotEveryOption) applyToRepository(opts *repoOptions) { opts.snapshotEvery = o.v }
func (o SchemaVersionOption) applyToRepository(opts *repoOptions) { opts.schemaVersion = o.v }
func (o RegistryOption) applyToRepository(opts *repoOptions)      { opts.registry = o.v }
func (o IDGeneratorOption) applyToRepository(opts *repoOptions)   { opts.newID = o.v }
func (o ClockOption) applyToRepository(opts *repoOptions)         { opts.now = o.v }

func (o SnapshotOption) applyToLoad(opts *repoLoadOptions) { opts.snapshot = o.v }
func (o SnapshotOption) applyToSave(opts *repoSaveOptions) { opts.snapshot = &o.v }
func (o MetadataOption) applyToSave(opts *repoSaveOptions) {
	opts.metadata = opts.metadata.Merge(o.v)
}

// === snapshotter ===

type (
	snapshotterOptions struct {
		log *slog.Logger
		ttl time.Duration
	}
	SnapshotterConfigOption interface{ applyToSnapshotter(*snapshotterOptions) }
	SnapshotTTLOption       valueOption[time.Duration]
)

// WithSnapshotTTL expires stored snapshots after ttl.
func WithSnapshotTTL(ttl time.Duration) SnapshotTTLOption { return SnapshotTTLOption{v: ttl} }

func (o LogOption) applyToSnapshotter(opts *snapshotterOptions)         { opts.log = o.v }
func (o SnapshotTTLOption) applyToSnapshotter(opts *snapshotterOptions) { opts.ttl = o.v }
