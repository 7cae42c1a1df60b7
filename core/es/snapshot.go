package es

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/codewandler/axon-go/core/cache"
	"github.com/codewandler/axon-go/ports/kv"
)

var (
	ErrSnapshotterUnconfigured = errors.New("no snapshotter configured")
	ErrSnapshotNotFound        = errors.New("snapshot not found")
	ErrSnapshotCorrupt         = errors.New("snapshot corrupt")
)

// Snapshot is the encoded state of an aggregate at ObjVersion. It is
// derived data: losing or discarding it only costs a longer replay.
type Snapshot struct {
	SnapshotID string `json:"snapshot_id"`

	ObjType    string  `json:"obj_type"`
	ObjID      string  `json:"obj_id"`
	ObjVersion Version `json:"obj_version"`

	// StreamSeq is the global sequence of the last event folded into Data.
	StreamSeq uint64 `json:"stream_seq"`

	CreatedAt     time.Time `json:"created_at"`
	SchemaVersion int       `json:"schema_version"`
	Encoding      string    `json:"encoding"`
	// Checksum is the BLAKE2b-256 digest of Data.
	Checksum []byte `json:"checksum"`
	Data     []byte `json:"data"`
}

func (s *Snapshot) Stream() StreamID { return StreamID{Type: s.ObjType, ID: s.ObjID} }

// Seal computes the checksum over Data.
func (s *Snapshot) Seal() {
	sum := blake2b.Sum256(s.Data)
	s.Checksum = sum[:]
}

// Verify reports ErrSnapshotCorrupt if Data does not match Checksum.
func (s *Snapshot) Verify() error {
	sum := blake2b.Sum256(s.Data)
	if !bytes.Equal(sum[:], s.Checksum) {
		return fmt.Errorf("%w: checksum mismatch for %s@%d", ErrSnapshotCorrupt, s.Stream(), s.ObjVersion)
	}
	return nil
}

func (s *Snapshot) logAttrs() slog.Attr {
	return slog.Group(
		"snapshot",
		slog.String("id", s.SnapshotID),
		slog.String("stream", s.Stream().String()),
		s.ObjVersion.SlogAttrWithKey("obj_version"),
		slog.Uint64("seq", s.StreamSeq),
		slog.Int("schema", s.SchemaVersion),
		slog.Int("size", len(s.Data)),
	)
}

type Snapshotter interface {
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error
	// LoadSnapshot returns ErrSnapshotNotFound if there is none.
	LoadSnapshot(ctx context.Context, stream StreamID) (*Snapshot, error)
	DeleteSnapshot(ctx context.Context, stream StreamID) error
}

// === In-Memory Snapshotter ===

// InMemorySnapshotter keeps the latest snapshot per stream in a cache.
// Evictions are harmless since snapshots are derived.
type InMemorySnapshotter struct {
	log   *slog.Logger
	ttl   time.Duration
	cache cache.TypedCache[*Snapshot]
}

// NewInMemorySnapshotter stores snapshots in c; a nil c means a LRU
// holding 1024 snapshots.
func NewInMemorySnapshotter(c cache.Cache, opts ...SnapshotterConfigOption) *InMemorySnapshotter {
	options := snapshotterOptions{log: slog.Default()}
	for _, opt := range opts {
		opt.applyToSnapshotter(&options)
	}
	if c == nil {
		c = cache.NewLRU(cache.LRUOpts{Size: 1024})
	}
	return &InMemorySnapshotter{
		log:   options.log.With(slog.String("snapshotter", "memory")),
		ttl:   options.ttl,
		cache: cache.NewTyped[*Snapshot](c),
	}
}

func (i *InMemorySnapshotter) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := *snapshot
	cp.Data = bytes.Clone(snapshot.Data)
	cp.Checksum = bytes.Clone(snapshot.Checksum)
	i.cache.Put(snapshot.Stream().String(), &cp, cache.WithTTL(i.ttl))
	return nil
}

func (i *InMemorySnapshotter) LoadSnapshot(ctx context.Context, stream StreamID) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, ok := i.cache.Get(stream.String())
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	cp := *s
	cp.Data = bytes.Clone(s.Data)
	return &cp, nil
}

func (i *InMemorySnapshotter) DeleteSnapshot(ctx context.Context, stream StreamID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.cache.Delete(stream.String())
	return nil
}

// === KV Snapshotter ===

// KVSnapshotter persists snapshots in a kv.Store under "snapshot/<type>:<id>".
type KVSnapshotter struct {
	log   *slog.Logger
	ttl   time.Duration
	store kv.Store
}

func NewKVSnapshotter(store kv.Store, opts ...SnapshotterConfigOption) *KVSnapshotter {
	options := snapshotterOptions{log: slog.Default()}
	for _, opt := range opts {
		opt.applyToSnapshotter(&options)
	}
	return &KVSnapshotter{
		log:   options.log.With(slog.String("snapshotter", "kv")),
		ttl:   options.ttl,
		store: store,
	}
}

func (k *KVSnapshotter) key(stream StreamID) string { return "snapshot/" + stream.String() }

func (k *KVSnapshotter) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	return kv.Put(ctx, k.store, k.key(snapshot.Stream()), snapshot, kv.PutOptions{TTL: k.ttl})
}

func (k *KVSnapshotter) LoadSnapshot(ctx context.Context, stream StreamID) (*Snapshot, error) {
	s, err := kv.Get[Snapshot](ctx, k.store, k.key(stream))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("load snapshot %s: %w", stream, err)
	}
	return &s, nil
}

func (k *KVSnapshotter) DeleteSnapshot(ctx context.Context, stream StreamID) error {
	return k.store.Delete(ctx, k.key(stream))
}

var (
	_ Snapshotter = (*InMemorySnapshotter)(nil)
	_ Snapshotter = (*KVSnapshotter)(nil)
)
