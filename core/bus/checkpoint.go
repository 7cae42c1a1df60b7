package bus

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/codewandler/axon-go/ports/kv"
)

// CpStore stores the last handled global sequence of one subscriber.
type CpStore interface {
	Get(ctx context.Context) (lastSeq uint64, err error)
	Set(ctx context.Context, lastSeq uint64) error
}

type InMemCpStore struct {
	mu sync.RWMutex
	v  uint64
}

func NewInMemCpStore() *InMemCpStore { return &InMemCpStore{} }

func (s *InMemCpStore) Get(context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v, nil
}

func (s *InMemCpStore) Set(_ context.Context, v uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v = v
	return nil
}

// KVCpStore keeps a checkpoint under "checkpoint/<name>" in a kv.Store.
type KVCpStore struct {
	store kv.Store
	key   string
}

func NewKVCpStore(store kv.Store, name string) *KVCpStore {
	return &KVCpStore{store: store, key: "checkpoint/" + name}
}

func (s *KVCpStore) Get(ctx context.Context) (uint64, error) {
	e, err := s.store.Get(ctx, s.key)
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(e.Data), 10, 64)
}

func (s *KVCpStore) Set(ctx context.Context, v uint64) error {
	return s.store.Put(ctx, s.key, kv.Entry{Data: strconv.AppendUint(nil, v, 10)}, kv.PutOptions{})
}

var (
	_ CpStore = (*InMemCpStore)(nil)
	_ CpStore = (*KVCpStore)(nil)
)
