package kv

import (
	"bytes"
	"context"
	"maps"
	"sync"
	"time"
)

type memEntry struct {
	entry     Entry
	expiresAt time.Time
}

// MemStore is an in-process Store. Entries are copied on the way in and out.
type MemStore struct {
	mu   sync.RWMutex
	data map[string]memEntry
	now  func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{data: map[string]memEntry{}, now: time.Now}
}

func (m *MemStore) Put(ctx context.Context, key string, entry Entry, opts PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := memEntry{entry: cloneEntry(entry)}
	if opts.TTL > 0 {
		e.expiresAt = m.now().Add(opts.TTL)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = e
	return nil
}

func (m *MemStore) Get(ctx context.Context, key string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	m.mu.RLock()
	e, ok := m.data[key]
	m.mu.RUnlock()
	if !ok || (!e.expiresAt.IsZero() && m.now().After(e.expiresAt)) {
		return Entry{}, ErrNotFound
	}
	return cloneEntry(e.entry), nil
}

func (m *MemStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func cloneEntry(e Entry) Entry {
	return Entry{Data: bytes.Clone(e.Data), Meta: maps.Clone(e.Meta)}
}

var _ Store = (*MemStore)(nil)
