// Package perkey provides a scheduler that runs tasks sequentially per key
// while tasks for different keys run concurrently.
//
// The event bus uses one key per subscriber: every subscriber sees events
// in publish order, and a slow subscriber never delays the others.
package perkey

import (
	"context"
	"errors"
	"sync"
)

// ErrSchedulerClosed is returned when work is submitted after Close.
var ErrSchedulerClosed = errors.New("scheduler is closed")

type Option func(*config)

type config struct {
	bufferSize int
}

// WithBufferSize sets the per-key queue size (default 64). Submit blocks
// while the queue of its key is full.
func WithBufferSize(size int) Option {
	return func(c *config) {
		if size > 0 {
			c.bufferSize = size
		}
	}
}

// Scheduler executes tasks in submission order per key.
type Scheduler[K comparable] struct {
	mu         sync.Mutex
	workers    map[K]chan func()
	closed     bool
	enqueuing  sync.WaitGroup
	running    sync.WaitGroup
	bufferSize int
}

func New[K comparable](opts ...Option) *Scheduler[K] {
	cfg := config{bufferSize: 64}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Scheduler[K]{
		workers:    make(map[K]chan func()),
		bufferSize: cfg.bufferSize,
	}
}

// Submit enqueues fn for key and returns without waiting for it to run.
// It only blocks while the key's queue is full; ctx bounds that wait.
func (s *Scheduler[K]) Submit(ctx context.Context, key K, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSchedulerClosed
	}
	s.enqueuing.Add(1)
	q := s.queueLocked(key)
	s.mu.Unlock()
	defer s.enqueuing.Done()

	select {
	case q <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do enqueues fn for key and waits for its result. If ctx ends while
// waiting, Do returns ctx.Err() but an already queued fn still runs.
func (s *Scheduler[K]) Do(ctx context.Context, key K, fn func() error) error {
	done := make(chan error, 1)
	if err := s.Submit(ctx, key, func() { done <- fn() }); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and waits until all queued tasks ran, or
// until ctx is done. It is safe to call more than once.
func (s *Scheduler[K]) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.mu.Unlock()

		s.enqueuing.Wait()

		s.mu.Lock()
		for _, q := range s.workers {
			close(q)
		}
	}
	s.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		s.running.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Keys returns the number of keys that have a worker.
func (s *Scheduler[K]) Keys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

func (s *Scheduler[K]) queueLocked(key K) chan func() {
	if q, ok := s.workers[key]; ok {
		return q
	}
	q := make(chan func(), s.bufferSize)
	s.workers[key] = q
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		for fn := range q {
			fn()
		}
	}()
	return q
}
