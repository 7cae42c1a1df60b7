// Package cache provides a small key/value cache abstraction with a bounded
// LRU implementation and a no-op implementation.
//
// Caches only ever hold derived data: a miss must always be recoverable by
// recomputing the value from its source of truth.
//
//	c := cache.NewLRU(cache.LRUOpts{Size: 1000})
//	c.Put("account:42", snap, cache.WithTTL(5*time.Minute))
//
// Use [NewTyped] for a type-safe view over an untyped [Cache].
package cache
