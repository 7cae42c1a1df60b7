package sf

import "golang.org/x/sync/singleflight"

// Group deduplicates concurrent calls per key. The zero value is ready to use.
type Group[T any] struct {
	g singleflight.Group
}

// Do executes fn once for all concurrent callers with the same key.
func (s *Group[T]) Do(key string, fn func() (T, error)) (T, error) {
	v, err, _ := s.g.Do(key, func() (any, error) { return fn() })
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Forget makes the next Do for key execute fn even if a call is in flight.
func (s *Group[T]) Forget(key string) { s.g.Forget(key) }
