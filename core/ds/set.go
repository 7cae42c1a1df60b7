// Package ds provides small generic data structures.
package ds

import (
	"encoding/json"
	"fmt"
	"iter"
	"slices"
)

type StringSet = Set[string]

// Set is a set that remembers insertion order, so iteration is
// deterministic. The zero value is not usable; use NewSet.
type Set[T comparable] struct {
	items map[T]struct{}
	order []T
}

func NewSet[T comparable](items ...T) *Set[T] {
	s := &Set[T]{items: make(map[T]struct{}, len(items)), order: make([]T, 0, len(items))}
	s.Add(items...)
	return s
}

func NewStringSet(items ...string) *StringSet { return NewSet(items...) }

func (s *Set[T]) String() string { return fmt.Sprintf("%v", s.order) }

// Add adds items not yet present and reports how many were added.
func (s *Set[T]) Add(items ...T) (added int) {
	for _, v := range items {
		if _, ok := s.items[v]; ok {
			continue
		}
		s.items[v] = struct{}{}
		s.order = append(s.order, v)
		added++
	}
	return added
}

func (s *Set[T]) Remove(items ...T) {
	for _, v := range items {
		if _, ok := s.items[v]; !ok {
			continue
		}
		delete(s.items, v)
		s.order = slices.DeleteFunc(s.order, func(o T) bool { return o == v })
	}
}

func (s *Set[T]) Contains(v T) bool {
	_, ok := s.items[v]
	return ok
}

// ContainsAll reports whether every item is present.
func (s *Set[T]) ContainsAll(items ...T) bool {
	for _, v := range items {
		if !s.Contains(v) {
			return false
		}
	}
	return true
}

func (s *Set[T]) Len() int      { return len(s.order) }
func (s *Set[T]) IsEmpty() bool { return len(s.order) == 0 }

// Values returns a copy of the elements in insertion order.
func (s *Set[T]) Values() []T { return slices.Clone(s.order) }

// All iterates the elements in insertion order.
func (s *Set[T]) All() iter.Seq[T] { return slices.Values(s.order) }

func (s *Set[T]) Copy() *Set[T] { return NewSet(s.order...) }

// Eq reports whether both sets hold the same elements, ignoring order.
func (s *Set[T]) Eq(other *Set[T]) bool {
	return s.Len() == other.Len() && s.ContainsAll(other.order...)
}

func (s Set[T]) MarshalJSON() ([]byte, error) { return json.Marshal(s.order) }

func (s *Set[T]) UnmarshalJSON(data []byte) error {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*s = *NewSet(items...)
	return nil
}
