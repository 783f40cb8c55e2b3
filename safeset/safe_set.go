// Package safeset provides a mutex-guarded generic set. Sessions use it to
// record every distinct client address seen for an authenticated identity.
package safeset

import "sync"

// SafeSet is a thread-safe set of unique elements of comparable type T.
type SafeSet[T comparable] struct {
	m map[T]struct{}
	sync.RWMutex
}

// NewSafeSet creates and returns a new empty SafeSet.
func NewSafeSet[T comparable]() *SafeSet[T] {
	return &SafeSet[T]{m: make(map[T]struct{})}
}

// Add adds an element to the set.
//
// Parameters:
//   - value: The element to add
//
// Returns:
//   - true if value was not already present
func (s *SafeSet[T]) Add(value T) bool {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.m[value]; ok {
		return false
	}
	s.m[value] = struct{}{}
	return true
}

// Values returns a snapshot of the elements in unspecified order.
func (s *SafeSet[T]) Values() []T {
	s.RLock()
	defer s.RUnlock()
	out := make([]T, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	return out
}
