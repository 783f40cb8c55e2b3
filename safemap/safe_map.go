// Package safemap provides a type-safe, concurrent map built on sync.Map.
// It backs the live connection table of the TCP server.
package safemap

import "sync"

// SafeMap is a concurrent map that is safe for use by multiple goroutines.
// It wraps sync.Map and exposes a generic, type-safe API.
//
// SafeMap must not be copied after first use. Len and Range are O(n) in the
// number of entries.
type SafeMap[K comparable, V any] struct {
	m sync.Map
}

// NewSafeMap returns a new, empty SafeMap ready for use.
func NewSafeMap[K comparable, V any]() *SafeMap[K, V] {
	return &SafeMap[K, V]{}
}

// Store sets the value for key k, overwriting any existing value.
func (m *SafeMap[K, V]) Store(k K, v V) {
	m.m.Store(k, v)
}

// Load returns the value for key k and whether it was present. A missing
// key yields the zero value of V.
//
// Parameters:
//   - k: The key to look up
//
// Returns:
//   - The value associated with k, or the zero value of V if not found
//   - true if the key was present, false otherwise
func (m *SafeMap[K, V]) Load(k K) (V, bool) {
	v, found := m.m.Load(k)
	if !found {
		var empty V
		return empty, false
	}

	return v.(V), true
}

// Delete removes the entry for key k. Deleting a missing key is a no-op.
func (m *SafeMap[K, V]) Delete(k K) {
	m.m.Delete(k)
}

// Range calls f sequentially for each key and value present in the map.
// If f returns false, Range stops the iteration.
func (m *SafeMap[K, V]) Range(f func(k K, v V) bool) {
	m.m.Range(func(k, v any) bool {
		return f(k.(K), v.(V))
	})
}

// Len returns the number of entries in the map.
func (m *SafeMap[K, V]) Len() int {
	length := 0
	m.Range(func(K, V) bool {
		length++
		return true
	})

	return length
}
