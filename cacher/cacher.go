// Package cacher provides a short-lived read-through cache. It sits in front
// of remote lookups that are hit once per uploaded image, so a burst of
// uploads for one tenant costs a single round trip.
package cacher

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// FetchFunc loads the value for a key on a cache miss.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// MemoryCacher caches values of type T in memory for a fixed TTL. Concurrent
// misses for the same key share one fetch.
type MemoryCacher[T any] struct {
	items  *cache.Cache
	ttl    time.Duration
	flight singleflight.Group
}

// NewMemoryCacher creates a cache whose entries live for ttl. Expired entries
// are purged every 2*ttl.
//
// Parameters:
//   - ttl: Lifetime of a cached value; must be positive
//
// Returns:
//   - The cache
func NewMemoryCacher[T any](ttl time.Duration) *MemoryCacher[T] {
	if ttl <= 0 {
		ttl = time.Second
	}

	return &MemoryCacher[T]{
		items: cache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

// GetOrFetch returns the cached value for key or loads it with fetch. Fetch
// errors are returned to every waiting caller and nothing is cached.
//
// Parameters:
//   - ctx: Passed to fetch
//   - key: Cache key
//   - fetch: Loader invoked on a miss
//
// Returns:
//   - The cached or fetched value
//   - An error if fetch failed
func (c *MemoryCacher[T]) GetOrFetch(ctx context.Context, key string, fetch FetchFunc[T]) (T, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		// Another caller may have filled the entry while we waited.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}

		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.items.Set(key, v, c.ttl)

		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unexpected cached type %T for key %s", v, key)
	}

	return typed, nil
}

// Set stores v under key, replacing any cached value.
func (c *MemoryCacher[T]) Set(key string, v T) {
	c.items.Set(key, v, c.ttl)
}

// Invalidate drops key so the next read goes to the source.
func (c *MemoryCacher[T]) Invalidate(key string) {
	c.items.Delete(key)
}

// Len returns the number of entries, including expired ones not yet purged.
func (c *MemoryCacher[T]) Len() int {
	return c.items.ItemCount()
}

func (c *MemoryCacher[T]) lookup(key string) (T, bool) {
	if v, found := c.items.Get(key); found {
		if typed, ok := v.(T); ok {
			return typed, true
		}
	}

	var zero T
	return zero, false
}
