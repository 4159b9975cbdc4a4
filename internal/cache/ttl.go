// Package cache provides the TTL cache shared by the query paths.
package cache

import (
	"context"
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	fetchedAt time.Time
}

// TTL maps a logical key ("projects", "tasks", "github") to a value fetched
// at most once per TTL window. One entry per key; no per-key TTL override.
type TTL[V any] struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]entry[V]

	// now is swapped out in tests.
	now func() time.Time
}

func New[V any](ttl time.Duration) *TTL[V] {
	return &TTL[V]{
		ttl:     ttl,
		entries: map[string]entry[V]{},
		now:     time.Now,
	}
}

// GetOrFetch returns the cached value when it is younger than the TTL.
// Otherwise fetch runs; on success the result is stored and returned, on
// failure the zero value and the error are returned and any existing
// (now stale) entry is left untouched. A stale entry is never served: a
// failed refetch yields a miss, not stale data.
func (c *TTL[V]) GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (V, error)) (V, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	now := c.now()
	c.mu.Unlock()

	if ok && now.Sub(e.fetchedAt) < c.ttl {
		return e.value, nil
	}

	v, err := fetch(ctx)
	if err != nil {
		var zero V
		return zero, err
	}

	c.mu.Lock()
	c.entries[key] = entry[V]{value: v, fetchedAt: c.now()}
	c.mu.Unlock()
	return v, nil
}

// Invalidate drops one key, forcing the next GetOrFetch to refetch.
func (c *TTL[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}
