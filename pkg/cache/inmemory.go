// Package cache provides the process-local caching components used by the
// song catalogue.
package cache

import (
	"context"
	"sync"
)

// InMemoryCache is a generic, thread-safe, in-memory cache implementation.
// Entries are never evicted or expired; they live until Reset is called.
// It satisfies the Cache interface.
type InMemoryCache[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]V
}

var _ Cache[string, float64] = (*InMemoryCache[string, float64])(nil)

// NewInMemoryCache creates a new in-memory cache.
func NewInMemoryCache[K comparable, V any]() *InMemoryCache[K, V] {
	return &InMemoryCache[K, V]{
		data: make(map[K]V),
	}
}

// Fetch retrieves an item from the cache.
func (c *InMemoryCache[K, V]) Fetch(_ context.Context, key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value, ok := c.data[key]
	return value, ok
}

// Write adds an item to the cache. Concurrent writers of the same key race at
// the value level only; the last write wins.
func (c *InMemoryCache[K, V]) Write(_ context.Context, key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

// Len reports the number of cached entries.
func (c *InMemoryCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Reset drops every entry.
func (c *InMemoryCache[K, V]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[K]V)
}
