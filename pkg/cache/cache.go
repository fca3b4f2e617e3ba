package cache

import "context"

// Cache is a generic interface for a caching layer. A miss is not an error:
// Fetch reports it through the boolean.
type Cache[K comparable, V any] interface {
	// Fetch retrieves an item from the cache.
	Fetch(ctx context.Context, key K) (V, bool)
	// Write adds or replaces an item in the cache.
	Write(ctx context.Context, key K, value V)
}
