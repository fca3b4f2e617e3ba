package cache

import (
	"github.com/illmade-knight/go-songcatalogue/pkg/types"
)

// AggregateCache holds the memoized results of the catalogue queries in three
// independent, strongly typed namespaces. Entries are written lazily on a
// query miss and are never invalidated by writes to the underlying songs.
type AggregateCache struct {
	// Difficulty maps a normalized filter to the rounded average difficulty.
	Difficulty *InMemoryCache[types.DifficultyFilter, float64]
	// Searches maps a lower-cased search term to the songs it matched.
	Searches *InMemoryCache[string, []types.Song]
	// Ratings maps a canonical song id to its rating statistics.
	Ratings *InMemoryCache[string, types.RatingStats]
}

// NewAggregateCache creates an empty AggregateCache.
func NewAggregateCache() *AggregateCache {
	return &AggregateCache{
		Difficulty: NewInMemoryCache[types.DifficultyFilter, float64](),
		Searches:   NewInMemoryCache[string, []types.Song](),
		Ratings:    NewInMemoryCache[string, types.RatingStats](),
	}
}

// Reset clears all three namespaces.
func (a *AggregateCache) Reset() {
	a.Difficulty.Reset()
	a.Searches.Reset()
	a.Ratings.Reset()
}
