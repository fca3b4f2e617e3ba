// Package catalogue implements the song catalogue queries: cursor pagination,
// average difficulty, keyword search and rating statistics. Computed
// aggregates and search results are memoized in an AggregateCache and are
// left stale when the underlying songs change.
package catalogue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/illmade-knight/go-songcatalogue/pkg/cache"
	"github.com/illmade-knight/go-songcatalogue/pkg/songstore"
	"github.com/illmade-knight/go-songcatalogue/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultPageSize is the number of songs per page.
const DefaultPageSize = 5

// Config holds the tunables of the query service.
type Config struct {
	PageSize int
	// StoreTimeout bounds every storage call. Zero disables the bound.
	StoreTimeout time.Duration
}

// NewConfigDefaults returns the production defaults.
func NewConfigDefaults() *Config {
	return &Config{
		PageSize:     DefaultPageSize,
		StoreTimeout: 10 * time.Second,
	}
}

// RatingPublisher is notified of every accepted rating. Implementations must
// not block the caller.
type RatingPublisher interface {
	PublishRating(ctx context.Context, songID string, rating float64)
}

// Option customises a Service.
type Option func(*Service)

// WithRatingPublisher registers a publisher for accepted ratings.
func WithRatingPublisher(p RatingPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// Service orchestrates cache lookups, storage queries and aggregation.
type Service struct {
	pageSize     int
	storeTimeout time.Duration
	store        songstore.Store
	aggregates   *cache.AggregateCache
	publisher    RatingPublisher
	// flights collapses concurrent cache misses for the same key.
	flights singleflight.Group
	logger  zerolog.Logger
}

// NewService creates a query service over store, memoizing into aggregates.
func NewService(
	cfg *Config,
	store songstore.Store,
	aggregates *cache.AggregateCache,
	logger zerolog.Logger,
	opts ...Option,
) (*Service, error) {
	if store == nil {
		return nil, errors.New("song store cannot be nil")
	}
	if aggregates == nil {
		return nil, errors.New("aggregate cache cannot be nil")
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	s := &Service{
		pageSize:     pageSize,
		storeTimeout: cfg.StoreTimeout,
		store:        store,
		aggregates:   aggregates,
		logger:       logger.With().Str("component", "CatalogueService").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Page is one page of the song listing.
type Page struct {
	Songs []types.Song
	// Cursor is the cursor the page was requested with; empty for the first page.
	Cursor string
	// Next is the cursor of the following page, set only when this page is full.
	Next string
}

// ListSongs returns the page of songs after cursor, which must already have
// been validated with ParseCursor.
func (s *Service) ListSongs(ctx context.Context, cursor string) (Page, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	songs, err := s.store.ListAfter(ctx, cursor, s.pageSize)
	if err != nil {
		return Page{}, fmt.Errorf("failed to list songs after %q: %w", cursor, err)
	}

	page := Page{Songs: songs, Cursor: cursor}
	if len(songs) >= s.pageSize {
		page.Next = songs[len(songs)-1].ID
	}
	return page, nil
}

// DifficultyResult is the outcome of an average difficulty query. Found is
// false when no song matched; such results are never cached.
type DifficultyResult struct {
	Filter  types.DifficultyFilter
	Average float64
	Found   bool
}

// AverageDifficulty returns the rounded mean difficulty of the songs matching
// filter.
func (s *Service) AverageDifficulty(ctx context.Context, filter types.DifficultyFilter) (DifficultyResult, error) {
	if avg, ok := s.aggregates.Difficulty.Fetch(ctx, filter); ok {
		s.logger.Debug().Str("filter", filter.String()).Msg("Difficulty cache hit.")
		return DifficultyResult{Filter: filter, Average: avg, Found: true}, nil
	}

	v, err, _ := s.flights.Do("difficulty:"+filter.String(), func() (any, error) {
		storeCtx, cancel := s.flightContext(ctx)
		defer cancel()

		values, err := s.store.Difficulties(storeCtx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to scan difficulties for %s: %w", filter, err)
		}
		if len(values) == 0 {
			return DifficultyResult{Filter: filter}, nil
		}

		avg := types.Round2(mean(values))
		s.aggregates.Difficulty.Write(ctx, filter, avg)
		s.logger.Debug().Str("filter", filter.String()).Float64("average", avg).Int("songs", len(values)).Msg("Difficulty cached.")
		return DifficultyResult{Filter: filter, Average: avg, Found: true}, nil
	})
	if err != nil {
		return DifficultyResult{}, err
	}
	return v.(DifficultyResult), nil
}

// SearchResult holds the songs matching a term. Found is false when nothing
// matched or the search could not run.
type SearchResult struct {
	Songs []types.Song
	Found bool
}

// SearchSongs performs a case-insensitive search over artist and title. The
// returned songs are owned by the caller.
func (s *Service) SearchSongs(ctx context.Context, term string) (SearchResult, error) {
	key := strings.ToLower(term)
	if songs, ok := s.aggregates.Searches.Fetch(ctx, key); ok {
		s.logger.Debug().Str("term", key).Msg("Search cache hit.")
		return SearchResult{Songs: cloneSongs(songs), Found: true}, nil
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	songs, err := s.store.Search(storeCtx, key)
	if err != nil {
		if errors.Is(err, songstore.ErrSearchUnavailable) {
			s.logger.Debug().Err(err).Str("term", key).Msg("Search unavailable, reporting no songs.")
			return SearchResult{}, nil
		}
		return SearchResult{}, fmt.Errorf("failed to search songs for %q: %w", key, err)
	}
	if len(songs) == 0 {
		return SearchResult{}, nil
	}

	s.aggregates.Searches.Write(ctx, key, cloneSongs(songs))
	return SearchResult{Songs: songs, Found: true}, nil
}

// SubmitRating appends a validated rating to a song. An unknown song id is
// not an error. Cached statistics are left untouched.
func (s *Service) SubmitRating(ctx context.Context, songID string, rating float64) error {
	if rating < MinRating || rating > MaxRating {
		return badRequest("Please provide a rating between 1 and 5.")
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.store.PushRating(storeCtx, songID, rating); err != nil {
		return fmt.Errorf("failed to add rating to song %s: %w", songID, err)
	}
	if s.publisher != nil {
		s.publisher.PublishRating(ctx, songID, rating)
	}
	return nil
}

// RatingStats returns the average, lowest and highest rating of a song.
func (s *Service) RatingStats(ctx context.Context, songID string) (types.RatingStats, error) {
	if stats, ok := s.aggregates.Ratings.Fetch(ctx, songID); ok {
		s.logger.Debug().Str("song_id", songID).Msg("Ratings cache hit.")
		return stats, nil
	}

	v, err, _ := s.flights.Do("ratings:"+songID, func() (any, error) {
		storeCtx, cancel := s.flightContext(ctx)
		defer cancel()

		ratings, err := s.store.Ratings(storeCtx, songID)
		if err != nil {
			if errors.Is(err, songstore.ErrSongNotFound) {
				return nil, &NotFoundError{Message: fmt.Sprintf("Did not find the song with id: '%s'.", songID)}
			}
			return nil, fmt.Errorf("failed to read ratings of song %s: %w", songID, err)
		}
		if len(ratings) == 0 {
			return nil, &NotFoundError{Message: fmt.Sprintf("No ratings found for song id '%s'", songID)}
		}

		stats := types.RatingStats{
			Average: types.Round2(mean(ratings)),
			Lowest:  types.Round2(slices.Min(ratings)),
			Highest: types.Round2(slices.Max(ratings)),
		}
		s.aggregates.Ratings.Write(ctx, songID, stats)
		return stats, nil
	})
	if err != nil {
		return types.RatingStats{}, err
	}
	return v.(types.RatingStats), nil
}

// ResetCache drops every memoized aggregate and search result.
func (s *Service) ResetCache() {
	s.aggregates.Reset()
	s.logger.Info().Msg("Aggregate cache reset.")
}

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

// flightContext bounds a storage call shared by several callers. It keeps the
// first caller's values but not its cancellation, so one departing client
// cannot fail the others waiting on the same key.
func (s *Service) flightContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return s.storeContext(context.WithoutCancel(ctx))
}

// cloneSongs copies songs and their ratings so cached results never share
// memory with callers.
func cloneSongs(songs []types.Song) []types.Song {
	out := slices.Clone(songs)
	for i := range out {
		out[i].Ratings = slices.Clone(out[i].Ratings)
	}
	return out
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
