package catalogue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-songcatalogue/pkg/cache"
	"github.com/illmade-knight/go-songcatalogue/pkg/catalogue"
	"github.com/illmade-knight/go-songcatalogue/pkg/songstore"
	"github.com/illmade-knight/go-songcatalogue/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore wraps a real store and counts the calls reaching it.
type countingStore struct {
	songstore.Store
	calls     atomic.Int32
	searchErr error
}

func (c *countingStore) ListAfter(ctx context.Context, after string, limit int) ([]types.Song, error) {
	c.calls.Add(1)
	return c.Store.ListAfter(ctx, after, limit)
}

func (c *countingStore) Difficulties(ctx context.Context, f types.DifficultyFilter) ([]float64, error) {
	c.calls.Add(1)
	return c.Store.Difficulties(ctx, f)
}

func (c *countingStore) Search(ctx context.Context, term string) ([]types.Song, error) {
	c.calls.Add(1)
	if c.searchErr != nil {
		return nil, c.searchErr
	}
	return c.Store.Search(ctx, term)
}

func (c *countingStore) PushRating(ctx context.Context, id string, rating float64) error {
	c.calls.Add(1)
	return c.Store.PushRating(ctx, id, rating)
}

func (c *countingStore) Ratings(ctx context.Context, id string) ([]float64, error) {
	c.calls.Add(1)
	return c.Store.Ratings(ctx, id)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) PublishRating(_ context.Context, songID string, rating float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, fmt.Sprintf("%s=%g", songID, rating))
}

type fixture struct {
	mem        *songstore.InMemoryStore
	store      *countingStore
	aggregates *cache.AggregateCache
	service    *catalogue.Service
}

func newFixture(t *testing.T, opts ...catalogue.Option) *fixture {
	t.Helper()
	mem := songstore.NewInMemoryStore()
	store := &countingStore{Store: mem}
	aggregates := cache.NewAggregateCache()
	service, err := catalogue.NewService(catalogue.NewConfigDefaults(), store, aggregates, zerolog.Nop(), opts...)
	require.NoError(t, err)
	return &fixture{mem: mem, store: store, aggregates: aggregates, service: service}
}

func (f *fixture) insert(t *testing.T, songs ...types.Song) []string {
	t.Helper()
	ids, err := f.mem.Insert(context.Background(), songs...)
	require.NoError(t, err)
	return ids
}

func songsWithDifficulties(values ...float64) []types.Song {
	songs := make([]types.Song, len(values))
	for i, v := range values {
		songs[i] = types.Song{Artist: "Artist", Title: fmt.Sprintf("Title %d", i), Difficulty: v}
	}
	return songs
}

func TestNewService_Validation(t *testing.T) {
	_, err := catalogue.NewService(catalogue.NewConfigDefaults(), nil, cache.NewAggregateCache(), zerolog.Nop())
	assert.Error(t, err)

	_, err = catalogue.NewService(catalogue.NewConfigDefaults(), songstore.NewInMemoryStore(), nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestListSongs_VisitsEverySongOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ids := f.insert(t, songsWithDifficulties(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12)...)

	var visited []string
	cursor := ""
	pages := 0
	for {
		page, err := f.service.ListSongs(ctx, cursor)
		require.NoError(t, err)
		assert.Equal(t, cursor, page.Cursor, "every page echoes its own cursor")
		pages++
		for _, s := range page.Songs {
			visited = append(visited, s.ID)
		}
		if page.Next == "" {
			assert.Less(t, len(page.Songs), catalogue.DefaultPageSize)
			break
		}
		assert.Len(t, page.Songs, catalogue.DefaultPageSize)
		assert.Equal(t, page.Songs[len(page.Songs)-1].ID, page.Next)
		cursor = page.Next
	}

	assert.Equal(t, ids, visited)
	assert.Equal(t, 3, pages)
}

func TestListSongs_FullLastPageStillOffersNext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.insert(t, songsWithDifficulties(1, 2, 3, 4, 5)...)

	page, err := f.service.ListSongs(ctx, "")
	require.NoError(t, err)
	require.Len(t, page.Songs, 5)
	require.NotEmpty(t, page.Next)

	empty, err := f.service.ListSongs(ctx, page.Next)
	require.NoError(t, err)
	assert.Empty(t, empty.Songs)
	assert.Empty(t, empty.Next)
}

func TestAverageDifficulty(t *testing.T) {
	ctx := context.Background()

	t.Run("No songs is not cached", func(t *testing.T) {
		f := newFixture(t)

		result, err := f.service.AverageDifficulty(ctx, types.AllLevels())
		require.NoError(t, err)
		assert.False(t, result.Found)
		assert.Equal(t, 0, f.aggregates.Difficulty.Len())

		_, err = f.service.AverageDifficulty(ctx, types.AllLevels())
		require.NoError(t, err)
		assert.Equal(t, int32(2), f.store.calls.Load(), "absence of data must be recomputed")
	})

	t.Run("Average is rounded and cached", func(t *testing.T) {
		f := newFixture(t)
		f.insert(t, songsWithDifficulties(1, 2, 2)...)

		result, err := f.service.AverageDifficulty(ctx, types.AllLevels())
		require.NoError(t, err)
		require.True(t, result.Found)
		assert.Equal(t, 1.67, result.Average)
		assert.Equal(t, "All levels", result.Filter.Label())

		cached, ok := f.aggregates.Difficulty.Fetch(ctx, types.AllLevels())
		require.True(t, ok)
		assert.Equal(t, 1.67, cached)
	})

	t.Run("Cached value is served stale after inserts", func(t *testing.T) {
		f := newFixture(t)
		f.insert(t, songsWithDifficulties(10, 20)...)

		first, err := f.service.AverageDifficulty(ctx, types.MinLevel(10))
		require.NoError(t, err)
		assert.Equal(t, 15.0, first.Average)

		f.insert(t, songsWithDifficulties(30)...)

		second, err := f.service.AverageDifficulty(ctx, types.MinLevel(10.0))
		require.NoError(t, err)
		assert.Equal(t, 15.0, second.Average)
		assert.Equal(t, int32(1), f.store.calls.Load())
	})

	t.Run("Higher threshold averages a subset", func(t *testing.T) {
		f := newFixture(t)
		f.insert(t, songsWithDifficulties(2, 4, 6, 8)...)

		low, err := f.service.AverageDifficulty(ctx, types.MinLevel(3))
		require.NoError(t, err)
		high, err := f.service.AverageDifficulty(ctx, types.MinLevel(6))
		require.NoError(t, err)

		assert.Equal(t, 6.0, low.Average)
		assert.Equal(t, 7.0, high.Average)
		assert.GreaterOrEqual(t, high.Average, low.Average)

		none, err := f.service.AverageDifficulty(ctx, types.MinLevel(9))
		require.NoError(t, err)
		assert.False(t, none.Found)
	})

	t.Run("Seeded cache bypasses storage", func(t *testing.T) {
		f := newFixture(t)
		f.aggregates.Difficulty.Write(ctx, types.MinLevel(5), 99.99)

		result, err := f.service.AverageDifficulty(ctx, types.MinLevel(5))
		require.NoError(t, err)
		assert.Equal(t, 99.99, result.Average)
		assert.Equal(t, int32(0), f.store.calls.Load())
	})
}

func TestSearchSongs(t *testing.T) {
	ctx := context.Background()

	t.Run("Case-insensitive terms share one entry", func(t *testing.T) {
		f := newFixture(t)
		f.insert(t,
			types.Song{Artist: "The Yousicians", Title: "Lycanthropic Metamorphosis"},
			types.Song{Artist: "Mr Fastfinger", Title: "Awaki-Waki"},
		)

		upper, err := f.service.SearchSongs(ctx, "Yousicians")
		require.NoError(t, err)
		lower, err := f.service.SearchSongs(ctx, "yousicians")
		require.NoError(t, err)

		require.True(t, upper.Found)
		assert.Equal(t, upper.Songs, lower.Songs)
		assert.Equal(t, 1, f.aggregates.Searches.Len())
		assert.Equal(t, int32(1), f.store.calls.Load())
	})

	t.Run("Results do not alias the cache", func(t *testing.T) {
		f := newFixture(t)
		f.insert(t, types.Song{Artist: "The Yousicians", Title: "A New Kennel", Ratings: []float64{4}})

		first, err := f.service.SearchSongs(ctx, "kennel")
		require.NoError(t, err)
		require.Len(t, first.Songs, 1)
		first.Songs[0].Title = "changed"
		first.Songs[0].Ratings[0] = 1

		second, err := f.service.SearchSongs(ctx, "kennel")
		require.NoError(t, err)
		require.Len(t, second.Songs, 1)
		assert.Equal(t, "A New Kennel", second.Songs[0].Title)
		assert.Equal(t, []float64{4}, second.Songs[0].Ratings)
		second.Songs[0].Title = "changed again"

		third, err := f.service.SearchSongs(ctx, "kennel")
		require.NoError(t, err)
		assert.Equal(t, "A New Kennel", third.Songs[0].Title)
		assert.Equal(t, int32(1), f.store.calls.Load())
	})

	t.Run("Unavailable search reports nothing and is not cached", func(t *testing.T) {
		f := newFixture(t)
		f.store.searchErr = fmt.Errorf("wrapped: %w", songstore.ErrSearchUnavailable)

		result, err := f.service.SearchSongs(ctx, "anything")
		require.NoError(t, err)
		assert.False(t, result.Found)
		assert.Equal(t, 0, f.aggregates.Searches.Len())
	})

	t.Run("Zero matches are not cached", func(t *testing.T) {
		f := newFixture(t)
		f.insert(t, types.Song{Artist: "The Yousicians", Title: "A New Kennel"})

		result, err := f.service.SearchSongs(ctx, "nomatch")
		require.NoError(t, err)
		assert.False(t, result.Found)
		assert.Equal(t, 0, f.aggregates.Searches.Len())
	})

	t.Run("Other storage failures propagate", func(t *testing.T) {
		f := newFixture(t)
		boom := errors.New("storage down")
		f.store.searchErr = boom

		_, err := f.service.SearchSongs(ctx, "x")
		assert.ErrorIs(t, err, boom)
	})
}

func TestRatings(t *testing.T) {
	ctx := context.Background()

	t.Run("Statistics round-trip", func(t *testing.T) {
		publisher := &recordingPublisher{}
		f := newFixture(t, catalogue.WithRatingPublisher(publisher))
		ids := f.insert(t, types.Song{Artist: "A", Title: "B"})

		for _, r := range []float64{4, 1, 3, 5, 3, 2, 5, 4, 3, 3, 2, 5, 1} {
			require.NoError(t, f.service.SubmitRating(ctx, ids[0], r))
		}

		stats, err := f.service.RatingStats(ctx, ids[0])
		require.NoError(t, err)
		assert.Equal(t, types.RatingStats{Average: 3.15, Lowest: 1, Highest: 5}, stats)
		assert.Len(t, publisher.events, 13)
	})

	t.Run("Cached statistics stay stale after new ratings", func(t *testing.T) {
		f := newFixture(t)
		ids := f.insert(t, types.Song{Artist: "A", Title: "B"})
		require.NoError(t, f.service.SubmitRating(ctx, ids[0], 5))

		first, err := f.service.RatingStats(ctx, ids[0])
		require.NoError(t, err)
		require.NoError(t, f.service.SubmitRating(ctx, ids[0], 1))
		second, err := f.service.RatingStats(ctx, ids[0])
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 5.0, second.Average)
	})

	t.Run("Unknown song is a silent success on submit and not found on read", func(t *testing.T) {
		f := newFixture(t)
		unknown, err := songstore.NewID()
		require.NoError(t, err)

		assert.NoError(t, f.service.SubmitRating(ctx, unknown, 3))

		_, err = f.service.RatingStats(ctx, unknown)
		var notFound *catalogue.NotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, fmt.Sprintf("Did not find the song with id: '%s'.", unknown), notFound.Message)
	})

	t.Run("Song without ratings is not found and not cached", func(t *testing.T) {
		f := newFixture(t)
		ids := f.insert(t, types.Song{Artist: "A", Title: "B"})

		_, err := f.service.RatingStats(ctx, ids[0])
		var notFound *catalogue.NotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, fmt.Sprintf("No ratings found for song id '%s'", ids[0]), notFound.Message)
		assert.Equal(t, 0, f.aggregates.Ratings.Len())
	})

	t.Run("Out of range rating is rejected before storage", func(t *testing.T) {
		f := newFixture(t)
		ids := f.insert(t, types.Song{Artist: "A", Title: "B"})

		err := f.service.SubmitRating(ctx, ids[0], 5.001)
		var inputErr *catalogue.InputError
		require.ErrorAs(t, err, &inputErr)
		assert.Equal(t, int32(0), f.store.calls.Load())
	})

	t.Run("Reset drops cached statistics", func(t *testing.T) {
		f := newFixture(t)
		ids := f.insert(t, types.Song{Artist: "A", Title: "B"})
		require.NoError(t, f.service.SubmitRating(ctx, ids[0], 2))
		_, err := f.service.RatingStats(ctx, ids[0])
		require.NoError(t, err)
		require.NoError(t, f.service.SubmitRating(ctx, ids[0], 4))

		f.service.ResetCache()
		stats, err := f.service.RatingStats(ctx, ids[0])
		require.NoError(t, err)
		assert.Equal(t, 3.0, stats.Average)
	})
}

// slowStore blocks until its context ends.
type slowStore struct {
	songstore.Store
}

func (slowStore) Difficulties(ctx context.Context, _ types.DifficultyFilter) ([]float64, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStoreTimeoutBoundsCalls(t *testing.T) {
	cfg := catalogue.NewConfigDefaults()
	cfg.StoreTimeout = 20 * time.Millisecond
	service, err := catalogue.NewService(cfg, slowStore{Store: songstore.NewInMemoryStore()}, cache.NewAggregateCache(), zerolog.Nop())
	require.NoError(t, err)

	_, err = service.AverageDifficulty(context.Background(), types.AllLevels())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// gatedStore holds Difficulties calls until release is closed.
type gatedStore struct {
	songstore.Store
	calls   atomic.Int32
	release chan struct{}
}

func (g *gatedStore) Difficulties(ctx context.Context, f types.DifficultyFilter) ([]float64, error) {
	g.calls.Add(1)
	<-g.release
	return g.Store.Difficulties(ctx, f)
}

func TestAverageDifficulty_ConcurrentMissesShareOneScan(t *testing.T) {
	mem := songstore.NewInMemoryStore()
	_, err := mem.Insert(context.Background(), songsWithDifficulties(2, 4)...)
	require.NoError(t, err)
	store := &gatedStore{Store: mem, release: make(chan struct{})}
	service, err := catalogue.NewService(catalogue.NewConfigDefaults(), store, cache.NewAggregateCache(), zerolog.Nop())
	require.NoError(t, err)

	const callers = 8
	results := make([]catalogue.DifficultyResult, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := service.AverageDifficulty(context.Background(), types.AllLevels())
			assert.NoError(t, err)
			results[i] = res
		}()
	}

	time.Sleep(100 * time.Millisecond)
	close(store.release)
	wg.Wait()

	assert.Equal(t, int32(1), store.calls.Load())
	for _, res := range results {
		assert.True(t, res.Found)
		assert.Equal(t, 3.0, res.Average)
	}
}

// blockingStore parks Difficulties and Ratings until release is closed and
// reports the context error, if any, once released.
type blockingStore struct {
	songstore.Store
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) wait(ctx context.Context) error {
	if b.calls.Add(1) == 1 {
		close(b.entered)
	}
	<-b.release
	return ctx.Err()
}

func (b *blockingStore) Difficulties(ctx context.Context, f types.DifficultyFilter) ([]float64, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	return b.Store.Difficulties(ctx, f)
}

func (b *blockingStore) Ratings(ctx context.Context, id string) ([]float64, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	return b.Store.Ratings(ctx, id)
}

func TestSharedMiss_FirstCallerCancellationDoesNotFailOthers(t *testing.T) {
	mem := songstore.NewInMemoryStore()
	ids, err := mem.Insert(context.Background(), songsWithDifficulties(2, 4)...)
	require.NoError(t, err)
	require.NoError(t, mem.PushRating(context.Background(), ids[0], 3))

	testCases := []struct {
		name string
		call func(ctx context.Context, s *catalogue.Service) error
	}{
		{"AverageDifficulty", func(ctx context.Context, s *catalogue.Service) error {
			res, err := s.AverageDifficulty(ctx, types.AllLevels())
			if err == nil && res.Average != 3 {
				return fmt.Errorf("unexpected average %v", res.Average)
			}
			return err
		}},
		{"RatingStats", func(ctx context.Context, s *catalogue.Service) error {
			stats, err := s.RatingStats(ctx, ids[0])
			if err == nil && stats.Average != 3 {
				return fmt.Errorf("unexpected average %v", stats.Average)
			}
			return err
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := &blockingStore{Store: mem, entered: make(chan struct{}), release: make(chan struct{})}
			service, err := catalogue.NewService(catalogue.NewConfigDefaults(), store, cache.NewAggregateCache(), zerolog.Nop())
			require.NoError(t, err)

			firstCtx, cancelFirst := context.WithCancel(context.Background())
			firstDone := make(chan error, 1)
			go func() { firstDone <- tc.call(firstCtx, service) }()
			<-store.entered

			secondDone := make(chan error, 1)
			go func() { secondDone <- tc.call(context.Background(), service) }()
			time.Sleep(50 * time.Millisecond)

			cancelFirst()
			close(store.release)

			assert.NoError(t, <-secondDone, "an uncancelled caller must not inherit another caller's cancellation")
			<-firstDone
			assert.Equal(t, int32(1), store.calls.Load())
		})
	}
}
