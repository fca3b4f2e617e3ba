package songstore

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/illmade-knight/go-songcatalogue/pkg/types"
)

// InMemoryStore is a thread-safe, in-memory implementation of Store and
// Loader. It is primarily intended for local development and testing.
type InMemoryStore struct {
	mu    sync.RWMutex
	ids   []string // ascending
	songs map[string]*memorySong
}

type memorySong struct {
	song     types.Song
	keywords []string
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{songs: make(map[string]*memorySong)}
}

// Insert stores copies of the given songs under fresh ids.
func (s *InMemoryStore) Insert(_ context.Context, songs ...types.Song) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(songs))
	for _, song := range songs {
		id, err := NewID()
		if err != nil {
			return ids, err
		}
		song.ID = id
		song.Ratings = slices.Clone(song.Ratings)
		s.songs[id] = &memorySong{song: song, keywords: Keywords(song.Artist, song.Title)}
		s.ids = append(s.ids, id)
		ids = append(ids, id)
	}
	sort.Strings(s.ids)
	return ids, nil
}

// Drop removes every song.
func (s *InMemoryStore) Drop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = nil
	s.songs = make(map[string]*memorySong)
	return nil
}

// ListAfter returns up to limit songs with an id greater than after.
func (s *InMemoryStore) ListAfter(_ context.Context, after string, limit int) ([]types.Song, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := sort.Search(len(s.ids), func(i int) bool { return s.ids[i] > after })
	result := make([]types.Song, 0, limit)
	for _, id := range s.ids[start:] {
		if len(result) == limit {
			break
		}
		result = append(result, s.copyOf(id))
	}
	return result, nil
}

// Difficulties returns the difficulty of every matching song.
func (s *InMemoryStore) Difficulties(_ context.Context, filter types.DifficultyFilter) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var values []float64
	for _, id := range s.ids {
		d := s.songs[id].song.Difficulty
		if filter.All || d >= filter.Min {
			values = append(values, d)
		}
	}
	return values, nil
}

// Search returns songs sharing at least one keyword with the term. Searching
// an empty store behaves like searching a collection that has no index yet.
func (s *InMemoryStore) Search(_ context.Context, term string) ([]types.Song, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.ids) == 0 {
		return nil, ErrSearchUnavailable
	}
	tokens := SearchTokens(term)
	var result []types.Song
	for _, id := range s.ids {
		if containsAny(s.songs[id].keywords, tokens) {
			result = append(result, s.copyOf(id))
		}
	}
	return result, nil
}

// PushRating appends a rating; unknown ids are ignored.
func (s *InMemoryStore) PushRating(_ context.Context, id string, rating float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.songs[id]; ok {
		entry.song.Ratings = append(entry.song.Ratings, rating)
	}
	return nil
}

// Ratings returns a copy of the song's ratings.
func (s *InMemoryStore) Ratings(_ context.Context, id string) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.songs[id]
	if !ok {
		return nil, ErrSongNotFound
	}
	return slices.Clone(entry.song.Ratings), nil
}

// copyOf must be called with the lock held.
func (s *InMemoryStore) copyOf(id string) types.Song {
	song := s.songs[id].song
	song.Ratings = slices.Clone(song.Ratings)
	return song
}

func containsAny(keywords, tokens []string) bool {
	for _, t := range tokens {
		if slices.Contains(keywords, t) {
			return true
		}
	}
	return false
}
