// Package songstore is the storage gateway for the song catalogue. It hides
// the document database behind the handful of operations the query layer
// needs: ordered range scans, projected aggregation scans, keyword search,
// point lookups and an atomic rating append.
package songstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-songcatalogue/pkg/types"
)

var (
	// ErrSongNotFound is returned by point lookups for an unknown id.
	ErrSongNotFound = errors.New("song not found")
	// ErrSearchUnavailable is returned when the text search mechanism cannot
	// run, for example because the keyword index does not exist yet.
	ErrSearchUnavailable = errors.New("song search unavailable")
)

// Store is the contract the query layer consumes.
type Store interface {
	// ListAfter returns up to limit songs whose id sorts strictly after the
	// given id, in ascending id order. An empty after starts at the beginning.
	ListAfter(ctx context.Context, after string, limit int) ([]types.Song, error)
	// Difficulties returns the difficulty of every song matching the filter.
	Difficulties(ctx context.Context, filter types.DifficultyFilter) ([]float64, error)
	// Search matches the (already lower-cased) term against artist and title.
	Search(ctx context.Context, term string) ([]types.Song, error)
	// PushRating appends a rating to a song. An unknown id is a no-op.
	PushRating(ctx context.Context, id string, rating float64) error
	// Ratings returns the ratings of one song, or ErrSongNotFound.
	Ratings(ctx context.Context, id string) ([]float64, error)
}

// Loader is implemented by stores that can be bulk populated.
type Loader interface {
	// Insert stores new songs, assigning each a fresh id. The ids are
	// returned in input order.
	Insert(ctx context.Context, songs ...types.Song) ([]string, error)
	// Drop removes every song.
	Drop(ctx context.Context) error
}

// NewID returns a fresh song identifier. Identifiers are UUIDv7 strings, so
// their lexical order follows insertion order.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate song id: %w", err)
	}
	return id.String(), nil
}

// ParseID validates an identifier and returns its canonical form.
func ParseID(raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid song id %q: %w", raw, err)
	}
	return id.String(), nil
}
