package songstore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-songcatalogue/pkg/types"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds configuration for the Firestore backed store.
type FirestoreConfig struct {
	ProjectID      string
	CollectionName string
}

// songDocument is the stored shape of a song. The document id is the song id.
type songDocument struct {
	Artist     string    `firestore:"artist"`
	Title      string    `firestore:"title"`
	Difficulty float64   `firestore:"difficulty"`
	Level      float64   `firestore:"level"`
	Released   string    `firestore:"released"`
	Ratings    []float64 `firestore:"ratings,omitempty"`
	Keywords   []string  `firestore:"keywords"`
}

func (d songDocument) toSong(id string) types.Song {
	return types.Song{
		ID:         id,
		Artist:     d.Artist,
		Title:      d.Title,
		Difficulty: d.Difficulty,
		Level:      d.Level,
		Released:   d.Released,
		Ratings:    d.Ratings,
	}
}

// FirestoreStore implements Store and Loader on a Firestore collection.
//
// Text search is served by a "keywords" array written at insert time and
// queried with array-contains-any. Firestore reports a missing index as
// FailedPrecondition, which surfaces as ErrSearchUnavailable.
type FirestoreStore struct {
	client         *firestore.Client
	collectionName string
	logger         zerolog.Logger
}

// NewFirestoreStore creates a store over an existing Firestore client.
func NewFirestoreStore(
	cfg *FirestoreConfig,
	client *firestore.Client,
	logger zerolog.Logger,
) (*FirestoreStore, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client cannot be nil")
	}
	if cfg.CollectionName == "" {
		return nil, fmt.Errorf("firestore collection name cannot be empty")
	}

	logger.Info().Str("project_id", cfg.ProjectID).Str("collection", cfg.CollectionName).Msg("FirestoreStore initialized.")

	return &FirestoreStore{
		client:         client,
		collectionName: cfg.CollectionName,
		logger:         logger.With().Str("component", "FirestoreStore").Logger(),
	}, nil
}

func (s *FirestoreStore) collection() *firestore.CollectionRef {
	return s.client.Collection(s.collectionName)
}

// ListAfter scans the collection in document id order.
func (s *FirestoreStore) ListAfter(ctx context.Context, after string, limit int) ([]types.Song, error) {
	coll := s.collection()
	q := coll.Query
	if after != "" {
		q = q.Where(firestore.DocumentID, ">", coll.Doc(after))
	}
	q = q.OrderBy(firestore.DocumentID, firestore.Asc).Limit(limit)

	songs, err := s.readSongs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("firestore list after %q: %w", after, err)
	}
	return songs, nil
}

// Difficulties projects only the difficulty field.
func (s *FirestoreStore) Difficulties(ctx context.Context, filter types.DifficultyFilter) ([]float64, error) {
	q := s.collection().Select("difficulty")
	if !filter.All {
		q = q.Where("difficulty", ">=", filter.Min)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var values []float64
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			s.logger.Error().Err(err).Str("filter", filter.String()).Msg("Failed to scan difficulties.")
			return nil, fmt.Errorf("firestore difficulty scan: %w", err)
		}
		var doc struct {
			Difficulty float64 `firestore:"difficulty"`
		}
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("firestore DataTo for %s: %w", snap.Ref.ID, err)
		}
		values = append(values, doc.Difficulty)
	}
	return values, nil
}

// Search matches the term's tokens against the keyword index.
func (s *FirestoreStore) Search(ctx context.Context, term string) ([]types.Song, error) {
	tokens := SearchTokens(term)
	if len(tokens) == 0 {
		return nil, nil
	}

	q := s.collection().Where("keywords", "array-contains-any", tokens)
	songs, err := s.readSongs(ctx, q)
	if err != nil {
		if status.Code(err) == codes.FailedPrecondition {
			s.logger.Warn().Err(err).Str("term", term).Msg("Keyword index unavailable.")
			return nil, fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
		}
		return nil, fmt.Errorf("firestore search for %q: %w", term, err)
	}
	return songs, nil
}

// PushRating appends inside a transaction so concurrent submissions are not
// lost. A missing document leaves the collection untouched.
func (s *FirestoreStore) PushRating(ctx context.Context, id string, rating float64) error {
	ref := s.collection().Doc(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc struct {
			Ratings []float64 `firestore:"ratings"`
		}
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		return tx.Update(ref, []firestore.Update{{Path: "ratings", Value: append(doc.Ratings, rating)}})
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			s.logger.Debug().Str("song_id", id).Msg("Rating for unknown song ignored.")
			return nil
		}
		s.logger.Error().Err(err).Str("song_id", id).Msg("Failed to append rating.")
		return fmt.Errorf("firestore push rating for %s: %w", id, err)
	}
	return nil
}

// Ratings looks up one song, projecting only its ratings.
func (s *FirestoreStore) Ratings(ctx context.Context, id string) ([]float64, error) {
	coll := s.collection()
	iter := coll.Where(firestore.DocumentID, "==", coll.Doc(id)).Select("ratings").Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, ErrSongNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("firestore ratings for %s: %w", id, err)
	}

	var doc struct {
		Ratings []float64 `firestore:"ratings"`
	}
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore DataTo for %s: %w", id, err)
	}
	return doc.Ratings, nil
}

// Insert creates one document per song through a BulkWriter.
func (s *FirestoreStore) Insert(ctx context.Context, songs ...types.Song) ([]string, error) {
	bw := s.client.BulkWriter(ctx)
	ids := make([]string, 0, len(songs))
	jobs := make([]*firestore.BulkWriterJob, 0, len(songs))
	for _, song := range songs {
		id, err := NewID()
		if err != nil {
			bw.End()
			return nil, err
		}
		doc := songDocument{
			Artist:     song.Artist,
			Title:      song.Title,
			Difficulty: song.Difficulty,
			Level:      song.Level,
			Released:   song.Released,
			Ratings:    song.Ratings,
			Keywords:   Keywords(song.Artist, song.Title),
		}
		job, err := bw.Create(s.collection().Doc(id), doc)
		if err != nil {
			bw.End()
			return nil, fmt.Errorf("firestore enqueue create for %s: %w", id, err)
		}
		ids = append(ids, id)
		jobs = append(jobs, job)
	}
	bw.End()

	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			s.logger.Error().Err(err).Str("song_id", ids[i]).Msg("Failed to create song document.")
			return nil, fmt.Errorf("firestore create for %s: %w", ids[i], err)
		}
	}
	s.logger.Debug().Int("count", len(ids)).Msg("Inserted songs.")
	return ids, nil
}

// Drop deletes every document in the collection.
func (s *FirestoreStore) Drop(ctx context.Context) error {
	refs := s.collection().DocumentRefs(ctx)
	bw := s.client.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob
	for {
		ref, err := refs.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			bw.End()
			return fmt.Errorf("firestore list documents: %w", err)
		}
		job, err := bw.Delete(ref)
		if err != nil {
			bw.End()
			return fmt.Errorf("firestore enqueue delete for %s: %w", ref.ID, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("firestore delete: %w", err)
		}
	}
	s.logger.Info().Int("count", len(jobs)).Msg("Dropped song collection.")
	return nil
}

// Close is a no-op as the Firestore client's lifecycle is managed externally.
func (s *FirestoreStore) Close() error {
	s.logger.Info().Msg("FirestoreStore does not close the injected Firestore client.")
	return nil
}

func (s *FirestoreStore) readSongs(ctx context.Context, q firestore.Query) ([]types.Song, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	songs := make([]types.Song, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return songs, nil
		}
		if err != nil {
			return nil, err
		}
		var doc songDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("firestore DataTo for %s: %w", snap.Ref.ID, err)
		}
		songs = append(songs, doc.toSong(snap.Ref.ID))
	}
}
