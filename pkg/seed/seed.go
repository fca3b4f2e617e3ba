// Package seed bulk loads songs from newline delimited JSON, read from a
// local file or a Cloud Storage object.
package seed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/illmade-knight/go-songcatalogue/pkg/songstore"
	"github.com/illmade-knight/go-songcatalogue/pkg/types"
	"github.com/rs/zerolog"
)

const gcsScheme = "gs://"

// maxLineBytes bounds a single JSON record.
const maxLineBytes = 1 << 20

// Open returns a reader for source, which is either a local path or a
// gs://bucket/object URL. gcs may be nil when only local paths are used.
func Open(ctx context.Context, source string, gcs GCSClient) (io.ReadCloser, error) {
	if !strings.HasPrefix(source, gcsScheme) {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("failed to open seed file: %w", err)
		}
		return f, nil
	}

	bucket, object, ok := strings.Cut(strings.TrimPrefix(source, gcsScheme), "/")
	if !ok || bucket == "" || object == "" {
		return nil, fmt.Errorf("invalid gcs source %q, want gs://bucket/object", source)
	}
	if gcs == nil {
		return nil, errors.New("gcs client required for gs:// sources")
	}
	r, err := gcs.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", source, err)
	}
	return r, nil
}

// ImporterConfig holds configuration for the Importer.
type ImporterConfig struct {
	BatchSize int
	// Drop empties the collection before loading.
	Drop bool
}

// Importer streams songs into a songstore.Loader in batches.
type Importer struct {
	loader    songstore.Loader
	batchSize int
	drop      bool
	logger    zerolog.Logger
}

// NewImporter creates an Importer.
func NewImporter(cfg *ImporterConfig, loader songstore.Loader, logger zerolog.Logger) (*Importer, error) {
	if loader == nil {
		return nil, errors.New("song loader cannot be nil")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be greater than 0")
	}
	return &Importer{
		loader:    loader,
		batchSize: cfg.BatchSize,
		drop:      cfg.Drop,
		logger:    logger.With().Str("component", "SeedImporter").Logger(),
	}, nil
}

// Import reads one JSON song per line from r and inserts them. Blank lines
// are skipped; any "_id" in the input is ignored because the store assigns
// identifiers. It returns the number of songs inserted.
func (i *Importer) Import(ctx context.Context, r io.Reader) (int, error) {
	if i.drop {
		if err := i.loader.Drop(ctx); err != nil {
			return 0, fmt.Errorf("failed to drop existing songs: %w", err)
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	total := 0
	batch := make([]types.Song, 0, i.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := i.loader.Insert(ctx, batch...); err != nil {
			return fmt.Errorf("failed to insert batch after %d songs: %w", total, err)
		}
		total += len(batch)
		i.logger.Debug().Int("batch", len(batch)).Int("total", total).Msg("Inserted seed batch.")
		batch = batch[:0]
		return nil
	}

	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		var song types.Song
		if err := json.Unmarshal(data, &song); err != nil {
			return total, fmt.Errorf("line %d: invalid song record: %w", line, err)
		}
		song.ID = ""
		batch = append(batch, song)
		if len(batch) == i.batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return total, fmt.Errorf("failed to read seed data: %w", err)
	}
	if err := flush(); err != nil {
		return total, err
	}

	i.logger.Info().Int("songs", total).Msg("Seed import complete.")
	return total, nil
}
