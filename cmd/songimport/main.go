// Command songimport loads newline delimited JSON songs into the Firestore
// song collection, optionally dropping the existing songs first.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/illmade-knight/go-songcatalogue/pkg/config"
	"github.com/illmade-knight/go-songcatalogue/pkg/microservice"
	"github.com/illmade-knight/go-songcatalogue/pkg/seed"
	"github.com/illmade-knight/go-songcatalogue/pkg/songstore"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	source := flag.String("source", "", "local path or gs://bucket/object (overrides seed.source)")
	drop := flag.Bool("drop", false, "drop existing songs before importing")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "songimport: %v\n", err)
		os.Exit(2)
	}
	if *source != "" {
		cfg.Seed.Source = *source
	}
	if *drop {
		cfg.Seed.Drop = true
	}
	logger := microservice.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("songimport failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	if cfg.Store.Backend != config.BackendFirestore {
		return fmt.Errorf("songimport needs the %s backend, got %q", config.BackendFirestore, cfg.Store.Backend)
	}

	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to create firestore client: %w", err)
	}
	defer fsClient.Close()

	store, err := songstore.NewFirestoreStore(&songstore.FirestoreConfig{
		ProjectID:      cfg.ProjectID,
		CollectionName: cfg.Store.Collection,
	}, fsClient, logger)
	if err != nil {
		return err
	}

	var gcs seed.GCSClient
	if strings.HasPrefix(cfg.Seed.Source, "gs://") {
		gcsClient, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("failed to create storage client: %w", err)
		}
		defer gcsClient.Close()
		gcs = seed.NewGCSClientAdapter(gcsClient)
	}

	r, err := seed.Open(ctx, cfg.Seed.Source, gcs)
	if err != nil {
		return err
	}
	defer r.Close()

	importer, err := seed.NewImporter(&seed.ImporterConfig{
		BatchSize: cfg.Seed.BatchSize,
		Drop:      cfg.Seed.Drop,
	}, store, logger)
	if err != nil {
		return err
	}
	n, err := importer.Import(ctx, r)
	if err != nil {
		return err
	}
	logger.Info().Int("songs", n).Str("source", cfg.Seed.Source).Msg("Import finished.")
	return nil
}
