// Command songsapi serves the song catalogue REST API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-songcatalogue/pkg/cache"
	"github.com/illmade-knight/go-songcatalogue/pkg/catalogue"
	"github.com/illmade-knight/go-songcatalogue/pkg/config"
	"github.com/illmade-knight/go-songcatalogue/pkg/events"
	"github.com/illmade-knight/go-songcatalogue/pkg/microservice"
	"github.com/illmade-knight/go-songcatalogue/pkg/seed"
	"github.com/illmade-knight/go-songcatalogue/pkg/songapi"
	"github.com/illmade-knight/go-songcatalogue/pkg/songstore"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "songsapi: %v\n", err)
		os.Exit(2)
	}
	logger := microservice.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("songsapi exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	store, closeStore, err := newStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var opts []catalogue.Option
	var publisher *events.PubsubRatingPublisher
	if cfg.Events.RatingsTopic != "" {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return fmt.Errorf("failed to create pubsub client: %w", err)
		}
		defer psClient.Close()

		pubCfg := events.NewPubsubRatingPublisherDefaults()
		pubCfg.ProjectID = cfg.ProjectID
		pubCfg.TopicID = cfg.Events.RatingsTopic
		pubCfg.BatchDelay = cfg.Events.BatchDelay
		publisher, err = events.NewPubsubRatingPublisher(ctx, pubCfg, psClient, logger)
		if err != nil {
			return err
		}
		opts = append(opts, catalogue.WithRatingPublisher(publisher))
	}

	svcCfg := catalogue.NewConfigDefaults()
	svcCfg.StoreTimeout = cfg.Store.Timeout
	service, err := catalogue.NewService(svcCfg, store, cache.NewAggregateCache(), logger, opts...)
	if err != nil {
		return err
	}
	api, err := songapi.NewAPI(&songapi.Config{PublicBaseURL: cfg.PublicBaseURL}, service, logger)
	if err != nil {
		return err
	}

	server := microservice.NewBaseServer(logger, cfg.HTTPPort)
	api.Register(server.Mux())
	if err := server.Start(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		if publisher != nil {
			err = errors.Join(err, publisher.Stop(shutdownCtx))
		}
		return err
	})
	return g.Wait()
}

// newStore builds the configured store. The memory backend is seeded from
// cfg.Seed.Source when that file exists, which makes local runs useful.
func newStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (songstore.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		store := songstore.NewInMemoryStore()
		if _, err := os.Stat(cfg.Seed.Source); err == nil {
			if err := seedMemory(ctx, cfg, store, logger); err != nil {
				return nil, nil, err
			}
		}
		return store, func() {}, nil
	default:
		client, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		store, err := songstore.NewFirestoreStore(&songstore.FirestoreConfig{
			ProjectID:      cfg.ProjectID,
			CollectionName: cfg.Store.Collection,
		}, client, logger)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, func() { _ = client.Close() }, nil
	}
}

func seedMemory(ctx context.Context, cfg *config.Config, store *songstore.InMemoryStore, logger zerolog.Logger) error {
	r, err := seed.Open(ctx, cfg.Seed.Source, nil)
	if err != nil {
		return err
	}
	defer r.Close()

	importer, err := seed.NewImporter(&seed.ImporterConfig{BatchSize: cfg.Seed.BatchSize}, store, logger)
	if err != nil {
		return err
	}
	_, err = importer.Import(ctx, r)
	return err
}
