// Package events publishes catalogue activity to Google Cloud Pub/Sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// RatingEvent is the payload published for every accepted rating.
type RatingEvent struct {
	SongID      string    `json:"song_id"`
	Rating      float64   `json:"rating"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// PubsubRatingPublisherConfig holds configuration for the rating publisher.
type PubsubRatingPublisherConfig struct {
	ProjectID                  string
	TopicID                    string
	BatchDelay                 time.Duration
	TopicExistsTimeout         time.Duration
	PublishConfirmationTimeout time.Duration
}

// NewPubsubRatingPublisherDefaults provides a config with sensible defaults.
func NewPubsubRatingPublisherDefaults() *PubsubRatingPublisherConfig {
	return &PubsubRatingPublisherConfig{
		BatchDelay:                 50 * time.Millisecond,
		TopicExistsTimeout:         15 * time.Second,
		PublishConfirmationTimeout: 20 * time.Second,
	}
}

// PubsubRatingPublisher publishes RatingEvents without blocking the caller.
// Publish failures are logged and otherwise dropped.
type PubsubRatingPublisher struct {
	topic                      *pubsub.Topic
	logger                     zerolog.Logger
	publishConfirmationTimeout time.Duration
	now                        func() time.Time

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewPubsubRatingPublisher creates a publisher for an existing topic.
func NewPubsubRatingPublisher(
	ctx context.Context,
	cfg *PubsubRatingPublisherConfig,
	client *pubsub.Client,
	logger zerolog.Logger,
) (*PubsubRatingPublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil for rating publisher")
	}

	topic := client.Topic(cfg.TopicID)
	topic.PublishSettings.DelayThreshold = cfg.BatchDelay

	existsCtx, cancel := context.WithTimeout(ctx, cfg.TopicExistsTimeout)
	defer cancel()
	exists, err := topic.Exists(existsCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %w", cfg.TopicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", cfg.TopicID)
	}

	logger.Info().Str("topic_id", cfg.TopicID).Msg("PubsubRatingPublisher initialized successfully.")
	return &PubsubRatingPublisher{
		topic:                      topic,
		logger:                     logger.With().Str("component", "PubsubRatingPublisher").Str("topic_id", cfg.TopicID).Logger(),
		publishConfirmationTimeout: cfg.PublishConfirmationTimeout,
		now:                        time.Now,
	}, nil
}

// PublishRating hands the event to the Pub/Sub client and confirms it in the
// background. The request context only carries values; its cancellation does
// not abort the publish.
func (p *PubsubRatingPublisher) PublishRating(ctx context.Context, songID string, rating float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		p.logger.Warn().Str("song_id", songID).Msg("Publisher stopped, rating event dropped.")
		return
	}

	payload, err := json.Marshal(RatingEvent{SongID: songID, Rating: rating, SubmittedAt: p.now().UTC()})
	if err != nil {
		p.logger.Error().Err(err).Str("song_id", songID).Msg("Failed to marshal rating event.")
		return
	}

	res := p.topic.Publish(context.WithoutCancel(ctx), &pubsub.Message{
		Data:       payload,
		Attributes: map[string]string{"song_id": songID},
	})

	p.wg.Add(1)
	go p.confirmPublish(res, songID)
}

func (p *PubsubRatingPublisher) confirmPublish(res *pubsub.PublishResult, songID string) {
	defer p.wg.Done()
	getCtx, cancel := context.WithTimeout(context.Background(), p.publishConfirmationTimeout)
	defer cancel()

	msgID, err := res.Get(getCtx)
	if err != nil {
		p.logger.Error().Err(err).Str("song_id", songID).Msg("Failed to publish rating event.")
		return
	}
	p.logger.Debug().Str("song_id", songID).Str("pubsub_msg_id", msgID).Msg("Rating event published.")
}

// Stop stops accepting events, waits for outstanding confirmations and
// flushes the topic, respecting the provided context's deadline.
func (p *PubsubRatingPublisher) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		p.topic.Stop()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info().Msg("Rating publisher stopped gracefully.")
		return nil
	case <-ctx.Done():
		p.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for rating publisher to flush.")
		return ctx.Err()
	}
}
