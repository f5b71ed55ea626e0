package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
	RetryDelay   time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
		MaxRetries:   3,
		RetryDelay:   200 * time.Millisecond,
	}
}

// Relay moves unsent outbox events to the publisher and marks them sent.
// Run polls on its own; Listener drives it from Postgres notifications.
type Relay struct {
	store     Store
	publisher Publisher
	cfg       Config
}

func NewRelay(store Store, publisher Publisher, cfg Config) *Relay {
	return &Relay{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Run polls for unsent events until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	log.Info().
		Dur("poll_interval", r.cfg.PollInterval).
		Int("batch_size", r.cfg.BatchSize).
		Msg("outbox relay started")

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	// Process immediately on start
	if err := r.ProcessUnsent(ctx); err != nil {
		log.Error().Err(err).Msg("failed to process unsent events")
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("outbox relay shutting down")
			return nil
		case <-ticker.C:
			if err := r.ProcessUnsent(ctx); err != nil {
				log.Error().Err(err).Msg("failed to process unsent events")
			}
		}
	}
}

// PublishByID publishes a single event. Events already sent are skipped.
func (r *Relay) PublishByID(ctx context.Context, id uuid.UUID) error {
	event, err := r.store.FetchByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			return nil
		}
		return fmt.Errorf("failed to fetch outbox event: %w", err)
	}

	if err := r.publishWithRetry(ctx, *event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Info().Str("event_id", id.String()).Msg("published and marked event as sent")
	return nil
}

// ProcessUnsent publishes one batch of unsent events.
func (r *Relay) ProcessUnsent(ctx context.Context) error {
	unsent, err := r.store.FetchUnsent(ctx, r.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}

	published := 0
	for _, event := range unsent {
		if err := r.publishWithRetry(ctx, event); err != nil {
			log.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to publish event")
			continue
		}
		published++
	}

	if len(unsent) > 0 {
		log.Debug().
			Int("total", len(unsent)).
			Int("successful", published).
			Msg("processed outbox events")
	}
	return nil
}

// publishWithRetry attempts to publish an outbox event with a linear backoff,
// marking it sent on success.
func (r *Relay) publishWithRetry(ctx context.Context, event Event) error {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.cfg.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := r.publisher.Publish(ctx, event); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("failed to publish, retrying")
			continue
		}

		if err := r.store.MarkSent(ctx, event.ID); err != nil {
			log.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to mark outbox event as sent")
			return err
		}

		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("publish succeeded after retry")
		}
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}
