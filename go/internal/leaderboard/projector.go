package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/arena/go/internal/events"
	"github.com/mcdev12/arena/go/internal/outbox"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// ProjectorConfig holds configuration for the JetStream consumer
type ProjectorConfig struct {
	StreamName    string
	ConsumerName  string
	SubjectFilter string        // e.g., "arena.events.SubmissionCommitted"
	MaxDeliver    int           // Max delivery attempts
	AckWait       time.Duration // How long to wait for ack
	MaxAckPending int           // Max messages pending ack
}

// DefaultProjectorConfig returns default projector configuration
func DefaultProjectorConfig() ProjectorConfig {
	return ProjectorConfig{
		StreamName:    "ARENA_EVENTS",
		ConsumerName:  "arena-leaderboard",
		SubjectFilter: "arena.events." + string(events.TypeSubmissionCommitted),
		MaxDeliver:    10,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
	}
}

// ScoreRecorder is the part of the Aggregator the projector drives.
type ScoreRecorder interface {
	RecordScore(ctx context.Context, identifier string, competitionID uuid.UUID, score int) error
}

// Projector replays SubmissionCommitted events into the leaderboard. The
// submit path records scores directly; the projector covers commits whose
// direct leaderboard write failed. RecordScore is idempotent so seeing an
// event twice is harmless.
type Projector struct {
	recorder ScoreRecorder
	js       jetstream.JetStream
	consumer jetstream.Consumer
	config   ProjectorConfig
}

// NewProjector creates or binds the durable consumer
func NewProjector(ctx context.Context, js jetstream.JetStream, recorder ScoreRecorder, config ProjectorConfig) (*Projector, error) {
	p := &Projector{
		recorder: recorder,
		js:       js,
		config:   config,
	}
	if err := p.ensureConsumer(ctx); err != nil {
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return p, nil
}

// NewLocalProjector returns a projector fed in process by the outbox relay,
// for deployments without JetStream.
func NewLocalProjector(recorder ScoreRecorder) *Projector {
	return &Projector{recorder: recorder}
}

// Publish applies an outbox event directly. The relay marks the event sent
// only when this returns nil, so a failed leaderboard write is retried on the
// next relay pass.
func (p *Projector) Publish(ctx context.Context, event outbox.Event) error {
	if err := p.apply(ctx, event.Envelope(event.CreatedAt)); err != nil {
		return fmt.Errorf("project event %s: %w", event.ID, err)
	}
	log.Debug().
		Str("event_id", event.ID.String()).
		Str("event_type", string(event.EventType)).
		Str("identifier", event.Identifier).
		Msg("projected outbox event")
	return nil
}

func (p *Projector) ensureConsumer(ctx context.Context) error {
	stream, err := p.js.Stream(ctx, p.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          p.config.ConsumerName,
		Durable:       p.config.ConsumerName,
		Description:   "Leaderboard projection of committed submissions",
		FilterSubject: p.config.SubjectFilter,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    p.config.MaxDeliver,
		AckWait:       p.config.AckWait,
		MaxAckPending: p.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	log.Info().
		Str("consumer", p.config.ConsumerName).
		Str("stream", p.config.StreamName).
		Msg("leaderboard projector consumer ready")

	p.consumer = consumer
	return nil
}

// Start consumes until ctx is cancelled
func (p *Projector) Start(ctx context.Context) error {
	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := p.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			_ = msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("leaderboard projector shutting down")
			return nil
		case msg := <-messageCh:
			if err := p.Handle(ctx, msg.Data()); err != nil {
				log.Error().
					Err(err).
					Str("subject", msg.Subject()).
					Msg("failed to project message")
				if nakErr := msg.Nak(); nakErr != nil {
					log.Error().Err(nakErr).Msg("failed to NAK message")
				}
				continue
			}
			if ackErr := msg.Ack(); ackErr != nil {
				log.Error().Err(ackErr).Msg("failed to ACK message")
			}
		}
	}
}

// Handle applies one envelope. Events of other types are ignored.
func (p *Projector) Handle(ctx context.Context, data []byte) error {
	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}
	return p.apply(ctx, env)
}

func (p *Projector) apply(ctx context.Context, env events.Envelope) error {
	if env.EventType != events.TypeSubmissionCommitted {
		return nil
	}

	payload, err := events.ParsePayload(env)
	if err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}
	committed := payload.(events.SubmissionCommittedPayload)

	competitionID, err := uuid.Parse(committed.CompetitionID)
	if err != nil {
		return fmt.Errorf("invalid competition id %q: %w", committed.CompetitionID, err)
	}

	return p.recorder.RecordScore(ctx, committed.Identifier, competitionID, committed.Score)
}
