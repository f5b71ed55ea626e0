package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/mcdev12/arena/go/internal/dbconfig"
	"github.com/mcdev12/arena/go/internal/leaderboard"
	"github.com/mcdev12/arena/go/internal/outbox"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// startEvents relays the outbox to JetStream and runs the leaderboard
// projector as its consumer. Without NATS the relay hands events to the
// projector in process. The returned func closes the NATS connection after
// the goroutines in wg have stopped.
func startEvents(ctx context.Context, env dbconfig.Services, storage *Storage, scores *leaderboard.Aggregator, wg *sync.WaitGroup) (func(), error) {
	var (
		publisher outbox.Publisher
		nc        *nats.Conn
	)

	if env.NATSURL != "" {
		jsCfg := outbox.DefaultJetStreamConfig()
		jsCfg.URL = env.NATSURL

		conn, js, err := outbox.Connect(jsCfg)
		if err != nil {
			return nil, err
		}
		nc = conn

		jsPublisher, err := outbox.NewJetStreamPublisher(ctx, js, jsCfg)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create publisher: %w", err)
		}
		publisher = jsPublisher

		projector, err := leaderboard.NewProjector(ctx, js, scores, leaderboard.DefaultProjectorConfig())
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create leaderboard projector: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := projector.Start(ctx); err != nil {
				log.Error().Err(err).Msg("leaderboard projector failed")
			}
		}()
	} else {
		log.Warn().Msg("NATS_URL not set, projecting outbox events in process")
		publisher = leaderboard.NewLocalProjector(scores)
	}

	relay := outbox.NewRelay(storage.Outbox, publisher, outbox.DefaultConfig())

	if storage.Pool != nil {
		listenerCfg := outbox.DefaultListenerConfig()
		listenerCfg.DatabaseURL = storage.DSN

		listener, err := outbox.NewListener(relay, listenerCfg)
		if err != nil {
			if nc != nil {
				nc.Close()
			}
			return nil, fmt.Errorf("failed to create outbox listener: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Start(ctx); err != nil {
				log.Error().Err(err).Msg("outbox listener stopped with error")
			}
		}()
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := relay.Run(ctx); err != nil {
				log.Error().Err(err).Msg("outbox relay stopped with error")
			}
		}()
	}

	return func() {
		if nc != nil {
			nc.Close()
		}
	}, nil
}
