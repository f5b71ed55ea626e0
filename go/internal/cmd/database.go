package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arena/go/internal/competition"
	"github.com/mcdev12/arena/go/internal/dbconfig"
	"github.com/mcdev12/arena/go/internal/dbschema"
	"github.com/mcdev12/arena/go/internal/leaderboard"
	"github.com/mcdev12/arena/go/internal/memstore"
	"github.com/mcdev12/arena/go/internal/outbox"
	"github.com/mcdev12/arena/go/internal/session"
	"github.com/mcdev12/arena/go/internal/submission"
	"github.com/mcdev12/arena/go/internal/workspace"
	"github.com/rs/zerolog/log"
)

// sessionStore is everything the services need from session persistence.
type sessionStore interface {
	session.SessionRepository
	submission.SessionStore
	workspace.DueLister
}

// Storage bundles the repositories of one backend.
type Storage struct {
	Competitions competition.CompetitionRepository
	Sessions     sessionStore
	Leaderboard  leaderboard.Repository
	Outbox       outbox.Store

	// Pool is nil for the in-memory backend.
	Pool *pgxpool.Pool
	DSN  string
}

func (s *Storage) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

func setupStorage(ctx context.Context, backend string, dbCfg dbconfig.Config, clock clockwork.Clock) (*Storage, error) {
	if backend == dbconfig.StoreMemory {
		store := memstore.New(clock)
		log.Warn().Msg("using in-memory store, state is lost on restart")
		return &Storage{
			Competitions: store,
			Sessions:     store,
			Leaderboard:  store,
			Outbox:       store,
		}, nil
	}

	pool, err := setupDatabase(ctx, dbCfg)
	if err != nil {
		return nil, err
	}
	return &Storage{
		Competitions: competition.NewRepository(pool),
		Sessions:     session.NewRepository(pool),
		Leaderboard:  leaderboard.NewPostgresRepository(pool),
		Outbox:       outbox.NewRepository(pool),
		Pool:         pool,
		DSN:          dbCfg.DSN(),
	}, nil
}

func setupDatabase(ctx context.Context, dbCfg dbconfig.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dbCfg.PoolDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := dbschema.Apply(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Str("user", dbCfg.User).
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("database", dbCfg.Database).
		Msg("connected to database")
	return pool, nil
}
