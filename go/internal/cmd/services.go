package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arena/go/internal/answerstore"
	"github.com/mcdev12/arena/go/internal/api"
	"github.com/mcdev12/arena/go/internal/competition"
	"github.com/mcdev12/arena/go/internal/dbconfig"
	"github.com/mcdev12/arena/go/internal/gateway"
	"github.com/mcdev12/arena/go/internal/leaderboard"
	"github.com/mcdev12/arena/go/internal/mirror"
	"github.com/mcdev12/arena/go/internal/session"
	"github.com/mcdev12/arena/go/internal/submission"
	"github.com/mcdev12/arena/go/internal/workspace"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Services is the wired application.
type Services struct {
	API        *api.Service
	RPC        *api.RPCService
	Gateway    *gateway.WebSocketHandler
	Workspaces *workspace.Manager
	Sweeper    *workspace.Sweeper
	Scores     *leaderboard.Aggregator

	redis *redis.Client
}

func (s *Services) Close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
}

func setupServices(ctx context.Context, config *Config, env dbconfig.Services, storage *Storage, clock clockwork.Clock) (*Services, error) {
	// Wire up dependency injection chain
	// Repository layer → App layer → Service layer
	services := &Services{}

	tokens, err := setupMirror(ctx, env, clock, services)
	if err != nil {
		return nil, err
	}
	files, err := setupAnswerStore(ctx, env)
	if err != nil {
		return nil, err
	}

	subCfg, err := config.SubmissionConfig()
	if err != nil {
		return nil, err
	}
	grader, err := submission.NewGrader(config.Submission.Grader, config.Submission.FixedScore, config.Submission.RandomMax)
	if err != nil {
		return nil, err
	}

	competitions := competition.NewApp(storage.Competitions)
	sessions := session.NewManager(competitions, storage.Sessions, tokens, clock)
	scores := leaderboard.NewAggregator(storage.Leaderboard, clock)

	coordinator, err := submission.NewCoordinator(storage.Sessions, files, grader, scores, tokens, clock, subCfg)
	if err != nil {
		return nil, err
	}

	workspaces := workspace.NewManager(coordinator, storage.Sessions, clock, config.WorkspaceConfig())
	connections := gateway.NewConnectionManager(workspaces, gateway.DefaultConnectionConfig())

	services.API = api.NewService(competitions, sessions, workspaces, scores, clock)
	services.RPC = api.NewRPCService(services.API)
	services.Gateway = gateway.NewWebSocketHandler(connections)
	services.Workspaces = workspaces
	services.Sweeper = workspace.NewSweeper(storage.Sessions, coordinator, workspaces, clock, config.SweeperConfig())
	services.Scores = scores

	log.Info().
		Str("expiry_policy", string(subCfg.ExpiryPolicy)).
		Strs("required_parts", subCfg.RequiredParts).
		Str("grader", config.Submission.Grader).
		Msg("services configured")
	return services, nil
}

func setupMirror(ctx context.Context, env dbconfig.Services, clock clockwork.Clock, services *Services) (mirror.Store, error) {
	if env.RedisAddr == "" {
		log.Info().Msg("REDIS_ADDR not set, session mirror kept in memory")
		return mirror.NewMemoryStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     env.RedisAddr,
		Password: env.RedisPassword,
		DB:       env.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	services.redis = client

	log.Info().Str("addr", env.RedisAddr).Msg("connected to redis")
	return mirror.NewRedisStore(client, clock, env.MirrorRetention), nil
}

func setupAnswerStore(ctx context.Context, env dbconfig.Services) (answerstore.Store, error) {
	if env.S3Bucket == "" {
		log.Warn().Msg("S3_BUCKET not set, answer files kept in memory")
		return answerstore.NewMemoryStore(), nil
	}

	store, err := answerstore.NewS3Store(ctx, env.S3Region, env.S3Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 answer store: %w", err)
	}
	log.Info().Str("bucket", env.S3Bucket).Str("region", env.S3Region).Msg("storing answers in s3")
	return store, nil
}
