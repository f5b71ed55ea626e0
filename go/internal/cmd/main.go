package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arena/go/internal/dbconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	setupLogging()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	config, err := loadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
	}

	env := dbconfig.NewServicesFromEnv()
	if err := env.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid environment")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewRealClock()

	storage, err := setupStorage(ctx, env.Store, dbconfig.NewConfigFromEnv(), clock)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up storage")
	}
	defer storage.Close()

	services, err := setupServices(ctx, config, env, storage, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}
	defer services.Close()

	var wg sync.WaitGroup
	closeEvents, err := startEvents(ctx, env, storage, services.Scores, &wg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up event relay")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := services.Sweeper.Run(ctx); err != nil {
			log.Error().Err(err).Msg("expiry sweeper failed")
		}
	}()

	server := setupServer(services, env.Port)
	go func() {
		log.Info().Str("addr", server.Addr).Str("store", env.Store).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	// Open workspaces stop first; their deadlines are picked up by the
	// sweeper of the next instance.
	services.Workspaces.Shutdown()
	cancel()
	wg.Wait()
	closeEvents()

	log.Info().Msg("arena shutdown complete")
}

func setupLogging() {
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "console") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
