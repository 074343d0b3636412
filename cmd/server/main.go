package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/neonchat/neonchat/internal/api"
	"github.com/neonchat/neonchat/internal/config"
	"github.com/neonchat/neonchat/internal/hub"
	"github.com/neonchat/neonchat/internal/rooms"
	"github.com/neonchat/neonchat/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Account store: PostgreSQL if configured, else SQLite if configured
	var accounts store.DataStore
	switch {
	case cfg.DatabaseURL != "":
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		defer pgStore.Close()

		logger.Info().Msg("running database migrations...")
		if err := pgStore.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		accounts = pgStore
		logger.Info().Msg("connected to PostgreSQL")

	case cfg.SQLitePath != "":
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		defer sqliteStore.Close()
		accounts = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite")

	default:
		logger.Warn().Msg("no account store configured, account endpoints disabled")
	}

	// Initialize Redis store
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	} else {
		logger.Warn().Msg("no redis configured, rate limiting disabled")
	}

	// Relay
	registry := rooms.NewRegistry(rooms.WithIdleTTL(cfg.RoomIdleTTL))
	relay := hub.New(registry, logger, hub.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		MaxFrameBytes:  cfg.MaxFrameBytes,
		SweepInterval:  cfg.RoomSweepInterval,
		FrameLimit:     cfg.FrameLimit,
		FrameWindow:    cfg.FrameWindow,
	})

	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		relay.Run(hubCtx)
		close(hubDone)
	}()

	router := api.NewRouter(logger, cfg, relay, accounts, redisStore)

	// No WriteTimeout: it would also cut off hijacked websocket connections
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting NeonChat relay")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	// Shutdown does not track hijacked connections; stopping the hub closes them
	stopHub()
	<-hubDone

	logger.Info().Msg("server stopped")
}
