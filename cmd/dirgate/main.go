package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dirgate/dirgate/internal/actor"
	"github.com/dirgate/dirgate/internal/auditlog"
	"github.com/dirgate/dirgate/internal/broker"
	"github.com/dirgate/dirgate/internal/config"
	"github.com/dirgate/dirgate/internal/gateway"
	"github.com/dirgate/dirgate/internal/obs"
	"github.com/dirgate/dirgate/internal/secrets"
	"github.com/dirgate/dirgate/internal/server"
	"github.com/dirgate/dirgate/internal/store/postgres"
	redisstore "github.com/dirgate/dirgate/internal/store/redis"
	"github.com/dirgate/dirgate/internal/syncer"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Initialize structured logging from environment.
	logLevel := os.Getenv("DIRGATE_LOG_LEVEL")
	level, parseErr := zerolog.ParseLevel(logLevel)
	if parseErr != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logFormat := os.Getenv("DIRGATE_LOG_FORMAT")
	if logFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	ctx := context.Background()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	obs.Init()

	// Connect to PostgreSQL.
	store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
	if err != nil {
		return err
	}
	defer store.Close()

	// Connect to Redis for the live audit feed.
	pubsub, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer pubsub.Close()

	// Vault for delegated-credential key material.
	vault, err := secrets.NewVault(cfg.Vault.Key)
	if err != nil {
		return err
	}

	// Credential broker with single-flight token refresh.
	tokens := broker.New(store.Credentials(), vault, cfg.Broker.TokenURL, cfg.Broker.ExpiryMargin)

	// Two-phase audit recorder publishing completed entries to Redis.
	recorder := auditlog.New(store.Audit(), pubsub)

	// Background mirror sync pool.
	pool := syncer.NewPool(store.Mirror(), recorder, cfg.Sync.Workers, cfg.Sync.QueueSize)
	pool.Start()

	// Proxy pipeline.
	translator, err := gateway.NewTranslator(cfg.Upstream.BaseURL)
	if err != nil {
		return err
	}
	dispatcher := gateway.NewDispatcher(cfg.Upstream)
	proxy := gateway.NewHandler(tokens, translator, dispatcher, recorder, pool, cfg.Sync.MaxCaptureBytes)

	resolver := actor.NewResolver(cfg.Session.JWTSecret, store.Keys())

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Create HTTP server with all routes wired.
	srv := server.New(ctx, cfg, store, pubsub, resolver, proxy)

	// Start server in background goroutine.
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("upstream", cfg.Upstream.BaseURL).Msg("starting gateway")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	// In-flight audit completions and queued sync work drain before exit.
	if drainErr := recorder.Drain(shutdownCtx); drainErr != nil {
		log.Warn().Err(drainErr).Msg("audit drain incomplete")
	}
	if closeErr := pool.Close(shutdownCtx); closeErr != nil {
		log.Warn().Err(closeErr).Msg("sync pool drain incomplete")
	}

	log.Info().Msg("stopped")
	return nil
}
