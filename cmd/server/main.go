package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ametov/huddle/internal/adapters/auth"
	"github.com/ametov/huddle/internal/adapters/history"
	router "github.com/ametov/huddle/internal/adapters/http"
	"github.com/ametov/huddle/internal/adapters/profile"
	wssignal "github.com/ametov/huddle/internal/adapters/signal"
	"github.com/ametov/huddle/internal/app"
	"github.com/ametov/huddle/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	opts := badger.DefaultOptions(cfg.History.Path).WithLogger(nil)
	if cfg.History.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open history store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("history store close")
		}
	}()

	registry := app.NewRegistry()
	coordinator := app.NewCoordinator()
	profiles := profile.NewStore(db)
	messages := history.NewStore(db, cfg.History.Limit)
	lifecycle := app.NewLifecycle(registry, coordinator, profiles, messages)
	tokens := auth.New(cfg.Secret, cfg.TokenTTL)
	limiter := wssignal.NewMessageRateLimiter(cfg.MessageRate.Limit, cfg.MessageRate.Interval)

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Lifecycle: lifecycle,
		Registry:  registry,
		Limiter:   limiter,
		Auth:      tokens,
		Tokens:    tokens,
		Profiles:  profiles,
		History:   messages,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Huddle server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
