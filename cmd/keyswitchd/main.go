package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/celerix-dev/key-switcher/internal/api"
	"github.com/celerix-dev/key-switcher/internal/config"
	"github.com/celerix-dev/key-switcher/internal/engine"
	"github.com/celerix-dev/key-switcher/internal/logging"
	"github.com/celerix-dev/key-switcher/internal/metrics"
	"github.com/celerix-dev/key-switcher/internal/ratelimit"
	"github.com/celerix-dev/key-switcher/internal/schedule"
	"github.com/celerix-dev/key-switcher/internal/secrets"
	"github.com/celerix-dev/key-switcher/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load(os.Getenv("KEYSWITCH_CONFIG"))
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log, closer := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	defer closer.Close()

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("daemon stopped")
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("driver", cfg.Store.Driver).Msg("starting key switcher daemon")

	store, err := engine.Open(ctx, engine.Options{
		Driver:  engine.Driver(cfg.Store.Driver),
		URL:     cfg.Store.URL,
		Key:     cfg.Store.Key,
		DataDir: cfg.Store.DataDir,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close store")
		}
	}()

	provider, err := secrets.NewProvider(ctx, secrets.Options{
		Type:      secrets.ProviderType(cfg.Keys.Provider),
		KeyPrefix: cfg.Keys.Prefix,
		AWSRegion: cfg.Keys.AWSRegion,
		AWSSecret: cfg.Keys.AWSSecret,
	}, log)
	if err != nil {
		return err
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	sched := schedule.Build(loc)
	log.Info().
		Time("starts_at", sched.Start()).
		Int("slots", sched.Len()).
		Str("timezone", loc.String()).
		Msg("key schedule loaded")

	var rec *metrics.Recorder
	if cfg.Server.Metrics {
		rec = metrics.New()
	}

	var limiter *ratelimit.Store
	if cfg.RateLimit.RPS > 0 {
		limiter = ratelimit.NewStore(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		limiter.StartJanitor(ctx)
	}

	svc := service.New(store, sched, provider,
		service.WithMetrics(rec),
		service.WithLogger(log),
	)

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.NewRouter(api.RouterConfig{
			Service: svc,
			Logger:  log,
			Limiter: limiter,
			Metrics: rec,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("HTTP API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutdown signal received, draining requests")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("shutdown complete")
	return nil
}
