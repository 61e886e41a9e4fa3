package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/dunamismax/mediaflow/internal/app"
	"github.com/dunamismax/mediaflow/internal/config"
	"github.com/dunamismax/mediaflow/internal/logging"
	"github.com/dunamismax/mediaflow/internal/pipeline"
	"github.com/dunamismax/mediaflow/internal/worker"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stdout).
		With().Str("service", "worker").Logger()

	if cfg.Jobs.Driver == "memory" {
		logger.Warn().Msg("memory job store is not shared with the api; use the postgres driver for a standalone worker")
	}

	ctx := context.Background()
	shutdownTracing, err := app.SetupTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("setup tracing")
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	engine, err := app.NewEngine(cfg.Convert, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build conversion engine")
	}
	defer pipeline.Shutdown()

	jobStore, closeJobs, err := app.OpenJobStore(ctx, cfg.Jobs)
	if err != nil {
		logger.Fatal().Err(err).Msg("open job store")
	}
	defer closeJobs()

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, engine.Images, engine.Subtitles, jobStore, app.NewWebhookClient(cfg.Webhook))
	if err != nil {
		logger.Fatal().Err(err).Msg("build worker")
	}

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           srv.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	defer metricsServer.Close()

	logger.Info().
		Int("concurrency", cfg.Worker.Concurrency).
		Int("max_active_jobs", cfg.Worker.MaxActiveJobs).
		Str("queue", cfg.Queue.Name).
		Str("redis", cfg.Queue.RedisAddr).
		Msg("starting worker")

	if err := srv.Run(); err != nil {
		logger.Error().Err(err).Msg("worker failed")
	}
}
