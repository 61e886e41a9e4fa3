package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/mediaflow/internal/api"
	"github.com/dunamismax/mediaflow/internal/app"
	"github.com/dunamismax/mediaflow/internal/config"
	"github.com/dunamismax/mediaflow/internal/logging"
	"github.com/dunamismax/mediaflow/internal/pipeline"
	"github.com/dunamismax/mediaflow/internal/queue"
	"github.com/dunamismax/mediaflow/internal/ratelimit"
	"github.com/dunamismax/mediaflow/internal/storage"
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
		With().Str("service", "api").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := app.SetupTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("setup tracing")
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	engine, err := app.NewEngine(cfg.Convert, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build conversion engine")
	}
	defer pipeline.Shutdown()

	var options []api.Option

	if cfg.Storage.Enabled {
		storageClient, err := storage.NewClient(storage.Config{
			Endpoint: cfg.Storage.Endpoint,
			Access:   cfg.Storage.AccessKey,
			Secret:   cfg.Storage.SecretKey,
			Bucket:   cfg.Storage.Bucket,
			UseSSL:   cfg.Storage.UseSSL,
			Prefix:   cfg.Storage.Prefix,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("build storage client")
		}
		if err := storageClient.EnsureBucket(ctx); err != nil {
			logger.Fatal().Err(err).Str("bucket", storageClient.Bucket()).Msg("ensure bucket")
		}
		options = append(options, api.WithPublisher(storageClient))
		logger.Info().Str("bucket", storageClient.Bucket()).Msg("mirroring converted files to object storage")
	}

	if cfg.RateLimit.Enabled {
		redisClient, err := ratelimit.NewRedisClient(ctx, cfg.RateLimit.RedisAddr, cfg.RateLimit.RedisPassword, cfg.RateLimit.RedisDB)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect rate limit redis")
		}
		defer redisClient.Close()

		limiter, err := ratelimit.NewConversionLimiter(redisClient, ratelimit.Config{
			Capacity: cfg.RateLimit.Capacity,
			Window:   cfg.RateLimit.Window,
			Costs: ratelimit.Costs{
				Image:    cfg.RateLimit.ImageCost,
				Subtitle: cfg.RateLimit.SubtitleCost,
			},
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("build rate limiter")
		}
		options = append(options, api.WithRateLimiter(limiter))
	}

	if cfg.Queue.Enabled {
		jobStore, closeJobs, err := app.OpenJobStore(ctx, cfg.Jobs)
		if err != nil {
			logger.Fatal().Err(err).Msg("open job store")
		}
		defer closeJobs()

		queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name, cfg.Queue.MaxRetry, cfg.Queue.TaskTimeout)
		defer func() {
			if err := queueClient.Close(); err != nil {
				logger.Warn().Err(err).Msg("queue client close")
			}
		}()
		options = append(options, api.WithQueue(queueClient, jobStore))

		if cfg.Worker.Embedded {
			consumer, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, engine.Images, engine.Subtitles, jobStore, app.NewWebhookClient(cfg.Webhook))
			if err != nil {
				logger.Fatal().Err(err).Msg("build embedded worker")
			}
			if err := consumer.Start(); err != nil {
				logger.Fatal().Err(err).Msg("start embedded worker")
			}
			defer consumer.Shutdown()

			workerMetrics := &http.Server{
				Addr:              cfg.Worker.MetricsAddr,
				Handler:           consumer.MetricsHandler(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				if err := workerMetrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error().Err(err).Msg("worker metrics server failed")
				}
			}()
			defer workerMetrics.Close()
		}
	}

	srv, err := api.NewServer(logger, api.Options{
		UploadDir:      cfg.API.UploadDir,
		MaxUploadBytes: cfg.API.MaxUploadBytes,
		DefaultQuality: cfg.Convert.DefaultQuality,
	}, engine.Images, engine.Subtitles, options...)
	if err != nil {
		logger.Fatal().Err(err).Msg("build api server")
	}

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.API.Addr).
			Bool("async", cfg.Queue.Enabled).
			Bool("rate_limit", cfg.RateLimit.Enabled).
			Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info().Msg("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
