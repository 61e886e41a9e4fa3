// Package app wires configuration into the long-lived components shared by
// the API, the worker and the CLI.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/dunamismax/mediaflow/internal/config"
	"github.com/dunamismax/mediaflow/internal/pipeline"
	"github.com/dunamismax/mediaflow/internal/store"
	"github.com/dunamismax/mediaflow/internal/subtitle"
	"github.com/dunamismax/mediaflow/internal/telemetry"
	"github.com/dunamismax/mediaflow/internal/webhook"
	"github.com/rs/zerolog"
)

// Engine holds both conversion pipelines.
type Engine struct {
	Images    *pipeline.Processor
	Subtitles *subtitle.Converter
}

// NewEngine starts the image runtime and builds both pipelines. Call
// pipeline.Shutdown when the process exits.
func NewEngine(cfg config.ConvertConfig, logger zerolog.Logger) (Engine, error) {
	if err := pipeline.Startup(); err != nil {
		return Engine{}, fmt.Errorf("start image runtime: %w", err)
	}

	processor, err := pipeline.NewProcessor(pipeline.Options{
		LargeSourceBytes: cfg.LargeSourceBytes,
		MaxEdge:          cfg.MaxEdge,
		SVGCanvas:        cfg.SVGCanvas,
		HEIFEncoder:      cfg.HEIFEncoder,
	}, logger)
	if err != nil {
		return Engine{}, fmt.Errorf("build image processor: %w", err)
	}

	logger.Info().
		Str("heif_codec", processor.CodecName()).
		Int("max_edge", cfg.MaxEdge).
		Int64("large_source_bytes", cfg.LargeSourceBytes).
		Msg("conversion engine ready")

	return Engine{
		Images:    processor,
		Subtitles: subtitle.NewConverter(logger),
	}, nil
}

func SetupTracing(ctx context.Context, cfg config.TracingConfig, logger zerolog.Logger) (func(context.Context) error, error) {
	return telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  cfg.ServiceName,
		Exporter:     cfg.Exporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPInsecure: cfg.OTLPInsecure,
	}, logger)
}

// OpenJobStore returns the configured job store and a close func.
func OpenJobStore(ctx context.Context, cfg config.JobsConfig) (store.JobStore, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "postgres":
		pg, err := store.NewPostgresJobStore(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	case "memory", "":
		return store.NewMemoryJobStore(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown jobs driver %q", cfg.Driver)
	}
}

func NewWebhookClient(cfg config.WebhookConfig) *webhook.Client {
	return webhook.NewClient(webhook.Config{
		SigningSecret:  cfg.SigningSecret,
		Timeout:        cfg.Timeout,
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
	})
}
