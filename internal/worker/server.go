package worker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dunamismax/mediaflow/internal/config"
	"github.com/dunamismax/mediaflow/internal/domain"
	"github.com/dunamismax/mediaflow/internal/queue"
	"github.com/dunamismax/mediaflow/internal/store"
	"github.com/dunamismax/mediaflow/internal/telemetry"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ImageConverter interface {
	ConvertImage(ctx context.Context, req domain.ImageRequest) domain.Result
}

type SubtitleConverter interface {
	ConvertSubtitle(ctx context.Context, req domain.SubtitleRequest) domain.Result
}

type notifier interface {
	NotifyJob(ctx context.Context, job domain.Job) error
}

// Server consumes queued conversions. A conversion that ends in a Failure
// result is terminal and is not retried; only infrastructure errors are.
type Server struct {
	logger    zerolog.Logger
	server    *asynq.Server
	sem       chan struct{}
	images    ImageConverter
	subtitles SubtitleConverter
	jobStore  store.JobStore
	notifier  notifier
	metrics   *metrics
	tracer    trace.Tracer
}

func NewServer(
	logger zerolog.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	images ImageConverter,
	subtitles SubtitleConverter,
	jobStore store.JobStore,
	notifier notifier,
) (*Server, error) {
	if images == nil || subtitles == nil {
		return nil, fmt.Errorf("image and subtitle converters are required")
	}
	if jobStore == nil {
		return nil, fmt.Errorf("job store is required")
	}

	logger = logger.With().Str("component", "worker").Logger()
	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				Logger:   asynqLogger{logger: logger},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Error().
						Err(err).
						Str("task_type", task.Type()).
						Int("retry", retried).
						Int("max_retry", maxRetry).
						Msg("task failed")
				}),
			},
		),
		sem:       make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		images:    images,
		subtitles: subtitles,
		jobStore:  jobStore,
		notifier:  notifier,
		metrics:   newMetrics(),
		tracer:    otel.Tracer(telemetry.TracerName),
	}
	return s, nil
}

func (s *Server) mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeConvertImage, s.handleConvertImage)
	mux.HandleFunc(queue.TypeConvertSubtitle, s.handleConvertSubtitle)
	return mux
}

// Run blocks until the process receives SIGTERM or SIGINT.
func (s *Server) Run() error {
	return s.server.Run(s.mux())
}

// Start launches the consumer in the background. Pair it with Shutdown.
func (s *Server) Start() error {
	return s.server.Start(s.mux())
}

func (s *Server) Shutdown() {
	s.server.Shutdown()
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleConvertImage(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseConvertImagePayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	return s.run(ctx, payload.JobID, domain.PipelineImage, payload.Request.TargetFormat, func(ctx context.Context) domain.Result {
		return s.images.ConvertImage(ctx, payload.Request)
	})
}

func (s *Server) handleConvertSubtitle(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseConvertSubtitlePayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	return s.run(ctx, payload.JobID, domain.PipelineSubtitle, payload.Request.TargetFormat, func(ctx context.Context) domain.Result {
		return s.subtitles.ConvertSubtitle(ctx, payload.Request)
	})
}

func (s *Server) run(ctx context.Context, jobID, pipeline, target string, convert func(context.Context) domain.Result) error {
	startedAt := time.Now()

	ctx, span := s.tracer.Start(ctx, "worker.convert_"+pipeline, trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", jobID),
		attribute.String("job.pipeline", pipeline),
		attribute.String("job.target", target),
	)
	defer span.End()

	job, ok, err := s.jobStore.Get(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if !ok {
		return fmt.Errorf("job %s not found: %w", jobID, asynq.SkipRetry)
	}
	if job.Terminal() {
		s.logger.Info().Str("job_id", jobID).Str("status", job.Status).Msg("job already finished, skipping")
		return nil
	}

	s.sem <- struct{}{}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	s.logger.Info().Str("job_id", jobID).Str("pipeline", pipeline).Str("target", target).Msg("conversion started")
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, domain.JobStatusProcessing); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("job status update failed")
	}

	result := convert(ctx)
	status := domain.StatusFor(result)
	s.metrics.jobDuration.WithLabelValues(pipeline, status).Observe(time.Since(startedAt).Seconds())
	s.metrics.jobsTotal.WithLabelValues(pipeline, status).Inc()

	if result.OK() {
		s.metrics.outputBytesTotal.WithLabelValues(pipeline).Add(float64(result.Success.ConvertedSize))
		span.SetStatus(codes.Ok, "converted")
	} else {
		span.SetStatus(codes.Error, string(result.Failure.Kind))
		s.logger.Warn().
			Str("job_id", jobID).
			Str("kind", string(result.Failure.Kind)).
			Str("error", result.Failure.Message).
			Msg("conversion failed")
	}

	job, err = s.jobStore.Complete(ctx, jobID, result)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("record job result: %w", err)
	}

	s.logger.Info().Str("job_id", jobID).Str("status", job.Status).Dur("elapsed", time.Since(startedAt)).Msg("job finished")
	s.dispatchWebhook(ctx, job)
	return nil
}

// Webhook failures are logged only; re-running the conversion would emit a
// second output file.
func (s *Server) dispatchWebhook(ctx context.Context, job domain.Job) {
	if s.notifier == nil || job.WebhookURL == "" {
		return
	}
	if err := s.notifier.NotifyJob(ctx, job); err != nil {
		s.metrics.webhookFailures.Inc()
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("webhook delivery failed")
	}
}
