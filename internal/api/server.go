package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dunamismax/mediaflow/internal/domain"
	"github.com/dunamismax/mediaflow/internal/queue"
	"github.com/dunamismax/mediaflow/internal/store"
	"github.com/dunamismax/mediaflow/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	folderImages    = "images"
	folderSubtitles = "subtitles"
)

type ImageConverter interface {
	ConvertImage(ctx context.Context, req domain.ImageRequest) domain.Result
}

type SubtitleConverter interface {
	ConvertSubtitle(ctx context.Context, req domain.SubtitleRequest) domain.Result
}

type queueEnqueuer interface {
	EnqueueConvertImage(ctx context.Context, payload queue.ConvertImagePayload) (*asynq.TaskInfo, error)
	EnqueueConvertSubtitle(ctx context.Context, payload queue.ConvertSubtitlePayload) (*asynq.TaskInfo, error)
}

// Publisher mirrors a converted file somewhere outside the upload
// directory and returns the key it was stored under.
type Publisher interface {
	Upload(ctx context.Context, folder, localPath, contentType string) (string, error)
}

type Options struct {
	UploadDir      string
	MaxUploadBytes int64
	DefaultQuality int
}

type Server struct {
	logger      zerolog.Logger
	opts        Options
	images      ImageConverter
	subtitles   SubtitleConverter
	queueClient queueEnqueuer
	jobStore    store.JobStore
	rateLimiter RateLimiter
	publisher   Publisher
	metrics     *metrics
	tracer      trace.Tracer
	router      chi.Router
}

type Option func(*Server)

// WithQueue enables asynchronous conversions. Both arguments are required.
func WithQueue(client queueEnqueuer, jobStore store.JobStore) Option {
	return func(s *Server) {
		s.queueClient = client
		s.jobStore = jobStore
	}
}

func WithRateLimiter(l RateLimiter) Option {
	return func(s *Server) { s.rateLimiter = l }
}

func WithPublisher(p Publisher) Option {
	return func(s *Server) { s.publisher = p }
}

func NewServer(logger zerolog.Logger, opts Options, images ImageConverter, subtitles SubtitleConverter, options ...Option) (*Server, error) {
	if images == nil || subtitles == nil {
		return nil, fmt.Errorf("image and subtitle converters are required")
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 100 << 20
	}
	if opts.DefaultQuality == 0 {
		opts.DefaultQuality = domain.DefaultQuality
	}
	if opts.UploadDir == "" {
		opts.UploadDir = "./uploads"
	}

	uploadDir, err := filepath.Abs(opts.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	opts.UploadDir = uploadDir
	for _, folder := range []string{folderImages, folderSubtitles} {
		if err := os.MkdirAll(filepath.Join(uploadDir, folder), 0o755); err != nil {
			return nil, fmt.Errorf("create upload folder %s: %w", folder, err)
		}
	}

	s := &Server{
		logger:    logger.With().Str("component", "api").Logger(),
		opts:      opts,
		images:    images,
		subtitles: subtitles,
		metrics:   newMetrics(),
		tracer:    otel.Tracer(telemetry.TracerName),
	}
	for _, apply := range options {
		apply(s)
	}
	if (s.queueClient == nil) != (s.jobStore == nil) {
		return nil, fmt.Errorf("queue client and job store must be configured together")
	}

	s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.withRecovery)
	r.Use(s.withTracing)
	r.Use(s.metrics.withHTTPMetrics)
	r.Use(s.withRequestLogging)

	r.Handle("/metrics", s.metrics.metricsHandler())
	r.Get("/healthz", s.handleHealthz)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/formats", s.handleFormats)
		r.With(s.withRateLimit(domain.PipelineImage)).Post("/convert-image", s.handleConvertImage)
		r.With(s.withRateLimit(domain.PipelineSubtitle)).Post("/convert-subtitle", s.handleConvertSubtitle)
		r.Get("/download/{folder}/{filename}", s.handleDownload)
		r.Get("/jobs/{id}", s.handleGetJob)
	})

	s.router = r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "online",
		"message": "image and subtitle conversion service is running",
		"async":   s.queueClient != nil,
	})
}

func (s *Server) handleFormats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		folderImages:    domain.ImageTokens(),
		folderSubtitles: domain.SubtitleTokens(),
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if s.jobStore == nil {
		writeError(w, http.StatusNotFound, domain.KindInvalidParameter, "asynchronous conversion is not enabled")
		return
	}

	jobID := chi.URLParam(r, "id")
	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("fetch job failed")
		writeError(w, http.StatusInternalServerError, domain.KindUnexpected, "failed to load job")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, domain.KindInvalidParameter, "job not found")
		return
	}

	body := map[string]any{"job": job.Public()}
	if job.Result != nil && job.Result.OK() {
		body["download_url"] = downloadURL(pipelineFolder(job.Pipeline), job.Result.Success.OutputPath)
	}
	writeJSON(w, http.StatusOK, body)
}

func pipelineFolder(pipeline string) string {
	if pipeline == domain.PipelineSubtitle {
		return folderSubtitles
	}
	return folderImages
}

func downloadURL(folder, outputPath string) string {
	return fmt.Sprintf("/api/download/%s/%s", folder, filepath.Base(outputPath))
}

type errorResponse struct {
	Success bool             `json:"success"`
	Error   string           `json:"error"`
	Kind    domain.ErrorKind `json:"kind"`
}

func writeError(w http.ResponseWriter, status int, kind domain.ErrorKind, message string) {
	writeJSON(w, status, errorResponse{Success: false, Error: message, Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
