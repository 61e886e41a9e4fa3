package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/mediaflow/internal/domain"
	"github.com/dunamismax/mediaflow/internal/id"
	"github.com/dunamismax/mediaflow/internal/queue"
	"github.com/dustin/go-humanize"
)

const maxFormMemory = 32 << 20

type conversionResponse struct {
	Success       bool   `json:"success"`
	OriginalName  string `json:"original_name"`
	OriginalSize  string `json:"original_size"`
	ConvertedName string `json:"converted_name"`
	ConvertedSize string `json:"converted_size"`
	Format        string `json:"format"`
	DownloadURL   string `json:"download_url"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	StorageKey    string `json:"storage_key,omitempty"`
}

type queuedResponse struct {
	Success   bool   `json:"success"`
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	StatusURL string `json:"status_url"`
}

func (s *Server) handleConvertImage(w http.ResponseWriter, r *http.Request) {
	upload, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	defer upload.file.Close()

	target := r.FormValue("format")
	req := domain.NewImageRequest("", upload.name, target)
	req.Quality = s.opts.DefaultQuality
	if err := parseIntField(r, "width", &req.Width); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := parseIntField(r, "height", &req.Height); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := parseIntField(r, "quality", &req.Quality); err != nil {
		s.fail(w, r, err)
		return
	}
	if _, ok := domain.ParseImageFormat(sourceExt(upload.name)); !ok {
		s.fail(w, r, domain.Errorf(domain.KindUnsupportedFormat, "unsupported input format: %q", sourceExt(upload.name)))
		return
	}
	// Checked before staging so a bad request leaves nothing behind.
	req.SourcePath = "pending"
	if err := req.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}

	staged, err := s.stage(upload, folderImages)
	if err != nil {
		s.logger.Error().Err(err).Str("filename", upload.name).Msg("stage upload failed")
		writeError(w, http.StatusInternalServerError, domain.KindUnexpected, "failed to store upload")
		return
	}
	req.SourcePath = staged.path
	req.SourceFilename = staged.name

	if wantsAsync(r) {
		s.enqueue(w, r, domain.PipelineImage, upload.name, target, func(jobID, webhookURL string) error {
			_, err := s.queueClient.EnqueueConvertImage(r.Context(), queue.ConvertImagePayload{
				JobID:       jobID,
				WebhookURL:  webhookURL,
				Request:     req,
				RequestedAt: time.Now().UTC(),
			})
			return err
		})
		return
	}

	result := s.images.ConvertImage(r.Context(), req)
	s.respond(w, r, domain.PipelineImage, upload.name, target, result)
}

func (s *Server) handleConvertSubtitle(w http.ResponseWriter, r *http.Request) {
	upload, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	defer upload.file.Close()

	target := r.FormValue("format")
	req := domain.NewSubtitleRequest("pending", upload.name, target)
	if enc := strings.TrimSpace(r.FormValue("encoding")); enc != "" {
		req.Encoding = enc
	}
	if _, ok := domain.ParseSubtitleFormat(sourceExt(upload.name)); !ok {
		s.fail(w, r, domain.Errorf(domain.KindUnsupportedFormat, "unsupported input format: %q", sourceExt(upload.name)))
		return
	}
	if err := req.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}

	staged, err := s.stage(upload, folderSubtitles)
	if err != nil {
		s.logger.Error().Err(err).Str("filename", upload.name).Msg("stage upload failed")
		writeError(w, http.StatusInternalServerError, domain.KindUnexpected, "failed to store upload")
		return
	}
	req.SourcePath = staged.path
	req.SourceFilename = staged.name

	if wantsAsync(r) {
		s.enqueue(w, r, domain.PipelineSubtitle, upload.name, target, func(jobID, webhookURL string) error {
			_, err := s.queueClient.EnqueueConvertSubtitle(r.Context(), queue.ConvertSubtitlePayload{
				JobID:       jobID,
				WebhookURL:  webhookURL,
				Request:     req,
				RequestedAt: time.Now().UTC(),
			})
			return err
		})
		return
	}

	result := s.subtitles.ConvertSubtitle(r.Context(), req)
	s.respond(w, r, domain.PipelineSubtitle, upload.name, target, result)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, pipeline, originalName, target string, result domain.Result) {
	token := domain.NormalizeToken(target)
	if !result.OK() {
		s.metrics.conversionsTotal.WithLabelValues(pipeline, token, string(result.Failure.Kind)).Inc()
		s.logger.Warn().
			Str("pipeline", pipeline).
			Str("filename", originalName).
			Str("kind", string(result.Failure.Kind)).
			Str("error", result.Failure.Message).
			Msg("conversion failed")
		writeError(w, statusForKind(result.Failure.Kind), result.Failure.Kind, result.Failure.Message)
		return
	}

	out := result.Success
	s.metrics.conversionsTotal.WithLabelValues(pipeline, token, "success").Inc()
	s.metrics.convertedBytes.WithLabelValues(pipeline).Observe(float64(out.ConvertedSize))

	folder := pipelineFolder(pipeline)
	resp := conversionResponse{
		Success:       true,
		OriginalName:  originalName,
		OriginalSize:  humanize.IBytes(uint64(out.OriginalSize)),
		ConvertedName: baseName(out.OutputPath),
		ConvertedSize: humanize.IBytes(uint64(out.ConvertedSize)),
		Format:        strings.ToUpper(token),
		DownloadURL:   downloadURL(folder, out.OutputPath),
		Width:         out.Width,
		Height:        out.Height,
		StorageKey:    s.publish(r, folder, out.OutputPath, contentTypeFor(pipeline, token)),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, pipeline, originalName, target string, send func(jobID, webhookURL string) error) {
	if s.queueClient == nil {
		s.fail(w, r, domain.Errorf(domain.KindInvalidParameter, "asynchronous conversion is not enabled"))
		return
	}

	webhookURL := strings.TrimSpace(r.FormValue("webhook_url"))
	if webhookURL != "" && !strings.HasPrefix(webhookURL, "http://") && !strings.HasPrefix(webhookURL, "https://") {
		s.fail(w, r, domain.Errorf(domain.KindInvalidParameter, "webhook_url must be an http(s) URL"))
		return
	}

	now := time.Now().UTC()
	job := domain.Job{
		ID:             id.New(),
		Pipeline:       pipeline,
		Status:         domain.JobStatusQueued,
		SourceFilename: originalName,
		TargetFormat:   domain.NormalizeToken(target),
		WebhookURL:     webhookURL,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.jobStore.Create(r.Context(), job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("create job failed")
		writeError(w, http.StatusInternalServerError, domain.KindUnexpected, "failed to create job")
		return
	}

	if err := send(job.ID, webhookURL); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("enqueue failed")
		s.markEnqueueFailed(r, job.ID, err)
		writeError(w, http.StatusInternalServerError, domain.KindUnexpected, "failed to enqueue job")
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(pipeline).Inc()

	s.logger.Info().Str("job_id", job.ID).Str("pipeline", pipeline).Str("target", job.TargetFormat).Msg("conversion queued")
	writeJSON(w, http.StatusAccepted, queuedResponse{
		Success:   true,
		JobID:     job.ID,
		Status:    job.Status,
		StatusURL: "/api/jobs/" + job.ID,
	})
}

func (s *Server) markEnqueueFailed(r *http.Request, jobID string, cause error) {
	failed := domain.Failed(domain.Wrap(domain.KindUnexpected, cause, "enqueue conversion"))
	if _, err := s.jobStore.Complete(r.Context(), jobID, failed); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("mark job failed")
	}
}

// fail writes a classified request error.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	f := domain.FailureFrom(err)
	s.logger.Debug().
		Str("path", r.URL.Path).
		Str("kind", string(f.Kind)).
		Str("error", f.Message).
		Msg("request rejected")
	writeError(w, statusForKind(f.Kind), f.Kind, f.Message)
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindMissingFile,
		domain.KindUnsupportedFormat,
		domain.KindInvalidParameter,
		domain.KindParseFailure,
		domain.KindDecodeFailure:
		return http.StatusBadRequest
	case domain.KindEncodeFailure, domain.KindUnexpected:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// parseIntField leaves dst untouched when the field is absent.
func parseIntField(r *http.Request, field string, dst *int) error {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return domain.Wrap(domain.KindInvalidParameter, err, "%s must be an integer, got %q", field, raw)
	}
	*dst = v
	return nil
}

func wantsAsync(r *http.Request) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(r.FormValue("async")))
	return err == nil && v
}

func contentTypeFor(pipeline, token string) string {
	if pipeline == domain.PipelineSubtitle {
		f, _ := domain.ParseSubtitleFormat(token)
		return f.MIMEType()
	}
	f, _ := domain.ParseImageFormat(token)
	return f.MIMEType()
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func uploadLimitMessage(limit int64) string {
	return fmt.Sprintf("upload exceeds the %s limit", humanize.IBytes(uint64(limit)))
}
