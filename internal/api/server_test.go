package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dunamismax/mediaflow/internal/domain"
	"github.com/dunamismax/mediaflow/internal/pipeline"
	"github.com/dunamismax/mediaflow/internal/queue"
	"github.com/dunamismax/mediaflow/internal/ratelimit"
	"github.com/dunamismax/mediaflow/internal/store"
	"github.com/dunamismax/mediaflow/internal/subtitle"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

func TestStatusAndFormats(t *testing.T) {
	srv := newTestServer(t, Options{}, &stubImages{}, &stubSubtitles{})

	rec := do(t, srv, http.MethodGet, "/api/status", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status map[string]any
	decodeBody(t, rec, &status)
	if status["status"] != "online" {
		t.Fatalf("expected online status, got %v", status["status"])
	}

	rec = do(t, srv, http.MethodGet, "/api/formats", nil, "")
	var formats map[string][]string
	decodeBody(t, rec, &formats)
	if !contains(formats["images"], "heic") || !contains(formats["subtitles"], "ssa") {
		t.Fatalf("unexpected formats %v", formats)
	}
}

func TestConvertImageEndToEnd(t *testing.T) {
	processor, err := pipeline.NewProcessor(pipeline.DefaultOptions(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	srv := newTestServer(t, Options{}, processor, subtitle.NewConverter(zerolog.Nop()))

	body, contentType := multipartBody(t, "photo.png", buildPNG(t, 100, 50), map[string]string{
		"format": "jpg",
		"width":  "50",
	})
	rec := do(t, srv, http.MethodPost, "/api/convert-image", body, contentType)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp conversionResponse
	decodeBody(t, rec, &resp)
	if !resp.Success || resp.Format != "JPG" || resp.OriginalName != "photo.png" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Width != 50 || resp.Height != 25 {
		t.Fatalf("expected 50x25, got %dx%d", resp.Width, resp.Height)
	}
	if !strings.HasPrefix(resp.DownloadURL, "/api/download/images/") || !strings.HasSuffix(resp.ConvertedName, ".jpg") {
		t.Fatalf("unexpected download target %s (%s)", resp.DownloadURL, resp.ConvertedName)
	}

	rec = do(t, srv, http.MethodGet, resp.DownloadURL, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected download 200, got %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment") {
		t.Fatalf("expected attachment disposition, got %q", cd)
	}
	img, err := jpeg.Decode(rec.Body)
	if err != nil {
		t.Fatalf("decode downloaded jpeg: %v", err)
	}
	if img.Bounds().Dx() != 50 {
		t.Fatalf("expected width 50, got %d", img.Bounds().Dx())
	}
}

func TestConvertSubtitleEndToEnd(t *testing.T) {
	srv := newTestServer(t, Options{}, &stubImages{}, subtitle.NewConverter(zerolog.Nop()))

	srt := "1\r\n00:00:01,000 --> 00:00:02,000\r\nHello\r\n\r\n"
	body, contentType := multipartBody(t, "movie.srt", []byte(srt), map[string]string{"format": "vtt"})
	rec := do(t, srv, http.MethodPost, "/api/convert-subtitle", body, contentType)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp conversionResponse
	decodeBody(t, rec, &resp)
	if resp.Format != "VTT" || !strings.HasPrefix(resp.DownloadURL, "/api/download/subtitles/") {
		t.Fatalf("unexpected response %+v", resp)
	}

	rec = do(t, srv, http.MethodGet, resp.DownloadURL, nil, "")
	want := "WEBVTT\n\n00:00:01.000 --> 00:00:02.000\nHello\n\n"
	if rec.Body.String() != want {
		t.Fatalf("unexpected vtt output:\n%q\nwant\n%q", rec.Body.String(), want)
	}
}

func TestConvertRejectsBadRequests(t *testing.T) {
	cases := []struct {
		name     string
		path     string
		filename string
		fields   map[string]string
		status   int
		kind     domain.ErrorKind
	}{
		{
			name:   "missing file",
			path:   "/api/convert-image",
			fields: map[string]string{"format": "png"},
			status: http.StatusBadRequest,
			kind:   domain.KindMissingFile,
		},
		{
			name:     "unsupported target",
			path:     "/api/convert-image",
			filename: "photo.png",
			fields:   map[string]string{"format": "psd"},
			status:   http.StatusBadRequest,
			kind:     domain.KindUnsupportedFormat,
		},
		{
			name:     "unsupported source",
			path:     "/api/convert-image",
			filename: "report.pdf",
			fields:   map[string]string{"format": "png"},
			status:   http.StatusBadRequest,
			kind:     domain.KindUnsupportedFormat,
		},
		{
			name:     "non-integer width",
			path:     "/api/convert-image",
			filename: "photo.png",
			fields:   map[string]string{"format": "png", "width": "wide"},
			status:   http.StatusBadRequest,
			kind:     domain.KindInvalidParameter,
		},
		{
			name:     "quality out of range",
			path:     "/api/convert-image",
			filename: "photo.png",
			fields:   map[string]string{"format": "jpg", "quality": "101"},
			status:   http.StatusBadRequest,
			kind:     domain.KindInvalidParameter,
		},
		{
			name:     "missing subtitle target",
			path:     "/api/convert-subtitle",
			filename: "movie.srt",
			fields:   map[string]string{},
			status:   http.StatusBadRequest,
			kind:     domain.KindUnsupportedFormat,
		},
		{
			name:     "async without queue",
			path:     "/api/convert-subtitle",
			filename: "movie.srt",
			fields:   map[string]string{"format": "vtt", "async": "true"},
			status:   http.StatusBadRequest,
			kind:     domain.KindInvalidParameter,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uploadDir := t.TempDir()
			srv := newTestServer(t, Options{UploadDir: uploadDir}, &stubImages{}, &stubSubtitles{})

			var content []byte
			if tc.filename != "" {
				content = []byte("payload")
			}
			body, contentType := multipartBody(t, tc.filename, content, tc.fields)
			rec := do(t, srv, http.MethodPost, tc.path, body, contentType)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}

			var resp errorResponse
			decodeBody(t, rec, &resp)
			if resp.Success || resp.Kind != tc.kind {
				t.Fatalf("expected kind %s, got %+v", tc.kind, resp)
			}

			if tc.name != "async without queue" && countFiles(t, uploadDir) != 0 {
				t.Fatal("rejected request must not stage an upload")
			}
		})
	}
}

func TestConvertFailureStatus(t *testing.T) {
	cases := []struct {
		kind   domain.ErrorKind
		status int
	}{
		{domain.KindDecodeFailure, http.StatusBadRequest},
		{domain.KindParseFailure, http.StatusBadRequest},
		{domain.KindEncodeFailure, http.StatusInternalServerError},
		{domain.KindUnexpected, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		images := &stubImages{result: domain.Failed(domain.Errorf(tc.kind, "stub failure"))}
		srv := newTestServer(t, Options{}, images, &stubSubtitles{})

		body, contentType := multipartBody(t, "photo.png", []byte("x"), map[string]string{"format": "gif"})
		rec := do(t, srv, http.MethodPost, "/api/convert-image", body, contentType)
		if rec.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.kind, tc.status, rec.Code)
		}
		if images.got.Quality != domain.DefaultQuality {
			t.Fatalf("expected default quality %d, got %d", domain.DefaultQuality, images.got.Quality)
		}
	}
}

func TestUploadTooLarge(t *testing.T) {
	srv := newTestServer(t, Options{MaxUploadBytes: 1024}, &stubImages{}, &stubSubtitles{})

	body, contentType := multipartBody(t, "photo.png", bytes.Repeat([]byte{0xAB}, 4096), map[string]string{"format": "jpg"})
	rec := do(t, srv, http.MethodPost, "/api/convert-image", body, contentType)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestDownloadRejectsBadPaths(t *testing.T) {
	srv := newTestServer(t, Options{}, &stubImages{}, &stubSubtitles{})

	if rec := do(t, srv, http.MethodGet, "/api/download/etc/passwd", nil, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown folder, got %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/api/download/images/missing.png", nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing file, got %d", rec.Code)
	}
}

func TestAsyncConversionQueuesJob(t *testing.T) {
	jobStore := store.NewMemoryJobStore()
	enqueuer := &captureEnqueuer{}
	srv := newTestServer(t, Options{}, &stubImages{}, &stubSubtitles{}, WithQueue(enqueuer, jobStore))

	body, contentType := multipartBody(t, "photo.png", []byte("x"), map[string]string{
		"format":      "webp",
		"width":       "320",
		"async":       "true",
		"webhook_url": "https://hooks.example.com/done",
	})
	rec := do(t, srv, http.MethodPost, "/api/convert-image", body, contentType)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp queuedResponse
	decodeBody(t, rec, &resp)
	if resp.JobID == "" || resp.Status != domain.JobStatusQueued {
		t.Fatalf("unexpected queued response %+v", resp)
	}
	if len(enqueuer.images) != 1 || enqueuer.images[0].Request.Width != 320 {
		t.Fatalf("expected one enqueued image task, got %+v", enqueuer.images)
	}
	if _, err := os.Stat(enqueuer.images[0].Request.SourcePath); err != nil {
		t.Fatalf("expected staged upload for queued job: %v", err)
	}

	rec = do(t, srv, http.MethodGet, resp.StatusURL, nil, "")
	var got struct {
		Job domain.Job `json:"job"`
	}
	decodeBody(t, rec, &got)
	if got.Job.Status != domain.JobStatusQueued || got.Job.WebhookURL != "https://hooks.example.com/done" {
		t.Fatalf("unexpected job %+v", got.Job)
	}

	if _, err := jobStore.Complete(context.Background(), resp.JobID, domain.Succeeded(domain.Success{
		OutputPath: "/srv/uploads/images/photo_0a1b2c3d.webp",
		Format:     "WEBP",
	})); err != nil {
		t.Fatalf("complete job: %v", err)
	}
	rec = do(t, srv, http.MethodGet, resp.StatusURL, nil, "")
	if strings.Contains(rec.Body.String(), "/srv/uploads") {
		t.Fatalf("job response leaks the server path: %s", rec.Body.String())
	}
	var done struct {
		Job         domain.Job `json:"job"`
		DownloadURL string     `json:"download_url"`
	}
	decodeBody(t, rec, &done)
	if done.DownloadURL != "/api/download/images/photo_0a1b2c3d.webp" {
		t.Fatalf("unexpected download url %v", done.DownloadURL)
	}
	if done.Job.Result == nil || done.Job.Result.Success.OutputPath != "photo_0a1b2c3d.webp" {
		t.Fatalf("expected output file name only, got %+v", done.Job.Result)
	}

	if rec := do(t, srv, http.MethodGet, "/api/jobs/unknown", nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", rec.Code)
	}
}

func TestAsyncEnqueueFailureMarksJobFailed(t *testing.T) {
	jobStore := store.NewMemoryJobStore()
	srv := newTestServer(t, Options{}, &stubImages{}, &stubSubtitles{}, WithQueue(&captureEnqueuer{err: errors.New("redis down")}, jobStore))

	body, contentType := multipartBody(t, "movie.srt", []byte("x"), map[string]string{"format": "ass", "async": "1"})
	rec := do(t, srv, http.MethodPost, "/api/convert-subtitle", body, contentType)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestRateLimitRejects(t *testing.T) {
	limiter := &stubLimiter{decision: ratelimit.Decision{
		Allowed:    false,
		Limit:      60,
		Remaining:  2,
		Cost:       4,
		RetryAfter: 2500 * time.Millisecond,
		ResetAfter: 58 * time.Second,
	}}
	srv := newTestServer(t, Options{}, &stubImages{}, &stubSubtitles{}, WithRateLimiter(limiter))

	body, contentType := multipartBody(t, "photo.png", []byte("x"), map[string]string{"format": "png"})
	rec := do(t, srv, http.MethodPost, "/api/convert-image", body, contentType)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "3" {
		t.Fatalf("expected Retry-After 3, got %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Limit") != "60" || rec.Header().Get("X-RateLimit-Reset") != "58" {
		t.Fatalf("unexpected rate limit headers %v", rec.Header())
	}
	if limiter.pipeline != domain.PipelineImage || limiter.clientID == "" {
		t.Fatalf("unexpected limiter call client=%q pipeline=%q", limiter.clientID, limiter.pipeline)
	}

	body, contentType = multipartBody(t, "movie.srt", []byte("x"), map[string]string{"format": "vtt"})
	do(t, srv, http.MethodPost, "/api/convert-subtitle", body, contentType)
	if limiter.pipeline != domain.PipelineSubtitle {
		t.Fatalf("subtitle conversions must be charged as %s, got %q", domain.PipelineSubtitle, limiter.pipeline)
	}

	if rec := do(t, srv, http.MethodGet, "/api/status", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("status must not be rate limited, got %d", rec.Code)
	}
}

func TestPublishAddsStorageKey(t *testing.T) {
	images := &stubImages{result: domain.Succeeded(domain.Success{
		OutputPath:    "/tmp/photo_0a1b2c3d.png",
		OriginalSize:  2048,
		ConvertedSize: 1024,
		Format:        "PNG",
	})}
	pub := &stubPublisher{key: "converted/images/photo_0a1b2c3d.png"}
	srv := newTestServer(t, Options{}, images, &stubSubtitles{}, WithPublisher(pub))

	body, contentType := multipartBody(t, "photo.jpg", []byte("x"), map[string]string{"format": "png"})
	rec := do(t, srv, http.MethodPost, "/api/convert-image", body, contentType)

	var resp conversionResponse
	decodeBody(t, rec, &resp)
	if resp.StorageKey != pub.key || pub.contentType != "image/png" || pub.folder != "images" {
		t.Fatalf("unexpected publish: resp=%+v pub=%+v", resp, pub)
	}
	if resp.OriginalSize != "2.0 KiB" || resp.ConvertedSize != "1.0 KiB" {
		t.Fatalf("unexpected sizes %s / %s", resp.OriginalSize, resp.ConvertedSize)
	}

	pub.err = errors.New("bucket unavailable")
	body, contentType = multipartBody(t, "photo.jpg", []byte("x"), map[string]string{"format": "png"})
	rec = do(t, srv, http.MethodPost, "/api/convert-image", body, contentType)
	if rec.Code != http.StatusOK {
		t.Fatalf("publish failure must not fail the request, got %d", rec.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := newTestServer(t, Options{}, panicImages{}, &stubSubtitles{})

	body, contentType := multipartBody(t, "photo.png", []byte("x"), map[string]string{"format": "png"})
	rec := do(t, srv, http.MethodPost, "/api/convert-image", body, contentType)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var resp errorResponse
	decodeBody(t, rec, &resp)
	if resp.Kind != domain.KindUnexpected {
		t.Fatalf("expected Unexpected, got %s", resp.Kind)
	}
}

func TestMetricsEndpointUsesRoutePatterns(t *testing.T) {
	srv := newTestServer(t, Options{}, &stubImages{}, &stubSubtitles{})
	do(t, srv, http.MethodGet, "/api/download/images/missing.png", nil, "")

	rec := do(t, srv, http.MethodGet, "/metrics", nil, "")
	out := rec.Body.String()
	if !strings.Contains(out, "mediaflow_api_requests_total") {
		t.Fatal("expected request counter in metrics output")
	}
	if !strings.Contains(out, `route="/api/download/{folder}/{filename}"`) {
		t.Fatal("expected chi route pattern as route label")
	}
}

func TestSafeFilename(t *testing.T) {
	cases := map[string]string{
		"photo.PNG":           "photo.png",
		"My Photo (1).jpg":    "My_Photo_1.jpg",
		"../../etc/passwd":    "passwd",
		`C:\Users\me\pic.gif`: "pic.gif",
		"café.webp":           "cafe.webp",
		"사진.heic":             "upload.heic",
		"..":                  "upload",
		"archive.tar.gz":      "archive_tar.gz",
	}
	for in, want := range cases {
		if got := safeFilename(in); got != want {
			t.Errorf("safeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func newTestServer(t *testing.T, opts Options, images ImageConverter, subtitles SubtitleConverter, options ...Option) *Server {
	t.Helper()
	if opts.UploadDir == "" {
		opts.UploadDir = t.TempDir()
	}
	srv, err := NewServer(zerolog.Nop(), opts, images, subtitles, options...)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv
}

func do(t *testing.T, srv *Server, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func multipartBody(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func buildPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func countFiles(t *testing.T, root string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(root, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	return n
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

type stubImages struct {
	result domain.Result
	got    domain.ImageRequest
}

func (s *stubImages) ConvertImage(_ context.Context, req domain.ImageRequest) domain.Result {
	s.got = req
	if !s.result.OK() && s.result.Failure == nil {
		return domain.Succeeded(domain.Success{OutputPath: req.SourcePath, Format: "PNG"})
	}
	return s.result
}

type panicImages struct{}

func (panicImages) ConvertImage(context.Context, domain.ImageRequest) domain.Result {
	panic("converter exploded")
}

type stubSubtitles struct{}

func (stubSubtitles) ConvertSubtitle(_ context.Context, req domain.SubtitleRequest) domain.Result {
	return domain.Succeeded(domain.Success{OutputPath: req.SourcePath, Format: "WebVTT"})
}

type captureEnqueuer struct {
	images    []queue.ConvertImagePayload
	subtitles []queue.ConvertSubtitlePayload
	err       error
}

func (c *captureEnqueuer) EnqueueConvertImage(_ context.Context, p queue.ConvertImagePayload) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.images = append(c.images, p)
	return &asynq.TaskInfo{ID: p.JobID, Queue: "conversions"}, nil
}

func (c *captureEnqueuer) EnqueueConvertSubtitle(_ context.Context, p queue.ConvertSubtitlePayload) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.subtitles = append(c.subtitles, p)
	return &asynq.TaskInfo{ID: p.JobID, Queue: "conversions"}, nil
}

type stubLimiter struct {
	decision ratelimit.Decision
	clientID string
	pipeline string
}

func (l *stubLimiter) Allow(_ context.Context, clientID, pipeline string) (ratelimit.Decision, error) {
	l.clientID = clientID
	l.pipeline = pipeline
	return l.decision, nil
}

type stubPublisher struct {
	key         string
	err         error
	folder      string
	contentType string
}

func (p *stubPublisher) Upload(_ context.Context, folder, _ string, contentType string) (string, error) {
	p.folder = folder
	p.contentType = contentType
	if p.err != nil {
		return "", p.err
	}
	return p.key, nil
}
