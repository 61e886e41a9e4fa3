package queue

import (
	"testing"
	"time"

	"github.com/dunamismax/mediaflow/internal/domain"
)

func TestConvertImageTaskRoundTrip(t *testing.T) {
	req := domain.NewImageRequest("/srv/uploads/images/1a2b3c4d_photo.png", "1a2b3c4d_photo.png", "webp")
	req.Width = 640
	payload := ConvertImagePayload{
		JobID:       "job-123",
		WebhookURL:  "https://hooks.example.com/done",
		Request:     req,
		RequestedAt: time.Now().UTC(),
	}

	task, err := NewConvertImageTask(payload)
	if err != nil {
		t.Fatalf("NewConvertImageTask returned error: %v", err)
	}
	if task.Type() != TypeConvertImage {
		t.Fatalf("expected task type %q, got %q", TypeConvertImage, task.Type())
	}

	parsed, err := ParseConvertImagePayload(task)
	if err != nil {
		t.Fatalf("ParseConvertImagePayload returned error: %v", err)
	}

	if parsed.JobID != payload.JobID {
		t.Fatalf("expected job_id %q, got %q", payload.JobID, parsed.JobID)
	}
	if parsed.Request.Width != 640 || parsed.Request.Quality != domain.DefaultQuality {
		t.Fatalf("request parameters lost: %+v", parsed.Request)
	}
}

func TestConvertSubtitleTaskRoundTrip(t *testing.T) {
	req := domain.NewSubtitleRequest("/srv/uploads/subtitles/movie.srt", "movie.srt", "vtt")
	req.Encoding = "cp949"

	task, err := NewConvertSubtitleTask(ConvertSubtitlePayload{JobID: "job-9", Request: req})
	if err != nil {
		t.Fatalf("NewConvertSubtitleTask returned error: %v", err)
	}

	parsed, err := ParseConvertSubtitlePayload(task)
	if err != nil {
		t.Fatalf("ParseConvertSubtitlePayload returned error: %v", err)
	}
	if parsed.Request.Encoding != "cp949" || parsed.Request.TargetFormat != "vtt" {
		t.Fatalf("request parameters lost: %+v", parsed.Request)
	}
}
