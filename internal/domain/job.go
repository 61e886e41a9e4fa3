package domain

import (
	"path/filepath"
	"strings"
	"time"
)

const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	PipelineImage    = "image"
	PipelineSubtitle = "subtitle"
)

// Job tracks one queued conversion. Result is set once the job reaches a
// terminal status.
type Job struct {
	ID             string    `json:"id"`
	Pipeline       string    `json:"pipeline"`
	Status         string    `json:"status"`
	SourceFilename string    `json:"source_filename"`
	TargetFormat   string    `json:"target_format"`
	WebhookURL     string    `json:"webhook_url,omitempty"`
	Result         *Result   `json:"result,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (j Job) Terminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}

// Public returns a copy safe to hand to clients: a successful result keeps
// only the output's file name, not its server path.
func (j Job) Public() Job {
	if j.Result == nil || j.Result.Success == nil {
		return j
	}
	success := *j.Result.Success
	success.OutputPath = filepath.Base(success.OutputPath)
	j.Result = &Result{Success: &success}
	return j
}

// StatusFor maps a finished conversion to its terminal job status.
func StatusFor(r Result) string {
	if r.OK() {
		return JobStatusSucceeded
	}
	return JobStatusFailed
}

func ValidPipeline(p string) bool {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case PipelineImage, PipelineSubtitle:
		return true
	default:
		return false
	}
}
