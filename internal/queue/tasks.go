package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dunamismax/mediaflow/internal/domain"
	"github.com/hibiken/asynq"
)

const (
	TypeConvertImage    = "convert:image"
	TypeConvertSubtitle = "convert:subtitle"
)

type ConvertImagePayload struct {
	JobID       string              `json:"job_id"`
	WebhookURL  string              `json:"webhook_url,omitempty"`
	Request     domain.ImageRequest `json:"request"`
	RequestedAt time.Time           `json:"requested_at"`
}

type ConvertSubtitlePayload struct {
	JobID       string                 `json:"job_id"`
	WebhookURL  string                 `json:"webhook_url,omitempty"`
	Request     domain.SubtitleRequest `json:"request"`
	RequestedAt time.Time              `json:"requested_at"`
}

func NewConvertImageTask(payload ConvertImagePayload) (*asynq.Task, error) {
	return newTask(TypeConvertImage, payload)
}

func NewConvertSubtitleTask(payload ConvertSubtitlePayload) (*asynq.Task, error) {
	return newTask(TypeConvertSubtitle, payload)
}

func ParseConvertImagePayload(task *asynq.Task) (ConvertImagePayload, error) {
	var payload ConvertImagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ConvertImagePayload{}, fmt.Errorf("unmarshal image payload: %w", err)
	}
	return payload, nil
}

func ParseConvertSubtitlePayload(task *asynq.Task) (ConvertSubtitlePayload, error) {
	var payload ConvertSubtitlePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ConvertSubtitlePayload{}, fmt.Errorf("unmarshal subtitle payload: %w", err)
	}
	return payload, nil
}

func newTask(typeName string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typeName, err)
	}
	return asynq.NewTask(typeName, body), nil
}
