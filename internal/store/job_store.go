package store

import (
	"context"
	"errors"

	"github.com/dunamismax/mediaflow/internal/domain"
)

var ErrJobNotFound = errors.New("job not found")

// JobStore persists queued conversion jobs. Complete records the final
// conversion result and moves the job to its terminal status.
type JobStore interface {
	Create(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, id string) (domain.Job, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Job, error)
	Complete(ctx context.Context, id string, result domain.Result) (domain.Job, error)
}
