package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

type Client struct {
	client   *asynq.Client
	queue    string
	maxRetry int
	timeout  time.Duration
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string, maxRetry int, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &Client{
		client:   asynq.NewClient(redisOpt),
		queue:    queueName,
		maxRetry: maxRetry,
		timeout:  timeout,
	}
}

func (c *Client) EnqueueConvertImage(ctx context.Context, payload ConvertImagePayload) (*asynq.TaskInfo, error) {
	task, err := NewConvertImageTask(payload)
	if err != nil {
		return nil, err
	}
	return c.enqueue(ctx, task, payload.JobID)
}

func (c *Client) EnqueueConvertSubtitle(ctx context.Context, payload ConvertSubtitlePayload) (*asynq.TaskInfo, error) {
	task, err := NewConvertSubtitleTask(payload)
	if err != nil {
		return nil, err
	}
	return c.enqueue(ctx, task, payload.JobID)
}

// The job id doubles as the task id so a job is never enqueued twice.
func (c *Client) enqueue(ctx context.Context, task *asynq.Task, jobID string) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.TaskID(jobID),
		asynq.MaxRetry(c.maxRetry),
		asynq.Timeout(c.timeout),
	)
}

func (c *Client) Close() error {
	return c.client.Close()
}
