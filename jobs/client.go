package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueBackfill enqueues a created_by backfill task. A payload naming one
// company is deduplicated for an hour so repeated manual triggers collapse.
func (c *Client) EnqueueBackfill(ctx context.Context, payload BackfillPayload) (*asynq.TaskInfo, error) {
	task, err := NewBackfillTask(payload)
	if err != nil {
		return nil, err
	}
	var opts []asynq.Option
	if payload.CompanyID != "" {
		opts = append(opts, asynq.Unique(time.Hour))
	}
	return c.client.EnqueueContext(ctx, task, opts...)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
