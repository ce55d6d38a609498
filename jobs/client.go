package jobs

import (
	"context"

	"github.com/hibiken/asynq"
)

// Client enqueues GL tasks.
type Client struct {
	client *asynq.Client
}

func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueIntegrity asks the worker for an integrity run on behalf of requestedBy.
func (c *Client) EnqueueIntegrity(ctx context.Context, requestedBy string) (*asynq.TaskInfo, error) {
	task, err := NewIntegrityTask(requestedBy)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

func (c *Client) Close() error {
	return c.client.Close()
}
