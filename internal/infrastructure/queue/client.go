// Package queue wrap asynq client cho API process.
package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"accesslog-backend/internal/config"
	"accesslog-backend/internal/domains/accesslog/job"
	"accesslog-backend/internal/domains/accesslog/model"
)

// Client enqueue access log payload lên Redis; worker process
// (cmd/worker) consume và ghi DB. Implement middleware.Dispatcher.
type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.QueueConfig) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		}),
	}
}

func (c *Client) Dispatch(ctx context.Context, req model.CollectedRequest) error {
	task, err := job.NewIngestTask(req)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue("default"),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Second),
	)
	return err
}

func (c *Client) Close() error {
	return c.client.Close()
}
