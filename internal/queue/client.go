// Package queue wraps the asynq client behind the engine's enqueuer
// interfaces.
package queue

import (
	"context"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/branchcanvas/engine/internal/queue/tasks"
)

// Client enqueues background tasks.
type Client struct {
	inner *asynq.Client
}

func NewClient(redisAddr, redisPassword string) *Client {
	return &Client{inner: asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       0,
	})}
}

// EnqueueTitle schedules title generation for a conversation.
func (c *Client) EnqueueTitle(ctx context.Context, conversationID uuid.UUID) error {
	t, err := tasks.NewTitleTask(conversationID)
	if err != nil {
		return err
	}
	_, err = c.inner.EnqueueContext(ctx, t, asynq.MaxRetry(3))
	return err
}

// Close releases the underlying redis connection.
func (c *Client) Close() error { return c.inner.Close() }
