package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/contentpilot-ai/contentpilot/internal/pkg/config"
)

const (
	TypeScheduleDispatch = "schedule:dispatch"
)

const (
	QueueDispatch = "dispatch"
	QueueDefault  = "default"
)

// Client is the delay-queue provider: a single-shot message published with a
// delay fires the dispatch for one schedule at its next run time. The
// returned handle is stored on the schedule for later cancellation.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func NewClient(cfg *config.RedisConfig) *Client {
	opt := asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	return &Client{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

type DispatchPayload struct {
	ScheduleID  uuid.UUID `json:"schedule_id"`
	WebsiteURL  string    `json:"website_url"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// ScheduleDispatchAt registers a single-shot dispatch at the given time and
// returns the provider's message handle.
func (c *Client) ScheduleDispatchAt(ctx context.Context, payload DispatchPayload, at time.Time) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	task := asynq.NewTask(TypeScheduleDispatch, data,
		asynq.Queue(QueueDispatch),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Retention(24*time.Hour),
	)

	info, err := c.client.EnqueueContext(ctx, task, asynq.ProcessAt(at))
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// CancelDispatch removes a previously registered single-shot dispatch. A
// handle that already fired or was never registered is not an error, so
// re-arming is cancel-then-recreate without a read first.
func (c *Client) CancelDispatch(ctx context.Context, messageID string) error {
	err := c.inspector.DeleteTask(QueueDispatch, messageID)
	if err != nil && !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
		return err
	}
	return nil
}
