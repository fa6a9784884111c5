package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/contentpilot-ai/contentpilot/internal/domain/models"
	"github.com/contentpilot-ai/contentpilot/internal/pkg/queue"
)

// TaskHandler adapts the runner to the delay-queue consumer. A dispatch that
// lost its claim, hit a paused schedule or an empty balance is done as far as
// the queue is concerned; only infrastructure errors are worth a queue-level
// retry.
func TaskHandler(runner *Runner) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload queue.DispatchPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("invalid dispatch payload: %v: %w", err, asynq.SkipRetry)
		}

		log.Debug().
			Str("schedule_id", payload.ScheduleID.String()).
			Time("scheduled_at", payload.ScheduledAt).
			Msg("Delay-queue dispatch fired")

		_, err := runner.Dispatch(ctx, payload.ScheduleID, models.TriggerQueue)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrClaimLost),
			errors.Is(err, ErrScheduleInactive),
			errors.Is(err, ErrScheduleNotArmed),
			errors.Is(err, ErrCreditsExhausted):
			// Settled by another trigger path or by billing; nothing to retry.
			return nil
		default:
			// The runner already booked the failure and armed its own retry.
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
	}
}
