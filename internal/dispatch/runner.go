package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/contentpilot-ai/contentpilot/internal/domain/models"
	"github.com/contentpilot-ai/contentpilot/internal/generation"
	"github.com/contentpilot-ai/contentpilot/internal/pkg/config"
	"github.com/contentpilot-ai/contentpilot/internal/pkg/metrics"
	"github.com/contentpilot-ai/contentpilot/internal/pkg/queue"
	"github.com/contentpilot-ai/contentpilot/internal/recurrence"
)

var (
	ErrScheduleInactive = errors.New("schedule is not active")
	ErrScheduleNotArmed = errors.New("schedule has no next run time")
	ErrClaimLost        = errors.New("schedule claimed by another dispatcher")
	ErrCreditsExhausted = errors.New("credit balance exhausted")
)

// ScheduleStore is the persistence surface the runner needs. The CAS
// semantics of Claim are what make concurrent trigger paths safe.
type ScheduleStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Schedule, error)
	FindDue(ctx context.Context, limit int) ([]models.Schedule, error)
	Claim(ctx context.Context, id uuid.UUID, expectedNextRun time.Time, lease time.Duration) (bool, error)
	RecordSuccess(ctx context.Context, id uuid.UUID, nextRun *time.Time, messageID *string) error
	RecordFailure(ctx context.Context, id uuid.UUID, message string, nextRun time.Time, messageID *string) error
	Deactivate(ctx context.Context, id uuid.UUID, reason string) error
}

// CreditGate guards dispatch against exhausted balances. Reserve runs before
// generation and returns ErrCreditsExhausted on an empty balance; Commit
// decrements only after a successful generation and reports the remainder.
type CreditGate interface {
	Reserve(ctx context.Context, schedule *models.Schedule) error
	Commit(ctx context.Context, schedule *models.Schedule) (int, error)
}

type Invoker interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Result, error)
}

// DelayQueue is the single-shot message provider that fires the queue trigger
// path. Re-arming is always cancel-then-create.
type DelayQueue interface {
	ScheduleDispatchAt(ctx context.Context, payload queue.DispatchPayload, at time.Time) (string, error)
	CancelDispatch(ctx context.Context, messageID string) error
}

type LogStore interface {
	Append(ctx context.Context, entry *models.GenerationLog) error
}

type ArticleStore interface {
	Put(ctx context.Context, ownerID, scheduleID uuid.UUID, content string) (string, error)
}

// Outcome reports one completed dispatch back to the trigger path.
type Outcome struct {
	ScheduleID       uuid.UUID
	JobID            string
	NextRun          *time.Time
	NextMessageID    *string
	CreditsRemaining int
	Duration         time.Duration
}

// Result is one schedule's entry in a polling pass summary.
type Result struct {
	ScheduleID uuid.UUID `json:"schedule_id"`
	Success    bool      `json:"success"`
	Skipped    bool      `json:"skipped,omitempty"`
	Error      string    `json:"error,omitempty"`
	JobID      string    `json:"job_id,omitempty"`
}

// Summary aggregates one polling pass over all due schedules.
type Summary struct {
	Executed   int      `json:"executed"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Skipped    int      `json:"skipped"`
	Results    []Result `json:"results"`
}

// Runner executes dispatches. All three trigger paths (webhook, polling,
// delay queue) converge on Dispatch, so claim, credit, failure and re-arm
// semantics are identical no matter who fired.
type Runner struct {
	store    ScheduleStore
	credits  CreditGate
	invoker  Invoker
	delayq   DelayQueue
	logs     LogStore
	articles ArticleStore
	cfg      config.DispatchConfig
}

func NewRunner(
	store ScheduleStore,
	credits CreditGate,
	invoker Invoker,
	delayq DelayQueue,
	logs LogStore,
	articles ArticleStore,
	cfg config.DispatchConfig,
) *Runner {
	return &Runner{
		store:    store,
		credits:  credits,
		invoker:  invoker,
		delayq:   delayq,
		logs:     logs,
		articles: articles,
		cfg:      cfg,
	}
}

// Dispatch runs one schedule end to end: claim, credit check, generation,
// bookkeeping, re-arm. Callers distinguish ErrClaimLost (someone else ran
// it), ErrCreditsExhausted (billing) and generation failures (retried later
// by the failure policy).
func (r *Runner) Dispatch(ctx context.Context, scheduleID uuid.UUID, trigger string) (*Outcome, error) {
	started := time.Now()

	schedule, err := r.store.FindByID(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	if !schedule.IsActive {
		return nil, ErrScheduleInactive
	}
	if schedule.NextRunAt == nil {
		return nil, ErrScheduleNotArmed
	}

	claimed, err := r.store.Claim(ctx, schedule.ID, *schedule.NextRunAt, r.cfg.ClaimLease)
	if err != nil {
		return nil, fmt.Errorf("failed to claim schedule: %w", err)
	}
	if !claimed {
		metrics.SchedulesClaimLost.Inc()
		log.Debug().
			Str("schedule_id", schedule.ID.String()).
			Str("trigger", trigger).
			Msg("Dispatch skipped, schedule already claimed")
		return nil, ErrClaimLost
	}

	if err := r.credits.Reserve(ctx, schedule); err != nil {
		if errors.Is(err, ErrCreditsExhausted) {
			metrics.CreditDenialsTotal.Inc()
			metrics.DispatchesTotal.WithLabelValues(trigger, "denied").Inc()
			r.appendLog(ctx, schedule, models.GenerationStatusFailed, "credit balance exhausted", nil, nil, trigger, started)
		}
		return nil, err
	}

	genCtx, cancel := context.WithTimeout(ctx, r.cfg.GenerationTimeout)
	result, genErr := r.invoker.Generate(genCtx, generation.Request{
		ScheduleID: schedule.ID,
		OwnerID:    schedule.OwnerID,
		WebsiteURL: schedule.WebsiteURL,
		Topics:     schedule.Topics,
		Trigger:    trigger,
	})
	cancel()

	if genErr != nil {
		return nil, r.handleFailure(ctx, schedule, trigger, genErr, started)
	}

	outcome, err := r.handleSuccess(ctx, schedule, trigger, result, started)
	if err != nil {
		return nil, err
	}

	metrics.DispatchesTotal.WithLabelValues(trigger, "success").Inc()
	metrics.DispatchDuration.WithLabelValues(trigger).Observe(time.Since(started).Seconds())

	log.Info().
		Str("schedule_id", schedule.ID.String()).
		Str("trigger", trigger).
		Str("job_id", outcome.JobID).
		Dur("duration", outcome.Duration).
		Msg("Dispatch completed")

	return outcome, nil
}

func (r *Runner) handleSuccess(ctx context.Context, schedule *models.Schedule, trigger string, result *generation.Result, started time.Time) (*Outcome, error) {
	var contentKey *string
	if r.articles != nil && result.Content != "" {
		key, err := r.articles.Put(ctx, schedule.OwnerID, schedule.ID, result.Content)
		if err != nil {
			// The article was generated and published upstream; losing the
			// archive copy does not fail the dispatch.
			log.Warn().Err(err).
				Str("schedule_id", schedule.ID.String()).
				Msg("Failed to archive generated article")
		} else {
			contentKey = &key
		}
	}

	remaining, err := r.credits.Commit(ctx, schedule)
	if err != nil {
		log.Error().Err(err).
			Str("owner_id", schedule.OwnerID.String()).
			Msg("Failed to commit credit consumption")
	}

	outcome := &Outcome{
		ScheduleID:       schedule.ID,
		JobID:            result.JobID,
		CreditsRemaining: remaining,
	}

	if !schedule.Recurring() {
		r.cancelPending(ctx, schedule)
		if err := r.store.Deactivate(ctx, schedule.ID, "completed"); err != nil {
			return nil, fmt.Errorf("failed to complete one-shot schedule: %w", err)
		}
		if err := r.store.RecordSuccess(ctx, schedule.ID, nil, nil); err != nil {
			return nil, fmt.Errorf("failed to record success: %w", err)
		}
		r.appendLog(ctx, schedule, models.GenerationStatusSuccess, "generated: "+result.Title, contentKey, resultMeta(result), trigger, started)
		outcome.Duration = time.Since(started)
		return outcome, nil
	}

	next, err := recurrence.Next(recurrence.FromSchedule(schedule), time.Now())
	if err != nil {
		// The stored rule no longer computes. Never guess a next run; pause
		// and surface the reason.
		r.cancelPending(ctx, schedule)
		if derr := r.store.Deactivate(ctx, schedule.ID, "invalid recurrence: "+err.Error()); derr != nil {
			return nil, fmt.Errorf("failed to pause schedule with invalid recurrence: %w", derr)
		}
		if serr := r.store.RecordSuccess(ctx, schedule.ID, nil, nil); serr != nil {
			return nil, fmt.Errorf("failed to record success: %w", serr)
		}
		r.appendLog(ctx, schedule, models.GenerationStatusSuccess, "generated: "+result.Title, contentKey, resultMeta(result), trigger, started)
		outcome.Duration = time.Since(started)
		return outcome, nil
	}

	messageID := r.rearm(ctx, schedule, next)

	if err := r.store.RecordSuccess(ctx, schedule.ID, &next, messageID); err != nil {
		return nil, fmt.Errorf("failed to record success: %w", err)
	}
	r.appendLog(ctx, schedule, models.GenerationStatusSuccess, "generated: "+result.Title, contentKey, resultMeta(result), trigger, started)

	outcome.NextRun = &next
	outcome.NextMessageID = messageID
	outcome.Duration = time.Since(started)
	return outcome, nil
}

func (r *Runner) handleFailure(ctx context.Context, schedule *models.Schedule, trigger string, genErr error, started time.Time) error {
	metrics.GenerationFailuresTotal.Inc()
	metrics.DispatchesTotal.WithLabelValues(trigger, "failed").Inc()

	failures := schedule.FailureCount + 1

	if failures >= r.cfg.MaxConsecutiveFailures {
		r.cancelPending(ctx, schedule)
		reason := fmt.Sprintf("auto-paused after %d consecutive failures", failures)
		if err := r.store.Deactivate(ctx, schedule.ID, reason); err != nil {
			log.Error().Err(err).Str("schedule_id", schedule.ID.String()).Msg("Failed to auto-pause schedule")
		}
		if err := r.store.RecordFailure(ctx, schedule.ID, genErr.Error(), time.Now(), nil); err != nil {
			log.Error().Err(err).Str("schedule_id", schedule.ID.String()).Msg("Failed to record failure")
		}
		r.appendLog(ctx, schedule, models.GenerationStatusFailed, genErr.Error(), nil, nil, trigger, started)

		log.Warn().
			Str("schedule_id", schedule.ID.String()).
			Int("failures", failures).
			Msg("Schedule auto-paused")
		return fmt.Errorf("generation failed, schedule auto-paused: %w", genErr)
	}

	retryAt := time.Now().Add(RetryDelay(failures, r.cfg.RetryBaseDelay, r.cfg.RetryMaxDelay))
	messageID := r.rearm(ctx, schedule, retryAt)

	if err := r.store.RecordFailure(ctx, schedule.ID, genErr.Error(), retryAt, messageID); err != nil {
		log.Error().Err(err).Str("schedule_id", schedule.ID.String()).Msg("Failed to record failure")
	}
	r.appendLog(ctx, schedule, models.GenerationStatusFailed, genErr.Error(), nil, nil, trigger, started)

	log.Warn().
		Err(genErr).
		Str("schedule_id", schedule.ID.String()).
		Int("failures", failures).
		Time("retry_at", retryAt).
		Msg("Dispatch failed, retry scheduled")

	return fmt.Errorf("generation failed: %w", genErr)
}

// rearm replaces the schedule's pending single-shot message with one firing
// at the given time. The delay queue is a best-effort second trigger; the
// polling path still catches the schedule if this fails.
func (r *Runner) rearm(ctx context.Context, schedule *models.Schedule, at time.Time) *string {
	if r.delayq == nil {
		return nil
	}

	r.cancelPending(ctx, schedule)

	id, err := r.delayq.ScheduleDispatchAt(ctx, queue.DispatchPayload{
		ScheduleID:  schedule.ID,
		WebsiteURL:  schedule.WebsiteURL,
		ScheduledAt: at,
	}, at)
	if err != nil {
		log.Warn().Err(err).
			Str("schedule_id", schedule.ID.String()).
			Time("at", at).
			Msg("Failed to arm delay-queue message")
		return nil
	}
	return &id
}

func (r *Runner) cancelPending(ctx context.Context, schedule *models.Schedule) {
	if r.delayq == nil || schedule.ExternalMessageID == nil {
		return
	}
	if err := r.delayq.CancelDispatch(ctx, *schedule.ExternalMessageID); err != nil {
		log.Warn().Err(err).
			Str("schedule_id", schedule.ID.String()).
			Str("message_id", *schedule.ExternalMessageID).
			Msg("Failed to cancel pending delay-queue message")
	}
}

// resultMeta captures the upstream job details on the log entry.
func resultMeta(result *generation.Result) models.JSON {
	return models.JSON{
		"job_id":     result.JobID,
		"word_count": result.WordCount,
	}
}

func (r *Runner) appendLog(ctx context.Context, schedule *models.Schedule, status, message string, contentKey *string, meta models.JSON, trigger string, started time.Time) {
	entry := &models.GenerationLog{
		ScheduleID: schedule.ID,
		OwnerID:    schedule.OwnerID,
		Status:     status,
		Message:    message,
		ContentKey: contentKey,
		Metadata:   meta,
		Trigger:    trigger,
		DurationMs: int(time.Since(started).Milliseconds()),
	}
	if err := r.logs.Append(ctx, entry); err != nil {
		log.Error().Err(err).
			Str("schedule_id", schedule.ID.String()).
			Msg("Failed to append generation log")
	}
}

// RunDue is the polling trigger path: find everything due and dispatch each
// schedule with bounded concurrency. Claim losses are reported as skips,
// at-least-once overlap with the other trigger paths is expected.
func (r *Runner) RunDue(ctx context.Context) (*Summary, error) {
	due, err := r.store.FindDue(ctx, r.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}

	metrics.SchedulesDue.Set(float64(len(due)))

	summary := &Summary{Results: make([]Result, 0, len(due))}
	if len(due) == 0 {
		return summary, nil
	}

	log.Info().Int("due", len(due)).Msg("Polling pass started")

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, r.maxConcurrency())

	for i := range due {
		schedule := due[i]

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			// In-flight workers still append to the summary; wait for them
			// before handing it to the caller.
			wg.Wait()
			return summary, ctx.Err()
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := r.Dispatch(ctx, schedule.ID, models.TriggerCron)

			mu.Lock()
			defer mu.Unlock()

			res := Result{ScheduleID: schedule.ID}
			switch {
			case err == nil:
				summary.Executed++
				summary.Successful++
				res.Success = true
				res.JobID = outcome.JobID
			case errors.Is(err, ErrClaimLost), errors.Is(err, ErrScheduleInactive):
				summary.Skipped++
				res.Skipped = true
			default:
				summary.Executed++
				summary.Failed++
				res.Error = err.Error()
			}
			summary.Results = append(summary.Results, res)
		}()
	}

	wg.Wait()

	log.Info().
		Int("executed", summary.Executed).
		Int("successful", summary.Successful).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Msg("Polling pass finished")

	return summary, nil
}

func (r *Runner) maxConcurrency() int {
	if r.cfg.MaxConcurrency < 1 {
		return 1
	}
	return r.cfg.MaxConcurrency
}
