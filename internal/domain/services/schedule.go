package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/contentpilot-ai/contentpilot/internal/domain/models"
	"github.com/contentpilot-ai/contentpilot/internal/domain/repositories"
	"github.com/contentpilot-ai/contentpilot/internal/pkg/queue"
	"github.com/contentpilot-ai/contentpilot/internal/recurrence"
)

var (
	ErrScheduleNotFound     = errors.New("schedule not found")
	ErrNotOwner             = errors.New("schedule belongs to another owner")
	ErrScheduleLimitReached = errors.New("plan schedule limit reached")
	ErrDuplicateRunDate     = errors.New("batch contains schedules resolving to the same run date")
)

type scheduleStore interface {
	Create(ctx context.Context, schedule *models.Schedule) error
	Upsert(ctx context.Context, schedule *models.Schedule) error
	Update(ctx context.Context, schedule *models.Schedule) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Schedule, error)
	FindByOwnerID(ctx context.Context, ownerID uuid.UUID, opts *repositories.ListOptions) ([]models.Schedule, int64, error)
	SetActive(ctx context.Context, id uuid.UUID, isActive bool) error
	UpdateNextRun(ctx context.Context, id uuid.UUID, nextRun time.Time, messageID *string) error
}

type generationLogStore interface {
	FindByScheduleID(ctx context.Context, scheduleID uuid.UUID, opts *repositories.ListOptions) ([]models.GenerationLog, int64, error)
}

type delayQueue interface {
	ScheduleDispatchAt(ctx context.Context, payload queue.DispatchPayload, at time.Time) (string, error)
	CancelDispatch(ctx context.Context, messageID string) error
}

type planStore interface {
	FindByPlanID(ctx context.Context, id string) (*models.Plan, error)
}

// ScheduleInput carries the caller-editable fields of a schedule. A supplied
// ID makes creation an upsert: re-posting the same id replaces the stored
// record instead of minting a second schedule.
type ScheduleInput struct {
	ID             *uuid.UUID `json:"id,omitempty"`
	WebsiteURL     string     `json:"website_url" validate:"required,url,max=500"`
	Frequency      string     `json:"frequency" validate:"required,frequency"`
	DayOfWeek      *int       `json:"day_of_week,omitempty" validate:"omitempty,min=0,max=6"`
	DayOfMonth     *int       `json:"day_of_month,omitempty" validate:"omitempty,min=1,max=31"`
	TimeOfDay      string     `json:"time_of_day" validate:"omitempty,time_of_day"`
	CronExpression *string    `json:"cron_expression,omitempty" validate:"omitempty,cron"`
	Timezone       string     `json:"timezone,omitempty"`
	Topics         []string   `json:"topics,omitempty" validate:"omitempty,max=20,dive,min=1,max=100"`
}

// ScheduleService owns the schedule lifecycle: create, update, pause, resume,
// delete. Every mutation that changes the next run time re-arms the delay
// queue with cancel-then-create.
type ScheduleService struct {
	schedules     scheduleStore
	logs          generationLogStore
	delayq        delayQueue
	plans         planStore
	subscriptions subscriptionStore
}

func NewScheduleService(
	schedules scheduleStore,
	logs generationLogStore,
	delayq delayQueue,
	plans planStore,
	subscriptions subscriptionStore,
) *ScheduleService {
	return &ScheduleService{
		schedules:     schedules,
		logs:          logs,
		delayq:        delayq,
		plans:         plans,
		subscriptions: subscriptions,
	}
}

func (s *ScheduleService) Create(ctx context.Context, ownerID uuid.UUID, input ScheduleInput) (*models.Schedule, error) {
	existing, err := s.existingForUpsert(ctx, ownerID, input.ID)
	if err != nil {
		return nil, err
	}

	adding := 1
	if existing != nil {
		// Replacing a stored record does not grow the owner's count.
		adding = 0
	}
	if err := s.checkScheduleLimit(ctx, ownerID, adding); err != nil {
		return nil, err
	}

	schedule, next, err := s.build(ownerID, input)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		schedule.CreatedAt = existing.CreatedAt
		s.cancelPending(ctx, existing)
	}

	if err := s.schedules.Upsert(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to create schedule: %w", err)
	}

	s.arm(ctx, schedule, next)

	log.Info().
		Str("schedule_id", schedule.ID.String()).
		Str("owner_id", ownerID.String()).
		Str("frequency", schedule.Frequency).
		Time("next_run", next).
		Msg("Schedule created")

	return schedule, nil
}

// CreateBatch creates several schedules at once. Two entries whose first runs
// land on the same calendar date are rejected before anything is written, so
// a batch either creates all of its schedules or none.
func (s *ScheduleService) CreateBatch(ctx context.Context, ownerID uuid.UUID, inputs []ScheduleInput) ([]models.Schedule, error) {
	if err := s.checkScheduleLimit(ctx, ownerID, len(inputs)); err != nil {
		return nil, err
	}

	built := make([]*models.Schedule, 0, len(inputs))
	firstRuns := make([]time.Time, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))

	for i, input := range inputs {
		schedule, next, err := s.build(ownerID, input)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}

		date := next.Format("2006-01-02")
		if _, dup := seen[date]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRunDate, date)
		}
		seen[date] = struct{}{}

		built = append(built, schedule)
		firstRuns = append(firstRuns, next)
	}

	created := make([]models.Schedule, 0, len(built))
	for i, schedule := range built {
		if err := s.schedules.Create(ctx, schedule); err != nil {
			return nil, fmt.Errorf("failed to create schedule %d: %w", i, err)
		}
		s.arm(ctx, schedule, firstRuns[i])
		created = append(created, *schedule)
	}

	log.Info().
		Str("owner_id", ownerID.String()).
		Int("count", len(created)).
		Msg("Schedule batch created")

	return created, nil
}

func (s *ScheduleService) Update(ctx context.Context, ownerID, id uuid.UUID, input ScheduleInput) (*models.Schedule, error) {
	schedule, err := s.getOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	rec, err := toRecurrence(input)
	if err != nil {
		return nil, err
	}
	next, err := recurrence.Next(rec, time.Now())
	if err != nil {
		return nil, err
	}

	schedule.WebsiteURL = input.WebsiteURL
	schedule.Frequency = input.Frequency
	schedule.DayOfWeek = input.DayOfWeek
	schedule.DayOfMonth = input.DayOfMonth
	schedule.TimeOfDay = input.TimeOfDay
	schedule.CronExpression = input.CronExpression
	schedule.Topics = models.StringArray(input.Topics)
	if input.Timezone != "" {
		schedule.Timezone = input.Timezone
	}
	schedule.NextRunAt = &next

	s.cancelPending(ctx, schedule)
	schedule.ExternalMessageID = nil

	if err := s.schedules.Update(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to update schedule: %w", err)
	}

	if schedule.IsActive {
		s.arm(ctx, schedule, next)
	}

	log.Info().
		Str("schedule_id", schedule.ID.String()).
		Time("next_run", next).
		Msg("Schedule updated")

	return schedule, nil
}

func (s *ScheduleService) Pause(ctx context.Context, ownerID, id uuid.UUID) error {
	schedule, err := s.getOwned(ctx, ownerID, id)
	if err != nil {
		return err
	}

	s.cancelPending(ctx, schedule)
	if err := s.schedules.SetActive(ctx, id, false); err != nil {
		return fmt.Errorf("failed to pause schedule: %w", err)
	}

	log.Info().Str("schedule_id", id.String()).Msg("Schedule paused")
	return nil
}

// Resume reactivates a paused schedule. The next run is recomputed from now
// rather than trusting the stale stored value.
func (s *ScheduleService) Resume(ctx context.Context, ownerID, id uuid.UUID) (*models.Schedule, error) {
	schedule, err := s.getOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	next, err := recurrence.Next(recurrence.FromSchedule(schedule), time.Now())
	if err != nil {
		return nil, err
	}

	if err := s.schedules.SetActive(ctx, id, true); err != nil {
		return nil, fmt.Errorf("failed to resume schedule: %w", err)
	}

	schedule.IsActive = true
	schedule.NextRunAt = &next
	s.arm(ctx, schedule, next)

	log.Info().
		Str("schedule_id", id.String()).
		Time("next_run", next).
		Msg("Schedule resumed")

	return schedule, nil
}

func (s *ScheduleService) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	schedule, err := s.getOwned(ctx, ownerID, id)
	if err != nil {
		return err
	}

	s.cancelPending(ctx, schedule)
	if err := s.schedules.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}

	log.Info().Str("schedule_id", id.String()).Msg("Schedule deleted")
	return nil
}

func (s *ScheduleService) Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Schedule, error) {
	return s.getOwned(ctx, ownerID, id)
}

func (s *ScheduleService) List(ctx context.Context, ownerID uuid.UUID, opts *repositories.ListOptions) ([]models.Schedule, int64, error) {
	return s.schedules.FindByOwnerID(ctx, ownerID, opts)
}

// History returns the schedule's generation log, newest first.
func (s *ScheduleService) History(ctx context.Context, ownerID, id uuid.UUID, opts *repositories.ListOptions) ([]models.GenerationLog, int64, error) {
	if _, err := s.getOwned(ctx, ownerID, id); err != nil {
		return nil, 0, err
	}
	return s.logs.FindByScheduleID(ctx, id, opts)
}

func (s *ScheduleService) build(ownerID uuid.UUID, input ScheduleInput) (*models.Schedule, time.Time, error) {
	rec, err := toRecurrence(input)
	if err != nil {
		return nil, time.Time{}, err
	}

	next, err := recurrence.Next(rec, time.Now())
	if err != nil {
		return nil, time.Time{}, err
	}

	timezone := input.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	id := uuid.New()
	if input.ID != nil {
		id = *input.ID
	}

	schedule := &models.Schedule{
		ID:             id,
		OwnerID:        ownerID,
		WebsiteURL:     input.WebsiteURL,
		Frequency:      input.Frequency,
		DayOfWeek:      input.DayOfWeek,
		DayOfMonth:     input.DayOfMonth,
		TimeOfDay:      input.TimeOfDay,
		CronExpression: input.CronExpression,
		Timezone:       timezone,
		Topics:         models.StringArray(input.Topics),
		IsActive:       true,
		NextRunAt:      &next,
	}
	return schedule, next, nil
}

// existingForUpsert resolves a client-supplied schedule id. A row owned by
// someone else is never replaceable; an unknown id falls through to a plain
// create under that id.
func (s *ScheduleService) existingForUpsert(ctx context.Context, ownerID uuid.UUID, id *uuid.UUID) (*models.Schedule, error) {
	if id == nil {
		return nil, nil
	}
	existing, err := s.schedules.FindByID(ctx, *id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	if existing.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	return existing, nil
}

func toRecurrence(input ScheduleInput) (recurrence.Recurrence, error) {
	rec := recurrence.Recurrence{
		Frequency:  input.Frequency,
		DayOfWeek:  input.DayOfWeek,
		DayOfMonth: input.DayOfMonth,
		TimeOfDay:  input.TimeOfDay,
		Timezone:   input.Timezone,
	}
	if input.CronExpression != nil {
		rec.CronExpression = *input.CronExpression
	}
	if err := recurrence.Validate(rec); err != nil {
		return recurrence.Recurrence{}, err
	}
	return rec, nil
}

// arm registers the single-shot delay-queue message for the next run and
// stores its handle. Arming is best effort; the polling trigger still covers
// a schedule whose message was never registered.
func (s *ScheduleService) arm(ctx context.Context, schedule *models.Schedule, at time.Time) {
	if s.delayq == nil {
		return
	}

	id, err := s.delayq.ScheduleDispatchAt(ctx, queue.DispatchPayload{
		ScheduleID:  schedule.ID,
		WebsiteURL:  schedule.WebsiteURL,
		ScheduledAt: at,
	}, at)
	if err != nil {
		log.Warn().Err(err).
			Str("schedule_id", schedule.ID.String()).
			Msg("Failed to arm delay-queue message")
		return
	}

	schedule.ExternalMessageID = &id
	if err := s.schedules.UpdateNextRun(ctx, schedule.ID, at, &id); err != nil {
		log.Error().Err(err).
			Str("schedule_id", schedule.ID.String()).
			Msg("Failed to store delay-queue handle")
	}
}

func (s *ScheduleService) cancelPending(ctx context.Context, schedule *models.Schedule) {
	if s.delayq == nil || schedule.ExternalMessageID == nil {
		return
	}
	if err := s.delayq.CancelDispatch(ctx, *schedule.ExternalMessageID); err != nil {
		log.Warn().Err(err).
			Str("schedule_id", schedule.ID.String()).
			Msg("Failed to cancel pending delay-queue message")
	}
}

func (s *ScheduleService) getOwned(ctx context.Context, ownerID, id uuid.UUID) (*models.Schedule, error) {
	schedule, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}
	if schedule.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	return schedule, nil
}

func (s *ScheduleService) checkScheduleLimit(ctx context.Context, ownerID uuid.UUID, adding int) error {
	if s.plans == nil || s.subscriptions == nil {
		return nil
	}

	sub, err := s.subscriptions.FindByOwnerID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load subscription: %w", err)
	}

	plan, err := s.plans.FindByPlanID(ctx, sub.PlanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load plan: %w", err)
	}

	// Negative limit means unlimited.
	if plan.SchedulesLimit < 0 {
		return nil
	}

	_, total, err := s.schedules.FindByOwnerID(ctx, ownerID, nil)
	if err != nil {
		return fmt.Errorf("failed to count schedules: %w", err)
	}

	if int(total)+adding > plan.SchedulesLimit {
		return fmt.Errorf("%w: plan %s allows %d", ErrScheduleLimitReached, plan.ID, plan.SchedulesLimit)
	}
	return nil
}
