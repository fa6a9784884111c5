package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/contentpilot-ai/contentpilot/internal/domain/models"
)

type ScheduleRepository struct {
	*BaseRepository[models.Schedule]
}

func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{
		BaseRepository: NewBaseRepository[models.Schedule](db),
	}
}

func (r *ScheduleRepository) FindByOwnerID(ctx context.Context, ownerID uuid.UUID, opts *ListOptions) ([]models.Schedule, int64, error) {
	var schedules []models.Schedule
	var total int64

	query := r.DB().WithContext(ctx).Where("owner_id = ?", ownerID)
	query.Model(&models.Schedule{}).Count(&total)

	if opts != nil {
		query = query.Offset(opts.Offset).Limit(opts.Limit).Order(opts.OrderBy + " " + opts.Order)
	}

	err := query.Find(&schedules).Error
	return schedules, total, err
}

// FindDue returns active schedules whose next_run_at is at or before now,
// earliest first.
func (r *ScheduleRepository) FindDue(ctx context.Context, limit int) ([]models.Schedule, error) {
	var schedules []models.Schedule
	err := r.DB().WithContext(ctx).
		Where("is_active = ? AND next_run_at <= ?", true, time.Now()).
		Order("next_run_at ASC").
		Limit(limit).
		Find(&schedules).Error
	return schedules, err
}

// Claim takes single-flight ownership of a due schedule by pushing next_run_at
// out by a lease, conditional on next_run_at still holding the value the
// caller read. A zero row count means another trigger path won the race and
// the caller must skip the schedule. If the process dies mid-dispatch the
// lease expires and the schedule becomes due again.
func (r *ScheduleRepository) Claim(ctx context.Context, id uuid.UUID, expectedNextRun time.Time, lease time.Duration) (bool, error) {
	res := r.DB().WithContext(ctx).Model(&models.Schedule{}).
		Where("id = ? AND is_active = ? AND next_run_at = ?", id, true, expectedNextRun).
		Update("next_run_at", time.Now().Add(lease))
	return res.RowsAffected == 1, res.Error
}

// RecordSuccess finalizes a successful dispatch: advances next_run_at, clears
// the error state and stores the delay-queue handle for the re-armed run.
func (r *ScheduleRepository) RecordSuccess(ctx context.Context, id uuid.UUID, nextRun *time.Time, messageID *string) error {
	return r.DB().WithContext(ctx).Model(&models.Schedule{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_run_at":         time.Now(),
			"next_run_at":         nextRun,
			"last_error":          nil,
			"status_message":      nil,
			"failure_count":       0,
			"success_count":       gorm.Expr("success_count + 1"),
			"external_message_id": messageID,
		}).Error
}

// RecordFailure books a failed attempt and pushes next_run_at to the retry
// time; the schedule stays active.
func (r *ScheduleRepository) RecordFailure(ctx context.Context, id uuid.UUID, message string, nextRun time.Time, messageID *string) error {
	return r.DB().WithContext(ctx).Model(&models.Schedule{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_run_at":         time.Now(),
			"next_run_at":         nextRun,
			"last_error":          message,
			"failure_count":       gorm.Expr("failure_count + 1"),
			"external_message_id": messageID,
		}).Error
}

// Deactivate pauses the schedule until a human intervenes. next_run_at is
// left untouched so resuming can recompute from the stored recurrence.
func (r *ScheduleRepository) Deactivate(ctx context.Context, id uuid.UUID, reason string) error {
	return r.DB().WithContext(ctx).Model(&models.Schedule{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":      false,
			"status_message": reason,
		}).Error
}

func (r *ScheduleRepository) SetActive(ctx context.Context, id uuid.UUID, isActive bool) error {
	return r.DB().WithContext(ctx).Model(&models.Schedule{}).
		Where("id = ?", id).
		Update("is_active", isActive).Error
}

func (r *ScheduleRepository) UpdateNextRun(ctx context.Context, id uuid.UUID, nextRun time.Time, messageID *string) error {
	return r.DB().WithContext(ctx).Model(&models.Schedule{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"next_run_at":         nextRun,
			"external_message_id": messageID,
		}).Error
}

// Upsert creates the schedule or replaces the caller-owned fields of an
// existing row with the same id.
func (r *ScheduleRepository) Upsert(ctx context.Context, schedule *models.Schedule) error {
	return r.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"website_url", "frequency", "day_of_week", "day_of_month",
				"time_of_day", "cron_expression", "timezone", "topics",
				"is_active", "next_run_at", "updated_at",
			}),
		}).
		Create(schedule).Error
}
