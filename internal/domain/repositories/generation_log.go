package repositories

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/contentpilot-ai/contentpilot/internal/domain/models"
)

// GenerationLogRepository is append-only: entries are written once and never
// mutated.
type GenerationLogRepository struct {
	db *gorm.DB
}

func NewGenerationLogRepository(db *gorm.DB) *GenerationLogRepository {
	return &GenerationLogRepository{db: db}
}

func (r *GenerationLogRepository) Append(ctx context.Context, entry *models.GenerationLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *GenerationLogRepository) FindByScheduleID(ctx context.Context, scheduleID uuid.UUID, opts *ListOptions) ([]models.GenerationLog, int64, error) {
	var entries []models.GenerationLog
	var total int64

	query := r.db.WithContext(ctx).Where("schedule_id = ?", scheduleID)
	query.Model(&models.GenerationLog{}).Count(&total)

	if opts != nil {
		query = query.Offset(opts.Offset).Limit(opts.Limit).Order("created_at DESC")
	}

	err := query.Find(&entries).Error
	return entries, total, err
}

func (r *GenerationLogRepository) FindByOwnerID(ctx context.Context, ownerID uuid.UUID, opts *ListOptions) ([]models.GenerationLog, int64, error) {
	var entries []models.GenerationLog
	var total int64

	query := r.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	query.Model(&models.GenerationLog{}).Count(&total)

	if opts != nil {
		query = query.Offset(opts.Offset).Limit(opts.Limit).Order("created_at DESC")
	}

	err := query.Find(&entries).Error
	return entries, total, err
}
