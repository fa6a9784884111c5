package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/contentpilot-ai/contentpilot/internal/domain/models"
)

type PlanRepository struct {
	*BaseRepository[models.Plan]
}

func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{BaseRepository: NewBaseRepository[models.Plan](db)}
}

// FindByPlanID looks a plan up by its string key, e.g. "starter".
func (r *PlanRepository) FindByPlanID(ctx context.Context, id string) (*models.Plan, error) {
	var plan models.Plan
	err := r.DB().WithContext(ctx).First(&plan, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *PlanRepository) FindActive(ctx context.Context) ([]models.Plan, error) {
	var plans []models.Plan
	err := r.DB().WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order ASC").
		Find(&plans).Error
	return plans, err
}

type SubscriptionRepository struct {
	*BaseRepository[models.Subscription]
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{BaseRepository: NewBaseRepository[models.Subscription](db)}
}

func (r *SubscriptionRepository) FindByOwnerID(ctx context.Context, ownerID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.DB().WithContext(ctx).Where("owner_id = ?", ownerID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreditsAvailable returns the owner's balance. A missing subscription row is
// a zero balance, not an error.
func (r *SubscriptionRepository) CreditsAvailable(ctx context.Context, ownerID uuid.UUID) (int, error) {
	sub, err := r.FindByOwnerID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if sub.CreditsAvailable < 0 {
		return 0, nil
	}
	return sub.CreditsAvailable, nil
}

// ConsumeCredit decrements the balance by one, conditional on it still being
// positive. The WHERE clause is the compare-and-swap: concurrent dispatches
// can never drive the balance below zero.
func (r *SubscriptionRepository) ConsumeCredit(ctx context.Context, ownerID uuid.UUID) (bool, error) {
	res := r.DB().WithContext(ctx).Model(&models.Subscription{}).
		Where("owner_id = ? AND credits_available > 0", ownerID).
		Update("credits_available", gorm.Expr("credits_available - 1"))
	return res.RowsAffected == 1, res.Error
}

// GrantCredits adds credits, used by period rollover and plan changes.
func (r *SubscriptionRepository) GrantCredits(ctx context.Context, ownerID uuid.UUID, amount int) error {
	return r.DB().WithContext(ctx).Model(&models.Subscription{}).
		Where("owner_id = ?", ownerID).
		Update("credits_available", gorm.Expr("credits_available + ?", amount)).Error
}
