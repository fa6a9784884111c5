package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/contentpilot-ai/contentpilot/internal/domain/models"
)

type APIKeyRepository struct {
	*BaseRepository[models.APIKey]
}

func NewAPIKeyRepository(db *gorm.DB) *APIKeyRepository {
	return &APIKeyRepository{BaseRepository: NewBaseRepository[models.APIKey](db)}
}

func (r *APIKeyRepository) FindByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	var key models.APIKey
	err := r.DB().WithContext(ctx).
		Where("key_hash = ? AND is_active = ?", keyHash, true).
		First(&key).Error
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, keyHash string) error {
	return r.DB().WithContext(ctx).Model(&models.APIKey{}).
		Where("key_hash = ?", keyHash).
		Update("last_used_at", time.Now()).Error
}
