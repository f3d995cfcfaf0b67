package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/models"
	"gorm.io/gorm"
)

type LLMConfigRepository struct {
	db *gorm.DB
}

func NewLLMConfigRepository(db *gorm.DB) *LLMConfigRepository {
	return &LLMConfigRepository{db: db}
}

func (r *LLMConfigRepository) GetActive(ctx context.Context, userID uint) (*models.LLMConfig, error) {
	var cfg models.LLMConfig
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active llm config: %w", err)
	}
	return &cfg, nil
}

// SaveAsActive enforces the single-active-LLMConfig-per-user invariant by
// deactivating every existing config for the user and inserting cfg inside
// one transaction.
func (r *LLMConfigRepository) SaveAsActive(ctx context.Context, cfg *models.LLMConfig) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.LLMConfig{}).
			Where("user_id = ? AND is_active = ?", cfg.UserID, true).
			Update("is_active", false).Error; err != nil {
			return fmt.Errorf("deactivate existing llm configs: %w", err)
		}

		cfg.IsActive = true
		if err := tx.Create(cfg).Error; err != nil {
			return fmt.Errorf("insert llm config: %w", err)
		}
		return nil
	})
}
