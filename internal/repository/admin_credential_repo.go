package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/models"
	"gorm.io/gorm"
)

type AdminCredentialRepository struct {
	db *gorm.DB
}

func NewAdminCredentialRepository(db *gorm.DB) *AdminCredentialRepository {
	return &AdminCredentialRepository{db: db}
}

func (r *AdminCredentialRepository) GetByUserID(ctx context.Context, userID uint) (*models.AdminCredential, error) {
	var cred models.AdminCredential
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get admin credential: %w", err)
	}
	return &cred, nil
}

func (r *AdminCredentialRepository) TouchLastLogin(ctx context.Context, userID uint) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Model(&models.AdminCredential{}).
		Where("user_id = ?", userID).Update("last_login_at", &now).Error
	if err != nil {
		return fmt.Errorf("touch admin last login: %w", err)
	}
	return nil
}
