package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/models"
	"gorm.io/gorm"
)

type AuthCodeRepository struct {
	db *gorm.DB
}

func NewAuthCodeRepository(db *gorm.DB) *AuthCodeRepository {
	return &AuthCodeRepository{db: db}
}

func (r *AuthCodeRepository) Create(ctx context.Context, userID uint, code string, ttl time.Duration) (*models.AuthCode, error) {
	ac := &models.AuthCode{
		UserID:    userID,
		Code:      code,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	if err := r.db.WithContext(ctx).Create(ac).Error; err != nil {
		return nil, fmt.Errorf("create auth code: %w", err)
	}
	return ac, nil
}

// ConsumeValid finds an unused, unexpired code for userID and marks it used
// in one transaction, returning whether a valid code was found.
func (r *AuthCodeRepository) ConsumeValid(ctx context.Context, userID uint, code string) (bool, error) {
	var found bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ac models.AuthCode
		err := tx.Where("user_id = ? AND code = ? AND used = ? AND expires_at > ?",
			userID, code, false, time.Now().UTC()).
			Order("id DESC").First(&ac).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup auth code: %w", err)
		}

		if err := tx.Model(&ac).Update("used", true).Error; err != nil {
			return fmt.Errorf("consume auth code: %w", err)
		}
		found = true
		return nil
	})
	return found, err
}
