package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/models"
	"gorm.io/gorm"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// GetOrCreateMainSession returns the user's connected main session, creating
// one if absent. The core never finds its own way from qr_pending to
// connected; it only guarantees a row exists to attach messages to.
func (r *SessionRepository) GetOrCreateMainSession(ctx context.Context, userID uint) (*models.Session, error) {
	var s models.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_type = ?", userID, models.SessionTypeMain).
		Order("id ASC").
		First(&s).Error
	if err == nil {
		return &s, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("get main session: %w", err)
	}

	now := time.Now().UTC()
	s = models.Session{
		UserID:      userID,
		SessionType: models.SessionTypeMain,
		Status:      models.SessionStatusConnected,
		ConnectedAt: &now,
	}
	if err := r.db.WithContext(ctx).Create(&s).Error; err != nil {
		return nil, fmt.Errorf("create main session: %w", err)
	}
	return &s, nil
}

func (r *SessionRepository) UpdateStatus(ctx context.Context, id uint, status models.SessionStatus) error {
	return r.db.WithContext(ctx).Model(&models.Session{}).Where("id = ?", id).
		Update("status", status).Error
}
