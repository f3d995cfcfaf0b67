package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/models"
	"gorm.io/gorm"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, m *models.Message) error {
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetRecent(ctx context.Context, userID uint, count int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC").
		Limit(count).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("get recent messages: %w", err)
	}
	return msgs, nil
}

func (r *MessageRepository) Search(ctx context.Context, userID uint, query string, limit int) ([]models.Message, error) {
	if strings.TrimSpace(query) == "" {
		return []models.Message{}, nil
	}

	like := "%" + query + "%"
	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND (content ILIKE ? OR caption ILIKE ?)", userID, like, like).
		Order("timestamp DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	return msgs, nil
}

func (r *MessageRepository) GetByDateRange(ctx context.Context, userID uint, start, end time.Time, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND timestamp BETWEEN ? AND ?", userID, start, end).
		Order("timestamp DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("get messages by date range: %w", err)
	}
	return msgs, nil
}

func (r *MessageRepository) CountAndSpan(ctx context.Context, userID uint) (total int64, first, last *time.Time, err error) {
	if err = r.db.WithContext(ctx).Model(&models.Message{}).
		Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return 0, nil, nil, fmt.Errorf("count messages: %w", err)
	}
	if total == 0 {
		return 0, nil, nil, nil
	}

	var firstMsg, lastMsg models.Message
	if err = r.db.WithContext(ctx).Where("user_id = ?", userID).Order("timestamp ASC").First(&firstMsg).Error; err != nil {
		return 0, nil, nil, fmt.Errorf("get first message: %w", err)
	}
	if err = r.db.WithContext(ctx).Where("user_id = ?", userID).Order("timestamp DESC").First(&lastMsg).Error; err != nil {
		return 0, nil, nil, fmt.Errorf("get last message: %w", err)
	}
	return total, &firstMsg.Timestamp, &lastMsg.Timestamp, nil
}

func (r *MessageRepository) CountBySenderJID(ctx context.Context, userID uint, jid string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("user_id = ? AND sender_jid = ?", userID, jid).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count by sender jid: %w", err)
	}
	return count, nil
}

func (r *MessageRepository) CountByRecipientJID(ctx context.Context, userID uint, jid string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("user_id = ? AND recipient_jid = ?", userID, jid).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count by recipient jid: %w", err)
	}
	return count, nil
}

// FindByWhatsAppMessageID looks a message up by the id embedded in
// media_metadata.whatsapp_message_id.
func (r *MessageRepository) FindByWhatsAppMessageID(ctx context.Context, whatsappMessageID string) (*models.Message, error) {
	var m models.Message
	err := r.db.WithContext(ctx).
		Where("media_metadata @> ?", fmt.Sprintf(`{"whatsapp_message_id": %q}`, whatsappMessageID)).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by whatsapp message id: %w", err)
	}
	return &m, nil
}

func (r *MessageRepository) Update(ctx context.Context, m *models.Message) error {
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}
