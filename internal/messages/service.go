// Package messages implements the message store service (C5): domain
// operations on messages scoped by user id, returning domain records rather
// than raw rows.
package messages

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/models"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/repository"
)

// MessageCreate is the input to StoreMessage.
type MessageCreate struct {
	Direction   models.Direction
	MessageType models.MessageType
	Content     *string
	Caption     *string
	SenderJID   string
	RecipientJID string
	ReplyToID   *uint
	Metadata    map[string]any
}

// ConversationStats is the shape returned by GetConversationStats.
type ConversationStats struct {
	Total     int64
	Sent      int64
	Received  int64
	FirstDate *time.Time
	LastDate  *time.Time
	AvgPerDay float64
}

type Service struct {
	users    *repository.UserRepository
	sessions *repository.SessionRepository
	messages *repository.MessageRepository
}

func NewService(users *repository.UserRepository, sessions *repository.SessionRepository, messages *repository.MessageRepository) *Service {
	return &Service{users: users, sessions: sessions, messages: messages}
}

// StoreMessage ensures a connected main session exists, computes JIDs from
// the supplied direction when not given explicitly, stamps the
// authoritative timestamp, and persists whatsapp_message_id into
// media_metadata when present.
func (s *Service) StoreMessage(ctx context.Context, userID uint, in MessageCreate) (*models.Message, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("store message: user %d not found", userID)
	}

	session, err := s.sessions.GetOrCreateMainSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	senderJID, recipientJID := in.SenderJID, in.RecipientJID
	if senderJID == "" || recipientJID == "" {
		senderJID, recipientJID = jidsForDirection(in.Direction, user.JID())
	}

	metadataJSON, err := json.Marshal(in.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal message metadata: %w", err)
	}

	m := &models.Message{
		UserID:        userID,
		SessionID:     session.ID,
		SenderJID:     senderJID,
		RecipientJID:  recipientJID,
		Timestamp:     time.Now().UTC(),
		MessageType:   in.MessageType,
		Content:       in.Content,
		Caption:       in.Caption,
		ReplyToID:     in.ReplyToID,
		MediaMetadata: metadataJSON,
	}
	if m.MessageType == "" {
		m.MessageType = models.MessageTypeText
	}

	if err := s.messages.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// jidsForDirection fills in the sender/recipient JID for a synthetic
// message that didn't carry explicit JIDs (e.g. the agent's own reply).
func jidsForDirection(dir models.Direction, userJID string) (sender, recipient string) {
	switch dir {
	case models.DirectionIncoming:
		return userJID, "system@s.whatsapp.net"
	case models.DirectionOutgoing:
		return "system@s.whatsapp.net", userJID
	default:
		return "system@s.whatsapp.net", "system@s.whatsapp.net"
	}
}

func (s *Service) GetRecentMessages(ctx context.Context, userID uint, count int) ([]models.Message, error) {
	return s.messages.GetRecent(ctx, userID, count)
}

func (s *Service) SearchMessages(ctx context.Context, userID uint, query string, limit int) ([]models.Message, error) {
	return s.messages.Search(ctx, userID, query, limit)
}

func (s *Service) GetMessagesByDateRange(ctx context.Context, userID uint, start, end time.Time, limit int) ([]models.Message, error) {
	return s.messages.GetByDateRange(ctx, userID, start, end, limit)
}

func (s *Service) GetConversationStats(ctx context.Context, userID uint) (*ConversationStats, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("conversation stats: user %d not found", userID)
	}

	total, first, last, err := s.messages.CountAndSpan(ctx, userID)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return &ConversationStats{}, nil
	}

	sent, err := s.messages.CountBySenderJID(ctx, userID, user.JID())
	if err != nil {
		return nil, err
	}
	received, err := s.messages.CountByRecipientJID(ctx, userID, user.JID())
	if err != nil {
		return nil, err
	}

	daysSpan := 1.0
	if first != nil && last != nil {
		daysSpan = math.Max(1.0, last.Sub(*first).Hours()/24.0)
	}

	return &ConversationStats{
		Total:     total,
		Sent:      sent,
		Received:  received,
		FirstDate: first,
		LastDate:  last,
		AvgPerDay: float64(total) / daysSpan,
	}, nil
}

// UpdateMessageStatus finds a message by its embedded WhatsApp id and
// merges status into media_metadata. Returns (nil, nil) when not found.
func (s *Service) UpdateMessageStatus(ctx context.Context, whatsappMessageID, status string) (*models.Message, error) {
	m, err := s.messages.FindByWhatsAppMessageID(ctx, whatsappMessageID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}

	merged, err := m.WithMetadata("status", status)
	if err != nil {
		return nil, fmt.Errorf("merge message status: %w", err)
	}
	m.MediaMetadata = merged

	if err := s.messages.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}
