package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeVideo    MessageType = "video"
	MessageTypeDocument MessageType = "document"
)

// Direction is never stored; it is derived from (sender_jid, recipient_jid)
// against the owning user's own JID at read time.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
	DirectionSystem   Direction = "system"
)

// Message is owned by one User and one Session.
type Message struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"not null;index" json:"user_id"`
	SessionID   uint           `gorm:"not null;index" json:"session_id"`
	SenderJID   string         `gorm:"type:varchar(64);not null;index" json:"sender_jid"`
	RecipientJID string        `gorm:"type:varchar(64);not null;index" json:"recipient_jid"`
	Timestamp   time.Time      `gorm:"not null;index" json:"timestamp"`
	MessageType MessageType    `gorm:"type:varchar(20);not null;default:'text'" json:"message_type"`
	Content     *string        `gorm:"type:text" json:"content,omitempty"`
	Caption     *string        `gorm:"type:text" json:"caption,omitempty"`
	ReplyToID   *uint          `json:"reply_to_id,omitempty"`
	MediaMetadata datatypes.JSON `gorm:"type:jsonb" json:"media_metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`

	User    User    `gorm:"foreignKey:UserID;references:ID" json:"-"`
	Session Session `gorm:"foreignKey:SessionID;references:ID" json:"-"`
}

func (Message) TableName() string {
	return "messages"
}

// Direction derives the message's direction against the owning user's own
// phone JID. Never stored, always computed at read time.
func (m Message) Direction(userPhone string) Direction {
	jid := userPhone + "@s.whatsapp.net"
	switch {
	case m.SenderJID == jid:
		return DirectionIncoming
	case m.RecipientJID == jid:
		return DirectionOutgoing
	default:
		return DirectionSystem
	}
}

// MetadataValue returns a typed accessor over the free-form media_metadata
// bag, avoiding ad hoc string-key access scattered across callers.
func (m Message) MetadataValue(key string) (string, bool) {
	if len(m.MediaMetadata) == 0 {
		return "", false
	}
	var bag map[string]any
	if err := json.Unmarshal(m.MediaMetadata, &bag); err != nil {
		return "", false
	}
	v, ok := bag[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// WithMetadata returns media_metadata with key merged in, for callers that
// need to patch a single field (e.g. delivery status) without clobbering
// the rest of the bag.
func (m Message) WithMetadata(key string, value any) (datatypes.JSON, error) {
	bag := map[string]any{}
	if len(m.MediaMetadata) != 0 {
		if err := json.Unmarshal(m.MediaMetadata, &bag); err != nil {
			return nil, err
		}
	}
	bag[key] = value
	return json.Marshal(bag)
}
