package models

import "time"

type SessionStatus string

const (
	SessionStatusQRPending    SessionStatus = "qr_pending"
	SessionStatusConnected    SessionStatus = "connected"
	SessionStatusDisconnected SessionStatus = "disconnected"
	SessionStatusError        SessionStatus = "error"
)

type SessionType string

const (
	SessionTypeMain SessionType = "main"
	SessionTypeUser SessionType = "user"
)

// Session is a WhatsApp connection instance owned by a User. The core uses
// exactly one connected main session per user as the attach point for
// persisted messages.
type Session struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	UserID         uint          `gorm:"not null;index" json:"user_id"`
	SessionType    SessionType   `gorm:"type:varchar(20);not null;default:'main'" json:"session_type"`
	Status         SessionStatus `gorm:"type:varchar(20);not null;default:'disconnected'" json:"status"`
	ConnectedAt    *time.Time    `json:"connected_at,omitempty"`
	DisconnectedAt *time.Time    `json:"disconnected_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`

	User     User      `gorm:"foreignKey:UserID;references:ID" json:"-"`
	Messages []Message `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (Session) TableName() string {
	return "sessions"
}
