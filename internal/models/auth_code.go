package models

import "time"

// AuthCode is a one-time 6-digit login code delivered to the user's own
// WhatsApp number and consumed by the Public API login flow.
type AuthCode struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Code      string    `gorm:"type:varchar(6);not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	Used      bool      `gorm:"not null;default:false" json:"used"`
	CreatedAt time.Time `json:"created_at"`

	User User `gorm:"foreignKey:UserID;references:ID" json:"-"`
}

func (AuthCode) TableName() string {
	return "auth_codes"
}

func (a AuthCode) Valid(now time.Time) bool {
	return !a.Used && now.Before(a.ExpiresAt)
}
