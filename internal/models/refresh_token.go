package models

import "time"

// RefreshToken persists issued refresh tokens so they survive process
// restarts and can be revoked individually.
type RefreshToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Token     string    `gorm:"type:varchar(512);not null;uniqueIndex" json:"-"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	Revoked   bool      `gorm:"not null;default:false" json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

func (r RefreshToken) Valid(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}
