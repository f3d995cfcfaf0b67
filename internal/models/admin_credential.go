package models

import "time"

// AdminCredential is the password-login half of C11, one row per admin
// User. Separate from User so the bcrypt hash never travels with ordinary
// user reads.
type AdminCredential struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"not null;uniqueIndex" json:"user_id"`
	PasswordHash string     `gorm:"type:text;not null" json:"-"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`

	User User `gorm:"foreignKey:UserID;references:ID" json:"-"`
}

func (AdminCredential) TableName() string {
	return "admin_credentials"
}
