package models

import "time"

// User is a WhatsApp end-user identified by phone number. Created on first
// contact if absent; owns every other per-user entity with cascade delete.
type User struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PhoneNumber string    `gorm:"type:varchar(20);uniqueIndex;not null" json:"phone_number"`
	DisplayName string    `gorm:"type:varchar(255)" json:"display_name"`
	IsActive    bool      `gorm:"not null;default:true" json:"is_active"`
	IsAdmin     bool      `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Sessions   []Session   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Messages   []Message   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	AuthCodes  []AuthCode  `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	LLMConfigs []LLMConfig `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// JID returns the WhatsApp Jabber ID for this user's own phone number.
func (u User) JID() string {
	return u.PhoneNumber + "@s.whatsapp.net"
}
