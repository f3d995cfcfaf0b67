package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type LLMProvider string

const (
	LLMProviderOpenAI    LLMProvider = "openai"
	LLMProviderAnthropic LLMProvider = "anthropic"
	LLMProviderGoogle    LLMProvider = "google"
)

// LLMConfig is a user's choice of provider, model, and credentials. The
// repository layer enforces at most one active config per user.
type LLMConfig struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	UserID           uint           `gorm:"not null;index" json:"user_id"`
	Provider         LLMProvider    `gorm:"type:varchar(20);not null" json:"provider"`
	APIKeyEncrypted  string         `gorm:"type:text;not null" json:"-"`
	ModelSettings    datatypes.JSON `gorm:"type:jsonb" json:"model_settings"`
	IsActive         bool           `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`

	User User `gorm:"foreignKey:UserID;references:ID" json:"-"`
}

func (LLMConfig) TableName() string {
	return "llm_configs"
}

// ModelSettingsMap decodes model_settings into a typed accessor bag.
type ModelSettingsMap map[string]any

func (c LLMConfig) Settings() ModelSettingsMap {
	bag := ModelSettingsMap{}
	if len(c.ModelSettings) == 0 {
		return bag
	}
	_ = json.Unmarshal(c.ModelSettings, &bag)
	return bag
}

func (s ModelSettingsMap) Model() string {
	if v, ok := s["model"].(string); ok {
		return v
	}
	return ""
}

func (s ModelSettingsMap) Temperature() float32 {
	if v, ok := s["temperature"].(float64); ok {
		return float32(v)
	}
	return 0.7
}

func (s ModelSettingsMap) CustomInstructions() string {
	if v, ok := s["custom_instructions"].(string); ok {
		return v
	}
	return ""
}
