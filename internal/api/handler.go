// Package api implements the Public/Private HTTP API (C12): read-only
// message archive and LLM config management for end-users, plus the admin
// surface for user listing and integration control. Grounded on
// cmd/api/main.go's fiber route grouping and handler shape.
package api

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"

	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/crypto"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/messages"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/models"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/orchestrator"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/repository"
)

// Handler groups the read-only / admin endpoints that sit alongside the
// webhook and auth surfaces on the same fiber.App.
type Handler struct {
	users      *repository.UserRepository
	messages   *messages.Service
	llmConfigs *repository.LLMConfigRepository
	encryptor  *crypto.Encryptor
	orch       *orchestrator.Orchestrator
}

func NewHandler(
	users *repository.UserRepository,
	messageSvc *messages.Service,
	llmConfigs *repository.LLMConfigRepository,
	encryptor *crypto.Encryptor,
	orch *orchestrator.Orchestrator,
) *Handler {
	return &Handler{users: users, messages: messageSvc, llmConfigs: llmConfigs, encryptor: encryptor, orch: orch}
}

func userIDFromLocals(c *fiber.Ctx) uint {
	id, _ := c.Locals("userID").(uint)
	return id
}

// GetMessages returns the caller's own recent messages, newest first.
func (h *Handler) GetMessages(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	msgs, err := h.messages.GetRecentMessages(c.Context(), userIDFromLocals(c), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load messages"})
	}
	return c.JSON(fiber.Map{"messages": msgs, "count": len(msgs)})
}

// GetLLMConfig returns the caller's active LLM configuration, never
// exposing the encrypted API key.
func (h *Handler) GetLLMConfig(c *fiber.Ctx) error {
	cfg, err := h.llmConfigs.GetActive(c.Context(), userIDFromLocals(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load llm config"})
	}
	if cfg == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no active llm config"})
	}
	return c.JSON(cfg)
}

type putLLMConfigBody struct {
	Provider      models.LLMProvider `json:"provider"`
	APIKey        string             `json:"api_key"`
	ModelSettings map[string]any     `json:"model_settings"`
}

// PutLLMConfig encrypts the submitted API key and stores it as the
// caller's new active configuration, deactivating any prior one.
func (h *Handler) PutLLMConfig(c *fiber.Ctx) error {
	var body putLLMConfigBody
	if err := c.BodyParser(&body); err != nil || body.Provider == "" || body.APIKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "provider and api_key are required"})
	}

	encrypted, err := h.encryptor.Encrypt(body.APIKey)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to secure api key"})
	}

	settings, err := json.Marshal(body.ModelSettings)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid model_settings"})
	}

	cfg := &models.LLMConfig{
		UserID:          userIDFromLocals(c),
		Provider:        body.Provider,
		APIKeyEncrypted: encrypted,
		ModelSettings:   datatypes.JSON(settings),
	}
	if err := h.llmConfigs.SaveAsActive(c.Context(), cfg); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save llm config"})
	}
	return c.JSON(cfg)
}

// ListUsers is the admin user directory, paginated.
func (h *Handler) ListUsers(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	users, err := h.users.List(c.Context(), limit, offset)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list users"})
	}
	return c.JSON(fiber.Map{"users": users, "count": len(users)})
}

// Reinitialize forces the orchestrator through a full shutdown/startup
// cycle, for an admin to recover a degraded integration without a restart.
func (h *Handler) Reinitialize(c *fiber.Ctx) error {
	result := h.orch.Reinitialize(c.Context())
	return c.JSON(result)
}
