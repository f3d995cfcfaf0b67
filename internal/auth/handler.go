package auth

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Handler wires the fiber routes for both login flows.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type requestCodeBody struct {
	Phone string `json:"phone_number"`
}

type verifyCodeBody struct {
	Phone string `json:"phone_number"`
	Code  string `json:"code"`
}

type adminLoginBody struct {
	Phone    string `json:"phone_number"`
	Password string `json:"password"`
}

type refreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) RequestCode(c *fiber.Ctx) error {
	var body requestCodeBody
	if err := c.BodyParser(&body); err != nil || body.Phone == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "phone_number is required"})
	}

	if err := h.svc.RequestCode(c.Context(), body.Phone); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to send login code"})
	}
	return c.JSON(fiber.Map{"status": "sent"})
}

func (h *Handler) VerifyCode(c *fiber.Ctx) error {
	var body verifyCodeBody
	if err := c.BodyParser(&body); err != nil || body.Phone == "" || body.Code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "phone_number and code are required"})
	}

	tokens, err := h.svc.VerifyCode(c.Context(), body.Phone, body.Code)
	if errors.Is(err, ErrInvalidCode) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired code"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "login failed"})
	}
	return c.JSON(tokenResponse(tokens))
}

func (h *Handler) AdminLogin(c *fiber.Ctx) error {
	var body adminLoginBody
	if err := c.BodyParser(&body); err != nil || body.Phone == "" || body.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "phone_number and password are required"})
	}

	tokens, err := h.svc.AdminLogin(c.Context(), body.Phone, body.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid credentials"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "login failed"})
	}
	return c.JSON(tokenResponse(tokens))
}

func (h *Handler) Refresh(c *fiber.Ctx) error {
	var body refreshBody
	if err := c.BodyParser(&body); err != nil || body.RefreshToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "refresh_token is required"})
	}

	tokens, err := h.svc.RefreshTokens(c.Context(), body.RefreshToken)
	if errors.Is(err, ErrInvalidCredentials) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid refresh token"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "refresh failed"})
	}
	return c.JSON(tokenResponse(tokens))
}

func tokenResponse(t *TokenPair) fiber.Map {
	return fiber.Map{
		"access_token":  t.AccessToken,
		"refresh_token": t.RefreshToken,
		"expires_in":    t.ExpiresIn,
	}
}
