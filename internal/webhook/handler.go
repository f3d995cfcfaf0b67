// Package webhook implements the Bridge webhook receiver half of C9: it
// classifies inbound Bridge events, persists what each one implies through
// the message store service, and hands inbound user messages to the
// priority queue for the message processor to pick up. Routing is fiber,
// matching cmd/api/main.go's HandleWebhook in the teacher.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/messages"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/models"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/queue"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/repository"
)

const signatureHeader = "X-Webhook-Signature"

// event_type values the Bridge emits, per spec §6.
const (
	eventMessageReceived  = "message.received"
	eventMessageSent      = "message.sent"
	eventMessageFailed    = "message.failed"
	eventConnectionStatus = "connection.status"
)

type webhookEvent struct {
	EventType string          `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type messageReceivedData struct {
	FromNumber string    `json:"from_number"`
	ToNumber   string    `json:"to_number"`
	MessageID  string    `json:"message_id"`
	Text       string    `json:"text"`
	MediaURL   string    `json:"media_url"`
	MediaType  string    `json:"media_type"`
	Timestamp  time.Time `json:"timestamp"`
}

type messageSentData struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	ToNumber  string `json:"to_number"`
}

type messageFailedData struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
	ToNumber  string `json:"to_number"`
}

type connectionStatusData struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

// Handler wires the webhook endpoints to the message store, the user/session
// repositories, and the priority queue.
type Handler struct {
	users        *repository.UserRepository
	sessions     *repository.SessionRepository
	messages     *messages.Service
	queue        *queue.Queue
	systemNumber string
	secret       string
}

func NewHandler(users *repository.UserRepository, sessions *repository.SessionRepository, msgs *messages.Service, q *queue.Queue, systemNumber, secret string) *Handler {
	return &Handler{users: users, sessions: sessions, messages: msgs, queue: q, systemNumber: systemNumber, secret: secret}
}

// Register mounts the webhook routes on app under prefix.
func (h *Handler) Register(app fiber.Router, prefix string) {
	app.Post(prefix+"/whatsapp", h.HandleWebhook)
	app.Get(prefix+"/whatsapp/health", h.HandleHealth)
}

// HandleWebhook validates the signature (when a secret is configured),
// classifies the event, and always answers 200 once past validation: a
// downstream failure is logged and surfaced in the body, never as an error
// status, so the Bridge doesn't retry-storm a transient storage hiccup.
func (h *Handler) HandleWebhook(c *fiber.Ctx) error {
	body := c.Body()

	if h.secret != "" && !h.validSignature(body, c.Get(signatureHeader)) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"detail": "Invalid webhook signature"})
	}

	var evt webhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": "invalid payload"})
	}

	ctx := c.Context()

	switch evt.EventType {
	case eventMessageReceived:
		return h.handleMessageReceived(ctx, c, evt.Data)
	case eventMessageSent:
		return h.handleMessageSent(ctx, c, evt.Data)
	case eventMessageFailed:
		return h.handleMessageFailed(ctx, c, evt.Data)
	case eventConnectionStatus:
		return h.handleConnectionStatus(ctx, c, evt.Data)
	default:
		log.Warn().Str("event_type", evt.EventType).Msg("ignoring unrecognized webhook event")
		return c.JSON(fiber.Map{"status": "ignored", "reason": "unknown_event_type"})
	}
}

// HandleHealth is a liveness probe for the webhook route itself, separate
// from the orchestrator's aggregate health check.
func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleMessageReceived persists an inbound or outbound message against its
// owning user, classifying the event as system-directed or not, and enqueues
// it for the agent only when it is both system-directed and text. Scenario
// S1 (system text) and S2 (non-system or media).
func (h *Handler) handleMessageReceived(ctx context.Context, c *fiber.Ctx, raw json.RawMessage) error {
	var data messageReceivedData
	if err := json.Unmarshal(raw, &data); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": "invalid message payload"})
	}

	fromPhone := phoneFromJID(data.FromNumber)
	toPhone := phoneFromJID(data.ToNumber)
	if fromPhone == "" || toPhone == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": "missing sender or recipient"})
	}

	isSystemMessage := toPhone == h.systemNumber

	// Owning user: from_number when the message is addressed to the system
	// session, to_number when it rode in on the user's own connected session.
	ownerPhone := toPhone
	if isSystemMessage {
		ownerPhone = fromPhone
	}

	user, err := h.users.GetOrCreateByPhone(ctx, ownerPhone, defaultDisplayName(ownerPhone))
	if err != nil {
		log.Error().Err(err).Str("phone", ownerPhone).Msg("failed to get or create user for webhook message")
		return c.JSON(fiber.Map{"status": "error", "message": err.Error()})
	}

	msgType := models.MessageTypeText
	if data.MediaURL != "" {
		switch models.MessageType(data.MediaType) {
		case models.MessageTypeImage, models.MessageTypeAudio, models.MessageTypeVideo, models.MessageTypeDocument:
			msgType = models.MessageType(data.MediaType)
		}
	}

	direction := models.DirectionIncoming
	if !isSystemMessage && fromPhone == user.PhoneNumber {
		direction = models.DirectionOutgoing
	}

	metadata := map[string]any{
		"whatsapp_message_id": data.MessageID,
		"timestamp":           data.Timestamp.UTC().Format(time.RFC3339),
		"is_system_message":   isSystemMessage,
	}
	if data.MediaURL != "" {
		metadata["media_url"] = data.MediaURL
		metadata["media_type"] = data.MediaType
	}

	content := data.Text
	stored, err := h.messages.StoreMessage(ctx, user.ID, messages.MessageCreate{
		Direction:    direction,
		MessageType:  msgType,
		Content:      &content,
		SenderJID:    data.FromNumber,
		RecipientJID: data.ToNumber,
		Metadata:     metadata,
	})
	if err != nil {
		log.Error().Err(err).Str("phone", ownerPhone).Msg("failed to store inbound webhook message")
		return c.JSON(fiber.Map{"status": "error", "message": err.Error()})
	}

	if !isSystemMessage || data.Text == "" {
		return c.JSON(fiber.Map{"status": "stored", "message_id": fmt.Sprintf("%d", stored.ID)})
	}

	go h.dispatch(user.ID, data.Text, stored.ID, data.MessageID)

	return c.JSON(fiber.Map{"status": "queued", "message_id": fmt.Sprintf("%d", stored.ID)})
}

// dispatch enqueues a system-directed text message onto the priority queue
// for the message processor (C8) to run through the agent. It runs detached
// from the request (see HandleWebhook's "go handler.dispatch(...)" call),
// so it takes a background context rather than the request's.
func (h *Handler) dispatch(userID uint, text string, messageID uint, whatsappMessageID string) {
	if _, err := h.queue.Enqueue(context.Background(), userID, text, queue.PriorityNormal, map[string]any{
		"message_id":          messageID,
		"whatsapp_message_id": whatsappMessageID,
	}); err != nil {
		log.Error().Err(err).Uint("user_id", userID).Msg("failed to enqueue inbound webhook message")
	}
}

// handleMessageSent applies the Bridge's delivery status to a previously
// stored message. Scenario S3.
func (h *Handler) handleMessageSent(ctx context.Context, c *fiber.Ctx, raw json.RawMessage) error {
	var data messageSentData
	if err := json.Unmarshal(raw, &data); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": "invalid message payload"})
	}

	updated, err := h.messages.UpdateMessageStatus(ctx, data.MessageID, data.Status)
	if err != nil {
		log.Error().Err(err).Str("whatsapp_message_id", data.MessageID).Msg("failed to update message status")
		return c.JSON(fiber.Map{"status": "error", "message": err.Error()})
	}
	if updated == nil {
		log.Warn().Str("whatsapp_message_id", data.MessageID).Msg("message not found for status update")
		return c.JSON(fiber.Map{"status": "not_found", "message_id": data.MessageID})
	}

	return c.JSON(fiber.Map{"status": "updated", "message_id": data.MessageID})
}

// handleMessageFailed records a failed delivery against the stored message.
func (h *Handler) handleMessageFailed(ctx context.Context, c *fiber.Ctx, raw json.RawMessage) error {
	var data messageFailedData
	if err := json.Unmarshal(raw, &data); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": "invalid message payload"})
	}

	updated, err := h.messages.UpdateMessageStatus(ctx, data.MessageID, "failed: "+data.Error)
	if err != nil {
		log.Error().Err(err).Str("whatsapp_message_id", data.MessageID).Msg("failed to update message status")
		return c.JSON(fiber.Map{"status": "error", "message": err.Error()})
	}
	if updated == nil {
		log.Warn().Str("whatsapp_message_id", data.MessageID).Msg("failed message not found")
		return c.JSON(fiber.Map{"status": "not_found", "message_id": data.MessageID})
	}

	log.Error().Str("whatsapp_message_id", data.MessageID).Str("error", data.Error).Msg("bridge reported message delivery failure")
	return c.JSON(fiber.Map{"status": "updated", "message_id": data.MessageID, "error": data.Error})
}

// handleConnectionStatus logs and acknowledges a Bridge session connectivity
// change. Nothing here blocks the response; C10's monitor reads connection
// health from its own periodic Bridge check rather than from this handler.
func (h *Handler) handleConnectionStatus(ctx context.Context, c *fiber.Ctx, raw json.RawMessage) error {
	var data connectionStatusData
	if err := json.Unmarshal(raw, &data); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": "invalid connection payload"})
	}

	log.Info().Str("status", data.Status).Str("session_id", data.SessionID).Msg("whatsapp connection status update")

	return c.JSON(fiber.Map{
		"status":            "acknowledged",
		"connection_status": data.Status,
		"session_id":        data.SessionID,
	})
}

func phoneFromJID(jid string) string {
	return strings.TrimSuffix(jid, "@s.whatsapp.net")
}

func defaultDisplayName(phone string) string {
	last4 := phone
	if len(phone) > 4 {
		last4 = phone[len(phone)-4:]
	}
	return "User " + last4
}

func (h *Handler) validSignature(body []byte, provided string) bool {
	if provided == "" {
		return false
	}
	provided = strings.TrimPrefix(provided, "sha256=")

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}
