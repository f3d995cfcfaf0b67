package webhook

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/messages"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/queue"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/repository"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
)

const testSystemNumber = "6281111111111"

func newTestHandler(t *testing.T) (*Handler, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	mock.MatchExpectationsInOrder(false)

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	users := repository.NewUserRepository(gdb)
	sessions := repository.NewSessionRepository(gdb)
	msgRepo := repository.NewMessageRepository(gdb)
	msgSvc := messages.NewService(users, sessions, msgRepo)
	q := queue.New(client, "test:queue:", 0, 3, 0)

	return NewHandler(users, sessions, msgSvc, q, testSystemNumber, "topsecret"), mock
}

func postWebhook(t *testing.T, app *fiber.App, body []byte, signature string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "/api/v1/webhooks/whatsapp", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestHandleWebhookRejectsInvalidSignature(t *testing.T) {
	h, _ := newTestHandler(t)
	app := fiber.New()
	h.Register(app, "/api/v1/webhooks")

	resp := postWebhook(t, app, []byte(`{"event_type":"message.received","data":{}}`), "sha256=deadbeef")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "Invalid webhook signature", decodeBody(t, resp)["detail"])
}

func TestHandleWebhookIgnoresUnknownEvent(t *testing.T) {
	h, _ := newTestHandler(t)
	h.secret = ""
	app := fiber.New()
	h.Register(app, "/api/v1/webhooks")

	resp := postWebhook(t, app, []byte(`{"event_type":"something.else","data":{}}`), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeBody(t, resp)
	require.Equal(t, "ignored", out["status"])
	require.Equal(t, "unknown_event_type", out["reason"])
}

// TestMessageReceivedSystemTextIsQueued covers S1: a text message addressed
// to the system number (is_system_message == true) is stored and dispatched
// onto the priority queue.
func TestMessageReceivedSystemTextIsQueued(t *testing.T) {
	h, mock := newTestHandler(t)
	h.secret = ""
	app := fiber.New()
	h.Register(app, "/api/v1/webhooks")

	phone := "6281234567890"
	rows := sqlmock.NewRows([]string{"id", "phone_number", "display_name", "is_active", "is_admin"})
	mock.ExpectQuery("SELECT").WillReturnRows(rows)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO \"users\"").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO \"sessions\"").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO \"messages\"").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	body, _ := json.Marshal(map[string]any{
		"event_type": "message.received",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"data": map[string]any{
			"from_number": phone + "@s.whatsapp.net",
			"to_number":   testSystemNumber + "@s.whatsapp.net",
			"message_id":  "wamid.1",
			"text":        "hello there",
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		},
	})

	resp := postWebhook(t, app, body, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeBody(t, resp)
	require.Equal(t, "queued", out["status"])
}

// TestMessageReceivedMediaToUserNumberIsStoredNotQueued covers S2: a media
// message arriving on the user's own connected session (not the system
// number) is stored but never dispatched to the agent.
func TestMessageReceivedMediaToUserNumberIsStoredNotQueued(t *testing.T) {
	h, mock := newTestHandler(t)
	h.secret = ""
	app := fiber.New()
	h.Register(app, "/api/v1/webhooks")

	userPhone := "6289998887777"
	rows := sqlmock.NewRows([]string{"id", "phone_number", "display_name", "is_active", "is_admin"})
	mock.ExpectQuery("SELECT").WillReturnRows(rows)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO \"users\"").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO \"sessions\"").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO \"messages\"").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectCommit()

	body, _ := json.Marshal(map[string]any{
		"event_type": "message.received",
		"data": map[string]any{
			"from_number": "6285550001111@s.whatsapp.net",
			"to_number":   userPhone + "@s.whatsapp.net",
			"message_id":  "wamid.2",
			"media_url":   "https://bridge.local/media/abc",
			"media_type":  "image",
		},
	})

	resp := postWebhook(t, app, body, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeBody(t, resp)
	require.Equal(t, "stored", out["status"])
}

// TestMessageSentUpdatesStatus covers S3: a delivery confirmation updates
// the previously stored message's status by its WhatsApp message id.
func TestMessageSentUpdatesStatus(t *testing.T) {
	h, mock := newTestHandler(t)
	h.secret = ""
	app := fiber.New()
	h.Register(app, "/api/v1/webhooks")

	metadata := []byte(`{"whatsapp_message_id":"wamid.3"}`)
	rows := sqlmock.NewRows([]string{"id", "user_id", "session_id", "sender_jid", "recipient_jid", "timestamp", "message_type", "media_metadata"}).
		AddRow(3, 1, 1, "a@s.whatsapp.net", "b@s.whatsapp.net", time.Now(), "text", metadata)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)
	mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))

	body, _ := json.Marshal(map[string]any{
		"event_type": "message.sent",
		"data": map[string]any{
			"message_id": "wamid.3",
			"status":     "sent",
			"to_number":  "6281234567890@s.whatsapp.net",
		},
	})

	resp := postWebhook(t, app, body, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeBody(t, resp)
	require.Equal(t, "updated", out["status"])
}

func TestMessageSentNotFoundWhenUnknown(t *testing.T) {
	h, mock := newTestHandler(t)
	h.secret = ""
	app := fiber.New()
	h.Register(app, "/api/v1/webhooks")

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	body, _ := json.Marshal(map[string]any{
		"event_type": "message.sent",
		"data": map[string]any{
			"message_id": "wamid.missing",
			"status":     "sent",
		},
	})

	resp := postWebhook(t, app, body, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "not_found", decodeBody(t, resp)["status"])
}

func TestMessageFailedMarksStatusFailed(t *testing.T) {
	h, mock := newTestHandler(t)
	h.secret = ""
	app := fiber.New()
	h.Register(app, "/api/v1/webhooks")

	metadata := []byte(`{"whatsapp_message_id":"wamid.4"}`)
	rows := sqlmock.NewRows([]string{"id", "user_id", "session_id", "sender_jid", "recipient_jid", "timestamp", "message_type", "media_metadata"}).
		AddRow(4, 1, 1, "a@s.whatsapp.net", "b@s.whatsapp.net", time.Now(), "text", metadata)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)
	mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))

	body, _ := json.Marshal(map[string]any{
		"event_type": "message.failed",
		"data": map[string]any{
			"message_id": "wamid.4",
			"error":      "recipient unreachable",
			"to_number":  "6281234567890@s.whatsapp.net",
		},
	})

	resp := postWebhook(t, app, body, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeBody(t, resp)
	require.Equal(t, "updated", out["status"])
	require.Equal(t, "recipient unreachable", out["error"])
}

func TestConnectionStatusAcknowledged(t *testing.T) {
	h, _ := newTestHandler(t)
	h.secret = ""
	app := fiber.New()
	h.Register(app, "/api/v1/webhooks")

	body, _ := json.Marshal(map[string]any{
		"event_type": "connection.status",
		"data": map[string]any{
			"status":     "connected",
			"session_id": "system",
		},
	})

	resp := postWebhook(t, app, body, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeBody(t, resp)
	require.Equal(t, "acknowledged", out["status"])
	require.Equal(t, "system", out["session_id"])
}

func TestPhoneFromJID(t *testing.T) {
	require.Equal(t, "6281234567890", phoneFromJID("6281234567890@s.whatsapp.net"))
	require.Equal(t, "6281234567890", phoneFromJID("6281234567890"))
}

func TestDefaultDisplayName(t *testing.T) {
	require.Equal(t, "User 7890", defaultDisplayName("6281234567890"))
	require.Equal(t, "User 12", defaultDisplayName("12"))
}
