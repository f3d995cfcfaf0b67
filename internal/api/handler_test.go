package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/crypto"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/messages"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/repository"
)

func newTestHandler(t *testing.T) (*Handler, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	mock.MatchExpectationsInOrder(false)

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	users := repository.NewUserRepository(gdb)
	sessions := repository.NewSessionRepository(gdb)
	msgRepo := repository.NewMessageRepository(gdb)
	msgSvc := messages.NewService(users, sessions, msgRepo)
	llmConfigs := repository.NewLLMConfigRepository(gdb)

	encryptor, err := crypto.New("a-test-passphrase-that-is-long-enough-32")
	require.NoError(t, err)

	return NewHandler(users, msgSvc, llmConfigs, encryptor, nil), mock
}

func withUserLocals(userID uint) func(*fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		c.Locals("userID", userID)
		return c.Next()
	}
}

func TestGetLLMConfigNotFound(t *testing.T) {
	h, mock := newTestHandler(t)
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	app := fiber.New()
	app.Get("/llm-config", withUserLocals(1), h.GetLLMConfig)

	req, err := http.NewRequest(http.MethodGet, "/llm-config", nil)
	require.NoError(t, err)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestPutLLMConfigRejectsMissingFields(t *testing.T) {
	h, _ := newTestHandler(t)

	app := fiber.New()
	app.Put("/llm-config", withUserLocals(1), h.PutLLMConfig)

	body, _ := json.Marshal(map[string]any{})
	req, err := http.NewRequest(http.MethodPut, "/llm-config", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
