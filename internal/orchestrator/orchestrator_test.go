package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/agent"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/bridge"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/crypto"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/messages"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/platform/database"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/processor"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/queue"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/repository"
)

func fakeBridgeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "version": "test"})
	})
	mux.HandleFunc("/sessions/system", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"session_id": "system", "status": "connected"})
	})
	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"session_id": "system", "status": "connected"})
	})
	return httptest.NewServer(mux)
}

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()

	srv := fakeBridgeServer(t)
	t.Cleanup(srv.Close)
	bridgeClient := bridge.New(srv.URL, 2*time.Second)

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	mock.MatchExpectationsInOrder(false)
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectPing()

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	redisClient := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	q := queue.New(redisClient, "test:orch:", time.Hour, 3, time.Millisecond)

	users := repository.NewUserRepository(gdb)
	sessions := repository.NewSessionRepository(gdb)
	msgRepo := repository.NewMessageRepository(gdb)
	msgSvc := messages.NewService(users, sessions, msgRepo)
	llmConfigs := repository.NewLLMConfigRepository(gdb)
	encryptor, err := crypto.New("a-test-passphrase-that-is-long-enough-32")
	require.NoError(t, err)
	agentSvc := agent.NewService(msgSvc, users, llmConfigs, encryptor)

	proc := processor.New(q, agentSvc, bridgeClient, users, 1)

	monitor := NewMonitor(&database.DB{SQL: sqlDB, GORM: gdb}, redisClient, bridgeClient, q)

	return New(bridgeClient, q, proc, monitor, srv.URL+"/webhook", time.Hour)
}

func TestInitializeIsIdempotent(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	first, err := o.Initialize(ctx)
	require.NoError(t, err)
	require.Equal(t, "initialized", first["status"])

	second, err := o.Initialize(ctx)
	require.NoError(t, err)
	require.Equal(t, "already_initialized", second["status"])

	_, err = o.Shutdown(ctx)
	require.NoError(t, err)
}

func TestShutdownWithoutInitializeIsNoOp(t *testing.T) {
	o := newTestOrchestrator(t)
	result, err := o.Shutdown(context.Background())
	require.NoError(t, err)
	require.Equal(t, "not_initialized", result["status"])
}

func TestGetStatusBeforeInitializeOmitsHealth(t *testing.T) {
	o := newTestOrchestrator(t)
	status := o.GetStatus(context.Background())
	require.Equal(t, false, status["initialized"])
	require.NotContains(t, status, "health")
}
