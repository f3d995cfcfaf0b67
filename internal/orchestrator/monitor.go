// Package orchestrator implements the integration orchestrator and monitor
// (C10): startup/shutdown sequencing for the Bridge connection, the
// processor worker pool, and a periodic concurrent health check across
// every external dependency. Grounded on integration_orchestrator.py and
// integration_monitor.py in the distillation source, using the teacher's
// jobs/worker.go Ticker-plus-WaitGroup idiom for the monitoring loop.
package orchestrator

import (
	"context"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/bridge"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/platform/database"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/queue"
)

// ComponentStatus is the result of one health check.
type ComponentStatus struct {
	Name      string         `json:"name"`
	Healthy   bool           `json:"healthy"`
	Details   map[string]any `json:"details"`
	CheckedAt time.Time      `json:"checked_at"`
}

// SystemHealth is Monitor.GetSystemHealth's aggregate return shape.
type SystemHealth struct {
	Healthy    bool                       `json:"healthy"`
	Status     string                     `json:"status"`
	Components map[string]ComponentStatus `json:"components"`
	Summary    HealthSummary              `json:"summary"`
	CheckedAt  time.Time                  `json:"checked_at"`
}

type HealthSummary struct {
	TotalComponents     int `json:"total_components"`
	HealthyComponents   int `json:"healthy_components"`
	UnhealthyComponents int `json:"unhealthy_components"`
}

// queueFailedThreshold and queueBacklogThreshold mirror the source's fixed
// health thresholds for the message_queue component.
const (
	queueFailedThreshold  = 100
	queueBacklogThreshold = 1000
)

// Monitor periodically checks the database, Redis, the Bridge, and the
// queue, and caches the latest result for GetSystemHealth.
type Monitor struct {
	db          *database.DB
	redis       *goredis.Client
	bridge      *bridge.Client
	queue       *queue.Queue

	mu         sync.RWMutex
	lastStatus map[string]ComponentStatus
	running    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewMonitor(db *database.DB, redisClient *goredis.Client, bridgeClient *bridge.Client, q *queue.Queue) *Monitor {
	return &Monitor{db: db, redis: redisClient, bridge: bridgeClient, queue: q, lastStatus: map[string]ComponentStatus{}}
}

// StartMonitoring launches the periodic check loop. A second call while
// already running is a no-op.
func (m *Monitor) StartMonitoring(ctx context.Context, interval time.Duration) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		log.Warn().Msg("integration monitor already running")
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.monitorLoop(loopCtx, interval)
	log.Info().Dur("interval", interval).Msg("integration monitor started")
}

// StopMonitoring cancels the loop and blocks until it exits.
func (m *Monitor) StopMonitoring() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.cancel()
	m.running = false
	m.mu.Unlock()

	m.wg.Wait()
	log.Info().Msg("integration monitor stopped")
}

func (m *Monitor) monitorLoop(ctx context.Context, interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckAllComponents(ctx)
		}
	}
}

// CheckAllComponents runs every component check concurrently, caches the
// result, and returns it.
func (m *Monitor) CheckAllComponents(ctx context.Context) map[string]ComponentStatus {
	type namedCheck struct {
		name string
		fn   func(context.Context) ComponentStatus
	}
	checks := []namedCheck{
		{"database", m.checkDatabase},
		{"redis", m.checkRedis},
		{"whatsapp_bridge", m.checkBridge},
		{"message_queue", m.checkQueue},
	}

	results := make(map[string]ComponentStatus, len(checks))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, c := range checks {
		wg.Add(1)
		go func(c namedCheck) {
			defer wg.Done()
			status := c.fn(ctx)
			mu.Lock()
			results[c.name] = status
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	m.mu.Lock()
	m.lastStatus = results
	m.mu.Unlock()

	healthy := 0
	for _, s := range results {
		if s.Healthy {
			healthy++
		}
	}
	overall := "healthy"
	if healthy != len(results) {
		overall = "degraded"
	}
	log.Info().Str("status", overall).Int("healthy", healthy).Int("total", len(results)).
		Msg("integration health check")

	return results
}

func (m *Monitor) checkDatabase(ctx context.Context) ComponentStatus {
	now := time.Now().UTC()
	if err := m.db.Ping(); err != nil {
		return ComponentStatus{Name: "database", Healthy: false, Details: map[string]any{"error": err.Error()}, CheckedAt: now}
	}

	var userCount, messageCount int64
	_ = m.db.SQL.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&userCount)
	_ = m.db.SQL.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&messageCount)

	return ComponentStatus{
		Name:    "database",
		Healthy: true,
		Details: map[string]any{
			"connection": "established",
			"users":      userCount,
			"messages":   messageCount,
		},
		CheckedAt: now,
	}
}

func (m *Monitor) checkRedis(ctx context.Context) ComponentStatus {
	now := time.Now().UTC()
	if err := m.redis.Ping(ctx).Err(); err != nil {
		return ComponentStatus{Name: "redis", Healthy: false, Details: map[string]any{"error": err.Error()}, CheckedAt: now}
	}

	info, err := m.redis.Info(ctx, "memory").Result()
	if err != nil {
		info = ""
	}

	return ComponentStatus{
		Name:    "redis",
		Healthy: true,
		Details: map[string]any{
			"connection":  "established",
			"memory_info": info,
		},
		CheckedAt: now,
	}
}

func (m *Monitor) checkBridge(ctx context.Context) ComponentStatus {
	now := time.Now().UTC()
	health, err := m.bridge.HealthCheck(ctx)
	if err != nil {
		return ComponentStatus{Name: "whatsapp_bridge", Healthy: false, Details: map[string]any{"error": err.Error()}, CheckedAt: now}
	}

	healthy := health.Status == "healthy" || health.Status == "ok"
	return ComponentStatus{
		Name:    "whatsapp_bridge",
		Healthy: healthy,
		Details: map[string]any{
			"status":  health.Status,
			"version": health.Version,
		},
		CheckedAt: now,
	}
}

func (m *Monitor) checkQueue(ctx context.Context) ComponentStatus {
	now := time.Now().UTC()
	stats, err := m.queue.Stats(ctx)
	if err != nil {
		return ComponentStatus{Name: "message_queue", Healthy: false, Details: map[string]any{"error": err.Error()}, CheckedAt: now}
	}

	totalQueued := stats.Total - stats.Failed
	healthy := stats.Failed < queueFailedThreshold && totalQueued < queueBacklogThreshold

	return ComponentStatus{
		Name:    "message_queue",
		Healthy: healthy,
		Details: map[string]any{
			"queues":     stats.Queues,
			"processing": stats.Processing,
			"failed":     stats.Failed,
			"total":      stats.Total,
		},
		CheckedAt: now,
	}
}

// GetSystemHealth returns the cached check result, running one first if
// none has ever completed.
func (m *Monitor) GetSystemHealth(ctx context.Context) SystemHealth {
	m.mu.RLock()
	empty := len(m.lastStatus) == 0
	m.mu.RUnlock()
	if empty {
		m.CheckAllComponents(ctx)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	healthy, unhealthy := 0, 0
	components := make(map[string]ComponentStatus, len(m.lastStatus))
	for name, s := range m.lastStatus {
		components[name] = s
		if s.Healthy {
			healthy++
		} else {
			unhealthy++
		}
	}

	status := "healthy"
	if unhealthy > 0 {
		status = "degraded"
	}

	return SystemHealth{
		Healthy:    unhealthy == 0,
		Status:     status,
		Components: components,
		Summary: HealthSummary{
			TotalComponents:     len(m.lastStatus),
			HealthyComponents:   healthy,
			UnhealthyComponents: unhealthy,
		},
		CheckedAt: time.Now().UTC(),
	}
}

// GetComponentHealth returns the cached status for one component.
func (m *Monitor) GetComponentHealth(name string) (ComponentStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.lastStatus[name]
	return s, ok
}
