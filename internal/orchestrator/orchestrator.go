package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/bridge"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/processor"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/queue"
)

// reinitializeSettleDelay mirrors the source's brief pause between shutdown
// and re-initialize, giving the worker goroutines' last dequeue cycle time
// to fully unwind before new ones spin up.
const reinitializeSettleDelay = 2 * time.Second

// Orchestrator sequences startup and shutdown of every long-running
// component: the Bridge connection, the processor worker pool, and the
// health monitor. Initialize/Shutdown are idempotent.
type Orchestrator struct {
	bridge         *bridge.Client
	queue          *queue.Queue
	processor      *processor.Processor
	monitor        *Monitor
	webhookBaseURL string
	healthInterval time.Duration

	mu          sync.Mutex
	initialized bool
}

func New(bridgeClient *bridge.Client, q *queue.Queue, proc *processor.Processor, monitor *Monitor, webhookBaseURL string, healthInterval time.Duration) *Orchestrator {
	return &Orchestrator{
		bridge:         bridgeClient,
		queue:          q,
		processor:      proc,
		monitor:        monitor,
		webhookBaseURL: webhookBaseURL,
		healthInterval: healthInterval,
	}
}

// Initialize brings every component up in order: verify the Bridge is
// reachable, ensure the system session exists, start the processor workers,
// start the monitor, then run one health check to report initial status.
// Calling it again while already initialized is a no-op.
func (o *Orchestrator) Initialize(ctx context.Context) (map[string]any, error) {
	o.mu.Lock()
	if o.initialized {
		o.mu.Unlock()
		log.Warn().Msg("integration already initialized")
		return map[string]any{"status": "already_initialized"}, nil
	}
	o.mu.Unlock()

	log.Info().Msg("initializing WhatsApp integration")
	results := map[string]any{}

	health, err := o.bridge.HealthCheck(ctx)
	if err != nil {
		return map[string]any{"status": "failed", "error": err.Error(), "partial_results": results}, err
	}
	results["bridge_config"] = map[string]any{"status": health.Status}

	sessionResult, err := o.ensureSystemSession(ctx)
	if err != nil {
		return map[string]any{"status": "failed", "error": err.Error(), "partial_results": results}, err
	}
	results["system_session"] = sessionResult

	o.processor.Start(ctx)
	results["message_processors"] = map[string]any{"started": o.processor.WorkerCount()}

	o.monitor.StartMonitoring(ctx, o.healthInterval)
	results["monitor"] = map[string]any{"status": "started", "interval_seconds": o.healthInterval.Seconds()}

	checks := o.monitor.CheckAllComponents(ctx)
	healthyCount := 0
	for _, s := range checks {
		if s.Healthy {
			healthyCount++
		}
	}
	results["health_check"] = map[string]any{
		"healthy":    healthyCount == len(checks),
		"components": checks,
	}

	o.mu.Lock()
	o.initialized = true
	o.mu.Unlock()

	log.Info().Msg("WhatsApp integration initialized successfully")
	return map[string]any{"status": "initialized", "results": results}, nil
}

func (o *Orchestrator) ensureSystemSession(ctx context.Context) (map[string]any, error) {
	status, err := o.bridge.CreateSession(ctx, processor.SystemSessionID, o.webhookBaseURL)
	if err == nil {
		return map[string]any{"status": status.Status}, nil
	}
	if errors.Is(err, bridge.ErrSession) {
		existing, statusErr := o.bridge.GetSessionStatus(ctx, processor.SystemSessionID)
		if statusErr != nil {
			return nil, statusErr
		}
		return map[string]any{"status": existing.Status, "already_existed": true}, nil
	}
	return nil, err
}

// Shutdown stops the monitor and processor workers, then closes the queue
// connection, in reverse startup order. A call while not initialized is a
// no-op.
func (o *Orchestrator) Shutdown(ctx context.Context) (map[string]any, error) {
	o.mu.Lock()
	if !o.initialized {
		o.mu.Unlock()
		return map[string]any{"status": "not_initialized"}, nil
	}
	o.mu.Unlock()

	log.Info().Msg("shutting down WhatsApp integration")

	o.monitor.StopMonitoring()
	o.processor.Stop()
	if err := o.queue.Close(); err != nil {
		log.Error().Err(err).Msg("error closing queue connection during shutdown")
		return map[string]any{"status": "shutdown_error", "error": err.Error()}, err
	}

	o.mu.Lock()
	o.initialized = false
	o.mu.Unlock()

	log.Info().Msg("WhatsApp integration shutdown complete")
	return map[string]any{"status": "shutdown_complete"}, nil
}

// Reinitialize shuts everything down and initializes it again, pausing
// briefly in between for workers to settle.
func (o *Orchestrator) Reinitialize(ctx context.Context) map[string]any {
	log.Info().Msg("reinitializing WhatsApp integration")

	shutdownResult, _ := o.Shutdown(ctx)
	time.Sleep(reinitializeSettleDelay)
	initResult, _ := o.Initialize(ctx)

	return map[string]any{"shutdown": shutdownResult, "initialize": initResult}
}

// GetStatus reports the orchestrator's current state, along with component
// health, queue stats, and Bridge health when initialized.
func (o *Orchestrator) GetStatus(ctx context.Context) map[string]any {
	o.mu.Lock()
	initialized := o.initialized
	o.mu.Unlock()

	status := map[string]any{
		"initialized": initialized,
		"workers": map[string]any{
			"configured": o.processor.WorkerCount(),
			"running":    o.processor.Running(),
		},
	}

	if !initialized {
		return status
	}

	status["health"] = o.monitor.GetSystemHealth(ctx)

	if stats, err := o.queue.Stats(ctx); err == nil {
		status["queue"] = stats
	}

	if health, err := o.bridge.HealthCheck(ctx); err == nil {
		status["bridge"] = health
	} else {
		status["bridge"] = map[string]any{"error": err.Error()}
	}

	return status
}
