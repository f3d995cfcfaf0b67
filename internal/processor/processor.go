// Package processor implements the message processor (C8): a pool of
// worker loops that dequeue from the priority queue, run a turn through the
// agent service, send the reply over the Bridge, and acknowledge or retry.
// Grounded on internal/core/jobs/worker.go's Start/Stop/WaitGroup/mutex
// idiom from the teacher, with the dequeue/process/ack-or-retry cycle taken
// from message_processor.py in the distillation source.
package processor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/agent"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/bridge"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/queue"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/repository"
)

// idlePollInterval is how long a worker sleeps after an empty dequeue.
const idlePollInterval = 1 * time.Second

// backpressureDelay is how long a worker sleeps after a loop-level
// (storage/transport) failure, to avoid a tight error spin.
const backpressureDelay = 5 * time.Second

// SystemSessionID is the Bridge session identifier the system number's
// connected session is created under; every outbound reply is sent through
// it regardless of which per-user relational Session row owns the stored
// messages.
const SystemSessionID = "system"

// Processor runs N worker goroutines over the shared queue.
type Processor struct {
	queue  *queue.Queue
	agent  *agent.Service
	bridge *bridge.Client
	users  *repository.UserRepository

	workerCount int
	wg          sync.WaitGroup

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

func New(q *queue.Queue, agentSvc *agent.Service, bridgeClient *bridge.Client, users *repository.UserRepository, workerCount int) *Processor {
	if workerCount <= 0 {
		workerCount = 3
	}
	return &Processor{queue: q, agent: agentSvc, bridge: bridgeClient, users: users, workerCount: workerCount}
}

// Start spawns the configured number of worker goroutines.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		log.Warn().Msg("message processor already running")
		return
	}
	workerCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.mu.Unlock()

	log.Info().Int("workers", p.workerCount).Msg("starting message processor workers")
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.runWorker(workerCtx, i+1)
	}
}

// Stop cancels every worker goroutine and blocks until they exit.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
	log.Info().Msg("message processor stopped")
}

// Running reports whether workers are currently active, for orchestrator
// status reporting.
func (p *Processor) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// WorkerCount returns the configured number of worker goroutines.
func (p *Processor) WorkerCount() int {
	return p.workerCount
}

func (p *Processor) runWorker(ctx context.Context, workerID int) {
	defer p.wg.Done()
	log.Info().Int("worker", workerID).Msg("message processor worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Int("worker", workerID).Msg("message processor worker stopping")
			return
		default:
		}

		processed, err := p.ProcessSingle(ctx)
		if err != nil {
			log.Error().Err(err).Int("worker", workerID).Msg("message processor loop error")
			time.Sleep(backpressureDelay)
			continue
		}
		if !processed {
			time.Sleep(idlePollInterval)
		}
	}
}

// ProcessSingle performs at most one dequeue-and-process cycle, for tests
// and manual triggers (mirrors process_single() in the source).
func (p *Processor) ProcessSingle(ctx context.Context) (bool, error) {
	msg, err := p.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, nil
	}

	p.process(ctx, msg)
	return true, nil
}

func (p *Processor) process(ctx context.Context, msg *queue.Message) {
	log.Info().Str("message_id", msg.ID).Uint("user_id", msg.UserID).Msg("processing queued message")

	result, err := p.agent.ProcessTurn(ctx, msg.UserID, msg.Content)
	if err != nil {
		p.retryOrFail(ctx, msg, err.Error())
		return
	}

	if err := p.deliver(ctx, msg.UserID, result.Content); err != nil {
		if errors.Is(err, bridge.ErrConnection) {
			p.retryOrFail(ctx, msg, err.Error())
			return
		}
		// Bridge session errors are logical (not connected, missing) and
		// are surfaced to operators rather than retried, per spec §7.
		log.Error().Err(err).Str("message_id", msg.ID).Msg("bridge session error delivering reply, not retrying")
	}

	if _, err := p.queue.Acknowledge(ctx, msg.ID); err != nil {
		log.Error().Err(err).Str("message_id", msg.ID).Msg("failed to acknowledge message")
		return
	}
	log.Info().Str("message_id", msg.ID).Msg("successfully processed message")
}

func (p *Processor) deliver(ctx context.Context, userID uint, content string) error {
	user, err := p.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}

	_, err = p.bridge.SendMessage(ctx, SystemSessionID, user.JID(), content, "")
	return err
}

func (p *Processor) retryOrFail(ctx context.Context, msg *queue.Message, cause string) {
	retried, err := p.queue.Retry(ctx, msg, cause)
	if err != nil {
		log.Error().Err(err).Str("message_id", msg.ID).Msg("failed to retry message")
		return
	}
	if !retried {
		log.Error().Str("message_id", msg.ID).Msg("message moved to failed queue")
	}
}
