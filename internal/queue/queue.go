// Package queue implements the priority message queue (C7): three priority
// lanes plus a processing set and a failed set, backed by Redis list
// primitives, with at-least-once handoff and bounded exponential-backoff
// retry. Semantics follow message_queue.py in the distillation source
// line-for-line (RPOPLPUSH for dequeue, LREM+LPUSH to rewrite the
// processing copy, inline sleep inside retry).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// Priority is one of the three lanes a message can be enqueued on.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// DefaultPriorities is the lane visiting order Dequeue uses when the caller
// does not narrow it: high is always checked first so it is never starved
// by lower lanes for more than one dequeue cycle.
var DefaultPriorities = []Priority{PriorityHigh, PriorityNormal, PriorityLow}

// Message is the record stored in the queue, serialized as self-describing
// JSON on every Redis list.
type Message struct {
	ID            string         `json:"id"`
	UserID        uint           `json:"user_id"`
	Content       string         `json:"content"`
	Priority      Priority       `json:"priority"`
	RetryCount    int            `json:"retry_count"`
	MaxRetries    int            `json:"max_retries"`
	CreatedAt     time.Time      `json:"created_at"`
	LastAttemptAt *time.Time     `json:"last_attempt_at,omitempty"`
	Error         string         `json:"error,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Stats mirrors get_queue_stats' shape.
type Stats struct {
	Queues     map[Priority]int64 `json:"queues"`
	Processing int64              `json:"processing"`
	Failed     int64              `json:"failed"`
	Total      int64              `json:"total"`
}

// Queue wraps a Redis client scoped to a key prefix and the retry policy
// the core enforces (max retries, base backoff delay, key TTL).
type Queue struct {
	client     *redis.Client
	prefix     string
	ttl        time.Duration
	maxRetries int
	baseDelay  time.Duration
}

// New constructs a Queue. prefix should end with a separator (e.g.
// "zapa:queue:") so the five namespaced keys read "<prefix>high" etc.
func New(client *redis.Client, prefix string, ttl time.Duration, maxRetries int, baseDelay time.Duration) *Queue {
	return &Queue{client: client, prefix: prefix, ttl: ttl, maxRetries: maxRetries, baseDelay: baseDelay}
}

func (q *Queue) queueKey(p Priority) string { return q.prefix + string(p) }
func (q *Queue) processingKey() string      { return q.prefix + "processing" }
func (q *Queue) failedKey() string          { return q.prefix + "failed" }

// Close releases the underlying Redis client.
func (q *Queue) Close() error {
	return q.client.Close()
}

// Enqueue builds a record (id "<user_id>:<microsecond-clock>", retry_count
// 0) and pushes it onto the chosen priority lane from the left, refreshing
// the lane's TTL.
func (q *Queue) Enqueue(ctx context.Context, userID uint, content string, priority Priority, metadata map[string]any) (*Message, error) {
	msg := &Message{
		ID:         fmt.Sprintf("%d:%d", userID, time.Now().UnixMicro()),
		UserID:     userID,
		Content:    content,
		Priority:   priority,
		MaxRetries: q.maxRetries,
		CreatedAt:  time.Now().UTC(),
		Metadata:   metadata,
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal queued message: %w", err)
	}

	key := q.queueKey(priority)
	if err := q.client.LPush(ctx, key, raw).Err(); err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	if err := q.client.Expire(ctx, key, q.ttl).Err(); err != nil {
		return nil, fmt.Errorf("refresh queue ttl: %w", err)
	}

	log.Info().Str("message_id", msg.ID).Str("priority", string(priority)).Msg("enqueued message")
	return msg, nil
}

// Dequeue visits each priority in order, attempting an atomic
// pop-right-push-left from that lane to the processing set. On success it
// rewrites the processing copy with a fresh last_attempt_at so the stored
// record reflects when it was actually picked up.
func (q *Queue) Dequeue(ctx context.Context, priorities ...Priority) (*Message, error) {
	if len(priorities) == 0 {
		priorities = DefaultPriorities
	}

	for _, p := range priorities {
		raw, err := q.client.RPopLPush(ctx, q.queueKey(p), q.processingKey()).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("dequeue from %s: %w", p, err)
		}

		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, fmt.Errorf("decode queued message: %w", err)
		}

		now := time.Now().UTC()
		msg.LastAttemptAt = &now

		updated, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("re-marshal queued message: %w", err)
		}
		if err := q.client.LRem(ctx, q.processingKey(), 1, raw).Err(); err != nil {
			return nil, fmt.Errorf("rewrite processing entry: %w", err)
		}
		if err := q.client.LPush(ctx, q.processingKey(), updated).Err(); err != nil {
			return nil, fmt.Errorf("rewrite processing entry: %w", err)
		}

		log.Info().Str("message_id", msg.ID).Str("priority", string(p)).Msg("dequeued message")
		return &msg, nil
	}

	return nil, nil
}

// Acknowledge removes the first matching record from the processing set.
func (q *Queue) Acknowledge(ctx context.Context, id string) (bool, error) {
	entries, err := q.client.LRange(ctx, q.processingKey(), 0, -1).Result()
	if err != nil {
		return false, fmt.Errorf("scan processing set: %w", err)
	}

	for _, raw := range entries {
		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			continue
		}
		if msg.ID == id {
			if err := q.client.LRem(ctx, q.processingKey(), 1, raw).Err(); err != nil {
				return false, fmt.Errorf("remove from processing set: %w", err)
			}
			log.Info().Str("message_id", id).Msg("acknowledged message")
			return true, nil
		}
	}

	log.Warn().Str("message_id", id).Msg("message not found in processing queue")
	return false, nil
}

// Retry increments retry_count, removes the stale copy from processing and
// either moves the record to the failed queue (retry ceiling reached,
// returns false) or sleeps the exponential backoff delay and re-enqueues
// onto the low priority lane (returns true). The backoff sleep is inline
// and blocks the calling goroutine, matching the source's
// await asyncio.sleep(delay) before re-enqueue; see DESIGN.md for why this
// redesign option was kept over a delayed-visibility queue.
func (q *Queue) Retry(ctx context.Context, msg *Message, cause string) (bool, error) {
	msg.RetryCount++
	msg.Error = cause
	now := time.Now().UTC()
	msg.LastAttemptAt = &now

	if err := q.removeFromProcessing(ctx, msg.ID); err != nil {
		return false, err
	}

	if msg.RetryCount >= msg.MaxRetries {
		raw, err := json.Marshal(msg)
		if err != nil {
			return false, fmt.Errorf("marshal failed message: %w", err)
		}
		if err := q.client.LPush(ctx, q.failedKey(), raw).Err(); err != nil {
			return false, fmt.Errorf("move to failed queue: %w", err)
		}
		log.Error().Str("message_id", msg.ID).Int("retry_count", msg.RetryCount).
			Msg("message exceeded max retries, moved to failed queue")
		return false, nil
	}

	delay := q.baseDelay * time.Duration(1<<uint(msg.RetryCount-1))
	time.Sleep(delay)

	raw, err := json.Marshal(msg)
	if err != nil {
		return false, fmt.Errorf("marshal retried message: %w", err)
	}
	if err := q.client.LPush(ctx, q.queueKey(PriorityLow), raw).Err(); err != nil {
		return false, fmt.Errorf("requeue to low priority: %w", err)
	}

	log.Info().Str("message_id", msg.ID).Int("retry_count", msg.RetryCount).Msg("retrying message")
	return true, nil
}

func (q *Queue) removeFromProcessing(ctx context.Context, id string) error {
	entries, err := q.client.LRange(ctx, q.processingKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("scan processing set: %w", err)
	}
	for _, raw := range entries {
		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			continue
		}
		if msg.ID == id {
			return q.client.LRem(ctx, q.processingKey(), 1, raw).Err()
		}
	}
	return nil
}

// Stats reports the length of every lane plus processing and failed.
func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Queues: map[Priority]int64{}}

	for _, p := range DefaultPriorities {
		n, err := q.client.LLen(ctx, q.queueKey(p)).Result()
		if err != nil {
			return nil, fmt.Errorf("llen %s: %w", p, err)
		}
		stats.Queues[p] = n
		stats.Total += n
	}

	processing, err := q.client.LLen(ctx, q.processingKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("llen processing: %w", err)
	}
	failed, err := q.client.LLen(ctx, q.failedKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("llen failed: %w", err)
	}

	stats.Processing = processing
	stats.Failed = failed
	stats.Total += processing + failed
	return stats, nil
}

// ClearFailed deletes the failed queue entirely, returning its prior length.
func (q *Queue) ClearFailed(ctx context.Context) (int64, error) {
	count, err := q.client.LLen(ctx, q.failedKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("llen failed: %w", err)
	}
	if err := q.client.Del(ctx, q.failedKey()).Err(); err != nil {
		return 0, fmt.Errorf("delete failed queue: %w", err)
	}
	log.Info().Int64("count", count).Msg("cleared failed messages")
	return count, nil
}

// RequeueFailed moves every record from failed to normal priority with
// retry_count reset to zero, then deletes the failed queue.
func (q *Queue) RequeueFailed(ctx context.Context) (int, error) {
	entries, err := q.client.LRange(ctx, q.failedKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("scan failed queue: %w", err)
	}

	count := 0
	for _, raw := range entries {
		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			continue
		}
		msg.RetryCount = 0
		msg.Error = ""

		updated, err := json.Marshal(msg)
		if err != nil {
			return count, fmt.Errorf("re-marshal failed message: %w", err)
		}
		if err := q.client.LPush(ctx, q.queueKey(PriorityNormal), updated).Err(); err != nil {
			return count, fmt.Errorf("requeue failed message: %w", err)
		}
		count++
	}

	if err := q.client.Del(ctx, q.failedKey()).Err(); err != nil {
		return count, fmt.Errorf("delete failed queue: %w", err)
	}

	log.Info().Int("count", count).Msg("requeued failed messages")
	return count, nil
}

// ReapStaleProcessing moves processing entries whose last_attempt_at is
// older than threshold back onto the low priority lane. This implements the
// reaper spec.md §9 invites implementers to add; see DESIGN.md for the
// decision record.
func (q *Queue) ReapStaleProcessing(ctx context.Context, threshold time.Duration) (int, error) {
	entries, err := q.client.LRange(ctx, q.processingKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("scan processing set: %w", err)
	}

	cutoff := time.Now().UTC().Add(-threshold)
	count := 0
	for _, raw := range entries {
		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			continue
		}
		if msg.LastAttemptAt == nil || msg.LastAttemptAt.After(cutoff) {
			continue
		}

		if err := q.client.LRem(ctx, q.processingKey(), 1, raw).Err(); err != nil {
			return count, fmt.Errorf("remove stale processing entry: %w", err)
		}
		if err := q.client.LPush(ctx, q.queueKey(PriorityLow), raw).Err(); err != nil {
			return count, fmt.Errorf("reap to low priority: %w", err)
		}
		count++
		log.Warn().Str("message_id", msg.ID).Msg("reaped stale processing entry back to low priority queue")
	}

	return count, nil
}
