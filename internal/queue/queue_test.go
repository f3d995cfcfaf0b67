package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, "test:queue:", time.Hour, 3, time.Millisecond)
}

func TestPriorityOrdering(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, 1, "first high", PriorityHigh, nil)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, 1, "low", PriorityLow, nil)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, 1, "second high", PriorityHigh, nil)
	require.NoError(t, err)

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "first high", first.Content)

	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "second high", second.Content)

	third, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "low", third.Content)
}

func TestAtLeastOnceUntilAcknowledged(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, 1, "hello", PriorityNormal, nil)
	require.NoError(t, err)

	msg, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.Processing)

	ok, err := q.Acknowledge(ctx, msg.ID)
	require.NoError(t, err)
	require.True(t, ok)

	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, stats.Processing)
	require.EqualValues(t, 0, stats.Total)
}

func TestRetryBackoffAndMaxRetries(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	msg, err := q.Enqueue(ctx, 1, "retry me", PriorityNormal, nil)
	require.NoError(t, err)

	dequeued, err := q.Dequeue(ctx)
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		start := time.Now()
		retried, err := q.Retry(ctx, dequeued, "boom")
		require.NoError(t, err)
		require.True(t, retried)
		elapsed := time.Since(start)
		want := q.baseDelay * time.Duration(1<<uint(i-1))
		require.GreaterOrEqual(t, elapsed, want)

		dequeued, err = q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, dequeued)
	}

	moved, err := q.Retry(ctx, dequeued, "final failure")
	require.NoError(t, err)
	require.False(t, moved)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.Failed)
	require.EqualValues(t, 0, stats.Processing)
	require.EqualValues(t, 0, stats.Queues[PriorityHigh]+stats.Queues[PriorityNormal]+stats.Queues[PriorityLow])

	_ = msg
}

func TestRequeueFailedResetsRetryCount(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	msg, err := q.Enqueue(ctx, 1, "will fail", PriorityNormal, nil)
	require.NoError(t, err)
	dequeued, err := q.Dequeue(ctx)
	require.NoError(t, err)
	_ = msg

	for dequeued.RetryCount < dequeued.MaxRetries {
		retried, err := q.Retry(ctx, dequeued, "err")
		require.NoError(t, err)
		if !retried {
			break
		}
		dequeued, err = q.Dequeue(ctx)
		require.NoError(t, err)
	}

	n, err := q.RequeueFailed(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	requeued, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, requeued)
	require.Equal(t, 0, requeued.RetryCount)
}
