package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlushQueue(t *testing.T) {
	ctx := context.Background()

	t.Run("drains jobs per session in ordering key order", func(t *testing.T) {
		queue := NewMemoryJobQueue()
		for key := 3; key >= 1; key-- {
			_, err := queue.Enqueue(ctx, "sess_1", JobTypeUpload, []byte{byte(key)}, key)
			require.NoError(t, err)
		}

		var mu sync.Mutex
		var order []int
		result, err := FlushQueue(ctx, queue, func(ctx context.Context, job *QueueJob) error {
			mu.Lock()
			order = append(order, job.OrderingKey)
			mu.Unlock()
			return nil
		}, nil)
		require.NoError(t, err)
		require.Equal(t, 3, result.Succeeded)
		require.Equal(t, []int{1, 2, 3}, order)

		pending, err := queue.ListPending(ctx)
		require.NoError(t, err)
		require.Empty(t, pending)
	})

	t.Run("session-scoped flush leaves other sessions pending", func(t *testing.T) {
		queue := NewMemoryJobQueue()
		_, err := queue.Enqueue(ctx, "sess_a", JobTypeUpload, nil, 2)
		require.NoError(t, err)
		_, err = queue.Enqueue(ctx, "sess_a", JobTypeClassifySet, nil, 1)
		require.NoError(t, err)
		_, err = queue.Enqueue(ctx, "sess_b", JobTypeUpload, nil, 1)
		require.NoError(t, err)

		var mu sync.Mutex
		var order []int
		result, err := FlushSessionQueue(ctx, queue, "sess_a", func(ctx context.Context, job *QueueJob) error {
			mu.Lock()
			order = append(order, job.OrderingKey)
			mu.Unlock()
			require.Equal(t, "sess_a", job.SessionID)
			return nil
		}, nil)
		require.NoError(t, err)
		require.Equal(t, 2, result.Succeeded)
		require.Equal(t, []int{1, 2}, order)

		pending, err := queue.ListPending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		require.Equal(t, "sess_b", pending[0].SessionID)
	})

	t.Run("sessions flush independently", func(t *testing.T) {
		queue := NewMemoryJobQueue()
		_, err := queue.Enqueue(ctx, "sess_a", JobTypeUpload, nil, 1)
		require.NoError(t, err)
		_, err = queue.Enqueue(ctx, "sess_a", JobTypeUpload, nil, 2)
		require.NoError(t, err)
		_, err = queue.Enqueue(ctx, "sess_b", JobTypeUpload, nil, 1)
		require.NoError(t, err)

		// sess_a fails on its first job; sess_b must still drain.
		result, err := FlushQueue(ctx, queue, func(ctx context.Context, job *QueueJob) error {
			if job.SessionID == "sess_a" {
				return errors.New("boom")
			}
			return nil
		}, nil)
		require.NoError(t, err)
		require.Equal(t, 1, result.Succeeded)
		require.Equal(t, 1, result.Failed)
		require.Equal(t, 2, result.Processed, "sess_a's second job is not attempted")

		pending, err := queue.ListPending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		for _, job := range pending {
			require.Equal(t, "sess_a", job.SessionID)
		}
	})

	t.Run("failed jobs stay for the next pass", func(t *testing.T) {
		queue := NewMemoryJobQueue()
		_, err := queue.Enqueue(ctx, "sess_1", JobTypeUpload, nil, 1)
		require.NoError(t, err)

		attempts := 0
		worker := func(ctx context.Context, job *QueueJob) error {
			attempts++
			if attempts == 1 {
				return errors.New("network down")
			}
			return nil
		}

		result, err := FlushQueue(ctx, queue, worker, nil)
		require.NoError(t, err)
		require.Equal(t, 1, result.Failed)
		require.Equal(t, 1, attempts, "no retry loop within one pass")

		result, err = FlushQueue(ctx, queue, worker, nil)
		require.NoError(t, err)
		require.Equal(t, 1, result.Succeeded)
	})

	t.Run("jobs purged mid flush are skipped", func(t *testing.T) {
		queue := NewMemoryJobQueue()
		_, err := queue.Enqueue(ctx, "sess_1", JobTypeUpload, nil, 1)
		require.NoError(t, err)

		result, err := FlushQueue(ctx, queue, func(ctx context.Context, job *QueueJob) error {
			// A discard lands while the worker is running.
			return queue.Purge(ctx, "sess_1")
		}, nil)
		require.NoError(t, err)
		require.Equal(t, 1, result.Skipped)
		require.Zero(t, result.Succeeded)
		require.Zero(t, result.Failed)
	})

	t.Run("type filter leaves other jobs pending", func(t *testing.T) {
		queue := NewMemoryJobQueue()
		_, err := queue.Enqueue(ctx, "sess_1", JobTypeUpload, nil, 1)
		require.NoError(t, err)
		_, err = queue.Enqueue(ctx, "sess_1", JobTypeClassifySet, nil, 2)
		require.NoError(t, err)

		result, err := FlushQueue(ctx, queue, func(ctx context.Context, job *QueueJob) error {
			require.Equal(t, JobTypeUpload, job.Type)
			return nil
		}, nil, JobTypeUpload)
		require.NoError(t, err)
		require.Equal(t, 1, result.Succeeded)

		pending, err := queue.ListPending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		require.Equal(t, JobTypeClassifySet, pending[0].Type)
	})

	t.Run("canceled context stops the pass", func(t *testing.T) {
		queue := NewMemoryJobQueue()
		_, err := queue.Enqueue(ctx, "sess_1", JobTypeUpload, nil, 1)
		require.NoError(t, err)
		_, err = queue.Enqueue(ctx, "sess_1", JobTypeUpload, nil, 2)
		require.NoError(t, err)

		flushCtx, cancel := context.WithCancel(ctx)
		result, err := FlushQueue(flushCtx, queue, func(ctx context.Context, job *QueueJob) error {
			cancel()
			return nil
		}, nil)
		require.NoError(t, err)
		require.Equal(t, 1, result.Processed)
	})
}
