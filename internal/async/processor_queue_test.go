package async_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/expense-auditor/internal/async"
)

func TestProcessorQueue_ProcessesAndCleansUp(t *testing.T) {
	var mu sync.Mutex
	seen := map[uuid.UUID]bool{}
	var cleaned atomic.Int32

	q := async.NewProcessorQueue(async.ProcessorFunc(func(_ context.Context, job async.Job) error {
		mu.Lock()
		defer mu.Unlock()
		seen[job.ExecutionID] = true
		if len(seen)%2 == 0 {
			return errors.New("pipeline failed")
		}
		return nil
	}), nil, async.WithWorkers(3), async.WithQueueSize(2))

	ids := make([]uuid.UUID, 10)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, q.Enqueue(context.Background(), async.Job{
			ExecutionID: ids[i],
			Cleanup:     func() { cleaned.Add(1) },
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, len(ids))
	assert.Equal(t, int32(len(ids)), cleaned.Load())
}

func TestProcessorQueue_RecoversFromPanic(t *testing.T) {
	var calls atomic.Int32
	q := async.NewProcessorQueue(async.ProcessorFunc(func(context.Context, async.Job) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return nil
	}), nil, async.WithWorkers(1))

	require.NoError(t, q.Enqueue(context.Background(), async.Job{ExecutionID: uuid.New()}))
	require.NoError(t, q.Enqueue(context.Background(), async.Job{ExecutionID: uuid.New()}))
	q.Shutdown(context.Background())

	assert.Equal(t, int32(2), calls.Load())
}

func TestProcessorQueue_EnqueueAfterShutdown(t *testing.T) {
	q := async.NewProcessorQueue(async.ProcessorFunc(func(context.Context, async.Job) error { return nil }), nil)
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())

	err := q.Enqueue(context.Background(), async.Job{ExecutionID: uuid.New()})
	assert.ErrorIs(t, err, async.ErrQueueClosed)
}

func TestProcessorQueue_EnqueueHonorsContextWhenFull(t *testing.T) {
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	q := async.NewProcessorQueue(async.ProcessorFunc(func(context.Context, async.Job) error {
		started <- struct{}{}
		<-release
		return nil
	}), nil, async.WithWorkers(1), async.WithQueueSize(1))
	defer func() {
		close(release)
		q.Shutdown(context.Background())
	}()

	// one job held by the worker, one buffered
	require.NoError(t, q.Enqueue(context.Background(), async.Job{ExecutionID: uuid.New()}))
	<-started
	require.NoError(t, q.Enqueue(context.Background(), async.Job{ExecutionID: uuid.New()}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, async.Job{ExecutionID: uuid.New()})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProcessorQueue_AppliesProcessTimeout(t *testing.T) {
	done := make(chan error, 1)
	q := async.NewProcessorQueue(async.ProcessorFunc(func(ctx context.Context, _ async.Job) error {
		<-ctx.Done()
		done <- ctx.Err()
		return ctx.Err()
	}), nil, async.WithProcessTimeout(10*time.Millisecond))
	defer q.Shutdown(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), async.Job{ExecutionID: uuid.New()}))
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not cancelled by the process timeout")
	}
}
