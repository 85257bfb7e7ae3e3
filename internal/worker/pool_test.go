package worker_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsight/persona-api/config"
	"github.com/chainsight/persona-api/internal/worker"
)

func newPool(t *testing.T, cfg config.WorkerConfig) *worker.Pool {
	t.Helper()
	return worker.NewPool(worker.PoolOptions{Config: cfg})
}

func TestPool_ExecutesEnqueuedTasks(t *testing.T) {
	t.Parallel()

	p := newPool(t, config.WorkerConfig{Concurrency: 2, QueueDepth: 8, ShutdownGrace: time.Second})
	p.Start(context.Background(), 2)

	var ran atomic.Int32
	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		ok := p.Enqueue(func(ctx context.Context) {
			defer wg.Done()
			ran.Add(1)
		})
		require.True(t, ok)
	}
	wg.Wait()

	require.NoError(t, p.Shutdown(context.Background()))
	assert.EqualValues(t, 5, ran.Load())
}

func TestPool_EnqueueRejectsWhenFull(t *testing.T) {
	t.Parallel()

	// One worker blocked on a task plus a single queue slot: the third
	// enqueue must be rejected rather than block the caller.
	p := newPool(t, config.WorkerConfig{Concurrency: 1, QueueDepth: 1, ShutdownGrace: time.Second})
	p.Start(context.Background(), 1)

	release := make(chan struct{})
	running := make(chan struct{})
	require.True(t, p.Enqueue(func(ctx context.Context) {
		close(running)
		<-release
	}))
	<-running

	require.True(t, p.Enqueue(func(ctx context.Context) {}))
	assert.False(t, p.Enqueue(func(ctx context.Context) {}))

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPool_EnqueueRejectsAfterShutdown(t *testing.T) {
	t.Parallel()

	p := newPool(t, config.WorkerConfig{Concurrency: 1, QueueDepth: 4, ShutdownGrace: time.Second})
	p.Start(context.Background(), 1)
	require.NoError(t, p.Shutdown(context.Background()))

	assert.False(t, p.Enqueue(func(ctx context.Context) {}))
}

func TestPool_ShutdownDrainsQueuedTasks(t *testing.T) {
	t.Parallel()

	p := newPool(t, config.WorkerConfig{Concurrency: 1, QueueDepth: 8, ShutdownGrace: 5 * time.Second})
	p.Start(context.Background(), 1)

	var ran atomic.Int32
	for range 4 {
		require.True(t, p.Enqueue(func(ctx context.Context) {
			time.Sleep(5 * time.Millisecond)
			ran.Add(1)
		}))
	}

	require.NoError(t, p.Shutdown(context.Background()))
	assert.EqualValues(t, 4, ran.Load())
}

func TestPool_QueuedTasksGetLiveContextAfterSignal(t *testing.T) {
	t.Parallel()

	// Cancelling the lifecycle context (the signal path) triggers the
	// drain, but drained tasks must still get a usable context so their
	// cache writes can finish within the grace period.
	p := newPool(t, config.WorkerConfig{Concurrency: 1, QueueDepth: 8, ShutdownGrace: 5 * time.Second})
	lifecycle, cancel := context.WithCancel(context.Background())
	p.Start(lifecycle, 1)

	gate := make(chan struct{})
	require.True(t, p.Enqueue(func(ctx context.Context) { <-gate }))

	var sawLiveCtx atomic.Bool
	done := make(chan struct{})
	require.True(t, p.Enqueue(func(ctx context.Context) {
		sawLiveCtx.Store(ctx.Err() == nil)
		close(done)
	}))

	cancel()
	close(gate)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queued task was not drained after cancel")
	}
	assert.True(t, sawLiveCtx.Load(), "drained task ran with a cancelled context")
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPool_RecoversFromTaskPanic(t *testing.T) {
	t.Parallel()

	p := newPool(t, config.WorkerConfig{Concurrency: 1, QueueDepth: 4, ShutdownGrace: time.Second})
	p.Start(context.Background(), 1)

	done := make(chan struct{})
	require.True(t, p.Enqueue(func(ctx context.Context) { panic("boom") }))
	require.True(t, p.Enqueue(func(ctx context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not survive task panic")
	}
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPool_ShutdownWithoutStart(t *testing.T) {
	t.Parallel()

	p := newPool(t, config.WorkerConfig{Concurrency: 1, QueueDepth: 1, ShutdownGrace: time.Second})
	require.NoError(t, p.Shutdown(context.Background()))
}
