// Package worker provides the bounded background pool that executes
// analysis pipeline runs off the request path.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chainsight/persona-api/config"
)

// Pool executes tasks on a fixed set of goroutines fed by a bounded queue.
// Enqueue never blocks: when the queue is full the task is rejected and the
// caller decides how to degrade.
type Pool struct {
	tasks   chan func(ctx context.Context)
	grace   time.Duration
	logger  *slog.Logger
	group   *errgroup.Group
	cancel  context.CancelFunc
	started chan struct{}

	mu     sync.Mutex
	closed bool
}

// PoolOptions groups dependencies for NewPool.
type PoolOptions struct {
	Config config.WorkerConfig
	Logger *slog.Logger // Optional: structured logger
}

// NewPool builds a pool sized by configuration. Workers do not run until
// Start is called.
func NewPool(opts PoolOptions) *Pool {
	cfg := opts.Config
	cfg.Sanitize()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pool{
		tasks:   make(chan func(ctx context.Context), cfg.QueueDepth),
		grace:   cfg.ShutdownGrace,
		logger:  logger.With("component", "worker_pool"),
		started: make(chan struct{}),
	}
}

// Start launches the worker goroutines. Workers drain the queue until
// Shutdown is called or the parent context is cancelled.
func (p *Pool) Start(ctx context.Context, concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}

	// Tasks run on a context detached from the lifecycle one: a shutdown
	// signal must not yank the cache writes of already-accepted work.
	// Shutdown cancels it once the grace period expires.
	taskCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	var loopCtx context.Context
	p.group, loopCtx = errgroup.WithContext(ctx)

	for range concurrency {
		p.group.Go(func() error {
			p.workerLoop(loopCtx, taskCtx)
			return nil
		})
	}
	close(p.started)

	p.logger.InfoContext(ctx, "worker pool started",
		"concurrency", concurrency,
		"queue_depth", cap(p.tasks))
}

func (p *Pool) workerLoop(loopCtx, taskCtx context.Context) {
	for {
		select {
		case <-loopCtx.Done():
			// Drain what is already queued so accepted work is not lost
			// unless the grace period expires first.
			for {
				select {
				case task, ok := <-p.tasks:
					if !ok {
						return
					}
					p.run(taskCtx, task)
				default:
					return
				}
			}
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.run(taskCtx, task)
		}
	}
}

// run executes one task, containing panics so a bad pipeline run cannot
// take down the pool.
func (p *Pool) run(ctx context.Context, task func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "task panicked", "panic", r)
		}
	}()
	task(ctx)
}

// Enqueue offers a task to the pool. It reports false when the queue is
// full or the pool is shutting down.
func (p *Pool) Enqueue(task func(ctx context.Context)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Shutdown stops accepting work, lets workers finish queued tasks within
// the grace period, then cancels anything still running.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	select {
	case <-p.started:
	default:
		// Never started: nothing to wait for.
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- p.group.Wait() }()

	grace := p.grace
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < grace {
			grace = until
		}
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
	case <-ctx.Done():
	}

	p.cancel()
	return <-done
}
