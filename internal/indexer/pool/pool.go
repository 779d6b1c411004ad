// Package pool provides the fixed-size execution pool used by indexing runs.
//
// A Pool owns a number of slots. Each indexing run opens a Run, submits tasks
// to it and waits for them. Submission never blocks the caller: Go queues the
// task until a slot frees, and TryGo starts it only when a slot is free right
// now, leaving the caller to execute the work inline otherwise. A Run's
// context is cancelled when its deadline passes, when its parent context ends
// or when the Pool shuts down. Tasks are expected to check it, since closing
// a Run waits for all of its tasks to return.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrPoolClosed is returned by NewRun after Shutdown.
var ErrPoolClosed = errors.New("worker pool is shut down")

// Task is a unit of work executed on a pool slot.
type Task func(ctx context.Context)

// Pool is a fixed set of execution slots shared by all runs.
type Pool struct {
	size   int
	slots  *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	logger *slog.Logger
}

// New creates a pool with size slots. A non-positive size degrades to 1.
func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		size:   size,
		slots:  semaphore.NewWeighted(int64(size)),
		ctx:    ctx,
		cancel: cancel,
		logger: slog.Default().With("component", "worker-pool"),
	}
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return p.size
}

// Closed reports whether Shutdown has been called.
func (p *Pool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Shutdown stops the pool from accepting new runs and cancels the context
// of every run in flight. It is safe to call more than once.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.cancel()
	p.logger.Info("worker pool shut down", "size", p.size)
}

// NewRun opens a task group whose context derives from parent and is also
// cancelled when the pool shuts down. The caller must call Close.
func (p *Pool) NewRun(parent context.Context) (*Run, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(p.ctx, cancel)
	return &Run{
		pool:   p,
		ctx:    ctx,
		cancel: cancel,
		stop:   stop,
	}, nil
}

// Run tracks the tasks submitted for one indexing run.
type Run struct {
	pool   *Pool
	ctx    context.Context
	cancel context.CancelFunc
	stop   func() bool
	wg     sync.WaitGroup
}

// Go submits task without blocking. The task waits for a free slot and is
// dropped if the run is cancelled first.
func (r *Run) Go(task Task) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.pool.slots.Acquire(r.ctx, 1); err != nil {
			return
		}
		defer r.pool.slots.Release(1)
		task(r.ctx)
	}()
}

// TryGo starts task on a slot if one is free and reports whether it did.
// When it returns false the caller should run the work itself.
func (r *Run) TryGo(task Task) bool {
	if r.ctx.Err() != nil {
		return false
	}
	if !r.pool.slots.TryAcquire(1) {
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.pool.slots.Release(1)
		task(r.ctx)
	}()
	return true
}

// Wait blocks until every submitted task has returned or the run's context
// ends. In the latter case tasks may still be running and the context's
// cause is returned; Close waits for them.
func (r *Run) Wait() error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-r.ctx.Done():
		// A run that finished at the same instant still counts as complete.
		select {
		case <-done:
			return nil
		default:
		}
		return fmt.Errorf("waiting for indexing tasks: %w", context.Cause(r.ctx))
	}
}

// Close cancels the run's context, detaches it from the pool and waits for
// every task to return. Tasks queued in Go that never got a slot are
// dropped. Close is safe to call more than once.
func (r *Run) Close() {
	r.cancel()
	r.stop()
	r.wg.Wait()
}
