package preflex

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// PoolConfig models optional configuration for NewPool.
type PoolConfig struct {
	// Name is a caller-chosen label. Optional.
	Name string

	// CoreThreads is the number of workers kept alive even when idle.
	// Defaults to MaxThreads when zero.
	CoreThreads int

	// KeepAlive bounds how long a non-core worker waits for a task
	// before exiting. Defaults to one minute.
	KeepAlive time.Duration

	// AllowCoreThreadTimeout lets core workers also exit after
	// KeepAlive idle time, down to zero live workers.
	AllowCoreThreadTimeout bool
}

type poolTask struct {
	ctx    context.Context
	fn     func(context.Context) (any, error)
	result chan taskResult
}

type taskResult struct {
	val any
	err error
}

// Future is a handle to a task submitted to a Pool, supporting blocking
// and bounded waits, cancellation, and completion queries (spec §4.I).
type Future struct {
	result chan taskResult
	cancel context.CancelFunc

	once sync.Once
	done chan struct{}
	val  any
	err  error
}

func newFuture(result chan taskResult, cancel context.CancelFunc) *Future {
	return &Future{result: result, cancel: cancel, done: make(chan struct{})}
}

func (f *Future) resolve(r taskResult) {
	f.once.Do(func() {
		f.val, f.err = r.val, r.err
		close(f.done)
	})
}

// Wait blocks until the task completes, ctx is canceled, or — if ctx
// carries a deadline — that deadline passes, returning the task's result
// or an error (ctx.Err(), or the task's own error).
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case r := <-f.result:
		f.resolve(r)
		return f.val, f.err
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WaitTimeout is Wait with an implicit timeout applied to a detached
// context.
func (f *Future) WaitTimeout(timeout time.Duration) (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return f.Wait(ctx)
}

// Done reports whether the task has completed, without blocking.
func (f *Future) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		select {
		case r := <-f.result:
			f.resolve(r)
			return true
		default:
			return false
		}
	}
}

// Cancel requests cancellation of the task's context. If the task has
// already started, interrupt only determines whether its context is
// canceled (Go has no stronger "interrupt a running goroutine"
// primitive); the task must itself observe ctx.Done() to stop promptly.
func (f *Future) Cancel(interrupt bool) {
	if interrupt {
		f.cancel()
	}
}

// Pool is a bounded worker pool: a fixed range of core..max worker
// goroutines draining a bounded intake queue, with timeout-aware
// submit/await (spec §4.I). It is the sole owner of the goroutines it
// creates.
type Pool struct {
	name                   string
	core, max              int
	queueCapacity          int
	keepAlive              time.Duration
	allowCoreThreadTimeout bool

	queue   chan poolTask
	workers atomic.Int64

	mu       sync.Mutex
	shutdown bool
}

// NewPool builds a Pool with the given maximum worker count and bounded
// intake queue capacity. cfg may be nil.
func NewPool(maxThreads, queueCapacity int, cfg *PoolConfig) *Pool {
	if maxThreads <= 0 {
		panic(`preflex: pool: maxThreads must be positive`)
	}
	if queueCapacity < 0 {
		panic(`preflex: pool: queueCapacity must not be negative`)
	}
	p := &Pool{
		max:           maxThreads,
		core:          maxThreads,
		queueCapacity: queueCapacity,
		keepAlive:     time.Minute,
		queue:         make(chan poolTask, queueCapacity),
	}
	if cfg != nil {
		p.name = cfg.Name
		if cfg.CoreThreads > 0 {
			p.core = cfg.CoreThreads
		}
		if cfg.KeepAlive > 0 {
			p.keepAlive = cfg.KeepAlive
		}
		p.allowCoreThreadTimeout = cfg.AllowCoreThreadTimeout
	}
	if p.core > p.max {
		p.core = p.max
	}
	for i := 0; i < p.core; i++ {
		p.spawnWorker(true)
	}
	return p
}

func (p *Pool) Name() string { return p.name }

func (p *Pool) spawnWorker(isCore bool) {
	p.workers.Add(1)
	go p.runWorker(isCore)
}

func (p *Pool) runWorker(isCore bool) {
	defer p.workers.Add(-1)
	for {
		idleFor := p.keepAlive
		if isCore && !p.allowCoreThreadTimeout {
			task, ok := <-p.queue
			if !ok {
				return
			}
			p.execute(task)
			continue
		}

		timer := time.NewTimer(idleFor)
		select {
		case task, ok := <-p.queue:
			timer.Stop()
			if !ok {
				return
			}
			p.execute(task)
		case <-timer.C:
			return
		}
	}
}

func (p *Pool) execute(task poolTask) {
	defer func() {
		if r := recover(); r != nil {
			task.result <- taskResult{err: &TaskError{Err: panicToError(r)}}
		}
	}()
	val, err := task.fn(task.ctx)
	if err != nil {
		err = &TaskError{Err: err}
	}
	task.result <- taskResult{val: val, err: err}
}

// Submit enqueues fn for execution, returning a Future immediately. It
// fails with ErrPoolRejected if the pool is shut down, the intake queue
// is full, and the worker count is already at max (spec §4.I).
func (p *Pool) Submit(ctx context.Context, fn func(context.Context) (any, error)) (*Future, error) {
	taskCtx, cancel := context.WithCancel(ctx)
	task := poolTask{ctx: taskCtx, fn: fn, result: make(chan taskResult, 1)}

	// Holding p.mu across the enqueue attempt serializes Submit against
	// Shutdown, so a task is never sent on a channel Shutdown is about
	// to (or just did) close.
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		cancel()
		return nil, ErrPoolRejected
	}
	select {
	case p.queue <- task:
		p.mu.Unlock()
		return newFuture(task.result, cancel), nil
	default:
	}
	if int(p.workers.Load()) < p.max {
		p.spawnWorker(false)
		select {
		case p.queue <- task:
			p.mu.Unlock()
			return newFuture(task.result, cancel), nil
		default:
		}
	}
	p.mu.Unlock()

	cancel()
	return nil, ErrPoolRejected
}

// Shutdown stops accepting new tasks and closes the intake queue once
// drained, causing idle workers to exit.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true
	p.mu.Unlock()
	close(p.queue)
}

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("preflex: panic: %v", r)
}
