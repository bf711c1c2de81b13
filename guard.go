package preflex

import (
	"context"
	"errors"
	"time"
)

// Task is the shape every guard wraps: an operation that may fail and may
// observe cancellation. Guards that don't need cancellation awareness
// (ViaSemaphore, ViaFallback, the trackers) accept the simpler
// func() (any, error) form instead.
type Task func(context.Context) (any, error)

// ResultClassifier decides whether a task's outcome counts as success or
// failure for the purposes of a guard's bookkeeping (circuit breaker marks,
// fallback advancement, tracker side-effects). The zero value classifies
// any non-nil error as failure and everything else as success, matching
// the spec's default "no error means success" rule (§4.G/§4.J).
type ResultClassifier struct {
	// SuccessResult overrides success classification for the no-error
	// path. Nil means every nil-error result is a success.
	SuccessResult func(any) bool

	// SuccessError overrides success classification for the error path,
	// letting a caller treat certain errors as acceptable outcomes (e.g.
	// a cache-miss sentinel). Nil means every non-nil error is a failure.
	SuccessError func(error) bool
}

func (c *ResultClassifier) success(val any, err error) bool {
	if err != nil {
		if c != nil && c.SuccessError != nil {
			return c.SuccessError(err)
		}
		return false
	}
	if c != nil && c.SuccessResult != nil {
		return c.SuccessResult(val)
	}
	return true
}

// PoolGuardConfig models optional configuration for ViaPool.
type PoolGuardConfig struct {
	// Timeout bounds how long ViaPool waits for the result once
	// submitted. Zero waits until ctx is done.
	Timeout time.Duration

	// OnTaskReject overrides the error returned when submission itself
	// is rejected (queue full, pool saturated or shut down). Defaults to
	// returning origErr unchanged (already ErrPoolRejected).
	OnTaskReject func(origErr error) error

	// OnTaskTimeout overrides the error returned when the wait exceeds
	// Timeout. Defaults to ErrTimedOut.
	OnTaskTimeout func() error

	// OnTaskError overrides the error returned when the task itself
	// failed or panicked. Defaults to returning taskErr unchanged.
	OnTaskError func(taskErr *TaskError) error
}

// ViaPool submits fn to pool and waits for its result, applying cfg's
// timeout and hook overrides (spec §4.I). A timeout does not cancel the
// task's context: the task keeps running in the pool.
func ViaPool(ctx context.Context, pool *Pool, fn Task, cfg *PoolGuardConfig) (any, error) {
	future, err := pool.Submit(ctx, fn)
	if err != nil {
		if cfg != nil && cfg.OnTaskReject != nil {
			return nil, cfg.OnTaskReject(err)
		}
		return nil, err
	}

	var val any
	if cfg != nil && cfg.Timeout > 0 {
		val, err = future.WaitTimeout(cfg.Timeout)
	} else {
		val, err = future.Wait(ctx)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		future.Cancel(false)
		if cfg != nil && cfg.OnTaskTimeout != nil {
			return nil, cfg.OnTaskTimeout()
		}
		return nil, ErrTimedOut
	}
	if err != nil {
		var taskErr *TaskError
		if errors.As(err, &taskErr) {
			if cfg != nil && cfg.OnTaskError != nil {
				return nil, cfg.OnTaskError(taskErr)
			}
			return nil, taskErr
		}
		return nil, err
	}
	return val, nil
}

// SemaphoreGuardConfig models optional configuration for ViaSemaphore.
type SemaphoreGuardConfig struct {
	// AcquireTimeout makes acquisition wait up to the given duration
	// instead of failing immediately when no permit is free.
	AcquireTimeout time.Duration

	// OnSemaphoreReject overrides the error returned when no permit is
	// acquired. Defaults to ErrSemaphoreRejected.
	OnSemaphoreReject func() error
}

// ViaSemaphore acquires a permit from sem, runs fn, and releases the
// permit on every exit path (spec §4.H).
func ViaSemaphore(ctx context.Context, sem *Semaphore, fn func() (any, error), cfg *SemaphoreGuardConfig) (any, error) {
	var acquired bool
	if cfg != nil && cfg.AcquireTimeout > 0 {
		acquired = sem.TryAcquireTimeout(ctx, cfg.AcquireTimeout)
	} else {
		acquired = sem.TryAcquire()
	}
	if !acquired {
		if cfg != nil && cfg.OnSemaphoreReject != nil {
			return nil, cfg.OnSemaphoreReject()
		}
		return nil, ErrSemaphoreRejected
	}
	defer sem.Release()
	return fn()
}

// CircuitBreakerGuardConfig models optional configuration for
// ViaCircuitBreaker.
type CircuitBreakerGuardConfig struct {
	// Classifier decides success/failure for Mark. Nil uses the default
	// "nil error means success" rule.
	Classifier *ResultClassifier

	// OnCircuitDeny overrides the error returned when the breaker denies
	// the call. Defaults to ErrCircuitOpen.
	OnCircuitDeny func() error

	// OnCircuitAllow, if set, is invoked (with no effect on control flow)
	// immediately before the task runs, once the breaker has allowed it.
	OnCircuitAllow func(*CircuitBreaker)
}

// ViaCircuitBreaker runs fn through cb, marking the outcome and converting
// a deny into an error (spec §4.G).
func ViaCircuitBreaker(cb *CircuitBreaker, fn func() (any, error), cfg *CircuitBreakerGuardConfig) (any, error) {
	if !cb.Allow() {
		if cfg != nil && cfg.OnCircuitDeny != nil {
			return nil, cfg.OnCircuitDeny()
		}
		return nil, ErrCircuitOpen
	}
	if cfg != nil && cfg.OnCircuitAllow != nil {
		cfg.OnCircuitAllow(cb)
	}

	var classifier *ResultClassifier
	if cfg != nil {
		classifier = cfg.Classifier
	}

	val, err := fn()
	cb.Mark(classifier.success(val, err))
	return val, err
}

// ViaLatencyTrackerConfig models optional configuration for
// ViaLatencyTracker.
type ViaLatencyTrackerConfig struct {
	// Now supplies the clock used to sample start/end times. Defaults to
	// time.Now.
	Now Clock

	// Classifier decides the success flag passed to track. Nil uses the
	// default "nil error means success" rule.
	Classifier *ResultClassifier
}

// ViaLatencyTracker runs fn, sampling elapsed wall time around it, and
// invokes track with the outcome and elapsed duration on every exit path
// (spec §4.J′).
func ViaLatencyTracker(fn func() (any, error), track func(success bool, elapsed time.Duration), cfg *ViaLatencyTrackerConfig) (any, error) {
	now := defaultClock
	var classifier *ResultClassifier
	if cfg != nil {
		if cfg.Now != nil {
			now = cfg.Now
		}
		classifier = cfg.Classifier
	}

	start := now()
	val, err := fn()
	elapsed := now().Sub(start)
	track(classifier.success(val, err), elapsed)
	return val, err
}

// ViaSuccessFailureTracker runs fn and invokes track with the classified
// outcome on every exit path (spec §4.J′).
func ViaSuccessFailureTracker(fn func() (any, error), track func(success bool), classifier *ResultClassifier) (any, error) {
	val, err := fn()
	track(classifier.success(val, err))
	return val, err
}

// FallbackConfig models optional configuration for ViaFallback.
type FallbackConfig struct {
	// Classifier decides which results/errors count as success. Nil uses
	// the default "nil error means success" rule.
	Classifier *ResultClassifier

	// Recoverable decides whether a given error permits falling through
	// to the next alternate. Nil treats every error as recoverable. An
	// error for which this returns false propagates immediately without
	// attempting further alternates (spec §4.J "unhandled exception
	// classes").
	Recoverable func(error) bool

	// PreInvoke, if set, fires before each attempt (including the
	// primary), numbered from 0.
	PreInvoke func(step int)

	// PostResult, if set, fires once a final (non-advancing) result is
	// reached, whether from an early success or from the last alternate
	// exhausting the chain.
	PostResult func(step int, val any, success bool)

	// PostError, if set, fires when the chain is exhausted and the last
	// alternate still failed with an error (as opposed to a
	// failure-classified value).
	PostError func(step int, err error)
}

func (c *FallbackConfig) recoverable(err error) bool {
	if c == nil || c.Recoverable == nil {
		return true
	}
	return c.Recoverable(err)
}

func (c *FallbackConfig) preInvoke(step int) {
	if c != nil && c.PreInvoke != nil {
		c.PreInvoke(step)
	}
}

func (c *FallbackConfig) postResult(step int, val any, success bool) {
	if c != nil && c.PostResult != nil {
		c.PostResult(step, val, success)
	}
}

func (c *FallbackConfig) postError(step int, err error) {
	if c != nil && c.PostError != nil {
		c.PostError(step, err)
	}
}

// ViaFallback evaluates primary, then each of alternates in order, until
// one produces a success-classified result or the chain is exhausted (spec
// §4.J). An error for which cfg.Recoverable returns false propagates
// immediately, skipping any remaining alternates.
func ViaFallback(primary func() (any, error), alternates []func() (any, error), cfg *FallbackConfig) (any, error) {
	steps := make([]func() (any, error), 0, len(alternates)+1)
	steps = append(steps, primary)
	steps = append(steps, alternates...)

	var classifier *ResultClassifier
	if cfg != nil {
		classifier = cfg.Classifier
	}

	for i, step := range steps {
		cfg.preInvoke(i)
		val, err := step()
		last := i == len(steps)-1

		if classifier.success(val, err) {
			cfg.postResult(i, val, true)
			return val, nil
		}
		if err != nil && !cfg.recoverable(err) {
			return nil, err
		}
		if !last {
			continue
		}
		if err != nil {
			cfg.postError(i, err)
			return nil, err
		}
		cfg.postResult(i, val, false)
		return val, nil
	}
	panic(`preflex: fallback: unreachable`)
}
