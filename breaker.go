package preflex

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// CircuitBreakerConfig models optional configuration for
// NewCircuitBreaker.
type CircuitBreakerConfig struct {
	// Name is a caller-chosen label, surfaced to OnTrip/OnConnect and
	// useful in logs the caller writes from those hooks. Optional.
	Name string

	// OnTrip is invoked exactly once per connected->tripped transition,
	// after the breaker's internal mutex has been released (spec §9
	// "fire hooks after releasing the mutex", a deliberate tightening
	// of the source's inline-under-mutex behavior).
	OnTrip func(*CircuitBreaker)

	// OnConnect is invoked exactly once per tripped->connected
	// transition, after the internal mutex has been released.
	OnConnect func(*CircuitBreaker)

	// Now supplies the current time, recorded as SinceTime() on every
	// transition. Defaults to time.Now.
	Now Clock
}

// CircuitBreaker couples a FaultDetector and a RetryResolver behind a
// two-state (connected/tripped) machine (spec §4.G).
type CircuitBreaker struct {
	name          string
	faultDetector FaultDetector
	retryResolver *RetryResolver
	onTrip        func(*CircuitBreaker)
	onConnect     func(*CircuitBreaker)
	now           Clock

	mu        sync.Mutex
	connected atomic.Bool
	sinceTS   atomic.Int64
}

// NewCircuitBreaker builds a CircuitBreaker over the given fault
// detector and retry resolver, starting connected. cfg may be nil.
func NewCircuitBreaker(faultDetector FaultDetector, retryResolver *RetryResolver, cfg *CircuitBreakerConfig) *CircuitBreaker {
	if faultDetector == nil {
		panic(`preflex: circuit breaker: nil fault detector`)
	}
	if retryResolver == nil {
		panic(`preflex: circuit breaker: nil retry resolver`)
	}
	cb := &CircuitBreaker{faultDetector: faultDetector, retryResolver: retryResolver, now: defaultClock}
	if cfg != nil {
		cb.name = cfg.Name
		cb.onTrip = cfg.OnTrip
		cb.onConnect = cfg.OnConnect
		if cfg.Now != nil {
			cb.now = cfg.Now
		}
	}
	cb.connected.Store(true)
	cb.sinceTS.Store(cb.now().UnixNano())
	return cb
}

func (cb *CircuitBreaker) Name() string { return cb.name }

// Connected reports whether the breaker currently allows calls through
// without consulting the retry resolver.
func (cb *CircuitBreaker) Connected() bool { return cb.connected.Load() }

// SinceTime returns when the breaker last transitioned state.
func (cb *CircuitBreaker) SinceTime() time.Time {
	return time.Unix(0, cb.sinceTS.Load())
}

// Allow reports whether a call should be allowed through right now,
// tripping the breaker first if the fault detector currently reports a
// fault (spec §4.G).
func (cb *CircuitBreaker) Allow() bool {
	if cb.connected.Load() {
		if !cb.faultDetector.Fault() {
			return true
		}
		tripped := cb.tryTrip()
		return !tripped
	}
	return cb.retryResolver.Retry()
}

func (cb *CircuitBreaker) tryTrip() bool {
	cb.mu.Lock()
	if !cb.connected.Load() || !cb.faultDetector.Fault() {
		cb.mu.Unlock()
		return false
	}
	cb.connected.Store(false)
	cb.sinceTS.Store(cb.now().UnixNano())
	cb.mu.Unlock()

	cb.retryResolver.Reinit()
	if cb.onTrip != nil {
		cb.onTrip(cb)
	}
	return true
}

// Mark records the outcome of a call that Allow most recently let
// through (spec §4.G).
func (cb *CircuitBreaker) Mark(success bool) {
	if success {
		cb.markSuccess()
		return
	}
	cb.markFailure()
}

func (cb *CircuitBreaker) markSuccess() {
	if cb.connected.Load() {
		cb.faultDetector.RecordOutcome(true)
		return
	}

	cb.faultDetector.Reinit()

	cb.mu.Lock()
	if cb.connected.Load() {
		cb.mu.Unlock()
		return
	}
	cb.connected.Store(true)
	cb.sinceTS.Store(cb.now().UnixNano())
	cb.mu.Unlock()

	if cb.onConnect != nil {
		cb.onConnect(cb)
	}
}

func (cb *CircuitBreaker) markFailure() {
	if cb.connected.Load() {
		cb.faultDetector.RecordOutcome(false)
	}
	// tripped: no-op, so a failing probe doesn't pollute the retry
	// quota result (spec §4.G).
}
