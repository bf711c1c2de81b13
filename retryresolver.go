package preflex

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// RetryResolverConfig models optional configuration for
// NewHalfOpenRetryResolver.
type RetryResolverConfig struct {
	// OpenDuration is how long the breaker stays fully open before the
	// first retry probe is allowed. Defaults to HalfOpenDuration.
	OpenDuration time.Duration

	// RetryTimes bounds how many probes are allowed per half-open
	// window. Defaults to 1.
	RetryTimes int32

	// Now supplies the current time. Defaults to time.Now.
	Now Clock
}

// RetryResolver is the half-open window state machine controlling how
// many probe calls are allowed through a tripped circuit breaker (spec
// §4.F).
type RetryResolver struct {
	halfOpen   time.Duration
	openDur    time.Duration
	retryTimes int32
	now        Clock

	gate       atomic.Bool
	reinitGate atomic.Bool

	mu           sync.Mutex
	retryInitTS  time.Time
	openElapsed  bool
	lastRetryTS  time.Time
	retryCounter int32
}

// NewHalfOpenRetryResolver builds a RetryResolver with the given
// half-open probe window. cfg may be nil.
func NewHalfOpenRetryResolver(halfOpenDuration time.Duration, cfg *RetryResolverConfig) *RetryResolver {
	if halfOpenDuration <= 0 {
		panic(`preflex: retry resolver: halfOpenDuration must be positive`)
	}
	openDur := halfOpenDuration
	retryTimes := int32(1)
	now := defaultClock
	if cfg != nil {
		if cfg.OpenDuration > 0 {
			openDur = cfg.OpenDuration
		}
		if cfg.RetryTimes > 0 {
			retryTimes = cfg.RetryTimes
		}
		if cfg.Now != nil {
			now = cfg.Now
		}
	}
	r := &RetryResolver{halfOpen: halfOpenDuration, openDur: openDur, retryTimes: retryTimes, now: now}
	r.resetState()
	return r
}

func (r *RetryResolver) resetState() {
	n := r.now()
	r.retryInitTS = n
	r.openElapsed = false
	r.lastRetryTS = n
	r.retryCounter = 0
}

// Retry reports whether a probe call should be let through a tripped
// breaker right now, implementing the transition table in spec §4.F.
// At most one concurrent caller ever observes true for a given window
// shift, enforced by the non-blocking gate in step 1.
func (r *RetryResolver) Retry() bool {
	if !r.gate.CompareAndSwap(false, true) {
		return false
	}
	defer r.gate.Store(false)

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	if !r.openElapsed {
		if now.Sub(r.retryInitTS) >= r.openDur {
			r.openElapsed = true
			r.lastRetryTS = now
			r.retryCounter = 1
			return true
		}
		return false
	}

	if now.Sub(r.lastRetryTS) >= r.halfOpen {
		r.lastRetryTS = now
		r.retryCounter = 1
		return true
	}
	if r.retryCounter < r.retryTimes {
		r.retryCounter++
		return true
	}
	return false
}

// Reinit resets the resolver to its initial state, as if freshly
// constructed now. Concurrent Reinit calls are idempotent: only the
// first one to arrive performs the reset, the rest are no-ops, matching
// the "treat concurrent reinits as idempotent" requirement (spec §4.F).
func (r *RetryResolver) Reinit() {
	if !r.reinitGate.CompareAndSwap(false, true) {
		return
	}
	defer r.reinitGate.Store(false)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetState()
}
