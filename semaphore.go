package preflex

import (
	"context"
	"time"

	"go.uber.org/atomic"
	xsemaphore "golang.org/x/sync/semaphore"
)

// SemaphoreConfig models optional configuration for NewCountingSemaphore
// and NewBinarySemaphore.
type SemaphoreConfig struct {
	// Name is a caller-chosen label. Optional.
	Name string

	// Fair requests FIFO acquisition order among waiters, at the cost
	// of extra bookkeeping. Defaults to false (unfair), matching the
	// spec's stated default (§4.H).
	Fair bool
}

// Semaphore is a fair or unfair counting permit set with try-acquire
// semantics and a shutdown latch (spec §4.H). The unfair mode is a
// buffered-channel semaphore; the fair mode delegates to
// golang.org/x/sync/semaphore.Weighted, which queues waiters in arrival
// order.
type Semaphore struct {
	name string
	max  int64
	fair bool

	unfair chan struct{}
	weighted *xsemaphore.Weighted

	shutdown atomic.Bool
	acquired atomic.Int64
}

// NewCountingSemaphore builds a Semaphore with maxPermits available
// permits. cfg may be nil.
func NewCountingSemaphore(maxPermits int64, cfg *SemaphoreConfig) *Semaphore {
	if maxPermits <= 0 {
		panic(`preflex: semaphore: maxPermits must be positive`)
	}
	s := &Semaphore{max: maxPermits}
	if cfg != nil {
		s.name = cfg.Name
		s.fair = cfg.Fair
	}
	if s.fair {
		s.weighted = xsemaphore.NewWeighted(maxPermits)
	} else {
		s.unfair = make(chan struct{}, maxPermits)
	}
	return s
}

// NewBinarySemaphore builds a single-permit Semaphore, useful as a
// non-blocking mutex or a gate.
func NewBinarySemaphore(cfg *SemaphoreConfig) *Semaphore {
	return NewCountingSemaphore(1, cfg)
}

func (s *Semaphore) Name() string { return s.name }

// TryAcquire attempts to acquire a permit without blocking. It reports
// false if the semaphore is shut down or no permit is currently
// available.
func (s *Semaphore) TryAcquire() bool {
	if s.shutdown.Load() {
		return false
	}
	var ok bool
	if s.fair {
		ok = s.weighted.TryAcquire(1)
	} else {
		select {
		case s.unfair <- struct{}{}:
			ok = true
		default:
		}
	}
	if ok {
		// re-check shutdown: a shutdown racing with a successful
		// acquire must not hand out a permit.
		if s.shutdown.Load() {
			s.releasePermit()
			return false
		}
		s.acquired.Add(1)
	}
	return ok
}

// TryAcquireTimeout attempts to acquire a permit, waiting up to timeout.
// It reports false on timeout, context cancellation, or shutdown.
func (s *Semaphore) TryAcquireTimeout(ctx context.Context, timeout time.Duration) bool {
	if s.shutdown.Load() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var err error
	if s.fair {
		err = s.weighted.Acquire(ctx, 1)
	} else {
		select {
		case s.unfair <- struct{}{}:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if err != nil {
		return false
	}
	if s.shutdown.Load() {
		s.releasePermit()
		return false
	}
	s.acquired.Add(1)
	return true
}

func (s *Semaphore) releasePermit() {
	if s.fair {
		s.weighted.Release(1)
	} else {
		<-s.unfair
	}
}

// Release returns a previously acquired permit.
func (s *Semaphore) Release() {
	s.releasePermit()
	s.acquired.Add(-1)
}

// Shutdown prevents all future acquisitions. Permits already held remain
// held until Release.
func (s *Semaphore) Shutdown() { s.shutdown.Store(true) }

// CountAcquired returns the number of permits currently held.
func (s *Semaphore) CountAcquired() int64 { return s.acquired.Load() }

// CountAvailable returns the number of permits currently free.
func (s *Semaphore) CountAvailable() int64 { return s.max - s.acquired.Load() }
