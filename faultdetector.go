package preflex

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// FaultDetector decides, from a stream of recorded outcomes, whether a
// circuit breaker should trip (spec §4.E). Three shapes exist: serial-N,
// discrete-window, and rolling-window.
type FaultDetector interface {
	RecordOutcome(success bool)
	Fault() bool
	Reinit()
	Count() int64
}

// serialFaultDetector counts consecutive failures; any success resets
// the counter.
type serialFaultDetector struct {
	threshold int64
	counter   atomic.Int64
}

// NewSerialFaultDetector builds a FaultDetector that is faulty once N
// consecutive failures have been recorded with no intervening success.
func NewSerialFaultDetector(n int64) FaultDetector {
	if n <= 0 {
		panic(`preflex: serial fault detector: n must be positive`)
	}
	return &serialFaultDetector{threshold: n}
}

func (d *serialFaultDetector) RecordOutcome(success bool) {
	if success {
		d.counter.Store(0)
		return
	}
	d.counter.Add(1)
}

func (d *serialFaultDetector) Fault() bool  { return d.counter.Load() >= d.threshold }
func (d *serialFaultDetector) Reinit()      { d.counter.Store(0) }
func (d *serialFaultDetector) Count() int64 { return d.counter.Load() }

// DiscreteFaultDetectorConfig models optional configuration for
// NewDiscreteFaultDetector.
type DiscreteFaultDetectorConfig struct {
	// Now supplies the current time. Defaults to time.Now.
	Now Clock
}

// discreteFaultDetector counts failures within a fixed window of
// duration D starting at startTS; the window resets (to a fresh window
// starting now) the first time an outcome is recorded, or Fault is
// checked, after the window has elapsed.
type discreteFaultDetector struct {
	threshold int64
	window    time.Duration
	now       Clock

	mu      sync.Mutex
	counter int64
	startTS time.Time
}

// NewDiscreteFaultDetector builds a FaultDetector that is faulty once N
// failures have landed within the current fixed window of the given
// duration.
func NewDiscreteFaultDetector(n int64, window time.Duration, cfg *DiscreteFaultDetectorConfig) FaultDetector {
	if n <= 0 {
		panic(`preflex: discrete fault detector: n must be positive`)
	}
	if window <= 0 {
		panic(`preflex: discrete fault detector: window must be positive`)
	}
	now := defaultClock
	if cfg != nil && cfg.Now != nil {
		now = cfg.Now
	}
	return &discreteFaultDetector{threshold: n, window: window, now: now, startTS: now()}
}

func (d *discreteFaultDetector) rollIfElapsedLocked() {
	if d.now().Sub(d.startTS) >= d.window {
		d.counter = 0
		d.startTS = d.now()
	}
}

func (d *discreteFaultDetector) RecordOutcome(success bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rollIfElapsedLocked()
	if !success {
		d.counter++
	}
}

func (d *discreteFaultDetector) Fault() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rollIfElapsedLocked()
	return d.counter >= d.threshold
}

func (d *discreteFaultDetector) Reinit() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counter = 0
	d.startTS = d.now()
}

func (d *discreteFaultDetector) Count() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.counter)
}

// RollingFaultDetectorConfig models optional configuration for
// NewRollingFaultDetector.
type RollingFaultDetectorConfig struct {
	// BucketInterval is the duration each underlying bucket covers.
	// Defaults to window/10 when zero; window must still divide evenly
	// by the result.
	BucketInterval time.Duration
	EventIDFunc    EventIDFunc
	ShardCount     int
}

// rollingFaultDetector counts failures in a rolling window backed by a
// RollingCount; successes are a no-op (they produce no metric, per spec
// §4.E).
type rollingFaultDetector struct {
	threshold int64
	counter   *RollingCount
}

// NewRollingFaultDetector builds a FaultDetector backed by a rolling
// window of duration window, faulty once the tail sum of recorded
// failures reaches n. window must be evenly divisible by the bucket
// interval, the bucket interval must be a whole number of milliseconds
// (the unit of event IDs), and the resulting bucket count must be
// positive, or this returns an error wrapping ErrInvalidArgument (spec
// §4.E).
func NewRollingFaultDetector(n int64, window time.Duration, cfg *RollingFaultDetectorConfig) (FaultDetector, error) {
	if n <= 0 {
		return nil, invalidArgf(`rolling fault detector: n must be positive`)
	}
	if window <= 0 {
		return nil, invalidArgf(`rolling fault detector: window must be positive`)
	}

	interval := window / 10
	var eventIDFunc EventIDFunc
	shardCount := 0
	if cfg != nil {
		if cfg.BucketInterval > 0 {
			interval = cfg.BucketInterval
		}
		eventIDFunc = cfg.EventIDFunc
		shardCount = cfg.ShardCount
	}
	if interval <= 0 {
		return nil, invalidArgf(`rolling fault detector: bucket interval must be positive`)
	}
	if interval%time.Millisecond != 0 {
		return nil, invalidArgf(`rolling fault detector: bucket interval %s must be a whole number of milliseconds`, interval)
	}
	if window%interval != 0 {
		return nil, invalidArgf(`rolling fault detector: window %s must be evenly divisible by bucket interval %s`, window, interval)
	}
	buckets := int(window/interval) + 1
	if buckets <= 1 {
		return nil, invalidArgf(`rolling fault detector: window %s / bucket interval %s must be positive`, window, interval)
	}

	rc := NewRollingCount(buckets, &RollingConfig{
		BucketInterval: int64(interval / time.Millisecond),
		EventIDFunc:    eventIDFunc,
		ShardCount:     shardCount,
	})
	return &rollingFaultDetector{threshold: n, counter: rc}, nil
}

func (d *rollingFaultDetector) RecordOutcome(success bool) {
	if success {
		return
	}
	d.counter.Record()
}

func (d *rollingFaultDetector) Fault() bool  { return d.counter.Count() >= d.threshold }
func (d *rollingFaultDetector) Reinit()      { d.counter.Reset() }
func (d *rollingFaultDetector) Count() int64 { return d.counter.Count() }
