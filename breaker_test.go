package preflex

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/atomic"

	"github.com/stretchr/testify/assert"
)

// virtualTime drives both a monotonic event-ID clock (for the rolling
// fault detector) and a wall clock (for the retry resolver/breaker) off a
// single counter, so a breaker integration test can advance time
// deterministically across every component it composes.
type virtualTime struct{ ms int64 }

func (v *virtualTime) id() int64         { return v.ms }
func (v *virtualTime) now() time.Time    { return time.UnixMilli(v.ms) }
func (v *virtualTime) advance(delta int64) { v.ms += delta }

func TestNewCircuitBreaker_PanicsOnNilArgs(t *testing.T) {
	fd := NewSerialFaultDetector(1)
	rr := NewHalfOpenRetryResolver(time.Second, nil)
	assert.Panics(t, func() { NewCircuitBreaker(nil, rr, nil) })
	assert.Panics(t, func() { NewCircuitBreaker(fd, nil, nil) })
}

func TestCircuitBreaker_SerialFaultDetector_Trips(t *testing.T) {
	fd := NewSerialFaultDetector(3)
	rr := NewHalfOpenRetryResolver(time.Hour, nil) // never elapses on its own in this test
	var trips, connects int
	cb := NewCircuitBreaker(fd, rr, &CircuitBreakerConfig{
		OnTrip:    func(*CircuitBreaker) { trips++ },
		OnConnect: func(*CircuitBreaker) { connects++ },
	})

	assert.True(t, cb.Connected())
	for i := 0; i < 3; i++ {
		assert.True(t, cb.Allow())
		cb.Mark(false)
	}
	assert.False(t, cb.Allow()) // fault detector now reports fault
	assert.False(t, cb.Connected())
	assert.Equal(t, 1, trips)
	assert.Equal(t, 0, connects)
}

// TestCircuitBreaker_S1 reproduces the literal S1 end-to-end scenario: a
// rolling fault detector (10 errors in 1000ms, 100ms buckets) feeding a
// circuit breaker with a 100ms half-open retry resolver.
func TestCircuitBreaker_S1(t *testing.T) {
	vt := &virtualTime{}
	fd, err := NewRollingFaultDetector(10, 1000*time.Millisecond, &RollingFaultDetectorConfig{
		BucketInterval: 100 * time.Millisecond,
		EventIDFunc:    vt.id,
		ShardCount:     1,
	})
	assert.NoError(t, err)
	rr := NewHalfOpenRetryResolver(100*time.Millisecond, &RetryResolverConfig{Now: vt.now})

	var trips, connects int
	cb := NewCircuitBreaker(fd, rr, &CircuitBreakerConfig{
		Now:       vt.now,
		OnTrip:    func(*CircuitBreaker) { trips++ },
		OnConnect: func(*CircuitBreaker) { connects++ },
	})

	// 10 failing invocations, interleaved in time, spanning 120ms.
	for i := 0; i < 10; i++ {
		assert.True(t, cb.Allow())
		cb.Mark(false)
		vt.advance(12)
	}

	// wait for the window to roll the failures into view.
	vt.advance(120)
	assert.False(t, cb.Allow())
	assert.False(t, cb.Connected())
	assert.Equal(t, 1, trips)
	assert.Equal(t, 0, connects)

	// half-open probe after the open duration elapses.
	vt.advance(100)
	assert.True(t, cb.Allow())
	cb.Mark(true)
	assert.True(t, cb.Connected())
	assert.Equal(t, 1, trips)
	assert.Equal(t, 1, connects)

	// a subsequent success passes normally.
	assert.True(t, cb.Allow())
	cb.Mark(true)
}

func TestCircuitBreaker_FailureWhileTripped_IsNoOp(t *testing.T) {
	fd := NewSerialFaultDetector(1)
	rr := NewHalfOpenRetryResolver(time.Hour, nil)
	cb := NewCircuitBreaker(fd, rr, nil)

	assert.True(t, cb.Allow())
	cb.Mark(false) // counter now meets the threshold

	assert.False(t, cb.Allow()) // this call observes the fault and trips
	assert.False(t, cb.Connected())

	cb.Mark(false) // no-op: must not pollute the retry probe
	assert.False(t, cb.Connected())
}

// TestCircuitBreaker_ConcurrentTrip_FiresOnce reproduces spec §8's
// "breaker safety" property: many goroutines racing Allow() while a
// fault is already live must trip the breaker exactly once.
func TestCircuitBreaker_ConcurrentTrip_FiresOnce(t *testing.T) {
	fd := NewSerialFaultDetector(1)
	fd.RecordOutcome(false) // fault is already live before any Allow() races in

	rr := NewHalfOpenRetryResolver(time.Hour, nil)
	var trips atomic.Int32
	cb := NewCircuitBreaker(fd, rr, &CircuitBreakerConfig{
		OnTrip: func(*CircuitBreaker) { trips.Inc() },
	})

	const n = 200
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			cb.Allow()
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), trips.Load())
	assert.False(t, cb.Connected())
}
