package preflex

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResultClassifier_DefaultsToErrorBasedSuccess(t *testing.T) {
	var c *ResultClassifier
	assert.True(t, c.success(1, nil))
	assert.False(t, c.success(nil, errors.New(`boom`)))
}

func TestResultClassifier_Overrides(t *testing.T) {
	c := &ResultClassifier{
		SuccessResult: func(v any) bool { return v.(int) >= 0 },
		SuccessError:  func(err error) bool { return errors.Is(err, errCacheMiss) },
	}
	assert.True(t, c.success(5, nil))
	assert.False(t, c.success(-1, nil))
	assert.True(t, c.success(nil, errCacheMiss))
	assert.False(t, c.success(nil, errors.New(`other`)))
}

var errCacheMiss = errors.New(`cache miss`)

func TestViaCircuitBreaker_DeniesAndMarks(t *testing.T) {
	fd := NewSerialFaultDetector(1)
	rr := NewHalfOpenRetryResolver(time.Hour, nil)
	cb := NewCircuitBreaker(fd, rr, nil)

	_, err := ViaCircuitBreaker(cb, func() (any, error) {
		return nil, errors.New(`fail`)
	}, nil)
	assert.Error(t, err) // first call allowed, task fails, marks the detector

	_, err = ViaCircuitBreaker(cb, func() (any, error) {
		t.Fatal(`should not run: circuit should now be open`)
		return nil, nil
	}, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestViaLatencyTracker(t *testing.T) {
	var gotSuccess bool
	var gotElapsed time.Duration
	val, err := ViaLatencyTracker(func() (any, error) {
		time.Sleep(5 * time.Millisecond)
		return `ok`, nil
	}, func(success bool, elapsed time.Duration) {
		gotSuccess = success
		gotElapsed = elapsed
	}, nil)

	assert.NoError(t, err)
	assert.Equal(t, `ok`, val)
	assert.True(t, gotSuccess)
	assert.GreaterOrEqual(t, gotElapsed, 5*time.Millisecond)
}

func TestViaSuccessFailureTracker(t *testing.T) {
	var results []bool
	track := func(success bool) { results = append(results, success) }

	_, _ = ViaSuccessFailureTracker(func() (any, error) { return 1, nil }, track, nil)
	_, _ = ViaSuccessFailureTracker(func() (any, error) { return nil, errors.New(`x`) }, track, nil)

	assert.Equal(t, []bool{true, false}, results)
}

// TestViaFallback_S6 reproduces the three literal S6 cases.
func TestViaFallback_S6(t *testing.T) {
	boom := errors.New(`boom`)
	throwing := func() (any, error) { return nil, boom }

	val, err := ViaFallback(throwing, []func() (any, error){
		throwing,
		func() (any, error) { return 30, nil },
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, 30, val)

	val, err = ViaFallback(throwing, []func() (any, error){
		func() (any, error) { return 50, nil },
		throwing,
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, 50, val)

	_, err = ViaFallback(throwing, nil, nil)
	assert.ErrorIs(t, err, boom)
}

func TestViaFallback_UnrecoverableErrorSkipsAlternates(t *testing.T) {
	fatalErr := errors.New(`fatal`)
	ranAlternate := false

	_, err := ViaFallback(
		func() (any, error) { return nil, fatalErr },
		[]func() (any, error){func() (any, error) { ranAlternate = true; return 1, nil }},
		&FallbackConfig{Recoverable: func(err error) bool { return !errors.Is(err, fatalErr) }},
	)
	assert.ErrorIs(t, err, fatalErr)
	assert.False(t, ranAlternate)
}

func TestViaFallback_Hooks(t *testing.T) {
	var preInvokes []int
	var postResults []bool
	var postErrors int

	_, _ = ViaFallback(
		func() (any, error) { return nil, errors.New(`primary failed`) },
		[]func() (any, error){func() (any, error) { return `ok`, nil }},
		&FallbackConfig{
			PreInvoke:  func(step int) { preInvokes = append(preInvokes, step) },
			PostResult: func(step int, val any, success bool) { postResults = append(postResults, success) },
			PostError:  func(step int, err error) { postErrors++ },
		},
	)

	assert.Equal(t, []int{0, 1}, preInvokes)
	assert.Equal(t, []bool{true}, postResults)
	assert.Equal(t, 0, postErrors)
}

func TestViaPool_And_ViaSemaphore_ComposeUnderViaCircuitBreaker(t *testing.T) {
	pool := NewPool(2, 2, nil)
	defer pool.Shutdown()
	sem := NewCountingSemaphore(1, nil)
	fd := NewSerialFaultDetector(5)
	rr := NewHalfOpenRetryResolver(time.Hour, nil)
	cb := NewCircuitBreaker(fd, rr, nil)

	val, err := ViaCircuitBreaker(cb, func() (any, error) {
		return ViaSemaphore(context.Background(), sem, func() (any, error) {
			return ViaPool(context.Background(), pool, func(ctx context.Context) (any, error) {
				return 7, nil
			}, nil)
		}, nil)
	}, nil)

	assert.NoError(t, err)
	assert.Equal(t, 7, val)
}
