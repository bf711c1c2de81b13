package preflex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewCountingSemaphore_PanicsOnNonPositivePermits(t *testing.T) {
	assert.Panics(t, func() { NewCountingSemaphore(0, nil) })
}

func TestSemaphore_TryAcquire_UnfairDefault(t *testing.T) {
	s := NewCountingSemaphore(2, nil)
	assert.True(t, s.TryAcquire())
	assert.True(t, s.TryAcquire())
	assert.False(t, s.TryAcquire()) // exhausted

	assert.Equal(t, int64(2), s.CountAcquired())
	assert.Equal(t, int64(0), s.CountAvailable())

	s.Release()
	assert.True(t, s.TryAcquire())
}

func TestSemaphore_Fair(t *testing.T) {
	s := NewCountingSemaphore(1, &SemaphoreConfig{Fair: true, Name: `fair-gate`})
	assert.Equal(t, `fair-gate`, s.Name())
	assert.True(t, s.TryAcquire())
	assert.False(t, s.TryAcquire())
	s.Release()
	assert.True(t, s.TryAcquire())
}

func TestNewBinarySemaphore(t *testing.T) {
	s := NewBinarySemaphore(nil)
	assert.True(t, s.TryAcquire())
	assert.False(t, s.TryAcquire())
}

func TestSemaphore_Shutdown_RejectsAcquires(t *testing.T) {
	s := NewCountingSemaphore(5, nil)
	s.Shutdown()
	assert.False(t, s.TryAcquire())
	assert.False(t, s.TryAcquireTimeout(context.Background(), 10*time.Millisecond))
}

func TestSemaphore_TryAcquireTimeout(t *testing.T) {
	s := NewCountingSemaphore(1, nil)
	assert.True(t, s.TryAcquire())

	start := time.Now()
	assert.False(t, s.TryAcquireTimeout(context.Background(), 30*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)

	released := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Release()
		close(released)
	}()
	assert.True(t, s.TryAcquireTimeout(context.Background(), time.Second))
	<-released
}

// TestSemaphore_S4 reproduces the literal S4 scenario via the via_semaphore
// guard: exhausting 10 permits causes the next call to be rejected; after
// one is released, a new call succeeds.
func TestSemaphore_S4(t *testing.T) {
	sem := NewCountingSemaphore(10, nil)
	for i := 0; i < 10; i++ {
		assert.True(t, sem.TryAcquire())
	}

	_, err := ViaSemaphore(context.Background(), sem, func() (any, error) {
		t.Fatal(`should not run: semaphore exhausted`)
		return nil, nil
	}, nil)
	assert.ErrorIs(t, err, ErrSemaphoreRejected)

	sem.Release()
	result, err := ViaSemaphore(context.Background(), sem, func() (any, error) {
		return 2 + 3, nil
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, 5, result)
}
