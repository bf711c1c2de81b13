package preflex

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per kind in the error taxonomy. Guards and the pool
// return these sentinels directly; construction errors wrap
// ErrInvalidArgument with fmt.Errorf("%w: ...") (see invalidArgf). Either
// way, callers match with errors.Is.
var (
	// ErrCircuitOpen is returned when a circuit breaker denies a call.
	ErrCircuitOpen = errors.New(`preflex: circuit breaker open`)

	// ErrSemaphoreRejected is returned when no permit is available.
	ErrSemaphoreRejected = errors.New(`preflex: semaphore rejected`)

	// ErrPoolRejected is returned when a bounded pool's intake queue is
	// full, its worker count is saturated, or it has been shut down.
	ErrPoolRejected = errors.New(`preflex: thread pool rejected`)

	// ErrTimedOut is returned when a task exceeds its declared timeout.
	ErrTimedOut = errors.New(`preflex: operation timed out`)

	// ErrInvalidArgument is returned for construction-time validation
	// failures.
	ErrInvalidArgument = errors.New(`preflex: invalid argument`)

	// ErrUnsupported is returned by operations that are not valid for a
	// given collector configuration (e.g. a value-less record on a
	// collector that requires a value).
	ErrUnsupported = errors.New(`preflex: unsupported operation`)
)

// TaskError wraps an error returned or panicked by a caller-supplied task,
// preserving it as the Unwrap() cause. The Pool wraps task failures this
// way, so ViaPool callers can distinguish "my task failed" from "the guard
// denied the call". ViaCircuitBreaker and ViaFallback return the task's
// error unchanged.
type TaskError struct {
	Err error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf(`preflex: task failed: %v`, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// invalidArgf builds an error wrapping ErrInvalidArgument with a formatted
// message, matching the panic-on-nil/invalid-arg style the teacher's
// constructors use, but returned rather than panicked where the spec calls
// for a recoverable construction failure (e.g. a non-divisible rolling
// window).
func invalidArgf(format string, args ...any) error {
	return fmt.Errorf(`%w: `+format, append([]any{ErrInvalidArgument}, args...)...)
}
