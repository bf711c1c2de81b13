package preflex

import "time"

// Clock returns the current wall-clock time. Constructors that accept one
// default to time.Now; tests substitute a virtual clock (see
// rolling_test.go and retryresolver_test.go) to drive deterministic
// scenarios, the same way catrate.timeNow is swapped out for tests.
type Clock func() time.Time

func defaultClock() time.Time {
	return time.Now()
}

// EventIDFunc produces the monotonically increasing event ID used to key
// cyclic bucket buffer writes. It defaults to wall-clock milliseconds, but
// callers may supply a monotonic counter or a virtual clock in tests (spec
// §4.D).
type EventIDFunc func() int64

func defaultEventIDFunc() int64 {
	return time.Now().UnixMilli()
}
