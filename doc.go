// Package preflex provides a small library of resilience and metrics
// primitives for governing potentially-failing, latency-sensitive
// operations: a bounded worker pool, a counting/binary semaphore, a
// circuit breaker with automatic recovery testing, and a serial
// fallback chain, together with a rolling-metrics substrate (cyclic
// bucket buffers, sharded bucket stores, and percentile samplers) that
// backs the fault detector and every windowed counter.
//
// None of the components here create their own goroutines except the
// bounded pool, which is the sole owner of its worker goroutines.
// Guards (the Via* functions) are pure composition: they accept a task
// and a previously constructed component, and apply the component's
// policy around the task's execution.
package preflex
