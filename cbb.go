package preflex

import (
	"sync"

	"go.uber.org/atomic"
)

// CBBConfig models optional configuration for NewCBB.
type CBBConfig struct {
	// PendingQueueCapacity enables the deferred-advancement pending
	// queue when positive (spec §4.A). Zero disables it: contended
	// writers simply block on the advancement mutex. Defaults to 0
	// (disabled) — most callers size their shard count so that any one
	// shard sees low enough contention that the queue is unnecessary;
	// it exists for the rare hot-shard case.
	PendingQueueCapacity int

	// PendingSoftThreshold and PendingHardThreshold bound the pending
	// queue's occupancy before entries are sampled (soft) or dropped
	// (hard). Defaults derive from PendingQueueCapacity when zero.
	PendingSoftThreshold int
	PendingHardThreshold int
}

// CBB is a Cyclic Bucket Buffer: a fixed-size ring of buckets keyed by a
// monotonically increasing event ID (spec §4.A). Bucket 0 is always the
// head (the bucket containing the latest recorded/advanced-to event ID);
// bucket N-1 is the oldest.
//
// The fast path (an event ID that maps to an existing bucket) never
// takes a lock: head index and latest event ID are read via atomics, and
// the bucket store's own record is lock-free. Advancement (an event ID
// ahead of the current window) is serialized by a mutex.
type CBB struct {
	n     int
	delta int64
	store bucketStore

	headIndex    atomic.Int64
	latestEvent  atomic.Int64
	mu           sync.Mutex
	pending      *pendingQueue
}

// NewCBB constructs a CBB with bucketCount buckets, each spanning
// bucketInterval units of event ID, backed by store, with the window
// initially ending at initialLatest. cfg may be nil.
func NewCBB(bucketCount int, bucketInterval int64, store bucketStore, initialLatest int64, cfg *CBBConfig) *CBB {
	if bucketCount <= 0 {
		panic(`preflex: cbb: bucketCount must be positive`)
	}
	if bucketInterval <= 0 {
		panic(`preflex: cbb: bucketInterval must be positive`)
	}
	if store == nil {
		panic(`preflex: cbb: nil bucket store`)
	}
	c := &CBB{n: bucketCount, delta: bucketInterval, store: store}
	c.headIndex.Store(0)
	c.latestEvent.Store(initialLatest)
	if cfg != nil && cfg.PendingQueueCapacity > 0 {
		c.pending = newPendingQueue(cfg.PendingQueueCapacity, cfg.PendingSoftThreshold, cfg.PendingHardThreshold)
	}
	return c
}

func mod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}

// bucketIndex computes the bucket offset from the head for an incoming
// event ID e, given the current latest event ID l (spec §4.A). A
// non-negative result names an existing bucket (0 = head); a negative
// result means e is ahead of the window and advancement is required.
func bucketIndex(l, e, delta int64) int64 {
	diff := l - e
	q := diff / delta
	r := diff % delta
	if r < 0 {
		return q - 1
	}
	return q
}

// Record merges value into the bucket covering eventID, advancing the
// window first if eventID is ahead of it.
func (c *CBB) Record(eventID, value int64) {
	for {
		l := c.latestEvent.Load()
		h := c.headIndex.Load()
		idx := bucketIndex(l, eventID, c.delta)
		if idx >= 0 {
			if idx >= int64(c.n) {
				// too old for the current window: drop.
				return
			}
			slot := mod(int(h)+int(idx), c.n)
			c.store.record(slot, value)
			return
		}

		// advancement required. With a pending queue, a writer that finds
		// the mutex already held hands its write to the queue instead.
		locked := c.pending != nil && c.mu.TryLock()
		if !locked {
			if c.pending != nil && c.pending.tryEnqueue(pendingAction{eventID: eventID, value: value}) {
				return
			}
			c.mu.Lock()
		}
		c.drainAndAdvanceLocked(eventID)
		c.mu.Unlock()
		// loop: fast path should now succeed.
	}
}

// drainAndAdvanceLocked assumes c.mu is held. It first applies any
// pending deferred actions (letting this goroutine, as the mutex holder,
// service contention from others), then advances the window so that
// eventID names a non-negative bucket, re-checking freshly each time
// rather than trusting a value computed before the lock was acquired
// (spec §9 Open Question a).
func (c *CBB) drainAndAdvanceLocked(eventID int64) {
	if c.pending != nil {
		c.pending.drain(func(a pendingAction) {
			c.advanceForLocked(a.eventID)
			l := c.latestEvent.Load()
			h := c.headIndex.Load()
			idx := bucketIndex(l, a.eventID, c.delta)
			if idx >= 0 && idx < int64(c.n) {
				c.store.record(mod(int(h)+int(idx), c.n), a.value)
			}
		})
	}
	c.advanceForLocked(eventID)
}

// advanceForLocked assumes c.mu is held, and shifts the window so that e
// is no longer ahead of it. A fresh re-read + recompute is performed
// (rather than trusting any caller-supplied index) every time.
func (c *CBB) advanceForLocked(e int64) {
	l := c.latestEvent.Load()
	idx := bucketIndex(l, e, c.delta)
	if idx >= 0 {
		return // someone else already advanced far enough.
	}
	shift := int(-idx)
	if shift >= c.n {
		for i := 0; i < c.n; i++ {
			c.store.reset(i)
		}
		c.headIndex.Store(0)
		c.latestEvent.Store(e)
		return
	}

	h := int(c.headIndex.Load())
	newHead := mod(h-shift, c.n)
	for k := 0; k < shift; k++ {
		c.store.reset(mod(newHead+k, c.n))
	}
	c.headIndex.Store(int64(newHead))
	c.latestEvent.Add(int64(shift) * c.delta)
}

// ensureAdvanced forces the window to cover latestEventID, without
// recording any value, draining any pending actions along the way. It is
// used by AllElements/TailElements when called with an explicit event ID
// (spec §4.A "read-after-pending").
func (c *CBB) ensureAdvanced(latestEventID int64) {
	l := c.latestEvent.Load()
	if bucketIndex(l, latestEventID, c.delta) >= 0 && (c.pending == nil || len(c.pending.ch) == 0) {
		return
	}
	c.mu.Lock()
	c.drainAndAdvanceLocked(latestEventID)
	c.mu.Unlock()
}

// Reset reinitializes the buffer so its window starts fresh, ending at
// newLatestEventID.
func (c *CBB) Reset(newLatestEventID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < c.n; i++ {
		c.store.reset(i)
	}
	c.headIndex.Store(0)
	c.latestEvent.Store(newLatestEventID)
}

// relativeIndices returns the array-slot order for relative bucket
// indices from..to (inclusive), as of the buffer's current head.
func (c *CBB) relativeIndices(from, to int) []int {
	h := int(c.headIndex.Load())
	out := make([]int, 0, to-from+1)
	for rel := from; rel <= to; rel++ {
		out = append(out, mod(h+rel, c.n))
	}
	return out
}

// AllElements returns the content of all N buckets, index 0 = head
// (newest, in-progress interval) through N-1 (oldest), as currently
// visible.
func (c *CBB) AllElements() []int64 {
	return c.store.getElements(c.relativeIndices(0, c.n-1))
}

// AllElementsAsOf forces the window to cover latestEventID first, then
// behaves as AllElements.
func (c *CBB) AllElementsAsOf(latestEventID int64) []int64 {
	c.ensureAdvanced(latestEventID)
	return c.AllElements()
}

// TailElements returns the content of all buckets except the head (the
// in-progress interval), ordered from index 1 (newest) to N-1 (oldest).
func (c *CBB) TailElements() []int64 {
	if c.n == 1 {
		return nil
	}
	return c.store.getElements(c.relativeIndices(1, c.n-1))
}

// TailElementsAsOf forces the window to cover latestEventID first, then
// behaves as TailElements.
func (c *CBB) TailElementsAsOf(latestEventID int64) []int64 {
	c.ensureAdvanced(latestEventID)
	return c.TailElements()
}

// LatestEventID returns the most recently observed/advanced-to event ID.
func (c *CBB) LatestEventID() int64 { return c.latestEvent.Load() }
