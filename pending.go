package preflex

import (
	"math/rand"
	"sync"
)

// pendingAction is a deferred record, queued when a writer that needs
// advancement finds the CBB's advancement mutex already held (spec §4.A
// "pending queue").
type pendingAction struct {
	eventID int64
	value   int64
}

// pendingQueue is a bounded, best-effort relief valve for advancement
// contention. Below softThreshold every action is queued; between soft
// and hard it is queued with low probability; at or above hard it is
// dropped. None of this affects correctness of the *calling* goroutine's
// own write — CBB.Record falls back to taking the advancement mutex
// directly whenever the queue declines an action, so a write is only
// ever lost if it was successfully handed off and then evicted by a
// subsequent drain decision, which this implementation does not do.
// Queueing exists purely to let a contended advancement be serviced by
// whichever goroutine next holds the mutex, instead of piling up waiters.
type pendingQueue struct {
	ch                       chan pendingAction
	softThreshold, hardThreshold int

	mu  sync.Mutex
	rng *rand.Rand
}

const pendingSampleRate = 0.01

func newPendingQueue(capacity, soft, hard int) *pendingQueue {
	if capacity <= 0 {
		capacity = 64
	}
	if hard <= 0 || hard > capacity {
		hard = capacity
	}
	if soft <= 0 || soft > hard {
		soft = hard / 2
		if soft == 0 {
			soft = hard
		}
	}
	return &pendingQueue{
		ch:            make(chan pendingAction, capacity),
		softThreshold: soft,
		hardThreshold: hard,
		rng:           rand.New(rand.NewSource(1)),
	}
}

// tryEnqueue attempts to queue a, applying the soft/hard flood policy.
// It reports whether a was queued.
func (q *pendingQueue) tryEnqueue(a pendingAction) bool {
	n := len(q.ch)
	switch {
	case n >= q.hardThreshold:
		return false
	case n >= q.softThreshold:
		if !q.sample() {
			return false
		}
	}
	select {
	case q.ch <- a:
		return true
	default:
		return false
	}
}

func (q *pendingQueue) sample() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.rng.Float64() < pendingSampleRate
}

// drain removes and applies every currently queued action via apply,
// which the CBB supplies while already holding its advancement mutex.
func (q *pendingQueue) drain(apply func(pendingAction)) {
	for {
		select {
		case a := <-q.ch:
			apply(a)
		default:
			return
		}
	}
}
