package preflex

import (
	"math"

	"go.uber.org/atomic"
)

// bucketStore is the contract a cyclic bucket buffer delegates per-bucket
// accumulation to. Three strategies exist: summing, max, and storing
// (spec §4.B). Implementations must be safe for concurrent record/reset
// calls against distinct bucket indices, and safe for concurrent record
// calls against the *same* index (the CBB's fast path never serializes
// writers against each other, only against advancement).
type bucketStore interface {
	// record merges v into bucket i.
	record(i int, v int64)
	// reset makes bucket i semantically empty.
	reset(i int)
	// getElements returns the concatenated content of the listed buckets,
	// in the given order.
	getElements(indices []int) []int64
	// reduce combines per-shard read results (each produced by
	// getElements against one shard) into a single array.
	reduce(arrays [][]int64) []int64
}

// summingBucketStore accumulates a running int64 total per bucket.
// Overflow wraps modulo 2^64, matching spec §7's "metrics recorders never
// throw on overflow" policy.
type summingBucketStore struct {
	slots []*atomic.Int64
}

func newSummingBucketStore(n int) *summingBucketStore {
	slots := make([]*atomic.Int64, n)
	for i := range slots {
		slots[i] = atomic.NewInt64(0)
	}
	return &summingBucketStore{slots: slots}
}

func (s *summingBucketStore) record(i int, v int64) { s.slots[i].Add(v) }
func (s *summingBucketStore) reset(i int)           { s.slots[i].Store(0) }

func (s *summingBucketStore) getElements(indices []int) []int64 {
	out := make([]int64, len(indices))
	for k, i := range indices {
		out[k] = s.slots[i].Load()
	}
	return out
}

func (s *summingBucketStore) reduce(arrays [][]int64) []int64 {
	if len(arrays) == 0 {
		return nil
	}
	out := make([]int64, len(arrays[0]))
	for _, a := range arrays {
		for i, v := range a {
			out[i] += v
		}
	}
	return out
}

// emptyMaxValue marks a max-bucket slot that has never been written, or
// was most recently reset. Using a sentinel (rather than 0) lets callers
// tell "no samples" from "max observed was 0" (spec §9 Open Question c).
const emptyMaxValue = math.MinInt64

// maxBucketStore keeps the largest int64 recorded per bucket since the
// last reset.
type maxBucketStore struct {
	slots []*atomic.Int64
}

func newMaxBucketStore(n int) *maxBucketStore {
	slots := make([]*atomic.Int64, n)
	for i := range slots {
		slots[i] = atomic.NewInt64(emptyMaxValue)
	}
	return &maxBucketStore{slots: slots}
}

func (s *maxBucketStore) record(i int, v int64) {
	slot := s.slots[i]
	for {
		cur := slot.Load()
		if v <= cur {
			return
		}
		if slot.CompareAndSwap(cur, v) {
			return
		}
	}
}

func (s *maxBucketStore) reset(i int) { s.slots[i].Store(emptyMaxValue) }

func (s *maxBucketStore) getElements(indices []int) []int64 {
	out := make([]int64, len(indices))
	for k, i := range indices {
		out[k] = s.slots[i].Load()
	}
	return out
}

func (s *maxBucketStore) reduce(arrays [][]int64) []int64 {
	if len(arrays) == 0 {
		return nil
	}
	out := make([]int64, len(arrays[0]))
	for i := range out {
		out[i] = emptyMaxValue
	}
	for _, a := range arrays {
		for i, v := range a {
			if v > out[i] {
				out[i] = v
			}
		}
	}
	return out
}

// storingBucketStore retains, per bucket, the most recent Capacity values
// written to it, wrapping like a ring buffer (spec §4.B, §3 "storing
// bucket"). Capacity and bucket count are fixed at construction; the slot
// array is N*Capacity, with a per-bucket atomic write-index that also
// serves as the "how many writes landed here" counter used by
// getElements to bound the read to min(writes, Capacity).
type storingBucketStore struct {
	capacity int
	slots    []*atomic.Int64
	writes   []*atomic.Uint64
}

func newStoringBucketStore(n, capacity int) *storingBucketStore {
	if capacity <= 0 {
		panic(`preflex: storing bucket store: capacity must be positive`)
	}
	slots := make([]*atomic.Int64, n*capacity)
	for i := range slots {
		slots[i] = atomic.NewInt64(0)
	}
	writes := make([]*atomic.Uint64, n)
	for i := range writes {
		writes[i] = atomic.NewUint64(0)
	}
	return &storingBucketStore{capacity: capacity, slots: slots, writes: writes}
}

func (s *storingBucketStore) record(i int, v int64) {
	next := s.writes[i].Add(1)
	offset := uint64(i)*uint64(s.capacity) + ((next - 1) % uint64(s.capacity))
	s.slots[offset].Store(v)
}

func (s *storingBucketStore) reset(i int) { s.writes[i].Store(0) }

// getElements returns, for each requested bucket, the raw slot contents
// (not necessarily in strict chronological order once a bucket has
// wrapped — callers needing order statistics, e.g. percentile.go, sort
// the result regardless, so raw order does not matter).
func (s *storingBucketStore) getElements(indices []int) []int64 {
	var out []int64
	for _, i := range indices {
		count := int(s.writes[i].Load())
		if count > s.capacity {
			count = s.capacity
		}
		base := i * s.capacity
		out = append(out, derefInt64s(s.slots[base:base+count])...)
	}
	return out
}

// reduce concatenates per-shard reads in shard order — deterministic for
// a fixed shard count, per spec §8 "Shard reduce correctness".
func (s *storingBucketStore) reduce(arrays [][]int64) []int64 {
	var out []int64
	for _, a := range arrays {
		out = append(out, a...)
	}
	return out
}

func derefInt64s(slots []*atomic.Int64) []int64 {
	out := make([]int64, len(slots))
	for i, s := range slots {
		out[i] = s.Load()
	}
	return out
}
