package preflex

import (
	"math/rand"
	"runtime"
	"sync"
)

// ShardedCBBConfig models optional configuration for NewShardedCBB.
type ShardedCBBConfig struct {
	// ShardCount is the number of underlying CBB replicas. Zero
	// auto-detects as min(runtime.NumCPU(), 64)*2 (spec §4.C). One
	// bypasses sharding entirely: NewShardedCBB returns a ShardedCBB
	// that delegates straight to a single CBB, preserving linearizable
	// reads for tests that need them.
	ShardCount int

	CBB *CBBConfig
}

// ShardedCBB fans a single logical cyclic bucket buffer out across
// several CBB replicas, to reduce write contention on the advancement
// mutex (spec §4.C). Writes pick a shard at random; reads merge across
// every shard via the bucket store's reduce function.
type ShardedCBB struct {
	shards []*CBB
	reduce func(arrays [][]int64) []int64

	randPool sync.Pool
}

// NewShardedCBB builds a ShardedCBB from a factory that produces fresh,
// identically-shaped CBBs (one per shard) and a reduce function matching
// the bucket store strategy in use (see bucketStore.reduce).
func NewShardedCBB(factory func() *CBB, reduce func(arrays [][]int64) []int64, cfg *ShardedCBBConfig) *ShardedCBB {
	if factory == nil {
		panic(`preflex: sharded cbb: nil factory`)
	}
	if reduce == nil {
		panic(`preflex: sharded cbb: nil reduce func`)
	}

	shardCount := 0
	if cfg != nil {
		shardCount = cfg.ShardCount
	}
	if shardCount == 0 {
		cpus := runtime.NumCPU()
		if cpus > 64 {
			cpus = 64
		}
		shardCount = cpus * 2
		if shardCount == 0 {
			shardCount = 1
		}
	}
	if shardCount < 1 {
		panic(`preflex: sharded cbb: shard count must be positive`)
	}

	shards := make([]*CBB, shardCount)
	for i := range shards {
		shards[i] = factory()
	}

	return &ShardedCBB{
		shards: shards,
		reduce: reduce,
		randPool: sync.Pool{
			New: func() any { return rand.New(rand.NewSource(rand.Int63())) },
		},
	}
}

func (s *ShardedCBB) pickShard() *CBB {
	if len(s.shards) == 1 {
		return s.shards[0]
	}
	r := s.randPool.Get().(*rand.Rand)
	idx := r.Intn(len(s.shards))
	s.randPool.Put(r)
	return s.shards[idx]
}

// Record writes value at eventID into a randomly chosen shard.
func (s *ShardedCBB) Record(eventID, value int64) {
	s.pickShard().Record(eventID, value)
}

// AllElements merges AllElements across every shard.
func (s *ShardedCBB) AllElements() []int64 {
	return s.reduceAll(func(c *CBB) []int64 { return c.AllElements() })
}

// AllElementsAsOf merges AllElementsAsOf across every shard.
func (s *ShardedCBB) AllElementsAsOf(latestEventID int64) []int64 {
	return s.reduceAll(func(c *CBB) []int64 { return c.AllElementsAsOf(latestEventID) })
}

// TailElements merges TailElements across every shard.
func (s *ShardedCBB) TailElements() []int64 {
	return s.reduceAll(func(c *CBB) []int64 { return c.TailElements() })
}

// TailElementsAsOf merges TailElementsAsOf across every shard.
func (s *ShardedCBB) TailElementsAsOf(latestEventID int64) []int64 {
	return s.reduceAll(func(c *CBB) []int64 { return c.TailElementsAsOf(latestEventID) })
}

func (s *ShardedCBB) reduceAll(read func(*CBB) []int64) []int64 {
	arrays := make([][]int64, len(s.shards))
	for i, c := range s.shards {
		arrays[i] = read(c)
	}
	return s.reduce(arrays)
}

// Reset propagates a reset to every shard. This is not atomic across
// shards: readers racing a Reset may observe a mix of reset and
// not-yet-reset shards (spec §4.C).
func (s *ShardedCBB) Reset(newLatestEventID int64) {
	for _, c := range s.shards {
		c.Reset(newLatestEventID)
	}
}

// LatestEventID returns the maximum latest event ID observed across
// shards, a reasonable upper bound on the sharded buffer's visible
// window edge.
func (s *ShardedCBB) LatestEventID() int64 {
	var max int64
	for i, c := range s.shards {
		v := c.LatestEventID()
		if i == 0 || v > max {
			max = v
		}
	}
	return max
}
