package preflex

import "time"

// RollingConfig models optional configuration shared by every rolling
// recorder constructor (spec §6.1 "rolling recorders").
type RollingConfig struct {
	// BucketInterval is the event-ID span each bucket covers. Defaults
	// to one second's worth of the EventIDFunc's unit (i.e. 1000, since
	// EventIDFunc defaults to milliseconds) when zero.
	BucketInterval int64

	// DerefHead controls whether the in-progress head bucket is
	// included in reads. Defaults to false (excluded), matching the
	// zero value of this field, so readings aren't polluted by a
	// partially-elapsed interval (spec §4.D).
	DerefHead bool

	// EventIDFunc supplies the monotonic key driving bucket placement.
	// Defaults to wall-clock milliseconds.
	EventIDFunc EventIDFunc

	// ShardCount configures the backing ShardedCBB. Zero auto-detects.
	ShardCount int

	// StorageCapacity bounds how many raw values a storing-bucket-backed
	// recorder (RollingStore) retains per bucket. Defaults to 64.
	StorageCapacity int
}

const defaultBucketIntervalMillis = int64(time.Second / time.Millisecond)

func (c *RollingConfig) interval() int64 {
	if c != nil && c.BucketInterval > 0 {
		return c.BucketInterval
	}
	return defaultBucketIntervalMillis
}

func (c *RollingConfig) derefHead() bool {
	return c != nil && c.DerefHead
}

func (c *RollingConfig) eventIDFunc() EventIDFunc {
	if c != nil && c.EventIDFunc != nil {
		return c.EventIDFunc
	}
	return defaultEventIDFunc
}

func (c *RollingConfig) shardedConfig() *ShardedCBBConfig {
	shardCount := 0
	if c != nil {
		shardCount = c.ShardCount
	}
	return &ShardedCBBConfig{ShardCount: shardCount}
}

func (c *RollingConfig) storageCapacity() int {
	if c != nil && c.StorageCapacity > 0 {
		return c.StorageCapacity
	}
	return 64
}

// rollingBase is the shared machinery every rolling recorder is built on:
// a sharded cyclic bucket buffer, plus the head-inclusion and event-ID
// policy applied on every read.
type rollingBase struct {
	sharded     *ShardedCBB
	bucketCount int
	derefHead   bool
	eventIDFunc EventIDFunc
}

func newRollingBase(bucketCount int, cfg *RollingConfig, makeCBB func() *CBB, reduce func([][]int64) []int64) rollingBase {
	if bucketCount <= 0 {
		panic(`preflex: rolling: bucketCount must be positive`)
	}
	return rollingBase{
		sharded:     NewShardedCBB(makeCBB, reduce, cfg.shardedConfig()),
		bucketCount: bucketCount,
		derefHead:   cfg.derefHead(),
		eventIDFunc: cfg.eventIDFunc(),
	}
}

func (r *rollingBase) now() int64 { return r.eventIDFunc() }

// elements returns either the tail (default) or all buckets including the
// head, forcing the window forward to "now" first.
func (r *rollingBase) elements() []int64 {
	if r.derefHead {
		return r.sharded.AllElementsAsOf(r.now())
	}
	return r.sharded.TailElementsAsOf(r.now())
}

// CounterReading is the readout shape for RollingSum/RollingCount (spec
// §6.4): the deref'd value, and optionally the per-bucket breakdown.
type CounterReading struct {
	Value   int64
	Buckets []int64
}

func newSummingCBBFactory(bucketCount int, interval int64) func() *CBB {
	return func() *CBB {
		return NewCBB(bucketCount, interval, newSummingBucketStore(bucketCount), 0, nil)
	}
}

func sumElements(elements []int64) int64 {
	var total int64
	for _, v := range elements {
		total += v
	}
	return total
}

// RollingSum tracks a windowed running total of arbitrary int64 values.
type RollingSum struct{ base rollingBase }

func NewRollingSum(bucketCount int, cfg *RollingConfig) *RollingSum {
	return &RollingSum{base: newRollingBase(bucketCount, cfg, newSummingCBBFactory(bucketCount, cfg.interval()), (&summingBucketStore{}).reduce)}
}

func (r *RollingSum) Record(v int64) { r.base.sharded.Record(r.base.now(), v) }
func (r *RollingSum) Count() int64   { return sumElements(r.base.elements()) }
func (r *RollingSum) Deref(includeBuckets bool) CounterReading {
	elements := r.base.elements()
	reading := CounterReading{Value: sumElements(elements)}
	if includeBuckets {
		reading.Buckets = elements
	}
	return reading
}

// RollingCount tracks a windowed event count (each Record adds exactly
// one). Distinct from RollingSum only in that Record takes no value,
// matching the spec's distinction between rolling-sum and rolling-count.
type RollingCount struct{ base rollingBase }

func NewRollingCount(bucketCount int, cfg *RollingConfig) *RollingCount {
	return &RollingCount{base: newRollingBase(bucketCount, cfg, newSummingCBBFactory(bucketCount, cfg.interval()), (&summingBucketStore{}).reduce)}
}

func (r *RollingCount) Record()      { r.base.sharded.Record(r.base.now(), 1) }
func (r *RollingCount) Count() int64 { return sumElements(r.base.elements()) }

// Reset clears every bucket and restarts the window at the current
// event ID, used by rollingFaultDetector.Reinit.
func (r *RollingCount) Reset() { r.base.sharded.Reset(r.base.now()) }
func (r *RollingCount) Deref(includeBuckets bool) CounterReading {
	elements := r.base.elements()
	reading := CounterReading{Value: sumElements(elements)}
	if includeBuckets {
		reading.Buckets = elements
	}
	return reading
}

// MaxReading is the readout shape for RollingMax.
type MaxReading struct {
	Empty   bool
	Value   int64
	Buckets []int64
}

// RollingMax tracks the largest value recorded within each bucket,
// windowed (spec §4.D). An empty window (no samples) is reported
// explicitly via Empty, rather than as a bare 0 (spec §9 Open Question
// c).
type RollingMax struct{ base rollingBase }

func NewRollingMax(bucketCount int, cfg *RollingConfig) *RollingMax {
	factory := func() *CBB {
		return NewCBB(bucketCount, cfg.interval(), newMaxBucketStore(bucketCount), 0, nil)
	}
	return &RollingMax{base: newRollingBase(bucketCount, cfg, factory, (&maxBucketStore{}).reduce)}
}

func (r *RollingMax) Record(v int64) { r.base.sharded.Record(r.base.now(), v) }

func maxOf(elements []int64) (int64, bool) {
	empty := true
	var max int64
	for _, v := range elements {
		if v == emptyMaxValue {
			continue
		}
		if empty || v > max {
			max = v
			empty = false
		}
	}
	return max, empty
}

func (r *RollingMax) Deref(includeBuckets bool) MaxReading {
	elements := r.base.elements()
	value, empty := maxOf(elements)
	reading := MaxReading{Empty: empty, Value: value}
	if includeBuckets {
		reading.Buckets = elements
	}
	return reading
}

// RollingStore retains the last StorageCapacity raw values written to
// each bucket, windowed, and derives SampleMetrics (min/mean/median/max
// and requested percentiles) over the tail, or over every bucket when
// DerefHead is set (spec §4.D).
type RollingStore struct{ base rollingBase }

func NewRollingStore(bucketCount int, cfg *RollingConfig) *RollingStore {
	capacity := cfg.storageCapacity()
	factory := func() *CBB {
		return NewCBB(bucketCount, cfg.interval(), newStoringBucketStore(bucketCount, capacity), 0, nil)
	}
	return &RollingStore{base: newRollingBase(bucketCount, cfg, factory, (&storingBucketStore{}).reduce)}
}

func (r *RollingStore) Record(v int64) { r.base.sharded.Record(r.base.now(), v) }

func (r *RollingStore) Deref(percentiles []float64) SampleMetrics {
	return computeSampleMetrics(r.base.elements(), percentiles)
}

// BooleanReading is the readout shape for RollingBoolean.
type BooleanReading struct {
	Truthy        int64
	Falsy         int64
	TruthyBuckets []int64
	FalsyBuckets  []int64
}

// RollingBoolean tracks windowed truthy/falsy event counts independently,
// backed by a pair of summing rolling counters (spec §4.D).
type RollingBoolean struct {
	truthy *RollingCount
	falsy  *RollingCount
}

func NewRollingBoolean(bucketCount int, cfg *RollingConfig) *RollingBoolean {
	return &RollingBoolean{
		truthy: NewRollingCount(bucketCount, cfg),
		falsy:  NewRollingCount(bucketCount, cfg),
	}
}

func (r *RollingBoolean) Record(value bool) {
	if value {
		r.truthy.Record()
	} else {
		r.falsy.Record()
	}
}

func (r *RollingBoolean) Deref(includeBuckets bool) BooleanReading {
	t := r.truthy.Deref(includeBuckets)
	f := r.falsy.Deref(includeBuckets)
	return BooleanReading{
		Truthy:        t.Value,
		Falsy:         f.Value,
		TruthyBuckets: t.Buckets,
		FalsyBuckets:  f.Buckets,
	}
}
