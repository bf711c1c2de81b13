package preflex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeSampleMetrics_Empty(t *testing.T) {
	m := computeSampleMetrics(nil, []float64{50, 99})
	assert.True(t, m.Empty)
	assert.Empty(t, m.Percentiles)
}

func TestComputeSampleMetrics(t *testing.T) {
	samples := []int64{5, 1, 9, 3, 7}
	m := computeSampleMetrics(samples, []float64{0, 50, 100})

	assert.False(t, m.Empty)
	assert.Equal(t, int64(1), m.Min)
	assert.Equal(t, int64(9), m.Max)
	assert.Equal(t, 5.0, m.Mean)
	assert.Equal(t, 5.0, m.Median)
	assert.Equal(t, int64(0), m.Percentiles[0])
	assert.Equal(t, int64(9), m.Percentiles[100])
}

func TestComputeSampleMetrics_EvenLengthMedian(t *testing.T) {
	m := computeSampleMetrics([]int64{1, 2, 3, 4}, nil)
	assert.Equal(t, 2.5, m.Median)
}

func TestComputeSampleMetrics_DoesNotMutateInput(t *testing.T) {
	samples := []int64{3, 1, 2}
	computeSampleMetrics(samples, nil)
	assert.Equal(t, []int64{3, 1, 2}, samples)
}

func TestNearestRank_PercentileBounds(t *testing.T) {
	sorted := []int64{10, 20, 30, 40, 50}
	// p = 0 maps to 0 by definition (checked exactly below), so it is not
	// bounded by the sample minimum.
	for _, p := range []float64{1, 25, 50, 75, 99, 100} {
		v := nearestRank(sorted, p)
		assert.GreaterOrEqual(t, v, sorted[0])
		assert.LessOrEqual(t, v, sorted[len(sorted)-1])
	}
	assert.Equal(t, int64(0), nearestRank(sorted, 0))
	assert.Equal(t, int64(50), nearestRank(sorted, 100))
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	assert.Equal(t, 3.0, roundHalfAwayFromZero(2.5))
	assert.Equal(t, -3.0, roundHalfAwayFromZero(-2.5))
	assert.Equal(t, 2.0, roundHalfAwayFromZero(2.4))
}
