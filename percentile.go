package preflex

import (
	"golang.org/x/exp/slices"
)

// SampleMetrics is the {min, mean, median, max, percentiles} tuple
// computed over a sorted sample array (spec §9). Empty is set when the
// underlying sample was empty, so callers can distinguish "no samples"
// from "every sample happened to be zero" (spec §9 Open Question c).
type SampleMetrics struct {
	Empty       bool
	Min         int64
	Max         int64
	Mean        float64
	Median      float64
	Percentiles map[float64]int64
}

// computeSampleMetrics sorts samples and computes SampleMetrics,
// including the requested percentiles (each in [0, 100]). samples is not
// mutated; a copy is sorted internally.
func computeSampleMetrics(samples []int64, percentiles []float64) SampleMetrics {
	if len(samples) == 0 {
		return SampleMetrics{Empty: true, Percentiles: map[float64]int64{}}
	}

	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	var sum int64
	for _, v := range sorted {
		sum += v
	}
	mean := float64(sum) / float64(len(sorted))

	m := SampleMetrics{
		Min:         sorted[0],
		Max:         sorted[len(sorted)-1],
		Mean:        mean,
		Median:      medianOf(sorted),
		Percentiles: make(map[float64]int64, len(percentiles)),
	}
	for _, p := range percentiles {
		m.Percentiles[p] = nearestRank(sorted, p)
	}
	return m
}

// medianOf returns the median of an already-sorted, non-empty slice.
func medianOf(sorted []int64) float64 {
	n := len(sorted)
	if n%2 == 0 {
		return float64(sorted[n/2-1]+sorted[n/2]) / 2
	}
	return float64(sorted[n/2])
}

// nearestRank implements the Nearest-Rank percentile method over an
// already-sorted ascending slice (spec §4.D).
func nearestRank(sorted []int64, p float64) int64 {
	n := len(sorted)
	if n == 0 || p <= 0 {
		return 0
	}
	if p >= 100 {
		return sorted[n-1]
	}
	rank := int(roundHalfAwayFromZero(p * float64(n) / 100))
	idx := rank - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}

func roundHalfAwayFromZero(v float64) float64 {
	if v >= 0 {
		return float64(int64(v + 0.5))
	}
	return float64(int64(v - 0.5))
}
