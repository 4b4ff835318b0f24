// Package stats implements the density and divergence analysis used on
// AWAP/BIOS2 sample stacks: equal-width histograms, time-windowed densities,
// Kullback-Leibler divergence matrices and area-weighted reductions.
package stats

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrInvalidWindow is returned for bad window, stride, bin or range settings.
	ErrInvalidWindow = errors.New("stats: invalid window configuration")
	// ErrLengthMismatch is returned when two densities differ in length.
	ErrLengthMismatch = errors.New("stats: density length mismatch")
	// ErrEmptySample is returned when a reduction has nothing to reduce.
	ErrEmptySample = errors.New("stats: empty sample")
)

// MaxBins bounds the number of histogram bins.
const MaxBins = 100000

// BinEdges returns bins+1 equally spaced edges spanning [lo, hi].
func BinEdges(lo, hi float64, bins int) ([]float64, error) {
	if bins <= 0 || bins > MaxBins {
		return nil, fmt.Errorf("%w: bins=%d (want 1..%d)", ErrInvalidWindow, bins, MaxBins)
	}
	if !(hi > lo) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return nil, fmt.Errorf("%w: range [%v, %v]", ErrInvalidWindow, lo, hi)
	}
	return floats.Span(make([]float64, bins+1), lo, hi), nil
}

// Counts bins values into the equal-width bins described by edges.
// Every bin is half-open except the last, which includes hi. Values outside
// [edges[0], edges[len-1]] and NaNs are ignored. The second return value is
// the number of values that fell inside the range.
func Counts(values, edges []float64) ([]float64, int) {
	nb := len(edges) - 1
	counts := make([]float64, nb)
	if nb <= 0 {
		return counts, 0
	}
	lo, hi := edges[0], edges[nb]
	norm := float64(nb) / (hi - lo)
	inRange := 0
	for _, v := range values {
		if math.IsNaN(v) || v < lo || v > hi {
			continue
		}
		i := int((v - lo) * norm)
		if i >= nb {
			i = nb - 1
		}
		// Roundoff in the scaled index can land a value one bin off.
		if i > 0 && v < edges[i] {
			i--
		} else if i < nb-1 && v >= edges[i+1] {
			i++
		}
		counts[i]++
		inRange++
	}
	return counts, inRange
}

// Density returns a normalised histogram of values over bins equal-width
// bins on [lo, hi], so that the sum of density*binWidth is 1. When no value
// falls in range the density is all zeros.
func Density(values []float64, lo, hi float64, bins int) (density, edges []float64, err error) {
	edges, err = BinEdges(lo, hi, bins)
	if err != nil {
		return nil, nil, err
	}
	counts, n := Counts(values, edges)
	densityFromCounts(counts, edges, n)
	return counts, edges, nil
}

// densityFromCounts normalises counts in place.
func densityFromCounts(counts, edges []float64, n int) {
	if n == 0 {
		return
	}
	for i := range counts {
		counts[i] /= float64(n) * (edges[i+1] - edges[i])
	}
}

// SampleRange returns the minimum and maximum of values, ignoring NaNs.
// A constant sample is widened by 0.5 on each side so it still forms a
// valid histogram range.
func SampleRange(values []float64) (lo, hi float64, err error) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		return 0, 0, ErrEmptySample
	}
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	return lo, hi, nil
}

// ScottBins returns the number of equal-width bins Scott's normal reference
// rule gives for values over their own range, at most MaxBins.
func ScottBins(values []float64) (int, error) {
	if len(values) == 0 {
		return 0, ErrEmptySample
	}
	lo, hi := floats.Min(values), floats.Max(values)
	sd := math.Sqrt(stat.PopVariance(values, nil))
	width := math.Cbrt(24*math.Sqrt(math.Pi)/float64(len(values))) * sd
	if width == 0 || hi == lo {
		return 1, nil
	}
	n := math.Ceil((hi - lo) / width)
	if n > MaxBins {
		return MaxBins, nil
	}
	return int(n), nil
}

// GrandDensity is the density of every value in samples pooled together,
// binned over the sample range with Scott's rule.
func GrandDensity(samples [][]float64) (density, edges []float64, err error) {
	var pooled []float64
	for _, row := range samples {
		pooled = append(pooled, row...)
	}
	lo, hi, err := SampleRange(pooled)
	if err != nil {
		return nil, nil, err
	}
	bins, err := ScottBins(pooled)
	if err != nil {
		return nil, nil, err
	}
	return Density(pooled, lo, hi, bins)
}
