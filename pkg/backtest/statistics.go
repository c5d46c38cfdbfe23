package backtest

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean, or 0 for an empty slice
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sum(values) / float64(len(values))
}

// StdDev returns the population standard deviation, or 0 for fewer than two values
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}

// Percentile returns sorted[floor(q*n)] of an ascending slice, clamped to the last element.
// An empty slice yields 0.
func Percentile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Floor(q * float64(n)))
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

// SortedCopy returns an ascending copy of values
func SortedCopy(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted
}

// Correlation returns the Pearson correlation of x and y.
// Mismatched lengths, fewer than two points or a zero denominator yield 0.
func Correlation(x, y []float64) float64 {
	n := len(x)
	if n != len(y) || n < 2 {
		return 0
	}

	mx, my := Mean(x), Mean(y)
	var cov, vx, vy float64
	for i := 0; i < n; i++ {
		dx := x[i] - mx
		dy := y[i] - my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}

	denom := math.Sqrt(vx * vy)
	if denom == 0 || math.IsNaN(denom) {
		return 0
	}
	return cov / denom
}
