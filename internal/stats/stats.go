// Package stats holds the null-aware numeric helpers shared by the
// aggregation, relations and insights engines. Missing observations are
// nil pointers and are skipped the way a dataframe skips NaN.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/JonnyWalker81/healthlytics/internal/models"
)

// Epsilon guards standard deviations used as divisors.
const Epsilon = 1e-8

// Present returns the non-nil values in order.
func Present(xs []*float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if x != nil {
			out = append(out, *x)
		}
	}
	return out
}

// Count returns the number of non-nil values.
func Count(xs []*float64) int {
	n := 0
	for _, x := range xs {
		if x != nil {
			n++
		}
	}
	return n
}

// Mean is the mean of the non-nil values, nil if there are none.
func Mean(xs []*float64) *float64 {
	vals := Present(xs)
	if len(vals) == 0 {
		return nil
	}
	return models.F64(stat.Mean(vals, nil))
}

// Sum adds the non-nil values. An all-nil input sums to zero.
func Sum(xs []*float64) float64 {
	return floats.Sum(Present(xs))
}

// SampleStd is the ddof=1 standard deviation, nil with fewer than two values.
func SampleStd(xs []*float64) *float64 {
	vals := Present(xs)
	if len(vals) < 2 {
		return nil
	}
	return models.F64(stat.StdDev(vals, nil))
}

// PopStd is the ddof=0 standard deviation of vals.
func PopStd(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	_, variance := stat.PopMeanVariance(vals, nil)
	return math.Sqrt(variance)
}

// Min is the smallest non-nil value.
func Min(xs []*float64) *float64 {
	vals := Present(xs)
	if len(vals) == 0 {
		return nil
	}
	return models.F64(floats.Min(vals))
}

// Max is the largest non-nil value.
func Max(xs []*float64) *float64 {
	vals := Present(xs)
	if len(vals) == 0 {
		return nil
	}
	return models.F64(floats.Max(vals))
}

// RollingMean is a trailing mean over window rows that needs minPeriods
// non-nil values inside the window.
func RollingMean(xs []*float64, window, minPeriods int) []*float64 {
	return rolling(xs, window, minPeriods, func(vals []float64) *float64 {
		return models.F64(stat.Mean(vals, nil))
	})
}

// RollingStd is a trailing ddof=1 standard deviation over window rows.
// At least two values are always required.
func RollingStd(xs []*float64, window, minPeriods int) []*float64 {
	if minPeriods < 2 {
		minPeriods = 2
	}
	return rolling(xs, window, minPeriods, func(vals []float64) *float64 {
		return models.F64(stat.StdDev(vals, nil))
	})
}

func rolling(xs []*float64, window, minPeriods int, agg func([]float64) *float64) []*float64 {
	out := make([]*float64, len(xs))
	for i := range xs {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		vals := Present(xs[lo : i+1])
		if len(vals) >= minPeriods && len(vals) > 0 {
			out[i] = agg(vals)
		}
	}
	return out
}

// Diff returns xs[i] - xs[i-k], nil where either side is missing.
func Diff(xs []*float64, k int) []*float64 {
	out := make([]*float64, len(xs))
	for i := k; i < len(xs); i++ {
		if xs[i] != nil && xs[i-k] != nil {
			out[i] = models.F64(*xs[i] - *xs[i-k])
		}
	}
	return out
}

// Shift returns xs moved down by one row; the first element is nil.
func Shift(xs []*float64) []*float64 {
	out := make([]*float64, len(xs))
	for i := 1; i < len(xs); i++ {
		out[i] = xs[i-1]
	}
	return out
}

// Complete returns the aligned values of x and y where both are present and finite.
func Complete(x, y []*float64) ([]float64, []float64) {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	xs := make([]float64, 0, n)
	ys := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if x[i] == nil || y[i] == nil || !finite(*x[i]) || !finite(*y[i]) {
			continue
		}
		xs = append(xs, *x[i])
		ys = append(ys, *y[i])
	}
	return xs, ys
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Pearson is the linear correlation of x and y, nil with fewer than two
// points or when either side has zero variance.
func Pearson(x, y []float64) *float64 {
	if len(x) < 2 || len(x) != len(y) {
		return nil
	}
	if constant(x) || constant(y) {
		return nil
	}
	r := stat.Correlation(x, y, nil)
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	return models.F64(r)
}

// Spearman is the Pearson correlation of the average ranks.
func Spearman(x, y []float64) *float64 {
	if len(x) < 2 || len(x) != len(y) {
		return nil
	}
	return Pearson(Rank(x), Rank(y))
}

func constant(xs []float64) bool {
	for _, v := range xs[1:] {
		if v != xs[0] {
			return false
		}
	}
	return true
}

// Rank assigns 1-based ranks, averaging ties.
func Rank(xs []float64) []float64 {
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })

	ranks := make([]float64, len(xs))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

// ZScores standardizes vals with the population standard deviation plus Epsilon.
func ZScores(vals []float64) []float64 {
	out := make([]float64, len(vals))
	if len(vals) == 0 {
		return out
	}
	mean := stat.Mean(vals, nil)
	sd := PopStd(vals) + Epsilon
	for i, v := range vals {
		out[i] = (v - mean) / sd
	}
	return out
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
