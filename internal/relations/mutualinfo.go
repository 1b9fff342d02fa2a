package relations

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mathext"

	"github.com/JonnyWalker81/healthlytics/internal/models"
	"github.com/JonnyWalker81/healthlytics/internal/stats"
)

const (
	// MinMutualInfoRows is the number of jointly finite rows a pair needs.
	MinMutualInfoRows = 10
	// neighbors is k in the Kraskov-Stögbauer-Grassberger estimator.
	neighbors = 3
)

// MutualInformation estimates mutual information between every pair of
// numeric columns with the KSG k-nearest-neighbour estimator. The diagonal is
// zero and cells with fewer than MinMutualInfoRows complete rows are nil.
func MutualInformation(t models.FeatureTable) models.Matrix {
	cols := NumericColumns(t)
	m := squareMatrix(cols)
	series := make([][]*float64, len(cols))
	for i, c := range cols {
		series[i] = t.Column(c)
	}
	for i := range cols {
		m.Values[i][i] = models.F64(0)
		for j := i + 1; j < len(cols); j++ {
			x, y := stats.Complete(series[i], series[j])
			var v *float64
			if len(x) >= MinMutualInfoRows {
				v = models.F64(ksg(x, y))
			}
			m.Values[i][j], m.Values[j][i] = v, v
		}
	}
	return m
}

// ksg is estimator 1 of Kraskov et al. with the Chebyshev norm. Inputs are
// scaled to unit variance and perturbed by a seeded, negligible noise so that
// ties do not collapse neighbour radii.
func ksg(x, y []float64) float64 {
	n := len(x)
	rng := rand.New(rand.NewPCG(0, 0))
	xs, ys := prepare(x, rng), prepare(y, rng)

	var sumX, sumY float64
	dist := make([]float64, 0, n-1)
	for i := 0; i < n; i++ {
		dist = dist[:0]
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			dist = append(dist, math.Max(math.Abs(xs[i]-xs[j]), math.Abs(ys[i]-ys[j])))
		}
		radius := kthSmallest(dist, neighbors)
		var nx, ny int
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			if math.Abs(xs[i]-xs[j]) < radius {
				nx++
			}
			if math.Abs(ys[i]-ys[j]) < radius {
				ny++
			}
		}
		sumX += mathext.Digamma(float64(nx + 1))
		sumY += mathext.Digamma(float64(ny + 1))
	}
	mi := mathext.Digamma(float64(n)) + mathext.Digamma(neighbors) - sumX/float64(n) - sumY/float64(n)
	return math.Max(mi, 0)
}

func prepare(v []float64, rng *rand.Rand) []float64 {
	out := make([]float64, len(v))
	sd := stats.PopStd(v)
	if sd == 0 || math.IsNaN(sd) {
		sd = 1
	}
	for i := range v {
		out[i] = v[i] / sd
	}
	absMean := 0.0
	for _, a := range out {
		absMean += math.Abs(a)
	}
	absMean /= float64(len(out))
	amp := 1e-10 * math.Max(1, absMean)
	for i := range out {
		out[i] += amp * rng.NormFloat64()
	}
	return out
}

// kthSmallest returns the k-th smallest value (1-based) of d, reordering d.
func kthSmallest(d []float64, k int) float64 {
	if k > len(d) {
		k = len(d)
	}
	for i := 0; i < k; i++ {
		lo := i
		for j := i + 1; j < len(d); j++ {
			if d[j] < d[lo] {
				lo = j
			}
		}
		d[i], d[lo] = d[lo], d[i]
	}
	return d[k-1]
}
