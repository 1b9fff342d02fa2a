package insights

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/JonnyWalker81/healthlytics/internal/models"
	"github.com/JonnyWalker81/healthlytics/internal/stats"
)

const (
	// DefaultClusters is the benchmarking cluster count.
	DefaultClusters = 5
	kmeansMaxIter   = 300
	kmeansSeed      = 0
)

// ClusterUsers groups users by their standardized per-column means with
// k-means (k-means++ seeding, fixed seed). Users missing a mean for any
// column are left out. k is capped at the number of users.
func ClusterUsers(t models.FeatureTable, cols []string, k int) []models.UserCluster {
	cols = t.Present(cols...)
	if len(cols) == 0 || k <= 0 {
		return nil
	}
	byUser := t.ByUser()
	var out []models.UserCluster
	for _, uid := range t.UserIDs() {
		rows := byUser[uid]
		means := make([]float64, len(cols))
		ok := true
		for j, c := range cols {
			vals := make([]*float64, len(rows))
			for i := range rows {
				vals[i] = rows[i].Value(c)
			}
			m := stats.Mean(vals)
			if m == nil {
				ok = false
				break
			}
			means[j] = *m
		}
		if ok {
			out = append(out, models.UserCluster{UserID: uid, Means: means})
		}
	}
	if len(out) == 0 {
		return nil
	}
	if k > len(out) {
		k = len(out)
	}

	x := mat.NewDense(len(out), len(cols), nil)
	for i, u := range out {
		x.SetRow(i, u.Means)
	}
	labels := kmeans(stats.ScaleColumns(x), k)
	for i := range out {
		out[i].Cluster = labels[i]
	}
	return out
}

// kmeans runs Lloyd's algorithm from a k-means++ initialization and returns
// the cluster index of each row.
func kmeans(x *mat.Dense, k int) []int {
	n, _ := x.Dims()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(nil, i, x)
	}
	rng := rand.New(rand.NewPCG(kmeansSeed, kmeansSeed))
	centers := seedCenters(rows, k, rng)

	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	for iter := 0; iter < kmeansMaxIter; iter++ {
		changed := false
		for i, r := range rows {
			best, bestDist := 0, math.Inf(1)
			for c, center := range centers {
				if d := floats.Distance(r, center, 2); d < bestDist {
					best, bestDist = c, d
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
		for c := range centers {
			sum := make([]float64, len(centers[c]))
			count := 0
			for i, r := range rows {
				if labels[i] == c {
					floats.Add(sum, r)
					count++
				}
			}
			if count > 0 {
				floats.Scale(1/float64(count), sum)
				centers[c] = sum
			}
		}
	}
	return labels
}

// seedCenters picks k starting centers, each new one drawn with probability
// proportional to its squared distance from the nearest chosen center.
func seedCenters(rows [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := [][]float64{append([]float64(nil), rows[rng.IntN(len(rows))]...)}
	d2 := make([]float64, len(rows))
	for len(centers) < k {
		total := 0.0
		for i, r := range rows {
			best := math.Inf(1)
			for _, c := range centers {
				d := floats.Distance(r, c, 2)
				best = math.Min(best, d*d)
			}
			d2[i] = best
			total += best
		}
		pick := 0
		if total > 0 {
			target := rng.Float64() * total
			for i, d := range d2 {
				target -= d
				if target < 0 {
					pick = i
					break
				}
				pick = i
			}
		} else {
			pick = rng.IntN(len(rows))
		}
		centers = append(centers, append([]float64(nil), rows[pick]...))
	}
	return centers
}
