package relations

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/JonnyWalker81/healthlytics/internal/models"
	"github.com/JonnyWalker81/healthlytics/internal/stats"
)

const (
	icaMaxIter = 200
	icaTol     = 1e-4
	whitenTol  = 1e-10
)

// PCAICA standardizes the complete-row numeric matrix and projects it onto
// its first min(k, features, rows) principal and independent components.
func PCAICA(t models.FeatureTable, k int) models.Decomposition {
	cols := NumericColumns(t)
	keys, x := complete(t, cols)
	out := models.Decomposition{Features: cols}
	if len(keys) == 0 || len(cols) == 0 || k <= 0 {
		return out
	}
	z := stats.StandardizeColumns(x)

	n := min(k, len(cols), len(keys))
	out.PCA, out.ExplainedVarianceRatio = pca(z, keys, n)
	out.ICA = fastICA(z, keys, n)
	return out
}

// pca projects the centered matrix onto its leading right singular vectors.
// Signs follow the largest-magnitude entry of each left singular vector.
func pca(z *mat.Dense, keys []models.RowKey, k int) (models.Projection, []float64) {
	r, c := z.Dims()
	xc := center(z)
	if r < k {
		k = r
	}

	var svd mat.SVD
	if !svd.Factorize(xc, mat.SVDThin) {
		return models.Projection{}, nil
	}
	s := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	total := 0.0
	for _, sv := range s {
		total += sv * sv
	}
	ratios := make([]float64, k)
	for i := 0; i < k; i++ {
		if total > 0 {
			ratios[i] = s[i] * s[i] / total
		}
	}

	scores := make([][]float64, r)
	for i := range scores {
		scores[i] = make([]float64, k)
	}
	for j := 0; j < k; j++ {
		sign := 1.0
		best := 0.0
		for i := 0; i < r; i++ {
			if a := u.At(i, j); math.Abs(a) > math.Abs(best) {
				best = a
			}
		}
		if best < 0 {
			sign = -1
		}
		for i := 0; i < r; i++ {
			score := 0.0
			for f := 0; f < c; f++ {
				score += xc.At(i, f) * v.At(f, j)
			}
			scores[i][j] = sign * score
		}
	}
	return models.Projection{Rows: keys, Scores: scores}, ratios
}

// fastICA runs parallel FastICA with the logcosh contrast on whitened data
// and rescales each recovered source to unit variance.
func fastICA(z *mat.Dense, keys []models.RowKey, k int) models.Projection {
	r, c := z.Dims()
	if r < 2 {
		return models.Projection{}
	}
	xc := center(z)

	// Whitening from the eigen-decomposition of XᵀX.
	var cov mat.SymDense
	cov.SymOuterK(1, xc.T())
	var es mat.EigenSym
	if !es.Factorize(&cov, true) {
		return models.Projection{}
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	// EigenSym sorts ascending; whitening uses the largest k directions
	// that carry variance.
	k = min(k, whiteningRank(vals))
	if k == 0 {
		return models.Projection{}
	}
	whiten := mat.NewDense(k, c, nil)
	for i := 0; i < k; i++ {
		idx := c - 1 - i
		d := math.Sqrt(math.Max(vals[idx], 1e-12))
		for f := 0; f < c; f++ {
			whiten.Set(i, f, vecs.At(f, idx)/d)
		}
	}
	var x1 mat.Dense
	x1.Mul(whiten, xc.T())
	x1.Scale(math.Sqrt(float64(r)), &x1)

	rng := rand.New(rand.NewPCG(0, 0))
	winit := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			winit.Set(i, j, rng.NormFloat64())
		}
	}
	w := symDecorrelate(winit)

	for iter := 0; iter < icaMaxIter; iter++ {
		var wx mat.Dense
		wx.Mul(w, &x1)
		gx := mat.NewDense(k, r, nil)
		gp := make([]float64, k)
		for i := 0; i < k; i++ {
			for s := 0; s < r; s++ {
				th := math.Tanh(wx.At(i, s))
				gx.Set(i, s, th)
				gp[i] += 1 - th*th
			}
			gp[i] /= float64(r)
		}
		var next mat.Dense
		next.Mul(gx, x1.T())
		next.Scale(1/float64(r), &next)
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				next.Set(i, j, next.At(i, j)-gp[i]*w.At(i, j))
			}
		}
		w1 := symDecorrelate(&next)

		lim := 0.0
		for i := 0; i < k; i++ {
			dot := 0.0
			for j := 0; j < k; j++ {
				dot += w1.At(i, j) * w.At(i, j)
			}
			lim = math.Max(lim, math.Abs(math.Abs(dot)-1))
		}
		w = w1
		if lim < icaTol {
			break
		}
	}

	var unmix, sources mat.Dense
	unmix.Mul(w, whiten)
	sources.Mul(xc, unmix.T())

	scores := make([][]float64, r)
	for i := range scores {
		scores[i] = make([]float64, k)
	}
	for j := 0; j < k; j++ {
		col := mat.Col(nil, j, &sources)
		sd := stats.PopStd(col)
		if sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		for i := range col {
			scores[i][j] = col[i] / sd
		}
	}
	return models.Projection{Rows: keys, Scores: scores}
}

// whiteningRank counts eigenvalues above a relative tolerance of the largest.
func whiteningRank(vals []float64) int {
	top := 0.0
	for _, v := range vals {
		top = math.Max(top, v)
	}
	if top <= 0 {
		return 0
	}
	n := 0
	for _, v := range vals {
		if v > top*whitenTol {
			n++
		}
	}
	return n
}

// symDecorrelate returns (W Wᵀ)^(-1/2) W.
func symDecorrelate(w *mat.Dense) *mat.Dense {
	k, _ := w.Dims()
	var wwt mat.SymDense
	wwt.SymOuterK(1, w)
	var es mat.EigenSym
	if !es.Factorize(&wwt, true) {
		return mat.DenseCopyOf(w)
	}
	vals := es.Values(nil)
	var u mat.Dense
	es.VectorsTo(&u)

	scaled := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			scaled.Set(i, j, u.At(i, j)/math.Sqrt(math.Max(vals[j], 1e-300)))
		}
	}
	var inv, out mat.Dense
	inv.Mul(scaled, u.T())
	out.Mul(&inv, w)
	return &out
}

func center(z *mat.Dense) *mat.Dense {
	r, c := z.Dims()
	out := mat.NewDense(r, c, nil)
	for j := 0; j < c; j++ {
		col := mat.Col(nil, j, z)
		mean := 0.0
		for _, v := range col {
			mean += v
		}
		mean /= float64(r)
		for i, v := range col {
			out.Set(i, j, v-mean)
		}
	}
	return out
}

// VIFScores computes the variance-inflation factor of each numeric column by
// regressing it on the others without an intercept, over complete rows.
// Needs at least two columns.
func VIFScores(t models.FeatureTable) []models.VIFScore {
	cols := NumericColumns(t)
	if len(cols) < 2 {
		return nil
	}
	keys, x := complete(t, cols)
	out := make([]models.VIFScore, len(cols))
	for i, c := range cols {
		out[i] = models.VIFScore{Feature: c}
	}
	n := len(keys)
	if n == 0 {
		return out
	}
	for i := range cols {
		y := mat.Col(nil, i, x)
		var others [][]float64
		for j := range cols {
			if j != i {
				others = append(others, mat.Col(nil, j, x))
			}
		}
		design := stats.Columns(n, others...)
		beta, ok := stats.LeastSquares(design, y)
		if !ok {
			continue
		}
		var ssr, tss float64
		for s, e := range stats.Residuals(design, y, beta) {
			ssr += e * e
			tss += y[s] * y[s]
		}
		if ssr == 0 {
			continue
		}
		out[i].VIF = models.F64(tss / ssr)
	}
	return out
}
