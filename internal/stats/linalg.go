package stats

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// rcond is the relative singular-value cutoff used for rank decisions.
func rcond(r, c int) float64 {
	n := r
	if c > n {
		n = c
	}
	return float64(n) * 2.220446049250313e-16
}

// LeastSquares returns the minimum-norm solution of X·β ≈ y. ok is false
// when X is empty or the factorization fails.
func LeastSquares(x *mat.Dense, y []float64) (beta []float64, ok bool) {
	r, c := x.Dims()
	if r == 0 || c == 0 || len(y) != r {
		return nil, false
	}
	var svd mat.SVD
	if !svd.Factorize(x, mat.SVDThin) {
		return nil, false
	}
	rank := svd.Rank(rcond(r, c))
	if rank == 0 {
		return make([]float64, c), true
	}
	var dst mat.VecDense
	svd.SolveVecTo(&dst, mat.NewVecDense(r, append([]float64(nil), y...)), rank)
	return mat.Col(nil, 0, &dst), true
}

// Residuals returns y - X·β.
func Residuals(x *mat.Dense, y, beta []float64) []float64 {
	r, _ := x.Dims()
	var fitted mat.VecDense
	fitted.MulVec(x, mat.NewVecDense(len(beta), beta))
	out := make([]float64, r)
	for i := range out {
		out[i] = y[i] - fitted.AtVec(i)
	}
	return out
}

// MatrixRank is the numerical rank of x, zero for an empty matrix.
func MatrixRank(x *mat.Dense) int {
	if x == nil || x.IsEmpty() {
		return 0
	}
	r, c := x.Dims()
	var svd mat.SVD
	if !svd.Factorize(x, mat.SVDNone) {
		return 0
	}
	return svd.Rank(rcond(r, c))
}

// WithIntercept prepends a column of ones to the given columns.
func WithIntercept(n int, cols ...[]float64) *mat.Dense {
	x := mat.NewDense(n, len(cols)+1, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
		for j, col := range cols {
			x.Set(i, j+1, col[i])
		}
	}
	return x
}

// Columns builds an n×len(cols) matrix from column slices.
func Columns(n int, cols ...[]float64) *mat.Dense {
	if n == 0 || len(cols) == 0 {
		return &mat.Dense{}
	}
	x := mat.NewDense(n, len(cols), nil)
	for j, col := range cols {
		x.SetCol(j, col)
	}
	return x
}

// StandardizeColumns centers each column and divides by its population
// standard deviation plus Epsilon.
func StandardizeColumns(x *mat.Dense) *mat.Dense {
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	for j := 0; j < c; j++ {
		col := mat.Col(nil, j, x)
		out.SetCol(j, ZScores(col))
	}
	return out
}

// ScaleColumns standardizes like StandardScaler: zero-variance columns are
// centered but not scaled.
func ScaleColumns(x *mat.Dense) *mat.Dense {
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	for j := 0; j < c; j++ {
		col := mat.Col(nil, j, x)
		mean := 0.0
		for _, v := range col {
			mean += v
		}
		mean /= float64(r)
		sd := PopStd(col)
		if sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		for i, v := range col {
			out.Set(i, j, (v-mean)/sd)
		}
	}
	return out
}
