package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func p(v float64) *float64 { return &v }

func TestRollingMeanAndStd(t *testing.T) {
	xs := []*float64{p(1), nil, p(3), p(5)}

	mean := RollingMean(xs, 2, 1)
	require.Len(t, mean, 4)
	assert.Equal(t, 1.0, *mean[0])
	assert.Equal(t, 1.0, *mean[1])
	assert.Equal(t, 3.0, *mean[2])
	assert.Equal(t, 4.0, *mean[3])

	std := RollingStd(xs, 3, 2)
	assert.Nil(t, std[0])
	assert.Nil(t, std[1])
	assert.InDelta(t, math.Sqrt2, *std[2], 1e-12)
	assert.InDelta(t, math.Sqrt2, *std[3], 1e-12)
}

func TestDiffAndShift(t *testing.T) {
	xs := []*float64{p(1), p(2), nil, p(7)}
	d := Diff(xs, 2)
	assert.Nil(t, d[0])
	assert.Nil(t, d[1])
	assert.Nil(t, d[2])
	assert.Equal(t, 5.0, *d[3])

	s := Shift(xs)
	assert.Nil(t, s[0])
	assert.Equal(t, 1.0, *s[1])
	assert.Nil(t, s[3])
}

func TestRankAveragesTies(t *testing.T) {
	assert.Equal(t, []float64{1, 2.5, 2.5, 4}, Rank([]float64{10, 20, 20, 30}))
}

func TestPearsonEdges(t *testing.T) {
	assert.Nil(t, Pearson([]float64{1}, []float64{2}))
	assert.Nil(t, Pearson([]float64{1, 1, 1}, []float64{1, 2, 3}))

	r := Pearson([]float64{1, 2, 3}, []float64{2, 4, 6})
	require.NotNil(t, r)
	assert.InDelta(t, 1.0, *r, 1e-12)

	s := Spearman([]float64{1, 2, 3, 4}, []float64{1, 8, 27, 64})
	require.NotNil(t, s)
	assert.InDelta(t, 1.0, *s, 1e-12)
}

func TestMeanSkipsMissing(t *testing.T) {
	assert.Nil(t, Mean([]*float64{nil, nil}))
	assert.Equal(t, 0.0, Sum([]*float64{nil}))
	assert.Equal(t, 2.0, *Mean([]*float64{p(1), nil, p(3)}))
	assert.Nil(t, SampleStd([]*float64{p(1)}))
}

func TestLeastSquaresRecoversLine(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4}
	y := []float64{1, 3, 5, 7, 9}
	beta, ok := LeastSquares(WithIntercept(len(x), x), y)
	require.True(t, ok)
	assert.InDelta(t, 1.0, beta[0], 1e-9)
	assert.InDelta(t, 2.0, beta[1], 1e-9)

	res := Residuals(WithIntercept(len(x), x), y, beta)
	for _, r := range res {
		assert.InDelta(t, 0, r, 1e-9)
	}
}

func TestMatrixRank(t *testing.T) {
	x := mat.NewDense(3, 2, []float64{1, 2, 2, 4, 3, 6})
	assert.Equal(t, 1, MatrixRank(x))
	assert.Equal(t, 0, MatrixRank(&mat.Dense{}))
}
