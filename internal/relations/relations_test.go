package relations

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonnyWalker81/healthlytics/internal/models"
)

func f(v float64) *float64 { return &v }

func day(offset int) time.Time {
	return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

// table builds a two-user feature table with weakly related columns.
func table(n int) models.FeatureTable {
	t := models.FeatureTable{Columns: []string{
		models.ColCalories, models.ColTotalMinutes, models.ColWeight, models.ColSleepLag1,
	}}
	for _, uid := range []int64{1, 2} {
		for i := 0; i < n; i++ {
			x := float64(i)
			t.Rows = append(t.Rows, models.FeatureRow{
				UserID:       uid,
				Date:         day(i),
				Calories:     f(2000 + 50*math.Sin(x) + 10*float64(uid)),
				TotalMinutes: f(30 + 5*math.Cos(1.7*x) + x),
				Weight:       f(80 - 0.1*x + 0.3*math.Sin(0.5*x)*float64(uid)),
			})
		}
	}
	return t
}

func TestNumericColumns_SkipsAllNull(t *testing.T) {
	cols := NumericColumns(table(5))
	assert.Equal(t, []string{"calories", "total_minutes", "weight"}, cols)
	assert.NotContains(t, cols, "user_id")
}

func TestCorrelationMatrices(t *testing.T) {
	tbl := table(12)
	tbl.Rows[0].Weight = nil
	m := CorrelationMatrices(tbl)

	require.Len(t, m.Pearson.Columns, 3)
	for i := range m.Pearson.Columns {
		assert.InDelta(t, 1.0, *m.Pearson.Values[i][i], 1e-12)
		assert.InDelta(t, 1.0, *m.Spearman.Values[i][i], 1e-12)
		for j := range m.Pearson.Columns {
			require.NotNil(t, m.Pearson.Values[i][j])
			assert.Equal(t, *m.Pearson.Values[i][j], *m.Pearson.Values[j][i])
			assert.LessOrEqual(t, math.Abs(*m.Spearman.Values[i][j]), 1.0)
		}
	}
	assert.Len(t, m.Pearson.UpperTriangle(), 3)
}

func TestMutualInformation(t *testing.T) {
	m := MutualInformation(table(12))
	for i := range m.Columns {
		assert.Equal(t, 0.0, *m.Values[i][i])
		for j := range m.Columns {
			require.NotNil(t, m.Values[i][j])
			assert.GreaterOrEqual(t, *m.Values[i][j], 0.0)
		}
	}

	small := MutualInformation(table(4))
	assert.Nil(t, small.Get(models.ColCalories, models.ColWeight), "eight rows is below the minimum")
	assert.Equal(t, 0.0, *small.Get(models.ColWeight, models.ColWeight))
}

func TestMutualInformation_DependentBeatsIndependent(t *testing.T) {
	tbl := models.FeatureTable{Columns: []string{models.ColCalories, models.ColWeight, models.ColTotalMinutes}}
	for i := 0; i < 60; i++ {
		x := float64(i)
		tbl.Rows = append(tbl.Rows, models.FeatureRow{
			UserID:       1,
			Date:         day(i),
			Calories:     f(x),
			Weight:       f(x * x),
			TotalMinutes: f(math.Mod(x*7919, 61)),
		})
	}
	m := MutualInformation(tbl)
	dependent := *m.Get(models.ColCalories, models.ColWeight)
	independent := *m.Get(models.ColCalories, models.ColTotalMinutes)
	assert.Greater(t, dependent, independent)
	assert.Greater(t, dependent, 1.0)
}

func TestPartialCorrelation(t *testing.T) {
	tbl := models.FeatureTable{Columns: []string{models.ColCalories, models.ColWeight, models.ColTotalMinutes}}
	for i := 0; i < 20; i++ {
		z := float64(i)
		noise := math.Sin(3 * z)
		tbl.Rows = append(tbl.Rows, models.FeatureRow{
			UserID:       1,
			Date:         day(i),
			TotalMinutes: f(z),
			Calories:     f(2*z + noise),
			Weight:       f(-z + noise),
		})
	}
	r := PartialCorrelation(tbl, models.ColCalories, models.ColWeight, []string{models.ColTotalMinutes})
	require.NotNil(t, r)
	assert.InDelta(t, 1.0, *r, 1e-6, "residuals share the same noise")

	assert.Nil(t, PartialCorrelation(models.FeatureTable{}, models.ColCalories, models.ColWeight, nil))
}

func TestPCAICA_ExplainedVariance(t *testing.T) {
	cases := map[string]models.FeatureTable{
		"many rows": table(15),
		"one row": {
			Columns: []string{models.ColCalories, models.ColWeight},
			Rows:    []models.FeatureRow{{UserID: 1, Date: day(0), Calories: f(1800), Weight: f(70)}},
		},
	}
	for name, tbl := range cases {
		t.Run(name, func(t *testing.T) {
			d := PCAICA(tbl, 5)
			require.NotEmpty(t, d.ExplainedVarianceRatio)
			sum := 0.0
			for i, r := range d.ExplainedVarianceRatio {
				sum += r
				if i > 0 {
					assert.LessOrEqual(t, r, d.ExplainedVarianceRatio[i-1]+1e-12)
				}
			}
			assert.LessOrEqual(t, sum, 1.0+1e-9)
		})
	}
}

func TestPCAICA_Shapes(t *testing.T) {
	d := PCAICA(table(15), 5)
	assert.Equal(t, []string{"calories", "total_minutes", "weight"}, d.Features)
	assert.Equal(t, 3, d.PCA.Components())
	assert.Len(t, d.PCA.Rows, 30)
	assert.InDelta(t, 1.0, sumOf(d.ExplainedVarianceRatio), 1e-9)

	require.Equal(t, 3, d.ICA.Components())
	for j := 0; j < 3; j++ {
		var col []float64
		for i := range d.ICA.Scores {
			col = append(col, d.ICA.Scores[i][j])
		}
		assert.InDelta(t, 1.0, variance(col), 1e-6)
	}

	assert.Equal(t, 0, PCAICA(models.FeatureTable{}, 5).PCA.Components())
}

func TestPCAICA_FewerRowsThanComponents(t *testing.T) {
	tbl := models.FeatureTable{Columns: []string{models.ColCalories, models.ColTotalMinutes, models.ColWeight}}
	for i, v := range [][3]float64{{1800, 20, 80}, {2200, 45, 79.5}, {2000, 60, 81.2}} {
		tbl.Rows = append(tbl.Rows, models.FeatureRow{
			UserID: 1, Date: day(i), Calories: f(v[0]), TotalMinutes: f(v[1]), Weight: f(v[2]),
		})
	}

	d := PCAICA(tbl, 5)
	assert.Equal(t, 3, d.PCA.Components())
	// Three centered rows span two directions.
	assert.InDelta(t, 0, d.ExplainedVarianceRatio[2], 1e-9)
	require.Equal(t, 2, d.ICA.Components())
	require.Len(t, d.ICA.Scores, 3)
	for j := 0; j < 2; j++ {
		var col []float64
		for i := range d.ICA.Scores {
			col = append(col, d.ICA.Scores[i][j])
		}
		assert.InDelta(t, 1.0, variance(col), 1e-6)
	}
}

func TestWhiteningRank(t *testing.T) {
	assert.Equal(t, 2, whiteningRank([]float64{1e-15, 0.4, 2.6}))
	assert.Equal(t, 0, whiteningRank([]float64{0, 0}))
	assert.Equal(t, 3, whiteningRank([]float64{0.1, 1, 2}))
}

func sumOf(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s
}

func variance(xs []float64) float64 {
	m := sumOf(xs) / float64(len(xs))
	v := 0.0
	for _, x := range xs {
		v += (x - m) * (x - m)
	}
	return v / float64(len(xs))
}

func TestVIFScores(t *testing.T) {
	scores := VIFScores(table(12))
	require.Len(t, scores, 3)
	for _, s := range scores {
		require.NotNil(t, s.VIF, s.Feature)
		assert.GreaterOrEqual(t, *s.VIF, 1.0)
	}

	one := models.FeatureTable{Columns: []string{models.ColWeight}, Rows: []models.FeatureRow{{Weight: f(1)}}}
	assert.Empty(t, VIFScores(one))
}

func TestCrossLag_SelfCorrelationAtLagZero(t *testing.T) {
	tbl := table(10)
	points := CrossLag(tbl, models.ColCalories, models.ColCalories, 3)
	require.Len(t, points, 2*7)

	for _, p := range points {
		if p.Lag == 0 {
			require.NotNil(t, p.Corr)
			assert.InDelta(t, 1.0, *p.Corr, 1e-9)
		}
	}
}

func TestCrossLag_Direction(t *testing.T) {
	tbl := models.FeatureTable{Columns: []string{models.ColCalories, models.ColWeight}}
	series := []float64{3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 5}
	for i := range series {
		r := models.FeatureRow{UserID: 1, Date: day(i), Calories: f(series[i])}
		if i >= 2 {
			r.Weight = f(series[i-2])
		}
		tbl.Rows = append(tbl.Rows, r)
	}
	// Rows without weight are dropped first, so use a table where both exist.
	tbl.Rows = tbl.Rows[2:]
	points := CrossLag(tbl, models.ColCalories, models.ColWeight, 2)
	byLag := make(map[int]*float64)
	for _, p := range points {
		byLag[p.Lag] = p.Corr
	}
	require.NotNil(t, byLag[2])
	assert.InDelta(t, 1.0, *byLag[2], 1e-9, "weight repeats calories two days later")
}

func TestPairwiseCorrelationOverTime(t *testing.T) {
	out := PairwiseCorrelationOverTime(table(12), []string{models.ColCalories, models.ColTotalMinutes, models.ColWeight})
	require.Len(t, out, 3)
	assert.Equal(t, "calories", out[0].VarX)
	assert.Equal(t, "total_minutes", out[0].VarY)
	for _, p := range out {
		require.NotNil(t, p.Corr)
	}
	assert.Nil(t, PairwiseCorrelationOverTime(table(3), []string{models.ColWeight}))
}

func TestClusterMultivariatePatterns(t *testing.T) {
	tbl := models.FeatureTable{Columns: []string{models.ColCalories, models.ColTotalMinutes, models.ColWeight}}
	for i := 0; i < 9; i++ {
		tbl.Rows = append(tbl.Rows, models.FeatureRow{UserID: 1, Date: day(i), Calories: f(2000), TotalMinutes: f(30), Weight: f(80)})
	}
	tbl.Rows = append(tbl.Rows, models.FeatureRow{UserID: 1, Date: day(9), Calories: f(4000), TotalMinutes: f(120), Weight: f(80)})
	tbl.Rows = append(tbl.Rows, models.FeatureRow{UserID: 1, Date: day(10), Calories: f(2000)})

	flags := ClusterMultivariatePatterns(tbl, []string{models.ColCalories, models.ColTotalMinutes, models.ColWeight}, 1.0)
	require.Len(t, flags, 10)
	for i, fl := range flags {
		assert.Equal(t, i == 9, fl.Flag, "row %d", i)
	}
}

func TestMatrixRank(t *testing.T) {
	tbl := models.FeatureTable{Columns: []string{models.ColCalories, models.ColCaloriesMA7}}
	for i := 0; i < 5; i++ {
		v := float64(i + 1)
		tbl.Rows = append(tbl.Rows, models.FeatureRow{Calories: f(v), CaloriesMA7: f(2 * v)})
	}
	assert.Equal(t, 1, MatrixRank(tbl))
	assert.Equal(t, 0, MatrixRank(models.FeatureTable{}))
}
