// Package relations computes statistical relationship measures over the
// wide feature table. Every function is pure; insufficient data yields nil
// cells or empty results rather than errors.
package relations

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/JonnyWalker81/healthlytics/internal/models"
	"github.com/JonnyWalker81/healthlytics/internal/stats"
)

// NumericColumns returns the emitted columns that hold at least one value.
// Columns that are null throughout carry no information and would empty
// every complete-case matrix. The user id is a row key and never a column.
func NumericColumns(t models.FeatureTable) []string {
	var cols []string
	for _, c := range t.Columns {
		for i := range t.Rows {
			if t.Rows[i].Value(c) != nil {
				cols = append(cols, c)
				break
			}
		}
	}
	return cols
}

// complete returns the rows where every listed column is present and finite,
// as row keys plus a row-major matrix.
func complete(t models.FeatureTable, cols []string) ([]models.RowKey, *mat.Dense) {
	var keys []models.RowKey
	var data []float64
	for i := range t.Rows {
		r := &t.Rows[i]
		row := make([]float64, 0, len(cols))
		for _, c := range cols {
			v := r.Value(c)
			if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
				break
			}
			row = append(row, *v)
		}
		if len(row) != len(cols) {
			continue
		}
		keys = append(keys, models.RowKey{UserID: r.UserID, Date: r.Date})
		data = append(data, row...)
	}
	if len(keys) == 0 || len(cols) == 0 {
		return keys, &mat.Dense{}
	}
	return keys, mat.NewDense(len(keys), len(cols), data)
}

func squareMatrix(cols []string) models.Matrix {
	m := models.Matrix{Columns: cols, Values: make([][]*float64, len(cols))}
	for i := range m.Values {
		m.Values[i] = make([]*float64, len(cols))
	}
	return m
}

// CorrelationMatrices computes Pearson and Spearman correlations over every
// numeric column pair using pairwise-complete rows.
func CorrelationMatrices(t models.FeatureTable) models.CorrelationMatrices {
	cols := NumericColumns(t)
	out := models.CorrelationMatrices{Pearson: squareMatrix(cols), Spearman: squareMatrix(cols)}
	series := make([][]*float64, len(cols))
	for i, c := range cols {
		series[i] = t.Column(c)
	}
	for i := range cols {
		for j := i; j < len(cols); j++ {
			x, y := stats.Complete(series[i], series[j])
			p, s := stats.Pearson(x, y), stats.Spearman(x, y)
			out.Pearson.Values[i][j], out.Pearson.Values[j][i] = p, p
			out.Spearman.Values[i][j], out.Spearman.Values[j][i] = s, s
		}
	}
	return out
}

// PartialCorrelation correlates the residuals of x and y after regressing
// each on an intercept plus the control columns. Nil when no row is complete.
func PartialCorrelation(t models.FeatureTable, x, y string, controls []string) *float64 {
	cols := append([]string{x, y}, controls...)
	keys, m := complete(t, cols)
	if len(keys) == 0 {
		return nil
	}
	n := len(keys)
	ctrl := make([][]float64, len(controls))
	for j := range controls {
		ctrl[j] = mat.Col(nil, j+2, m)
	}
	design := stats.WithIntercept(n, ctrl...)
	xs, ys := mat.Col(nil, 0, m), mat.Col(nil, 1, m)

	bx, ok := stats.LeastSquares(design, xs)
	if !ok {
		return nil
	}
	by, ok := stats.LeastSquares(design, ys)
	if !ok {
		return nil
	}
	return stats.Pearson(stats.Residuals(design, xs, bx), stats.Residuals(design, ys, by))
}

// MatrixRank is the numerical rank of the complete-row numeric matrix.
func MatrixRank(t models.FeatureTable) int {
	_, m := complete(t, NumericColumns(t))
	return stats.MatrixRank(m)
}

// PairwiseCorrelationOverTime correlates per-calendar-day means of each pair
// of cols. Only rows where all cols are present contribute.
func PairwiseCorrelationOverTime(t models.FeatureTable, cols []string) []models.PairCorrelation {
	keys, m := complete(t, cols)
	if len(cols) < 2 {
		return nil
	}

	sums := make(map[time.Time][]float64)
	counts := make(map[time.Time]int)
	for i, k := range keys {
		d := models.Day(k.Date)
		if sums[d] == nil {
			sums[d] = make([]float64, len(cols))
		}
		for j := range cols {
			sums[d][j] += m.At(i, j)
		}
		counts[d]++
	}
	days := make([]time.Time, 0, len(sums))
	for d := range sums {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	means := make([][]float64, len(cols))
	for j := range cols {
		means[j] = make([]float64, len(days))
		for i, d := range days {
			means[j][i] = sums[d][j] / float64(counts[d])
		}
	}

	var out []models.PairCorrelation
	for a := range cols {
		for b := a + 1; b < len(cols); b++ {
			out = append(out, models.PairCorrelation{VarX: cols[a], VarY: cols[b], Corr: stats.Pearson(means[a], means[b])})
		}
	}
	return out
}

// CrossLag correlates x(t) with y(t+k) per user for k in [-maxLag, maxLag],
// over each user's date-ordered rows where both are present. Negative lags
// mean y leads.
func CrossLag(t models.FeatureTable, x, y string, maxLag int) []models.CrossLagPoint {
	if !t.Has(x) || !t.Has(y) {
		return nil
	}
	var out []models.CrossLagPoint
	byUser := t.ByUser()
	for _, uid := range t.UserIDs() {
		rows := byUser[uid]
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
		var xs, ys []float64
		for i := range rows {
			xv, yv := rows[i].Value(x), rows[i].Value(y)
			if xv == nil || yv == nil {
				continue
			}
			xs = append(xs, *xv)
			ys = append(ys, *yv)
		}
		for k := -maxLag; k <= maxLag; k++ {
			var a, b []float64
			for i := range xs {
				if j := i + k; j >= 0 && j < len(ys) {
					a = append(a, xs[i])
					b = append(b, ys[j])
				}
			}
			out = append(out, models.CrossLagPoint{UserID: uid, Lag: k, Corr: stats.Pearson(a, b)})
		}
	}
	return out
}

// ClusterMultivariatePatterns z-scores each column over the complete rows
// and flags rows where at least two columns exceed nStd in magnitude.
func ClusterMultivariatePatterns(t models.FeatureTable, cols []string, nStd float64) []models.DeviationFlag {
	keys, m := complete(t, cols)
	if len(keys) == 0 {
		return nil
	}
	z := make([][]float64, len(cols))
	for j := range cols {
		z[j] = stats.ZScores(mat.Col(nil, j, m))
	}
	out := make([]models.DeviationFlag, len(keys))
	for i, k := range keys {
		flag := models.DeviationFlag{UserID: k.UserID, Date: k.Date, Z: make([]float64, len(cols))}
		deviating := 0
		for j := range cols {
			flag.Z[j] = z[j][i]
			if math.Abs(z[j][i]) > nStd {
				deviating++
			}
		}
		flag.Flag = deviating >= 2
		out[i] = flag
	}
	return out
}
