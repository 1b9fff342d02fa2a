// Package insights derives trend, pattern, clustering and weight-impact
// signals from the feature table and turns per-user summaries into prose.
package insights

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/JonnyWalker81/healthlytics/internal/models"
	"github.com/JonnyWalker81/healthlytics/internal/stats"
)

const (
	// TrendWindow is the number of points in each rolling regression.
	TrendWindow = 14
	// SharpDeviationZ is the |z| above which a point is a sharp deviation.
	SharpDeviationZ = 2.0
)

// TrendMetrics are the columns DetectTrends considers, when present.
var TrendMetrics = []string{models.ColWeight, models.ColCalories, models.ColTotalMinutes}

// RollingRegression returns the least-squares slope of each trailing window
// of window points, aligned to the window's last point. Indices before the
// window fills, and windows containing a missing value, are nil.
func RollingRegression(series []*float64, window int) []*float64 {
	out := make([]*float64, len(series))
	if window < 2 {
		return out
	}
	xMean := float64(window-1) / 2
	sxx := 0.0
	for i := 0; i < window; i++ {
		d := float64(i) - xMean
		sxx += d * d
	}
	for end := window - 1; end < len(series); end++ {
		w := series[end-window+1 : end+1]
		if stats.Count(w) != window {
			continue
		}
		yMean := 0.0
		for _, y := range w {
			yMean += *y
		}
		yMean /= float64(window)
		sxy := 0.0
		for i, y := range w {
			sxy += (float64(i) - xMean) * (*y - yMean)
		}
		out[end] = models.F64(sxy / sxx)
	}
	return out
}

// DetectTrends emits, per user and metric, the rolling slope and a sharp
// deviation flag for every date. z-scores use the user's population
// standard deviation.
func DetectTrends(t models.FeatureTable) []models.TrendPoint {
	metrics := t.Present(TrendMetrics...)
	if len(metrics) == 0 {
		return nil
	}
	byUser := t.ByUser()
	var out []models.TrendPoint
	for _, uid := range t.UserIDs() {
		rows := byUser[uid]
		for _, metric := range metrics {
			series := make([]*float64, len(rows))
			for i := range rows {
				series[i] = rows[i].Value(metric)
			}
			slopes := RollingRegression(series, TrendWindow)

			vals := stats.Present(series)
			mean, sd := 0.0, 0.0
			if len(vals) > 0 {
				mean = stat.Mean(vals, nil)
				sd = stats.PopStd(vals)
			}
			for i := range rows {
				sharp := false
				if series[i] != nil {
					z := (*series[i] - mean) / (sd + stats.Epsilon)
					sharp = math.Abs(z) > SharpDeviationZ
				}
				out = append(out, models.TrendPoint{
					UserID:   uid,
					Date:     rows[i].Date,
					Metric:   metric,
					Slope14:  slopes[i],
					SharpDev: sharp,
				})
			}
		}
	}
	return out
}

// FindRecurringSequences flags days where the previous night's sleep was
// under six hours and the day's intensity stayed under three. Missing sleep
// counts as eight hours and missing intensity as zero. Both columns must
// have been emitted.
func FindRecurringSequences(t models.FeatureTable) []models.PatternDay {
	if !t.Has(models.ColSleepLag1) || !t.Has(models.ColAvgIntensity) {
		return nil
	}
	out := make([]models.PatternDay, len(t.Rows))
	for i := range t.Rows {
		r := &t.Rows[i]
		poorSleep := models.Float(r.SleepLag1, 8) < 6
		lowIntensity := models.Float(r.AvgIntensity, 0) < 3
		out[i] = models.PatternDay{UserID: r.UserID, Date: r.Date, Pattern: poorSleep && lowIntensity}
	}
	return out
}
