// Package features joins the per-domain daily aggregates into one wide
// per-user, per-day table with derived columns.
package features

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JonnyWalker81/healthlytics/internal/models"
	"github.com/JonnyWalker81/healthlytics/internal/stats"
	"github.com/JonnyWalker81/healthlytics/internal/timeseries"
)

// CaloriesPerMinute is the flat burn rate used for calories_out_est.
const CaloriesPerMinute = 5.0

type key struct {
	userID int64
	day    time.Time
}

// Merge outer-joins the supplied daily tables on (user, date). Empty inputs
// are skipped; with no inputs at all the result is an empty table.
func Merge(profiles []models.ProfileRow, macros []models.MacroAggregate, activities []models.ActivityAggregate, weights []models.WeightDaily) models.FeatureTable {
	if len(macros) == 0 && len(activities) == 0 && len(weights) == 0 {
		return models.FeatureTable{}
	}

	rows := make(map[key]*models.FeatureRow)
	get := func(uid int64, d time.Time) *models.FeatureRow {
		k := key{uid, models.Day(d)}
		if r, ok := rows[k]; ok {
			return r
		}
		r := &models.FeatureRow{UserID: uid, Date: k.day}
		rows[k] = r
		return r
	}

	var cols []string
	if len(macros) > 0 {
		cols = append(cols, models.ColCalories, models.ColProtein, models.ColFats, models.ColCarbs)
		for _, m := range macros {
			r := get(m.UserID, m.PeriodStart)
			r.Calories, r.Protein, r.Fats, r.Carbs = m.Calories, m.Protein, m.Fats, m.Carbs
		}
	}
	if len(activities) > 0 {
		cols = append(cols, models.ColTotalMinutes, models.ColAvgIntensity)
		for _, a := range activities {
			r := get(a.UserID, a.PeriodStart)
			r.TotalMinutes = models.F64(a.TotalMinutes)
			r.AvgIntensity = a.AvgIntensity
		}
	}
	if len(weights) > 0 {
		cols = append(cols, models.ColWeight, models.ColWMA7)
		for k, w := range collapseWeights(weights) {
			r := get(k.userID, k.day)
			r.Weight, r.WMA7 = w.weight, w.ma7
		}
	}

	table := models.FeatureTable{Rows: make([]models.FeatureRow, 0, len(rows))}
	for _, r := range rows {
		table.Rows = append(table.Rows, *r)
	}
	sort.Slice(table.Rows, func(i, j int) bool {
		a, b := table.Rows[i], table.Rows[j]
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		return a.Date.Before(b.Date)
	})
	table.Columns = cols
	table.Rows = gateJointly(table)

	if len(profiles) > 0 {
		table.Columns = append(table.Columns, models.ColHeightM, models.ColBMI)
		heights := make(map[int64]*float64)
		for _, p := range profiles {
			if _, seen := heights[p.UserID]; !seen {
				heights[p.UserID] = HeightMeters(p.Height)
			}
		}
		for i := range table.Rows {
			r := &table.Rows[i]
			r.HeightM = heights[r.UserID]
			r.BMI = BMI(r.Weight, r.HeightM)
		}
	}

	table.Columns = append(table.Columns, models.ColCaloriesOutEst, models.ColEnergyBalance, models.ColSleepLag1)
	for i := range table.Rows {
		r := &table.Rows[i]
		out := models.Float(r.TotalMinutes, 0) * CaloriesPerMinute
		r.CaloriesOutEst = models.F64(out)
		r.EnergyBalance = models.F64(models.Float(r.Calories, 0) - out)
		r.SleepLag1 = nil
	}

	lagged := map[string]string{
		models.ColCalories:     models.ColCaloriesLag1,
		models.ColTotalMinutes: models.ColTotalMinutesLag1,
		models.ColWeight:       models.ColWeightLag1,
	}
	for _, c := range table.Present(models.ColCalories, models.ColTotalMinutes, models.ColWeight) {
		perUser(table.Rows, c, lagged[c], stats.Shift)
		table.Columns = append(table.Columns, lagged[c])
	}

	moving := map[string][2]string{
		models.ColCalories:     {models.ColCaloriesMA7, models.ColCaloriesStd7},
		models.ColTotalMinutes: {models.ColTotalMinutesMA7, models.ColTotalMinutesStd7},
	}
	for _, c := range table.Present(models.ColCalories, models.ColTotalMinutes) {
		perUser(table.Rows, c, moving[c][0], func(xs []*float64) []*float64 { return stats.RollingMean(xs, 7, 1) })
		perUser(table.Rows, c, moving[c][1], func(xs []*float64) []*float64 { return stats.RollingStd(xs, 7, 2) })
		table.Columns = append(table.Columns, moving[c][0], moving[c][1])
	}
	return table
}

type weightDay struct {
	weight, ma7 *float64
}

// collapseWeights averages multiple measurements recorded on the same day.
func collapseWeights(weights []models.WeightDaily) map[key]weightDay {
	w := make(map[key][]*float64)
	ma := make(map[key][]*float64)
	for _, r := range weights {
		k := key{r.UserID, models.Day(r.Date)}
		w[k] = append(w[k], r.Weight)
		ma[k] = append(ma[k], r.WMA7)
	}
	out := make(map[key]weightDay, len(w))
	for k := range w {
		out[k] = weightDay{weight: stats.Mean(w[k]), ma7: stats.Mean(ma[k])}
	}
	return out
}

// gateJointly keeps users with at least timeseries.MinDays distinct days on
// which any of calories, total_minutes or weight is present.
func gateJointly(t models.FeatureTable) []models.FeatureRow {
	value := t.Present(models.ColCalories, models.ColTotalMinutes, models.ColWeight)
	days := make(map[int64]int)
	for i := range t.Rows {
		r := &t.Rows[i]
		for _, c := range value {
			if r.Value(c) != nil {
				days[r.UserID]++
				break
			}
		}
	}
	out := make([]models.FeatureRow, 0, len(t.Rows))
	for _, r := range t.Rows {
		if days[r.UserID] >= timeseries.MinDays {
			out = append(out, r)
		}
	}
	return out
}

// perUser applies fn to src within each user's date-ordered run of rows and
// stores the result in dst.
func perUser(rows []models.FeatureRow, src, dst string, fn func([]*float64) []*float64) {
	for i := 0; i < len(rows); {
		j := i
		for j < len(rows) && rows[j].UserID == rows[i].UserID {
			j++
		}
		series := make([]*float64, 0, j-i)
		for k := i; k < j; k++ {
			series = append(series, rows[k].Value(src))
		}
		for k, v := range fn(series) {
			rows[i+k].Set(dst, v)
		}
		i = j
	}
}

// HeightMeters parses a free-form height. Values above 3 are taken as
// centimeters, anything else as meters. Unparseable input yields nil.
func HeightMeters(raw string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil
	}
	if v > 3 {
		v /= 100
	}
	return models.F64(v)
}

// BMI is weight/height², nil unless both are known and height is positive.
func BMI(weight, heightM *float64) *float64 {
	if weight == nil || heightM == nil || *heightM <= 0 {
		return nil
	}
	return models.F64(*weight / (*heightM * *heightM))
}
