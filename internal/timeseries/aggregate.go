// Package timeseries buckets raw per-domain event rows into daily, weekly
// and monthly per-user aggregates.
package timeseries

import (
	"sort"

	"github.com/JonnyWalker81/healthlytics/internal/models"
	"github.com/JonnyWalker81/healthlytics/internal/stats"
)

// Aggregate builds the per-domain period tables. Domains with no input rows
// are left nil. Rows without a parseable date are ignored.
func Aggregate(in models.Extract) models.Aggregates {
	var out models.Aggregates
	if len(in.Sleep) > 0 {
		out.Sleep = Sleep(in.Sleep)
	}
	if len(in.Macros) > 0 {
		out.Macros = Macros(in.Macros, in.MacroTargets)
	}
	if len(in.Activities) > 0 {
		out.Exercise = Activities(in.Activities)
	}
	if len(in.Weights) > 0 {
		out.Weight = Weights(in.Weights)
	}
	return out
}

// Sleep computes mean, std, min and max of nightly hours per bucket.
// Weekly and monthly statistics come from the raw series, not the daily rows.
func Sleep(rows []models.SleepRow) *models.SleepTables {
	var hours []dated[*float64]
	for _, r := range rows {
		if r.Date == nil {
			continue
		}
		h := r.Hours
		if h == nil && r.DurationMinutes != nil {
			h = models.F64(*r.DurationMinutes / 60)
		}
		hours = append(hours, dated[*float64]{userID: r.UserID, day: models.Day(*r.Date), row: h})
	}
	hours = gate(hours, func(h *float64) bool { return h != nil })

	t := &models.SleepTables{}
	agg := func(b models.Bucket, group []*float64) models.SleepAggregate {
		return models.SleepAggregate{
			Bucket:   b,
			AvgHours: stats.Mean(group),
			StdHours: stats.SampleStd(group),
			MinHours: stats.Min(group),
			MaxHours: stats.Max(group),
		}
	}
	groupByDay(hours, func(b models.Bucket, g []*float64) { t.Daily = append(t.Daily, agg(b, g)) })
	resample(hours, models.PeriodWeekly, func(b models.Bucket, g []*float64) { t.Weekly = append(t.Weekly, agg(b, g)) })
	resample(hours, models.PeriodMonthly, func(b models.Bucket, g []*float64) { t.Monthly = append(t.Monthly, agg(b, g)) })
	return t
}

// Macros sums nutrients per day and derives goal percentages and macro
// ratios. Calories are computed from grams when no row carries them.
func Macros(rows []models.MacroRow, targets []models.MacroTargetRow) *models.MacroTables {
	deriveCalories := true
	for _, r := range rows {
		if r.Calories != nil {
			deriveCalories = false
			break
		}
	}

	var dr []dated[models.MacroRow]
	for _, r := range rows {
		if r.Date == nil {
			continue
		}
		if deriveCalories {
			r.Calories = energyFromGrams(r)
		}
		dr = append(dr, dated[models.MacroRow]{userID: r.UserID, day: models.Day(*r.Date), row: r})
	}
	dr = gate(dr, func(r models.MacroRow) bool {
		return r.Calories != nil || r.Protein != nil || r.Fats != nil || r.Carbs != nil
	})

	goals := make(map[int64]models.MacroTargetRow)
	for _, tg := range targets {
		goals[tg.UserID] = tg
	}

	t := &models.MacroTables{HasTargets: len(targets) > 0}
	var daily []dated[models.MacroAggregate]
	groupByDay(dr, func(b models.Bucket, g []models.MacroRow) {
		var cal, pro, fat, carb []*float64
		for _, r := range g {
			cal = append(cal, r.Calories)
			pro = append(pro, r.Protein)
			fat = append(fat, r.Fats)
			carb = append(carb, r.Carbs)
		}
		a := models.MacroAggregate{
			Bucket:   b,
			Calories: models.F64(stats.Sum(cal)),
			Protein:  models.F64(stats.Sum(pro)),
			Fats:     models.F64(stats.Sum(fat)),
			Carbs:    models.F64(stats.Sum(carb)),
		}
		if t.HasTargets {
			goal, ok := goals[b.UserID]
			if ok {
				a.ProteinPctGoal = pctGoal(a.Protein, goal.ProteinTarget)
				a.FatsPctGoal = pctGoal(a.Fats, goal.FatsTarget)
				a.CarbsPctGoal = pctGoal(a.Carbs, goal.CarbsTarget)
			}
		}
		total := *a.Protein + *a.Fats + *a.Carbs
		a.ProteinRatio = ratio(a.Protein, total)
		a.FatsRatio = ratio(a.Fats, total)
		a.CarbsRatio = ratio(a.Carbs, total)

		t.Daily = append(t.Daily, a)
		daily = append(daily, dated[models.MacroAggregate]{userID: b.UserID, day: b.PeriodStart, row: a})
	})

	mean := func(b models.Bucket, g []models.MacroAggregate) models.MacroAggregate {
		col := func(f func(models.MacroAggregate) *float64) *float64 {
			vals := make([]*float64, len(g))
			for i, r := range g {
				vals[i] = f(r)
			}
			return stats.Mean(vals)
		}
		return models.MacroAggregate{
			Bucket:         b,
			Calories:       col(func(r models.MacroAggregate) *float64 { return r.Calories }),
			Protein:        col(func(r models.MacroAggregate) *float64 { return r.Protein }),
			Fats:           col(func(r models.MacroAggregate) *float64 { return r.Fats }),
			Carbs:          col(func(r models.MacroAggregate) *float64 { return r.Carbs }),
			ProteinPctGoal: col(func(r models.MacroAggregate) *float64 { return r.ProteinPctGoal }),
			FatsPctGoal:    col(func(r models.MacroAggregate) *float64 { return r.FatsPctGoal }),
			CarbsPctGoal:   col(func(r models.MacroAggregate) *float64 { return r.CarbsPctGoal }),
			ProteinRatio:   col(func(r models.MacroAggregate) *float64 { return r.ProteinRatio }),
			FatsRatio:      col(func(r models.MacroAggregate) *float64 { return r.FatsRatio }),
			CarbsRatio:     col(func(r models.MacroAggregate) *float64 { return r.CarbsRatio }),
		}
	}
	resample(daily, models.PeriodWeekly, func(b models.Bucket, g []models.MacroAggregate) { t.Weekly = append(t.Weekly, mean(b, g)) })
	resample(daily, models.PeriodMonthly, func(b models.Bucket, g []models.MacroAggregate) { t.Monthly = append(t.Monthly, mean(b, g)) })
	return t
}

func energyFromGrams(r models.MacroRow) *float64 {
	if r.Protein == nil || r.Fats == nil || r.Carbs == nil {
		return nil
	}
	return models.F64(*r.Protein*4 + *r.Fats*9 + *r.Carbs*4)
}

func pctGoal(v, target *float64) *float64 {
	if v == nil || target == nil || *target == 0 {
		return nil
	}
	return models.F64(100 * *v / *target)
}

func ratio(v *float64, total float64) *float64 {
	if v == nil || total <= 0 {
		return nil
	}
	return models.F64(*v / total)
}

// Activities counts sessions and minutes per day and scores intensity as
// minutes/30 clamped to [0, 10].
func Activities(rows []models.ActivityRow) *models.ActivityTables {
	var dr []dated[models.ActivityRow]
	for _, r := range rows {
		if r.Date == nil {
			continue
		}
		dr = append(dr, dated[models.ActivityRow]{userID: r.UserID, day: models.Day(*r.Date), row: r})
	}
	dr = gate(dr, func(r models.ActivityRow) bool { return r.DurationMinutes != nil || r.ActivityType != "" })

	t := &models.ActivityTables{}
	var daily []dated[models.ActivityAggregate]
	groupByDay(dr, func(b models.Bucket, g []models.ActivityRow) {
		var sessions float64
		minutes := make([]*float64, 0, len(g))
		for _, r := range g {
			if r.ActivityType != "" {
				sessions++
			}
			minutes = append(minutes, r.DurationMinutes)
		}
		total := stats.Sum(minutes)
		a := models.ActivityAggregate{
			Bucket:       b,
			Sessions:     sessions,
			TotalMinutes: total,
			AvgIntensity: models.F64(stats.Clamp(total/30, 0, 10)),
		}
		t.Daily = append(t.Daily, a)
		daily = append(daily, dated[models.ActivityAggregate]{userID: b.UserID, day: b.PeriodStart, row: a})
	})

	roll := func(b models.Bucket, g []models.ActivityAggregate) models.ActivityAggregate {
		a := models.ActivityAggregate{Bucket: b}
		intensity := make([]*float64, 0, len(g))
		for _, r := range g {
			a.Sessions += r.Sessions
			a.TotalMinutes += r.TotalMinutes
			intensity = append(intensity, r.AvgIntensity)
		}
		a.AvgIntensity = stats.Mean(intensity)
		return a
	}
	resample(daily, models.PeriodWeekly, func(b models.Bucket, g []models.ActivityAggregate) { t.Weekly = append(t.Weekly, roll(b, g)) })
	resample(daily, models.PeriodMonthly, func(b models.Bucket, g []models.ActivityAggregate) { t.Monthly = append(t.Monthly, roll(b, g)) })
	return t
}

// Weights keeps every measurement and adds trailing 7-row statistics per
// user in date order.
func Weights(rows []models.WeightRow) *models.WeightTables {
	var dr []dated[models.WeightRow]
	for _, r := range rows {
		if r.Date == nil {
			continue
		}
		dr = append(dr, dated[models.WeightRow]{userID: r.UserID, day: models.Day(*r.Date), row: r})
	}
	dr = gate(dr, func(r models.WeightRow) bool { return r.Weight != nil })
	sort.SliceStable(dr, func(i, j int) bool {
		if dr[i].userID != dr[j].userID {
			return dr[i].userID < dr[j].userID
		}
		return dr[i].day.Before(dr[j].day)
	})

	t := &models.WeightTables{}
	var daily []dated[models.WeightDaily]
	for i := 0; i < len(dr); {
		j := i
		for j < len(dr) && dr[j].userID == dr[i].userID {
			j++
		}
		series := make([]*float64, 0, j-i)
		for _, r := range dr[i:j] {
			series = append(series, r.row.Weight)
		}
		ma := stats.RollingMean(series, 7, 1)
		sd := stats.RollingStd(series, 7, 2)
		change := stats.Diff(series, 7)
		for k, r := range dr[i:j] {
			w := models.WeightDaily{
				UserID:    r.userID,
				Date:      r.day,
				Weight:    r.row.Weight,
				WMA7:      ma[k],
				WRollStd7: sd[k],
				W7dChange: change[k],
			}
			t.Daily = append(t.Daily, w)
			daily = append(daily, dated[models.WeightDaily]{userID: r.userID, day: r.day, row: w})
		}
		i = j
	}

	mean := func(b models.Bucket, g []models.WeightDaily) models.WeightAggregate {
		var w, ma, sd, ch []*float64
		for _, r := range g {
			w = append(w, r.Weight)
			ma = append(ma, r.WMA7)
			sd = append(sd, r.WRollStd7)
			ch = append(ch, r.W7dChange)
		}
		return models.WeightAggregate{
			Bucket:    b,
			Weight:    stats.Mean(w),
			WMA7:      stats.Mean(ma),
			WRollStd7: stats.Mean(sd),
			W7dChange: stats.Mean(ch),
		}
	}
	resample(daily, models.PeriodWeekly, func(b models.Bucket, g []models.WeightDaily) { t.Weekly = append(t.Weekly, mean(b, g)) })
	resample(daily, models.PeriodMonthly, func(b models.Bucket, g []models.WeightDaily) { t.Monthly = append(t.Monthly, mean(b, g)) })
	return t
}
