package timeseries

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonnyWalker81/healthlytics/internal/models"
)

func f(v float64) *float64 { return &v }

// day returns 2024-01-01 (a Monday) plus offset days.
func day(offset int) *time.Time {
	d := time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC).AddDate(0, 0, offset)
	return &d
}

func users[T any](rows []T, id func(T) int64) map[int64]bool {
	out := make(map[int64]bool)
	for _, r := range rows {
		out[id(r)] = true
	}
	return out
}

func TestMinimumCoverageGate(t *testing.T) {
	var in models.Extract
	for uid, days := range map[int64]int{1: 4, 2: 5} {
		for i := 0; i < days; i++ {
			in.Sleep = append(in.Sleep, models.SleepRow{UserID: uid, Date: day(i), Hours: f(7)})
			in.Macros = append(in.Macros, models.MacroRow{UserID: uid, Date: day(i), Protein: f(10), Fats: f(10), Carbs: f(10)})
			in.Activities = append(in.Activities, models.ActivityRow{UserID: uid, Date: day(i), ActivityType: "run", DurationMinutes: f(20)})
			in.Weights = append(in.Weights, models.WeightRow{UserID: uid, Date: day(i), Weight: f(80)})
		}
	}
	// Extra rows on more days without a measurement do not count toward coverage.
	in.Weights = append(in.Weights, models.WeightRow{UserID: 1, Date: day(10)})

	out := Aggregate(in)
	bucketUser := func(b models.Bucket) int64 { return b.UserID }

	sleep := []map[int64]bool{
		users(out.Sleep.Daily, func(r models.SleepAggregate) int64 { return bucketUser(r.Bucket) }),
		users(out.Sleep.Weekly, func(r models.SleepAggregate) int64 { return bucketUser(r.Bucket) }),
		users(out.Sleep.Monthly, func(r models.SleepAggregate) int64 { return bucketUser(r.Bucket) }),
	}
	macros := []map[int64]bool{
		users(out.Macros.Daily, func(r models.MacroAggregate) int64 { return bucketUser(r.Bucket) }),
		users(out.Macros.Weekly, func(r models.MacroAggregate) int64 { return bucketUser(r.Bucket) }),
		users(out.Macros.Monthly, func(r models.MacroAggregate) int64 { return bucketUser(r.Bucket) }),
	}
	exercise := []map[int64]bool{
		users(out.Exercise.Daily, func(r models.ActivityAggregate) int64 { return bucketUser(r.Bucket) }),
		users(out.Exercise.Weekly, func(r models.ActivityAggregate) int64 { return bucketUser(r.Bucket) }),
		users(out.Exercise.Monthly, func(r models.ActivityAggregate) int64 { return bucketUser(r.Bucket) }),
	}
	weight := []map[int64]bool{
		users(out.Weight.Daily, func(r models.WeightDaily) int64 { return r.UserID }),
		users(out.Weight.Weekly, func(r models.WeightAggregate) int64 { return bucketUser(r.Bucket) }),
		users(out.Weight.Monthly, func(r models.WeightAggregate) int64 { return bucketUser(r.Bucket) }),
	}

	for name, tables := range map[string][]map[int64]bool{
		"sleep": sleep, "macros": macros, "exercise": exercise, "weight": weight,
	} {
		for i, got := range tables {
			assert.False(t, got[1], "%s table %d kept a user with 4 days", name, i)
			assert.True(t, got[2], "%s table %d dropped a user with 5 days", name, i)
		}
	}
}

func TestAggregate_AbsentDomainsAreNil(t *testing.T) {
	out := Aggregate(models.Extract{})
	assert.Nil(t, out.Sleep)
	assert.Nil(t, out.Macros)
	assert.Nil(t, out.Exercise)
	assert.Nil(t, out.Weight)
}

func TestActivities_SixHalfHourSessions(t *testing.T) {
	var rows []models.ActivityRow
	for i := 0; i < 6; i++ {
		rows = append(rows, models.ActivityRow{UserID: 7, Date: day(i), ActivityType: "walk", DurationMinutes: f(30)})
	}

	out := Activities(rows)
	require.Len(t, out.Daily, 6)
	for _, d := range out.Daily {
		assert.Equal(t, int64(7), d.UserID)
		assert.Equal(t, 1.0, d.Sessions)
		require.NotNil(t, d.AvgIntensity)
		assert.InDelta(t, 1.0, *d.AvgIntensity, 1e-12)
	}

	require.Len(t, out.Weekly, 1)
	assert.Equal(t, 180.0, out.Weekly[0].TotalMinutes)
	assert.Equal(t, 6.0, out.Weekly[0].Sessions)
	assert.Equal(t, time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC), out.Weekly[0].PeriodEnd)

	require.Len(t, out.Monthly, 1)
	assert.Equal(t, 180.0, out.Monthly[0].TotalMinutes)
}

func TestActivities_IntensityIsClamped(t *testing.T) {
	var rows []models.ActivityRow
	for i := 0; i < 5; i++ {
		rows = append(rows, models.ActivityRow{UserID: 1, Date: day(i), ActivityType: "ride", DurationMinutes: f(600)})
	}
	out := Activities(rows)
	for _, d := range out.Daily {
		assert.Equal(t, 10.0, *d.AvgIntensity)
	}
}

func TestMacros_CaloriesAndRatios(t *testing.T) {
	var rows []models.MacroRow
	for i := 0; i < 5; i++ {
		rows = append(rows, models.MacroRow{UserID: 3, Date: day(i), Protein: f(50), Fats: f(20), Carbs: f(100)})
	}

	out := Macros(rows, nil)
	require.Len(t, out.Daily, 5)
	assert.False(t, out.HasTargets)
	for _, d := range out.Daily {
		assert.Equal(t, 780.0, *d.Calories)
		assert.InDelta(t, 0.294, *d.ProteinRatio, 1e-3)
		assert.InDelta(t, 50.0/170.0, *d.ProteinRatio, 1e-12)
		assert.Nil(t, d.ProteinPctGoal)
	}
	require.Len(t, out.Weekly, 1)
	assert.Equal(t, 780.0, *out.Weekly[0].Calories)
}

func TestMacros_ZeroDenominatorsAreNull(t *testing.T) {
	var rows []models.MacroRow
	for i := 0; i < 5; i++ {
		rows = append(rows, models.MacroRow{UserID: 4, Date: day(i), Protein: f(0), Fats: f(0), Carbs: f(0), Calories: f(0)})
	}
	targets := []models.MacroTargetRow{{UserID: 4, ProteinTarget: f(0), FatsTarget: nil, CarbsTarget: f(0)}}

	out := Macros(rows, targets)
	require.True(t, out.HasTargets)
	require.Len(t, out.Daily, 5)
	for _, d := range out.Daily {
		assert.Nil(t, d.ProteinRatio)
		assert.Nil(t, d.FatsRatio)
		assert.Nil(t, d.CarbsRatio)
		assert.Nil(t, d.ProteinPctGoal)
		assert.Nil(t, d.FatsPctGoal)
		assert.Nil(t, d.CarbsPctGoal)
	}
	for _, w := range out.Weekly {
		assert.Nil(t, w.ProteinRatio)
		assert.Nil(t, w.ProteinPctGoal)
	}
}

func TestMacros_PctGoal(t *testing.T) {
	var rows []models.MacroRow
	for i := 0; i < 5; i++ {
		rows = append(rows,
			models.MacroRow{UserID: 5, Date: day(i), Protein: f(30), Fats: f(10), Carbs: f(50), Calories: f(400)},
			models.MacroRow{UserID: 5, Date: day(i), Protein: f(30), Fats: f(10), Carbs: f(50), Calories: f(400)},
		)
	}
	targets := []models.MacroTargetRow{{UserID: 5, ProteinTarget: f(120), FatsTarget: f(40), CarbsTarget: f(200)}}

	out := Macros(rows, targets)
	d := out.Daily[0]
	assert.Equal(t, 800.0, *d.Calories)
	assert.Equal(t, 50.0, *d.ProteinPctGoal)
	assert.Equal(t, 50.0, *d.FatsPctGoal)
	assert.Equal(t, 50.0, *d.CarbsPctGoal)
}

func TestSleep_HoursFromDurationAndContiguousWeeks(t *testing.T) {
	rows := []models.SleepRow{
		{UserID: 9, Date: day(0), DurationMinutes: f(420)},
		{UserID: 9, Date: day(0), Hours: f(8)},
		{UserID: 9, Date: day(1), Hours: f(6)},
		{UserID: 9, Date: day(2), Hours: f(6)},
		{UserID: 9, Date: day(15), Hours: f(9)},
		{UserID: 9, Date: day(16), Hours: f(5)},
		{UserID: 9, Date: nil, Hours: f(1)},
	}

	out := Sleep(rows)
	require.Len(t, out.Daily, 5)
	first := out.Daily[0]
	assert.Equal(t, 7.5, *first.AvgHours)
	assert.Equal(t, 7.0, *first.MinHours)
	assert.Equal(t, 8.0, *first.MaxHours)
	assert.InDelta(t, 0.7071, *first.StdHours, 1e-4)
	assert.Nil(t, out.Daily[1].StdHours)

	// Weeks of Jan 1, Jan 8 (empty) and Jan 15.
	require.Len(t, out.Weekly, 3)
	assert.Nil(t, out.Weekly[1].AvgHours)
	assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), out.Weekly[1].PeriodStart)
	assert.Equal(t, 7.0, *out.Weekly[2].AvgHours)

	require.Len(t, out.Monthly, 1)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), out.Monthly[0].PeriodEnd)
}

func TestWeights_TrailingStatistics(t *testing.T) {
	var rows []models.WeightRow
	for i := 7; i >= 0; i-- {
		rows = append(rows, models.WeightRow{UserID: 2, Date: day(i), Weight: f(70 + float64(i))})
	}

	out := Weights(rows)
	require.Len(t, out.Daily, 8)
	assert.Equal(t, 70.0, *out.Daily[0].Weight)
	assert.Equal(t, 70.0, *out.Daily[0].WMA7)
	assert.Nil(t, out.Daily[0].WRollStd7)
	assert.Nil(t, out.Daily[6].W7dChange)
	assert.Equal(t, 73.0, *out.Daily[6].WMA7)
	assert.Equal(t, 7.0, *out.Daily[7].W7dChange)
	assert.NotNil(t, out.Daily[1].WRollStd7)

	require.Len(t, out.Weekly, 2)
	assert.InDelta(t, 73.0, *out.Weekly[0].Weight, 1e-12)
	assert.Equal(t, 77.0, *out.Weekly[1].Weight)
}
