package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonnyWalker81/healthlytics/internal/models"
)

func f(v float64) *float64 { return &v }

func day(offset int) time.Time {
	return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func bucket(uid int64, offset int) models.Bucket {
	return models.Bucket{UserID: uid, PeriodStart: day(offset), PeriodEnd: day(offset)}
}

func TestMerge_NoInputs(t *testing.T) {
	table := Merge([]models.ProfileRow{{UserID: 1, Height: "180"}}, nil, nil, nil)
	assert.True(t, table.Empty())
	assert.Empty(t, table.Columns)
}

func TestHeightMeters(t *testing.T) {
	tests := []struct {
		raw  string
		want *float64
	}{
		{raw: "180", want: f(1.8)},
		{raw: "1.8", want: f(1.8)},
		{raw: " 165.5 ", want: f(1.655)},
		{raw: "5'11", want: nil},
		{raw: "", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := HeightMeters(tt.raw)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-12)
		})
	}
}

func TestMerge_BMIFromEitherHeightUnit(t *testing.T) {
	for _, height := range []string{"180", "1.8"} {
		t.Run(height, func(t *testing.T) {
			var weights []models.WeightDaily
			for i := 0; i < 5; i++ {
				weights = append(weights, models.WeightDaily{UserID: 1, Date: day(i), Weight: f(72), WMA7: f(72)})
			}
			table := Merge([]models.ProfileRow{{UserID: 1, Height: height}}, nil, nil, weights)

			require.Len(t, table.Rows, 5)
			assert.True(t, table.Has(models.ColBMI))
			for _, r := range table.Rows {
				assert.InDelta(t, 1.8, *r.HeightM, 1e-12)
				assert.InDelta(t, 22.22, *r.BMI, 0.005)
			}
		})
	}
}

func TestMerge_OuterJoinAndDerivedColumns(t *testing.T) {
	var macros []models.MacroAggregate
	var acts []models.ActivityAggregate
	for i := 0; i < 6; i++ {
		macros = append(macros, models.MacroAggregate{Bucket: bucket(1, i), Calories: f(2000 + 100*float64(i)), Protein: f(100), Fats: f(50), Carbs: f(200)})
	}
	// Activity on days 4..7 extends the date range past the macro rows.
	for i := 4; i < 8; i++ {
		acts = append(acts, models.ActivityAggregate{Bucket: bucket(1, i), Sessions: 1, TotalMinutes: 60, AvgIntensity: f(2)})
	}

	table := Merge(nil, macros, acts, nil)
	require.Len(t, table.Rows, 8)
	assert.Equal(t, []string{
		"calories", "protein", "fats", "carbs", "total_minutes", "avg_intensity",
		"calories_out_est", "energy_balance", "sleep_lag1",
		"calories_lag1", "total_minutes_lag1",
		"calories_ma7", "calories_std7", "total_minutes_ma7", "total_minutes_std7",
	}, table.Columns)

	first := table.Rows[0]
	assert.Nil(t, first.TotalMinutes)
	assert.Equal(t, 0.0, *first.CaloriesOutEst)
	assert.Equal(t, 2000.0, *first.EnergyBalance)
	assert.Nil(t, first.CaloriesLag1)
	assert.Nil(t, first.CaloriesStd7)
	assert.Equal(t, 2000.0, *first.CaloriesMA7)

	overlap := table.Rows[4]
	assert.Equal(t, 300.0, *overlap.CaloriesOutEst)
	assert.Equal(t, 2100.0, *overlap.EnergyBalance)
	assert.Equal(t, 2300.0, *overlap.CaloriesLag1)

	last := table.Rows[7]
	assert.Nil(t, last.Calories)
	assert.Equal(t, -300.0, *last.EnergyBalance)
	assert.Equal(t, 60.0, *last.TotalMinutesLag1)
	assert.Equal(t, 2300.0, *last.CaloriesMA7, "mean over the calories present in the trailing window")

	for _, r := range table.Rows {
		assert.Nil(t, r.SleepLag1)
		assert.Nil(t, r.WeightLag1)
	}
}

func TestMerge_JointGateAndWeightDuplicates(t *testing.T) {
	var weights []models.WeightDaily
	for i := 0; i < 3; i++ {
		weights = append(weights,
			models.WeightDaily{UserID: 2, Date: day(i), Weight: f(80), WMA7: f(80)},
			models.WeightDaily{UserID: 2, Date: day(i), Weight: f(82), WMA7: f(81)},
		)
	}
	var acts []models.ActivityAggregate
	for i := 3; i < 5; i++ {
		acts = append(acts, models.ActivityAggregate{Bucket: bucket(2, i), Sessions: 1, TotalMinutes: 30, AvgIntensity: f(1)})
	}
	// User 3 has only four days across all sources.
	for i := 0; i < 4; i++ {
		acts = append(acts, models.ActivityAggregate{Bucket: bucket(3, i), Sessions: 1, TotalMinutes: 30, AvgIntensity: f(1)})
	}

	table := Merge(nil, nil, acts, weights)
	assert.Equal(t, []int64{2}, table.UserIDs())
	require.Len(t, table.Rows, 5)
	assert.Equal(t, 81.0, *table.Rows[0].Weight)
	assert.Equal(t, 80.5, *table.Rows[0].WMA7)
	assert.Equal(t, 81.0, *table.Rows[1].WeightLag1)
}
