package artifact

import (
	"time"

	"github.com/JonnyWalker81/healthlytics/internal/models"
)

// Parquet row layouts. Dates are stored as YYYY-MM-DD strings so that the
// files read the same from any consumer regardless of timestamp units.

type sleepRecord struct {
	UserID      int64    `parquet:"user_id"`
	PeriodStart string   `parquet:"period_start"`
	PeriodEnd   string   `parquet:"period_end"`
	AvgHours    *float64 `parquet:"avg_hours,optional"`
	StdHours    *float64 `parquet:"std_hours,optional"`
	MinHours    *float64 `parquet:"min_hours,optional"`
	MaxHours    *float64 `parquet:"max_hours,optional"`
}

type macroRecord struct {
	UserID         int64    `parquet:"user_id"`
	PeriodStart    string   `parquet:"period_start"`
	PeriodEnd      string   `parquet:"period_end"`
	Calories       *float64 `parquet:"calories,optional"`
	Protein        *float64 `parquet:"protein,optional"`
	Fats           *float64 `parquet:"fats,optional"`
	Carbs          *float64 `parquet:"carbs,optional"`
	ProteinPctGoal *float64 `parquet:"protein_pct_goal,optional"`
	FatsPctGoal    *float64 `parquet:"fats_pct_goal,optional"`
	CarbsPctGoal   *float64 `parquet:"carbs_pct_goal,optional"`
	ProteinRatio   *float64 `parquet:"protein_ratio,optional"`
	FatsRatio      *float64 `parquet:"fats_ratio,optional"`
	CarbsRatio     *float64 `parquet:"carbs_ratio,optional"`
}

type activityRecord struct {
	UserID       int64    `parquet:"user_id"`
	PeriodStart  string   `parquet:"period_start"`
	PeriodEnd    string   `parquet:"period_end"`
	Sessions     float64  `parquet:"sessions"`
	TotalMinutes float64  `parquet:"total_minutes"`
	AvgIntensity *float64 `parquet:"avg_intensity,optional"`
}

type weightRecord struct {
	UserID      int64    `parquet:"user_id"`
	PeriodStart string   `parquet:"period_start"`
	PeriodEnd   string   `parquet:"period_end"`
	Weight      *float64 `parquet:"weight,optional"`
	WMA7        *float64 `parquet:"w_ma7,optional"`
	WRollStd7   *float64 `parquet:"w_roll_std7,optional"`
	W7dChange   *float64 `parquet:"w_7d_change,optional"`
}

type featureRecord struct {
	UserID           int64    `parquet:"user_id"`
	Date             string   `parquet:"date"`
	Calories         *float64 `parquet:"calories,optional"`
	Protein          *float64 `parquet:"protein,optional"`
	Fats             *float64 `parquet:"fats,optional"`
	Carbs            *float64 `parquet:"carbs,optional"`
	TotalMinutes     *float64 `parquet:"total_minutes,optional"`
	AvgIntensity     *float64 `parquet:"avg_intensity,optional"`
	Weight           *float64 `parquet:"weight,optional"`
	WMA7             *float64 `parquet:"w_ma7,optional"`
	HeightM          *float64 `parquet:"height_m,optional"`
	BMI              *float64 `parquet:"bmi,optional"`
	CaloriesOutEst   *float64 `parquet:"calories_out_est,optional"`
	EnergyBalance    *float64 `parquet:"energy_balance,optional"`
	SleepLag1        *float64 `parquet:"sleep_lag1,optional"`
	CaloriesLag1     *float64 `parquet:"calories_lag1,optional"`
	TotalMinutesLag1 *float64 `parquet:"total_minutes_lag1,optional"`
	WeightLag1       *float64 `parquet:"weight_lag1,optional"`
	CaloriesMA7      *float64 `parquet:"calories_ma7,optional"`
	CaloriesStd7     *float64 `parquet:"calories_std7,optional"`
	TotalMinutesMA7  *float64 `parquet:"total_minutes_ma7,optional"`
	TotalMinutesStd7 *float64 `parquet:"total_minutes_std7,optional"`
}

type matrixRecord struct {
	VarX  string   `parquet:"var_x"`
	VarY  string   `parquet:"var_y"`
	Value *float64 `parquet:"value,optional"`
}

type projectionRecord struct {
	UserID    int64   `parquet:"user_id"`
	Date      string  `parquet:"date"`
	Component int32   `parquet:"component"`
	Value     float64 `parquet:"value"`
}

type explainedVarianceRecord struct {
	Component int32   `parquet:"component"`
	Ratio     float64 `parquet:"explained_variance_ratio"`
}

type vifRecord struct {
	Feature string   `parquet:"feature"`
	VIF     *float64 `parquet:"vif,optional"`
}

type pairCorrRecord struct {
	VarX string   `parquet:"var_x"`
	VarY string   `parquet:"var_y"`
	Corr *float64 `parquet:"corr,optional"`
}

type crossLagRecord struct {
	UserID int64    `parquet:"user_id"`
	Lag    int32    `parquet:"lag"`
	Corr   *float64 `parquet:"corr,optional"`
}

type deviationRecord struct {
	UserID      int64   `parquet:"user_id"`
	Date        string  `parquet:"date"`
	ClusterFlag bool    `parquet:"cluster_flag"`
	Column      string  `parquet:"column"`
	Z           float64 `parquet:"z"`
}

type trendRecord struct {
	UserID   int64    `parquet:"user_id"`
	Date     string   `parquet:"date"`
	Metric   string   `parquet:"metric"`
	Slope14  *float64 `parquet:"slope14,optional"`
	SharpDev bool     `parquet:"sharp_dev"`
}

type patternRecord struct {
	UserID  int64  `parquet:"user_id"`
	Date    string `parquet:"date"`
	Pattern bool   `parquet:"pattern"`
}

type userClusterRecord struct {
	UserID  int64   `parquet:"user_id"`
	Cluster int32   `parquet:"cluster"`
	Feature string  `parquet:"feature"`
	Mean    float64 `parquet:"mean"`
}

type impactRecord struct {
	Feature     string  `parquet:"feature"`
	Coefficient float64 `parquet:"coefficient"`
}

type insightRecord struct {
	UserID   int64  `parquet:"user_id"`
	Insights string `parquet:"insights"`
}

// Staged raw rows.

type profileStage struct {
	UserID int64  `parquet:"user_id"`
	Height string `parquet:"height"`
}

type sleepStage struct {
	UserID          int64    `parquet:"user_id"`
	Date            *string  `parquet:"date,optional"`
	Hours           *float64 `parquet:"hours,optional"`
	DurationMinutes *float64 `parquet:"duration_minutes,optional"`
}

type macroStage struct {
	UserID   int64    `parquet:"user_id"`
	Date     *string  `parquet:"date,optional"`
	Protein  *float64 `parquet:"protein,optional"`
	Fats     *float64 `parquet:"fats,optional"`
	Carbs    *float64 `parquet:"carbs,optional"`
	Calories *float64 `parquet:"calories,optional"`
}

type activityStage struct {
	UserID          int64    `parquet:"user_id"`
	Date            *string  `parquet:"date,optional"`
	ActivityType    string   `parquet:"activity_type"`
	DurationMinutes *float64 `parquet:"duration_minutes,optional"`
}

type metricStage struct {
	UserID int64    `parquet:"user_id"`
	Date   *string  `parquet:"date,optional"`
	Weight *float64 `parquet:"weight,optional"`
}

type macroTargetStage struct {
	UserID        int64    `parquet:"user_id"`
	ProteinTarget *float64 `parquet:"protein_target,optional"`
	FatsTarget    *float64 `parquet:"fats_target,optional"`
	CarbsTarget   *float64 `parquet:"carbs_target,optional"`
}

func dateString(t time.Time) string {
	return t.Format(models.DateLayout)
}

func optDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := dateString(*t)
	return &s
}

func parseOptDate(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, ok := models.ParseDate(*s)
	if !ok {
		return nil
	}
	return &t
}
