package models

import "time"

// Period is a bucketing granularity.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Periods lists the granularities in output order.
var Periods = []Period{PeriodDaily, PeriodWeekly, PeriodMonthly}

// Domain keys used for aggregate artifacts.
const (
	DomainSleep    = "sleep"
	DomainMacros   = "macros"
	DomainExercise = "exercise"
	DomainWeight   = "weight"
)

// Bucket identifies one aggregate row. Daily buckets start and end on the same date.
type Bucket struct {
	UserID      int64     `json:"user_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// SleepAggregate holds hours statistics for one bucket.
type SleepAggregate struct {
	Bucket
	AvgHours *float64 `json:"avg_hours"`
	StdHours *float64 `json:"std_hours"`
	MinHours *float64 `json:"min_hours"`
	MaxHours *float64 `json:"max_hours"`
}

// MacroAggregate holds nutrient totals (daily) or means of daily totals (weekly, monthly).
type MacroAggregate struct {
	Bucket
	Calories       *float64 `json:"calories"`
	Protein        *float64 `json:"protein"`
	Fats           *float64 `json:"fats"`
	Carbs          *float64 `json:"carbs"`
	ProteinPctGoal *float64 `json:"protein_pct_goal"`
	FatsPctGoal    *float64 `json:"fats_pct_goal"`
	CarbsPctGoal   *float64 `json:"carbs_pct_goal"`
	ProteinRatio   *float64 `json:"protein_ratio"`
	FatsRatio      *float64 `json:"fats_ratio"`
	CarbsRatio     *float64 `json:"carbs_ratio"`
}

// ActivityAggregate holds session counts, minutes and the intensity score.
type ActivityAggregate struct {
	Bucket
	Sessions     float64  `json:"sessions"`
	TotalMinutes float64  `json:"total_minutes"`
	AvgIntensity *float64 `json:"avg_intensity"`
}

// WeightDaily is a raw weight measurement with its trailing statistics.
type WeightDaily struct {
	UserID    int64     `json:"user_id"`
	Date      time.Time `json:"date"`
	Weight    *float64  `json:"weight"`
	WMA7      *float64  `json:"w_ma7"`
	WRollStd7 *float64  `json:"w_roll_std7"`
	W7dChange *float64  `json:"w_7d_change"`
}

// WeightAggregate holds weekly or monthly means of the weight series.
type WeightAggregate struct {
	Bucket
	Weight    *float64 `json:"weight"`
	WMA7      *float64 `json:"w_ma7"`
	WRollStd7 *float64 `json:"w_roll_std7"`
	W7dChange *float64 `json:"w_7d_change"`
}

// SleepTables groups the sleep outputs by period.
type SleepTables struct {
	Daily, Weekly, Monthly []SleepAggregate
}

// MacroTables groups the macro outputs. HasTargets reports whether the
// pct-goal columns were computed.
type MacroTables struct {
	Daily, Weekly, Monthly []MacroAggregate
	HasTargets             bool
}

// ActivityTables groups the exercise outputs by period.
type ActivityTables struct {
	Daily, Weekly, Monthly []ActivityAggregate
}

// WeightTables groups the weight outputs by period.
type WeightTables struct {
	Daily           []WeightDaily
	Weekly, Monthly []WeightAggregate
}

// Aggregates is the aggregator result. A nil domain was not supplied.
type Aggregates struct {
	Sleep    *SleepTables
	Macros   *MacroTables
	Exercise *ActivityTables
	Weight   *WeightTables
}
