package models

import "time"

// TrendPoint is the rolling slope and sharp-deviation flag of one metric on one day.
type TrendPoint struct {
	UserID   int64     `json:"user_id"`
	Date     time.Time `json:"date"`
	Metric   string    `json:"metric"`
	Slope14  *float64  `json:"slope14"`
	SharpDev bool      `json:"sharp_dev"`
}

// PatternDay flags a low-intensity day that followed a short night.
type PatternDay struct {
	UserID  int64     `json:"user_id"`
	Date    time.Time `json:"date"`
	Pattern bool      `json:"pattern"`
}

// UserCluster assigns a user to a benchmarking cluster. Means is aligned
// with the clustered columns.
type UserCluster struct {
	UserID  int64     `json:"user_id"`
	Means   []float64 `json:"means"`
	Cluster int       `json:"cluster"`
}

// ImpactCoefficient is a standardized regression coefficient on weight.
type ImpactCoefficient struct {
	Feature     string  `json:"feature"`
	Coefficient float64 `json:"coefficient"`
}

// UserSummary is the numeric digest sent to the language model and persisted per user.
type UserSummary struct {
	UserID              int64    `json:"uid"`
	Days                int      `json:"days"`
	CaloriesMean        *float64 `json:"calories_mean"`
	ActivityMinutesMean *float64 `json:"activity_minutes_mean"`
	WeightMean          *float64 `json:"weight_mean"`
	WeightChange30d     *float64 `json:"weight_change_30d"`
}

// UserInsight is the generated prose for one user.
type UserInsight struct {
	UserID int64  `json:"user_id"`
	Text   string `json:"insights"`
}
