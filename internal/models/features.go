package models

import "time"

// Feature column names.
const (
	ColUserID           = "user_id"
	ColDate             = "date"
	ColCalories         = "calories"
	ColProtein          = "protein"
	ColFats             = "fats"
	ColCarbs            = "carbs"
	ColTotalMinutes     = "total_minutes"
	ColAvgIntensity     = "avg_intensity"
	ColWeight           = "weight"
	ColWMA7             = "w_ma7"
	ColHeightM          = "height_m"
	ColBMI              = "bmi"
	ColCaloriesOutEst   = "calories_out_est"
	ColEnergyBalance    = "energy_balance"
	ColSleepLag1        = "sleep_lag1"
	ColCaloriesLag1     = "calories_lag1"
	ColTotalMinutesLag1 = "total_minutes_lag1"
	ColWeightLag1       = "weight_lag1"
	ColCaloriesMA7      = "calories_ma7"
	ColCaloriesStd7     = "calories_std7"
	ColTotalMinutesMA7  = "total_minutes_ma7"
	ColTotalMinutesStd7 = "total_minutes_std7"
)

// FeatureRow is one (user, date) row of the wide feature table.
type FeatureRow struct {
	UserID           int64     `json:"user_id"`
	Date             time.Time `json:"date"`
	Calories         *float64  `json:"calories"`
	Protein          *float64  `json:"protein"`
	Fats             *float64  `json:"fats"`
	Carbs            *float64  `json:"carbs"`
	TotalMinutes     *float64  `json:"total_minutes"`
	AvgIntensity     *float64  `json:"avg_intensity"`
	Weight           *float64  `json:"weight"`
	WMA7             *float64  `json:"w_ma7"`
	HeightM          *float64  `json:"height_m"`
	BMI              *float64  `json:"bmi"`
	CaloriesOutEst   *float64  `json:"calories_out_est"`
	EnergyBalance    *float64  `json:"energy_balance"`
	SleepLag1        *float64  `json:"sleep_lag1"`
	CaloriesLag1     *float64  `json:"calories_lag1"`
	TotalMinutesLag1 *float64  `json:"total_minutes_lag1"`
	WeightLag1       *float64  `json:"weight_lag1"`
	CaloriesMA7      *float64  `json:"calories_ma7"`
	CaloriesStd7     *float64  `json:"calories_std7"`
	TotalMinutesMA7  *float64  `json:"total_minutes_ma7"`
	TotalMinutesStd7 *float64  `json:"total_minutes_std7"`
}

// Value returns the named numeric column, or nil when the column is unknown or null.
func (r *FeatureRow) Value(col string) *float64 {
	if p := r.field(col); p != nil {
		return *p
	}
	return nil
}

// Set assigns the named numeric column. Unknown columns are ignored.
func (r *FeatureRow) Set(col string, v *float64) {
	if p := r.field(col); p != nil {
		*p = v
	}
}

func (r *FeatureRow) field(col string) **float64 {
	switch col {
	case ColCalories:
		return &r.Calories
	case ColProtein:
		return &r.Protein
	case ColFats:
		return &r.Fats
	case ColCarbs:
		return &r.Carbs
	case ColTotalMinutes:
		return &r.TotalMinutes
	case ColAvgIntensity:
		return &r.AvgIntensity
	case ColWeight:
		return &r.Weight
	case ColWMA7:
		return &r.WMA7
	case ColHeightM:
		return &r.HeightM
	case ColBMI:
		return &r.BMI
	case ColCaloriesOutEst:
		return &r.CaloriesOutEst
	case ColEnergyBalance:
		return &r.EnergyBalance
	case ColSleepLag1:
		return &r.SleepLag1
	case ColCaloriesLag1:
		return &r.CaloriesLag1
	case ColTotalMinutesLag1:
		return &r.TotalMinutesLag1
	case ColWeightLag1:
		return &r.WeightLag1
	case ColCaloriesMA7:
		return &r.CaloriesMA7
	case ColCaloriesStd7:
		return &r.CaloriesStd7
	case ColTotalMinutesMA7:
		return &r.TotalMinutesMA7
	case ColTotalMinutesStd7:
		return &r.TotalMinutesStd7
	}
	return nil
}

// FeatureTable is the merged per-user/per-day table. Columns lists the
// emitted numeric columns in output order, excluding user_id and date.
// Rows are sorted by user then date.
type FeatureTable struct {
	Columns []string     `json:"columns"`
	Rows    []FeatureRow `json:"rows"`
}

// Has reports whether col was emitted.
func (t FeatureTable) Has(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// Present filters cols down to the emitted ones, keeping order.
func (t FeatureTable) Present(cols ...string) []string {
	var out []string
	for _, c := range cols {
		if t.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Column returns the values of col across all rows.
func (t FeatureTable) Column(col string) []*float64 {
	out := make([]*float64, len(t.Rows))
	for i := range t.Rows {
		out[i] = t.Rows[i].Value(col)
	}
	return out
}

// Empty reports whether the table has no rows.
func (t FeatureTable) Empty() bool { return len(t.Rows) == 0 }

// UserIDs returns the distinct users in row order.
func (t FeatureTable) UserIDs() []int64 {
	var ids []int64
	seen := make(map[int64]bool)
	for _, r := range t.Rows {
		if !seen[r.UserID] {
			seen[r.UserID] = true
			ids = append(ids, r.UserID)
		}
	}
	return ids
}

// ByUser splits the rows per user, preserving order within each user.
func (t FeatureTable) ByUser() map[int64][]FeatureRow {
	out := make(map[int64][]FeatureRow)
	for _, r := range t.Rows {
		out[r.UserID] = append(out[r.UserID], r)
	}
	return out
}
