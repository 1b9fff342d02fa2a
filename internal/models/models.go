package models

import "time"

// DateLayout is the calendar-date layout used in artifacts and JSON payloads.
const DateLayout = "2006-01-02"

// SleepRow is one sleep record. Hours falls back to DurationMinutes/60.
type SleepRow struct {
	UserID          int64      `json:"user_id" validate:"required"`
	Date            *time.Time `json:"date"`
	Hours           *float64   `json:"hours,omitempty"`
	DurationMinutes *float64   `json:"duration_minutes,omitempty" validate:"omitempty,gte=0"`
}

// MacroRow is one meal entry.
type MacroRow struct {
	UserID   int64      `json:"user_id" validate:"required"`
	Date     *time.Time `json:"date"`
	Protein  *float64   `json:"protein,omitempty"`
	Fats     *float64   `json:"fats,omitempty"`
	Carbs    *float64   `json:"carbs,omitempty"`
	Calories *float64   `json:"calories,omitempty"`
}

// ActivityRow is one activity session.
type ActivityRow struct {
	UserID          int64      `json:"user_id" validate:"required"`
	Date            *time.Time `json:"date"`
	ActivityType    string     `json:"activity_type"`
	DurationMinutes *float64   `json:"duration_minutes,omitempty" validate:"omitempty,gte=0"`
}

// WeightRow is one body-weight measurement.
type WeightRow struct {
	UserID int64      `json:"user_id" validate:"required"`
	Date   *time.Time `json:"date"`
	Weight *float64   `json:"weight,omitempty" validate:"omitempty,gt=0"`
}

// ProfileRow carries the user's height exactly as it was entered.
type ProfileRow struct {
	UserID int64  `json:"user_id" validate:"required"`
	Height string `json:"height"`
}

// MacroTargetRow holds the user's daily macro goals in grams.
type MacroTargetRow struct {
	UserID        int64    `json:"user_id" validate:"required"`
	ProteinTarget *float64 `json:"protein_target,omitempty"`
	FatsTarget    *float64 `json:"fats_target,omitempty"`
	CarbsTarget   *float64 `json:"carbs_target,omitempty"`
}

// Extract is the materialized raw input of one batch. An empty slice means
// the domain was not supplied.
type Extract struct {
	Profiles     []ProfileRow     `json:"profiles"`
	Sleep        []SleepRow       `json:"sleep"`
	Macros       []MacroRow       `json:"macros"`
	Activities   []ActivityRow    `json:"activities"`
	Weights      []WeightRow      `json:"weights"`
	MacroTargets []MacroTargetRow `json:"macro_targets"`
}

// Rows returns the total number of raw rows across all domains.
func (e Extract) Rows() int {
	return len(e.Profiles) + len(e.Sleep) + len(e.Macros) + len(e.Activities) +
		len(e.Weights) + len(e.MacroTargets)
}

// FilterUser returns a copy of the extract restricted to one user.
func (e Extract) FilterUser(userID int64) Extract {
	return Extract{
		Profiles:     filterRows(e.Profiles, func(r ProfileRow) bool { return r.UserID == userID }),
		Sleep:        filterRows(e.Sleep, func(r SleepRow) bool { return r.UserID == userID }),
		Macros:       filterRows(e.Macros, func(r MacroRow) bool { return r.UserID == userID }),
		Activities:   filterRows(e.Activities, func(r ActivityRow) bool { return r.UserID == userID }),
		Weights:      filterRows(e.Weights, func(r WeightRow) bool { return r.UserID == userID }),
		MacroTargets: filterRows(e.MacroTargets, func(r MacroTargetRow) bool { return r.UserID == userID }),
	}
}

func filterRows[T any](rows []T, keep func(T) bool) []T {
	var out []T
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Day truncates t to its wall-clock calendar date, dropping the zone.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
