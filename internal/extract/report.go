package extract

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/JonnyWalker81/healthlytics/internal/models"
	"github.com/JonnyWalker81/healthlytics/internal/stats"
)

// Raw table names as they appear in reports and staging.
const (
	TableProfiles     = "profiles"
	TableSleep        = "sleep"
	TableMacros       = "macros"
	TableActivities   = "activities"
	TableMetrics      = "metrics"
	TableMacroTargets = "macro_targets"
)

// OutlierZ is the |z| above which a numeric cell is counted as an outlier.
const OutlierZ = 5.0

// TableReport summarizes one raw table.
type TableReport struct {
	Name          string         `json:"name"`
	Rows          int            `json:"rows"`
	Columns       []string       `json:"columns"`
	NullCounts    map[string]int `json:"null_counts"`
	DuplicateRows int            `json:"duplicate_rows"`
	OutliersZ5    map[string]int `json:"numeric_outliers_z5"`
	Rejected      int            `json:"rejected_rows"`
}

// Report is the ingest validation report of one batch.
type Report struct {
	BatchID string        `json:"batch_id"`
	Tables  []TableReport `json:"tables"`
}

// column describes one raw field. Exactly one of num or str is set.
type column[T any] struct {
	name string
	num  func(T) *float64
	str  func(T) *string
}

func numCol[T any](name string, fn func(T) *float64) column[T] {
	return column[T]{name: name, num: fn}
}

func strCol[T any](name string, fn func(T) *string) column[T] {
	return column[T]{name: name, str: fn}
}

func idCol[T any](fn func(T) int64) column[T] {
	return column[T]{name: "user_id", num: func(r T) *float64 { v := float64(fn(r)); return &v }}
}

func dateCol[T any](fn func(T) *time.Time) column[T] {
	return column[T]{name: "date", str: func(r T) *string {
		d := fn(r)
		if d == nil {
			return nil
		}
		s := d.Format(models.DateLayout)
		return &s
	}}
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func describe[T any](name string, rows []T, cols []column[T], rejected int) TableReport {
	rep := TableReport{
		Name:       name,
		Rows:       len(rows),
		NullCounts: make(map[string]int, len(cols)),
		OutliersZ5: map[string]int{},
		Rejected:   rejected,
	}
	for _, c := range cols {
		rep.Columns = append(rep.Columns, c.name)
		nulls := 0
		var vals []*float64
		for _, r := range rows {
			if c.num != nil {
				v := c.num(r)
				if v == nil {
					nulls++
				}
				vals = append(vals, v)
			} else if c.str(r) == nil {
				nulls++
			}
		}
		rep.NullCounts[c.name] = nulls
		if c.num != nil {
			if present := stats.Present(vals); len(present) > 0 {
				rep.OutliersZ5[c.name] = outliers(present)
			}
		}
	}

	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		key, err := json.Marshal(r)
		if err != nil {
			continue
		}
		if seen[string(key)] {
			rep.DuplicateRows++
			continue
		}
		seen[string(key)] = true
	}
	return rep
}

// outliers counts |z| > OutlierZ using the population std, falling back to
// a unit scale when the column is constant.
func outliers(vals []float64) int {
	mean := stat.Mean(vals, nil)
	sd := stats.PopStd(vals)
	if sd == 0 || math.IsNaN(sd) {
		sd = 1
	}
	n := 0
	for _, v := range vals {
		if math.Abs((v-mean)/sd) > OutlierZ {
			n++
		}
	}
	return n
}

// Describe builds the validation report for an extract. Tables that were
// not supplied are omitted.
func Describe(batchID string, e models.Extract, rejected Rejected) Report {
	r := Report{BatchID: batchID}
	add := func(t TableReport) {
		if t.Rows > 0 || t.Rejected > 0 {
			r.Tables = append(r.Tables, t)
		}
	}

	add(describe(TableProfiles, e.Profiles, []column[models.ProfileRow]{
		idCol(func(r models.ProfileRow) int64 { return r.UserID }),
		strCol("height", func(r models.ProfileRow) *string { return nonEmpty(r.Height) }),
	}, rejected[TableProfiles]))

	add(describe(TableSleep, e.Sleep, []column[models.SleepRow]{
		idCol(func(r models.SleepRow) int64 { return r.UserID }),
		dateCol(func(r models.SleepRow) *time.Time { return r.Date }),
		numCol("hours", func(r models.SleepRow) *float64 { return r.Hours }),
		numCol("duration_minutes", func(r models.SleepRow) *float64 { return r.DurationMinutes }),
	}, rejected[TableSleep]))

	add(describe(TableMacros, e.Macros, []column[models.MacroRow]{
		idCol(func(r models.MacroRow) int64 { return r.UserID }),
		dateCol(func(r models.MacroRow) *time.Time { return r.Date }),
		numCol("protein", func(r models.MacroRow) *float64 { return r.Protein }),
		numCol("fats", func(r models.MacroRow) *float64 { return r.Fats }),
		numCol("carbs", func(r models.MacroRow) *float64 { return r.Carbs }),
		numCol("calories", func(r models.MacroRow) *float64 { return r.Calories }),
	}, rejected[TableMacros]))

	add(describe(TableActivities, e.Activities, []column[models.ActivityRow]{
		idCol(func(r models.ActivityRow) int64 { return r.UserID }),
		dateCol(func(r models.ActivityRow) *time.Time { return r.Date }),
		strCol("activity_type", func(r models.ActivityRow) *string { return nonEmpty(r.ActivityType) }),
		numCol("duration_minutes", func(r models.ActivityRow) *float64 { return r.DurationMinutes }),
	}, rejected[TableActivities]))

	add(describe(TableMetrics, e.Weights, []column[models.WeightRow]{
		idCol(func(r models.WeightRow) int64 { return r.UserID }),
		dateCol(func(r models.WeightRow) *time.Time { return r.Date }),
		numCol("weight", func(r models.WeightRow) *float64 { return r.Weight }),
	}, rejected[TableMetrics]))

	add(describe(TableMacroTargets, e.MacroTargets, []column[models.MacroTargetRow]{
		idCol(func(r models.MacroTargetRow) int64 { return r.UserID }),
		numCol("protein_target", func(r models.MacroTargetRow) *float64 { return r.ProteinTarget }),
		numCol("fats_target", func(r models.MacroTargetRow) *float64 { return r.FatsTarget }),
		numCol("carbs_target", func(r models.MacroTargetRow) *float64 { return r.CarbsTarget }),
	}, rejected[TableMacroTargets]))

	return r
}

// WriteReport writes the report as validation.json inside dir.
func WriteReport(dir string, r Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode validation report: %w", err)
	}
	path := filepath.Join(dir, "validation.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write validation report: %w", err)
	}
	return path, nil
}
