package extract

import (
	"github.com/go-playground/validator/v10"

	"github.com/JonnyWalker81/healthlytics/internal/models"
)

// Validator drops rows that fail the struct tags on the model types
// (missing user id, negative durations, non-positive weights).
type Validator struct {
	v *validator.Validate
}

// NewValidator creates a row validator.
func NewValidator() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// Rejected counts dropped rows per raw table.
type Rejected map[string]int

func keepValid[T any](v *validator.Validate, name string, rows []T, rejected Rejected) []T {
	out := rows[:0:0]
	for _, r := range rows {
		if err := v.Struct(r); err != nil {
			rejected[name]++
			continue
		}
		out = append(out, r)
	}
	return out
}

// Clean returns the extract without invalid rows.
func (v *Validator) Clean(e models.Extract) (models.Extract, Rejected) {
	rejected := Rejected{}
	out := models.Extract{
		Profiles:     keepValid(v.v, TableProfiles, e.Profiles, rejected),
		Sleep:        keepValid(v.v, TableSleep, e.Sleep, rejected),
		Macros:       keepValid(v.v, TableMacros, e.Macros, rejected),
		Activities:   keepValid(v.v, TableActivities, e.Activities, rejected),
		Weights:      keepValid(v.v, TableMetrics, e.Weights, rejected),
		MacroTargets: keepValid(v.v, TableMacroTargets, e.MacroTargets, rejected),
	}
	return out, rejected
}
