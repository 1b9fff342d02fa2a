package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/JonnyWalker81/healthlytics/internal/models"
)

// Staging file names, one per raw table.
const (
	StageProfiles     = "profiles.parquet"
	StageSleep        = "sleep.parquet"
	StageMacros       = "macros.parquet"
	StageActivities   = "activities.parquet"
	StageWeights      = "metrics.parquet"
	StageMacroTargets = "macro_targets.parquet"
)

func stage[T any](dir, name string, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	if err := parquet.WriteFile(filepath.Join(dir, name), rows); err != nil {
		return fmt.Errorf("failed to stage %s: %w", name, err)
	}
	return nil
}

// WriteStaging writes the raw extract to dir so a later run can replay it.
func WriteStaging(dir string, e models.Extract) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create staging dir: %w", err)
	}

	profiles := make([]profileStage, len(e.Profiles))
	for i, r := range e.Profiles {
		profiles[i] = profileStage{UserID: r.UserID, Height: r.Height}
	}
	sleep := make([]sleepStage, len(e.Sleep))
	for i, r := range e.Sleep {
		sleep[i] = sleepStage{UserID: r.UserID, Date: optDate(r.Date), Hours: r.Hours, DurationMinutes: r.DurationMinutes}
	}
	macros := make([]macroStage, len(e.Macros))
	for i, r := range e.Macros {
		macros[i] = macroStage{UserID: r.UserID, Date: optDate(r.Date), Protein: r.Protein, Fats: r.Fats, Carbs: r.Carbs, Calories: r.Calories}
	}
	activities := make([]activityStage, len(e.Activities))
	for i, r := range e.Activities {
		activities[i] = activityStage{UserID: r.UserID, Date: optDate(r.Date), ActivityType: r.ActivityType, DurationMinutes: r.DurationMinutes}
	}
	weights := make([]metricStage, len(e.Weights))
	for i, r := range e.Weights {
		weights[i] = metricStage{UserID: r.UserID, Date: optDate(r.Date), Weight: r.Weight}
	}
	targets := make([]macroTargetStage, len(e.MacroTargets))
	for i, r := range e.MacroTargets {
		targets[i] = macroTargetStage{UserID: r.UserID, ProteinTarget: r.ProteinTarget, FatsTarget: r.FatsTarget, CarbsTarget: r.CarbsTarget}
	}

	if err := stage(dir, StageProfiles, profiles); err != nil {
		return err
	}
	if err := stage(dir, StageSleep, sleep); err != nil {
		return err
	}
	if err := stage(dir, StageMacros, macros); err != nil {
		return err
	}
	if err := stage(dir, StageActivities, activities); err != nil {
		return err
	}
	if err := stage(dir, StageWeights, weights); err != nil {
		return err
	}
	return stage(dir, StageMacroTargets, targets)
}

// readStage returns nil rows when the file is absent.
func readStage[T any](dir, name string) ([]T, error) {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read staged %s: %w", name, err)
	}
	return rows, nil
}

// ReadStaging loads an extract previously written by WriteStaging. Missing
// tables are treated as domains that were not supplied.
func ReadStaging(dir string) (models.Extract, error) {
	var e models.Extract

	profiles, err := readStage[profileStage](dir, StageProfiles)
	if err != nil {
		return e, err
	}
	for _, r := range profiles {
		e.Profiles = append(e.Profiles, models.ProfileRow{UserID: r.UserID, Height: r.Height})
	}

	sleep, err := readStage[sleepStage](dir, StageSleep)
	if err != nil {
		return e, err
	}
	for _, r := range sleep {
		e.Sleep = append(e.Sleep, models.SleepRow{UserID: r.UserID, Date: parseOptDate(r.Date), Hours: r.Hours, DurationMinutes: r.DurationMinutes})
	}

	macros, err := readStage[macroStage](dir, StageMacros)
	if err != nil {
		return e, err
	}
	for _, r := range macros {
		e.Macros = append(e.Macros, models.MacroRow{UserID: r.UserID, Date: parseOptDate(r.Date), Protein: r.Protein, Fats: r.Fats, Carbs: r.Carbs, Calories: r.Calories})
	}

	activities, err := readStage[activityStage](dir, StageActivities)
	if err != nil {
		return e, err
	}
	for _, r := range activities {
		e.Activities = append(e.Activities, models.ActivityRow{UserID: r.UserID, Date: parseOptDate(r.Date), ActivityType: r.ActivityType, DurationMinutes: r.DurationMinutes})
	}

	weights, err := readStage[metricStage](dir, StageWeights)
	if err != nil {
		return e, err
	}
	for _, r := range weights {
		e.Weights = append(e.Weights, models.WeightRow{UserID: r.UserID, Date: parseOptDate(r.Date), Weight: r.Weight})
	}

	targets, err := readStage[macroTargetStage](dir, StageMacroTargets)
	if err != nil {
		return e, err
	}
	for _, r := range targets {
		e.MacroTargets = append(e.MacroTargets, models.MacroTargetRow{UserID: r.UserID, ProteinTarget: r.ProteinTarget, FatsTarget: r.FatsTarget, CarbsTarget: r.CarbsTarget})
	}

	return e, nil
}
