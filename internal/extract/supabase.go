package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JonnyWalker81/healthlytics/internal/models"
	"github.com/JonnyWalker81/healthlytics/pkg/supabase"
)

// PageSize is the PostgREST page size used when reading raw tables.
const PageSize = 1000

// Wire rows as PostgREST returns them. Numeric columns arrive as strings
// or numbers depending on the column type, so every value goes through the
// nullable decoders.

type profileWire struct {
	UserID int64                 `json:"user_id"`
	Height models.NullableString `json:"height"`
}

type activityWire struct {
	UserID       int64                 `json:"user_id"`
	Date         models.NullableTime   `json:"date"`
	ActivityType models.NullableString `json:"activity_type"`
	StartTime    *string               `json:"start_time"`
	EndTime      *string               `json:"end_time"`
}

type macroWire struct {
	UserID  int64                `json:"user_id"`
	Date    models.NullableTime  `json:"date"`
	Protein models.NullableFloat `json:"protein"`
	Fats    models.NullableFloat `json:"fats"`
	Carbs   models.NullableFloat `json:"carbs"`
}

type metricWire struct {
	UserID int64                `json:"user_id"`
	Date   models.NullableTime  `json:"date"`
	Weight models.NullableFloat `json:"weight"`
}

type macroTargetWire struct {
	UserID        int64                `json:"user_id"`
	ProteinTarget models.NullableFloat `json:"protein_target"`
	FatsTarget    models.NullableFloat `json:"fats_target"`
	CarbsTarget   models.NullableFloat `json:"carbs_target"`
}

func timestampPtr(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, ok := models.ParseTimestamp(*s)
	if !ok {
		return nil
	}
	return &t
}

// DecodeProfiles decodes a JSON array of user_profiles rows.
func DecodeProfiles(data []byte) ([]models.ProfileRow, error) {
	var wire []profileWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode profiles: %w", err)
	}
	return profileRows(wire), nil
}

func profileRows(wire []profileWire) []models.ProfileRow {
	out := make([]models.ProfileRow, len(wire))
	for i, w := range wire {
		out[i] = models.ProfileRow{UserID: w.UserID, Height: w.Height.Value}
	}
	return out
}

// DecodeActivities decodes a JSON array of activities rows. Duration is
// taken from start_time and end_time.
func DecodeActivities(data []byte) ([]models.ActivityRow, error) {
	var wire []activityWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode activities: %w", err)
	}
	return activityRows(wire), nil
}

func activityRows(wire []activityWire) []models.ActivityRow {
	out := make([]models.ActivityRow, len(wire))
	for i, w := range wire {
		out[i] = models.ActivityRow{
			UserID:          w.UserID,
			Date:            w.Date.ToPtr(),
			ActivityType:    w.ActivityType.Value,
			DurationMinutes: activityMinutes(timestampPtr(w.StartTime), timestampPtr(w.EndTime)),
		}
	}
	return out
}

// DecodeMacros decodes a JSON array of macros rows.
func DecodeMacros(data []byte) ([]models.MacroRow, error) {
	var wire []macroWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode macros: %w", err)
	}
	return macroRows(wire), nil
}

func macroRows(wire []macroWire) []models.MacroRow {
	out := make([]models.MacroRow, len(wire))
	for i, w := range wire {
		out[i] = models.MacroRow{
			UserID:  w.UserID,
			Date:    w.Date.ToPtr(),
			Protein: w.Protein.ToPtr(),
			Fats:    w.Fats.ToPtr(),
			Carbs:   w.Carbs.ToPtr(),
		}
	}
	return out
}

// DecodeMetrics decodes a JSON array of metrics (body weight) rows.
func DecodeMetrics(data []byte) ([]models.WeightRow, error) {
	var wire []metricWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode metrics: %w", err)
	}
	return metricRows(wire), nil
}

func metricRows(wire []metricWire) []models.WeightRow {
	out := make([]models.WeightRow, len(wire))
	for i, w := range wire {
		out[i] = models.WeightRow{UserID: w.UserID, Date: w.Date.ToPtr(), Weight: w.Weight.ToPtr()}
	}
	return out
}

// DecodeMacroTargets decodes a JSON array of macro_targets rows.
func DecodeMacroTargets(data []byte) ([]models.MacroTargetRow, error) {
	var wire []macroTargetWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode macro targets: %w", err)
	}
	return macroTargetRows(wire), nil
}

func macroTargetRows(wire []macroTargetWire) []models.MacroTargetRow {
	out := make([]models.MacroTargetRow, len(wire))
	for i, w := range wire {
		out[i] = models.MacroTargetRow{
			UserID:        w.UserID,
			ProteinTarget: w.ProteinTarget.ToPtr(),
			FatsTarget:    w.FatsTarget.ToPtr(),
			CarbsTarget:   w.CarbsTarget.ToPtr(),
		}
	}
	return out
}

// SupabaseSource reads the raw tables through PostgREST.
type SupabaseSource struct {
	client *supabase.Client
}

// NewSupabaseSource creates a PostgREST-backed source.
func NewSupabaseSource(client *supabase.Client) *SupabaseSource {
	return &SupabaseSource{client: client}
}

// Fetch implements Source.
func (s *SupabaseSource) Fetch(ctx context.Context) (models.Extract, error) {
	var e models.Extract

	profiles, err := supabase.QueryAll[profileWire](ctx, s.client, "user_profiles",
		map[string]string{"select": "user_id,height", "order": "user_id"}, PageSize)
	if err != nil {
		return e, fmt.Errorf("failed to fetch profiles: %w", err)
	}
	e.Profiles = profileRows(profiles)

	activities, err := supabase.QueryAll[activityWire](ctx, s.client, "activities",
		map[string]string{"select": "user_id,date,activity_type,start_time,end_time", "order": "user_id,date"}, PageSize)
	if err != nil {
		return e, fmt.Errorf("failed to fetch activities: %w", err)
	}
	e.Activities = activityRows(activities)

	macros, err := supabase.QueryAll[macroWire](ctx, s.client, "macros",
		map[string]string{"select": "user_id,date,protein,fats,carbs", "order": "user_id,date"}, PageSize)
	if err != nil {
		return e, fmt.Errorf("failed to fetch macros: %w", err)
	}
	e.Macros = macroRows(macros)

	metrics, err := supabase.QueryAll[metricWire](ctx, s.client, "metrics",
		map[string]string{"select": "user_id,date,weight", "order": "user_id,date"}, PageSize)
	if err != nil {
		return e, fmt.Errorf("failed to fetch metrics: %w", err)
	}
	e.Weights = metricRows(metrics)

	targets, err := supabase.QueryAll[macroTargetWire](ctx, s.client, "macro_targets",
		map[string]string{"select": "user_id,protein_target,fats_target,carbs_target", "order": "user_id"}, PageSize)
	if err != nil {
		return e, fmt.Errorf("failed to fetch macro targets: %w", err)
	}
	e.MacroTargets = macroTargetRows(targets)

	return e, nil
}
