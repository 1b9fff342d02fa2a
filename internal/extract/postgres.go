package extract

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonnyWalker81/healthlytics/internal/models"
)

//go:embed queries.sql
var queriesSQL string

// ParseQueries splits a file of "-- name: <key>" sections into statements.
func ParseQueries(src string) map[string]string {
	out := map[string]string{}
	var name string
	var body strings.Builder
	flush := func() {
		if name != "" {
			out[name] = strings.TrimSuffix(strings.TrimSpace(body.String()), ";")
		}
		body.Reset()
	}
	for _, line := range strings.Split(src, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "-- name:"); ok {
			flush()
			name = strings.TrimSpace(rest)
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	flush()
	return out
}

type pgProfile struct {
	UserID int64   `db:"user_id"`
	Height *string `db:"height"`
}

type pgActivity struct {
	UserID          int64      `db:"user_id"`
	Date            *time.Time `db:"date"`
	ActivityType    *string    `db:"activity_type"`
	DurationMinutes *float64   `db:"duration_minutes"`
}

type pgMacro struct {
	UserID  int64          `db:"user_id"`
	Date    *time.Time     `db:"date"`
	Protein pgtype.Numeric `db:"protein"`
	Fats    pgtype.Numeric `db:"fats"`
	Carbs   pgtype.Numeric `db:"carbs"`
}

type pgMetric struct {
	UserID int64          `db:"user_id"`
	Date   *time.Time     `db:"date"`
	Weight pgtype.Numeric `db:"weight"`
}

type pgMacroTarget struct {
	UserID        int64          `db:"user_id"`
	ProteinTarget pgtype.Numeric `db:"protein_target"`
	FatsTarget    pgtype.Numeric `db:"fats_target"`
	CarbsTarget   pgtype.Numeric `db:"carbs_target"`
}

func numeric(n pgtype.Numeric) *float64 {
	if !n.Valid || n.NaN {
		return nil
	}
	f, err := n.Float64Value()
	if err != nil || !f.Valid {
		return nil
	}
	return models.F64(f.Float64)
}

func day(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := models.Day(*t)
	return &d
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// PostgresSource reads the raw tables with SQL over a pgx pool.
type PostgresSource struct {
	pool    *pgxpool.Pool
	queries map[string]string
}

// NewPostgresSource creates a SQL-backed source using the embedded queries.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool, queries: ParseQueries(queriesSQL)}
}

func collect[T any](ctx context.Context, s *PostgresSource, name string) ([]T, error) {
	sql, ok := s.queries[name]
	if !ok {
		return nil, fmt.Errorf("query %q not defined", name)
	}
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", name, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", name, err)
	}
	return out, nil
}

// Fetch implements Source.
func (s *PostgresSource) Fetch(ctx context.Context) (models.Extract, error) {
	var e models.Extract

	profiles, err := collect[pgProfile](ctx, s, TableProfiles)
	if err != nil {
		return e, err
	}
	for _, r := range profiles {
		e.Profiles = append(e.Profiles, models.ProfileRow{UserID: r.UserID, Height: deref(r.Height)})
	}

	activities, err := collect[pgActivity](ctx, s, TableActivities)
	if err != nil {
		return e, err
	}
	for _, r := range activities {
		e.Activities = append(e.Activities, models.ActivityRow{
			UserID:          r.UserID,
			Date:            day(r.Date),
			ActivityType:    deref(r.ActivityType),
			DurationMinutes: r.DurationMinutes,
		})
	}

	macros, err := collect[pgMacro](ctx, s, TableMacros)
	if err != nil {
		return e, err
	}
	for _, r := range macros {
		e.Macros = append(e.Macros, models.MacroRow{
			UserID:  r.UserID,
			Date:    day(r.Date),
			Protein: numeric(r.Protein),
			Fats:    numeric(r.Fats),
			Carbs:   numeric(r.Carbs),
		})
	}

	metrics, err := collect[pgMetric](ctx, s, TableMetrics)
	if err != nil {
		return e, err
	}
	for _, r := range metrics {
		e.Weights = append(e.Weights, models.WeightRow{UserID: r.UserID, Date: day(r.Date), Weight: numeric(r.Weight)})
	}

	targets, err := collect[pgMacroTarget](ctx, s, TableMacroTargets)
	if err != nil {
		return e, err
	}
	for _, r := range targets {
		e.MacroTargets = append(e.MacroTargets, models.MacroTargetRow{
			UserID:        r.UserID,
			ProteinTarget: numeric(r.ProteinTarget),
			FatsTarget:    numeric(r.FatsTarget),
			CarbsTarget:   numeric(r.CarbsTarget),
		})
	}

	return e, nil
}
