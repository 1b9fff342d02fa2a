// Package sqlite implements the analytics repositories on a local SQLite
// file for development and single-host runs.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/JonnyWalker81/healthlytics/internal/models"
	"github.com/JonnyWalker81/healthlytics/internal/repository"
)

const schema = `
	CREATE TABLE IF NOT EXISTS analytics_runs (
		batch_id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		status TEXT NOT NULL,
		rows_processed INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		failed_stages TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS analytics_summary (
		batch_id TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		summary TEXT NOT NULL,
		insights TEXT,
		PRIMARY KEY (batch_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS analytics_relationships (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL,
		user_id INTEGER,
		var_x TEXT NOT NULL,
		var_y TEXT NOT NULL,
		metric TEXT NOT NULL,
		value REAL,
		lag INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_relationships_batch ON analytics_relationships(batch_id, metric);
`

// Open opens (creating if needed) the SQLite file at path and applies the schema.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// One writer avoids SQLITE_BUSY between the pipeline's sequential writes.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if err := EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates the analytics tables when they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// NewRepositories wires the SQLite-backed stores. Closing the bundle closes
// the database.
func NewRepositories(db *sql.DB) *repository.Repositories {
	return repository.NewRepositories(
		&runRepository{db: db},
		&summaryRepository{db: db},
		&relationshipRepository{db: db},
		db.Close,
	)
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

type runRepository struct {
	db *sql.DB
}

func (r *runRepository) Create(ctx context.Context, run *models.RunLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO analytics_runs (batch_id, started_at, status) VALUES (?, ?, ?)`,
		run.BatchID, formatTime(&run.StartedAt), string(run.Status))
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (r *runRepository) Finish(ctx context.Context, run *models.RunLog) error {
	stages := run.FailedStages
	if stages == nil {
		stages = []string{}
	}
	doc, err := json.Marshal(stages)
	if err != nil {
		return fmt.Errorf("failed to encode failed stages: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE analytics_runs
		SET finished_at = ?, status = ?, rows_processed = ?, error = ?, failed_stages = ?
		WHERE batch_id = ?`,
		formatTime(run.FinishedAt), string(run.Status), run.RowsProcessed, run.Error, string(doc), run.BatchID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to finish run %s: %w", run.BatchID, repository.ErrNotFound)
	}
	return nil
}

func (r *runRepository) GetByBatchID(ctx context.Context, batchID string) (*models.RunLog, error) {
	var (
		run      models.RunLog
		started  string
		finished sql.NullString
		status   string
		errMsg   sql.NullString
		stages   string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT batch_id, started_at, finished_at, status, rows_processed, error, failed_stages
		FROM analytics_runs WHERE batch_id = ?`, batchID).
		Scan(&run.BatchID, &started, &finished, &status, &run.RowsProcessed, &errMsg, &stages)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.Status = models.RunStatus(status)
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}
	if finished.Valid {
		t, err := time.Parse(time.RFC3339Nano, finished.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse finished_at: %w", err)
		}
		run.FinishedAt = &t
	}
	if errMsg.Valid {
		run.Error = &errMsg.String
	}
	if err := json.Unmarshal([]byte(stages), &run.FailedStages); err != nil {
		return nil, fmt.Errorf("failed to decode failed stages: %w", err)
	}
	return &run, nil
}

type summaryRepository struct {
	db *sql.DB
}

func (r *summaryRepository) Upsert(ctx context.Context, batchID string, userID int64, summary models.UserSummary, insights *string) error {
	doc, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO analytics_summary (batch_id, user_id, summary, insights)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (batch_id, user_id)
		DO UPDATE SET summary = excluded.summary, insights = excluded.insights`,
		batchID, userID, string(doc), insights)
	if err != nil {
		return fmt.Errorf("failed to upsert summary for user %d: %w", userID, err)
	}
	return nil
}

func (r *summaryRepository) GetByBatchID(ctx context.Context, batchID string) ([]models.SummaryRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT batch_id, user_id, summary, insights
		FROM analytics_summary WHERE batch_id = ? ORDER BY user_id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get summaries: %w", err)
	}
	defer rows.Close()

	var out []models.SummaryRecord
	for rows.Next() {
		var rec models.SummaryRecord
		var doc string
		var insights sql.NullString
		if err := rows.Scan(&rec.BatchID, &rec.UserID, &doc, &insights); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		if err := json.Unmarshal([]byte(doc), &rec.Summary); err != nil {
			return nil, fmt.Errorf("failed to decode summary: %w", err)
		}
		if insights.Valid {
			rec.Insights = &insights.String
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type relationshipRepository struct {
	db *sql.DB
}

func (r *relationshipRepository) BulkInsert(ctx context.Context, batchID string, rows []models.Relationship) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO analytics_relationships (batch_id, user_id, var_x, var_y, metric, value, lag)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rel := range rows {
		if _, err := stmt.ExecContext(ctx, batchID, rel.UserID, rel.VarX, rel.VarY, rel.Metric, rel.Value, rel.Lag); err != nil {
			return fmt.Errorf("failed to insert relationship: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit relationships: %w", err)
	}
	return nil
}

func (r *relationshipRepository) GetByBatchID(ctx context.Context, batchID string) ([]models.Relationship, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, var_x, var_y, metric, value, lag
		FROM analytics_relationships WHERE batch_id = ? ORDER BY id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get relationships: %w", err)
	}
	defer rows.Close()

	var out []models.Relationship
	for rows.Next() {
		var (
			rel    models.Relationship
			userID sql.NullInt64
			value  sql.NullFloat64
			lag    sql.NullInt64
		)
		if err := rows.Scan(&userID, &rel.VarX, &rel.VarY, &rel.Metric, &value, &lag); err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		if userID.Valid {
			rel.UserID = &userID.Int64
		}
		if value.Valid {
			rel.Value = &value.Float64
		}
		if lag.Valid {
			l := int(lag.Int64)
			rel.Lag = &l
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}
