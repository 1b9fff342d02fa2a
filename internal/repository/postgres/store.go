// Package postgres implements the analytics repositories with pgx.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonnyWalker81/healthlytics/internal/models"
	"github.com/JonnyWalker81/healthlytics/internal/repository"
)

//go:embed schema.sql
var schemaSQL string

// Connect opens a pgx pool and verifies it with a ping.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the analytics tables when they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create analytics schema: %w", err)
	}
	return nil
}

// NewRepositories wires the pgx-backed stores. Closing the bundle closes
// the pool.
func NewRepositories(pool *pgxpool.Pool) *repository.Repositories {
	return repository.NewRepositories(
		&runRepository{pool: pool},
		&summaryRepository{pool: pool},
		&relationshipRepository{pool: pool},
		func() error { pool.Close(); return nil },
	)
}

type runRepository struct {
	pool *pgxpool.Pool
}

func (r *runRepository) Create(ctx context.Context, run *models.RunLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO analytics_runs (batch_id, started_at, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (batch_id) DO NOTHING`,
		run.BatchID, run.StartedAt, string(run.Status))
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (r *runRepository) Finish(ctx context.Context, run *models.RunLog) error {
	stages, err := json.Marshal(nonNil(run.FailedStages))
	if err != nil {
		return fmt.Errorf("failed to encode failed stages: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE analytics_runs
		SET finished_at = $1, status = $2, rows_processed = $3, error = $4, failed_stages = $5::jsonb
		WHERE batch_id = $6`,
		run.FinishedAt, string(run.Status), run.RowsProcessed, run.Error, string(stages), run.BatchID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to finish run %s: %w", run.BatchID, repository.ErrNotFound)
	}
	return nil
}

func (r *runRepository) GetByBatchID(ctx context.Context, batchID string) (*models.RunLog, error) {
	var (
		run      models.RunLog
		status   string
		finished *time.Time
		stages   []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT batch_id, started_at, finished_at, status, rows_processed, error, failed_stages
		FROM analytics_runs WHERE batch_id = $1`, batchID).
		Scan(&run.BatchID, &run.StartedAt, &finished, &status, &run.RowsProcessed, &run.Error, &stages)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	run.Status = models.RunStatus(status)
	run.FinishedAt = finished
	if len(stages) > 0 {
		if err := json.Unmarshal(stages, &run.FailedStages); err != nil {
			return nil, fmt.Errorf("failed to decode failed stages: %w", err)
		}
	}
	return &run, nil
}

type summaryRepository struct {
	pool *pgxpool.Pool
}

func (r *summaryRepository) Upsert(ctx context.Context, batchID string, userID int64, summary models.UserSummary, insights *string) error {
	doc, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO analytics_summary (batch_id, user_id, summary, insights)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (batch_id, user_id)
		DO UPDATE SET summary = EXCLUDED.summary, insights = EXCLUDED.insights`,
		batchID, userID, string(doc), insights)
	if err != nil {
		return fmt.Errorf("failed to upsert summary for user %d: %w", userID, err)
	}
	return nil
}

func (r *summaryRepository) GetByBatchID(ctx context.Context, batchID string) ([]models.SummaryRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT batch_id, user_id, summary, insights
		FROM analytics_summary WHERE batch_id = $1 ORDER BY user_id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get summaries: %w", err)
	}
	defer rows.Close()

	var out []models.SummaryRecord
	for rows.Next() {
		var rec models.SummaryRecord
		var doc []byte
		if err := rows.Scan(&rec.BatchID, &rec.UserID, &doc, &rec.Insights); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		if err := json.Unmarshal(doc, &rec.Summary); err != nil {
			return nil, fmt.Errorf("failed to decode summary: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type relationshipRepository struct {
	pool *pgxpool.Pool
}

func (r *relationshipRepository) BulkInsert(ctx context.Context, batchID string, rows []models.Relationship) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{repository.TableRelationships},
		[]string{"batch_id", "user_id", "var_x", "var_y", "metric", "value", "lag"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			rel := rows[i]
			var lag *int32
			if rel.Lag != nil {
				l := int32(*rel.Lag)
				lag = &l
			}
			return []any{batchID, rel.UserID, rel.VarX, rel.VarY, rel.Metric, rel.Value, lag}, nil
		}))
	if err != nil {
		return fmt.Errorf("failed to bulk insert relationships: %w", err)
	}
	return nil
}

func (r *relationshipRepository) GetByBatchID(ctx context.Context, batchID string) ([]models.Relationship, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, var_x, var_y, metric, value, lag
		FROM analytics_relationships WHERE batch_id = $1 ORDER BY id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get relationships: %w", err)
	}
	defer rows.Close()

	var out []models.Relationship
	for rows.Next() {
		var rel models.Relationship
		var lag *int32
		if err := rows.Scan(&rel.UserID, &rel.VarX, &rel.VarY, &rel.Metric, &rel.Value, &lag); err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		if lag != nil {
			l := int(*lag)
			rel.Lag = &l
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
