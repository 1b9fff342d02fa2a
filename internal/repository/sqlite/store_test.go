package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonnyWalker81/healthlytics/internal/models"
	"github.com/JonnyWalker81/healthlytics/internal/repository"
)

func newRepos(t *testing.T) *repository.Repositories {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "analytics.db"))
	require.NoError(t, err)
	repos := NewRepositories(db)
	t.Cleanup(func() { _ = repos.Close() })
	return repos
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)

	started := time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC)
	run := &models.RunLog{BatchID: "batch_20240501_020000_abcd1234", StartedAt: started, Status: models.RunStatusRunning}
	require.NoError(t, repos.Runs.Create(ctx, run))
	// Creating twice is a no-op.
	require.NoError(t, repos.Runs.Create(ctx, run))

	got, err := repos.Runs.GetByBatchID(ctx, run.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, got.Status)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Nil(t, got.FinishedAt)
	assert.Empty(t, got.FailedStages)

	finished := started.Add(90 * time.Second)
	msg := "relations: singular matrix"
	run.FinishedAt = &finished
	run.Status = models.RunStatusPartial
	run.RowsProcessed = 3
	run.Error = &msg
	run.FailedStages = []string{"relations"}
	require.NoError(t, repos.Runs.Finish(ctx, run))

	got, err = repos.Runs.GetByBatchID(ctx, run.BatchID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPartial, got.Status)
	assert.Equal(t, 3, got.RowsProcessed)
	require.NotNil(t, got.Error)
	assert.Equal(t, msg, *got.Error)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, finished.Equal(*got.FinishedAt))
	assert.Equal(t, []string{"relations"}, got.FailedStages)
}

func TestRunNotFound(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)

	_, err := repos.Runs.GetByBatchID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	err = repos.Runs.Finish(ctx, &models.RunLog{BatchID: "missing", Status: models.RunStatusFinished})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSummaryUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)

	mean := 2100.0
	require.NoError(t, repos.Summaries.Upsert(ctx, "b1", 7, models.UserSummary{UserID: 7, Days: 10}, nil))
	text := "You ate consistently."
	require.NoError(t, repos.Summaries.Upsert(ctx, "b1", 7, models.UserSummary{UserID: 7, Days: 12, CaloriesMean: &mean}, &text))
	require.NoError(t, repos.Summaries.Upsert(ctx, "b1", 3, models.UserSummary{UserID: 3, Days: 5}, nil))

	recs, err := repos.Summaries.GetByBatchID(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(3), recs[0].UserID)
	assert.Nil(t, recs[0].Insights)
	assert.Equal(t, 12, recs[1].Summary.Days)
	assert.InDelta(t, 2100, *recs[1].Summary.CaloriesMean, 1e-9)
	assert.Equal(t, text, *recs[1].Insights)
}

func TestRelationshipsBulkInsert(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)

	uid := int64(4)
	lag := 2
	corr := 0.42
	rows := []models.Relationship{
		{VarX: models.ColCalories, VarY: models.ColWeight, Metric: models.MetricPearson, Value: &corr},
		{VarX: models.ColCalories, VarY: models.ColBMI, Metric: models.MetricSpearman, Value: nil},
		{UserID: &uid, VarX: models.ColCalories, VarY: models.ColWeight, Metric: models.MetricCrossLag, Value: &corr, Lag: &lag},
	}
	require.NoError(t, repos.Relationships.BulkInsert(ctx, "b2", rows))
	require.NoError(t, repos.Relationships.BulkInsert(ctx, "b2", nil))

	got, err := repos.Relationships.GetByBatchID(ctx, "b2")
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}
