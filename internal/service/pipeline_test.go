package service

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonnyWalker81/healthlytics/internal/artifact"
	"github.com/JonnyWalker81/healthlytics/internal/models"
	"github.com/JonnyWalker81/healthlytics/internal/repository"
)

// mockSource returns a fixed extract or error
type mockSource struct {
	extract models.Extract
	err     error
}

func (m *mockSource) Fetch(ctx context.Context) (models.Extract, error) {
	return m.extract, m.err
}

type mockRunRepository struct {
	mu       sync.Mutex
	created  []models.RunLog
	finished []models.RunLog
}

func (m *mockRunRepository) Create(ctx context.Context, run *models.RunLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, *run)
	return nil
}

func (m *mockRunRepository) Finish(ctx context.Context, run *models.RunLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, *run)
	return nil
}

func (m *mockRunRepository) GetByBatchID(ctx context.Context, batchID string) (*models.RunLog, error) {
	return nil, repository.ErrNotFound
}

type mockSummaryRepository struct {
	records []models.SummaryRecord
	err     error
}

func (m *mockSummaryRepository) Upsert(ctx context.Context, batchID string, userID int64, summary models.UserSummary, insights *string) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, models.SummaryRecord{BatchID: batchID, UserID: userID, Summary: summary, Insights: insights})
	return nil
}

func (m *mockSummaryRepository) GetByBatchID(ctx context.Context, batchID string) ([]models.SummaryRecord, error) {
	return m.records, nil
}

type mockRelationshipRepository struct {
	rows []models.Relationship
}

func (m *mockRelationshipRepository) BulkInsert(ctx context.Context, batchID string, rows []models.Relationship) error {
	m.rows = append(m.rows, rows...)
	return nil
}

func (m *mockRelationshipRepository) GetByBatchID(ctx context.Context, batchID string) ([]models.Relationship, error) {
	return m.rows, nil
}

type mockNarrator struct {
	panics bool
}

func (m *mockNarrator) Insights(ctx context.Context, userID int64, summary models.UserSummary) (string, error) {
	if m.panics {
		panic("narrator exploded")
	}
	if userID == 2 {
		return "", nil
	}
	return "Keep it up.", nil
}

type mockUploader struct {
	bucket, prefix, dir string
	files               int
}

func (m *mockUploader) UploadDir(ctx context.Context, localDir, bucket, prefix string) (int, error) {
	m.dir, m.bucket, m.prefix = localDir, bucket, prefix
	err := filepath.Walk(localDir, func(p string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			m.files++
		}
		return err
	})
	return m.files, err
}

type mockSink struct {
	messages []string
}

func (m *mockSink) Send(ctx context.Context, message string) error {
	m.messages = append(m.messages, message)
	return nil
}

type mockNotifier struct {
	batchID string
	users   []int64
}

func (m *mockNotifier) Notify(ctx context.Context, batchID string, userIDs []int64) error {
	m.batchID, m.users = batchID, userIDs
	return nil
}

type fixture struct {
	runs     *mockRunRepository
	sums     *mockSummaryRepository
	rels     *mockRelationshipRepository
	uploader *mockUploader
	sink     *mockSink
	notifier *mockNotifier
	narrator *mockNarrator
	source   *mockSource
	opts     Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		runs:     &mockRunRepository{},
		sums:     &mockSummaryRepository{},
		rels:     &mockRelationshipRepository{},
		uploader: &mockUploader{},
		sink:     &mockSink{},
		notifier: &mockNotifier{},
		narrator: &mockNarrator{},
		source:   &mockSource{extract: sampleExtract(30)},
		opts: Options{
			StagingDir: t.TempDir(),
			Bucket:     "artifacts",
			Prefix:     func(id string) string { return "analytics/" + id },
			MaxLag:     3,
		},
	}
}

func (f *fixture) service() *pipelineService {
	svc := NewPipelineService(Deps{
		Source:   f.source,
		Repos:    repository.NewRepositories(f.runs, f.sums, f.rels, nil),
		Narrator: f.narrator,
		Uploader: f.uploader,
		Alerts:   f.sink,
		Notifier: f.notifier,
	}, f.opts)
	return svc.(*pipelineService)
}

func ptr(v float64) *float64 { return &v }

// sampleExtract builds three users with n days of macros, activity and weight.
func sampleExtract(n int) models.Extract {
	var e models.Extract
	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	heights := map[int64]string{1: "180", 2: "165", 3: "1.75"}
	for _, uid := range []int64{1, 2, 3} {
		e.Profiles = append(e.Profiles, models.ProfileRow{UserID: uid, Height: heights[uid]})
		e.MacroTargets = append(e.MacroTargets, models.MacroTargetRow{
			UserID: uid, ProteinTarget: ptr(140), FatsTarget: ptr(70), CarbsTarget: ptr(250),
		})
		u := float64(uid)
		for i := 0; i < n; i++ {
			x := float64(i)
			d := start.AddDate(0, 0, i)
			e.Macros = append(e.Macros, models.MacroRow{
				UserID:  uid,
				Date:    &d,
				Protein: ptr(120 + 15*math.Sin(x+u)),
				Fats:    ptr(60 + 8*math.Cos(0.7*x*u)),
				Carbs:   ptr(220 + 30*math.Sin(1.3*x)),
			})
			e.Activities = append(e.Activities, models.ActivityRow{
				UserID:          uid,
				Date:            &d,
				ActivityType:    "run",
				DurationMinutes: ptr(25 + 10*math.Cos(0.9*x+u) + x/3),
			})
			e.Weights = append(e.Weights, models.WeightRow{
				UserID: uid,
				Date:   &d,
				Weight: ptr(70 + 5*u - 0.05*x + 0.4*math.Sin(0.4*x*u)),
			})
		}
	}
	return e
}

func TestRun_HappyPath(t *testing.T) {
	f := newFixture(t)
	svc := f.service()

	result, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Regexp(t, `^batch_\d{8}_\d{6}_[0-9a-f]{8}$`, result.BatchID)
	assert.Empty(t, result.FailedStages)
	assert.Equal(t, models.RunStatusFinished, result.Status)
	assert.Empty(t, f.sink.messages)

	require.Len(t, f.runs.created, 1)
	require.Len(t, f.runs.finished, 1)
	assert.Equal(t, models.RunStatusRunning, f.runs.created[0].Status)
	assert.Equal(t, 3, f.runs.finished[0].RowsProcessed)
	assert.NotNil(t, f.runs.finished[0].FinishedAt)

	require.Len(t, f.sums.records, 3)
	byUser := map[int64]models.SummaryRecord{}
	for _, r := range f.sums.records {
		byUser[r.UserID] = r
	}
	require.NotNil(t, byUser[1].Insights)
	assert.Equal(t, "Keep it up.", *byUser[1].Insights)
	assert.Nil(t, byUser[2].Insights)
	assert.Equal(t, 30, byUser[3].Summary.Days)

	assert.Equal(t, result.BatchID, f.notifier.batchID)
	assert.Equal(t, []int64{1, 2, 3}, f.notifier.users)

	metrics := map[string]int{}
	for _, r := range f.rels.rows {
		metrics[r.Metric]++
		if r.Metric == models.MetricCrossLag {
			require.NotNil(t, r.UserID)
			require.NotNil(t, r.Lag)
		} else {
			assert.Nil(t, r.UserID)
			assert.Nil(t, r.Lag)
		}
	}
	assert.Positive(t, metrics[models.MetricPearson])
	assert.Equal(t, metrics[models.MetricPearson], metrics[models.MetricSpearman])
	assert.Equal(t, 3*(2*3+1), metrics[models.MetricCrossLag])

	assert.Contains(t, result.Artifacts, artifact.FeaturesFile)
	assert.Contains(t, result.Artifacts, "macros_daily.parquet")
	assert.Contains(t, result.Artifacts, "weight_monthly.parquet")
	assert.Contains(t, result.Artifacts, "relations/corr_pearson.parquet")
	assert.Contains(t, result.Artifacts, "insights/openai_insights.parquet")
	assert.NotContains(t, result.Artifacts, "sleep_daily.parquet")

	batchDir := filepath.Join(f.opts.StagingDir, result.BatchID)
	assert.FileExists(t, filepath.Join(batchDir, "validation.json"))
	assert.FileExists(t, filepath.Join(batchDir, artifact.StageMacros))
	assert.FileExists(t, filepath.Join(batchDir, "metrics", artifact.ManifestFile))

	assert.Equal(t, "artifacts", f.uploader.bucket)
	assert.Equal(t, "analytics/"+result.BatchID, f.uploader.prefix)
	assert.Equal(t, filepath.Join(batchDir, "metrics"), f.uploader.dir)
	assert.Equal(t, len(result.Artifacts)+1, result.Uploaded)
}

func TestRun_UserFilter(t *testing.T) {
	f := newFixture(t)
	uid := int64(2)

	result, err := f.service().Run(context.Background(), RunOptions{UserID: &uid})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFinished, result.Status)
	require.Len(t, f.sums.records, 1)
	assert.Equal(t, int64(2), f.sums.records[0].UserID)
	assert.Equal(t, []int64{2}, f.notifier.users)
}

func TestRun_IngestFailure(t *testing.T) {
	f := newFixture(t)
	f.source.err = errors.New("connection refused")

	result, err := f.service().Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusError, result.Status)
	assert.Equal(t, []string{StageIngest}, result.FailedStages)
	assert.Contains(t, result.Error, "ingest: failed to fetch raw tables: connection refused")

	require.Len(t, f.sink.messages, 1)
	assert.True(t, strings.HasPrefix(f.sink.messages[0], "Analytics batch "+result.BatchID+" ended with errors: ingest:"))
	assert.Empty(t, f.sums.records)
	assert.Empty(t, f.notifier.users)
	require.Len(t, f.runs.finished, 1)
	assert.Equal(t, models.RunStatusError, f.runs.finished[0].Status)
}

func TestRun_StagePanicIsPartial(t *testing.T) {
	f := newFixture(t)
	f.narrator.panics = true

	result, err := f.service().Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPartial, result.Status)
	assert.Equal(t, []string{StageInsights}, result.FailedStages)
	assert.Contains(t, result.Error, "panic: narrator exploded")

	// Summaries are still persisted, without text.
	require.Len(t, f.sums.records, 3)
	for _, r := range f.sums.records {
		assert.Nil(t, r.Insights)
	}
	assert.Contains(t, result.Artifacts, "relations/vif.parquet")
	require.Len(t, f.sink.messages, 1)
	assert.Contains(t, f.sink.messages[0], "ended with errors")
}

func TestRun_SummaryFailureIsError(t *testing.T) {
	f := newFixture(t)
	f.sums.err = errors.New("db down")

	result, err := f.service().Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusError, result.Status)
	assert.Equal(t, []string{StageSummaries}, result.FailedStages)
	assert.Empty(t, f.notifier.users)
	assert.NotEmpty(t, f.rels.rows)
}

func TestRun_DurationAlert(t *testing.T) {
	f := newFixture(t)
	f.opts.MaxDuration = 30 * time.Second
	svc := f.service()

	clock := time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	result, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFinished, result.Status)
	require.Len(t, f.sink.messages, 1)
	assert.True(t, strings.HasPrefix(f.sink.messages[0], "Analytics batch "+result.BatchID+" exceeded duration threshold: "))
	assert.True(t, strings.HasSuffix(f.sink.messages[0], "s"))
}

func TestRun_NoBucketSkipsUpload(t *testing.T) {
	f := newFixture(t)
	f.opts.Bucket = ""

	result, err := f.service().Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Zero(t, result.Uploaded)
	assert.Empty(t, f.uploader.bucket)
	assert.NotEmpty(t, result.Artifacts)
}

func TestRun_EmptyExtract(t *testing.T) {
	f := newFixture(t)
	f.source.extract = models.Extract{}

	result, err := f.service().Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFinished, result.Status)
	assert.Empty(t, result.Artifacts)
	assert.Empty(t, f.sums.records)
	assert.Empty(t, f.rels.rows)
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	svc.mu.Lock()
	defer svc.mu.Unlock()

	result, err := svc.Run(context.Background(), RunOptions{})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrRunInProgress)
}

func TestRelationshipRows(t *testing.T) {
	one := 1.0
	half := 0.5
	corr := models.CorrelationMatrices{
		Pearson: models.Matrix{
			Columns: []string{"a", "b"},
			Values:  [][]*float64{{&one, &half}, {&half, &one}},
		},
		Spearman: models.Matrix{
			Columns: []string{"a", "b"},
			Values:  [][]*float64{{&one, nil}, {nil, &one}},
		},
	}
	rows := RelationshipRows(corr, []models.CrossLagPoint{{UserID: 7, Lag: 2, Corr: &half}})
	require.Len(t, rows, 3)

	assert.Equal(t, models.Relationship{VarX: "a", VarY: "b", Metric: models.MetricPearson, Value: &half}, rows[0])
	assert.Equal(t, models.MetricSpearman, rows[1].Metric)
	assert.Nil(t, rows[1].Value)
	require.NotNil(t, rows[2].UserID)
	assert.Equal(t, int64(7), *rows[2].UserID)
	assert.Equal(t, 2, *rows[2].Lag)
	assert.Equal(t, models.ColCalories, rows[2].VarX)
	assert.Equal(t, models.ColWeight, rows[2].VarY)
}

func TestRunStatus(t *testing.T) {
	assert.Equal(t, models.RunStatusFinished, runStatus(nil))
	assert.Equal(t, models.RunStatusPartial, runStatus([]string{StageRelations, StageStaging}))
	assert.Equal(t, models.RunStatusError, runStatus([]string{StageRelations, StageRelationships}))
}
