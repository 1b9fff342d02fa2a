package service

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/JonnyWalker81/healthlytics/internal/alert"
	"github.com/JonnyWalker81/healthlytics/internal/artifact"
	"github.com/JonnyWalker81/healthlytics/internal/config"
	"github.com/JonnyWalker81/healthlytics/internal/extract"
	"github.com/JonnyWalker81/healthlytics/internal/features"
	"github.com/JonnyWalker81/healthlytics/internal/insights"
	"github.com/JonnyWalker81/healthlytics/internal/logger"
	"github.com/JonnyWalker81/healthlytics/internal/models"
	"github.com/JonnyWalker81/healthlytics/internal/relations"
	"github.com/JonnyWalker81/healthlytics/internal/repository"
	"github.com/JonnyWalker81/healthlytics/internal/storage"
	"github.com/JonnyWalker81/healthlytics/internal/telemetry"
	"github.com/JonnyWalker81/healthlytics/internal/timeseries"
)

// Stage names recorded on the run log.
const (
	StageIngest        = "ingest"
	StageValidate      = "validate"
	StageStaging       = "staging"
	StageAggregates    = "aggregates"
	StageFeatures      = "features"
	StageRelations     = "relations"
	StageInsights      = "insights"
	StageSummaries     = "summaries"
	StageRelationships = "relationships"
	StageManifest      = "manifest"
)

// Failures in these stages end the run as error rather than partial.
var fatalStages = map[string]bool{
	StageIngest:        true,
	StageSummaries:     true,
	StageRelationships: true,
}

// Options tunes the pipeline. The core never reads the environment.
type Options struct {
	StagingDir   string
	Bucket       string
	Prefix       func(batchID string) string
	MaxDuration  time.Duration
	UserFilter   int64
	Components   int
	Clusters     int
	MaxLag       int
	DeviationStd float64
}

// OptionsFromConfig maps the loaded configuration onto pipeline options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		StagingDir:   cfg.Analytics.StagingDir,
		Bucket:       cfg.Storage.Bucket,
		Prefix:       cfg.StoragePrefix,
		MaxDuration:  cfg.MaxDuration(),
		UserFilter:   cfg.Analytics.UserFilter,
		Components:   cfg.Analytics.Components,
		Clusters:     cfg.Analytics.Clusters,
		MaxLag:       cfg.Analytics.MaxLag,
		DeviationStd: cfg.Analytics.DeviationStd,
	}
}

// Deps are the pipeline's collaborators. Narrator, Uploader, Alerts,
// Notifier and Metrics may be nil.
type Deps struct {
	Source   extract.Source
	Repos    *repository.Repositories
	Narrator insights.Narrator
	Uploader storage.Uploader
	Alerts   alert.Sink
	Notifier alert.Notifier
	Metrics  *telemetry.Metrics
}

type pipelineService struct {
	deps      Deps
	opts      Options
	validator *extract.Validator
	now       func() time.Time
	mu        sync.Mutex
}

// NewPipelineService creates a new pipeline service
func NewPipelineService(deps Deps, opts Options) PipelineService {
	if opts.Components <= 0 {
		opts.Components = 5
	}
	if opts.Clusters <= 0 {
		opts.Clusters = 5
	}
	if opts.MaxLag < 0 {
		opts.MaxLag = 0
	}
	if opts.DeviationStd <= 0 {
		opts.DeviationStd = 1
	}
	if opts.Prefix == nil {
		opts.Prefix = func(batchID string) string { return "analytics/" + batchID }
	}
	return &pipelineService{
		deps:      deps,
		opts:      opts,
		validator: extract.NewValidator(),
		now:       time.Now,
	}
}

// batch carries the state of one run between stages.
type batch struct {
	id         string
	dir        string
	writer     *artifact.Writer
	run        *models.RunLog
	extract    models.Extract
	aggs       models.Aggregates
	features   models.FeatureTable
	summaries  []models.UserSummary
	narratives map[int64]string
	corr       models.CorrelationMatrices
	crossLag   []models.CrossLagPoint
}

// Run executes one batch end to end. Once a batch id exists the result is
// always returned; stage failures are reported on it rather than as an error.
func (s *pipelineService) Run(ctx context.Context, opts RunOptions) (*models.RunResult, error) {
	if !s.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.mu.Unlock()

	started := s.now()
	b := &batch{id: NewBatchID(started)}
	b.dir = filepath.Join(s.opts.StagingDir, b.id)
	b.writer = artifact.NewWriter(filepath.Join(b.dir, "metrics"))
	b.run = &models.RunLog{BatchID: b.id, StartedAt: started.UTC(), Status: models.RunStatusRunning}

	ctx = logger.WithBatchID(ctx, b.id)
	log := logger.Ctx(ctx)
	log.Info("analytics run started", logger.String("staging_dir", b.dir))

	if err := s.deps.Repos.Runs.Create(ctx, b.run); err != nil {
		msg := err.Error()
		return &models.RunResult{BatchID: b.id, Status: models.RunStatusError, Error: msg},
			fmt.Errorf("failed to create run record: %w", err)
	}

	if s.stage(ctx, b, StageIngest, s.ingest) {
		userFilter := s.opts.UserFilter
		if opts.UserID != nil {
			userFilter = *opts.UserID
		}
		if userFilter != 0 {
			b.extract = b.extract.FilterUser(userFilter)
			log.Info("user filter applied", logger.Int64("user_id", userFilter), logger.Int("rows", b.extract.Rows()))
		}

		s.stage(ctx, b, StageAggregates, s.aggregate)
		s.stage(ctx, b, StageFeatures, s.merge)
		if b.features.Empty() {
			log.Warn("no derived features; skipping relations and insights")
		} else {
			s.stage(ctx, b, StageRelations, s.relate)
			s.stage(ctx, b, StageInsights, s.insights)
		}
		s.stage(ctx, b, StageSummaries, s.persistSummaries)
		s.stage(ctx, b, StageRelationships, s.persistRelationships)
	}

	b.run.Status = runStatus(b.run.FailedStages)
	finished := s.now()
	b.run.FinishedAt = &finished
	if err := s.deps.Repos.Runs.Finish(ctx, b.run); err != nil {
		log.Error("failed to finish run record", logger.Err(err))
	}

	elapsed := finished.Sub(started)
	if s.opts.MaxDuration > 0 && elapsed > s.opts.MaxDuration {
		s.alert(ctx, alert.DurationExceeded(b.id, elapsed))
	}
	if b.run.Status != models.RunStatusFinished {
		s.alert(ctx, alert.EndedWithErrors(b.id, deref(b.run.Error)))
	}

	result := &models.RunResult{
		BatchID:      b.id,
		Status:       b.run.Status,
		Error:        deref(b.run.Error),
		FailedStages: b.run.FailedStages,
	}

	manifest, err := b.writer.WriteManifest(b.id)
	if err != nil {
		log.Error("failed to write manifest", logger.Err(err))
	}
	result.Artifacts = manifest.Files
	result.Uploaded = s.upload(ctx, b)

	s.deps.Metrics.ObserveRun(string(b.run.Status), b.run.RowsProcessed, result.Uploaded, finished)
	log.Info("analytics run finished",
		logger.String("status", string(b.run.Status)),
		logger.Int("rows_processed", b.run.RowsProcessed),
		logger.Int("artifacts", len(manifest.Files)),
		logger.Duration("duration", elapsed),
	)
	return result, nil
}

// stage runs fn, converting a panic into an error. A failure is logged and
// recorded on the run; the first message becomes the run error. It reports
// whether the stage succeeded.
func (s *pipelineService) stage(ctx context.Context, b *batch, name string, fn func(context.Context, *batch) error) (ok bool) {
	start := s.now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		s.deps.Metrics.ObserveStage(name, s.now().Sub(start), err != nil)
		if err != nil {
			logger.Ctx(ctx).Error("stage failed", logger.String("stage", name), logger.Err(err))
			b.run.FailedStages = append(b.run.FailedStages, name)
			if b.run.Error == nil {
				msg := name + ": " + err.Error()
				b.run.Error = &msg
			}
		}
		ok = err == nil
	}()
	err = fn(ctx, b)
	return
}

func runStatus(failed []string) models.RunStatus {
	if len(failed) == 0 {
		return models.RunStatusFinished
	}
	for _, f := range failed {
		if fatalStages[f] {
			return models.RunStatusError
		}
	}
	return models.RunStatusPartial
}

func (s *pipelineService) ingest(ctx context.Context, b *batch) error {
	raw, err := s.deps.Source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch raw tables: %w", err)
	}
	clean, rejected := s.validator.Clean(raw)
	b.extract = clean

	log := logger.Ctx(ctx)
	log.Info("raw tables fetched", logger.Int("rows", raw.Rows()), logger.Int("kept", clean.Rows()))

	// Report and staging are diagnostics; their failures mark the run partial.
	s.stage(ctx, b, StageValidate, func(ctx context.Context, b *batch) error {
		report := extract.Describe(b.id, raw, rejected)
		path, err := extract.WriteReport(b.dir, report)
		if err != nil {
			return err
		}
		for _, t := range report.Tables {
			log.Info("validation",
				logger.String("table", t.Name),
				logger.Int("rows", t.Rows),
				logger.Int("duplicates", t.DuplicateRows),
				logger.Int("rejected", t.Rejected),
			)
		}
		log.Debug("validation report written", logger.String("path", path))
		return nil
	})
	s.stage(ctx, b, StageStaging, func(ctx context.Context, b *batch) error {
		return artifact.WriteStaging(b.dir, b.extract)
	})
	return nil
}

func (s *pipelineService) aggregate(ctx context.Context, b *batch) error {
	b.aggs = timeseries.Aggregate(b.extract)
	return b.writer.WriteAggregates(b.aggs)
}

func (s *pipelineService) merge(ctx context.Context, b *batch) error {
	var (
		macros     []models.MacroAggregate
		activities []models.ActivityAggregate
		weights    []models.WeightDaily
	)
	if b.aggs.Macros != nil {
		macros = b.aggs.Macros.Daily
	}
	if b.aggs.Exercise != nil {
		activities = b.aggs.Exercise.Daily
	}
	if b.aggs.Weight != nil {
		weights = b.aggs.Weight.Daily
	}
	b.features = features.Merge(b.extract.Profiles, macros, activities, weights)
	logger.Ctx(ctx).Info("derived features built",
		logger.Int("rows", len(b.features.Rows)),
		logger.Int("users", len(b.features.UserIDs())),
	)
	return b.writer.WriteFeatures(b.features)
}

var coreColumns = []string{models.ColCalories, models.ColTotalMinutes, models.ColWeight}

func (s *pipelineService) relate(ctx context.Context, b *batch) error {
	t := b.features
	cols := t.Present(coreColumns...)

	r := artifact.Relations{
		Correlations:     relations.CorrelationMatrices(t),
		MutualInfo:       relations.MutualInformation(t),
		Decomposition:    relations.PCAICA(t, s.opts.Components),
		VIF:              relations.VIFScores(t),
		PairwiseOverTime: relations.PairwiseCorrelationOverTime(t, cols),
		Deviations:       relations.ClusterMultivariatePatterns(t, cols, s.opts.DeviationStd),
		DeviationColumns: cols,
	}
	if t.Has(models.ColCalories) && t.Has(models.ColWeight) {
		r.CrossLag = relations.CrossLag(t, models.ColCalories, models.ColWeight, s.opts.MaxLag)
	}
	b.corr = r.Correlations
	b.crossLag = r.CrossLag

	logger.Ctx(ctx).Info("relations computed",
		logger.Int("columns", len(r.Correlations.Pearson.Columns)),
		logger.Int("matrix_rank", relations.MatrixRank(t)),
		logger.Int("pca_components", r.Decomposition.PCA.Components()),
	)
	return b.writer.WriteRelations(r)
}

func (s *pipelineService) insights(ctx context.Context, b *batch) error {
	t := b.features
	cols := t.Present(coreColumns...)

	b.summaries = insights.Summarize(t)
	narratives := insights.GenerateInsights(ctx, s.deps.Narrator, b.summaries)
	b.narratives = insights.ByUser(narratives)

	in := artifact.Insights{
		Trends:         insights.DetectTrends(t),
		Patterns:       insights.FindRecurringSequences(t),
		Clusters:       insights.ClusterUsers(t, cols, s.opts.Clusters),
		ClusterColumns: cols,
		Impact:         insights.ImpactOnWeight(t),
		Narratives:     narratives,
	}
	logger.Ctx(ctx).Info("insights computed",
		logger.Int("trend_rows", len(in.Trends)),
		logger.Int("clusters", len(in.Clusters)),
		logger.Int("narratives", len(b.narratives)),
	)
	return b.writer.WriteInsights(in)
}

func (s *pipelineService) persistSummaries(ctx context.Context, b *batch) error {
	summaries := b.summaries
	if summaries == nil && !b.features.Empty() {
		summaries = insights.Summarize(b.features)
	}

	var users []int64
	for _, sum := range summaries {
		var text *string
		if v, ok := b.narratives[sum.UserID]; ok {
			text = &v
		}
		if err := s.deps.Repos.Summaries.Upsert(ctx, b.id, sum.UserID, sum, text); err != nil {
			return fmt.Errorf("failed to persist summary for user %d: %w", sum.UserID, err)
		}
		users = append(users, sum.UserID)
		b.run.RowsProcessed++
	}

	if len(users) > 0 && s.deps.Notifier != nil {
		slices.Sort(users)
		if err := s.deps.Notifier.Notify(ctx, b.id, users); err != nil {
			logger.Ctx(ctx).Warn("server notify failed", logger.Err(err))
		}
	}
	return nil
}

func (s *pipelineService) persistRelationships(ctx context.Context, b *batch) error {
	rows := RelationshipRows(b.corr, b.crossLag)
	if len(rows) == 0 {
		return nil
	}
	if err := s.deps.Repos.Relationships.BulkInsert(ctx, b.id, rows); err != nil {
		return fmt.Errorf("failed to persist relationships: %w", err)
	}
	logger.Ctx(ctx).Info("relationships persisted", logger.Int("rows", len(rows)))
	return nil
}

// RelationshipRows flattens the upper triangles of both correlation matrices
// and the per-user calories to weight cross-lag points.
func RelationshipRows(corr models.CorrelationMatrices, crossLag []models.CrossLagPoint) []models.Relationship {
	var rows []models.Relationship
	for _, m := range []struct {
		metric string
		matrix models.Matrix
	}{
		{models.MetricPearson, corr.Pearson},
		{models.MetricSpearman, corr.Spearman},
	} {
		for _, c := range m.matrix.UpperTriangle() {
			rows = append(rows, models.Relationship{VarX: c.VarX, VarY: c.VarY, Metric: m.metric, Value: c.Value})
		}
	}
	for _, p := range crossLag {
		uid, lag := p.UserID, p.Lag
		rows = append(rows, models.Relationship{
			UserID: &uid,
			VarX:   models.ColCalories,
			VarY:   models.ColWeight,
			Metric: models.MetricCrossLag,
			Value:  p.Corr,
			Lag:    &lag,
		})
	}
	return rows
}

func (s *pipelineService) upload(ctx context.Context, b *batch) int {
	log := logger.Ctx(ctx)
	if s.deps.Uploader == nil || s.opts.Bucket == "" {
		log.Info("artifact upload disabled")
		return 0
	}
	prefix := s.opts.Prefix(b.id)
	n, err := s.deps.Uploader.UploadDir(ctx, b.writer.Root(), s.opts.Bucket, prefix)
	if err != nil {
		log.Warn("artifact upload failed", logger.Err(err), logger.Int("uploaded", n))
		return n
	}
	log.Info("artifacts uploaded",
		logger.String("bucket", s.opts.Bucket),
		logger.String("prefix", prefix),
		logger.Int("files", n),
	)
	return n
}

func (s *pipelineService) alert(ctx context.Context, msg string) {
	if s.deps.Alerts == nil {
		return
	}
	if err := s.deps.Alerts.Send(ctx, msg); err != nil {
		logger.Ctx(ctx).Warn("failed to send alert", logger.Err(err))
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
