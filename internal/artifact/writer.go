// Package artifact writes pipeline tables to parquet files under a batch's
// metrics root and reads staged extracts back.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/JonnyWalker81/healthlytics/internal/models"
)

// Artifact paths relative to the metrics root.
const (
	FeaturesFile = "derived_features.parquet"
	ManifestFile = "manifest.json"
	RelationsDir = "relations"
	InsightsDir  = "insights"
)

// Relations collects the relation tables written for a batch.
type Relations struct {
	Correlations     models.CorrelationMatrices
	MutualInfo       models.Matrix
	Decomposition    models.Decomposition
	VIF              []models.VIFScore
	PairwiseOverTime []models.PairCorrelation
	CrossLag         []models.CrossLagPoint
	Deviations       []models.DeviationFlag
	DeviationColumns []string
}

// Insights collects the insight tables written for a batch.
type Insights struct {
	Trends         []models.TrendPoint
	Patterns       []models.PatternDay
	Clusters       []models.UserCluster
	ClusterColumns []string
	Impact         []models.ImpactCoefficient
	Narratives     []models.UserInsight
}

// Manifest lists every artifact of a batch.
type Manifest struct {
	BatchID     string    `json:"batch_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Files       []string  `json:"files"`
}

// Writer writes tables under one metrics root and remembers what it wrote.
// Empty tables are skipped.
type Writer struct {
	root  string
	mu    sync.Mutex
	files []string
}

// NewWriter creates a writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{root: dir}
}

// Root returns the metrics root directory.
func (w *Writer) Root() string { return w.root }

// Files returns the relative paths written so far, sorted.
func (w *Writer) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := append([]string(nil), w.files...)
	sort.Strings(out)
	return out
}

func writeTable[T any](w *Writer, rel string, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	path := filepath.Join(w.root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	w.mu.Lock()
	w.files = append(w.files, filepath.ToSlash(rel))
	w.mu.Unlock()
	return nil
}

// AggregateFile names a domain/period table, e.g. exercise_weekly.parquet.
func AggregateFile(domain string, p models.Period) string {
	return fmt.Sprintf("%s_%s.parquet", domain, p)
}

// WriteAggregates writes every produced domain/period table.
func (w *Writer) WriteAggregates(a models.Aggregates) error {
	if a.Sleep != nil {
		for p, rows := range map[models.Period][]models.SleepAggregate{
			models.PeriodDaily: a.Sleep.Daily, models.PeriodWeekly: a.Sleep.Weekly, models.PeriodMonthly: a.Sleep.Monthly,
		} {
			recs := make([]sleepRecord, len(rows))
			for i, r := range rows {
				recs[i] = sleepRecord{
					UserID: r.UserID, PeriodStart: dateString(r.PeriodStart), PeriodEnd: dateString(r.PeriodEnd),
					AvgHours: r.AvgHours, StdHours: r.StdHours, MinHours: r.MinHours, MaxHours: r.MaxHours,
				}
			}
			if err := writeTable(w, AggregateFile(models.DomainSleep, p), recs); err != nil {
				return err
			}
		}
	}
	if a.Macros != nil {
		for p, rows := range map[models.Period][]models.MacroAggregate{
			models.PeriodDaily: a.Macros.Daily, models.PeriodWeekly: a.Macros.Weekly, models.PeriodMonthly: a.Macros.Monthly,
		} {
			recs := make([]macroRecord, len(rows))
			for i, r := range rows {
				recs[i] = macroRecord{
					UserID: r.UserID, PeriodStart: dateString(r.PeriodStart), PeriodEnd: dateString(r.PeriodEnd),
					Calories: r.Calories, Protein: r.Protein, Fats: r.Fats, Carbs: r.Carbs,
					ProteinPctGoal: r.ProteinPctGoal, FatsPctGoal: r.FatsPctGoal, CarbsPctGoal: r.CarbsPctGoal,
					ProteinRatio: r.ProteinRatio, FatsRatio: r.FatsRatio, CarbsRatio: r.CarbsRatio,
				}
			}
			if err := writeTable(w, AggregateFile(models.DomainMacros, p), recs); err != nil {
				return err
			}
		}
	}
	if a.Exercise != nil {
		for p, rows := range map[models.Period][]models.ActivityAggregate{
			models.PeriodDaily: a.Exercise.Daily, models.PeriodWeekly: a.Exercise.Weekly, models.PeriodMonthly: a.Exercise.Monthly,
		} {
			recs := make([]activityRecord, len(rows))
			for i, r := range rows {
				recs[i] = activityRecord{
					UserID: r.UserID, PeriodStart: dateString(r.PeriodStart), PeriodEnd: dateString(r.PeriodEnd),
					Sessions: r.Sessions, TotalMinutes: r.TotalMinutes, AvgIntensity: r.AvgIntensity,
				}
			}
			if err := writeTable(w, AggregateFile(models.DomainExercise, p), recs); err != nil {
				return err
			}
		}
	}
	if a.Weight != nil {
		daily := make([]weightRecord, len(a.Weight.Daily))
		for i, r := range a.Weight.Daily {
			d := dateString(r.Date)
			daily[i] = weightRecord{UserID: r.UserID, PeriodStart: d, PeriodEnd: d, Weight: r.Weight, WMA7: r.WMA7, WRollStd7: r.WRollStd7, W7dChange: r.W7dChange}
		}
		if err := writeTable(w, AggregateFile(models.DomainWeight, models.PeriodDaily), daily); err != nil {
			return err
		}
		for p, rows := range map[models.Period][]models.WeightAggregate{
			models.PeriodWeekly: a.Weight.Weekly, models.PeriodMonthly: a.Weight.Monthly,
		} {
			recs := make([]weightRecord, len(rows))
			for i, r := range rows {
				recs[i] = weightRecord{
					UserID: r.UserID, PeriodStart: dateString(r.PeriodStart), PeriodEnd: dateString(r.PeriodEnd),
					Weight: r.Weight, WMA7: r.WMA7, WRollStd7: r.WRollStd7, W7dChange: r.W7dChange,
				}
			}
			if err := writeTable(w, AggregateFile(models.DomainWeight, p), recs); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteFeatures writes the wide feature table.
func (w *Writer) WriteFeatures(t models.FeatureTable) error {
	recs := make([]featureRecord, len(t.Rows))
	for i, r := range t.Rows {
		recs[i] = featureRecord{
			UserID: r.UserID, Date: dateString(r.Date),
			Calories: r.Calories, Protein: r.Protein, Fats: r.Fats, Carbs: r.Carbs,
			TotalMinutes: r.TotalMinutes, AvgIntensity: r.AvgIntensity,
			Weight: r.Weight, WMA7: r.WMA7, HeightM: r.HeightM, BMI: r.BMI,
			CaloriesOutEst: r.CaloriesOutEst, EnergyBalance: r.EnergyBalance, SleepLag1: r.SleepLag1,
			CaloriesLag1: r.CaloriesLag1, TotalMinutesLag1: r.TotalMinutesLag1, WeightLag1: r.WeightLag1,
			CaloriesMA7: r.CaloriesMA7, CaloriesStd7: r.CaloriesStd7,
			TotalMinutesMA7: r.TotalMinutesMA7, TotalMinutesStd7: r.TotalMinutesStd7,
		}
	}
	return writeTable(w, FeaturesFile, recs)
}

// ReadFeatures loads a derived_features.parquet file. Every column is
// reported as emitted since the file schema is fixed.
func ReadFeatures(path string) (models.FeatureTable, error) {
	recs, err := parquet.ReadFile[featureRecord](path)
	if err != nil {
		return models.FeatureTable{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	t := models.FeatureTable{Rows: make([]models.FeatureRow, 0, len(recs))}
	for _, r := range recs {
		d, ok := models.ParseDate(r.Date)
		if !ok {
			continue
		}
		t.Rows = append(t.Rows, models.FeatureRow{
			UserID: r.UserID, Date: d,
			Calories: r.Calories, Protein: r.Protein, Fats: r.Fats, Carbs: r.Carbs,
			TotalMinutes: r.TotalMinutes, AvgIntensity: r.AvgIntensity,
			Weight: r.Weight, WMA7: r.WMA7, HeightM: r.HeightM, BMI: r.BMI,
			CaloriesOutEst: r.CaloriesOutEst, EnergyBalance: r.EnergyBalance, SleepLag1: r.SleepLag1,
			CaloriesLag1: r.CaloriesLag1, TotalMinutesLag1: r.TotalMinutesLag1, WeightLag1: r.WeightLag1,
			CaloriesMA7: r.CaloriesMA7, CaloriesStd7: r.CaloriesStd7,
			TotalMinutesMA7: r.TotalMinutesMA7, TotalMinutesStd7: r.TotalMinutesStd7,
		})
	}
	t.Columns = []string{
		models.ColCalories, models.ColProtein, models.ColFats, models.ColCarbs,
		models.ColTotalMinutes, models.ColAvgIntensity, models.ColWeight, models.ColWMA7,
		models.ColHeightM, models.ColBMI, models.ColCaloriesOutEst, models.ColEnergyBalance,
		models.ColSleepLag1, models.ColCaloriesLag1, models.ColTotalMinutesLag1, models.ColWeightLag1,
		models.ColCaloriesMA7, models.ColCaloriesStd7, models.ColTotalMinutesMA7, models.ColTotalMinutesStd7,
	}
	return t, nil
}

func matrixRecords(m models.Matrix) []matrixRecord {
	cells := m.Cells()
	out := make([]matrixRecord, len(cells))
	for i, c := range cells {
		out[i] = matrixRecord{VarX: c.VarX, VarY: c.VarY, Value: c.Value}
	}
	return out
}

func projectionRecords(p models.Projection) []projectionRecord {
	var out []projectionRecord
	for i, key := range p.Rows {
		for j, v := range p.Scores[i] {
			out = append(out, projectionRecord{UserID: key.UserID, Date: dateString(key.Date), Component: int32(j), Value: v})
		}
	}
	return out
}

// WriteRelations writes the relations/ tables.
func (w *Writer) WriteRelations(r Relations) error {
	rel := func(name string) string { return filepath.Join(RelationsDir, name+".parquet") }

	variance := make([]explainedVarianceRecord, len(r.Decomposition.ExplainedVarianceRatio))
	for i, v := range r.Decomposition.ExplainedVarianceRatio {
		variance[i] = explainedVarianceRecord{Component: int32(i), Ratio: v}
	}
	vif := make([]vifRecord, len(r.VIF))
	for i, v := range r.VIF {
		vif[i] = vifRecord{Feature: v.Feature, VIF: v.VIF}
	}
	pairs := make([]pairCorrRecord, len(r.PairwiseOverTime))
	for i, p := range r.PairwiseOverTime {
		pairs[i] = pairCorrRecord{VarX: p.VarX, VarY: p.VarY, Corr: p.Corr}
	}
	lags := make([]crossLagRecord, len(r.CrossLag))
	for i, p := range r.CrossLag {
		lags[i] = crossLagRecord{UserID: p.UserID, Lag: int32(p.Lag), Corr: p.Corr}
	}
	var devs []deviationRecord
	for _, d := range r.Deviations {
		for j, col := range r.DeviationColumns {
			devs = append(devs, deviationRecord{UserID: d.UserID, Date: dateString(d.Date), ClusterFlag: d.Flag, Column: col, Z: d.Z[j]})
		}
	}

	steps := []func() error{
		func() error { return writeTable(w, rel("corr_pearson"), matrixRecords(r.Correlations.Pearson)) },
		func() error { return writeTable(w, rel("corr_spearman"), matrixRecords(r.Correlations.Spearman)) },
		func() error { return writeTable(w, rel("mutual_info"), matrixRecords(r.MutualInfo)) },
		func() error { return writeTable(w, rel("pca_components"), projectionRecords(r.Decomposition.PCA)) },
		func() error { return writeTable(w, rel("pca_explained_variance"), variance) },
		func() error { return writeTable(w, rel("ica_components"), projectionRecords(r.Decomposition.ICA)) },
		func() error { return writeTable(w, rel("vif"), vif) },
		func() error { return writeTable(w, rel("pairwise_corr_over_time"), pairs) },
		func() error { return writeTable(w, rel("cross_lag_calories_weight"), lags) },
		func() error { return writeTable(w, rel("clusters"), devs) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// WriteInsights writes the insights/ tables.
func (w *Writer) WriteInsights(in Insights) error {
	rel := func(name string) string { return filepath.Join(InsightsDir, name+".parquet") }

	trends := make([]trendRecord, len(in.Trends))
	for i, t := range in.Trends {
		trends[i] = trendRecord{UserID: t.UserID, Date: dateString(t.Date), Metric: t.Metric, Slope14: t.Slope14, SharpDev: t.SharpDev}
	}
	patterns := make([]patternRecord, len(in.Patterns))
	for i, p := range in.Patterns {
		patterns[i] = patternRecord{UserID: p.UserID, Date: dateString(p.Date), Pattern: p.Pattern}
	}
	var clusters []userClusterRecord
	for _, c := range in.Clusters {
		for j, col := range in.ClusterColumns {
			clusters = append(clusters, userClusterRecord{UserID: c.UserID, Cluster: int32(c.Cluster), Feature: col, Mean: c.Means[j]})
		}
	}
	impact := make([]impactRecord, len(in.Impact))
	for i, c := range in.Impact {
		impact[i] = impactRecord{Feature: c.Feature, Coefficient: c.Coefficient}
	}
	narratives := make([]insightRecord, len(in.Narratives))
	for i, n := range in.Narratives {
		narratives[i] = insightRecord{UserID: n.UserID, Insights: n.Text}
	}

	if err := writeTable(w, rel("trends"), trends); err != nil {
		return err
	}
	if err := writeTable(w, rel("patterns"), patterns); err != nil {
		return err
	}
	if err := writeTable(w, rel("clusters"), clusters); err != nil {
		return err
	}
	if err := writeTable(w, rel("impact_weight"), impact); err != nil {
		return err
	}
	return writeTable(w, rel("openai_insights"), narratives)
}

// WriteManifest writes manifest.json listing every file written so far and
// returns the manifest.
func (w *Writer) WriteManifest(batchID string) (Manifest, error) {
	m := Manifest{BatchID: batchID, GeneratedAt: time.Now().UTC(), Files: w.Files()}
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return m, fmt.Errorf("failed to create %s: %w", w.root, err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return m, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.root, ManifestFile), data, 0o644); err != nil {
		return m, fmt.Errorf("failed to write manifest: %w", err)
	}
	return m, nil
}
