package insights

import (
	"gonum.org/v1/gonum/mat"

	"github.com/JonnyWalker81/healthlytics/internal/models"
	"github.com/JonnyWalker81/healthlytics/internal/stats"
)

// ImpactWindow is the number of most recent complete days taken per user.
const ImpactWindow = 90

// ImpactOnWeight fits weight ~ calories + total_minutes on standardized
// predictors over each user's last ImpactWindow complete rows, pooled across
// users, and returns the predictor coefficients. The coefficients describe
// association, not effect size.
func ImpactOnWeight(t models.FeatureTable) []models.ImpactCoefficient {
	predictors := t.Present(models.ColCalories, models.ColTotalMinutes)
	if !t.Has(models.ColWeight) || len(predictors) == 0 {
		return nil
	}

	byUser := t.ByUser()
	var y []float64
	xs := make([][]float64, len(predictors))
	for _, uid := range t.UserIDs() {
		var complete []models.FeatureRow
		for _, r := range byUser[uid] {
			if r.Weight == nil {
				continue
			}
			ok := true
			for _, c := range predictors {
				if r.Value(c) == nil {
					ok = false
					break
				}
			}
			if ok {
				complete = append(complete, r)
			}
		}
		if len(complete) > ImpactWindow {
			complete = complete[len(complete)-ImpactWindow:]
		}
		for i := range complete {
			y = append(y, *complete[i].Weight)
			for j, c := range predictors {
				xs[j] = append(xs[j], *complete[i].Value(c))
			}
		}
	}
	if len(y) == 0 {
		return nil
	}

	scaled := stats.ScaleColumns(stats.Columns(len(y), xs...))
	cols := make([][]float64, len(predictors))
	for j := range predictors {
		cols[j] = mat.Col(nil, j, scaled)
	}
	beta, ok := stats.LeastSquares(stats.WithIntercept(len(y), cols...), y)
	if !ok {
		return nil
	}
	out := make([]models.ImpactCoefficient, len(predictors))
	for j, c := range predictors {
		out[j] = models.ImpactCoefficient{Feature: c, Coefficient: beta[j+1]}
	}
	return out
}
