package insights

import (
	"context"

	"github.com/JonnyWalker81/healthlytics/internal/logger"
	"github.com/JonnyWalker81/healthlytics/internal/models"
	"github.com/JonnyWalker81/healthlytics/internal/stats"
)

// WeightChangeWindow is the number of trailing rows used for weight_change_30d.
const WeightChangeWindow = 30

// Summarize builds one numeric digest per user. Means are nil when the
// column was not emitted or has no values for the user.
func Summarize(t models.FeatureTable) []models.UserSummary {
	byUser := t.ByUser()
	var out []models.UserSummary
	for _, uid := range t.UserIDs() {
		rows := byUser[uid]
		s := models.UserSummary{UserID: uid, Days: len(rows)}
		column := func(c string) []*float64 {
			vals := make([]*float64, len(rows))
			for i := range rows {
				vals[i] = rows[i].Value(c)
			}
			return vals
		}
		if t.Has(models.ColCalories) {
			s.CaloriesMean = stats.Mean(column(models.ColCalories))
		}
		if t.Has(models.ColTotalMinutes) {
			s.ActivityMinutesMean = stats.Mean(column(models.ColTotalMinutes))
		}
		if t.Has(models.ColWeight) {
			w := column(models.ColWeight)
			s.WeightMean = stats.Mean(w)
			if len(w) > WeightChangeWindow {
				w = w[len(w)-WeightChangeWindow:]
			}
			s.WeightChange30d = models.F64(stats.Sum(stats.Diff(w, 1)))
		}
		out = append(out, s)
	}
	return out
}

// Narrator turns a user summary into a few sentences of prose. An
// implementation without credentials returns "" and no error.
type Narrator interface {
	Insights(ctx context.Context, userID int64, summary models.UserSummary) (string, error)
}

// GenerateInsights asks the narrator for every summary. A failure for one
// user is logged and leaves that user's text empty.
func GenerateInsights(ctx context.Context, n Narrator, summaries []models.UserSummary) []models.UserInsight {
	out := make([]models.UserInsight, 0, len(summaries))
	for _, s := range summaries {
		text := ""
		if n != nil {
			var err error
			text, err = n.Insights(ctx, s.UserID, s)
			if err != nil {
				logger.Ctx(ctx).Warn("insight generation failed",
					logger.Int64("user_id", s.UserID),
					logger.Err(err),
				)
				text = ""
			}
		}
		out = append(out, models.UserInsight{UserID: s.UserID, Text: text})
	}
	return out
}

// ByUser indexes generated text by user, skipping empty entries.
func ByUser(insights []models.UserInsight) map[int64]string {
	out := make(map[int64]string, len(insights))
	for _, in := range insights {
		if in.Text != "" {
			out[in.UserID] = in.Text
		}
	}
	return out
}
