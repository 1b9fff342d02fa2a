package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveRun("finished", 3, 12, time.Unix(1700000000, 0))
	m.ObserveRun("partial", 1, 0, time.Unix(1700000100, 0))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("finished")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("partial")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.RowsProcessed))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.Uploaded))
	assert.Equal(t, 1700000100.0, testutil.ToFloat64(m.LastRun))
}

func TestMetrics_ObserveStage(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveStage("relations", 2*time.Second, true)
	m.ObserveStage("relations", time.Second, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageFailures.WithLabelValues("relations")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageDuration))

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "healthlytics_stage_duration_seconds" {
			found = true
			assert.Equal(t, uint64(2), f.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
	assert.True(t, found)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveStage("x", time.Second, true)
	m.ObserveRun("finished", 1, 1, time.Now())
}
