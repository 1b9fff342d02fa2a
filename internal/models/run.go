package models

import "time"

// RunStatus is the lifecycle state of a batch.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusFinished RunStatus = "finished"
	RunStatusPartial  RunStatus = "partial"
	RunStatusError    RunStatus = "error"
)

// RunLog is the bookkeeping record of one batch.
type RunLog struct {
	BatchID       string     `json:"batch_id"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	Status        RunStatus  `json:"status"`
	RowsProcessed int        `json:"rows_processed"`
	Error         *string    `json:"error,omitempty"`
	FailedStages  []string   `json:"failed_stages,omitempty"`
}

// Relationship metrics persisted per batch.
const (
	MetricPearson  = "pearson"
	MetricSpearman = "spearman"
	MetricCrossLag = "cross_lag"
)

// Relationship is one persisted relationship measurement. UserID and Lag
// are nil for population-level matrices.
type Relationship struct {
	UserID *int64   `json:"user_id"`
	VarX   string   `json:"var_x"`
	VarY   string   `json:"var_y"`
	Metric string   `json:"metric"`
	Value  *float64 `json:"value"`
	Lag    *int     `json:"lag"`
}

// RunResult is what a pipeline run reports back to its caller.
type RunResult struct {
	BatchID      string    `json:"batchId"`
	Status       RunStatus `json:"status"`
	Error        string    `json:"error,omitempty"`
	FailedStages []string  `json:"failedStages,omitempty"`
	Artifacts    []string  `json:"artifacts,omitempty"`
	Uploaded     int       `json:"uploaded"`
}

// SummaryRecord is one persisted per-user summary of a batch.
type SummaryRecord struct {
	BatchID  string      `json:"batch_id"`
	UserID   int64       `json:"user_id"`
	Summary  UserSummary `json:"summary"`
	Insights *string     `json:"insights"`
}
