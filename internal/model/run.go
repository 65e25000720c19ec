package model

import "time"

// RunStatus represents the current state of a processing run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusLoading   RunStatus = "loading"
	RunStatusGeocoding RunStatus = "geocoding"
	RunStatusSampling  RunStatus = "sampling"
	RunStatusJoining   RunStatus = "joining"
	RunStatusWriting   RunStatus = "writing"
	RunStatusComplete  RunStatus = "complete"
	RunStatusFailed    RunStatus = "failed"
)

// Job describes one report request: the table to process, the column holding
// addresses, and where the report goes.
type Job struct {
	InputPath     string `json:"input_path"`
	AddressColumn string `json:"address_column"`
	OutputPath    string `json:"output_path"`
	Project       string `json:"project"`
	SourceName    string `json:"source_name,omitempty"` // original filename for uploaded inputs
}

// Run represents a single end-to-end processing run.
type Run struct {
	ID        string     `json:"id"`
	Job       Job        `json:"job"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	RowsTotal   int           `json:"rows_total"`
	RowsMatched int           `json:"rows_matched"`
	RowsSampled int           `json:"rows_sampled"`
	OutputPath  string        `json:"output_path"`
	Stages      []StageResult `json:"stages"`
	Error       string        `json:"error,omitempty"`
}

// RunStage represents one stage within a run.
type RunStage struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      string       `json:"name"`
	Status    StageStatus  `json:"status"`
	Result    *StageResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// StageStatus represents the current state of a pipeline stage.
type StageStatus string

const (
	StageStatusRunning  StageStatus = "running"
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
	StageStatusSkipped  StageStatus = "skipped"
)

// StageResult holds the outcome of a pipeline stage.
type StageResult struct {
	Name     string         `json:"name"`
	Status   StageStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
