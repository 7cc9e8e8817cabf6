package models

import "time"

// LaneStatus is the terminal state of one pipeline lane.
type LaneStatus string

const (
	LaneCompleted LaneStatus = "completed"
	LaneFailed    LaneStatus = "failed"
	LaneSkipped   LaneStatus = "skipped"
)

// LaneResult records the outcome of one lane.
type LaneResult struct {
	Lane        string     `json:"lane"`
	Status      LaneStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
	DurationSec float64    `json:"duration_sec"`
}

// PipelineResult is the aggregate outcome of one pipeline run, written to
// result.json in the results root.
type PipelineResult struct {
	RunID            string                `json:"run_id"`
	Name             string                `json:"name,omitempty"`
	StartedAt        time.Time             `json:"started_at"`
	EndedAt          time.Time             `json:"ended_at"`
	TotalDurationSec float64               `json:"total_duration_sec"`
	Lanes            map[string]LaneResult `json:"lanes"`
}
