package flow

import (
	"encoding/json"
	"time"
)

// ExecutionStatus represents the lifecycle state of a flow execution.
type ExecutionStatus string

// Execution lifecycle states.
const (
	// StatusPending means the execution has been created but not started.
	StatusPending ExecutionStatus = "pending"

	// StatusRunning means step dispatch is in progress.
	StatusRunning ExecutionStatus = "running"

	// StatusCompleted means every verified step succeeded.
	StatusCompleted ExecutionStatus = "completed"

	// StatusPartial means execution reached the end but some non-strict
	// steps failed.
	StatusPartial ExecutionStatus = "partial"

	// StatusFailed means a fatal error aborted the execution.
	StatusFailed ExecutionStatus = "failed"

	// StatusCancelled means the execution was cancelled before completion.
	StatusCancelled ExecutionStatus = "cancelled"
)

// StepStatus represents the terminal state of a single step.
type StepStatus string

// Step states.
const (
	StepStatusSkipped   StepStatus = "skipped"
	StepStatusSucceeded StepStatus = "succeeded"
	StepStatusFailed    StepStatus = "failed"
)

// StepRecord is the per-step breakdown persisted with each execution.
type StepRecord struct {
	Index      int        `json:"index"`
	Type       StepType   `json:"type"`
	Status     StepStatus `json:"status"`
	DurationMS int64      `json:"duration_ms"`
	Error      string     `json:"error,omitempty"`
}

// Execution is one historical run of a flow. A fresh record is created
// per invocation and updated with the terminal status when the run ends.
type Execution struct {
	ID          string     `json:"id"`
	FlowID      string     `json:"flow_id"`
	DeviceID    string     `json:"device_id"`
	TriggeredAt time.Time  `json:"triggered_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// TriggeredBy records what started the run: "scheduler", "api", or
	// a caller-supplied label.
	TriggeredBy string `json:"triggered_by"`

	Status        ExecutionStatus `json:"status"`
	ExecutedSteps int             `json:"executed_steps"`
	TotalSteps    int             `json:"total_steps"`
	DurationMS    *int64          `json:"duration_ms,omitempty"`
	Steps         []StepRecord    `json:"steps,omitempty"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
}

// LearnedScreen is a UI snapshot captured during learn-mode execution.
// Snapshots are recorded for failing steps as well as succeeding ones;
// the failures are the interesting part for later analysis.
type LearnedScreen struct {
	ID               int64           `json:"id"`
	ExecutionID      string          `json:"execution_id"`
	FlowID           string          `json:"flow_id"`
	StepIndex        int             `json:"step_index"`
	StepType         StepType        `json:"step_type"`
	ExpectedActivity string          `json:"expected_activity,omitempty"`
	ActualActivity   string          `json:"actual_activity,omitempty"`
	StepSuccess      bool            `json:"step_success"`
	Elements         json.RawMessage `json:"elements,omitempty"`
	CapturedAt       time.Time       `json:"captured_at"`
}
