package executor

import (
	"github.com/nerrad567/tapflow-core/internal/flow"
)

// NavigationFailure records a step whose expected activity never
// appeared within the timeout.
type NavigationFailure struct {
	StepIndex int    `json:"step_index"`
	Expected  string `json:"expected"`
	Actual    string `json:"actual"`
}

// BoundsRepair records one drift repair performed during execution.
type BoundsRepair struct {
	SensorID  string      `json:"sensor_id"`
	OldBounds flow.Bounds `json:"old_bounds"`
	NewBounds flow.Bounds `json:"new_bounds"`
	Distance  float64     `json:"distance"`
	Strategy  string      `json:"strategy"`
}

// Result is the structured outcome of one execution. Created fresh per
// invocation and never reused.
//
// Success and PartialSuccess distinguish "ran clean" from "ran but
// degraded": Success means every executed step succeeded; Partial means
// execution reached the end with some failed steps.
type Result struct {
	ExecutionID string `json:"execution_id"`
	FlowID      string `json:"flow_id"`
	DeviceID    string `json:"device_id"`

	Success        bool `json:"success"`
	PartialSuccess bool `json:"partial_success"`

	ExecutedSteps int `json:"executed_steps"`
	TotalSteps    int `json:"total_steps"`

	// CapturedSensors maps sensor ID to captured value. A failed
	// extraction appears with an empty value rather than being dropped.
	CapturedSensors map[string]string `json:"captured_sensors"`

	DurationMS int64             `json:"duration_ms"`
	Steps      []flow.StepRecord `json:"steps"`

	NavigationFailures []NavigationFailure `json:"navigation_failures,omitempty"`
	BoundsRepaired     []BoundsRepair      `json:"bounds_repaired,omitempty"`

	// LearnedScreens holds the IDs of snapshots recorded in learn mode.
	LearnedScreens []int64 `json:"learned_screens,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
}

// Status maps the result onto a persisted execution status.
func (r *Result) Status() flow.ExecutionStatus {
	switch {
	case r.Success:
		return flow.StatusCompleted
	case r.PartialSuccess:
		return flow.StatusPartial
	default:
		return flow.StatusFailed
	}
}
