package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/tapflow-core/internal/device"
	"github.com/nerrad567/tapflow-core/internal/flow"
)

// LearnModeRecorder persists UI snapshots captured during learn-mode
// runs. Failed steps are recorded alongside successful ones: the whole
// point of learn mode is to see what the screen actually looked like
// when things went wrong.
type LearnModeRecorder struct {
	flows flow.Repository
}

// NewLearnModeRecorder creates a recorder backed by the flow repository.
func NewLearnModeRecorder(flows flow.Repository) *LearnModeRecorder {
	return &LearnModeRecorder{flows: flows}
}

// Record persists one snapshot for a step.
//
// Parameters:
//   - ctx: Request context
//   - executionID, flowID: Which run and flow this snapshot belongs to
//   - stepIndex, step: The step that just ran
//   - snap: The UI state after the step, nil if capture itself failed
//   - stepSuccess: The step's outcome, recorded verbatim
//
// Returns:
//   - int64: The stored snapshot's ID
//   - error: Persistence errors
func (r *LearnModeRecorder) Record(ctx context.Context, executionID, flowID string, stepIndex int, step flow.Step, snap *device.Snapshot, stepSuccess bool) (int64, error) {
	screen := flow.LearnedScreen{
		ExecutionID:      executionID,
		FlowID:           flowID,
		StepIndex:        stepIndex,
		StepType:         step.Type,
		ExpectedActivity: step.ExpectedActivity,
		StepSuccess:      stepSuccess,
		CapturedAt:       time.Now().UTC(),
	}

	if snap != nil {
		screen.ActualActivity = snap.Activity
		elements, err := json.Marshal(snap.Elements)
		if err != nil {
			return 0, fmt.Errorf("marshalling elements: %w", err)
		}
		screen.Elements = elements
	}

	if err := r.flows.CreateLearnedScreen(ctx, &screen); err != nil {
		return 0, fmt.Errorf("persisting learned screen: %w", err)
	}
	return screen.ID, nil
}
