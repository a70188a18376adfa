package executor

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/tapflow-core/internal/flow"
	"github.com/nerrad567/tapflow-core/internal/sensor"
)

// SkipAnalyzer decides which steps can be skipped because their sensors
// are still fresh. Skipping avoids pointless screen churn on flows that
// run every few minutes against slow-changing values.
type SkipAnalyzer struct {
	sensors sensor.Store
}

// NewSkipAnalyzer creates a skip analyzer backed by the sensor store.
func NewSkipAnalyzer(sensors sensor.Store) *SkipAnalyzer {
	return &SkipAnalyzer{sensors: sensors}
}

// Analyze returns the set of step indices that may be skipped.
//
// A CAPTURE_SENSOR step is skippable when its sensor's last capture is
// still within the sensor's update interval. A navigation step whose
// segment (itself plus the following non-navigation steps up to the
// next navigation step) captures only skippable sensors is skippable
// too, along with the waits in that segment: there is no reason to
// open a screen nobody will read.
//
// force true returns an empty set: every step runs.
func (a *SkipAnalyzer) Analyze(ctx context.Context, def *flow.Definition, force bool, now time.Time) (map[int]bool, error) {
	skippable := make(map[int]bool)
	if force {
		return skippable, nil
	}

	// First pass: mark capture steps whose sensors are not yet due.
	for i, step := range def.Steps {
		if step.Type != flow.StepCaptureSensor {
			continue
		}
		due, err := a.sensors.IsDue(ctx, step.CaptureSensor.SensorID, now)
		if err != nil {
			if errors.Is(err, sensor.ErrNotFound) {
				// Unknown sensor: run the step and let capture surface
				// the problem.
				continue
			}
			return nil, err
		}
		if !due {
			skippable[i] = true
		}
	}

	// Second pass: a navigation step is skippable when its whole segment
	// feeds only skipped sensors.
	for i := 0; i < len(def.Steps); i++ {
		if !def.Steps[i].IsNavigation() {
			continue
		}

		end := i + 1
		for end < len(def.Steps) && !def.Steps[end].IsNavigation() {
			end++
		}

		captures := 0
		allSkippable := true
		for j := i + 1; j < end; j++ {
			if def.Steps[j].Type == flow.StepCaptureSensor {
				captures++
				if !skippable[j] {
					allSkippable = false
				}
			}
		}

		if captures > 0 && allSkippable {
			skippable[i] = true
			for j := i + 1; j < end; j++ {
				skippable[j] = true
			}
		}
	}

	return skippable, nil
}
