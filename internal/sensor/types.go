package sensor

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/tapflow-core/internal/flow"
)

// Sensor is a value captured from a fixed screen region of a device's
// UI. The bounds record where the value lived when the sensor was set
// up; drift repair keeps them current as the app's layout shifts.
type Sensor struct {
	ID               string          `json:"id"`
	FlowID           string          `json:"flow_id"`
	Name             string          `json:"name"`
	ExpectedActivity string          `json:"expected_activity,omitempty"`

	// Bounds is the screen region the value is read from. Mutated only
	// by BoundsRepairService.
	Bounds flow.Bounds `json:"bounds"`

	// Element carries the identity of the on-screen element the bounds
	// were recorded against (resource_id, text, class). Used to re-find
	// the element when the layout drifts; empty means the bounds are a
	// fixed region with no backing element.
	Element flow.ElementDescriptor `json:"element,omitempty"`

	ExtractionMethod string          `json:"extraction_method"`
	ExtractionParams json.RawMessage `json:"extraction_params,omitempty"`

	// UpdateInterval is the minimum seconds between captures. A capture
	// fresher than this makes the sensor's step skippable.
	UpdateInterval int `json:"update_interval"`

	LastValue       *string    `json:"last_value,omitempty"`
	LastCapturedAt  *time.Time `json:"last_captured_at,omitempty"`
	BoundsUpdatedAt *time.Time `json:"bounds_updated_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Due reports whether the sensor needs a fresh capture at the given
// time. A sensor never captured is always due; an interval of zero
// means capture on every run.
func (s *Sensor) Due(now time.Time) bool {
	if s.LastCapturedAt == nil || s.UpdateInterval <= 0 {
		return true
	}
	next := s.LastCapturedAt.Add(time.Duration(s.UpdateInterval) * time.Second)
	return !now.Before(next)
}

// DriftRecord is one entry in a sensor's append-only drift history,
// written each time bounds repair moves the sensor's region.
type DriftRecord struct {
	ID         int64       `json:"id"`
	SensorID   string      `json:"sensor_id"`
	OldBounds  flow.Bounds `json:"old_bounds"`
	NewBounds  flow.Bounds `json:"new_bounds"`
	Distance   float64     `json:"distance"`
	RecordedAt time.Time   `json:"recorded_at"`
}
