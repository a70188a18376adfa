package flow

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// StepType identifies the kind of device interaction a step performs.
type StepType string

// Supported step types.
const (
	StepTap           StepType = "tap"
	StepSwipe         StepType = "swipe"
	StepTypeText      StepType = "type_text"
	StepKeyEvent      StepType = "keyevent"
	StepWait          StepType = "wait"
	StepCaptureSensor StepType = "capture_sensor"
)

// Bounds describes an element's on-screen rectangle in device pixels.
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the centre point of the rectangle.
func (b Bounds) Center() (float64, float64) {
	return float64(b.X) + float64(b.Width)/2, float64(b.Y) + float64(b.Height)/2
}

// DistanceTo returns the Euclidean distance between the centres of two
// rectangles. This is the drift distance used throughout element matching.
func (b Bounds) DistanceTo(other Bounds) float64 {
	x1, y1 := b.Center()
	x2, y2 := other.Center()
	return math.Hypot(x2-x1, y2-y1)
}

// IsZero reports whether the bounds are entirely unset.
func (b Bounds) IsZero() bool {
	return b.X == 0 && b.Y == 0 && b.Width == 0 && b.Height == 0
}

// ElementDescriptor is the recorded identity of a UI element. Any subset
// of the identity fields may be set; bounds hold the last-known position.
type ElementDescriptor struct {
	Text        string `json:"text,omitempty"`
	ResourceID  string `json:"resource_id,omitempty"`
	Class       string `json:"class,omitempty"`
	ContentDesc string `json:"content_desc,omitempty"`
	Bounds      Bounds `json:"bounds"`
}

// IsEmpty reports whether the descriptor carries no identity at all.
func (d ElementDescriptor) IsEmpty() bool {
	return d.Text == "" && d.ResourceID == "" && d.Class == "" &&
		d.ContentDesc == "" && d.Bounds.IsZero()
}

// Modes are the execution policy flags. They are independent booleans
// and combine freely.
type Modes struct {
	// Strict fails a step (and the flow) when an expected activity never
	// appears within the timeout.
	Strict bool `json:"strict" yaml:"strict"`

	// Repair rewrites stored element bounds when drift above the
	// configured threshold is detected via a non-exact match.
	Repair bool `json:"repair" yaml:"repair"`

	// Learn captures a UI snapshot at every actionable step, on success
	// and on failure.
	Learn bool `json:"learn" yaml:"learn"`

	// Force bypasses skip analysis and runs every step unconditionally.
	Force bool `json:"force" yaml:"force"`
}

// ─── Per-Type Step Parameters ───

// TapParams targets either a recorded element or literal coordinates.
type TapParams struct {
	// Target identifies the element to resolve and tap. When nil, X/Y
	// literal coordinates are used instead.
	Target *ElementDescriptor `json:"target,omitempty"`

	// X, Y are literal tap coordinates, used when Target is nil.
	X int `json:"x,omitempty"`
	Y int `json:"y,omitempty"`
}

func (p *TapParams) validate() error {
	if p.Target == nil {
		if p.X < 0 || p.Y < 0 {
			return fmt.Errorf("literal coordinates must not be negative")
		}
		return nil
	}
	if p.Target.IsEmpty() {
		return fmt.Errorf("target descriptor is empty")
	}
	return nil
}

// SwipeParams describes a straight-line swipe gesture.
type SwipeParams struct {
	X1         int `json:"x1"`
	Y1         int `json:"y1"`
	X2         int `json:"x2"`
	Y2         int `json:"y2"`
	DurationMS int `json:"duration_ms"`
}

func (p *SwipeParams) validate() error {
	if p.DurationMS <= 0 {
		return fmt.Errorf("duration_ms must be positive")
	}
	return nil
}

// TypeTextParams carries the text to type into the focused field.
type TypeTextParams struct {
	Text string `json:"text"`
}

func (p *TypeTextParams) validate() error {
	if p.Text == "" {
		return fmt.Errorf("text must not be empty")
	}
	return nil
}

// KeyEventParams carries an Android key code (e.g. 4 for BACK).
type KeyEventParams struct {
	Code int `json:"code"`
}

func (p *KeyEventParams) validate() error {
	if p.Code < 0 {
		return fmt.Errorf("code must not be negative")
	}
	return nil
}

// WaitParams describes either a plain timed wait (DurationMS) or a
// multi-refresh wait: RefreshAttempts snapshot refreshes spaced
// RefreshDelayMS apart, totalling RefreshAttempts x RefreshDelayMS.
type WaitParams struct {
	DurationMS      int `json:"duration_ms,omitempty"`
	RefreshAttempts int `json:"refresh_attempts,omitempty"`
	RefreshDelayMS  int `json:"refresh_delay_ms,omitempty"`
}

func (p *WaitParams) validate() error {
	if p.RefreshAttempts > 0 {
		if p.RefreshDelayMS <= 0 {
			return fmt.Errorf("refresh_delay_ms must be positive when refresh_attempts is set")
		}
		return nil
	}
	if p.DurationMS <= 0 {
		return fmt.Errorf("duration_ms must be positive for a plain wait")
	}
	return nil
}

// CaptureSensorParams names the sensor whose value this step captures.
type CaptureSensorParams struct {
	SensorID string `json:"sensor_id"`
}

func (p *CaptureSensorParams) validate() error {
	if p.SensorID == "" {
		return fmt.Errorf("sensor_id is required")
	}
	return nil
}

// ─── Step ───

// Step is one interaction in a flow. Exactly one of the per-type
// parameter structs is set, matching Type. Steps are decoded and
// validated at load time so malformed definitions fail fast instead
// of mid-execution.
type Step struct {
	// Type selects which parameter struct is populated.
	Type StepType `json:"type"`

	// ExpectedActivity is an optional post-condition: the activity the
	// device should land on after this step. Verified for TAP (and any
	// step that sets it); enforcement depends on execution mode.
	ExpectedActivity string `json:"expected_activity,omitempty"`

	Tap           *TapParams           `json:"-"`
	Swipe         *SwipeParams         `json:"-"`
	TypeText      *TypeTextParams      `json:"-"`
	KeyEvent      *KeyEventParams      `json:"-"`
	Wait          *WaitParams          `json:"-"`
	CaptureSensor *CaptureSensorParams `json:"-"`
}

// stepEnvelope is the wire form of a Step: a type tag plus a raw
// params object decoded into the matching typed struct.
type stepEnvelope struct {
	Type             StepType        `json:"type"`
	ExpectedActivity string          `json:"expected_activity,omitempty"`
	Params           json.RawMessage `json:"params,omitempty"`
}

// UnmarshalJSON decodes a step envelope, selecting and validating the
// typed parameter struct for the declared step type.
func (s *Step) UnmarshalJSON(data []byte) error {
	var env stepEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decoding step envelope: %w", err)
	}

	s.Type = env.Type
	s.ExpectedActivity = env.ExpectedActivity
	s.Tap, s.Swipe, s.TypeText, s.KeyEvent, s.Wait, s.CaptureSensor = nil, nil, nil, nil, nil, nil

	params := env.Params
	if params == nil {
		params = json.RawMessage("{}")
	}

	switch env.Type {
	case StepTap:
		s.Tap = &TapParams{}
		return decodeParams(env.Type, params, s.Tap)
	case StepSwipe:
		s.Swipe = &SwipeParams{}
		return decodeParams(env.Type, params, s.Swipe)
	case StepTypeText:
		s.TypeText = &TypeTextParams{}
		return decodeParams(env.Type, params, s.TypeText)
	case StepKeyEvent:
		s.KeyEvent = &KeyEventParams{}
		return decodeParams(env.Type, params, s.KeyEvent)
	case StepWait:
		s.Wait = &WaitParams{}
		return decodeParams(env.Type, params, s.Wait)
	case StepCaptureSensor:
		s.CaptureSensor = &CaptureSensorParams{}
		return decodeParams(env.Type, params, s.CaptureSensor)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStepType, env.Type)
	}
}

// stepParams is implemented by every per-type parameter struct.
type stepParams interface {
	validate() error
}

func decodeParams(t StepType, raw json.RawMessage, into stepParams) error {
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("decoding %s params: %w", t, err)
	}
	if err := into.validate(); err != nil {
		return fmt.Errorf("%w: %s step: %s", ErrInvalidStep, t, err)
	}
	return nil
}

// MarshalJSON encodes the step back into its envelope form.
func (s Step) MarshalJSON() ([]byte, error) {
	var params any
	switch s.Type {
	case StepTap:
		params = s.Tap
	case StepSwipe:
		params = s.Swipe
	case StepTypeText:
		params = s.TypeText
	case StepKeyEvent:
		params = s.KeyEvent
	case StepWait:
		params = s.Wait
	case StepCaptureSensor:
		params = s.CaptureSensor
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStepType, s.Type)
	}

	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encoding %s params: %w", s.Type, err)
	}

	return json.Marshal(stepEnvelope{
		Type:             s.Type,
		ExpectedActivity: s.ExpectedActivity,
		Params:           rawParams,
	})
}

// Validate checks the step's tagged parameters are present and coherent.
// Decoding already validates; this re-checks steps built in code.
func (s Step) Validate() error {
	var p stepParams
	switch s.Type {
	case StepTap:
		p = s.Tap
	case StepSwipe:
		p = s.Swipe
	case StepTypeText:
		p = s.TypeText
	case StepKeyEvent:
		p = s.KeyEvent
	case StepWait:
		p = s.Wait
	case StepCaptureSensor:
		p = s.CaptureSensor
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStepType, s.Type)
	}

	// The interface holds a typed nil when params are missing, so check
	// each pointer directly.
	switch {
	case s.Type == StepTap && s.Tap == nil,
		s.Type == StepSwipe && s.Swipe == nil,
		s.Type == StepTypeText && s.TypeText == nil,
		s.Type == StepKeyEvent && s.KeyEvent == nil,
		s.Type == StepWait && s.Wait == nil,
		s.Type == StepCaptureSensor && s.CaptureSensor == nil:
		return fmt.Errorf("%w: %s step has no parameters", ErrInvalidStep, s.Type)
	}

	if err := p.validate(); err != nil {
		return fmt.Errorf("%w: %s step: %s", ErrInvalidStep, s.Type, err)
	}
	return nil
}

// IsNavigation reports whether the step navigates between screens.
// Used by skip analysis to identify prerequisite steps.
func (s Step) IsNavigation() bool {
	switch s.Type {
	case StepTap, StepSwipe, StepKeyEvent:
		return true
	default:
		return false
	}
}

// ─── Definition ───

// Definition is a persisted flow: an ordered sequence of steps replayed
// against one device. Definitions are immutable during execution and
// mutated only through the repository.
type Definition struct {
	ID          string  `json:"id"`
	DeviceID    string  `json:"device_id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`

	// Steps run in order. Decoded with per-type validation.
	Steps []Step `json:"steps"`

	// UpdateInterval is how often the flow's sensors should be refreshed
	// (seconds). Zero means the flow only runs on demand.
	UpdateInterval int `json:"update_interval"`

	// DefaultModes apply when the caller does not override them.
	DefaultModes Modes `json:"default_modes"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the definition is complete and every step is coherent.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDefinition)
	}
	if d.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidDefinition)
	}
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: at least one step is required", ErrInvalidDefinition)
	}
	if d.UpdateInterval < 0 {
		return fmt.Errorf("%w: update_interval must not be negative", ErrInvalidDefinition)
	}
	for i, step := range d.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}
