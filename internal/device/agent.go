package device

import (
	"context"

	"github.com/nerrad567/tapflow-core/internal/flow"
)

// Element is a live UI element reported by the device agent. Elements
// are ephemeral: a fresh set is supplied with every snapshot and is
// only valid until the screen changes.
type Element struct {
	Text        string      `json:"text,omitempty"`
	ResourceID  string      `json:"resource_id,omitempty"`
	Class       string      `json:"class,omitempty"`
	ContentDesc string      `json:"content_desc,omitempty"`
	Bounds      flow.Bounds `json:"bounds"`
	Clickable   bool        `json:"clickable"`
}

// Snapshot is the agent's view of the current screen: the visible
// element tree plus the foreground activity identifier.
type Snapshot struct {
	Elements []Element `json:"elements"`
	Activity string    `json:"activity"`
}

// Agent is the device action collaborator: everything the executor
// needs from a remote touchscreen. Implementations handle transport;
// the executor only consumes this interface.
type Agent interface {
	// Tap presses the screen at absolute coordinates.
	Tap(ctx context.Context, x, y int) error

	// Swipe performs a straight-line gesture over durationMS milliseconds.
	Swipe(ctx context.Context, x1, y1, x2, y2, durationMS int) error

	// TypeText types into the currently focused field.
	TypeText(ctx context.Context, text string) error

	// KeyEvent sends an Android key code (e.g. 4 for BACK).
	KeyEvent(ctx context.Context, code int) error

	// Snapshot captures the current element tree and foreground activity.
	Snapshot(ctx context.Context) (*Snapshot, error)

	// CurrentActivity returns the foreground activity identifier.
	CurrentActivity(ctx context.Context) (string, error)
}
