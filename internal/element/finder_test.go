package element

import (
	"testing"

	"github.com/nerrad567/tapflow-core/internal/device"
	"github.com/nerrad567/tapflow-core/internal/flow"
)

func bounds(x, y, w, h int) flow.Bounds {
	return flow.Bounds{X: x, Y: y, Width: w, Height: h}
}

// ─── Exact Bounds ───────────────────────────────────────────────────────────

func TestFinder_ExactBoundsMatch(t *testing.T) {
	finder := NewFinder(Options{})
	target := flow.ElementDescriptor{
		ResourceID: "btn_oven",
		Class:      "android.widget.Button",
		Bounds:     bounds(100, 200, 80, 40),
	}
	current := []device.Element{
		{ResourceID: "btn_other", Bounds: bounds(500, 600, 80, 40)},
		{ResourceID: "btn_oven", Bounds: bounds(100, 200, 80, 40)},
	}

	m := finder.Find(current, target)
	if !m.Found() {
		t.Fatal("expected a match")
	}
	if m.Strategy != StrategyExactBounds {
		t.Errorf("Strategy = %q, want %q", m.Strategy, StrategyExactBounds)
	}
	if m.DriftDistance != 0 {
		t.Errorf("DriftDistance = %v, want 0", m.DriftDistance)
	}
	if m.Matched.ResourceID != "btn_oven" {
		t.Errorf("Matched = %+v", m.Matched)
	}
}

func TestFinder_ExactBoundsWithinEpsilon(t *testing.T) {
	finder := NewFinder(Options{BoundsEpsilon: 2})
	target := flow.ElementDescriptor{Bounds: bounds(100, 200, 80, 40)}
	current := []device.Element{
		{Bounds: bounds(101, 199, 80, 41)},
	}

	m := finder.Find(current, target)
	if m.Strategy != StrategyExactBounds {
		t.Errorf("Strategy = %q, want exact_bounds for sub-epsilon shift", m.Strategy)
	}
	if m.DriftDistance != 0 {
		t.Errorf("DriftDistance = %v, want 0", m.DriftDistance)
	}
}

// ─── Fallback Tiers ─────────────────────────────────────────────────────────

func TestFinder_ResourceIDFallback(t *testing.T) {
	finder := NewFinder(Options{})

	// Recorded at (100,200); the element has moved well past the drift
	// repair threshold but keeps its resource ID.
	target := flow.ElementDescriptor{
		ResourceID: "btn_oven",
		Class:      "android.widget.Button",
		Bounds:     bounds(100, 200, 80, 40),
	}
	current := []device.Element{
		{ResourceID: "btn_oven", Class: "android.widget.Button", Bounds: bounds(130, 240, 80, 40)},
	}

	m := finder.Find(current, target)
	if m.Strategy != StrategyResourceID {
		t.Fatalf("Strategy = %q, want %q", m.Strategy, StrategyResourceID)
	}
	if m.DriftDistance != 50 { // 3-4-5 triangle scaled by 10
		t.Errorf("DriftDistance = %v, want 50", m.DriftDistance)
	}
}

func TestFinder_AmbiguousResourceIDFallsThrough(t *testing.T) {
	finder := NewFinder(Options{})
	target := flow.ElementDescriptor{
		ResourceID: "list_item",
		Text:       "Oven",
		Bounds:     bounds(0, 0, 100, 50),
	}
	current := []device.Element{
		{ResourceID: "list_item", Text: "Oven", Bounds: bounds(0, 100, 100, 50)},
		{ResourceID: "list_item", Text: "Hob", Bounds: bounds(0, 200, 100, 50)},
	}

	m := finder.Find(current, target)
	if m.Strategy != StrategyText {
		t.Fatalf("Strategy = %q, want text after ambiguous resource_id", m.Strategy)
	}
	if m.Matched.Text != "Oven" {
		t.Errorf("Matched = %+v", m.Matched)
	}
}

func TestFinder_ContentDescFallback(t *testing.T) {
	finder := NewFinder(Options{})
	target := flow.ElementDescriptor{
		ContentDesc: "Temperature display",
		Bounds:      bounds(40, 40, 60, 30),
	}
	current := []device.Element{
		{ContentDesc: "Temperature display", Bounds: bounds(40, 90, 60, 30)},
		{ContentDesc: "Humidity display", Bounds: bounds(40, 140, 60, 30)},
	}

	m := finder.Find(current, target)
	if m.Strategy != StrategyContentDesc {
		t.Fatalf("Strategy = %q, want %q", m.Strategy, StrategyContentDesc)
	}
	if m.DriftDistance != 50 {
		t.Errorf("DriftDistance = %v, want 50", m.DriftDistance)
	}
}

// ─── Nearest Neighbour ──────────────────────────────────────────────────────

func TestFinder_NearestNeighbour(t *testing.T) {
	finder := NewFinder(Options{MaxDriftRadius: 100})
	target := flow.ElementDescriptor{
		Class:  "android.widget.TextView",
		Bounds: bounds(100, 100, 50, 20),
	}
	current := []device.Element{
		{Class: "android.widget.TextView", Bounds: bounds(100, 160, 50, 20)}, // 60 away
		{Class: "android.widget.TextView", Bounds: bounds(100, 130, 50, 20)}, // 30 away
		{Class: "android.widget.Button", Bounds: bounds(100, 105, 50, 20)},   // wrong class
	}

	m := finder.Find(current, target)
	if m.Strategy != StrategyNearestNeighbour {
		t.Fatalf("Strategy = %q, want %q", m.Strategy, StrategyNearestNeighbour)
	}
	if m.DriftDistance != 30 {
		t.Errorf("DriftDistance = %v, want 30", m.DriftDistance)
	}
	if m.Matched.Bounds.Y != 130 {
		t.Errorf("Matched wrong neighbour: %+v", m.Matched)
	}
}

func TestFinder_NearestNeighbourRespectsRadius(t *testing.T) {
	finder := NewFinder(Options{MaxDriftRadius: 100})
	target := flow.ElementDescriptor{
		Class:  "android.widget.TextView",
		Bounds: bounds(0, 0, 50, 20),
	}
	current := []device.Element{
		{Class: "android.widget.TextView", Bounds: bounds(0, 500, 50, 20)},
	}

	m := finder.Find(current, target)
	if m.Found() {
		t.Fatalf("match beyond drift radius: %+v", m)
	}
	if m.Strategy != StrategyNone {
		t.Errorf("Strategy = %q, want none", m.Strategy)
	}
}

// ─── No Match ───────────────────────────────────────────────────────────────

func TestFinder_NoMatch(t *testing.T) {
	finder := NewFinder(Options{})
	target := flow.ElementDescriptor{
		ResourceID: "btn_missing",
		Class:      "android.widget.Button",
		Bounds:     bounds(10, 10, 40, 40),
	}
	current := []device.Element{
		{ResourceID: "btn_present", Class: "android.widget.ImageView", Bounds: bounds(900, 900, 40, 40)},
	}

	m := finder.Find(current, target)
	if m.Found() {
		t.Fatalf("unexpected match: %+v", m)
	}
}

func TestFinder_EmptySnapshot(t *testing.T) {
	finder := NewFinder(Options{})
	m := finder.Find(nil, flow.ElementDescriptor{ResourceID: "anything"})
	if m.Found() || m.Strategy != StrategyNone {
		t.Fatalf("match against empty snapshot: %+v", m)
	}
}
