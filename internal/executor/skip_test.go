package executor

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/tapflow-core/internal/flow"
	"github.com/nerrad567/tapflow-core/internal/sensor"
)

func skipFixture(t *testing.T, freshIDs, dueIDs []string) *SkipAnalyzer {
	t.Helper()
	store := newMemSensors()
	now := time.Now().UTC()

	for _, id := range freshIDs {
		captured := now
		if err := store.CreateSensor(context.Background(), &sensor.Sensor{
			ID:               id,
			FlowID:           "flow-skip",
			Name:             id,
			Bounds:           flow.Bounds{X: 1, Y: 1, Width: 1, Height: 1},
			ExtractionMethod: "ocr",
			UpdateInterval:   600,
			LastCapturedAt:   &captured,
		}); err != nil {
			t.Fatalf("creating sensor %s: %v", id, err)
		}
	}
	for _, id := range dueIDs {
		if err := store.CreateSensor(context.Background(), &sensor.Sensor{
			ID:               id,
			FlowID:           "flow-skip",
			Name:             id,
			Bounds:           flow.Bounds{X: 1, Y: 1, Width: 1, Height: 1},
			ExtractionMethod: "ocr",
			UpdateInterval:   600,
		}); err != nil {
			t.Fatalf("creating sensor %s: %v", id, err)
		}
	}
	return NewSkipAnalyzer(store)
}

func skipDef(steps ...flow.Step) *flow.Definition {
	return &flow.Definition{
		ID:       "flow-skip",
		DeviceID: "tablet-kitchen",
		Name:     "Skip Flow",
		Steps:    steps,
		Enabled:  true,
	}
}

func TestSkipAnalyzer_FreshSensorSkipped(t *testing.T) {
	a := skipFixture(t, []string{"s-fresh"}, nil)
	def := skipDef(captureStep("s-fresh"))

	skippable, err := a.Analyze(context.Background(), def, false, time.Now().UTC())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if !skippable[0] {
		t.Error("fresh sensor's capture step not skippable")
	}
}

func TestSkipAnalyzer_DueSensorRuns(t *testing.T) {
	a := skipFixture(t, nil, []string{"s-due"})
	def := skipDef(captureStep("s-due"))

	skippable, err := a.Analyze(context.Background(), def, false, time.Now().UTC())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(skippable) != 0 {
		t.Errorf("skippable = %v, want empty", skippable)
	}
}

func TestSkipAnalyzer_NavigationSegmentSkipped(t *testing.T) {
	a := skipFixture(t, []string{"s-fresh"}, []string{"s-due"})

	// Segment one (tap + fresh sensor) skips entirely; segment two
	// (tap + due sensor) runs.
	def := skipDef(
		tapCoordStep(10, 10),
		captureStep("s-fresh"),
		tapCoordStep(20, 20),
		captureStep("s-due"),
	)

	skippable, err := a.Analyze(context.Background(), def, false, time.Now().UTC())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if !skippable[0] || !skippable[1] {
		t.Errorf("skippable = %v, want steps 0 and 1 skipped", skippable)
	}
	if skippable[2] || skippable[3] {
		t.Errorf("skippable = %v, steps 2 and 3 must run", skippable)
	}
}

func TestSkipAnalyzer_MixedSegmentRuns(t *testing.T) {
	a := skipFixture(t, []string{"s-fresh"}, []string{"s-due"})

	// One navigation step feeding a fresh AND a due sensor: the segment
	// must run, though the fresh capture is still individually skipped.
	def := skipDef(
		tapCoordStep(10, 10),
		captureStep("s-fresh"),
		captureStep("s-due"),
	)

	skippable, err := a.Analyze(context.Background(), def, false, time.Now().UTC())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if skippable[0] {
		t.Error("navigation step skipped despite feeding a due sensor")
	}
	if !skippable[1] {
		t.Error("fresh capture not individually skipped")
	}
	if skippable[2] {
		t.Error("due capture skipped")
	}
}

func TestSkipAnalyzer_NavigationWithoutSensorsRuns(t *testing.T) {
	a := skipFixture(t, nil, nil)
	def := skipDef(
		tapCoordStep(10, 10),
		flow.Step{Type: flow.StepWait, Wait: &flow.WaitParams{DurationMS: 100}},
	)

	skippable, err := a.Analyze(context.Background(), def, false, time.Now().UTC())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(skippable) != 0 {
		t.Errorf("skippable = %v, segments without captures never skip", skippable)
	}
}

func TestSkipAnalyzer_ForceReturnsEmpty(t *testing.T) {
	a := skipFixture(t, []string{"s-fresh"}, nil)
	def := skipDef(tapCoordStep(10, 10), captureStep("s-fresh"))

	skippable, err := a.Analyze(context.Background(), def, true, time.Now().UTC())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(skippable) != 0 {
		t.Errorf("skippable = %v, want empty under force", skippable)
	}
}

func TestSkipAnalyzer_UnknownSensorRuns(t *testing.T) {
	a := skipFixture(t, nil, nil)
	def := skipDef(captureStep("s-ghost"))

	skippable, err := a.Analyze(context.Background(), def, false, time.Now().UTC())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(skippable) != 0 {
		t.Errorf("skippable = %v, unknown sensors must run", skippable)
	}
}
