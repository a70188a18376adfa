package events

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/nerrad567/tapflow-core/internal/executor"
)

// ─── Fakes ──────────────────────────────────────────────────────────────────

type publishedMessage struct {
	topic    string
	payload  []byte
	retained bool
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
	err      error
}

func (p *fakePublisher) Publish(topic string, payload []byte, _ byte, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, publishedMessage{topic: topic, payload: payload, retained: retained})
	return nil
}

func (p *fakePublisher) PublishRetained(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, publishedMessage{topic: topic, payload: payload, retained: true})
	return nil
}

type flowMetric struct {
	flowID, deviceID, status string
	durationMS               int64
	executedSteps            int
}

type fakeRecorder struct {
	mu          sync.Mutex
	sensorVals  map[string]float64
	flowMetrics []flowMetric
	driftDists  []float64
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{sensorVals: make(map[string]float64)}
}

func (r *fakeRecorder) WriteSensorValue(_, sensorID string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sensorVals[sensorID] = value
}

func (r *fakeRecorder) WriteFlowMetric(flowID, deviceID, status string, durationMS int64, executedSteps int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flowMetrics = append(r.flowMetrics, flowMetric{flowID, deviceID, status, durationMS, executedSteps})
}

func (r *fakeRecorder) WriteDriftMetric(_, _ string, distance float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.driftDists = append(r.driftDists, distance)
}

type broadcastEvent struct {
	channel string
	payload any
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (b *fakeBroadcaster) Broadcast(channel string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastEvent{channel: channel, payload: payload})
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestSink_FlowCompleted(t *testing.T) {
	pub := &fakePublisher{}
	rec := newFakeRecorder()
	hub := &fakeBroadcaster{}
	sink := NewSink(pub, rec, hub, 1, nil)

	sink.FlowCompleted("flow-oven", "tablet-kitchen", &executor.Result{
		ExecutionID:   "exec-1",
		FlowID:        "flow-oven",
		DeviceID:      "tablet-kitchen",
		Success:       true,
		ExecutedSteps: 3,
		TotalSteps:    3,
		DurationMS:    1200,
	})

	if len(pub.messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.messages))
	}
	msg := pub.messages[0]
	if msg.topic != "tapflow/flow/flow-oven/result" {
		t.Errorf("topic = %q", msg.topic)
	}
	if msg.retained {
		t.Error("flow results must not be retained")
	}

	var decoded flowResultMessage
	if err := json.Unmarshal(msg.payload, &decoded); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if !decoded.Success || decoded.ExecutionID != "exec-1" {
		t.Errorf("payload = %+v", decoded)
	}

	if len(rec.flowMetrics) != 1 {
		t.Fatalf("flow metrics = %d, want 1", len(rec.flowMetrics))
	}
	if rec.flowMetrics[0].status != "completed" {
		t.Errorf("metric status = %q, want completed", rec.flowMetrics[0].status)
	}

	if len(hub.events) != 1 || hub.events[0].channel != ChannelFlowCompleted {
		t.Errorf("broadcasts = %+v", hub.events)
	}
}

func TestSink_SensorCaptured_Numeric(t *testing.T) {
	pub := &fakePublisher{}
	rec := newFakeRecorder()
	hub := &fakeBroadcaster{}
	sink := NewSink(pub, rec, hub, 1, nil)

	sink.SensorCaptured("tablet-kitchen", "oven-temp", "180.5")

	if len(pub.messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.messages))
	}
	msg := pub.messages[0]
	if msg.topic != "tapflow/sensor/tablet-kitchen/oven-temp/state" {
		t.Errorf("topic = %q", msg.topic)
	}
	if !msg.retained {
		t.Error("sensor state must be retained")
	}

	if got := rec.sensorVals["oven-temp"]; got != 180.5 {
		t.Errorf("recorded value = %v, want 180.5", got)
	}
	if len(hub.events) != 1 || hub.events[0].channel != ChannelSensorCaptured {
		t.Errorf("broadcasts = %+v", hub.events)
	}
}

func TestSink_SensorCaptured_TextSkipsTimeSeries(t *testing.T) {
	pub := &fakePublisher{}
	rec := newFakeRecorder()
	sink := NewSink(pub, rec, nil, 1, nil)

	sink.SensorCaptured("tablet-kitchen", "oven-status", "PREHEATING")

	if len(pub.messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.messages))
	}
	if len(rec.sensorVals) != 0 {
		t.Errorf("text value written to time series: %v", rec.sensorVals)
	}
}

func TestSink_DriftRepaired(t *testing.T) {
	rec := newFakeRecorder()
	hub := &fakeBroadcaster{}
	sink := NewSink(nil, rec, hub, 1, nil)

	sink.DriftRepaired("tablet-kitchen", "oven-temp", 100)

	if len(rec.driftDists) != 1 || rec.driftDists[0] != 100 {
		t.Errorf("drift metrics = %v", rec.driftDists)
	}
	if len(hub.events) != 1 || hub.events[0].channel != ChannelDriftRepaired {
		t.Errorf("broadcasts = %+v", hub.events)
	}
}

func TestSink_NilCollaborators(t *testing.T) {
	sink := NewSink(nil, nil, nil, 1, nil)

	// Must not panic with every integration absent.
	sink.FlowCompleted("flow-oven", "tablet-kitchen", &executor.Result{Success: true})
	sink.SensorCaptured("tablet-kitchen", "oven-temp", "21.5")
	sink.DriftRepaired("tablet-kitchen", "oven-temp", 10)
}
