package events

import (
	"context"
	"sync"
	"testing"

	"github.com/nerrad567/tapflow-core/internal/executor"
	"github.com/nerrad567/tapflow-core/internal/flow"
	"github.com/nerrad567/tapflow-core/internal/infrastructure/mqtt"
)

// ─── Fakes ──────────────────────────────────────────────────────────────────

type fakeSubscriber struct {
	topic   string
	qos     byte
	handler mqtt.MessageHandler
}

func (s *fakeSubscriber) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	s.topic = topic
	s.qos = qos
	s.handler = handler
	return nil
}

type execCall struct {
	deviceID string
	flowID   string
	opts     executor.Options
}

type fakeCommandRunner struct {
	mu    sync.Mutex
	err   error
	calls []execCall
}

func (r *fakeCommandRunner) Execute(_ context.Context, deviceID, flowID string, opts executor.Options) (*executor.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.calls = append(r.calls, execCall{deviceID: deviceID, flowID: flowID, opts: opts})
	return &executor.Result{Success: true, FlowID: flowID, DeviceID: deviceID}, nil
}

type fakeFlowLookup struct {
	flows map[string]*flow.Definition
}

func (f *fakeFlowLookup) GetByID(_ context.Context, id string) (*flow.Definition, error) {
	def, ok := f.flows[id]
	if !ok {
		return nil, flow.ErrNotFound
	}
	return def, nil
}

func commandHarness(t *testing.T, runner *fakeCommandRunner) *fakeSubscriber {
	t.Helper()
	sub := &fakeSubscriber{}
	lookup := &fakeFlowLookup{flows: map[string]*flow.Definition{
		"flow-oven": {
			ID:           "flow-oven",
			DeviceID:     "tablet-kitchen",
			Enabled:      true,
			DefaultModes: flow.Modes{Repair: true},
		},
	}}
	l := NewCommandListener(sub, lookup, runner, 1, nil)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return sub
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestCommandListener_SubscribesToRunTopics(t *testing.T) {
	sub := commandHarness(t, &fakeCommandRunner{})

	if sub.topic != "tapflow/flow/+/run" {
		t.Errorf("topic = %q, want tapflow/flow/+/run", sub.topic)
	}
	if sub.qos != 1 {
		t.Errorf("qos = %d, want 1", sub.qos)
	}
	if sub.handler == nil {
		t.Fatal("no handler registered")
	}
}

func TestCommandListener_RunsFlow(t *testing.T) {
	runner := &fakeCommandRunner{}
	sub := commandHarness(t, runner)

	if err := sub.handler("tapflow/flow/flow-oven/run", nil); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	if len(runner.calls) != 1 {
		t.Fatalf("runner called %d times, want 1", len(runner.calls))
	}
	call := runner.calls[0]
	if call.deviceID != "tablet-kitchen" || call.flowID != "flow-oven" {
		t.Errorf("call = %+v", call)
	}
	if call.opts.TriggeredBy != "mqtt" {
		t.Errorf("TriggeredBy = %q, want mqtt", call.opts.TriggeredBy)
	}
	if !call.opts.Modes.Repair {
		t.Error("default modes not carried through")
	}
}

func TestCommandListener_ModeOverrideReplacesDefaults(t *testing.T) {
	runner := &fakeCommandRunner{}
	sub := commandHarness(t, runner)

	payload := []byte(`{"modes": {"learn": true, "force": true}}`)
	if err := sub.handler("tapflow/flow/flow-oven/run", payload); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	modes := runner.calls[0].opts.Modes
	if !modes.Learn || !modes.Force {
		t.Errorf("modes = %+v, want learn and force", modes)
	}
	if modes.Repair {
		t.Error("override merged with defaults instead of replacing them")
	}
}

func TestCommandListener_UnknownFlow(t *testing.T) {
	runner := &fakeCommandRunner{}
	sub := commandHarness(t, runner)

	if err := sub.handler("tapflow/flow/flow-ghost/run", nil); err == nil {
		t.Fatal("expected an error for an unknown flow")
	}
	if len(runner.calls) != 0 {
		t.Error("runner called for an unknown flow")
	}
}

func TestCommandListener_BusyDeviceDropped(t *testing.T) {
	runner := &fakeCommandRunner{err: executor.ErrDeviceBusy}
	sub := commandHarness(t, runner)

	if err := sub.handler("tapflow/flow/flow-oven/run", nil); err == nil {
		t.Fatal("expected an error for a busy device")
	}
}

func TestCommandListener_MalformedPayload(t *testing.T) {
	runner := &fakeCommandRunner{}
	sub := commandHarness(t, runner)

	if err := sub.handler("tapflow/flow/flow-oven/run", []byte("{not json")); err == nil {
		t.Fatal("expected an error for a malformed payload")
	}
	if len(runner.calls) != 0 {
		t.Error("runner called despite malformed payload")
	}
}

func TestFlowIDFromRunTopic(t *testing.T) {
	tests := []struct {
		topic string
		id    string
		ok    bool
	}{
		{"tapflow/flow/flow-oven/run", "flow-oven", true},
		{"tapflow/flow/flow-oven/result", "", false},
		{"tapflow/sensor/tablet-kitchen/temp/state", "", false},
		{"tapflow/flow//run", "", false},
		{"tapflow/flow/a/b/run", "", false},
	}
	for _, tt := range tests {
		id, ok := flowIDFromRunTopic(tt.topic)
		if id != tt.id || ok != tt.ok {
			t.Errorf("flowIDFromRunTopic(%q) = (%q, %v), want (%q, %v)",
				tt.topic, id, ok, tt.id, tt.ok)
		}
	}
}
