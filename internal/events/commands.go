package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/tapflow-core/internal/executor"
	"github.com/nerrad567/tapflow-core/internal/flow"
	"github.com/nerrad567/tapflow-core/internal/infrastructure/mqtt"
)

// Subscriber is the MQTT subscription surface the listener needs.
// Satisfied by mqtt.Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Runner executes flows on demand. Satisfied by executor.Executor.
type Runner interface {
	Execute(ctx context.Context, deviceID, flowID string, opts executor.Options) (*executor.Result, error)
}

// FlowLookup resolves flow definitions. Satisfied by flow.Repository.
type FlowLookup interface {
	GetByID(ctx context.Context, id string) (*flow.Definition, error)
}

// runCommand is the payload accepted on a flow run topic. Modes, when
// present, replace the flow's default modes for this run.
type runCommand struct {
	Modes *flow.Modes `json:"modes"`
}

// CommandListener triggers flow executions from the MQTT bus: hub
// automations run a flow by publishing to tapflow/flow/{flow}/run,
// without going through the HTTP API.
//
// The outcome travels back over the usual fan-out, landing on
// tapflow/flow/{flow}/result like any other execution.
type CommandListener struct {
	sub    Subscriber
	flows  FlowLookup
	runner Runner
	logger Logger
	topics mqtt.Topics
	qos    byte
}

// NewCommandListener creates a listener. Call Start to subscribe.
func NewCommandListener(sub Subscriber, flows FlowLookup, runner Runner, qos byte, logger Logger) *CommandListener {
	return &CommandListener{
		sub:    sub,
		flows:  flows,
		runner: runner,
		logger: logger,
		qos:    qos,
	}
}

// Start subscribes to the flow run command topics. The subscription is
// restored automatically after a reconnect.
func (l *CommandListener) Start(ctx context.Context) error {
	return l.sub.Subscribe(l.topics.AllFlowRuns(), l.qos, func(topic string, payload []byte) error {
		return l.handleRun(ctx, topic, payload)
	})
}

// handleRun executes the flow named by the topic. Returned errors are
// logged by the MQTT client; a command for a busy device is dropped,
// never queued.
func (l *CommandListener) handleRun(ctx context.Context, topic string, payload []byte) error {
	flowID, ok := flowIDFromRunTopic(topic)
	if !ok {
		return fmt.Errorf("events: not a flow run topic: %q", topic)
	}

	var cmd runCommand
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("events: decoding run command for flow %q: %w", flowID, err)
		}
	}

	def, err := l.flows.GetByID(ctx, flowID)
	if err != nil {
		return fmt.Errorf("events: loading flow %q: %w", flowID, err)
	}

	modes := def.DefaultModes
	if cmd.Modes != nil {
		modes = *cmd.Modes
	}

	result, err := l.runner.Execute(ctx, def.DeviceID, flowID, executor.Options{
		Modes:       modes,
		TriggeredBy: "mqtt",
	})
	if err != nil {
		if errors.Is(err, executor.ErrDeviceBusy) {
			return fmt.Errorf("events: device %q busy, dropping run command for flow %q", def.DeviceID, flowID)
		}
		return fmt.Errorf("events: running flow %q: %w", flowID, err)
	}

	if l.logger != nil {
		l.logger.Info("flow run command finished",
			"flow_id", flowID,
			"device_id", def.DeviceID,
			"success", result.Success,
		)
	}
	return nil
}

// flowIDFromRunTopic extracts the flow ID from tapflow/flow/{id}/run.
func flowIDFromRunTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, mqtt.TopicPrefixFlow+"/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/run")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
