package events

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/nerrad567/tapflow-core/internal/executor"
	"github.com/nerrad567/tapflow-core/internal/infrastructure/mqtt"
)

// Broadcast channels for WebSocket subscribers.
const (
	ChannelFlowCompleted  = "flow.completed"
	ChannelSensorCaptured = "sensor.captured"
	ChannelDriftRepaired  = "drift.repaired"
)

// Publisher is the MQTT surface the sink needs. Satisfied by mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
}

// Recorder is the time series surface the sink needs. Satisfied by
// influxdb.Client.
type Recorder interface {
	WriteSensorValue(deviceID, sensorID string, value float64)
	WriteFlowMetric(flowID, deviceID, status string, durationMS int64, executedSteps int)
	WriteDriftMetric(deviceID, sensorID string, distance float64)
}

// Broadcaster pushes events to connected WebSocket clients. Satisfied by
// api.Hub.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Logger is the subset of the logging package this package needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Sink fans execution events out to the hub integrations: MQTT for the
// home automation bus, InfluxDB for telemetry, and the WebSocket hub for
// live UIs. Every collaborator is optional; a nil collaborator's fan-out
// is skipped.
//
// Publishing is best-effort. A failed publish is logged and never fed
// back into the execution that produced the event.
type Sink struct {
	mqtt   Publisher
	tsdb   Recorder
	hub    Broadcaster
	logger Logger
	topics mqtt.Topics
	qos    byte
}

// NewSink creates an event sink.
func NewSink(publisher Publisher, tsdb Recorder, hub Broadcaster, qos byte, logger Logger) *Sink {
	return &Sink{
		mqtt:   publisher,
		tsdb:   tsdb,
		hub:    hub,
		logger: logger,
		qos:    qos,
	}
}

// flowResultMessage is the MQTT payload for a completed execution.
type flowResultMessage struct {
	ExecutionID     string            `json:"execution_id"`
	FlowID          string            `json:"flow_id"`
	DeviceID        string            `json:"device_id"`
	Success         bool              `json:"success"`
	PartialSuccess  bool              `json:"partial_success"`
	ExecutedSteps   int               `json:"executed_steps"`
	TotalSteps      int               `json:"total_steps"`
	DurationMS      int64             `json:"duration_ms"`
	CapturedSensors map[string]string `json:"captured_sensors,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	CompletedAt     string            `json:"completed_at"`
}

// sensorStateMessage is the retained MQTT payload for a sensor value.
type sensorStateMessage struct {
	DeviceID   string `json:"device_id"`
	SensorID   string `json:"sensor_id"`
	Value      string `json:"value"`
	CapturedAt string `json:"captured_at"`
}

// FlowCompleted publishes the execution result and its telemetry.
func (s *Sink) FlowCompleted(flowID, deviceID string, result *executor.Result) {
	msg := flowResultMessage{
		ExecutionID:     result.ExecutionID,
		FlowID:          flowID,
		DeviceID:        deviceID,
		Success:         result.Success,
		PartialSuccess:  result.PartialSuccess,
		ExecutedSteps:   result.ExecutedSteps,
		TotalSteps:      result.TotalSteps,
		DurationMS:      result.DurationMS,
		CapturedSensors: result.CapturedSensors,
		ErrorMessage:    result.ErrorMessage,
		CompletedAt:     time.Now().UTC().Format(time.RFC3339),
	}

	if s.mqtt != nil {
		payload, err := json.Marshal(msg)
		if err == nil {
			if err := s.mqtt.Publish(s.topics.FlowResult(flowID), payload, s.qos, false); err != nil && s.logger != nil {
				s.logger.Warn("publishing flow result failed", "flow_id", flowID, "error", err)
			}
		}
	}

	if s.tsdb != nil {
		s.tsdb.WriteFlowMetric(flowID, deviceID, string(result.Status()), result.DurationMS, result.ExecutedSteps)
	}

	if s.hub != nil {
		s.hub.Broadcast(ChannelFlowCompleted, msg)
	}
}

// SensorCaptured publishes a captured sensor value.
//
// The MQTT state topic is retained so hub integrations receive the last
// value immediately on subscribe. Numeric values also go to the time
// series store; text values are bus-only.
func (s *Sink) SensorCaptured(deviceID, sensorID, value string) {
	msg := sensorStateMessage{
		DeviceID:   deviceID,
		SensorID:   sensorID,
		Value:      value,
		CapturedAt: time.Now().UTC().Format(time.RFC3339),
	}

	if s.mqtt != nil {
		payload, err := json.Marshal(msg)
		if err == nil {
			if err := s.mqtt.PublishRetained(s.topics.SensorState(deviceID, sensorID), payload); err != nil && s.logger != nil {
				s.logger.Warn("publishing sensor state failed", "sensor_id", sensorID, "error", err)
			}
		}
	}

	if s.tsdb != nil {
		if numeric, err := strconv.ParseFloat(value, 64); err == nil {
			s.tsdb.WriteSensorValue(deviceID, sensorID, numeric)
		}
	}

	if s.hub != nil {
		s.hub.Broadcast(ChannelSensorCaptured, msg)
	}
}

// DriftRepaired records a bounds repair observation.
func (s *Sink) DriftRepaired(deviceID, sensorID string, distance float64) {
	if s.tsdb != nil {
		s.tsdb.WriteDriftMetric(deviceID, sensorID, distance)
	}

	if s.hub != nil {
		s.hub.Broadcast(ChannelDriftRepaired, map[string]any{
			"device_id":   deviceID,
			"sensor_id":   sensorID,
			"distance":    distance,
			"repaired_at": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
