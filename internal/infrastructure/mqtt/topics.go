package mqtt

import "fmt"

// Topic prefixes for the TapFlow MQTT scheme.
//
// All topics use the flat scheme: tapflow/{category}/...
const (
	// TopicPrefix is the base for all TapFlow topics.
	TopicPrefix = "tapflow"

	// TopicPrefixSensor is the base for sensor state topics.
	TopicPrefixSensor = "tapflow/sensor"

	// TopicPrefixFlow is the base for flow execution topics.
	TopicPrefixFlow = "tapflow/flow"

	// TopicPrefixDevice is the base for device-level topics.
	TopicPrefixDevice = "tapflow/device"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "tapflow/system"
)

// Topics provides builders for TapFlow MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.SensorState("tablet-kitchen", "oven-temp")
//	// Returns: "tapflow/sensor/tablet-kitchen/oven-temp/state"
type Topics struct{}

// SensorState returns the topic for a captured sensor value.
// Published retained so hub integrations get the last value on subscribe.
//
// Example: tapflow/sensor/tablet-kitchen/oven-temp/state
func (Topics) SensorState(deviceID, sensorID string) string {
	return fmt.Sprintf("%s/%s/%s/state", TopicPrefixSensor, deviceID, sensorID)
}

// FlowResult returns the topic for flow execution results.
//
// Example: tapflow/flow/flow-oven-status/result
func (Topics) FlowResult(flowID string) string {
	return fmt.Sprintf("%s/%s/result", TopicPrefixFlow, flowID)
}

// FlowRun returns the command topic that triggers a flow run.
// Hub automations publish here instead of calling the HTTP API.
//
// Example: tapflow/flow/flow-oven-status/run
func (Topics) FlowRun(flowID string) string {
	return fmt.Sprintf("%s/%s/run", TopicPrefixFlow, flowID)
}

// FlowProgress returns the topic for per-step execution progress events.
//
// Example: tapflow/flow/flow-oven-status/progress
func (Topics) FlowProgress(flowID string) string {
	return fmt.Sprintf("%s/%s/progress", TopicPrefixFlow, flowID)
}

// DeviceStatus returns the topic for device agent reachability status.
//
// Example: tapflow/device/tablet-kitchen/status
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixDevice, deviceID)
}

// SystemStatus returns the engine status topic (online/offline, LWT).
//
// Example: tapflow/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// ─── Wildcard Patterns for Subscriptions ───

// AllSensorStates returns a pattern matching all sensor state topics.
//
// Pattern: tapflow/sensor/+/+/state
func (Topics) AllSensorStates() string {
	return fmt.Sprintf("%s/+/+/state", TopicPrefixSensor)
}

// AllFlowResults returns a pattern matching all flow result topics.
//
// Pattern: tapflow/flow/+/result
func (Topics) AllFlowResults() string {
	return fmt.Sprintf("%s/+/result", TopicPrefixFlow)
}

// AllFlowRuns returns a pattern matching all flow run command topics.
//
// Pattern: tapflow/flow/+/run
func (Topics) AllFlowRuns() string {
	return fmt.Sprintf("%s/+/run", TopicPrefixFlow)
}

// AllDeviceStatuses returns a pattern matching all device status topics.
//
// Pattern: tapflow/device/+/status
func (Topics) AllDeviceStatuses() string {
	return fmt.Sprintf("%s/+/status", TopicPrefixDevice)
}

// AllTopics returns a pattern matching all TapFlow topics.
// Use with caution, this receives ALL traffic.
//
// Pattern: tapflow/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
