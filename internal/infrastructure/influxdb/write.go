package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSensorValue writes a captured sensor reading to InfluxDB.
//
// Only numeric values are written to the time series; non-numeric
// captures (status text) are published to MQTT but not recorded here.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Device the sensor was captured from (e.g., "tablet-kitchen")
//   - sensorID: Sensor identifier (e.g., "oven-temp")
//   - value: The numeric value extracted from the screen
//
// Example:
//
//	client.WriteSensorValue("tablet-kitchen", "oven-temp", 180.0)
func (c *Client) WriteSensorValue(deviceID, sensorID string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sensor_values",
		map[string]string{
			"device_id": deviceID,
			"sensor_id": sensorID,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteFlowMetric writes flow execution telemetry to InfluxDB.
//
// Used for tracking execution duration, step counts, and reliability
// over time.
//
// Parameters:
//   - flowID: Flow identifier
//   - deviceID: Device the flow ran against
//   - status: Terminal status (completed, partial, failed)
//   - durationMS: Total execution duration in milliseconds
//   - executedSteps: Number of steps that ran (not skipped)
func (c *Client) WriteFlowMetric(flowID, deviceID, status string, durationMS int64, executedSteps int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"flow_executions",
		map[string]string{
			"flow_id":   flowID,
			"device_id": deviceID,
			"status":    status,
		},
		map[string]interface{}{
			"duration_ms":    durationMS,
			"executed_steps": executedSteps,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDriftMetric records an element drift observation.
//
// Tracks how far UI elements have drifted from their stored bounds,
// useful for spotting devices whose layouts change frequently.
//
// Parameters:
//   - deviceID: Device identifier
//   - sensorID: Sensor whose bounds drifted
//   - distance: Euclidean drift distance in pixels
func (c *Client) WriteDriftMetric(deviceID, sensorID string, distance float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"element_drift",
		map[string]string{
			"device_id": deviceID,
			"sensor_id": sensorID,
		},
		map[string]interface{}{
			"distance": distance,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
