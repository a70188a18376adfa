// Package influxdb provides time series recording for captured sensor
// values and flow execution telemetry.
//
// The integration is optional: when disabled in config, Connect returns
// ErrDisabled and the rest of the system runs without time series
// recording. Writes are non-blocking and batched by the underlying
// influxdb-client-go write API; failures never affect flow execution.
//
// # Measurements
//
//	sensor_values    numeric sensor captures, tagged by device_id and sensor_id
//	flow_executions  execution duration and step counts, tagged by flow_id, device_id, status
//	element_drift    drift distances observed during element resolution
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    client = nil // run without time series
//	} else if err != nil {
//	    return err
//	}
package influxdb
