// Package mqtt provides the MQTT client for publishing TapFlow state
// to the home-automation hub.
//
// This package wraps paho.mqtt.golang with:
//   - Connection lifecycle management (connect, LWT, graceful close)
//   - Automatic reconnection with subscription restoration
//   - Panic-safe message handlers
//   - Topic builders for the TapFlow topic scheme
//
// # Topic Scheme
//
//	tapflow/sensor/{device_id}/{sensor_id}/state   captured sensor values (retained)
//	tapflow/flow/{flow_id}/result                  flow execution results
//	tapflow/flow/{flow_id}/progress                per-step progress events
//	tapflow/device/{device_id}/status              device agent reachability
//	tapflow/system/status                          engine online/offline (retained, LWT)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.SensorState("tablet-kitchen", "oven-temp")
//	err = client.PublishRetained(topic, []byte(`{"value":"180"}`))
package mqtt
