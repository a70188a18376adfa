// Package events bridges the execution engine to the outside world.
//
// The executor reports completions, sensor captures, and drift repairs
// through a narrow sink interface; this package implements that sink by
// fanning each event out to MQTT (retained sensor state for hub
// integrations), InfluxDB (numeric telemetry), and the WebSocket hub
// (live UI updates). The executor never blocks on a slow integration:
// MQTT and InfluxDB writes are already asynchronous in their clients,
// and hub broadcasts drop rather than queue for slow consumers.
//
// Traffic also flows the other way: CommandListener subscribes to the
// flow run command topics so hub automations can trigger a flow over
// the bus instead of the HTTP API.
package events
