// Package flow defines flow definitions, their typed steps, and the
// persistence layer for flows, execution history, and learn-mode
// snapshots.
//
// A flow is an ordered sequence of steps replayed against one device:
// navigate screens (tap, swipe, keyevent), wait for the UI to settle,
// and capture on-screen sensor values. Each step is a tagged variant
// with a fixed parameter struct for its type; steps are decoded and
// validated at load time so a malformed definition is rejected before
// execution ever starts.
//
// # Step Envelope Format
//
// Steps are stored as JSON envelopes:
//
//	{"type": "tap", "expected_activity": "SettingsActivity",
//	 "params": {"target": {"resource_id": "btn_settings"}}}
//
//	{"type": "wait", "params": {"refresh_attempts": 3, "refresh_delay_ms": 1000}}
//
//	{"type": "capture_sensor", "params": {"sensor_id": "oven-temp"}}
//
// # Persistence
//
// Definitions, execution history, and learned screens are stored in
// SQLite through Repository. Execution records carry a per-step
// breakdown as a JSON column; learned screens are append-only.
package flow
