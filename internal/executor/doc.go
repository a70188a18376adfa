// Package executor is the flow execution engine: it replays recorded
// step sequences against device agents, verifies screen transitions,
// resolves drifted elements, captures sensor values, and aggregates a
// structured result per run.
//
// # Concurrency
//
// A per-device lock registry serialises executions for the same device;
// distinct devices run fully in parallel. A second execution against a
// locked device receives ErrDeviceBusy immediately, never queues.
//
// # Execution Modes
//
// Four independent flags combine freely. All false is the permissive
// default: steps not due are skipped and navigation mismatches only
// warn. Strict fails the flow on navigation mismatch. Repair rewrites
// drifted sensor bounds. Learn captures a UI snapshot after every step,
// failures included. Force bypasses skip analysis.
//
// # Failure Semantics
//
// Transport failures re-run the whole flow with doubling backoff up to
// a configured cap. Logical failures (wrong screen, element not found,
// agent-rejected command) are recorded on the step and never blindly
// retried. Extraction failures downgrade to an empty sensor value.
package executor
