// Package device provides the client for the on-device automation agent.
//
// Each remote touchscreen runs an agent exposing an HTTP JSON API for
// taps, swipes, text input, key events, and screen snapshots. This
// package defines the Agent interface the executor consumes, the HTTP
// implementation, and a registry mapping device IDs to agents.
//
// # Error Classification
//
// Transport failures (network down, timeout) are wrapped as
// ErrUnreachable and retried at the flow level. Agent-reported failures
// are wrapped as ErrCommand and never retried blindly: the command
// reached the device, so the failure is logical, not transient.
package device
