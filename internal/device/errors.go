package device

import "errors"

// Error taxonomy for device agent operations.
//
// ErrUnreachable marks transport-level failures: the executor retries
// these at the flow level with backoff. ErrCommand marks failures the
// agent itself reported: the action reached the device but could not
// be performed, so retrying the transport won't help.
var (
	// ErrUnreachable indicates the agent could not be reached (network
	// failure, timeout, connection refused).
	ErrUnreachable = errors.New("device: agent unreachable")

	// ErrCommand indicates the agent rejected or failed the command.
	ErrCommand = errors.New("device: command failed")

	// ErrUnknownDevice indicates no agent is configured for the device ID.
	ErrUnknownDevice = errors.New("device: unknown device")
)
