package executor

import "errors"

var (
	// ErrDeviceBusy indicates another execution already holds the
	// device's lock. Callers receive this immediately; executions are
	// never silently queued behind one another.
	ErrDeviceBusy = errors.New("executor: device busy")

	// ErrFlowDisabled indicates the flow exists but is disabled.
	ErrFlowDisabled = errors.New("executor: flow disabled")

	// ErrDeviceMismatch indicates the flow targets a different device
	// than the one the caller named.
	ErrDeviceMismatch = errors.New("executor: flow targets another device")
)
