package flow

import "errors"

// Domain-specific errors for flow operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound is returned when a flow does not exist.
	ErrNotFound = errors.New("flow: not found")

	// ErrExists is returned when creating a flow with a duplicate ID.
	ErrExists = errors.New("flow: already exists")

	// ErrExecutionNotFound is returned when an execution record does not exist.
	ErrExecutionNotFound = errors.New("flow: execution not found")

	// ErrInvalidDefinition is returned when a flow definition fails validation.
	ErrInvalidDefinition = errors.New("flow: invalid definition")

	// ErrInvalidStep is returned when a step's parameters fail validation.
	ErrInvalidStep = errors.New("flow: invalid step")

	// ErrUnknownStepType is returned when a step declares an unrecognised type.
	ErrUnknownStepType = errors.New("flow: unknown step type")
)
