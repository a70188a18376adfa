package sensor

import "errors"

var (
	// ErrNotFound indicates the requested sensor does not exist.
	ErrNotFound = errors.New("sensor: not found")

	// ErrExists indicates a sensor with the same ID already exists.
	ErrExists = errors.New("sensor: already exists")
)
