package executor

import (
	"time"

	"github.com/nerrad567/tapflow-core/internal/flow"
)

// Options control a single execution. Mode flags are independent and
// combine freely; all false is the permissive default.
type Options struct {
	Modes flow.Modes

	// TriggeredBy records who asked for this run ("scheduler", "api",
	// "manual"). Stored on the execution record.
	TriggeredBy string
}

// Config tunes the executor's retry and verification behaviour.
type Config struct {
	// MaxTransportRetries is how many times the whole flow is re-run
	// after a device transport failure. Logical failures never retry.
	MaxTransportRetries int

	// RetryBackoff is the delay before the first transport retry. The
	// delay doubles per attempt.
	RetryBackoff time.Duration

	// DriftRepairThreshold is the minimum drift distance before repair
	// mode rewrites stored bounds.
	DriftRepairThreshold float64

	// ActivityPollInterval and ActivityTimeout bound activity waits.
	ActivityPollInterval time.Duration
	ActivityTimeout      time.Duration
}

// withDefaults fills unset values with working defaults.
func (c Config) withDefaults() Config {
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
	if c.DriftRepairThreshold <= 0 {
		c.DriftRepairThreshold = 50
	}
	if c.ActivityPollInterval <= 0 {
		c.ActivityPollInterval = 500 * time.Millisecond
	}
	if c.ActivityTimeout <= 0 {
		c.ActivityTimeout = 5 * time.Second
	}
	return c
}
