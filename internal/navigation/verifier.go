package navigation

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ActivityQuery reports the device's current foreground activity.
// Satisfied by the agent's CurrentActivity method.
type ActivityQuery func(ctx context.Context) (string, error)

// Verifier checks that navigation steps landed on the screen they were
// recorded against, polling for slow transitions.
type Verifier struct {
	pollInterval time.Duration
	timeout      time.Duration
}

// NewVerifier creates a Verifier.
//
// Parameters:
//   - pollInterval: Delay between activity polls
//   - timeout: Total time to wait for an expected activity
func NewVerifier(pollInterval, timeout time.Duration) *Verifier {
	return &Verifier{pollInterval: pollInterval, timeout: timeout}
}

// ActivityMatches reports whether the device's actual activity satisfies
// an expected activity pattern.
//
// Activity names are normalised to their short form before comparison:
// "com.vendor.app/.panel.MainActivity" and "MainActivity" refer to the
// same screen. A trailing "*" on the expected pattern makes it a prefix
// match, so "Settings*" accepts "SettingsActivity" and "SettingsDialog".
//
// An empty expected pattern matches anything: steps recorded without an
// activity carry no navigation expectation.
func ActivityMatches(actual, expected string) bool {
	if expected == "" {
		return true
	}

	actualShort := shortName(actual)
	expectedShort := shortName(expected)

	if prefix, ok := strings.CutSuffix(expectedShort, "*"); ok {
		return strings.HasPrefix(actualShort, prefix)
	}
	return actualShort == expectedShort
}

// WaitForActivity polls the device until its foreground activity matches
// expected, or the verifier's timeout elapses.
//
// Parameters:
//   - ctx: Cancels the wait early
//   - query: Reports the current foreground activity
//   - expected: Activity pattern (see ActivityMatches)
//
// Returns:
//   - string: The last observed activity, matching or not
//   - error: Context error, query error, or ErrActivityTimeout
func (v *Verifier) WaitForActivity(ctx context.Context, query ActivityQuery, expected string) (string, error) {
	deadline := time.Now().Add(v.timeout)
	var lastActivity string

	for {
		actual, err := query(ctx)
		if err != nil {
			return lastActivity, fmt.Errorf("querying activity: %w", err)
		}
		lastActivity = actual

		if ActivityMatches(actual, expected) {
			return actual, nil
		}
		if time.Now().After(deadline) {
			return lastActivity, fmt.Errorf("%w: expected %q, on %q after %s",
				ErrActivityTimeout, expected, lastActivity, v.timeout)
		}

		select {
		case <-ctx.Done():
			return lastActivity, ctx.Err()
		case <-time.After(v.pollInterval):
		}
	}
}

// shortName reduces an activity reference to its final class name.
// Handles both "package/.path.Class" component form and bare
// "package.path.Class" form.
func shortName(activity string) string {
	if idx := strings.LastIndex(activity, "/"); idx >= 0 {
		activity = activity[idx+1:]
	}
	if idx := strings.LastIndex(activity, "."); idx >= 0 {
		activity = activity[idx+1:]
	}
	return activity
}
