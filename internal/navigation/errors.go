package navigation

import "errors"

// ErrActivityTimeout indicates the device never reached the expected
// activity within the verifier's timeout.
var ErrActivityTimeout = errors.New("navigation: activity timeout")
