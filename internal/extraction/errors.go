package extraction

import "errors"

// ErrExtraction wraps all extraction failures. Extraction errors are
// never fatal to a flow; the sensor simply gets an empty value.
var ErrExtraction = errors.New("extraction: failed")
