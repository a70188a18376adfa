package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nerrad567/tapflow-core/internal/flow"
)

// Extractor reads a value out of a screen region on a device. The
// executor treats extraction failures as non-fatal: a failed extraction
// yields an empty sensor value, never an aborted flow.
type Extractor interface {
	Extract(ctx context.Context, deviceID string, region flow.Bounds, method string, params json.RawMessage) (string, error)
}

// HTTPExtractor calls the device agent's extraction endpoint. The agent
// crops the current screen to the region and applies the requested
// method (ocr, pixel colour, template match) on-device, so the full
// screenshot never crosses the network.
type HTTPExtractor struct {
	http    *http.Client
	devices map[string]string
}

// NewHTTPExtractor creates an extractor for the configured devices.
//
// Parameters:
//   - devices: Map of device ID to agent base URL
//   - timeout: Per-request timeout; extraction includes on-device OCR,
//     so this is typically longer than command timeouts
//
// Returns:
//   - *HTTPExtractor: Extractor ready for use
func NewHTTPExtractor(devices map[string]string, timeout time.Duration) *HTTPExtractor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	urls := make(map[string]string, len(devices))
	for id, baseURL := range devices {
		urls[id] = baseURL
	}
	return &HTTPExtractor{
		http:    &http.Client{Timeout: timeout},
		devices: urls,
	}
}

// extractRequest is the agent's extraction request body.
type extractRequest struct {
	Bounds flow.Bounds     `json:"bounds"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// extractResponse is the agent's extraction response body.
type extractResponse struct {
	Value string `json:"value"`
}

// Extract reads a value from a screen region of the device.
//
// Returns:
//   - string: The extracted value, trimmed by the agent
//   - error: ErrExtraction wrapping the cause; callers log and continue
func (e *HTTPExtractor) Extract(ctx context.Context, deviceID string, region flow.Bounds, method string, params json.RawMessage) (string, error) {
	baseURL, ok := e.devices[deviceID]
	if !ok {
		return "", fmt.Errorf("%w: unknown device %q", ErrExtraction, deviceID)
	}

	body, err := json.Marshal(extractRequest{Bounds: region, Method: method, Params: params})
	if err != nil {
		return "", fmt.Errorf("%w: encoding request: %v", ErrExtraction, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: building request: %v", ErrExtraction, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: calling agent: %v", ErrExtraction, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: agent returned %d: %s", ErrExtraction, resp.StatusCode, data)
	}

	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrExtraction, err)
	}
	return out.Value, nil
}
