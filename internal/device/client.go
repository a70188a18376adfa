package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient talks to the on-device automation agent over HTTP JSON.
//
// The agent exposes one endpoint per action:
//
//	POST /tap        {"x": 540, "y": 960}
//	POST /swipe      {"x1":..., "y1":..., "x2":..., "y2":..., "duration_ms":...}
//	POST /type       {"text": "1234"}
//	POST /keyevent   {"code": 4}
//	GET  /snapshot   -> {"elements": [...], "activity": "..."}
//	GET  /activity   -> {"activity": "..."}
//
// Error responses carry {"error": "...", "message": "..."}. Transport
// failures are wrapped as ErrUnreachable; agent-reported failures as
// ErrCommand, so callers can distinguish retryable from logical errors.
type HTTPClient struct {
	http    *http.Client
	baseURL string
}

// NewHTTPClient creates an agent client for the given base URL.
//
// Parameters:
//   - baseURL: Agent address (e.g. "http://10.0.30.21:6790")
//   - timeout: Per-request timeout
//
// Returns:
//   - *HTTPClient: Client ready for use
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// errorResponse is the agent's error payload.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// request performs an HTTP round-trip and classifies failures.
func (c *HTTPClient) request(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrUnreachable, method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrUnreachable, err)
	}

	if resp.StatusCode >= 400 {
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Message != "" {
			return nil, fmt.Errorf("%w: %s: %s", ErrCommand, errResp.Error, errResp.Message)
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrCommand, resp.StatusCode, respBody)
	}

	return respBody, nil
}

// Tap presses the screen at absolute coordinates.
func (c *HTTPClient) Tap(ctx context.Context, x, y int) error {
	_, err := c.request(ctx, http.MethodPost, "/tap", map[string]int{"x": x, "y": y})
	return err
}

// Swipe performs a straight-line gesture.
func (c *HTTPClient) Swipe(ctx context.Context, x1, y1, x2, y2, durationMS int) error {
	_, err := c.request(ctx, http.MethodPost, "/swipe", map[string]int{
		"x1": x1, "y1": y1, "x2": x2, "y2": y2, "duration_ms": durationMS,
	})
	return err
}

// TypeText types into the currently focused field.
func (c *HTTPClient) TypeText(ctx context.Context, text string) error {
	_, err := c.request(ctx, http.MethodPost, "/type", map[string]string{"text": text})
	return err
}

// KeyEvent sends an Android key code.
func (c *HTTPClient) KeyEvent(ctx context.Context, code int) error {
	_, err := c.request(ctx, http.MethodPost, "/keyevent", map[string]int{"code": code})
	return err
}

// Snapshot captures the current element tree and foreground activity.
func (c *HTTPClient) Snapshot(ctx context.Context) (*Snapshot, error) {
	data, err := c.request(ctx, http.MethodGet, "/snapshot", nil)
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: parsing snapshot: %w", ErrCommand, err)
	}
	return &snap, nil
}

// CurrentActivity returns the foreground activity identifier.
func (c *HTTPClient) CurrentActivity(ctx context.Context) (string, error) {
	data, err := c.request(ctx, http.MethodGet, "/activity", nil)
	if err != nil {
		return "", err
	}

	var resp struct {
		Activity string `json:"activity"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("%w: parsing activity: %w", ErrCommand, err)
	}
	return resp.Activity, nil
}
