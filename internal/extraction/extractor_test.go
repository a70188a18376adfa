package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nerrad567/tapflow-core/internal/flow"
)

func TestHTTPExtractor_Extract(t *testing.T) {
	var gotPath string
	var gotBody extractRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"value": "180"}`))
	}))
	defer server.Close()

	ex := NewHTTPExtractor(map[string]string{"tablet-kitchen": server.URL}, 5*time.Second)
	region := flow.Bounds{X: 120, Y: 340, Width: 160, Height: 48}

	value, err := ex.Extract(context.Background(), "tablet-kitchen", region, "ocr", nil)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if value != "180" {
		t.Errorf("value = %q, want 180", value)
	}
	if gotPath != "/extract" {
		t.Errorf("path = %q, want /extract", gotPath)
	}
	if gotBody.Bounds != region || gotBody.Method != "ocr" {
		t.Errorf("request body = %+v", gotBody)
	}
}

func TestHTTPExtractor_UnknownDevice(t *testing.T) {
	ex := NewHTTPExtractor(map[string]string{}, time.Second)
	_, err := ex.Extract(context.Background(), "tablet-ghost", flow.Bounds{}, "ocr", nil)
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("error = %v, want ErrExtraction", err)
	}
}

func TestHTTPExtractor_AgentError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error": "ocr_failed"}`))
	}))
	defer server.Close()

	ex := NewHTTPExtractor(map[string]string{"tablet-kitchen": server.URL}, time.Second)
	value, err := ex.Extract(context.Background(), "tablet-kitchen",
		flow.Bounds{X: 0, Y: 0, Width: 10, Height: 10}, "ocr", nil)
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("error = %v, want ErrExtraction", err)
	}
	if value != "" {
		t.Errorf("failed extraction returned value %q", value)
	}
}

func TestHTTPExtractor_Unreachable(t *testing.T) {
	ex := NewHTTPExtractor(map[string]string{"tablet-kitchen": "http://127.0.0.1:1"}, time.Second)
	_, err := ex.Extract(context.Background(), "tablet-kitchen",
		flow.Bounds{X: 0, Y: 0, Width: 10, Height: 10}, "ocr", nil)
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("error = %v, want ErrExtraction", err)
	}
}
