package device

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// ─── HTTP Client ────────────────────────────────────────────────────────────

func TestHTTPClient_Tap(t *testing.T) {
	var gotPath string
	var gotBody map[string]int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 5*time.Second)
	if err := client.Tap(context.Background(), 540, 960); err != nil {
		t.Fatalf("Tap() error = %v", err)
	}

	if gotPath != "/tap" {
		t.Errorf("path = %q, want /tap", gotPath)
	}
	if gotBody["x"] != 540 || gotBody["y"] != 960 {
		t.Errorf("body = %v", gotBody)
	}
}

func TestHTTPClient_Snapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/snapshot" {
			t.Errorf("path = %q, want /snapshot", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{
			"activity": "com.example/.HomeActivity",
			"elements": [
				{"resource_id": "btn_settings", "bounds": {"x": 10, "y": 20, "width": 100, "height": 40}, "clickable": true}
			]
		}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 5*time.Second)
	snap, err := client.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	if snap.Activity != "com.example/.HomeActivity" {
		t.Errorf("Activity = %q", snap.Activity)
	}
	if len(snap.Elements) != 1 || snap.Elements[0].ResourceID != "btn_settings" {
		t.Errorf("Elements = %+v", snap.Elements)
	}
	if !snap.Elements[0].Clickable {
		t.Error("Clickable not decoded")
	}
}

func TestHTTPClient_CurrentActivity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"activity": "SettingsActivity"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 5*time.Second)
	activity, err := client.CurrentActivity(context.Background())
	if err != nil {
		t.Fatalf("CurrentActivity() error = %v", err)
	}
	if activity != "SettingsActivity" {
		t.Errorf("activity = %q", activity)
	}
}

func TestHTTPClient_CommandError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "invalid_coordinates", "message": "x out of range"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, 5*time.Second)
	err := client.Tap(context.Background(), 99999, 0)
	if !errors.Is(err, ErrCommand) {
		t.Fatalf("error = %v, want ErrCommand", err)
	}
	if errors.Is(err, ErrUnreachable) {
		t.Error("agent-reported failure classified as unreachable")
	}
}

func TestHTTPClient_Unreachable(t *testing.T) {
	// Nothing listens on this address.
	client := NewHTTPClient("http://127.0.0.1:1", time.Second)
	err := client.Tap(context.Background(), 0, 0)
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("error = %v, want ErrUnreachable", err)
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	client := NewHTTPClient(server.URL, 30*time.Second)
	err := client.Tap(ctx, 0, 0)
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("cancelled request error = %v, want ErrUnreachable", err)
	}
}

// ─── Registry ───────────────────────────────────────────────────────────────

func TestRegistry(t *testing.T) {
	reg := NewRegistry(map[string]string{
		"tablet-kitchen": "http://10.0.30.21:6790",
		"tablet-utility": "http://10.0.30.22:6790",
	}, 5*time.Second)

	if _, err := reg.Get("tablet-kitchen"); err != nil {
		t.Errorf("Get(tablet-kitchen) error = %v", err)
	}
	if _, err := reg.Get("tablet-garage"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("Get(unknown) error = %v, want ErrUnknownDevice", err)
	}

	ids := reg.DeviceIDs()
	if len(ids) != 2 || ids[0] != "tablet-kitchen" || ids[1] != "tablet-utility" {
		t.Errorf("DeviceIDs() = %v", ids)
	}
}
