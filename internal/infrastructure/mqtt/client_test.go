package mqtt

import (
	"errors"
	"strings"
	"testing"

	"github.com/nerrad567/tapflow-core/internal/infrastructure/config"
)

// ─── Topic Builders ───

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"sensor state", topics.SensorState("tablet-kitchen", "oven-temp"), "tapflow/sensor/tablet-kitchen/oven-temp/state"},
		{"flow result", topics.FlowResult("flow-oven-status"), "tapflow/flow/flow-oven-status/result"},
		{"flow progress", topics.FlowProgress("flow-oven-status"), "tapflow/flow/flow-oven-status/progress"},
		{"device status", topics.DeviceStatus("tablet-kitchen"), "tapflow/device/tablet-kitchen/status"},
		{"system status", topics.SystemStatus(), "tapflow/system/status"},
		{"all sensor states", topics.AllSensorStates(), "tapflow/sensor/+/+/state"},
		{"all flow results", topics.AllFlowResults(), "tapflow/flow/+/result"},
		{"all device statuses", topics.AllDeviceStatuses(), "tapflow/device/+/status"},
		{"all topics", topics.AllTopics(), "tapflow/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

// ─── Validation ───

// disconnectedClient returns a client that has never connected.
// Used to exercise validation paths that run before any network I/O.
func disconnectedClient() *Client {
	return &Client{
		cfg:           config.MQTTConfig{QoS: 1},
		subscriptions: make(map[string]subscription),
	}
}

func TestPublish_Validation(t *testing.T) {
	c := disconnectedClient()

	if err := c.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("tapflow/system/status", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid QoS error = %v, want ErrInvalidQoS", err)
	}

	oversized := make([]byte, maxPayloadSize+1)
	err := c.Publish("tapflow/system/status", oversized, 1, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversized payload error = %v, want ErrPublishFailed", err)
	}
	if err != nil && !strings.Contains(err.Error(), "exceeds maximum") {
		t.Errorf("oversized payload error = %q, want size detail", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := disconnectedClient()
	handler := func(topic string, payload []byte) error { return nil }

	if err := c.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("tapflow/#", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid QoS error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("tapflow/#", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v, want ErrSubscribeFailed", err)
	}
}

func TestSubscriptionTracking(t *testing.T) {
	c := disconnectedClient()

	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
	if c.HasSubscription("tapflow/#") {
		t.Error("HasSubscription() = true for untracked topic")
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "broker.local",
			Port:     8883,
			TLS:      true,
			ClientID: "tapflow-test",
		},
		Auth: config.MQTTAuthConfig{Username: "user", Password: "pass"},
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     60,
		},
	}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 {
		t.Fatalf("len(Servers) = %d, want 1", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "ssl://broker.local:8883" {
		t.Errorf("broker URL = %q, want ssl scheme", got)
	}
	if opts.ClientID != "tapflow-test" {
		t.Errorf("ClientID = %q, want %q", opts.ClientID, "tapflow-test")
	}
	if opts.Username != "user" {
		t.Errorf("Username = %q, want %q", opts.Username, "user")
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig = nil, want configured")
	}
}

func TestConfigureLWT(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "tapflow-test"},
	}
	opts := buildClientOptions(cfg)
	configureLWT(opts, "tapflow-test")

	if !opts.WillEnabled {
		t.Fatal("WillEnabled = false, want true")
	}
	if opts.WillTopic != "tapflow/system/status" {
		t.Errorf("WillTopic = %q, want tapflow/system/status", opts.WillTopic)
	}
	if !opts.WillRetained {
		t.Error("WillRetained = false, want true")
	}
	if !strings.Contains(string(opts.WillPayload), `"status":"offline"`) {
		t.Errorf("WillPayload = %q, want offline status", opts.WillPayload)
	}
}

func TestStatusPayloads(t *testing.T) {
	online := buildOnlinePayload("tapflow-test")
	if !strings.Contains(online, `"status":"online"`) {
		t.Errorf("online payload = %q, want online status", online)
	}

	offline := buildOfflinePayload("tapflow-test")
	if !strings.Contains(offline, `"status":"offline"`) {
		t.Errorf("offline payload = %q, want offline status", offline)
	}
	if !strings.Contains(offline, `"reason":"graceful_shutdown"`) {
		t.Errorf("offline payload = %q, want graceful_shutdown reason", offline)
	}
}
