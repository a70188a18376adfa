package device

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry maps device IDs to their agents. Agents are built once from
// configuration and shared; the registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry creates a registry with one HTTP agent per configured device.
//
// Parameters:
//   - devices: Map of device ID to agent base URL
//   - timeout: Per-request timeout applied to every agent
//
// Returns:
//   - *Registry: Registry ready for lookups
func NewRegistry(devices map[string]string, timeout time.Duration) *Registry {
	agents := make(map[string]Agent, len(devices))
	for id, baseURL := range devices {
		agents[id] = NewHTTPClient(baseURL, timeout)
	}
	return &Registry{agents: agents}
}

// Get returns the agent for a device.
//
// Returns:
//   - Agent: The device's agent
//   - error: ErrUnknownDevice if no agent is configured for the ID
func (r *Registry) Get(deviceID string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, deviceID)
	}
	return agent, nil
}

// Register adds or replaces the agent for a device.
// Used by tests to install mocks.
func (r *Registry) Register(deviceID string, agent Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[deviceID] = agent
}

// DeviceIDs returns the configured device IDs in sorted order.
func (r *Registry) DeviceIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
