package executor

import (
	"sync"
)

// LockRegistry serialises executions per device. Executions for the
// same device never overlap; executions for distinct devices proceed
// fully in parallel. There is deliberately no global lock.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockRegistry creates an empty lock registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[string]*sync.Mutex)}
}

// Acquire attempts to take the device's lock without blocking.
//
// Returns:
//   - func(): Release function, safe to call exactly once via defer
//   - error: ErrDeviceBusy if another execution holds the lock
func (r *LockRegistry) Acquire(deviceID string) (func(), error) {
	r.mu.Lock()
	lock, ok := r.locks[deviceID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[deviceID] = lock
	}
	r.mu.Unlock()

	if !lock.TryLock() {
		return nil, ErrDeviceBusy
	}

	var once sync.Once
	return func() { once.Do(lock.Unlock) }, nil
}

// Busy reports whether the device's lock is currently held, without
// acquiring it. Used by the scheduler to defer work cheaply.
func (r *LockRegistry) Busy(deviceID string) bool {
	r.mu.Lock()
	lock, ok := r.locks[deviceID]
	r.mu.Unlock()

	if !ok {
		return false
	}
	if lock.TryLock() {
		lock.Unlock()
		return false
	}
	return true
}
