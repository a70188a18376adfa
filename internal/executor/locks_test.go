package executor

import (
	"errors"
	"sync"
	"testing"
)

func TestLockRegistry_SameDeviceSerialised(t *testing.T) {
	reg := NewLockRegistry()

	release, err := reg.Acquire("tablet-kitchen")
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}

	if _, err := reg.Acquire("tablet-kitchen"); !errors.Is(err, ErrDeviceBusy) {
		t.Fatalf("second Acquire() error = %v, want ErrDeviceBusy", err)
	}

	release()
	release2, err := reg.Acquire("tablet-kitchen")
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	release2()
}

func TestLockRegistry_DistinctDevicesParallel(t *testing.T) {
	reg := NewLockRegistry()

	r1, err := reg.Acquire("tablet-kitchen")
	if err != nil {
		t.Fatalf("Acquire(kitchen) error = %v", err)
	}
	r2, err := reg.Acquire("tablet-utility")
	if err != nil {
		t.Fatalf("Acquire(utility) error = %v while kitchen locked", err)
	}
	r1()
	r2()
}

func TestLockRegistry_ReleaseIdempotent(t *testing.T) {
	reg := NewLockRegistry()

	release, err := reg.Acquire("tablet-kitchen")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	release()
	release() // second call must be a no-op, not an unlock panic

	release2, err := reg.Acquire("tablet-kitchen")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	release2()
}

func TestLockRegistry_Busy(t *testing.T) {
	reg := NewLockRegistry()

	if reg.Busy("tablet-kitchen") {
		t.Error("unlocked device reported busy")
	}
	release, err := reg.Acquire("tablet-kitchen")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !reg.Busy("tablet-kitchen") {
		t.Error("locked device not reported busy")
	}
	release()
	if reg.Busy("tablet-kitchen") {
		t.Error("released device still reported busy")
	}
}

func TestLockRegistry_ConcurrentAcquire(t *testing.T) {
	reg := NewLockRegistry()

	const attempts = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	held := 0
	maxHeld := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := reg.Acquire("tablet-kitchen")
			if err != nil {
				return // busy, expected for most goroutines
			}
			mu.Lock()
			held++
			if held > maxHeld {
				maxHeld = held
			}
			mu.Unlock()

			mu.Lock()
			held--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if maxHeld > 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxHeld)
	}
}
