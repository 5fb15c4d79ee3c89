package scanning

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ResourceManager bounds how many scans may run at once across callers.
// The monitor cycle and ad-hoc API scans share one manager so the total
// probe load on the host stays capped.
type ResourceManager interface {
	// Acquire blocks until a scan slot is available or the context is
	// canceled.
	Acquire(ctx context.Context, scanID string) error

	// Release returns the slot held by the given scan ID.
	Release(scanID string)

	// ActiveScans returns the current number of in-flight scans.
	ActiveScans() int

	// AvailableSlots returns the number of free scan slots.
	AvailableSlots() int

	// Close shuts the manager down; subsequent Acquire calls fail.
	Close() error
}

// FixedResourceManager implements ResourceManager with a fixed slot count.
type FixedResourceManager struct {
	capacity  int
	semaphore chan struct{}
	active    map[string]time.Time
	mutex     sync.RWMutex
	closed    bool
}

// NewFixedResourceManager creates a resource manager with the given
// capacity. A capacity below 1 is raised to 1.
func NewFixedResourceManager(capacity int) *FixedResourceManager {
	if capacity < 1 {
		capacity = 1
	}

	return &FixedResourceManager{
		capacity:  capacity,
		semaphore: make(chan struct{}, capacity),
		active:    make(map[string]time.Time),
	}
}

// Acquire blocks until a scan slot is available or the context is canceled.
func (rm *FixedResourceManager) Acquire(ctx context.Context, scanID string) error {
	rm.mutex.RLock()
	closed := rm.closed
	rm.mutex.RUnlock()
	if closed {
		return fmt.Errorf("resource manager is closed")
	}

	select {
	case rm.semaphore <- struct{}{}:
		rm.mutex.Lock()
		rm.active[scanID] = time.Now()
		rm.mutex.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns the slot held by the given scan ID. Releasing an unknown
// ID is a no-op.
func (rm *FixedResourceManager) Release(scanID string) {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	if _, exists := rm.active[scanID]; !exists {
		return
	}
	delete(rm.active, scanID)

	select {
	case <-rm.semaphore:
	default:
	}
}

// ActiveScans returns the current number of in-flight scans.
func (rm *FixedResourceManager) ActiveScans() int {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()
	return len(rm.active)
}

// AvailableSlots returns the number of free scan slots.
func (rm *FixedResourceManager) AvailableSlots() int {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()
	return rm.capacity - len(rm.active)
}

// Close shuts the manager down and releases every held slot.
func (rm *FixedResourceManager) Close() error {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	if rm.closed {
		return nil
	}
	rm.closed = true
	rm.active = make(map[string]time.Time)

	for {
		select {
		case <-rm.semaphore:
		default:
			return nil
		}
	}
}
