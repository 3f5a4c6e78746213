// Package lib holds small engine-support pieces: a change detector for
// sensor readings and a keyed mutex for per-device serialization.
package lib

import (
	"sync"
	"time"

	"github.com/hearthd/hearth/types"
)

// A ChangeDetector decides whether a fresh sensor reading is worth
// broadcasting. A reading passes when it differs from the last one sent for
// its kind and the per-kind throttle interval has elapsed. Each kind is
// tracked independently.
type ChangeDetector struct {
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
	lastVal  map[string]types.Value
}

// NewChangeDetector returns a detector with the given throttle interval.
func NewChangeDetector(interval time.Duration) *ChangeDetector {
	return &ChangeDetector{
		interval: interval,
		now:      time.Now,
		lastSent: make(map[string]time.Time),
		lastVal:  make(map[string]types.Value),
	}
}

// SetClock overrides the time source. Intended for tests.
func (d *ChangeDetector) SetClock(now func() time.Time) { d.now = now }

// Consider reports whether the reading should be broadcast, and if so,
// records it as the last sent value for its kind.
func (d *ChangeDetector) Consider(kind string, value types.Value) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, seen := d.lastVal[kind]; seen && prev == value {
		return false
	}
	now := d.now()
	if sent, ok := d.lastSent[kind]; ok && now.Sub(sent) < d.interval {
		return false
	}
	d.lastVal[kind] = value
	d.lastSent[kind] = now
	return true
}
