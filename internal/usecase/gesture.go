package usecase

import (
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
)

// Gesture defaults: five volume-up presses, each within two seconds of the previous one.
const (
	DefaultGestureKey       = "volumeup"
	DefaultGestureWindow    = 2 * time.Second
	DefaultGestureThreshold = 5
)

// GestureDetector recognises the hidden admin gesture: threshold presses of
// a designated key with no gap longer than window between them.
type GestureDetector struct {
	mu        sync.Mutex
	key       string
	window    time.Duration
	threshold int
	tracker   domain.AdminGestureTracker
}

// NewGestureDetector creates a detector. Non-positive values fall back to defaults.
func NewGestureDetector(key string, window time.Duration, threshold int) *GestureDetector {
	if key == "" {
		key = DefaultGestureKey
	}
	if window <= 0 {
		window = DefaultGestureWindow
	}
	if threshold <= 0 {
		threshold = DefaultGestureThreshold
	}
	return &GestureDetector{
		key:       key,
		window:    window,
		threshold: threshold,
	}
}

// OnPhysicalInput records a key-down and reports whether it completed the gesture.
// Only the designated key qualifies; other keys leave the tracker untouched.
func (d *GestureDetector) OnPhysicalInput(key string, at time.Time) bool {
	if key != d.key {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	t := &d.tracker
	if !t.WindowStart.IsZero() && at.Sub(t.WindowStart) < d.window {
		t.Count++
	} else {
		t.Count = 1
	}
	t.WindowStart = at

	if t.Count >= d.threshold {
		t.Count = 0
		return true
	}
	return false
}

// Tracker returns a snapshot of the gesture tracker.
func (d *GestureDetector) Tracker() domain.AdminGestureTracker {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tracker
}

// Key returns the designated key name.
func (d *GestureDetector) Key() string {
	return d.key
}
