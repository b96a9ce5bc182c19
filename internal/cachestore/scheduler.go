package cachestore

import (
	"sync"
	"time"
)

// FlushScheduler is the "flush after a quiet period or force-now" contract
// behind debounced cache writes. Schedule replaces any previously scheduled
// flush, so rapid successive saves coalesce into one write.
type FlushScheduler interface {
	// Schedule arranges for flush to run once the quiet period elapses,
	// superseding any flush scheduled earlier.
	Schedule(flush func())

	// Cancel drops any scheduled flush without running it.
	Cancel()
}

// TimerScheduler flushes after a fixed wall-clock quiet period.
type TimerScheduler struct {
	window time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewTimerScheduler creates a scheduler with the given quiet period.
func NewTimerScheduler(window time.Duration) *TimerScheduler {
	return &TimerScheduler{window: window}
}

// Schedule resets the quiet period and runs flush when it elapses.
func (t *TimerScheduler) Schedule(flush func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.window, flush)
}

// Cancel stops any pending flush.
func (t *TimerScheduler) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// ManualScheduler holds scheduled flushes until Fire is called. It exists so
// debounce behavior can be tested deterministically without wall-clock delays.
type ManualScheduler struct {
	mu      sync.Mutex
	pending func()
}

// NewManualScheduler creates an empty manual scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Schedule records flush as the pending action, replacing any earlier one.
func (m *ManualScheduler) Schedule(flush func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = flush
}

// Cancel drops the pending action.
func (m *ManualScheduler) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
}

// Pending reports whether a flush is waiting.
func (m *ManualScheduler) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil
}

// Fire runs and clears the pending flush, if any.
func (m *ManualScheduler) Fire() {
	m.mu.Lock()
	flush := m.pending
	m.pending = nil
	m.mu.Unlock()

	if flush != nil {
		flush()
	}
}
