package cachestore

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestManualScheduler(t *testing.T) {
	sched := NewManualScheduler()
	var fires int

	if sched.Pending() {
		t.Error("fresh scheduler should have nothing pending")
	}

	sched.Schedule(func() { fires++ })
	sched.Schedule(func() { fires++ })
	if !sched.Pending() {
		t.Error("expected a pending flush after Schedule")
	}

	sched.Fire()
	if fires != 1 {
		t.Errorf("expected coalesced flushes to fire once, got %d", fires)
	}
	if sched.Pending() {
		t.Error("firing should clear the pending flush")
	}

	sched.Fire()
	if fires != 1 {
		t.Errorf("firing with nothing pending should be a no-op, got %d", fires)
	}

	sched.Schedule(func() { fires++ })
	sched.Cancel()
	sched.Fire()
	if fires != 1 {
		t.Errorf("cancelled flush should not fire, got %d", fires)
	}
}

func TestTimerScheduler(t *testing.T) {
	t.Run("fires after quiet period", func(t *testing.T) {
		sched := NewTimerScheduler(10 * time.Millisecond)
		var fires atomic.Int32

		sched.Schedule(func() { fires.Add(1) })

		deadline := time.Now().Add(time.Second)
		for fires.Load() == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if fires.Load() != 1 {
			t.Errorf("expected one fire, got %d", fires.Load())
		}
	})

	t.Run("reschedule supersedes", func(t *testing.T) {
		sched := NewTimerScheduler(20 * time.Millisecond)
		var first, second atomic.Int32

		sched.Schedule(func() { first.Add(1) })
		sched.Schedule(func() { second.Add(1) })

		deadline := time.Now().Add(time.Second)
		for second.Load() == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if first.Load() != 0 {
			t.Error("superseded flush should not fire")
		}
		if second.Load() != 1 {
			t.Errorf("expected replacement flush to fire once, got %d", second.Load())
		}
	})

	t.Run("cancel stops pending flush", func(t *testing.T) {
		sched := NewTimerScheduler(20 * time.Millisecond)
		var fires atomic.Int32

		sched.Schedule(func() { fires.Add(1) })
		sched.Cancel()

		time.Sleep(60 * time.Millisecond)
		if fires.Load() != 0 {
			t.Errorf("cancelled flush fired %d times", fires.Load())
		}
	})
}
