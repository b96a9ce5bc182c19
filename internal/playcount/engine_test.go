package playcount

import (
	"testing"
	"time"
)

// fakeCounter is an in-memory Counter; only known tracks can be counted.
type fakeCounter struct {
	counts map[string]int
}

func newFakeCounter(ids ...string) *fakeCounter {
	c := &fakeCounter{counts: map[string]int{}}
	for _, id := range ids {
		c.counts[id] = 0
	}
	return c
}

func (c *fakeCounter) Playcount(id string) (int, bool) {
	n, ok := c.counts[id]
	return n, ok
}

func (c *fakeCounter) SetPlaycount(id string, count int) {
	c.counts[id] = count
}

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func setup(ids ...string) (*Engine, *fakeCounter, *fakeClock) {
	counter := newFakeCounter(ids...)
	clock := newFakeClock()
	engine := NewEngine(counter, Opts{Now: clock.now})
	return engine, counter, clock
}

func TestNaturalFinish(t *testing.T) {
	engine, counter, _ := setup("t1")

	// track is 3:00; a tick 400ms from the end counts as finished
	engine.HandleTick("t1", 0, 180000)
	engine.HandleTick("t1", 179600, 180000)

	if counter.counts["t1"] != 1 {
		t.Errorf("expected increment on natural finish, got %d", counter.counts["t1"])
	}

	// further end-of-track ticks in the same session must not double count
	engine.HandleTick("t1", 179800, 180000)
	engine.HandleTick("t1", 180000, 180000)
	if counter.counts["t1"] != 1 {
		t.Errorf("session counted more than once, got %d", counter.counts["t1"])
	}
}

func TestNaturalFinishIgnoresPlayedDuration(t *testing.T) {
	engine, counter, _ := setup("t1")

	// seeking straight to the end still counts: position, not wall clock
	engine.HandleTick("t1", 179900, 180000)

	if counter.counts["t1"] != 1 {
		t.Errorf("expected increment on immediate finish tick, got %d", counter.counts["t1"])
	}
}

func TestEarlyEndThreshold(t *testing.T) {
	t.Run("below half duration", func(t *testing.T) {
		engine, counter, clock := setup("t1")

		// 4:00 track, threshold is half = 2:00
		engine.HandleTick("t1", 0, 240000)
		clock.advance(100 * time.Second)
		engine.TrackChanged()

		if counter.counts["t1"] != 0 {
			t.Errorf("expected no increment at 100s of a 240s track, got %d", counter.counts["t1"])
		}
	})

	t.Run("at half duration", func(t *testing.T) {
		engine, counter, clock := setup("t1")

		engine.HandleTick("t1", 0, 240000)
		clock.advance(130 * time.Second)
		engine.TrackChanged()

		if counter.counts["t1"] != 1 {
			t.Errorf("expected increment at 130s of a 240s track, got %d", counter.counts["t1"])
		}
	})

	t.Run("long track caps at four minutes", func(t *testing.T) {
		engine, counter, clock := setup("t1")

		// 10:00 track: half is 5:00 but the cap brings the threshold to 4:00
		engine.HandleTick("t1", 0, 600000)
		clock.advance(250 * time.Second)
		engine.Stopped()

		if counter.counts["t1"] != 1 {
			t.Errorf("expected capped threshold to count 250s of a 600s track, got %d", counter.counts["t1"])
		}
	})

	t.Run("long track below cap", func(t *testing.T) {
		engine, counter, clock := setup("t1")

		engine.HandleTick("t1", 0, 600000)
		clock.advance(230 * time.Second)
		engine.Stopped()

		if counter.counts["t1"] != 0 {
			t.Errorf("expected no increment under the 4 minute cap, got %d", counter.counts["t1"])
		}
	})
}

func TestTickForNewTrackEndsOldSession(t *testing.T) {
	engine, counter, clock := setup("t1", "t2")

	engine.HandleTick("t1", 0, 240000)
	clock.advance(130 * time.Second)

	// no explicit TrackChanged; the tick for t2 implies it
	engine.HandleTick("t2", 0, 180000)

	if counter.counts["t1"] != 1 {
		t.Errorf("expected implied track change to close t1's session, got %d", counter.counts["t1"])
	}
	if counter.counts["t2"] != 0 {
		t.Errorf("fresh session must not count yet, got %d", counter.counts["t2"])
	}
}

func TestPauseNeverCounts(t *testing.T) {
	engine, counter, clock := setup("t1")

	engine.HandleTick("t1", 0, 240000)
	clock.advance(200 * time.Second)
	engine.Paused()

	if counter.counts["t1"] != 0 {
		t.Errorf("pause must never increment, got %d", counter.counts["t1"])
	}

	// the session survives the pause and still counts on a real end
	engine.Stopped()
	if counter.counts["t1"] != 1 {
		t.Errorf("expected session to survive pause and count on stop, got %d", counter.counts["t1"])
	}
}

func TestReplayCountsAgain(t *testing.T) {
	engine, counter, _ := setup("t1")

	engine.HandleTick("t1", 179900, 180000)
	first := engine.SessionID()
	engine.Stopped()

	engine.HandleTick("t1", 0, 180000)
	second := engine.SessionID()
	engine.HandleTick("t1", 179900, 180000)

	if first == second || second == "" {
		t.Errorf("expected a fresh session key on replay, got %q then %q", first, second)
	}
	if counter.counts["t1"] != 2 {
		t.Errorf("expected replay to count again, got %d", counter.counts["t1"])
	}
}

func TestUnknownTrackSkipsIncrement(t *testing.T) {
	engine, counter, _ := setup("t1")

	var notified int
	engine.RegisterListener(func(string, int) { notified++ })

	engine.HandleTick("ghost", 179900, 180000)

	if len(counter.counts) != 1 {
		t.Errorf("unknown track must not be created, counts: %v", counter.counts)
	}
	if notified != 0 {
		t.Errorf("listener fired %d times for an unknown track", notified)
	}
}

func TestListenersNotifiedOnIncrement(t *testing.T) {
	engine, _, _ := setup("t1")

	var gotTrack string
	var gotCount int
	engine.RegisterListener(func(trackID string, playcount int) {
		gotTrack = trackID
		gotCount = playcount
	})

	engine.HandleTick("t1", 179900, 180000)

	if gotTrack != "t1" || gotCount != 1 {
		t.Errorf("expected notification (t1, 1), got (%q, %d)", gotTrack, gotCount)
	}
}

func TestSessionIDIdleWhenStopped(t *testing.T) {
	engine, _, _ := setup("t1")

	if id := engine.SessionID(); id != "" {
		t.Errorf("expected no session before playback, got %q", id)
	}
	engine.HandleTick("t1", 0, 180000)
	if id := engine.SessionID(); id == "" {
		t.Error("expected an active session after the first tick")
	}
	engine.Stopped()
	if id := engine.SessionID(); id != "" {
		t.Errorf("expected idle after stop, got %q", id)
	}
}
