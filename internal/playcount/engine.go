// package playcount decides, once per play session, whether a track's cached
// play count is incremented.
//
// The engine consumes a live playback feed (position ticks plus discrete
// track-change, stop, and pause events) and mirrors the listening-history
// service's scrobble-threshold semantics without any network call: a natural
// finish always counts, an early end counts only when the played duration
// reaches min(4 minutes, half the track length), and a pause never counts.
// Each session increments at most once; replaying the same track starts a
// fresh session that can count again.
package playcount

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ewhitley/cadenza/internal/shared"
)

const (
	// DefaultFinishTolerance is how close to the end a position tick must get
	// for the session to count as a natural finish.
	DefaultFinishTolerance = 500 * time.Millisecond

	// DefaultThresholdCap is the upper bound on the early-end threshold.
	DefaultThresholdCap = 4 * time.Minute
)

// Counter is the slice of the registry the engine mutates.
type Counter interface {
	Playcount(id string) (int, bool)
	SetPlaycount(id string, count int)
}

// Listener is notified after an increment so dependent views can re-sort.
type Listener func(trackID string, playcount int)

// session tracks one continuous playback of one track.
type session struct {
	id          string
	trackID     string
	startTime   time.Time
	duration    time.Duration
	incremented bool
}

// Engine consumes playback events and applies the increment policy.
type Engine struct {
	counter         Counter
	logger          *log.Logger
	finishTolerance time.Duration
	thresholdCap    time.Duration
	now             func() time.Time

	mu        sync.Mutex
	current   *session
	listeners []Listener
}

// Opts contains optional Engine settings.
type Opts struct {
	FinishTolerance time.Duration
	ThresholdCap    time.Duration
	Logger          *log.Logger
	Now             func() time.Time // injectable clock for tests
}

// NewEngine creates a play-count engine over the given counter.
func NewEngine(counter Counter, opts Opts) *Engine {
	if opts.FinishTolerance <= 0 {
		opts.FinishTolerance = DefaultFinishTolerance
	}
	if opts.ThresholdCap <= 0 {
		opts.ThresholdCap = DefaultThresholdCap
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Engine{
		counter:         counter,
		logger:          opts.Logger.With("component", "playcount"),
		finishTolerance: opts.FinishTolerance,
		thresholdCap:    opts.ThresholdCap,
		now:             opts.Now,
	}
}

// RegisterListener adds an increment listener.
func (e *Engine) RegisterListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// SessionID returns the active session key, or empty when idle. Sessions are
// keyed uniquely so the same track played again later counts again.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return ""
	}
	return e.current.id
}

// HandleTick consumes one playback position report. A tick for a different
// track than the active session implies a track change: the old session ends
// under the threshold rule and a fresh one starts. A tick within the finish
// tolerance of the track's duration counts as a natural finish and increments
// unconditionally, however little was actually played.
func (e *Engine) HandleTick(trackID string, positionMS, durationMS int) {
	e.mu.Lock()
	var notify []notification

	if e.current == nil || e.current.trackID != trackID {
		notify = append(notify, e.endSessionLocked()...)
		e.current = &session{
			id:        shared.GenerateID(),
			trackID:   trackID,
			startTime: e.now(),
			duration:  time.Duration(durationMS) * time.Millisecond,
		}
	}

	position := time.Duration(positionMS) * time.Millisecond
	if !e.current.incremented && position >= e.current.duration-e.finishTolerance {
		notify = append(notify, e.incrementLocked("natural finish"))
	}

	e.mu.Unlock()
	e.dispatch(notify)
}

// TrackChanged ends the active session under the threshold rule.
func (e *Engine) TrackChanged() {
	e.mu.Lock()
	notify := e.endSessionLocked()
	e.mu.Unlock()
	e.dispatch(notify)
}

// Stopped ends the active session under the threshold rule, same as a track
// change.
func (e *Engine) Stopped() {
	e.mu.Lock()
	notify := e.endSessionLocked()
	e.mu.Unlock()
	e.dispatch(notify)
}

// Paused never increments, whatever the position. The session stays open so
// resuming keeps accumulating toward the threshold.
func (e *Engine) Paused() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		e.logger.Debug("playback paused", "track", e.current.trackID)
	}
}

type notification struct {
	trackID   string
	playcount int
}

// endSessionLocked applies the early-end rule to the active session and
// clears it: count when playedDuration >= min(cap, duration/2), unless the
// session already counted.
func (e *Engine) endSessionLocked() []notification {
	s := e.current
	e.current = nil
	if s == nil || s.incremented {
		return nil
	}

	played := e.now().Sub(s.startTime)
	threshold := s.duration / 2
	if threshold > e.thresholdCap {
		threshold = e.thresholdCap
	}

	if played < threshold {
		e.logger.Debug("session below threshold, not counting",
			"track", s.trackID, "played", played, "threshold", threshold)
		return nil
	}

	// reinstate so incrementLocked sees the session
	e.current = s
	n := e.incrementLocked("threshold reached")
	e.current = nil
	return []notification{n}
}

// incrementLocked bumps the cached count for the active session exactly once.
func (e *Engine) incrementLocked(reason string) notification {
	s := e.current
	s.incremented = true

	count, ok := e.counter.Playcount(s.trackID)
	if !ok {
		e.logger.Debug("increment skipped for unknown track", "track", s.trackID)
		return notification{}
	}

	e.counter.SetPlaycount(s.trackID, count+1)
	e.logger.Debug("playcount incremented",
		"track", s.trackID, "count", count+1, "reason", reason, "session", s.id)
	return notification{trackID: s.trackID, playcount: count + 1}
}

func (e *Engine) dispatch(notify []notification) {
	if len(notify) == 0 {
		return
	}
	e.mu.Lock()
	listeners := append([]Listener(nil), e.listeners...)
	e.mu.Unlock()

	for _, n := range notify {
		if n.trackID == "" {
			continue
		}
		for _, l := range listeners {
			l(n.trackID, n.playcount)
		}
	}
}
