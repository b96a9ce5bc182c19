package playcount

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ewhitley/cadenza/internal/shared"
)

// FeedEvent is one line of a recorded playback log. Kind is one of "tick",
// "trackchange", "stop", or "pause"; TrackID, PositionMS, and DurationMS only
// apply to ticks.
type FeedEvent struct {
	Time       time.Time `json:"time"`
	Kind       string    `json:"kind"`
	TrackID    string    `json:"trackId"`
	PositionMS int       `json:"positionMs"`
	DurationMS int       `json:"durationMs"`
}

// ReplayResult summarizes one log replay.
type ReplayResult struct {
	Events      int `json:"events"`
	Incremented int `json:"incremented"`
}

// Replay feeds a recorded playback log (a stream of JSON-encoded FeedEvents)
// through a fresh engine over the given counter. Session elapsed time comes
// from the event timestamps, not the wall clock, so a log replays with the
// same increments it would have produced live. A session left open at the end
// of the log is closed under the same rule as a stop.
func Replay(counter Counter, feed io.Reader, opts Opts) (*ReplayResult, error) {
	result := &ReplayResult{}

	cursor := time.Time{}
	opts.Now = func() time.Time { return cursor }
	engine := NewEngine(counter, opts)
	engine.RegisterListener(func(string, int) { result.Incremented++ })

	dec := json.NewDecoder(feed)
	for {
		var ev FeedEvent
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode playback event %d: %w", result.Events+1, err)
		}
		result.Events++

		if !ev.Time.IsZero() {
			cursor = ev.Time
		}
		switch ev.Kind {
		case "tick":
			engine.HandleTick(ev.TrackID, ev.PositionMS, ev.DurationMS)
		case "trackchange":
			engine.TrackChanged()
		case "stop":
			engine.Stopped()
		case "pause":
			engine.Paused()
		default:
			return nil, fmt.Errorf("%w: unknown playback event kind %q", shared.ErrInvalidArgument, ev.Kind)
		}
	}

	engine.Stopped()
	return result, nil
}
