// package reconciler converges locally-mutated loved flags with the remote
// listening-history service.
//
// Mutations are optimistic and cache-first: the registry value is already
// applied and persisted before the reconciler pushes it, and it is never
// rolled back on failure. Failed pushes land in the cache metadata's
// unsynced-change queue and are retried from four triggers: batch-retry
// before the next push, once at session start (FlushPending after load),
// piggy-backed before other remote calls, and a periodic backstop timer.
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ewhitley/cadenza/internal/models"
	"github.com/ewhitley/cadenza/internal/registry"
	"github.com/ewhitley/cadenza/internal/services"
	"github.com/ewhitley/cadenza/internal/shared"
)

const (
	// DefaultRetryCap bounds automatic retries per unsynced change.
	DefaultRetryCap = 10
	// DefaultInterval is the periodic backstop retry interval.
	DefaultInterval = 5 * time.Minute
)

// Reconciler watches loved mutations on a registry and pushes them to the
// listening-history service in the background.
type Reconciler struct {
	reg      *registry.Registry
	history  services.HistoryService
	logger   *log.Logger
	retryCap int
	interval time.Duration

	mu       sync.Mutex // serializes flush rounds
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Opts contains optional Reconciler settings.
type Opts struct {
	RetryCap int
	Interval time.Duration
	Logger   *log.Logger
}

// New creates a Reconciler and registers it as a listener on the registry.
func New(reg *registry.Registry, history services.HistoryService, opts Opts) *Reconciler {
	if opts.RetryCap <= 0 {
		opts.RetryCap = DefaultRetryCap
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	r := &Reconciler{
		reg:      reg,
		history:  history,
		logger:   opts.Logger.With("component", "reconciler"),
		retryCap: opts.RetryCap,
		interval: opts.Interval,
		stop:     make(chan struct{}),
	}
	reg.RegisterListener(r.handleEvent)
	return r
}

// Start launches the periodic backstop retry loop.
func (r *Reconciler) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.FlushPending(ctx)
			case <-r.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the backstop loop and waits for in-flight rounds to settle.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
}

// handleEvent reacts to loved mutations. The push runs off the mutating
// goroutine so the caller never blocks on the network.
func (r *Reconciler) handleEvent(ev registry.Event) {
	if ev.Kind != registry.EventLoved {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx := context.Background()
		// pending entries go first so pushes reach the service in order
		r.FlushPending(ctx)
		r.push(ctx, ev.TrackID)
	}()
}

// FlushPending retries every queued change whose retry count is under the
// cap. Entries past the cap stay queued but are skipped until RetryNow.
func (r *Reconciler) FlushPending(ctx context.Context) {
	r.flush(ctx, false)
}

// RetryNow retries every queued change regardless of retry count. Meant for
// explicit user-initiated retries.
func (r *Reconciler) RetryNow(ctx context.Context) {
	r.flush(ctx, true)
}

// PendingCount reports how many changes await remote confirmation.
func (r *Reconciler) PendingCount() int {
	return len(r.reg.UnsyncedChanges())
}

func (r *Reconciler) flush(ctx context.Context, ignoreCap bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, change := range r.reg.UnsyncedChanges() {
		if !ignoreCap && change.RetryCount >= r.retryCap {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		r.pushLocked(ctx, change.TrackID)
	}
}

func (r *Reconciler) push(ctx context.Context, trackID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushLocked(ctx, trackID)
}

// pushLocked resolves the track's name/artist and attempts the remote write.
// The loved flag is read from the registry at push time, not carried from the
// triggering event: concurrent rounds for the same track would otherwise reach
// the service in inverted order and settle on a stale remote value. Success
// clears any queued entry; failure records one (or bumps its retry count). A
// track that no longer exists has nothing remote to reconcile.
func (r *Reconciler) pushLocked(ctx context.Context, trackID string) {
	track, ok := r.reg.GetTrack(trackID)
	if !ok {
		r.reg.ClearUnsyncedChange(trackID)
		return
	}
	loved := track.Loved

	if err := r.history.SetLoved(ctx, track.Name, track.PrimaryArtist(), loved); err != nil {
		r.logger.Warn("loved push failed, queued for retry",
			"track", trackID, "loved", loved, "err", err)
		r.reg.RecordFailedSync(trackID, loved)
		return
	}

	r.logger.Debug("loved push confirmed", "track", trackID, "loved", loved)
	r.reg.ClearUnsyncedChange(trackID)
}

// Parked returns queued changes that exhausted their automatic retries.
func (r *Reconciler) Parked() []models.UnsyncedChange {
	var parked []models.UnsyncedChange
	for _, change := range r.reg.UnsyncedChanges() {
		if change.RetryCount >= r.retryCap {
			parked = append(parked, change)
		}
	}
	return parked
}
