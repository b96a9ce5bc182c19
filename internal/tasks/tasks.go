// package tasks implements bulk refresh operations over the track cache.
//
// The core abstraction is RefreshEngine, which populates the registry from
// the streaming service, reconciles loved status from the listening-history
// service, and reloads authoritative play counts. Operations emit progress
// updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ewhitley/cadenza/internal/matching"
	"github.com/ewhitley/cadenza/internal/reconciler"
	"github.com/ewhitley/cadenza/internal/registry"
	"github.com/ewhitley/cadenza/internal/services"
	"github.com/ewhitley/cadenza/internal/shared"
)

// StaleWindow is how old a cached play count may get before passive
// refresh-on-access considers it stale. Explicit reloads ignore it.
const StaleWindow = 24 * time.Hour

// BuildResult contains all data from a cache build operation.
type BuildResult struct {
	AlbumsFetched    int      // Albums successfully imported
	PlaylistsFetched int      // Playlists successfully imported
	TracksCached     int      // Track upserts performed (duplicates included)
	FailedSources    []string // Album/playlist ids that could not be fetched
}

// ReloadResult contains all data from a play-count reload operation.
type ReloadResult struct {
	Updated int // Tracks whose count was overwritten
	Failed  int // Tracks left stale after exhausted fetch retries
	Skipped int // Requested ids not present in the cache
}

// RefreshEngine orchestrates bulk cache refreshes against both remote
// collaborators.
type RefreshEngine struct {
	reg        *registry.Registry
	streaming  services.StreamingService
	history    services.HistoryService
	matcher    *matching.Matcher
	reconciler *reconciler.Reconciler
	logger     *log.Logger
}

// Opts contains optional RefreshEngine settings.
type Opts struct {
	Matcher    *matching.Matcher
	Reconciler *reconciler.Reconciler // enables piggy-backed unsynced retries
	Logger     *log.Logger
}

// NewRefreshEngine creates a RefreshEngine with the provided services.
func NewRefreshEngine(reg *registry.Registry, streaming services.StreamingService, history services.HistoryService, opts Opts) *RefreshEngine {
	if opts.Matcher == nil {
		opts.Matcher = matching.NewMatcher(matching.Opts{Logger: opts.Logger})
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &RefreshEngine{
		reg:        reg,
		streaming:  streaming,
		history:    history,
		matcher:    opts.Matcher,
		reconciler: opts.Reconciler,
		logger:     opts.Logger.With("component", "tasks"),
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *RefreshEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
		// Sent successfully
	default:
		// Channel full or closed, skip this update
	}
}

// retryPendingFirst piggy-backs queued loved retries on a remote call that is
// about to happen anyway.
func (e *RefreshEngine) retryPendingFirst(ctx context.Context, progress chan<- ProgressUpdate) {
	if e.reconciler == nil {
		return
	}
	if pending := e.reconciler.PendingCount(); pending > 0 {
		e.sendProgress(progress, retryUnsyncedUpdate(pending))
		e.reconciler.FlushPending(ctx)
	}
}

// BuildCache imports the given albums and playlists into the registry,
// populating immutable track fields on first sight. Sources that fail to
// fetch are recorded and skipped; the rest of the build proceeds.
func (e *RefreshEngine) BuildCache(ctx context.Context, progress chan<- ProgressUpdate, albumIDs, playlistIDs []string) (*BuildResult, error) {
	if e.streaming == nil {
		return nil, fmt.Errorf("%w: streaming service not initialized", shared.ErrInvalidConfig)
	}

	result := &BuildResult{}

	for i, albumID := range albumIDs {
		e.sendProgress(progress, fetchAlbumUpdate(i+1, len(albumIDs), albumID))

		listing, err := e.streaming.GetAlbum(ctx, albumID)
		if err != nil {
			e.logger.Warn("album fetch failed", "album", albumID, "err", err)
			result.FailedSources = append(result.FailedSources, albumID)
			continue
		}
		e.importAlbum(listing)
		result.AlbumsFetched++
		result.TracksCached += len(listing.Tracks)
	}

	for i, playlistID := range playlistIDs {
		e.sendProgress(progress, fetchPlaylistUpdate(i+1, len(playlistIDs), playlistID))

		listing, err := e.streaming.GetPlaylist(ctx, playlistID)
		if err != nil {
			e.logger.Warn("playlist fetch failed", "playlist", playlistID, "err", err)
			result.FailedSources = append(result.FailedSources, playlistID)
			continue
		}
		e.importPlaylist(listing)
		result.PlaylistsFetched++
		result.TracksCached += len(listing.Tracks)
	}

	e.reg.Flush()
	return result, nil
}

func (e *RefreshEngine) importAlbum(listing *services.AlbumListing) {
	e.reg.UpsertAlbum(listing.ID, listing.Title, listing.Artist)
	for _, info := range listing.Tracks {
		if err := e.reg.UpsertTrack(info); err != nil {
			e.logger.Warn("skipping invalid track", "track", info.ID, "err", err)
			continue
		}
		e.reg.LinkTrackToAlbum(info.ID, listing.ID)
	}
}

func (e *RefreshEngine) importPlaylist(listing *services.PlaylistListing) {
	e.reg.UpsertPlaylist(listing.ID, listing.Name)
	for _, item := range listing.Tracks {
		info := item.Track
		if err := e.reg.UpsertTrack(info); err != nil {
			e.logger.Warn("skipping invalid track", "track", info.ID, "err", err)
			continue
		}
		if info.AlbumID != "" {
			e.reg.UpsertAlbum(info.AlbumID, item.AlbumTitle, item.AlbumArtist)
			e.reg.LinkTrackToAlbum(info.ID, info.AlbumID)
		}
		e.reg.LinkTrackToPlaylist(info.ID, listing.ID, info.AlbumID)
	}
}

// RefreshLoved fetches the user's loved listing and marks matching cached
// tracks. Returns how many remote entries found a track.
func (e *RefreshEngine) RefreshLoved(ctx context.Context, progress chan<- ProgressUpdate) (int, error) {
	if e.history == nil {
		return 0, fmt.Errorf("%w: history service not initialized", shared.ErrInvalidConfig)
	}
	username := e.reg.Metadata().ListeningHistoryUsername
	if username == "" {
		return 0, fmt.Errorf("%w: listening-history username", shared.ErrMissingArgument)
	}

	e.retryPendingFirst(ctx, progress)

	e.sendProgress(progress, fetchLovedUpdate(username))
	entries, err := e.history.LovedTracks(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch loved tracks: %w", err)
	}

	e.sendProgress(progress, matchLovedUpdate(len(entries)))
	matched := e.matcher.Apply(e.reg, entries)
	e.logger.Info("loved refresh complete", "entries", len(entries), "matched", matched)

	e.reg.Flush()
	return matched, nil
}

// ReloadPlaycounts fetches authoritative counts for the given tracks and
// overwrites the cached values unconditionally, regardless of the staleness
// window used for passive refresh. Fetch failures leave the cached value in
// place; the track stays stale and implicitly flagged for the next refresh.
func (e *RefreshEngine) ReloadPlaycounts(ctx context.Context, progress chan<- ProgressUpdate, trackIDs []string) (*ReloadResult, error) {
	if e.history == nil {
		return nil, fmt.Errorf("%w: history service not initialized", shared.ErrInvalidConfig)
	}
	username := e.reg.Metadata().ListeningHistoryUsername
	if username == "" {
		return nil, fmt.Errorf("%w: listening-history username", shared.ErrMissingArgument)
	}

	e.retryPendingFirst(ctx, progress)

	result := &ReloadResult{}
	for i, id := range trackIDs {
		track, ok := e.reg.GetTrack(id)
		if !ok {
			result.Skipped++
			continue
		}

		e.sendProgress(progress, fetchPlaycountUpdate(i+1, len(trackIDs), track.Name))

		count, err := e.history.TrackPlaycount(ctx, username, track.Name, track.PrimaryArtist())
		if err != nil {
			e.logger.Warn("playcount fetch failed, keeping stale value",
				"track", id, "err", err)
			result.Failed++
			continue
		}
		e.reg.SetPlaycount(id, count)
		result.Updated++
	}

	e.reg.Flush()
	return result, nil
}

// RefreshStale reloads play counts for every track whose cached count is
// older than StaleWindow.
func (e *RefreshEngine) RefreshStale(ctx context.Context, progress chan<- ProgressUpdate) (*ReloadResult, error) {
	return e.ReloadPlaycounts(ctx, progress, e.reg.StaleTracks(StaleWindow))
}
