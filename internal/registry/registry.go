// package registry implements the canonical in-memory track cache.
//
// The Registry is the sole owner of the per-user cache structure: all reads
// and mutations for tracks, albums, and playlists pass through it, and it
// keeps the derived indexes consistent after every call. Mutations update
// memory synchronously, then persist through the configured [Persister] —
// debounced by default, immediate for critical operations (love/unlove,
// post-eviction retries). Dependent views register listeners instead of the
// registry knowing anything about a UI layer.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ewhitley/cadenza/internal/models"
	"github.com/ewhitley/cadenza/internal/shared"
)

// Persister is the slice of the cache store the registry depends on.
// Save is debounced; SaveNow writes immediately. Both report quota
// exhaustion synchronously via [shared.ErrCacheQuotaExceeded].
type Persister interface {
	Save(*models.Snapshot) error
	SaveNow(*models.Snapshot) error
}

// EventKind identifies the mutation behind a listener notification.
type EventKind int

const (
	EventLoved EventKind = iota
	EventPlaycount
	EventEvicted
)

func (k EventKind) String() string {
	switch k {
	case EventLoved:
		return "loved"
	case EventPlaycount:
		return "playcount"
	case EventEvicted:
		return "evicted"
	default:
		return ""
	}
}

// Event describes one mutation that already took effect in memory.
type Event struct {
	Kind      EventKind
	TrackID   string
	Loved     bool
	Playcount int
}

// Listener receives mutation events after the registry state is updated.
// Listeners run on the mutating goroutine and must not block.
type Listener func(Event)

// Registry owns one user's cache snapshot and its derived indexes.
type Registry struct {
	mu        sync.Mutex
	snap      *models.Snapshot
	store     Persister
	logger    *log.Logger
	now       func() time.Time
	listeners []Listener
}

// Opts contains optional Registry settings.
type Opts struct {
	Store  Persister
	Logger *log.Logger
	Now    func() time.Time // injectable clock for tests
}

// New creates a Registry over the given snapshot, rebuilding derived indexes
// so a stale or hand-assembled snapshot cannot leak index drift into reads.
func New(snap *models.Snapshot, opts Opts) *Registry {
	if snap == nil {
		snap = models.NewSnapshot("", "")
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	rebuildIndexes(snap)

	return &Registry{
		snap:   snap,
		store:  opts.Store,
		logger: opts.Logger.With("component", "registry", "user", snap.Metadata.UserID),
		now:    opts.Now,
	}
}

// RegisterListener adds a mutation listener.
func (r *Registry) RegisterListener(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// UserID returns the cache owner's identity.
func (r *Registry) UserID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap.Metadata.UserID
}

// SetHistoryUsername records the listening-history account reconciled with
// this cache.
func (r *Registry) SetHistoryUsername(username string) {
	r.mu.Lock()
	r.snap.Metadata.ListeningHistoryUsername = username
	evs := r.persistLocked()
	r.mu.Unlock()
	r.dispatch(evs)
}

// UpsertTrack inserts a track if absent. Immutable fields are first-write-wins:
// re-upserting an existing id only refreshes its access time, never its
// metadata. Duplicate inserts are not an error.
func (r *Registry) UpsertTrack(info models.TrackInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if existing, ok := r.snap.Tracks[info.ID]; ok {
		existing.LastAccessed = r.now()
		evs := r.persistLocked()
		r.mu.Unlock()
		r.dispatch(evs)
		return nil
	}

	track := &models.TrackRecord{
		TrackInfo:    info,
		LastAccessed: r.now(),
	}
	if info.AlbumID != "" {
		track.AlbumIDs = []string{info.AlbumID}
	}
	r.snap.Tracks[info.ID] = track
	indexTrack(r.snap, track)

	evs := r.persistLocked()
	r.mu.Unlock()
	r.dispatch(evs)
	return nil
}

// GetTrack returns a copy of the track record, refreshing its access time.
// The second return is false when the id is unknown.
func (r *Registry) GetTrack(id string) (*models.TrackRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	track, ok := r.snap.Tracks[id]
	if !ok {
		return nil, false
	}
	track.LastAccessed = r.now()
	return track.Clone(), true
}

// Loved reports the cached loved flag for a track.
func (r *Registry) Loved(id string) (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	track, ok := r.snap.Tracks[id]
	if !ok {
		return false, false
	}
	return track.Loved, true
}

// Playcount reports the cached play count for a track.
func (r *Registry) Playcount(id string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	track, ok := r.snap.Tracks[id]
	if !ok {
		return 0, false
	}
	return track.Playcount, true
}

// GetAlbumTracks assembles full track records for an album's ordered id list.
func (r *Registry) GetAlbumTracks(albumID string) ([]*models.TrackRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	album, ok := r.snap.Albums[albumID]
	if !ok {
		return nil, false
	}
	return r.resolveLocked(album.TrackIDs), true
}

// GetPlaylistTracks assembles full track records for a playlist, in album order.
func (r *Registry) GetPlaylistTracks(playlistID string) ([]*models.TrackRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	playlist, ok := r.snap.Playlists[playlistID]
	if !ok {
		return nil, false
	}
	return r.resolveLocked(playlist.TrackIDs()), true
}

// GetAlbum returns the album entry, or false when unknown.
func (r *Registry) GetAlbum(albumID string) (*models.AlbumEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	album, ok := r.snap.Albums[albumID]
	if !ok {
		return nil, false
	}
	cp := *album
	cp.TrackIDs = append([]string(nil), album.TrackIDs...)
	return &cp, true
}

// SetLoved mutates the loved flag in place, updates the loved index, and
// persists immediately. Unknown ids are a silent no-op: callers insert before
// mutating, so a miss here is an upstream bug rather than a runtime condition.
func (r *Registry) SetLoved(id string, loved bool) {
	r.mu.Lock()
	track, ok := r.snap.Tracks[id]
	if !ok {
		r.logger.Debug("setLoved on unknown track", "track", id)
		r.mu.Unlock()
		return
	}

	track.Loved = loved
	track.LastLovedUpdate = r.now()
	track.LastAccessed = r.now()
	setLovedIndex(r.snap, id, loved)

	evs := append([]Event{{Kind: EventLoved, TrackID: id, Loved: loved}}, r.persistNowLocked()...)
	r.mu.Unlock()
	r.dispatch(evs)
}

// SetPlaycount mutates the cached play count in place. Unknown ids and
// negative counts are silent no-ops.
func (r *Registry) SetPlaycount(id string, count int) {
	r.mu.Lock()
	track, ok := r.snap.Tracks[id]
	if !ok {
		r.logger.Debug("setPlaycount on unknown track", "track", id)
		r.mu.Unlock()
		return
	}
	if count < 0 {
		r.logger.Warn("rejecting negative playcount", "track", id, "count", count)
		r.mu.Unlock()
		return
	}

	track.Playcount = count
	track.LastPlaycountUpdate = r.now()
	track.LastAccessed = r.now()

	evs := append([]Event{{Kind: EventPlaycount, TrackID: id, Playcount: count}}, r.persistLocked()...)
	r.mu.Unlock()
	r.dispatch(evs)
}

// UpsertAlbum inserts or refreshes an album entry, keeping the denormalized
// display fields and fetch timestamp current.
func (r *Registry) UpsertAlbum(id, title, artist string) error {
	if id == "" {
		return shared.ErrInvalidInput
	}

	r.mu.Lock()
	album, ok := r.snap.Albums[id]
	var members []*models.TrackRecord
	if !ok {
		album = &models.AlbumEntry{ID: id}
		r.snap.Albums[id] = album
	} else {
		unindexAlbum(r.snap, album)
		if album.Artist != artist {
			// member tracks carry name keys derived from the old album artist;
			// drop them before the artist changes and re-derive after
			for _, trackID := range album.TrackIDs {
				if track, exists := r.snap.Tracks[trackID]; exists {
					unindexTrack(r.snap, track)
					members = append(members, track)
				}
			}
		}
	}
	album.Title = title
	album.Artist = artist
	album.LastFetched = r.now()
	indexAlbum(r.snap, album)
	for _, track := range members {
		indexTrack(r.snap, track)
	}

	evs := r.persistLocked()
	r.mu.Unlock()
	r.dispatch(evs)
	return nil
}

// UpsertPlaylist inserts or renames a playlist entry.
func (r *Registry) UpsertPlaylist(id, name string) error {
	if id == "" {
		return shared.ErrInvalidInput
	}

	r.mu.Lock()
	playlist, ok := r.snap.Playlists[id]
	if !ok {
		playlist = &models.PlaylistEntry{ID: id}
		r.snap.Playlists[id] = playlist
	}
	playlist.Name = name

	evs := r.persistLocked()
	r.mu.Unlock()
	r.dispatch(evs)
	return nil
}

// LinkTrackToAlbum records album membership on both sides of the
// relationship. Idempotent: repeated calls leave the sets unchanged.
// Unknown track or album ids are silent no-ops.
func (r *Registry) LinkTrackToAlbum(trackID, albumID string) {
	r.mu.Lock()
	track, trackOK := r.snap.Tracks[trackID]
	album, albumOK := r.snap.Albums[albumID]
	if !trackOK || !albumOK {
		r.logger.Debug("link to album skipped", "track", trackID, "album", albumID)
		r.mu.Unlock()
		return
	}

	track.AlbumIDs, _ = models.AddToSet(track.AlbumIDs, albumID)
	var added bool
	album.TrackIDs, added = models.AddToSet(album.TrackIDs, trackID)
	if added {
		// the album artist becomes a valid exact-match key for this track
		addNameKey(r.snap, track.Name, album.Artist, trackID)
	}
	track.LastAccessed = r.now()

	evs := r.persistLocked()
	r.mu.Unlock()
	r.dispatch(evs)
}

// LinkTrackToPlaylist records playlist membership, grouped per album, on both
// sides of the relationship. The playlist and its per-album bucket are created
// on first use with the current time as the added-at marker. Idempotent.
func (r *Registry) LinkTrackToPlaylist(trackID, playlistID, albumID string) {
	r.mu.Lock()
	track, ok := r.snap.Tracks[trackID]
	if !ok {
		r.logger.Debug("link to playlist skipped", "track", trackID, "playlist", playlistID)
		r.mu.Unlock()
		return
	}

	playlist, ok := r.snap.Playlists[playlistID]
	if !ok {
		playlist = &models.PlaylistEntry{ID: playlistID}
		r.snap.Playlists[playlistID] = playlist
	}

	bucket := playlist.Album(albumID)
	if bucket == nil {
		bucket = &models.PlaylistAlbum{AlbumID: albumID, AddedAt: r.now()}
		playlist.Albums = append(playlist.Albums, bucket)
	}
	bucket.TrackIDs, _ = models.AddToSet(bucket.TrackIDs, trackID)
	track.PlaylistIDs, _ = models.AddToSet(track.PlaylistIDs, playlistID)
	track.LastAccessed = r.now()

	evs := r.persistLocked()
	r.mu.Unlock()
	r.dispatch(evs)
}

// LovedTracks returns copies of every track currently flagged loved.
func (r *Registry) LovedTracks() []*models.TrackRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	tracks := make([]*models.TrackRecord, 0, len(r.snap.Indexes.LovedTrackIDs))
	for _, id := range r.snap.Indexes.LovedTrackIDs {
		if track, ok := r.snap.Tracks[id]; ok {
			tracks = append(tracks, track.Clone())
		}
	}
	return tracks
}

// TracksByArtist returns copies of every cached track credited to the artist.
func (r *Registry) TracksByArtist(artist string) []*models.TrackRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	var tracks []*models.TrackRecord
	for _, id := range r.snap.Indexes.ByArtist[artistKey(artist)] {
		if track, ok := r.snap.Tracks[id]; ok {
			tracks = append(tracks, track.Clone())
		}
	}
	return tracks
}

// AllTracks returns copies of every cached track.
func (r *Registry) AllTracks() []*models.TrackRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	tracks := make([]*models.TrackRecord, 0, len(r.snap.Tracks))
	for _, track := range r.snap.Tracks {
		tracks = append(tracks, track.Clone())
	}
	return tracks
}

// StaleTracks returns ids whose play count has not been refreshed within
// maxAge. Tracks never refreshed count as stale.
func (r *Registry) StaleTracks(maxAge time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxAge)
	var ids []string
	for id, track := range r.snap.Tracks {
		if track.LastPlaycountUpdate.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Metadata returns a copy of the cache bookkeeping record with counts current.
func (r *Registry) Metadata() models.CacheMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refreshCountsLocked()
	meta := r.snap.Metadata
	meta.UnsyncedLovedTracks = append([]models.UnsyncedChange(nil), meta.UnsyncedLovedTracks...)
	return meta
}

// RecordFailedSync queues a loved-status push that the remote service did not
// confirm. A fresh failure starts at retry count zero; a repeat failure for
// the same track increments the existing entry instead of duplicating it.
func (r *Registry) RecordFailedSync(trackID string, loved bool) {
	r.mu.Lock()
	changes := r.snap.Metadata.UnsyncedLovedTracks
	updated := false
	for i := range changes {
		if changes[i].TrackID == trackID {
			changes[i].Loved = loved
			changes[i].Timestamp = r.now()
			changes[i].RetryCount++
			updated = true
			break
		}
	}
	if !updated {
		r.snap.Metadata.UnsyncedLovedTracks = append(changes, models.UnsyncedChange{
			TrackID:   trackID,
			Loved:     loved,
			Timestamp: r.now(),
		})
	}

	evs := r.persistNowLocked()
	r.mu.Unlock()
	r.dispatch(evs)
}

// ClearUnsyncedChange removes a queue entry after remote confirmation.
func (r *Registry) ClearUnsyncedChange(trackID string) {
	r.mu.Lock()
	changes := r.snap.Metadata.UnsyncedLovedTracks
	for i := range changes {
		if changes[i].TrackID == trackID {
			r.snap.Metadata.UnsyncedLovedTracks = append(changes[:i], changes[i+1:]...)
			break
		}
	}

	evs := r.persistNowLocked()
	r.mu.Unlock()
	r.dispatch(evs)
}

// UnsyncedChanges returns a copy of the pending loved-status queue.
func (r *Registry) UnsyncedChanges() []models.UnsyncedChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.UnsyncedChange(nil), r.snap.Metadata.UnsyncedLovedTracks...)
}

// Flush persists the current state immediately, running eviction if the
// write exceeds the quota. Used at teardown and after bulk operations.
func (r *Registry) Flush() {
	r.mu.Lock()
	evs := r.persistNowLocked()
	r.mu.Unlock()
	r.dispatch(evs)
}

// resolveLocked assembles cloned records for an id list, dropping ids that no
// longer resolve (they should not exist; eviction scrubs memberships).
func (r *Registry) resolveLocked(ids []string) []*models.TrackRecord {
	tracks := make([]*models.TrackRecord, 0, len(ids))
	for _, id := range ids {
		if track, ok := r.snap.Tracks[id]; ok {
			track.LastAccessed = r.now()
			tracks = append(tracks, track.Clone())
		}
	}
	return tracks
}

func (r *Registry) refreshCountsLocked() {
	r.snap.Metadata.TotalTracks = len(r.snap.Tracks)
	r.snap.Metadata.TotalAlbums = len(r.snap.Albums)
	r.snap.Metadata.TotalPlaylists = len(r.snap.Playlists)
}

// persistLocked saves through the debounced path. Quota exhaustion is
// recovered by eviction; any other failure degrades to in-memory operation.
func (r *Registry) persistLocked() []Event {
	if r.store == nil {
		return nil
	}
	r.refreshCountsLocked()
	r.snap.Metadata.LastUpdated = r.now()

	err := r.store.Save(r.snap)
	if err == nil {
		return nil
	}
	if errors.Is(err, shared.ErrCacheQuotaExceeded) {
		return r.evictUntilFitLocked()
	}
	r.logger.Warn("cache save failed, continuing from memory", "err", err)
	return nil
}

// persistNowLocked saves immediately, with the same quota recovery.
func (r *Registry) persistNowLocked() []Event {
	if r.store == nil {
		return nil
	}
	r.refreshCountsLocked()
	r.snap.Metadata.LastUpdated = r.now()

	err := r.store.SaveNow(r.snap)
	if err == nil {
		return nil
	}
	if errors.Is(err, shared.ErrCacheQuotaExceeded) {
		return r.evictUntilFitLocked()
	}
	r.logger.Warn("cache save failed, continuing from memory", "err", err)
	return nil
}

func (r *Registry) dispatch(events []Event) {
	if len(events) == 0 {
		return
	}
	r.mu.Lock()
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.Unlock()

	for _, ev := range events {
		for _, l := range listeners {
			l(ev)
		}
	}
}
