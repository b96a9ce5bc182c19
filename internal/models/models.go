// package models defines the data model for the per-user track cache
package models

import (
	"fmt"
	"time"
)

// SchemaVersion is the persisted cache layout version. Blobs carrying a
// different version are discarded and rebuilt.
const SchemaVersion = 3

// TrackInfo carries the immutable fields captured when a track is first seen.
// These are fixed at first insertion and never overwritten by later upserts.
type TrackInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Artists     []string `json:"artists"`
	AlbumID     string   `json:"albumId"`
	DurationMS  int      `json:"durationMs"`
	TrackNumber int      `json:"trackNumber"`
	URI         string   `json:"uri"`
}

// Validate checks that the immutable track fields are usable.
func (t TrackInfo) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("track id is required")
	}
	if t.Name == "" {
		return fmt.Errorf("track name is required")
	}
	if t.DurationMS < 0 {
		return fmt.Errorf("track duration must be non-negative")
	}
	return nil
}

// TrackRecord is the canonical cached representation of one unique track.
//
// A track id appears at most once in the cache even when the track belongs to
// many albums or playlists; membership is tracked through AlbumIDs and
// PlaylistIDs rather than duplication.
type TrackRecord struct {
	TrackInfo

	Loved               bool      `json:"loved"`
	Playcount           int       `json:"playcount"`
	LastPlaycountUpdate time.Time `json:"lastPlaycountUpdate"`
	LastLovedUpdate     time.Time `json:"lastLovedUpdate"`
	LastAccessed        time.Time `json:"lastAccessed"`
	AlbumIDs            []string  `json:"albumIds"`
	PlaylistIDs         []string  `json:"playlistIds"`
}

// PrimaryArtist returns the first credited artist, or an empty string.
func (t *TrackRecord) PrimaryArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// Orphaned reports whether the track has no playlist membership.
func (t *TrackRecord) Orphaned() bool {
	return len(t.PlaylistIDs) == 0
}

// Clone returns a deep copy safe to hand to callers.
func (t *TrackRecord) Clone() *TrackRecord {
	c := *t
	c.Artists = append([]string(nil), t.Artists...)
	c.AlbumIDs = append([]string(nil), t.AlbumIDs...)
	c.PlaylistIDs = append([]string(nil), t.PlaylistIDs...)
	return &c
}

// AlbumEntry holds the ordered track listing and denormalized display fields
// for one album.
type AlbumEntry struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	TrackIDs    []string  `json:"trackIds"`
	LastFetched time.Time `json:"lastFetched"`
}

// PlaylistAlbum records, for one album appearing in a playlist, the subset of
// its tracks present and when the album landed in the playlist.
type PlaylistAlbum struct {
	AlbumID  string    `json:"albumId"`
	TrackIDs []string  `json:"trackIds"`
	AddedAt  time.Time `json:"addedAt"`
}

// PlaylistEntry holds per-album track membership for one playlist.
type PlaylistEntry struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Albums []*PlaylistAlbum `json:"albums"`
}

// Album returns the playlist's entry for the given album, or nil.
func (p *PlaylistEntry) Album(albumID string) *PlaylistAlbum {
	for _, a := range p.Albums {
		if a.AlbumID == albumID {
			return a
		}
	}
	return nil
}

// TrackIDs returns all track ids in the playlist in album order.
func (p *PlaylistEntry) TrackIDs() []string {
	var ids []string
	for _, a := range p.Albums {
		ids = append(ids, a.TrackIDs...)
	}
	return ids
}

// Indexes are derived lookup structures rebuilt incrementally on every
// mutation. They are never authoritative: every entry must resolve to a live
// TrackRecord or AlbumEntry.
type Indexes struct {
	ByTrackName    map[string][]string `json:"byTrackName"`
	ByArtist       map[string][]string `json:"byArtist"`
	LovedTrackIDs  []string            `json:"lovedTrackIds"`
	AlbumsByArtist map[string][]string `json:"albumsByArtist"`
}

// NewIndexes returns an empty index set with all maps allocated.
func NewIndexes() Indexes {
	return Indexes{
		ByTrackName:    map[string][]string{},
		ByArtist:       map[string][]string{},
		AlbumsByArtist: map[string][]string{},
	}
}

// UnsyncedChange is a loved-status mutation applied locally but not yet
// confirmed by the listening-history service.
type UnsyncedChange struct {
	TrackID    string    `json:"trackId"`
	Loved      bool      `json:"loved"`
	Timestamp  time.Time `json:"timestamp"`
	RetryCount int       `json:"retryCount"`
}

// CacheMetadata is the single bookkeeping record persisted with the cache.
type CacheMetadata struct {
	LastUpdated              time.Time        `json:"lastUpdated"`
	ListeningHistoryUsername string           `json:"listeningHistoryUsername"`
	UserID                   string           `json:"userId"`
	Version                  int              `json:"version"`
	TotalTracks              int              `json:"totalTracks"`
	TotalAlbums              int              `json:"totalAlbums"`
	TotalPlaylists           int              `json:"totalPlaylists"`
	UnsyncedLovedTracks      []UnsyncedChange `json:"unsyncedLovedTracks"`
}

// Snapshot is the full persisted cache layout: one blob per user identity.
type Snapshot struct {
	Metadata  CacheMetadata             `json:"metadata"`
	Tracks    map[string]*TrackRecord   `json:"tracks"`
	Albums    map[string]*AlbumEntry    `json:"albums"`
	Playlists map[string]*PlaylistEntry `json:"playlists"`
	Indexes   Indexes                   `json:"indexes"`
}

// NewSnapshot creates an empty cache snapshot for the given user identity.
func NewSnapshot(userID, historyUsername string) *Snapshot {
	return &Snapshot{
		Metadata: CacheMetadata{
			UserID:                   userID,
			ListeningHistoryUsername: historyUsername,
			Version:                  SchemaVersion,
			LastUpdated:              time.Now(),
		},
		Tracks:    map[string]*TrackRecord{},
		Albums:    map[string]*AlbumEntry{},
		Playlists: map[string]*PlaylistEntry{},
		Indexes:   NewIndexes(),
	}
}

// Validate performs structural and version validation on a deserialized
// snapshot. A failure means the blob should be discarded and rebuilt.
func (s *Snapshot) Validate() error {
	if s.Metadata.Version != SchemaVersion {
		return fmt.Errorf("%w: got %d, want %d", errVersion, s.Metadata.Version, SchemaVersion)
	}
	if s.Tracks == nil || s.Albums == nil || s.Playlists == nil {
		return fmt.Errorf("snapshot is missing required sections")
	}
	for id, track := range s.Tracks {
		if track == nil || track.ID != id {
			return fmt.Errorf("track entry %q is inconsistent", id)
		}
	}
	for id, album := range s.Albums {
		if album == nil || album.ID != id {
			return fmt.Errorf("album entry %q is inconsistent", id)
		}
		for _, trackID := range album.TrackIDs {
			if _, ok := s.Tracks[trackID]; !ok {
				return fmt.Errorf("album %q references unknown track %q", id, trackID)
			}
		}
	}
	for id, playlist := range s.Playlists {
		if playlist == nil || playlist.ID != id {
			return fmt.Errorf("playlist entry %q is inconsistent", id)
		}
		for _, pa := range playlist.Albums {
			for _, trackID := range pa.TrackIDs {
				track, ok := s.Tracks[trackID]
				if !ok {
					return fmt.Errorf("playlist %q references unknown track %q", id, trackID)
				}
				if !Contains(track.PlaylistIDs, id) {
					return fmt.Errorf("track %q is missing playlist membership %q", trackID, id)
				}
			}
		}
	}
	for _, trackID := range s.Indexes.LovedTrackIDs {
		track, ok := s.Tracks[trackID]
		if !ok {
			return fmt.Errorf("loved index references unknown track %q", trackID)
		}
		if !track.Loved {
			return fmt.Errorf("loved index references unloved track %q", trackID)
		}
	}
	return nil
}

var errVersion = fmt.Errorf("unsupported snapshot version")

// LovedEntry is a loved track as reported by the listening-history service:
// name and artist strings only, no stable identifier.
type LovedEntry struct {
	Name   string `json:"name"`
	Artist string `json:"artist"`
}

// Contains reports whether the set-semantics slice contains v.
func Contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// AddToSet appends v if absent, preserving insertion order.
// The second return reports whether the slice changed.
func AddToSet(set []string, v string) ([]string, bool) {
	if Contains(set, v) {
		return set, false
	}
	return append(set, v), true
}

// RemoveFromSet removes v if present, preserving order of the remainder.
func RemoveFromSet(set []string, v string) []string {
	for i, s := range set {
		if s == v {
			return append(set[:i], set[i+1:]...)
		}
	}
	return set
}
