package registry

import (
	"strings"

	"github.com/ewhitley/cadenza/internal/models"
)

// Index keys are lowercased only: no punctuation stripping, no accent
// folding. This mirrors how the listening-history service reports tracks.

func nameKey(name, artist string) string {
	return strings.ToLower(name) + "|" + strings.ToLower(artist)
}

func artistKey(artist string) string {
	return strings.ToLower(artist)
}

func addNameKey(snap *models.Snapshot, name, artist, trackID string) {
	key := nameKey(name, artist)
	snap.Indexes.ByTrackName[key], _ = models.AddToSet(snap.Indexes.ByTrackName[key], trackID)
}

func removeNameKey(snap *models.Snapshot, name, artist, trackID string) {
	key := nameKey(name, artist)
	ids := models.RemoveFromSet(snap.Indexes.ByTrackName[key], trackID)
	if len(ids) == 0 {
		delete(snap.Indexes.ByTrackName, key)
	} else {
		snap.Indexes.ByTrackName[key] = ids
	}
}

// indexTrack adds a track to the name+artist and artist indexes.
func indexTrack(snap *models.Snapshot, t *models.TrackRecord) {
	for _, artist := range t.Artists {
		addNameKey(snap, t.Name, artist, t.ID)
		key := artistKey(artist)
		snap.Indexes.ByArtist[key], _ = models.AddToSet(snap.Indexes.ByArtist[key], t.ID)
	}
	for _, albumID := range t.AlbumIDs {
		if album, ok := snap.Albums[albumID]; ok {
			addNameKey(snap, t.Name, album.Artist, t.ID)
		}
	}
	if t.Loved {
		setLovedIndex(snap, t.ID, true)
	}
}

// unindexTrack removes every index reference to a track.
func unindexTrack(snap *models.Snapshot, t *models.TrackRecord) {
	for _, artist := range t.Artists {
		removeNameKey(snap, t.Name, artist, t.ID)
		key := artistKey(artist)
		ids := models.RemoveFromSet(snap.Indexes.ByArtist[key], t.ID)
		if len(ids) == 0 {
			delete(snap.Indexes.ByArtist, key)
		} else {
			snap.Indexes.ByArtist[key] = ids
		}
	}
	for _, albumID := range t.AlbumIDs {
		if album, ok := snap.Albums[albumID]; ok {
			removeNameKey(snap, t.Name, album.Artist, t.ID)
		}
	}
	setLovedIndex(snap, t.ID, false)
}

func indexAlbum(snap *models.Snapshot, a *models.AlbumEntry) {
	key := artistKey(a.Artist)
	snap.Indexes.AlbumsByArtist[key], _ = models.AddToSet(snap.Indexes.AlbumsByArtist[key], a.ID)
}

func unindexAlbum(snap *models.Snapshot, a *models.AlbumEntry) {
	key := artistKey(a.Artist)
	ids := models.RemoveFromSet(snap.Indexes.AlbumsByArtist[key], a.ID)
	if len(ids) == 0 {
		delete(snap.Indexes.AlbumsByArtist, key)
	} else {
		snap.Indexes.AlbumsByArtist[key] = ids
	}
}

func setLovedIndex(snap *models.Snapshot, trackID string, loved bool) {
	if loved {
		snap.Indexes.LovedTrackIDs, _ = models.AddToSet(snap.Indexes.LovedTrackIDs, trackID)
	} else {
		snap.Indexes.LovedTrackIDs = models.RemoveFromSet(snap.Indexes.LovedTrackIDs, trackID)
	}
}

// rebuildIndexes derives all indexes from scratch. Run once at construction;
// after that every mutation maintains them incrementally.
func rebuildIndexes(snap *models.Snapshot) {
	snap.Indexes = models.NewIndexes()
	for _, album := range snap.Albums {
		indexAlbum(snap, album)
	}
	for _, track := range snap.Tracks {
		indexTrack(snap, track)
	}
}

// ExactMatch resolves a remote name/artist pair to a cached track id. A hit
// requires equal names (lowercased) and the artist matching either a credited
// track artist or the artist of an album the track belongs to.
func (r *Registry) ExactMatch(name, artist string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ids := r.snap.Indexes.ByTrackName[nameKey(name, artist)]; len(ids) > 0 {
		return ids[0], true
	}

	// Slow path: album-artist keys are indexed when tracks are linked to
	// albums, but a track inserted before its album needs the scan.
	loweredName := strings.ToLower(name)
	loweredArtist := strings.ToLower(artist)
	for id, track := range r.snap.Tracks {
		if strings.ToLower(track.Name) != loweredName {
			continue
		}
		for _, albumID := range track.AlbumIDs {
			if album, ok := r.snap.Albums[albumID]; ok && strings.ToLower(album.Artist) == loweredArtist {
				return id, true
			}
		}
	}
	return "", false
}

// TrackKey is a minimal projection used by fuzzy matching.
type TrackKey struct {
	ID       string
	Combined string // lowercased "name artist"
}

// TrackKeys returns fuzzy-matching projections for every cached track.
func (r *Registry) TrackKeys() []TrackKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]TrackKey, 0, len(r.snap.Tracks))
	for id, track := range r.snap.Tracks {
		keys = append(keys, TrackKey{
			ID:       id,
			Combined: strings.ToLower(track.Name + " " + track.PrimaryArtist()),
		})
	}
	return keys
}
