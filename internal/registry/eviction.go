package registry

import (
	"errors"

	"github.com/ewhitley/cadenza/internal/models"
	"github.com/ewhitley/cadenza/internal/shared"
)

// Eviction is reactive only: it runs synchronously when a save fails with
// [shared.ErrCacheQuotaExceeded] and repeats until a save succeeds or no
// candidate remains. Two passes bound the candidate set:
//
//  1. orphaned tracks (no playlist membership) that are not loved, oldest
//     access first;
//  2. any non-loved track, same ordering.
//
// Loved tracks are never evicted. That invariant has no exceptions.

// evictUntilFitLocked frees records until the snapshot fits the quota.
// Called with the registry mutex held; returns eviction events for dispatch.
func (r *Registry) evictUntilFitLocked() []Event {
	var events []Event
	for {
		id, ok := r.nextCandidateLocked()
		if !ok {
			r.logger.Warn("cache over quota with no evictable tracks remaining",
				"evicted", len(events))
			return events
		}

		r.removeTrackLocked(id)
		events = append(events, Event{Kind: EventEvicted, TrackID: id})
		r.logger.Debug("evicted track", "track", id)

		r.refreshCountsLocked()
		err := r.store.SaveNow(r.snap)
		if err == nil {
			r.logger.Info("cache fits after eviction", "evicted", len(events))
			return events
		}
		if !errors.Is(err, shared.ErrCacheQuotaExceeded) {
			r.logger.Warn("post-eviction save failed, continuing from memory", "err", err)
			return events
		}
	}
}

// nextCandidateLocked picks the next eviction victim: the least recently
// accessed non-loved orphan, widening to any non-loved track only when no
// orphans remain.
func (r *Registry) nextCandidateLocked() (string, bool) {
	if id, ok := oldest(r.snap.Tracks, func(t *models.TrackRecord) bool {
		return !t.Loved && t.Orphaned()
	}); ok {
		return id, true
	}
	return oldest(r.snap.Tracks, func(t *models.TrackRecord) bool {
		return !t.Loved
	})
}

func oldest(tracks map[string]*models.TrackRecord, eligible func(*models.TrackRecord) bool) (string, bool) {
	var (
		bestID string
		best   *models.TrackRecord
	)
	for id, track := range tracks {
		if !eligible(track) {
			continue
		}
		if best == nil || track.LastAccessed.Before(best.LastAccessed) ||
			(track.LastAccessed.Equal(best.LastAccessed) && id < bestID) {
			bestID, best = id, track
		}
	}
	return bestID, best != nil
}

// removeTrackLocked deletes a track record and scrubs every reference to it:
// indexes, album listings, playlist buckets, and the unsynced-change queue.
func (r *Registry) removeTrackLocked(id string) {
	track, ok := r.snap.Tracks[id]
	if !ok {
		return
	}

	unindexTrack(r.snap, track)
	delete(r.snap.Tracks, id)

	for _, albumID := range track.AlbumIDs {
		if album, ok := r.snap.Albums[albumID]; ok {
			album.TrackIDs = models.RemoveFromSet(album.TrackIDs, id)
		}
	}

	for _, playlistID := range track.PlaylistIDs {
		playlist, ok := r.snap.Playlists[playlistID]
		if !ok {
			continue
		}
		kept := playlist.Albums[:0]
		for _, bucket := range playlist.Albums {
			bucket.TrackIDs = models.RemoveFromSet(bucket.TrackIDs, id)
			if len(bucket.TrackIDs) > 0 {
				kept = append(kept, bucket)
			}
		}
		playlist.Albums = kept
	}

	// nothing remote to reconcile once the record is gone
	changes := r.snap.Metadata.UnsyncedLovedTracks
	for i := range changes {
		if changes[i].TrackID == id {
			r.snap.Metadata.UnsyncedLovedTracks = append(changes[:i], changes[i+1:]...)
			break
		}
	}
}
