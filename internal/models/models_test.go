package models

import (
	"testing"
	"time"
)

func TestTrackInfoValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		info := TrackInfo{ID: "t1", Name: "Song", DurationMS: 180000}
		if err := info.Validate(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		info := TrackInfo{Name: "Song"}
		if err := info.Validate(); err == nil {
			t.Error("expected error for missing id")
		}
	})

	t.Run("missing name", func(t *testing.T) {
		info := TrackInfo{ID: "t1"}
		if err := info.Validate(); err == nil {
			t.Error("expected error for missing name")
		}
	})

	t.Run("negative duration", func(t *testing.T) {
		info := TrackInfo{ID: "t1", Name: "Song", DurationMS: -1}
		if err := info.Validate(); err == nil {
			t.Error("expected error for negative duration")
		}
	})
}

func TestTrackRecord(t *testing.T) {
	rec := &TrackRecord{
		TrackInfo: TrackInfo{ID: "t1", Name: "Song", Artists: []string{"First", "Second"}},
		AlbumIDs:  []string{"a1"},
	}

	t.Run("primary artist", func(t *testing.T) {
		if got := rec.PrimaryArtist(); got != "First" {
			t.Errorf("expected First, got %q", got)
		}
		empty := &TrackRecord{}
		if got := empty.PrimaryArtist(); got != "" {
			t.Errorf("expected empty artist, got %q", got)
		}
	})

	t.Run("orphaned", func(t *testing.T) {
		if !rec.Orphaned() {
			t.Error("track without playlists should be orphaned")
		}
		rec.PlaylistIDs = []string{"p1"}
		if rec.Orphaned() {
			t.Error("track with playlist membership should not be orphaned")
		}
	})

	t.Run("clone is independent", func(t *testing.T) {
		c := rec.Clone()
		c.Artists[0] = "Changed"
		c.AlbumIDs = append(c.AlbumIDs, "a2")
		c.PlaylistIDs[0] = "changed"

		if rec.Artists[0] != "First" {
			t.Error("clone mutation leaked into original artists")
		}
		if len(rec.AlbumIDs) != 1 {
			t.Error("clone mutation leaked into original album ids")
		}
		if rec.PlaylistIDs[0] != "p1" {
			t.Error("clone mutation leaked into original playlist ids")
		}
	})
}

func TestPlaylistEntry(t *testing.T) {
	playlist := &PlaylistEntry{
		ID:   "p1",
		Name: "Mix",
		Albums: []*PlaylistAlbum{
			{AlbumID: "a1", TrackIDs: []string{"t1", "t2"}},
			{AlbumID: "a2", TrackIDs: []string{"t3"}},
		},
	}

	if got := playlist.Album("a2"); got == nil || got.AlbumID != "a2" {
		t.Errorf("expected album a2, got %+v", got)
	}
	if got := playlist.Album("a9"); got != nil {
		t.Errorf("expected nil for unknown album, got %+v", got)
	}

	ids := playlist.TrackIDs()
	want := []string{"t1", "t2", "t3"}
	if len(ids) != len(want) {
		t.Fatalf("expected %d track ids, got %d", len(want), len(ids))
	}
	for i, id := range want {
		if ids[i] != id {
			t.Errorf("expected %q at %d, got %q", id, i, ids[i])
		}
	}
}

func TestSnapshotValidate(t *testing.T) {
	newSnap := func() *Snapshot {
		snap := NewSnapshot("user", "listener")
		snap.Tracks["t1"] = &TrackRecord{
			TrackInfo:   TrackInfo{ID: "t1", Name: "Song", Artists: []string{"Artist"}},
			PlaylistIDs: []string{"p1"},
		}
		snap.Albums["a1"] = &AlbumEntry{ID: "a1", Title: "Album", TrackIDs: []string{"t1"}}
		snap.Playlists["p1"] = &PlaylistEntry{
			ID:     "p1",
			Name:   "Mix",
			Albums: []*PlaylistAlbum{{AlbumID: "a1", TrackIDs: []string{"t1"}, AddedAt: time.Now()}},
		}
		return snap
	}

	t.Run("valid snapshot", func(t *testing.T) {
		if err := newSnap().Validate(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("version mismatch", func(t *testing.T) {
		snap := newSnap()
		snap.Metadata.Version = SchemaVersion - 1
		if err := snap.Validate(); err == nil {
			t.Error("expected version error")
		}
	})

	t.Run("missing sections", func(t *testing.T) {
		snap := newSnap()
		snap.Tracks = nil
		if err := snap.Validate(); err == nil {
			t.Error("expected error for nil tracks section")
		}
	})

	t.Run("album references unknown track", func(t *testing.T) {
		snap := newSnap()
		snap.Albums["a1"].TrackIDs = append(snap.Albums["a1"].TrackIDs, "ghost")
		if err := snap.Validate(); err == nil {
			t.Error("expected error for dangling album track")
		}
	})

	t.Run("playlist membership not bidirectional", func(t *testing.T) {
		snap := newSnap()
		snap.Tracks["t1"].PlaylistIDs = nil
		if err := snap.Validate(); err == nil {
			t.Error("expected error for one-sided playlist membership")
		}
	})

	t.Run("loved index references unloved track", func(t *testing.T) {
		snap := newSnap()
		snap.Indexes.LovedTrackIDs = []string{"t1"}
		if err := snap.Validate(); err == nil {
			t.Error("expected error for unloved track in loved index")
		}
		snap.Tracks["t1"].Loved = true
		if err := snap.Validate(); err != nil {
			t.Errorf("expected no error once track is loved, got %v", err)
		}
	})
}

func TestSetHelpers(t *testing.T) {
	set := []string{"a", "b"}

	if !Contains(set, "a") || Contains(set, "c") {
		t.Error("Contains gave wrong membership answer")
	}

	set, changed := AddToSet(set, "c")
	if !changed || len(set) != 3 {
		t.Errorf("expected append, got %v changed=%v", set, changed)
	}
	set, changed = AddToSet(set, "c")
	if changed || len(set) != 3 {
		t.Errorf("expected no-op on duplicate, got %v changed=%v", set, changed)
	}

	set = RemoveFromSet(set, "b")
	if Contains(set, "b") || len(set) != 2 {
		t.Errorf("expected b removed, got %v", set)
	}
	set = RemoveFromSet(set, "missing")
	if len(set) != 2 {
		t.Errorf("expected no-op removing absent value, got %v", set)
	}
}
