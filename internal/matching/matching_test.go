package matching

import (
	"testing"

	"github.com/ewhitley/cadenza/internal/models"
	"github.com/ewhitley/cadenza/internal/registry"
)

func setupRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	reg := registry.New(models.NewSnapshot("user", "listener"), registry.Opts{})
	tracks := []models.TrackInfo{
		{ID: "t1", Name: "Weird Fishes/Arpeggi", Artists: []string{"Radiohead"}, DurationMS: 318000},
		{ID: "t2", Name: "Foo", Artists: []string{"bar"}, DurationMS: 200000},
		{ID: "t3", Name: "Holiday", Artists: []string{"Someone Else"}, DurationMS: 190000},
	}
	for _, info := range tracks {
		if err := reg.UpsertTrack(info); err != nil {
			t.Fatalf("upsert %s failed: %v", info.ID, err)
		}
	}
	return reg
}

func lovedIDs(reg *registry.Registry) map[string]bool {
	ids := map[string]bool{}
	for _, track := range reg.LovedTracks() {
		ids[track.ID] = true
	}
	return ids
}

func TestApplyExactMatch(t *testing.T) {
	reg := setupRegistry(t)
	matcher := NewMatcher(Opts{})

	// case differs from the cached spelling on both fields
	matched := matcher.Apply(reg, []models.LovedEntry{{Name: "FOO", Artist: "Bar"}})

	if matched != 1 {
		t.Fatalf("expected 1 match, got %d", matched)
	}
	if ids := lovedIDs(reg); !ids["t2"] || len(ids) != 1 {
		t.Errorf("expected only t2 loved, got %v", ids)
	}
}

func TestApplyExactMatchViaAlbumArtist(t *testing.T) {
	reg := setupRegistry(t)
	if err := reg.UpsertAlbum("a1", "Album", "The Band"); err != nil {
		t.Fatalf("upsert album failed: %v", err)
	}
	reg.LinkTrackToAlbum("t2", "a1")

	matcher := NewMatcher(Opts{})
	matched := matcher.Apply(reg, []models.LovedEntry{{Name: "foo", Artist: "the band"}})

	if matched != 1 {
		t.Fatalf("expected album-artist match, got %d", matched)
	}
	if loved, _ := reg.Loved("t2"); !loved {
		t.Error("expected t2 loved via album artist")
	}
}

func TestApplyFuzzyMatch(t *testing.T) {
	reg := setupRegistry(t)
	matcher := NewMatcher(Opts{})

	// one dropped letter in the name; no exact hit possible
	matched := matcher.Apply(reg, []models.LovedEntry{
		{Name: "Weird Fishes/Arpegi", Artist: "Radiohead"},
	})

	if matched != 1 {
		t.Fatalf("expected fuzzy match, got %d", matched)
	}
	if loved, _ := reg.Loved("t1"); !loved {
		t.Error("expected t1 loved via fuzzy match")
	}
}

func TestApplyNoMatchLeavesFlagsUntouched(t *testing.T) {
	reg := setupRegistry(t)
	reg.SetLoved("t3", true) // pre-existing flag must survive a refresh miss

	matcher := NewMatcher(Opts{})
	matched := matcher.Apply(reg, []models.LovedEntry{
		{Name: "Entirely Unrelated", Artist: "Nobody Cached"},
	})

	if matched != 0 {
		t.Errorf("expected no matches, got %d", matched)
	}
	ids := lovedIDs(reg)
	if !ids["t3"] || len(ids) != 1 {
		t.Errorf("unmatched refresh changed loved flags: %v", ids)
	}
}

func TestApplyMixedListing(t *testing.T) {
	reg := setupRegistry(t)
	matcher := NewMatcher(Opts{})

	matched := matcher.Apply(reg, []models.LovedEntry{
		{Name: "foo", Artist: "BAR"},                       // exact
		{Name: "Weird Fishes/Arpegi", Artist: "Radiohead"}, // fuzzy
		{Name: "Ghost Song", Artist: "Missing"},            // no match
	})

	if matched != 2 {
		t.Errorf("expected 2 of 3 entries matched, got %d", matched)
	}
}

func TestSimilarity(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"same", "same", 1},
		{"", "", 1},
		{"abcde", "abcdf", 0.8},
		{"abcd", "wxyz", 0},
	}

	for _, tc := range cases {
		if got := Similarity(tc.a, tc.b); got != tc.want {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}

	t.Run("threshold boundary", func(t *testing.T) {
		// 1 edit over 29 runes is comfortably above 0.85
		got := Similarity("weird fishes/arpegi radiohead", "weird fishes/arpeggi radiohead")
		if got < SimilarityThreshold {
			t.Errorf("expected similarity above threshold, got %v", got)
		}
		// 5 edits over 10 runes is well below
		if got := Similarity("aaaaaaaaaa", "aaaaabbbbb"); got >= SimilarityThreshold {
			t.Errorf("expected similarity below threshold, got %v", got)
		}
	})
}
