package formatter

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/ewhitley/cadenza/internal/models"
)

func sampleTracks() []*models.TrackRecord {
	return []*models.TrackRecord{
		{
			TrackInfo: models.TrackInfo{
				ID: "t1", Name: "One", Artists: []string{"Band", "Guest"}, DurationMS: 180000,
			},
			Playcount: 12,
			Loved:     true,
		},
		{
			TrackInfo: models.TrackInfo{
				ID: "t2", Name: "Two", Artists: []string{"Band"}, DurationMS: 200000,
			},
		},
	}
}

func TestExportTracksToCSV(t *testing.T) {
	data, err := ExportTracksToCSV(sampleTracks())
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(records))
	}
	if records[0][0] != "ID" || records[0][5] != "Loved" {
		t.Errorf("unexpected header: %v", records[0])
	}

	row := records[1]
	if row[0] != "t1" || row[2] != "Band; Guest" || row[3] != "3:00" || row[4] != "12" || row[5] != "true" {
		t.Errorf("unexpected first row: %v", row)
	}
}

func TestExportAlbumToMarkdown(t *testing.T) {
	album := &models.AlbumEntry{ID: "a1", Title: "The Album", Artist: "Band"}

	data, err := ExportAlbumToMarkdown(album, sampleTracks())
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	out := string(data)

	for _, want := range []string{
		"# The Album",
		"**Artist**: Band",
		"**Tracks**: 2",
		"1. Band - One [3:00] (played 12) ♥",
		"2. Band - Two [3:20] (played 0)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q:\n%s", want, out)
		}
	}
}

func TestExportTracksToText(t *testing.T) {
	data, err := ExportTracksToText("Loved Tracks", sampleTracks())
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	out := string(data)

	for _, want := range []string{
		"Loved Tracks\n",
		"Tracks: 2",
		"1. Band - One [3:00] plays=12 loved",
		"2. Band - Two [3:20] plays=0 -",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text export missing %q:\n%s", want, out)
		}
	}
}
