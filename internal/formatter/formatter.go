// package formatter provides functions to export cached library data to various formats (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/ewhitley/cadenza/internal/models"
	"github.com/ewhitley/cadenza/internal/shared"
)

// ExportTracksToCSV converts track records to CSV format with columns: ID, Name, Artist, Duration, Playcount, Loved
func ExportTracksToCSV(tracks []*models.TrackRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Name", "Artist", "Duration", "Playcount", "Loved"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range tracks {
		record := []string{
			track.ID,
			track.Name,
			strings.Join(track.Artists, "; "),
			shared.FormatDuration(track.DurationMS),
			strconv.Itoa(track.Playcount),
			strconv.FormatBool(track.Loved),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportAlbumToMarkdown converts an album and its resolved tracks to Markdown format
func ExportAlbumToMarkdown(album *models.AlbumEntry, tracks []*models.TrackRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", album.Title))
	buf.WriteString(fmt.Sprintf("**Artist**: %s\n", album.Artist))
	buf.WriteString(fmt.Sprintf("**Tracks**: %d\n\n", len(tracks)))

	buf.WriteString("## Tracks\n\n")
	for i, track := range tracks {
		duration := shared.FormatDuration(track.DurationMS)
		flags := ""
		if track.Loved {
			flags = " ♥"
		}
		buf.WriteString(fmt.Sprintf("%d. %s - %s [%s] (played %d)%s\n",
			i+1, track.PrimaryArtist(), track.Name, duration, track.Playcount, flags))
	}

	return buf.Bytes(), nil
}

// ExportTracksToText converts track records to plain text format
func ExportTracksToText(title string, tracks []*models.TrackRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("%s\n", title))
	buf.WriteString(fmt.Sprintf("Tracks: %d\n\n", len(tracks)))

	for i, track := range tracks {
		duration := shared.FormatDuration(track.DurationMS)
		buf.WriteString(fmt.Sprintf("%d. %s - %s [%s] plays=%d %s\n",
			i+1, track.PrimaryArtist(), track.Name, duration,
			track.Playcount, shared.LovedString(track.Loved)))
	}

	return buf.Bytes(), nil
}
