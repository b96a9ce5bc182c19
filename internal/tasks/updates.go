package tasks

import "fmt"

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchAlbums Phase = iota
	FetchPlaylists
	RetryUnsynced
	FetchLoved
	MatchLoved
	FetchPlaycounts
)

func (p Phase) String() string {
	switch p {
	case FetchAlbums:
		return "fetch_albums"
	case FetchPlaylists:
		return "fetch_playlists"
	case RetryUnsynced:
		return "retry_unsynced"
	case FetchLoved:
		return "fetch_loved"
	case MatchLoved:
		return "match_loved"
	case FetchPlaycounts:
		return "fetch_playcounts"
	default:
		return ""
	}
}

func fetchAlbumUpdate(step, total int, albumID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchAlbums,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetching album %s...", albumID),
	}
}

func fetchPlaylistUpdate(step, total int, playlistID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylists,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetching playlist %s...", playlistID),
	}
}

func retryUnsyncedUpdate(pending int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RetryUnsynced,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Retrying %d unsynced loved changes...", pending),
	}
}

func fetchLovedUpdate(username string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchLoved,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching loved tracks for %s...", username),
	}
}

func matchLovedUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   MatchLoved,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Matching %d loved tracks against cache...", total),
	}
}

func fetchPlaycountUpdate(step, total int, trackName string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaycounts,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetching play count for %s...", trackName),
	}
}
