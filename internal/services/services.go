// package services defines contracts for the external collaborators of the
// track cache: the streaming service (immutable track listings) and the
// listening-history service (loved tracks and play counts).
//
// Authentication is out of scope: clients accept a caller-supplied
// [net/http.Client] that is already authorized.
package services

import (
	"context"

	"github.com/ewhitley/cadenza/internal/models"
)

// StreamingService supplies full track listings used to populate immutable
// track fields on first sight. Implementations page internally.
type StreamingService interface {
	// GetAlbum retrieves an album with its complete ordered track listing.
	GetAlbum(ctx context.Context, albumID string) (*AlbumListing, error)

	// GetPlaylist retrieves a playlist with its complete track listing,
	// including each track's album display fields.
	GetPlaylist(ctx context.Context, playlistID string) (*PlaylistListing, error)

	// Name returns the service name for logging.
	Name() string
}

// HistoryService is the remote listening-history collaborator. Tracks are
// addressed by name/artist strings; the service exposes no stable track ids.
type HistoryService interface {
	// LovedTracks retrieves the user's full loved-track listing.
	LovedTracks(ctx context.Context, username string) ([]models.LovedEntry, error)

	// TrackPlaycount fetches the authoritative play count for one track.
	TrackPlaycount(ctx context.Context, username, name, artist string) (int, error)

	// SetLoved sets or clears the loved flag for a track.
	SetLoved(ctx context.Context, name, artist string, loved bool) error

	// Name returns the service name for logging.
	Name() string
}

// AlbumListing is a fetched album with its ordered tracks.
type AlbumListing struct {
	ID     string
	Title  string
	Artist string
	Tracks []models.TrackInfo
}

// PlaylistListing is a fetched playlist with its tracks and the album display
// fields needed to register each track's album.
type PlaylistListing struct {
	ID     string
	Name   string
	Tracks []PlaylistTrack
}

// PlaylistTrack pairs a playlist member with its album display fields.
type PlaylistTrack struct {
	Track       models.TrackInfo
	AlbumTitle  string
	AlbumArtist string
}
