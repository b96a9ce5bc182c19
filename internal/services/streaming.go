// HTTP implementation of [StreamingService]
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/charmbracelet/log"
	"github.com/ewhitley/cadenza/internal/models"
	"github.com/ewhitley/cadenza/internal/shared"
)

// StreamingClient fetches album and playlist track listings from the
// streaming service, following pagination.
type StreamingClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// NewStreamingClient creates a client for the streaming service. The http
// client must already carry authorization; it defaults to http.DefaultClient.
func NewStreamingClient(baseURL string, client *http.Client, logger *log.Logger) *StreamingClient {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &StreamingClient{
		baseURL:    baseURL,
		httpClient: client,
		logger:     logger.With("component", "streaming"),
	}
}

// Name implements [StreamingService].
func (c *StreamingClient) Name() string { return "streaming" }

type streamingTrack struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Artists     []string `json:"artists"`
	AlbumID     string   `json:"albumId"`
	AlbumTitle  string   `json:"albumTitle"`
	AlbumArtist string   `json:"albumArtist"`
	DurationMS  int      `json:"durationMs"`
	TrackNumber int      `json:"trackNumber"`
	URI         string   `json:"uri"`
}

func (t streamingTrack) info() models.TrackInfo {
	return models.TrackInfo{
		ID:          t.ID,
		Name:        t.Name,
		Artists:     t.Artists,
		AlbumID:     t.AlbumID,
		DurationMS:  t.DurationMS,
		TrackNumber: t.TrackNumber,
		URI:         t.URI,
	}
}

type albumPage struct {
	ID       string           `json:"id"`
	Title    string           `json:"title"`
	Artist   string           `json:"artist"`
	Tracks   []streamingTrack `json:"tracks"`
	NextPage int              `json:"nextPage"`
}

// GetAlbum retrieves an album and its full ordered track listing.
func (c *StreamingClient) GetAlbum(ctx context.Context, albumID string) (*AlbumListing, error) {
	if albumID == "" {
		return nil, fmt.Errorf("%w: album id", shared.ErrMissingArgument)
	}

	listing := &AlbumListing{ID: albumID}
	page := 1
	for page > 0 {
		path := fmt.Sprintf("/albums/%s/tracks?page=%d", url.PathEscape(albumID), page)

		var result albumPage
		if err := c.getJSON(ctx, path, &result); err != nil {
			return nil, err
		}
		listing.Title = result.Title
		listing.Artist = result.Artist
		for _, t := range result.Tracks {
			info := t.info()
			if info.AlbumID == "" {
				info.AlbumID = albumID
			}
			listing.Tracks = append(listing.Tracks, info)
		}
		page = result.NextPage
	}

	return listing, nil
}

type playlistPage struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Items    []streamingTrack `json:"items"`
	NextPage int              `json:"nextPage"`
}

// GetPlaylist retrieves a playlist and its full track listing.
func (c *StreamingClient) GetPlaylist(ctx context.Context, playlistID string) (*PlaylistListing, error) {
	if playlistID == "" {
		return nil, fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	listing := &PlaylistListing{ID: playlistID}
	page := 1
	for page > 0 {
		path := fmt.Sprintf("/playlists/%s/tracks?page=%d", url.PathEscape(playlistID), page)

		var result playlistPage
		if err := c.getJSON(ctx, path, &result); err != nil {
			return nil, err
		}
		listing.Name = result.Name
		for _, item := range result.Items {
			listing.Tracks = append(listing.Tracks, PlaylistTrack{
				Track:       item.info(),
				AlbumTitle:  item.AlbumTitle,
				AlbumArtist: item.AlbumArtist,
			})
		}
		page = result.NextPage
	}

	return listing, nil
}

func (c *StreamingClient) getJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %s", shared.ErrTrackNotFound, path)
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status %d for %s", resp.StatusCode, path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
