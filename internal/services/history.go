// HTTP implementation of [HistoryService]
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ewhitley/cadenza/internal/models"
	"github.com/ewhitley/cadenza/internal/shared"
	"golang.org/x/time/rate"
)

// fetchAttempts bounds retries for read calls. Writes are not retried here:
// the reconciler's unsynced queue owns write retry policy.
const fetchAttempts = 3

// HistoryClient talks to a listening-history HTTP API.
type HistoryClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// HistoryClientOpts contains optional HistoryClient settings.
type HistoryClientOpts struct {
	HTTPClient *http.Client  // pre-authorized client, defaults to http.DefaultClient
	RatePerSec float64       // client-side request budget, 0 disables limiting
	Logger     *log.Logger
}

// NewHistoryClient creates a client for the listening-history service.
func NewHistoryClient(baseURL string, opts HistoryClientOpts) *HistoryClient {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
	}

	return &HistoryClient{
		baseURL:    baseURL,
		httpClient: opts.HTTPClient,
		limiter:    limiter,
		logger:     opts.Logger.With("component", "history"),
	}
}

// Name implements [HistoryService].
func (c *HistoryClient) Name() string { return "listening-history" }

type lovedPage struct {
	Tracks   []models.LovedEntry `json:"tracks"`
	NextPage int                 `json:"nextPage"`
}

// LovedTracks fetches the user's loved listing, following pagination.
func (c *HistoryClient) LovedTracks(ctx context.Context, username string) ([]models.LovedEntry, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username", shared.ErrMissingArgument)
	}

	var entries []models.LovedEntry
	page := 1
	for page > 0 {
		path := fmt.Sprintf("/user/%s/loved?page=%d", url.PathEscape(username), page)

		var result lovedPage
		if err := c.getJSON(ctx, path, &result); err != nil {
			return nil, err
		}
		entries = append(entries, result.Tracks...)
		page = result.NextPage
	}

	return entries, nil
}

type playcountResponse struct {
	Playcount int `json:"playcount"`
}

// TrackPlaycount fetches the authoritative play count for one track.
func (c *HistoryClient) TrackPlaycount(ctx context.Context, username, name, artist string) (int, error) {
	query := url.Values{"name": {name}, "artist": {artist}}
	path := fmt.Sprintf("/user/%s/playcount?%s", url.PathEscape(username), query.Encode())

	var result playcountResponse
	if err := c.getJSON(ctx, path, &result); err != nil {
		return 0, err
	}
	if result.Playcount < 0 {
		return 0, fmt.Errorf("%w: negative playcount", shared.ErrHistoryRequest)
	}
	return result.Playcount, nil
}

type lovedUpdate struct {
	Name   string `json:"name"`
	Artist string `json:"artist"`
	Loved  bool   `json:"loved"`
}

// SetLoved pushes a loved-status change. Single attempt: failures land in the
// reconciler's unsynced queue.
func (c *HistoryClient) SetLoved(ctx context.Context, name, artist string, loved bool) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrHistoryUnavailable, err)
	}

	body, err := json.Marshal(lovedUpdate{Name: name, Artist: artist, Loved: loved})
	if err != nil {
		return fmt.Errorf("failed to encode loved update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/track/loved", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrHistoryUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: status %d", shared.ErrHistoryRequest, resp.StatusCode)
	}
	return nil
}

// getJSON performs a rate-limited GET with bounded retries and decodes the
// response into target.
func (c *HistoryClient) getJSON(ctx context.Context, path string, target any) error {
	var lastErr error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrHistoryUnavailable, err)
		}

		lastErr = c.getJSONOnce(ctx, path, target)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}

		c.logger.Debug("history fetch failed", "path", path, "attempt", attempt, "err", lastErr)
		if attempt < fetchAttempts {
			select {
			case <-time.After(time.Duration(attempt) * 250 * time.Millisecond):
			case <-ctx.Done():
				return lastErr
			}
		}
	}
	return fmt.Errorf("%w: %v", shared.ErrRetryLimit, lastErr)
}

func (c *HistoryClient) getJSONOnce(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrHistoryUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: status %d", shared.ErrHistoryRequest, resp.StatusCode)
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
