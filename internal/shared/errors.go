package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Cache persistence errors
	ErrCacheQuotaExceeded   = fmt.Errorf("cache storage quota exceeded")
	ErrCacheCorrupt         = fmt.Errorf("cache blob failed validation")
	ErrCacheVersionMismatch = fmt.Errorf("cache schema version mismatch")

	// Remote listening-history errors
	ErrHistoryUnavailable = fmt.Errorf("listening-history service unavailable")
	ErrHistoryRequest     = fmt.Errorf("listening-history request failed")
	ErrRetryLimit         = fmt.Errorf("retry limit reached")

	// Lookup errors
	ErrTrackNotFound    = fmt.Errorf("track not found")
	ErrAlbumNotFound    = fmt.Errorf("album not found")
	ErrPlaylistNotFound = fmt.Errorf("playlist not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
