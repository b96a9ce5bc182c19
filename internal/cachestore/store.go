// package cachestore persists one serialized cache blob per user identity.
//
// Saves are debounced through a [FlushScheduler] so rapid registry mutations
// coalesce into a single write; critical callers use SaveNow instead. A
// configured byte quota on the serialized payload produces the
// [shared.ErrCacheQuotaExceeded] signal that drives eviction upstream.
package cachestore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ewhitley/cadenza/internal/models"
	"github.com/ewhitley/cadenza/internal/shared"
)

// DefaultDebounce is the quiet period for coalescing cache writes.
const DefaultDebounce = 500 * time.Millisecond

const createBlobTable = `
	CREATE TABLE IF NOT EXISTS cache_blobs (
		user_id    TEXT PRIMARY KEY,
		version    INTEGER NOT NULL,
		payload    BLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)
`

const upsertBlob = `
	INSERT INTO cache_blobs (user_id, version, payload, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		version = excluded.version,
		payload = excluded.payload,
		updated_at = excluded.updated_at
`

// Store owns the single durable blob for one user's cache.
type Store struct {
	db     *sql.DB
	userID string
	quota  int64
	sched  FlushScheduler
	logger *log.Logger

	mu      sync.Mutex
	pending []byte
}

// StoreOpts contains optional Store settings.
type StoreOpts struct {
	Quota     int64          // max serialized payload size in bytes, 0 disables
	Scheduler FlushScheduler // defaults to a TimerScheduler with DefaultDebounce
	Logger    *log.Logger
}

// NewStore creates a Store for the given user identity, creating the blob
// table if it does not exist yet.
func NewStore(db *sql.DB, userID string, opts StoreOpts) (*Store, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", shared.ErrInvalidInput)
	}
	if _, err := db.Exec(createBlobTable); err != nil {
		return nil, fmt.Errorf("failed to create cache_blobs table: %w", err)
	}

	if opts.Scheduler == nil {
		opts.Scheduler = NewTimerScheduler(DefaultDebounce)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &Store{
		db:     db,
		userID: userID,
		quota:  opts.Quota,
		sched:  opts.Scheduler,
		logger: opts.Logger.With("component", "cachestore", "user", userID),
	}, nil
}

// Load reads and validates the user's cache blob.
//
// A missing row, undecodable payload, or failed structural validation all
// degrade to a fresh empty snapshot: corruption is logged, never surfaced as
// a blocking error.
func (s *Store) Load() (*models.Snapshot, error) {
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM cache_blobs WHERE user_id = ?`, s.userID).Scan(&payload)
	if err == sql.ErrNoRows {
		return models.NewSnapshot(s.userID, ""), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache blob: %w", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		s.logger.Warn("discarding undecodable cache blob", "err", err)
		return models.NewSnapshot(s.userID, ""), nil
	}
	if err := snap.Validate(); err != nil {
		s.logger.Warn("discarding invalid cache blob", "err", fmt.Errorf("%w: %v", shared.ErrCacheCorrupt, err))
		return models.NewSnapshot(s.userID, ""), nil
	}

	return &snap, nil
}

// Save serializes the snapshot, enforces the quota, and schedules a debounced
// write. The quota failure is reported synchronously so callers can evict and
// retry; only the durable write itself is deferred.
func (s *Store) Save(snap *models.Snapshot) error {
	payload, err := s.marshal(snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.pending = payload
	s.mu.Unlock()

	s.sched.Schedule(s.flushPending)
	return nil
}

// SaveNow serializes the snapshot and writes it immediately, superseding any
// pending debounced write.
func (s *Store) SaveNow(snap *models.Snapshot) error {
	payload, err := s.marshal(snap)
	if err != nil {
		return err
	}

	s.sched.Cancel()
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()

	return s.write(payload)
}

// Flush forces any pending debounced write to disk.
func (s *Store) Flush() error {
	s.sched.Cancel()
	s.mu.Lock()
	payload := s.pending
	s.pending = nil
	s.mu.Unlock()

	if payload == nil {
		return nil
	}
	return s.write(payload)
}

// Delete removes the user's blob and drops any pending write. Used on
// logout or session teardown.
func (s *Store) Delete() error {
	s.sched.Cancel()
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM cache_blobs WHERE user_id = ?`, s.userID); err != nil {
		return fmt.Errorf("failed to delete cache blob: %w", err)
	}
	return nil
}

// Close flushes pending state and stops the scheduler.
func (s *Store) Close() error {
	return s.Flush()
}

func (s *Store) marshal(snap *models.Snapshot) ([]byte, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize cache: %w", err)
	}
	if s.quota > 0 && int64(len(payload)) > s.quota {
		return nil, fmt.Errorf("%w: %d bytes over %d byte budget", shared.ErrCacheQuotaExceeded, len(payload), s.quota)
	}
	return payload, nil
}

func (s *Store) write(payload []byte) error {
	_, err := s.db.Exec(upsertBlob, s.userID, models.SchemaVersion, payload, time.Now())
	if err != nil {
		return fmt.Errorf("failed to write cache blob: %w", err)
	}
	s.logger.Debug("cache blob written", "bytes", len(payload))
	return nil
}

// flushPending is the scheduler callback for debounced writes. Write failures
// here are logged only; the in-memory copy stays authoritative.
func (s *Store) flushPending() {
	s.mu.Lock()
	payload := s.pending
	s.pending = nil
	s.mu.Unlock()

	if payload == nil {
		return
	}
	if err := s.write(payload); err != nil {
		s.logger.Warn("debounced cache write failed", "err", err)
	}
}
