// package testing contains shared testing utilities
package testing

import (
	"context"
	"fmt"
	"sync"

	"github.com/ewhitley/cadenza/internal/models"
	"github.com/ewhitley/cadenza/internal/services"
)

// MockHistory is a test double for [services.HistoryService].
//
// FailPushes makes SetLoved fail until cleared; calls are recorded for
// assertions either way.
type MockHistory struct {
	mu         sync.Mutex
	FailPushes bool
	Loved      []models.LovedEntry
	Playcounts map[string]int // keyed by "name|artist"

	PushCalls []string // "name|artist|loved"
}

func (m *MockHistory) Name() string { return "mock-history" }

func (m *MockHistory) LovedTracks(ctx context.Context, username string) ([]models.LovedEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.LovedEntry(nil), m.Loved...), nil
}

func (m *MockHistory) TrackPlaycount(ctx context.Context, username, name, artist string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count, ok := m.Playcounts[name+"|"+artist]
	if !ok {
		return 0, fmt.Errorf("no playcount for %s by %s", name, artist)
	}
	return count, nil
}

func (m *MockHistory) SetLoved(ctx context.Context, name, artist string, loved bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PushCalls = append(m.PushCalls, fmt.Sprintf("%s|%s|%t", name, artist, loved))
	if m.FailPushes {
		return fmt.Errorf("push rejected")
	}
	return nil
}

// SetFailPushes toggles push failure under the mock's lock.
func (m *MockHistory) SetFailPushes(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailPushes = fail
}

// Pushes returns a copy of the recorded SetLoved calls.
func (m *MockHistory) Pushes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.PushCalls...)
}

// MockStreaming is a test double for [services.StreamingService].
type MockStreaming struct {
	Albums    map[string]*services.AlbumListing
	Playlists map[string]*services.PlaylistListing
}

func (m *MockStreaming) Name() string { return "mock-streaming" }

func (m *MockStreaming) GetAlbum(ctx context.Context, albumID string) (*services.AlbumListing, error) {
	if listing, ok := m.Albums[albumID]; ok {
		return listing, nil
	}
	return nil, fmt.Errorf("album %s not found", albumID)
}

func (m *MockStreaming) GetPlaylist(ctx context.Context, playlistID string) (*services.PlaylistListing, error) {
	if listing, ok := m.Playlists[playlistID]; ok {
		return listing, nil
	}
	return nil, fmt.Errorf("playlist %s not found", playlistID)
}

// QuotaPersister is a test double for the registry's Persister that rejects
// saves while the snapshot holds more than MaxTracks tracks.
type QuotaPersister struct {
	mu        sync.Mutex
	MaxTracks int
	Err       error // returned while over budget

	Saves    int
	NowSaves int
}

func (p *QuotaPersister) Save(snap *models.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Saves++
	return p.check(snap)
}

func (p *QuotaPersister) SaveNow(snap *models.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.NowSaves++
	return p.check(snap)
}

func (p *QuotaPersister) check(snap *models.Snapshot) error {
	if p.MaxTracks > 0 && len(snap.Tracks) > p.MaxTracks {
		return p.Err
	}
	return nil
}
