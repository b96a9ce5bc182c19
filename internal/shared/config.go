package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Cache     CacheConfig     `toml:"cache"`
	Streaming StreamingConfig `toml:"streaming"`
	History   HistoryConfig   `toml:"history"`
	Sync      SyncConfig      `toml:"sync"`
	Playback  PlaybackConfig  `toml:"playback"`
}

// StreamingConfig contains streaming-service settings.
type StreamingConfig struct {
	BaseURL string `toml:"base_url"`
}

// CacheConfig contains cache persistence settings.
type CacheConfig struct {
	Path         string `toml:"path"`
	QuotaBytes   int64  `toml:"quota_bytes"`
	DebounceMS   int    `toml:"debounce_ms"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// HistoryConfig contains listening-history service settings.
type HistoryConfig struct {
	BaseURL    string  `toml:"base_url"`
	Username   string  `toml:"username"`
	RatePerSec float64 `toml:"rate_per_sec"`
}

// SyncConfig contains loved-status reconciliation settings.
type SyncConfig struct {
	RetryCap             int `toml:"retry_cap"`
	RetryIntervalMinutes int `toml:"retry_interval_minutes"`
}

// PlaybackConfig contains play-count threshold settings.
type PlaybackConfig struct {
	FinishToleranceMS int `toml:"finish_tolerance_ms"`
	ThresholdCapMS    int `toml:"threshold_cap_ms"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
