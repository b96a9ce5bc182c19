package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ewhitley/cadenza/internal/cachestore"
	"github.com/ewhitley/cadenza/internal/models"
	"github.com/ewhitley/cadenza/internal/registry"
	"github.com/ewhitley/cadenza/internal/shared"
	"github.com/urfave/cli/v3"
)

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}

			runner := NewRunner(RunnerOpts{
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
			})

			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil httpClient uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			data := map[string]string{"key": "value"}
			err := runner.writeJSON(data, true)

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			data := map[string]string{"key": "value"}
			err := runner.writeJSON(data, false)

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			expected := `{"key":"value"}` + "\n"
			if result != expected {
				t.Errorf("expected %q, got %q", expected, result)
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			// channels cannot be marshaled to JSON
			data := make(chan int)
			err := runner.writeJSON(data, false)

			if err == nil {
				t.Fatal("expected error for non-serializable data")
			}
			if !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			err := runner.writePlain("hello %s", "world")

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if result != "hello world" {
				t.Errorf("expected 'hello world', got %q", result)
			}
		})

		t.Run("writePlainln wraps with newlines", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			err := runner.writePlainln("done: %d", 3)

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if result != "\ndone: 3\n" {
				t.Errorf("expected wrapped output, got %q", result)
			}
		})
	})

	t.Run("openSession retries unsynced changes left by a previous session", func(t *testing.T) {
		dir := t.TempDir()
		dbPath := filepath.Join(dir, "cache.db")

		// a previous session failed to push one loved change
		db, err := shared.NewDatabase(dbPath)
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		store, err := cachestore.NewStore(db, "local", cachestore.StoreOpts{
			Scheduler: cachestore.NewManualScheduler(),
		})
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		reg := registry.New(models.NewSnapshot("local", "listener"), registry.Opts{Store: store})
		if err := reg.UpsertTrack(models.TrackInfo{
			ID: "t1", Name: "Song", Artists: []string{"Artist"}, DurationMS: 180000,
		}); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
		reg.RecordFailedSync("t1", true)
		reg.Flush()
		store.Close()
		db.Close()

		var pushes atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Method == http.MethodPost && req.URL.Path == "/track/loved" {
				pushes.Add(1)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		cfgPath := filepath.Join(dir, "config.toml")
		cfg := fmt.Sprintf(`[cache]
path = %q
quota_bytes = 5242880
debounce_ms = 1
max_open_conns = 1
max_idle_conns = 1

[history]
base_url = %q
username = "listener"

[sync]
retry_cap = 10
retry_interval_minutes = 60
`, dbPath, server.URL)
		if err := os.WriteFile(cfgPath, []byte(cfg), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})
		cmd := &cli.Command{
			Flags: []cli.Flag{configFlag(), userFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				s, err := runner.openSession(ctx, cmd)
				if err != nil {
					return err
				}
				defer s.close()
				if got := s.rec.PendingCount(); got != 0 {
					t.Errorf("expected queue drained at session start, got %d pending", got)
				}
				return nil
			},
		}
		if err := cmd.Run(context.Background(), []string{"test", "--config", cfgPath}); err != nil {
			t.Fatalf("session failed: %v", err)
		}
		if got := pushes.Load(); got != 1 {
			t.Errorf("expected one loved push at session start, got %d", got)
		}
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		if len(commands) == 0 {
			t.Error("expected at least one command to be registered")
		}

		for i, cmd := range commands {
			if cmd == nil {
				t.Errorf("command at index %d is nil", i)
			}
		}
	})
}
