package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ewhitley/cadenza/internal/cachestore"
	"github.com/ewhitley/cadenza/internal/matching"
	"github.com/ewhitley/cadenza/internal/reconciler"
	"github.com/ewhitley/cadenza/internal/registry"
	"github.com/ewhitley/cadenza/internal/services"
	"github.com/ewhitley/cadenza/internal/shared"
	"github.com/ewhitley/cadenza/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds cross-command dependencies and provides methods for each
// command action. Per-command state (config, database, registry stack) is
// assembled by openSession so every command sees a freshly loaded cache.
type Runner struct {
	logger     *log.Logger
	output     io.Writer
	httpClient *http.Client
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Logger     *log.Logger
	Output     io.Writer
	HTTPClient *http.Client
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		logger:     opts.Logger,
		output:     opts.Output,
		httpClient: opts.HTTPClient,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, statsCommand, lovedCommand, tracksCommand, refreshCommand, playbackCommand, syncCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// session is the per-command registry stack over one user's cache.
type session struct {
	config *shared.Config
	db     *sql.DB
	store  *cachestore.Store
	reg    *registry.Registry
	rec    *reconciler.Reconciler
	engine *tasks.RefreshEngine
}

// openSession loads config, opens the cache database, and wires the registry,
// reconciler, and refresh engine for the given user identity. Changes left
// unsynced by a previous session are retried once the cache is loaded, and the
// periodic backstop retry loop runs for the life of the session.
func (r *Runner) openSession(ctx context.Context, cmd *cli.Command) (*session, error) {
	config := shared.DefaultConfig()
	cfgPath := cmd.String("config")
	if _, err := os.Stat(cfgPath); err == nil {
		loaded, err := shared.LoadConfig(cfgPath)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	user := cmd.String("user")
	if user == "" {
		user = "local"
	}

	db, err := shared.NewDatabase(config.Cache.Path)
	if err != nil {
		return nil, err
	}
	shared.ConfigureDatabase(db, config.Cache.MaxOpenConns, config.Cache.MaxIdleConns)

	debounce := time.Duration(config.Cache.DebounceMS) * time.Millisecond
	if debounce <= 0 {
		debounce = cachestore.DefaultDebounce
	}
	store, err := cachestore.NewStore(db, user, cachestore.StoreOpts{
		Quota:     config.Cache.QuotaBytes,
		Scheduler: cachestore.NewTimerScheduler(debounce),
		Logger:    r.logger,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	snap, err := store.Load()
	if err != nil {
		db.Close()
		return nil, err
	}

	reg := registry.New(snap, registry.Opts{Store: store, Logger: r.logger})
	if config.History.Username != "" {
		reg.SetHistoryUsername(config.History.Username)
	}

	history := services.NewHistoryClient(config.History.BaseURL, services.HistoryClientOpts{
		HTTPClient: r.httpClient,
		RatePerSec: config.History.RatePerSec,
		Logger:     r.logger,
	})
	streaming := services.NewStreamingClient(config.Streaming.BaseURL, r.httpClient, r.logger)

	rec := reconciler.New(reg, history, reconciler.Opts{
		RetryCap: config.Sync.RetryCap,
		Interval: time.Duration(config.Sync.RetryIntervalMinutes) * time.Minute,
		Logger:   r.logger,
	})

	engine := tasks.NewRefreshEngine(reg, streaming, history, tasks.Opts{
		Matcher:    matching.NewMatcher(matching.Opts{Logger: r.logger}),
		Reconciler: rec,
		Logger:     r.logger,
	})

	if pending := rec.PendingCount(); pending > 0 {
		r.logger.Info("unsynced loved changes pending", "count", pending)
		rec.FlushPending(ctx)
	}
	rec.Start(ctx)

	return &session{
		config: config,
		db:     db,
		store:  store,
		reg:    reg,
		rec:    rec,
		engine: engine,
	}, nil
}

func (s *session) close() {
	s.rec.Stop()
	s.reg.Flush()
	s.store.Close()
	s.db.Close()
}

// drainProgress prints progress messages until the channel closes.
func (r *Runner) drainProgress(progress <-chan tasks.ProgressUpdate, done chan<- struct{}) {
	for update := range progress {
		r.writePlain("%s\n", update.Message)
	}
	close(done)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
