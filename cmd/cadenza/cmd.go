// submodule cmd contains command definitions
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ewhitley/cadenza/internal/formatter"
	"github.com/ewhitley/cadenza/internal/playcount"
	"github.com/ewhitley/cadenza/internal/shared"
	"github.com/ewhitley/cadenza/internal/tasks"
	"github.com/urfave/cli/v3"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func userFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "user",
		Usage: "User identity owning the cache",
		Value: "local",
	}
}

// Setup creates a config file and initializes the cache database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	cfgPath := cmd.String("config")
	if err := shared.CreateConfigFile(cfgPath); err != nil {
		r.logger.Warn("config file not created", "err", err)
	} else {
		r.writePlainln("✓ Wrote %s", cfgPath)
	}

	s, err := r.openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	r.writePlainln("✓ Cache database ready: %s", s.config.Cache.Path)
	return nil
}

// Stats reports cache bookkeeping counts.
func (r *Runner) Stats(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	meta := s.reg.Metadata()
	if cmd.Bool("json") {
		return r.writeJSON(meta, cmd.Bool("pretty"))
	}

	r.writePlainln("Cache for %s (schema v%d)", meta.UserID, meta.Version)
	r.writePlain("  Tracks:    %d\n", meta.TotalTracks)
	r.writePlain("  Albums:    %d\n", meta.TotalAlbums)
	r.writePlain("  Playlists: %d\n", meta.TotalPlaylists)
	r.writePlain("  Unsynced loved changes: %d\n", len(meta.UnsyncedLovedTracks))
	return nil
}

// Loved lists the cached loved tracks.
func (r *Runner) Loved(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	loved := s.reg.LovedTracks()
	if cmd.Bool("json") {
		return r.writeJSON(loved, cmd.Bool("pretty"))
	}

	out, err := formatter.ExportTracksToText("Loved tracks", loved)
	if err != nil {
		return err
	}
	return r.writePlain("%s", out)
}

// TracksExport writes cached tracks to stdout or a file in the chosen format.
func (r *Runner) TracksExport(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	var out []byte
	switch format := cmd.String("format"); format {
	case "csv":
		out, err = formatter.ExportTracksToCSV(s.reg.AllTracks())
	case "text":
		out, err = formatter.ExportTracksToText("Cached tracks", s.reg.AllTracks())
	case "markdown":
		albumID := cmd.String("album")
		if albumID == "" {
			return fmt.Errorf("%w: markdown export requires --album", shared.ErrMissingArgument)
		}
		album, ok := s.reg.GetAlbum(albumID)
		if !ok {
			return fmt.Errorf("%w: %s", shared.ErrAlbumNotFound, albumID)
		}
		albumTracks, _ := s.reg.GetAlbumTracks(albumID)
		out, err = formatter.ExportAlbumToMarkdown(album, albumTracks)
	default:
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
	if err != nil {
		return err
	}

	if path := cmd.String("output"); path != "" {
		if err := os.WriteFile(path, out, 0644); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		r.writePlainln("✓ Wrote %s", path)
		return nil
	}
	return r.writePlain("%s", out)
}

// RefreshBuild imports albums and playlists from the streaming service.
func (r *Runner) RefreshBuild(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go r.drainProgress(progress, done)

	result, err := s.engine.BuildCache(ctx, progress, cmd.StringSlice("album"), cmd.StringSlice("playlist"))
	close(progress)
	<-done
	if err != nil {
		return err
	}

	r.writePlainln("✓ Imported %d albums, %d playlists (%d track upserts)",
		result.AlbumsFetched, result.PlaylistsFetched, result.TracksCached)
	for _, id := range result.FailedSources {
		r.writePlain("  failed: %s\n", id)
	}
	return nil
}

// RefreshLoved re-fetches the loved listing and marks matching tracks.
func (r *Runner) RefreshLoved(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go r.drainProgress(progress, done)

	matched, err := s.engine.RefreshLoved(ctx, progress)
	close(progress)
	<-done
	if err != nil {
		return err
	}

	r.writePlainln("✓ Marked %d loved tracks", matched)
	return nil
}

// RefreshPlaycounts reloads authoritative play counts.
func (r *Runner) RefreshPlaycounts(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go r.drainProgress(progress, done)

	var result *tasks.ReloadResult
	if ids := cmd.StringSlice("track"); len(ids) > 0 {
		result, err = s.engine.ReloadPlaycounts(ctx, progress, ids)
	} else if cmd.Bool("stale") {
		result, err = s.engine.RefreshStale(ctx, progress)
	} else {
		var all []string
		for _, track := range s.reg.AllTracks() {
			all = append(all, track.ID)
		}
		result, err = s.engine.ReloadPlaycounts(ctx, progress, all)
	}
	close(progress)
	<-done
	if err != nil {
		return err
	}

	r.writePlainln("✓ Updated %d play counts (%d failed, %d skipped)",
		result.Updated, result.Failed, result.Skipped)
	return nil
}

// RefreshAll refreshes loved status and reloads every cached play count in
// one pass.
func (r *Runner) RefreshAll(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go r.drainProgress(progress, done)

	matched, err := s.engine.RefreshLoved(ctx, progress)
	var result *tasks.ReloadResult
	if err == nil {
		var all []string
		for _, track := range s.reg.AllTracks() {
			all = append(all, track.ID)
		}
		result, err = s.engine.ReloadPlaycounts(ctx, progress, all)
	}
	close(progress)
	<-done
	if err != nil {
		return err
	}

	r.writePlainln("✓ Marked %d loved tracks, updated %d play counts (%d failed)",
		matched, result.Updated, result.Failed)
	return nil
}

// PlaybackImport replays a recorded playback log against the cached play
// counts using the configured scrobble thresholds.
func (r *Runner) PlaybackImport(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("file")
	if path == "" {
		return fmt.Errorf("%w: --file", shared.ErrMissingArgument)
	}

	s, err := r.openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	feed, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open playback log: %w", err)
	}
	defer feed.Close()

	result, err := playcount.Replay(s.reg, feed, playcount.Opts{
		FinishTolerance: time.Duration(s.config.Playback.FinishToleranceMS) * time.Millisecond,
		ThresholdCap:    time.Duration(s.config.Playback.ThresholdCapMS) * time.Millisecond,
		Logger:          r.logger,
	})
	if err != nil {
		return err
	}

	r.writePlainln("✓ Replayed %d events, incremented %d play counts", result.Events, result.Incremented)
	return nil
}

// SyncRetry force-retries every unsynced loved change, including parked ones.
func (r *Runner) SyncRetry(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	before := s.rec.PendingCount()
	s.rec.RetryNow(ctx)
	after := s.rec.PendingCount()

	r.writePlainln("✓ Retried %d changes, %d still pending", before, after)
	return nil
}

// SyncStatus lists the unsynced loved changes.
func (r *Runner) SyncStatus(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	changes := s.reg.UnsyncedChanges()
	if cmd.Bool("json") {
		return r.writeJSON(changes, cmd.Bool("pretty"))
	}

	r.writePlainln("Unsynced loved changes: %d", len(changes))
	for _, change := range changes {
		r.writePlain("  %s loved=%t retries=%d since %s\n",
			change.TrackID, change.Loved, change.RetryCount,
			change.Timestamp.Format("2006-01-02 15:04"))
	}
	return nil
}

func statsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show cache counts and sync state",
		Flags: []cli.Flag{
			configFlag(), userFlag(),
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
			&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print output"},
		},
		Action: r.Stats,
	}
}

func lovedCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "loved",
		Usage: "List cached loved tracks",
		Flags: []cli.Flag{
			configFlag(), userFlag(),
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
			&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print output"},
		},
		Action: r.Loved,
	}
}

func tracksCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tracks",
		Usage: "Cached track operations",
		Commands: []*cli.Command{
			{
				Name:  "export",
				Usage: "Export cached tracks (csv, text, or per-album markdown)",
				Flags: []cli.Flag{
					configFlag(), userFlag(),
					&cli.StringFlag{Name: "format", Usage: "Export format: csv, text, markdown", Value: "text"},
					&cli.StringFlag{Name: "album", Usage: "Album ID for markdown export"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file path"},
				},
				Action: r.TracksExport,
			},
		},
	}
}

func refreshCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Refresh the cache from remote services",
		Commands: []*cli.Command{
			{
				Name:  "build",
				Usage: "Import albums and playlists from the streaming service",
				Flags: []cli.Flag{
					configFlag(), userFlag(),
					&cli.StringSliceFlag{Name: "album", Usage: "Album ID to import (repeatable)"},
					&cli.StringSliceFlag{Name: "playlist", Usage: "Playlist ID to import (repeatable)"},
				},
				Action: r.RefreshBuild,
			},
			{
				Name:   "loved",
				Usage:  "Re-fetch loved tracks and mark matching cached tracks",
				Flags:  []cli.Flag{configFlag(), userFlag()},
				Action: r.RefreshLoved,
			},
			{
				Name:  "playcounts",
				Usage: "Reload authoritative play counts from the listening-history service",
				Flags: []cli.Flag{
					configFlag(), userFlag(),
					&cli.StringSliceFlag{Name: "track", Usage: "Track ID to reload (repeatable, default all)"},
					&cli.BoolFlag{Name: "stale", Usage: "Only reload tracks with stale counts"},
				},
				Action: r.RefreshPlaycounts,
			},
			{
				Name:   "all",
				Usage:  "Refresh loved status and reload all play counts",
				Flags:  []cli.Flag{configFlag(), userFlag()},
				Action: r.RefreshAll,
			},
		},
	}
}

func playbackCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playback",
		Usage: "Apply recorded playback activity to the cache",
		Commands: []*cli.Command{
			{
				Name:  "import",
				Usage: "Replay a playback event log and increment play counts",
				Flags: []cli.Flag{
					configFlag(), userFlag(),
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Path to the playback event log"},
				},
				Action: r.PlaybackImport,
			},
		},
	}
}

func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Manage unsynced loved changes",
		Commands: []*cli.Command{
			{
				Name:   "retry",
				Usage:  "Retry all unsynced changes, including parked ones",
				Flags:  []cli.Flag{configFlag(), userFlag()},
				Action: r.SyncRetry,
			},
			{
				Name:  "status",
				Usage: "List unsynced changes awaiting remote confirmation",
				Flags: []cli.Flag{
					configFlag(), userFlag(),
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
					&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print output"},
				},
				Action: r.SyncStatus,
			},
		},
	}
}
