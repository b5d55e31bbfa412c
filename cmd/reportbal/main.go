package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"git.home.luguber.info/inful/reportbal/internal/build"
	"git.home.luguber.info/inful/reportbal/internal/config"
	"git.home.luguber.info/inful/reportbal/internal/daemon"
	"git.home.luguber.info/inful/reportbal/internal/eventstore"
	"git.home.luguber.info/inful/reportbal/internal/metrics"
	"git.home.luguber.info/inful/reportbal/internal/mirror"
	"git.home.luguber.info/inful/reportbal/internal/notify"
	"git.home.luguber.info/inful/reportbal/internal/observability"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build struct {
		Output            string   `short:"o" help:"Output directory for rendered reports"`
		Cache             string   `help:"Cache directory for the mirror and build state"`
		Jobs              int      `short:"j" help:"Concurrent build tasks (default: number of CPUs)"`
		UpdatedSecondsAgo int      `help:"Rebuild anything modified within the last N seconds, overriding build records"`
		SkipSync          bool     `help:"Reuse the existing mirror and catalog without syncing"`
		Engine            string   `help:"Render engine override (rmarkdown|markdown)"`
		Slugs             []string `arg:"" optional:"" help:"Restrict the rebuild to these experiment slugs"`
	} `cmd:"" help:"Run one incremental report build"`

	Clean struct {
		Cache string `help:"Cache directory to remove"`
	} `cmd:"" help:"Remove the local cache"`

	History struct {
		Cache string `help:"Cache directory holding the run history"`
		Limit int    `short:"n" help:"Number of runs to show" default:"10"`
	} `cmd:"" help:"Show recent run history"`

	Daemon struct {
		Output   string        `short:"o" help:"Output directory for rendered reports"`
		Cache    string        `help:"Cache directory for the mirror and build state"`
		Jobs     int           `short:"j" help:"Concurrent build tasks"`
		Interval time.Duration `help:"Rebuild interval override"`
	} `cmd:"" help:"Rebuild reports periodically until interrupted"`
}

func main() {
	kctx := kong.Parse(&CLI)

	// Best effort: local overrides for endpoints and credentials.
	_ = godotenv.Load()

	observability.Setup(CLI.Verbose)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	var exitCode int
	switch kctx.Command() {
	case "build", "build <slugs>":
		exitCode = runBuild(cfg)
	case "clean":
		exitCode = runClean(cfg)
	case "history":
		exitCode = runHistory(cfg)
	case "daemon":
		exitCode = runDaemon(cfg)
	default:
		slog.Error("Unknown command", "command", kctx.Command())
		exitCode = 1
	}
	os.Exit(exitCode)
}

func historyPath(cacheDir string) string {
	return filepath.Join(cacheDir, "history.db")
}

// newService wires the service with its optional collaborators. The
// returned cleanup closes them.
func newService(cfg *config.Config) (*build.Service, func()) {
	svc := build.NewService(cfg).WithRecorder(metrics.NewPrometheusRecorder(nil))
	var cleanups []func()

	history, err := eventstore.NewSQLiteStore(historyPath(cfg.CacheDir))
	if err != nil {
		slog.Warn("Run history unavailable", "error", err)
	} else {
		svc.WithSink(history)
		cleanups = append(cleanups, func() { _ = history.Close() })
	}

	if cfg.Notify.Enabled {
		publisher, err := notify.NewNATSPublisher(cfg.Notify)
		if err != nil {
			slog.Warn("Run notifications unavailable", "error", err)
		} else {
			svc.WithNotifier(publisher)
			cleanups = append(cleanups, publisher.Close)
		}
	}

	return svc, func() {
		for _, fn := range cleanups {
			fn()
		}
	}
}

func applyBuildFlags(cfg *config.Config) {
	if CLI.Build.Output != "" {
		cfg.OutputDir = CLI.Build.Output
	}
	if CLI.Build.Cache != "" {
		cfg.CacheDir = CLI.Build.Cache
	}
	if CLI.Build.Jobs > 0 {
		cfg.Concurrency = CLI.Build.Jobs
	}
	if CLI.Build.Engine != "" {
		cfg.Render.Engine = config.EngineKind(CLI.Build.Engine)
	}
}

func runBuild(cfg *config.Config) int {
	applyBuildFlags(cfg)
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		return 1
	}

	svc, cleanup := newService(cfg)
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := build.Options{
		SkipSync:         CLI.Build.SkipSync,
		Slugs:            CLI.Build.Slugs,
		ConcurrencyLimit: cfg.Concurrency,
	}
	if CLI.Build.UpdatedSecondsAgo > 0 {
		opts.UpdatedWithin = time.Duration(CLI.Build.UpdatedSecondsAgo) * time.Second
	}

	// Task failures surface in the report and the index, not the exit
	// code; only a failure to establish the stale set is fatal.
	if _, err := svc.Run(ctx, opts); err != nil {
		slog.Error("Run aborted", "error", err)
		return 1
	}
	return 0
}

func runClean(cfg *config.Config) int {
	if CLI.Clean.Cache != "" {
		cfg.CacheDir = CLI.Clean.Cache
	}
	if err := mirror.New(cfg.CacheDir, cfg.BucketURL).Clean(); err != nil {
		slog.Error("Failed to remove cache", "error", err, "path", cfg.CacheDir)
		return 1
	}
	slog.Info("Cache removed", "path", cfg.CacheDir)
	return 0
}

func runHistory(cfg *config.Config) int {
	if CLI.History.Cache != "" {
		cfg.CacheDir = CLI.History.Cache
	}
	store, err := eventstore.NewSQLiteStore(historyPath(cfg.CacheDir))
	if err != nil {
		slog.Error("Failed to open run history", "error", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	runs, err := store.RecentRuns(context.Background(), CLI.History.Limit)
	if err != nil {
		slog.Error("Failed to read run history", "error", err)
		return 1
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return 0
	}
	for _, r := range runs {
		fmt.Printf("%s  %-7s  listed=%d stale=%d ok=%d failed=%d skipped=%d  (%s)\n",
			r.Started.Format(time.RFC3339), r.Outcome,
			r.Listed, r.Stale, r.Succeeded, r.Failed, r.Skipped,
			r.Duration.Round(time.Second))
		for _, f := range r.Failures {
			fmt.Printf("    %s: %s failure: %s\n", f.Slug, f.Stage, f.Message)
		}
	}
	return 0
}

func runDaemon(cfg *config.Config) int {
	if CLI.Daemon.Output != "" {
		cfg.OutputDir = CLI.Daemon.Output
	}
	if CLI.Daemon.Cache != "" {
		cfg.CacheDir = CLI.Daemon.Cache
	}
	if CLI.Daemon.Jobs > 0 {
		cfg.Concurrency = CLI.Daemon.Jobs
	}
	if CLI.Daemon.Interval > 0 {
		cfg.Daemon.Interval = CLI.Daemon.Interval
	}

	svc, cleanup := newService(cfg)
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := daemon.New(cfg.Daemon.Interval, func(ctx context.Context) error {
		_, err := svc.Run(ctx, build.Options{ConcurrencyLimit: cfg.Concurrency})
		return err
	})
	if err != nil {
		slog.Error("Failed to create daemon", "error", err)
		return 1
	}

	watcher, err := daemon.NewConfigWatcher(CLI.Config, func() {
		reloaded, err := config.Load(CLI.Config)
		if err != nil {
			slog.Error("Configuration reload failed, keeping previous settings", "error", err)
			return
		}
		*cfg = *reloaded
	})
	if err != nil {
		slog.Warn("Config watching unavailable", "error", err)
	} else {
		if err := watcher.Start(ctx); err != nil {
			slog.Warn("Config watching unavailable", "error", err)
		}
		defer func() { _ = watcher.Stop() }()
	}

	if err := d.Start(ctx); err != nil {
		slog.Error("Failed to start daemon", "error", err)
		return 1
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.Stop(shutdownCtx); err != nil {
		slog.Error("Daemon shutdown failed", "error", err)
		return 1
	}
	return 0
}
