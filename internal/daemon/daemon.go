// Package daemon runs the build service on an interval until stopped.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// BuildFunc executes one build run.
type BuildFunc func(ctx context.Context) error

// Daemon schedules periodic builds with gocron. Runs never overlap: a tick
// that fires while a run is still in flight is dropped.
type Daemon struct {
	scheduler gocron.Scheduler
	interval  time.Duration
	buildFn   BuildFunc

	mu      sync.Mutex
	running bool
}

// New creates a daemon invoking buildFn every interval.
func New(interval time.Duration, buildFn BuildFunc) (*Daemon, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("daemon interval must be positive")
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Daemon{scheduler: scheduler, interval: interval, buildFn: buildFn}, nil
}

// Start registers the periodic job and begins scheduling. An initial build
// fires immediately.
func (d *Daemon) Start(ctx context.Context) error {
	_, err := d.scheduler.NewJob(
		gocron.DurationJob(d.interval),
		gocron.NewTask(d.tick, ctx),
		gocron.WithName("periodic-build"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("create periodic build job: %w", err)
	}
	slog.Info("Starting build daemon", "interval", d.interval)
	d.scheduler.Start()
	return nil
}

// Stop shuts the scheduler down, letting an in-flight run finish.
func (d *Daemon) Stop(ctx context.Context) error {
	slog.Info("Stopping build daemon")
	return d.scheduler.Shutdown()
}

func (d *Daemon) tick(ctx context.Context) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		slog.Warn("Previous run still in flight, skipping tick")
		return
	}
	d.running = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	if err := d.buildFn(ctx); err != nil {
		slog.Error("Scheduled run failed", "error", err)
	}
}
