package build

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/reportbal/internal/catalog"
	"git.home.luguber.info/inful/reportbal/internal/config"
	berrors "git.home.luguber.info/inful/reportbal/internal/errors"
	"git.home.luguber.info/inful/reportbal/internal/incremental"
	"git.home.luguber.info/inful/reportbal/internal/metrics"
	"git.home.luguber.info/inful/reportbal/internal/mirror"
	"git.home.luguber.info/inful/reportbal/internal/observability"
	"git.home.luguber.info/inful/reportbal/internal/render"
	"git.home.luguber.info/inful/reportbal/internal/state"
	"git.home.luguber.info/inful/reportbal/internal/toc"
)

// Failure describes one failed task for the run summary.
type Failure struct {
	Slug    string `json:"slug"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Report summarizes one completed run.
type Report struct {
	RunID     string        `json:"run_id"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
	Listed    int           `json:"listed"`
	Stale     int           `json:"stale"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"` // current artifacts plus stale ones without a catalog entry
	Failures  []Failure     `json:"failures,omitempty"`
}

// Outcome returns the run's overall status label.
func (r Report) Outcome() string {
	if r.Failed > 0 {
		return "partial"
	}
	return "clean"
}

// RunSink receives completed run reports (run history persistence).
type RunSink interface {
	RecordRun(ctx context.Context, report Report) error
}

// Notifier publishes completed run reports to interested parties.
type Notifier interface {
	PublishRun(ctx context.Context, report Report) error
}

// Options are the per-invocation knobs of a run.
type Options struct {
	SkipSync         bool          // reuse the existing mirror and catalog
	UpdatedWithin    time.Duration // staleness override: rebuild anything modified in the last N
	Slugs            []string      // allow-list; empty means everything
	ConcurrencyLimit int           // 0 = number of CPUs
}

// Service runs the whole incremental pipeline: sync, detect, schedule,
// reconcile, commit.
type Service struct {
	cfg      *config.Config
	mirror   *mirror.Mirror
	client   *catalog.Client
	store    *state.Store
	engine   render.Engine
	recorder metrics.Recorder
	sink     RunSink
	notifier Notifier
	logger   *slog.Logger
}

// NewService wires a Service from config. Sink and notifier are optional.
func NewService(cfg *config.Config) *Service {
	return &Service{
		cfg:      cfg,
		mirror:   mirror.New(cfg.CacheDir, cfg.BucketURL),
		client:   catalog.NewClient(cfg.Catalog.LegacyURL, cfg.Catalog.NimbusURL, cfg.Catalog.Timeout),
		store:    state.NewStore(cfg.CacheDir),
		engine:   render.NewEngine(cfg.Render),
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
}

// WithRecorder injects a metrics recorder.
func (s *Service) WithRecorder(r metrics.Recorder) *Service { s.recorder = r; return s }

// WithSink injects a run-history sink.
func (s *Service) WithSink(sink RunSink) *Service { s.sink = sink; return s }

// WithNotifier injects a run notifier.
func (s *Service) WithNotifier(n Notifier) *Service { s.notifier = n; return s }

// WithMirror overrides the mirror (tests).
func (s *Service) WithMirror(m *mirror.Mirror) *Service { s.mirror = m; return s }

// WithEngine overrides the render engine (tests).
func (s *Service) WithEngine(e render.Engine) *Service { s.engine = e; return s }

// Run executes one incremental build and returns its report. The returned
// error is non-nil only for fatal conditions (no stale set could be
// established); per-task failures are reported, not returned.
func (s *Service) Run(ctx context.Context, opts Options) (Report, error) {
	started := time.Now()
	report := Report{RunID: uuid.NewString(), Started: started.UTC()}
	ctx = observability.WithRunID(ctx, report.RunID)

	experiments, listing, err := s.establishListing(ctx, opts)
	if err != nil {
		return report, err
	}
	report.Listed = len(listing)

	records := s.store.Load()
	detector := incremental.NewDetector(records)
	if opts.UpdatedWithin > 0 {
		detector.WithOverride(started.Add(-opts.UpdatedWithin))
	}
	partition := detector.Partition(listing, opts.Slugs)

	// Only artifacts with a catalog entry can be rendered; the rest are
	// counted as skipped, exactly like the current ones.
	stale := make([]mirror.Descriptor, 0, len(partition.Stale))
	for _, desc := range partition.Stale {
		if _, ok := experiments.Get(desc.Slug); ok {
			stale = append(stale, desc)
		} else {
			observability.DebugContext(observability.WithSlug(ctx, desc.Slug),
				"Skipping artifact without catalog entry")
		}
	}
	report.Stale = len(stale)
	report.Skipped = len(listing) - len(stale)

	runner := NewRunner(s.mirror, experiments, s.engine,
		filepath.Join(s.cfg.CacheDir, "work"), s.cfg.OutputDir)
	outcomes := Schedule(ctx, stale, opts.ConcurrencyLimit, s.recorder, runner.Run)

	// Barrier passed: nothing below observes a partially completed run.
	succeeded := map[string]string{}
	failedSlugs := map[string]bool{}
	for slug, outcome := range outcomes {
		switch outcome.Status {
		case StatusSucceeded:
			succeeded[slug] = outcome.OutputPath
			report.Succeeded++
		default:
			failedSlugs[slug] = true
			report.Failed++
			report.Failures = append(report.Failures, Failure{
				Slug:    slug,
				Stage:   string(outcome.Stage),
				Message: outcome.Err.Error(),
			})
		}
	}

	if err := s.reconcile(ctx, experiments, listing, succeeded, failedSlugs); err != nil {
		observability.ErrorContext(ctx, "Index reconciliation failed", errAttr(err))
	}

	s.commit(ctx, records, succeeded, started)

	report.Duration = time.Since(started)
	s.recorder.ObserveRunDuration(report.Duration)
	s.recorder.IncRunOutcome(report.Outcome())
	s.finish(ctx, report)
	return report, nil
}

// establishListing syncs the mirror and catalog (unless skipped) and
// returns the known experiments plus the full artifact listing. Any error
// here is fatal: without a listing no stale set exists.
func (s *Service) establishListing(ctx context.Context, opts Options) (*catalog.Collection, []mirror.Descriptor, error) {
	if !opts.SkipSync {
		if err := s.mirror.Sync(ctx); err != nil {
			return nil, nil, err
		}
		experiments, err := s.client.Fetch(ctx)
		if err != nil {
			return nil, nil, err
		}
		if err := experiments.Save(s.cfg.CacheDir); err != nil {
			observability.WarnContext(ctx, "Could not persist experiment catalog", errAttr(err))
		}
	}

	experiments, err := catalog.LoadCollection(s.cfg.CacheDir)
	if err != nil {
		return nil, nil, berrors.CatalogFailure(err, "load experiment catalog")
	}
	listing, err := s.mirror.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	return experiments, listing, nil
}

// reconcile regenerates the index over every known artifact.
func (s *Service) reconcile(ctx context.Context, experiments *catalog.Collection, listing []mirror.Descriptor, succeeded map[string]string, failedSlugs map[string]bool) error {
	items := make([]toc.Item, 0, len(listing))
	for _, desc := range listing {
		exp, ok := experiments.Get(desc.Slug)
		if !ok {
			continue
		}
		availability := "None"
		if rs, err := s.mirror.Fetch(desc); err == nil {
			availability = rs.AvailabilityCode()
		}
		items = append(items, toc.Item{
			Slug:         desc.Slug,
			Title:        exp.Name,
			StartDate:    exp.StartDateFormatted(),
			Availability: availability,
		})
	}
	entries := toc.Reconcile(items, succeeded, failedSlugs, s.cfg.OutputDir)
	return toc.WriteIndex(entries, s.cfg.OutputDir)
}

// commit advances the per-artifact records for this run's successful builds
// to the run's start time. A commit failure is loud but does not change the
// exit code: the next run simply redoes the work.
func (s *Service) commit(ctx context.Context, records *state.Records, succeeded map[string]string, started time.Time) {
	for slug := range succeeded {
		records.MarkBuilt(slug, started.UTC())
	}
	if err := s.store.Commit(records); err != nil {
		commitErr := berrors.CommitFailure(err, "persist build records")
		observability.ErrorContext(ctx,
			"Build records commit failed; the next run will rebuild more than necessary",
			errAttr(commitErr))
	}
}

// finish emits the run summary to logs, history, and notifications.
func (s *Service) finish(ctx context.Context, report Report) {
	s.logger.Info("Run complete",
		slog.String("run.id", report.RunID),
		slog.Int("listed", report.Listed),
		slog.Int("stale", report.Stale),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", report.Failed),
		slog.Int("skipped", report.Skipped),
		slog.Duration("duration", report.Duration))
	for _, f := range report.Failures {
		s.logger.Warn("Task failed", slog.String("slug", f.Slug),
			slog.String("stage", f.Stage), slog.String("error", f.Message))
	}

	if s.sink != nil {
		if err := s.sink.RecordRun(ctx, report); err != nil {
			observability.WarnContext(ctx, "Could not record run history", errAttr(err))
		}
	}
	if s.notifier != nil {
		if err := s.notifier.PublishRun(ctx, report); err != nil {
			observability.WarnContext(ctx, "Could not publish run notification", errAttr(err))
		}
	}
}
