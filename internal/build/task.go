// Package build runs the per-artifact render pipeline under a bounded
// worker pool and orchestrates whole runs.
package build

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/reportbal/internal/catalog"
	berrors "git.home.luguber.info/inful/reportbal/internal/errors"
	"git.home.luguber.info/inful/reportbal/internal/mirror"
	"git.home.luguber.info/inful/reportbal/internal/observability"
	"git.home.luguber.info/inful/reportbal/internal/render"
)

// Status is the terminal state of one build task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Stage names the pipeline step an outcome refers to.
type Stage string

const (
	StageFetch    Stage = "fetch"
	StageTemplate Stage = "template"
	StageRender   Stage = "render"
	StagePlace    Stage = "place"
	StageSchedule Stage = "schedule"
)

// Outcome is the result of one artifact's build task.
type Outcome struct {
	Slug       string
	Status     Status
	Stage      Stage // failing stage when Status == StatusFailed
	Err        error
	OutputPath string // final page location when Status == StatusSucceeded
	Duration   time.Duration
}

func failed(slug string, stage Stage, err error) Outcome {
	return Outcome{Slug: slug, Status: StatusFailed, Stage: stage, Err: err}
}

// Runner executes one artifact's pipeline: fetch statistics, materialize
// the intermediate document, render, and atomically place the page in the
// output tree. Safe for concurrent use across distinct slugs; the only
// shared resource is the output tree, and every task writes its own path.
type Runner struct {
	mirror      *mirror.Mirror
	experiments *catalog.Collection
	engine      render.Engine
	workDir     string
	outputDir   string
}

// NewRunner creates a Runner writing pages into outputDir.
func NewRunner(m *mirror.Mirror, experiments *catalog.Collection, engine render.Engine, workDir, outputDir string) *Runner {
	return &Runner{mirror: m, experiments: experiments, engine: engine, workDir: workDir, outputDir: outputDir}
}

// Run builds one artifact and always returns a terminal Outcome.
func (r *Runner) Run(ctx context.Context, desc mirror.Descriptor) Outcome {
	start := time.Now()
	ctx = observability.WithSlug(ctx, desc.Slug)

	outcome := r.run(ctx, desc)
	outcome.Duration = time.Since(start)

	if outcome.Status == StatusSucceeded {
		observability.InfoContext(ctx, "Built report page")
	} else {
		observability.ErrorContext(observability.WithStage(ctx, string(outcome.Stage)),
			"Report build failed", errAttr(outcome.Err))
	}
	return outcome
}

func (r *Runner) run(ctx context.Context, desc mirror.Descriptor) Outcome {
	exp, ok := r.experiments.Get(desc.Slug)
	if !ok {
		return failed(desc.Slug, StageFetch,
			berrors.FetchFailure(nil, "artifact has no catalog entry"))
	}

	results, err := r.mirror.Fetch(desc)
	if err != nil {
		return failed(desc.Slug, StageFetch, err)
	}

	docPath, err := render.Materialize(r.workDir, exp, results)
	if err != nil {
		return failed(desc.Slug, StageTemplate, err)
	}

	rendered, err := r.engine.Render(ctx, docPath)
	if err != nil {
		return failed(desc.Slug, StageRender, err)
	}

	finalPath, err := r.place(desc.Slug, rendered)
	if err != nil {
		return failed(desc.Slug, StagePlace, err)
	}

	return Outcome{Slug: desc.Slug, Status: StatusSucceeded, OutputPath: finalPath}
}

// place writes the rendered page under its final name via temp-file and
// rename, so a failed or interrupted task never leaves a partial page
// visible.
func (r *Runner) place(slug string, rendered []byte) (string, error) {
	if err := os.MkdirAll(r.outputDir, 0o750); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(r.outputDir, slug+".html.tmp-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(rendered); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", err
	}
	finalPath := filepath.Join(r.outputDir, slug+".html")
	if err := os.Rename(tmpName, finalPath); err != nil {
		_ = os.Remove(tmpName)
		return "", err
	}
	return finalPath, nil
}
