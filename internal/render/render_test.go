package render

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/reportbal/internal/catalog"
	"git.home.luguber.info/inful/reportbal/internal/config"
	berrors "git.home.luguber.info/inful/reportbal/internal/errors"
	"git.home.luguber.info/inful/reportbal/internal/mirror"
)

func fixtureExperiment() catalog.Experiment {
	return catalog.Experiment{
		Name:         "Sticky Reader Mode",
		Slug:         "sticky-reader-mode",
		NormandySlug: "sticky-reader-mode",
		StartDate:    time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
		Variants: []catalog.Variant{
			{Slug: "control", IsControl: true},
			{Slug: "treatment"},
		},
	}
}

func fixtureResults(t *testing.T) *mirror.ResultSet {
	t.Helper()
	m := mirror.New(t.TempDir(), "gs://unused")
	require.NoError(t, os.MkdirAll(m.ResultsDir(), 0o750))
	path := filepath.Join(m.ResultsDir(), "statistics_sticky_reader_mode_weekly.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`[{"window_index":"1"},{"window_index":"2"}]`), 0o644))

	descs, err := m.List(context.Background())
	require.NoError(t, err)
	rs, err := m.Fetch(descs[0])
	require.NoError(t, err)
	return rs
}

func TestMaterialize(t *testing.T) {
	dir := t.TempDir()
	path, err := Materialize(dir, fixtureExperiment(), fixtureResults(t))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sticky_reader_mode.Rmd"), path)

	doc, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(doc)
	assert.Contains(t, text, `title: "Sticky Reader Mode"`)
	assert.Contains(t, text, "# weekly results")
	assert.Contains(t, text, "statistics_sticky_reader_mode_weekly.json")
	assert.Contains(t, text, "Covers 2 analysis windows.")
	assert.NotContains(t, text, "# overall results")
}

func TestMarkdownEngineRendersHTML(t *testing.T) {
	docPath, err := Materialize(t.TempDir(), fixtureExperiment(), fixtureResults(t))
	require.NoError(t, err)

	out, err := (&MarkdownEngine{}).Render(context.Background(), docPath)
	require.NoError(t, err)
	html := string(out)
	assert.Contains(t, html, "sticky-reader-mode")
	assert.Contains(t, html, "<h1")
	assert.NotContains(t, html, "toc_float", "frontmatter must be stripped")
}

func TestMarkdownEngineMissingDoc(t *testing.T) {
	_, err := (&MarkdownEngine{}).Render(context.Background(), filepath.Join(t.TempDir(), "gone.Rmd"))
	require.Error(t, err)
	assert.Equal(t, berrors.CategoryRender, berrors.CategoryOf(err))
}

func TestRmarkdownEngineFailure(t *testing.T) {
	docPath, err := Materialize(t.TempDir(), fixtureExperiment(), fixtureResults(t))
	require.NoError(t, err)

	engine := &RmarkdownEngine{Command: "false"}
	_, err = engine.Render(context.Background(), docPath)
	require.Error(t, err)
	assert.Equal(t, berrors.CategoryRender, berrors.CategoryOf(err))
}

func TestRmarkdownEngineMissingOutput(t *testing.T) {
	docPath, err := Materialize(t.TempDir(), fixtureExperiment(), fixtureResults(t))
	require.NoError(t, err)

	// "true" exits zero but writes no HTML next to the document.
	engine := &RmarkdownEngine{Command: "true"}
	_, err = engine.Render(context.Background(), docPath)
	require.Error(t, err)
	assert.Equal(t, berrors.CategoryRender, berrors.CategoryOf(err))
}

func TestNewEngineSelection(t *testing.T) {
	if _, ok := NewEngine(config.RenderConfig{Engine: config.EngineMarkdown}).(*MarkdownEngine); !ok {
		t.Error("markdown config should select the goldmark engine")
	}
	if _, ok := NewEngine(config.RenderConfig{Engine: config.EngineRmarkdown, Command: "R"}).(*RmarkdownEngine); !ok {
		t.Error("rmarkdown config should select the exec engine")
	}
}

func TestStripFrontmatter(t *testing.T) {
	in := "---\ntitle: x\n---\n\nbody\n"
	out := string(stripFrontmatter([]byte(in)))
	if strings.Contains(out, "title:") || !strings.Contains(out, "body") {
		t.Errorf("stripFrontmatter = %q", out)
	}

	plain := "no frontmatter here\n"
	if string(stripFrontmatter([]byte(plain))) != plain {
		t.Error("documents without frontmatter pass through unchanged")
	}
}
