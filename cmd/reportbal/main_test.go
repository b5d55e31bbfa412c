package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"git.home.luguber.info/inful/reportbal/internal/config"
)

func TestApplyBuildFlags(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()

	CLI.Build.Output = "/srv/out"
	CLI.Build.Jobs = 8
	CLI.Build.Engine = "markdown"
	t.Cleanup(func() {
		CLI.Build.Output = ""
		CLI.Build.Jobs = 0
		CLI.Build.Engine = ""
	})

	applyBuildFlags(cfg)
	assert.Equal(t, "/srv/out", cfg.OutputDir)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, config.EngineMarkdown, cfg.Render.Engine)
	assert.NoError(t, cfg.Validate())
}

func TestApplyBuildFlagsLeavesConfigAlone(t *testing.T) {
	cfg := &config.Config{OutputDir: "keep", Concurrency: 2}
	cfg.ApplyDefaults()
	applyBuildFlags(cfg)
	assert.Equal(t, "keep", cfg.OutputDir)
	assert.Equal(t, 2, cfg.Concurrency)
}

func TestHistoryPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/tmp/cache", "history.db"), historyPath("/tmp/cache"))
}
