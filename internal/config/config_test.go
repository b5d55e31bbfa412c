package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "output", cfg.OutputDir)
	assert.Equal(t, EngineRmarkdown, cfg.Render.Engine)
	assert.Equal(t, "gs://mozanalysis/statistics", cfg.BucketURL)
	assert.NotEmpty(t, cfg.CacheDir)
	assert.Equal(t, 30*time.Minute, cfg.Daemon.Interval)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
cache_dir: /var/cache/reports
output_dir: /srv/reports
concurrency: 4
render:
  engine: markdown
daemon:
  interval: 5m
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/cache/reports", cfg.CacheDir)
	assert.Equal(t, "/srv/reports", cfg.OutputDir)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, EngineMarkdown, cfg.Render.Engine)
	assert.Equal(t, 5*time.Minute, cfg.Daemon.Interval)
	// untouched fields still defaulted
	assert.Equal(t, "R", cfg.Render.Command)
}

func TestLoadRejectsBadEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("render:\n  engine: latex\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output_dir: [unclosed\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateNotifyNeedsURL(t *testing.T) {
	cfg := &Config{Notify: NotifyConfig{Enabled: true}}
	cfg.ApplyDefaults()
	assert.Error(t, cfg.Validate())
	cfg.Notify.URL = "nats://localhost:4222"
	assert.NoError(t, cfg.Validate())
}
