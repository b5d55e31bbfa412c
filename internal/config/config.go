// Package config defines the YAML configuration surface and its defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	berrors "git.home.luguber.info/inful/reportbal/internal/errors"
)

// EngineKind enumerates supported render engines (stringly for YAML compatibility).
type EngineKind string

const (
	EngineRmarkdown EngineKind = "rmarkdown" // external R/rmarkdown subprocess
	EngineMarkdown  EngineKind = "markdown"  // in-process goldmark fallback
)

// CatalogConfig holds the experiment listing API endpoints.
type CatalogConfig struct {
	LegacyURL string        `yaml:"legacy_url,omitempty"`
	NimbusURL string        `yaml:"nimbus_url,omitempty"`
	Timeout   time.Duration `yaml:"timeout,omitempty"`
}

// RenderConfig selects and parameterizes the render engine.
type RenderConfig struct {
	Engine  EngineKind `yaml:"engine,omitempty"`  // rmarkdown|markdown
	Command string     `yaml:"command,omitempty"` // binary for the rmarkdown engine
}

// NotifyConfig configures the optional NATS run-summary publisher.
type NotifyConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
	Stream  string `yaml:"stream,omitempty"`
}

// DaemonConfig configures the periodic rebuild loop.
type DaemonConfig struct {
	Interval time.Duration `yaml:"interval,omitempty"`
}

// Config is the root configuration document.
type Config struct {
	CacheDir    string        `yaml:"cache_dir,omitempty"`
	OutputDir   string        `yaml:"output_dir,omitempty"`
	BucketURL   string        `yaml:"bucket_url,omitempty"`
	Concurrency int           `yaml:"concurrency,omitempty"` // 0 = number of CPUs
	Catalog     CatalogConfig `yaml:"catalog,omitempty"`
	Render      RenderConfig  `yaml:"render,omitempty"`
	Notify      NotifyConfig  `yaml:"notify,omitempty"`
	Daemon      DaemonConfig  `yaml:"daemon,omitempty"`
}

// Load reads a YAML config file and applies defaults. A missing file is not
// an error: the defaults alone describe a fully working setup.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path) // #nosec G304 - path comes from the CLI flag
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return nil, berrors.Wrap(err, berrors.CategoryConfig, berrors.SeverityFatal, "read config file")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, berrors.Wrap(err, berrors.CategoryConfig, berrors.SeverityFatal, "parse config file")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with working defaults.
func (c *Config) ApplyDefaults() {
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir()
	}
	if c.OutputDir == "" {
		c.OutputDir = "output"
	}
	if c.BucketURL == "" {
		c.BucketURL = "gs://mozanalysis/statistics"
	}
	if c.Catalog.LegacyURL == "" {
		c.Catalog.LegacyURL = "https://experimenter.services.mozilla.com/api/v1/experiments/"
	}
	if c.Catalog.NimbusURL == "" {
		c.Catalog.NimbusURL = "https://experimenter.services.mozilla.com/api/v6/experiments/"
	}
	if c.Catalog.Timeout <= 0 {
		c.Catalog.Timeout = 30 * time.Second
	}
	if c.Render.Engine == "" {
		c.Render.Engine = EngineRmarkdown
	}
	if c.Render.Command == "" {
		c.Render.Command = "R"
	}
	if c.Notify.Subject == "" {
		c.Notify.Subject = "reportbal.runs"
	}
	if c.Notify.Stream == "" {
		c.Notify.Stream = "REPORTBAL"
	}
	if c.Daemon.Interval <= 0 {
		c.Daemon.Interval = 30 * time.Minute
	}
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	switch c.Render.Engine {
	case EngineRmarkdown, EngineMarkdown:
	default:
		return berrors.New(berrors.CategoryConfig, berrors.SeverityFatal,
			fmt.Sprintf("unknown render engine %q", c.Render.Engine))
	}
	if c.Concurrency < 0 {
		return berrors.New(berrors.CategoryConfig, berrors.SeverityFatal, "concurrency must be >= 0")
	}
	if c.Notify.Enabled && c.Notify.URL == "" {
		return berrors.New(berrors.CategoryConfig, berrors.SeverityFatal, "notify enabled without a NATS URL")
	}
	return nil
}

func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "reportbal")
}
