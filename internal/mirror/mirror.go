// Package mirror maintains a local copy of the remote statistics bucket and
// derives artifact descriptors from it. The bucket holds one JSON file per
// experiment and analysis period, named statistics_<slug>_<period>.json; the
// file's modification time is the sole staleness signal.
package mirror

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	berrors "git.home.luguber.info/inful/reportbal/internal/errors"
)

// Periods are the analysis windows an experiment's statistics may cover.
var Periods = []string{"overall", "weekly", "daily"}

// Descriptor identifies one experiment's statistics artifacts in the mirror.
type Descriptor struct {
	Slug         string            // file slug (underscores)
	LastModified time.Time         // newest mtime across the slug's period files
	PeriodFiles  map[string]string // period -> absolute path in the mirror
}

// Mirror syncs and lists the local bucket copy under <cacheDir>/results.
type Mirror struct {
	cacheDir  string
	bucketURL string
	gsutil    string // overridable for tests
}

// New creates a Mirror rooted at cacheDir.
func New(cacheDir, bucketURL string) *Mirror {
	return &Mirror{cacheDir: cacheDir, bucketURL: bucketURL, gsutil: "gsutil"}
}

// ResultsDir returns the directory holding the mirrored statistics files.
func (m *Mirror) ResultsDir() string {
	return filepath.Join(m.cacheDir, "results")
}

// Sync brings the local mirror up to date with the remote bucket.
func (m *Mirror) Sync(ctx context.Context) error {
	if err := os.MkdirAll(m.ResultsDir(), 0o750); err != nil {
		return berrors.ListingFailure(err, "create mirror directory")
	}
	cmd := exec.CommandContext(ctx, m.gsutil, "-m", "rsync", "-d", "-r", m.bucketURL, m.ResultsDir())
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return berrors.ListingFailure(fmt.Errorf("%w: %s", err, strings.TrimSpace(out.String())), "sync statistics bucket")
	}
	return nil
}

// List walks the mirror and yields one Descriptor per slug. Files that do
// not match the statistics naming scheme are ignored.
func (m *Mirror) List(ctx context.Context) ([]Descriptor, error) {
	entries, err := os.ReadDir(m.ResultsDir())
	if err != nil {
		return nil, berrors.ListingFailure(err, "read mirror directory")
	}

	bySlug := make(map[string]*Descriptor)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		slug, period, ok := parseStatisticsFilename(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		d, exists := bySlug[slug]
		if !exists {
			d = &Descriptor{Slug: slug, PeriodFiles: map[string]string{}}
			bySlug[slug] = d
		}
		d.PeriodFiles[period] = filepath.Join(m.ResultsDir(), entry.Name())
		if info.ModTime().After(d.LastModified) {
			d.LastModified = info.ModTime()
		}
	}

	out := make([]Descriptor, 0, len(bySlug))
	for _, d := range bySlug {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// Clean removes the entire cache directory.
func (m *Mirror) Clean() error {
	return os.RemoveAll(m.cacheDir)
}

// WithGsutil overrides the sync binary. Used by tests and air-gapped setups.
func (m *Mirror) WithGsutil(path string) *Mirror {
	m.gsutil = path
	return m
}

// parseStatisticsFilename splits statistics_<slug>_<period>.json into its
// slug and period. Reports ok=false for anything else.
func parseStatisticsFilename(name string) (slug, period string, ok bool) {
	if !strings.HasSuffix(name, ".json") {
		return "", "", false
	}
	base := strings.TrimSuffix(name, ".json")
	idx := strings.LastIndex(base, "_")
	if idx < 0 {
		return "", "", false
	}
	stem, period := base[:idx], base[idx+1:]
	rest, found := strings.CutPrefix(stem, "statistics_")
	if !found || rest == "" {
		return "", "", false
	}
	switch period {
	case "overall", "weekly", "daily":
	default:
		return "", "", false
	}
	return rest, period, true
}
