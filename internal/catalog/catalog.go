// Package catalog tracks the set of known experiments: their display
// metadata and variant structure, fetched from the experiment console APIs
// and persisted alongside the artifact mirror so a run never depends on the
// console being reachable.
package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Variant is one branch of an experiment.
type Variant struct {
	Slug        string `json:"slug"`
	Description string `json:"description"`
	IsControl   bool   `json:"is_control"`
}

// Experiment is one experiment's display metadata.
type Experiment struct {
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	NormandySlug string    `json:"normandy_slug"`
	Variants     []Variant `json:"variants"`
	StartDate    int64     `json:"start_date,omitempty"` // epoch millis; 0 = never launched
}

// FileSlug is the slug as it appears in statistics artifact filenames.
func (e Experiment) FileSlug() string {
	return strings.ReplaceAll(e.NormandySlug, "-", "_")
}

// Branches returns the sorted variant slugs.
func (e Experiment) Branches() []string {
	out := make([]string, 0, len(e.Variants))
	for _, v := range e.Variants {
		out = append(out, v.Slug)
	}
	sort.Strings(out)
	return out
}

// ControlBranch returns the control variant's slug, or the last variant's
// slug when none is flagged.
func (e Experiment) ControlBranch() string {
	for _, v := range e.Variants {
		if v.IsControl {
			return v.Slug
		}
	}
	if len(e.Variants) > 0 {
		return e.Variants[len(e.Variants)-1].Slug
	}
	return ""
}

// StartDateFormatted renders the launch date for display.
func (e Experiment) StartDateFormatted() string {
	if e.StartDate == 0 {
		return "Never"
	}
	return time.UnixMilli(e.StartDate).UTC().Format("2006-01-02")
}

// Collection is the full set of known experiments keyed by file slug.
type Collection struct {
	Experiments map[string]Experiment `json:"experiments"`
}

// Get looks up an experiment by file slug.
func (c *Collection) Get(fileSlug string) (Experiment, bool) {
	e, ok := c.Experiments[fileSlug]
	return e, ok
}

// Slugs returns all known file slugs, sorted.
func (c *Collection) Slugs() []string {
	out := make([]string, 0, len(c.Experiments))
	for slug := range c.Experiments {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

const collectionFilename = "experiments.json"

// Save persists the collection into dir.
func (c *Collection) Save(dir string) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, collectionFilename), data, 0o644)
}

// LoadCollection reads a previously saved collection from dir.
func LoadCollection(dir string) (*Collection, error) {
	data, err := os.ReadFile(filepath.Join(dir, collectionFilename)) // #nosec G304
	if err != nil {
		return nil, err
	}
	var c Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.Experiments == nil {
		c.Experiments = map[string]Experiment{}
	}
	return &c, nil
}
