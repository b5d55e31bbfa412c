package mirror

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	berrors "git.home.luguber.info/inful/reportbal/internal/errors"
)

// resultRow is the subset of a statistics record the builder cares about.
// The render engine consumes the raw files itself; the builder only needs
// enough structure for availability reporting.
type resultRow struct {
	WindowIndex json.Number `json:"window_index"`
	Segment     string      `json:"segment"`
}

// Result holds one period's statistics for an experiment.
type Result struct {
	Path string
	rows []resultRow
}

// Windows counts the distinct analysis windows in the result.
func (r *Result) Windows() int {
	seen := map[string]struct{}{}
	for _, row := range r.rows {
		seen[row.WindowIndex.String()] = struct{}{}
	}
	return len(seen)
}

// Segments returns the segments present, "all" first. Rows without a
// segment belong to "all".
func (r *Result) Segments() []string {
	seen := map[string]struct{}{}
	for _, row := range r.rows {
		seg := row.Segment
		if seg == "" {
			seg = "all"
		}
		seen[seg] = struct{}{}
	}
	delete(seen, "all")
	out := []string{"all"}
	rest := make([]string, 0, len(seen))
	for seg := range seen {
		rest = append(rest, seg)
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// ResultSet is the full statistics content for one experiment.
type ResultSet struct {
	Slug    string
	Results map[string]*Result // keyed by period
}

// Fetch loads the statistics files named by a descriptor.
func (m *Mirror) Fetch(desc Descriptor) (*ResultSet, error) {
	rs := &ResultSet{Slug: desc.Slug, Results: map[string]*Result{}}
	for period, path := range desc.PeriodFiles {
		data, err := os.ReadFile(path) // #nosec G304 - paths come from the mirror walk
		if err != nil {
			return nil, berrors.FetchFailure(err, fmt.Sprintf("read %s statistics", period))
		}
		var rows []resultRow
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, berrors.FetchFailure(err, fmt.Sprintf("parse %s statistics", period))
		}
		rs.Results[period] = &Result{Path: path, rows: rows}
	}
	return rs, nil
}

// Get returns the result for a period, or nil when absent.
func (rs *ResultSet) Get(period string) *Result {
	return rs.Results[period]
}

// AvailabilityCode summarizes which periods have data, e.g. "O W3 D14".
func (rs *ResultSet) AvailabilityCode() string {
	var parts []string
	if rs.Get("overall") != nil {
		parts = append(parts, "O")
	}
	if w := rs.Get("weekly"); w != nil {
		parts = append(parts, fmt.Sprintf("W%d", w.Windows()))
	}
	if d := rs.Get("daily"); d != nil {
		parts = append(parts, fmt.Sprintf("D%d", d.Windows()))
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, " ")
}

// Segments returns the first non-empty period's segments, preferring the
// coarsest period.
func (rs *ResultSet) Segments() []string {
	for _, period := range Periods {
		if r := rs.Get(period); r != nil {
			return r.Segments()
		}
	}
	return nil
}
