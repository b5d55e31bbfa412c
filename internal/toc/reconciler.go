// Package toc produces the aggregate index page. The index is regenerated
// in full every run and lists every known experiment, whether or not it was
// rebuilt: a stale or failed experiment keeps its last-known-good page, or
// is shown without output rather than dropped.
package toc

import (
	"bytes"
	_ "embed"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Item is one known experiment as the caller sees it before reconciliation.
type Item struct {
	Slug         string // file slug, keys the output tree
	Title        string
	StartDate    string
	Availability string // e.g. "O W3 D14"
}

// Entry is one reconciled index row.
type Entry struct {
	Item
	Href      string // relative link to the page; empty when no output exists
	BuiltNow  bool   // rebuilt by this run
	FailedNow bool   // attempted by this run and failed
	HasOutput bool
}

//go:embed templates/index.html.tmpl
var indexTemplate string

var indexTmpl = template.Must(template.New("index").Parse(indexTemplate))

// Reconcile computes one Entry per item. succeeded maps slugs rebuilt this
// run to their output paths; failedSlugs names slugs whose task failed.
// For everything else a prior page still present in outputDir is reused.
func Reconcile(items []Item, succeeded map[string]string, failedSlugs map[string]bool, outputDir string) []Entry {
	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		entry := Entry{Item: item, FailedNow: failedSlugs[item.Slug]}
		if path, ok := succeeded[item.Slug]; ok {
			entry.Href = filepath.Base(path)
			entry.BuiltNow = true
			entry.HasOutput = true
		} else if prior := filepath.Join(outputDir, item.Slug+".html"); fileExists(prior) {
			entry.Href = item.Slug + ".html"
			entry.HasOutput = true
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Slug < entries[j].Slug })
	return entries
}

// WriteIndex renders the entries and overwrites outputDir/index.html in
// full; the index is never partially patched.
func WriteIndex(entries []Entry, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return err
	}
	var buf bytes.Buffer
	data := struct {
		Entries   []Entry
		Generated string
	}{entries, time.Now().UTC().Format("2006-01-02 15:04 MST")}
	if err := indexTmpl.Execute(&buf, data); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outputDir, "index.html"), buf.Bytes(), 0o644)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
