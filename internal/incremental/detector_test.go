package incremental

import (
	"testing"
	"time"

	"git.home.luguber.info/inful/reportbal/internal/mirror"
	"git.home.luguber.info/inful/reportbal/internal/state"
)

var t0 = time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

func desc(slug string, mod time.Time) mirror.Descriptor {
	return mirror.Descriptor{Slug: slug, LastModified: mod}
}

func slugsOf(descs []mirror.Descriptor) []string {
	out := make([]string, 0, len(descs))
	for _, d := range descs {
		out = append(out, d.Slug)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStrictlyGreaterThan(t *testing.T) {
	records := &state.Records{Records: map[string]time.Time{
		"before": t0, "equal": t0, "after": t0,
	}}
	listing := []mirror.Descriptor{
		desc("before", t0.Add(-10*time.Second)),
		desc("equal", t0),
		desc("after", t0.Add(5*time.Second)),
	}

	p := NewDetector(records).Partition(listing, nil)
	if !equal(slugsOf(p.Stale), []string{"after"}) {
		t.Errorf("stale = %v, want [after]", slugsOf(p.Stale))
	}
	if !equal(slugsOf(p.Current), []string{"before", "equal"}) {
		t.Errorf("current = %v, want [before equal]", slugsOf(p.Current))
	}
}

func TestColdCacheMakesEverythingStale(t *testing.T) {
	records := &state.Records{Records: map[string]time.Time{}}
	listing := []mirror.Descriptor{
		desc("a", t0.Add(-100*time.Hour)),
		desc("b", t0),
	}
	p := NewDetector(records).Partition(listing, nil)
	if len(p.Stale) != 2 || len(p.Current) != 0 {
		t.Errorf("cold cache: stale=%v current=%v", slugsOf(p.Stale), slugsOf(p.Current))
	}
}

func TestPerSlugRecordsAreIndependent(t *testing.T) {
	// A failed artifact keeps its old record and stays stale on the next
	// run even after other artifacts' records advanced.
	records := &state.Records{Records: map[string]time.Time{
		"succeeded": t0.Add(time.Hour),
	}}
	listing := []mirror.Descriptor{
		desc("succeeded", t0),
		desc("failed_last_run", t0),
	}
	p := NewDetector(records).Partition(listing, nil)
	if !equal(slugsOf(p.Stale), []string{"failed_last_run"}) {
		t.Errorf("stale = %v, want [failed_last_run]", slugsOf(p.Stale))
	}
}

func TestOverrideBeatsRecords(t *testing.T) {
	records := &state.Records{Records: map[string]time.Time{"a": t0.Add(time.Hour)}}
	listing := []mirror.Descriptor{desc("a", t0.Add(30 * time.Minute))}

	// Records say current; an older override reference says stale.
	p := NewDetector(records).WithOverride(t0).Partition(listing, nil)
	if len(p.Stale) != 1 {
		t.Error("override reference should make a stale")
	}

	// And a newer override says current even on a cold record.
	cold := &state.Records{Records: map[string]time.Time{}}
	p = NewDetector(cold).WithOverride(t0.Add(2 * time.Hour)).Partition(listing, nil)
	if len(p.Stale) != 0 {
		t.Error("override reference should make a current")
	}
}

func TestAllowlistConfinesStaleSet(t *testing.T) {
	records := &state.Records{Records: map[string]time.Time{}}
	listing := []mirror.Descriptor{desc("a", t0), desc("b", t0)}

	p := NewDetector(records).Partition(listing, []string{"b"})
	if !equal(slugsOf(p.Stale), []string{"b"}) {
		t.Errorf("stale = %v, want [b]", slugsOf(p.Stale))
	}
	if !equal(slugsOf(p.Current), []string{"a"}) {
		t.Errorf("current = %v, want [a]", slugsOf(p.Current))
	}
}

func TestLegacyReferenceFallback(t *testing.T) {
	records := &state.Records{
		Records:         map[string]time.Time{"tracked": t0.Add(time.Hour)},
		LegacyReference: t0,
	}
	listing := []mirror.Descriptor{
		desc("tracked", t0.Add(30 * time.Minute)), // current per its own record
		desc("untracked", t0.Add(time.Minute)),    // stale per legacy marker
	}
	p := NewDetector(records).Partition(listing, nil)
	if !equal(slugsOf(p.Stale), []string{"untracked"}) {
		t.Errorf("stale = %v, want [untracked]", slugsOf(p.Stale))
	}
}
