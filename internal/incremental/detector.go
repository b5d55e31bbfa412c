// Package incremental decides which artifacts need rebuilding.
package incremental

import (
	"log/slog"
	"time"

	"git.home.luguber.info/inful/reportbal/internal/mirror"
	"git.home.luguber.info/inful/reportbal/internal/state"
)

// Partition splits a listing into the stale subset and the current rest.
type Partition struct {
	Stale   []mirror.Descriptor
	Current []mirror.Descriptor
}

// Detector compares remote modification times against persisted build
// records. An explicit override reference, when set, beats the records for
// every slug.
type Detector struct {
	records  *state.Records
	override time.Time
	logger   *slog.Logger
}

// NewDetector creates a detector over the given records.
func NewDetector(records *state.Records) *Detector {
	return &Detector{records: records, logger: slog.Default()}
}

// WithOverride sets an explicit reference time for all slugs.
func (d *Detector) WithOverride(ref time.Time) *Detector {
	d.override = ref
	return d
}

// Partition classifies every descriptor in the listing. An artifact is
// stale iff its last-modified time is strictly greater than its reference
// time; an equal timestamp does not trigger a rebuild, which keeps a
// reference taken from the same clock reading from looping. A zero
// reference (cold cache) makes the artifact stale regardless.
//
// A non-empty allowlist confines the stale set to the named slugs; anything
// else is treated as current even when its timestamp moved.
func (d *Detector) Partition(listing []mirror.Descriptor, allowlist []string) Partition {
	allowed := map[string]struct{}{}
	for _, slug := range allowlist {
		allowed[slug] = struct{}{}
	}

	var p Partition
	for _, desc := range listing {
		if len(allowed) > 0 {
			if _, ok := allowed[desc.Slug]; !ok {
				p.Current = append(p.Current, desc)
				continue
			}
		}
		ref := d.referenceFor(desc.Slug)
		if desc.LastModified.After(ref) {
			p.Stale = append(p.Stale, desc)
		} else {
			p.Current = append(p.Current, desc)
		}
	}

	d.logger.Debug("Partitioned listing",
		slog.Int("stale", len(p.Stale)),
		slog.Int("current", len(p.Current)))
	return p
}

func (d *Detector) referenceFor(slug string) time.Time {
	if !d.override.IsZero() {
		return d.override
	}
	return d.records.ReferenceFor(slug)
}
