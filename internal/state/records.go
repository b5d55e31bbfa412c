// Package state persists per-artifact build records across runs. The store
// is the only component allowed to mutate records on disk, and its commit
// path is atomic: a partially written file is never observable under the
// final name.
package state

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	recordsFilename = "records.json"
	// legacyMarkerFilename is the old single global "last run" marker. It
	// loses a failed artifact's staleness once the marker advances, so it
	// is only read once, as a migration seed.
	legacyMarkerFilename = "last_run"

	schemaVersion = 1
)

// Records maps each artifact slug to the wall-clock time of its last
// successful build. A record advances only on that artifact's own success.
type Records struct {
	Version     int                  `json:"version"`
	CommittedAt time.Time            `json:"committed_at"`
	Records     map[string]time.Time `json:"records"`

	// LegacyReference carries a migrated global marker. It acts as the
	// reference time for slugs that have no per-slug record yet.
	LegacyReference time.Time `json:"legacy_reference,omitempty"`
}

// ReferenceFor returns the staleness reference time for a slug: its own
// record when present, otherwise the migrated legacy marker, otherwise the
// zero time (cold cache: everything is stale).
func (r *Records) ReferenceFor(slug string) time.Time {
	if t, ok := r.Records[slug]; ok {
		return t
	}
	return r.LegacyReference
}

// MarkBuilt records a successful build of slug at time t.
func (r *Records) MarkBuilt(slug string, t time.Time) {
	if r.Records == nil {
		r.Records = map[string]time.Time{}
	}
	r.Records[slug] = t
}

// Store reads and writes Records under a cache directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir, logger: slog.Default()}
}

// Load reads the persisted records. It fails soft: a missing, unreadable,
// or corrupt file is a valid cold-cache condition and yields empty records,
// never an error. A legacy single-marker file is migrated on first load.
func (s *Store) Load() *Records {
	records := &Records{Version: schemaVersion, Records: map[string]time.Time{}}

	data, err := os.ReadFile(filepath.Join(s.dir, recordsFilename)) // #nosec G304
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Build records unreadable, treating as cold cache", "error", err)
		}
		s.migrateLegacyMarker(records)
		return records
	}

	if err := json.Unmarshal(data, records); err != nil {
		s.logger.Warn("Build records corrupt, treating as cold cache", "error", err)
		return &Records{Version: schemaVersion, Records: map[string]time.Time{}}
	}
	if records.Records == nil {
		records.Records = map[string]time.Time{}
	}
	return records
}

// migrateLegacyMarker seeds the legacy global reference from the old
// last_run marker file, if one exists.
func (s *Store) migrateLegacyMarker(records *Records) {
	data, err := os.ReadFile(filepath.Join(s.dir, legacyMarkerFilename)) // #nosec G304
	if err != nil {
		return
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(string(data)))
	if err != nil {
		s.logger.Warn("Legacy run marker unparseable, ignoring", "error", err)
		return
	}
	records.LegacyReference = t
	s.logger.Info("Migrated legacy run marker", "reference", t)
}

// Commit atomically persists the records: write to a temporary file in the
// same directory, then rename over the final name. Committing identical
// records twice leaves the same observable state.
func (s *Store) Commit(records *Records) error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return err
	}
	records.Version = schemaVersion
	records.CommittedAt = time.Now().UTC()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, recordsFilename+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, recordsFilename)); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	// The legacy marker is superseded once a records file exists.
	_ = os.Remove(filepath.Join(s.dir, legacyMarkerFilename))
	return nil
}
