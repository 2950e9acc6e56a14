package transfer

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// metadataFilePerms restricts metadata files to the owner.
const (
	metadataFilePerms = 0o600
	metadataDirPerms  = 0o700
)

// Fingerprint identifies a version of a source file. A resume is only valid
// while the source still has the same fingerprint.
type Fingerprint struct {
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Matches reports whether two fingerprints describe the same content.
func (f Fingerprint) Matches(other Fingerprint) bool {
	return f.Size == other.Size && f.ModTime.Equal(other.ModTime)
}

// metadataRecord is the on-disk JSON format of a resumable file transfer.
type metadataRecord struct {
	Direction   string      `json:"direction"`
	Source      string      `json:"source"`
	Target      string      `json:"target"`
	Fingerprint Fingerprint `json:"fingerprint"`
	Segments    []Segment   `json:"segments"`
	Completed   []bool      `json:"completed"`
	StagingDir  string      `json:"staging_dir,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// metadataStore persists metadataRecords as JSON files keyed by
// sha256 of the direction and both paths.
type metadataStore struct {
	dir    string
	logger *slog.Logger
}

func newMetadataStore(dir string, logger *slog.Logger) *metadataStore {
	return &metadataStore{dir: dir, logger: logger}
}

// load reads the record for a transfer. Returns nil, nil when there is
// none or when the file is corrupt (the corrupt file is removed).
func (s *metadataStore) load(dir Direction, source, target string) (*metadataRecord, error) {
	if s.dir == "" {
		return nil, nil //nolint:nilnil // no metadata directory configured
	}

	path := s.filePath(dir, source, target)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil //nolint:nilnil // sentinel for "not found"
		}

		return nil, fmt.Errorf("reading transfer metadata: %w", err)
	}

	var rec metadataRecord
	if err := json.Unmarshal(data, &rec); err != nil || len(rec.Completed) != len(rec.Segments) {
		s.logger.Warn("corrupt transfer metadata, discarding", slog.String("path", path))
		s.remove(path)

		return nil, nil //nolint:nilnil // treated as absent
	}

	return &rec, nil
}

// save writes rec atomically (temp file + rename).
func (s *metadataStore) save(rec *metadataRecord) error {
	if s.dir == "" {
		return nil
	}

	if err := os.MkdirAll(s.dir, metadataDirPerms); err != nil {
		return fmt.Errorf("creating metadata dir: %w", err)
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling transfer metadata: %w", err)
	}

	path := s.filePath(parseDirection(rec.Direction), rec.Source, rec.Target)
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, data, metadataFilePerms); err != nil {
		return fmt.Errorf("writing transfer metadata: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming transfer metadata: %w", err)
	}

	return nil
}

// delete removes the record for a transfer. Missing records are ignored.
func (s *metadataStore) delete(dir Direction, source, target string) {
	if s.dir == "" {
		return
	}

	s.remove(s.filePath(dir, source, target))
}

func (s *metadataStore) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to remove transfer metadata",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// metadataKey produces a deterministic filename for a transfer. Lengths are
// prefixed so that delimiter characters in paths cannot collide.
func metadataKey(dir Direction, source, target string) string {
	h := sha256.Sum256(fmt.Appendf(nil, "%s:%d:%s:%s", dir, len(source), source, target))
	return fmt.Sprintf("%x.json", h)
}

func (s *metadataStore) filePath(dir Direction, source, target string) string {
	return filepath.Join(s.dir, metadataKey(dir, source, target))
}

func parseDirection(s string) Direction {
	if s == Download.String() {
		return Download
	}

	return Upload
}

// resumeState tracks completed segments of one file and persists them as
// they finish. Safe for concurrent use by segment workers.
type resumeState struct {
	mu    sync.Mutex
	rec   *metadataRecord
	store *metadataStore
}

// openResume returns the state for a transfer. An existing record is reused
// only when resume is requested and the fingerprint and segment plan still
// match. Otherwise it is deleted and returned as stale so the caller can
// clean up what it left behind.
func (m *Manager) openResume(
	store *metadataStore,
	resume bool,
	dir Direction,
	source, target string,
	fp Fingerprint,
	segs []Segment,
) (state *resumeState, stale *metadataRecord) {
	rec, err := store.load(dir, source, target)
	if err != nil {
		m.logger.Warn("ignoring transfer metadata", slog.String("error", err.Error()))
		rec = nil
	}

	if rec != nil && resume && rec.Fingerprint.Matches(fp) && slices.Equal(rec.Segments, segs) {
		m.logger.Info("resuming transfer",
			slog.String("source", source),
			slog.Int("completed", countTrue(rec.Completed)),
			slog.Int("segments", len(segs)),
		)

		return &resumeState{rec: rec, store: store}, nil
	}

	if rec != nil {
		store.delete(dir, source, target)
	}

	return &resumeState{
		rec: &metadataRecord{
			Direction:   dir.String(),
			Source:      source,
			Target:      target,
			Fingerprint: fp,
			Segments:    segs,
			Completed:   make([]bool, len(segs)),
		},
		store: store,
	}, rec
}

func (r *resumeState) done(i int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.rec.Completed[i]
}

func (r *resumeState) stagingDir() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.rec.StagingDir
}

func (r *resumeState) setStagingDir(dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rec.StagingDir = dir

	return r.store.save(r.rec)
}

// complete marks segment i done and persists the record.
func (r *resumeState) complete(i int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rec.Completed[i] = true

	return r.store.save(r.rec)
}

// completedBytes sums the lengths of finished segments.
func (r *resumeState) completedBytes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64

	for i, s := range r.rec.Segments {
		if r.rec.Completed[i] {
			n += s.Length
		}
	}

	return n
}

// finish deletes the record after a successful transfer.
func (r *resumeState) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.store.delete(parseDirection(r.rec.Direction), r.rec.Source, r.rec.Target)
}

func countTrue(bs []bool) int {
	n := 0

	for _, b := range bs {
		if b {
			n++
		}
	}

	return n
}
