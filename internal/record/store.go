package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

const (
	recordExt   = ".json"
	backupExt   = ".json.bak"
	checksumExt = ".json.sum"
)

var (
	ErrNotFound = errors.New("upload record not found")

	// ErrCorrupted means neither the primary record file nor its backup
	// could be read. The record must surface to the user; it is never
	// silently dropped.
	ErrCorrupted = errors.New("upload record corrupted")
)

// Store persists upload records under a single directory, one JSON
// document per archive plus a .bak previous version and a .sum BLAKE3
// checksum used to detect torn writes.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create record directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

// Path returns the primary file path for a record id.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+recordExt)
}

// Save atomically rewrites the record: the new content goes to a temp
// file which is renamed over the primary, and the previous primary is
// kept as .bak until the next save. A crash at any point leaves at
// least one readable version on disk.
func (s *Store) Save(r *Record) error {
	if r.SavePath == "" {
		return fmt.Errorf("record has no save path")
	}
	r.Progress = r.ComputeProgress()

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.SavePath), ".record-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Preserve the current primary as backup before replacing it.
	if _, err := os.Stat(r.SavePath); err == nil {
		if err := os.Rename(r.SavePath, s.backupPath(r.SavePath)); err != nil {
			return fmt.Errorf("failed to rotate backup: %w", err)
		}
	}
	if err := os.Rename(tmpPath, r.SavePath); err != nil {
		return fmt.Errorf("failed to replace record: %w", err)
	}
	ok = true

	sum := blake3.Sum256(data)
	if err := os.WriteFile(s.checksumPath(r.SavePath), []byte(fmt.Sprintf("%x", sum)), 0o644); err != nil {
		// The record itself is safe; a missing checksum only weakens
		// torn-write detection on the next load.
		slog.Warn("Failed to write record checksum", "path", r.SavePath, "error", err)
	}
	return nil
}

// Load reads a record from its primary file, falling back to the .bak
// version when the primary is missing, unparsable, or fails its
// checksum. If both are unreadable it returns ErrCorrupted; if neither
// exists, ErrNotFound.
func (s *Store) Load(path string) (*Record, error) {
	primary, perr := s.loadFile(path, true)
	if perr == nil {
		return primary, nil
	}

	backup, berr := s.loadFile(s.backupPath(path), false)
	if berr == nil {
		slog.Warn("Primary record unreadable, using backup", "path", path, "error", perr)
		backup.SavePath = path
		return backup, nil
	}

	if os.IsNotExist(perr) && os.IsNotExist(berr) {
		return nil, ErrNotFound
	}
	return nil, fmt.Errorf("%w: %s (primary: %v, backup: %v)", ErrCorrupted, path, perr, berr)
}

func (s *Store) loadFile(path string, verifyChecksum bool) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if verifyChecksum {
		if want, err := os.ReadFile(s.checksumPath(path)); err == nil {
			sum := blake3.Sum256(data)
			if got := fmt.Sprintf("%x", sum); got != strings.TrimSpace(string(want)) {
				// The sidecar is written after the primary rename; a crash
				// between the two leaves a stale checksum beside a valid
				// record. The mismatch alone never rejects the file:
				// parsing and validation decide below.
				slog.Warn("Record checksum mismatch", "path", path)
			}
		}
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse record %s: %w", path, err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid record %s: %w", path, err)
	}
	r.SavePath = path

	// Consistency check after abnormal termination: the persisted
	// aggregate may lag behind the per-entry progress. Recompute, never
	// trust the cached value.
	if computed := r.ComputeProgress(); computed != r.Progress {
		slog.Warn("Record aggregate progress out of date, recomputed",
			"path", path, "stored", r.Progress, "computed", computed)
		r.Progress = computed
	}
	return &r, nil
}

// LoadResult pairs a loaded record with its load outcome so corrupted
// entries stay visible to the caller.
type LoadResult struct {
	ID        string
	Record    *Record
	Corrupted bool
}

// LoadAll enumerates every record in the store directory. Records whose
// remote URL does not point at endpointHost are excluded (state written
// against a different deployment), as are records with an empty URL
// (uploads that were never fully created). Corrupted records are
// returned flagged, not dropped.
func (s *Store) LoadAll(endpointHost string) ([]LoadResult, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read record directory: %w", err)
	}

	var results []LoadResult
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, recordExt) {
			continue
		}
		id := strings.TrimSuffix(name, recordExt)
		path := filepath.Join(s.dir, name)

		r, err := s.Load(path)
		if err != nil {
			if errors.Is(err, ErrCorrupted) {
				slog.Error("Corrupted upload record", "path", path, "error", err)
				results = append(results, LoadResult{ID: id, Corrupted: true})
			}
			continue
		}
		if r.URL == "" {
			slog.Warn("Skipping record without remote upload URL", "path", path)
			continue
		}
		if host := urlHost(r.URL); host != "" && endpointHost != "" && host != endpointHost {
			slog.Info("Skipping record for different endpoint", "path", path, "host", host)
			continue
		}
		results = append(results, LoadResult{ID: id, Record: r})
	}
	return results, nil
}

// Delete removes the record's primary file and all sibling artifacts.
func (s *Store) Delete(r *Record) error {
	if r.SavePath == "" {
		return nil
	}
	for _, p := range []string{r.SavePath, s.backupPath(r.SavePath), s.checksumPath(r.SavePath)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete %s: %w", p, err)
		}
	}
	return nil
}

func (s *Store) backupPath(path string) string {
	return strings.TrimSuffix(path, recordExt) + backupExt
}

func (s *Store) checksumPath(path string) string {
	return strings.TrimSuffix(path, recordExt) + checksumExt
}

func urlHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
