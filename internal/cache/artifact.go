package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/eugenferber616-design/earnings-cache/internal/model"
)

// Artifact file names inside the output directory.
const (
	IndexFile   = "earnings.json"
	StatsFile   = "stats.json"
	LastRunFile = "last_run.txt"
)

const lastRunLayout = "2006-01-02T15:04:05Z"

// Store persists the index, stats, and last-run artifacts in one directory.
// All writes are atomic (temp file + rename) so readers never see torn files.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the artifact directory.
func (s *Store) Dir() string {
	return s.dir
}

// EnsureDir creates the artifact directory if needed. It also drops a
// .nojekyll marker so the directory can be published as-is via GitHub Pages.
func (s *Store) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrapf(err, "cache: create dir %s", s.dir)
	}
	marker := filepath.Join(s.dir, ".nojekyll")
	if _, err := os.Stat(marker); os.IsNotExist(err) {
		if err := os.WriteFile(marker, nil, 0o644); err != nil {
			return eris.Wrap(err, "cache: write .nojekyll")
		}
	}
	return nil
}

// IndexModTime returns the last-modified time of the stored index, or nil if
// no index artifact exists yet.
func (s *Store) IndexModTime() (*time.Time, error) {
	info, err := os.Stat(filepath.Join(s.dir, IndexFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "cache: stat index")
	}
	t := info.ModTime()
	return &t, nil
}

// LoadIndex reads the stored index and its modification time. A missing
// artifact yields (nil, nil, nil); a corrupt one yields an error so the
// caller can decide whether to treat it as a first run.
func (s *Store) LoadIndex() (model.Index, *time.Time, error) {
	path := filepath.Join(s.dir, IndexFile)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, eris.Wrap(err, "cache: stat index")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "cache: read index")
	}

	var idx model.Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, nil, eris.Wrap(err, "cache: decode index")
	}

	mtime := info.ModTime()
	return idx, &mtime, nil
}

// WriteIndex atomically replaces the index artifact with the given canonical
// encoding.
func (s *Store) WriteIndex(encoded []byte) error {
	if err := s.writeAtomic(IndexFile, encoded); err != nil {
		return eris.Wrap(err, "cache: write index")
	}
	return nil
}

// WriteStats atomically replaces the stats artifact.
func (s *Store) WriteStats(st model.Stats) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return eris.Wrap(err, "cache: marshal stats")
	}
	if err := s.writeAtomic(StatsFile, append(data, '\n')); err != nil {
		return eris.Wrap(err, "cache: write stats")
	}
	return nil
}

// LoadStats reads the stats artifact, or nil if none exists.
func (s *Store) LoadStats() (*model.Stats, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, StatsFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "cache: read stats")
	}
	var st model.Stats
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, eris.Wrap(err, "cache: decode stats")
	}
	return &st, nil
}

// WriteLastRun records the completion time of a run.
func (s *Store) WriteLastRun(t time.Time) error {
	line := t.UTC().Format(lastRunLayout)
	if err := s.writeAtomic(LastRunFile, []byte(line+"\n")); err != nil {
		return eris.Wrap(err, "cache: write last run")
	}
	return nil
}

// LastRun reads the recorded completion time of the most recent run, or nil
// if no run has completed yet.
func (s *Store) LastRun() (*time.Time, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, LastRunFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "cache: read last run")
	}
	t, err := time.Parse(lastRunLayout, strings.TrimSpace(string(data)))
	if err != nil {
		return nil, eris.Wrap(err, "cache: parse last run")
	}
	return &t, nil
}

func (s *Store) writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, "."+name+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrap(err, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "rename temp file")
	}
	return nil
}

