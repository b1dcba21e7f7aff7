// Package cache persists embedding results on disk so re-processing an
// unchanged document never touches the embedding API again.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"paperqa/internal/domain"
)

const (
	manifestVersion = 1

	manifestFile = "manifest.json"
	segmentsFile = "segments.json"
	vectorsFile  = "vectors.json"
	indexFile    = "index.json"

	tmpPrefix = ".tmp-"
)

// manifest is written last into the staging directory and validated on every
// lookup; an entry without a consistent manifest is treated as absent.
type manifest struct {
	Version     int    `json:"version"`
	Fingerprint string `json:"fingerprint"`
	Source      string `json:"source"`
	Segments    int    `json:"segments"`
	Dimension   int    `json:"dimension"`
	CreatedAt   int64  `json:"created_at"`
}

// FSStore keeps one directory per fingerprint under a root directory.
// Writes stage into a hidden temp directory and publish with a single
// rename, so a crash mid-write leaves no entry a lookup would trust.
type FSStore struct {
	dir    string
	logger *slog.Logger
}

// NewFSStore opens (creating if needed) a cache rooted at dir and sweeps
// staging directories left behind by interrupted writes.
func NewFSStore(dir string) (*FSStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: cache directory is empty", domain.ErrInvalidConfig)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("open cache %s: %w", dir, err)
	}
	s := &FSStore{dir: dir, logger: slog.Default()}
	s.sweepStaging()
	return s, nil
}

// Lookup loads the entry for a fingerprint. A missing entry returns
// ok=false with a nil error; a corrupted or partial entry returns ok=false
// with an ErrCacheRead so the caller can log why the rebuild happens.
func (s *FSStore) Lookup(fp domain.Fingerprint) (*domain.CacheEntry, bool, error) {
	dir := s.entryDir(fp)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: stat %s: %v", domain.ErrCacheRead, dir, err)
	}

	var m manifest
	if err := s.readJSON(dir, manifestFile, &m); err != nil {
		return nil, false, err
	}
	if m.Version != manifestVersion {
		return nil, false, fmt.Errorf("%w: unsupported manifest version %d", domain.ErrCacheRead, m.Version)
	}
	if m.Fingerprint != string(fp) {
		return nil, false, fmt.Errorf("%w: manifest fingerprint %s does not match entry %s", domain.ErrCacheRead, m.Fingerprint, fp.Short())
	}

	var segments []domain.Segment
	if err := s.readJSON(dir, segmentsFile, &segments); err != nil {
		return nil, false, err
	}
	var vectors [][]float32
	if err := s.readJSON(dir, vectorsFile, &vectors); err != nil {
		return nil, false, err
	}
	if len(segments) != m.Segments || len(vectors) != m.Segments {
		return nil, false, fmt.Errorf("%w: entry %s has %d segments and %d vectors, manifest says %d",
			domain.ErrCacheRead, fp.Short(), len(segments), len(vectors), m.Segments)
	}
	for i, v := range vectors {
		if len(v) != m.Dimension {
			return nil, false, fmt.Errorf("%w: entry %s vector %d has dimension %d, manifest says %d",
				domain.ErrCacheRead, fp.Short(), i, len(v), m.Dimension)
		}
	}
	state, err := os.ReadFile(filepath.Join(dir, indexFile))
	if err != nil {
		return nil, false, fmt.Errorf("%w: read %s: %v", domain.ErrCacheRead, indexFile, err)
	}

	return &domain.CacheEntry{
		Fingerprint: fp,
		Source:      m.Source,
		Segments:    segments,
		Vectors:     vectors,
		IndexState:  state,
		CreatedAt:   time.Unix(m.CreatedAt, 0),
	}, true, nil
}

// Save persists an entry atomically: all files go into a staging directory
// which is renamed onto the entry path only once complete.
func (s *FSStore) Save(entry *domain.CacheEntry) error {
	if entry == nil || entry.Fingerprint == "" {
		return fmt.Errorf("%w: entry has no fingerprint", domain.ErrCacheWrite)
	}
	if len(entry.Segments) != len(entry.Vectors) {
		return fmt.Errorf("%w: entry %s has %d segments but %d vectors",
			domain.ErrCacheWrite, entry.Fingerprint.Short(), len(entry.Segments), len(entry.Vectors))
	}

	dimension := 0
	if len(entry.Vectors) > 0 {
		dimension = len(entry.Vectors[0])
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	staging := filepath.Join(s.dir, fmt.Sprintf("%s%s-%08x", tmpPrefix, entry.Fingerprint.Short(), rand.Uint32()))
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return fmt.Errorf("%w: create staging dir: %v", domain.ErrCacheWrite, err)
	}
	defer os.RemoveAll(staging)

	if err := s.writeJSON(staging, segmentsFile, entry.Segments); err != nil {
		return err
	}
	if err := s.writeJSON(staging, vectorsFile, entry.Vectors); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(staging, indexFile), entry.IndexState, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", domain.ErrCacheWrite, indexFile, err)
	}
	m := manifest{
		Version:     manifestVersion,
		Fingerprint: string(entry.Fingerprint),
		Source:      entry.Source,
		Segments:    len(entry.Segments),
		Dimension:   dimension,
		CreatedAt:   createdAt.Unix(),
	}
	if err := s.writeJSON(staging, manifestFile, m); err != nil {
		return err
	}

	target := s.entryDir(entry.Fingerprint)
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("%w: clear previous entry: %v", domain.ErrCacheWrite, err)
	}
	if err := os.Rename(staging, target); err != nil {
		return fmt.Errorf("%w: publish entry %s: %v", domain.ErrCacheWrite, entry.Fingerprint.Short(), err)
	}
	return nil
}

// Invalidate removes the entry for a fingerprint. Removing an absent entry
// is a no-op.
func (s *FSStore) Invalidate(fp domain.Fingerprint) error {
	if err := os.RemoveAll(s.entryDir(fp)); err != nil {
		return fmt.Errorf("invalidate %s: %w", fp.Short(), err)
	}
	return nil
}

func (s *FSStore) entryDir(fp domain.Fingerprint) string {
	return filepath.Join(s.dir, string(fp))
}

func (s *FSStore) readJSON(dir, name string, v any) error {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", domain.ErrCacheRead, name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", domain.ErrCacheRead, name, err)
	}
	return nil
}

func (s *FSStore) writeJSON(dir, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", domain.ErrCacheWrite, name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", domain.ErrCacheWrite, name, err)
	}
	return nil
}

// sweepStaging deletes leftover staging directories from interrupted writes.
func (s *FSStore) sweepStaging() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), tmpPrefix) {
			path := filepath.Join(s.dir, e.Name())
			if err := os.RemoveAll(path); err != nil {
				s.logger.Warn("could not remove stale staging dir", "path", path, "err", err)
			}
		}
	}
}
