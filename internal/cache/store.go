// Package cache persists generated resolver artifacts and decides when they
// can be reused instead of regenerated.
//
// The store is a plain directory. Every artifact starts with one digest
// line: in whole-design mode the topology fingerprint of the run that
// produced it, in per-artifact mode whatever leading line the generator
// emitted. Files are replaced atomically, so a reader sees either the old
// or the new version of a file, never a mix.
//
// One run at a time is assumed; concurrent runs against the same directory
// are not coordinated.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/robert-at-pretension-io/vhdl-netres/internal/config"
	"github.com/robert-at-pretension-io/vhdl-netres/internal/netlist"
)

// Mode selects the caching granularity.
type Mode string

const (
	// ModeDesign keys the whole design on one topology fingerprint stored
	// in the slot artifact; a hit skips generation entirely.
	ModeDesign Mode = "design"

	// ModeArtifact always generates and then compares each artifact's
	// leading digest line against the file on disk.
	ModeArtifact Mode = "artifact"
)

// Status is the outcome for one artifact.
type Status string

const (
	StatusWritten Status = "written"
	StatusCached  Status = "cached"
	StatusFailed  Status = "failed"
)

// FileResult is the outcome for one artifact.
type FileResult struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Report aggregates the outcome of one persistence step.
type Report struct {
	Files   []FileResult `json:"files"`
	Written int          `json:"written"`
	Cached  int          `json:"cached"`
	Failed  int          `json:"failed"`
}

func (r *Report) add(fr FileResult) {
	r.Files = append(r.Files, fr)
	switch fr.Status {
	case StatusWritten:
		r.Written++
	case StatusCached:
		r.Cached++
	case StatusFailed:
		r.Failed++
	}
}

// WrittenPaths returns the paths of artifacts written in this step.
func (r *Report) WrittenPaths() []string {
	var out []string
	for _, f := range r.Files {
		if f.Status == StatusWritten {
			out = append(out, f.Path)
		}
	}
	return out
}

const snapshotFile = "topology.json"

// Store is a directory of generated artifacts.
type Store struct {
	Dir    string
	Logger *slog.Logger
}

// New returns a store rooted at dir.
func New(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{Dir: dir, Logger: logger}
}

// SlotName is the artifact whose digest line keys the whole-design cache.
func SlotName(design string) string {
	return design + "_resolver.vhd"
}

// SlotPath returns the path of the whole-design slot artifact.
func (s *Store) SlotPath(design string) string {
	return filepath.Join(s.Dir, SlotName(design))
}

// DesignHit reports whether the slot artifact carries fingerprint. A
// missing, truncated or foreign slot file is a miss, not an error.
func (s *Store) DesignHit(design string, fingerprint uint64) (bool, error) {
	line, complete, err := readLeadingLine(s.SlotPath(design))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read cache slot: %w", err)
	}
	if !complete {
		return false, nil
	}
	stored, ok := ParseTopologyHeader(string(line))
	if !ok {
		return false, nil
	}
	return stored == fingerprint, nil
}

// WriteDesign persists the artifacts of a whole-design generation, each
// prefixed with the topology digest line. The slot artifact is written last
// and only carries the real fingerprint when every sibling was written; a
// partial batch leaves a slot that will miss on the next run.
func (s *Store) WriteDesign(design string, fingerprint uint64, artifacts map[string]string) Report {
	report := Report{Files: []FileResult{}}
	slot := SlotName(design)

	names := sortedNames(artifacts)
	if _, ok := artifacts[slot]; !ok {
		s.Logger.Warn("generator output has no slot artifact; whole-design cache will miss next run",
			"slot", slot)
	}

	for _, name := range names {
		if name == slot {
			continue
		}
		report.add(s.writeOne(name, []byte(TopologyHeader(fingerprint)+"\n"+artifacts[name])))
	}
	if body, ok := artifacts[slot]; ok {
		header := fingerprint
		if report.Failed > 0 {
			header = 0
		}
		report.add(s.writeOne(slot, []byte(TopologyHeader(header)+"\n"+body)))
	}
	return report
}

// Reconcile persists artifacts in per-artifact mode. A file whose existing
// leading line matches the new artifact's leading line is left untouched
// and counted as cached; anything else is written.
func (s *Store) Reconcile(artifacts map[string]string) Report {
	report := Report{Files: []FileResult{}}
	for _, name := range sortedNames(artifacts) {
		content := []byte(artifacts[name])
		path, err := s.artifactPath(name)
		if err != nil {
			report.add(s.failed(name, path, err))
			continue
		}

		want := leadingLine(content)
		have, complete, err := readLeadingLine(path)
		switch {
		case err == nil && sameLeadingLine(have, complete, want):
			s.Logger.Info("artifact unchanged", "file", path)
			report.add(FileResult{Name: name, Path: path, Status: StatusCached})
			continue
		case err != nil && !errors.Is(err, os.ErrNotExist):
			s.Logger.Warn("cannot read existing artifact; rewriting", "file", path, "error", err)
		}
		report.add(s.writeOne(name, content))
	}
	return report
}

// WriteAll writes every artifact as is, without consulting the files on
// disk.
func (s *Store) WriteAll(artifacts map[string]string) Report {
	report := Report{Files: []FileResult{}}
	for _, name := range sortedNames(artifacts) {
		report.add(s.writeOne(name, []byte(artifacts[name])))
	}
	return report
}

func (s *Store) writeOne(name string, content []byte) FileResult {
	path, err := s.artifactPath(name)
	if err != nil {
		return s.failed(name, path, err)
	}
	if err := writeFileAtomic(path, content); err != nil {
		return s.failed(name, path, err)
	}
	s.Logger.Info("wrote artifact", "file", path, "bytes", len(content))
	return FileResult{Name: name, Path: path, Status: StatusWritten}
}

func (s *Store) failed(name, path string, err error) FileResult {
	s.Logger.Warn("artifact write failed", "file", name, "error", err)
	return FileResult{Name: name, Path: path, Status: StatusFailed, Error: err.Error()}
}

// artifactPath maps an artifact name to a file inside the store, refusing
// names that would escape it.
func (s *Store) artifactPath(name string) (string, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return filepath.Join(s.Dir, name), nil
}

// LoadSnapshot reads the topology recorded by the last successful
// generation. A missing snapshot returns nil without error.
func (s *Store) LoadSnapshot() (*netlist.Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, snapshotFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read topology snapshot: %w", err)
	}
	var snap netlist.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse topology snapshot: %w", err)
	}
	return &snap, nil
}

// SaveSnapshot records the topology the current artifacts were built from.
func (s *Store) SaveSnapshot(snap netlist.Snapshot) error {
	if err := writeJSONAtomic(filepath.Join(s.Dir, snapshotFile), snap); err != nil {
		return fmt.Errorf("write topology snapshot: %w", err)
	}
	return nil
}

// Clear removes every file in the store directory. A missing directory is
// not an error.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read cache dir: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.Dir, e.Name())); err != nil {
			return fmt.Errorf("remove cache entry: %w", err)
		}
	}
	return nil
}

// ResolveDir returns the cache directory for a run rooted at rootPath.
// Relative directories are taken relative to rootPath (or its directory
// when rootPath is a file).
func ResolveDir(rootPath string, cfg *config.Config) string {
	baseDir := rootPath
	if info, err := os.Stat(rootPath); err == nil && !info.IsDir() {
		baseDir = filepath.Dir(rootPath)
	}
	cacheDir := config.DefaultCacheDir
	if cfg != nil && cfg.Cache.Dir != "" {
		cacheDir = cfg.Cache.Dir
	}
	if !filepath.IsAbs(cacheDir) {
		cacheDir = filepath.Join(baseDir, cacheDir)
	}
	return cacheDir
}

func sortedNames(artifacts map[string]string) []string {
	names := make([]string, 0, len(artifacts))
	for name := range artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
