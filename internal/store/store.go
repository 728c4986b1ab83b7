// Package store holds the latest documentation artifact per source file.
//
// The store is the single source of truth for readers. A commit atomically
// replaces the whole artifact value, so readers observe either the prior or
// the new artifact, never a mix. Only scheduler workers commit; everything
// else reads.
package store

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/autodoc/internal/analyzer"
	ferrors "git.home.luguber.info/inful/autodoc/internal/foundation/errors"
	"git.home.luguber.info/inful/autodoc/internal/renderer"
)

// DocumentArtifact is one generated document. Immutable once committed; a
// regeneration produces a fresh value that replaces the old one.
type DocumentArtifact struct {
	Path     string
	Name     string
	Model    *analyzer.Model
	Markdown []byte
	Diagram  string
	Outline  []renderer.Heading
	// Fingerprint is the rendered body's content fingerprint.
	Fingerprint string
	// SourceFingerprint is the hash of the source content this artifact was
	// built from.
	SourceFingerprint string
	// Revision is the short git hash of the source tree, when known.
	Revision    string
	GeneratedAt time.Time
}

// Summary is the list-view projection of an artifact.
type Summary struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Fingerprint string    `json:"fingerprint"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Store maps source paths to their latest artifact and writes rendered
// markdown through to the output directory.
type Store struct {
	outputDir string

	mu        sync.RWMutex
	artifacts map[string]*DocumentArtifact
	byName    map[string]string // document name -> source path
}

// New creates a store writing markdown files into outputDir.
func New(outputDir string) *Store {
	return &Store{
		outputDir: outputDir,
		artifacts: make(map[string]*DocumentArtifact),
		byName:    make(map[string]string),
	}
}

// Commit writes the artifact's markdown to the output directory and then
// swaps the in-memory value. The file write goes through a temp file and
// rename so a crash mid-write never leaves a half-written document, and a
// failed write never publishes the artifact.
func (s *Store) Commit(a *DocumentArtifact) error {
	if err := s.writeThrough(a); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[a.Path] = a
	s.byName[a.Name] = a.Path
	return nil
}

// Get returns the artifact for a source path.
func (s *Store) Get(path string) (*DocumentArtifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[path]
	return a, ok
}

// GetByName returns the artifact for a document name (source file stem).
func (s *Store) GetByName(name string) (*DocumentArtifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	path, ok := s.byName[strings.TrimSuffix(name, ".md")]
	if !ok {
		return nil, false
	}
	a, ok := s.artifacts[path]
	return a, ok
}

// List returns summaries of all artifacts, sorted by name.
func (s *Store) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.artifacts))
	for _, a := range s.artifacts {
		out = append(out, Summary{
			Name:        a.Name,
			Path:        a.Path,
			Fingerprint: a.Fingerprint,
			GeneratedAt: a.GeneratedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Delete drops the artifact for a removed source file and its rendered
// markdown. Deleting an unknown path is a no-op.
func (s *Store) Delete(path string) {
	s.mu.Lock()
	a, ok := s.artifacts[path]
	owned := false
	if ok {
		delete(s.artifacts, path)
		// Another live source with the same stem may own <name>.md now;
		// only the owner removes the output file.
		if s.byName[a.Name] == path {
			delete(s.byName, a.Name)
			owned = true
		}
	}
	s.mu.Unlock()

	if owned {
		// Best effort: a stale file is overwritten if the name returns.
		_ = os.Remove(filepath.Join(s.outputDir, a.Name+".md"))
	}
}

// Len returns the number of stored artifacts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.artifacts)
}

func (s *Store) writeThrough(a *DocumentArtifact) error {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryIO, "create output directory").
			Retryable().WithContext("dir", s.outputDir).Build()
	}

	final := filepath.Join(s.outputDir, a.Name+".md")
	tmp, err := os.CreateTemp(s.outputDir, "."+a.Name+".md.tmp-*")
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryIO, "create temp artifact file").
			Retryable().WithContext("file", final).Build()
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(a.Markdown); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return ferrors.WrapError(err, ferrors.CategoryIO, "write artifact file").
			Retryable().WithContext("file", final).Build()
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return ferrors.WrapError(err, ferrors.CategoryIO, "close artifact file").
			Retryable().WithContext("file", final).Build()
	}
	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return ferrors.WrapError(err, ferrors.CategoryIO, "publish artifact file").
			Retryable().WithContext("file", final).Build()
	}
	return nil
}
