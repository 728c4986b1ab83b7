// Package registry tracks known source files and their content fingerprints.
//
// The registry is the single source of truth for "what did we last generate
// from". Entries are committed only by scheduler workers after an artifact
// lands in the store; the change detector reads snapshots to classify
// filesystem state into created/modified/deleted events.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"os"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/autodoc/internal/foundation/errors"
)

// SourceFile is the registry's record of one watched file.
type SourceFile struct {
	Path        string
	Fingerprint string
	ModTime     time.Time
}

// Registry maps canonical paths to SourceFile records. All methods are safe
// for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	files map[string]SourceFile
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{files: make(map[string]SourceFile)}
}

// Get returns the record for path, if known.
func (r *Registry) Get(path string) (SourceFile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.files[path]
	return f, ok
}

// Commit records the fingerprint a just-committed artifact was built from.
// Called by scheduler workers only, after the artifact swap.
func (r *Registry) Commit(path, fingerprint string, modTime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[path] = SourceFile{Path: path, Fingerprint: fingerprint, ModTime: modTime}
}

// Remove drops a file that disappeared from the filesystem.
func (r *Registry) Remove(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, path)
}

// Snapshot returns a copy of the current registry state.
func (r *Registry) Snapshot() map[string]SourceFile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]SourceFile, len(r.files))
	maps.Copy(out, r.files)
	return out
}

// Len returns the number of tracked files.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.files)
}

// Fingerprint hashes file content. Content-based hashing avoids both false
// negatives from touch-without-change and false positives from clock skew.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// ReadAndFingerprint reads a file and returns its content, fingerprint and
// modification time in one pass.
func ReadAndFingerprint(path string) (content []byte, fingerprint string, modTime time.Time, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", time.Time{}, ferrors.WrapError(err, ferrors.CategoryIO, "stat source file").
			Retryable().WithContext("file", path).Build()
	}
	content, err = os.ReadFile(path)
	if err != nil {
		return nil, "", time.Time{}, ferrors.WrapError(err, ferrors.CategoryIO, "read source file").
			Retryable().WithContext("file", path).Build()
	}
	return content, Fingerprint(content), info.ModTime(), nil
}
