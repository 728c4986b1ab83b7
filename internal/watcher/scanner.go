package watcher

import (
	"io/fs"
	"path/filepath"
	"sort"

	"git.home.luguber.info/inful/autodoc/internal/config"
	ferrors "git.home.luguber.info/inful/autodoc/internal/foundation/errors"
	"git.home.luguber.info/inful/autodoc/internal/registry"
)

// Diff is the result of comparing the source directory against the registry.
type Diff struct {
	// Changed lists files that are new or whose content fingerprint differs
	// from the registered one.
	Changed []string
	// Removed lists registered files that no longer exist on disk.
	Removed []string
	// Unchanged counts matched files whose fingerprint already agrees
	// with the registry.
	Unchanged int
}

// Filter decides which directory entries participate in the pipeline.
type Filter struct {
	pattern string
	exclude map[string]bool
}

// NewFilter builds a filter from the watch configuration.
func NewFilter(cfg config.WatchConfig) Filter {
	excl := make(map[string]bool, len(cfg.Exclude))
	for _, name := range cfg.Exclude {
		excl[name] = true
	}
	pattern := cfg.Pattern
	if pattern == "" {
		pattern = "*.py"
	}
	return Filter{pattern: pattern, exclude: excl}
}

// Match reports whether the file at path is a source file we document.
func (f Filter) Match(path string) bool {
	base := filepath.Base(path)
	if f.exclude[base] {
		return false
	}
	ok, err := filepath.Match(f.pattern, base)
	return err == nil && ok
}

// Scan walks the source directory and diffs it against the registry
// snapshot. It reads file content to fingerprint, so a touch without a
// content change reports nothing.
func Scan(dir string, cfg config.WatchConfig, reg *registry.Registry) (Diff, error) {
	filter := NewFilter(cfg)
	known := reg.Snapshot()
	seen := make(map[string]bool, len(known))

	var diff Diff
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !cfg.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !filter.Match(path) {
			return nil
		}
		seen[path] = true

		_, fingerprint, _, rerr := registry.ReadAndFingerprint(path)
		if rerr != nil {
			// The file may be mid-write; the next scan or event picks it up.
			return nil
		}
		if entry, ok := known[path]; !ok || entry.Fingerprint != fingerprint {
			diff.Changed = append(diff.Changed, path)
		} else {
			diff.Unchanged++
		}
		return nil
	})
	if err != nil {
		return Diff{}, ferrors.WrapError(err, ferrors.CategoryIO, "scan source directory").
			Retryable().WithContext("dir", dir).Build()
	}

	for path := range known {
		if !seen[path] {
			diff.Removed = append(diff.Removed, path)
		}
	}
	sort.Strings(diff.Changed)
	sort.Strings(diff.Removed)
	return diff, nil
}
