// Package glob resolves a category's source patterns against the source tree.
//
// Patterns use doublestar syntax (`**`, `{a,b}`, character classes) and are
// always slash separated and relative to the source root. Exclusions are
// matched against the same relative path, so `**/_*` removes every partial
// regardless of depth.
package glob

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Set is an immutable include/exclude pattern set rooted at a directory.
type Set struct {
	Root    string
	Include []string
	Exclude []string
}

// New validates the patterns and returns a Set.
func New(root string, include, exclude []string) (Set, error) {
	for _, p := range append(append([]string{}, include...), exclude...) {
		if !doublestar.ValidatePattern(p) {
			return Set{}, fmt.Errorf("invalid glob pattern %q", p)
		}
		if path.IsAbs(p) || strings.HasPrefix(p, "../") {
			return Set{}, fmt.Errorf("glob pattern %q must be relative to the source root", p)
		}
	}
	return Set{Root: root, Include: include, Exclude: exclude}, nil
}

// Match reports whether rel (slash separated, relative to Root) is selected.
func (s Set) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	if s.excluded(rel) {
		return false
	}
	for _, p := range s.Include {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Watches reports whether a change to rel can affect the set's outputs.
// Unlike Match it ignores exclusions, so edits to partials count.
func (s Set) Watches(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range s.Include {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// MatchPath is Match for an absolute or Root-relative OS path. Paths outside Root never match.
func (s Set) MatchPath(p string) bool {
	rel, ok := s.Rel(p)
	return ok && s.Match(rel)
}

// Rel converts an OS path into a slash separated path relative to Root.
func (s Set) Rel(p string) (string, bool) {
	if !filepath.IsAbs(p) {
		return filepath.ToSlash(p), true
	}
	rel, err := filepath.Rel(s.Root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (s Set) excluded(rel string) bool {
	for _, p := range s.Exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Expand lists all regular files under Root selected by the set, sorted and de-duplicated.
// A missing Root yields no files rather than an error.
func (s Set) Expand() ([]string, error) {
	if _, err := os.Stat(s.Root); os.IsNotExist(err) {
		return nil, nil
	}
	fsys := os.DirFS(s.Root)
	seen := make(map[string]struct{})
	for _, p := range s.Include {
		matches, err := doublestar.Glob(fsys, p, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", p, err)
		}
		for _, m := range matches {
			if s.excluded(m) {
				continue
			}
			seen[m] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

// Base returns the static directory prefix of the include pattern that selects rel.
// Outputs keep their path relative to this base, like a glob parent.
func (s Set) Base(rel string) string {
	rel = filepath.ToSlash(rel)
	for _, p := range s.Include {
		if ok, _ := doublestar.Match(p, rel); ok {
			base, _ := doublestar.SplitPattern(p)
			if base == "." {
				return ""
			}
			return base
		}
	}
	return ""
}

// WatchDirs returns the absolute directories that must be observed to see
// every file the set can select.
func (s Set) WatchDirs() []string {
	seen := make(map[string]struct{})
	var dirs []string
	for _, p := range s.Include {
		base, _ := doublestar.SplitPattern(p)
		dir := filepath.Join(s.Root, filepath.FromSlash(base))
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

// Fingerprint summarizes the selected files (count, newest mtime, total size)
// so pollers can detect changes without hashing content.
func (s Set) Fingerprint() (string, error) {
	files, err := s.Expand()
	if err != nil {
		return "", err
	}
	var newest int64
	var size int64
	for _, rel := range files {
		fi, err := fs.Stat(os.DirFS(s.Root), rel)
		if err != nil {
			continue
		}
		if mt := fi.ModTime().UnixNano(); mt > newest {
			newest = mt
		}
		size += fi.Size()
	}
	return fmt.Sprintf("%d:%d:%d", len(files), newest, size), nil
}
