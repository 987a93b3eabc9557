// Package watch turns filesystem changes into serialized, debounced
// category runs.
//
// Raw fsnotify events flow through the Dispatcher, which publishes
// events.SourceChanged for every category whose globs cover the path. Each
// category has a Debouncer that coalesces bursts into events.RebuildNow and a
// Serializer that runs the category task, queueing at most one follow-up
// while a run is in flight.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepipe/internal/logfields"
)

// Change is a filtered filesystem event with an absolute path.
type Change struct {
	Path string
	Op   string
	At   time.Time
}

// Watcher observes directory trees. fsnotify is not recursive, so every
// directory is added individually and new ones are picked up on create.
type Watcher struct {
	fsw *fsnotify.Watcher
	log *slog.Logger

	mu      sync.Mutex
	watched map[string]bool
}

func NewWatcher(log *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryWatch, "create file watcher").Fatal().Build()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{fsw: fsw, log: log, watched: map[string]bool{}}, nil
}

// AddRecursive watches dir and everything below it. A missing dir is
// covered by watching its nearest existing ancestor, so creating it later
// still produces events.
func (w *Watcher) AddRecursive(dir string) error {
	dir = filepath.Clean(dir)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		parent := filepath.Dir(dir)
		if parent == dir {
			return ferrors.WatchError("no existing directory to watch").WithContext("dir", dir).Build()
		}
		for {
			if _, err := os.Stat(parent); err == nil {
				return w.add(parent)
			}
			next := filepath.Dir(parent)
			if next == parent {
				return ferrors.WatchError("no existing directory to watch").WithContext("dir", dir).Build()
			}
			parent = next
		}
	}
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && ignored(p) {
			return filepath.SkipDir
		}
		return w.add(p)
	})
}

func (w *Watcher) add(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watched[dir] {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryWatch, "watch directory").WithContext("dir", dir).Build()
	}
	w.watched[dir] = true
	return nil
}

// Dirs returns the watched directories.
func (w *Watcher) Dirs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.watched))
	for d := range w.watched {
		out = append(out, d)
	}
	return out
}

// Run forwards changes to out until ctx is done or the watcher is closed.
// Files already present in a newly created directory are reported too,
// since they may have been written before the directory was watched.
func (w *Watcher) Run(ctx context.Context, out chan<- Change) error {
	emit := func(c Change) bool {
		select {
		case out <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ignored(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}
			now := time.Now()
			if ev.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					if err := w.AddRecursive(ev.Name); err != nil {
						w.log.Warn("Watch new directory failed", logfields.Path(ev.Name), logfields.Error(err))
					}
					for _, f := range filesUnder(ev.Name) {
						if !emit(Change{Path: f, Op: fsnotify.Create.String(), At: now}) {
							return nil
						}
					}
					continue
				}
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				w.forget(ev.Name)
			}
			if !emit(Change{Path: ev.Name, Op: ev.Op.String(), At: now}) {
				return nil
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("File watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) forget(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for d := range w.watched {
		if d == dir || strings.HasPrefix(d, dir+string(filepath.Separator)) {
			delete(w.watched, d)
		}
	}
}

func (w *Watcher) Close() error { return w.fsw.Close() }

func filesUnder(dir string) []string {
	var files []string
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && !ignored(p) {
			files = append(files, p)
		}
		return nil
	})
	return files
}

// ignored reports editor swap files, backups and OS metadata.
func ignored(p string) bool {
	base := filepath.Base(p)
	switch {
	case strings.HasPrefix(base, ".#"),
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"),
		strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"), strings.HasSuffix(base, ".swx"),
		strings.HasSuffix(base, ".tmp"),
		strings.HasPrefix(base, ".sitepipe-"),
		base == "4913",
		base == ".DS_Store", base == "Thumbs.db",
		base == ".git", base == "node_modules":
		return true
	}
	return false
}
