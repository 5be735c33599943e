// Package watch reports changes to the input data of an engaged analysis.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/catalogue/pkg/catalogue/logging"
	"github.com/jamesainslie/catalogue/pkg/catalogue/types"
	"github.com/jamesainslie/catalogue/pkg/catalogue/walk"
)

var logger = logging.Get("watch")

// Op is the kind of change observed.
type Op string

// Change kinds.
const (
	OpCreated  Op = "created"
	OpModified Op = "modified"
	OpRemoved  Op = "removed"
	OpRenamed  Op = "renamed"
)

// Event is a change to a file under the watched input data.
type Event struct {
	Path string
	Op   Op
	Time time.Time
}

// Watcher watches an input data path recursively.
type Watcher struct {
	watcher *fsnotify.Watcher
	opts    walk.Options
	root    string
	file    bool // root is a single file
	paths   map[string]bool
	mu      sync.Mutex
	closed  bool
}

// New creates a watcher for path, a file or directory. Files skipped by
// opts are not reported.
func New(path string, opts walk.Options) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	kind, err := types.Stat(abs)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher: fsw,
		opts:    opts,
		root:    abs,
		paths:   make(map[string]bool),
	}

	switch kind {
	case types.KindFile:
		// Watch the parent so replacements of the file are seen.
		w.file = true
		err = w.addWatch(filepath.Dir(abs))
	case types.KindDir:
		err = w.addTree(abs)
	default:
		err = types.NewPathError("watch", path, types.ErrPathNotFound)
	}
	if err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Root returns the absolute watched path.
func (w *Watcher) Root() string {
	return w.root
}

// addTree watches dir and every subdirectory not pruned by the walk options.
// Symlinks are not followed to avoid loops.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // Skip entries with errors
		}
		if d.Type()&fs.ModeSymlink != 0 || !d.IsDir() {
			return nil
		}
		if path != dir && w.skipDir(path) {
			return filepath.SkipDir
		}
		return w.addWatch(path)
	})
}

func (w *Watcher) addWatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.paths[path] {
		return nil
	}
	if err := w.watcher.Add(path); err != nil {
		logger.Warn("failed to add watch", "path", path, "error", err)
		return err
	}
	w.paths[path] = true
	return nil
}

func (w *Watcher) removeWatch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for p := range w.paths {
		if p == path || isSubPath(p, path) {
			_ = w.watcher.Remove(p)
			delete(w.paths, p)
		}
	}
}

func (w *Watcher) skipDir(path string) bool {
	if w.opts.IgnoreDotFiles && strings.HasPrefix(filepath.Base(path), ".") {
		return true
	}
	for _, p := range w.opts.Prune {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil && abs == path {
			return true
		}
	}
	return false
}

// skipFile applies the walker's file rules so that a change is reported
// exactly when the file would be hashed.
func (w *Watcher) skipFile(path string) bool {
	return w.opts.SkipsFile(filepath.Base(path))
}

// Run delivers events to onEvent until ctx is cancelled or the watcher is
// closed.
func (w *Watcher) Run(ctx context.Context, onEvent func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if e, ok := w.translate(ev); ok && onEvent != nil {
				onEvent(e)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("watcher error", "error", err)
		}
	}
}

// Events runs the watcher in a goroutine and returns a channel of events. The
// channel is closed when ctx is cancelled or the watcher is closed.
func (w *Watcher) Events(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		w.Run(ctx, func(e Event) {
			select {
			case out <- e:
			case <-ctx.Done():
			}
		})
	}()
	return out
}

// translate maps a raw notification to an Event, updating the watch set for
// created and removed directories.
func (w *Watcher) translate(ev fsnotify.Event) (Event, bool) {
	path := ev.Name
	if w.file && path != w.root {
		return Event{}, false
	}

	e := Event{Path: path, Time: time.Now()}
	switch {
	case ev.Op&fsnotify.Create != 0:
		e.Op = OpCreated
		info, err := os.Lstat(path)
		if err == nil && info.IsDir() && info.Mode()&fs.ModeSymlink == 0 {
			if w.skipDir(path) {
				return Event{}, false
			}
			_ = w.addTree(path)
			return e, true
		}
	case ev.Op&fsnotify.Write != 0:
		e.Op = OpModified
	case ev.Op&fsnotify.Remove != 0:
		e.Op = OpRemoved
		w.removeWatch(path)
	case ev.Op&fsnotify.Rename != 0:
		e.Op = OpRenamed
		w.removeWatch(path)
	default:
		// Chmod does not change content.
		return Event{}, false
	}

	if w.skipFile(path) {
		return Event{}, false
	}
	logger.Debug("input changed", "path", path, "op", e.Op)
	return e, true
}

// Close stops watching and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.paths = make(map[string]bool)
	return w.watcher.Close()
}

// isSubPath checks if path is under parent directory.
func isSubPath(path, parent string) bool {
	return len(path) > len(parent) && path[:len(parent)+1] == parent+string(filepath.Separator)
}
