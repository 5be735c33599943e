// Package walk enumerates the files under a directory in a deterministic
// order, applying the catalogue's ignore rules.
//
// Enumeration runs in parallel via fastwalk; the collected paths are then
// sorted into pre-order: every directory's own files (by name) come before
// the files of its subdirectories (by name). Hashes folded over this order
// are therefore stable across runs and machines.
package walk

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/jamesainslie/catalogue/pkg/catalogue/logging"
	"github.com/jamesainslie/catalogue/pkg/catalogue/types"
)

var logger = logging.Get("walk")

// Options controls which entries a walk accepts.
type Options struct {
	// Prune lists directories that are skipped entirely. Each entry
	// suppresses at most one directory.
	Prune []string

	// ExcludeExts lists file extensions to skip, with or without the dot.
	// Matching ignores case.
	ExcludeExts []string

	// IgnoreDotFiles skips files and directories whose name starts with ".".
	IgnoreDotFiles bool
}

// DefaultOptions returns the options used when none are given: dotfiles
// are ignored and nothing is pruned.
func DefaultOptions() Options {
	return Options{IgnoreDotFiles: true}
}

// SkipsFile reports whether a file named name is rejected by the dotfile
// and extension rules.
func (o Options) SkipsFile(name string) bool {
	if o.IgnoreDotFiles && strings.HasPrefix(name, ".") {
		return true
	}
	ext := filepath.Ext(name)
	if ext == "" {
		return false
	}
	ext = normalizeExt(ext)
	for _, e := range o.ExcludeExts {
		if e != "" && normalizeExt(e) == ext {
			return true
		}
	}
	return false
}

// normalizeExt returns ext lower-cased with a leading dot.
func normalizeExt(ext string) string {
	return "." + strings.ToLower(strings.TrimPrefix(ext, "."))
}

// walker holds the state of a single walk. fastwalk invokes the callback
// from several goroutines, so all mutable state is guarded by mu.
type walker struct {
	root  string
	opts  Options
	exts  map[string]struct{}
	prune map[string]struct{}

	mu    sync.Mutex
	files [][]string
}

// Files returns the accepted files under root in pre-order. Returned paths
// are filepath.Join(root, relative path).
func Files(root string, opts Options) ([]string, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: empty root", types.ErrInvalidArgument)
	}
	kind, err := types.Stat(root)
	if err != nil {
		return nil, err
	}
	switch kind {
	case types.KindMissing:
		return nil, types.NewPathError("walk", root, types.ErrPathNotFound)
	case types.KindDir:
	default:
		return nil, types.NewPathError("walk", root, fmt.Errorf("%w: not a directory", types.ErrInvalidArgument))
	}

	w := newWalker(filepath.Clean(root), opts)

	conf := fastwalk.Config{
		Follow: false,
	}
	if err := fastwalk.Walk(&conf, w.root, w.visit); err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	sort.Slice(w.files, func(i, j int) bool {
		return preorderLess(w.files[i], w.files[j])
	})

	paths := make([]string, len(w.files))
	for i, parts := range w.files {
		paths[i] = filepath.Join(append([]string{root}, parts...)...)
	}

	logger.Debug("walk complete", "root", root, "files", len(paths))
	return paths, nil
}

func newWalker(root string, opts Options) *walker {
	w := &walker{
		root:  root,
		opts:  opts,
		exts:  make(map[string]struct{}, len(opts.ExcludeExts)),
		prune: make(map[string]struct{}, len(opts.Prune)),
	}
	for _, ext := range opts.ExcludeExts {
		if ext == "" {
			continue
		}
		w.exts[normalizeExt(ext)] = struct{}{}
	}
	for _, p := range opts.Prune {
		if p == "" {
			continue
		}
		w.prune[resolve(p)] = struct{}{}
	}
	return w
}

// visit is the fastwalk callback.
func (w *walker) visit(path string, d fs.DirEntry, err error) error {
	if err != nil {
		return err
	}

	if filepath.Clean(path) == w.root {
		return nil
	}

	name := d.Name()
	if d.IsDir() {
		if w.opts.IgnoreDotFiles && strings.HasPrefix(name, ".") {
			return fastwalk.SkipDir
		}
		if w.consumePrune(path) {
			logger.Debug("pruned directory", "path", path)
			return fastwalk.SkipDir
		}
		return nil
	}

	if !d.Type().IsRegular() {
		return nil
	}
	if w.opts.IgnoreDotFiles && strings.HasPrefix(name, ".") {
		return nil
	}
	if ext := filepath.Ext(name); ext != "" {
		if _, excluded := w.exts[normalizeExt(ext)]; excluded {
			return nil
		}
	}

	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.files = append(w.files, strings.Split(rel, string(os.PathSeparator)))
	w.mu.Unlock()
	return nil
}

// consumePrune reports whether path matches a prune entry, removing the
// entry so that it cannot match again.
func (w *walker) consumePrune(path string) bool {
	key := resolve(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.prune[key]; !ok {
		return false
	}
	delete(w.prune, key)
	return true
}

// resolve returns the cleaned absolute form of p, or the cleaned p when it
// cannot be made absolute.
func resolve(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}

// preorderLess orders relative paths (split into components) so that at
// the first differing component a file sorts before a directory and names
// otherwise sort lexically.
func preorderLess(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] == b[i] {
			continue
		}
		aFile := i == len(a)-1
		bFile := i == len(b)-1
		if aFile != bFile {
			return aFile
		}
		return a[i] < b[i]
	}
	return len(a) < len(b)
}
