package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jamesainslie/catalogue/pkg/catalogue/types"
)

// DefaultExt is the extension of permanent records.
const DefaultExt = "json"

// Store persists manifests as files in one directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore returns a Store rooted at dir. The directory is created on the
// first write.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: store directory cannot be empty", types.ErrInvalidArgument)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes m as <RecordID>.<ext> and returns the written path. An empty
// ext means DefaultExt.
func (s *Store) Save(m *Manifest, ext string) (string, error) {
	id := m.RecordID()
	if id == "" {
		return "", fmt.Errorf("%w: manifest has no timestamp", types.ErrInvalidArgument)
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = DefaultExt
	}
	return s.SaveAs(m, id+"."+ext)
}

// SaveAs writes m under name, choosing the encoding from its extension.
func (s *Store) SaveAs(m *Manifest, name string) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: record name %q", types.ErrInvalidArgument, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create store directory: %w", err)
	}
	path := filepath.Join(s.dir, name)
	if err := Write(path, m); err != nil {
		return "", err
	}
	logger.Debug("saved manifest", "path", path)
	return path, nil
}

// Write encodes m according to the extension of path and writes it
// atomically using a temp file and rename.
func Write(path string, m *Manifest) error {
	data, err := Encode(m, FormatForPath(path))
	if err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Load reads a manifest file, choosing the decoder from its extension.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.NewPathError("load", path, types.ErrFileNotFound)
		}
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	m, err := Decode(data, FormatForPath(path))
	if err != nil {
		return nil, types.NewPathError("load", path, err)
	}
	return m, nil
}

// Record is a permanent record found in a store.
type Record struct {
	Path     string
	Manifest *Manifest
}

// List returns the permanent records in the store, newest first. Files that
// are not named after a timestamp or cannot be decoded are skipped. If limit
// is 0 or negative, all records are returned.
func (s *Store) List(limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("failed to read store directory: %w", err)
	}

	records := []Record{}
	for _, e := range entries {
		if e.IsDir() || !isRecordName(e.Name()) {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		m, err := Load(path)
		if err != nil {
			logger.Debug("skipping unreadable record", "path", path, "error", err)
			continue
		}
		records = append(records, Record{Path: path, Manifest: m})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Manifest.RecordID() > records[j].Manifest.RecordID()
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Get returns the permanent record with the given id.
func (s *Store) Get(id string) (*Record, error) {
	if !types.ValidTimestamp(id) {
		return nil, fmt.Errorf("%w: record id %q", types.ErrInvalidArgument, id)
	}
	for _, ext := range []string{"json", "yaml", "yml"} {
		path := filepath.Join(s.dir, id+"."+ext)
		m, err := Load(path)
		if errors.Is(err, types.ErrFileNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &Record{Path: path, Manifest: m}, nil
	}
	return nil, types.NewPathError("get", filepath.Join(s.dir, id), types.ErrFileNotFound)
}

func isRecordName(name string) bool {
	ext := filepath.Ext(name)
	switch strings.ToLower(ext) {
	case ".json", ".yaml", ".yml":
	default:
		return false
	}
	return types.ValidTimestamp(strings.TrimSuffix(name, ext))
}
