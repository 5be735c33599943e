// Package types provides the shared vocabulary of the catalogue tool:
// error kinds, timestamp formatting and filesystem path checks used by
// every other package.
package types

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// TimestampLayout is the layout of every catalogue timestamp (YYYYMMDD-HHMMSS).
const TimestampLayout = "20060102-150405"

// TimestampLen is the length of a formatted timestamp.
const TimestampLen = len(TimestampLayout)

// NewTimestamp formats t as a catalogue timestamp in t's location.
func NewTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// CreateTimestamp returns the current local time as a catalogue timestamp.
func CreateTimestamp() string {
	return NewTimestamp(time.Now())
}

// ValidTimestamp reports whether s is a well-formed catalogue timestamp.
func ValidTimestamp(s string) bool {
	if len(s) != TimestampLen {
		return false
	}
	_, err := time.ParseInLocation(TimestampLayout, s, time.Local)
	return err == nil
}

// ParseTimestamp parses a catalogue timestamp in local time.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimestampLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrInvalidArgument, s)
	}
	return t, nil
}

// PathKind classifies a filesystem path.
type PathKind int

// Path kinds.
const (
	KindMissing PathKind = iota
	KindFile
	KindDir
	KindOther
)

// String returns the name of the kind.
func (k PathKind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindFile:
		return "file"
	case KindDir:
		return "directory"
	default:
		return "other"
	}
}

// Stat classifies path, following symlinks. A missing path is not an error.
func Stat(path string) (PathKind, error) {
	if path == "" {
		return KindMissing, fmt.Errorf("%w: empty path", ErrInvalidArgument)
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return KindMissing, nil
	}
	if err != nil {
		return KindMissing, fmt.Errorf("stat %s: %w", path, err)
	}
	switch {
	case info.IsDir():
		return KindDir, nil
	case info.Mode().IsRegular():
		return KindFile, nil
	default:
		return KindOther, nil
	}
}

// CheckPathsExist returns an ErrPathNotFound PathError for the first path that
// does not exist. Empty entries are skipped.
func CheckPathsExist(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		kind, err := Stat(p)
		if err != nil {
			return err
		}
		if kind == KindMissing {
			return NewPathError("check", p, ErrPathNotFound)
		}
	}
	return nil
}

// FileDigest pairs a file path with the hex digest of its content.
type FileDigest struct {
	Path   string
	Digest string
}
