package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RotationConfig configures log file rotation. Each invocation is short, so
// the file is rotated when it is opened rather than while writing.
type RotationConfig struct {
	// MaxSize is the size in bytes above which the log is rotated on open.
	// Zero uses the default of 10MB; negative disables rotation.
	MaxSize int64

	// MaxBackups is the number of rotated files to keep. Zero keeps all.
	MaxBackups int
}

// DefaultRotationConfig returns sensible defaults for rotation.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSize:    10 * 1024 * 1024, // 10MB
		MaxBackups: 5,
	}
}

// openLogFile opens path for appending, first rotating it if it has grown
// past cfg.MaxSize.
func openLogFile(path string, cfg RotationConfig) (*os.File, error) {
	if cfg.MaxSize == 0 {
		cfg.MaxSize = DefaultRotationConfig().MaxSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	if info, err := os.Stat(path); err == nil && cfg.MaxSize > 0 && info.Size() > cfg.MaxSize {
		if err := rotate(path, time.Now()); err != nil {
			return nil, err
		}
		cleanup(path, cfg.MaxBackups)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

// rotatedName returns the backup name of path at now,
// e.g. catalogue.20240301-120000.log.
func rotatedName(path string, now time.Time) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s.%s%s", base, now.Format("20060102-150405"), ext)
}

func rotate(path string, now time.Time) error {
	if err := os.Rename(path, rotatedName(path, now)); err != nil {
		return fmt.Errorf("rotating log file: %w", err)
	}
	return nil
}

// cleanup removes the oldest rotated files beyond maxBackups.
func cleanup(path string, maxBackups int) {
	if maxBackups <= 0 {
		return
	}
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	prefix := strings.TrimSuffix(base, ext) + "."

	entries, err := os.ReadDir(dir)
	if err != nil {
		return // ignore cleanup errors
	}

	var rotated []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == base {
			continue
		}
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ext) {
			rotated = append(rotated, name)
		}
	}

	// Timestamped names sort oldest first.
	sort.Strings(rotated)
	for len(rotated) > maxBackups {
		_ = os.Remove(filepath.Join(dir, rotated[0]))
		rotated = rotated[1:]
	}
}
