// Package logging provides component loggers for the catalogue tool.
// Every invocation appends to a single log file; console output on stderr
// is opt-in.
//
// Basic usage:
//
//	if err := logging.Init(logging.Config{Level: "info"}); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	logger := logging.Get("hasher")
//	logger.Info("hashed input", "path", "/data", "files", 12)
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Level represents a logging level.
type Level int

// Log levels from least to most severe.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) toCharmLevel() log.Level {
	switch l {
	case LevelDebug:
		return log.DebugLevel
	case LevelInfo:
		return log.InfoLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ErrInvalidLevel is returned when an invalid log level string is provided.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel parses a string into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
	}
}

// Config configures the logging system.
type Config struct {
	// Level is the default log level (debug, info, warn, error).
	Level string

	// Path is the log file path. Empty uses DefaultLogPath().
	Path string

	// Components maps component names to their log levels.
	Components map[string]string

	// Rotation configures log file rotation.
	Rotation RotationConfig

	// ConsoleLevel enables stderr output at the given level.
	// Empty disables console output.
	ConsoleLevel string
}

// Logger is a component logger. It resolves its output at call time, so
// package-level loggers obtained before Init write to the configured sinks.
type Logger struct {
	component string
	fields    []interface{}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(LevelDebug, msg, args...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(LevelWarn, msg, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(LevelError, msg, args...)
}

// With returns a new logger with additional key/value context.
func (l *Logger) With(args ...interface{}) *Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(args))
	fields = append(fields, l.fields...)
	fields = append(fields, args...)
	return &Logger{component: l.component, fields: fields}
}

func (l *Logger) log(level Level, msg string, args ...interface{}) {
	s := globalState.sinkFor(l.component)
	if len(l.fields) > 0 {
		args = append(append([]interface{}{}, l.fields...), args...)
	}
	write(s.file, level, msg, args...)
	if s.console != nil {
		write(s.console, level, msg, args...)
	}
}

func write(logger *log.Logger, level Level, msg string, args ...interface{}) {
	switch level {
	case LevelDebug:
		logger.Debug(msg, args...)
	case LevelInfo:
		logger.Info(msg, args...)
	case LevelWarn:
		logger.Warn(msg, args...)
	case LevelError:
		logger.Error(msg, args...)
	}
}

// sink holds the charmbracelet loggers backing one component.
type sink struct {
	file    *log.Logger
	console *log.Logger
}

// state holds the global logging state.
type state struct {
	mu          sync.RWMutex
	initialized bool
	out         io.WriteCloser
	level       Level
	components  map[string]Level

	consoleEnabled bool
	consoleLevel   Level
	consoleOut     io.Writer

	sinks map[string]*sink
}

var globalState = &state{
	components: make(map[string]Level),
	sinks:      make(map[string]*sink),
	consoleOut: os.Stderr,
}

// sinkFor returns the sink for component, creating it on first use.
func (s *state) sinkFor(component string) *sink {
	s.mu.RLock()
	if sk, ok := s.sinks[component]; ok {
		s.mu.RUnlock()
		return sk
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if sk, ok := s.sinks[component]; ok {
		return sk
	}
	sk := s.newSink(component)
	s.sinks[component] = sk
	return sk
}

// newSink builds the sink for component. Must be called with s.mu held.
func (s *state) newSink(component string) *sink {
	level := s.level
	if compLevel, ok := s.components[component]; ok {
		level = compLevel
	}

	if !s.initialized {
		return &sink{file: log.NewWithOptions(io.Discard, log.Options{
			Level:  level.toCharmLevel(),
			Prefix: component,
		})}
	}

	sk := &sink{file: log.NewWithOptions(s.out, log.Options{
		Level:           level.toCharmLevel(),
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          component,
	})}

	if s.consoleEnabled {
		sk.console = log.NewWithOptions(s.consoleOut, log.Options{
			Level:           s.consoleLevel.toCharmLevel(),
			ReportTimestamp: true,
			TimeFormat:      "15:04:05",
			Prefix:          component,
		})
	}
	return sk
}

// Init initializes the logging system with the given configuration.
// Before Init is called, all loggers write to io.Discard.
func Init(cfg Config) error {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if globalState.initialized && globalState.out != nil {
		if err := globalState.out.Close(); err != nil {
			return fmt.Errorf("closing existing log file: %w", err)
		}
		globalState.out = nil
		globalState.initialized = false
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	components := make(map[string]Level, len(cfg.Components))
	for comp, lvl := range cfg.Components {
		parsed, err := ParseLevel(lvl)
		if err != nil {
			return fmt.Errorf("parsing level for component %s: %w", comp, err)
		}
		components[comp] = parsed
	}

	consoleEnabled := false
	var consoleLevel Level
	if cfg.ConsoleLevel != "" {
		consoleLevel, err = ParseLevel(cfg.ConsoleLevel)
		if err != nil {
			return fmt.Errorf("parsing console level: %w", err)
		}
		consoleEnabled = true
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}
	f, err := openLogFile(path, cfg.Rotation)
	if err != nil {
		return err
	}

	globalState.out = f
	globalState.level = level
	globalState.components = components
	globalState.consoleEnabled = consoleEnabled
	globalState.consoleLevel = consoleLevel
	globalState.initialized = true
	globalState.sinks = make(map[string]*sink)

	return nil
}

// Get returns a logger for the given component.
func Get(component string) *Logger {
	return &Logger{component: component}
}

// Close flushes and closes the log file. Loggers fall back to io.Discard.
func Close() error {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if !globalState.initialized {
		return nil
	}

	var err error
	if globalState.out != nil {
		if closeErr := globalState.out.Close(); closeErr != nil {
			err = fmt.Errorf("closing log file: %w", closeErr)
		}
		globalState.out = nil
	}

	globalState.initialized = false
	globalState.components = make(map[string]Level)
	globalState.sinks = make(map[string]*sink)
	return err
}

// DefaultLogPath returns $XDG_STATE_HOME/catalogue/catalogue.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "catalogue", "catalogue.log")
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Path:     DefaultLogPath(),
		Rotation: DefaultRotationConfig(),
	}
}
