package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/jamesainslie/catalogue/pkg/catalogue/engage"
	"github.com/jamesainslie/catalogue/pkg/catalogue/logging"
	"github.com/jamesainslie/catalogue/pkg/catalogue/tuner"
	"github.com/jamesainslie/catalogue/pkg/catalogue/walk"
)

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level" yaml:"level"`
	Path       string            `mapstructure:"path" yaml:"path"`
	Components map[string]string `mapstructure:"components" yaml:"components,omitempty"`
	Rotation   RotationConfig    `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size" yaml:"max_size"` // Human-readable, e.g. "10MB"; "0" disables
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// HistoryConfig configures the record index.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"` // Empty means $XDG_DATA_HOME/catalogue/history
}

// WalkConfig configures which files are hashed.
type WalkConfig struct {
	ExcludeExts     []string `mapstructure:"exclude_exts" yaml:"exclude_exts"`
	IncludeDotfiles bool     `mapstructure:"include_dotfiles" yaml:"include_dotfiles"`
}

// HashConfig configures the hashing worker pool.
type HashConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers"` // 0 means sized from CPU and RAM
}

// Config represents the application configuration.
type Config struct {
	InputData  string `mapstructure:"input_data" yaml:"input_data"`
	Code       string `mapstructure:"code" yaml:"code"`
	Results    string `mapstructure:"catalogue_results" yaml:"catalogue_results"`
	OutputData string `mapstructure:"output_data" yaml:"output_data"`
	CSV        string `mapstructure:"csv" yaml:"csv"`

	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`
	Walk    WalkConfig    `mapstructure:"walk" yaml:"walk"`
	Hash    HashConfig    `mapstructure:"hash" yaml:"hash"`
}

// New returns a viper instance with catalogue's defaults, environment
// binding and user config search path. Callers bind flags to it before Load.
//
// Environment variables are prefixed with CATALOGUE_ (e.g.,
// CATALOGUE_INPUT_DATA, CATALOGUE_HASH_WORKERS).
func New() *viper.Viper {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(ConfigDir())

	v.SetEnvPrefix("CATALOGUE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyInputData, DefaultInputData)
	v.SetDefault(KeyCode, DefaultCode)
	v.SetDefault(KeyResults, DefaultResults)
	v.SetDefault(KeyOutputData, DefaultOutputData)
	v.SetDefault(KeyCSV, "")

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.path", "") // Empty means use logging.DefaultLogPath
	v.SetDefault("logging.components", map[string]string{})
	v.SetDefault("logging.rotation.max_size", DefaultLogMaxSize)
	v.SetDefault("logging.rotation.max_backups", DefaultLogMaxBackups)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "")

	v.SetDefault("walk.exclude_exts", DefaultExcludeExts)
	v.SetDefault("walk.include_dotfiles", false)

	v.SetDefault("hash.workers", 0)

	return v
}

// Load reads the user config file, merges the project file found in
// projectDir over it, and unmarshals the result. Flags bound to v and
// CATALOGUE_* variables take precedence over both files.
func Load(v *viper.Viper, projectDir string) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is acceptable; we use defaults
	}

	values, _, err := ReadProject(projectDir)
	if err != nil {
		return nil, err
	}
	if len(values) > 0 {
		merged := make(map[string]any, len(values))
		for k, val := range values {
			merged[k] = val
		}
		if err := v.MergeConfigMap(merged); err != nil {
			return nil, fmt.Errorf("failed to merge project config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.History.Path, err = ExpandPath(cfg.History.Path); err != nil {
		return nil, err
	}
	if cfg.Logging.Path, err = ExpandPath(cfg.Logging.Path); err != nil {
		return nil, err
	}
	if _, err := cfg.Logging.Rotation.maxBytes(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Paths returns the engagement paths.
func (c *Config) Paths() engage.Paths {
	return engage.Paths{
		InputData:  c.InputData,
		Code:       c.Code,
		Results:    c.Results,
		OutputData: c.OutputData,
		CSV:        c.CSV,
	}
}

// WalkOptions returns the walker options for hashing. The results directory
// is pruned so lock files and records never feed back into a hash.
func (c *Config) WalkOptions() walk.Options {
	opts := walk.DefaultOptions()
	opts.IgnoreDotFiles = !c.Walk.IncludeDotfiles
	opts.ExcludeExts = append([]string(nil), c.Walk.ExcludeExts...)
	if c.Results != "" {
		opts.Prune = []string{c.Results}
	}
	return opts
}

// HashWorkers returns the configured worker count, or one sized from the
// detected CPU and RAM when unset.
func (c *Config) HashWorkers() int {
	return tuner.HashWorkers(c.Hash.Workers)
}

// HistoryPath returns the record index location.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(DataDir(), "history")
}

// LoggingConfig converts the logging section for logging.Init. A non-empty
// consoleLevel also logs to stderr.
func (c *Config) LoggingConfig(consoleLevel string) logging.Config {
	path := c.Logging.Path
	if path == "" {
		path = logging.DefaultLogPath()
	}
	return logging.Config{
		Level:        c.Logging.Level,
		Path:         path,
		Components:   c.Logging.Components,
		Rotation:     c.Logging.Rotation.toLogging(),
		ConsoleLevel: consoleLevel,
	}
}

// maxBytes parses MaxSize. Zero means rotation is disabled.
func (r RotationConfig) maxBytes() (int64, error) {
	if strings.TrimSpace(r.MaxSize) == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(r.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("invalid logging.rotation.max_size %q: %w", r.MaxSize, err)
	}
	return int64(n), nil
}

func (r RotationConfig) toLogging() logging.RotationConfig {
	size, err := r.maxBytes()
	if err != nil || size == 0 {
		size = -1
	}
	return logging.RotationConfig{MaxSize: size, MaxBackups: r.MaxBackups}
}

// ConfigDir returns $XDG_CONFIG_HOME/catalogue/.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, "catalogue")
}

// UserConfigPath returns the user config file path.
func UserConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DataDir returns $XDG_DATA_HOME/catalogue/ for the record index.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "catalogue")
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}

// WriteDefault writes a default user config file if none exists and returns
// its path. An existing file is left untouched.
func WriteDefault() (string, error) {
	configPath := UserConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	if err := os.MkdirAll(ConfigDir(), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# catalogue configuration
# Project settings in ./%s override the path defaults below.

input_data: %s
code: %s
catalogue_results: %s
output_data: %s
# Name of a CSV file in catalogue_results; empty writes one JSON file per record
csv: ""

logging:
  # Log level: debug, info, warn, error
  level: %s
  # Log file path (empty means use default: $XDG_STATE_HOME/catalogue/catalogue.log)
  path: ""
  components:
    hasher: info
    vcs: info
  rotation:
    # Rotate the log on startup once it exceeds this size; "0" disables
    max_size: %s
    # Rotated logs to keep; 0 keeps all
    max_backups: %d

history:
  # Index permanent records for 'catalogue history'
  enabled: true
  # Empty means use default: $XDG_DATA_HOME/catalogue/history
  path: ""

walk:
  # File extensions never hashed, e.g. [".tmp", ".swp"]
  exclude_exts: []
  include_dotfiles: false

hash:
  # Concurrent file hashes for output data; 0 sizes from CPU and RAM
  workers: 0
`, ProjectFileName, DefaultInputData, DefaultCode, DefaultResults, DefaultOutputData, DefaultLogLevel,
		DefaultLogMaxSize, DefaultLogMaxBackups)

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}
	return configPath, nil
}
