// Package config provides configuration management for catalogue.
package config

// Default configuration values for catalogue.
const (
	// DefaultInputData is the input data path when none is configured.
	DefaultInputData = "data"

	// DefaultCode is the code path when none is configured.
	DefaultCode = "."

	// DefaultResults is the directory holding lock files and records.
	DefaultResults = "catalogue_results"

	// DefaultOutputData is the analysis output path when none is configured.
	DefaultOutputData = "results"

	// DefaultLogLevel is the file log level.
	DefaultLogLevel = "info"

	// DefaultLogMaxSize is the log size above which it is rotated.
	DefaultLogMaxSize = "10MB"

	// DefaultLogMaxBackups is the number of rotated logs kept.
	DefaultLogMaxBackups = 5
)

// ProjectFileName is the per-project configuration file, read from the
// working directory.
const ProjectFileName = "catalogue_config.yaml"

// Keys of the project configuration file.
const (
	KeyInputData  = "input_data"
	KeyCode       = "code"
	KeyResults    = "catalogue_results"
	KeyOutputData = "output_data"
	KeyCSV        = "csv"
)

// ProjectKeys is the fixed key set of the project file, in file order.
var ProjectKeys = []string{KeyInputData, KeyCode, KeyResults, KeyOutputData, KeyCSV}

// DefaultExcludeExts lists file extensions skipped when hashing.
var DefaultExcludeExts = []string{}
