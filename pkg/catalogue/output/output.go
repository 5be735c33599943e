// Package output renders the outcome of catalogue commands in various
// formats (pretty, plain, json, yaml).
//
// Formatters are looked up by name in a registry so the format can be chosen
// at runtime:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, report); err != nil {
//	    return err
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/jamesainslie/catalogue/pkg/catalogue/compare"
	"github.com/jamesainslie/catalogue/pkg/catalogue/manifest"
)

// RecordInfo summarises one permanent record for listings.
type RecordInfo struct {
	// ID is the disengage timestamp naming the record.
	ID         string `json:"id" yaml:"id"`
	Engage     string `json:"engage,omitempty" yaml:"engage,omitempty"`
	Disengage  string `json:"disengage,omitempty" yaml:"disengage,omitempty"`
	InputPath  string `json:"input_data" yaml:"input_data"`
	CodeCommit string `json:"code_commit" yaml:"code_commit"`
	Outputs    int    `json:"outputs" yaml:"outputs"`
	// Path is where the record is stored: a manifest file or a CSV table.
	Path string `json:"path" yaml:"path"`
}

// NewRecordInfo summarises m stored at path.
func NewRecordInfo(m *manifest.Manifest, path string) RecordInfo {
	return RecordInfo{
		ID:         m.RecordID(),
		Engage:     m.Timestamps.Engage,
		Disengage:  m.Timestamps.Disengage,
		InputPath:  m.InputPath,
		CodeCommit: m.CodeCommit,
		Outputs:    len(m.Outputs),
		Path:       path,
	}
}

// Report is everything a command has to show.
type Report struct {
	// Command is the command that produced the report (engage, disengage, ...).
	Command string

	// Outcome is a short machine-friendly state such as "engaged" or
	// "mismatch". Empty for commands without one.
	Outcome string

	// Message is the human-readable summary line.
	Message string

	// OK is false when the outcome needs the operator's attention.
	OK bool

	// Notice marks an outcome that is reported to the operator but is not a
	// failure, such as engaging while a lock already exists.
	Notice bool

	// Manifest is the manifest built, loaded or shown by the command.
	Manifest *manifest.Manifest

	// Comparison is set when two manifests were compared.
	Comparison *compare.Result

	// RecordPath is where a new permanent record was written.
	RecordPath string

	// Records lists stored records for history views.
	Records []RecordInfo
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted report to the buffer.
	Format(w *bytes.Buffer, r *Report) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry, replacing any existing
// formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}
