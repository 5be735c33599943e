package output

import (
	"bytes"
	"encoding/json"

	"github.com/jamesainslie/catalogue/pkg/catalogue/compare"
	"github.com/jamesainslie/catalogue/pkg/catalogue/manifest"
)

// document is the structure shared by the JSON and YAML formatters. The
// manifest keeps its persisted shape.
type document struct {
	Command    string             `json:"command" yaml:"command"`
	Outcome    string             `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Message    string             `json:"message,omitempty" yaml:"message,omitempty"`
	OK         bool               `json:"ok" yaml:"ok"`
	RecordPath string             `json:"record_path,omitempty" yaml:"record_path,omitempty"`
	Manifest   *manifest.Manifest `json:"manifest,omitempty" yaml:"manifest,omitempty"`
	Comparison *compare.Result    `json:"comparison,omitempty" yaml:"comparison,omitempty"`
	Records    []RecordInfo       `json:"records,omitempty" yaml:"records,omitempty"`
}

func newDocument(r *Report) document {
	return document{
		Command:    r.Command,
		Outcome:    r.Outcome,
		Message:    r.Message,
		OK:         r.OK,
		RecordPath: r.RecordPath,
		Manifest:   r.Manifest,
		Comparison: r.Comparison,
		Records:    r.Records,
	}
}

// JSONFormatter formats output as a single indented JSON object.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(newDocument(r))
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

// Ensure JSONFormatter implements Formatter.
var _ Formatter = (*JSONFormatter)(nil)
