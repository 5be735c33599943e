// Package manifest defines the provenance record of an analysis run, its
// on-disk encodings, and how it is built and stored.
package manifest

import (
	"fmt"

	"github.com/jamesainslie/catalogue/pkg/catalogue/types"
)

// Mode labels the protocol step a manifest was built for.
type Mode string

const (
	// ModeEngage labels a manifest built before an analysis runs.
	ModeEngage Mode = "engage"
	// ModeDisengage labels a manifest built after an analysis finishes.
	ModeDisengage Mode = "disengage"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeEngage || m == ModeDisengage
}

// Top-level keys of a serialized manifest. They double as comparison labels.
const (
	KeyTimestamp = "timestamp"
	KeyInput     = "input_data"
	KeyCode      = "code"
	KeyOutput    = "output_data"
)

// Timestamps holds the engage and disengage times of a record. Either may be
// empty.
type Timestamps struct {
	Engage    string
	Disengage string
}

// Set stores ts under mode.
func (t *Timestamps) Set(mode Mode, ts string) {
	switch mode {
	case ModeEngage:
		t.Engage = ts
	case ModeDisengage:
		t.Disengage = ts
	}
}

// Get returns the timestamp stored under mode.
func (t Timestamps) Get(mode Mode) string {
	switch mode {
	case ModeEngage:
		return t.Engage
	case ModeDisengage:
		return t.Disengage
	}
	return ""
}

// Manifest records the identity of input data, code and output data at one
// point in time.
type Manifest struct {
	Timestamps Timestamps

	// InputPath is the input data location; InputHash its combined digest
	// for a directory or its own digest for a file.
	InputPath string
	InputHash string

	// CodePath is the code location; CodeCommit the HEAD commit of the
	// repository containing it.
	CodePath   string
	CodeCommit string

	// OutputPath is set only after disengage. Outputs lists every output file
	// in walk order.
	OutputPath string
	Outputs    []types.FileDigest
}

// HasOutput reports whether the manifest carries output data.
func (m *Manifest) HasOutput() bool {
	return m.OutputPath != ""
}

// Output returns the digest recorded for an output file.
func (m *Manifest) Output(path string) (string, bool) {
	for _, o := range m.Outputs {
		if o.Path == path {
			return o.Digest, true
		}
	}
	return "", false
}

// RecordID names the record: the disengage timestamp when set, otherwise the
// engage timestamp.
func (m *Manifest) RecordID() string {
	if m.Timestamps.Disengage != "" {
		return m.Timestamps.Disengage
	}
	return m.Timestamps.Engage
}

// Validate checks the invariants of a freshly built or decoded record.
func (m *Manifest) Validate() error {
	if m.Timestamps.Engage == "" && m.Timestamps.Disengage == "" {
		return fmt.Errorf("%w: manifest has no timestamp", types.ErrInvalidArgument)
	}
	for _, ts := range []string{m.Timestamps.Engage, m.Timestamps.Disengage} {
		if ts != "" && !types.ValidTimestamp(ts) {
			return fmt.Errorf("%w: malformed timestamp %q", types.ErrInvalidArgument, ts)
		}
	}
	if m.InputPath == "" {
		return fmt.Errorf("%w: manifest has no input data", types.ErrInvalidArgument)
	}
	if m.CodePath == "" {
		return fmt.Errorf("%w: manifest has no code", types.ErrInvalidArgument)
	}
	if m.HasOutput() && len(m.Outputs) == 0 {
		return fmt.Errorf("%w: output data %s has no files", types.ErrInvalidArgument, m.OutputPath)
	}
	return nil
}
