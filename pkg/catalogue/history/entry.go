package history

import (
	"bytes"
	"encoding/gob"

	"github.com/jamesainslie/catalogue/pkg/catalogue/manifest"
)

// KeySeparator separates the results directory from the record id in keys.
const KeySeparator = '\x00'

// Entry summarises one permanent record.
type Entry struct {
	ID         string
	Engage     string
	Disengage  string
	InputPath  string
	InputHash  string
	CodePath   string
	CodeCommit string
	OutputPath string
	Outputs    int
	// RecordPath is the manifest file or CSV table holding the record.
	RecordPath string
}

// NewEntry summarises m stored at recordPath.
func NewEntry(m *manifest.Manifest, recordPath string) *Entry {
	return &Entry{
		ID:         m.RecordID(),
		Engage:     m.Timestamps.Engage,
		Disengage:  m.Timestamps.Disengage,
		InputPath:  m.InputPath,
		InputHash:  m.InputHash,
		CodePath:   m.CodePath,
		CodeCommit: m.CodeCommit,
		OutputPath: m.OutputPath,
		Outputs:    len(m.Outputs),
		RecordPath: recordPath,
	}
}

// Encode serializes the entry using gob.
func (e *Entry) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes an entry encoded by Encode.
func (e *Entry) Decode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(e)
}

// MakeKey creates the key of record id under a results directory.
// Format: <results>\x00<id>
func MakeKey(results, id string) []byte {
	return []byte(results + string(KeySeparator) + id)
}

// MakeKeyPrefix returns the prefix of all keys under a results directory.
func MakeKeyPrefix(results string) []byte {
	return []byte(results + string(KeySeparator))
}

// ParseKey splits a key into results directory and record id.
func ParseKey(key []byte) (results, id string) {
	idx := bytes.IndexByte(key, KeySeparator)
	if idx == -1 {
		return string(key), ""
	}
	return string(key[:idx]), string(key[idx+1:])
}
