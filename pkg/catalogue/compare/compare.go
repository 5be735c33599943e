// Package compare classifies the differences between two manifests.
package compare

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jamesainslie/catalogue/pkg/catalogue/manifest"
)

// Category is the outcome of comparing one label.
type Category string

const (
	Match   Category = "match"
	Differ  Category = "differ"
	Failure Category = "failure"
)

// Result lists the labels of each category. A label is a top-level manifest
// key or an output file path.
type Result struct {
	Matches  []string `json:"matches" yaml:"matches"`
	Differs  []string `json:"differs" yaml:"differs"`
	Failures []string `json:"failures" yaml:"failures"`
}

func (r *Result) add(c Category, label string) {
	switch c {
	case Match:
		r.Matches = append(r.Matches, label)
	case Differ:
		r.Differs = append(r.Differs, label)
	case Failure:
		r.Failures = append(r.Failures, label)
	}
}

// Category returns the category label was placed in.
func (r Result) Category(label string) (Category, bool) {
	switch {
	case slices.Contains(r.Matches, label):
		return Match, true
	case slices.Contains(r.Differs, label):
		return Differ, true
	case slices.Contains(r.Failures, label):
		return Failure, true
	}
	return "", false
}

// Matched reports whether every label is a match.
func (r Result) Matched(labels ...string) bool {
	for _, l := range labels {
		if !slices.Contains(r.Matches, l) {
			return false
		}
	}
	return true
}

// Clean reports whether everything except the timestamp matched. Records of
// different runs always differ in their timestamps.
func (r Result) Clean() bool {
	if len(r.Failures) > 0 {
		return false
	}
	for _, l := range r.Differs {
		if l != manifest.KeyTimestamp {
			return false
		}
	}
	return true
}

// lookup returns the single value stored under a scalar key. It fails when the
// key is absent or its mapping is empty.
func lookup(m *manifest.Manifest, key string) (string, bool) {
	switch key {
	case manifest.KeyTimestamp:
		ts := m.RecordID()
		return ts, ts != ""
	case manifest.KeyInput:
		return m.InputHash, m.InputPath != ""
	case manifest.KeyCode:
		return m.CodeCommit, m.CodePath != ""
	}
	return "", false
}

// Compare classifies timestamp, input_data, code and every output file of a
// and b. A key that cannot be looked up on either side is a failure and is
// not tested for equality.
func Compare(a, b *manifest.Manifest) Result {
	r := Result{Matches: []string{}, Differs: []string{}, Failures: []string{}}

	for _, key := range []string{manifest.KeyTimestamp, manifest.KeyInput, manifest.KeyCode} {
		va, okA := lookup(a, key)
		vb, okB := lookup(b, key)
		switch {
		case !okA || !okB:
			r.add(Failure, key)
		case va == vb:
			r.add(Match, key)
		default:
			r.add(Differ, key)
		}
	}

	switch {
	case !a.HasOutput() && !b.HasOutput():
		r.add(Failure, manifest.KeyOutput)
	case !a.HasOutput():
		for _, o := range b.Outputs {
			r.add(Failure, o.Path)
		}
	case !b.HasOutput():
		for _, o := range a.Outputs {
			r.add(Failure, o.Path)
		}
	default:
		for _, o := range a.Outputs {
			other, ok := b.Output(o.Path)
			switch {
			case !ok:
				r.add(Failure, o.Path)
			case other == o.Digest:
				r.add(Match, o.Path)
			default:
				r.add(Differ, o.Path)
			}
		}
		for _, o := range b.Outputs {
			if _, ok := a.Output(o.Path); !ok {
				r.add(Failure, o.Path)
			}
		}
	}
	return r
}

// CompareFiles loads two stored manifests and compares them.
func CompareFiles(pathA, pathB string) (Result, error) {
	a, err := manifest.Load(pathA)
	if err != nil {
		return Result{}, err
	}
	b, err := manifest.Load(pathB)
	if err != nil {
		return Result{}, err
	}
	return Compare(a, b), nil
}

// TimestampNote reminds the reader that records from different runs always
// differ in their timestamps.
const TimestampNote = "Note: the timestamp is expected to differ between records of different runs."

// Render formats r as three counted sections: differ, match and could not be
// compared.
func Render(r Result) string {
	var b strings.Builder
	section(&b, fmt.Sprintf("results differ in %d places:", len(r.Differs)), r.Differs)
	section(&b, fmt.Sprintf("results match in %d places:", len(r.Matches)), r.Matches)
	section(&b, fmt.Sprintf("results could not be compared in %d places:", len(r.Failures)), r.Failures)
	b.WriteString(TimestampNote)
	b.WriteByte('\n')
	return b.String()
}

func section(b *strings.Builder, title string, labels []string) {
	b.WriteString(title)
	b.WriteByte('\n')
	b.WriteString(strings.Repeat("=", len(title)))
	b.WriteByte('\n')
	for _, l := range labels {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
}
