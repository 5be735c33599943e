package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/catalogue/pkg/catalogue/types"
)

// Format is an on-disk encoding of a manifest.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the encoding from a file extension: .yaml and .yml are
// YAML, everything else (including the lock file) is JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Encode serializes m in the given format. Output files keep their order.
func Encode(m *Manifest, format Format) ([]byte, error) {
	doc := m.node()
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return buf.Bytes(), nil
	case FormatJSON, "":
		data, err := json.MarshalIndent(jsonNode{doc}, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("%w: unknown format %q", types.ErrInvalidArgument, format)
	}
}

// Decode parses a manifest. Absent keys and empty inner mappings decode to
// zero values; anything that is not the manifest shape is ErrDecodeError.
// JSON is a subset of YAML, so both formats decode through the same ordered
// node tree.
func Decode(data []byte, format Format) (*Manifest, error) {
	switch format {
	case FormatJSON, FormatYAML, "":
	default:
		return nil, fmt.Errorf("%w: unknown format %q", types.ErrInvalidArgument, format)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrDecodeError, err)
	}
	doc := &root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) == 1 {
		doc = doc.Content[0]
	}

	m := &Manifest{}
	if err := m.fromNode(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrDecodeError, err)
	}
	return m, nil
}

// MarshalJSON encodes the manifest in its persisted shape.
func (m Manifest) MarshalJSON() ([]byte, error) {
	return Encode(&m, FormatJSON)
}

// UnmarshalJSON decodes the persisted shape.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data, FormatJSON)
	if err != nil {
		return err
	}
	*m = *decoded
	return nil
}

// MarshalYAML encodes the manifest in its persisted shape.
func (m Manifest) MarshalYAML() (any, error) {
	return m.node(), nil
}

// UnmarshalYAML decodes the persisted shape.
func (m *Manifest) UnmarshalYAML(node *yaml.Node) error {
	decoded := Manifest{}
	if err := decoded.fromNode(node); err != nil {
		return fmt.Errorf("%w: %w", types.ErrDecodeError, err)
	}
	*m = decoded
	return nil
}

func str(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func mapping(pairs ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Content: pairs}
}

// node builds the ordered document:
// {timestamp: {mode: ts}, input_data: {path: hash}, code: {path: commit},
// output_data: {path: {file: hash, ...}}}.
func (m *Manifest) node() *yaml.Node {
	ts := mapping()
	if m.Timestamps.Disengage != "" {
		ts.Content = append(ts.Content, str(string(ModeDisengage)), str(m.Timestamps.Disengage))
	}
	if m.Timestamps.Engage != "" {
		ts.Content = append(ts.Content, str(string(ModeEngage)), str(m.Timestamps.Engage))
	}

	input := mapping()
	if m.InputPath != "" {
		input.Content = append(input.Content, str(m.InputPath), str(m.InputHash))
	}
	code := mapping()
	if m.CodePath != "" {
		code.Content = append(code.Content, str(m.CodePath), str(m.CodeCommit))
	}

	doc := mapping(
		str(KeyTimestamp), ts,
		str(KeyInput), input,
		str(KeyCode), code,
	)
	if m.HasOutput() {
		files := mapping()
		for _, o := range m.Outputs {
			files.Content = append(files.Content, str(o.Path), str(o.Digest))
		}
		doc.Content = append(doc.Content, str(KeyOutput), mapping(str(m.OutputPath), files))
	}
	return doc
}

func (m *Manifest) fromNode(doc *yaml.Node) error {
	if doc == nil || doc.Kind != yaml.MappingNode {
		return errors.New("manifest must be a mapping")
	}
	seen := map[string]bool{}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, value := doc.Content[i].Value, doc.Content[i+1]
		if seen[key] {
			return fmt.Errorf("duplicate key %q", key)
		}
		seen[key] = true
		if isNull(value) {
			continue
		}

		switch key {
		case KeyTimestamp:
			if err := m.decodeTimestamps(value); err != nil {
				return err
			}
		case KeyInput:
			path, hash, err := singleEntry(key, value)
			if err != nil {
				return err
			}
			m.InputPath, m.InputHash = path, hash
		case KeyCode:
			path, commit, err := singleEntry(key, value)
			if err != nil {
				return err
			}
			m.CodePath, m.CodeCommit = path, commit
		case KeyOutput:
			if err := m.decodeOutputs(value); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manifest) decodeTimestamps(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("%s must be a mapping", KeyTimestamp)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		mode := Mode(n.Content[i].Value)
		if !mode.Valid() {
			return fmt.Errorf("unknown %s label %q", KeyTimestamp, mode)
		}
		if !isString(n.Content[i+1]) {
			return fmt.Errorf("%s.%s must be a string", KeyTimestamp, mode)
		}
		m.Timestamps.Set(mode, n.Content[i+1].Value)
	}
	return nil
}

func (m *Manifest) decodeOutputs(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("%s must be a mapping", KeyOutput)
	}
	switch len(n.Content) {
	case 0:
		return nil
	case 2:
	default:
		return fmt.Errorf("%s must have exactly one entry", KeyOutput)
	}

	files := n.Content[1]
	if files.Kind != yaml.MappingNode {
		return fmt.Errorf("%s value must be a mapping of files to digests", KeyOutput)
	}
	m.OutputPath = n.Content[0].Value
	m.Outputs = make([]types.FileDigest, 0, len(files.Content)/2)
	for i := 0; i+1 < len(files.Content); i += 2 {
		if !isString(files.Content[i+1]) {
			return fmt.Errorf("%s digest of %q must be a string", KeyOutput, files.Content[i].Value)
		}
		m.Outputs = append(m.Outputs, types.FileDigest{
			Path:   files.Content[i].Value,
			Digest: files.Content[i+1].Value,
		})
	}
	return nil
}

// singleEntry reads a {path: value} mapping. An empty mapping yields zero values.
func singleEntry(key string, n *yaml.Node) (string, string, error) {
	if n.Kind != yaml.MappingNode {
		return "", "", fmt.Errorf("%s must be a mapping", key)
	}
	switch len(n.Content) {
	case 0:
		return "", "", nil
	case 2:
	default:
		return "", "", fmt.Errorf("%s must have exactly one entry", key)
	}
	if !isString(n.Content[1]) {
		return "", "", fmt.Errorf("%s value must be a string", key)
	}
	return n.Content[0].Value, n.Content[1].Value, nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}

func isString(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!str"
}

// jsonNode marshals a document of mappings and string scalars as a JSON
// object that keeps the node's key order.
type jsonNode struct {
	n *yaml.Node
}

func (j jsonNode) MarshalJSON() ([]byte, error) {
	if j.n.Kind != yaml.MappingNode {
		return json.Marshal(j.n.Value)
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i := 0; i+1 < len(j.n.Content); i += 2 {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(j.n.Content[i].Value)
		if err != nil {
			return nil, err
		}
		value, err := jsonNode{j.n.Content[i+1]}.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
