package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/catalogue/pkg/catalogue/types"
)

// ProjectPath returns the project file path inside dir.
func ProjectPath(dir string) string {
	return filepath.Join(dir, ProjectFileName)
}

// ReadProject reads the project file in dir. Keys set to null are omitted
// from the returned values. found is false when the file does not exist.
func ReadProject(dir string) (values map[string]string, found bool, err error) {
	path := ProjectPath(dir)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, false, nil
		}
		return nil, false, fmt.Errorf("read project config: %w", err)
	}
	values, err = ParseProject(data)
	if err != nil {
		return nil, true, types.NewPathError("read project config", path, err)
	}
	return values, true, nil
}

// ParseProject validates a project file: a single mapping whose keys belong
// to ProjectKeys and whose values are strings or null.
func ParseProject(data []byte) (map[string]string, error) {
	values := map[string]string{}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrFormatError, err)
	}
	if doc.Kind == 0 {
		return values, nil // empty file
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return values, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: line %d: expected a mapping", types.ErrFormatError, root.Line)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]
		if !slices.Contains(ProjectKeys, k.Value) {
			return nil, fmt.Errorf("%w: line %d: unknown key %q", types.ErrFormatError, k.Line, k.Value)
		}
		if _, dup := values[k.Value]; dup {
			return nil, fmt.Errorf("%w: line %d: duplicate key %q", types.ErrFormatError, k.Line, k.Value)
		}
		if v.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: line %d: %s must be a string", types.ErrFormatError, v.Line, k.Value)
		}
		switch v.Tag {
		case "!!null":
			continue
		case "!!str":
			values[k.Value] = v.Value
		default:
			return nil, fmt.Errorf("%w: line %d: %s must be a string, got %s",
				types.ErrFormatError, v.Line, k.Value, v.Tag)
		}
	}
	return values, nil
}

// EncodeProject renders values as a project file with every key of
// ProjectKeys in order. Missing keys are written as null.
func EncodeProject(values map[string]string) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range ProjectKeys {
		val := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
		if s, ok := values[k]; ok {
			val = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
		}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, val)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteProject writes the project file in dir and returns the values of the
// file it replaced. found reports whether such a file existed. An existing
// file that fails validation is replaced and reported with no values.
func WriteProject(dir string, values map[string]string) (previous map[string]string, found bool, err error) {
	for k := range values {
		if !slices.Contains(ProjectKeys, k) {
			return nil, false, fmt.Errorf("%w: unknown key %q", types.ErrInvalidArgument, k)
		}
	}

	previous, found, err = ReadProject(dir)
	if err != nil {
		if !found {
			return nil, false, err
		}
		previous = map[string]string{}
	}

	data, err := EncodeProject(values)
	if err != nil {
		return nil, found, err
	}
	if err := os.WriteFile(ProjectPath(dir), data, 0o644); err != nil {
		return nil, found, fmt.Errorf("write project config: %w", err)
	}
	return previous, found, nil
}
