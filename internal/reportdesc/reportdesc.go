// Package reportdesc loads report descriptions and request parameters from
// JSON or YAML documents.
package reportdesc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Stdin is the path that selects standard input.
const Stdin = "-"

var ErrNotObject = errors.New("document must be a JSON or YAML object")

// Document is a decoded description, ready to be sent as request params.
type Document struct {
	Source string
	Value  map[string]any
}

// Name is a short label for logs and output.
func (d Document) Name() string {
	if d.Source == Stdin {
		return "stdin"
	}
	return filepath.Base(d.Source)
}

// Load reads path (or stdin when path is "-"). Files ending in .json are
// decoded as JSON, .yaml/.yml as YAML; anything else is sniffed.
func Load(path string, stdin io.Reader) (Document, error) {
	path = strings.TrimSpace(path)
	var (
		data []byte
		err  error
	)
	if path == Stdin {
		if stdin == nil {
			stdin = os.Stdin
		}
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	value, err := Decode(data, formatFor(path, data))
	if err != nil {
		return Document{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return Document{Source: path, Value: value}, nil
}

// LoadAll loads every path in order, stopping at the first failure.
func LoadAll(paths []string, stdin io.Reader) ([]Document, error) {
	docs := make([]Document, 0, len(paths))
	stdinUsed := false
	for _, path := range paths {
		if strings.TrimSpace(path) == Stdin {
			if stdinUsed {
				return nil, errors.New("stdin may only be given once")
			}
			stdinUsed = true
		}
		doc, err := Load(path, stdin)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

func formatFor(path string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return FormatJSON
	}
	return FormatYAML
}

// Decode parses data as a single object. JSON numbers are kept as
// json.Number.
func Decode(data []byte, format Format) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("document is empty")
	}
	var value any
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		if dec.More() {
			return nil, errors.New("unexpected data after JSON document")
		}
	default:
		var root yaml.Node
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, err
		}
		decoded, err := yamlValue(&root)
		if err != nil {
			return nil, err
		}
		value = decoded
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return obj, nil
}

// yamlValue converts a YAML node tree into JSON-encodable values. Mapping
// keys and timestamps keep their source text so descriptions reach the API
// as written.
func yamlValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return yamlValue(n.Content[0])
	case yaml.AliasNode:
		return yamlValue(n.Alias)
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := yamlValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, item := n.Content[i], n.Content[i+1]
			if key.ShortTag() == "!!merge" {
				if err := mergeYAML(out, item); err != nil {
					return nil, err
				}
				continue
			}
			v, err := yamlValue(item)
			if err != nil {
				return nil, err
			}
			out[key.Value] = v
		}
		return out, nil
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!null":
			return nil, nil
		case "!!str", "!!timestamp":
			return n.Value, nil
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node", n.Line)
	}
}

// mergeYAML applies a "<<" merge; keys already present win.
func mergeYAML(dst map[string]any, src *yaml.Node) error {
	if src.Kind == yaml.AliasNode {
		src = src.Alias
	}
	sources := []*yaml.Node{src}
	if src.Kind == yaml.SequenceNode {
		sources = src.Content
	}
	for _, source := range sources {
		v, err := yamlValue(source)
		if err != nil {
			return err
		}
		fields, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("line %d: merge value must be a mapping", source.Line)
		}
		for key, item := range fields {
			if _, exists := dst[key]; !exists {
				dst[key] = item
			}
		}
	}
	return nil
}
