package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/visionflow/errors"
)

// Format is a graph document encoding
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the format from the file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", errors.WrapInvalid(
		fmt.Errorf("%w: unsupported extension for %s, want .yaml, .yml or .json", errors.ErrInvalidConfig, path),
		"Config", "FormatFromPath", "extension check")
}

// Load reads, validates and decodes a graph document from path
func Load(path string) (*Graph, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := safeReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "read file")
	}
	g, err := Parse(data, format)
	if err != nil {
		return nil, errors.Wrap(err, "Config", "Load", path)
	}
	return g, nil
}

// Parse decodes a graph document. The document is checked against the
// embedded JSON schema before it is decoded, then validated.
func Parse(data []byte, format Format) (*Graph, error) {
	doc, err := toJSON(data, format)
	if err != nil {
		return nil, err
	}
	if err := validateSchema(doc); err != nil {
		return nil, err
	}

	var g Graph
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&g); err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Parse", "decode graph")
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// toJSON converts a document to JSON so both formats share one schema and
// one decoder
func toJSON(data []byte, format Format) ([]byte, error) {
	if len(data) > maxConfigSize {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: document too large: %d bytes > %d", errors.ErrInvalidConfig, len(data), maxConfigSize),
			"Config", "Parse", "size check")
	}

	switch format {
	case FormatJSON:
		if err := validateJSONDepth(data); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Parse", "JSON structure")
		}
		if !json.Valid(data) {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: malformed JSON", errors.ErrInvalidConfig),
				"Config", "Parse", "JSON syntax")
		}
		return data, nil
	case FormatYAML:
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Parse", "YAML syntax")
		}
		out, err := json.Marshal(doc)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Parse", "YAML to JSON")
		}
		return out, nil
	}
	return nil, errors.WrapInvalid(fmt.Errorf("%w: format %q", errors.ErrInvalidConfig, format),
		"Config", "Parse", "format check")
}

// Marshal encodes a graph document
func Marshal(g *Graph, format Format) ([]byte, error) {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return nil, errors.WrapFatal(err, "Config", "Marshal", "encode JSON")
	}
	if format == FormatJSON {
		return append(data, '\n'), nil
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapFatal(err, "Config", "Marshal", "decode JSON")
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, errors.WrapFatal(err, "Config", "Marshal", "encode YAML")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.WrapFatal(err, "Config", "Marshal", "flush YAML")
	}
	return buf.Bytes(), nil
}

// Save writes a graph document, choosing the format from the extension
func Save(path string, g *Graph) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	data, err := Marshal(g, format)
	if err != nil {
		return err
	}
	if err := safeWriteFile(path, data); err != nil {
		return errors.WrapTransient(err, "Config", "Save", "write file")
	}
	return nil
}
