package template

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Decode reads a template document in JSON or YAML. YAML documents are
// bridged through JSON so that element content decoding stays in one place.
func Decode(data []byte, format string) (*Template, error) {
	var tmpl Template
	switch strings.ToLower(format) {
	case "json":
		if err := json.Unmarshal(data, &tmpl); err != nil {
			return nil, fmt.Errorf("failed to parse template json: %w", err)
		}
	case "yaml", "yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse template yaml: %w", err)
		}
		bridged, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert template yaml: %w", err)
		}
		if err := json.Unmarshal(bridged, &tmpl); err != nil {
			return nil, fmt.Errorf("failed to parse template yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported template format %q", format)
	}
	return &tmpl, nil
}

// Encode writes a template document in JSON or YAML.
func Encode(tmpl *Template, format string) ([]byte, error) {
	data, err := json.MarshalIndent(tmpl, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template: %w", err)
	}
	switch strings.ToLower(format) {
	case "json":
		return append(data, '\n'), nil
	case "yaml", "yml":
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		return yaml.Marshal(doc)
	}
	return nil, fmt.Errorf("unsupported template format %q", format)
}

// FormatFromPath guesses the document format from a file extension.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	}
	return "json"
}
