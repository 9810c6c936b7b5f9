package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// ErrUnsupportedFormat is returned for audit config files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported audit config format")

// LoadAuditConfig reads an audit configuration file and returns it as JSON.
//
// The configuration is opaque to the runner; it is only normalised so it can
// be handed to a worker unchanged. JSON, YAML and TOML files are accepted.
func LoadAuditConfig(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audit config: %w", err)
	}
	return ParseAuditConfig(filepath.Ext(path), data)
}

// ParseAuditConfig converts raw config bytes of the given extension to JSON.
func ParseAuditConfig(ext string, data []byte) (json.RawMessage, error) {
	switch strings.ToLower(ext) {
	case ".json":
		if !json.Valid(data) {
			return nil, fmt.Errorf("audit config: invalid JSON")
		}
		return json.RawMessage(data), nil
	case ".yaml", ".yml":
		out, err := yaml.YAMLToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("audit config: %w", err)
		}
		return json.RawMessage(out), nil
	case ".toml":
		var doc map[string]interface{}
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("audit config: %w", err)
		}
		out, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("audit config: %w", err)
		}
		return json.RawMessage(out), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}
