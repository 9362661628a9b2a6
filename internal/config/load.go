// internal/config/load.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// Load reads a YAML (.yaml, .yml) or TOML (.toml) file and applies
// environment overrides. It does not validate.
func Load(path string) (*Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg, err := Parse(contents, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	NewEnvironment().OverrideFromEnvironment(cfg)
	return cfg, nil
}

// Parse decodes contents in the format given by ext.
func Parse(contents []byte, ext string) (*Config, error) {
	cfg := &Config{}

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(contents, cfg); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(contents, cfg); err != nil {
			return nil, fmt.Errorf("invalid TOML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}

	return cfg, nil
}
