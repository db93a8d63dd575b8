package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	AllowAutoCreateTubes bool         `json:"allowAutoCreateTubes" yaml:"allowAutoCreateTubes"`
	TubeNameRegex        string       `json:"tubeNameRegex" yaml:"tubeNameRegex"`
	MaxTubes             int          `json:"maxTubes" yaml:"maxTubes"`
	AllowedTubes         []string     `json:"allowedTubes" yaml:"allowedTubes"`
	TubeDefaults         TubeDefaults `json:"tubeDefaults" yaml:"tubeDefaults"`
}

// TubeDefaults captures per-tube baseline limits and sweep behavior.
type TubeDefaults struct {
	PayloadMaxBytes int `json:"payloadMaxBytes" yaml:"payloadMaxBytes"`
	SweepIntervalMs int `json:"sweepIntervalMs" yaml:"sweepIntervalMs"`
	SweepBatch      int `json:"sweepBatch" yaml:"sweepBatch"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		AllowAutoCreateTubes: true,
		TubeNameRegex:        "[a-z0-9-_]{1,64}",
		TubeDefaults: TubeDefaults{
			PayloadMaxBytes: 1 << 20,
			SweepIntervalMs: 100,
			SweepBatch:      1024,
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse yaml %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse json %s: %w", path, err)
		}
	}
	return cfg, nil
}
