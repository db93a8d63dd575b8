package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv overlays DEQUE_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("DEQUE_ALLOW_AUTO_CREATE_TUBES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AllowAutoCreateTubes = b
		}
	}
	if v := os.Getenv("DEQUE_TUBE_NAME_REGEX"); v != "" {
		cfg.TubeNameRegex = v
	}
	if v := os.Getenv("DEQUE_MAX_TUBES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxTubes = n
		}
	}
	if v := os.Getenv("DEQUE_ALLOWED_TUBES"); v != "" {
		parts := strings.Split(v, ",")
		cfg.AllowedTubes = nil
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cfg.AllowedTubes = append(cfg.AllowedTubes, p)
			}
		}
	}
	if v := os.Getenv("DEQUE_TUBE_DEFAULTS_PAYLOAD_MAX_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TubeDefaults.PayloadMaxBytes = n
		}
	}
	if v := os.Getenv("DEQUE_TUBE_DEFAULTS_SWEEP_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TubeDefaults.SweepIntervalMs = n
		}
	}
	if v := os.Getenv("DEQUE_TUBE_DEFAULTS_SWEEP_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TubeDefaults.SweepBatch = n
		}
	}
}
