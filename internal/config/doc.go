// Package config loads deque server configuration from a JSON or YAML
// file and overlays DEQUE_* environment variables on top.
package config
