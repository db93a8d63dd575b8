package serverrun

import "testing"

func TestGetenvDefault(t *testing.T) {
	old := getenv
	defer func() { getenv = old }()

	getenv = func(key string) string {
		if key == "SET" {
			return "value"
		}
		return ""
	}
	if got := getenvDefault("SET", "fallback"); got != "value" {
		t.Fatalf("set var: %q", got)
	}
	if got := getenvDefault("UNSET", "fallback"); got != "fallback" {
		t.Fatalf("unset var: %q", got)
	}
}
