package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithLevel(WarnLevel), WithOutput(NewWriterOutput(&buf)))
	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("below-level entries should be filtered: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn entry missing: %q", out)
	}
}

func TestJSONFormatterFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithLevel(DebugLevel), WithOutput(NewWriterOutput(&buf)))
	logger = logger.With(Component("tubes"))
	logger.Info("task taken", F("tube", "jobs"), Uint64("id", 42))

	var obj map[string]any
	if err := json.Unmarshal(buf.Bytes(), &obj); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if obj["component"] != "tubes" {
		t.Fatalf("component field missing: %v", obj)
	}
	if obj["msg"] != "task taken" {
		t.Fatalf("msg mismatch: %v", obj)
	}
	if obj["id"] != float64(42) {
		t.Fatalf("id field mismatch: %v", obj)
	}
}

func TestTextFormatterStableOrder(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithLevel(DebugLevel), WithFormatter(&TextFormatter{}), WithOutput(NewWriterOutput(&buf)))
	logger.Info("hello", Str("b", "2"), Str("a", "1"))
	line := buf.String()
	if !strings.Contains(line, "a=1 b=2") {
		t.Fatalf("fields not sorted: %q", line)
	}
}

func TestParseLevel(t *testing.T) {
	if l, err := ParseLevel("debug"); err != nil || l != DebugLevel {
		t.Fatalf("debug: %v %v", l, err)
	}
	if l, err := ParseLevel(""); err != nil || l != InfoLevel {
		t.Fatalf("empty should default to info: %v %v", l, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestApplyConfig(t *testing.T) {
	logger, err := ApplyConfig(&Config{Level: "warn", Format: "json"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if logger.GetLevel() != WarnLevel {
		t.Fatalf("level: %v", logger.GetLevel())
	}
	if _, err := ApplyConfig(&Config{Level: "info", Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
