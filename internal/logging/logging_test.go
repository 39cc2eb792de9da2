package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		if got := parseLevel(in).Level(); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: "warn", Format: "json"}, &buf)

	logger.Info("dropped")
	logger.Warn("kept", "engine", "akhenakh-sgp4")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["msg"] != "kept" || entry["engine"] != "akhenakh-sgp4" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(Config{Format: "logfmt"}, &buf).Info("hello", "n", 3)

	out := buf.String()
	if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "n=3") {
		t.Errorf("text output = %q", out)
	}
}
