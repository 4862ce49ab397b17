package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tc := range tests {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestComponentJSON(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "debug", true)
	defer InitWriter(&bytes.Buffer{}, "info", false)

	Component("visca").Warn("send failed", "bytes", 9)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if rec["component"] != "visca" {
		t.Errorf("component = %v, want visca", rec["component"])
	}
	if rec["msg"] != "send failed" {
		t.Errorf("msg = %v", rec["msg"])
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "warn", false)
	defer InitWriter(&bytes.Buffer{}, "info", false)

	Info("hidden")
	Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn message missing")
	}
}
