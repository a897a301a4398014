package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   slog.Level
		wantOK bool
	}{
		{"DEBUG", slog.LevelDebug, true},
		{"debug", slog.LevelDebug, true},
		{" warn ", slog.LevelWarn, true},
		{"WARNING", slog.LevelWarn, true},
		{"ERROR", slog.LevelError, true},
		{"", slog.LevelInfo, true},
		{"verbose", slog.LevelInfo, false},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := ParseLevel(tc.in)
			if got != tc.want || ok != tc.wantOK {
				t.Errorf("ParseLevel(%q): got (%v, %v), want (%v, %v)", tc.in, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestFromValues(t *testing.T) {
	cfg := FromValues("debug", "true")
	if cfg.Level != slog.LevelDebug || !cfg.JSON {
		t.Errorf("FromValues: got %+v", cfg)
	}

	cfg = FromValues("", "nope")
	if cfg.Level != slog.LevelInfo || cfg.JSON {
		t.Errorf("FromValues defaults: got %+v", cfg)
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, JSON: true, Output: &buf})

	logger.Debug("hidden")
	logger.With("component", "gmail_reader").Info("poll complete", "transactions", 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshaling log line: %v", err)
	}
	if entry["msg"] != "poll complete" || entry["component"] != "gmail_reader" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if entry["transactions"] != float64(2) {
		t.Errorf("transactions: got %v", entry["transactions"])
	}
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Level: slog.LevelDebug, Output: &buf}).Debug("skipping message", "reason", "no pattern")

	if !strings.Contains(buf.String(), `msg="skipping message" reason="no pattern"`) {
		t.Errorf("unexpected text output: %q", buf.String())
	}
}
