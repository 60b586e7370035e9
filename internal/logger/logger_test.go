package logger

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
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"Error":   slog.LevelError,
		"":        slog.LevelWarn,
		"verbose": slog.LevelWarn,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewJSON(t *testing.T) {
	t.Setenv("PINGTEST_LOG_LEVEL", "debug")
	t.Setenv("PINGTEST_LOG_FORMAT", "json")

	var buf bytes.Buffer
	New(&buf).Debug("probing", "target", "127.0.0.1:9999")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "probing" || rec["target"] != "127.0.0.1:9999" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestNewDefaultSuppressesInfo(t *testing.T) {
	t.Setenv("PINGTEST_LOG_LEVEL", "")
	t.Setenv("PINGTEST_LOG_FORMAT", "")

	var buf bytes.Buffer
	l := New(&buf)
	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("unexpected output %q", out)
	}
}
