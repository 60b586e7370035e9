package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates a logger configured from the environment:
// - PINGTEST_LOG_LEVEL: DEBUG, INFO, WARN, ERROR (default: WARN)
// - PINGTEST_LOG_FORMAT: json or text (default: text)
//
// Logs go to w so stdout stays reserved for probe output.
func New(w io.Writer) *slog.Logger {
	level := parseLevel(os.Getenv("PINGTEST_LOG_LEVEL"))
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(os.Getenv("PINGTEST_LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
