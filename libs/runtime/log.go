package runtime

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

func NewLogger(service string) *slog.Logger {
	return NewLoggerTo(os.Stdout, service, os.Getenv("LOG_LEVEL"))
}

func NewLoggerTo(w io.Writer, service string, level string) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(h).With("service", service)
}

// ParseLevel maps debug|info|warn|error to a slog level; anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
