package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the JSON logger used by every binary. Records carry trace/span ids when
// emitted inside a span. An explicit level wins over the env default (debug in dev).
func NewLogger(env, level string) *slog.Logger {
	return newLogger(os.Stdout, env, level)
}

func newLogger(w io.Writer, env, level string) *slog.Logger {
	lvl := slog.LevelInfo

	if env == "dev" {
		lvl = slog.LevelDebug
	}

	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
	})

	return slog.New(NewTraceHandler(handler))
}
