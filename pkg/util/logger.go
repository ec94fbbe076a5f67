package util

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger: readable text at debug level during
// development, JSON at info level everywhere else. Credential material must
// never be passed as a log attribute at any level.
func NewLogger(env string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	var handler slog.Handler
	if env == "development" || env == "test" {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
