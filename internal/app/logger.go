package app

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns a configured slog.Logger based on configuration. Logs go
// to stderr so the run summary on stdout stays clean.
func NewLogger(cfg *Config) *slog.Logger {
	format := ""
	if cfg != nil {
		format = cfg.LogFormat
	}
	return newLogger(os.Stderr, format, !cfg.IsProduction())
}

func newLogger(w io.Writer, format string, addSource bool) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: addSource}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)).With(slog.String("service", "lendsim"))
	}
	return slog.New(slog.NewTextHandler(w, opts)).With(slog.String("service", "lendsim"))
}
