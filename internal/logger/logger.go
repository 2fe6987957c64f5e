// Package logger holds the process-wide slog logger. Library packages take
// a *slog.Logger explicitly; this package only serves the command line and
// facade defaults.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// L is the global logger instance. It discards all output until Init.
var L = slog.New(slog.DiscardHandler)

// Options configures the logger initialization.
type Options struct {
	Enabled bool       // If false, all logging is discarded
	Level   slog.Level // Minimum log level
	Writer  io.Writer  // Destination. Default: os.Stderr
	JSON    bool       // JSON lines instead of logfmt-style text
}

// Init configures L. Call from main() before any log calls.
func Init(opts Options) *slog.Logger {
	L = New(opts)
	return L
}

// New builds a logger without touching L.
func New(opts Options) *slog.Logger {
	if !opts.Enabled {
		return slog.New(slog.DiscardHandler)
	}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	ho := &slog.HandlerOptions{Level: opts.Level}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(w, ho))
	}
	return slog.New(slog.NewTextHandler(w, ho))
}

// ParseLevel accepts debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("logger: unknown level %q", s)
	}
	return l, nil
}

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, args ...any) { L.Debug(msg, args...) }

// Info logs an info message with optional key-value pairs.
func Info(msg string, args ...any) { L.Info(msg, args...) }

// Warn logs a warning message with optional key-value pairs.
func Warn(msg string, args ...any) { L.Warn(msg, args...) }

// Error logs an error message with optional key-value pairs.
func Error(msg string, args ...any) { L.Error(msg, args...) }
