// Package log creates loggers.
package log

import (
	"io"
	"log/slog"
)

// New returns a text or JSON slog logger writing to w at level l.
func New(l slog.Level, w io.Writer, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
