// Package logger builds the process-wide structured logger.
package logger

import (
	"log/slog"
	"os"
)

// New returns a JSON-emitting slog.Logger tagged with the component name.
// Output goes to stdout, where container log collectors expect it.
func New(component string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts)).With("service", component)
}
