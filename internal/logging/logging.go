// Package logging builds the structured logger shared by one run.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"
)

// DefaultLevel is used when no level is configured.
const DefaultLevel = "info"

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// NewRunID returns a sortable identifier for one run.
func NewRunID() string {
	return "run_" + strings.ToLower(ulid.Make().String())
}

// New returns a text logger writing to w at level, tagged with a fresh run id.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return NewWithRunID(w, level, NewRunID())
}

// NewWithRunID is New with a caller-chosen run id.
func NewWithRunID(w io.Writer, level slog.Level, runID string) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("run_id", runID)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
