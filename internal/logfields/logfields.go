package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyMode       = "mode"
	KeyTask       = "task"
	KeyStep       = "step"
	KeyBinding    = "binding"
	KeyPath       = "path"
	KeyFiles      = "files"
	KeyDurationMS = "duration_ms"
	KeyOutcome    = "outcome"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Mode(m string) slog.Attr         { return slog.String(KeyMode, m) }
func Task(name string) slog.Attr      { return slog.String(KeyTask, name) }
func Step(name string) slog.Attr      { return slog.String(KeyStep, name) }
func Binding(name string) slog.Attr   { return slog.String(KeyBinding, name) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Files(n int) slog.Attr           { return slog.Int(KeyFiles, n) }
func Outcome(o string) slog.Attr      { return slog.String(KeyOutcome, o) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }

// Duration renders d as milliseconds under the canonical key.
func Duration(d time.Duration) slog.Attr {
	return DurationMS(float64(d.Microseconds()) / 1000)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
