// Package draftlog implements the ambient logging surface spec.md §6
// implies for the DRAFTSPEC_PROGRESS_STREAM environment variable (the
// DRAFTSPEC_JSON_OUTPUT_FILE stream is written by reporting.NDJSONReporter
// instead): a newline-delimited JSON progress-event stream
// plus plain CLI text helpers. Grounded on cmd/kilroy/main.go, which has
// no logging library dependency and instead writes fmt.Fprintln CLI
// messages alongside a hand-marshaled JSON progress-event-per-line stream
// (appendProgress); DraftSpec follows the same shape rather than reaching
// for zap/zerolog/logrus, none of which appear anywhere in the pack.
package draftlog

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Event is one line of the ndjson progress stream.
type Event struct {
	Kind      string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Logger appends Events to an underlying writer, one JSON object per
// line, serializing concurrent writers the way the teacher's
// appendProgress serializes concurrent engine goroutines.
type Logger struct {
	mu sync.Mutex
	w  io.Writer
}

// New wraps w. A nil w makes every method a no-op, so callers can pass a
// possibly-unset DRAFTSPEC_PROGRESS_STREAM destination unconditionally.
func New(w io.Writer) *Logger {
	return &Logger{w: w}
}

func (l *Logger) emit(kind string, fields map[string]any) {
	if l == nil || l.w == nil {
		return
	}
	ev := Event{Kind: kind, Timestamp: time.Now(), Fields: fields}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, string(b))
}

// RunStarting logs the start of a run: total candidate specs.
func (l *Logger) RunStarting(total int) {
	l.emit("run_starting", map[string]any{"total_specs": total})
}

// SpecCompleted logs one spec's terminal status and duration.
func (l *Logger) SpecCompleted(name, status string, durationMS int64) {
	l.emit("spec_completed", map[string]any{"name": name, "status": status, "duration_ms": durationMS})
}

// RunCompleted logs the final tally.
func (l *Logger) RunCompleted(total, passed, failed, pending, skipped int) {
	l.emit("run_completed", map[string]any{
		"total": total, "passed": passed, "failed": failed,
		"pending": pending, "skipped": skipped,
	})
}

// Warning logs a non-fatal discovery or declaration-phase warning
// (spec.md §4.C3's StaticParseWarning, §4.C4's unresolved #load edges).
func (l *Logger) Warning(file string, line int, reason string) {
	l.emit("warning", map[string]any{"file": file, "line": line, "reason": reason})
}

// Printf writes a plain CLI-facing line to w, matching the teacher's
// unadorned fmt.Fprintf CLI messages (no structured-logging library).
func Printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}

// PrintJSON writes v as indented JSON followed by a newline, the shape
// `list --format json` and similar machine-readable outputs use.
func PrintJSON(w io.Writer, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "null\n")
		return
	}
	fmt.Fprintln(w, string(b))
}
