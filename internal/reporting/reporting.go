// Package reporting defines the Reporter boundary (spec.md §6) and two
// minimal implementations used for self-testing: an ndjson progress
// stream and a plain tree-text renderer, both grounded on
// cmd/kilroy/main.go's hand-written fmt.Fprintf/encoding/json CLI output
// — no formatter library.
package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/juvistr/draftspec/internal/spectree"
)

// Summary is the final tally a run_completed event carries.
type Summary struct {
	Total    int           `json:"total"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Pending  int           `json:"pending"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration_ns"`
}

// Add folds one result's status into the summary.
func (s *Summary) Add(r spectree.SpecResult) {
	s.Total++
	switch r.Status {
	case spectree.StatusPassed:
		s.Passed++
	case spectree.StatusFailed:
		s.Failed++
	case spectree.StatusPending:
		s.Pending++
	case spectree.StatusSkipped:
		s.Skipped++
	}
	s.Duration += r.Duration
}

// Reporter is the boundary the scheduler streams results through.
type Reporter interface {
	RunStarting(totalSpecs int, startTime time.Time)
	SpecCompleted(result spectree.SpecResult)
	RunCompleted(summary Summary)
}

// NDJSONReporter emits one JSON object per line to W. The CLI points W at
// stdout, or at the DRAFTSPEC_JSON_OUTPUT_FILE path when that variable is
// set; the DRAFTSPEC_PROGRESS_STREAM events come from internal/draftlog.
type NDJSONReporter struct {
	W io.Writer
}

func (r *NDJSONReporter) write(event string, payload map[string]any) {
	payload["event"] = event
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintln(r.W, string(b))
}

func (r *NDJSONReporter) RunStarting(total int, start time.Time) {
	r.write("run_starting", map[string]any{"total_specs": total, "start_time": start.Format(time.RFC3339Nano)})
}

func (r *NDJSONReporter) SpecCompleted(res spectree.SpecResult) {
	payload := map[string]any{
		"name":        res.Spec.DisplayName(),
		"status":      string(res.Status),
		"duration_ms": res.Duration.Milliseconds(),
	}
	if res.SkipReason != "" {
		payload["skip_reason"] = string(res.SkipReason)
	}
	if res.Failure != nil {
		payload["failure"] = map[string]any{
			"category": string(res.Failure.Category),
			"message":  res.Failure.Message,
		}
	}
	if res.Retry != nil {
		payload["retry"] = map[string]any{"attempts": res.Retry.Attempts, "max_retries": res.Retry.MaxRetries}
	}
	r.write("spec_completed", payload)
}

func (r *NDJSONReporter) RunCompleted(summary Summary) {
	r.write("run_completed", map[string]any{
		"total": summary.Total, "passed": summary.Passed, "failed": summary.Failed,
		"pending": summary.Pending, "skipped": summary.Skipped,
		"duration_ms": time.Duration(summary.Duration).Milliseconds(),
	})
}

// TreeReporter renders a human-readable, indented pass/fail tree to W,
// the default CLI presentation.
type TreeReporter struct {
	W io.Writer
}

func (r *TreeReporter) RunStarting(total int, start time.Time) {
	fmt.Fprintf(r.W, "running %d specs\n", total)
}

func (r *TreeReporter) SpecCompleted(res spectree.SpecResult) {
	indent := strings.Repeat("  ", len(res.Spec.ContextPath()))
	symbol := statusSymbol(res.Status)
	fmt.Fprintf(r.W, "%s%s %s\n", indent, symbol, res.Spec.Description)
	if res.Failure != nil {
		fmt.Fprintf(r.W, "%s  %s: %s\n", indent, res.Failure.Category, res.Failure.Message)
	}
}

func (r *TreeReporter) RunCompleted(summary Summary) {
	fmt.Fprintf(r.W, "%d passed, %d failed, %d pending, %d skipped (%s)\n",
		summary.Passed, summary.Failed, summary.Pending, summary.Skipped, time.Duration(summary.Duration))
}

func statusSymbol(s spectree.Status) string {
	switch s {
	case spectree.StatusPassed:
		return "PASS"
	case spectree.StatusFailed:
		return "FAIL"
	case spectree.StatusPending:
		return "PEND"
	case spectree.StatusSkipped:
		return "SKIP"
	default:
		return "????"
	}
}
