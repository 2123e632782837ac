package checklist

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const progressLogFileName = "progress.log"

// Event type constants for progress logging.
const (
	EventRunStarted   = "run_started"
	EventRunCompleted = "run_completed"
	EventRunHalted    = "run_halted"
	EventRunAborted   = "run_aborted"
	EventTaskStarted  = "task_started"
	EventTaskRetry    = "task_retry"
	EventTaskDone     = "task_done"
	EventTaskFailed   = "task_failed"
	EventSummary      = "changeset_summary"
)

// ProgressEvent represents a single progress log entry.
type ProgressEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id,omitempty"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
}

// ProgressLogger appends progress events to a JSON Lines file. Lanes log
// concurrently, so appends are serialized.
type ProgressLogger struct {
	mu    sync.Mutex
	path  string
	runID string
}

// NewProgressLogger creates a progress logger in the given state directory.
func NewProgressLogger(stateDir, runID string) *ProgressLogger {
	return &ProgressLogger{
		path:  filepath.Join(stateDir, progressLogFileName),
		runID: runID,
	}
}

// Log appends a progress event to the log file. A nil logger discards.
func (p *ProgressLogger) Log(event string, data map[string]any) error {
	if p == nil {
		return nil
	}
	entry := ProgressEvent{
		Timestamp: time.Now(),
		RunID:     p.runID,
		Event:     event,
		Data:      data,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	jsonBytes = append(jsonBytes, '\n')

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(p.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(jsonBytes)
	return err
}

// RunStarted logs a run_started event.
func (p *ProgressLogger) RunStarted(checklistPath string, fundamental, lanes int) error {
	return p.Log(EventRunStarted, map[string]any{
		"checklist":   checklistPath,
		"fundamental": fundamental,
		"lanes":       lanes,
	})
}

// TaskStarted logs a task_started event.
func (p *ProgressLogger) TaskStarted(t Task, lane string) error {
	return p.Log(EventTaskStarted, map[string]any{
		"task_id": t.ID(),
		"name":    t.Name,
		"lane":    lane,
	})
}

// TaskRetry logs a rate-limited attempt that will be retried.
func (p *ProgressLogger) TaskRetry(t Task, attempt int, delay time.Duration, cause error) error {
	return p.Log(EventTaskRetry, map[string]any{
		"task_id":  t.ID(),
		"attempt":  attempt,
		"delay_ms": delay.Milliseconds(),
		"cause":    cause.Error(),
	})
}

// TaskDone logs a task_done event.
func (p *ProgressLogger) TaskDone(t Task, attempts int) error {
	return p.Log(EventTaskDone, map[string]any{
		"task_id":  t.ID(),
		"attempts": attempts,
	})
}

// TaskFailed logs a task_failed event.
func (p *ProgressLogger) TaskFailed(t Task, reason string, cause error) error {
	data := map[string]any{
		"task_id": t.ID(),
		"reason":  reason,
	}
	if cause != nil {
		data["cause"] = cause.Error()
	}
	return p.Log(EventTaskFailed, data)
}

// RunHalted logs that a fundamental task stopped the run.
func (p *ProgressLogger) RunHalted(t Task) error {
	return p.Log(EventRunHalted, map[string]any{
		"task_id": t.ID(),
		"name":    t.Name,
	})
}

// RunAborted logs an operator abort.
func (p *ProgressLogger) RunAborted() error {
	return p.Log(EventRunAborted, nil)
}

// RunCompleted logs a run_completed event with summary statistics.
func (p *ProgressLogger) RunCompleted(done, failed, skipped int, duration time.Duration) error {
	return p.Log(EventRunCompleted, map[string]any{
		"done":        done,
		"failed":      failed,
		"skipped":     skipped,
		"duration_ms": duration.Milliseconds(),
	})
}

// Summary logs the shape of the changeset summary.
func (p *ProgressLogger) Summary(files, lines int, truncated, toolError bool) error {
	return p.Log(EventSummary, map[string]any{
		"files_changed": files,
		"lines_changed": lines,
		"truncated":     truncated,
		"tool_error":    toolError,
	})
}
