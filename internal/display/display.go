// Package display renders run progress on a plain terminal: a single status
// line that is redrawn in place, plus messages printed above it.
package display

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pablasso/ingot/internal/checklist"
	"github.com/pablasso/ingot/internal/orchestrator"
	"github.com/pablasso/ingot/internal/planner"
)

// Status represents the current execution status.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusSummarizing
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusRunning:
		return "Running"
	case StatusSummarizing:
		return "Summarizing"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// LaneState is what a lane is doing right now.
type LaneState struct {
	Task    string
	Attempt int
	Waiting time.Duration
}

// State holds the current display state.
type State struct {
	TotalTasks int
	Done       int
	Failed     int
	Lanes      map[string]LaneState
	Status     Status
	StartTime  time.Time
}

// Display manages the terminal status line. It implements
// orchestrator.Events.
type Display struct {
	mu       sync.Mutex
	writer   io.Writer
	state    State
	ticker   *time.Ticker
	done     chan struct{}
	wg       sync.WaitGroup // Ensures goroutine exits before Stop() returns
	active   bool
	lastLine string
}

// New creates a new Display writing to the given writer.
func New(w io.Writer) *Display {
	return &Display{
		writer: w,
		done:   make(chan struct{}),
		state:  State{Lanes: make(map[string]LaneState)},
	}
}

// Start begins the display update loop.
func (d *Display) Start() {
	d.mu.Lock()
	if d.active {
		d.mu.Unlock()
		return
	}
	d.active = true
	d.state.StartTime = time.Now()
	d.ticker = time.NewTicker(time.Second)
	d.wg.Add(1)
	d.mu.Unlock()

	go d.updateLoop()
}

// Stop halts the display update loop and clears the status line.
// Blocks until the update goroutine has exited to prevent race conditions.
func (d *Display) Stop() {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return
	}
	d.active = false
	d.mu.Unlock()

	d.ticker.Stop()
	close(d.done)
	d.wg.Wait()
	d.clearLine()
}

// OnRunStart records how many tasks the plan holds.
func (d *Display) OnRunStart(plan *planner.ExecutionPlan) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.TotalTasks = plan.TaskCount()
	d.state.Done = plan.TaskCount() - plan.Pending()
	d.state.Status = StatusRunning
}

func (d *Display) OnTaskStart(lane string, task checklist.Task) {
	d.mu.Lock()
	d.state.Lanes[lane] = LaneState{Task: task.Name, Attempt: 1}
	d.mu.Unlock()
	d.render()
}

func (d *Display) OnTaskRetry(lane string, task checklist.Task, retry int, delay time.Duration, cause error) {
	d.mu.Lock()
	d.state.Lanes[lane] = LaneState{Task: task.Name, Attempt: retry + 2, Waiting: delay}
	d.mu.Unlock()
	d.PrintAbove("[%s] rate limited on %q, retrying in %s", lane, task.Name, delay.Round(time.Second))
}

func (d *Display) OnTaskDone(lane string, task checklist.Task, attempts int) {
	d.mu.Lock()
	d.state.Done++
	delete(d.state.Lanes, lane)
	d.mu.Unlock()
	d.PrintAbove("[%s] ✓ %s", lane, task.Name)
}

func (d *Display) OnTaskFailed(lane string, f orchestrator.Failure) {
	d.mu.Lock()
	d.state.Failed++
	delete(d.state.Lanes, lane)
	d.mu.Unlock()
	d.PrintAbove("[%s] ✗ %s (%s)", lane, f.Task.Name, f.Cause)
}

func (d *Display) OnSummarizing() {
	d.UpdateStatus(StatusSummarizing)
}

func (d *Display) OnRunComplete(r *orchestrator.Report) {
	switch {
	case r.Aborted:
		d.UpdateStatus(StatusCancelled)
	case r.Success():
		d.UpdateStatus(StatusCompleted)
	default:
		d.UpdateStatus(StatusFailed)
	}
}

// UpdateStatus updates the execution status.
func (d *Display) UpdateStatus(status Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.Status = status
}

// updateLoop periodically renders the status line.
func (d *Display) updateLoop() {
	defer d.wg.Done()
	d.render()
	for {
		select {
		case <-d.ticker.C:
			d.render()
		case <-d.done:
			return
		}
	}
}

// render draws the current status line.
func (d *Display) render() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return
	}

	line := formatLine(d.state, time.Since(d.state.StartTime))
	// Only update if changed (reduces flicker)
	if line == d.lastLine {
		return
	}
	d.lastLine = line
	fmt.Fprintf(d.writer, "\r\033[K%s", line)
}

// formatLine creates the status line string.
func formatLine(state State, elapsed time.Duration) string {
	if state.TotalTasks == 0 {
		return ""
	}

	parts := []string{fmt.Sprintf("Tasks %d/%d", state.Done, state.TotalTasks)}
	if state.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", state.Failed))
	}

	lanes := make([]string, 0, len(state.Lanes))
	for name := range state.Lanes {
		lanes = append(lanes, name)
	}
	sort.Strings(lanes)
	for _, name := range lanes {
		ls := state.Lanes[name]
		entry := fmt.Sprintf("%s: %s", name, truncate(ls.Task, 30))
		if ls.Attempt > 1 {
			entry += fmt.Sprintf(" (attempt %d)", ls.Attempt)
		}
		parts = append(parts, entry)
	}

	parts = append(parts, "⏱ "+formatDuration(elapsed), state.Status.String())
	return strings.Join(parts, " │ ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// clearLine clears the status line.
func (d *Display) clearLine() {
	fmt.Fprintf(d.writer, "\r\033[K")
}

// PrintAbove prints a message above the status line.
// Use this for important messages that shouldn't be overwritten.
func (d *Display) PrintAbove(format string, args ...interface{}) {
	d.mu.Lock()
	fmt.Fprintf(d.writer, "\r\033[K"+format+"\n", args...)
	d.lastLine = ""
	d.mu.Unlock()
	d.render()
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
