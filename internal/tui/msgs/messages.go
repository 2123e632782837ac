// Package msgs defines the Bubble Tea messages a run sends to the TUI.
package msgs

import (
	"time"

	"github.com/pablasso/ingot/internal/checklist"
	"github.com/pablasso/ingot/internal/orchestrator"
	"github.com/pablasso/ingot/internal/planner"
)

// RunStartedMsg carries the plan about to execute.
type RunStartedMsg struct {
	Plan *planner.ExecutionPlan
}

// TaskStartedMsg is sent when a task moves to IN_PROGRESS.
type TaskStartedMsg struct {
	Lane string
	Task checklist.Task
}

// TaskRetryMsg is sent before a backoff wait. Retry is zero-based.
type TaskRetryMsg struct {
	Lane  string
	Task  checklist.Task
	Retry int
	Delay time.Duration
	Cause error
}

// TaskDoneMsg is sent when a task reaches DONE.
type TaskDoneMsg struct {
	Lane     string
	Task     checklist.Task
	Attempts int
}

// TaskFailedMsg is sent when a task is recorded as failed.
type TaskFailedMsg struct {
	Lane    string
	Failure orchestrator.Failure
}

// OutputLineMsg is one line of agent output.
type OutputLineMsg struct {
	Lane string
	Text string
}

// SummarizingMsg is sent before the change summary is collected.
type SummarizingMsg struct{}

// RunDoneMsg signals that the orchestrator returned.
type RunDoneMsg struct {
	Report *orchestrator.Report
	Err    error
}
