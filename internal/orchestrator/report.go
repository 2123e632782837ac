package orchestrator

import (
	"time"

	"github.com/pablasso/ingot/internal/checklist"
	"github.com/pablasso/ingot/internal/git"
	"github.com/pablasso/ingot/internal/planner"
)

// Cause says why a task ended FAILED.
type Cause string

const (
	CauseRetriesExhausted Cause = "exhausted retries"
	CauseExecutionError   Cause = "execution error"
	// CauseNotRun is a task that was already FAILED when the run started
	// and was not reset.
	CauseNotRun Cause = "not run"
)

// Failure is one failed task.
type Failure struct {
	Task     checklist.Task
	Lane     string
	Cause    Cause
	Err      error
	Attempts int
}

// Report is the outcome of a run.
type Report struct {
	RunID string
	Plan  *planner.ExecutionPlan

	// Done counts tasks completed by this run.
	Done int
	// Failed counts tasks that ended FAILED, including ones not re-run.
	Failed int
	// Skipped counts pending tasks never dispatched (halt, abort, fail-fast).
	Skipped int
	// AlreadyDone counts tasks that were DONE before the run.
	AlreadyDone int
	// Reset lists lines moved from FAILED back to PENDING at run start.
	Reset []int

	Failures []Failure

	Halted   bool
	HaltedBy *checklist.Task
	Aborted  bool
	FailFast bool

	Duration time.Duration
	Changes  git.ChangeSummary
}

// Success reports whether every task is DONE and the run was not cut short.
func (r *Report) Success() bool {
	return !r.Halted && !r.Aborted && r.Failed == 0 && r.Skipped == 0
}
