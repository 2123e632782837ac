package orchestrator

import (
	"time"

	"github.com/pablasso/ingot/internal/checklist"
	"github.com/pablasso/ingot/internal/planner"
)

// FundamentalLane is the lane name reported for fundamental-phase tasks.
const FundamentalLane = "fundamental"

// Events receives callbacks during a run. Lanes call these concurrently, so
// implementations must be safe for concurrent use.
type Events interface {
	// OnRunStart is called once with the plan about to execute
	OnRunStart(plan *planner.ExecutionPlan)

	// OnTaskStart is called when a task moves to IN_PROGRESS
	OnTaskStart(lane string, task checklist.Task)

	// OnTaskRetry is called before each backoff wait; retry is zero-based
	OnTaskRetry(lane string, task checklist.Task, retry int, delay time.Duration, cause error)

	// OnTaskDone is called when a task reaches DONE
	OnTaskDone(lane string, task checklist.Task, attempts int)

	// OnTaskFailed is called when a task is recorded as failed
	OnTaskFailed(lane string, failure Failure)

	// OnSummarizing is called before the change summary is collected
	OnSummarizing()

	// OnRunComplete is called with the final report
	OnRunComplete(report *Report)
}

// NopEvents ignores every callback. Embed it to implement a subset.
type NopEvents struct{}

func (NopEvents) OnRunStart(*planner.ExecutionPlan)                             {}
func (NopEvents) OnTaskStart(string, checklist.Task)                            {}
func (NopEvents) OnTaskRetry(string, checklist.Task, int, time.Duration, error) {}
func (NopEvents) OnTaskDone(string, checklist.Task, int)                        {}
func (NopEvents) OnTaskFailed(string, Failure)                                  {}
func (NopEvents) OnSummarizing()                                                {}
func (NopEvents) OnRunComplete(*Report)                                         {}

// MultiEvents fans callbacks out to several listeners in order.
type MultiEvents []Events

func (m MultiEvents) OnRunStart(p *planner.ExecutionPlan) {
	for _, e := range m {
		e.OnRunStart(p)
	}
}

func (m MultiEvents) OnTaskStart(lane string, t checklist.Task) {
	for _, e := range m {
		e.OnTaskStart(lane, t)
	}
}

func (m MultiEvents) OnTaskRetry(lane string, t checklist.Task, retry int, delay time.Duration, cause error) {
	for _, e := range m {
		e.OnTaskRetry(lane, t, retry, delay, cause)
	}
}

func (m MultiEvents) OnTaskDone(lane string, t checklist.Task, attempts int) {
	for _, e := range m {
		e.OnTaskDone(lane, t, attempts)
	}
}

func (m MultiEvents) OnTaskFailed(lane string, f Failure) {
	for _, e := range m {
		e.OnTaskFailed(lane, f)
	}
}

func (m MultiEvents) OnSummarizing() {
	for _, e := range m {
		e.OnSummarizing()
	}
}

func (m MultiEvents) OnRunComplete(r *Report) {
	for _, e := range m {
		e.OnRunComplete(r)
	}
}
