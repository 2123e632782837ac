// Package tui is the interactive run monitor: a lanes panel with live agent
// output, driven by orchestrator events.
package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pablasso/ingot/internal/agent"
	"github.com/pablasso/ingot/internal/checklist"
	"github.com/pablasso/ingot/internal/orchestrator"
	"github.com/pablasso/ingot/internal/planner"
	"github.com/pablasso/ingot/internal/tui/msgs"
)

// Sender delivers messages to a running program. *tea.Program implements it.
type Sender interface {
	Send(msg tea.Msg)
}

// Events forwards orchestrator callbacks to a Bubble Tea program.
type Events struct {
	program Sender
}

// NewEvents creates an orchestrator.Events that sends messages to program.
func NewEvents(program Sender) *Events {
	return &Events{program: program}
}

func (e *Events) OnRunStart(plan *planner.ExecutionPlan) {
	e.program.Send(msgs.RunStartedMsg{Plan: plan})
}

func (e *Events) OnTaskStart(lane string, task checklist.Task) {
	e.program.Send(msgs.TaskStartedMsg{Lane: lane, Task: task})
}

func (e *Events) OnTaskRetry(lane string, task checklist.Task, retry int, delay time.Duration, cause error) {
	e.program.Send(msgs.TaskRetryMsg{Lane: lane, Task: task, Retry: retry, Delay: delay, Cause: cause})
}

func (e *Events) OnTaskDone(lane string, task checklist.Task, attempts int) {
	e.program.Send(msgs.TaskDoneMsg{Lane: lane, Task: task, Attempts: attempts})
}

func (e *Events) OnTaskFailed(lane string, f orchestrator.Failure) {
	e.program.Send(msgs.TaskFailedMsg{Lane: lane, Failure: f})
}

func (e *Events) OnSummarizing() {
	e.program.Send(msgs.SummarizingMsg{})
}

// OnRunComplete is a no-op; the final report arrives as RunDoneMsg once Run
// returns, together with any persistence error.
func (e *Events) OnRunComplete(*orchestrator.Report) {}

// OutputSink returns a callback for agent.OutputCapture.OnLine.
func (e *Events) OutputSink() func(agent.OutputLine) {
	return func(l agent.OutputLine) {
		e.program.Send(msgs.OutputLineMsg{Lane: l.Lane, Text: l.Text})
	}
}

var _ orchestrator.Events = (*Events)(nil)

// RunFunc executes the run and reports through events.
type RunFunc func(events orchestrator.Events) (*orchestrator.Report, error)

// Run starts the TUI and executes run in the background. The program stays
// open after the run finishes until the user quits. output may be nil.
func Run(title string, controls Controls, output *agent.OutputCapture, run RunFunc) (*orchestrator.Report, error) {
	p := tea.NewProgram(
		NewRunModel(title, controls),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	events := NewEvents(p)
	if output != nil {
		output.OnLine(events.OutputSink())
	}

	type result struct {
		report *orchestrator.Report
		err    error
	}
	finished := make(chan result, 1)
	go func() {
		report, err := run(events)
		finished <- result{report: report, err: err}
		p.Send(msgs.RunDoneMsg{Report: report, Err: err})
	}()

	if _, err := p.Run(); err != nil {
		// The UI is gone; abort the run and wait for it so state is persisted.
		if controls.Cancel != nil {
			controls.Cancel()
		}
		<-finished
		return nil, fmt.Errorf("TUI error: %w", err)
	}

	res := <-finished
	return res.report, res.err
}
