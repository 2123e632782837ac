package tui

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/pablasso/ingot/internal/agent"
	"github.com/pablasso/ingot/internal/checklist"
	"github.com/pablasso/ingot/internal/git"
	"github.com/pablasso/ingot/internal/orchestrator"
	"github.com/pablasso/ingot/internal/planner"
	"github.com/pablasso/ingot/internal/tui/msgs"
)

func update(t *testing.T, m RunModel, msg tea.Msg) (RunModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	rm, ok := next.(RunModel)
	if !ok {
		t.Fatalf("Update returned %T, want RunModel", next)
	}
	return rm, cmd
}

func samplePlan() *planner.ExecutionPlan {
	return planner.Build([]checklist.Task{
		{Name: "Schema", LineNumber: 1, Category: checklist.CategoryFundamental, Status: checklist.StatusDone},
		{Name: "Endpoint", LineNumber: 2, Category: checklist.CategoryIndependent, GroupID: "api"},
		{Name: "Handler", LineNumber: 3, Category: checklist.CategoryIndependent, GroupID: "api"},
		{Name: "Form", LineNumber: 4, Category: checklist.CategoryIndependent, GroupID: "ui"},
	})
}

func startedModel(t *testing.T, controls Controls) RunModel {
	t.Helper()
	m := NewRunModel("tasks.md", controls)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	m, _ = update(t, m, msgs.RunStartedMsg{Plan: samplePlan()})
	return m
}

func TestNewRunModel(t *testing.T) {
	m := NewRunModel("tasks.md", Controls{})

	if m.state != stateRunning {
		t.Errorf("expected initial state to be stateRunning, got %d", m.state)
	}
	if m.Init() == nil {
		t.Error("expected Init() to return a command")
	}
	if m.View() != "" {
		t.Error("expected empty view before the first WindowSizeMsg")
	}
}

func TestRunModel_RunStarted(t *testing.T) {
	m := startedModel(t, Controls{})

	names := m.LaneNames()
	want := []string{orchestrator.FundamentalLane, "api", "ui"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("LaneNames() = %v, want %v", names, want)
	}
	if m.total != 4 || m.done != 1 {
		t.Errorf("total=%d done=%d, want 4/1", m.total, m.done)
	}
	if row := m.laneIndex["api"]; row.total != 2 || row.done != 0 {
		t.Errorf("api lane counts = %d/%d, want 0/2", row.done, row.total)
	}
}

func TestRunModel_TaskLifecycle(t *testing.T) {
	m := startedModel(t, Controls{})
	endpoint := checklist.Task{Name: "Endpoint", LineNumber: 2}
	form := checklist.Task{Name: "Form", LineNumber: 4}

	m, _ = update(t, m, msgs.TaskStartedMsg{Lane: "api", Task: endpoint})
	m, _ = update(t, m, msgs.TaskStartedMsg{Lane: "ui", Task: form})
	if got := strings.Join(m.ActiveLanes(), ","); got != "api,ui" {
		t.Errorf("ActiveLanes() = %q, want api,ui", got)
	}

	m, _ = update(t, m, msgs.TaskRetryMsg{Lane: "api", Task: endpoint, Retry: 0, Delay: 2 * time.Second, Cause: errors.New("429")})
	row := m.laneIndex["api"]
	if row.status != laneWaiting || row.attempt != 2 {
		t.Errorf("after retry: status=%d attempt=%d, want waiting/2", row.status, row.attempt)
	}

	m, _ = update(t, m, msgs.OutputLineMsg{Lane: "ui", Text: "writing component"})
	m, _ = update(t, m, msgs.TaskDoneMsg{Lane: "api", Task: endpoint, Attempts: 2})
	m, _ = update(t, m, msgs.TaskFailedMsg{Lane: "ui", Failure: orchestrator.Failure{
		Task: form, Lane: "ui", Cause: orchestrator.CauseExecutionError,
	}})

	if m.done != 2 || m.failed != 1 {
		t.Errorf("done=%d failed=%d, want 2/1", m.done, m.failed)
	}
	if len(m.ActiveLanes()) != 0 {
		t.Errorf("no lane should be active, got %v", m.ActiveLanes())
	}

	view := ansi.Strip(m.View())
	for _, want := range []string{"writing component", "✓ Endpoint", "✗ Form (execution error)", "rate limited, retrying in 2s"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestRunModel_RenderLanes(t *testing.T) {
	m := startedModel(t, Controls{})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m, _ = update(t, m, msgs.TaskStartedMsg{Lane: "api", Task: checklist.Task{Name: "Endpoint"}})
	m, _ = update(t, m, msgs.TaskRetryMsg{Lane: "api", Task: checklist.Task{Name: "Endpoint"}, Delay: 8 * time.Second})

	view := ansi.Strip(m.View())
	if !strings.Contains(view, "Endpoint (backoff 8s, attempt 2)") {
		t.Errorf("expected backoff countdown in view:\n%s", view)
	}
	if !strings.Contains(view, "queued") {
		t.Errorf("expected idle lane to show queued:\n%s", view)
	}
	if !strings.Contains(view, "1/4") {
		t.Errorf("expected overall progress 1/4:\n%s", view)
	}
}

func TestRunModel_CtrlCStopsThenCancels(t *testing.T) {
	var stops, cancels int
	m := startedModel(t, Controls{
		Stop:   func() { stops++ },
		Cancel: func() { cancels++ },
	})

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd != nil {
		t.Error("first ctrl+c should not quit")
	}
	if m.state != stateStopping || stops != 1 || cancels != 0 {
		t.Errorf("after first ctrl+c: state=%d stops=%d cancels=%d", m.state, stops, cancels)
	}
	if !strings.Contains(ansi.Strip(m.View()), "waiting for in-flight tasks") {
		t.Error("expected stopping notice in status bar")
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if m.state != stateCancelling || cancels != 1 {
		t.Errorf("after second ctrl+c: state=%d cancels=%d", m.state, cancels)
	}

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd != nil {
		t.Error("q should not quit before the run finishes")
	}
}

func TestRunModel_DoneShowsSummaryAndQuits(t *testing.T) {
	m := startedModel(t, Controls{})
	report := &orchestrator.Report{
		Done:    3,
		Changes: git.ChangeSummary{Text: "diff --git a/main.go b/main.go"},
	}

	m, _ = update(t, m, msgs.RunDoneMsg{Report: report})
	if got, err := m.Report(); got != report || err != nil {
		t.Errorf("Report() = %v, %v", got, err)
	}

	view := ansi.Strip(m.View())
	if !strings.Contains(view, "Run summary") || !strings.Contains(view, "diff --git a/main.go b/main.go") {
		t.Errorf("expected summary view:\n%s", view)
	}

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should quit after the run finishes")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}

	if _, cmd := update(t, m, spinner.TickMsg{}); cmd != nil {
		t.Error("spinner should stop after the run finishes")
	}
}

func TestRunModel_DoneWithError(t *testing.T) {
	m := startedModel(t, Controls{})
	m, _ = update(t, m, msgs.RunDoneMsg{Err: errors.New("a run is already in progress (PID 42)")})

	if !strings.Contains(ansi.Strip(m.View()), "a run is already in progress") {
		t.Error("expected error in done view")
	}
}

func TestRunModel_TabCyclesLaneFilter(t *testing.T) {
	m := startedModel(t, Controls{})
	tab := tea.KeyMsg{Type: tea.KeyTab}

	var seen []string
	for i := 0; i < 4; i++ {
		m, _ = update(t, m, tab)
		seen = append(seen, m.output.Filter())
	}
	want := []string{orchestrator.FundamentalLane, "api", "ui", ""}
	if strings.Join(seen, ",") != strings.Join(want, ",") {
		t.Errorf("filters = %q, want %q", seen, want)
	}
}

func TestRunModel_TerminalTooSmall(t *testing.T) {
	m := NewRunModel("tasks.md", Controls{})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 50, Height: 10})

	view := m.View()
	for _, want := range []string{"Terminal too small", "60x15", "50x10"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestRunModel_EventsBeforePlanCreateLanes(t *testing.T) {
	m := NewRunModel("tasks.md", Controls{})
	m, _ = update(t, m, msgs.TaskStartedMsg{Lane: "late", Task: checklist.Task{Name: "X"}})
	if got := m.LaneNames(); len(got) != 1 || got[0] != "late" {
		t.Errorf("LaneNames() = %v, want [late]", got)
	}
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (r *recordingSender) Send(msg tea.Msg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func TestEvents_ForwardsToProgram(t *testing.T) {
	sender := &recordingSender{}
	e := NewEvents(sender)
	task := checklist.Task{Name: "Endpoint"}

	e.OnRunStart(samplePlan())
	e.OnTaskStart("api", task)
	e.OnTaskRetry("api", task, 1, time.Second, errors.New("429"))
	e.OnTaskDone("api", task, 3)
	e.OnTaskFailed("ui", orchestrator.Failure{Task: task})
	e.OnSummarizing()
	e.OnRunComplete(&orchestrator.Report{})
	e.OutputSink()(agent.OutputLine{Lane: "api", Text: "hello"})

	if len(sender.msgs) != 7 {
		t.Fatalf("expected 7 messages, got %d: %#v", len(sender.msgs), sender.msgs)
	}
	if msg, ok := sender.msgs[2].(msgs.TaskRetryMsg); !ok || msg.Retry != 1 || msg.Delay != time.Second {
		t.Errorf("unexpected retry message %#v", sender.msgs[2])
	}
	if msg, ok := sender.msgs[3].(msgs.TaskDoneMsg); !ok || msg.Attempts != 3 {
		t.Errorf("unexpected done message %#v", sender.msgs[3])
	}
	if msg, ok := sender.msgs[6].(msgs.OutputLineMsg); !ok || msg.Lane != "api" || msg.Text != "hello" {
		t.Errorf("unexpected output message %#v", sender.msgs[6])
	}
}
