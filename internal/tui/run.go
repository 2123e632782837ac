package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/pablasso/ingot/internal/checklist"
	"github.com/pablasso/ingot/internal/display"
	"github.com/pablasso/ingot/internal/orchestrator"
	"github.com/pablasso/ingot/internal/tui/components"
	"github.com/pablasso/ingot/internal/tui/msgs"
	"github.com/pablasso/ingot/internal/tui/styles"
)

const (
	MinTerminalWidth  = 60
	MinTerminalHeight = 15
)

// runState represents the current state of the run view.
type runState int

const (
	stateRunning runState = iota
	stateStopping
	stateCancelling
	stateDone
)

type laneStatus int

const (
	laneIdle laneStatus = iota
	laneRunning
	laneWaiting
	laneFinished
)

// laneRow is one line of the lanes panel.
type laneRow struct {
	name      string
	task      string
	attempt   int
	status    laneStatus
	waitUntil time.Time
	done      int
	failed    int
	total     int
}

// Controls lets the view act on the run. Stop stops dispatch; Cancel aborts
// in-flight agents.
type Controls struct {
	Stop   func()
	Cancel func()
}

// RunModel is the Bubble Tea model for a checklist run.
type RunModel struct {
	state    runState
	title    string
	controls Controls

	lanes     []*laneRow
	laneIndex map[string]*laneRow
	total     int
	done      int
	failed    int
	startTime time.Time
	now       func() time.Time

	spinner   spinner.Model
	output    components.OutputViewport
	statusBar components.StatusBar

	report *orchestrator.Report
	runErr error

	width  int
	height int
}

// tickMsg is used for elapsed time updates.
type tickMsg time.Time

// NewRunModel creates the run view.
func NewRunModel(title string, controls Controls) RunModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.SelectedStyle

	return RunModel{
		state:     stateRunning,
		title:     title,
		controls:  controls,
		laneIndex: make(map[string]*laneRow),
		startTime: time.Now(),
		now:       time.Now,
		spinner:   s,
		output:    components.NewOutputViewport(80, 20, 0),
		statusBar: components.NewStatusBar(),
	}
}

// Init implements tea.Model.
func (m RunModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m RunModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateOutputSize()
		return m, nil

	case spinner.TickMsg:
		if m.state == stateDone {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if m.state == stateDone {
			return m, nil
		}
		return m, tickCmd()

	case msgs.RunStartedMsg:
		m.lanes = nil
		m.laneIndex = make(map[string]*laneRow)
		m.total = msg.Plan.TaskCount()
		m.done = m.total - msg.Plan.Pending()
		if len(msg.Plan.Fundamental) > 0 {
			row := m.addLane(orchestrator.FundamentalLane)
			for _, t := range msg.Plan.Fundamental {
				row.count(t.Status == checklist.StatusDone)
			}
		}
		for _, lane := range msg.Plan.Lanes {
			row := m.addLane(lane.GroupID)
			for _, t := range lane.Tasks {
				row.count(t.Status == checklist.StatusDone)
			}
		}
		m.updateOutputSize()
		return m, nil

	case msgs.TaskStartedMsg:
		row := m.lane(msg.Lane)
		row.task = msg.Task.Name
		row.attempt = 1
		row.status = laneRunning
		return m, nil

	case msgs.TaskRetryMsg:
		row := m.lane(msg.Lane)
		row.attempt = msg.Retry + 2
		row.status = laneWaiting
		row.waitUntil = m.now().Add(msg.Delay)
		m.output.AddLine(msg.Lane, styles.WarningStyle.Render(
			fmt.Sprintf("rate limited, retrying in %s: %v", msg.Delay.Round(time.Second), msg.Cause)))
		return m, nil

	case msgs.TaskDoneMsg:
		row := m.lane(msg.Lane)
		row.done++
		row.status = laneIdle
		m.done++
		m.output.AddLine(msg.Lane, styles.SuccessStyle.Render("✓ "+msg.Task.Name))
		return m, nil

	case msgs.TaskFailedMsg:
		row := m.lane(msg.Lane)
		row.failed++
		row.status = laneIdle
		m.failed++
		m.output.AddLine(msg.Lane, styles.ErrorStyle.Render(
			fmt.Sprintf("✗ %s (%s)", msg.Failure.Task.Name, msg.Failure.Cause)))
		return m, nil

	case msgs.OutputLineMsg:
		m.output.AddLine(msg.Lane, msg.Text)
		return m, nil

	case msgs.SummarizingMsg:
		for _, row := range m.lanes {
			row.status = laneFinished
		}
		return m, nil

	case msgs.RunDoneMsg:
		m.state = stateDone
		m.report = msg.Report
		m.runErr = msg.Err
		for _, row := range m.lanes {
			row.status = laneFinished
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	}

	var cmd tea.Cmd
	m.output, cmd = m.output.Update(msg)
	return m, cmd
}

// handleKeyPress handles keyboard input based on current state. The first
// ctrl+c stops dispatch, the second cancels in-flight tasks.
func (m RunModel) handleKeyPress(msg tea.KeyMsg) (RunModel, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		switch m.state {
		case stateRunning:
			m.state = stateStopping
			if m.controls.Stop != nil {
				m.controls.Stop()
			}
		case stateStopping:
			m.state = stateCancelling
			if m.controls.Cancel != nil {
				m.controls.Cancel()
			}
		case stateDone:
			return m, tea.Quit
		}
		return m, nil
	case "q", "enter":
		if m.state == stateDone {
			return m, tea.Quit
		}
		return m, nil
	case "tab":
		m.output.SetFilter(m.nextFilter())
		return m, nil
	}

	var cmd tea.Cmd
	m.output, cmd = m.output.Update(msg)
	return m, cmd
}

// nextFilter cycles the output filter through all lanes, then back to all.
func (m RunModel) nextFilter() string {
	current := m.output.Filter()
	if current == "" {
		if len(m.lanes) == 0 {
			return ""
		}
		return m.lanes[0].name
	}
	for i, row := range m.lanes {
		if row.name == current && i+1 < len(m.lanes) {
			return m.lanes[i+1].name
		}
	}
	return ""
}

func (m *RunModel) addLane(name string) *laneRow {
	row := &laneRow{name: name}
	m.lanes = append(m.lanes, row)
	m.laneIndex[name] = row
	return row
}

// lane returns the row for name, creating it for events that arrive before
// the plan.
func (m *RunModel) lane(name string) *laneRow {
	if row, ok := m.laneIndex[name]; ok {
		return row
	}
	return m.addLane(name)
}

func (r *laneRow) count(done bool) {
	r.total++
	if done {
		r.done++
	}
}

func (m *RunModel) updateOutputSize() {
	if m.width == 0 || m.height == 0 {
		return
	}
	w := m.width - 4
	h := m.height - m.headerHeight() - 4
	m.output.SetSize(max(10, w), max(3, h))
}

// headerHeight is the number of lines above the output box.
func (m RunModel) headerHeight() int {
	return 3 + len(m.lanes)
}

// View implements tea.Model.
func (m RunModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	if m.width < MinTerminalWidth || m.height < MinTerminalHeight {
		return m.renderTerminalTooSmall()
	}
	if m.state == stateDone {
		return m.renderDone()
	}
	return m.renderRunning()
}

func (m RunModel) renderTerminalTooSmall() string {
	msg := fmt.Sprintf("Terminal too small\n\nMinimum: %dx%d\nCurrent: %dx%d",
		MinTerminalWidth, MinTerminalHeight, m.width, m.height)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, msg)
}

func (m RunModel) renderRunning() string {
	var b strings.Builder

	elapsed := m.now().Sub(m.startTime)
	header := fmt.Sprintf("%s  %s  ⏱ %s",
		styles.TitleStyle.UnsetMarginBottom().Render(m.title),
		components.NewProgress(m.done, m.failed, m.total, 20).View(),
		formatElapsed(elapsed))
	b.WriteString(header + "\n\n")

	for _, row := range m.lanes {
		b.WriteString(m.renderLane(row) + "\n")
	}
	b.WriteString("\n")

	b.WriteString(styles.BoxStyle.Render(m.output.View()))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m RunModel) renderLane(row *laneRow) string {
	name := styles.LaneStyle(row.name).Render(fmt.Sprintf("%-14s", truncate(row.name, 14)))
	counts := fmt.Sprintf("%d/%d", row.done, row.total)
	if row.failed > 0 {
		counts += styles.ErrorStyle.Render(fmt.Sprintf(" %d✗", row.failed))
	}

	var activity string
	switch row.status {
	case laneRunning:
		activity = m.spinner.View() + " " + row.task
		if row.attempt > 1 {
			activity += styles.SubtleStyle.Render(fmt.Sprintf(" (attempt %d)", row.attempt))
		}
	case laneWaiting:
		remaining := row.waitUntil.Sub(m.now()).Round(time.Second)
		if remaining < 0 {
			remaining = 0
		}
		activity = styles.WarningStyle.Render(fmt.Sprintf("⏸ %s (backoff %s, attempt %d)", row.task, remaining, row.attempt))
	case laneFinished:
		activity = styles.SubtleStyle.Render("finished")
	default:
		if row.done+row.failed >= row.total && row.total > 0 {
			activity = styles.SubtleStyle.Render("finished")
		} else {
			activity = styles.SubtleStyle.Render("queued")
		}
	}

	line := fmt.Sprintf("%s %-8s %s", name, counts, activity)
	return ansi.Truncate(line, m.width, "...")
}

func (m RunModel) renderStatusBar() string {
	var notice string
	var items []string
	switch m.state {
	case stateRunning:
		items = []string{"ctrl+c Stop", "tab Lane", "↑↓ Scroll"}
	case stateStopping:
		notice = styles.WarningStyle.Render("Stopping: waiting for in-flight tasks.")
		items = []string{"ctrl+c Abort now"}
	case stateCancelling:
		notice = styles.ErrorStyle.Render("Aborting in-flight tasks...")
	case stateDone:
		items = []string{"q Quit"}
	}
	if f := m.output.Filter(); f != "" {
		items = append(items, "showing "+f)
	}
	return m.statusBar.Render(m.width, notice, items)
}

func (m RunModel) renderDone() string {
	var b strings.Builder
	if m.report != nil {
		b.WriteString(display.RenderSummary(m.report))
	}
	if m.runErr != nil {
		b.WriteString("\n" + styles.ErrorStyle.Render("Error: "+m.runErr.Error()) + "\n")
	}
	b.WriteString("\n" + m.renderStatusBar())
	return b.String()
}

// Report returns the final report once the run finished.
func (m RunModel) Report() (*orchestrator.Report, error) {
	return m.report, m.runErr
}

// LaneNames returns lane names in display order.
func (m RunModel) LaneNames() []string {
	names := make([]string, 0, len(m.lanes))
	for _, row := range m.lanes {
		names = append(names, row.name)
	}
	return names
}

// ActiveLanes returns the lanes currently running or backing off, sorted.
func (m RunModel) ActiveLanes() []string {
	var names []string
	for _, row := range m.lanes {
		if row.status == laneRunning || row.status == laneWaiting {
			names = append(names, row.name)
		}
	}
	sort.Strings(names)
	return names
}

func formatElapsed(d time.Duration) string {
	d = max(0, d).Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	mins := d / time.Minute
	d -= mins * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, mins, s)
	}
	return fmt.Sprintf("%02d:%02d", mins, s)
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	if width <= 3 || len(runes) <= 3 {
		return string(runes[:min(width, len(runes))])
	}
	return string(runes[:min(width-3, len(runes))]) + "..."
}
