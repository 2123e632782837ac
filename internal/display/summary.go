package display

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pablasso/ingot/internal/orchestrator"
)

var (
	primaryColor   = lipgloss.Color("#5FAFAF")
	secondaryColor = lipgloss.Color("#666666")
	successColor   = lipgloss.Color("#87AF87")
	warningColor   = lipgloss.Color("#D7AF5F")
	errorColor     = lipgloss.Color("#AF5F5F")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	subtleStyle  = lipgloss.NewStyle().Foreground(secondaryColor)
	successStyle = lipgloss.NewStyle().Foreground(successColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	labelStyle   = lipgloss.NewStyle().Width(14)
)

// Outcome returns a one-word verdict for the run.
func Outcome(r *orchestrator.Report) string {
	switch {
	case r.Halted:
		return "Halted"
	case r.Aborted:
		return "Aborted"
	case r.Success():
		return "Completed"
	default:
		return "Completed with failures"
	}
}

// RenderSummary formats the end-of-run report. The change summary text is
// printed as-is after the counts.
func RenderSummary(r *orchestrator.Report) string {
	var b strings.Builder

	verdict := Outcome(r)
	style := successStyle
	switch {
	case r.Halted || r.Failed > 0:
		style = errorStyle
	case r.Aborted || r.Skipped > 0:
		style = warningStyle
	}
	b.WriteString(titleStyle.Render("Run summary") + " " + style.Render(verdict) + "\n\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label) + value + "\n")
	}
	row("Done", fmt.Sprintf("%d", r.Done))
	row("Failed", fmt.Sprintf("%d", r.Failed))
	row("Not run", fmt.Sprintf("%d", r.Skipped))
	if r.AlreadyDone > 0 {
		row("Already done", fmt.Sprintf("%d", r.AlreadyDone))
	}
	if len(r.Reset) > 0 {
		row("Reset", fmt.Sprintf("%d", len(r.Reset)))
	}
	row("Duration", formatDuration(r.Duration))

	if r.Halted && r.HaltedBy != nil {
		b.WriteString("\n" + errorStyle.Render(fmt.Sprintf(
			"Fundamental task %q (line %d) failed; no dependent work was started.",
			r.HaltedBy.Name, r.HaltedBy.LineNumber)) + "\n")
	}
	if r.FailFast {
		b.WriteString("\n" + warningStyle.Render("Stopped dispatching after the first lane failure (fail-fast).") + "\n")
	}

	if len(r.Failures) > 0 {
		b.WriteString("\n" + titleStyle.Render("Failures") + "\n")
		for _, f := range r.Failures {
			line := fmt.Sprintf("  ✗ [%s] %s (line %d): %s", f.Lane, f.Task.Name, f.Task.LineNumber, f.Cause)
			b.WriteString(errorStyle.Render(line) + "\n")
			if f.Err != nil {
				b.WriteString(subtleStyle.Render("      "+f.Err.Error()) + "\n")
			}
		}
	}

	b.WriteString("\n" + titleStyle.Render("Changes") + "\n")
	switch {
	case r.Changes.Empty():
		b.WriteString(subtleStyle.Render("No changes.") + "\n")
	default:
		if r.Changes.ToolError {
			b.WriteString(warningStyle.Render("git reported an error; the summary may be incomplete.") + "\n")
		}
		b.WriteString(strings.TrimRight(r.Changes.Text, "\n") + "\n")
	}

	return b.String()
}
