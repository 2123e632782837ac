package display

import (
	"fmt"
	"strings"

	"github.com/pablasso/ingot/internal/checklist"
	"github.com/pablasso/ingot/internal/planner"
)

// RenderPlan formats an execution plan for a dry run.
func RenderPlan(p *planner.ExecutionPlan) string {
	var b strings.Builder

	pending := p.Pending()
	b.WriteString(titleStyle.Render("Execution plan"))
	b.WriteString(subtleStyle.Render(fmt.Sprintf("  %d tasks, %d pending, %d lanes", p.TaskCount(), pending, len(p.Lanes))))
	b.WriteString("\n\n")

	b.WriteString(titleStyle.Render("Fundamental"))
	b.WriteString(subtleStyle.Render("  (sequential)"))
	b.WriteString("\n")
	if len(p.Fundamental) == 0 {
		b.WriteString(subtleStyle.Render("  none"))
		b.WriteString("\n")
	}
	for i, t := range p.Fundamental {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, planTaskLine(t))
	}

	for _, lane := range p.Lanes {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("Lane " + lane.GroupID))
		b.WriteString("\n")
		for _, t := range lane.Tasks {
			fmt.Fprintf(&b, "  - %s\n", planTaskLine(t))
		}
	}

	if pending == 0 {
		b.WriteString("\n")
		b.WriteString(successStyle.Render("Nothing to do: every task is DONE."))
		b.WriteString("\n")
	}
	return b.String()
}

func planTaskLine(t checklist.Task) string {
	line := fmt.Sprintf("%s %s", statusMark(t.Status), t.Name)
	return line + subtleStyle.Render(fmt.Sprintf(" (line %d)", t.LineNumber))
}

func statusMark(s checklist.Status) string {
	switch s {
	case checklist.StatusDone:
		return successStyle.Render("✓")
	case checklist.StatusFailed:
		return errorStyle.Render("✗")
	case checklist.StatusInProgress:
		return warningStyle.Render("~")
	default:
		return "·"
	}
}
