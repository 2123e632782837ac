package agent

import (
	"fmt"
	"strings"
)

// BuildPrompt constructs the prompt for one task attempt.
func BuildPrompt(req Request) string {
	var sb strings.Builder

	sb.WriteString("You are executing one task from an implementation checklist as part of an automated run.\n\n")

	if text := req.Ticket.Text(); text != "" {
		sb.WriteString("## Ticket\n")
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}

	if req.PlanText != "" {
		sb.WriteString("## Implementation Plan\n")
		sb.WriteString(strings.TrimSpace(req.PlanText))
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Your Task\n")
	fmt.Fprintf(&sb, "**Task**: %s\n", req.Task.Name)
	fmt.Fprintf(&sb, "**Checklist line**: %d\n", req.Task.LineNumber)
	if req.Task.Section != "" {
		fmt.Fprintf(&sb, "**Section**: %s\n", req.Task.Section)
	}
	if req.Attempt > 1 {
		fmt.Fprintf(&sb, "**Attempt**: %d (earlier attempts were rate limited)\n", req.Attempt)
	}
	sb.WriteString("\n")

	if req.Parallel {
		sb.WriteString("## Parallel Mode\n")
		fmt.Fprintf(&sb, "This task runs in lane %q while other lanes work on unrelated tasks in the same workspace.\n", req.Lane)
		sb.WriteString("Only touch files this task needs. Do not revert, reformat, or commit changes you did not make.\n\n")
	}

	sb.WriteString("## Instructions\n")
	sb.WriteString("1. Implement only this task\n")
	sb.WriteString("2. Verify it works (build, tests, or the check the task implies)\n")
	sb.WriteString("3. Do not edit the checklist file; the orchestrator tracks task status\n")
	sb.WriteString("4. Exit with a non-zero status if you could not complete the task\n")

	return sb.String()
}
