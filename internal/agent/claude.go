// Package agent runs checklist tasks through the external coding agent CLI.
package agent

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/pablasso/ingot/internal/checklist"
	"github.com/pablasso/ingot/internal/retry"
	"github.com/pablasso/ingot/internal/ticket"
)

// CommandContext is the function used to create exec.Cmd instances.
// It can be replaced in tests to mock command execution.
var CommandContext = exec.CommandContext

// DefaultCommand is the agent CLI binary.
const DefaultCommand = "claude"

// tailBytes is how much trailing output is kept for failure classification.
const tailBytes = 4 * 1024

// Request is everything the agent needs for one attempt at one task.
type Request struct {
	Task     checklist.Task
	Lane     string
	Attempt  int
	Parallel bool
	Ticket   *ticket.Ticket
	PlanText string
}

// Runner executes a single task attempt. A nil error means the task is done.
type Runner interface {
	Run(ctx context.Context, req Request) error
}

// ClaudeRunner executes tasks via the Claude Code CLI.
type ClaudeRunner struct {
	Command    string
	Dir        string
	Output     *OutputCapture
	Classifier *retry.Classifier
}

// NewClaudeRunner creates a runner writing to output. output may be nil.
func NewClaudeRunner(command string, output *OutputCapture, classifier *retry.Classifier) *ClaudeRunner {
	if command == "" {
		command = DefaultCommand
	}
	if classifier == nil {
		classifier = retry.NewClassifier(nil)
	}
	return &ClaudeRunner{Command: command, Output: output, Classifier: classifier}
}

// IsAvailable checks if command exists in PATH.
func IsAvailable(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}

// Run executes one attempt. A failed process whose final output line is an
// agent throttling message returns a *retry.RateLimitError; other failures are returned
// wrapped as hard failures. Context cancellation returns ctx.Err().
func (r *ClaudeRunner) Run(ctx context.Context, req Request) error {
	prompt := BuildPrompt(req)

	cmd := CommandContext(ctx, r.Command,
		"-p", prompt,
		"--dangerously-skip-permissions",
	)
	if r.Dir != "" {
		cmd.Dir = r.Dir
	}

	lane := req.Lane
	if lane == "" {
		lane = "main"
	}
	lw := r.Output.Writer(lane)
	tail := newTailBuffer(tailBytes)
	w := io.MultiWriter(lw, tail)
	cmd.Stdout = w
	cmd.Stderr = w

	r.Output.WriteTaskHeader(lane, req.Task.ID(), req.Attempt)
	err := cmd.Run()
	lw.Flush()
	r.Output.WriteTaskFooter(lane, req.Task.ID(), err == nil)

	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	output := tail.String()
	if r.Classifier.ClassifyOutput(output) == retry.ClassRateLimited {
		return &retry.RateLimitError{Message: retry.FinalLine(output)}
	}
	return fmt.Errorf("%s exited with error: %w", r.Command, err)
}
