package cli

import (
	"context"
	"fmt"

	"github.com/pablasso/ingot/internal/agent"
	"github.com/pablasso/ingot/internal/git"
)

// PrerequisiteError represents a failed prerequisite check with helpful remediation info.
type PrerequisiteError struct {
	Check   string
	Message string
	Help    string
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("%s: %s\n\n%s", e.Check, e.Message, e.Help)
}

// checkPrerequisites validates the environment before a run: dir must be in a
// git repository, the agent command must be installed, and the working tree
// must be clean unless allowDirty is set. Paths in ignore (relative to dir)
// may be dirty: a resumed run has already touched the checklist and state dir.
func checkPrerequisites(ctx context.Context, dir, agentCommand string, allowDirty bool, ignore ...string) error {
	if err := checkGitRepo(ctx, dir); err != nil {
		return err
	}
	if err := checkAgent(agentCommand); err != nil {
		return err
	}
	if !allowDirty {
		return checkCleanWorkspace(ctx, dir, ignore...)
	}
	return nil
}

// checkGitRepo verifies dir is inside a git repository.
func checkGitRepo(ctx context.Context, dir string) error {
	if !git.IsRepo(ctx, dir) {
		return &PrerequisiteError{
			Check:   "Git repository",
			Message: "Not a git repository",
			Help:    "Ingot summarizes changes with git. Run 'git init' first.",
		}
	}
	return nil
}

// checkAgent verifies the agent CLI is on PATH.
func checkAgent(command string) error {
	if !agent.IsAvailable(command) {
		return &PrerequisiteError{
			Check:   "Agent CLI",
			Message: fmt.Sprintf("%q not found", command),
			Help:    "Install Claude Code (https://claude.ai/code) or set execution.agent_command.",
		}
	}
	return nil
}

// checkCleanWorkspace refuses to start on uncommitted changes so the final
// change summary only shows what the run did.
func checkCleanWorkspace(ctx context.Context, dir string, ignore ...string) error {
	clean, err := git.IsClean(ctx, dir, ignore...)
	if err != nil {
		return err
	}
	if !clean {
		return &PrerequisiteError{
			Check:   "Working tree",
			Message: "Uncommitted changes",
			Help:    "Commit or stash your changes first, or pass --allow-dirty.",
		}
	}
	return nil
}
