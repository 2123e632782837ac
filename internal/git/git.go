// Package git wraps the version-control commands ingot needs: workspace
// status for the dirty-tree pre-check and diff summaries for the end of a run.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandContext builds every git invocation. Tests replace it to fake output
// and exit codes.
var CommandContext = exec.CommandContext

// Status represents the git workspace status.
type Status struct {
	Clean bool
	Files []string
}

func command(ctx context.Context, dir string, args ...string) *exec.Cmd {
	cmd := CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	return cmd
}

// GetStatus returns the git workspace status for the given directory.
// If dir is empty, uses the current working directory. Paths in exclude are
// relative to dir and left out of the status.
func GetStatus(ctx context.Context, dir string, exclude ...string) (*Status, error) {
	args := []string{"status", "--porcelain"}
	if len(exclude) > 0 {
		args = append(args, "--", ".")
		for _, p := range exclude {
			args = append(args, ":(exclude)"+p)
		}
	}
	output, err := command(ctx, dir, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("git status: %w", err)
	}

	var files []string
	for _, line := range strings.Split(string(output), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		// "XY path"
		if len(line) > 3 {
			files = append(files, line[3:])
		} else {
			files = append(files, strings.TrimSpace(line))
		}
	}

	return &Status{
		Clean: len(files) == 0,
		Files: files,
	}, nil
}

// IsClean returns true if the workspace has no staged, unstaged, or
// untracked changes outside the excluded paths.
func IsClean(ctx context.Context, dir string, exclude ...string) (bool, error) {
	status, err := GetStatus(ctx, dir, exclude...)
	if err != nil {
		return false, err
	}
	return status.Clean, nil
}

// IsRepo reports whether dir is inside a git work tree.
func IsRepo(ctx context.Context, dir string) bool {
	out, err := command(ctx, dir, "rev-parse", "--is-inside-work-tree").Output()
	return err == nil && strings.TrimSpace(string(out)) == "true"
}
