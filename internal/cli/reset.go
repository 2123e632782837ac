package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pablasso/ingot/internal/config"
)

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <checklist> [line...]",
		Short: "Move FAILED tasks back to pending",
		Long: `Reset FAILED tasks to pending so the next run picks them up again.
With no line numbers every failed task is reset.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := parseLineNumbers(args[1:])
			if err != nil {
				return err
			}
			return resetChecklist(cmd, args[0], lines)
		},
	}
}

func resetChecklist(cmd *cobra.Command, path string, lines []int) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, absPath, err := loadChecklist(path, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if err := ensureNotRunning(cfg.Paths.ResolveStateDir(absPath)); err != nil {
		return err
	}

	reset, err := store.Reset(lines...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(reset) == 0 {
		fmt.Fprintln(out, "No failed tasks to reset.")
		return nil
	}
	for _, ln := range reset {
		t, _ := store.Task(ln)
		fmt.Fprintf(out, "Reset line %d: %s\n", ln, t.Name)
	}
	return nil
}

func parseLineNumbers(args []string) ([]int, error) {
	lines := make([]int, 0, len(args))
	for _, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid line number %q", arg)
		}
		lines = append(lines, n)
	}
	return lines, nil
}
