package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pablasso/ingot/internal/config"
	"github.com/pablasso/ingot/internal/git"
)

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff [dir]",
		Short: "Print the change summary a run would report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if err := checkGitRepo(cmd.Context(), dir); err != nil {
				return err
			}

			s := &git.Summarizer{Dir: dir, MaxLines: cfg.Summary.MaxLines, MaxFiles: cfg.Summary.MaxFiles}
			summary := s.Summarize(cmd.Context())

			out := cmd.OutOrStdout()
			if summary.Empty() {
				fmt.Fprintln(out, "No changes.")
				return nil
			}
			if summary.Text != "" {
				fmt.Fprintln(out, summary.Text)
			}
			if summary.ToolError {
				return errors.New("git reported an error; the summary may be incomplete")
			}
			return nil
		},
	}
}
