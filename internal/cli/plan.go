package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pablasso/ingot/internal/display"
	"github.com/pablasso/ingot/internal/planner"
)

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <checklist>",
		Short: "Show the execution plan without running anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := loadChecklist(args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			plan := planner.Build(store.Tasks())
			fmt.Fprint(cmd.OutOrStdout(), display.RenderPlan(plan))
			return nil
		},
	}
}
