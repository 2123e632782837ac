// Package cli wires ingot's commands together with cobra and viper.
package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pablasso/ingot/internal/config"
	"github.com/pablasso/ingot/internal/version"
)

// ErrRunIncomplete is returned when a run finished with failed, halted or
// skipped tasks. The summary has already been printed.
var ErrRunIncomplete = errors.New("run did not complete every task")

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ingot",
		Short: "Plan and run checklist tasks with AI coding agents",
		Long: `Ingot executes a markdown checklist with AI coding agents. Fundamental tasks
run first, one at a time; independent tasks then run in parallel lanes.
Rate-limited agents are retried with exponential backoff, and the run ends
with a summary of the changes made to the working tree.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $XDG_CONFIG_HOME/ingot/ingot.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "console log level: debug, info, warn, error")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return initConfig()
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newPlanCmd(),
		newResetCmd(),
		newDiffCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func initConfig() error {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("ingot")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath(config.ConfigDir())
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("INGOT")
	// e.g. INGOT_EXECUTION_MAX_PARALLEL for execution.max_parallel
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}
	return nil
}
