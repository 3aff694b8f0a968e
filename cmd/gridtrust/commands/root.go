package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gridtrust",
	Short: "gridtrust - trust-driven energy market simulation",
	Long: `gridtrust simulates an energy market where consumers choose producers
by price and by a trust level learned from past deliveries.

Ranks advance in lockstep ticks. A single process can run the whole world,
or ranks can meet through Redis, one process each or all in one process.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the command selected by os.Args.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo fills in the --version output from build metadata.
func SetVersionInfo(version, commit, date string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}
