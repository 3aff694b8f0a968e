package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/arnaldoapp/gridtrust/internal/config"
	"github.com/arnaldoapp/gridtrust/internal/printer"
	"github.com/spf13/cobra"
)

var validateConfigPath string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a params file without running it",
	Long: `Load and validate a params file, then print how its agents are spread
over ranks.

Examples:
  gridtrust validate --config params.yml`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&validateConfigPath, "config", "c", "params.yml", "Path to the params file")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	p, err := config.Load(validateConfigPath)
	if err != nil {
		return printer.Error(
			"invalid params file",
			fmt.Sprintf("%s: %v", validateConfigPath, err),
			[]string{"Fix the reported field and run:\n  gridtrust validate --config " + validateConfigPath},
		)
	}

	describeParams(os.Stdout, p)
	printer.Success("%s is valid\n", validateConfigPath)
	return nil
}

// describeParams prints the per-rank layout of a validated params file.
func describeParams(w io.Writer, p *config.Params) {
	fmt.Fprintf(w, "Stop tick: %d, world %dx%d, mode %s\n\n",
		p.StopAt, p.WorldWidth, p.WorldHeight, p.Market.Mode)

	fmt.Fprintf(w, "%-6s %-10s %s\n", "RANK", "PRODUCERS", "CONSUMERS")
	fmt.Fprintf(w, "%-6s %-10s %s\n", "------", "----------", "----------")
	for rank := 0; rank < p.Sync.WorldSize; rank++ {
		fmt.Fprintf(w, "%-6d %-10d %d\n", rank, len(p.ProducersOn(rank)), len(p.ConsumersOn(rank)))
	}
	fmt.Fprintln(w)
}
