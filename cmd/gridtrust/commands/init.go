package commands

import (
	"github.com/arnaldoapp/gridtrust/internal/printer"
	"github.com/arnaldoapp/gridtrust/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	initDir   string
	initForce bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter params.yml",
	Long: `Write a params.yml with one consumer and three producers on two ranks.

Use --force to replace an existing params.yml.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initDir, "dir", ".", "Directory to write params.yml into")
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing params.yml")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path, err := scaffold.Initialize(initDir, initForce)
	if err != nil {
		return printer.Error("initialization failed", err.Error(), nil)
	}
	scaffold.PrintSuccess(path)
	return nil
}
