// Command gridtrust runs and inspects trust-driven energy market simulations.
package main

import (
	"os"

	"github.com/arnaldoapp/gridtrust/cmd/gridtrust/commands"
)

// Set with -ldflags "-X main.version=..." at release time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	// Commands report their own failures through the printer package.
	if commands.Execute() != nil {
		os.Exit(1)
	}
}
