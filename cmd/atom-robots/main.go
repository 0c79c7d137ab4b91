package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds minimal global/persistent flags for CLI commands
type GlobalFlags struct {
	ConfigPath string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createRobotCommand(),
		createStartCommand(),
		createStopCommand(),
		createStatsCommand(),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "atom-robots",
		Short: "Start, stop and track robot worker processes",
		Long: `atom-robots runs a small HTTP control plane that launches counting robots,
stops them by PID or all at once, and keeps a ledger of every run.

Examples:
  atom-robots serve config.toml                     # Start the daemon
  atom-robots start --start-number=5                # Ask the daemon for a robot
  atom-robots stop --pid=12345                      # Stop one robot
  atom-robots stop                                  # Stop every robot
  atom-robots stats --limit=50 --order-by=desc`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}
