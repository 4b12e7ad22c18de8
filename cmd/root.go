// Package cmd defines and implements the CLI commands for the harvester executable.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quotefeed/harvester/internal/logging"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Orchestrates batched symbol-data collection via an external crawl engine.",
		Long: `harvester drives large, rate-limited data-collection jobs in bounded
batches. It splits a symbol set into fixed-size windows, invokes the
external crawl engine once per window, merges the per-batch output
files into one contiguous file and optionally sorts the result.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches the working directory)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newMergeCmd())
	cmd.AddCommand(newSortCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// buildLogger constructs the process logger for a subcommand.
func buildLogger(development bool) (*zap.Logger, error) {
	return logging.New(development)
}
