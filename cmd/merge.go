package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quotefeed/harvester/internal/batch"
)

// newMergeCmd creates the 'merge' subcommand for standalone merges of
// already-collected batch files.
func newMergeCmd() *cobra.Command {
	var skipHeaders bool
	var development bool

	cmd := &cobra.Command{
		Use:   "merge TARGET SOURCE...",
		Short: "Merges batch output files into one target file",
		Long: `Concatenates the source files into TARGET in the given order and
deletes the consumed sources. With --skip-headers, exactly one copy of
the header line is kept and repeats from later sources are dropped.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			logger, err := buildLogger(development)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush

			mode := batch.HeaderNone
			if skipHeaders {
				mode = batch.HeaderSkipAfterFirst
			}
			lines, err := batch.MergeFiles(args[0], args[1:], mode, logger)
			if err != nil {
				return fmt.Errorf("merge into %s: %w", args[0], err)
			}
			logger.Info("merge complete")
			fmt.Printf("merged %d lines into %s\n", lines, args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipHeaders, "skip-headers", false, "keep one header line, dropping repeats from later sources")
	cmd.Flags().BoolVar(&development, "dev", true, "use the development logger")
	return cmd
}
