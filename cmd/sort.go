package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quotefeed/harvester/internal/batch"
)

// newSortCmd creates the 'sort' subcommand for in-place file sorting.
func newSortCmd() *cobra.Command {
	var csvMode bool
	var development bool

	cmd := &cobra.Command{
		Use:   "sort FILE",
		Short: "Sorts a file's lines in place",
		Long: `Sorts the file's lines in whole-line lexical order. With --csv the
first line is kept in place as the header and data rows are ordered by
field-by-field comparison.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			logger, err := buildLogger(development)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush

			if csvMode {
				if err := batch.SortCSV(args[0], logger); err != nil {
					return fmt.Errorf("sort csv %s: %w", args[0], err)
				}
				return nil
			}
			if err := batch.SortLines(args[0], logger); err != nil {
				return fmt.Errorf("sort lines %s: %w", args[0], err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&csvMode, "csv", false, "header-pinned CSV sort instead of whole-line lexical sort")
	cmd.Flags().BoolVar(&development, "dev", true, "use the development logger")
	return cmd
}
