package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Merge new exports from the data directory into the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			if fresh, err := a.imports.Freshness(ctx); err == nil && !fresh.UpToDate && fresh.NewestFile != "" {
				fmt.Fprintf(out, "Warning: newest export %s is %d days old\n", fresh.NewestFile, fresh.ElapsedDays)
			}

			summary, err := a.imports.Run(ctx)
			if err != nil {
				return err
			}
			if summary.Warning != "" {
				fmt.Fprintf(out, "Warning: %s\n", summary.Warning)
			}
			if summary.Inserted == 0 {
				fmt.Fprintln(out, "Ledger already up to date")
				return nil
			}
			fmt.Fprintf(out, "%d records added\n", summary.Inserted)
			if summary.Duplicates > 0 || summary.SkippedRows > 0 || summary.ReconcileFailures > 0 {
				fmt.Fprintf(out, "  duplicates: %d, skipped rows: %d, without net quantity: %d\n",
					summary.Duplicates, summary.SkippedRows, summary.ReconcileFailures)
			}
			return nil
		},
	}
}
