package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/username/stakeledger/src/model"
)

func newStatusCommand(a *app) *cobra.Command {
	var history int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show ledger size, symbols, import history and export freshness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			count, err := a.ledger.Count(ctx)
			if err != nil {
				return err
			}
			symbols, err := a.portfolio.Symbols(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Records: %d\n", count)
			fmt.Fprintf(out, "Symbols: %s\n", strings.Join(symbols, ", "))

			if fresh, err := a.imports.Freshness(ctx); err != nil {
				fmt.Fprintf(out, "Freshness: unknown (%v)\n", err)
			} else if fresh.UpToDate {
				fmt.Fprintf(out, "Freshness: up to date (%s)\n", fresh.NewestFile)
			} else {
				fmt.Fprintf(out, "Freshness: stale, newest export is %d days old\n", fresh.ElapsedDays)
			}

			imports, err := a.ledger.History(ctx, history)
			if err != nil {
				return err
			}
			if len(imports) == 0 {
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COMMITTED\tSOURCE\tINSERTED\tRUN")
			for _, rec := range imports {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", rec.CommittedAt.Format(model.TimeLayout), rec.Source, rec.Inserted, rec.RunID)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&history, "history", 5, "number of past imports to list")
	return cmd
}
