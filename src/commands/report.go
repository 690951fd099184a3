package commands

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/username/stakeledger/src/model"
	"github.com/username/stakeledger/src/models"
	"github.com/username/stakeledger/src/processors"
	"github.com/username/stakeledger/src/security/validation"
	"github.com/username/stakeledger/src/services"
)

const (
	formatTable = "table"
	formatCSV   = "csv"
	formatJSON  = "json"
)

func symbolArg(args []string) (string, error) {
	symbol := strings.ToUpper(validation.SanitizeField(args[0]))
	if err := validation.ValidateSymbol(symbol); err != nil {
		return "", err
	}
	return symbol, nil
}

func checkFormat(format string) error {
	switch format {
	case formatTable, formatCSV, formatJSON:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want table, csv or json)", format)
}

func newBalanceCommand(a *app) *cobra.Command {
	var withValue bool
	cmd := &cobra.Command{
		Use:   "balance SYMBOL",
		Short: "Print the net balance of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, err := symbolArg(args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			balance, err := a.portfolio.Balance(cmd.Context(), symbol)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s balance: %s\n", symbol, balance)

			if withValue {
				valued, err := a.portfolio.ValuedBalance(cmd.Context(), symbol)
				if err != nil {
					return err
				}
				printValued(out, valued)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withValue, "value", false, "also value the balance at the current price")
	return cmd
}

func newRewardsCommand(a *app) *cobra.Command {
	return newViewCommand(a, "rewards", "List or bin the staking rewards of an asset", services.IsReward)
}

func newTransfersCommand(a *app) *cobra.Command {
	return newViewCommand(a, "transfers", "List or bin the stake and unstake transfers of an asset", services.IsTransfer)
}

// newViewCommand lists the records of one portfolio view, or their binned sums
// when --bins is given.
func newViewCommand(a *app, name, short string, pred services.TxPredicate) *cobra.Command {
	var bins, format string
	var withValue bool
	cmd := &cobra.Command{
		Use:   name + " SYMBOL",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, err := symbolArg(args)
			if err != nil {
				return err
			}
			width, err := processors.ParseBinWidth(bins)
			if err != nil {
				return err
			}
			if err := checkFormat(format); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			if width == processors.BinNone {
				txs, err := a.portfolio.Filter(ctx, symbol, pred)
				if err != nil {
					return err
				}
				if err := writeTransactions(out, format, txs); err != nil {
					return err
				}
			} else {
				series, err := a.portfolio.Series(ctx, symbol, pred, width)
				if err != nil && !errors.Is(err, models.ErrEmptyRange) {
					return err
				}
				if err := writeSeries(out, format, series); err != nil {
					return err
				}
			}

			if withValue {
				valued, err := a.portfolio.ValuedTotal(ctx, symbol, pred)
				if err != nil {
					return err
				}
				printValued(out, valued)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bins, "bins", "", "aggregate into week or month bins")
	cmd.Flags().StringVarP(&format, "output", "o", formatTable, "output format: table, csv or json")
	cmd.Flags().BoolVar(&withValue, "value", false, "value the total quantity at the current price")
	return cmd
}

func newSeriesCommand(a *app) *cobra.Command {
	var bins, view, format string
	cmd := &cobra.Command{
		Use:   "series SYMBOL",
		Short: "Print binned quantity sums of any transaction type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, err := symbolArg(args)
			if err != nil {
				return err
			}
			width, err := processors.ParseBinWidth(bins)
			if err != nil {
				return err
			}
			if width == processors.BinNone {
				return errors.New("series needs --bins week or --bins month")
			}
			if err := checkFormat(format); err != nil {
				return err
			}
			series, err := a.portfolio.Series(cmd.Context(), symbol, services.PredicateForType(view), width)
			if err != nil && !errors.Is(err, models.ErrEmptyRange) {
				return err
			}
			return writeSeries(cmd.OutOrStdout(), format, series)
		},
	}
	cmd.Flags().StringVar(&bins, "bins", string(processors.BinMonth), "week or month")
	cmd.Flags().StringVar(&view, "type", "rewards", "rewards, transfers, buys, all or a raw transaction type")
	cmd.Flags().StringVarP(&format, "output", "o", formatTable, "output format: table, csv or json")
	return cmd
}

func printValued(out io.Writer, v *models.ValuedTotal) {
	fmt.Fprintf(out, "%s x %s %s = %s %s (priced %s)\n",
		v.Quantity, v.Price.StringFixed(4), v.Currency, v.Value.StringFixed(2), v.Currency, v.PricedAt.Format(model.TimeLayout))
}

func netString(tx models.Transaction) string {
	if !tx.NetQuantity.Valid {
		return "-"
	}
	return tx.NetQuantity.Decimal.String()
}

func writeTransactions(out io.Writer, format string, txs []models.Transaction) error {
	switch format {
	case formatJSON:
		if txs == nil {
			txs = []models.Transaction{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(txs)
	case formatCSV:
		w := csv.NewWriter(out)
		w.Write([]string{"timestamp", "symbol", "type", "quantity", "net_quantity", "price", "value", "fees", "currency"})
		for _, tx := range txs {
			w.Write([]string{
				tx.Timestamp.Format(model.TimeLayout), csvText(tx.Symbol), csvText(string(tx.Type)), tx.Quantity.String(), netString(tx),
				tx.Price.String(), tx.Value.String(), tx.Fees.String(), csvText(tx.Currency)})
		}
		w.Flush()
		return w.Error()
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tTYPE\tQUANTITY\tNET\tPRICE\tFEES")
	for _, tx := range txs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s %s\t%s\n", tx.Timestamp.Format(model.TimeLayout), tx.Type,
			tx.Quantity, netString(tx), tx.Price, tx.Currency, tx.Fees)
	}
	return tw.Flush()
}

func writeSeries(out io.Writer, format string, series []models.BinTotal) error {
	switch format {
	case formatJSON:
		if series == nil {
			series = []models.BinTotal{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(series)
	case formatCSV:
		w := csv.NewWriter(out)
		w.Write([]string{"start", "end", "total", "count"})
		for _, b := range series {
			w.Write([]string{b.Start.Format("2006-01-02"), b.End.Format("2006-01-02"), b.Total.String(), fmt.Sprint(b.Count)})
		}
		w.Flush()
		return w.Error()
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FROM\tTO\tTOTAL\tCOUNT")
	for _, b := range series {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", b.Start.Format("2006-01-02"), b.End.Format("2006-01-02"), b.Total, b.Count)
	}
	return tw.Flush()
}

// csvText neutralises spreadsheet formulas in exported text cells. Numbers are
// written as is so negative quantities stay numeric.
func csvText(s string) string {
	return validation.SanitizeForFormulaInjection(s)
}
