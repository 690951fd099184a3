// Package commands holds the stakeledger command line.
package commands

import (
	"database/sql"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/username/stakeledger/src/config"
	"github.com/username/stakeledger/src/database"
	"github.com/username/stakeledger/src/logger"
	"github.com/username/stakeledger/src/processors"
	"github.com/username/stakeledger/src/services"
)

// app is the wiring shared by every subcommand. The database is opened before a
// command runs and closed after it returns.
type app struct {
	cfg       *config.AppConfig
	db        *sql.DB
	ledger    services.LedgerService
	imports   services.ImportService
	portfolio services.PortfolioService
	fx        *processors.ExchangeRateProcessor
}

func (a *app) open() error {
	db, err := database.OpenAndMigrate(a.cfg.DatabasePath)
	if err != nil {
		return err
	}
	a.db = db

	fixes := processors.NewManualFixSet(a.cfg.ManualFixVersion, a.cfg.ManualFixPositions...)
	a.ledger = services.NewLedgerService(db, processors.NewReconciler(fixes))
	scanner := services.NewSourceScanner(a.cfg.DataDir, a.cfg.SourcePattern, a.ledger)
	a.imports = services.NewImportService(scanner, a.ledger, a.cfg.UpdateFrequency)

	a.fx = processors.NewExchangeRateProcessor(a.cfg.FXAPIBaseURL, &http.Client{Timeout: a.cfg.PriceTimeout})
	oracle := services.NewPriceService(services.PriceServiceOptions{
		BaseURL:  a.cfg.PriceAPIBaseURL,
		Currency: a.cfg.PriceCurrency,
		Timeout:  a.cfg.PriceTimeout,
		FX:       a.fx,
	})
	a.portfolio = services.NewPortfolioService(a.ledger, oracle, a.fx, a.cfg.PriceCurrency)
	return nil
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.L.Warn("Failed to close database", "error", err)
		}
		a.db = nil
	}
}

// NewRootCommand builds the command tree over cfg.
func NewRootCommand(cfg *config.AppConfig) *cobra.Command {
	a := &app{cfg: cfg}

	rootCmd := &cobra.Command{
		Use:   "stakeledger",
		Short: "Reconcile trade and staking exports into a local ledger",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if level, _ := cmd.Flags().GetString("log-level"); level != "" {
				logger.InitLogger(level, cmd.ErrOrStderr())
			}
			if err := a.open(); err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "path of the ledger database")
	flags.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory holding the raw exports")
	flags.String("log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	rootCmd.AddCommand(
		newImportCommand(a),
		newStatusCommand(a),
		newBalanceCommand(a),
		newRewardsCommand(a),
		newTransfersCommand(a),
		newSeriesCommand(a),
		newServeCommand(a),
	)

	// Close the ledger after every command, failed ones included.
	for _, sub := range rootCmd.Commands() {
		run := sub.RunE
		sub.RunE = func(cmd *cobra.Command, args []string) error {
			defer a.close()
			return run(cmd, args)
		}
	}
	return rootCmd
}
