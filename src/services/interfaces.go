// src/services/interfaces.go
package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/stakeledger/src/models"
	"github.com/username/stakeledger/src/processors"
)

// PriceOracle supplies the current price of an asset in the reference currency.
// Failures are reported as models.ErrNetwork or models.ErrAuth; callers must not
// substitute a fallback price.
type PriceOracle interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// CurrencyConverter expresses an amount in another currency at a historical date.
type CurrencyConverter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string, date time.Time) (decimal.Decimal, error)
}

// LedgerService is the durable, deduplicated transaction store.
type LedgerService interface {
	// Read returns the records of symbol (all symbols when empty) ordered by timestamp.
	Read(ctx context.Context, symbol string) ([]models.Transaction, error)
	// Merge appends the records not already present and returns what happened.
	Merge(ctx context.Context, records []models.Transaction) (models.MergeResult, error)
	// MergeSource is Merge with the import history row attributed to source.
	MergeSource(ctx context.Context, source models.SourceFile, records []models.Transaction) (models.MergeResult, error)
	Count(ctx context.Context) (int, error)
	// LastModified is the commit time of the latest merge; zero for a new store.
	LastModified(ctx context.Context) (time.Time, error)
	History(ctx context.Context, limit int) ([]models.ImportRecord, error)
}

// ImportSummary reports one run of the import pipeline.
type ImportSummary struct {
	Sources           []string `json:"sources"`
	Inserted          int      `json:"inserted"`
	Duplicates        int      `json:"duplicates"`
	SkippedRows       int      `json:"skipped_rows"`
	FailedSources     int      `json:"failed_sources"`
	ReconcileFailures int      `json:"reconcile_failures"`
	Warning           string   `json:"warning,omitempty"`
}

// ImportService absorbs new source files into the ledger.
type ImportService interface {
	Run(ctx context.Context) (*ImportSummary, error)
	Freshness(ctx context.Context) (models.Freshness, error)
}

// TxPredicate selects transactions for a portfolio query.
type TxPredicate func(models.Transaction) bool

// PortfolioService answers read-only questions about the ledger. Every call
// re-reads the store.
type PortfolioService interface {
	Filter(ctx context.Context, symbol string, pred TxPredicate) ([]models.Transaction, error)
	Rewards(ctx context.Context, symbol string) ([]models.Transaction, error)
	Transfers(ctx context.Context, symbol string) ([]models.Transaction, error)
	Balance(ctx context.Context, symbol string) (decimal.Decimal, error)
	ValuedTotal(ctx context.Context, symbol string, pred TxPredicate) (*models.ValuedTotal, error)
	ValuedBalance(ctx context.Context, symbol string) (*models.ValuedTotal, error)
	Series(ctx context.Context, symbol string, pred TxPredicate, width processors.BinWidth) ([]models.BinTotal, error)
	InvestedTotal(ctx context.Context, symbol, currency string) (decimal.Decimal, error)
	Symbols(ctx context.Context) ([]string, error)
}
