package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BinTotal is the aggregated value of one [Start, End) window.
type BinTotal struct {
	Start time.Time       `json:"start"`
	End   time.Time       `json:"end"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

// ValuedTotal is a quantity priced at a point in time by the price oracle.
type ValuedTotal struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
	PricedAt time.Time       `json:"priced_at"`
}

// Freshness is the informational staleness report of the data directory.
type Freshness struct {
	UpToDate    bool      `json:"up_to_date"`
	NewestFile  string    `json:"newest_file,omitempty"`
	NewestMTime time.Time `json:"newest_mtime,omitempty"`
	ElapsedDays int       `json:"elapsed_days"`
}

// MergeResult summarises one merge into the ledger.
type MergeResult struct {
	Inserted         int
	Duplicates       int
	ReconcileFailure int
}
