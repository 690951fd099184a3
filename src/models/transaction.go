package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxType is the category of a ledger transaction. Labels the export uses for
// anything outside the known set are kept verbatim.
type TxType string

const (
	TxBuy           TxType = "Buy"
	TxSell          TxType = "Sell"
	TxStakingReward TxType = "StakingReward"
	TxStake         TxType = "Stake"
	TxUnstake       TxType = "Unstake"
)

// IsKnown reports whether t is one of the categories the reconciler and the
// portfolio views reason about.
func (t TxType) IsKnown() bool {
	switch t {
	case TxBuy, TxSell, TxStakingReward, TxStake, TxUnstake:
		return true
	}
	return false
}

// RawRow holds the untouched string values of one export row.
type RawRow struct {
	Line      int // 1-based line in the source, header included
	Symbol    string
	Type      string
	Quantity  string
	Price     string
	Value     string
	Fees      string
	Timestamp string
	Source    string
}

// Transaction is a normalized ledger record. Once stored it is never updated.
type Transaction struct {
	ID          int64               `json:"id,omitempty"` // Database primary key
	Symbol      string              `json:"symbol"`
	Type        TxType              `json:"type"`
	Quantity    decimal.Decimal     `json:"quantity"`     // gross, non-negative
	NetQuantity decimal.NullDecimal `json:"net_quantity"` // signed, fee corrected; null when reconciliation failed
	Price       decimal.Decimal     `json:"price"`
	Value       decimal.Decimal     `json:"value"`
	Fees        decimal.Decimal     `json:"fees"`
	Currency    string              `json:"currency,omitempty"` // empty when the raw price carried no code
	Timestamp   time.Time           `json:"timestamp"`
	HashID      string              `json:"hash_id"` // content hash over every non-derived field
}

// IdentityKey is the (symbol, timestamp) pair the store keeps unique.
type IdentityKey struct {
	Symbol    string
	Timestamp int64
}

// Identity returns the uniqueness key of the transaction.
func (t Transaction) Identity() IdentityKey {
	return IdentityKey{Symbol: t.Symbol, Timestamp: t.Timestamp.Unix()}
}

// SourceFile describes one raw export discovered in the data directory.
type SourceFile struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// ImportRecord is a row of the imports history table.
type ImportRecord struct {
	RunID       string
	Source      string
	SourceMTime time.Time
	Inserted    int
	CommittedAt time.Time
}
