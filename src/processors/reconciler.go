package processors

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/shopspring/decimal"
	"github.com/username/stakeledger/src/logger"
	"github.com/username/stakeledger/src/models"
)

// FormulaVersion names the net quantity rule applied by Reconcile. Earlier exports
// were reconciled with variants that ignored the fee on buys or used the raw fee;
// those are not reproduced.
const FormulaVersion = "buy-fee-rate-3dp"

// feeRatePlaces is the precision the upstream fee rate is rounded to.
const feeRatePlaces = 3

// ManualFixSet lists store positions of known-bad source rows whose net quantity
// takes the fee-corrected formula with a negative sign.
type ManualFixSet struct {
	Version   string
	positions map[int]bool
}

// NewManualFixSet builds a fix set from absolute store positions.
func NewManualFixSet(version string, positions ...int) ManualFixSet {
	set := ManualFixSet{Version: version, positions: make(map[int]bool, len(positions))}
	for _, p := range positions {
		set.positions[p] = true
	}
	return set
}

// Contains reports whether position is a manual fix.
func (s ManualFixSet) Contains(position int) bool {
	return s.positions[position]
}

// Positions returns the configured positions in ascending order.
func (s ManualFixSet) Positions() []int {
	out := make([]int, 0, len(s.positions))
	for p := range s.positions {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// Reconciler derives the signed, fee-corrected net quantity of new records.
type Reconciler struct {
	fixes ManualFixSet
	once  sync.Once
}

func NewReconciler(fixes ManualFixSet) *Reconciler {
	return &Reconciler{fixes: fixes}
}

// Fixes returns the manual fix set the reconciler applies.
func (r *Reconciler) Fixes() ManualFixSet { return r.fixes }

// Reconcile fills NetQuantity for every record of a batch. offset is the number of
// records already in the store, which places the batch within the fix set's
// absolute positions. Records that cannot be reconciled keep a null NetQuantity
// and are listed in the returned error; the batch is always returned in full.
func (r *Reconciler) Reconcile(records []models.Transaction, offset int) ([]models.Transaction, error) {
	r.once.Do(func() {
		logger.L.Debug("Reconciler: applying net quantity formula", "formula", FormulaVersion, "fixVersion", r.fixes.Version, "note", "superseded formula variants are not supported")
	})

	out := make([]models.Transaction, len(records))
	var failed *multierror.Error
	for i, tx := range records {
		position := i + offset - 1
		net, err := NetQuantity(tx, r.fixes.Contains(position))
		if err != nil {
			logger.L.Warn("Reconciler: net quantity unavailable", "symbol", tx.Symbol, "timestamp", tx.Timestamp, "position", position, "error", err)
			failed = multierror.Append(failed, fmt.Errorf("%s at %s: %w", tx.Symbol, tx.Timestamp.Format("2006-01-02 15:04:05"), err))
			tx.NetQuantity = decimal.NullDecimal{}
		} else {
			tx.NetQuantity = decimal.NewNullDecimal(net)
		}
		out[i] = tx
	}
	return out, failed.ErrorOrNil()
}

// NetQuantity applies the net quantity rule to one record:
// -quantity by default, quantity - adjustedFee/price for buys, and
// -quantity - adjustedFee/price for manual fixes.
func NetQuantity(tx models.Transaction, manualFix bool) (decimal.Decimal, error) {
	if !manualFix && tx.Type != models.TxBuy {
		return tx.Quantity.Neg(), nil
	}

	feePerUnit, err := adjustedFeePerUnit(tx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if manualFix {
		return tx.Quantity.Neg().Sub(feePerUnit), nil
	}
	return tx.Quantity.Sub(feePerUnit), nil
}

// adjustedFeePerUnit recomputes the fee as round(fee/value, 3) * value, correcting
// the upstream rounding of the raw fee, and expresses it in units of the asset.
func adjustedFeePerUnit(tx models.Transaction) (decimal.Decimal, error) {
	if tx.Value.IsZero() {
		return decimal.Decimal{}, fmt.Errorf("%w: zero value", models.ErrReconciliation)
	}
	if tx.Price.IsZero() {
		return decimal.Decimal{}, fmt.Errorf("%w: zero price", models.ErrReconciliation)
	}
	rate := tx.Fees.Div(tx.Value).RoundBank(feeRatePlaces)
	adjustedFee := rate.Mul(tx.Value)
	return adjustedFee.Div(tx.Price), nil
}
