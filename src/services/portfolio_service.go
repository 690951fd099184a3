package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/stakeledger/src/logger"
	"github.com/username/stakeledger/src/models"
	"github.com/username/stakeledger/src/processors"
)

// Predicates for the common portfolio views.
var (
	IsReward   TxPredicate = func(tx models.Transaction) bool { return tx.Type == models.TxStakingReward }
	IsTransfer TxPredicate = func(tx models.Transaction) bool { return tx.Type == models.TxStake || tx.Type == models.TxUnstake }
	IsBuy      TxPredicate = func(tx models.Transaction) bool { return tx.Type == models.TxBuy }
)

// PredicateForType returns the predicate behind a view name: rewards, transfers,
// buys, all, or a raw transaction type.
func PredicateForType(name string) TxPredicate {
	switch strings.ToLower(name) {
	case "", "all":
		return nil
	case "rewards", "reward", strings.ToLower(string(models.TxStakingReward)):
		return IsReward
	case "transfers", "transfer":
		return IsTransfer
	case "buys", "buy":
		return IsBuy
	}
	typ := models.TxType(name)
	return func(tx models.Transaction) bool { return strings.EqualFold(string(tx.Type), string(typ)) }
}

type portfolioServiceImpl struct {
	ledger   LedgerService
	oracle   PriceOracle
	fx       CurrencyConverter
	currency string
	now      func() time.Time
}

// NewPortfolioService builds the read side. oracle and fx may be nil, in which
// case valuations fail with models.ErrPriceUnavailable.
func NewPortfolioService(ledger LedgerService, oracle PriceOracle, fx CurrencyConverter, currency string) PortfolioService {
	return &portfolioServiceImpl{ledger: ledger, oracle: oracle, fx: fx, currency: strings.ToUpper(currency), now: time.Now}
}

func (s *portfolioServiceImpl) Filter(ctx context.Context, symbol string, pred TxPredicate) ([]models.Transaction, error) {
	txs, err := s.ledger.Read(ctx, strings.ToUpper(symbol))
	if err != nil {
		return nil, err
	}
	if pred == nil {
		return txs, nil
	}
	filtered := make([]models.Transaction, 0, len(txs))
	for _, tx := range txs {
		if pred(tx) {
			filtered = append(filtered, tx)
		}
	}
	return filtered, nil
}

func (s *portfolioServiceImpl) Rewards(ctx context.Context, symbol string) ([]models.Transaction, error) {
	return s.Filter(ctx, symbol, IsReward)
}

func (s *portfolioServiceImpl) Transfers(ctx context.Context, symbol string) ([]models.Transaction, error) {
	return s.Filter(ctx, symbol, IsTransfer)
}

// Balance sums the net quantity of symbol. Records without a net quantity are
// left out.
func (s *portfolioServiceImpl) Balance(ctx context.Context, symbol string) (decimal.Decimal, error) {
	txs, err := s.Filter(ctx, symbol, nil)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, tx := range txs {
		if tx.NetQuantity.Valid {
			total = total.Add(tx.NetQuantity.Decimal)
		}
	}
	return total, nil
}

// ValuedTotal prices the gross quantity of the matching records at the oracle's
// current price.
func (s *portfolioServiceImpl) ValuedTotal(ctx context.Context, symbol string, pred TxPredicate) (*models.ValuedTotal, error) {
	txs, err := s.Filter(ctx, symbol, pred)
	if err != nil {
		return nil, err
	}
	quantity := decimal.Zero
	for _, tx := range txs {
		quantity = quantity.Add(tx.Quantity)
	}
	return s.value(ctx, symbol, quantity)
}

// ValuedBalance prices the net balance of symbol.
func (s *portfolioServiceImpl) ValuedBalance(ctx context.Context, symbol string) (*models.ValuedTotal, error) {
	balance, err := s.Balance(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return s.value(ctx, symbol, balance)
}

func (s *portfolioServiceImpl) value(ctx context.Context, symbol string, quantity decimal.Decimal) (*models.ValuedTotal, error) {
	symbol = strings.ToUpper(symbol)
	if s.oracle == nil {
		return nil, fmt.Errorf("%w: no price oracle configured", models.ErrPriceUnavailable)
	}
	price, err := s.oracle.CurrentPrice(ctx, symbol)
	if err != nil {
		logger.FromContext(ctx).Warn("Price unavailable", "symbol", symbol, "error", err)
		return nil, fmt.Errorf("%w: %s: %w", models.ErrPriceUnavailable, symbol, err)
	}
	return &models.ValuedTotal{
		Symbol:   symbol,
		Quantity: quantity,
		Price:    price,
		Value:    quantity.Mul(price),
		Currency: s.currency,
		PricedAt: s.now().UTC(),
	}, nil
}

// Series sums the gross quantity of the matching records into calendar bins.
// BinNone returns one point per record.
func (s *portfolioServiceImpl) Series(ctx context.Context, symbol string, pred TxPredicate, width processors.BinWidth) ([]models.BinTotal, error) {
	txs, err := s.Filter(ctx, symbol, pred)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, models.ErrEmptyRange
	}

	timestamps := make([]time.Time, len(txs))
	values := make([]decimal.Decimal, len(txs))
	for i, tx := range txs {
		timestamps[i] = tx.Timestamp
		values[i] = tx.Quantity
	}

	if width == processors.BinNone {
		points := make([]models.BinTotal, len(txs))
		for i := range txs {
			points[i] = models.BinTotal{Start: timestamps[i], End: timestamps[i], Total: values[i], Count: 1}
		}
		return points, nil
	}

	edges, err := processors.Bins(width, timestamps)
	if err != nil {
		return nil, err
	}
	return processors.SumByBin(timestamps, values, edges), nil
}

// InvestedTotal sums the value of the buys of symbol, each converted to currency
// at its own date.
func (s *portfolioServiceImpl) InvestedTotal(ctx context.Context, symbol, currency string) (decimal.Decimal, error) {
	buys, err := s.Filter(ctx, symbol, IsBuy)
	if err != nil {
		return decimal.Zero, err
	}
	if currency == "" {
		currency = s.currency
	}

	total := decimal.Zero
	for _, tx := range buys {
		if tx.Currency == "" || strings.EqualFold(tx.Currency, currency) {
			total = total.Add(tx.Value)
			continue
		}
		if s.fx == nil {
			return decimal.Zero, errors.New("no currency converter configured")
		}
		converted, err := s.fx.Convert(ctx, tx.Value, tx.Currency, currency, tx.Timestamp)
		if err != nil {
			return decimal.Zero, fmt.Errorf("convert %s %s on %s: %w", tx.Value, tx.Currency, tx.Timestamp.Format("2006-01-02"), err)
		}
		total = total.Add(converted)
	}
	return total, nil
}

// Symbols lists the assets present in the ledger.
func (s *portfolioServiceImpl) Symbols(ctx context.Context) ([]string, error) {
	txs, err := s.ledger.Read(ctx, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var symbols []string
	for _, tx := range txs {
		if !seen[tx.Symbol] {
			seen[tx.Symbol] = true
			symbols = append(symbols, tx.Symbol)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}
