package services

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/username/stakeledger/src/database"
	"github.com/username/stakeledger/src/models"
	"github.com/username/stakeledger/src/processors"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.OpenAndMigrate(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestLedger(t *testing.T, fixPositions ...int) (LedgerService, *sql.DB) {
	t.Helper()
	db := openTestDB(t)
	ledger := NewLedgerService(db, processors.NewReconciler(processors.NewManualFixSet("test", fixPositions...)))
	return ledger, db
}

// setLedgerClock pins the commit time recorded by merges.
func setLedgerClock(ledger LedgerService, now time.Time) {
	ledger.(*ledgerServiceImpl).now = func() time.Time { return now }
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func at(y int, m time.Month, day, h, min, sec int) time.Time {
	return time.Date(y, m, day, h, min, sec, 0, time.UTC)
}

func newTx(symbol string, typ models.TxType, qty, price, value, fees string, ts time.Time) models.Transaction {
	tx := models.Transaction{
		Symbol:    symbol,
		Type:      typ,
		Quantity:  d(qty),
		Price:     d(price),
		Value:     d(value),
		Fees:      d(fees),
		Currency:  "EUR",
		Timestamp: ts,
	}
	tx.HashID = processors.ContentHash(tx)
	return tx
}

// scenarioBatch is the three-row Q1 export: one buy, one reward and one sell.
func scenarioBatch() []models.Transaction {
	return []models.Transaction{
		newTx("DOT", models.TxBuy, "10", "100", "1000", "1", at(2024, 1, 15, 10, 30, 0)),
		newTx("DOT", models.TxStakingReward, "0.05", "101.2", "5.06", "0", at(2024, 1, 20, 8, 0, 0)),
		newTx("DOT", models.TxSell, "2", "1250.5", "2501", "2.5", at(2024, 3, 3, 16, 15, 30)),
	}
}

// copyTestdata copies a fixture into dir and stamps it with mtime.
func copyTestdata(t *testing.T, name, dir string, mtime time.Time) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "testdata", name))
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}
