package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/stakeledger/src/model"
	"github.com/username/stakeledger/src/models"
)

func TestMerge_ScenarioNetQuantity(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t)

	result, err := ledger.Merge(ctx, scenarioBatch())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Inserted)
	assert.Equal(t, 0, result.Duplicates)

	txs, err := ledger.Read(ctx, "DOT")
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, "9.99", txs[0].NetQuantity.Decimal.String())
	assert.Equal(t, "-0.05", txs[1].NetQuantity.Decimal.String())
	assert.Equal(t, "-2", txs[2].NetQuantity.Decimal.String())
	assert.NotZero(t, txs[0].ID)
	assert.Equal(t, "EUR", txs[0].Currency)
}

func TestMerge_Idempotent(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t)

	_, err := ledger.Merge(ctx, scenarioBatch())
	require.NoError(t, err)
	before, err := ledger.Read(ctx, "")
	require.NoError(t, err)

	result, err := ledger.Merge(ctx, scenarioBatch())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 3, result.Duplicates)

	after, err := ledger.Read(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMerge_ContentIdentityIgnoresDerivedFields(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t)
	_, err := ledger.Merge(ctx, scenarioBatch())
	require.NoError(t, err)

	batch := scenarioBatch()
	for i := range batch {
		batch[i].ID = 0
		batch[i].HashID = "stale"
	}
	result, err := ledger.Merge(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
}

func TestMerge_UsesStoredContentHashes(t *testing.T) {
	ctx := context.Background()
	ledger, db := newTestLedger(t)

	incoming := newTx("DOT", models.TxStakingReward, "0.05", "101.2", "5.06", "0", at(2024, 1, 20, 8, 0, 0))
	stored := newTx("DOT", models.TxStakingReward, "0.05", "101.2", "5.06", "0", at(2024, 1, 21, 8, 0, 0))
	stored.HashID = incoming.HashID
	_, err := model.InsertTransactions(ctx, db, []models.Transaction{stored})
	require.NoError(t, err)

	result, err := ledger.Merge(ctx, []models.Transaction{incoming})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 1, result.Duplicates)
}

func TestMerge_SymbolTimestampCollisionIsDuplicate(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t)
	_, err := ledger.Merge(ctx, scenarioBatch())
	require.NoError(t, err)

	clash := newTx("DOT", models.TxBuy, "11", "100", "1100", "1", at(2024, 1, 15, 10, 30, 0))
	other := newTx("ETH", models.TxBuy, "1", "2000", "2000", "2", at(2024, 1, 15, 10, 30, 0))
	result, err := ledger.Merge(ctx, []models.Transaction{clash, other})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Duplicates)

	count, err := ledger.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	// A collision inside one batch keeps the first record.
	a := newTx("SOL", models.TxBuy, "1", "100", "100", "0", at(2024, 2, 1, 0, 0, 0))
	b := newTx("SOL", models.TxSell, "1", "100", "100", "0", at(2024, 2, 1, 0, 0, 0))
	result, err = ledger.Merge(ctx, []models.Transaction{a, b})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	sol, err := ledger.Read(ctx, "SOL")
	require.NoError(t, err)
	require.Len(t, sol, 1)
	assert.Equal(t, models.TxBuy, sol[0].Type)
}

func TestMerge_ManualFixUsesStoreOffset(t *testing.T) {
	ctx := context.Background()
	// Second batch, index 1, offset 3: position 1 + 3 - 1 = 3.
	ledger, _ := newTestLedger(t, 3)
	_, err := ledger.Merge(ctx, scenarioBatch())
	require.NoError(t, err)

	batch := []models.Transaction{
		newTx("DOT", models.TxSell, "1", "10", "10", "0.1", at(2024, 4, 1, 0, 0, 0)),
		newTx("DOT", models.TxSell, "4", "10", "40", "0.4", at(2024, 4, 2, 0, 0, 0)),
	}
	_, err = ledger.Merge(ctx, batch)
	require.NoError(t, err)

	txs, err := ledger.Read(ctx, "DOT")
	require.NoError(t, err)
	require.Len(t, txs, 5)
	assert.Equal(t, "-1", txs[3].NetQuantity.Decimal.String())
	assert.Equal(t, "-4.04", txs[4].NetQuantity.Decimal.String())
}

func TestMerge_ReconciliationFailureKeepsRecord(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t)

	free := newTx("DOT", models.TxBuy, "1", "0", "10", "0.1", at(2024, 1, 1, 0, 0, 0))
	result, err := ledger.Merge(ctx, []models.Transaction{free})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.ReconcileFailure)

	txs, err := ledger.Read(ctx, "DOT")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.False(t, txs[0].NetQuantity.Valid)
}

func TestMerge_IntegrityErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	ledger, db := newTestLedger(t)

	_, err := db.Exec(`CREATE TRIGGER reject_bad BEFORE INSERT ON transactions
		WHEN NEW.symbol = 'BAD' BEGIN SELECT RAISE(ABORT, 'rejected'); END;`)
	require.NoError(t, err)

	batch := append(scenarioBatch(), newTx("BAD", models.TxBuy, "1", "1", "1", "0", at(2024, 5, 1, 0, 0, 0)))
	_, err = ledger.Merge(ctx, batch)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrStoreIntegrity)

	count, err := ledger.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	last, err := ledger.LastModified(ctx)
	require.NoError(t, err)
	assert.True(t, last.IsZero())
}

func TestLedger_ReadOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t)

	batch := []models.Transaction{
		newTx("ETH", models.TxBuy, "1", "2000", "2000", "2", at(2024, 2, 1, 0, 0, 0)),
		newTx("DOT", models.TxBuy, "1", "10", "10", "0", at(2024, 3, 1, 0, 0, 0)),
		newTx("DOT", models.TxBuy, "1", "10", "10", "0", at(2024, 1, 1, 0, 0, 0)),
	}
	_, err := ledger.Merge(ctx, batch)
	require.NoError(t, err)

	all, err := ledger.Read(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, at(2024, 1, 1, 0, 0, 0), all[0].Timestamp)
	assert.Equal(t, "ETH", all[1].Symbol)

	dot, err := ledger.Read(ctx, "DOT")
	require.NoError(t, err)
	assert.Len(t, dot, 2)

	none, err := ledger.Read(ctx, "' OR 1=1 --")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLedger_LastModifiedAndHistory(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t)

	last, err := ledger.LastModified(ctx)
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	committed := at(2024, 6, 1, 12, 0, 0)
	setLedgerClock(ledger, committed)
	src := models.SourceFile{Name: "activity.csv", ModTime: at(2024, 5, 31, 9, 0, 0)}
	_, err = ledger.MergeSource(ctx, src, scenarioBatch())
	require.NoError(t, err)

	last, err = ledger.LastModified(ctx)
	require.NoError(t, err)
	assert.Equal(t, committed, last)

	history, err := ledger.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "activity.csv", history[0].Source)
	assert.Equal(t, 3, history[0].Inserted)
	assert.Equal(t, src.ModTime, history[0].SourceMTime)
	assert.Len(t, history[0].RunID, 36)
}
