package model

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/stakeledger/src/logger"
	"github.com/username/stakeledger/src/models"
)

// TimeLayout is how timestamps are stored. Values are always UTC so the text
// order matches chronological order.
const TimeLayout = "2006-01-02 15:04:05"

// CommitTimeLayout keeps full precision for import bookkeeping, so a source
// modified within the second of a commit is still ordered correctly.
const CommitTimeLayout = "2006-01-02 15:04:05.000000000"

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const transactionColumns = `id, symbol, type, quantity, net_quantity, price, value, fees, currency, timestamp, hash_id`

// InsertTransactions writes the records in order and returns the assigned ids.
func InsertTransactions(ctx context.Context, db DBTX, txs []models.Transaction) ([]int64, error) {
	query := `
		INSERT INTO transactions (symbol, type, quantity, net_quantity, price, value, fees, currency, timestamp, hash_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	ids := make([]int64, 0, len(txs))
	for _, tx := range txs {
		var net sql.NullString
		if tx.NetQuantity.Valid {
			net = sql.NullString{String: tx.NetQuantity.Decimal.String(), Valid: true}
		}
		currency := sql.NullString{String: tx.Currency, Valid: tx.Currency != ""}

		res, err := db.ExecContext(ctx, query,
			tx.Symbol, string(tx.Type), tx.Quantity.String(), net,
			tx.Price.String(), tx.Value.String(), tx.Fees.String(), currency,
			tx.Timestamp.UTC().Format(TimeLayout), tx.HashID)
		if err != nil {
			return ids, fmt.Errorf("insert %s at %s: %w", tx.Symbol, tx.Timestamp.UTC().Format(TimeLayout), err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetTransactions returns the records of symbol, or all records when symbol is
// empty, ordered by timestamp then id.
func GetTransactions(ctx context.Context, db DBTX, symbol string) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions`
	var args []any
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY timestamp ASC, id ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			logger.L.Error("Error scanning transaction row", "error", err)
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func scanTransaction(rows *sql.Rows) (models.Transaction, error) {
	var tx models.Transaction
	var typ, quantity, price, value, fees, ts string
	var net, currency sql.NullString
	var err error
	if err = rows.Scan(&tx.ID, &tx.Symbol, &typ, &quantity, &net, &price, &value, &fees, &currency, &ts, &tx.HashID); err != nil {
		return tx, err
	}
	tx.Type = models.TxType(typ)
	tx.Currency = currency.String
	if tx.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return tx, fmt.Errorf("row %d quantity: %w", tx.ID, err)
	}
	if tx.Price, err = decimal.NewFromString(price); err != nil {
		return tx, fmt.Errorf("row %d price: %w", tx.ID, err)
	}
	if tx.Value, err = decimal.NewFromString(value); err != nil {
		return tx, fmt.Errorf("row %d value: %w", tx.ID, err)
	}
	if tx.Fees, err = decimal.NewFromString(fees); err != nil {
		return tx, fmt.Errorf("row %d fees: %w", tx.ID, err)
	}
	if net.Valid {
		d, err := decimal.NewFromString(net.String)
		if err != nil {
			return tx, fmt.Errorf("row %d net_quantity: %w", tx.ID, err)
		}
		tx.NetQuantity = decimal.NewNullDecimal(d)
	}
	if tx.Timestamp, err = time.ParseInLocation(TimeLayout, ts, time.UTC); err != nil {
		return tx, fmt.Errorf("row %d timestamp: %w", tx.ID, err)
	}
	return tx, nil
}

// CountTransactions returns the number of stored records.
func CountTransactions(ctx context.Context, db DBTX) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n)
	return n, err
}

// GetHashIDs returns the content hash of every stored record.
func GetHashIDs(ctx context.Context, db DBTX) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT hash_id FROM transactions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	hashes := make(map[string]bool)
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes[h] = true
	}
	return hashes, rows.Err()
}

// InsertImport appends a row to the imports history.
func InsertImport(ctx context.Context, db DBTX, rec models.ImportRecord, fixVersion string) error {
	query := `
		INSERT INTO imports (run_id, source, source_mtime, inserted, fix_version, committed_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query, rec.RunID, rec.Source,
		rec.SourceMTime.UTC().Format(CommitTimeLayout), rec.Inserted, fixVersion,
		rec.CommittedAt.UTC().Format(CommitTimeLayout))
	return err
}

// GetLastCommittedAt returns the commit time of the latest import, or the zero
// time when nothing was ever imported.
func GetLastCommittedAt(ctx context.Context, db DBTX) (time.Time, error) {
	var last sql.NullString
	if err := db.QueryRowContext(ctx, `SELECT MAX(committed_at) FROM imports`).Scan(&last); err != nil {
		return time.Time{}, err
	}
	if !last.Valid || last.String == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(CommitTimeLayout, last.String, time.UTC)
}

// GetImports lists the import history, newest first.
func GetImports(ctx context.Context, db DBTX, limit int) ([]models.ImportRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, source, source_mtime, inserted, committed_at
		FROM imports ORDER BY committed_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.ImportRecord
	for rows.Next() {
		var rec models.ImportRecord
		var mtime, committed string
		if err := rows.Scan(&rec.RunID, &rec.Source, &mtime, &rec.Inserted, &committed); err != nil {
			return nil, err
		}
		if rec.SourceMTime, err = time.ParseInLocation(CommitTimeLayout, mtime, time.UTC); err != nil {
			return nil, err
		}
		if rec.CommittedAt, err = time.ParseInLocation(CommitTimeLayout, committed, time.UTC); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
