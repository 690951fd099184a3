package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/username/stakeledger/src/logger"
	"github.com/username/stakeledger/src/model"
	"github.com/username/stakeledger/src/models"
	"github.com/username/stakeledger/src/processors"
)

type ledgerServiceImpl struct {
	db         *sql.DB
	reconciler *processors.Reconciler
	now        func() time.Time
}

// NewLedgerService wraps an open, migrated database. The caller keeps ownership
// of db. Merges are single-writer: concurrent Merge calls against the same file
// from several processes are not supported.
func NewLedgerService(db *sql.DB, reconciler *processors.Reconciler) LedgerService {
	return &ledgerServiceImpl{db: db, reconciler: reconciler, now: time.Now}
}

func (s *ledgerServiceImpl) Read(ctx context.Context, symbol string) ([]models.Transaction, error) {
	return model.GetTransactions(ctx, s.db, symbol)
}

func (s *ledgerServiceImpl) Count(ctx context.Context) (int, error) {
	return model.CountTransactions(ctx, s.db)
}

func (s *ledgerServiceImpl) LastModified(ctx context.Context) (time.Time, error) {
	return model.GetLastCommittedAt(ctx, s.db)
}

func (s *ledgerServiceImpl) History(ctx context.Context, limit int) ([]models.ImportRecord, error) {
	return model.GetImports(ctx, s.db, limit)
}

func (s *ledgerServiceImpl) Merge(ctx context.Context, records []models.Transaction) (models.MergeResult, error) {
	return s.MergeSource(ctx, models.SourceFile{Name: "direct"}, records)
}

// MergeSource appends the records whose content is not already stored. Content
// identity covers every non-derived field; a record that only collides on
// (symbol, timestamp) is a duplicate as well. The residual is reconciled with the
// store size as offset and inserted in one transaction together with the import
// history row. Any insert failure rolls everything back.
func (s *ledgerServiceImpl) MergeSource(ctx context.Context, source models.SourceFile, records []models.Transaction) (models.MergeResult, error) {
	var result models.MergeResult

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin merge transaction: %w", err)
	}
	defer dbTx.Rollback()

	existing, err := model.GetTransactions(ctx, dbTx, "")
	if err != nil {
		return result, fmt.Errorf("failed to load ledger: %w", err)
	}

	contents, err := model.GetHashIDs(ctx, dbTx)
	if err != nil {
		return result, fmt.Errorf("failed to load content hashes: %w", err)
	}
	identities := make(map[models.IdentityKey]bool, len(existing))
	for _, tx := range existing {
		identities[tx.Identity()] = true
	}

	residual := make([]models.Transaction, 0, len(records))
	for _, tx := range records {
		hash := processors.ContentHash(tx)
		if contents[hash] {
			result.Duplicates++
			continue
		}
		if identities[tx.Identity()] {
			logger.L.Debug("Dropping record that collides on symbol and timestamp",
				"symbol", tx.Symbol, "timestamp", tx.Timestamp, "error", models.ErrDuplicateRecord)
			result.Duplicates++
			continue
		}
		contents[hash] = true
		identities[tx.Identity()] = true
		tx.HashID = hash
		residual = append(residual, tx)
	}

	reconciled, recErr := s.reconciler.Reconcile(residual, len(existing))
	if recErr != nil {
		var merr *multierror.Error
		if errors.As(recErr, &merr) {
			result.ReconcileFailure = len(merr.Errors)
		}
		logger.L.Warn("Some records were stored without a net quantity", "source", source.Name, "count", result.ReconcileFailure, "error", recErr)
	}

	if _, err := model.InsertTransactions(ctx, dbTx, reconciled); err != nil {
		logger.L.Error("Ledger merge aborted", "source", source.Name, "error", err)
		return models.MergeResult{}, fmt.Errorf("%w: %v", models.ErrStoreIntegrity, err)
	}

	record := models.ImportRecord{
		RunID:       uuid.NewString(),
		Source:      source.Name,
		SourceMTime: source.ModTime,
		Inserted:    len(reconciled),
		CommittedAt: s.now(),
	}
	if err := model.InsertImport(ctx, dbTx, record, s.reconciler.Fixes().Version); err != nil {
		return models.MergeResult{}, fmt.Errorf("%w: failed to record import: %v", models.ErrStoreIntegrity, err)
	}

	if err := dbTx.Commit(); err != nil {
		return models.MergeResult{}, fmt.Errorf("%w: commit failed: %v", models.ErrStoreIntegrity, err)
	}

	result.Inserted = len(reconciled)
	logger.L.Info("Ledger merge committed", "source", source.Name, "runID", record.RunID,
		"inserted", result.Inserted, "duplicates", result.Duplicates)
	return result, nil
}
