package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/username/stakeledger/src/logger"
	"github.com/username/stakeledger/src/models"
	"github.com/username/stakeledger/src/parsers"
	"github.com/username/stakeledger/src/parsers/export"
	"github.com/username/stakeledger/src/processors"
	"github.com/username/stakeledger/src/security/validation"
)

type importServiceImpl struct {
	scanner         *SourceScanner
	normalizer      *processors.Normalizer
	ledger          LedgerService
	format          string
	updateFrequency time.Duration
	now             func() time.Time
}

// NewImportService wires the scanner, the export parser, the normalizer and the
// ledger into the write path.
func NewImportService(scanner *SourceScanner, ledger LedgerService, updateFrequency time.Duration) ImportService {
	if updateFrequency <= 0 {
		updateFrequency = 24 * time.Hour
	}
	return &importServiceImpl{
		scanner:         scanner,
		normalizer:      processors.NewNormalizer(),
		ledger:          ledger,
		format:          export.Format,
		updateFrequency: updateFrequency,
		now:             time.Now,
	}
}

// Run merges every new source into the ledger, oldest first. Unreadable rows and
// unreadable files are skipped and counted; a store integrity error stops the
// run with that source's batch rolled back.
func (s *importServiceImpl) Run(ctx context.Context) (*ImportSummary, error) {
	log := logger.FromContext(ctx)
	summary := &ImportSummary{Sources: []string{}}

	count, err := s.ledger.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger size: %w", err)
	}

	sources, err := s.scanner.ListNewSources(ctx)
	if err != nil {
		if errors.Is(err, models.ErrSourceUnavailable) && count > 0 {
			log.Warn("Source directory unavailable, keeping existing ledger", "error", err)
			summary.Warning = err.Error()
			return summary, nil
		}
		return nil, err
	}
	if len(sources) == 0 {
		log.Info("No new sources to import")
		return summary, nil
	}

	var failed *multierror.Error
	for _, src := range sources {
		result, skipped, err := s.importSource(ctx, src)
		summary.SkippedRows += skipped
		if err != nil {
			if errors.Is(err, models.ErrStoreIntegrity) {
				return summary, err
			}
			log.Warn("Skipping source", "source", src.Name, "error", err)
			summary.FailedSources++
			failed = multierror.Append(failed, err)
			continue
		}
		summary.Sources = append(summary.Sources, src.Name)
		summary.Inserted += result.Inserted
		summary.Duplicates += result.Duplicates
		summary.ReconcileFailures += result.ReconcileFailure
	}

	if err := failed.ErrorOrNil(); err != nil {
		summary.Warning = err.Error()
	}
	log.Info("Import finished", "sources", len(summary.Sources), "inserted", summary.Inserted,
		"duplicates", summary.Duplicates, "skippedRows", summary.SkippedRows, "failedSources", summary.FailedSources)
	return summary, nil
}

func (s *importServiceImpl) importSource(ctx context.Context, src models.SourceFile) (models.MergeResult, int, error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return models.MergeResult{}, 0, fmt.Errorf("%w: %v", models.ErrSourceUnavailable, err)
	}
	defer f.Close()

	if _, err := validation.ValidateFileContentByMagicBytes(f); err != nil {
		return models.MergeResult{}, 0, fmt.Errorf("%w: %s: %v", models.ErrParse, src.Name, err)
	}

	parsed, err := parsers.ParseSource(s.format, f, src.Name)
	if err != nil {
		return models.MergeResult{}, 0, fmt.Errorf("%w: %s: %v", models.ErrParse, src.Name, err)
	}
	skipped := 0
	if parsed.Skipped != nil {
		skipped = len(parsed.Skipped.Errors)
	}

	txs, err := s.normalizer.Normalize(parsed.Rows)
	if err != nil {
		var merr *multierror.Error
		if errors.As(err, &merr) {
			skipped += len(merr.Errors)
		}
	}

	result, err := s.ledger.MergeSource(ctx, src, txs)
	return result, skipped, err
}

// Freshness reports whether the newest source file is recent enough. It never
// blocks ingestion.
func (s *importServiceImpl) Freshness(ctx context.Context) (models.Freshness, error) {
	sources, err := s.scanner.ListSources()
	if err != nil {
		return models.Freshness{}, err
	}
	if len(sources) == 0 {
		return models.Freshness{UpToDate: false}, nil
	}

	// sources are ordered by modification time
	newest := sources[len(sources)-1]

	now := s.now()
	elapsed := now.Sub(newest.ModTime)
	fresh := models.Freshness{
		UpToDate:    newest.ModTime.After(now.Add(-s.updateFrequency)),
		NewestFile:  newest.Name,
		NewestMTime: newest.ModTime,
		ElapsedDays: int(math.Floor(elapsed.Hours() / 24)),
	}
	if !fresh.UpToDate {
		logger.FromContext(ctx).Warn("Source exports are stale", "newest", newest.Name, "elapsedDays", fresh.ElapsedDays)
	}
	return fresh, nil
}
