package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/username/stakeledger/src/logger"
	"github.com/username/stakeledger/src/models"
)

// SourceScanner discovers raw export files in the data directory.
type SourceScanner struct {
	dir     string
	pattern string
	ledger  LedgerService
}

func NewSourceScanner(dir, pattern string, ledger LedgerService) *SourceScanner {
	if pattern == "" {
		pattern = "*.csv"
	}
	return &SourceScanner{dir: dir, pattern: pattern, ledger: ledger}
}

// ListSources returns every matching file ordered by modification time, then name.
func (s *SourceScanner) ListSources() ([]models.SourceFile, error) {
	if _, err := filepath.Match(s.pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid source pattern %q: %w", s.pattern, err)
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSourceUnavailable, err)
	}

	var sources []models.SourceFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(s.pattern, entry.Name()); !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			logger.L.Warn("Could not stat source file", "name", entry.Name(), "error", err)
			continue
		}
		sources = append(sources, models.SourceFile{
			Name:    entry.Name(),
			Path:    filepath.Join(s.dir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(sources, func(i, j int) bool {
		if !sources[i].ModTime.Equal(sources[j].ModTime) {
			return sources[i].ModTime.Before(sources[j].ModTime)
		}
		return sources[i].Name < sources[j].Name
	})
	return sources, nil
}

// ListNewSources returns the sources not yet absorbed: all of them when the
// ledger is empty, otherwise those modified after the ledger's last merge.
func (s *SourceScanner) ListNewSources(ctx context.Context) ([]models.SourceFile, error) {
	sources, err := s.ListSources()
	if err != nil {
		return nil, err
	}

	count, err := s.ledger.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return sources, nil
	}

	lastModified, err := s.ledger.LastModified(ctx)
	if err != nil {
		return nil, err
	}
	var fresh []models.SourceFile
	for _, src := range sources {
		if src.ModTime.After(lastModified) {
			fresh = append(fresh, src)
		}
	}
	return fresh, nil
}
