package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/stakeledger/src/models"
)

func TestListSources_OrderAndPattern(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	copyTestdata(t, "activity_2024q2.csv", dir, base.Add(time.Hour))
	copyTestdata(t, "activity_2024q1.csv", dir, base)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive.csv"), 0o755))

	ledger, _ := newTestLedger(t)
	sources, err := NewSourceScanner(dir, "*.csv", ledger).ListSources()
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "activity_2024q1.csv", sources[0].Name)
	assert.Equal(t, "activity_2024q2.csv", sources[1].Name)
	assert.Equal(t, filepath.Join(dir, "activity_2024q1.csv"), sources[0].Path)
	assert.Positive(t, sources[0].Size)
}

func TestListSources_SameMTimeOrdersByName(t *testing.T) {
	dir := t.TempDir()
	mtime := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	copyTestdata(t, "activity_2024q2.csv", dir, mtime)
	copyTestdata(t, "activity_2024q1.csv", dir, mtime)

	ledger, _ := newTestLedger(t)
	sources, err := NewSourceScanner(dir, "", ledger).ListSources()
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "activity_2024q1.csv", sources[0].Name)
}

func TestListNewSources(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	old := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	copyTestdata(t, "activity_2024q1.csv", dir, old)

	ledger, _ := newTestLedger(t)
	scanner := NewSourceScanner(dir, "*.csv", ledger)

	// Empty ledger: everything is new.
	sources, err := scanner.ListNewSources(ctx)
	require.NoError(t, err)
	assert.Len(t, sources, 1)

	setLedgerClock(ledger, old.Add(24*time.Hour))
	_, err = ledger.Merge(ctx, scenarioBatch())
	require.NoError(t, err)

	sources, err = scanner.ListNewSources(ctx)
	require.NoError(t, err)
	assert.Empty(t, sources)

	copyTestdata(t, "activity_2024q2.csv", dir, old.Add(48*time.Hour))
	sources, err = scanner.ListNewSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "activity_2024q2.csv", sources[0].Name)
}

func TestListSources_UnreadableDirectory(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, err := NewSourceScanner(filepath.Join(t.TempDir(), "missing"), "*.csv", ledger).ListSources()
	assert.ErrorIs(t, err, models.ErrSourceUnavailable)
}

func TestListSources_BadPattern(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, err := NewSourceScanner(t.TempDir(), "[", ledger).ListSources()
	assert.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrSourceUnavailable)
}
