package processors

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/stakeledger/src/models"
)

const week = 7 * 24 * time.Hour

// BinWidth selects the calendar grid used for aggregation.
type BinWidth string

const (
	BinNone  BinWidth = ""
	BinWeek  BinWidth = "week"
	BinMonth BinWidth = "month"
)

// ParseBinWidth accepts "", "none", "week" and "month".
func ParseBinWidth(s string) (BinWidth, error) {
	switch BinWidth(s) {
	case BinNone, "none":
		return BinNone, nil
	case BinWeek, BinMonth:
		return BinWidth(s), nil
	}
	return BinNone, fmt.Errorf("unknown bin width %q (want week or month)", s)
}

// Bins dispatches to WeekBins or MonthBins.
func Bins(width BinWidth, timestamps []time.Time) ([]time.Time, error) {
	switch width {
	case BinWeek:
		return WeekBins(timestamps)
	case BinMonth:
		return MonthBins(timestamps)
	}
	return nil, fmt.Errorf("no calendar grid for bin width %q", width)
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// WeekBins returns 7-day edges starting at the Monday on or before the first
// timestamp and ending at the first Monday strictly after the last one.
// timestamps must be ascending.
func WeekBins(timestamps []time.Time) ([]time.Time, error) {
	if len(timestamps) == 0 {
		return nil, models.ErrEmptyRange
	}
	first, last := timestamps[0], timestamps[len(timestamps)-1]

	day := midnight(first)
	sinceMonday := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -sinceMonday)

	n := int(last.Sub(start)/week) + 2
	edges := make([]time.Time, n)
	for i := range edges {
		edges[i] = start.AddDate(0, 0, 7*i)
	}
	return edges, nil
}

// MonthBins returns the first of every month from the first timestamp's month
// through the month after the last timestamp's month. timestamps must be ascending.
func MonthBins(timestamps []time.Time) ([]time.Time, error) {
	if len(timestamps) == 0 {
		return nil, models.ErrEmptyRange
	}
	first, last := timestamps[0], timestamps[len(timestamps)-1]

	start := time.Date(first.Year(), first.Month(), 1, 0, 0, 0, 0, first.Location())
	end := time.Date(last.Year(), last.Month()+1, 1, 0, 0, 0, 0, first.Location())

	var edges []time.Time
	for m := 0; ; m++ {
		edge := time.Date(start.Year(), start.Month()+time.Month(m), 1, 0, 0, 0, 0, start.Location())
		edges = append(edges, edge)
		if !edge.Before(end) {
			break
		}
	}
	return edges, nil
}

// SumByBin totals values into the [edges[i], edges[i+1]) windows. Points outside
// the edges are ignored.
func SumByBin(timestamps []time.Time, values []decimal.Decimal, edges []time.Time) []models.BinTotal {
	if len(edges) < 2 {
		return nil
	}
	totals := make([]models.BinTotal, len(edges)-1)
	for i := range totals {
		totals[i] = models.BinTotal{Start: edges[i], End: edges[i+1], Total: decimal.Zero}
	}
	for i, ts := range timestamps {
		if i >= len(values) {
			break
		}
		// index of the last edge <= ts
		idx := sort.Search(len(edges), func(j int) bool { return edges[j].After(ts) }) - 1
		if idx < 0 || idx >= len(totals) {
			continue
		}
		totals[idx].Total = totals[idx].Total.Add(values[i])
		totals[idx].Count++
	}
	return totals
}
