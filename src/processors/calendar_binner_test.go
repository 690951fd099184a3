package processors

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/stakeledger/src/models"
)

func date(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func TestMonthBins_Scenario(t *testing.T) {
	edges, err := MonthBins([]time.Time{date(2024, 1, 15, 9), date(2024, 2, 10, 0), date(2024, 3, 3, 18)})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		date(2024, 1, 1, 0),
		date(2024, 2, 1, 0),
		date(2024, 3, 1, 0),
		date(2024, 4, 1, 0),
	}, edges)
}

func TestMonthBins_CrossesYear(t *testing.T) {
	edges, err := MonthBins([]time.Time{date(2023, 11, 30, 0), date(2024, 1, 31, 23)})
	require.NoError(t, err)
	require.Len(t, edges, 4)
	assert.Equal(t, date(2023, 11, 1, 0), edges[0])
	assert.Equal(t, date(2024, 2, 1, 0), edges[3])
}

func TestMonthBins_SingleTimestamp(t *testing.T) {
	edges, err := MonthBins([]time.Time{date(2024, 2, 29, 12)})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{date(2024, 2, 1, 0), date(2024, 3, 1, 0)}, edges)
}

func TestWeekBins(t *testing.T) {
	// Wed Jan 17 2024 through Sun Mar 3 2024
	ts := []time.Time{date(2024, 1, 17, 14), date(2024, 2, 1, 0), date(2024, 3, 3, 23)}
	edges, err := WeekBins(ts)
	require.NoError(t, err)

	assert.Equal(t, date(2024, 1, 15, 0), edges[0])
	assert.Equal(t, date(2024, 3, 4, 0), edges[len(edges)-1])
	for i, e := range edges {
		assert.Equal(t, time.Monday, e.Weekday(), "edge %d", i)
		assert.Equal(t, 0, e.Hour()+e.Minute()+e.Second())
		if i > 0 {
			assert.Equal(t, 7*24*time.Hour, e.Sub(edges[i-1]))
		}
	}
	assert.True(t, edges[len(edges)-1].After(ts[len(ts)-1]))
}

func TestWeekBins_MondayMidnightLastPoint(t *testing.T) {
	ts := []time.Time{date(2024, 1, 15, 0), date(2024, 1, 22, 0)}
	edges, err := WeekBins(ts)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{date(2024, 1, 15, 0), date(2024, 1, 22, 0), date(2024, 1, 29, 0)}, edges)
}

func TestBins_Empty(t *testing.T) {
	_, err := WeekBins(nil)
	assert.ErrorIs(t, err, models.ErrEmptyRange)
	_, err = MonthBins([]time.Time{})
	assert.ErrorIs(t, err, models.ErrEmptyRange)
}

func TestParseBinWidth(t *testing.T) {
	for in, want := range map[string]BinWidth{"": BinNone, "none": BinNone, "week": BinWeek, "month": BinMonth} {
		got, err := ParseBinWidth(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseBinWidth("day")
	assert.Error(t, err)
}

func TestSumByBin(t *testing.T) {
	ts := []time.Time{date(2024, 1, 15, 9), date(2024, 1, 20, 0), date(2024, 2, 10, 0), date(2024, 3, 3, 18)}
	values := []decimal.Decimal{dec("0.05"), dec("0.04"), dec("0.06"), dec("0.07")}
	edges, err := MonthBins(ts)
	require.NoError(t, err)

	totals := SumByBin(ts, values, edges)
	require.Len(t, totals, 3)
	assert.Equal(t, "0.09", totals[0].Total.String())
	assert.Equal(t, 2, totals[0].Count)
	assert.Equal(t, "0.06", totals[1].Total.String())
	assert.Equal(t, "0.07", totals[2].Total.String())
	assert.Equal(t, date(2024, 3, 1, 0), totals[2].Start)
	assert.Equal(t, date(2024, 4, 1, 0), totals[2].End)
}
