package pnl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viktsys/pnldash/models"
)

func day(date, profit string, sells, winning int) models.DailyStat {
	return models.DailyStat{
		Date: date,
		PeriodStat: models.PeriodStat{
			Profit:       dec(profit),
			Volume:       dec("100"),
			Fees:         dec("0.1"),
			SellCount:    sells,
			WinningSells: winning,
			TotalTrades:  sells + 1,
		},
	}
}

func TestWinRate(t *testing.T) {
	assertDecimal(t, "100", WinRate(0, 0))
	assertDecimal(t, "0", WinRate(0, 4))
	assertDecimal(t, "33.33", WinRate(1, 3))
	assertDecimal(t, "66.67", WinRate(2, 3))
}

func TestSummarize(t *testing.T) {
	daily := map[string]models.DailyStat{
		"2024-01-01": day("2024-01-01", "0", 0, 0),
		"2024-01-02": day("2024-01-02", "12.5", 2, 2),
		"2024-01-03": day("2024-01-03", "-4", 2, 0),
		"2024-01-04": day("2024-01-04", "12.5", 1, 1),
	}

	sum := Summarize(daily)

	assert.Equal(t, 4, sum.TradingDays)
	assert.Equal(t, 2, sum.ProfitableDays)
	assertDecimal(t, "50", sum.ProfitableDaysPct)
	assertDecimal(t, "21", sum.TotalProfit)
	assertDecimal(t, "400", sum.TotalVolume)
	assertDecimal(t, "0.4", sum.TotalFees)
	assert.Equal(t, 9, sum.TotalTrades)
	assertDecimal(t, "60", sum.WinRate)
	assert.Equal(t, "2024-01-01", sum.StartDate)
	assert.Equal(t, "2024-01-04", sum.EndDate)

	require.NotNil(t, sum.BestDay)
	assert.Equal(t, "2024-01-02", sum.BestDay.Date)
	require.NotNil(t, sum.WorstDay)
	assert.Equal(t, "2024-01-03", sum.WorstDay.Date)
}

func TestSummarize_Empty(t *testing.T) {
	sum := Summarize(nil)
	assert.Zero(t, sum.TradingDays)
	assert.Nil(t, sum.BestDay)
	assert.Empty(t, sum.StartDate)
}

func TestReport_Ordering(t *testing.T) {
	report := &Report{
		Monthly: map[string]models.MonthlyStat{
			"2023-12": {Month: "2023-12"},
			"2024-02": {Month: "2024-02"},
			"2024-01": {Month: "2024-01"},
		},
		Pairs: map[string]models.PairStat{
			"ETHUSDT": {Pair: "ETHUSDT", RealizedProfit: dec("5")},
			"BTCUSDT": {Pair: "BTCUSDT", RealizedProfit: dec("5")},
			"SOLUSDT": {Pair: "SOLUSDT", RealizedProfit: dec("12")},
		},
	}

	months := report.MonthsNewestFirst()
	require.Len(t, months, 3)
	assert.Equal(t, "2024-02", months[0].Month)
	assert.Equal(t, "2023-12", months[2].Month)

	pairs := report.PairsByProfit()
	require.Len(t, pairs, 3)
	assert.Equal(t, "SOLUSDT", pairs[0].Pair)
	assert.Equal(t, "BTCUSDT", pairs[1].Pair)
	assert.Equal(t, "ETHUSDT", pairs[2].Pair)
}

func TestRangeForPeriod(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	r, err := RangeForPeriod(PeriodAll, now, "", "")
	require.NoError(t, err)
	assert.True(t, r.IsZero())

	r, err = RangeForPeriod(PeriodWeek, now, "", "")
	require.NoError(t, err)
	assert.Equal(t, DateRange{Start: "2024-03-08", End: "2024-03-15"}, r)

	r, err = RangeForPeriod(PeriodMonth, now, "", "")
	require.NoError(t, err)
	assert.Equal(t, DateRange{Start: "2024-02-14", End: "2024-03-15"}, r)

	r, err = RangeForPeriod(PeriodCustom, now, "2024-01-01", "")
	require.NoError(t, err)
	assert.Equal(t, DateRange{Start: "2024-01-01", End: "2024-03-15"}, r)

	_, err = RangeForPeriod(PeriodCustom, now, "2024-04-01", "2024-03-01")
	require.ErrorIs(t, err, ErrInvalidRange)

	_, err = RangeForPeriod("quarter", now, "", "")
	require.Error(t, err)
}

func TestSortDays(t *testing.T) {
	daily := map[string]models.DailyStat{
		"2024-01-03": day("2024-01-03", "5", 1, 1),
		"2024-01-01": day("2024-01-01", "-1", 1, 0),
		"2024-01-02": day("2024-01-02", "5", 1, 1),
	}

	byDate := SortDays(daily, SortByDate)
	assert.Equal(t, "2024-01-01", byDate[0].Date)
	assert.Equal(t, "2024-01-03", byDate[2].Date)

	byProfit := SortDays(daily, SortByProfit)
	assert.Equal(t, "2024-01-02", byProfit[0].Date)
	assert.Equal(t, "2024-01-03", byProfit[1].Date)
	assert.Equal(t, "2024-01-01", byProfit[2].Date)

	profitable := ProfitableOnly(byDate)
	require.Len(t, profitable, 2)
	assert.Equal(t, "2024-01-02", profitable[0].Date)
}
