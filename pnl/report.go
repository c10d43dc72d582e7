package pnl

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/viktsys/pnldash/models"
)

// ErrInvalidRange is returned for malformed or inverted date ranges.
var ErrInvalidRange = errors.New("invalid date range")

// Diagnostics counts the recoverable data problems met during a replay.
type Diagnostics struct {
	Trades            int `json:"trades"`
	UnknownSideTrades int `json:"unknown_side_trades"`
	DefaultedTimes    int `json:"defaulted_times"`
	UnmatchedSells    int `json:"unmatched_sells"`
	PartialSells      int `json:"partial_sells"`
	IgnoredBuys       int `json:"ignored_buys"`
}

// Report is the immutable result of one computation.
type Report struct {
	Method      Method                        `json:"method"`
	Location    string                        `json:"location"`
	Daily       map[string]models.DailyStat   `json:"daily"`
	Monthly     map[string]models.MonthlyStat `json:"monthly"`
	Pairs       map[string]models.PairStat    `json:"pairs"`
	Ledger      []Realization                 `json:"-"`
	Diagnostics Diagnostics                   `json:"diagnostics"`
}

// FilterByRange returns the daily stats between start and end inclusive.
func (r *Report) FilterByRange(start, end string) (map[string]models.DailyStat, error) {
	return FilterByRange(r.Daily, start, end)
}

// FilterByRange keeps the days in [start, end]; both are YYYY-MM-DD.
func FilterByRange(daily map[string]models.DailyStat, start, end string) (map[string]models.DailyStat, error) {
	s, err := time.Parse(DayLayout, start)
	if err != nil {
		return nil, fmt.Errorf("%w: start %q", ErrInvalidRange, start)
	}
	e, err := time.Parse(DayLayout, end)
	if err != nil {
		return nil, fmt.Errorf("%w: end %q", ErrInvalidRange, end)
	}
	if s.After(e) {
		return nil, fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange, start, end)
	}

	// ISO dates order lexically
	from, to := s.Format(DayLayout), e.Format(DayLayout)
	out := make(map[string]models.DailyStat)
	for date, stat := range daily {
		if date >= from && date <= to {
			out[date] = stat
		}
	}
	return out, nil
}

// PairsByProfit lists pair stats with the most profitable first.
func (r *Report) PairsByProfit() []models.PairStat {
	out := make([]models.PairStat, 0, len(r.Pairs))
	for _, p := range r.Pairs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].RealizedProfit.Cmp(out[j].RealizedProfit); c != 0 {
			return c > 0
		}
		return out[i].Pair < out[j].Pair
	})
	return out
}

// MonthsNewestFirst lists monthly stats, latest month first.
func (r *Report) MonthsNewestFirst() []models.MonthlyStat {
	out := make([]models.MonthlyStat, 0, len(r.Monthly))
	for _, m := range r.Monthly {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month > out[j].Month })
	return out
}

// Summary is the headline of a set of days.
type Summary struct {
	TotalTrades       int               `json:"total_trades"`
	TotalProfit       decimal.Decimal   `json:"total_profit"`
	TotalFees         decimal.Decimal   `json:"total_fees"`
	TotalVolume       decimal.Decimal   `json:"total_volume"`
	TradingDays       int               `json:"trading_days"`
	ProfitableDays    int               `json:"profitable_days"`
	ProfitableDaysPct decimal.Decimal   `json:"profitable_days_pct"`
	WinRate           decimal.Decimal   `json:"win_rate"`
	UnmatchedSells    int               `json:"unmatched_sells"`
	StartDate         string            `json:"start_date,omitempty"`
	EndDate           string            `json:"end_date,omitempty"`
	BestDay           *models.DailyStat `json:"best_day,omitempty"`
	WorstDay          *models.DailyStat `json:"worst_day,omitempty"`
}

// Summarize totals a set of daily stats. Ties for best and worst day go to
// the earlier date.
func Summarize(daily map[string]models.DailyStat) Summary {
	var sum Summary
	if len(daily) == 0 {
		return sum
	}

	dates := make([]string, 0, len(daily))
	for d := range daily {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	var winning, sells int
	for _, d := range dates {
		day := daily[d]
		sum.TotalTrades += day.TotalTrades
		sum.TotalProfit = sum.TotalProfit.Add(day.Profit)
		sum.TotalFees = sum.TotalFees.Add(day.Fees)
		sum.TotalVolume = sum.TotalVolume.Add(day.Volume)
		sum.UnmatchedSells += day.UnmatchedSellCount
		winning += day.WinningSells
		sells += day.SellCount
		if day.Profit.IsPositive() {
			sum.ProfitableDays++
		}

		if sum.BestDay == nil || day.Profit.GreaterThan(sum.BestDay.Profit) {
			best := day
			sum.BestDay = &best
		}
		if sum.WorstDay == nil || day.Profit.LessThan(sum.WorstDay.Profit) {
			worst := day
			sum.WorstDay = &worst
		}
	}

	sum.TradingDays = len(dates)
	sum.StartDate = dates[0]
	sum.EndDate = dates[len(dates)-1]
	sum.ProfitableDaysPct = decimal.NewFromInt(int64(sum.ProfitableDays)).Mul(hundred).
		Div(decimal.NewFromInt(int64(sum.TradingDays))).Round(2)
	sum.WinRate = WinRate(winning, sells)
	return sum
}
