package pnl

import (
	"fmt"
	"sort"
	"time"

	"github.com/viktsys/pnldash/models"
)

// Period is a dashboard date preset.
type Period string

const (
	PeriodAll    Period = "all"
	PeriodWeek   Period = "week"
	PeriodMonth  Period = "month"
	PeriodCustom Period = "custom"
)

// DateRange is an inclusive pair of YYYY-MM-DD dates. The zero value means
// no restriction.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (r DateRange) IsZero() bool { return r.Start == "" && r.End == "" }

// RangeForPeriod resolves a preset relative to now. week covers the last 7
// days and month the last 30; custom uses the given dates and falls back to
// the month preset for a missing bound.
func RangeForPeriod(p Period, now time.Time, customStart, customEnd string) (DateRange, error) {
	today := now.Format(DayLayout)
	switch p {
	case "", PeriodAll:
		return DateRange{}, nil
	case PeriodWeek:
		return DateRange{Start: now.AddDate(0, 0, -7).Format(DayLayout), End: today}, nil
	case PeriodMonth:
		return DateRange{Start: now.AddDate(0, 0, -30).Format(DayLayout), End: today}, nil
	case PeriodCustom:
		r := DateRange{Start: customStart, End: customEnd}
		if r.Start == "" {
			r.Start = now.AddDate(0, 0, -30).Format(DayLayout)
		}
		if r.End == "" {
			r.End = today
		}
		s, err := time.Parse(DayLayout, r.Start)
		if err != nil {
			return DateRange{}, fmt.Errorf("%w: start %q", ErrInvalidRange, r.Start)
		}
		e, err := time.Parse(DayLayout, r.End)
		if err != nil {
			return DateRange{}, fmt.Errorf("%w: end %q", ErrInvalidRange, r.End)
		}
		if s.After(e) {
			return DateRange{}, fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange, r.Start, r.End)
		}
		return r, nil
	}
	return DateRange{}, fmt.Errorf("unknown period %q", p)
}

// SortKey orders a list of days.
type SortKey string

const (
	SortByDate   SortKey = "date"
	SortByProfit SortKey = "profit"
)

// SortDays flattens daily stats into a list: by date oldest first, or by
// profit highest first with ties broken by date.
func SortDays(daily map[string]models.DailyStat, key SortKey) []models.DailyStat {
	out := make([]models.DailyStat, 0, len(daily))
	for _, d := range daily {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if key == SortByProfit {
			if c := out[i].Profit.Cmp(out[j].Profit); c != 0 {
				return c > 0
			}
		}
		return out[i].Date < out[j].Date
	})
	return out
}

// ProfitableOnly drops days whose realized profit is not positive.
func ProfitableOnly(days []models.DailyStat) []models.DailyStat {
	out := make([]models.DailyStat, 0, len(days))
	for _, d := range days {
		if d.Profit.IsPositive() {
			out = append(out, d)
		}
	}
	return out
}
