package pnl

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/viktsys/pnldash/models"
)

// Method selects the inventory accounting policy.
type Method string

// MethodFIFO matches sells against the oldest open buys first. It is the
// only supported method.
const MethodFIFO Method = "fifo"

const (
	DayLayout   = "2006-01-02"
	MonthLayout = "2006-01"
)

var (
	// ErrEmptyInput is returned when there is nothing to compute.
	ErrEmptyInput = errors.New("no trades to compute")
	// ErrUnsupportedMethod is returned by NewEngine for any method but FIFO.
	ErrUnsupportedMethod = errors.New("unsupported accounting method")
)

type Config struct {
	Method Method
	// Location decides which calendar day and month a trade belongs to.
	Location *time.Location
}

// Options narrow a single computation.
type Options struct {
	// Pairs restricts the computation to these symbols (case-insensitive).
	Pairs []string
}

type Engine struct {
	method   Method
	location *time.Location
}

func NewEngine(cfg Config) (*Engine, error) {
	method := cfg.Method
	if method == "" {
		method = MethodFIFO
	}
	if method != MethodFIFO {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, cfg.Method)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{method: method, location: loc}, nil
}

func (e *Engine) Method() Method { return e.method }

func (e *Engine) Location() *time.Location { return e.location }

// Compute replays trades through fresh FIFO state and aggregates realized
// P&L by day, month and pair. The input slice is not modified. Inventory
// anomalies never fail the computation; they are counted in the report.
func (e *Engine) Compute(trades []models.Trade, opts Options) (*Report, error) {
	selected := selectPairs(trades, opts.Pairs)
	if len(selected) == 0 {
		return nil, ErrEmptyInput
	}

	sorted := SortTrades(selected)
	state := NewState()

	days := make(map[string]*bucket)
	months := make(map[string]*bucket)
	pairs := make(map[string]*pairAccumulator)
	var ledger []Realization
	var diag Diagnostics

	var dayKey, monthKey string
	closeBuckets := func(monthChanged bool) {
		if dayKey == "" {
			return
		}
		open := state.Snapshot()
		days[dayKey].open = open
		if monthChanged {
			months[monthKey].open = open
		}
	}

	for _, t := range sorted {
		local := t.Time.In(e.location)
		dk, mk := local.Format(DayLayout), local.Format(MonthLayout)
		if dk != dayKey {
			closeBuckets(mk != monthKey)
			dayKey = dk
			if _, ok := days[dk]; !ok {
				days[dk] = newBucket()
			}
		}
		if mk != monthKey {
			monthKey = mk
			if _, ok := months[mk]; !ok {
				months[mk] = newBucket()
			}
		}

		r := state.Apply(t)

		days[dk].add(r)
		months[mk].add(r)
		acc, ok := pairs[t.Pair]
		if !ok {
			acc = &pairAccumulator{pair: t.Pair}
			pairs[t.Pair] = acc
		}
		acc.add(r)

		diag.Trades++
		if t.TimeDefaulted {
			diag.DefaultedTimes++
		}
		switch t.Side {
		case models.SideSell:
			ledger = append(ledger, r)
			switch r.Anomaly {
			case AnomalyUnmatched:
				diag.UnmatchedSells++
			case AnomalyPartial:
				diag.PartialSells++
			}
		case models.SideUnknown:
			diag.UnknownSideTrades++
		}
	}
	closeBuckets(true)
	diag.IgnoredBuys = state.IgnoredBuys

	report := &Report{
		Method:      e.method,
		Location:    e.location.String(),
		Daily:       make(map[string]models.DailyStat, len(days)),
		Monthly:     make(map[string]models.MonthlyStat, len(months)),
		Pairs:       make(map[string]models.PairStat, len(pairs)),
		Ledger:      ledger,
		Diagnostics: diag,
	}
	for key, b := range days {
		report.Daily[key] = models.DailyStat{Date: key, PeriodStat: b.finish()}
	}
	for key, b := range months {
		report.Monthly[key] = models.MonthlyStat{Month: key, MonthLabel: monthLabel(key), PeriodStat: b.finish()}
	}
	for pair, acc := range pairs {
		pos := state.Position(pair)
		var open models.OpenPosition
		if pos != nil {
			open = pos.Snapshot()
		} else {
			open = models.OpenPosition{Pair: pair}
		}
		report.Pairs[pair] = acc.finish(open)
	}

	return report, nil
}

func selectPairs(trades []models.Trade, pairs []string) []models.Trade {
	if len(pairs) == 0 {
		return trades
	}
	want := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		if p = strings.TrimSpace(p); p != "" {
			want[strings.ToUpper(p)] = true
		}
	}
	if len(want) == 0 {
		return trades
	}
	var out []models.Trade
	for _, t := range trades {
		if want[strings.ToUpper(t.Pair)] {
			out = append(out, t)
		}
	}
	return out
}

func monthLabel(key string) string {
	t, err := time.Parse(MonthLayout, key)
	if err != nil {
		return key
	}
	return t.Format("January 2006")
}
