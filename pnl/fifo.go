package pnl

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/viktsys/pnldash/models"
)

// Anomaly marks a sell that could not be fully matched against inventory.
type Anomaly string

const (
	AnomalyNone      Anomaly = ""
	AnomalyUnmatched Anomaly = "unmatched"
	AnomalyPartial   Anomaly = "partial"
)

// Lot is open inventory left by one buy.
type Lot struct {
	Amount   decimal.Decimal
	Cost     decimal.Decimal
	OpenedAt time.Time
}

// UnitCost is zero for an exhausted lot.
func (l Lot) UnitCost() decimal.Decimal {
	if !l.Amount.IsPositive() {
		return decimal.Zero
	}
	return l.Cost.Div(l.Amount)
}

// Position is the FIFO queue of open lots of one pair.
type Position struct {
	Pair string
	lots []Lot
}

// Open appends a lot to the tail of the queue.
func (p *Position) Open(amount, cost decimal.Decimal, at time.Time) {
	p.lots = append(p.lots, Lot{Amount: amount, Cost: cost, OpenedAt: at})
}

// Close consumes up to amount from the head of the queue and returns the
// quantity actually matched and its cost basis. A lot that is only partly
// used gives up a pro-rata share of its cost.
func (p *Position) Close(amount decimal.Decimal) (matched, cost decimal.Decimal) {
	remaining := amount
	for remaining.IsPositive() && len(p.lots) > 0 {
		lot := &p.lots[0]
		if lot.Amount.LessThanOrEqual(remaining) {
			matched = matched.Add(lot.Amount)
			cost = cost.Add(lot.Cost)
			remaining = remaining.Sub(lot.Amount)
			p.lots = p.lots[1:]
			continue
		}

		usedCost := lot.Cost.Mul(remaining).Div(lot.Amount)
		lot.Amount = lot.Amount.Sub(remaining)
		lot.Cost = lot.Cost.Sub(usedCost)
		matched = matched.Add(remaining)
		cost = cost.Add(usedCost)
		remaining = decimal.Zero
	}
	return matched, cost
}

// Lots returns a copy of the open lots, oldest first.
func (p *Position) Lots() []Lot {
	return append([]Lot(nil), p.lots...)
}

// Snapshot sums the open lots.
func (p *Position) Snapshot() models.OpenPosition {
	open := models.OpenPosition{Pair: p.Pair}
	for _, lot := range p.lots {
		open.Amount = open.Amount.Add(lot.Amount)
		open.Cost = open.Cost.Add(lot.Cost)
	}
	if open.Amount.IsPositive() {
		open.AverageUnitCost = open.Cost.Div(open.Amount)
	}
	return open
}

// Realization is the accounting outcome of one trade.
type Realization struct {
	Trade     models.Trade    `json:"trade"`
	Matched   decimal.Decimal `json:"matched"`
	CostBasis decimal.Decimal `json:"cost_basis"`
	Realized  decimal.Decimal `json:"realized"`
	Anomaly   Anomaly         `json:"anomaly,omitempty"`
}

// State owns every position of one replay. A new State is built for each
// computation and never shared between them.
type State struct {
	positions map[string]*Position
	// IgnoredBuys counts buys without a positive amount; they open no lot.
	IgnoredBuys int
}

func NewState() *State {
	return &State{positions: make(map[string]*Position)}
}

func (s *State) position(pair string) *Position {
	pos, ok := s.positions[pair]
	if !ok {
		pos = &Position{Pair: pair}
		s.positions[pair] = pos
	}
	return pos
}

// Position returns the queue of pair, or nil if the pair was never seen.
func (s *State) Position(pair string) *Position {
	return s.positions[pair]
}

// Apply books one trade. Trades of a pair must be applied in time order.
//
// A fully matched sell realizes total - cost basis - fee. A sell with no
// inventory realizes zero. A partly matched sell recognizes its proceeds
// and fee in proportion to the matched quantity.
func (s *State) Apply(t models.Trade) Realization {
	r := Realization{Trade: t}

	switch t.Side {
	case models.SideBuy:
		if !t.Amount.IsPositive() {
			s.IgnoredBuys++
			return r
		}
		s.position(t.Pair).Open(t.Amount, t.Total, t.Time)

	case models.SideSell:
		if !t.Amount.IsPositive() {
			r.Anomaly = AnomalyUnmatched
			return r
		}
		matched, cost := s.position(t.Pair).Close(t.Amount)
		r.Matched = matched
		r.CostBasis = cost

		switch {
		case matched.IsZero():
			r.Anomaly = AnomalyUnmatched
		case matched.LessThan(t.Amount):
			r.Anomaly = AnomalyPartial
			proceeds := t.Total.Mul(matched).Div(t.Amount)
			fee := t.Fee.Mul(matched).Div(t.Amount)
			r.Realized = proceeds.Sub(cost).Sub(fee)
		default:
			r.Realized = t.Total.Sub(cost).Sub(t.Fee)
		}
	}

	return r
}

// Snapshot returns the pairs that still hold inventory.
func (s *State) Snapshot() map[string]models.OpenPosition {
	out := make(map[string]models.OpenPosition)
	for pair, pos := range s.positions {
		open := pos.Snapshot()
		if open.Amount.IsPositive() {
			out[pair] = open
		}
	}
	return out
}

// Replay applies trades in the order given and returns the state it was
// handed together with one realization per trade.
func Replay(state *State, trades []models.Trade) (*State, []Realization) {
	out := make([]Realization, 0, len(trades))
	for _, t := range trades {
		out = append(out, state.Apply(t))
	}
	return state, out
}

func sideRank(s models.Side) int {
	switch s {
	case models.SideBuy:
		return 0
	case models.SideSell:
		return 1
	}
	return 2
}

// SortTrades returns a copy ordered by time. Buys go before sells at the
// same instant; otherwise input order is kept.
func SortTrades(trades []models.Trade) []models.Trade {
	sorted := append([]models.Trade(nil), trades...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		return sideRank(a.Side) < sideRank(b.Side)
	})
	return sorted
}
