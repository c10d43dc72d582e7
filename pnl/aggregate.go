package pnl

import (
	"github.com/shopspring/decimal"
	"github.com/viktsys/pnldash/models"
)

var hundred = decimal.NewFromInt(100)

// WinRate is the share of sells with positive realized P&L, in percent.
// A bucket without sells has nothing that lost, so it reports 100.
func WinRate(winning, sells int) decimal.Decimal {
	if sells == 0 {
		return hundred
	}
	return decimal.NewFromInt(int64(winning)).Mul(hundred).Div(decimal.NewFromInt(int64(sells))).Round(2)
}

// bucket accumulates one day or month.
type bucket struct {
	stat  models.PeriodStat
	pairs map[string]*models.PairBreakdown
	open  map[string]models.OpenPosition
}

func newBucket() *bucket {
	return &bucket{pairs: make(map[string]*models.PairBreakdown)}
}

func (b *bucket) add(r Realization) {
	t := r.Trade
	s := &b.stat

	pb, ok := b.pairs[t.Pair]
	if !ok {
		pb = &models.PairBreakdown{Pair: t.Pair}
		b.pairs[t.Pair] = pb
	}

	s.TotalTrades++
	s.Volume = s.Volume.Add(t.Total)
	s.Fees = s.Fees.Add(t.Fee)
	pb.Trades++
	pb.Volume = pb.Volume.Add(t.Total)
	pb.Fees = pb.Fees.Add(t.Fee)

	switch t.Side {
	case models.SideBuy:
		s.BuyCount++
		s.BuyValue = s.BuyValue.Add(t.Total)
		pb.BuyCount++
	case models.SideSell:
		s.SellCount++
		s.SellValue = s.SellValue.Add(t.Total)
		s.Profit = s.Profit.Add(r.Realized)
		pb.SellCount++
		pb.Profit = pb.Profit.Add(r.Realized)
		if r.Realized.IsPositive() {
			s.WinningSells++
		}
		switch r.Anomaly {
		case AnomalyUnmatched:
			s.UnmatchedSellCount++
		case AnomalyPartial:
			s.PartialSellCount++
		}
	}
}

func (b *bucket) finish() models.PeriodStat {
	stat := b.stat
	stat.WinRate = WinRate(stat.WinningSells, stat.SellCount)
	stat.PairBreakdown = make(map[string]models.PairBreakdown, len(b.pairs))
	for pair, pb := range b.pairs {
		stat.PairBreakdown[pair] = *pb
	}
	stat.OpenPositions = b.open
	if stat.OpenPositions == nil {
		stat.OpenPositions = map[string]models.OpenPosition{}
	}
	return stat
}

type pairAccumulator struct {
	pair         string
	stat         models.PairStat
	winningSells int
}

func (a *pairAccumulator) add(r Realization) {
	t := r.Trade
	s := &a.stat

	s.TradeCount++
	s.TotalFees = s.TotalFees.Add(t.Fee)

	switch t.Side {
	case models.SideBuy:
		s.BuyCount++
		s.TotalBuyValue = s.TotalBuyValue.Add(t.Total)
	case models.SideSell:
		s.SellCount++
		s.TotalSellValue = s.TotalSellValue.Add(t.Total)
		s.RealizedProfit = s.RealizedProfit.Add(r.Realized)
		s.CostBasisConsumed = s.CostBasisConsumed.Add(r.CostBasis)
		if r.Realized.IsPositive() {
			a.winningSells++
		}
		switch r.Anomaly {
		case AnomalyUnmatched:
			s.UnmatchedSellCount++
		case AnomalyPartial:
			s.PartialSellCount++
		}
	}
}

func (a *pairAccumulator) finish(open models.OpenPosition) models.PairStat {
	stat := a.stat
	stat.Pair = a.pair
	stat.GrossCashFlow = stat.TotalSellValue.Sub(stat.TotalBuyValue).Sub(stat.TotalFees)
	if stat.TotalBuyValue.IsPositive() {
		stat.ProfitPercentage = stat.RealizedProfit.Mul(hundred).Div(stat.TotalBuyValue).Round(2)
	}
	stat.WinRate = WinRate(a.winningSells, stat.SellCount)
	stat.OpenPosition = open
	return stat
}
