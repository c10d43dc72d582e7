package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnknownPair is used when a row carries no instrument column or value.
const UnknownPair = "UNKNOWN"

// Side is the direction of a fill.
type Side string

const (
	SideBuy     Side = "Buy"
	SideSell    Side = "Sell"
	SideUnknown Side = "Unknown"
)

// Trade is one normalized execution fill. It is never mutated after
// normalization. Fingerprint identifies the fill by content, so the same
// fill read again from any file is stored once.
type Trade struct {
	ID            uint            `gorm:"primaryKey" json:"-"`
	Pair          string          `gorm:"size:32;index:idx_trades_pair_time" json:"pair"`
	Time          time.Time       `gorm:"index:idx_trades_pair_time" json:"time"`
	TimeDefaulted bool            `json:"time_defaulted,omitempty"`
	Side          Side            `gorm:"size:8" json:"side"`
	Price         decimal.Decimal `gorm:"type:numeric(30,12);not null;default:0" json:"price"`
	Amount        decimal.Decimal `gorm:"type:numeric(30,12);not null;default:0" json:"amount"`
	Total         decimal.Decimal `gorm:"type:numeric(30,12);not null;default:0" json:"total"`
	Fee           decimal.Decimal `gorm:"type:numeric(30,12);not null;default:0" json:"fee"`
	Role          string          `gorm:"size:16" json:"role,omitempty"`
	SourceFile    string          `gorm:"size:255" json:"source_file,omitempty"`
	SourceRow     int             `json:"source_row,omitempty"`
	Fingerprint   string          `gorm:"size:64;uniqueIndex:uidx_trades_fingerprint" json:"-"`
	CreatedAt     time.Time       `json:"-"`
}

// OpenPosition is the remaining FIFO inventory of a pair at a point in time.
type OpenPosition struct {
	Pair            string          `json:"pair"`
	Amount          decimal.Decimal `json:"amount"`
	Cost            decimal.Decimal `json:"cost"`
	AverageUnitCost decimal.Decimal `json:"average_unit_cost"`
}

// PairBreakdown is a pair's contribution to a daily or monthly bucket.
type PairBreakdown struct {
	Pair      string          `json:"pair"`
	Profit    decimal.Decimal `json:"profit"`
	Volume    decimal.Decimal `json:"volume"`
	Fees      decimal.Decimal `json:"fees"`
	BuyCount  int             `json:"buy_count"`
	SellCount int             `json:"sell_count"`
	Trades    int             `json:"trades"`
}

// PeriodStat holds the fields shared by daily and monthly buckets.
type PeriodStat struct {
	Profit             decimal.Decimal          `json:"profit"`
	Volume             decimal.Decimal          `json:"volume"`
	Fees               decimal.Decimal          `json:"fees"`
	BuyValue           decimal.Decimal          `json:"buy_value"`
	SellValue          decimal.Decimal          `json:"sell_value"`
	WinRate            decimal.Decimal          `json:"win_rate"`
	WinningSells       int                      `json:"winning_sells"`
	BuyCount           int                      `json:"buy_count"`
	SellCount          int                      `json:"sell_count"`
	TotalTrades        int                      `json:"total_trades"`
	UnmatchedSellCount int                      `json:"unmatched_sell_count"`
	PartialSellCount   int                      `json:"partial_sell_count"`
	PairBreakdown      map[string]PairBreakdown `json:"pair_breakdown"`
	OpenPositions      map[string]OpenPosition  `json:"open_positions"`
}

// DailyStat is the realized P&L of one calendar day, keyed YYYY-MM-DD.
type DailyStat struct {
	Date string `json:"date"`
	PeriodStat
}

// MonthlyStat is the realized P&L of one calendar month, keyed YYYY-MM.
type MonthlyStat struct {
	Month      string `json:"month"`
	MonthLabel string `json:"month_label"`
	PeriodStat
}

// PairStat aggregates a pair over the whole dataset. GrossCashFlow ignores
// lot matching and is reported next to RealizedProfit, never instead of it.
type PairStat struct {
	Pair               string          `json:"pair"`
	RealizedProfit     decimal.Decimal `json:"realized_profit"`
	GrossCashFlow      decimal.Decimal `json:"gross_cash_flow"`
	ProfitPercentage   decimal.Decimal `json:"profit_percentage"`
	TotalBuyValue      decimal.Decimal `json:"total_buy_value"`
	TotalSellValue     decimal.Decimal `json:"total_sell_value"`
	TotalFees          decimal.Decimal `json:"total_fees"`
	CostBasisConsumed  decimal.Decimal `json:"cost_basis_consumed"`
	WinRate            decimal.Decimal `json:"win_rate"`
	BuyCount           int             `json:"buy_count"`
	SellCount          int             `json:"sell_count"`
	TradeCount         int             `json:"trade_count"`
	UnmatchedSellCount int             `json:"unmatched_sell_count"`
	PartialSellCount   int             `json:"partial_sell_count"`
	OpenPosition       OpenPosition    `json:"open_position"`
}

// DailyAggregate is the persisted projection of a DailyStat. The table is
// rebuilt wholesale on every recomputation.
type DailyAggregate struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Date          string          `gorm:"size:10;uniqueIndex:uidx_daily_date" json:"date"`
	Profit        decimal.Decimal `gorm:"type:numeric(30,12);not null;default:0" json:"profit"`
	Volume        decimal.Decimal `gorm:"type:numeric(30,12);not null;default:0" json:"volume"`
	Fees          decimal.Decimal `gorm:"type:numeric(30,12);not null;default:0" json:"fees"`
	WinRate       decimal.Decimal `gorm:"type:numeric(10,4);not null;default:0" json:"win_rate"`
	BuyCount      int             `json:"buy_count"`
	SellCount     int             `json:"sell_count"`
	TotalTrades   int             `json:"total_trades"`
	UnmatchedSell int             `json:"unmatched_sell"`
	CreatedAt     time.Time       `json:"created_at"`
}
