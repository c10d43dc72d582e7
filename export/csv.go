// Package export renders computed statistics as CSV.
package export

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
	"github.com/viktsys/pnldash/models"
)

type dailyRow struct {
	Date          string `csv:"date"`
	Profit        string `csv:"profit"`
	Volume        string `csv:"volume"`
	Fees          string `csv:"fees"`
	BuyValue      string `csv:"buy_value"`
	SellValue     string `csv:"sell_value"`
	WinRate       string `csv:"win_rate"`
	BuyCount      int    `csv:"buy_count"`
	SellCount     int    `csv:"sell_count"`
	TotalTrades   int    `csv:"total_trades"`
	UnmatchedSell int    `csv:"unmatched_sells"`
	PartialSell   int    `csv:"partial_sells"`
}

type pairRow struct {
	Pair             string `csv:"pair"`
	RealizedProfit   string `csv:"realized_profit"`
	GrossCashFlow    string `csv:"gross_cash_flow"`
	ProfitPercentage string `csv:"profit_percentage"`
	BuyValue         string `csv:"buy_value"`
	SellValue        string `csv:"sell_value"`
	Fees             string `csv:"fees"`
	WinRate          string `csv:"win_rate"`
	TradeCount       int    `csv:"trades"`
	OpenAmount       string `csv:"open_amount"`
	OpenCost         string `csv:"open_cost"`
}

// WriteDaily writes one line per day in the order given. Amounts keep their
// full decimal precision.
func WriteDaily(w io.Writer, days []models.DailyStat) error {
	rows := make([]dailyRow, 0, len(days))
	for _, d := range days {
		rows = append(rows, dailyRow{
			Date:          d.Date,
			Profit:        d.Profit.String(),
			Volume:        d.Volume.String(),
			Fees:          d.Fees.String(),
			BuyValue:      d.BuyValue.String(),
			SellValue:     d.SellValue.String(),
			WinRate:       d.WinRate.StringFixed(2),
			BuyCount:      d.BuyCount,
			SellCount:     d.SellCount,
			TotalTrades:   d.TotalTrades,
			UnmatchedSell: d.UnmatchedSellCount,
			PartialSell:   d.PartialSellCount,
		})
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("failed to write daily CSV: %w", err)
	}
	return nil
}

// WritePairs writes one line per pair in the order given.
func WritePairs(w io.Writer, pairs []models.PairStat) error {
	rows := make([]pairRow, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, pairRow{
			Pair:             p.Pair,
			RealizedProfit:   p.RealizedProfit.String(),
			GrossCashFlow:    p.GrossCashFlow.String(),
			ProfitPercentage: p.ProfitPercentage.StringFixed(2),
			BuyValue:         p.TotalBuyValue.String(),
			SellValue:        p.TotalSellValue.String(),
			Fees:             p.TotalFees.String(),
			WinRate:          p.WinRate.StringFixed(2),
			TradeCount:       p.TradeCount,
			OpenAmount:       p.OpenPosition.Amount.String(),
			OpenCost:         p.OpenPosition.Cost.String(),
		})
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("failed to write pairs CSV: %w", err)
	}
	return nil
}
