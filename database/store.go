package database

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/viktsys/pnldash/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultBatchSize = 1000

// TradeStore persists normalized trades and the daily projection of the
// last computed report.
type TradeStore struct {
	db        *gorm.DB
	batchSize int
}

func NewTradeStore(db *gorm.DB) *TradeStore {
	return &TradeStore{db: db, batchSize: defaultBatchSize}
}

// SaveTrades inserts trades in batches. A fill whose fingerprint is already
// stored is skipped, so re-ingesting an export is a no-op whatever its file
// name. It returns the number of rows actually inserted.
func (s *TradeStore) SaveTrades(ctx context.Context, trades []models.Trade) (int64, error) {
	if len(trades) == 0 {
		return 0, nil
	}

	// gorm writes generated IDs back; keep the caller's slice untouched
	rows := append([]models.Trade(nil), trades...)
	for i := range rows {
		rows[i].ID = 0
	}
	models.AssignFingerprints(rows)

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "fingerprint"}},
			DoNothing: true,
		}).
		CreateInBatches(&rows, s.batchSize)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to save trades: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// LoadTrades returns stored trades in time order, optionally restricted to
// the given pairs (case-insensitive).
func (s *TradeStore) LoadTrades(ctx context.Context, pairs []string) ([]models.Trade, error) {
	query := s.db.WithContext(ctx).Order(`"time" ASC, id ASC`)

	var upper []string
	for _, p := range pairs {
		if p = strings.TrimSpace(p); p != "" {
			upper = append(upper, strings.ToUpper(p))
		}
	}
	if len(upper) > 0 {
		query = query.Where("UPPER(pair) IN ?", upper)
	}

	var trades []models.Trade
	if err := query.Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to load trades: %w", err)
	}
	return trades, nil
}

// CountTrades returns the number of stored trades.
func (s *TradeStore) CountTrades(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Trade{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return n, nil
}

// ReplaceDailyStats swaps the stored daily projection for the given one in
// a single transaction, so readers never see a half-written table.
func (s *TradeStore) ReplaceDailyStats(ctx context.Context, daily map[string]models.DailyStat) error {
	dates := make([]string, 0, len(daily))
	for d := range daily {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	rows := make([]models.DailyAggregate, 0, len(dates))
	for _, d := range dates {
		rows = append(rows, aggregateFromStat(daily[d]))
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM daily_aggregates").Error; err != nil {
			return fmt.Errorf("failed to clear daily aggregates: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&rows, s.batchSize).Error; err != nil {
			return fmt.Errorf("failed to insert daily aggregates: %w", err)
		}
		return nil
	})
}

// DailyAggregates reads the stored projection between start and end
// (YYYY-MM-DD, inclusive). Empty bounds are open.
func (s *TradeStore) DailyAggregates(ctx context.Context, start, end string) ([]models.DailyAggregate, error) {
	query := s.db.WithContext(ctx).Order("date ASC")
	if start != "" {
		query = query.Where("date >= ?", start)
	}
	if end != "" {
		query = query.Where("date <= ?", end)
	}

	var rows []models.DailyAggregate
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load daily aggregates: %w", err)
	}
	return rows, nil
}

func aggregateFromStat(d models.DailyStat) models.DailyAggregate {
	return models.DailyAggregate{
		Date:          d.Date,
		Profit:        d.Profit,
		Volume:        d.Volume,
		Fees:          d.Fees,
		WinRate:       d.WinRate,
		BuyCount:      d.BuyCount,
		SellCount:     d.SellCount,
		TotalTrades:   d.TotalTrades,
		UnmatchedSell: d.UnmatchedSellCount,
	}
}
