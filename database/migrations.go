package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// OptimizeIndexes creates the indexes behind the replay and dashboard queries.
func OptimizeIndexes(db *gorm.DB, log logrus.FieldLogger) error {
	// Superseded by idx_trades_replay
	if err := db.Exec("DROP INDEX IF EXISTS idx_trades_time").Error; err != nil {
		log.WithError(err).Warn("Could not drop old index idx_trades_time")
	}

	// Trades are deduplicated by fingerprint now, not by file name and row
	if err := db.Exec("DROP INDEX IF EXISTS uidx_trades_source").Error; err != nil {
		log.WithError(err).Warn("Could not drop old index uidx_trades_source")
	}

	// Replay reads every trade in time order, ties by insertion
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_trades_replay
		ON trades ("time", id)
	`).Error; err != nil {
		return fmt.Errorf("failed to create trades replay index: %w", err)
	}

	// Pair-filtered recomputes
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_trades_pair_upper
		ON trades (UPPER(pair), "time")
	`).Error; err != nil {
		return fmt.Errorf("failed to create trades pair index: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_daily_profitable
		ON daily_aggregates (date DESC)
		WHERE profit > 0
	`).Error; err != nil {
		return fmt.Errorf("failed to create daily aggregates profit index: %w", err)
	}

	log.Debug("Database indexes optimized successfully")
	return nil
}
