package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viktsys/pnldash/config"
	"github.com/viktsys/pnldash/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DSN builds the postgres connection string from the configuration.
func DSN(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.Timezone)
}

// InitDB connects using the configuration and migrates the schema.
func InitDB(cfg *config.Config, log logrus.FieldLogger) (*gorm.DB, error) {
	return Open(DSN(cfg), log)
}

// Open connects to dsn, tunes the pool, migrates the schema and creates the
// query indexes.
func Open(dsn string, log logrus.FieldLogger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// Reads dominate; writes come in bursts from ingestion and recompute
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := db.AutoMigrate(&models.Trade{}, &models.DailyAggregate{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := OptimizeIndexes(db, log); err != nil {
		log.WithError(err).Warn("Failed to optimize indexes")
	}

	log.Info("Database connected and migrated successfully")
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
