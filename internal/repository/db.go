package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/timmy/shopsearch/internal/config"
	"github.com/timmy/shopsearch/internal/domain"
	"github.com/timmy/shopsearch/internal/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ledgerModels are the tables owned by the relational store.
var ledgerModels = []any{
	&domain.PurchaseRecord{},
	&domain.IngestJob{},
}

// InitDB opens the relational database that holds the purchase ledger and
// ingest job history, and runs migrations when enabled.
// Parameters:
//   - cfg: database configuration including driver and connection settings.
// Returns:
//   - *gorm.DB: initialized database handle.
//   - error: non-nil if connection or migration fails.
func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", dialector.Name(), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if dialector.Name() == "sqlite" {
		// WAL lets the API read the ledger while ingest writes job progress.
		db.Exec("PRAGMA journal_mode=WAL")
		db.Exec("PRAGMA busy_timeout=5000")
	}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(ledgerModels...); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	return db, nil
}

func dialectorFor(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres":
		logger.Info("Using PostgreSQL ledger at %s:%d/%s", cfg.Host, cfg.Port, cfg.DBName)
		// Simple protocol keeps transaction poolers (pgbouncer, Supabase 6543) working.
		return postgres.New(postgres.Config{
			DSN:                  cfg.DSN(),
			PreferSimpleProtocol: true,
		}), nil
	case "sqlite", "":
		logger.Info("Using SQLite ledger at %s", cfg.Path)
	default:
		logger.Warn("Unknown database driver %q, using SQLite at %s", cfg.Driver, cfg.Path)
	}

	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return sqlite.Open(cfg.DSN()), nil
}

// PingDB checks that the ledger database accepts connections.
func PingDB(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB instance: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}
