package db

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"rental-availability-backend/config"
	"rental-availability-backend/internal/model"
)

// Open connects to the configured database without migrating it.
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}
	return db, nil
}

// Init opens the database and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, cfg.EnableRangeIndex); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table the service owns. rangeIndex adds
// the postgres-only GIST exclusion helpers on active_occupancies.
func Migrate(db *gorm.DB, rangeIndex bool) error {
	slog.Info("running database migrations")
	if err := db.AutoMigrate(
		&model.Category{},
		&model.Equipment{},
		&model.ActiveOccupancy{},
		&model.OccupancyHistory{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}

	if rangeIndex {
		if db.Dialector.Name() != "postgres" {
			slog.Warn("range index requested on a non-postgres database, skipping", "dialect", db.Dialector.Name())
		} else if err := applyRangeIndexDDL(db); err != nil {
			slog.Warn("failed to apply range index DDL, continuing without it", "error", err)
		}
	}

	slog.Info("database initialization complete")
	return nil
}

func applyRangeIndexDDL(db *gorm.DB) error {
	ddls := []string{
		"CREATE EXTENSION IF NOT EXISTS btree_gist;",

		"ALTER TABLE active_occupancies " +
			"ADD CONSTRAINT active_occupancies_period_valid CHECK (period_start < period_end);",

		// Lower bound closed, upper bound open.
		"CREATE INDEX IF NOT EXISTS idx_active_occupancy_period_expr ON active_occupancies " +
			"USING GIST (equipment_id, tstzrange(period_start, period_end, '[)'));",

		"CREATE INDEX IF NOT EXISTS idx_occupancy_history_equipment_cancelled_at ON occupancy_histories (equipment_id, cancelled_at DESC);",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
