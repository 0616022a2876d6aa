package database

import (
	"fmt"

	"github.com/hivetrade/oms-api/internal/database/migrations"
	"github.com/hivetrade/oms-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Auto-migrate schemas
	err = db.AutoMigrate(
		&types.Order{},
		&types.RateLimitWindow{},
		&types.Trade{},
		&types.MetricsSnapshot{},
		&types.Session{},
	)
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.AddSchedulingIndex(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.AddExecutionWindowIndex(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}
