package migrations

import "gorm.io/gorm"

// AddExecutionWindowIndex backs the rolling-window count over executed
// orders, recomputed on every scheduler invocation.
func AddExecutionWindowIndex(db *gorm.DB) error {
	return db.Exec(
		`CREATE INDEX IF NOT EXISTS idx_orders_executed_window
		 ON orders(status, executed_at)`,
	).Error
}
