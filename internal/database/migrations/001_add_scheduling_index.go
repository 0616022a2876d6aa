package migrations

import "gorm.io/gorm"

// AddSchedulingIndex backs the eligible-order scan, which always filters on
// status and orders by (priority DESC, queued_at ASC).
func AddSchedulingIndex(db *gorm.DB) error {
	return db.Exec(
		`CREATE INDEX IF NOT EXISTS idx_orders_scheduling
		 ON orders(status, priority DESC, queued_at ASC)`,
	).Error
}
