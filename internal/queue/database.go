package queue

import (
	"errors"
	"time"

	"github.com/hivetrade/oms-api/internal/types"
	"gorm.io/gorm"
)

var (
	// ErrStatusConflict signals that a conditional transition found the
	// order in a different status than expected. Another invocation got
	// there first; callers treat this as "already handled", not a failure.
	ErrStatusConflict = errors.New("order status changed by another invocation")
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateOrder(order *types.Order) error {
	return d.db.Create(order).Error
}

func (d *Database) GetOrder(orderID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// PeekEligible returns up to limit QUEUED orders in scheduling order:
// strict priority first, FIFO on ties. This ordering is the core policy.
func (d *Database) PeekEligible(limit int) ([]types.Order, error) {
	var orders []types.Order
	if err := d.db.Where("status = ?", types.StatusQueued).
		Order("priority DESC, queued_at ASC").
		Limit(limit).
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// QueuePosition counts the QUEUED orders scheduled strictly before the
// given order, plus one.
func (d *Database) QueuePosition(order *types.Order) (int, error) {
	var ahead int64
	err := d.db.Model(&types.Order{}).
		Where("status = ?", types.StatusQueued).
		Where("priority > ? OR (priority = ? AND queued_at < ?)",
			order.Priority, order.Priority, order.QueuedAt).
		Count(&ahead).Error
	if err != nil {
		return 0, err
	}
	return int(ahead) + 1, nil
}

// Transition performs the conditional status update that coordinates
// concurrent scheduler invocations: the write only commits if the order is
// still in fromStatus. Zero rows affected means the precondition failed.
func (d *Database) Transition(orderID, fromStatus, toStatus string, extra map[string]interface{}) error {
	updates := map[string]interface{}{
		"status":     toStatus,
		"updated_at": time.Now(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := d.db.Model(&types.Order{}).
		Where("order_id = ? AND status = ?", orderID, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// MarkExecuted transitions a PROCESSING order to EXECUTED and creates its
// trade record in a single transaction, so a fill is never recorded
// without the terminal transition or vice versa.
func (d *Database) MarkExecuted(order *types.Order, trade *types.Trade, executedAt time.Time, price, quantity float64) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	result := tx.Model(&types.Order{}).
		Where("order_id = ? AND status = ?", order.OrderID, types.StatusProcessing).
		Updates(map[string]interface{}{
			"status":            types.StatusExecuted,
			"executed_at":       executedAt,
			"executed_price":    price,
			"executed_quantity": quantity,
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		tx.Rollback()
		return result.Error
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return ErrStatusConflict
	}

	if err := tx.Create(trade).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

func (d *Database) CountByStatus(status string) (int, error) {
	var count int64
	err := d.db.Model(&types.Order{}).Where("status = ?", status).Count(&count).Error
	return int(count), err
}

func (d *Database) CountSessionByStatus(sessionID, status string) (int, error) {
	var count int64
	err := d.db.Model(&types.Order{}).
		Where("session_id = ? AND status = ?", sessionID, status).
		Count(&count).Error
	return int(count), err
}

// CountExecutedBetween counts orders whose execution timestamp falls in
// [start, end). This is the authoritative window count, recomputed from
// execution records rather than a stored counter.
func (d *Database) CountExecutedBetween(start, end time.Time) (int, error) {
	var count int64
	err := d.db.Model(&types.Order{}).
		Where("status = ? AND executed_at >= ? AND executed_at < ?",
			types.StatusExecuted, start, end).
		Count(&count).Error
	return int(count), err
}

// OldestExecutionSince returns the earliest execution timestamp at or after
// since, or nil when no execution falls in that span.
func (d *Database) OldestExecutionSince(since time.Time) (*time.Time, error) {
	var order types.Order
	err := d.db.Where("status = ? AND executed_at >= ?", types.StatusExecuted, since).
		Order("executed_at ASC").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return order.ExecutedAt, nil
}

func (d *Database) LatestWindow() (*types.RateLimitWindow, error) {
	var window types.RateLimitWindow
	if err := d.db.Order("window_end DESC").First(&window).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &window, nil
}

func (d *Database) CreateWindow(window *types.RateLimitWindow) error {
	return d.db.Create(window).Error
}

func (d *Database) UpdateWindowCount(windowID uint, count int) error {
	return d.db.Model(&types.RateLimitWindow{}).
		Where("id = ?", windowID).
		Update("order_count", count).Error
}

func (d *Database) CreateSnapshot(snapshot *types.MetricsSnapshot) error {
	return d.db.Create(snapshot).Error
}

func (d *Database) LatestSnapshot() (*types.MetricsSnapshot, error) {
	var snapshot types.MetricsSnapshot
	if err := d.db.Order("created_at DESC").First(&snapshot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snapshot, nil
}
