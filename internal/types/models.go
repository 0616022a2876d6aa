package types

import (
	"time"

	"gorm.io/gorm"
)

// Order lifecycle statuses. Only QUEUED orders may move to PROCESSING,
// only PROCESSING orders may move to EXECUTED or FAILED, and only QUEUED
// orders may be CANCELLED. EXECUTED, FAILED and CANCELLED are terminal.
const (
	StatusQueued     = "QUEUED"
	StatusProcessing = "PROCESSING"
	StatusExecuted   = "EXECUTED"
	StatusFailed     = "FAILED"
	StatusCancelled  = "CANCELLED"
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order is a requested trade intent owned by the queue until it reaches a
// terminal status.
type Order struct {
	gorm.Model       `json:"-"`
	OrderID          string     `gorm:"uniqueIndex" json:"order_id"`
	SessionID        string     `gorm:"index" json:"session_id"`
	HiveID           string     `json:"hive_id"`
	AgentID          string     `json:"agent_id"`
	Symbol           string     `json:"symbol"`
	Side             string     `json:"side"` // BUY or SELL
	Quantity         float64    `json:"quantity"`
	Price            float64    `json:"price"` // limit reference price
	Priority         int        `gorm:"index" json:"priority"`
	SignalStrength   float64    `json:"signal_strength"`
	SignalCoherence  float64    `json:"signal_coherence"`
	Status           string     `gorm:"index" json:"status"`
	QueuedAt         time.Time  `json:"queued_at"`
	ExecutedAt       *time.Time `json:"executed_at,omitempty"`
	ExecutedPrice    float64    `json:"executed_price,omitempty"`
	ExecutedQuantity float64    `json:"executed_quantity,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
}

// RateLimitWindow is a sliding accounting record for exchange-wide order
// throughput. Windows are superseded by later ones, never deleted, so the
// history remains available for audit.
type RateLimitWindow struct {
	gorm.Model  `json:"-"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	OrderCount  int       `json:"order_count"`
}

// Trade is a realized fill, created in the same transaction as the owning
// order's transition to EXECUTED.
type Trade struct {
	gorm.Model `json:"-"`
	TradeID    string    `gorm:"uniqueIndex" json:"trade_id"`
	OrderID    string    `gorm:"index" json:"order_id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Quantity   float64   `json:"quantity"`
	PnL        float64   `json:"pnl"`
	ClosedAt   time.Time `json:"closed_at"`
}

// MetricsSnapshot is a point-in-time observability record written after
// every scheduler invocation that performed work. Append-only.
type MetricsSnapshot struct {
	gorm.Model      `json:"-"`
	QueueDepth      int       `json:"queue_depth"`
	ProcessingCount int       `json:"processing_count"`
	WindowCount     int       `json:"window_count"`
	Utilization     float64   `json:"utilization"`
	CreatedAt       time.Time `json:"created_at"`
}

// Session binds a session identifier to the API client that first used it.
type Session struct {
	gorm.Model `json:"-"`
	SessionID  string `gorm:"uniqueIndex" json:"session_id"`
	ClientID   string `gorm:"index" json:"client_id"`
	Active     bool   `json:"active"`
}
