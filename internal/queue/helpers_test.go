package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hivetrade/oms-api/internal/config"
	"github.com/hivetrade/oms-api/internal/database"
	"github.com/hivetrade/oms-api/internal/execution"
	"github.com/hivetrade/oms-api/internal/types"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testConfig() config.Config {
	return config.Config{
		RateLimit:        10,
		WindowDuration:   10 * time.Second,
		BatchCap:         10,
		ExecutionTimeout: time.Second,
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return db
}

func newTestService(t *testing.T, executor execution.Executor, cfg config.Config) *Service {
	t.Helper()
	return NewService(newTestDB(t), executor, cfg)
}

// stubExecutor fills at the reference price, or rejects configured symbols.
type stubExecutor struct {
	failSymbols map[string]bool
}

func (e *stubExecutor) Execute(ctx context.Context, order *types.Order) (*execution.Fill, error) {
	if e.failSymbols[order.Symbol] {
		return nil, errors.New("venue rejected order")
	}
	return &execution.Fill{Price: order.Price, Quantity: order.Quantity}, nil
}

func enqueueTestOrder(t *testing.T, s *Service, symbol string, priority int) string {
	t.Helper()
	resp, err := s.EnqueueOrder(&types.QueueRequest{
		Action:    types.ActionEnqueue,
		SessionID: "sess-1",
		HiveID:    "hive-1",
		AgentID:   "agent-1",
		Symbol:    symbol,
		Side:      types.SideBuy,
		Quantity:  1,
		Price:     100,
		Priority:  &priority,
	})
	require.NoError(t, err)
	return resp.OrderID
}

// insertQueuedOrder writes an order directly with an explicit queued_at so
// ordering tests control arrival time precisely.
func insertQueuedOrder(t *testing.T, d *Database, priority int, queuedAt time.Time) string {
	t.Helper()
	order := &types.Order{
		OrderID:   uuid.New().String(),
		SessionID: "sess-1",
		HiveID:    "hive-1",
		AgentID:   "agent-1",
		Symbol:    "BTCUSDT",
		Side:      types.SideBuy,
		Quantity:  1,
		Price:     100,
		Priority:  priority,
		Status:    types.StatusQueued,
		QueuedAt:  queuedAt,
	}
	require.NoError(t, d.CreateOrder(order))
	return order.OrderID
}

// insertExecutedOrder seeds an already-executed order so window tests can
// place executions at chosen timestamps.
func insertExecutedOrder(t *testing.T, d *Database, executedAt time.Time) string {
	t.Helper()
	order := &types.Order{
		OrderID:          uuid.New().String(),
		SessionID:        "sess-1",
		HiveID:           "hive-1",
		AgentID:          "agent-1",
		Symbol:           "BTCUSDT",
		Side:             types.SideBuy,
		Quantity:         1,
		Price:            100,
		Priority:         50,
		Status:           types.StatusExecuted,
		QueuedAt:         executedAt.Add(-time.Second),
		ExecutedAt:       &executedAt,
		ExecutedPrice:    100,
		ExecutedQuantity: 1,
	}
	require.NoError(t, d.CreateOrder(order))
	return order.OrderID
}
