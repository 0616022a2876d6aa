package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hivetrade/oms-api/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Scheduler no-op reasons surfaced to callers.
const (
	ReasonRateLimitReached = "Rate limit reached"
	ReasonQueueEmpty       = "No orders in queue"
)

// ProcessQueue drains the queue under the rate limit. One invocation:
// compute fresh capacity, claim up to min(capacity, batch cap) eligible
// orders in scheduling order, execute each sequentially, then record a
// metrics snapshot. Concurrent invocations coordinate purely through the
// conditional QUEUED -> PROCESSING transition; a conflict means another
// invocation claimed the order and it is skipped.
func (s *Service) ProcessQueue(ctx context.Context) (*types.ProcessResponse, error) {
	logger := log.With().Str("component", "scheduler").Logger()
	now := time.Now()

	slots, err := s.tracker.AvailableSlots(now)
	if err != nil {
		return nil, fmt.Errorf("failed to compute available slots: %w", err)
	}

	if slots <= 0 {
		nextWindow, err := s.tracker.NextWindowIn(now)
		if err != nil {
			return nil, err
		}
		logger.Info().
			Dur("next_window_in", nextWindow).
			Msg("rate limit reached, nothing processed")
		return &types.ProcessResponse{
			Processed:      0,
			AvailableSlots: 0,
			Reason:         ReasonRateLimitReached,
			NextWindowInMs: nextWindow.Milliseconds(),
			Results:        []types.OrderResult{},
		}, nil
	}

	batch := slots
	if batch > s.batchCap {
		batch = s.batchCap
	}

	orders, err := s.db.PeekEligible(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch eligible orders: %w", err)
	}

	if len(orders) == 0 {
		logger.Debug().Msg("queue empty, nothing processed")
		return &types.ProcessResponse{
			Processed:      0,
			AvailableSlots: slots,
			Reason:         ReasonQueueEmpty,
			Results:        []types.OrderResult{},
		}, nil
	}

	// Orders execute one at a time so the slot accounting stays exact:
	// running them in parallel could overshoot the exchange limit between
	// counting slots and executing.
	results := make([]types.OrderResult, 0, len(orders))
	for i := range orders {
		order := &orders[i]

		err := s.db.Transition(order.OrderID, types.StatusQueued, types.StatusProcessing, nil)
		if errors.Is(err, ErrStatusConflict) {
			logger.Debug().
				Str("order_id", order.OrderID).
				Msg("order claimed by another invocation, skipping")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to claim order %s: %w", order.OrderID, err)
		}

		results = append(results, s.executeOrder(ctx, order, logger))
	}

	if len(results) > 0 {
		s.recordMetrics(logger)
	}

	remaining, err := s.tracker.AvailableSlots(time.Now())
	if err != nil {
		// Reporting only; derive from the pre-batch figure.
		remaining = slots - len(results)
		if remaining < 0 {
			remaining = 0
		}
	}

	logger.Info().
		Int("processed", len(results)).
		Int("available_slots", remaining).
		Msg("batch processed")

	return &types.ProcessResponse{
		Processed:      len(results),
		AvailableSlots: remaining,
		Results:        results,
	}, nil
}

// executeOrder drives one claimed order to a terminal status. Adapter
// errors (including timeouts) always become a FAILED transition; the order
// is never left in PROCESSING.
func (s *Service) executeOrder(ctx context.Context, order *types.Order, logger zerolog.Logger) types.OrderResult {
	execCtx, cancel := context.WithTimeout(ctx, s.execTimeout)
	defer cancel()

	fill, err := s.executor.Execute(execCtx, order)
	if err != nil {
		return s.failOrder(order, err, logger)
	}

	executedAt := time.Now()
	trade := &types.Trade{
		TradeID:    "TRD_" + uuid.New().String(),
		OrderID:    order.OrderID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		EntryPrice: order.Price,
		ExitPrice:  fill.Price,
		Quantity:   fill.Quantity,
		PnL:        realizedPnL(order, fill.Price, fill.Quantity),
		ClosedAt:   executedAt,
	}

	if err := s.db.MarkExecuted(order, trade, executedAt, fill.Price, fill.Quantity); err != nil {
		return s.failOrder(order, fmt.Errorf("failed to record execution: %w", err), logger)
	}

	logger.Info().
		Str("order_id", order.OrderID).
		Str("trade_id", trade.TradeID).
		Float64("executed_price", fill.Price).
		Float64("executed_quantity", fill.Quantity).
		Float64("pnl", trade.PnL).
		Msg("order executed")

	return types.OrderResult{
		OrderID:          order.OrderID,
		Symbol:           order.Symbol,
		Side:             order.Side,
		Status:           types.StatusExecuted,
		ExecutedPrice:    fill.Price,
		ExecutedQuantity: fill.Quantity,
	}
}

func (s *Service) failOrder(order *types.Order, cause error, logger zerolog.Logger) types.OrderResult {
	logger.Warn().
		Err(cause).
		Str("order_id", order.OrderID).
		Msg("order execution failed")

	err := s.db.Transition(order.OrderID, types.StatusProcessing, types.StatusFailed,
		map[string]interface{}{"error_message": cause.Error()})
	if err != nil {
		logger.Error().
			Err(err).
			Str("order_id", order.OrderID).
			Msg("failed to mark order as failed")
	}

	return types.OrderResult{
		OrderID:      order.OrderID,
		Symbol:       order.Symbol,
		Side:         order.Side,
		Status:       types.StatusFailed,
		ErrorMessage: cause.Error(),
	}
}

// recordMetrics appends a post-batch snapshot and refreshes the window
// row's audit count. Best-effort: the next invocation recomputes
// utilization from execution records regardless.
func (s *Service) recordMetrics(logger zerolog.Logger) {
	now := time.Now()

	depth, err := s.db.CountByStatus(types.StatusQueued)
	if err != nil {
		logger.Error().Err(err).Msg("failed to count queued orders for snapshot")
		return
	}
	processing, err := s.db.CountByStatus(types.StatusProcessing)
	if err != nil {
		logger.Error().Err(err).Msg("failed to count processing orders for snapshot")
		return
	}
	used, err := s.tracker.Used(now)
	if err != nil {
		logger.Error().Err(err).Msg("failed to count window executions for snapshot")
		return
	}

	snapshot := &types.MetricsSnapshot{
		QueueDepth:      depth,
		ProcessingCount: processing,
		WindowCount:     used,
		Utilization:     float64(used) / float64(s.rateLimit),
		CreatedAt:       now,
	}
	if err := s.db.CreateSnapshot(snapshot); err != nil {
		logger.Error().Err(err).Msg("failed to record metrics snapshot")
	}

	if err := s.tracker.RefreshCount(now); err != nil {
		logger.Warn().Err(err).Msg("failed to refresh window count")
	}
}

// realizedPnL computes the fill's P&L against the reference price: a buy
// filled below reference or a sell filled above it is positive.
func realizedPnL(order *types.Order, fillPrice, quantity float64) float64 {
	if order.Side == types.SideBuy {
		return (order.Price - fillPrice) * quantity
	}
	return (fillPrice - order.Price) * quantity
}
