package execution

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/hivetrade/oms-api/internal/types"
	"github.com/rs/zerolog/log"
)

// Fill is the realized outcome of an executed order.
type Fill struct {
	Price    float64
	Quantity float64
}

// Executor realizes a selected order against a paper or live venue. Errors
// always resolve to a FAILED order transition in the scheduler; an order is
// never left in PROCESSING.
type Executor interface {
	Execute(ctx context.Context, order *types.Order) (*Fill, error)
}

// Venue models a simulated execution venue.
type Venue struct {
	ID          string
	Name        string
	MinLatency  int // in milliseconds
	MaxLatency  int
	SlippageBps float64 // max absolute slippage applied to the reference price
	SuccessRate float64 // 0-1, probability of successful execution
}

var defaultVenues = []*Venue{
	{
		ID:          "PAPER1",
		Name:        "Primary Paper Venue",
		MinLatency:  5,
		MaxLatency:  30,
		SlippageBps: 10, // +-0.1%
		SuccessRate: 0.97,
	},
	{
		ID:          "PAPER2",
		Name:        "Secondary Paper Venue",
		MinLatency:  10,
		MaxLatency:  60,
		SlippageBps: 15,
		SuccessRate: 0.92,
	},
}

// PaperExecutor fills orders at the reference price plus a small random
// slippage. The random source is injected so tests can seed it.
type PaperExecutor struct {
	venues []*Venue

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPaperExecutor creates a paper executor over the default venues.
func NewPaperExecutor(seed int64) *PaperExecutor {
	return NewPaperExecutorWithVenues(seed, defaultVenues)
}

// NewPaperExecutorWithVenues creates a paper executor over custom venues.
func NewPaperExecutorWithVenues(seed int64, venues []*Venue) *PaperExecutor {
	return &PaperExecutor{
		venues: venues,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Execute simulates order execution: picks a venue, sleeps its latency
// (honoring the context deadline), then fills the full requested quantity
// with slippage applied, or rejects per the venue's success rate.
func (e *PaperExecutor) Execute(ctx context.Context, order *types.Order) (*Fill, error) {
	venue := e.pickVenue()

	logger := log.With().
		Str("venue_id", venue.ID).
		Str("order_id", order.OrderID).
		Str("symbol", order.Symbol).
		Str("side", order.Side).
		Float64("quantity", order.Quantity).
		Float64("price", order.Price).
		Logger()

	logger.Info().Msg("attempting to execute order")

	e.mu.Lock()
	latency := venue.MinLatency
	if venue.MaxLatency > venue.MinLatency {
		latency += e.rng.Intn(venue.MaxLatency - venue.MinLatency + 1)
	}
	rejected := e.rng.Float64() > venue.SuccessRate
	slip := (e.rng.Float64()*2 - 1) * venue.SlippageBps / 10000
	e.mu.Unlock()

	logger.Debug().Int("latency_ms", latency).Msg("simulated venue latency")

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Duration(latency) * time.Millisecond):
	}

	if rejected {
		logger.Warn().
			Float64("success_rate", venue.SuccessRate).
			Msg("order rejected by venue")
		return nil, fmt.Errorf("execution rejected by venue %s", venue.ID)
	}

	executedPrice := order.Price * (1 + slip)

	logger.Info().
		Float64("executed_price", executedPrice).
		Float64("executed_quantity", order.Quantity).
		Msg("order executed on venue")

	return &Fill{
		Price:    executedPrice,
		Quantity: order.Quantity,
	}, nil
}

// pickVenue makes a weighted choice across venues by success rate.
func (e *PaperExecutor) pickVenue() *Venue {
	e.mu.Lock()
	defer e.mu.Unlock()

	totalWeight := 0.0
	for _, v := range e.venues {
		totalWeight += v.SuccessRate
	}

	choice := e.rng.Float64() * totalWeight
	currentWeight := 0.0
	for _, v := range e.venues {
		currentWeight += v.SuccessRate
		if currentWeight >= choice {
			return v
		}
	}

	return e.venues[0]
}
