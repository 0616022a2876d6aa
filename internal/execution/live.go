package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hivetrade/oms-api/internal/types"
	"github.com/rs/zerolog/log"
)

// LiveExecutor delegates order placement to an external exchange API and
// maps its response into the Fill/error contract.
type LiveExecutor struct {
	baseURL string
	client  *http.Client
}

func NewLiveExecutor(baseURL string) *LiveExecutor {
	return &LiveExecutor{
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

type liveOrderRequest struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

type liveOrderResponse struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Error    string  `json:"error,omitempty"`
}

// Execute places the order on the configured exchange. The caller bounds
// the call with a context deadline; a timeout surfaces as an error here and
// becomes a FAILED transition upstream.
func (e *LiveExecutor) Execute(ctx context.Context, order *types.Order) (*Fill, error) {
	body, err := json.Marshal(liveOrderRequest{
		Symbol:   order.Symbol,
		Side:     order.Side,
		Quantity: order.Quantity,
		Price:    order.Price,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	var placed liveOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&placed); err != nil {
		return nil, fmt.Errorf("failed to decode exchange response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg := placed.Error
		if msg == "" {
			msg = resp.Status
		}
		log.Warn().
			Str("order_id", order.OrderID).
			Int("status_code", resp.StatusCode).
			Str("exchange_error", msg).
			Msg("exchange rejected order")
		return nil, fmt.Errorf("exchange rejected order: %s", msg)
	}

	return &Fill{
		Price:    placed.Price,
		Quantity: placed.Quantity,
	}, nil
}
