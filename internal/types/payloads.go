package types

// Queue endpoint actions.
const (
	ActionEnqueue = "enqueue"
	ActionProcess = "process"
	ActionStatus  = "status"
	ActionCancel  = "cancel"
)

// QueueRequest is the body of the RPC-style queue endpoint. Action selects
// the operation; the remaining fields are read per action.
type QueueRequest struct {
	Action    string  `json:"action" binding:"required"`
	SessionID string  `json:"session_id,omitempty"`
	HiveID    string  `json:"hive_id,omitempty"`
	AgentID   string  `json:"agent_id,omitempty"`
	Symbol    string  `json:"symbol,omitempty"`
	Side      string  `json:"side,omitempty"`
	Quantity  float64 `json:"quantity,omitempty"`
	Price     float64 `json:"price,omitempty"`
	Priority  *int    `json:"priority,omitempty"`
	Metadata  *Signal `json:"metadata,omitempty"`
	OrderID   string  `json:"order_id,omitempty"`
}

// Signal carries caller-supplied signal metadata. Opaque to the scheduler.
type Signal struct {
	Strength  float64 `json:"strength"`
	Coherence float64 `json:"coherence"`
}

// EnqueueResponse reports the new order id and its position under the
// (priority DESC, queued_at ASC) scheduling order.
type EnqueueResponse struct {
	OrderID  string `json:"order_id"`
	Position int    `json:"position"`
}

// OrderResult is the per-order outcome included in a process response.
type OrderResult struct {
	OrderID          string  `json:"order_id"`
	Symbol           string  `json:"symbol"`
	Side             string  `json:"side"`
	Status           string  `json:"status"`
	ExecutedPrice    float64 `json:"executed_price,omitempty"`
	ExecutedQuantity float64 `json:"executed_quantity,omitempty"`
	ErrorMessage     string  `json:"error_message,omitempty"`
}

// ProcessResponse summarizes a single scheduler invocation.
type ProcessResponse struct {
	Processed      int           `json:"processed"`
	AvailableSlots int           `json:"available_slots"`
	Reason         string        `json:"reason,omitempty"`
	NextWindowInMs int64         `json:"next_window_in_ms,omitempty"`
	Results        []OrderResult `json:"results"`
}

// RateLimitStatus reports the exchange-wide window utilization.
type RateLimitStatus struct {
	Limit            int     `json:"limit"`
	Used             int     `json:"used"`
	Available        int     `json:"available"`
	Utilization      float64 `json:"utilization"`
	WindowDurationMs int64   `json:"window_duration_ms"`
}

// StatusResponse is the queue inspection payload for a session.
type StatusResponse struct {
	QueueDepth int              `json:"queue_depth"`
	Processing int              `json:"processing"`
	RateLimit  RateLimitStatus  `json:"rate_limit"`
	Metrics    *MetricsSnapshot `json:"metrics,omitempty"`
}

// CancelResponse acknowledges a successful cancellation.
type CancelResponse struct {
	OrderID string `json:"order_id"`
	Message string `json:"message"`
}
