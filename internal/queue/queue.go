package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hivetrade/oms-api/internal/auth"
	"github.com/hivetrade/oms-api/internal/config"
	"github.com/hivetrade/oms-api/internal/execution"
	"github.com/hivetrade/oms-api/internal/types"
	"github.com/hivetrade/oms-api/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrInvalidInput   = errors.New("invalid order input")
	ErrOrderNotFound  = errors.New("order not found")
	ErrNotCancellable = errors.New("order cannot be cancelled")
)

// Priority applied when the caller does not supply one.
const defaultPriority = 50

// Service owns the order queue: enqueue, scheduling, status and
// cancellation against shared durable state. Every method is a
// self-contained invocation; there is no background scheduler thread, the
// caller polls ProcessQueue.
type Service struct {
	db       *Database
	tracker  *WindowTracker
	executor execution.Executor

	rateLimit      int
	windowDuration time.Duration
	batchCap       int
	execTimeout    time.Duration
}

// NewService creates the queue service with the given database connection,
// execution adapter and scheduling configuration.
func NewService(gormDB *gorm.DB, executor execution.Executor, cfg config.Config) *Service {
	db := NewDatabase(gormDB)
	return &Service{
		db:             db,
		tracker:        NewWindowTracker(db, cfg.RateLimit, cfg.WindowDuration),
		executor:       executor,
		rateLimit:      cfg.RateLimit,
		windowDuration: cfg.WindowDuration,
		batchCap:       cfg.BatchCap,
		execTimeout:    cfg.ExecutionTimeout,
	}
}

// EnqueueOrder validates and inserts a new QUEUED order, returning its id
// and position under the scheduling order.
func (s *Service) EnqueueOrder(req *types.QueueRequest) (*types.EnqueueResponse, error) {
	if err := validateEnqueue(req); err != nil {
		return nil, err
	}

	priority := defaultPriority
	if req.Priority != nil {
		priority = *req.Priority
	}

	order := &types.Order{
		OrderID:   uuid.New().String(),
		SessionID: req.SessionID,
		HiveID:    req.HiveID,
		AgentID:   req.AgentID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Priority:  priority,
		Status:    types.StatusQueued,
		QueuedAt:  time.Now(),
	}
	if req.Metadata != nil {
		order.SignalStrength = req.Metadata.Strength
		order.SignalCoherence = req.Metadata.Coherence
	}

	if err := s.db.CreateOrder(order); err != nil {
		return nil, fmt.Errorf("failed to enqueue order: %w", err)
	}

	position, err := s.db.QueuePosition(order)
	if err != nil {
		return nil, fmt.Errorf("failed to compute queue position: %w", err)
	}

	log.Info().
		Str("order_id", order.OrderID).
		Str("session_id", order.SessionID).
		Str("symbol", order.Symbol).
		Str("side", order.Side).
		Int("priority", order.Priority).
		Int("position", position).
		Msg("order enqueued")

	return &types.EnqueueResponse{
		OrderID:  order.OrderID,
		Position: position,
	}, nil
}

// GetOrder retrieves an order by its ID. Returns nil when not found.
func (s *Service) GetOrder(orderID string) (*types.Order, error) {
	return s.db.GetOrder(orderID)
}

// QueueStatus reports the session's queue view plus the exchange-wide rate
// limit utilization. Always recomputed from the datastore, never cached.
func (s *Service) QueueStatus(sessionID string) (*types.StatusResponse, error) {
	now := time.Now()

	depth, err := s.db.CountSessionByStatus(sessionID, types.StatusQueued)
	if err != nil {
		return nil, err
	}
	processing, err := s.db.CountSessionByStatus(sessionID, types.StatusProcessing)
	if err != nil {
		return nil, err
	}

	used, err := s.tracker.Used(now)
	if err != nil {
		return nil, err
	}
	available := s.rateLimit - used
	if available < 0 {
		available = 0
	}

	snapshot, err := s.db.LatestSnapshot()
	if err != nil {
		return nil, err
	}

	return &types.StatusResponse{
		QueueDepth: depth,
		Processing: processing,
		RateLimit: types.RateLimitStatus{
			Limit:            s.rateLimit,
			Used:             used,
			Available:        available,
			Utilization:      float64(used) / float64(s.rateLimit),
			WindowDurationMs: s.windowDuration.Milliseconds(),
		},
		Metrics: snapshot,
	}, nil
}

// CancelOrder removes a still-queued order. Cancelling an order in any
// other status fails with an error naming that status, so callers always
// know whether their cancellation took effect.
func (s *Service) CancelOrder(orderID string) (*types.CancelResponse, error) {
	order, err := s.db.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}

	if order.Status != types.StatusQueued {
		return nil, fmt.Errorf("%w: order %s is %s", ErrNotCancellable, orderID, order.Status)
	}

	err = s.db.Transition(orderID, types.StatusQueued, types.StatusCancelled, nil)
	if errors.Is(err, ErrStatusConflict) {
		// Claimed by a scheduler invocation between our read and the write.
		current, gerr := s.db.GetOrder(orderID)
		if gerr != nil {
			return nil, gerr
		}
		return nil, fmt.Errorf("%w: order %s is %s", ErrNotCancellable, orderID, current.Status)
	}
	if err != nil {
		return nil, err
	}

	log.Info().Str("order_id", orderID).Msg("order cancelled")

	return &types.CancelResponse{
		OrderID: orderID,
		Message: "order cancelled",
	}, nil
}

// validateEnqueue checks the required enqueue fields. No state is mutated
// when validation fails.
func validateEnqueue(req *types.QueueRequest) error {
	switch {
	case req.SessionID == "":
		return fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	case req.HiveID == "":
		return fmt.Errorf("%w: hive_id is required", ErrInvalidInput)
	case req.AgentID == "":
		return fmt.Errorf("%w: agent_id is required", ErrInvalidInput)
	case req.Symbol == "":
		return fmt.Errorf("%w: symbol is required", ErrInvalidInput)
	case req.Side != types.SideBuy && req.Side != types.SideSell:
		return fmt.Errorf("%w: side must be BUY or SELL", ErrInvalidInput)
	case req.Quantity <= 0:
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	case req.Price <= 0:
		return fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}
	return nil
}

// GinHandlers contains HTTP handlers for the queue endpoint
type GinHandlers struct {
	service     *Service
	authService *auth.Service
}

// NewGinHandlers creates a new set of HTTP handlers for the queue endpoint
func NewGinHandlers(service *Service, authService *auth.Service) *GinHandlers {
	return &GinHandlers{
		service:     service,
		authService: authService,
	}
}

// QueueActionHandler handles POST requests to the queue endpoint. The
// action field of the body selects the operation. Requires a valid JWT;
// enqueue, status and cancel additionally require that the caller owns the
// referenced session.
func (h *GinHandlers) QueueActionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetString("clientID")
		if clientID == "" {
			response.Unauthorized(c, "Missing client identity")
			return
		}

		var req types.QueueRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		switch req.Action {
		case types.ActionEnqueue:
			h.handleEnqueue(c, clientID, &req)
		case types.ActionProcess:
			h.handleProcess(c)
		case types.ActionStatus:
			h.handleStatus(c, clientID, &req)
		case types.ActionCancel:
			h.handleCancel(c, clientID, &req)
		default:
			response.BadRequest(c, fmt.Sprintf("unknown action: %q", req.Action))
		}
	}
}

func (h *GinHandlers) handleEnqueue(c *gin.Context, clientID string, req *types.QueueRequest) {
	if req.SessionID == "" {
		response.BadRequest(c, "session_id is required")
		return
	}
	if err := h.authService.EnsureSessionOwner(req.SessionID, clientID); err != nil {
		h.respondError(c, err)
		return
	}

	resp, err := h.service.EnqueueOrder(req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, resp)
}

func (h *GinHandlers) handleProcess(c *gin.Context) {
	resp, err := h.service.ProcessQueue(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, resp)
}

func (h *GinHandlers) handleStatus(c *gin.Context, clientID string, req *types.QueueRequest) {
	if req.SessionID == "" {
		response.BadRequest(c, "session_id is required")
		return
	}
	if err := h.authService.EnsureSessionOwner(req.SessionID, clientID); err != nil {
		h.respondError(c, err)
		return
	}

	resp, err := h.service.QueueStatus(req.SessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, resp)
}

func (h *GinHandlers) handleCancel(c *gin.Context, clientID string, req *types.QueueRequest) {
	if req.OrderID == "" {
		response.BadRequest(c, "order_id is required")
		return
	}

	order, err := h.service.GetOrder(req.OrderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if order == nil {
		response.NotFound(c, "Order not found")
		return
	}
	if err := h.authService.EnsureSessionOwner(order.SessionID, clientID); err != nil {
		h.respondError(c, err)
		return
	}

	resp, err := h.service.CancelOrder(req.OrderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, resp)
}

func (h *GinHandlers) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNotCancellable):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrOrderNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, auth.ErrSessionForbidden):
		response.Forbidden(c, err.Error())
	default:
		response.InternalError(c, err.Error())
	}
}
