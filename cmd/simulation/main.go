package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hivetrade/oms-api/internal/auth"
	"github.com/hivetrade/oms-api/internal/config"
	"github.com/hivetrade/oms-api/internal/database"
	"github.com/hivetrade/oms-api/internal/execution"
	"github.com/hivetrade/oms-api/internal/queue"
	"github.com/hivetrade/oms-api/internal/types"
	"github.com/hivetrade/oms-api/pkg/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	minOrders     = 15
	maxOrders     = 80
	numWorkers    = 5
	cancelRatio   = 0.1 // fraction of enqueued orders cancelled before processing
	serverAddress = "http://localhost:8080"
	sessionID     = "SIM_SESSION"
)

var (
	symbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "AAPL", "TSLA"}
	sides   = []string{"BUY", "SELL"}
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	// Configure pretty logging
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API action
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	// Sort durations for percentile calculations
	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	// Calculate mean
	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	// Calculate median
	median = rs.durations[len(rs.durations)/2]

	// Calculate percentiles
	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the queue API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
}

// newSimulationClient creates and initializes a new simulation client
// It authenticates with the API and prepares performance tracking
func newSimulationClient() (*simulationClient, error) {
	// Create HTTP client with timeout
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	sc := &simulationClient{
		baseURL: serverAddress,
		client:  client,
		stats: map[string]*routeStats{
			"auth":    {name: "Authentication"},
			"enqueue": {name: "Enqueue Order"},
			"process": {name: "Process Queue"},
			"status":  {name: "Queue Status"},
			"cancel":  {name: "Cancel Order"},
		},
	}

	// Get auth token
	token, err := sc.authenticate()
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token

	return sc, nil
}

// authenticate performs API authentication and returns a JWT token
func (sc *simulationClient) authenticate() (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["auth"].addDuration(time.Since(start))
	}()

	credentials := map[string]string{
		"api_key":    auth.TestAPIKey,
		"api_secret": auth.TestAPISecret,
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Data.Token, nil
}

// queueAction posts a QueueRequest to the queue endpoint and decodes the
// data portion of the envelope into out.
func (sc *simulationClient) queueAction(statKey string, req *types.QueueRequest, out interface{}) error {
	start := time.Now()
	defer func() {
		sc.stats[statKey].addDuration(time.Since(start))
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequest(
		"POST",
		fmt.Sprintf("%s/api/v1/queue", sc.baseURL),
		bytes.NewBuffer(body),
	)
	if err != nil {
		return err
	}

	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(httpReq)
	if err != nil {
		sc.stats[statKey].failures++
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("action", req.Action).Str("response", string(respBody)).Msg("Queue action response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		sc.stats[statKey].failures++
		return fmt.Errorf("%s failed with status %d: %s", req.Action, resp.StatusCode, string(respBody))
	}

	envelope := struct {
		Success bool        `json:"success"`
		Data    interface{} `json:"data"`
	}{Data: out}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return nil
}

func (sc *simulationClient) enqueueOrder(workerID int) (string, error) {
	priority := rand.Intn(100) + 1
	req := &types.QueueRequest{
		Action:    types.ActionEnqueue,
		SessionID: sessionID,
		HiveID:    fmt.Sprintf("HIVE_%d", workerID),
		AgentID:   fmt.Sprintf("AGENT_%d", workerID),
		Symbol:    symbols[rand.Intn(len(symbols))],
		Side:      sides[rand.Intn(len(sides))],
		Quantity:  float64(rand.Intn(100) + 1),
		Price:     float64(rand.Intn(1000) + 100),
		Priority:  &priority,
		Metadata: &types.Signal{
			Strength:  rand.Float64(),
			Coherence: rand.Float64(),
		},
	}

	var result types.EnqueueResponse
	if err := sc.queueAction("enqueue", req, &result); err != nil {
		return "", err
	}
	if result.OrderID == "" {
		return "", fmt.Errorf("no order ID in enqueue response")
	}
	return result.OrderID, nil
}

func (sc *simulationClient) processQueue() (*types.ProcessResponse, error) {
	var result types.ProcessResponse
	err := sc.queueAction("process", &types.QueueRequest{Action: types.ActionProcess}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (sc *simulationClient) queueStatus() (*types.StatusResponse, error) {
	var result types.StatusResponse
	err := sc.queueAction("status", &types.QueueRequest{
		Action:    types.ActionStatus,
		SessionID: sessionID,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (sc *simulationClient) cancelOrder(orderID string) error {
	var result types.CancelResponse
	return sc.queueAction("cancel", &types.QueueRequest{
		Action:  types.ActionCancel,
		OrderID: orderID,
	}, &result)
}

// printPerformanceStats outputs formatted performance statistics for all API actions
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Action", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the queue simulation: starts a local API server, enqueues
// randomized prioritized orders from concurrent workers, cancels a
// fraction, then polls the process action until the queue drains.
func main() {
	// Start the server in a goroutine
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	// Initialize simulation client
	simClient, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	// Generate random number of orders to enqueue
	targetOrders := rand.Intn(maxOrders-minOrders) + minOrders
	log.Info().Int("target_orders", targetOrders).Msg("Starting simulation")

	// Channel to collect order IDs
	ordersChan := make(chan string, targetOrders)
	var wg sync.WaitGroup

	// Start worker goroutines
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			enqueueOrdersHTTP(workerID, targetOrders/numWorkers, simClient, ordersChan)
		}(i)
	}

	// Wait for all orders to be enqueued
	wg.Wait()
	close(ordersChan)

	// Collect all order IDs
	var orderIDs []string
	for orderID := range ordersChan {
		orderIDs = append(orderIDs, orderID)
	}

	log.Info().Int("orders_enqueued", len(orderIDs)).Msg("All orders enqueued")

	stats := struct {
		TotalOrders     int
		ExecutedOrders  int
		FailedOrders    int
		CancelledOrders int
		RateLimitHits   int
		TotalValue      float64
		StartTime       time.Time
		Symbols         map[string]int
		Sides           map[string]int
	}{
		StartTime: time.Now(),
		Symbols:   make(map[string]int),
		Sides:     make(map[string]int),
	}
	stats.TotalOrders = len(orderIDs)

	// Cancel a fraction of the queue before processing starts
	cancelTarget := int(float64(len(orderIDs)) * cancelRatio)
	for i := 0; i < cancelTarget; i++ {
		orderID := orderIDs[rand.Intn(len(orderIDs))]
		if err := simClient.cancelOrder(orderID); err != nil {
			log.Warn().Err(err).Str("order_id", orderID).Msg("Cancel rejected")
			continue
		}
		stats.CancelledOrders++
		log.Info().Str("order_id", orderID).Msg("Order cancelled")
	}

	// Poll the process action until the queue is drained
	for {
		result, err := simClient.processQueue()
		if err != nil {
			log.Error().Err(err).Msg("Failed to process queue")
			break
		}

		for _, r := range result.Results {
			stats.Symbols[r.Symbol]++
			stats.Sides[r.Side]++
			if r.Status == types.StatusExecuted {
				stats.ExecutedOrders++
				stats.TotalValue += r.ExecutedPrice * r.ExecutedQuantity
			} else {
				stats.FailedOrders++
			}
		}

		if result.Reason == queue.ReasonQueueEmpty {
			break
		}

		if result.Reason == queue.ReasonRateLimitReached {
			stats.RateLimitHits++
			backoff := time.Duration(result.NextWindowInMs) * time.Millisecond
			if backoff <= 0 {
				backoff = 500 * time.Millisecond
			}
			log.Info().Dur("backoff", backoff).Msg("Rate limit reached, backing off")
			time.Sleep(backoff)
			continue
		}

		status, err := simClient.queueStatus()
		if err == nil {
			log.Info().
				Int("queue_depth", status.QueueDepth).
				Int("processing", status.Processing).
				Int("window_used", status.RateLimit.Used).
				Float64("utilization", status.RateLimit.Utilization).
				Msg("Queue status")
		}
	}

	// Print summary
	duration := time.Since(stats.StartTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("ORDER QUEUE SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
Order Statistics
------------------
Total Orders:     %d
Executed:         %d
Failed:           %d
Cancelled:        %d
Rate Limit Hits:  %d
Total Value:      $%.2f
Duration:         %v

Symbol Distribution
--------------------
`, stats.TotalOrders, stats.ExecutedOrders, stats.FailedOrders, stats.CancelledOrders,
		stats.RateLimitHits, stats.TotalValue, duration.Round(time.Millisecond))

	// Print symbol distribution with simple ASCII bar chart
	maxSymbolCount := 0
	for _, count := range stats.Symbols {
		if count > maxSymbolCount {
			maxSymbolCount = count
		}
	}

	for symbol, count := range stats.Symbols {
		barLength := int(float64(count) / float64(maxSymbolCount) * 20)
		bar := strings.Repeat("#", barLength)
		fmt.Printf("%-8s: %s (%d)\n", symbol, bar, count)
	}

	fmt.Println("\nSide Distribution")
	fmt.Println("------------------")
	for side, count := range stats.Sides {
		barLength := int(float64(count) / float64(stats.TotalOrders) * 20)
		bar := strings.Repeat("#", barLength)
		fmt.Printf("%-4s: %s (%d)\n", side, bar, count)
	}

	fmt.Println("\n" + strings.Repeat("=", 80))

	executedRate := float64(stats.ExecutedOrders) / float64(stats.TotalOrders) * 100
	log.Info().
		Float64("executed_rate", executedRate).
		Int("total_orders", stats.TotalOrders).
		Int("executed_orders", stats.ExecutedOrders).
		Float64("total_value", stats.TotalValue).
		Dur("duration", duration).
		Msg("Simulation completed")

	simClient.printPerformanceStats()
}

// enqueueOrdersHTTP generates and enqueues random prioritized orders
// Runs as a worker goroutine, sending created order IDs to ordersChan
func enqueueOrdersHTTP(workerID, numOrders int, simClient *simulationClient, ordersChan chan<- string) {
	for i := 0; i < numOrders; i++ {
		orderID, err := simClient.enqueueOrder(workerID)
		if err != nil {
			log.Error().Err(err).
				Int("worker_id", workerID).
				Msg("Failed to enqueue order")
			continue
		}

		ordersChan <- orderID
		log.Info().
			Int("worker_id", workerID).
			Str("order_id", orderID).
			Msg("Order enqueued")

		// Random sleep between orders
		time.Sleep(time.Duration(rand.Intn(200)) * time.Millisecond)
	}
}

// startServer initializes and starts the queue API server
// Sets up all required services, handlers and routes
func startServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize services
	authService := auth.NewService(cfg.JWTSecret, db)
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	executor := execution.NewPaperExecutor(time.Now().UnixNano())
	queueService := queue.NewService(db, executor, cfg)

	// Initialize router
	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	queueHandlers := queue.NewGinHandlers(queueService, authService)

	// Setup routes
	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		queueGroup := v1.Group("/queue")
		queueGroup.Use(middleware.JWTAuth(cfg.JWTSecret))
		{
			queueGroup.POST("", queueHandlers.QueueActionHandler())
		}
	}

	// Start the server
	return router.Run(":" + cfg.Port)
}
