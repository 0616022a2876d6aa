package queue

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hivetrade/oms-api/internal/auth"
	"github.com/hivetrade/oms-api/internal/types"
	"github.com/hivetrade/oms-api/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type apiFixture struct {
	router *gin.Engine
	auth   *auth.Service
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newTestDB(t)
	authService := auth.NewService(testSecret, db)
	authService.RegisterAPICredentials("client-a", "secret-a")
	authService.RegisterAPICredentials("client-b", "secret-b")

	service := NewService(db, &stubExecutor{}, testConfig())
	handlers := NewGinHandlers(service, authService)

	router := gin.New()
	queueGroup := router.Group("/api/v1/queue")
	queueGroup.Use(middleware.JWTAuth(testSecret))
	queueGroup.POST("", handlers.QueueActionHandler())

	return &apiFixture{router: router, auth: authService}
}

func (f *apiFixture) token(t *testing.T, apiKey, apiSecret string) string {
	t.Helper()
	resp, err := f.auth.GenerateToken(auth.Credentials{APIKey: apiKey, APISecret: apiSecret})
	require.NoError(t, err)
	return resp.Token
}

func (f *apiFixture) post(t *testing.T, token string, req *types.QueueRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq := httptest.NewRequest(http.MethodPost, "/api/v1/queue", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httpReq)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	envelope := struct {
		Success bool        `json:"success"`
		Data    interface{} `json:"data"`
	}{Data: out}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)
}

func TestQueueEndpoint_RequiresToken(t *testing.T) {
	f := newAPIFixture(t)

	w := f.post(t, "", &types.QueueRequest{Action: types.ActionProcess})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestQueueEndpoint_EnqueueProcessStatus(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t, "client-a", "secret-a")

	priority := 80
	w := f.post(t, token, &types.QueueRequest{
		Action:    types.ActionEnqueue,
		SessionID: "sess-api",
		HiveID:    "hive-1",
		AgentID:   "agent-1",
		Symbol:    "BTCUSDT",
		Side:      types.SideBuy,
		Quantity:  1,
		Price:     50000,
		Priority:  &priority,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var enq types.EnqueueResponse
	decodeData(t, w, &enq)
	assert.NotEmpty(t, enq.OrderID)
	assert.Equal(t, 1, enq.Position)

	w = f.post(t, token, &types.QueueRequest{Action: types.ActionProcess})
	require.Equal(t, http.StatusCreated, w.Code)

	var proc types.ProcessResponse
	decodeData(t, w, &proc)
	assert.Equal(t, 1, proc.Processed)
	require.Len(t, proc.Results, 1)
	assert.Equal(t, enq.OrderID, proc.Results[0].OrderID)

	w = f.post(t, token, &types.QueueRequest{Action: types.ActionStatus, SessionID: "sess-api"})
	require.Equal(t, http.StatusCreated, w.Code)

	var status types.StatusResponse
	decodeData(t, w, &status)
	assert.Equal(t, 0, status.QueueDepth)
	assert.Equal(t, 1, status.RateLimit.Used)
}

func TestQueueEndpoint_EnqueueValidation(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t, "client-a", "secret-a")

	w := f.post(t, token, &types.QueueRequest{
		Action:    types.ActionEnqueue,
		SessionID: "sess-api",
		HiveID:    "hive-1",
		AgentID:   "agent-1",
		Symbol:    "BTCUSDT",
		Side:      types.SideBuy,
		Quantity:  0, // invalid
		Price:     50000,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueueEndpoint_SessionOwnership(t *testing.T) {
	f := newAPIFixture(t)
	tokenA := f.token(t, "client-a", "secret-a")
	tokenB := f.token(t, "client-b", "secret-b")

	w := f.post(t, tokenA, &types.QueueRequest{
		Action:    types.ActionEnqueue,
		SessionID: "sess-owned",
		HiveID:    "hive-1",
		AgentID:   "agent-1",
		Symbol:    "BTCUSDT",
		Side:      types.SideBuy,
		Quantity:  1,
		Price:     50000,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// Another client may not inspect or act on the session.
	w = f.post(t, tokenB, &types.QueueRequest{Action: types.ActionStatus, SessionID: "sess-owned"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestQueueEndpoint_CancelNonQueued(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t, "client-a", "secret-a")

	w := f.post(t, token, &types.QueueRequest{
		Action:    types.ActionEnqueue,
		SessionID: "sess-api",
		HiveID:    "hive-1",
		AgentID:   "agent-1",
		Symbol:    "BTCUSDT",
		Side:      types.SideSell,
		Quantity:  1,
		Price:     50000,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var enq types.EnqueueResponse
	decodeData(t, w, &enq)

	w = f.post(t, token, &types.QueueRequest{Action: types.ActionProcess})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.post(t, token, &types.QueueRequest{Action: types.ActionCancel, OrderID: enq.OrderID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), types.StatusExecuted)
}

func TestQueueEndpoint_UnknownAction(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t, "client-a", "secret-a")

	w := f.post(t, token, &types.QueueRequest{Action: "drain"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
