package http

import (
	"bytes"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/api/http/handlers"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/clock"
	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/observability"
	"github.com/spec-kit/queue-service/internal/repository/memory"
	"github.com/spec-kit/queue-service/internal/service"
)

type testServer struct {
	app    *fiber.App
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	clk := clock.NewFake(time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC))
	store := memory.NewStore()
	deps := service.Dependencies{
		Store:   store,
		Clock:   clk,
		Logger:  zap.NewNop(),
		Metrics: metrics,
		Retry:   config.RetryConfig{MaxAttempts: 3},
	}
	tickets := service.NewTicketService(deps)
	catalog := service.NewCatalogService(deps)
	tokens := auth.NewTokenManager("test-secret", 5)

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("queue-service", "test", map[string]handlers.Pinger{"store": store}),
		Queues:         handlers.NewQueuesHandler(service.NewQueueService(deps), tickets, catalog),
		Tickets:        handlers.NewTicketsHandler(tickets, service.NewEstimatorService(deps), clk),
		Sessions:       handlers.NewSessionsHandler(service.NewSessionService(deps), clk),
		Catalog:        handlers.NewCatalogHandler(catalog),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Gatherer:       registry,
	})
	return &testServer{app: app, tokens: tokens}
}

func (s *testServer) token(t *testing.T, tenantID, userID string, role domain.Role) string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken(tenantID, userID, role)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	value, ok := body["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", body)
	return value
}

func errorCode(body map[string]any) string {
	errBody, _ := body["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

// seedCatalog creates a unit, a service, a queue of the given capacity and agent-1.
func seedCatalog(t *testing.T, s *testServer, admin string, capacity int) (queueID, serviceID string) {
	t.Helper()
	status, body := s.do(t, nethttp.MethodPost, "/v1/units", admin, map[string]any{"name": "Main", "timezone": "UTC"})
	require.Equal(t, nethttp.StatusCreated, status, body)
	unitID := data(t, body)["id"].(string)

	status, body = s.do(t, nethttp.MethodPost, "/v1/services", admin, map[string]any{
		"unit_id": unitID, "name": "Accounts", "estimated_minutes": 10,
	})
	require.Equal(t, nethttp.StatusCreated, status, body)
	serviceID = data(t, body)["id"].(string)

	status, body = s.do(t, nethttp.MethodPost, "/v1/queues", admin, map[string]any{
		"unit_id": unitID, "code": "a", "name": "General", "max_capacity": capacity,
	})
	require.Equal(t, nethttp.StatusCreated, status, body)
	queueID = data(t, body)["id"].(string)

	status, body = s.do(t, nethttp.MethodPost, "/v1/agents", admin, map[string]any{
		"id": "agent-1", "unit_id": unitID, "name": "Agent One",
	})
	require.Equal(t, nethttp.StatusCreated, status, body)
	return queueID, serviceID
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, nethttp.MethodGet, "/health/live", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = s.do(t, nethttp.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, map[string]any{"store": "ok"}, body["dependencies"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, nethttp.MethodGet, "/v1/tickets/any", "", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, body = s.do(t, nethttp.MethodGet, "/v1/tickets/any", "not-a-jwt", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	forged := auth.NewTokenManager("other-secret", 5)
	token, _, err := forged.GenerateToken("t1", "admin", domain.RoleAdmin)
	require.NoError(t, err)
	status, _ = s.do(t, nethttp.MethodGet, "/v1/tickets/any", token, nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
}

func TestRolesGateRoutes(t *testing.T) {
	s := newTestServer(t)
	kiosk := s.token(t, "t1", "kiosk-1", domain.RoleKiosk)
	agent := s.token(t, "t1", "agent-1", domain.RoleAgent)

	status, body := s.do(t, nethttp.MethodPost, "/v1/units", agent, map[string]any{"name": "Main"})
	assert.Equal(t, nethttp.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	status, body = s.do(t, nethttp.MethodPost, "/v1/tickets/any/call", kiosk, nil)
	assert.Equal(t, nethttp.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))
}

func TestTicketFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, "t1", "admin-1", domain.RoleAdmin)
	kiosk := s.token(t, "t1", "kiosk-1", domain.RoleKiosk)
	agent := s.token(t, "t1", "agent-1", domain.RoleAgent)
	queueID, serviceID := seedCatalog(t, s, admin, 1)

	status, body := s.do(t, nethttp.MethodPost, "/v1/tickets", kiosk, map[string]any{
		"queue_id": queueID, "service_id": serviceID, "customer": map[string]any{"name": " Ada "},
	})
	require.Equal(t, nethttp.StatusCreated, status, body)
	ticket := data(t, body)
	ticketID := ticket["id"].(string)
	assert.Equal(t, "A001", ticket["number"])
	assert.Equal(t, "WAITING", ticket["status"])
	assert.Equal(t, "Ada", ticket["customer"].(map[string]any)["name"])

	status, body = s.do(t, nethttp.MethodPost, "/v1/tickets", kiosk, map[string]any{"queue_id": queueID, "service_id": serviceID})
	assert.Equal(t, nethttp.StatusConflict, status)
	assert.Equal(t, "CAPACITY_EXCEEDED", errorCode(body))

	status, body = s.do(t, nethttp.MethodGet, "/v1/tickets/"+ticketID+"/position", kiosk, nil)
	require.Equal(t, nethttp.StatusOK, status, body)
	assert.Equal(t, float64(1), data(t, body)["position"])

	status, body = s.do(t, nethttp.MethodGet, "/v1/tickets/"+ticketID+"/estimate", kiosk, nil)
	require.Equal(t, nethttp.StatusOK, status, body)
	assert.Equal(t, float64(10), data(t, body)["estimated_wait_minutes"])

	status, body = s.do(t, nethttp.MethodPost, "/v1/queues/"+queueID+"/call-next", agent, nil)
	require.Equal(t, nethttp.StatusOK, status, body)
	assert.Equal(t, ticketID, data(t, body)["id"])
	assert.Equal(t, "CALLED", data(t, body)["status"])

	status, body = s.do(t, nethttp.MethodPost, "/v1/tickets/"+ticketID+"/start", agent, nil)
	require.Equal(t, nethttp.StatusOK, status, body)
	started := data(t, body)
	session := started["session"].(map[string]any)
	assert.Equal(t, "agent-1", session["user_id"])
	assert.Equal(t, "IN_PROGRESS", started["ticket"].(map[string]any)["status"])

	status, body = s.do(t, nethttp.MethodPost, "/v1/tickets/"+ticketID+"/start", agent, nil)
	assert.Equal(t, nethttp.StatusConflict, status)
	assert.Equal(t, "INVALID_STATE_TRANSITION", errorCode(body))

	status, body = s.do(t, nethttp.MethodPost, "/v1/tickets/"+ticketID+"/complete", agent, map[string]any{"notes": "done"})
	require.Equal(t, nethttp.StatusOK, status, body)
	assert.Equal(t, "COMPLETED", data(t, body)["status"])

	status, body = s.do(t, nethttp.MethodGet, "/v1/sessions/"+session["id"].(string), agent, nil)
	require.Equal(t, nethttp.StatusOK, status, body)
	assert.Equal(t, "COMPLETED", data(t, body)["status"])

	status, body = s.do(t, nethttp.MethodGet, "/v1/tickets/"+ticketID+"/history", agent, nil)
	require.Equal(t, nethttp.StatusOK, status, body)
	assert.Len(t, body["data"], 4)
}

func TestQueueStatusOverHTTP(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, "t1", "admin-1", domain.RoleAdmin)
	kiosk := s.token(t, "t1", "kiosk-1", domain.RoleKiosk)
	queueID, serviceID := seedCatalog(t, s, admin, 10)

	status, body := s.do(t, nethttp.MethodPost, "/v1/queues/"+queueID+"/pause", admin, map[string]any{"reason": "lunch"})
	require.Equal(t, nethttp.StatusOK, status, body)
	assert.Equal(t, "PAUSED", data(t, body)["status"])
	assert.Equal(t, false, data(t, body)["is_accepting_tickets"])

	status, body = s.do(t, nethttp.MethodPost, "/v1/tickets", kiosk, map[string]any{"queue_id": queueID, "service_id": serviceID})
	assert.Equal(t, nethttp.StatusConflict, status)
	assert.Equal(t, "QUEUE_CLOSED", errorCode(body))

	status, body = s.do(t, nethttp.MethodPost, "/v1/queues/"+queueID+"/status", admin, map[string]any{"status": "bogus"})
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(t, nethttp.MethodPost, "/v1/queues/"+queueID+"/open", admin, nil)
	assert.Equal(t, nethttp.StatusConflict, status)
	assert.Equal(t, "INVALID_STATE_TRANSITION", errorCode(body))

	status, body = s.do(t, nethttp.MethodPost, "/v1/queues/"+queueID+"/resume", admin, nil)
	require.Equal(t, nethttp.StatusOK, status, body)
	assert.Equal(t, true, data(t, body)["is_accepting_tickets"])
}

func TestOtherTenantsSeeNotFound(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, "t1", "admin-1", domain.RoleAdmin)
	kiosk := s.token(t, "t1", "kiosk-1", domain.RoleKiosk)
	outsider := s.token(t, "t2", "admin-2", domain.RoleAdmin)
	queueID, serviceID := seedCatalog(t, s, admin, 10)

	_, body := s.do(t, nethttp.MethodPost, "/v1/tickets", kiosk, map[string]any{"queue_id": queueID, "service_id": serviceID})
	ticketID := data(t, body)["id"].(string)

	status, body := s.do(t, nethttp.MethodGet, "/v1/tickets/"+ticketID, outsider, nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, _ = s.do(t, nethttp.MethodGet, "/v1/queues/"+queueID, outsider, nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
}

func TestMetricsEndpointExposesRequestCounters(t *testing.T) {
	s := newTestServer(t)
	s.do(t, nethttp.MethodGet, "/health/live", "", nil)

	req := httptest.NewRequest(nethttp.MethodGet, "/metrics", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `queue_http_requests_total{method="GET",path="/health/live",status="200"} 1`)
}
