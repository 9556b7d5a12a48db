package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rigshop-api/internal/cache"
	"rigshop-api/internal/events"
	"rigshop-api/internal/handler"
	"rigshop-api/internal/middleware"
	"rigshop-api/internal/model"
	"rigshop-api/internal/repository"
	"rigshop-api/internal/router"
	"rigshop-api/internal/service"
	"rigshop-api/internal/store"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
	catalog *repository.TableCatalogRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()

	table := store.NewMemoryTable()
	memCache := cache.NewMemoryCache()
	t.Cleanup(func() { memCache.Close() })

	catalogRepo := repository.NewTableCatalogRepository(table)
	orderRepo := repository.NewTableOrderRepository(table)
	restockRepo := repository.NewTableRestockRepository(table)

	catalog := service.NewCatalogService(catalogRepo, memCache, time.Minute, logger)
	reservations := service.NewReservationService(catalog, catalogRepo, orderRepo, restockRepo,
		events.NewLogPublisher(logger), service.ReservationConfig{MaxQuantity: 100}, logger)
	orders := service.NewOrderService(orderRepo, logger)
	scheduler := service.NewRestockScheduler(restockRepo, catalogRepo, time.Hour, logger)

	r := router.New(router.Config{
		Handler:        handler.New(table, "rigshop-api", "test"),
		CatalogHandler: handler.NewCatalogHandler(catalog, logger),
		OrderHandler:   handler.NewOrderHandler(reservations, orders, logger),
		AdminHandler:   handler.NewAdminHandler(table, memCache, restockRepo, scheduler, "memory", logger),
		AuthHandler:    handler.NewAuthHandler(nil, logger),
		AuthMiddleware: middleware.NewAuthMiddleware(middleware.AuthConfig{TrustGateway: true, Logger: logger}),
		Logger:         logger,
	})

	s := &testServer{t: t, handler: r, catalog: catalogRepo}
	s.seed()
	return s
}

func (s *testServer) seed() {
	ctx := context.Background()
	now := time.Now().UTC()
	for _, c := range []model.Component{
		{ComponentID: "RAM-8GB", Name: "8GB DDR4 RAM", Stock: 50, Price: decimal.RequireFromString("45.00")},
		{ComponentID: "SSD-512GB", Name: "512GB NVMe SSD", Stock: 30, Price: decimal.RequireFromString("60.00")},
		{ComponentID: "CPU-I7", Name: "Intel Core i7", Stock: 20, Price: decimal.RequireFromString("320.00")},
	} {
		c := c
		c.CreatedAt, c.UpdatedAt = now, now
		require.NoError(s.t, s.catalog.PutComponent(ctx, &c))
	}
	cfg := &model.Configuration{ConfigID: "LAPTOP-01", Name: "Developer Laptop", Price: decimal.NewFromInt(1299), CreatedAt: now}
	require.NoError(s.t, s.catalog.PutConfiguration(ctx, cfg, []model.CompositionEntry{
		{ComponentID: "RAM-8GB", QuantityPerUnit: 2},
		{ComponentID: "SSD-512GB", QuantityPerUnit: 1},
		{ComponentID: "CPU-I7", QuantityPerUnit: 1},
	}))
}

// do sends a request as userID with role; an empty userID sends no identity.
func (s *testServer) do(method, path, userID string, role model.Role, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(middleware.HeaderUserID, userID)
		req.Header.Set(middleware.HeaderUserRole, string(role))
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	rec, body = s.do(http.MethodGet, "/ready", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["data"].(map[string]interface{})["ready"])

	rec, _ = s.do(http.MethodGet, "/api/status", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestOrdersRequireIdentity(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(http.MethodPost, "/api/orders", "", "", map[string]interface{}{"configId": "LAPTOP-01", "quantity": 1})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestCreateOrder(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(http.MethodPost, "/api/orders", "alice", model.RoleUser,
		map[string]interface{}{"configId": "LAPTOP-01", "quantity": 1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])

	order := body["order"].(map[string]interface{})
	assert.Equal(t, "alice", order["userId"])
	assert.Equal(t, "LAPTOP-01", order["configId"])
	assert.Equal(t, "completed", order["status"])
	assert.Equal(t, "1299", order["totalPrice"])
	assert.Len(t, order["componentsUsed"], 3)

	component, err := s.catalog.GetComponent(context.Background(), "RAM-8GB")
	require.NoError(t, err)
	assert.Equal(t, 48, component.Stock)

	orderID := order["orderId"].(string)

	rec, body = s.do(http.MethodGet, "/api/orders/"+orderID, "alice", model.RoleUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orderID, body["order"].(map[string]interface{})["orderId"])

	rec, _ = s.do(http.MethodGet, "/api/orders/"+orderID, "bob", model.RoleUser, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(http.MethodGet, "/api/orders/"+orderID, "root", model.RoleAdmin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(http.MethodGet, "/api/orders/does-not-exist", "root", model.RoleAdmin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(http.MethodPost, "/api/orders", "alice", model.RoleUser,
		map[string]interface{}{"configId": "LAPTOP-01", "quantity": 25})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, false, body["success"])
	assert.Equal(t, "INSUFFICIENT_STOCK", body["error"].(map[string]interface{})["code"])
	assert.Equal(t, "CPU-I7", body["component"])
	assert.Equal(t, "Intel Core i7", body["componentName"])
	assert.Equal(t, float64(25), body["required"])
	assert.Equal(t, float64(20), body["available"])
	assert.NotEmpty(t, body["message"])
}

func TestCreateOrder_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{"unknown config", map[string]interface{}{"configId": "UNKNOWN-ID", "quantity": 1}, http.StatusNotFound, "NOT_FOUND"},
		{"zero quantity", map[string]interface{}{"configId": "LAPTOP-01", "quantity": 0}, http.StatusBadRequest, "BAD_REQUEST"},
		{"missing config", map[string]interface{}{"quantity": 1}, http.StatusBadRequest, "BAD_REQUEST"},
		{"malformed body", "not an object", http.StatusBadRequest, "BAD_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := s.do(http.MethodPost, "/api/orders", "alice", model.RoleUser, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, body["error"].(map[string]interface{})["code"])
		})
	}
}

func TestListOrders(t *testing.T) {
	s := newTestServer(t)

	for _, user := range []string{"alice", "alice", "bob"} {
		rec, _ := s.do(http.MethodPost, "/api/orders", user, model.RoleUser,
			map[string]interface{}{"configId": "LAPTOP-01", "quantity": 1})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, body := s.do(http.MethodGet, "/api/orders", "root", model.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), body["count"])

	rec, body = s.do(http.MethodGet, "/api/orders", "alice", model.RoleUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["count"])

	rec, body = s.do(http.MethodGet, "/api/orders/user/bob", "bob", model.RoleUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bob", body["userId"])
	assert.Equal(t, float64(1), body["count"])

	rec, _ = s.do(http.MethodGet, "/api/orders/user/bob", "alice", model.RoleUser, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCatalogEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(http.MethodGet, "/api/components?limit=2", "alice", model.RoleUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"], 2)
	assert.Equal(t, float64(3), body["meta"].(map[string]interface{})["total"])

	rec, _ = s.do(http.MethodGet, "/api/components?page=0", "alice", model.RoleUser, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = s.do(http.MethodGet, "/api/components/CPU-I7", "alice", model.RoleUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(20), body["data"].(map[string]interface{})["stock"])

	rec, _ = s.do(http.MethodGet, "/api/components/NOPE", "alice", model.RoleUser, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = s.do(http.MethodGet, "/api/configs/LAPTOP-01", "alice", model.RoleUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"].(map[string]interface{})["components"], 3)

	rec, body = s.do(http.MethodGet, "/api/configs", "alice", model.RoleUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"], 1)
}

func TestCatalogAdminEndpoints(t *testing.T) {
	s := newTestServer(t)

	newComponent := map[string]interface{}{"componentId": "GPU-RTX3060", "name": "RTX 3060", "stock": 18, "price": "350.00"}

	rec, _ := s.do(http.MethodPost, "/api/components", "alice", model.RoleUser, newComponent)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(http.MethodPost, "/api/components", "root", model.RoleAdmin, newComponent)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, _ = s.do(http.MethodPost, "/api/components", "root", model.RoleAdmin, newComponent)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body := s.do(http.MethodPatch, "/api/components/GPU-RTX3060/stock", "root", model.RoleAdmin, map[string]interface{}{"stock": 5})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(5), body["data"].(map[string]interface{})["stock"])

	rec, _ = s.do(http.MethodPatch, "/api/components/GPU-RTX3060/stock", "root", model.RoleAdmin, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = s.do(http.MethodPost, "/api/configs", "root", model.RoleAdmin, map[string]interface{}{
		"configId": "GAMER-01", "name": "Gaming Rig", "price": "2199",
		"components": []map[string]interface{}{
			{"componentId": "GPU-RTX3060", "quantity": 1},
			{"componentId": "CPU-I7", "quantity": 1},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "GAMER-01", body["data"].(map[string]interface{})["configId"])

	rec, _ = s.do(http.MethodPost, "/api/configs", "root", model.RoleAdmin, map[string]interface{}{
		"configId": "BAD-01", "name": "Bad", "price": "1",
		"components": []map[string]interface{}{{"componentId": "TPU-9", "quantity": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(http.MethodGet, "/api/admin/stats", "alice", model.RoleUser, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body := s.do(http.MethodGet, "/api/admin/stats", "root", model.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "memory", data["store_type"])
	assert.Equal(t, float64(0), data["pending_restocks"])
	assert.Equal(t, "connected", data["store"].(map[string]interface{})["status"])

	rec, body = s.do(http.MethodPost, "/api/admin/restocks/run", "root", model.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["data"].(map[string]interface{})["applied"])

	rec, _ = s.do(http.MethodPost, "/api/admin/tokens", "root", model.RoleAdmin, map[string]interface{}{"userId": "carol"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuthMe(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(http.MethodGet, "/api/auth/me", "alice", model.RoleUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", body["data"].(map[string]interface{})["userId"])
	assert.Equal(t, "user", body["data"].(map[string]interface{})["role"])
}
