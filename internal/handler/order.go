package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"rigshop-api/internal/service"
	"rigshop-api/pkg/response"
)

// OrderHandler handles order placement and lookup.
type OrderHandler struct {
	reservations *service.ReservationService
	orders       *service.OrderService
	logger       *zap.Logger
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(reservations *service.ReservationService, orders *service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		reservations: reservations,
		orders:       orders,
		logger:       logger.Named("order_handler"),
	}
}

// CreateOrderRequest is the body of POST /api/orders.
type CreateOrderRequest struct {
	ConfigID string `json:"configId"`
	Quantity int    `json:"quantity"`
}

// CreateOrder handles POST /api/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	detail, err := h.reservations.Reserve(r.Context(), p, req.ConfigID, req.Quantity)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	response.Fields(w, http.StatusCreated, map[string]interface{}{"order": detail})
}

// GetOrder handles GET /api/orders/{orderId}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	detail, err := h.orders.GetOrder(r.Context(), p, chi.URLParam(r, "orderId"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	response.Fields(w, http.StatusOK, map[string]interface{}{"order": detail})
}

// ListUserOrders handles GET /api/orders/user/{userId}
func (h *OrderHandler) ListUserOrders(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	userID := chi.URLParam(r, "userId")
	orders, err := h.orders.ListOrdersForUser(r.Context(), p, userID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	response.Fields(w, http.StatusOK, map[string]interface{}{
		"userId": userID,
		"count":  len(orders),
		"orders": orders,
	})
}

// ListOrders handles GET /api/orders
// Admins see every order, other callers their own.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	orders, err := h.orders.ListAllOrders(r.Context(), p)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	response.Fields(w, http.StatusOK, map[string]interface{}{
		"count":  len(orders),
		"orders": orders,
	})
}
