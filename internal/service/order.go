package service

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"rigshop-api/internal/model"
	"rigshop-api/internal/repository"
)

// OrderService exposes the order ledger with per-principal access checks.
type OrderService struct {
	orders repository.OrderRepository
	logger *zap.Logger
}

// NewOrderService creates a new order service.
func NewOrderService(orders repository.OrderRepository, logger *zap.Logger) *OrderService {
	return &OrderService{orders: orders, logger: logger.Named("orders")}
}

// GetOrder returns an order with the components it consumed.
// Non-admins may only read their own orders.
func (s *OrderService) GetOrder(ctx context.Context, principal model.Principal, orderID string) (*model.OrderDetail, error) {
	order, err := s.orders.FindOrder(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if !principal.CanAccess(order.UserID) {
		return nil, ErrForbidden
	}

	detail := &model.OrderDetail{Order: *order, ComponentsUsed: []model.ComponentUsage{}}
	ledger, err := s.orders.GetLedger(ctx, order.UserID, order.OrderID)
	switch {
	case err == nil:
		detail.ComponentsUsed = ledger.Components
	case errors.Is(err, repository.ErrNotFound):
		s.logger.Warn("order has no ledger entry", zap.String("order_id", orderID))
	default:
		return nil, err
	}
	return detail, nil
}

// ListOrdersForUser returns userID's orders, newest first.
func (s *OrderService) ListOrdersForUser(ctx context.Context, principal model.Principal, userID string) ([]model.Order, error) {
	if !principal.CanAccess(userID) {
		return nil, ErrForbidden
	}
	orders, err := s.orders.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(orders)
	return orders, nil
}

// ListAllOrders returns every order for admins and the caller's own orders otherwise.
func (s *OrderService) ListAllOrders(ctx context.Context, principal model.Principal) ([]model.Order, error) {
	var (
		orders []model.Order
		err    error
	)
	if principal.IsAdmin() {
		orders, err = s.orders.ListOrders(ctx)
	} else {
		orders, err = s.orders.ListOrdersByUser(ctx, principal.UserID)
	}
	if err != nil {
		return nil, err
	}
	sortNewestFirst(orders)
	return orders, nil
}

func sortNewestFirst(orders []model.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}
