package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"rigshop-api/internal/events"
	"rigshop-api/internal/model"
	"rigshop-api/internal/repository"
	"rigshop-api/pkg/uid"
)

const compensationTimeout = 30 * time.Second

// ReservationConfig holds reservation business rules.
type ReservationConfig struct {
	MaxQuantity int
	Producer    string
}

// ReservationService turns a purchase request into stock deductions and an order record.
//
// Components are deducted one at a time with a conditional update, in component id order.
// If a deduction fails, or the order cannot be written, every deduction already applied in
// the attempt is restocked in reverse order. Restocks that fail are queued for the
// RestockScheduler, so stock converges even when the store is flaky.
type ReservationService struct {
	catalog   *CatalogService
	stock     repository.CatalogRepository
	orders    repository.OrderRepository
	restocks  repository.RestockRepository
	publisher events.Publisher
	config    ReservationConfig
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewReservationService creates a new reservation service.
func NewReservationService(
	catalog *CatalogService,
	stock repository.CatalogRepository,
	orders repository.OrderRepository,
	restocks repository.RestockRepository,
	publisher events.Publisher,
	config ReservationConfig,
	logger *zap.Logger,
) *ReservationService {
	if config.MaxQuantity <= 0 {
		config.MaxQuantity = 10
	}
	if config.Producer == "" {
		config.Producer = "rigshop-api"
	}
	return &ReservationService{
		catalog:   catalog,
		stock:     stock,
		orders:    orders,
		restocks:  restocks,
		publisher: publisher,
		config:    config,
		logger:    logger.Named("reservation"),
		tracer:    otel.Tracer("rigshop-api/internal/service"),
	}
}

// plannedDeduction is one component's share of a reservation.
type plannedDeduction struct {
	componentID string
	required    int
}

// Reserve deducts the stock a configuration order needs and records the order.
func (s *ReservationService) Reserve(ctx context.Context, principal model.Principal, configID string, quantity int) (*model.OrderDetail, error) {
	ctx, span := s.tracer.Start(ctx, "ReservationService.Reserve", trace.WithAttributes(
		attribute.String("config.id", configID),
		attribute.Int("order.quantity", quantity),
		attribute.String("user.id", principal.UserID),
	))
	defer span.End()

	detail, err := s.reserve(ctx, principal, configID, quantity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", detail.OrderID))
	return detail, nil
}

func (s *ReservationService) reserve(ctx context.Context, principal model.Principal, configID string, quantity int) (*model.OrderDetail, error) {
	configID = strings.TrimSpace(configID)
	switch {
	case principal.UserID == "":
		return nil, invalid("user id is required")
	case configID == "":
		return nil, invalid("configId is required")
	case quantity < 1 || quantity > s.config.MaxQuantity:
		return nil, invalid("quantity must be between 1 and %d", s.config.MaxQuantity)
	}

	cfg, err := s.catalog.GetConfiguration(ctx, configID)
	if err != nil {
		return nil, err
	}

	entries, err := s.catalog.GetComposition(ctx, configID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrEmptyComposition
	}

	plan := make([]plannedDeduction, 0, len(entries))
	for _, e := range entries {
		plan = append(plan, plannedDeduction{componentID: e.ComponentID, required: e.QuantityPerUnit * quantity})
	}
	sort.Slice(plan, func(i, j int) bool { return plan[i].componentID < plan[j].componentID })

	total := cfg.Price.Mul(decimal.NewFromInt(int64(quantity)))
	orderID := uid.NewOrdered()
	logger := s.logger.With(
		zap.String("order_id", orderID),
		zap.String("user_id", principal.UserID),
		zap.String("config_id", configID),
		zap.Int("quantity", quantity),
	)

	if err := s.precheck(ctx, plan); err != nil {
		s.rejected(ctx, orderID, principal.UserID, configID, err)
		return nil, err
	}

	usages, err := s.deduct(ctx, orderID, plan)
	if err != nil {
		s.rejected(ctx, orderID, principal.UserID, configID, err)
		logger.Info("reservation rejected", zap.Error(err))
		return nil, err
	}

	now := time.Now().UTC()
	order := &model.Order{
		OrderID:    orderID,
		UserID:     principal.UserID,
		ConfigID:   cfg.ConfigID,
		ConfigName: cfg.Name,
		Quantity:   quantity,
		TotalPrice: total,
		Status:     model.OrderCompleted,
		CreatedAt:  now,
	}
	ledger := &model.LedgerEntry{
		OrderID:    orderID,
		UserID:     principal.UserID,
		Components: usages,
		CreatedAt:  now,
	}

	if err := s.orders.PutOrder(ctx, order); err != nil {
		logger.Error("failed to write order, restocking", zap.Error(err))
		s.compensate(ctx, orderID, usages, "order write failed")
		return nil, err
	}
	if err := s.orders.PutLedger(ctx, ledger); err != nil {
		logger.Error("failed to write ledger, restocking", zap.Error(err))
		cctx, cancel := detached(ctx)
		if derr := s.orders.DeleteOrder(cctx, order.UserID, order.OrderID); derr != nil {
			logger.Error("failed to remove order after ledger failure", zap.Error(derr))
		}
		cancel()
		s.compensate(ctx, orderID, usages, "ledger write failed")
		return nil, err
	}

	s.placed(ctx, order, usages)
	logger.Info("order placed", zap.String("total", total.String()), zap.Int("components", len(usages)))

	return &model.OrderDetail{Order: *order, ComponentsUsed: usages}, nil
}

// precheck reads every component and fails fast, without writing, when any is short.
func (s *ReservationService) precheck(ctx context.Context, plan []plannedDeduction) error {
	ctx, span := s.tracer.Start(ctx, "ReservationService.precheck")
	defer span.End()

	for _, p := range plan {
		c, err := s.stock.GetComponent(ctx, p.componentID)
		if errors.Is(err, repository.ErrNotFound) {
			return &InsufficientStockError{ComponentID: p.componentID, ComponentName: p.componentID, Required: p.required, Available: 0}
		}
		if err != nil {
			return err
		}
		if c.Stock < p.required {
			return &InsufficientStockError{ComponentID: c.ComponentID, ComponentName: c.Name, Required: p.required, Available: c.Stock}
		}
	}
	return nil
}

// deduct applies the plan. On failure it restocks what was applied and returns the cause.
func (s *ReservationService) deduct(ctx context.Context, orderID string, plan []plannedDeduction) ([]model.ComponentUsage, error) {
	ctx, span := s.tracer.Start(ctx, "ReservationService.deduct", trace.WithAttributes(attribute.Int("components", len(plan))))
	defer span.End()

	usages := make([]model.ComponentUsage, 0, len(plan))
	for _, p := range plan {
		c, err := s.stock.DeductStock(ctx, p.componentID, p.required)
		if err == nil {
			usages = append(usages, model.ComponentUsage{
				ComponentID:   c.ComponentID,
				ComponentName: c.Name,
				QuantityUsed:  p.required,
				StockBefore:   c.Stock + p.required,
				StockAfter:    c.Stock,
				PricePerUnit:  c.Price,
			})
			continue
		}

		s.compensate(ctx, orderID, usages, "reservation aborted")

		switch {
		case errors.Is(err, repository.ErrStockConflict):
			return nil, &InsufficientStockError{ComponentID: c.ComponentID, ComponentName: c.Name, Required: p.required, Available: c.Stock}
		case errors.Is(err, repository.ErrNotFound):
			return nil, &InsufficientStockError{ComponentID: p.componentID, ComponentName: p.componentID, Required: p.required, Available: 0}
		default:
			return nil, err
		}
	}
	return usages, nil
}

// compensate restocks applied deductions in reverse order. It runs detached from the
// request context so a cancelled client cannot leave stock deducted.
func (s *ReservationService) compensate(ctx context.Context, orderID string, applied []model.ComponentUsage, reason string) {
	if len(applied) == 0 {
		return
	}
	ctx, cancel := detached(ctx)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "ReservationService.compensate", trace.WithAttributes(attribute.Int("components", len(applied))))
	defer span.End()

	for i := len(applied) - 1; i >= 0; i-- {
		u := applied[i]
		logger := s.logger.With(zap.String("order_id", orderID), zap.String("component_id", u.ComponentID), zap.Int("qty", u.QuantityUsed))

		_, err := s.stock.RestockComponent(ctx, u.ComponentID, u.QuantityUsed)
		if err == nil {
			logger.Info("stock restored")
			s.compensated(ctx, orderID, u, true)
			continue
		}

		logger.Error("failed to restore stock, queueing retry", zap.Error(err))
		span.RecordError(err)
		pending := &model.PendingRestock{
			AttemptID:   orderID,
			ComponentID: u.ComponentID,
			Quantity:    u.QuantityUsed,
			Reason:      reason,
			CreatedAt:   time.Now().UTC(),
		}
		if perr := s.restocks.PutPending(ctx, pending); perr != nil {
			logger.Error("failed to queue pending restock, stock must be corrected manually", zap.Error(perr))
		}
		s.compensated(ctx, orderID, u, false)
	}
}

func (s *ReservationService) placed(ctx context.Context, order *model.Order, usages []model.ComponentUsage) {
	components := make([]events.ComponentQty, 0, len(usages))
	for _, u := range usages {
		components = append(components, events.ComponentQty{ComponentID: u.ComponentID, Qty: u.QuantityUsed})
	}
	s.publish(ctx, events.EventOrderPlaced, order.OrderID, events.OrderPlacedPayload{
		OrderID:    order.OrderID,
		UserID:     order.UserID,
		ConfigID:   order.ConfigID,
		Quantity:   order.Quantity,
		TotalPrice: order.TotalPrice,
		Components: components,
	})
}

func (s *ReservationService) rejected(ctx context.Context, orderID, userID, configID string, cause error) {
	payload := events.ReservationRejectedPayload{
		OrderID:  orderID,
		UserID:   userID,
		ConfigID: configID,
		Reason:   "STORE_ERROR",
	}
	var stockErr *InsufficientStockError
	if errors.As(cause, &stockErr) {
		payload.Reason = "INSUFFICIENT_STOCK"
		payload.ComponentID = stockErr.ComponentID
		payload.Required = stockErr.Required
		payload.Available = stockErr.Available
	}
	s.publish(ctx, events.EventReservationRejected, orderID, payload)
}

func (s *ReservationService) compensated(ctx context.Context, orderID string, u model.ComponentUsage, applied bool) {
	s.publish(ctx, events.EventStockCompensated, orderID, events.StockCompensatedPayload{
		OrderID:     orderID,
		ComponentID: u.ComponentID,
		Qty:         u.QuantityUsed,
		Applied:     applied,
	})
}

// publish is best effort: failures are logged and never fail the reservation.
func (s *ReservationService) publish(ctx context.Context, eventType, orderID string, payload interface{}) {
	env, err := events.New(s.config.Producer, eventType, orderID, payload)
	if err == nil {
		err = s.publisher.Publish(ctx, env)
	}
	if err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("event_type", eventType), zap.String("order_id", orderID), zap.Error(err))
	}
}

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
}
