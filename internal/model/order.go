package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderCompleted OrderStatus = "completed"
	OrderPending   OrderStatus = "pending"
	OrderFailed    OrderStatus = "failed"
)

// Order is the persisted record of a successful purchase.
type Order struct {
	OrderID    string          `json:"orderId"`
	UserID     string          `json:"userId"`
	ConfigID   string          `json:"configId"`
	ConfigName string          `json:"configName"`
	Quantity   int             `json:"quantity"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Status     OrderStatus     `json:"status"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// ComponentUsage records one stock deduction made for an order.
type ComponentUsage struct {
	ComponentID   string          `json:"componentId"`
	ComponentName string          `json:"componentName"`
	QuantityUsed  int             `json:"quantityUsed"`
	StockBefore   int             `json:"stockBefore"`
	StockAfter    int             `json:"stockAfter"`
	PricePerUnit  decimal.Decimal `json:"pricePerUnit"`
}

// LedgerEntry is the immutable audit record of the deductions behind an order.
type LedgerEntry struct {
	OrderID    string           `json:"orderId"`
	UserID     string           `json:"userId"`
	Components []ComponentUsage `json:"components"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// OrderDetail is an order with the components it consumed.
type OrderDetail struct {
	Order
	ComponentsUsed []ComponentUsage `json:"componentsUsed"`
}

// PendingRestock is a compensating restock that could not be applied and awaits retry.
type PendingRestock struct {
	AttemptID   string    `json:"attemptId"`
	ComponentID string    `json:"componentId"`
	Quantity    int       `json:"quantity"`
	Reason      string    `json:"reason"`
	Claimed     bool      `json:"claimed"` // a scheduler is applying it
	CreatedAt   time.Time `json:"createdAt"`
}
