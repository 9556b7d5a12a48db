package repository

import (
	"context"
	"errors"

	"rigshop-api/internal/model"
)

var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStockConflict is returned by DeductStock when the component holds less stock than requested.
	ErrStockConflict = errors.New("insufficient stock")
)

// CatalogRepository defines component and configuration data access methods.
type CatalogRepository interface {
	// GetComponent returns a component with its current stock.
	GetComponent(ctx context.Context, componentID string) (*model.Component, error)

	// ListComponents returns every component ordered by id.
	ListComponents(ctx context.Context) ([]model.Component, error)

	// PutComponent creates or replaces a component.
	PutComponent(ctx context.Context, c *model.Component) error

	// SetComponentStock overwrites the stock level unconditionally.
	SetComponentStock(ctx context.Context, componentID string, stock int) (*model.Component, error)

	// DeductStock atomically subtracts qty if at least qty is in stock.
	// On ErrStockConflict the returned component carries the stock observed by the update.
	DeductStock(ctx context.Context, componentID string, qty int) (*model.Component, error)

	// RestockComponent atomically adds qty back to the component.
	RestockComponent(ctx context.Context, componentID string, qty int) (*model.Component, error)

	// GetConfiguration returns a configuration.
	GetConfiguration(ctx context.Context, configID string) (*model.Configuration, error)

	// ListConfigurations returns every configuration with its component count.
	ListConfigurations(ctx context.Context) ([]model.ConfigurationSummary, error)

	// PutConfiguration writes a configuration and its composition entries.
	PutConfiguration(ctx context.Context, c *model.Configuration, entries []model.CompositionEntry) error

	// GetComposition returns the configuration's entries ordered by component id.
	GetComposition(ctx context.Context, configID string) ([]model.CompositionEntry, error)
}

// OrderRepository defines order and ledger data access methods.
type OrderRepository interface {
	// PutOrder writes the order record.
	PutOrder(ctx context.Context, o *model.Order) error

	// DeleteOrder removes an order record.
	DeleteOrder(ctx context.Context, userID, orderID string) error

	// PutLedger writes the reservation ledger entry of an order.
	PutLedger(ctx context.Context, l *model.LedgerEntry) error

	// FindOrder locates an order by id across all users.
	FindOrder(ctx context.Context, orderID string) (*model.Order, error)

	// GetLedger returns the ledger entry of an order.
	GetLedger(ctx context.Context, userID, orderID string) (*model.LedgerEntry, error)

	// ListOrdersByUser returns the user's orders.
	ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error)

	// ListOrders returns every order.
	ListOrders(ctx context.Context) ([]model.Order, error)
}

// RestockRepository stores compensating restocks awaiting retry.
type RestockRepository interface {
	PutPending(ctx context.Context, p *model.PendingRestock) error
	ListPending(ctx context.Context) ([]model.PendingRestock, error)

	// ClaimPending takes exclusive ownership of a restock before it is applied.
	// It reports false when another worker holds it or it is gone.
	ClaimPending(ctx context.Context, attemptID, componentID string) (bool, error)

	// ReleasePending hands a claimed restock back for a later retry.
	ReleasePending(ctx context.Context, attemptID, componentID string) error

	DeletePending(ctx context.Context, attemptID, componentID string) error
}
