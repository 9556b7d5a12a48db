package repository

import (
	"context"
	"errors"
	"fmt"

	"rigshop-api/internal/model"
	"rigshop-api/internal/store"
)

// TableOrderRepository implements OrderRepository on the single table.
// Orders and their ledger entries share the USER#{userId} partition; an
// (ORDER#{orderId}, OWNER) item points each order id at that partition.
type TableOrderRepository struct {
	table store.Table
}

// NewTableOrderRepository creates an order repository backed by table.
func NewTableOrderRepository(table store.Table) *TableOrderRepository {
	return &TableOrderRepository{table: table}
}

// PutOrder writes the owner pointer and then the order record.
func (r *TableOrderRepository) PutOrder(ctx context.Context, o *model.Order) error {
	if err := r.table.Put(ctx, orderOwnerToItem(o)); err != nil {
		return fmt.Errorf("failed to put owner of order %s: %w", o.OrderID, err)
	}
	if err := r.table.Put(ctx, orderToItem(o)); err != nil {
		_ = r.table.Delete(ctx, orderOwnerKey(o.OrderID))
		return fmt.Errorf("failed to put order %s: %w", o.OrderID, err)
	}
	return nil
}

// DeleteOrder removes an order record and its owner pointer.
func (r *TableOrderRepository) DeleteOrder(ctx context.Context, userID, orderID string) error {
	if err := r.table.Delete(ctx, orderKey(userID, orderID)); err != nil {
		return fmt.Errorf("failed to delete order %s: %w", orderID, err)
	}
	if err := r.table.Delete(ctx, orderOwnerKey(orderID)); err != nil {
		return fmt.Errorf("failed to delete owner of order %s: %w", orderID, err)
	}
	return nil
}

// PutLedger writes the reservation ledger entry of an order.
func (r *TableOrderRepository) PutLedger(ctx context.Context, l *model.LedgerEntry) error {
	item, err := ledgerToItem(l)
	if err != nil {
		return err
	}
	if err := r.table.Put(ctx, item); err != nil {
		return fmt.Errorf("failed to put ledger of %s: %w", l.OrderID, err)
	}
	return nil
}

// FindOrder locates an order by id across all users through its owner pointer.
func (r *TableOrderRepository) FindOrder(ctx context.Context, orderID string) (*model.Order, error) {
	owner, err := r.table.Get(ctx, orderOwnerKey(orderID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find order %s: %w", orderID, err)
	}

	item, err := r.table.Get(ctx, orderKey(owner.String("userId"), orderID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}
	return itemToOrder(*item)
}

// GetLedger returns the ledger entry of an order.
func (r *TableOrderRepository) GetLedger(ctx context.Context, userID, orderID string) (*model.LedgerEntry, error) {
	item, err := r.table.Get(ctx, ledgerKey(userID, orderID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ledger of %s: %w", orderID, err)
	}
	return itemToLedger(*item)
}

// ListOrdersByUser returns the user's orders.
func (r *TableOrderRepository) ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	items, err := r.table.Query(ctx, prefixUser+userID, prefixOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders of %s: %w", userID, err)
	}
	return itemsToOrders(items)
}

// ListOrders returns every order.
func (r *TableOrderRepository) ListOrders(ctx context.Context) ([]model.Order, error) {
	items, err := r.table.Scan(ctx, store.Filter{Type: TypeOrder})
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return itemsToOrders(items)
}

func itemsToOrders(items []store.Item) ([]model.Order, error) {
	orders := make([]model.Order, 0, len(items))
	for _, item := range items {
		// ledger entries share the ORDER# prefix
		if item.Type != TypeOrder {
			continue
		}
		o, err := itemToOrder(item)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, nil
}

// Ensure TableOrderRepository implements OrderRepository
var _ OrderRepository = (*TableOrderRepository)(nil)
