package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"rigshop-api/internal/model"
	"rigshop-api/internal/store"
)

// TableRestockRepository implements RestockRepository on the single table.
type TableRestockRepository struct {
	table store.Table
}

// NewTableRestockRepository creates a restock repository backed by table.
func NewTableRestockRepository(table store.Table) *TableRestockRepository {
	return &TableRestockRepository{table: table}
}

// PutPending records a restock that still has to be applied.
func (r *TableRestockRepository) PutPending(ctx context.Context, p *model.PendingRestock) error {
	if err := r.table.Put(ctx, restockToItem(p)); err != nil {
		return fmt.Errorf("failed to put pending restock %s/%s: %w", p.AttemptID, p.ComponentID, err)
	}
	return nil
}

// ListPending returns pending restocks, oldest first.
func (r *TableRestockRepository) ListPending(ctx context.Context) ([]model.PendingRestock, error) {
	items, err := r.table.Scan(ctx, store.Filter{Type: TypeRestock})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending restocks: %w", err)
	}

	pending := make([]model.PendingRestock, 0, len(items))
	for _, item := range items {
		pending = append(pending, itemToRestock(item))
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

// ClaimPending flips the claim counter from 1 to 0. Only one caller can win.
func (r *TableRestockRepository) ClaimPending(ctx context.Context, attemptID, componentID string) (bool, error) {
	_, err := r.table.UpdateCounter(ctx, restockKey(attemptID, componentID), store.CounterUpdate{
		Attr:  "claim",
		Delta: -1,
		Min:   store.AtLeast(1),
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrConditionFailed), errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("failed to claim pending restock %s/%s: %w", attemptID, componentID, err)
	}
}

// ReleasePending restores the claim so the next run picks the restock up again.
func (r *TableRestockRepository) ReleasePending(ctx context.Context, attemptID, componentID string) error {
	_, err := r.table.UpdateCounter(ctx, restockKey(attemptID, componentID), store.CounterUpdate{
		Attr:  "claim",
		Delta: 1,
	})
	if err != nil {
		return fmt.Errorf("failed to release pending restock %s/%s: %w", attemptID, componentID, err)
	}
	return nil
}

// DeletePending removes a restock once it has been applied.
func (r *TableRestockRepository) DeletePending(ctx context.Context, attemptID, componentID string) error {
	if err := r.table.Delete(ctx, restockKey(attemptID, componentID)); err != nil {
		return fmt.Errorf("failed to delete pending restock %s/%s: %w", attemptID, componentID, err)
	}
	return nil
}

// Ensure TableRestockRepository implements RestockRepository
var _ RestockRepository = (*TableRestockRepository)(nil)
