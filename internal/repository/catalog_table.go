package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"rigshop-api/internal/model"
	"rigshop-api/internal/store"
)

// TableCatalogRepository implements CatalogRepository on the single table.
type TableCatalogRepository struct {
	table store.Table
}

// NewTableCatalogRepository creates a catalog repository backed by table.
func NewTableCatalogRepository(table store.Table) *TableCatalogRepository {
	return &TableCatalogRepository{table: table}
}

// GetComponent returns a component with its current stock.
func (r *TableCatalogRepository) GetComponent(ctx context.Context, componentID string) (*model.Component, error) {
	item, err := r.table.Get(ctx, ComponentKey(componentID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get component %s: %w", componentID, err)
	}
	return itemToComponent(*item)
}

// ListComponents returns every component ordered by id.
func (r *TableCatalogRepository) ListComponents(ctx context.Context) ([]model.Component, error) {
	items, err := r.table.Scan(ctx, store.Filter{Type: TypeComponent})
	if err != nil {
		return nil, fmt.Errorf("failed to list components: %w", err)
	}

	components := make([]model.Component, 0, len(items))
	for _, item := range items {
		c, err := itemToComponent(item)
		if err != nil {
			return nil, err
		}
		components = append(components, *c)
	}
	sort.Slice(components, func(i, j int) bool {
		return components[i].ComponentID < components[j].ComponentID
	})
	return components, nil
}

// PutComponent creates or replaces a component.
func (r *TableCatalogRepository) PutComponent(ctx context.Context, c *model.Component) error {
	item, err := componentToItem(c)
	if err != nil {
		return err
	}
	if err := r.table.Put(ctx, item); err != nil {
		return fmt.Errorf("failed to put component %s: %w", c.ComponentID, err)
	}
	return nil
}

// SetComponentStock overwrites the stock level unconditionally.
func (r *TableCatalogRepository) SetComponentStock(ctx context.Context, componentID string, stock int) (*model.Component, error) {
	c, err := r.GetComponent(ctx, componentID)
	if err != nil {
		return nil, err
	}
	c.Stock = stock
	c.UpdatedAt = time.Now().UTC()
	if err := r.PutComponent(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// DeductStock atomically subtracts qty if at least qty is in stock.
func (r *TableCatalogRepository) DeductStock(ctx context.Context, componentID string, qty int) (*model.Component, error) {
	upd := store.CounterUpdate{Attr: "stock", Delta: -int64(qty), Min: store.AtLeast(int64(qty))}
	return r.adjustStock(ctx, componentID, upd)
}

// RestockComponent atomically adds qty back to the component.
func (r *TableCatalogRepository) RestockComponent(ctx context.Context, componentID string, qty int) (*model.Component, error) {
	upd := store.CounterUpdate{Attr: "stock", Delta: int64(qty)}
	return r.adjustStock(ctx, componentID, upd)
}

func (r *TableCatalogRepository) adjustStock(ctx context.Context, componentID string, upd store.CounterUpdate) (*model.Component, error) {
	item, err := r.table.UpdateCounter(ctx, ComponentKey(componentID), upd)
	switch {
	case err == nil:
		return itemToComponent(*item)
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrNotFound
	case errors.Is(err, store.ErrConditionFailed):
		c, derr := itemToComponent(*item)
		if derr != nil {
			return nil, derr
		}
		return c, ErrStockConflict
	default:
		return nil, fmt.Errorf("failed to adjust stock of %s: %w", componentID, err)
	}
}

// GetConfiguration returns a configuration.
func (r *TableCatalogRepository) GetConfiguration(ctx context.Context, configID string) (*model.Configuration, error) {
	item, err := r.table.Get(ctx, configKey(configID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get configuration %s: %w", configID, err)
	}
	return itemToConfig(*item)
}

// ListConfigurations returns every configuration with its component count.
func (r *TableCatalogRepository) ListConfigurations(ctx context.Context) ([]model.ConfigurationSummary, error) {
	configs, err := r.table.Scan(ctx, store.Filter{Type: TypeConfig})
	if err != nil {
		return nil, fmt.Errorf("failed to list configurations: %w", err)
	}
	compositions, err := r.table.Scan(ctx, store.Filter{Type: TypeComposition})
	if err != nil {
		return nil, fmt.Errorf("failed to list compositions: %w", err)
	}

	counts := make(map[string]int)
	for _, item := range compositions {
		counts[item.PK]++
	}

	summaries := make([]model.ConfigurationSummary, 0, len(configs))
	for _, item := range configs {
		c, err := itemToConfig(item)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, model.ConfigurationSummary{
			Configuration:  *c,
			ComponentCount: counts[item.PK],
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ConfigID < summaries[j].ConfigID
	})
	return summaries, nil
}

// PutConfiguration writes the composition entries first, then the configuration record,
// so a configuration is never visible without its parts.
func (r *TableCatalogRepository) PutConfiguration(ctx context.Context, c *model.Configuration, entries []model.CompositionEntry) error {
	for _, e := range entries {
		if err := r.table.Put(ctx, compositionToItem(c.ConfigID, e)); err != nil {
			return fmt.Errorf("failed to put composition %s/%s: %w", c.ConfigID, e.ComponentID, err)
		}
	}
	if err := r.table.Put(ctx, configToItem(c)); err != nil {
		return fmt.Errorf("failed to put configuration %s: %w", c.ConfigID, err)
	}
	return nil
}

// GetComposition returns the configuration's entries ordered by component id.
func (r *TableCatalogRepository) GetComposition(ctx context.Context, configID string) ([]model.CompositionEntry, error) {
	items, err := r.table.Query(ctx, prefixConfig+configID, prefixComponent)
	if err != nil {
		return nil, fmt.Errorf("failed to get composition of %s: %w", configID, err)
	}

	entries := make([]model.CompositionEntry, 0, len(items))
	for _, item := range items {
		if item.Type != TypeComposition {
			continue
		}
		entries = append(entries, itemToComposition(item))
	}
	return entries, nil
}

// Ensure TableCatalogRepository implements CatalogRepository
var _ CatalogRepository = (*TableCatalogRepository)(nil)
