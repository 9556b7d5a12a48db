package store

import (
	"context"
	"sync"
)

// MemoryTable is an in-memory implementation of Table.
// Use this for development/testing or single-instance deployments.
type MemoryTable struct {
	mu    sync.RWMutex
	items map[Key]Item
}

// NewMemoryTable creates an empty in-memory table.
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{items: make(map[Key]Item)}
}

// Get returns the item stored at key.
func (t *MemoryTable) Get(ctx context.Context, key Key) (*Item, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	item, ok := t.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := item.Clone()
	return &out, nil
}

// Query returns the partition's items with the given SK prefix, ordered by SK.
func (t *MemoryTable) Query(ctx context.Context, pk, skPrefix string) ([]Item, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	f := Filter{SKPrefix: skPrefix}
	var out []Item
	for key, item := range t.items {
		if key.PK == pk && f.Match(item) {
			out = append(out, item.Clone())
		}
	}
	sortBySK(out)
	return out, nil
}

// Scan returns every item matching the filter.
func (t *MemoryTable) Scan(ctx context.Context, filter Filter) ([]Item, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Item
	for _, item := range t.items {
		if filter.Match(item) {
			out = append(out, item.Clone())
		}
	}
	return out, nil
}

// Put writes the item.
func (t *MemoryTable) Put(ctx context.Context, item Item) error {
	stored := item.Clone()
	stored.Attrs = normalizeAttrs(stored.Attrs)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.items[item.Key()] = stored
	return nil
}

// Delete removes the item.
func (t *MemoryTable) Delete(ctx context.Context, key Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.items, key)
	return nil
}

// UpdateCounter applies the counter update under the table lock.
func (t *MemoryTable) UpdateCounter(ctx context.Context, key Key, upd CounterUpdate) (*Item, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	item, ok := t.items[key]
	if !ok {
		return nil, ErrNotFound
	}

	current := item.Int(upd.Attr)
	if upd.Min != nil && current < *upd.Min {
		out := item.Clone()
		return &out, ErrConditionFailed
	}

	item = item.Clone()
	item.Attrs[upd.Attr] = current + upd.Delta
	t.items[key] = item

	out := item.Clone()
	return &out, nil
}

// Stats returns item counts per type.
func (t *MemoryTable) Stats(ctx context.Context) (map[string]interface{}, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	byType := make(map[string]int)
	for _, item := range t.items {
		byType[item.Type]++
	}
	return map[string]interface{}{
		"backend":     "memory",
		"total_items": len(t.items),
		"by_type":     byType,
	}, nil
}

// Close is a no-op.
func (t *MemoryTable) Close() error {
	return nil
}

// Ensure MemoryTable implements Table
var _ Table = (*MemoryTable)(nil)
