package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rigshop-api/internal/model"
	"rigshop-api/internal/store"
)

func TestCatalog_ComponentRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewTableCatalogRepository(store.NewMemoryTable())

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	in := &model.Component{
		ComponentID: "RAM-8GB",
		Name:        "8GB DDR4 RAM",
		Stock:       50,
		Price:       decimal.RequireFromString("45.00"),
		Specs:       map[string]string{"type": "DDR4", "speed": "3200MHz"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, repo.PutComponent(ctx, in))

	got, err := repo.GetComponent(ctx, "RAM-8GB")
	require.NoError(t, err)
	assert.Equal(t, "8GB DDR4 RAM", got.Name)
	assert.Equal(t, 50, got.Stock)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(45)))
	assert.Equal(t, "DDR4", got.Specs["type"])
	assert.True(t, got.CreatedAt.Equal(now))

	_, err = repo.GetComponent(ctx, "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalog_DeductAndRestock(t *testing.T) {
	ctx := context.Background()
	repo := NewTableCatalogRepository(store.NewMemoryTable())
	require.NoError(t, repo.PutComponent(ctx, &model.Component{ComponentID: "CPU-I7", Name: "i7", Stock: 3}))

	c, err := repo.DeductStock(ctx, "CPU-I7", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Stock)

	c, err = repo.DeductStock(ctx, "CPU-I7", 2)
	assert.ErrorIs(t, err, ErrStockConflict)
	require.NotNil(t, c)
	assert.Equal(t, 1, c.Stock)

	c, err = repo.RestockComponent(ctx, "CPU-I7", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Stock)

	_, err = repo.DeductStock(ctx, "GHOST", 1)
	assert.ErrorIs(t, err, ErrNotFound)

	c, err = repo.SetComponentStock(ctx, "CPU-I7", 9)
	require.NoError(t, err)
	assert.Equal(t, 9, c.Stock)
}

func TestCatalog_ConfigurationsAndComposition(t *testing.T) {
	ctx := context.Background()
	repo := NewTableCatalogRepository(store.NewMemoryTable())

	cfg := &model.Configuration{ConfigID: "LAPTOP-01", Name: "Laptop", Price: decimal.NewFromInt(1299)}
	entries := []model.CompositionEntry{
		{ComponentID: "SSD-512GB", QuantityPerUnit: 1},
		{ComponentID: "CPU-I7", QuantityPerUnit: 1},
		{ComponentID: "RAM-8GB", QuantityPerUnit: 2},
	}
	require.NoError(t, repo.PutConfiguration(ctx, cfg, entries))
	require.NoError(t, repo.PutConfiguration(ctx, &model.Configuration{ConfigID: "DESK-01", Name: "Desk"}, nil))

	got, err := repo.GetConfiguration(ctx, "LAPTOP-01")
	require.NoError(t, err)
	assert.Equal(t, "Laptop", got.Name)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(1299)))

	comp, err := repo.GetComposition(ctx, "LAPTOP-01")
	require.NoError(t, err)
	assert.Equal(t, []model.CompositionEntry{
		{ComponentID: "CPU-I7", QuantityPerUnit: 1},
		{ComponentID: "RAM-8GB", QuantityPerUnit: 2},
		{ComponentID: "SSD-512GB", QuantityPerUnit: 1},
	}, comp)

	summaries, err := repo.ListConfigurations(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "DESK-01", summaries[0].ConfigID)
	assert.Equal(t, 0, summaries[0].ComponentCount)
	assert.Equal(t, 3, summaries[1].ComponentCount)

	_, err = repo.GetConfiguration(ctx, "MISSING")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrders_LedgerIsSeparateFromOrderListing(t *testing.T) {
	ctx := context.Background()
	repo := NewTableOrderRepository(store.NewMemoryTable())

	order := &model.Order{
		OrderID:    "o-1",
		UserID:     "u-1",
		ConfigID:   "LAPTOP-01",
		ConfigName: "Laptop",
		Quantity:   2,
		TotalPrice: decimal.NewFromInt(2598),
		Status:     model.OrderCompleted,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, repo.PutOrder(ctx, order))
	require.NoError(t, repo.PutLedger(ctx, &model.LedgerEntry{
		OrderID: "o-1",
		UserID:  "u-1",
		Components: []model.ComponentUsage{
			{ComponentID: "RAM-8GB", ComponentName: "RAM", QuantityUsed: 4, StockBefore: 10, StockAfter: 6, PricePerUnit: decimal.NewFromInt(45)},
		},
	}))
	require.NoError(t, repo.PutOrder(ctx, &model.Order{OrderID: "o-2", UserID: "u-2", Status: model.OrderCompleted}))

	mine, err := repo.ListOrdersByUser(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "o-1", mine[0].OrderID)
	assert.True(t, mine[0].TotalPrice.Equal(decimal.NewFromInt(2598)))

	all, err := repo.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	found, err := repo.FindOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", found.UserID)

	ledger, err := repo.GetLedger(ctx, "u-1", "o-1")
	require.NoError(t, err)
	require.Len(t, ledger.Components, 1)
	assert.Equal(t, 4, ledger.Components[0].QuantityUsed)

	require.NoError(t, repo.DeleteOrder(ctx, "u-1", "o-1"))
	_, err = repo.FindOrder(ctx, "o-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRestock_PendingLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewTableRestockRepository(store.NewMemoryTable())

	older := time.Now().Add(-time.Minute)
	require.NoError(t, repo.PutPending(ctx, &model.PendingRestock{AttemptID: "a2", ComponentID: "SSD", Quantity: 1, CreatedAt: time.Now()}))
	require.NoError(t, repo.PutPending(ctx, &model.PendingRestock{AttemptID: "a1", ComponentID: "RAM", Quantity: 4, Reason: "compensation", CreatedAt: older}))

	pending, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a1", pending[0].AttemptID)
	assert.Equal(t, "RAM", pending[0].ComponentID)
	assert.Equal(t, 4, pending[0].Quantity)

	require.NoError(t, repo.DeletePending(ctx, "a1", "RAM"))
	pending, err = repo.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestRestock_ClaimIsExclusive(t *testing.T) {
	ctx := context.Background()
	repo := NewTableRestockRepository(store.NewMemoryTable())
	require.NoError(t, repo.PutPending(ctx, &model.PendingRestock{AttemptID: "a1", ComponentID: "RAM", Quantity: 2, CreatedAt: time.Now()}))

	ok, err := repo.ClaimPending(ctx, "a1", "RAM")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ClaimPending(ctx, "a1", "RAM")
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	pending, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].Claimed)

	require.NoError(t, repo.ReleasePending(ctx, "a1", "RAM"))
	ok, err = repo.ClaimPending(ctx, "a1", "RAM")
	require.NoError(t, err)
	assert.True(t, ok, "released restock can be claimed again")

	ok, err = repo.ClaimPending(ctx, "gone", "RAM")
	require.NoError(t, err)
	assert.False(t, ok)
}

// noScanTable fails every Scan and, when failOrders is set, every order Put.
type noScanTable struct {
	store.Table
	failOrders bool
}

func (n noScanTable) Scan(ctx context.Context, filter store.Filter) ([]store.Item, error) {
	return nil, errors.New("scan not allowed")
}

func (n noScanTable) Put(ctx context.Context, item store.Item) error {
	if n.failOrders && item.Type == TypeOrder {
		return errors.New("order write failed")
	}
	return n.Table.Put(ctx, item)
}

func TestOrder_FindReadsOwnerPointer(t *testing.T) {
	ctx := context.Background()
	table := store.NewMemoryTable()
	repo := NewTableOrderRepository(noScanTable{Table: table})

	require.NoError(t, repo.PutOrder(ctx, &model.Order{OrderID: "o-9", UserID: "u-9", Status: model.OrderCompleted}))

	found, err := repo.FindOrder(ctx, "o-9")
	require.NoError(t, err)
	assert.Equal(t, "u-9", found.UserID)

	_, err = repo.FindOrder(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)

	failing := NewTableOrderRepository(noScanTable{Table: table, failOrders: true})
	require.Error(t, failing.PutOrder(ctx, &model.Order{OrderID: "o-10", UserID: "u-9", Status: model.OrderCompleted}))
	_, err = table.Get(ctx, orderOwnerKey("o-10"))
	assert.ErrorIs(t, err, store.ErrNotFound, "a failed order write leaves no owner pointer")
}
