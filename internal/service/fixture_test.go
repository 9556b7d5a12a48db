package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rigshop-api/internal/cache"
	"rigshop-api/internal/events"
	"rigshop-api/internal/model"
	"rigshop-api/internal/repository"
	"rigshop-api/internal/store"
)

var errInjected = errors.New("injected store failure")

// flakyTable wraps a Table and fails selected operations on demand.
type flakyTable struct {
	store.Table

	mu           sync.Mutex
	drainOnTake  map[string]bool // PK: report the component as drained on deduction
	failRestock  map[string]bool // PK: fail positive counter updates
	failPutTypes map[string]bool // item Type: fail Put
}

func newFlakyTable(inner store.Table) *flakyTable {
	return &flakyTable{
		Table:        inner,
		drainOnTake:  map[string]bool{},
		failRestock:  map[string]bool{},
		failPutTypes: map[string]bool{},
	}
}

func (f *flakyTable) set(m map[string]bool, key string, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m[key] = on
}

func (f *flakyTable) is(m map[string]bool, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return m[key]
}

func (f *flakyTable) UpdateCounter(ctx context.Context, key store.Key, upd store.CounterUpdate) (*store.Item, error) {
	if upd.Delta < 0 && f.is(f.drainOnTake, key.PK) {
		item, err := f.Table.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		item.Attrs["stock"] = int64(0)
		return item, store.ErrConditionFailed
	}
	if upd.Delta > 0 && f.is(f.failRestock, key.PK) {
		return nil, errInjected
	}
	return f.Table.UpdateCounter(ctx, key, upd)
}

func (f *flakyTable) Put(ctx context.Context, item store.Item) error {
	if f.is(f.failPutTypes, item.Type) {
		return errInjected
	}
	return f.Table.Put(ctx, item)
}

// recordingPublisher keeps every published envelope.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Envelope
}

func (p *recordingPublisher) Publish(ctx context.Context, env events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, env)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

type fixture struct {
	table        *flakyTable
	catalogRepo  *repository.TableCatalogRepository
	orderRepo    *repository.TableOrderRepository
	restockRepo  *repository.TableRestockRepository
	catalog      *CatalogService
	reservations *ReservationService
	orders       *OrderService
	restocks     *RestockScheduler
	published    *recordingPublisher
}

func newFixture(t *testing.T, maxQuantity int) *fixture {
	t.Helper()

	table := newFlakyTable(store.NewMemoryTable())
	memCache := cache.NewMemoryCache()
	t.Cleanup(func() { memCache.Close() })

	logger := zap.NewNop()
	f := &fixture{
		table:       table,
		catalogRepo: repository.NewTableCatalogRepository(table),
		orderRepo:   repository.NewTableOrderRepository(table),
		restockRepo: repository.NewTableRestockRepository(table),
		published:   &recordingPublisher{},
	}
	f.catalog = NewCatalogService(f.catalogRepo, memCache, time.Minute, logger)
	f.reservations = NewReservationService(f.catalog, f.catalogRepo, f.orderRepo, f.restockRepo, f.published,
		ReservationConfig{MaxQuantity: maxQuantity}, logger)
	f.orders = NewOrderService(f.orderRepo, logger)
	f.restocks = NewRestockScheduler(f.restockRepo, f.catalogRepo, time.Hour, logger)
	return f
}

func (f *fixture) addComponent(t *testing.T, id string, stock int, price string) {
	t.Helper()
	_, err := f.catalog.CreateComponent(context.Background(), CreateComponentInput{
		ID: id, Name: id + " part", Stock: stock, Price: decimal.RequireFromString(price),
	})
	require.NoError(t, err)
}

func (f *fixture) addConfig(t *testing.T, id, price string, parts ...model.CompositionEntry) {
	t.Helper()
	_, err := f.catalog.CreateConfiguration(context.Background(), CreateConfigurationInput{
		ID: id, Name: id + " build", Price: decimal.RequireFromString(price), Components: parts,
	})
	require.NoError(t, err)
}

// seedLaptop loads the LAPTOP-01 catalog: 2x RAM-8GB + 1x SSD-512GB + 1x CPU-I7 at 1299.
func (f *fixture) seedLaptop(t *testing.T) {
	t.Helper()
	f.addComponent(t, "RAM-8GB", 50, "45.00")
	f.addComponent(t, "SSD-512GB", 30, "60.00")
	f.addComponent(t, "CPU-I7", 20, "320.00")
	f.addConfig(t, "LAPTOP-01", "1299",
		model.CompositionEntry{ComponentID: "RAM-8GB", QuantityPerUnit: 2},
		model.CompositionEntry{ComponentID: "SSD-512GB", QuantityPerUnit: 1},
		model.CompositionEntry{ComponentID: "CPU-I7", QuantityPerUnit: 1},
	)
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	c, err := f.catalogRepo.GetComponent(context.Background(), id)
	require.NoError(t, err)
	return c.Stock
}

func (f *fixture) allOrders(t *testing.T) []model.Order {
	t.Helper()
	orders, err := f.orderRepo.ListOrders(context.Background())
	require.NoError(t, err)
	return orders
}

func (f *fixture) ledgerCount(t *testing.T) int {
	t.Helper()
	items, err := f.table.Scan(context.Background(), store.Filter{Type: repository.TypeLedger})
	require.NoError(t, err)
	return len(items)
}

var (
	alice = model.Principal{UserID: "alice", Role: model.RoleUser}
	bob   = model.Principal{UserID: "bob", Role: model.RoleUser}
	admin = model.Principal{UserID: "root", Role: model.RoleAdmin}
)
