package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rigshop-api/internal/events"
	"rigshop-api/internal/model"
	"rigshop-api/internal/repository"
)

func TestReserve_PlacesOrder(t *testing.T) {
	f := newFixture(t, 10)
	f.seedLaptop(t)
	ctx := context.Background()

	detail, err := f.reservations.Reserve(ctx, alice, "LAPTOP-01", 1)
	require.NoError(t, err)

	assert.NotEmpty(t, detail.OrderID)
	assert.Equal(t, "alice", detail.UserID)
	assert.Equal(t, "LAPTOP-01", detail.ConfigID)
	assert.Equal(t, "LAPTOP-01 build", detail.ConfigName)
	assert.Equal(t, model.OrderCompleted, detail.Status)
	assert.True(t, decimal.RequireFromString("1299.00").Equal(detail.TotalPrice))

	assert.Equal(t, 48, f.stock(t, "RAM-8GB"))
	assert.Equal(t, 29, f.stock(t, "SSD-512GB"))
	assert.Equal(t, 19, f.stock(t, "CPU-I7"))

	require.Len(t, detail.ComponentsUsed, 3)
	byID := map[string]model.ComponentUsage{}
	for _, u := range detail.ComponentsUsed {
		byID[u.ComponentID] = u
	}
	ram := byID["RAM-8GB"]
	assert.Equal(t, "RAM-8GB part", ram.ComponentName)
	assert.Equal(t, 2, ram.QuantityUsed)
	assert.Equal(t, 50, ram.StockBefore)
	assert.Equal(t, 48, ram.StockAfter)
	assert.True(t, decimal.RequireFromString("45").Equal(byID["RAM-8GB"].PricePerUnit))

	ledger, err := f.orderRepo.GetLedger(ctx, "alice", detail.OrderID)
	require.NoError(t, err)
	assert.Len(t, ledger.Components, 3)

	assert.Equal(t, 1, f.published.count(events.EventOrderPlaced))
	assert.Equal(t, 0, f.published.count(events.EventReservationRejected))
}

func TestReserve_ExactArithmetic(t *testing.T) {
	f := newFixture(t, 10)
	f.seedLaptop(t)

	detail, err := f.reservations.Reserve(context.Background(), alice, "LAPTOP-01", 3)
	require.NoError(t, err)

	perUnit := map[string]int{"RAM-8GB": 2, "SSD-512GB": 1, "CPU-I7": 1}
	for _, u := range detail.ComponentsUsed {
		assert.Equal(t, perUnit[u.ComponentID]*3, u.QuantityUsed, u.ComponentID)
		assert.Equal(t, u.StockBefore-u.QuantityUsed, u.StockAfter, u.ComponentID)
		assert.Equal(t, u.StockAfter, f.stock(t, u.ComponentID), u.ComponentID)
	}
	assert.True(t, decimal.RequireFromString("3897").Equal(detail.TotalPrice))
}

func TestReserve_InsufficientStock(t *testing.T) {
	f := newFixture(t, 100)
	f.seedLaptop(t)

	_, err := f.reservations.Reserve(context.Background(), alice, "LAPTOP-01", 25)

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "CPU-I7", stockErr.ComponentID)
	assert.Equal(t, "CPU-I7 part", stockErr.ComponentName)
	assert.Equal(t, 25, stockErr.Required)
	assert.Equal(t, 20, stockErr.Available)

	assert.Equal(t, 50, f.stock(t, "RAM-8GB"))
	assert.Equal(t, 30, f.stock(t, "SSD-512GB"))
	assert.Equal(t, 20, f.stock(t, "CPU-I7"))
	assert.Empty(t, f.allOrders(t))
	assert.Equal(t, 0, f.ledgerCount(t))
	assert.Equal(t, 1, f.published.count(events.EventReservationRejected))
}

func TestReserve_UnknownConfiguration(t *testing.T) {
	f := newFixture(t, 10)
	f.seedLaptop(t)

	_, err := f.reservations.Reserve(context.Background(), alice, "UNKNOWN-ID", 1)
	assert.ErrorIs(t, err, ErrConfigNotFound)

	assert.Equal(t, 50, f.stock(t, "RAM-8GB"))
	assert.Empty(t, f.allOrders(t))
	assert.Empty(t, f.published.events)
}

func TestReserve_Validation(t *testing.T) {
	f := newFixture(t, 10)
	f.seedLaptop(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		principal model.Principal
		configID  string
		quantity  int
	}{
		{"zero quantity", alice, "LAPTOP-01", 0},
		{"negative quantity", alice, "LAPTOP-01", -2},
		{"above maximum", alice, "LAPTOP-01", 11},
		{"blank config", alice, "  ", 1},
		{"anonymous", model.Principal{}, "LAPTOP-01", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.reservations.Reserve(ctx, tt.principal, tt.configID, tt.quantity)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	assert.Equal(t, 20, f.stock(t, "CPU-I7"))
	assert.Empty(t, f.allOrders(t))
}

func TestReserve_EmptyComposition(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	cfg := &model.Configuration{ConfigID: "HOLLOW", Name: "Hollow", Price: decimal.NewFromInt(1)}
	require.NoError(t, f.catalogRepo.PutConfiguration(ctx, cfg, nil))

	_, err := f.reservations.Reserve(ctx, alice, "HOLLOW", 1)
	assert.ErrorIs(t, err, ErrEmptyComposition)
	assert.Empty(t, f.allOrders(t))
}

func TestReserve_MissingComponentIsInsufficient(t *testing.T) {
	f := newFixture(t, 10)
	f.seedLaptop(t)
	ctx := context.Background()

	require.NoError(t, f.table.Delete(ctx, repository.ComponentKey("SSD-512GB")))

	_, err := f.reservations.Reserve(ctx, alice, "LAPTOP-01", 1)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "SSD-512GB", stockErr.ComponentID)
	assert.Equal(t, 0, stockErr.Available)
	assert.Equal(t, 50, f.stock(t, "RAM-8GB"))
}

func TestReserve_CompetingOrdersForLastStock(t *testing.T) {
	f := newFixture(t, 10)
	f.addComponent(t, "GPU-RTX4070", 50, "600.00")
	f.addConfig(t, "RENDER-FARM", "20000",
		model.CompositionEntry{ComponentID: "GPU-RTX4070", QuantityPerUnit: 30})

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		errs   []error
		placed int
	)
	for _, p := range []model.Principal{alice, bob} {
		wg.Add(1)
		go func(p model.Principal) {
			defer wg.Done()
			_, err := f.reservations.Reserve(context.Background(), p, "RENDER-FARM", 1)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			placed++
		}(p)
	}
	wg.Wait()

	assert.Equal(t, 1, placed)
	require.Len(t, errs, 1)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, errs[0], &stockErr)
	assert.Equal(t, 30, stockErr.Required)
	assert.Equal(t, 20, stockErr.Available)
	assert.Equal(t, 20, f.stock(t, "GPU-RTX4070"))
	assert.Len(t, f.allOrders(t), 1)
}

func TestReserve_NeverOversells(t *testing.T) {
	f := newFixture(t, 10)
	f.addComponent(t, "PSU-750W", 12, "95.00")
	f.addComponent(t, "MOBO-Z690", 100, "180.00")
	f.addConfig(t, "BAREBONE", "299",
		model.CompositionEntry{ComponentID: "PSU-750W", QuantityPerUnit: 1},
		model.CompositionEntry{ComponentID: "MOBO-Z690", QuantityPerUnit: 1})

	const buyers = 40
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.reservations.Reserve(context.Background(), alice, "BAREBONE", 1)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			var stockErr *InsufficientStockError
			assert.True(t, errors.As(err, &stockErr), "unexpected error: %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 12, succeeded)
	assert.Equal(t, 0, f.stock(t, "PSU-750W"))
	assert.Equal(t, 88, f.stock(t, "MOBO-Z690"))
	assert.Len(t, f.allOrders(t), 12)
	assert.Equal(t, 12, f.ledgerCount(t))
}

func TestReserve_RestocksWhenDeductionLosesRace(t *testing.T) {
	f := newFixture(t, 10)
	f.seedLaptop(t)
	// SSD-512GB sorts last, so CPU-I7 and RAM-8GB are already deducted when it fails.
	f.table.set(f.table.drainOnTake, repository.ComponentKey("SSD-512GB").PK, true)

	_, err := f.reservations.Reserve(context.Background(), alice, "LAPTOP-01", 1)

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "SSD-512GB", stockErr.ComponentID)
	assert.Equal(t, 0, stockErr.Available)

	assert.Equal(t, 50, f.stock(t, "RAM-8GB"))
	assert.Equal(t, 20, f.stock(t, "CPU-I7"))
	assert.Empty(t, f.allOrders(t))
	assert.Equal(t, 0, f.ledgerCount(t))
	assert.Equal(t, 2, f.published.count(events.EventStockCompensated))
}

func TestReserve_QueuesFailedRestock(t *testing.T) {
	f := newFixture(t, 10)
	f.seedLaptop(t)
	ctx := context.Background()
	ramPK := repository.ComponentKey("RAM-8GB").PK
	f.table.set(f.table.drainOnTake, repository.ComponentKey("SSD-512GB").PK, true)
	f.table.set(f.table.failRestock, ramPK, true)

	_, err := f.reservations.Reserve(ctx, alice, "LAPTOP-01", 1)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)

	assert.Equal(t, 20, f.stock(t, "CPU-I7"))
	assert.Equal(t, 48, f.stock(t, "RAM-8GB"))

	pending, err := f.restockRepo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "RAM-8GB", pending[0].ComponentID)
	assert.Equal(t, 2, pending[0].Quantity)

	// Still failing: the restock stays queued.
	applied, err := f.restocks.RunNow()
	require.NoError(t, err)
	assert.Equal(t, 0, applied)

	f.table.set(f.table.failRestock, ramPK, false)
	applied, err = f.restocks.RunNow()
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, 50, f.stock(t, "RAM-8GB"))

	pending, err = f.restockRepo.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

// listBarrier holds every ListPending call until n callers have listed.
type listBarrier struct {
	repository.RestockRepository
	wg *sync.WaitGroup
}

func (b listBarrier) ListPending(ctx context.Context) ([]model.PendingRestock, error) {
	pending, err := b.RestockRepository.ListPending(ctx)
	b.wg.Done()
	b.wg.Wait()
	return pending, err
}

// failingDelete keeps applied restocks in the table.
type failingDelete struct {
	repository.RestockRepository
}

func (failingDelete) DeletePending(ctx context.Context, attemptID, componentID string) error {
	return errInjected
}

// queueRAMRestock leaves RAM-8GB at 48 with one pending restock of 2.
func queueRAMRestock(t *testing.T, f *fixture) {
	t.Helper()
	ramPK := repository.ComponentKey("RAM-8GB").PK
	f.table.set(f.table.drainOnTake, repository.ComponentKey("SSD-512GB").PK, true)
	f.table.set(f.table.failRestock, ramPK, true)

	_, err := f.reservations.Reserve(context.Background(), alice, "LAPTOP-01", 1)
	require.Error(t, err)
	require.Equal(t, 48, f.stock(t, "RAM-8GB"))

	f.table.set(f.table.failRestock, ramPK, false)
}

func TestRestockScheduler_SharedTableAppliesOnce(t *testing.T) {
	f := newFixture(t, 10)
	f.seedLaptop(t)
	queueRAMRestock(t, f)

	var listed sync.WaitGroup
	listed.Add(2)
	repo := listBarrier{RestockRepository: f.restockRepo, wg: &listed}
	schedulers := []*RestockScheduler{
		NewRestockScheduler(repo, f.catalogRepo, time.Hour, zap.NewNop()),
		NewRestockScheduler(repo, f.catalogRepo, time.Hour, zap.NewNop()),
	}

	var wg sync.WaitGroup
	results := make([]int, len(schedulers))
	for i, s := range schedulers {
		wg.Add(1)
		go func(i int, s *RestockScheduler) {
			defer wg.Done()
			n, err := s.RunNow()
			assert.NoError(t, err)
			results[i] = n
		}(i, s)
	}
	wg.Wait()

	assert.Equal(t, 1, results[0]+results[1])
	assert.Equal(t, 50, f.stock(t, "RAM-8GB"))

	pending, err := f.restockRepo.ListPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRestockScheduler_FailedDeleteIsNotReapplied(t *testing.T) {
	f := newFixture(t, 10)
	f.seedLaptop(t)
	queueRAMRestock(t, f)

	scheduler := NewRestockScheduler(failingDelete{f.restockRepo}, f.catalogRepo, time.Hour, zap.NewNop())

	applied, err := scheduler.RunNow()
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	applied, err = scheduler.RunNow()
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
	assert.Equal(t, 50, f.stock(t, "RAM-8GB"))

	pending, err := f.restockRepo.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].Claimed)
}

func TestReserve_OrderWriteFailureRestocks(t *testing.T) {
	f := newFixture(t, 10)
	f.seedLaptop(t)
	f.table.set(f.table.failPutTypes, repository.TypeOrder, true)

	_, err := f.reservations.Reserve(context.Background(), alice, "LAPTOP-01", 2)
	require.Error(t, err)
	var stockErr *InsufficientStockError
	assert.False(t, errors.As(err, &stockErr))

	assert.Equal(t, 50, f.stock(t, "RAM-8GB"))
	assert.Equal(t, 30, f.stock(t, "SSD-512GB"))
	assert.Equal(t, 20, f.stock(t, "CPU-I7"))
	assert.Equal(t, 0, f.ledgerCount(t))
	assert.Equal(t, 0, f.published.count(events.EventOrderPlaced))
}

func TestReserve_LedgerWriteFailureRemovesOrder(t *testing.T) {
	f := newFixture(t, 10)
	f.seedLaptop(t)
	f.table.set(f.table.failPutTypes, repository.TypeLedger, true)

	_, err := f.reservations.Reserve(context.Background(), alice, "LAPTOP-01", 1)
	require.Error(t, err)

	assert.Empty(t, f.allOrders(t))
	assert.Equal(t, 0, f.ledgerCount(t))
	assert.Equal(t, 50, f.stock(t, "RAM-8GB"))
	assert.Equal(t, 30, f.stock(t, "SSD-512GB"))
	assert.Equal(t, 20, f.stock(t, "CPU-I7"))
}

func TestDetachedContextOutlivesRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dctx, release := detached(ctx)
	defer release()
	cancel()

	assert.Error(t, ctx.Err())
	assert.NoError(t, dctx.Err())
	_, hasDeadline := dctx.Deadline()
	assert.True(t, hasDeadline)
}
