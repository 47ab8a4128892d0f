package application

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ims-platform/inventory-service/internal/domain"
	apperrors "github.com/ims-platform/inventory-service/pkg/errors"
	"github.com/ims-platform/inventory-service/pkg/logging"
	"github.com/ims-platform/inventory-service/pkg/metrics"
)

func assertAppErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

func TestStockService_CreateInventory(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a record at version 1", func(t *testing.T) {
		f := newServiceFixture()

		result, err := f.service.CreateInventory(ctx, CreateInventoryCommand{
			ProductID:        "SKU-100",
			InitialQuantity:  50,
			ReorderThreshold: 10,
			IdempotencyKey:   "create-1",
		})
		require.NoError(t, err)

		assert.False(t, result.Replayed)
		assert.Equal(t, "SKU-100", result.Record.ProductID)
		assert.Equal(t, int64(50), result.Record.Quantity)
		assert.Equal(t, int64(1), result.Record.Version)
		assert.Contains(t, f.outbox.eventTypes(), domain.EventInventoryCreated)
	})

	t.Run("same key replays the original creation", func(t *testing.T) {
		f := newServiceFixture()

		first, err := f.service.CreateInventory(ctx, CreateInventoryCommand{
			ProductID: "SKU-100", InitialQuantity: 50, IdempotencyKey: "create-1",
		})
		require.NoError(t, err)

		second, err := f.service.CreateInventory(ctx, CreateInventoryCommand{
			ProductID: "SKU-100", InitialQuantity: 999, IdempotencyKey: "create-1",
		})
		require.NoError(t, err)

		assert.True(t, second.Replayed)
		assert.Equal(t, first.Record.Quantity, second.Record.Quantity)
	})

	t.Run("different key conflicts", func(t *testing.T) {
		f := newServiceFixture()

		_, err := f.service.CreateInventory(ctx, CreateInventoryCommand{
			ProductID: "SKU-100", InitialQuantity: 50, IdempotencyKey: "create-1",
		})
		require.NoError(t, err)

		_, err = f.service.CreateInventory(ctx, CreateInventoryCommand{
			ProductID: "SKU-100", InitialQuantity: 50, IdempotencyKey: "create-2",
		})
		assertAppErrorCode(t, err, apperrors.CodeConflict)
	})

	t.Run("missing key conflicts on duplicate", func(t *testing.T) {
		f := newServiceFixture()

		_, err := f.service.CreateInventory(ctx, CreateInventoryCommand{ProductID: "SKU-100", InitialQuantity: 50})
		require.NoError(t, err)

		_, err = f.service.CreateInventory(ctx, CreateInventoryCommand{ProductID: "SKU-100", InitialQuantity: 50})
		assertAppErrorCode(t, err, apperrors.CodeConflict)
	})

	t.Run("rejects negative opening stock", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.service.CreateInventory(ctx, CreateInventoryCommand{ProductID: "SKU-100", InitialQuantity: -1})
		assertAppErrorCode(t, err, apperrors.CodeValidationError)
	})
}

func TestStockService_Movements(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, f *serviceFixture, quantity int64) {
		t.Helper()
		_, err := f.service.CreateInventory(ctx, CreateInventoryCommand{
			ProductID: "SKU-100", InitialQuantity: quantity, ReorderThreshold: 5,
		})
		require.NoError(t, err)
	}

	t.Run("add increases stock and appends to ledger", func(t *testing.T) {
		f := newServiceFixture()
		seed(t, f, 10)

		result, err := f.service.AddStock(ctx, AddStockCommand{ProductID: "SKU-100", Quantity: 15, Reason: "restock"})
		require.NoError(t, err)

		assert.Equal(t, int64(25), result.Record.Quantity)
		assert.Equal(t, int64(2), result.Record.Version)
		assert.Equal(t, string(domain.MovementAdd), result.Movement.Kind)
		assert.Equal(t, int64(25), result.Movement.ResultingQuantity)

		entries, _, err := f.ledger.ListByProduct(ctx, "SKU-100", "", 10)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("remove of entire quantity reaches zero", func(t *testing.T) {
		f := newServiceFixture()
		seed(t, f, 10)

		result, err := f.service.RemoveStock(ctx, RemoveStockCommand{ProductID: "SKU-100", Quantity: 10})
		require.NoError(t, err)

		assert.Equal(t, int64(0), result.Record.Quantity)
		assert.True(t, result.Record.IsOutOfStock)
	})

	t.Run("remove beyond stock fails without a ledger entry", func(t *testing.T) {
		f := newServiceFixture()
		seed(t, f, 10)

		_, err := f.service.RemoveStock(ctx, RemoveStockCommand{ProductID: "SKU-100", Quantity: 11})
		assertAppErrorCode(t, err, apperrors.CodeInsufficientStock)

		record, err := f.store.Get(ctx, "SKU-100")
		require.NoError(t, err)
		assert.Equal(t, int64(10), record.Quantity)
		assert.Equal(t, int64(1), record.Version)

		entries, _, err := f.ledger.ListByProduct(ctx, "SKU-100", "", 10)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("adjust sets absolute quantity", func(t *testing.T) {
		f := newServiceFixture()
		seed(t, f, 10)

		result, err := f.service.AdjustStock(ctx, AdjustStockCommand{ProductID: "SKU-100", NewQuantity: 3, Reason: "cycle count"})
		require.NoError(t, err)
		assert.Equal(t, int64(3), result.Record.Quantity)
	})

	t.Run("adjust below reserved fails", func(t *testing.T) {
		f := newServiceFixture()
		seed(t, f, 10)

		_, err := f.service.ReserveStock(ctx, ReserveStockCommand{ProductID: "SKU-100", Quantity: 6})
		require.NoError(t, err)

		_, err = f.service.AdjustStock(ctx, AdjustStockCommand{ProductID: "SKU-100", NewQuantity: 5})
		assertAppErrorCode(t, err, apperrors.CodeReservationExceedsStock)
	})

	t.Run("reserve and release round trip", func(t *testing.T) {
		f := newServiceFixture()
		seed(t, f, 10)

		reserved, err := f.service.ReserveStock(ctx, ReserveStockCommand{ProductID: "SKU-100", Quantity: 6})
		require.NoError(t, err)
		assert.Equal(t, int64(6), reserved.Record.ReservedQuantity)
		assert.Equal(t, int64(4), reserved.Record.AvailableQuantity)

		_, err = f.service.RemoveStock(ctx, RemoveStockCommand{ProductID: "SKU-100", Quantity: 5})
		assertAppErrorCode(t, err, apperrors.CodeInsufficientStock)

		released, err := f.service.ReleaseReservation(ctx, ReleaseReservationCommand{ProductID: "SKU-100", Quantity: 6})
		require.NoError(t, err)
		assert.Equal(t, int64(0), released.Record.ReservedQuantity)
		assert.Equal(t, int64(10), released.Record.AvailableQuantity)
	})

	t.Run("unknown product is not found", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.service.AddStock(ctx, AddStockCommand{ProductID: "SKU-MISSING", Quantity: 1})
		assertAppErrorCode(t, err, apperrors.CodeNotFound)
	})

	t.Run("rejects non-positive delta", func(t *testing.T) {
		f := newServiceFixture()
		seed(t, f, 10)

		_, err := f.service.AddStock(ctx, AddStockCommand{ProductID: "SKU-100", Quantity: 0})
		assertAppErrorCode(t, err, apperrors.CodeValidationError)

		_, err = f.service.RemoveStock(ctx, RemoveStockCommand{ProductID: "SKU-100", Quantity: -2})
		assertAppErrorCode(t, err, apperrors.CodeValidationError)
	})
}

func TestStockService_Idempotency(t *testing.T) {
	ctx := context.Background()

	t.Run("same key applies once", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.service.CreateInventory(ctx, CreateInventoryCommand{ProductID: "SKU-100", InitialQuantity: 10})
		require.NoError(t, err)

		first, err := f.service.AddStock(ctx, AddStockCommand{ProductID: "SKU-100", Quantity: 5, IdempotencyKey: "mv-1"})
		require.NoError(t, err)
		assert.False(t, first.Replayed)

		second, err := f.service.AddStock(ctx, AddStockCommand{ProductID: "SKU-100", Quantity: 5, IdempotencyKey: "mv-1"})
		require.NoError(t, err)
		assert.True(t, second.Replayed)
		assert.Equal(t, first.Movement.MovementID, second.Movement.MovementID)

		record, err := f.store.Get(ctx, "SKU-100")
		require.NoError(t, err)
		assert.Equal(t, int64(15), record.Quantity)
		assert.Equal(t, int64(2), record.Version)

		entries, _, err := f.ledger.ListByProduct(ctx, "SKU-100", "", 10)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("key reuse across kinds conflicts", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.service.CreateInventory(ctx, CreateInventoryCommand{ProductID: "SKU-100", InitialQuantity: 10})
		require.NoError(t, err)

		_, err = f.service.AddStock(ctx, AddStockCommand{ProductID: "SKU-100", Quantity: 5, IdempotencyKey: "mv-1"})
		require.NoError(t, err)

		_, err = f.service.RemoveStock(ctx, RemoveStockCommand{ProductID: "SKU-100", Quantity: 5, IdempotencyKey: "mv-1"})
		assertAppErrorCode(t, err, apperrors.CodeConflict)
	})

	t.Run("key reuse across products conflicts", func(t *testing.T) {
		f := newServiceFixture()
		for _, id := range []string{"SKU-100", "SKU-200"} {
			_, err := f.service.CreateInventory(ctx, CreateInventoryCommand{ProductID: id, InitialQuantity: 10})
			require.NoError(t, err)
		}

		_, err := f.service.AddStock(ctx, AddStockCommand{ProductID: "SKU-100", Quantity: 5, IdempotencyKey: "mv-1"})
		require.NoError(t, err)

		_, err = f.service.AddStock(ctx, AddStockCommand{ProductID: "SKU-200", Quantity: 5, IdempotencyKey: "mv-1"})
		assertAppErrorCode(t, err, apperrors.CodeConflict)
	})

	t.Run("missing key applies every time", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.service.CreateInventory(ctx, CreateInventoryCommand{ProductID: "SKU-100", InitialQuantity: 0})
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			_, err := f.service.AddStock(ctx, AddStockCommand{ProductID: "SKU-100", Quantity: 5})
			require.NoError(t, err)
		}

		record, err := f.store.Get(ctx, "SKU-100")
		require.NoError(t, err)
		assert.Equal(t, int64(15), record.Quantity)
	})
}

func TestStockService_Concurrency(t *testing.T) {
	ctx := context.Background()

	t.Run("version conflict is retried", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.service.CreateInventory(ctx, CreateInventoryCommand{ProductID: "SKU-100", InitialQuantity: 10})
		require.NoError(t, err)

		// One competing write sneaks in ahead of the first attempt.
		interfered := false
		f.store.beforeCAS = func() {
			if interfered {
				return
			}
			interfered = true
			f.store.mu.Lock()
			record := f.store.records["SKU-100"]
			record.Quantity += 7
			record.Version++
			f.store.mu.Unlock()
		}

		result, err := f.service.AddStock(ctx, AddStockCommand{ProductID: "SKU-100", Quantity: 5})
		require.NoError(t, err)

		assert.Equal(t, int64(22), result.Record.Quantity)
		assert.Equal(t, int64(3), result.Record.Version)
	})

	t.Run("persistent conflicts exhaust retries", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.service.CreateInventory(ctx, CreateInventoryCommand{ProductID: "SKU-100", InitialQuantity: 10})
		require.NoError(t, err)

		f.store.beforeCAS = func() {
			f.store.mu.Lock()
			f.store.records["SKU-100"].Version++
			f.store.mu.Unlock()
		}

		_, err = f.service.AddStock(ctx, AddStockCommand{ProductID: "SKU-100", Quantity: 5})
		assertAppErrorCode(t, err, apperrors.CodeConcurrencyExhausted)
	})

	t.Run("canceled context maps to timeout", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.service.CreateInventory(ctx, CreateInventoryCommand{ProductID: "SKU-100", InitialQuantity: 10})
		require.NoError(t, err)

		f.store.beforeCAS = func() {
			f.store.mu.Lock()
			f.store.records["SKU-100"].Version++
			f.store.mu.Unlock()
		}

		canceled, cancel := context.WithCancel(ctx)
		cancel()

		_, err = f.service.AddStock(canceled, AddStockCommand{ProductID: "SKU-100", Quantity: 5})
		assertAppErrorCode(t, err, apperrors.CodeTimeout)
	})

	t.Run("concurrent adds all land", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.service.CreateInventory(ctx, CreateInventoryCommand{ProductID: "SKU-100", InitialQuantity: 0})
		require.NoError(t, err)

		logger := logging.New(&logging.Config{ServiceName: "inventory-service-test", Output: io.Discard})
		m := metrics.New(metrics.DefaultConfig("inventory-service-test-fan"))
		service := NewStockApplicationService(f.store, f.ledger, StockServiceConfig{
			MaxAttempts:    50,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		}, m, logger)

		const writers = 10
		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = service.AddStock(ctx, AddStockCommand{ProductID: "SKU-100", Quantity: 1})
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			require.NoError(t, err, "writer %d", i)
		}

		record, err := f.store.Get(ctx, "SKU-100")
		require.NoError(t, err)
		assert.Equal(t, int64(writers), record.Quantity)
		assert.Equal(t, int64(writers+1), record.Version)

		entries, _, err := f.ledger.ListByProduct(ctx, "SKU-100", "", writers+1)
		require.NoError(t, err)
		assert.Len(t, entries, writers)

		// Replaying the ledger must reproduce the stored record, including
		// a gapless version sequence across the interleaved writers. Appends
		// land after the version race is decided, so order by version first.
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].ResultingVersion < entries[j].ResultingVersion
		})
		replayed, err := domain.ReplayMovements("SKU-100", 0, entries)
		require.NoError(t, err)
		assert.Equal(t, record.Quantity, replayed.Quantity)
		assert.Equal(t, record.Version, replayed.Version)
	})

	t.Run("two concurrent full removals admit exactly one", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.service.CreateInventory(ctx, CreateInventoryCommand{ProductID: "SKU-100", InitialQuantity: 10})
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.service.RemoveStock(ctx, RemoveStockCommand{ProductID: "SKU-100", Quantity: 10})
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assertAppErrorCode(t, err, apperrors.CodeInsufficientStock)
		}
		assert.Equal(t, 1, succeeded)

		record, err := f.store.Get(ctx, "SKU-100")
		require.NoError(t, err)
		assert.Equal(t, int64(0), record.Quantity)
	})
}

func TestStockService_UpdateReorderThreshold(t *testing.T) {
	ctx := context.Background()

	t.Run("updates threshold without a ledger entry", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.service.CreateInventory(ctx, CreateInventoryCommand{ProductID: "SKU-100", InitialQuantity: 10, ReorderThreshold: 5})
		require.NoError(t, err)

		record, err := f.service.UpdateReorderThreshold(ctx, UpdateThresholdCommand{ProductID: "SKU-100", ReorderThreshold: 20})
		require.NoError(t, err)

		assert.Equal(t, int64(20), record.ReorderThreshold)
		assert.Equal(t, int64(2), record.Version)
		assert.True(t, record.IsLowStock)

		entries, _, err := f.ledger.ListByProduct(ctx, "SKU-100", "", 10)
		require.NoError(t, err)
		assert.Empty(t, entries)
		assert.Contains(t, f.outbox.eventTypes(), domain.EventThresholdUpdated)
	})

	t.Run("rejects negative threshold", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.service.CreateInventory(ctx, CreateInventoryCommand{ProductID: "SKU-100", InitialQuantity: 10})
		require.NoError(t, err)

		_, err = f.service.UpdateReorderThreshold(ctx, UpdateThresholdCommand{ProductID: "SKU-100", ReorderThreshold: -1})
		assertAppErrorCode(t, err, apperrors.CodeValidationError)
	})

	t.Run("unknown product is not found", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.service.UpdateReorderThreshold(ctx, UpdateThresholdCommand{ProductID: "SKU-MISSING", ReorderThreshold: 5})
		assertAppErrorCode(t, err, apperrors.CodeNotFound)
	})
}

func TestStockService_Queries(t *testing.T) {
	ctx := context.Background()

	t.Run("get record not found", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.service.GetRecord(ctx, GetRecordQuery{ProductID: "SKU-MISSING"})
		assertAppErrorCode(t, err, apperrors.CodeNotFound)
	})

	t.Run("list inventory pages in product order", func(t *testing.T) {
		f := newServiceFixture()
		for _, id := range []string{"SKU-300", "SKU-100", "SKU-200"} {
			_, err := f.service.CreateInventory(ctx, CreateInventoryCommand{ProductID: id, InitialQuantity: 1})
			require.NoError(t, err)
		}

		page1, cursor, err := f.service.ListInventory(ctx, ListInventoryQuery{Limit: 2})
		require.NoError(t, err)
		require.Len(t, page1, 2)
		assert.Equal(t, "SKU-100", page1[0].ProductID)
		assert.Equal(t, "SKU-200", page1[1].ProductID)
		require.NotEmpty(t, cursor)

		page2, cursor, err := f.service.ListInventory(ctx, ListInventoryQuery{Cursor: cursor, Limit: 2})
		require.NoError(t, err)
		require.Len(t, page2, 1)
		assert.Equal(t, "SKU-300", page2[0].ProductID)
		assert.Empty(t, cursor)
	})

	t.Run("list movements in append order", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.service.CreateInventory(ctx, CreateInventoryCommand{ProductID: "SKU-100", InitialQuantity: 0})
		require.NoError(t, err)

		for _, key := range []string{"mv-1", "mv-2", "mv-3"} {
			_, err := f.service.AddStock(ctx, AddStockCommand{ProductID: "SKU-100", Quantity: 1, IdempotencyKey: key})
			require.NoError(t, err)
		}

		movements, _, err := f.service.ListMovements(ctx, ListMovementsQuery{ProductID: "SKU-100", Limit: 10})
		require.NoError(t, err)
		require.Len(t, movements, 3)
		assert.Equal(t, "mv-1", movements[0].MovementID)
		assert.Equal(t, "mv-3", movements[2].MovementID)
		assert.Equal(t, int64(1), movements[0].ResultingQuantity)
		assert.Equal(t, int64(3), movements[2].ResultingQuantity)
	})

	t.Run("malformed inventory cursor is a validation error", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.service.CreateInventory(ctx, CreateInventoryCommand{ProductID: "SKU-100", InitialQuantity: 1})
		require.NoError(t, err)

		_, _, err = f.service.ListInventory(ctx, ListInventoryQuery{Cursor: "!!!not-a-cursor!!!", Limit: 10})
		assertAppErrorCode(t, err, apperrors.CodeValidationError)
	})

	t.Run("malformed movement cursor is a validation error", func(t *testing.T) {
		f := newServiceFixture()
		_, err := f.service.CreateInventory(ctx, CreateInventoryCommand{ProductID: "SKU-100", InitialQuantity: 1})
		require.NoError(t, err)

		_, _, err = f.service.ListMovements(ctx, ListMovementsQuery{ProductID: "SKU-100", Cursor: "!!!not-a-cursor!!!", Limit: 10})
		assertAppErrorCode(t, err, apperrors.CodeValidationError)
	})

	t.Run("list movements for unknown product is not found", func(t *testing.T) {
		f := newServiceFixture()
		_, _, err := f.service.ListMovements(ctx, ListMovementsQuery{ProductID: "SKU-MISSING", Limit: 10})
		assertAppErrorCode(t, err, apperrors.CodeNotFound)
	})
}
