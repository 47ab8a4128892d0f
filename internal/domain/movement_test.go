package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMovementKind_IsValid(t *testing.T) {
	for _, kind := range []MovementKind{MovementAdd, MovementRemove, MovementAdjust, MovementReserve, MovementRelease} {
		assert.True(t, kind.IsValid(), string(kind))
	}
	assert.False(t, MovementKind("TRANSFER").IsValid())
	assert.False(t, MovementKind("").IsValid())
}

func TestNewStockMovement(t *testing.T) {
	record, err := NewInventoryRecord("SKU-100", 25, 5, "")
	require.NoError(t, err)
	record.Version = 3
	require.NoError(t, record.Reserve(4))

	t.Run("snapshots record state", func(t *testing.T) {
		movement, err := NewStockMovement("mv-1", record, MovementAdd, 10, "restock")
		require.NoError(t, err)

		assert.Equal(t, "mv-1", movement.MovementID)
		assert.Equal(t, "SKU-100", movement.ProductID)
		assert.Equal(t, MovementAdd, movement.Kind)
		assert.Equal(t, int64(10), movement.Quantity)
		assert.Equal(t, int64(25), movement.ResultingQuantity)
		assert.Equal(t, int64(4), movement.ResultingReserved)
		assert.Equal(t, int64(3), movement.ResultingVersion)
		assert.Equal(t, "restock", movement.Reason)
		assert.False(t, movement.RecordedAt.IsZero())
	})

	t.Run("rejects empty movement ID", func(t *testing.T) {
		_, err := NewStockMovement("", record, MovementAdd, 10, "")
		assert.Error(t, err)
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		_, err := NewStockMovement("mv-2", record, MovementKind("TRANSFER"), 10, "")
		assert.ErrorIs(t, err, ErrInvalidMovementKind)
	})
}

func TestStockMovement_Apply(t *testing.T) {
	tests := []struct {
		name         string
		kind         MovementKind
		quantity     int64
		wantQuantity int64
		wantReserved int64
	}{
		{"add is a delta", MovementAdd, 5, 15, 2},
		{"remove is a delta", MovementRemove, 3, 7, 2},
		{"adjust is absolute", MovementAdjust, 4, 4, 2},
		{"reserve holds stock", MovementReserve, 6, 10, 8},
		{"release frees stock", MovementRelease, 2, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := &InventoryRecord{ProductID: "SKU-200", Quantity: 10, ReservedQuantity: 2, Version: 1}
			movement := &StockMovement{MovementID: "mv-1", ProductID: "SKU-200", Kind: tt.kind, Quantity: tt.quantity}

			require.NoError(t, movement.Apply(record))
			assert.Equal(t, tt.wantQuantity, record.Quantity)
			assert.Equal(t, tt.wantReserved, record.ReservedQuantity)
		})
	}

	t.Run("unknown kind fails", func(t *testing.T) {
		record := &InventoryRecord{ProductID: "SKU-200", Quantity: 10}
		movement := &StockMovement{MovementID: "mv-1", Kind: MovementKind("TRANSFER"), Quantity: 1}
		assert.ErrorIs(t, movement.Apply(record), ErrInvalidMovementKind)
	})
}

func TestReplayMovements(t *testing.T) {
	t.Run("reconstructs final state from ledger", func(t *testing.T) {
		movements := []*StockMovement{
			{MovementID: "mv-1", ProductID: "SKU-300", Kind: MovementAdd, Quantity: 20, ResultingQuantity: 20, ResultingReserved: 0, ResultingVersion: 2},
			{MovementID: "mv-2", ProductID: "SKU-300", Kind: MovementReserve, Quantity: 5, ResultingQuantity: 20, ResultingReserved: 5, ResultingVersion: 3},
			{MovementID: "mv-3", ProductID: "SKU-300", Kind: MovementRemove, Quantity: 8, ResultingQuantity: 12, ResultingReserved: 5, ResultingVersion: 4},
			{MovementID: "mv-4", ProductID: "SKU-300", Kind: MovementRelease, Quantity: 5, ResultingQuantity: 12, ResultingReserved: 0, ResultingVersion: 5},
			{MovementID: "mv-5", ProductID: "SKU-300", Kind: MovementAdjust, Quantity: 30, ResultingQuantity: 30, ResultingReserved: 0, ResultingVersion: 6},
		}

		record, err := ReplayMovements("SKU-300", 0, movements)
		require.NoError(t, err)
		assert.Equal(t, int64(30), record.Quantity)
		assert.Equal(t, int64(0), record.ReservedQuantity)
		assert.Equal(t, int64(6), record.Version)
	})

	t.Run("detects snapshot mismatch", func(t *testing.T) {
		movements := []*StockMovement{
			{MovementID: "mv-1", ProductID: "SKU-300", Kind: MovementAdd, Quantity: 20, ResultingQuantity: 99},
		}
		_, err := ReplayMovements("SKU-300", 0, movements)
		assert.ErrorContains(t, err, "snapshot mismatch")
	})

	t.Run("detects version gap", func(t *testing.T) {
		movements := []*StockMovement{
			{MovementID: "mv-1", ProductID: "SKU-300", Kind: MovementAdd, Quantity: 20, ResultingQuantity: 20, ResultingVersion: 2},
			{MovementID: "mv-2", ProductID: "SKU-300", Kind: MovementAdd, Quantity: 5, ResultingQuantity: 25, ResultingVersion: 4},
		}
		_, err := ReplayMovements("SKU-300", 0, movements)
		assert.ErrorContains(t, err, "version mismatch")
	})

	t.Run("rejects foreign movements", func(t *testing.T) {
		movements := []*StockMovement{
			{MovementID: "mv-1", ProductID: "SKU-OTHER", Kind: MovementAdd, Quantity: 1, ResultingQuantity: 1},
		}
		_, err := ReplayMovements("SKU-300", 0, movements)
		assert.Error(t, err)
	})

	t.Run("surfaces invalid application", func(t *testing.T) {
		movements := []*StockMovement{
			{MovementID: "mv-1", ProductID: "SKU-300", Kind: MovementRemove, Quantity: 5},
		}
		_, err := ReplayMovements("SKU-300", 0, movements)
		assert.ErrorIs(t, err, ErrInsufficientStock)
	})
}
