package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ims-platform/inventory-service/internal/domain"
)

func TestToInventoryRecordDTO(t *testing.T) {
	now := time.Now().UTC()
	record := &domain.InventoryRecord{
		ProductID:        "SKU-1",
		Quantity:         10,
		ReservedQuantity: 3,
		ReorderThreshold: 12,
		Version:          4,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	dto := ToInventoryRecordDTO(record)
	require.NotNil(t, dto)
	assert.Equal(t, "SKU-1", dto.ProductID)
	assert.Equal(t, int64(10), dto.Quantity)
	assert.Equal(t, int64(3), dto.ReservedQuantity)
	assert.Equal(t, int64(7), dto.AvailableQuantity)
	assert.Equal(t, int64(12), dto.ReorderThreshold)
	assert.Equal(t, int64(4), dto.Version)
	assert.True(t, dto.IsLowStock)
	assert.False(t, dto.IsOutOfStock)
	assert.Equal(t, now, dto.UpdatedAt)

	assert.Nil(t, ToInventoryRecordDTO(nil))
}

func TestToMovementDTO(t *testing.T) {
	now := time.Now().UTC()
	movement := &domain.StockMovement{
		MovementID:        "mv-1",
		ProductID:         "SKU-1",
		Kind:              domain.MovementRemove,
		Quantity:          5,
		ResultingQuantity: 10,
		ResultingReserved: 3,
		ResultingVersion:  4,
		Reason:            "cycle count",
		RecordedAt:        now,
	}

	dto := ToMovementDTO(movement)
	require.NotNil(t, dto)
	assert.Equal(t, "mv-1", dto.MovementID)
	assert.Equal(t, "REMOVE", dto.Kind)
	assert.Equal(t, int64(5), dto.Quantity)
	assert.Equal(t, int64(10), dto.ResultingQuantity)
	assert.Equal(t, "cycle count", dto.Reason)

	assert.Nil(t, ToMovementDTO(nil))
}

func TestToMovementDTOs(t *testing.T) {
	movements := []*domain.StockMovement{
		{MovementID: "mv-1", ProductID: "SKU-1", Kind: domain.MovementAdd},
		{MovementID: "mv-2", ProductID: "SKU-1", Kind: domain.MovementRemove},
	}

	dtos := ToMovementDTOs(movements)
	require.Len(t, dtos, 2)
	assert.Equal(t, "mv-1", dtos[0].MovementID)
	assert.Equal(t, "mv-2", dtos[1].MovementID)

	assert.NotNil(t, ToMovementDTOs(nil))
	assert.Empty(t, ToMovementDTOs(nil))
}

func TestToReportItemDTOs(t *testing.T) {
	now := time.Now().UTC()
	record := &domain.InventoryRecord{
		ProductID:        "SKU-2",
		Quantity:         4,
		ReservedQuantity: 1,
		ReorderThreshold: 8,
		UpdatedAt:        now,
	}

	low := ToLowStockItemDTO(record)
	assert.Equal(t, "SKU-2", low.ProductID)
	assert.Equal(t, int64(4), low.Quantity)
	assert.InDelta(t, 0.5, low.StockRatio, 1e-9)

	record.Quantity = 0
	out := ToOutOfStockItemDTO(record)
	assert.Equal(t, "SKU-2", out.ProductID)
	assert.Equal(t, int64(1), out.ReservedQuantity)
	assert.Equal(t, now, out.UpdatedAt)
}
