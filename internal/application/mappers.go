package application

import (
	"github.com/ims-platform/inventory-service/internal/domain"
)

// ToInventoryRecordDTO converts a domain record to its response shape
func ToInventoryRecordDTO(record *domain.InventoryRecord) *InventoryRecordDTO {
	if record == nil {
		return nil
	}
	return &InventoryRecordDTO{
		ProductID:         record.ProductID,
		Quantity:          record.Quantity,
		ReservedQuantity:  record.ReservedQuantity,
		AvailableQuantity: record.Available(),
		ReorderThreshold:  record.ReorderThreshold,
		Version:           record.Version,
		IsLowStock:        record.IsLowStock(),
		IsOutOfStock:      record.IsOutOfStock(),
		CreatedAt:         record.CreatedAt,
		UpdatedAt:         record.UpdatedAt,
	}
}

// ToMovementDTO converts a ledger entry to its response shape
func ToMovementDTO(movement *domain.StockMovement) *MovementDTO {
	if movement == nil {
		return nil
	}
	return &MovementDTO{
		MovementID:        movement.MovementID,
		ProductID:         movement.ProductID,
		Kind:              string(movement.Kind),
		Quantity:          movement.Quantity,
		ResultingQuantity: movement.ResultingQuantity,
		ResultingReserved: movement.ResultingReserved,
		ResultingVersion:  movement.ResultingVersion,
		Reason:            movement.Reason,
		RecordedAt:        movement.RecordedAt,
	}
}

// ToMovementDTOs converts a list of ledger entries
func ToMovementDTOs(movements []*domain.StockMovement) []MovementDTO {
	dtos := make([]MovementDTO, 0, len(movements))
	for _, m := range movements {
		dtos = append(dtos, *ToMovementDTO(m))
	}
	return dtos
}

// ToLowStockItemDTO converts a record to a low-stock report entry
func ToLowStockItemDTO(record *domain.InventoryRecord) LowStockItemDTO {
	return LowStockItemDTO{
		ProductID:        record.ProductID,
		Quantity:         record.Quantity,
		ReservedQuantity: record.ReservedQuantity,
		ReorderThreshold: record.ReorderThreshold,
		StockRatio:       record.StockRatio(),
		UpdatedAt:        record.UpdatedAt,
	}
}

// ToOutOfStockItemDTO converts a record to an out-of-stock report entry
func ToOutOfStockItemDTO(record *domain.InventoryRecord) OutOfStockItemDTO {
	return OutOfStockItemDTO{
		ProductID:        record.ProductID,
		ReservedQuantity: record.ReservedQuantity,
		ReorderThreshold: record.ReorderThreshold,
		UpdatedAt:        record.UpdatedAt,
	}
}
