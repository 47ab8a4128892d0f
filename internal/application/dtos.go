package application

import "time"

// InventoryRecordDTO represents an inventory record in responses
type InventoryRecordDTO struct {
	ProductID         string    `json:"productId"`
	Quantity          int64     `json:"quantity"`
	ReservedQuantity  int64     `json:"reservedQuantity"`
	AvailableQuantity int64     `json:"availableQuantity"`
	ReorderThreshold  int64     `json:"reorderThreshold"`
	Version           int64     `json:"version"`
	IsLowStock        bool      `json:"isLowStock"`
	IsOutOfStock      bool      `json:"isOutOfStock"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// MovementDTO represents a ledger entry in responses
type MovementDTO struct {
	MovementID        string    `json:"movementId"`
	ProductID         string    `json:"productId"`
	Kind              string    `json:"kind"`
	Quantity          int64     `json:"quantity"`
	ResultingQuantity int64     `json:"resultingQuantity"`
	ResultingReserved int64     `json:"resultingReserved"`
	ResultingVersion  int64     `json:"resultingVersion"`
	Reason            string    `json:"reason,omitempty"`
	RecordedAt        time.Time `json:"recordedAt"`
}

// MovementResultDTO is the response for a stock movement. Replayed is true
// when the idempotency key matched a previously recorded movement and no new
// change was applied.
type MovementResultDTO struct {
	Movement MovementDTO        `json:"movement"`
	Record   InventoryRecordDTO `json:"record"`
	Replayed bool               `json:"replayed"`
}

// CreateResultDTO is the response for inventory creation
type CreateResultDTO struct {
	Record   InventoryRecordDTO `json:"record"`
	Replayed bool               `json:"replayed"`
}

// LowStockItemDTO represents one entry in the low-stock report
type LowStockItemDTO struct {
	ProductID        string    `json:"productId"`
	Quantity         int64     `json:"quantity"`
	ReservedQuantity int64     `json:"reservedQuantity"`
	ReorderThreshold int64     `json:"reorderThreshold"`
	StockRatio       float64   `json:"stockRatio"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// OutOfStockItemDTO represents one entry in the out-of-stock report
type OutOfStockItemDTO struct {
	ProductID        string    `json:"productId"`
	ReservedQuantity int64     `json:"reservedQuantity"`
	ReorderThreshold int64     `json:"reorderThreshold"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// LowStockReportDTO is the low-stock report response
type LowStockReportDTO struct {
	Items       []LowStockItemDTO `json:"items"`
	GeneratedAt time.Time         `json:"generatedAt"`
}

// OutOfStockReportDTO is the out-of-stock report response
type OutOfStockReportDTO struct {
	Items       []OutOfStockItemDTO `json:"items"`
	GeneratedAt time.Time           `json:"generatedAt"`
}

// SummaryReportDTO aggregates totals across all inventory records
type SummaryReportDTO struct {
	TotalProducts   int64     `json:"totalProducts"`
	TotalQuantity   int64     `json:"totalQuantity"`
	TotalReserved   int64     `json:"totalReserved"`
	LowStockCount   int64     `json:"lowStockCount"`
	OutOfStockCount int64     `json:"outOfStockCount"`
	GeneratedAt     time.Time `json:"generatedAt"`
}
