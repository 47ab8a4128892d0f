package application

// CreateInventoryCommand represents the command to register a product's inventory record
type CreateInventoryCommand struct {
	ProductID        string
	InitialQuantity  int64
	ReorderThreshold int64
	IdempotencyKey   string
}

// AddStockCommand represents the command to increase on-hand stock
type AddStockCommand struct {
	ProductID      string
	Quantity       int64
	Reason         string
	IdempotencyKey string
}

// RemoveStockCommand represents the command to decrease on-hand stock
type RemoveStockCommand struct {
	ProductID      string
	Quantity       int64
	Reason         string
	IdempotencyKey string
}

// AdjustStockCommand represents the command to set on-hand stock to an absolute value
type AdjustStockCommand struct {
	ProductID      string
	NewQuantity    int64
	Reason         string
	IdempotencyKey string
}

// ReserveStockCommand represents the command to hold stock for a pending order
type ReserveStockCommand struct {
	ProductID      string
	Quantity       int64
	Reason         string
	IdempotencyKey string
}

// ReleaseReservationCommand represents the command to return reserved stock to the pool
type ReleaseReservationCommand struct {
	ProductID      string
	Quantity       int64
	Reason         string
	IdempotencyKey string
}

// UpdateThresholdCommand represents the command to change a product's reorder threshold
type UpdateThresholdCommand struct {
	ProductID        string
	ReorderThreshold int64
}

// GetRecordQuery represents the query to fetch a single inventory record
type GetRecordQuery struct {
	ProductID string
}

// ListInventoryQuery represents the query to page through all inventory records
type ListInventoryQuery struct {
	Cursor string
	Limit  int
}

// ListMovementsQuery represents the query to page through a product's ledger
type ListMovementsQuery struct {
	ProductID string
	Cursor    string
	Limit     int
}

// LowStockQuery represents the low stock report parameters. A nil override
// uses each record's own reorder threshold.
type LowStockQuery struct {
	ThresholdOverride *int64
}
