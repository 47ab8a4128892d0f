package domain

import "context"

// InventoryStore is the persistence port for inventory records. Writes go
// through CompareAndSwap so concurrent updates are detected at the version
// level rather than serialized with locks.
type InventoryStore interface {
	// Get returns the record for the product, or ErrNotFound.
	Get(ctx context.Context, productID string) (*InventoryRecord, error)

	// CreateIfAbsent inserts the record if no record exists for its product.
	// When a record already exists it is returned alongside ErrAlreadyExists.
	CreateIfAbsent(ctx context.Context, record *InventoryRecord) (*InventoryRecord, error)

	// CompareAndSwap persists the record only if the stored version still
	// equals expectedVersion, bumping the stored version to record.Version.
	// Returns ErrVersionConflict when a concurrent writer won, ErrNotFound
	// when the record vanished.
	CompareAndSwap(ctx context.Context, expectedVersion int64, record *InventoryRecord) error

	// Scan pages through all records in stable product ID order. An empty
	// cursor starts from the beginning; an empty next cursor marks the end.
	Scan(ctx context.Context, cursor string, limit int) ([]*InventoryRecord, string, error)
}

// MovementLedger is the persistence port for the append-only movement log.
type MovementLedger interface {
	// Append records a movement. A movement ID collision returns
	// ErrDuplicateMovement without writing.
	Append(ctx context.Context, movement *StockMovement) error

	// FindByMovementID returns the entry with the given ID, or ErrNotFound.
	FindByMovementID(ctx context.Context, movementID string) (*StockMovement, error)

	// ListByProduct pages through a product's movements in append order,
	// oldest first.
	ListByProduct(ctx context.Context, productID, cursor string, limit int) ([]*StockMovement, string, error)
}
