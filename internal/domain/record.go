package domain

import (
	"fmt"
	"time"
)

// Record-level event types. Movement events are derived from ledger entries
// instead.
const (
	// EventInventoryCreated signals a new inventory record.
	EventInventoryCreated = "inventory.created"
	// EventThresholdUpdated signals a reorder threshold change.
	EventThresholdUpdated = "threshold.updated"
)

// InventoryRecord is the aggregate tracking on-hand stock for a single product.
// Quantity is the total on-hand amount; ReservedQuantity is the portion held
// for pending orders. Version increments on every successful write and drives
// optimistic concurrency control in the store.
//
// Mutations that are not stock movements register a pending event on the
// aggregate; the store drains them with PullEvents and writes them to the
// outbox in the same transaction as the record.
type InventoryRecord struct {
	ProductID        string    `bson:"_id" json:"productId"`
	Quantity         int64     `bson:"quantity" json:"quantity"`
	ReservedQuantity int64     `bson:"reserved_quantity" json:"reservedQuantity"`
	ReorderThreshold int64     `bson:"reorder_threshold" json:"reorderThreshold"`
	Version          int64     `bson:"version" json:"version"`
	CreationKey      string    `bson:"creation_key,omitempty" json:"-"`
	CreatedAt        time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt        time.Time `bson:"updated_at" json:"updatedAt"`

	pendingEvents []string
}

// NewInventoryRecord creates a record at version 1 with the given opening stock.
func NewInventoryRecord(productID string, initialQuantity, reorderThreshold int64, creationKey string) (*InventoryRecord, error) {
	if productID == "" {
		return nil, fmt.Errorf("%w: product ID is required", ErrInvalidQuantity)
	}
	if initialQuantity < 0 {
		return nil, fmt.Errorf("%w: initial quantity %d must not be negative", ErrInvalidQuantity, initialQuantity)
	}
	if reorderThreshold < 0 {
		return nil, fmt.Errorf("%w: reorder threshold %d must not be negative", ErrInvalidQuantity, reorderThreshold)
	}

	now := time.Now().UTC()
	record := &InventoryRecord{
		ProductID:        productID,
		Quantity:         initialQuantity,
		ReorderThreshold: reorderThreshold,
		Version:          1,
		CreationKey:      creationKey,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	record.recordEvent(EventInventoryCreated)
	return record, nil
}

// Available returns the stock not held by reservations.
func (r *InventoryRecord) Available() int64 {
	return r.Quantity - r.ReservedQuantity
}

// Add increases on-hand quantity. The amount must be positive.
func (r *InventoryRecord) Add(quantity int64) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: add quantity %d must be positive", ErrInvalidQuantity, quantity)
	}
	r.Quantity += quantity
	r.touch()
	return nil
}

// Remove decreases on-hand quantity. Reserved stock cannot be removed, so the
// amount is checked against Available rather than Quantity.
func (r *InventoryRecord) Remove(quantity int64) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: remove quantity %d must be positive", ErrInvalidQuantity, quantity)
	}
	if quantity > r.Available() {
		return fmt.Errorf("%w: requested %d, available %d for product %s",
			ErrInsufficientStock, quantity, r.Available(), r.ProductID)
	}
	r.Quantity -= quantity
	r.touch()
	return nil
}

// Adjust sets the on-hand quantity to an absolute value, typically after a
// physical count. The new quantity may not undercut outstanding reservations.
func (r *InventoryRecord) Adjust(newQuantity int64) error {
	if newQuantity < 0 {
		return fmt.Errorf("%w: adjusted quantity %d must not be negative", ErrInvalidQuantity, newQuantity)
	}
	if newQuantity < r.ReservedQuantity {
		return fmt.Errorf("%w: adjusted quantity %d is below reserved %d for product %s",
			ErrReservationExceedsStock, newQuantity, r.ReservedQuantity, r.ProductID)
	}
	r.Quantity = newQuantity
	r.touch()
	return nil
}

// Reserve holds part of the available stock for a pending order.
func (r *InventoryRecord) Reserve(quantity int64) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: reserve quantity %d must be positive", ErrInvalidQuantity, quantity)
	}
	if quantity > r.Available() {
		return fmt.Errorf("%w: requested %d, available %d for product %s",
			ErrInsufficientStock, quantity, r.Available(), r.ProductID)
	}
	r.ReservedQuantity += quantity
	r.touch()
	return nil
}

// Release returns previously reserved stock to the available pool.
func (r *InventoryRecord) Release(quantity int64) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: release quantity %d must be positive", ErrInvalidQuantity, quantity)
	}
	if quantity > r.ReservedQuantity {
		return fmt.Errorf("%w: release %d exceeds reserved %d for product %s",
			ErrReservationUnderflow, quantity, r.ReservedQuantity, r.ProductID)
	}
	r.ReservedQuantity -= quantity
	r.touch()
	return nil
}

// SetReorderThreshold updates the low-stock threshold.
func (r *InventoryRecord) SetReorderThreshold(threshold int64) error {
	if threshold < 0 {
		return fmt.Errorf("%w: reorder threshold %d must not be negative", ErrInvalidQuantity, threshold)
	}
	r.ReorderThreshold = threshold
	r.recordEvent(EventThresholdUpdated)
	r.touch()
	return nil
}

// IsOutOfStock reports whether on-hand quantity is exactly zero.
func (r *InventoryRecord) IsOutOfStock() bool {
	return r.Quantity == 0
}

// IsLowStock reports whether the record has stock at or below its threshold.
// Out-of-stock records are excluded so the two report buckets stay disjoint.
func (r *InventoryRecord) IsLowStock() bool {
	return r.Quantity > 0 && r.Quantity <= r.ReorderThreshold
}

// StockRatio returns quantity relative to the reorder threshold, used to rank
// low-stock urgency. Records with a zero threshold rank by raw quantity.
func (r *InventoryRecord) StockRatio() float64 {
	if r.ReorderThreshold == 0 {
		return float64(r.Quantity)
	}
	return float64(r.Quantity) / float64(r.ReorderThreshold)
}

// Clone returns a copy safe to mutate without aliasing the original.
func (r *InventoryRecord) Clone() *InventoryRecord {
	copied := *r
	copied.pendingEvents = append([]string(nil), r.pendingEvents...)
	return &copied
}

// PullEvents returns the pending record-level events and clears them. Called
// by the store once the events are bound to a transaction.
func (r *InventoryRecord) PullEvents() []string {
	events := r.pendingEvents
	r.pendingEvents = nil
	return events
}

func (r *InventoryRecord) recordEvent(eventType string) {
	r.pendingEvents = append(r.pendingEvents, eventType)
}

func (r *InventoryRecord) touch() {
	r.UpdatedAt = time.Now().UTC()
}
