package domain

import (
	"fmt"
	"time"
)

// MovementKind identifies the type of a ledger entry.
type MovementKind string

const (
	MovementAdd     MovementKind = "ADD"
	MovementRemove  MovementKind = "REMOVE"
	MovementAdjust  MovementKind = "ADJUST"
	MovementReserve MovementKind = "RESERVE"
	MovementRelease MovementKind = "RELEASE"
)

// IsValid reports whether the kind is one of the recognized movement kinds.
func (k MovementKind) IsValid() bool {
	switch k {
	case MovementAdd, MovementRemove, MovementAdjust, MovementReserve, MovementRelease:
		return true
	}
	return false
}

// StockMovement is an append-only ledger entry recording one applied change.
// MovementID doubles as the idempotency key: a replayed request carries the
// same ID and resolves to the original entry instead of a second application.
// The Resulting* fields snapshot the record state after the change so the
// ledger alone can answer audit queries.
type StockMovement struct {
	MovementID        string       `bson:"movement_id" json:"movementId"`
	ProductID         string       `bson:"product_id" json:"productId"`
	Kind              MovementKind `bson:"kind" json:"kind"`
	Quantity          int64        `bson:"quantity" json:"quantity"`
	ResultingQuantity int64        `bson:"resulting_quantity" json:"resultingQuantity"`
	ResultingReserved int64        `bson:"resulting_reserved" json:"resultingReserved"`
	ResultingVersion  int64        `bson:"resulting_version" json:"resultingVersion"`
	Reason            string       `bson:"reason,omitempty" json:"reason,omitempty"`
	RecordedAt        time.Time    `bson:"recorded_at" json:"recordedAt"`
}

// NewStockMovement builds a ledger entry from an applied change and the record
// state after it.
func NewStockMovement(movementID string, record *InventoryRecord, kind MovementKind, quantity int64, reason string) (*StockMovement, error) {
	if movementID == "" {
		return nil, fmt.Errorf("%w: movement ID is required", ErrInvalidMovementKind)
	}
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMovementKind, kind)
	}
	return &StockMovement{
		MovementID:        movementID,
		ProductID:         record.ProductID,
		Kind:              kind,
		Quantity:          quantity,
		ResultingQuantity: record.Quantity,
		ResultingReserved: record.ReservedQuantity,
		ResultingVersion:  record.Version,
		Reason:            reason,
		RecordedAt:        time.Now().UTC(),
	}, nil
}

// Apply mutates the record according to the movement kind. Adjust interprets
// Quantity as the absolute target; all other kinds treat it as a delta.
func (m *StockMovement) Apply(record *InventoryRecord) error {
	switch m.Kind {
	case MovementAdd:
		return record.Add(m.Quantity)
	case MovementRemove:
		return record.Remove(m.Quantity)
	case MovementAdjust:
		return record.Adjust(m.Quantity)
	case MovementReserve:
		return record.Reserve(m.Quantity)
	case MovementRelease:
		return record.Release(m.Quantity)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMovementKind, m.Kind)
	}
}

// ReplayMovements reconstructs a record's stock state by applying its ledger
// entries in order. Each entry's quantity snapshot and version are checked
// against the replayed state so ledger corruption, gaps, and out-of-order
// appends surface instead of propagating silently.
func ReplayMovements(productID string, initialQuantity int64, movements []*StockMovement) (*InventoryRecord, error) {
	record := &InventoryRecord{
		ProductID: productID,
		Quantity:  initialQuantity,
		Version:   1,
	}
	for _, m := range movements {
		if m.ProductID != productID {
			return nil, fmt.Errorf("movement %s belongs to product %s, not %s",
				m.MovementID, m.ProductID, productID)
		}
		if err := m.Apply(record); err != nil {
			return nil, fmt.Errorf("replaying movement %s: %w", m.MovementID, err)
		}
		record.Version++
		if record.Quantity != m.ResultingQuantity || record.ReservedQuantity != m.ResultingReserved {
			return nil, fmt.Errorf("movement %s snapshot mismatch: replayed %d/%d, recorded %d/%d",
				m.MovementID, record.Quantity, record.ReservedQuantity,
				m.ResultingQuantity, m.ResultingReserved)
		}
		if record.Version != m.ResultingVersion {
			return nil, fmt.Errorf("movement %s version mismatch: replayed %d, recorded %d",
				m.MovementID, record.Version, m.ResultingVersion)
		}
	}
	return record, nil
}
