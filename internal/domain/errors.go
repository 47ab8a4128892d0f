package domain

import "errors"

// Sentinel errors returned by the domain model and its persistence ports.
// The application layer maps these onto API error codes.
var (
	// ErrNotFound indicates the inventory record does not exist.
	ErrNotFound = errors.New("inventory record not found")

	// ErrAlreadyExists indicates an inventory record already exists for the product.
	ErrAlreadyExists = errors.New("inventory record already exists")

	// ErrVersionConflict indicates a compare-and-swap lost against a concurrent writer.
	ErrVersionConflict = errors.New("inventory record version conflict")

	// ErrInsufficientStock indicates a removal or reservation exceeds available stock.
	ErrInsufficientStock = errors.New("insufficient available stock")

	// ErrReservationExceedsStock indicates an adjustment would drop quantity below
	// the currently reserved amount.
	ErrReservationExceedsStock = errors.New("adjustment below reserved quantity")

	// ErrReservationUnderflow indicates a release exceeds the reserved quantity.
	ErrReservationUnderflow = errors.New("release exceeds reserved quantity")

	// ErrInvalidQuantity indicates a quantity outside the operation's valid range.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInvalidMovementKind indicates an unrecognized movement kind.
	ErrInvalidMovementKind = errors.New("invalid movement kind")

	// ErrDuplicateMovement indicates a movement with the same movement ID was
	// already recorded in the ledger.
	ErrDuplicateMovement = errors.New("duplicate movement")

	// ErrInvalidCursor indicates a pagination cursor that cannot be decoded.
	ErrInvalidCursor = errors.New("invalid pagination cursor")
)
