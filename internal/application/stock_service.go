package application

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/ims-platform/inventory-service/internal/domain"
	apperrors "github.com/ims-platform/inventory-service/pkg/errors"
	"github.com/ims-platform/inventory-service/pkg/logging"
	"github.com/ims-platform/inventory-service/pkg/metrics"
)

// StockServiceConfig tunes the optimistic concurrency retry loop.
type StockServiceConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultStockServiceConfig returns the default retry settings
func DefaultStockServiceConfig() StockServiceConfig {
	return StockServiceConfig{
		MaxAttempts:    5,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     250 * time.Millisecond,
	}
}

// StockApplicationService handles all stock mutation and query use cases.
// Writes go through a compare-and-swap loop with jittered backoff so
// concurrent movements on the same product serialize without locks. Event
// delivery is the storage layer's concern: stores drain the aggregate's
// pending events and the ledger emits movement events, both transactionally.
type StockApplicationService struct {
	store   domain.InventoryStore
	ledger  domain.MovementLedger
	config  StockServiceConfig
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewStockApplicationService creates a new StockApplicationService
func NewStockApplicationService(
	store domain.InventoryStore,
	ledger domain.MovementLedger,
	config StockServiceConfig,
	m *metrics.Metrics,
	logger *logging.Logger,
) *StockApplicationService {
	if config.MaxAttempts <= 0 {
		config = DefaultStockServiceConfig()
	}
	return &StockApplicationService{
		store:   store,
		ledger:  ledger,
		config:  config,
		metrics: m,
		logger:  logger,
	}
}

// CreateInventory registers an inventory record for a product. Replaying the
// same idempotency key returns the original record instead of a conflict.
func (s *StockApplicationService) CreateInventory(ctx context.Context, cmd CreateInventoryCommand) (*CreateResultDTO, error) {
	creationKey := cmd.IdempotencyKey
	if creationKey == "" {
		creationKey = uuid.NewString()
	}

	record, err := domain.NewInventoryRecord(cmd.ProductID, cmd.InitialQuantity, cmd.ReorderThreshold, creationKey)
	if err != nil {
		return nil, s.mapDomainError(err, cmd.ProductID)
	}

	existing, err := s.store.CreateIfAbsent(ctx, record)
	if err != nil {
		if stderrors.Is(err, domain.ErrAlreadyExists) {
			if cmd.IdempotencyKey != "" && existing != nil && existing.CreationKey == cmd.IdempotencyKey {
				s.metrics.RecordIdempotentReplay("createInventory")
				s.logger.Info("Replayed inventory creation", "productId", cmd.ProductID)
				return &CreateResultDTO{Record: *ToInventoryRecordDTO(existing), Replayed: true}, nil
			}
			return nil, apperrors.ErrConflict("inventory record already exists").
				WithDetail("productId", cmd.ProductID)
		}
		s.logger.Error("Failed to create inventory record", "productId", cmd.ProductID, "error", err)
		return nil, s.mapDomainError(err, cmd.ProductID)
	}

	s.logger.Info("Created inventory record",
		"productId", record.ProductID, "quantity", record.Quantity, "reorderThreshold", record.ReorderThreshold)
	return &CreateResultDTO{Record: *ToInventoryRecordDTO(record)}, nil
}

// AddStock increases on-hand stock
func (s *StockApplicationService) AddStock(ctx context.Context, cmd AddStockCommand) (*MovementResultDTO, error) {
	return s.applyMovement(ctx, "addStock", cmd.ProductID, cmd.IdempotencyKey, domain.MovementAdd, cmd.Quantity, cmd.Reason)
}

// RemoveStock decreases on-hand stock, failing when available stock is short
func (s *StockApplicationService) RemoveStock(ctx context.Context, cmd RemoveStockCommand) (*MovementResultDTO, error) {
	return s.applyMovement(ctx, "removeStock", cmd.ProductID, cmd.IdempotencyKey, domain.MovementRemove, cmd.Quantity, cmd.Reason)
}

// AdjustStock sets on-hand stock to an absolute value
func (s *StockApplicationService) AdjustStock(ctx context.Context, cmd AdjustStockCommand) (*MovementResultDTO, error) {
	return s.applyMovement(ctx, "adjustStock", cmd.ProductID, cmd.IdempotencyKey, domain.MovementAdjust, cmd.NewQuantity, cmd.Reason)
}

// ReserveStock holds available stock for a pending order
func (s *StockApplicationService) ReserveStock(ctx context.Context, cmd ReserveStockCommand) (*MovementResultDTO, error) {
	return s.applyMovement(ctx, "reserveStock", cmd.ProductID, cmd.IdempotencyKey, domain.MovementReserve, cmd.Quantity, cmd.Reason)
}

// ReleaseReservation returns reserved stock to the available pool
func (s *StockApplicationService) ReleaseReservation(ctx context.Context, cmd ReleaseReservationCommand) (*MovementResultDTO, error) {
	return s.applyMovement(ctx, "releaseReservation", cmd.ProductID, cmd.IdempotencyKey, domain.MovementRelease, cmd.Quantity, cmd.Reason)
}

// UpdateReorderThreshold changes the low-stock threshold. The change goes
// through the same compare-and-swap loop but is not a stock movement, so no
// ledger entry is written.
func (s *StockApplicationService) UpdateReorderThreshold(ctx context.Context, cmd UpdateThresholdCommand) (*InventoryRecordDTO, error) {
	var updated *domain.InventoryRecord

	attempt := func() error {
		current, err := s.store.Get(ctx, cmd.ProductID)
		if err != nil {
			return backoff.Permanent(err)
		}

		next := current.Clone()
		if err := next.SetReorderThreshold(cmd.ReorderThreshold); err != nil {
			return backoff.Permanent(err)
		}
		next.Version = current.Version + 1

		if err := s.store.CompareAndSwap(ctx, current.Version, next); err != nil {
			if stderrors.Is(err, domain.ErrVersionConflict) {
				s.metrics.RecordVersionConflict("updateReorderThreshold")
				return err
			}
			return backoff.Permanent(err)
		}

		updated = next
		return nil
	}

	if err := backoff.Retry(attempt, s.retryPolicy(ctx)); err != nil {
		return nil, s.mapRetryError(err, "updateReorderThreshold", cmd.ProductID)
	}

	s.logger.Info("Updated reorder threshold",
		"productId", cmd.ProductID, "reorderThreshold", cmd.ReorderThreshold, "version", updated.Version)
	return ToInventoryRecordDTO(updated), nil
}

// GetRecord retrieves a single inventory record
func (s *StockApplicationService) GetRecord(ctx context.Context, query GetRecordQuery) (*InventoryRecordDTO, error) {
	record, err := s.store.Get(ctx, query.ProductID)
	if err != nil {
		return nil, s.mapDomainError(err, query.ProductID)
	}
	return ToInventoryRecordDTO(record), nil
}

// ListInventory pages through all inventory records in product ID order
func (s *StockApplicationService) ListInventory(ctx context.Context, query ListInventoryQuery) ([]InventoryRecordDTO, string, error) {
	records, nextCursor, err := s.store.Scan(ctx, query.Cursor, query.Limit)
	if err != nil {
		s.logger.Error("Failed to list inventory", "error", err)
		return nil, "", s.mapDomainError(err, "")
	}

	dtos := make([]InventoryRecordDTO, 0, len(records))
	for _, record := range records {
		dtos = append(dtos, *ToInventoryRecordDTO(record))
	}
	return dtos, nextCursor, nil
}

// ListMovements pages through a product's ledger in append order
func (s *StockApplicationService) ListMovements(ctx context.Context, query ListMovementsQuery) ([]MovementDTO, string, error) {
	if _, err := s.store.Get(ctx, query.ProductID); err != nil {
		return nil, "", s.mapDomainError(err, query.ProductID)
	}

	movements, nextCursor, err := s.ledger.ListByProduct(ctx, query.ProductID, query.Cursor, query.Limit)
	if err != nil {
		s.logger.Error("Failed to list movements", "productId", query.ProductID, "error", err)
		return nil, "", s.mapDomainError(err, query.ProductID)
	}
	return ToMovementDTOs(movements), nextCursor, nil
}

// applyMovement is the write path shared by all movement kinds: resolve the
// idempotency key against the ledger, apply the change under compare-and-swap,
// then append the ledger entry. A ledger collision after a won CAS means a
// concurrent request with the same key finished first, so its entry is
// returned as a replay.
func (s *StockApplicationService) applyMovement(
	ctx context.Context,
	operation string,
	productID, idempotencyKey string,
	kind domain.MovementKind,
	quantity int64,
	reason string,
) (*MovementResultDTO, error) {
	movementID := idempotencyKey
	if movementID == "" {
		movementID = uuid.NewString()
	}

	if idempotencyKey != "" {
		prior, err := s.ledger.FindByMovementID(ctx, movementID)
		switch {
		case err == nil:
			return s.replayMovement(ctx, operation, productID, kind, prior)
		case !stderrors.Is(err, domain.ErrNotFound):
			s.logger.Error("Failed to check idempotency key", "movementId", movementID, "error", err)
			return nil, s.mapDomainError(err, productID)
		}
	}

	var (
		movement *domain.StockMovement
		updated  *domain.InventoryRecord
	)

	attempt := func() error {
		current, err := s.store.Get(ctx, productID)
		if err != nil {
			return backoff.Permanent(err)
		}

		next := current.Clone()
		pending := &domain.StockMovement{MovementID: movementID, ProductID: productID, Kind: kind, Quantity: quantity}
		if err := pending.Apply(next); err != nil {
			return backoff.Permanent(err)
		}
		next.Version = current.Version + 1

		if err := s.store.CompareAndSwap(ctx, current.Version, next); err != nil {
			if stderrors.Is(err, domain.ErrVersionConflict) {
				s.metrics.RecordVersionConflict(operation)
				return err
			}
			return backoff.Permanent(err)
		}

		movement, err = domain.NewStockMovement(movementID, next, kind, quantity, reason)
		if err != nil {
			return backoff.Permanent(err)
		}
		updated = next
		return nil
	}

	if err := backoff.Retry(attempt, s.retryPolicy(ctx)); err != nil {
		return nil, s.mapRetryError(err, operation, productID)
	}

	if err := s.ledger.Append(ctx, movement); err != nil {
		if stderrors.Is(err, domain.ErrDuplicateMovement) {
			prior, findErr := s.ledger.FindByMovementID(ctx, movementID)
			if findErr != nil {
				return nil, s.mapDomainError(findErr, productID)
			}
			return s.replayMovement(ctx, operation, productID, kind, prior)
		}
		s.logger.Error("Failed to append movement", "movementId", movementID, "productId", productID, "error", err)
		return nil, s.mapDomainError(err, productID)
	}

	s.metrics.RecordMovementApplied(string(kind))
	s.logger.Info("Applied stock movement",
		"productId", productID, "kind", string(kind), "movementId", movementID,
		"quantity", quantity, "resultingQuantity", movement.ResultingQuantity, "version", updated.Version)

	return &MovementResultDTO{
		Movement: *ToMovementDTO(movement),
		Record:   *ToInventoryRecordDTO(updated),
	}, nil
}

// replayMovement resolves an idempotent retry to its original ledger entry.
// The key must refer to the same product and kind; anything else is a client
// reusing a key across unrelated requests.
func (s *StockApplicationService) replayMovement(
	ctx context.Context,
	operation, productID string,
	kind domain.MovementKind,
	prior *domain.StockMovement,
) (*MovementResultDTO, error) {
	if prior.ProductID != productID || prior.Kind != kind {
		return nil, apperrors.ErrConflict("idempotency key was already used for a different movement").
			WithDetail("movementId", prior.MovementID)
	}

	record, err := s.store.Get(ctx, productID)
	if err != nil {
		return nil, s.mapDomainError(err, productID)
	}

	s.metrics.RecordIdempotentReplay(operation)
	s.logger.Info("Replayed stock movement", "productId", productID, "movementId", prior.MovementID)

	return &MovementResultDTO{
		Movement: *ToMovementDTO(prior),
		Record:   *ToInventoryRecordDTO(record),
		Replayed: true,
	}, nil
}

// retryPolicy builds the jittered exponential backoff for one write, capped
// at MaxAttempts total tries and bounded by the request context.
func (s *StockApplicationService) retryPolicy(ctx context.Context) backoff.BackOffContext {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.config.InitialBackoff
	bo.MaxInterval = s.config.MaxBackoff
	bo.RandomizationFactor = 0.5
	bo.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.config.MaxAttempts-1)), ctx)
}

func (s *StockApplicationService) mapRetryError(err error, operation, productID string) error {
	if ctxErr := contextError(err); ctxErr != nil {
		return apperrors.ErrTimeout(operation).Wrap(ctxErr)
	}
	if stderrors.Is(err, domain.ErrVersionConflict) {
		s.metrics.RecordRetriesExhausted(operation)
		s.logger.Warn("Retries exhausted", "operation", operation, "productId", productID, "maxAttempts", s.config.MaxAttempts)
		return apperrors.ErrConcurrencyExhausted(productID)
	}
	return s.mapDomainError(err, productID)
}

// mapDomainError translates domain sentinels into API errors
func (s *StockApplicationService) mapDomainError(err error, productID string) error {
	switch {
	case stderrors.Is(err, domain.ErrNotFound):
		return apperrors.ErrNotFoundWithID("inventory record", productID)
	case stderrors.Is(err, domain.ErrAlreadyExists):
		return apperrors.ErrConflict("inventory record already exists").WithDetail("productId", productID)
	case stderrors.Is(err, domain.ErrInsufficientStock):
		return apperrors.ErrInsufficientStock(err.Error())
	case stderrors.Is(err, domain.ErrReservationExceedsStock):
		return apperrors.ErrReservationExceedsStock(err.Error())
	case stderrors.Is(err, domain.ErrReservationUnderflow),
		stderrors.Is(err, domain.ErrInvalidQuantity),
		stderrors.Is(err, domain.ErrInvalidMovementKind),
		stderrors.Is(err, domain.ErrInvalidCursor):
		return apperrors.ErrValidation(err.Error())
	case stderrors.Is(err, domain.ErrDuplicateMovement):
		return apperrors.ErrConflict(err.Error())
	default:
		return apperrors.ErrInternal("inventory operation failed").Wrap(err)
	}
}

func contextError(err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
