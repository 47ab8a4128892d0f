package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ims-platform/inventory-service/internal/domain"
	"github.com/ims-platform/inventory-service/pkg/api"
	"github.com/ims-platform/inventory-service/pkg/kafka"
	"github.com/ims-platform/inventory-service/pkg/logging"
	"github.com/ims-platform/inventory-service/pkg/metrics"
	"github.com/ims-platform/inventory-service/pkg/mongodb"
	"github.com/ims-platform/inventory-service/pkg/outbox"
	outboxMongo "github.com/ims-platform/inventory-service/pkg/outbox/mongodb"
)

const movementCollection = "stock_movements"

const aggregateTypeInventory = "inventory"

// Movement event types emitted through the outbox, keyed by kind.
var movementEventTypes = map[domain.MovementKind]string{
	domain.MovementAdd:     "stock.added",
	domain.MovementRemove:  "stock.removed",
	domain.MovementAdjust:  "stock.adjusted",
	domain.MovementReserve: "stock.reserved",
	domain.MovementRelease: "reservation.released",
}

// movementDocument wraps a ledger entry with its storage _id, which orders
// the collection for cursor pagination.
type movementDocument struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty"`
	domain.StockMovement `bson:",inline"`
}

// MovementLedger persists the append-only movement log. Each append writes
// the ledger entry and its outbox event in one transaction, so an event is
// published exactly when its movement is durable.
type MovementLedger struct {
	client     *mongodb.Client
	collection *mongo.Collection
	outboxRepo *outboxMongo.Repository
	topics     kafka.TopicSet
	metrics    *metrics.Metrics
	logger     *logging.Logger
}

// NewMovementLedger creates the ledger and ensures its indexes
func NewMovementLedger(client *mongodb.Client, outboxRepo *outboxMongo.Repository, topics kafka.TopicSet, m *metrics.Metrics, logger *logging.Logger) *MovementLedger {
	ledger := &MovementLedger{
		client:     client,
		collection: client.Collection(movementCollection),
		outboxRepo: outboxRepo,
		topics:     topics,
		metrics:    m,
		logger:     logger,
	}
	ledger.ensureIndexes(context.Background())
	return ledger
}

func (l *MovementLedger) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "movement_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "product_id", Value: 1}, {Key: "_id", Value: 1}}},
	}
	if _, err := l.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		l.logger.Warn("Failed to create movement indexes", "error", err)
	}
}

// Append writes the movement and its outbox event in one transaction. A
// movement ID collision aborts the transaction and surfaces as
// domain.ErrDuplicateMovement, leaving the prior entry untouched.
func (l *MovementLedger) Append(ctx context.Context, movement *domain.StockMovement) error {
	eventType, ok := movementEventTypes[movement.Kind]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrInvalidMovementKind, movement.Kind)
	}

	event, err := outbox.NewEvent(movement.ProductID, aggregateTypeInventory, eventType, l.topics.MovementEvents, movement)
	if err != nil {
		return fmt.Errorf("failed to build movement event: %w", err)
	}

	start := time.Now()
	err = l.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if _, err := l.collection.InsertOne(sessCtx, movementDocument{StockMovement: *movement}); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return domain.ErrDuplicateMovement
			}
			return fmt.Errorf("failed to insert movement %s: %w", movement.MovementID, err)
		}
		if err := l.outboxRepo.Save(sessCtx, event); err != nil {
			return fmt.Errorf("failed to save movement event: %w", err)
		}
		return nil
	})
	l.metrics.RecordMongoDBOperation(movementCollection, "insertOne", err == nil, time.Since(start))

	if err != nil {
		if errors.Is(err, domain.ErrDuplicateMovement) {
			return domain.ErrDuplicateMovement
		}
		return fmt.Errorf("movement append transaction failed: %w", err)
	}
	return nil
}

// FindByMovementID returns the ledger entry with the given ID
func (l *MovementLedger) FindByMovementID(ctx context.Context, movementID string) (*domain.StockMovement, error) {
	start := time.Now()

	var doc movementDocument
	err := l.collection.FindOne(ctx, bson.M{"movement_id": movementID}).Decode(&doc)
	l.metrics.RecordMongoDBOperation(movementCollection, "findOne", err == nil || errors.Is(err, mongo.ErrNoDocuments), time.Since(start))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load movement %s: %w", movementID, err)
	}
	return &doc.StockMovement, nil
}

// ListByProduct pages through a product's movements in append order, using
// the storage _id as the pagination boundary.
func (l *MovementLedger) ListByProduct(ctx context.Context, productID, cursor string, limit int) ([]*domain.StockMovement, string, error) {
	filter := bson.M{"product_id": productID}
	if cursor != "" {
		raw, err := api.DecodeCursor(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidCursor, err)
		}
		boundary, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidCursor, err)
		}
		filter["_id"] = bson.M{"$gt": boundary}
	}

	start := time.Now()
	opts := options.Find().
		SetSort(mongodb.SortAscending("_id")).
		SetLimit(int64(limit))

	mongoCursor, err := l.collection.Find(ctx, filter, opts)
	if err != nil {
		l.metrics.RecordMongoDBOperation(movementCollection, "find", false, time.Since(start))
		return nil, "", fmt.Errorf("failed to list movements for %s: %w", productID, err)
	}
	defer mongoCursor.Close(ctx)

	var docs []movementDocument
	err = mongoCursor.All(ctx, &docs)
	l.metrics.RecordMongoDBOperation(movementCollection, "find", err == nil, time.Since(start))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode movements for %s: %w", productID, err)
	}

	movements := make([]*domain.StockMovement, 0, len(docs))
	for i := range docs {
		movements = append(movements, &docs[i].StockMovement)
	}

	nextCursor := ""
	if len(docs) == limit && limit > 0 {
		nextCursor = api.EncodeCursor(docs[len(docs)-1].ID.Hex())
	}
	return movements, nextCursor, nil
}
