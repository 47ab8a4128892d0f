package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
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

const inventoryCollection = "inventory_records"

// InventoryStore persists inventory records in MongoDB. The record's product
// ID doubles as the document _id, and CompareAndSwap relies on a filtered
// replace so version conflicts surface as a zero match count. Record-level
// events pending on the aggregate are written to the outbox in the same
// transaction as the record.
type InventoryStore struct {
	client     *mongodb.Client
	collection *mongo.Collection
	outboxRepo *outboxMongo.Repository
	topics     kafka.TopicSet
	metrics    *metrics.Metrics
	logger     *logging.Logger
}

// NewInventoryStore creates the store and ensures its indexes
func NewInventoryStore(client *mongodb.Client, outboxRepo *outboxMongo.Repository, topics kafka.TopicSet, m *metrics.Metrics, logger *logging.Logger) *InventoryStore {
	store := &InventoryStore{
		client:     client,
		collection: client.Collection(inventoryCollection),
		outboxRepo: outboxRepo,
		topics:     topics,
		metrics:    m,
		logger:     logger,
	}
	store.ensureIndexes(context.Background())
	return store
}

func (s *InventoryStore) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{Keys: mongodb.SortAscending("quantity")},
		{Keys: mongodb.SortDescending("updated_at")},
	}
	if _, err := s.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		s.logger.Warn("Failed to create inventory indexes", "error", err)
	}
}

// Get returns the record for the product, or domain.ErrNotFound
func (s *InventoryStore) Get(ctx context.Context, productID string) (*domain.InventoryRecord, error) {
	start := time.Now()

	var record domain.InventoryRecord
	err := s.collection.FindOne(ctx, bson.M{"_id": productID}).Decode(&record)
	s.observe("findOne", start, err)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load inventory record %s: %w", productID, err)
	}
	return &record, nil
}

// CreateIfAbsent inserts the record unless one exists for the product. The
// existing record is returned alongside domain.ErrAlreadyExists so callers
// can resolve idempotent creation replays. Pending record events land in the
// outbox within the insert transaction.
func (s *InventoryStore) CreateIfAbsent(ctx context.Context, record *domain.InventoryRecord) (*domain.InventoryRecord, error) {
	events := record.PullEvents()
	start := time.Now()

	err := s.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if _, err := s.collection.InsertOne(sessCtx, record); err != nil {
			return err
		}
		return s.saveEvents(sessCtx, record, events)
	})
	s.observe("insertOne", start, err)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			existing, getErr := s.Get(ctx, record.ProductID)
			if getErr != nil {
				return nil, fmt.Errorf("failed to load conflicting record %s: %w", record.ProductID, getErr)
			}
			return existing, domain.ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to insert inventory record %s: %w", record.ProductID, err)
	}
	return record, nil
}

// CompareAndSwap replaces the record only when the stored version still
// equals expectedVersion. A zero match count is disambiguated with a
// follow-up read: a missing document means the record was deleted, anything
// else is a lost race. Pending record events are written in the same
// transaction as the replace, so events never outlive a lost race.
func (s *InventoryStore) CompareAndSwap(ctx context.Context, expectedVersion int64, record *domain.InventoryRecord) error {
	events := record.PullEvents()
	filter := bson.M{"_id": record.ProductID, "version": expectedVersion}
	start := time.Now()

	replace := func(writeCtx context.Context) error {
		result, err := s.collection.ReplaceOne(writeCtx, filter, record)
		if err != nil {
			return fmt.Errorf("failed to update inventory record %s: %w", record.ProductID, err)
		}
		if result.MatchedCount == 0 {
			return domain.ErrVersionConflict
		}
		return nil
	}

	var err error
	if len(events) == 0 {
		err = replace(ctx)
	} else {
		err = s.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
			if err := replace(sessCtx); err != nil {
				return err
			}
			return s.saveEvents(sessCtx, record, events)
		})
	}
	s.observe("replaceOne", start, err)
	if err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			if _, getErr := s.Get(ctx, record.ProductID); getErr != nil {
				if errors.Is(getErr, domain.ErrNotFound) {
					return domain.ErrNotFound
				}
				return getErr
			}
			return domain.ErrVersionConflict
		}
		return err
	}
	return nil
}

// Scan pages through all records in product ID order using an _id boundary
// cursor, so pages stay stable under concurrent inserts.
func (s *InventoryStore) Scan(ctx context.Context, cursor string, limit int) ([]*domain.InventoryRecord, string, error) {
	filter := bson.M{}
	if cursor != "" {
		boundary, err := api.DecodeCursor(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidCursor, err)
		}
		filter["_id"] = bson.M{"$gt": boundary}
	}

	start := time.Now()
	opts := options.Find().
		SetSort(mongodb.SortAscending("_id")).
		SetLimit(int64(limit))

	mongoCursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		s.observe("find", start, err)
		return nil, "", fmt.Errorf("failed to scan inventory records: %w", err)
	}
	defer mongoCursor.Close(ctx)

	var records []*domain.InventoryRecord
	err = mongoCursor.All(ctx, &records)
	s.observe("find", start, err)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode inventory records: %w", err)
	}

	nextCursor := ""
	if len(records) == limit && limit > 0 {
		nextCursor = api.EncodeCursor(records[len(records)-1].ProductID)
	}
	return records, nextCursor, nil
}

func (s *InventoryStore) saveEvents(sessCtx mongo.SessionContext, record *domain.InventoryRecord, eventTypes []string) error {
	for _, eventType := range eventTypes {
		event, err := outbox.NewEvent(record.ProductID, aggregateTypeInventory, eventType, s.topics.InventoryEvents, record)
		if err != nil {
			return fmt.Errorf("failed to build %s event: %w", eventType, err)
		}
		if err := s.outboxRepo.Save(sessCtx, event); err != nil {
			return fmt.Errorf("failed to save %s event: %w", eventType, err)
		}
	}
	return nil
}

func (s *InventoryStore) observe(operation string, start time.Time, err error) {
	s.metrics.RecordMongoDBOperation(inventoryCollection, operation, err == nil || errors.Is(err, mongo.ErrNoDocuments), time.Since(start))
}
