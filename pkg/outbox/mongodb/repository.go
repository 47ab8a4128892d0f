package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ims-platform/inventory-service/pkg/mongodb"
	"github.com/ims-platform/inventory-service/pkg/outbox"
)

// DefaultCollectionName is the default name for the outbox collection
const DefaultCollectionName = "outbox_events"

// Repository implements outbox.Repository for MongoDB.
type Repository struct {
	collection *mongo.Collection
}

// NewRepository creates a MongoDB outbox repository
func NewRepository(db *mongo.Database) *Repository {
	return &Repository{
		collection: db.Collection(DefaultCollectionName),
	}
}

// Save saves an outbox event. The passed context may be a session context,
// joining the event insert to an in-flight transaction.
func (r *Repository) Save(ctx context.Context, event *outbox.Event) error {
	if _, err := r.collection.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}
	return nil
}

// FindUnpublished retrieves unpublished events up to the specified limit,
// oldest first, skipping events that exhausted their retries.
func (r *Repository) FindUnpublished(ctx context.Context, limit int) ([]*outbox.Event, error) {
	filter := bson.M{
		"published_at": bson.M{"$exists": false},
		"$or": []bson.M{
			{"retry_count": bson.M{"$lt": 10}},
			{"retry_count": bson.M{"$exists": false}},
		},
	}

	opts := options.Find().
		SetSort(mongodb.SortAscending("created_at")).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find unpublished events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*outbox.Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode outbox events: %w", err)
	}

	return events, nil
}

// MarkPublished marks an event as published
func (r *Repository) MarkPublished(ctx context.Context, eventID string) error {
	result, err := r.collection.UpdateOne(ctx,
		mongodb.BuildFilter("_id", eventID),
		mongodb.BuildUpdate(bson.M{"published_at": mongodb.Now()}),
	)
	if err != nil {
		return fmt.Errorf("failed to mark event as published: %w", err)
	}

	if result.MatchedCount == 0 {
		return fmt.Errorf("event not found: %s", eventID)
	}

	return nil
}

// IncrementRetry increments the retry count and records the last error
func (r *Repository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	result, err := r.collection.UpdateOne(ctx,
		mongodb.BuildFilter("_id", eventID),
		bson.M{
			"$inc": bson.M{"retry_count": 1},
			"$set": bson.M{"last_error": errorMsg},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}

	if result.MatchedCount == 0 {
		return fmt.Errorf("event not found: %s", eventID)
	}

	return nil
}

// EnsureIndexes creates the outbox indexes. Published events expire after
// 7 days via the TTL index; unpublished events have no published_at field
// and are never expired.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: mongodb.SortMultiple(
				mongodb.SortField{Field: "published_at"},
				mongodb.SortField{Field: "created_at"},
			),
			Options: options.Index().SetName("idx_published_created"),
		},
		{
			Keys: mongodb.SortMultiple(
				mongodb.SortField{Field: "aggregate_id"},
				mongodb.SortField{Field: "created_at"},
			),
			Options: options.Index().SetName("idx_aggregate_created"),
		},
		{
			Keys: bson.D{{Key: "published_at", Value: 1}},
			Options: options.Index().
				SetName("idx_published_ttl").
				SetExpireAfterSeconds(604800),
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
