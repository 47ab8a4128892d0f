package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ims-platform/inventory-service/internal/domain"
	outboxMongo "github.com/ims-platform/inventory-service/pkg/outbox/mongodb"
)

// Bootstrap tool: creates the collection indexes the service relies on and
// optionally verifies that each inventory record agrees with the last entry
// in its movement ledger.

var (
	mongoURI  = flag.String("mongo-uri", "mongodb://localhost:27017", "MongoDB connection URI")
	dbName    = flag.String("db", "inventory", "Database name")
	verify    = flag.Bool("verify", false, "Cross-check records against the movement ledger")
	batchSize = flag.Int("batch-size", 100, "Batch size for the verification scan")
)

func main() {
	flag.Parse()

	log.Printf("Starting inventory index migration...")
	log.Printf("MongoDB URI: %s", *mongoURI)
	log.Printf("Database: %s", *dbName)
	log.Printf("Verify ledger: %v", *verify)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(*mongoURI))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(context.Background())

	if err := client.Ping(ctx, nil); err != nil {
		log.Fatalf("Failed to ping MongoDB: %v", err)
	}
	log.Println("Connected to MongoDB successfully")

	db := client.Database(*dbName)

	if err := createIndexes(context.Background(), db); err != nil {
		log.Fatalf("Index creation failed: %v", err)
	}

	if *verify {
		if err := verifyLedger(context.Background(), db); err != nil {
			log.Fatalf("Ledger verification failed: %v", err)
		}
	}

	log.Println("Migration completed successfully!")
}

func createIndexes(ctx context.Context, db *mongo.Database) error {
	recordIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "quantity", Value: 1}}},
		{Keys: bson.D{{Key: "updated_at", Value: -1}}},
	}
	if _, err := db.Collection("inventory_records").Indexes().CreateMany(ctx, recordIndexes); err != nil {
		return fmt.Errorf("failed to create inventory_records indexes: %w", err)
	}
	log.Println("Created inventory_records indexes")

	movementIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "movement_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "product_id", Value: 1}, {Key: "_id", Value: 1}}},
	}
	if _, err := db.Collection("stock_movements").Indexes().CreateMany(ctx, movementIndexes); err != nil {
		return fmt.Errorf("failed to create stock_movements indexes: %w", err)
	}
	log.Println("Created stock_movements indexes")

	if err := outboxMongo.NewRepository(db).EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create outbox indexes: %w", err)
	}
	log.Println("Created outbox indexes")

	return nil
}

// verifyLedger checks, for every inventory record with at least one ledger
// entry, that the most recent entry's snapshot matches the stored record.
// Records whose version moved past the snapshot without a ledger entry
// (threshold updates) are only checked on quantity fields.
func verifyLedger(ctx context.Context, db *mongo.Database) error {
	recordsColl := db.Collection("inventory_records")
	movementsColl := db.Collection("stock_movements")

	var (
		totalRecords int64
		checked      int64
		mismatches   int64
	)

	opts := options.Find().SetBatchSize(int32(*batchSize)).SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := recordsColl.Find(ctx, bson.M{}, opts)
	if err != nil {
		return fmt.Errorf("failed to scan inventory_records: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var record domain.InventoryRecord
		if err := cursor.Decode(&record); err != nil {
			log.Printf("WARNING: Failed to decode record: %v", err)
			continue
		}
		totalRecords++

		var last domain.StockMovement
		err := movementsColl.FindOne(ctx,
			bson.M{"product_id": record.ProductID},
			options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}}),
		).Decode(&last)
		if err == mongo.ErrNoDocuments {
			continue
		}
		if err != nil {
			log.Printf("WARNING: Failed to load movements for %s: %v", record.ProductID, err)
			continue
		}

		checked++
		if last.ResultingQuantity != record.Quantity ||
			last.ResultingReserved != record.ReservedQuantity ||
			last.ResultingVersion > record.Version {
			mismatches++
			log.Printf("MISMATCH %s: record qty=%d reserved=%d version=%d, ledger qty=%d reserved=%d version=%d (movement %s)",
				record.ProductID,
				record.Quantity, record.ReservedQuantity, record.Version,
				last.ResultingQuantity, last.ResultingReserved, last.ResultingVersion,
				last.MovementID)
		}

		if totalRecords%100 == 0 {
			log.Printf("Verified %d records...", totalRecords)
		}
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("cursor error: %w", err)
	}

	fmt.Println("\n=== Verification Summary ===")
	fmt.Printf("Total records scanned:   %d\n", totalRecords)
	fmt.Printf("Records with movements:  %d\n", checked)
	fmt.Printf("Mismatches found:        %d\n", mismatches)

	if mismatches > 0 {
		return fmt.Errorf("%d records disagree with their movement ledger", mismatches)
	}
	return nil
}
