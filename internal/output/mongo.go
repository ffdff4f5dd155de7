// internal/output/mongo.go
package output

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/propertylens/propertylens/internal/config"
	"github.com/propertylens/propertylens/pkg/types"
)

// MongoSink upserts listings into a collection, replacing documents
// that share a fingerprint.
type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
	display    string
	runID      string
}

func NewMongoSink(cfg *config.DatabaseConfig, runID string) (*MongoSink, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(cfg.DSN)
	clientOptions.SetMaxPoolSize(10)
	clientOptions.SetMaxConnIdleTime(5 * time.Minute)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	return &MongoSink{
		client:     client,
		collection: client.Database(cfg.Name).Collection(tableOrDefault(cfg.Table)),
		display:    dsnDisplay("mongodb", cfg.DSN),
		runID:      runID,
	}, nil
}

func (s *MongoSink) Write(ctx context.Context, records []types.ListingRecord) error {
	if len(records) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, len(records))
	for i, record := range records {
		models[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.M{"fingerprint": record.Fingerprint}).
			SetReplacement(mongoDoc(record, s.runID)).
			SetUpsert(true)
	}
	if _, err := s.collection.BulkWrite(ctx, models); err != nil {
		return fmt.Errorf("upserting %d listings: %w", len(records), err)
	}
	return nil
}

// mongoDoc builds the stored document. Field names follow the export
// columns, but list fields keep their array form instead of the
// pipe-joined strings tabular sinks use.
func mongoDoc(record types.ListingRecord, runID string) bson.M {
	doc := bson.M(record.Map())
	doc["image_urls"] = record.ImageURLs
	doc["nearby_places"] = record.NearbyPlaces
	doc["amenities"] = record.Amenities
	doc["highlights"] = record.Highlights
	if len(record.OutboundLinks) > 0 {
		links := make([]bson.M, len(record.OutboundLinks))
		for i, l := range record.OutboundLinks {
			links[i] = bson.M{"url": l.URL, "label": l.Label, "opens_new_tab": l.OpensNewTab}
		}
		doc["outbound_links"] = links
	}
	doc["run_id"] = runID
	return doc
}

func (s *MongoSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoSink) Path() string {
	return s.display
}
