package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dataminds-hq/tender-harvester/internal/domain"
)

// MongoStore implements Store on a MongoDB database.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(dbName)}, nil
}

// InsertMany inserts the documents into the named collection. Insertion is
// not transactional; the returned count reflects what actually landed.
func (s *MongoStore) InsertMany(ctx context.Context, collection string, docs []domain.Notice) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	payload := make([]interface{}, len(docs))
	for i, d := range docs {
		payload[i] = d
	}

	res, err := s.db.Collection(collection).InsertMany(ctx, payload)
	inserted := 0
	if res != nil {
		inserted = len(res.InsertedIDs)
	}
	if err != nil {
		return inserted, fmt.Errorf("insert into %s: %w", collection, err)
	}
	return inserted, nil
}

// HasSourceFile reports whether any document in the collection carries the
// provenance marker. This is the sole query shape the pipeline needs.
func (s *MongoStore) HasSourceFile(ctx context.Context, collection, name string) (bool, error) {
	err := s.db.Collection(collection).FindOne(ctx, bson.M{domain.SourceFileKey: name}).Err()
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("find %s in %s: %w", name, collection, err)
	default:
		return true, nil
	}
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
