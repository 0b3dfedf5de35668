package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"tg_loyalty_bot/internal/config"
)

// MongoDocuments is the Mongo collection holding one document per record collection.
const MongoDocuments = "documents"

// mongoClient captures the subset of mongo.Client behavior we rely on to allow
// lightweight stubbing in tests without a live Mongo deployment.
type mongoClient interface {
	Ping(context.Context, *readpref.ReadPref) error
	Database(string, ...*options.DatabaseOptions) *mongo.Database
	Disconnect(context.Context) error
}

type documentCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// connectMongo is overridable for tests.
var connectMongo = func(ctx context.Context, opts *options.ClientOptions) (mongoClient, error) {
	return mongo.Connect(ctx, opts)
}

type storedDocument struct {
	ID        string    `bson:"_id"`
	Payload   string    `bson:"payload"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoBackend stores each record collection as a single Mongo document so the
// whole-document contract matches the file backend.
type MongoBackend struct {
	client    mongoClient
	db        *mongo.Database
	documents documentCollection
}

// NewMongoBackend initializes the Mongo client using the supplied configuration
// and verifies connectivity with a ping.
func NewMongoBackend(ctx context.Context, cfg config.Config) (*MongoBackend, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	client, err := connectMongo(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(cfg.MongoDB)

	return &MongoBackend{
		client:    client,
		db:        db,
		documents: db.Collection(MongoDocuments),
	}, nil
}

// Database returns the configured database handle.
func (b *MongoBackend) Database() *mongo.Database {
	return b.db
}

// Read fetches the stored payload for a collection.
func (b *MongoBackend) Read(ctx context.Context, name Collection) ([]byte, error) {
	if b == nil || b.documents == nil {
		return nil, errors.New("mongo backend is not initialized")
	}

	result := b.documents.FindOne(ctx, bson.M{"_id": string(name)})
	if result == nil {
		return nil, errors.New("find document returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("find document: %w", err)
	}

	var doc storedDocument
	if err := result.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	return []byte(doc.Payload), nil
}

// Write upserts the payload for a collection.
func (b *MongoBackend) Write(ctx context.Context, name Collection, data []byte) error {
	if b == nil || b.documents == nil {
		return errors.New("mongo backend is not initialized")
	}

	_, err := b.documents.UpdateOne(ctx,
		bson.M{"_id": string(name)},
		bson.M{"$set": bson.M{
			"payload":    string(data),
			"updated_at": time.Now().UTC().Truncate(time.Millisecond),
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}

	return nil
}

// Ping checks connectivity against the primary.
func (b *MongoBackend) Ping(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if b == nil || b.client == nil {
		return errors.New("mongo backend is not initialized")
	}

	if err := b.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	return nil
}

// Close disconnects the Mongo client.
func (b *MongoBackend) Close(ctx context.Context) error {
	if b == nil || b.client == nil {
		return nil
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return b.client.Disconnect(ctx)
}
