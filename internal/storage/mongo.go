package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoPoolSize covers one storefront session: a cart, order and review write
// plus a chat poll can be in flight together.
const mongoPoolSize = 4

// OpenMongoDatabase connects with a small pool and fails fast when the server
// cannot be reached, so the caller can fall back or exit.
func OpenMongoDatabase(ctx context.Context, uri, database string) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetAppName("storefront").
		SetMaxPoolSize(mongoPoolSize).
		SetMaxConnIdleTime(time.Minute).
		SetServerSelectionTimeout(3*time.Second).
		SetTimeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client.Database(database), nil
}

type stateDocument struct {
	Key       string    `bson:"_id"`
	Value     []byte    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore keeps one document per namespaced key.
type MongoStore struct {
	collection *mongo.Collection
	namespace  string
}

func NewMongoStore(db *mongo.Database, namespace string) *MongoStore {
	return &MongoStore{
		collection: db.Collection("state"),
		namespace:  namespace,
	}
}

func (m *MongoStore) Get(ctx context.Context, key string) ([]byte, error) {
	var doc stateDocument
	err := m.collection.FindOne(ctx, bson.M{"_id": m.docID(key)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get state: %w", err)
	}
	return doc.Value, nil
}

func (m *MongoStore) Set(ctx context.Context, key string, value []byte) error {
	filter := bson.M{"_id": m.docID(key)}
	update := bson.M{"$set": bson.M{"value": value, "updated_at": time.Now()}}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert state: %w", err)
	}
	return nil
}

func (m *MongoStore) Delete(ctx context.Context, key string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"_id": m.docID(key)}); err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	return nil
}

// CreateIndexes expires state nobody touched for 90 days.
func (m *MongoStore) CreateIndexes(ctx context.Context) error {
	index := mongo.IndexModel{
		Keys:    bson.D{{Key: "updated_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60),
	}
	if _, err := m.collection.Indexes().CreateOne(ctx, index); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.collection.Database().Client().Disconnect(ctx)
}

func (m *MongoStore) docID(key string) string {
	if m.namespace == "" {
		return key
	}
	return m.namespace + ":" + key
}
