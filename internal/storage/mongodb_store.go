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

// MongoKV stores one document per slot, keyed by _id.
type MongoKV struct {
	client *mongo.Client
	slots  *mongo.Collection
}

type mongoSlot struct {
	Key       string    `bson:"_id"`
	Value     []byte    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoKV connects to MongoDB and returns a KV over database.collection.
func NewMongoKV(connectionString, database, collection string) (*MongoKV, error) {
	if database == "" {
		database = "card_checkout"
	}
	if collection == "" {
		collection = "saved_card_slots"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "updated_at", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create slot indexes: %w", err)
	}

	return &MongoKV{client: client, slots: coll}, nil
}

func (s *MongoKV) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var slot mongoSlot
	err := s.slots.FindOne(ctx, bson.M{"_id": key}).Decode(&slot)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	return slot.Value, nil
}

func (s *MongoKV) Put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	update := bson.M{"$set": bson.M{"value": value, "updated_at": time.Now().UTC()}}
	opts := options.Update().SetUpsert(true)
	if _, err := s.slots.UpdateOne(ctx, bson.M{"_id": key}, update, opts); err != nil {
		return fmt.Errorf("put slot: %w", err)
	}
	return nil
}

func (s *MongoKV) Delete(ctx context.Context, key string) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	if _, err := s.slots.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	return nil
}

func (s *MongoKV) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
