// internal/database/mongodb.go
package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultMongoDatabase = "buddywalk"

type MongoDB struct {
	Client    *mongo.Client
	Users     *mongo.Collection
	Messages  *mongo.Collection
	Counters  *mongo.Collection
	Reads     *mongo.Collection
	Deletions *mongo.Collection
	Blocks    *mongo.Collection
}

func NewMongoDB(uri, dbName string) (*MongoDB, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Ping the database to verify connection
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	log.Println("Successfully connected to MongoDB!")

	if dbName == "" {
		dbName = defaultMongoDatabase
	}
	db := client.Database(dbName)
	return &MongoDB{
		Client:    client,
		Users:     db.Collection("users"),
		Messages:  db.Collection("messages"),
		Counters:  db.Collection("counters"),
		Reads:     db.Collection("conversation_reads"),
		Deletions: db.Collection("conversation_deletions"),
		Blocks:    db.Collection("blocks"),
	}, nil
}

// EnsureIndexes creates the unique and lookup indexes the adapter relies on.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{m.Users, mongo.IndexModel{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{m.Messages, mongo.IndexModel{
			Keys:    bson.D{{Key: "seq", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{m.Messages, mongo.IndexModel{
			Keys: bson.D{{Key: "senderId", Value: 1}, {Key: "receiverId", Value: 1}, {Key: "createdAt", Value: 1}},
		}},
		{m.Messages, mongo.IndexModel{
			Keys: bson.D{{Key: "receiverId", Value: 1}, {Key: "createdAt", Value: 1}},
		}},
		{m.Reads, mongo.IndexModel{Keys: bson.D{{Key: "userId", Value: 1}}}},
		{m.Deletions, mongo.IndexModel{Keys: bson.D{{Key: "userId", Value: 1}}}},
		{m.Blocks, mongo.IndexModel{Keys: bson.D{{Key: "blockedUserId", Value: 1}}}},
	}
	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("failed to create index on %s: %v", idx.coll.Name(), err)
		}
	}
	return nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}
