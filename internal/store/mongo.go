package store

import (
	"context"

	"github.com/destucr/chatroom-backend/internal/message"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps one document per message. ObjectIDs issued by the driver
// grow monotonically within this process, so sorting on _id gives append order.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, storeErr("connect", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, storeErr("ping", err)
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

func (s *MongoStore) Append(ctx context.Context, msg message.Message) error {
	if _, err := s.collection.InsertOne(ctx, msg); err != nil {
		return storeErr("append", err)
	}
	return nil
}

func (s *MongoStore) ListAll(ctx context.Context) ([]message.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetProjection(bson.D{{Key: "_id", Value: 0}})

	cursor, err := s.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, storeErr("list", err)
	}

	messages := make([]message.Message, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, storeErr("decode", err)
	}
	return messages, nil
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}
