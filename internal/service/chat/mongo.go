package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zhouzirui/emopulse/backend/internal/logger"
	"github.com/zhouzirui/emopulse/backend/internal/model/chat"
)

// MongoStore keeps one document per user with the turns in a chat_history array.
type MongoStore struct {
	coll *mongo.Collection
	log  logrus.FieldLogger
}

// NewMongoStore wraps an existing collection.
func NewMongoStore(coll *mongo.Collection, log logrus.FieldLogger) *MongoStore {
	return &MongoStore{coll: coll, log: logger.Component(log, "store.mongo")}
}

// ConnectMongo 连接 MongoDB 并校验连通性，返回 client 供关闭时使用。
func ConnectMongo(ctx context.Context, uri, database, collection string) (*mongo.Client, *mongo.Collection, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return client, client.Database(database).Collection(collection), nil
}

// EnsureIndexes creates the unique user_id index that makes upserts race-safe.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("user_id_unique"),
	})
	if err != nil {
		return storageError("create index", err)
	}
	return nil
}

// AppendTurn pushes the turn onto the user's document, creating it on first use.
func (s *MongoStore) AppendTurn(ctx context.Context, userID string, turn chat.Turn) error {
	userID, turn, err := prepareTurn(userID, turn)
	if err != nil {
		return err
	}

	filter := bson.M{"user_id": userID}
	update := bson.M{
		"$push":        bson.M{"chat_history": turn},
		"$setOnInsert": bson.M{"created_at": turn.Timestamp},
	}
	opts := options.Update().SetUpsert(true)

	_, err = s.coll.UpdateOne(ctx, filter, update, opts)
	if mongo.IsDuplicateKeyError(err) {
		// two first-time appends raced on the upsert; the document exists now
		s.log.WithField("user_id", userID).Debug("upsert raced, retrying as update")
		_, err = s.coll.UpdateOne(ctx, filter, update, opts)
	}
	if err != nil {
		return storageError("append turn", err)
	}
	return nil
}

// GetHistory returns the user's turns in stored order. A missing document is an empty history.
func (s *MongoStore) GetHistory(ctx context.Context, userID string) ([]chat.Turn, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	var doc chat.History
	opts := options.FindOne().SetProjection(bson.M{"_id": 0, "user_id": 1, "chat_history": 1})
	err := s.coll.FindOne(ctx, bson.M{"user_id": userID}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []chat.Turn{}, nil
	}
	if err != nil {
		return nil, storageError("load history", err)
	}
	if doc.ChatHistory == nil {
		return []chat.Turn{}, nil
	}
	return doc.ChatHistory, nil
}
