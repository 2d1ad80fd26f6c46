package chat

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/emopulse/backend/internal/config"
)

// Open builds the store selected by cfg.Backend. The returned close func
// releases the backend connection and is never nil.
func Open(ctx context.Context, cfg config.StoreConfig, log logrus.FieldLogger) (Store, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	switch cfg.Backend {
	case config.StoreMongo:
		client, coll, err := ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			return nil, noop, err
		}
		store := NewMongoStore(coll, log)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, noop, err
		}
		return store, client.Disconnect, nil

	case config.StoreRedis:
		client, err := ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, noop, err
		}
		return NewRedisStore(client, cfg.RedisPrefix, log), func(context.Context) error { return client.Close() }, nil

	case config.StoreMemory, "":
		return NewMemoryStore(), noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
