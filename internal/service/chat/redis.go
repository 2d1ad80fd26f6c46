package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/emopulse/backend/internal/logger"
	"github.com/zhouzirui/emopulse/backend/internal/model/chat"
)

// RedisStore keeps each user's turns as a JSON list under {prefix}:history:{userID}.
// RPUSH is atomic, so concurrent appends never lose a turn.
type RedisStore struct {
	client *redis.Client
	prefix string
	log    logrus.FieldLogger
}

// NewRedisStore wraps an existing client. An empty prefix defaults to "chat".
func NewRedisStore(client *redis.Client, prefix string, log logrus.FieldLogger) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "chat"
	}
	return &RedisStore{client: client, prefix: prefix, log: logger.Component(log, "store.redis")}
}

// ConnectRedis 创建客户端并 PING 校验连通性。
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + ":history:" + userID
}

// AppendTurn appends the encoded turn to the user's list.
func (s *RedisStore) AppendTurn(ctx context.Context, userID string, turn chat.Turn) error {
	userID, turn, err := prepareTurn(userID, turn)
	if err != nil {
		return err
	}

	payload, err := sonic.Marshal(turn)
	if err != nil {
		return storageError("encode turn", err)
	}
	if err := s.client.RPush(ctx, s.key(userID), payload).Err(); err != nil {
		return storageError("append turn", err)
	}
	return nil
}

// GetHistory decodes the full list. A single undecodable entry fails the whole read.
func (s *RedisStore) GetHistory(ctx context.Context, userID string) ([]chat.Turn, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	raw, err := s.client.LRange(ctx, s.key(userID), 0, -1).Result()
	if err != nil {
		return nil, storageError("load history", err)
	}

	turns := make([]chat.Turn, 0, len(raw))
	for i, item := range raw {
		var turn chat.Turn
		if err := sonic.UnmarshalString(item, &turn); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"user_id": userID, "index": i}).Error("undecodable turn in history")
			return nil, storageError(fmt.Sprintf("decode turn %d", i), err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}
