package chat_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chat "github.com/zhouzirui/emopulse/backend/internal/service/chat"
)

func newRedisStore(t *testing.T) (*chat.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return chat.NewRedisStore(client, "test", nil), srv
}

func TestRedisStore(t *testing.T) {
	store, _ := newRedisStore(t)
	storeContract(t, store)
}

func TestRedisStoreKeyLayout(t *testing.T) {
	store, srv := newRedisStore(t)
	ctx := context.Background()

	_, err := srv.RPush("test:history:u1", `{"id":"t1","user_message":"hi","ai_response":"hello"}`)
	require.NoError(t, err)

	turns, err := store.GetHistory(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "t1", turns[0].ID)
}

func TestRedisStoreCorruptEntryFailsRead(t *testing.T) {
	store, srv := newRedisStore(t)
	ctx := context.Background()

	_, err := srv.RPush("test:history:u1", `{"id":"t1","user_message":"hi","ai_response":"hello"}`)
	require.NoError(t, err)
	_, err = srv.RPush("test:history:u1", "{not json")
	require.NoError(t, err)

	turns, err := store.GetHistory(ctx, "u1")
	assert.Nil(t, turns)
	assert.True(t, errors.Is(err, chat.ErrStorage))

	list, err := srv.List("test:history:u1")
	require.NoError(t, err)
	assert.Len(t, list, 2, "stored entries are left untouched")
}

func TestRedisStoreBackendDownIsStorageError(t *testing.T) {
	store, srv := newRedisStore(t)
	srv.Close()

	_, err := store.GetHistory(context.Background(), "u1")
	assert.True(t, errors.Is(err, chat.ErrStorage))
}
