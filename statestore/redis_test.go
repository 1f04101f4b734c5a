package statestore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedisStore creates a test Redis store with miniredis
func setupRedisStore(t *testing.T, opts ...RedisOption) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, opts...), mr
}

func TestRedisStoreContract(t *testing.T) {
	store, _ := setupRedisStore(t)
	runStoreContract(t, store)
}

func TestRedisStoreKeyLayout(t *testing.T) {
	store, mr := setupRedisStore(t, WithPrefix("bookings"))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "execution:abc", []byte("{}")))
	require.NoError(t, store.AppendLedgerEntries(ctx, []byte("rec")))
	require.NoError(t, store.Append(ctx, "wallet:audit:alice", []byte("audit")))

	assert.True(t, mr.Exists("bookings:kv:execution:abc"))
	list, err := mr.List("bookings:ledger")
	require.NoError(t, err)
	assert.Equal(t, []string{"rec"}, list)
	audit, err := mr.List("bookings:list:wallet:audit:alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"audit"}, audit)
}

func TestRedisStoreTTLAppliesToValuesOnly(t *testing.T) {
	store, mr := setupRedisStore(t, WithTTL(time.Minute))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v")))
	require.NoError(t, store.AppendLedgerEntries(ctx, []byte("rec")))

	assert.Equal(t, time.Minute, mr.TTL("edenkit:kv:k"))
	assert.Equal(t, time.Duration(0), mr.TTL("edenkit:ledger"))

	mr.FastForward(2 * time.Minute)
	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	entries, err := store.LedgerEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRedisStorePing(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))

	mr.Close()
	assert.Error(t, store.Ping(ctx))
	_, err := store.Get(ctx, "k")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
