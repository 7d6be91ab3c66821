package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis server and returns a RedisStore instance
func setupTestRedis(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	store := NewRedisStore(client, "shop", ttl)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStore_Contract(t *testing.T) {
	store, _ := setupTestRedis(t, 0)
	runStoreContract(t, store)
}

func TestRedisStore_NamespacedKey(t *testing.T) {
	store, mr := setupTestRedis(t, 0)

	require.NoError(t, store.Set(context.Background(), KeyOrders, []byte("[]")))

	stored, err := mr.Get("state:shop:fortniteshop_orders")
	require.NoError(t, err)
	assert.Equal(t, "[]", stored)
	assert.Equal(t, time.Duration(0), mr.TTL("state:shop:fortniteshop_orders"))
}

func TestRedisStore_WithTTL(t *testing.T) {
	store, mr := setupTestRedis(t, 15*time.Minute)

	require.NoError(t, store.Set(context.Background(), KeyCart, []byte("[]")))

	ttl := mr.TTL("state:shop:fortniteshop_cart")
	assert.True(t, ttl >= 15*time.Minute, "TTL should be at least base TTL")
	assert.True(t, ttl <= 20*time.Minute, "TTL should be base + max jitter")
}

func TestRedisStore_ConnectionError(t *testing.T) {
	store, mr := setupTestRedis(t, 0)
	mr.Close()

	_, err := store.Get(context.Background(), KeyCart)
	require.ErrorContains(t, err, "redis get failed")
}

func TestStateKey_Format(t *testing.T) {
	assert.Equal(t, "state:fortniteshop_cart", (&RedisStore{}).stateKey(KeyCart))
	assert.Equal(t, "state:a:user", (&RedisStore{namespace: "a"}).stateKey(KeyUser))
}
