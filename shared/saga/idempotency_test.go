package saga

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyStores(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	stores := map[string]IdempotencyStore{
		"redis":  NewRedisIdempotencyStore(client, "test", time.Hour),
		"memory": NewMemoryIdempotencyStore(),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, found, err := store.Get(ctx, "saga-1/1")
			require.NoError(t, err)
			assert.False(t, found)

			first := Outcome{Result: json.RawMessage(`{"reservation_id":"r-1"}`)}
			stored, err := store.Record(ctx, "saga-1/1", first)
			require.NoError(t, err)
			assert.JSONEq(t, `{"reservation_id":"r-1"}`, string(stored.Result))

			// a racing writer gets the first outcome back
			stored, err = store.Record(ctx, "saga-1/1", Outcome{Error: "late"})
			require.NoError(t, err)
			assert.False(t, stored.Failed())

			require.NoError(t, store.MarkPublished(ctx, "saga-1/1"))

			got, found, err := store.Get(ctx, "saga-1/1")
			require.NoError(t, err)
			assert.True(t, found)
			assert.True(t, got.Published)

			assert.Error(t, store.MarkPublished(ctx, "missing"))
		})
	}
}

func TestRedisIdempotencyStore_AppliesTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisIdempotencyStore(client, "", 0)
	_, err = store.Record(context.Background(), "k", Outcome{})
	require.NoError(t, err)

	assert.Equal(t, defaultIdempotencyTTL, mr.TTL("saga:idempotency:k"))

	mr.FastForward(defaultIdempotencyTTL + time.Second)
	_, found, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, found)
}
