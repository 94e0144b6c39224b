package fakeredis

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestHashBasics(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	n, err := client.HSet(ctx, "h", "f1", "v1", "f2", "v2").Result()
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	// Resetting an existing field counts zero new fields.
	n, err = client.HSet(ctx, "h", "f1", "changed").Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), n)

	v, err := client.HGet(ctx, "h", "f1").Result()
	require.NoError(t, err)
	require.Equal(t, "changed", v)

	_, err = client.HGet(ctx, "h", "nope").Result()
	require.ErrorIs(t, err, redis.Nil)

	all, err := client.HGetAll(ctx, "h").Result()
	require.NoError(t, err)
	require.Equal(t, map[string]string{"f1": "changed", "f2": "v2"}, all)

	n, err = client.HLen(ctx, "h").Result()
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	vals, err := client.HMGet(ctx, "h", "f2", "nope").Result()
	require.NoError(t, err)
	require.Equal(t, []interface{}{"v2", nil}, vals)
}

func TestHDelRemovesEmptyHash(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	require.NoError(t, client.HSet(ctx, "h", "f", "v").Err())
	n, err := client.HDel(ctx, "h", "f", "ghost").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	exists, err := client.Exists(ctx, "h").Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), exists)
}

func TestHSetNX(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	ok, err := client.HSetNX(ctx, "h", "f", "1").Result()
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = client.HSetNX(ctx, "h", "f", "2").Result()
	require.NoError(t, err)
	require.False(t, ok)

	v, err := client.HGet(ctx, "h", "f").Result()
	require.NoError(t, err)
	require.Equal(t, "1", v)
}

func TestHIncrBy(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	n, err := client.HIncrBy(ctx, "h", "c", 5).Result()
	require.NoError(t, err)
	require.Equal(t, int64(5), n)
	n, err = client.HIncrBy(ctx, "h", "c", -11).Result()
	require.NoError(t, err)
	require.Equal(t, int64(-6), n)

	require.NoError(t, client.HSet(ctx, "h", "s", "abc").Err())
	err = client.HIncrBy(ctx, "h", "s", 1).Err()
	require.ErrorContains(t, err, "hash value is not an integer")

	f, err := client.HIncrByFloat(ctx, "h", "f", 0.25).Result()
	require.NoError(t, err)
	require.InDelta(t, 0.25, f, 1e-9)
}

func TestHKeysValsStrlen(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	require.NoError(t, client.HSet(ctx, "h", "a", "x", "b", "yy").Err())

	keys, err := client.HKeys(ctx, "h").Result()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, keys)

	vals, err := client.HVals(ctx, "h").Result()
	require.NoError(t, err)
	require.Equal(t, []string{"x", "yy"}, vals)

	n, err := client.Do(ctx, "HSTRLEN", "h", "b").Int64()
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestHScan(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	require.NoError(t, client.HSet(ctx, "h",
		"field1", "1", "field2", "2", "other", "3").Err())

	pairs, cursor, err := client.HScan(ctx, "h", 0, "field*", 100).Result()
	require.NoError(t, err)
	require.Equal(t, uint64(0), cursor)
	require.Equal(t, []string{"field1", "1", "field2", "2"}, pairs)
}
