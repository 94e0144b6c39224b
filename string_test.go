package fakeredis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestSetGetRoundTrip(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k", "v", 0).Err())
	v, err := client.Get(ctx, "k").Result()
	require.NoError(t, err)
	require.Equal(t, "v", v)

	// Binary-safe payloads survive.
	require.NoError(t, client.Set(ctx, "bin", "a\x00b\r\nc", 0).Err())
	v, err = client.Get(ctx, "bin").Result()
	require.NoError(t, err)
	require.Equal(t, "a\x00b\r\nc", v)
}

func TestSetOptions(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	// NX on a fresh key succeeds, second NX fails.
	ok, err := client.SetNX(ctx, "k", "1", 0).Result()
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = client.SetNX(ctx, "k", "2", 0).Result()
	require.NoError(t, err)
	require.False(t, ok)

	// XX on a missing key fails.
	ok, err = client.SetXX(ctx, "other", "1", 0).Result()
	require.NoError(t, err)
	require.False(t, ok)

	// KEEPTTL preserves the TTL across SET.
	require.NoError(t, client.Set(ctx, "ttl", "1", time.Minute).Err())
	require.NoError(t, client.Set(ctx, "ttl", "2", redis.KeepTTL).Err())
	d, err := client.TTL(ctx, "ttl").Result()
	require.NoError(t, err)
	require.Greater(t, d, 50*time.Second)

	// Plain SET clears the TTL.
	require.NoError(t, client.Set(ctx, "ttl", "3", 0).Err())
	d, err = client.TTL(ctx, "ttl").Result()
	require.NoError(t, err)
	require.Equal(t, time.Duration(-1), d)

	// SET ... GET returns the old value.
	old, err := client.Do(ctx, "SET", "k", "3", "GET").Text()
	require.NoError(t, err)
	require.Equal(t, "1", old)
}

func TestIncrDecr(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	n, err := client.Incr(ctx, "counter").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = client.IncrBy(ctx, "counter", 41).Result()
	require.NoError(t, err)
	require.Equal(t, int64(42), n)

	n, err = client.Decr(ctx, "counter").Result()
	require.NoError(t, err)
	require.Equal(t, int64(41), n)

	err = client.Set(ctx, "notanumber", "abc", 0).Err()
	require.NoError(t, err)
	err = client.Incr(ctx, "notanumber").Err()
	require.ErrorContains(t, err, "value is not an integer or out of range")
}

func TestIncrOverflow(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k", "9223372036854775807", 0).Err())
	err := client.Incr(ctx, "k").Err()
	require.ErrorContains(t, err, "would overflow")

	// The value is unchanged after the failed increment.
	v, err := client.Get(ctx, "k").Result()
	require.NoError(t, err)
	require.Equal(t, "9223372036854775807", v)
}

func TestIncrByFloat(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	f, err := client.IncrByFloat(ctx, "f", 10.5).Result()
	require.NoError(t, err)
	require.InDelta(t, 10.5, f, 1e-9)

	f, err = client.IncrByFloat(ctx, "f", -0.5).Result()
	require.NoError(t, err)
	require.InDelta(t, 10.0, f, 1e-9)

	// Trailing zeros are stripped in the stored representation.
	v, err := client.Get(ctx, "f").Result()
	require.NoError(t, err)
	require.Equal(t, "10", v)

	err = client.Do(ctx, "INCRBYFLOAT", "f", "nan").Err()
	require.ErrorContains(t, err, "not a valid float")
}

func TestAppendStrlen(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	n, err := client.Append(ctx, "k", "Hello ").Result()
	require.NoError(t, err)
	require.Equal(t, int64(6), n)
	n, err = client.Append(ctx, "k", "World").Result()
	require.NoError(t, err)
	require.Equal(t, int64(11), n)

	l, err := client.StrLen(ctx, "k").Result()
	require.NoError(t, err)
	require.Equal(t, int64(11), l)
}

func TestSetRangeOnMissingKey(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	n, err := client.SetRange(ctx, "k", 5, "x").Result()
	require.NoError(t, err)
	require.Equal(t, int64(6), n)

	v, err := client.Get(ctx, "k").Result()
	require.NoError(t, err)
	require.Equal(t, "\x00\x00\x00\x00\x00x", v)
}

func TestGetRange(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k", "This is a string", 0).Err())

	v, err := client.GetRange(ctx, "k", 0, 3).Result()
	require.NoError(t, err)
	require.Equal(t, "This", v)

	v, err = client.GetRange(ctx, "k", -3, -1).Result()
	require.NoError(t, err)
	require.Equal(t, "ing", v)

	v, err = client.GetRange(ctx, "k", 10, 100).Result()
	require.NoError(t, err)
	require.Equal(t, "string", v)
}

func TestMSetMGetMSetNX(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	require.NoError(t, client.MSet(ctx, "a", "1", "b", "2").Err())
	vals, err := client.MGet(ctx, "a", "missing", "b").Result()
	require.NoError(t, err)
	require.Equal(t, []interface{}{"1", nil, "2"}, vals)

	ok, err := client.MSetNX(ctx, "c", "3", "a", "x").Result()
	require.NoError(t, err)
	require.False(t, ok, "MSETNX must fail when any key exists")
	_, err = client.Get(ctx, "c").Result()
	require.ErrorIs(t, err, redis.Nil, "MSETNX must be all-or-nothing")
}

func TestGetDelGetEx(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k", "v", 0).Err())
	v, err := client.GetDel(ctx, "k").Result()
	require.NoError(t, err)
	require.Equal(t, "v", v)
	_, err = client.Get(ctx, "k").Result()
	require.ErrorIs(t, err, redis.Nil)

	require.NoError(t, client.Set(ctx, "e", "v", 0).Err())
	v, err = client.GetEx(ctx, "e", time.Minute).Result()
	require.NoError(t, err)
	require.Equal(t, "v", v)
	d, err := client.TTL(ctx, "e").Result()
	require.NoError(t, err)
	require.Greater(t, d, 50*time.Second)
}

func TestTypeMismatchKeepsValue(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k", "s", 0).Err())
	err := client.LPush(ctx, "k", "v").Err()
	require.ErrorContains(t, err, "WRONGTYPE")

	v, err := client.Get(ctx, "k").Result()
	require.NoError(t, err)
	require.Equal(t, "s", v)
}

func TestBitmapOps(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	old, err := client.SetBit(ctx, "bits", 7, 1).Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), old)

	bit, err := client.GetBit(ctx, "bits", 7).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), bit)

	v, err := client.Get(ctx, "bits").Result()
	require.NoError(t, err)
	require.Equal(t, "\x01", v)

	require.NoError(t, client.Set(ctx, "count", "foobar", 0).Err())
	n, err := client.BitCount(ctx, "count", nil).Result()
	require.NoError(t, err)
	require.Equal(t, int64(26), n)

	n, err = client.BitCount(ctx, "count", &redis.BitCount{Start: 1, End: 1}).Result()
	require.NoError(t, err)
	require.Equal(t, int64(6), n)

	pos, err := client.BitPos(ctx, "count", 1).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), pos)

	require.NoError(t, client.Set(ctx, "x", "abc", 0).Err())
	require.NoError(t, client.Set(ctx, "y", "abd", 0).Err())
	n, err = client.BitOpXor(ctx, "dest", "x", "y").Result()
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	v, err = client.Get(ctx, "dest").Result()
	require.NoError(t, err)
	require.Equal(t, "\x00\x00\x07", v)
}

func TestBitField(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	res, err := client.Do(ctx, "BITFIELD", "bf", "SET", "u8", "0", "255", "GET", "u8", "0").Slice()
	require.NoError(t, err)
	require.Equal(t, []interface{}{int64(0), int64(255)}, res)

	// u8 WRAP: 255 + 1 = 0
	res, err = client.Do(ctx, "BITFIELD", "bf", "INCRBY", "u8", "0", "1").Slice()
	require.NoError(t, err)
	require.Equal(t, []interface{}{int64(0)}, res)

	// SAT saturates at the top of the range.
	res, err = client.Do(ctx, "BITFIELD", "bf", "OVERFLOW", "SAT", "INCRBY", "i8", "8", "200").Slice()
	require.NoError(t, err)
	require.Equal(t, []interface{}{int64(127)}, res)

	// FAIL yields a nil slot on overflow.
	res, err = client.Do(ctx, "BITFIELD", "bf", "OVERFLOW", "FAIL", "INCRBY", "i8", "8", "100").Slice()
	require.NoError(t, err)
	require.Equal(t, []interface{}{nil}, res)
}

func TestHyperLogLog(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	n, err := client.PFAdd(ctx, "hll", "a", "b", "c").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = client.PFAdd(ctx, "hll", "a").Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), n, "no new members means no change")

	count, err := client.PFCount(ctx, "hll").Result()
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	require.NoError(t, client.PFAdd(ctx, "hll2", "c", "d").Err())
	count, err = client.PFCount(ctx, "hll", "hll2").Result()
	require.NoError(t, err)
	require.Equal(t, int64(4), count)

	require.NoError(t, client.PFMerge(ctx, "merged", "hll", "hll2").Err())
	count, err = client.PFCount(ctx, "merged").Result()
	require.NoError(t, err)
	require.Equal(t, int64(4), count)
}
