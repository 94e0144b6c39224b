package fakeredis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestPushRange(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	n, err := client.LPush(ctx, "k", "a", "b", "c").Result()
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	vals, err := client.LRange(ctx, "k", 0, -1).Result()
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b", "a"}, vals)

	n, err = client.RPush(ctx, "k", "z").Result()
	require.NoError(t, err)
	require.Equal(t, int64(4), n)
	vals, err = client.LRange(ctx, "k", -2, -1).Result()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "z"}, vals)

	// PUSHX variants refuse to create keys.
	n, err = client.LPushX(ctx, "missing", "v").Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
}

func TestPopAndEmptyRemoval(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	require.NoError(t, client.RPush(ctx, "k", "a", "b").Err())

	v, err := client.LPop(ctx, "k").Result()
	require.NoError(t, err)
	require.Equal(t, "a", v)
	v, err = client.RPop(ctx, "k").Result()
	require.NoError(t, err)
	require.Equal(t, "b", v)

	// Empty aggregates do not exist.
	n, err := client.Exists(ctx, "k").Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), n)

	_, err = client.LPop(ctx, "k").Result()
	require.ErrorIs(t, err, redis.Nil)

	// Count form.
	require.NoError(t, client.RPush(ctx, "m", "1", "2", "3").Err())
	vals, err := client.LPopCount(ctx, "m", 2).Result()
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2"}, vals)
}

func TestLIndexLSetLInsert(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	require.NoError(t, client.RPush(ctx, "k", "a", "b", "c").Err())

	v, err := client.LIndex(ctx, "k", -1).Result()
	require.NoError(t, err)
	require.Equal(t, "c", v)

	require.NoError(t, client.LSet(ctx, "k", 1, "B").Err())
	err = client.LSet(ctx, "k", 9, "x").Err()
	require.ErrorContains(t, err, "index out of range")

	n, err := client.LInsert(ctx, "k", "BEFORE", "B", "ab").Result()
	require.NoError(t, err)
	require.Equal(t, int64(4), n)
	n, err = client.LInsert(ctx, "k", "AFTER", "nope", "x").Result()
	require.NoError(t, err)
	require.Equal(t, int64(-1), n)

	vals, err := client.LRange(ctx, "k", 0, -1).Result()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "ab", "B", "c"}, vals)
}

func TestLRemLTrim(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	require.NoError(t, client.RPush(ctx, "k", "x", "a", "x", "b", "x").Err())

	n, err := client.LRem(ctx, "k", 2, "x").Result()
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	vals, err := client.LRange(ctx, "k", 0, -1).Result()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "x"}, vals)

	n, err = client.LRem(ctx, "k", -1, "x").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	require.NoError(t, client.RPush(ctx, "t", "1", "2", "3", "4", "5").Err())
	require.NoError(t, client.LTrim(ctx, "t", 1, 3).Err())
	vals, err = client.LRange(ctx, "t", 0, -1).Result()
	require.NoError(t, err)
	require.Equal(t, []string{"2", "3", "4"}, vals)
}

func TestLMoveAndRotation(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	require.NoError(t, client.RPush(ctx, "src", "a", "b", "c").Err())

	v, err := client.LMove(ctx, "src", "dst", "LEFT", "RIGHT").Result()
	require.NoError(t, err)
	require.Equal(t, "a", v)

	// Same-key rotation.
	v, err = client.LMove(ctx, "src", "src", "RIGHT", "LEFT").Result()
	require.NoError(t, err)
	require.Equal(t, "c", v)
	vals, err := client.LRange(ctx, "src", 0, -1).Result()
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b"}, vals)

	_, err = client.LMove(ctx, "missing", "dst", "LEFT", "LEFT").Result()
	require.ErrorIs(t, err, redis.Nil)
}

func TestLPos(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	require.NoError(t, client.RPush(ctx, "k", "a", "b", "c", "b", "b").Err())

	pos, err := client.Do(ctx, "LPOS", "k", "b").Int64()
	require.NoError(t, err)
	require.Equal(t, int64(1), pos)

	pos, err = client.Do(ctx, "LPOS", "k", "b", "RANK", "-1").Int64()
	require.NoError(t, err)
	require.Equal(t, int64(4), pos)

	all, err := client.Do(ctx, "LPOS", "k", "b", "COUNT", "0").Int64Slice()
	require.NoError(t, err)
	require.Equal(t, []int64{1, 3, 4}, all)
}

func TestBlockingPop(t *testing.T) {
	srv, client := startServer(t)
	ctx := context.Background()

	other := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer other.Close()

	type result struct {
		vals []string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		vals, err := client.BLPop(ctx, 0, "q").Result()
		done <- result{vals, err}
	}()

	// Give the waiter time to park, then feed the queue.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, other.RPush(ctx, "q", "v").Err())

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.Equal(t, []string{"q", "v"}, r.vals)
	case <-time.After(3 * time.Second):
		t.Fatal("BLPOP did not wake up")
	}

	// The popped element left the queue empty, so the key is gone.
	n, err := other.LLen(ctx, "q").Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
	n, err = other.Exists(ctx, "q").Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
}

func TestBlockingPopTimeout(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	start := time.Now()
	_, err := client.BLPop(ctx, 150*time.Millisecond, "nothing").Result()
	require.ErrorIs(t, err, redis.Nil)
	require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestBlockingInsideMultiReturnsImmediately(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	cmds, err := client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.BLPop(ctx, 0, "empty-queue")
		return nil
	})
	require.Error(t, err) // the BLPop slot carries redis.Nil
	require.Len(t, cmds, 1)
	require.ErrorIs(t, cmds[0].Err(), redis.Nil)
}

func TestBLMove(t *testing.T) {
	srv, client := startServer(t)
	ctx := context.Background()

	other := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer other.Close()

	done := make(chan string, 1)
	go func() {
		v, err := client.BLMove(ctx, "src", "dst", "LEFT", "RIGHT", 0).Result()
		if err == nil {
			done <- v
		}
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, other.RPush(ctx, "src", "payload").Err())

	select {
	case v := <-done:
		require.Equal(t, "payload", v)
	case <-time.After(3 * time.Second):
		t.Fatal("BLMOVE did not wake up")
	}

	vals, err := other.LRange(ctx, "dst", 0, -1).Result()
	require.NoError(t, err)
	require.Equal(t, []string{"payload"}, vals)
}
