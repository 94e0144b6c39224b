package fakeredis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestXAddAutoIDsIncrease(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	var prev string
	for i := 0; i < 5; i++ {
		id, err := client.XAdd(ctx, &redis.XAddArgs{
			Stream: "s",
			Values: map[string]interface{}{"i": i},
		}).Result()
		require.NoError(t, err)
		if prev != "" {
			require.Greater(t, id, "")
			a, _, okA := parseStreamID(prev, 0)
			b, _, okB := parseStreamID(id, 0)
			require.True(t, okA && okB)
			require.True(t, a.less(b), "ids must be strictly increasing: %s then %s", prev, id)
		}
		prev = id
	}

	n, err := client.XLen(ctx, "s").Result()
	require.NoError(t, err)
	require.Equal(t, int64(5), n)
}

func TestXAddExplicitIDs(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	id, err := client.XAdd(ctx, &redis.XAddArgs{Stream: "s", ID: "5-1", Values: map[string]interface{}{"f": "v"}}).Result()
	require.NoError(t, err)
	require.Equal(t, "5-1", id)

	// Equal or smaller ids are rejected.
	err = client.XAdd(ctx, &redis.XAddArgs{Stream: "s", ID: "5-1", Values: map[string]interface{}{"f": "v"}}).Err()
	require.ErrorContains(t, err, "equal or smaller")

	// ms-* auto-sequences within the millisecond.
	id, err = client.XAdd(ctx, &redis.XAddArgs{Stream: "s", ID: "5-*", Values: map[string]interface{}{"f": "v"}}).Result()
	require.NoError(t, err)
	require.Equal(t, "5-2", id)

	// NOMKSTREAM refuses to create.
	err = client.XAdd(ctx, &redis.XAddArgs{Stream: "nope", NoMkStream: true, Values: map[string]interface{}{"f": "v"}}).Err()
	require.ErrorIs(t, err, redis.Nil)
}

func TestXRangeAndTrim(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
			Stream: "s", ID: formatInt(int64(i)) + "-0",
			Values: map[string]interface{}{"i": i},
		}).Err())
	}

	msgs, err := client.XRange(ctx, "s", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	require.Equal(t, "1-0", msgs[0].ID)

	msgs, err = client.XRange(ctx, "s", "2", "4").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	msgs, err = client.XRevRange(ctx, "s", "+", "-").Result()
	require.NoError(t, err)
	require.Equal(t, "5-0", msgs[0].ID)

	n, err := client.XTrimMaxLen(ctx, "s", 2).Result()
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	msgs, err = client.XRange(ctx, "s", "-", "+").Result()
	require.NoError(t, err)
	require.Equal(t, "4-0", msgs[0].ID)

	n, err = client.XDel(ctx, "s", "4-0").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestStreamSurvivesEmptiness(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	id, err := client.XAdd(ctx, &redis.XAddArgs{Stream: "s", Values: map[string]interface{}{"f": "v"}}).Result()
	require.NoError(t, err)
	require.NoError(t, client.XGroupCreate(ctx, "s", "g", "0").Err())

	n, err := client.XDel(ctx, "s", id).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	// Unlike other aggregates, an emptied stream still exists.
	exists, err := client.Exists(ctx, "s").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), exists)
}

func TestConsumerGroupFlow(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := client.XAdd(ctx, &redis.XAddArgs{Stream: "s", Values: map[string]interface{}{"f": "v"}}).Result()
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.NoError(t, client.XGroupCreate(ctx, "s", "g", "0").Err())
	err := client.XGroupCreate(ctx, "s", "g", "0").Err()
	require.ErrorContains(t, err, "BUSYGROUP")

	streams, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group: "g", Consumer: "c", Streams: []string{"s", ">"}, Count: 2,
	}).Result()
	require.NoError(t, err)
	require.Len(t, streams, 1)
	require.Len(t, streams[0].Messages, 2)
	require.Equal(t, ids[0], streams[0].Messages[0].ID)

	pending, err := client.XPending(ctx, "s", "g").Result()
	require.NoError(t, err)
	require.Equal(t, int64(2), pending.Count)
	require.Equal(t, int64(2), pending.Consumers["c"])

	acked, err := client.XAck(ctx, "s", "g", ids[0]).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), acked)

	pending, err = client.XPending(ctx, "s", "g").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), pending.Count)

	// The third entry is still new for the group.
	streams, err = client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group: "g", Consumer: "c2", Streams: []string{"s", ">"}, Count: 10,
	}).Result()
	require.NoError(t, err)
	require.Len(t, streams[0].Messages, 1)
	require.Equal(t, ids[2], streams[0].Messages[0].ID)
}

func TestXReadGroupNoGroup(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{Stream: "s", Values: map[string]interface{}{"f": "v"}}).Err())
	err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group: "ghost", Consumer: "c", Streams: []string{"s", ">"},
	}).Err()
	require.ErrorContains(t, err, "NOGROUP")
}

func TestXClaim(t *testing.T) {
	srv, client := startServer(t)
	ctx := context.Background()

	clock := NewManualClock(time.Now())
	srv.SetClock(clock)

	id, err := client.XAdd(ctx, &redis.XAddArgs{Stream: "s", Values: map[string]interface{}{"f": "v"}}).Result()
	require.NoError(t, err)
	require.NoError(t, client.XGroupCreate(ctx, "s", "g", "0").Err())

	_, err = client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group: "g", Consumer: "old", Streams: []string{"s", ">"},
	}).Result()
	require.NoError(t, err)

	clock.Advance(time.Minute)

	msgs, err := client.XClaim(ctx, &redis.XClaimArgs{
		Stream: "s", Group: "g", Consumer: "new", MinIdle: 30 * time.Second, Messages: []string{id},
	}).Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, id, msgs[0].ID)

	pending, err := client.XPending(ctx, "s", "g").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), pending.Consumers["new"])
}

func TestXReadBlocking(t *testing.T) {
	srv, client := startServer(t)
	ctx := context.Background()

	other := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer other.Close()

	done := make(chan []redis.XStream, 1)
	go func() {
		streams, err := client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{"s", "$"}, Block: 0,
		}).Result()
		if err == nil {
			done <- streams
		}
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, other.XAdd(ctx, &redis.XAddArgs{Stream: "s", Values: map[string]interface{}{"k": "late"}}).Err())

	select {
	case streams := <-done:
		require.Len(t, streams, 1)
		require.Len(t, streams[0].Messages, 1)
		require.Equal(t, "late", streams[0].Messages[0].Values["k"])
	case <-time.After(3 * time.Second):
		t.Fatal("XREAD BLOCK did not wake up")
	}
}
