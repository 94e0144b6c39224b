package fakeredis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// subscribed opens a subscription and waits for the confirmation so a
// following PUBLISH cannot race the registration.
func subscribed(t *testing.T, client *redis.Client, patterns bool, names ...string) *redis.PubSub {
	t.Helper()
	ctx := context.Background()
	var ps *redis.PubSub
	if patterns {
		ps = client.PSubscribe(ctx, names...)
	} else {
		ps = client.Subscribe(ctx, names...)
	}
	t.Cleanup(func() { ps.Close() })
	_, err := ps.Receive(ctx)
	require.NoError(t, err)
	return ps
}

func TestPublishSubscribe(t *testing.T) {
	srv, client := startServer(t)
	ctx := context.Background()

	sub := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer sub.Close()
	ps := subscribed(t, sub, false, "news")

	n, err := client.Publish(ctx, "news", "hello").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	msgCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := ps.ReceiveMessage(msgCtx)
	require.NoError(t, err)
	require.Equal(t, "news", msg.Channel)
	require.Equal(t, "hello", msg.Payload)

	// Publishing to a channel with no subscribers reaches nobody.
	n, err = client.Publish(ctx, "void", "x").Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
}

func TestPatternSubscribe(t *testing.T) {
	srv, client := startServer(t)
	ctx := context.Background()

	sub := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer sub.Close()
	ps := subscribed(t, sub, true, "news.*")

	n, err := client.Publish(ctx, "news.sport", "goal").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	msgCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := ps.ReceiveMessage(msgCtx)
	require.NoError(t, err)
	require.Equal(t, "news.*", msg.Pattern)
	require.Equal(t, "news.sport", msg.Channel)
	require.Equal(t, "goal", msg.Payload)

	// Non-matching channels are not delivered.
	n, err = client.Publish(ctx, "weather.today", "rain").Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
}

func TestPubSubIntrospection(t *testing.T) {
	srv, client := startServer(t)
	ctx := context.Background()

	sub := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer sub.Close()
	subscribed(t, sub, false, "alpha", "beta")
	subscribed(t, sub, true, "gamma.*")

	channels, err := client.PubSubChannels(ctx, "*").Result()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"alpha", "beta"}, channels)

	counts, err := client.PubSubNumSub(ctx, "alpha", "ghost").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), counts["alpha"])
	require.Equal(t, int64(0), counts["ghost"])

	n, err := client.PubSubNumPat(ctx).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestSubscribeModeRejectsDataCommands(t *testing.T) {
	srv, _ := startServer(t)
	ctx := context.Background()

	// RESP2 connections in subscribe mode only admit the subscribe family.
	sub := redis.NewClient(&redis.Options{Addr: srv.Addr(), Protocol: 2})
	defer sub.Close()

	ps := sub.Subscribe(ctx, "ch")
	defer ps.Close()
	_, err := ps.Receive(ctx)
	require.NoError(t, err)

	// PING stays allowed in subscribe mode.
	require.NoError(t, ps.Ping(ctx))
}

func TestSubscribeModeGateRawSocket(t *testing.T) {
	srv, _ := startServer(t)
	conn, r := rawConn(t, srv)

	fmt.Fprintf(conn, "SUBSCRIBE ch\r\n")
	// Confirmation frame: *3, "subscribe", channel, count.
	require.Equal(t, "*3\r\n", readLine(t, r))
	for i := 0; i < 5; i++ {
		readLine(t, r)
	}

	fmt.Fprintf(conn, "GET k\r\n")
	line := readLine(t, r)
	require.Contains(t, line, "only (P|S)SUBSCRIBE")
}

func TestExpiredKeyNotification(t *testing.T) {
	srv, client := startServer(t)
	ctx := context.Background()

	require.NoError(t, client.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err())

	sub := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer sub.Close()
	ps := subscribed(t, sub, false, "__keyevent@0__:expired")

	require.NoError(t, client.Set(ctx, "k", "v", 50*time.Millisecond).Err())

	msgCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	msg, err := ps.ReceiveMessage(msgCtx)
	require.NoError(t, err)
	require.Equal(t, "k", msg.Payload, "the expired event carries the key name")
}

func TestKeyspaceEventOnSet(t *testing.T) {
	srv, client := startServer(t)
	ctx := context.Background()

	require.NoError(t, client.ConfigSet(ctx, "notify-keyspace-events", "KEA").Err())

	sub := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer sub.Close()
	ps := subscribed(t, sub, false, "__keyspace@0__:target")

	require.NoError(t, client.Set(ctx, "target", "v", 0).Err())

	msgCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := ps.ReceiveMessage(msgCtx)
	require.NoError(t, err)
	require.Equal(t, "set", msg.Payload)
}
