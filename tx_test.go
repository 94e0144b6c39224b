package fakeredis

import (
	"context"
	"fmt"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMultiExec(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	cmds, err := client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, "x")
		p.Incr(ctx, "x")
		return nil
	})
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	require.Equal(t, int64(1), cmds[0].(*redis.IntCmd).Val())
	require.Equal(t, int64(2), cmds[1].(*redis.IntCmd).Val())
}

func TestExecErrorInSlotContinues(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "str", "notanumber", 0).Err())

	cmds, _ := client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, "str") // runtime error in its slot
		p.Set(ctx, "after", "ran", 0)
		return nil
	})
	require.Len(t, cmds, 2)
	require.Error(t, cmds[0].Err())

	// No rollback: the command after the failed one still executed.
	v, err := client.Get(ctx, "after").Result()
	require.NoError(t, err)
	require.Equal(t, "ran", v)
}

func TestWatchInvalidation(t *testing.T) {
	srv, clientA := startServer(t)
	ctx := context.Background()

	clientB := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer clientB.Close()

	err := clientA.Watch(ctx, func(tx *redis.Tx) error {
		// A write from another connection lands between WATCH and EXEC.
		if err := clientB.Set(ctx, "x", "1", 0).Err(); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Get(ctx, "x")
			return nil
		})
		return err
	}, "x")
	require.ErrorIs(t, err, redis.TxFailedErr)

	// The conflicting write itself persisted.
	v, err := clientA.Get(ctx, "x").Result()
	require.NoError(t, err)
	require.Equal(t, "1", v)
}

func TestWatchUntouchedKeySucceeds(t *testing.T) {
	_, client := startServer(t)
	ctx := context.Background()

	err := client.Watch(ctx, func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, "x", "committed", 0)
			return nil
		})
		return err
	}, "x")
	require.NoError(t, err)

	v, err := client.Get(ctx, "x").Result()
	require.NoError(t, err)
	require.Equal(t, "committed", v)
}

func TestExecAbortOnQueueError(t *testing.T) {
	srv, _ := startServer(t)
	conn, r := rawConn(t, srv)

	fmt.Fprintf(conn, "MULTI\r\n")
	require.Equal(t, "+OK\r\n", readLine(t, r))

	fmt.Fprintf(conn, "SET k v\r\n")
	require.Equal(t, "+QUEUED\r\n", readLine(t, r))

	// Unknown command taints the transaction at queue time.
	fmt.Fprintf(conn, "NOSUCHCMD\r\n")
	require.Contains(t, readLine(t, r), "unknown command")

	fmt.Fprintf(conn, "EXEC\r\n")
	require.Contains(t, readLine(t, r), "EXECABORT")

	// The queued SET never ran.
	fmt.Fprintf(conn, "GET k\r\n")
	require.Equal(t, "$-1\r\n", readLine(t, r))
}

func TestNestedMultiAndStrayExec(t *testing.T) {
	srv, _ := startServer(t)
	conn, r := rawConn(t, srv)

	fmt.Fprintf(conn, "EXEC\r\n")
	require.Contains(t, readLine(t, r), "EXEC without MULTI")

	fmt.Fprintf(conn, "DISCARD\r\n")
	require.Contains(t, readLine(t, r), "DISCARD without MULTI")

	fmt.Fprintf(conn, "MULTI\r\n")
	require.Equal(t, "+OK\r\n", readLine(t, r))
	fmt.Fprintf(conn, "MULTI\r\n")
	require.Contains(t, readLine(t, r), "MULTI calls can not be nested")

	fmt.Fprintf(conn, "WATCH k\r\n")
	require.Contains(t, readLine(t, r), "WATCH inside MULTI is not allowed")

	fmt.Fprintf(conn, "DISCARD\r\n")
	require.Equal(t, "+OK\r\n", readLine(t, r))
}

func TestDiscardDropsQueue(t *testing.T) {
	srv, _ := startServer(t)
	conn, r := rawConn(t, srv)

	fmt.Fprintf(conn, "MULTI\r\n")
	require.Equal(t, "+OK\r\n", readLine(t, r))
	fmt.Fprintf(conn, "SET dropped v\r\n")
	require.Equal(t, "+QUEUED\r\n", readLine(t, r))
	fmt.Fprintf(conn, "DISCARD\r\n")
	require.Equal(t, "+OK\r\n", readLine(t, r))

	fmt.Fprintf(conn, "GET dropped\r\n")
	require.Equal(t, "$-1\r\n", readLine(t, r))
}
