package fakeredis

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// rawConn dials the server for protocol-level assertions without a
// client library in between.
func rawConn(t *testing.T, srv *Server) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.Addr(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return line
}

func TestMultibulkFraming(t *testing.T) {
	srv, _ := startServer(t)
	conn, r := rawConn(t, srv)

	fmt.Fprintf(conn, "*1\r\n$4\r\nPING\r\n")
	require.Equal(t, "+PONG\r\n", readLine(t, r))

	fmt.Fprintf(conn, "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n")
	require.Equal(t, "+OK\r\n", readLine(t, r))

	fmt.Fprintf(conn, "*2\r\n$3\r\nGET\r\n$1\r\nk\r\n")
	require.Equal(t, "$1\r\n", readLine(t, r))
	require.Equal(t, "v\r\n", readLine(t, r))
}

func TestInlineCommands(t *testing.T) {
	srv, _ := startServer(t)
	conn, r := rawConn(t, srv)

	fmt.Fprintf(conn, "PING\r\n")
	require.Equal(t, "+PONG\r\n", readLine(t, r))

	fmt.Fprintf(conn, "SET inline-key inline-value\r\n")
	require.Equal(t, "+OK\r\n", readLine(t, r))

	fmt.Fprintf(conn, "STRLEN inline-key\r\n")
	require.Equal(t, ":12\r\n", readLine(t, r))
}

func TestNilRepliesRESP2(t *testing.T) {
	srv, _ := startServer(t)
	conn, r := rawConn(t, srv)

	fmt.Fprintf(conn, "*2\r\n$3\r\nGET\r\n$7\r\nmissing\r\n")
	require.Equal(t, "$-1\r\n", readLine(t, r))

	fmt.Fprintf(conn, "*2\r\n$4\r\nLPOP\r\n$7\r\nmissing\r\n")
	require.Equal(t, "$-1\r\n", readLine(t, r))
}

func TestHelloSwitchesProtocol(t *testing.T) {
	srv, _ := startServer(t)
	conn, r := rawConn(t, srv)

	fmt.Fprintf(conn, "*2\r\n$5\r\nHELLO\r\n$1\r\n3\r\n")
	line := readLine(t, r)
	require.Equal(t, byte('%'), line[0], "HELLO 3 reply must be a RESP3 map, got %q", line)
	// Drain the map payload: 7 pairs of simple values.
	for i := 0; i < 14; i++ {
		item := readLine(t, r)
		if item[0] == '$' || item[0] == '=' {
			readLine(t, r)
		}
		if item[0] == '*' && item != "*0\r\n" {
			t.Fatalf("unexpected nested array %q", item)
		}
	}

	// Nil now encodes as the RESP3 null.
	fmt.Fprintf(conn, "*2\r\n$3\r\nGET\r\n$7\r\nmissing\r\n")
	require.Equal(t, "_\r\n", readLine(t, r))
}

func TestHelloBadProto(t *testing.T) {
	srv, _ := startServer(t)
	conn, r := rawConn(t, srv)

	fmt.Fprintf(conn, "*2\r\n$5\r\nHELLO\r\n$1\r\n9\r\n")
	line := readLine(t, r)
	require.Contains(t, line, "NOPROTO")
}

func TestSelectIsolatesDatabases(t *testing.T) {
	srv, _ := startServer(t)
	conn, r := rawConn(t, srv)

	fmt.Fprintf(conn, "SET k db0\r\n")
	require.Equal(t, "+OK\r\n", readLine(t, r))

	fmt.Fprintf(conn, "SELECT 1\r\n")
	require.Equal(t, "+OK\r\n", readLine(t, r))

	fmt.Fprintf(conn, "GET k\r\n")
	require.Equal(t, "$-1\r\n", readLine(t, r))

	fmt.Fprintf(conn, "SET k db1\r\n")
	require.Equal(t, "+OK\r\n", readLine(t, r))

	fmt.Fprintf(conn, "SELECT 0\r\n")
	require.Equal(t, "+OK\r\n", readLine(t, r))
	fmt.Fprintf(conn, "GET k\r\n")
	require.Equal(t, "$3\r\n", readLine(t, r))
	require.Equal(t, "db0\r\n", readLine(t, r))

	fmt.Fprintf(conn, "SELECT 99\r\n")
	require.Contains(t, readLine(t, r), "out of range")
}

func TestOversizedBulkIsFatal(t *testing.T) {
	srv, _ := startServer(t)
	conn, r := rawConn(t, srv)

	// A bulk length over 512 MiB closes the connection with no reply.
	fmt.Fprintf(conn, "*2\r\n$3\r\nGET\r\n$999999999999\r\n")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := r.ReadByte()
	require.ErrorIs(t, err, io.EOF)
}

func TestMalformedFramingIsFatal(t *testing.T) {
	srv, _ := startServer(t)
	conn, r := rawConn(t, srv)

	fmt.Fprintf(conn, "*1\r\n:123\r\n")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := r.ReadByte()
	require.ErrorIs(t, err, io.EOF)
}

func TestQuitClosesConnection(t *testing.T) {
	srv, _ := startServer(t)
	conn, r := rawConn(t, srv)

	fmt.Fprintf(conn, "QUIT\r\n")
	require.Equal(t, "+OK\r\n", readLine(t, r))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := r.ReadByte()
	require.ErrorIs(t, err, io.EOF)
}

func TestShutdownUnblocksServe(t *testing.T) {
	srv, err := Run()
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}
