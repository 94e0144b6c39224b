/*
Package fakeredis implements client connection management.

This file provides the Connection type and associated methods for
managing individual client connections throughout their lifecycle.

Beyond the transport plumbing (buffered I/O, state atomics, close-once
semantics), a Connection carries the per-client protocol state the
command engine depends on: the selected database index, the negotiated
RESP version, the transaction state machine for MULTI/EXEC, the watched
key set, pub/sub subscriptions and the CLIENT REPLY mode.

Thread Safety:
The connection's own read loop is single-threaded, but the writer is
shared with pub/sub fan-out: any goroutine delivering a push frame must
hold writeMu around writeValue+Flush. State fields guarded by execMu
(transaction state, subscriptions) are only touched during command
execution, which the server serializes.
*/
package fakeredis

import (
	"bufio"
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Transaction states a connection moves through.
type txState int

const (
	txNone    txState = iota // No transaction in progress
	txQueuing                // MULTI seen; commands are queued
	txDirty                  // A queued command failed validation; EXEC will abort
)

// watchKey identifies a watched key within a database
type watchKey struct {
	db  int
	key string
}

// Reply modes controlled by CLIENT REPLY.
const (
	replyOn = iota
	replyOff
	replySkip
)

// Connection represents a client connection to the server
type Connection struct {
	conn      net.Conn           // Underlying network connection
	reader    *bufio.Reader      // Buffered reader for protocol parsing
	writer    *bufio.Writer      // Buffered writer for response batching
	writeMu   sync.Mutex         // Guards writer; shared with pub/sub delivery
	server    *Server            // Parent server reference
	state     atomic.Int32       // Current connection state (atomic)
	closeOnce sync.Once          // Ensures single cleanup execution
	ctx       context.Context    // Connection context for cancellation
	cancel    context.CancelFunc // Context cancellation function
	mu        sync.RWMutex       // Protects mutable fields (lastUsed)
	lastUsed  time.Time          // Last activity timestamp for idle detection

	// Protocol and identity state. Guarded by execMu via the dispatcher.
	id            int64
	name          string
	db            int  // Selected database index
	resp          int  // Negotiated RESP version: 2 or 3
	authenticated bool // Set by AUTH/HELLO when a password is required
	replyMode     int  // CLIENT REPLY ON/OFF/SKIP
	quit          bool // QUIT seen; close after the reply is written

	// Transaction state
	tx      txState
	queued  []*Command
	watches map[watchKey]uint64

	// Pub/sub subscriptions
	subs  map[string]struct{}
	psubs map[string]struct{}

	// noBlock forbids blocking waits; set during EXEC and scripted calls
	noBlock bool
}

// setState updates the connection state and fires the server hook
func (c *Connection) setState(state ConnState) {
	c.state.Store(int32(state))
	if c.server.ConnStateHook != nil {
		c.server.ConnStateHook(c.conn, state)
	}
}

// Close closes the connection. Safe to call multiple times; cleanup
// runs exactly once: state transition, context cancellation, socket
// close. Keyspace-side cleanup (waiters, subscriptions) happens in the
// server's connection teardown under the execution lock.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// GetState returns the current connection state
func (c *Connection) GetState() ConnState {
	return ConnState(c.state.Load())
}

// ID returns the client id assigned at accept time
func (c *Connection) ID() int64 {
	return c.id
}

// RemoteAddr returns the remote network address
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// LocalAddr returns the local network address
func (c *Connection) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// protover returns the negotiated RESP protocol version
func (c *Connection) protover() int {
	if c.resp == 0 {
		return 2
	}
	return c.resp
}

// database returns the connection's selected database
func (c *Connection) database() *DB {
	return c.server.dbs[c.db]
}

// subscriptionCount returns the number of channel plus pattern
// subscriptions held by this connection
func (c *Connection) subscriptionCount() int {
	return len(c.subs) + len(c.psubs)
}

// resetTx drops any in-progress transaction and watched keys
func (c *Connection) resetTx() {
	c.tx = txNone
	c.queued = nil
	c.watches = nil
}

// send serializes frames to the client outside the normal
// request/response cycle (pub/sub messages, subscribe confirmations).
// It takes the write lock because the connection's own loop and any
// publishing connection share the writer.
//
// Returns:
// - error: Serialization or I/O errors; callers log and swallow these
func (c *Connection) send(value RedisValue) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.writeValue(value); err != nil {
		return err
	}
	return c.writer.Flush()
}
