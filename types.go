/*
Package fakeredis provides an in-process emulator of a Redis-compatible
key-value server.

This file defines the fundamental data structures used throughout the
implementation:

Core Types:
- ConnState: Client connection state management
- RedisValue: RESP value representation (versions 2 and 3)
- RedisType: RESP data type constants
- Command: Parsed client command with arguments
- CommandHandler: Interface for command processing
- Middleware: Interface for wrapping command dispatch
- Server: Main server configuration and state

Protocol Support:
RedisValue and RedisType cover the full RESP2 surface (simple strings,
errors, integers, bulk strings, arrays, nulls) plus the RESP3-only
kinds (double, boolean, big number, verbatim string, map, set, push).
The encoder downgrades RESP3 kinds on RESP2 connections.

Server Architecture:
The Server struct owns the whole emulator state: the numbered
databases, the pub/sub registries, the script store, the configuration
map and the blocking-wait queues. All state hangs off the Server
handle so several independent instances can coexist in one process.
*/
package fakeredis

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ConnState represents the state of a client connection
type ConnState int

const (
	StateNew    ConnState = iota // Initial connection established
	StateActive                  // Connection actively processing commands
	StateIdle                    // Connection idle, waiting for commands
	StateClosed                  // Connection terminated and cleaned up
)

// RedisType represents RESP data types
type RedisType int

const (
	SimpleString RedisType = iota // Status replies like "OK", "PONG"
	ErrorReply                    // Error messages like "ERR unknown command"
	Integer                       // 64-bit signed integers
	BulkString                    // Binary-safe strings with length prefix
	Array                         // Ordered collections of values
	Null                          // Nil bulk string ($-1 on RESP2, _ on RESP3)
	NullArray                     // Nil array (*-1 on RESP2, _ on RESP3)
	Double                        // RESP3 double (bulk string on RESP2)
	Boolean                       // RESP3 boolean (integer on RESP2)
	BigNumber                     // RESP3 big number (bulk string on RESP2)
	VerbatimString                // RESP3 verbatim string (bulk string on RESP2)
	Map                           // RESP3 map; Array holds flattened key/value pairs
	SetReply                      // RESP3 set (array on RESP2)
	Push                          // RESP3 push frame (array on RESP2)
	NoReply                       // Sentinel: the handler already wrote its own frames
)

// RedisValue represents a single RESP value of any protocol version.
// The Type field determines which data field carries the payload.
type RedisValue struct {
	Type  RedisType
	Str   string       // SimpleString, ErrorReply, BigNumber
	Int   int64        // Integer
	Float float64      // Double
	Bool  bool         // Boolean
	Bulk  []byte       // BulkString, VerbatimString
	Array []RedisValue // Array, Map (flattened pairs), SetReply, Push
}

// Command represents a parsed client command.
type Command struct {
	Name string   // Command name, always uppercase
	Args []string // Arguments excluding the name; binary-safe
}

// CommandHandler defines the interface for handling commands
type CommandHandler interface {
	// Handle processes a command and returns the response
	// conn: Client connection context for state access
	// cmd: Parsed command with arguments
	// Returns: RedisValue response to send to client
	Handle(conn *Connection, cmd *Command) RedisValue
}

// CommandHandlerFunc enables using functions as CommandHandler implementations
type CommandHandlerFunc func(conn *Connection, cmd *Command) RedisValue

// Handle implements CommandHandler interface for function types
func (f CommandHandlerFunc) Handle(conn *Connection, cmd *Command) RedisValue {
	return f(conn, cmd)
}

/*
Middleware

Middleware wraps command dispatch in an onion: each middleware receives
the connection, the command and the next handler in the chain, and may
short-circuit, decorate or observe the call. The standalone binary uses
this for command logging and slow-command timing.
*/

// Middleware processes a command before/after the next handler in the chain
type Middleware interface {
	Process(conn *Connection, cmd *Command, next CommandHandler) RedisValue
}

// MiddlewareFunc enables using functions as Middleware implementations
type MiddlewareFunc func(conn *Connection, cmd *Command, next CommandHandler) RedisValue

// Process implements Middleware for function types
func (f MiddlewareFunc) Process(conn *Connection, cmd *Command, next CommandHandler) RedisValue {
	return f(conn, cmd, next)
}

// MiddlewareChain holds an ordered list of middlewares
type MiddlewareChain struct {
	middlewares []Middleware
}

// NewMiddlewareChain creates an empty middleware chain
func NewMiddlewareChain() *MiddlewareChain {
	return &MiddlewareChain{}
}

// Add appends a middleware to the chain
func (mc *MiddlewareChain) Add(m Middleware) {
	mc.middlewares = append(mc.middlewares, m)
}

// Execute runs the command through every middleware and finally the handler
func (mc *MiddlewareChain) Execute(conn *Connection, cmd *Command, final CommandHandler) RedisValue {
	handler := final
	for i := len(mc.middlewares) - 1; i >= 0; i-- {
		m := mc.middlewares[i]
		next := handler
		handler = CommandHandlerFunc(func(c *Connection, cm *Command) RedisValue {
			return m.Process(c, cm, next)
		})
	}
	return handler.Handle(conn, cmd)
}

/*
Command Descriptors

Each registered command carries its canonical name, a Redis-style arity
(positive: exact argument count including the name; negative: minimum)
and its handler. The dispatcher validates arity before the handler runs.
*/

type commandSpec struct {
	name    string
	arity   int
	handler CommandHandler
}

// ScriptEngine is the seam for an external script evaluator. EVAL and
// EVALSHA hand the script body plus KEYS and ARGV to it; the evaluator
// may reenter the server through Server.ScriptedCall.
type ScriptEngine interface {
	Eval(conn *Connection, script string, keys, args []string) (RedisValue, error)
}

// Server represents the Redis-compatible emulator instance
type Server struct {
	// Network Configuration
	Address   string      // Server bind address (e.g., ":6379", "127.0.0.1:0")
	TLSConfig *tls.Config // Optional TLS configuration

	// Timeout Configuration
	ReadTimeout  time.Duration // Maximum time to wait for client requests
	WriteTimeout time.Duration // Maximum time to wait for response writes
	IdleTimeout  time.Duration // Inactivity after which a connection is marked StateIdle; it is not closed

	// Resource Limits
	MaxConnections int // Maximum number of concurrent client connections

	// Monitoring and Logging
	Logger        *zap.Logger               // Structured logger (zap.NewNop by default)
	ConnStateHook func(net.Conn, ConnState) // Connection state change callback

	// Security
	Password string // Value of requirepass; empty disables AUTH

	// External collaborators
	ScriptEngine ScriptEngine // Opaque script evaluator; nil disables EVAL
	Snapshotter  Snapshotter  // SAVE/BGSAVE/DEBUG RELOAD hook

	// Command Processing
	handlers   map[string]*commandSpec
	middleware *MiddlewareChain

	// Listener Runtime State
	listener    net.Listener
	activeConns map[*Connection]struct{}
	connCount   atomic.Int64
	inShutdown  atomic.Bool
	mu          sync.RWMutex
	onShutdown  []func()
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	// Keyspace State. Everything below is guarded by execMu: command
	// execution is serialized (single logical writer over the keyspace).
	execMu       sync.Mutex
	dbs          []*DB
	config       map[string]string
	channels     map[string]map[*Connection]struct{}
	patterns     map[string]map[*Connection]struct{}
	scripts      map[string]string
	waiters      map[waitKey][]*waiter
	clock        Clock
	rng          *rand.Rand
	version      uint64 // global write version, stamped per key for WATCH
	nextClientID atomic.Int64
	runID        string
	startTime    time.Time
	lastSave     time.Time

	// Counters surfaced by INFO and CONFIG RESETSTAT
	statConnections atomic.Int64
	statCommands    atomic.Int64
	statExpired     atomic.Int64
	statKeyspaceHit atomic.Int64
	statKeyspaceMis atomic.Int64
}

/*
Reply Constructors

Handlers build replies through these helpers so the response shape
(bulk vs integer vs array vs nil) stays uniform across families.
*/

func okReply() RedisValue { return RedisValue{Type: SimpleString, Str: "OK"} }

func statusReply(s string) RedisValue { return RedisValue{Type: SimpleString, Str: s} }

func errReply(msg string) RedisValue { return RedisValue{Type: ErrorReply, Str: msg} }

func wrongTypeReply() RedisValue {
	return errReply("WRONGTYPE Operation against a key holding the wrong kind of value")
}

func wrongArgsReply(name string) RedisValue {
	return errReply(fmt.Sprintf("ERR wrong number of arguments for '%s' command", name))
}

func syntaxErrReply() RedisValue { return errReply("ERR syntax error") }

func intReply(n int64) RedisValue { return RedisValue{Type: Integer, Int: n} }

func bulkReply(s string) RedisValue { return RedisValue{Type: BulkString, Bulk: []byte(s)} }

func nilReply() RedisValue { return RedisValue{Type: Null} }

func nilArrayReply() RedisValue { return RedisValue{Type: NullArray} }

func arrayReply(items ...RedisValue) RedisValue {
	if items == nil {
		items = []RedisValue{}
	}
	return RedisValue{Type: Array, Array: items}
}

func strArrayReply(items []string) RedisValue {
	vals := make([]RedisValue, len(items))
	for i, s := range items {
		vals[i] = bulkReply(s)
	}
	return RedisValue{Type: Array, Array: vals}
}

func doubleReply(f float64) RedisValue { return RedisValue{Type: Double, Float: f} }

func mapReply(pairs ...RedisValue) RedisValue {
	if pairs == nil {
		pairs = []RedisValue{}
	}
	return RedisValue{Type: Map, Array: pairs}
}

func pushReply(items ...RedisValue) RedisValue {
	return RedisValue{Type: Push, Array: items}
}

func noReply() RedisValue { return RedisValue{Type: NoReply} }

// Canonical error messages that tests depend on verbatim.
const (
	msgNotInt        = "ERR value is not an integer or out of range"
	msgNotFloat      = "ERR value is not a valid float"
	msgNoSuchKey     = "ERR no such key"
	msgIndexRange    = "ERR index out of range"
	msgBitOffset     = "ERR bit offset is not an integer or out of range"
	msgBitValue      = "ERR bit is not an integer or out of range"
	msgLexRange      = "ERR min or max not valid string range item"
	msgScoreRange    = "ERR min or max is not a float"
	msgNoScript      = "NOSCRIPT No matching script. Please use EVAL."
	msgBusyGroup     = "BUSYGROUP Consumer Group name already exists"
	msgInvalidDBIdx  = "ERR DB index is out of range"
	msgNegTimeout    = "ERR timeout is negative"
	msgInvalidCursor = "ERR invalid cursor"
)
