/*
Package fakeredis implements the core server functionality for the
Redis-compatible emulator.

This file contains the server lifecycle and the command dispatcher:

Core Server Operations:
- Server construction with the full keyspace state
- Listener management (TCP and TLS) and graceful shutdown
- Connection handling and state management
- Command routing with the gates the protocol requires

Dispatch Pipeline:
1. Case-insensitive command resolution against the registry
2. Authentication gate (NOAUTH) when a password is configured
3. Transaction queuing while the connection is in MULTI
4. Arity validation against the descriptor table
5. Subscribe-mode gate on RESP2 connections
6. Handler invocation and RESP mapping

Concurrency Model:
Connection I/O is goroutine-per-connection, but every command executes
under a single execution lock, so each command is atomic relative to
all others (the invariant clients rely on). Blocking commands release
the lock while parked and revalidate their condition under it after
every wakeup.
*/
package fakeredis

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// activeExpireInterval paces the opportunistic expiry sweep. The sweep
// is not required for correctness (reads expire lazily) but makes TTL
// notifications fire without key access.
const activeExpireInterval = 100 * time.Millisecond

// activeExpireSample caps how many volatile keys one sweep tick checks per database.
const activeExpireSample = 20

// NewServer creates a new emulator instance bound to address. The
// returned server carries 16 empty databases, the default configuration
// and the complete command table; it is ready for Listen/Serve or for
// further customization (Logger, Password, ScriptEngine, middleware).
func NewServer(address string) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	server := &Server{
		Address:        address,
		ReadTimeout:    0,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    0,
		MaxConnections: 10000,
		Logger:         zap.NewNop(),
		handlers:       make(map[string]*commandSpec),
		middleware:     NewMiddlewareChain(),
		activeConns:    make(map[*Connection]struct{}),
		ctx:            ctx,
		cancel:         cancel,
		config:         defaultConfig(),
		channels:       make(map[string]map[*Connection]struct{}),
		patterns:       make(map[string]map[*Connection]struct{}),
		scripts:        make(map[string]string),
		waiters:        make(map[waitKey][]*waiter),
		clock:          systemClock{},
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		runID:          strings.ReplaceAll(uuid.NewString(), "-", ""),
	}
	server.Snapshotter = memorySnapshotter{}
	server.startTime = time.Now()

	ndbs, _ := strconv.Atoi(server.config["databases"])
	if ndbs <= 0 {
		ndbs = 16
	}
	server.dbs = make([]*DB, ndbs)
	for i := range server.dbs {
		server.dbs[i] = newDB(server, i)
	}

	server.registerAllHandlers()
	server.startIdleChecker()
	server.startExpiryCycle()

	return server
}

// Run starts an emulator on an ephemeral localhost port and serves in
// the background. This is the entry point tests use:
//
//	srv, err := fakeredis.Run()
//	defer srv.Shutdown(context.Background())
//	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
func Run() (*Server, error) {
	s := NewServer("127.0.0.1:0")
	if err := s.Listen(); err != nil {
		return nil, err
	}
	go func() {
		_ = s.Serve()
	}()
	return s, nil
}

// Addr returns the listener address, useful with ":0" binds
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.Address
	}
	return s.listener.Addr().String()
}

// defaultConfig seeds the CONFIG map with the recognized options
func defaultConfig() map[string]string {
	return map[string]string{
		"maxmemory":                 "0",
		"maxmemory-policy":          "noeviction",
		"notify-keyspace-events":    "",
		"databases":                 "16",
		"save":                      "3600 1 300 100 60 10000",
		"appendonly":                "no",
		"timeout":                   "0",
		"tcp-keepalive":             "300",
		"hash-max-listpack-entries": "128",
		"hash-max-listpack-value":   "64",
		"list-max-listpack-size":    "128",
		"set-max-intset-entries":    "512",
		"set-max-listpack-entries":  "128",
		"zset-max-listpack-entries": "128",
		"zset-max-listpack-value":   "64",
		"requirepass":               "",
	}
}

// register adds a command descriptor to the table
func (s *Server) register(name string, arity int, handler CommandHandlerFunc) {
	s.handlers[strings.ToUpper(name)] = &commandSpec{
		name:    strings.ToUpper(name),
		arity:   arity,
		handler: handler,
	}
}

// RegisterCommand registers a custom command handler. Embedders use
// this to override built-ins or add commands; arity 0 skips validation.
func (s *Server) RegisterCommand(name string, handler CommandHandler) error {
	if name == "" || handler == nil {
		return fmt.Errorf("empty command name")
	}
	s.execMu.Lock()
	defer s.execMu.Unlock()
	s.handlers[strings.ToUpper(name)] = &commandSpec{name: strings.ToUpper(name), handler: handler}
	return nil
}

// RegisterCommandFunc registers a function as a command handler
func (s *Server) RegisterCommandFunc(name string, handler func(*Connection, *Command) RedisValue) error {
	if name == "" || handler == nil {
		return fmt.Errorf("empty command name")
	}
	return s.RegisterCommand(name, CommandHandlerFunc(handler))
}

// Use appends a middleware around command dispatch
func (s *Server) Use(m Middleware) {
	s.middleware.Add(m)
}

// UseFunc appends a middleware function around command dispatch
func (s *Server) UseFunc(f func(conn *Connection, cmd *Command, next CommandHandler) RedisValue) {
	s.Use(MiddlewareFunc(f))
}

// SetClock replaces the time source; tests inject a manual clock to pin
// stream ids and TTL expiry
func (s *Server) SetClock(c Clock) {
	s.execMu.Lock()
	defer s.execMu.Unlock()
	s.clock = c
}

// Seed reseeds the RNG behind SRANDMEMBER, SPOP and RANDOMKEY
func (s *Server) Seed(seed int64) {
	s.execMu.Lock()
	defer s.execMu.Unlock()
	s.rng = rand.New(rand.NewSource(seed))
}

// Listen starts listening on the configured address. Creates either a
// TCP or TLS listener based on server configuration. Idempotent.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	var err error
	if s.TLSConfig != nil {
		s.listener, err = tls.Listen("tcp", s.Address, s.TLSConfig)
	} else {
		s.listener, err = net.Listen("tcp", s.Address)
	}
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Address, err)
	}

	s.Logger.Info("fakeredis listening", zap.String("addr", s.Addr()))
	return nil
}

// ListenAndServe binds the listener and serves until shutdown
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Serve accepts connections until shutdown (blocking). Each accepted
// connection is handled in its own goroutine.
func (s *Server) Serve() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	defer s.listener.Close()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.inShutdown.Load() {
				return nil
			}
			s.Logger.Warn("accept error", zap.Error(err))
			continue
		}

		s.wg.Add(1)
		go func(netConn net.Conn) {
			defer s.wg.Done()

			// Check connection limit after Accept to prevent TOCTOU race
			if s.MaxConnections > 0 && s.connCount.Add(1) > int64(s.MaxConnections) {
				s.connCount.Add(-1)
				netConn.Close()
				s.Logger.Warn("connection limit reached, rejecting",
					zap.String("remote", netConn.RemoteAddr().String()))
				return
			}

			s.handleConnectionInternal(netConn)
			s.connCount.Add(-1)
		}(conn)
	}
}

// Shutdown gracefully shuts down the server: stop accepting, close the
// listener and every active connection, run shutdown hooks, then wait
// for connection goroutines bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)
	s.cancel()

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			return err
		}
	}

	s.mu.RLock()
	for conn := range s.activeConns {
		_ = conn.Close()
	}
	s.mu.RUnlock()

	s.mu.Lock()
	for _, fn := range s.onShutdown {
		fn()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// OnShutdown registers a function to call on shutdown
func (s *Server) OnShutdown(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onShutdown = append(s.onShutdown, f)
}

// GetActiveConnections returns the number of active connections
func (s *Server) GetActiveConnections() int64 {
	return s.connCount.Load()
}

// IsShutdown returns whether the server is shutting down
func (s *Server) IsShutdown() bool {
	return s.inShutdown.Load()
}

/*
Connection Lifecycle
*/

// handleConnectionInternal runs one client connection: protocol read
// loop, serialized dispatch, reply write honoring CLIENT REPLY mode.
func (s *Server) handleConnectionInternal(netConn net.Conn) {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	conn := &Connection{
		conn:      netConn,
		reader:    bufio.NewReader(netConn),
		writer:    bufio.NewWriter(netConn),
		server:    s,
		ctx:       ctx,
		cancel:    cancel,
		lastUsed:  time.Now(),
		id:        s.nextClientID.Add(1),
		resp:      2,
		replyMode: replyOn,
	}
	conn.state.Store(int32(StateNew))
	s.statConnections.Add(1)

	s.mu.Lock()
	s.activeConns[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		conn.Close()
		s.execMu.Lock()
		s.teardownConnection(conn)
		s.execMu.Unlock()
		s.mu.Lock()
		delete(s.activeConns, conn)
		s.mu.Unlock()
	}()

	if s.ConnStateHook != nil {
		s.ConnStateHook(netConn, StateNew)
	}
	conn.setState(StateActive)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if s.ReadTimeout > 0 {
			if err := netConn.SetReadDeadline(time.Now().Add(s.ReadTimeout)); err != nil {
				return
			}
		}

		cmd, err := conn.readCommand()
		if err != nil {
			// Protocol fatal: malformed framing and oversized bulks
			// close the connection without a reply.
			if err != io.EOF {
				s.Logger.Debug("protocol error",
					zap.String("remote", netConn.RemoteAddr().String()),
					zap.Error(err))
			}
			return
		}
		if cmd.Name == "" {
			continue
		}

		conn.mu.Lock()
		conn.lastUsed = time.Now()
		conn.mu.Unlock()
		s.setConnectionActive(conn)
		s.statCommands.Add(1)

		s.execMu.Lock()
		response := s.handleCommand(conn, cmd)
		s.execMu.Unlock()

		if s.WriteTimeout > 0 {
			if err := netConn.SetWriteDeadline(time.Now().Add(s.WriteTimeout)); err != nil {
				return
			}
		}

		if !s.suppressReply(conn, response) {
			conn.writeMu.Lock()
			err = conn.writeValue(response)
			if err == nil {
				err = conn.writer.Flush()
			}
			conn.writeMu.Unlock()
			if err != nil {
				s.Logger.Debug("write error",
					zap.String("remote", netConn.RemoteAddr().String()),
					zap.Error(err))
				return
			}
		}

		if conn.quit {
			return
		}
	}
}

// suppressReply applies the CLIENT REPLY OFF/SKIP modes
func (s *Server) suppressReply(conn *Connection, response RedisValue) bool {
	if response.Type == NoReply {
		return true
	}
	switch conn.replyMode {
	case replyOff:
		return true
	case replySkip:
		conn.replyMode = replyOn
		return true
	}
	return false
}

// teardownConnection removes every trace of conn from shared state.
// Called under execMu when the connection goroutine exits.
func (s *Server) teardownConnection(conn *Connection) {
	s.removeWaitersFor(conn)
	for ch := range conn.subs {
		s.unsubscribeChannel(conn, ch)
	}
	for pat := range conn.psubs {
		s.unsubscribePattern(conn, pat)
	}
	conn.resetTx()
}

/*
Dispatch
*/

// Commands admitted while a RESP2 connection is in subscribe mode.
var subscribedAllowed = map[string]bool{
	"SUBSCRIBE": true, "UNSUBSCRIBE": true, "PSUBSCRIBE": true,
	"PUNSUBSCRIBE": true, "PING": true, "QUIT": true, "RESET": true,
}

// Commands that execute immediately while the connection is QUEUING.
var txImmediate = map[string]bool{
	"EXEC": true, "DISCARD": true, "MULTI": true,
	"WATCH": true, "UNWATCH": true, "RESET": true, "QUIT": true,
}

// Commands admitted before AUTH succeeds.
var preAuthAllowed = map[string]bool{
	"AUTH": true, "HELLO": true, "QUIT": true, "RESET": true,
}

// handleCommand routes a command through the middleware chain into the
// dispatcher. Must be called with execMu held.
func (s *Server) handleCommand(conn *Connection, cmd *Command) (out RedisValue) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("panic in command handler",
				zap.String("command", cmd.Name), zap.Any("panic", r))
			out = errReply("ERR internal error")
		}
	}()

	return s.middleware.Execute(conn, cmd, CommandHandlerFunc(s.dispatch))
}

// dispatch enforces every pre-condition gate and calls the handler
func (s *Server) dispatch(conn *Connection, cmd *Command) RedisValue {
	spec, known := s.handlers[cmd.Name]

	if s.Password != "" && !conn.authenticated && !preAuthAllowed[cmd.Name] {
		return errReply("NOAUTH Authentication required.")
	}

	if conn.tx == txQueuing || conn.tx == txDirty {
		if !txImmediate[cmd.Name] {
			if !known {
				conn.tx = txDirty
				return errReply(fmt.Sprintf("ERR unknown command '%s'", cmd.Name))
			}
			if !arityOK(spec.arity, len(cmd.Args)+1) {
				conn.tx = txDirty
				return wrongArgsReply(strings.ToLower(cmd.Name))
			}
			conn.queued = append(conn.queued, cmd)
			return statusReply("QUEUED")
		}
	}

	if !known {
		return errReply(fmt.Sprintf("ERR unknown command '%s'", cmd.Name))
	}

	if !arityOK(spec.arity, len(cmd.Args)+1) {
		return wrongArgsReply(strings.ToLower(cmd.Name))
	}

	if conn.protover() == 2 && conn.subscriptionCount() > 0 && !subscribedAllowed[cmd.Name] {
		return errReply(fmt.Sprintf(
			"ERR Can't execute '%s': only (P|S)SUBSCRIBE / (P|S)UNSUBSCRIBE / PING / QUIT / RESET are allowed in this context",
			strings.ToLower(cmd.Name)))
	}

	return spec.handler.Handle(conn, cmd)
}

// execCommand runs an already-validated command, used by EXEC replay
// and scripted calls. Gates were applied at queue time; blocking is
// disabled through conn.noBlock.
func (s *Server) execCommand(conn *Connection, cmd *Command) RedisValue {
	spec, known := s.handlers[cmd.Name]
	if !known {
		return errReply(fmt.Sprintf("ERR unknown command '%s'", cmd.Name))
	}
	return spec.handler.Handle(conn, cmd)
}

// ScriptedCall is the reentry point for script evaluators: it executes
// one command in the caller's database selection, bypassing AUTH and
// with blocking forbidden.
func (s *Server) ScriptedCall(conn *Connection, name string, args ...string) RedisValue {
	cmd := &Command{Name: strings.ToUpper(name), Args: args}
	spec, known := s.handlers[cmd.Name]
	if !known {
		return errReply(fmt.Sprintf("ERR unknown command '%s'", cmd.Name))
	}
	if !arityOK(spec.arity, len(cmd.Args)+1) {
		return wrongArgsReply(strings.ToLower(cmd.Name))
	}
	prev := conn.noBlock
	conn.noBlock = true
	defer func() { conn.noBlock = prev }()
	return spec.handler.Handle(conn, cmd)
}

// arityOK validates argc (including the command name) against a
// Redis-style arity declaration
func arityOK(arity, argc int) bool {
	if arity == 0 {
		return true
	}
	if arity > 0 {
		return argc == arity
	}
	return argc >= -arity
}

/*
Background Maintenance
*/

// startIdleChecker starts a background goroutine to check for idle connections
func (s *Server) startIdleChecker() {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.checkIdleConnections()
			}
		}
	}()
}

// checkIdleConnections transitions connections exceeding IdleTimeout to StateIdle
func (s *Server) checkIdleConnections() {
	if s.IdleTimeout <= 0 {
		return
	}

	idleThreshold := time.Now().Add(-s.IdleTimeout)

	s.mu.RLock()
	connsToCheck := make([]*Connection, 0, len(s.activeConns))
	for conn := range s.activeConns {
		connsToCheck = append(connsToCheck, conn)
	}
	s.mu.RUnlock()

	for _, conn := range connsToCheck {
		conn.mu.RLock()
		lastUsed := conn.lastUsed
		conn.mu.RUnlock()

		if ConnState(conn.state.Load()) == StateActive && lastUsed.Before(idleThreshold) {
			conn.setState(StateIdle)
		}
	}
}

// setConnectionActive flips idle connections back to active on traffic
func (s *Server) setConnectionActive(conn *Connection) {
	if ConnState(conn.state.Load()) == StateIdle {
		conn.setState(StateActive)
	}
}

// startExpiryCycle runs the opportunistic TTL sweep. Each tick samples
// a handful of volatile keys per database and expires the stale ones,
// emitting the same notifications a lazy expire would.
func (s *Server) startExpiryCycle() {
	go func() {
		ticker := time.NewTicker(activeExpireInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.execMu.Lock()
				for _, db := range s.dbs {
					db.sweepExpired(activeExpireSample)
				}
				s.execMu.Unlock()
			}
		}
	}()
}
