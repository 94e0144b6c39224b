/*
Package fakeredis server-administration handlers: CONFIG, INFO, TIME,
FLUSH, the persistence hooks and the single-master replication stubs.
*/
package fakeredis

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

func (s *Server) registerServerHandlers() {
	s.register("CONFIG", -2, cmdConfig)
	s.register("FLUSHDB", -1, cmdFlushDB)
	s.register("FLUSHALL", -1, cmdFlushAll)
	s.register("INFO", -1, cmdInfo)
	s.register("TIME", 1, cmdTime)
	s.register("SAVE", 1, cmdSave)
	s.register("BGSAVE", -1, cmdBGSave)
	s.register("BGREWRITEAOF", 1, cmdBGRewriteAOF)
	s.register("LASTSAVE", 1, cmdLastSave)
	s.register("DEBUG", -2, cmdDebug)
	s.register("WAIT", 3, cmdWait)
	s.register("REPLICAOF", 3, cmdReplicaOf)
	s.register("SLAVEOF", 3, cmdReplicaOf)
	s.register("ROLE", 1, cmdRole)
	s.register("MEMORY", -2, cmdMemory)
	s.register("ACL", -2, cmdACL)
	s.register("SLOWLOG", -2, cmdSlowlog)
	s.register("SHUTDOWN", -1, cmdShutdown)
}

// Settable configuration keys. CONFIG SET of anything else is refused
// the way a real server refuses unknown parameters.
var mutableConfig = map[string]bool{
	"maxmemory": true, "maxmemory-policy": true, "notify-keyspace-events": true,
	"save": true, "appendonly": true, "timeout": true, "tcp-keepalive": true,
	"hash-max-listpack-entries": true, "hash-max-listpack-value": true,
	"list-max-listpack-size": true, "set-max-intset-entries": true,
	"set-max-listpack-entries": true, "zset-max-listpack-entries": true,
	"zset-max-listpack-value": true, "requirepass": true,
}

var maxmemoryPolicies = map[string]bool{
	"noeviction": true, "allkeys-lru": true, "allkeys-lfu": true,
	"allkeys-random": true, "volatile-lru": true, "volatile-lfu": true,
	"volatile-random": true, "volatile-ttl": true,
}

func cmdConfig(conn *Connection, cmd *Command) RedisValue {
	s := conn.server
	sub := strings.ToUpper(cmd.Args[0])
	args := cmd.Args[1:]

	switch sub {
	case "GET":
		if len(args) == 0 {
			return wrongArgsReply("config|get")
		}
		pairs := []RedisValue{}
		for _, name := range sortedKeys(s.config) {
			for _, pattern := range args {
				if patternMatch(strings.ToLower(pattern), name) {
					pairs = append(pairs, bulkReply(name), bulkReply(s.config[name]))
					break
				}
			}
		}
		return mapReply(pairs...)

	case "SET":
		if len(args) == 0 || len(args)%2 != 0 {
			return wrongArgsReply("config|set")
		}
		// Validate every pair before applying any of them.
		for i := 0; i < len(args); i += 2 {
			name, value := strings.ToLower(args[i]), args[i+1]
			if !mutableConfig[name] {
				return errReply(fmt.Sprintf("ERR Unknown option or number of arguments for CONFIG SET - '%s'", args[i]))
			}
			switch name {
			case "maxmemory-policy":
				if !maxmemoryPolicies[value] {
					return errReply("ERR CONFIG SET failed - argument couldn't be parsed into an integer")
				}
			case "notify-keyspace-events":
				if _, ok := parseNotifyFlags(value); !ok {
					return errReply("ERR CONFIG SET failed - Invalid event class character. Some possible classes are: 'g$lshzxeKE'")
				}
			}
		}
		for i := 0; i < len(args); i += 2 {
			name, value := strings.ToLower(args[i]), args[i+1]
			if name == "notify-keyspace-events" {
				flags, _ := parseNotifyFlags(value)
				value = formatNotifyFlags(flags)
			}
			s.config[name] = value
			if name == "requirepass" {
				s.Password = value
			}
		}
		return okReply()

	case "RESETSTAT":
		s.statCommands.Store(0)
		s.statConnections.Store(0)
		s.statExpired.Store(0)
		s.statKeyspaceHit.Store(0)
		s.statKeyspaceMis.Store(0)
		return okReply()

	case "REWRITE":
		// No config file to rewrite in an in-memory emulator.
		return errReply("ERR The server is running without a config file")
	}
	return errReply(fmt.Sprintf("ERR Unknown CONFIG subcommand or wrong number of arguments for '%s'", cmd.Args[0]))
}

func parseFlushMode(args []string) RedisValue {
	if len(args) == 0 {
		return RedisValue{}
	}
	if len(args) > 1 {
		return syntaxErrReply()
	}
	switch strings.ToUpper(args[0]) {
	case "ASYNC", "SYNC":
		return RedisValue{}
	}
	return syntaxErrReply()
}

func cmdFlushDB(conn *Connection, cmd *Command) RedisValue {
	if errV := parseFlushMode(cmd.Args); errV.Type == ErrorReply {
		return errV
	}
	conn.database().flush()
	return okReply()
}

func cmdFlushAll(conn *Connection, cmd *Command) RedisValue {
	if errV := parseFlushMode(cmd.Args); errV.Type == ErrorReply {
		return errV
	}
	for _, db := range conn.server.dbs {
		db.flush()
	}
	return okReply()
}

func cmdInfo(conn *Connection, cmd *Command) RedisValue {
	s := conn.server
	want := map[string]bool{}
	for _, section := range cmd.Args {
		want[strings.ToLower(section)] = true
	}
	all := len(want) == 0 || want["all"] || want["default"] || want["everything"]

	var b strings.Builder
	section := func(name string) bool {
		return all || want[name]
	}

	if section("server") {
		fmt.Fprintf(&b, "# Server\r\n")
		fmt.Fprintf(&b, "redis_version:%s\r\n", serverVersion)
		fmt.Fprintf(&b, "redis_mode:standalone\r\n")
		fmt.Fprintf(&b, "run_id:%s\r\n", s.runID)
		fmt.Fprintf(&b, "tcp_port:%d\r\n", tcpPort(s))
		fmt.Fprintf(&b, "uptime_in_seconds:%d\r\n", int64(time.Since(s.startTime).Seconds()))
		fmt.Fprintf(&b, "\r\n")
	}
	if section("clients") {
		fmt.Fprintf(&b, "# Clients\r\n")
		fmt.Fprintf(&b, "connected_clients:%d\r\n", s.connCount.Load())
		fmt.Fprintf(&b, "blocked_clients:%d\r\n", len(s.waiters))
		fmt.Fprintf(&b, "\r\n")
	}
	if section("memory") {
		fmt.Fprintf(&b, "# Memory\r\n")
		fmt.Fprintf(&b, "maxmemory:%s\r\n", s.config["maxmemory"])
		fmt.Fprintf(&b, "maxmemory_policy:%s\r\n", s.config["maxmemory-policy"])
		fmt.Fprintf(&b, "\r\n")
	}
	if section("persistence") {
		fmt.Fprintf(&b, "# Persistence\r\n")
		fmt.Fprintf(&b, "loading:0\r\n")
		fmt.Fprintf(&b, "rdb_last_save_time:%d\r\n", s.lastSave.Unix())
		fmt.Fprintf(&b, "aof_enabled:%d\r\n", boolBit(s.config["appendonly"] == "yes"))
		fmt.Fprintf(&b, "\r\n")
	}
	if section("stats") {
		fmt.Fprintf(&b, "# Stats\r\n")
		fmt.Fprintf(&b, "total_connections_received:%d\r\n", s.statConnections.Load())
		fmt.Fprintf(&b, "total_commands_processed:%d\r\n", s.statCommands.Load())
		fmt.Fprintf(&b, "expired_keys:%d\r\n", s.statExpired.Load())
		fmt.Fprintf(&b, "keyspace_hits:%d\r\n", s.statKeyspaceHit.Load())
		fmt.Fprintf(&b, "keyspace_misses:%d\r\n", s.statKeyspaceMis.Load())
		fmt.Fprintf(&b, "\r\n")
	}
	if section("replication") {
		fmt.Fprintf(&b, "# Replication\r\n")
		fmt.Fprintf(&b, "role:master\r\n")
		fmt.Fprintf(&b, "connected_slaves:0\r\n")
		fmt.Fprintf(&b, "\r\n")
	}
	if section("keyspace") {
		fmt.Fprintf(&b, "# Keyspace\r\n")
		for _, db := range s.dbs {
			live := db.keysLive()
			if len(live) == 0 {
				continue
			}
			expires := 0
			for _, k := range live {
				if db.keys[k].expireAt != 0 {
					expires++
				}
			}
			fmt.Fprintf(&b, "db%d:keys=%d,expires=%d,avg_ttl=0\r\n", db.id, len(live), expires)
		}
		fmt.Fprintf(&b, "\r\n")
	}
	return RedisValue{Type: VerbatimString, Bulk: []byte(b.String())}
}

func boolBit(b bool) int {
	if b {
		return 1
	}
	return 0
}

func tcpPort(s *Server) int {
	if s.listener == nil {
		return 0
	}
	if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

func cmdTime(conn *Connection, cmd *Command) RedisValue {
	now := conn.server.clock.Now()
	return arrayReply(
		bulkReply(formatInt(now.Unix())),
		bulkReply(formatInt(int64(now.Nanosecond()/1000))),
	)
}

func cmdSave(conn *Connection, cmd *Command) RedisValue {
	s := conn.server
	if _, err := s.Snapshotter.Save(s); err != nil {
		return errReply("ERR " + err.Error())
	}
	s.lastSave = s.clock.Now()
	return okReply()
}

func cmdBGSave(conn *Connection, cmd *Command) RedisValue {
	s := conn.server
	if _, err := s.Snapshotter.Save(s); err != nil {
		return errReply("ERR " + err.Error())
	}
	s.lastSave = s.clock.Now()
	return statusReply("Background saving started")
}

func cmdBGRewriteAOF(conn *Connection, cmd *Command) RedisValue {
	return statusReply("Background append only file rewriting started")
}

func cmdLastSave(conn *Connection, cmd *Command) RedisValue {
	return intReply(conn.server.lastSave.Unix())
}

func cmdDebug(conn *Connection, cmd *Command) RedisValue {
	s := conn.server
	sub := strings.ToUpper(cmd.Args[0])
	args := cmd.Args[1:]

	switch sub {
	case "SLEEP":
		if len(args) != 1 {
			return wrongArgsReply("debug|sleep")
		}
		secs, ok := parseFloat(args[0])
		if !ok || secs < 0 {
			return errReply(msgNotFloat)
		}
		// Sleeps with the execution lock held, exactly like upstream.
		time.Sleep(time.Duration(secs * float64(time.Second)))
		return okReply()
	case "JMAP", "SET-ACTIVE-EXPIRE", "QUICKLIST-PACKED-THRESHOLD", "CHANGE-REPL-ID":
		return okReply()
	case "OBJECT":
		if len(args) != 1 {
			return wrongArgsReply("debug|object")
		}
		e := conn.database().lookup(args[0])
		if e == nil {
			return errReply(msgNoSuchKey)
		}
		return statusReply(fmt.Sprintf("Value at:0 refcount:1 encoding:%s serializedlength:%d",
			objectEncoding(s, e), e.size()))
	case "RELOAD":
		snap, err := s.Snapshotter.Save(s)
		if err != nil {
			return errReply("ERR " + err.Error())
		}
		if err := snap.Restore(s); err != nil {
			return errReply("ERR " + err.Error())
		}
		return okReply()
	case "STRINGMATCH-LEN":
		if len(args) != 2 {
			return wrongArgsReply("debug|stringmatch-len")
		}
		if patternMatch(args[0], args[1]) {
			return intReply(1)
		}
		return intReply(0)
	}
	return errReply(fmt.Sprintf("ERR DEBUG subcommand '%s' not supported", cmd.Args[0]))
}

// cmdWait acknowledges immediately: a single-master stub has zero
// replicas to wait for
func cmdWait(conn *Connection, cmd *Command) RedisValue {
	if _, ok := parseInt(cmd.Args[0]); !ok {
		return errReply(msgNotInt)
	}
	if _, ok := parseInt(cmd.Args[1]); !ok {
		return errReply("ERR timeout is not an integer or out of range")
	}
	return intReply(0)
}

func cmdReplicaOf(conn *Connection, cmd *Command) RedisValue {
	if strings.EqualFold(cmd.Args[0], "NO") && strings.EqualFold(cmd.Args[1], "ONE") {
		return okReply()
	}
	// Replication is stubbed; the command is acknowledged and ignored.
	return okReply()
}

func cmdRole(conn *Connection, cmd *Command) RedisValue {
	return arrayReply(bulkReply("master"), intReply(0), arrayReply())
}

func cmdMemory(conn *Connection, cmd *Command) RedisValue {
	sub := strings.ToUpper(cmd.Args[0])
	switch sub {
	case "USAGE":
		if len(cmd.Args) < 2 {
			return wrongArgsReply("memory|usage")
		}
		e := conn.database().lookup(cmd.Args[1])
		if e == nil {
			return nilReply()
		}
		return intReply(int64(memoryUsage(e)))
	case "DOCTOR":
		return bulkReply("Sam, I detected a few issues in this fakeredis instance memory implants:\n\n * It is all in your head.\n")
	case "STATS":
		return mapReply(
			bulkReply("keys.count"), intReply(int64(len(conn.database().keysLive()))),
		)
	}
	return errReply(fmt.Sprintf("ERR Unknown MEMORY subcommand or wrong number of arguments for '%s'", cmd.Args[0]))
}

// memoryUsage approximates the heap footprint of one entry
func memoryUsage(e *entry) int {
	const overhead = 56
	total := overhead
	switch e.kind {
	case kindString:
		total += len(e.str)
	case kindList:
		for _, v := range e.list {
			total += len(v) + 16
		}
	case kindHash:
		for f, v := range e.hash {
			total += len(f) + len(v) + 32
		}
	case kindSet:
		for m := range e.set {
			total += len(m) + 16
		}
	case kindZSet:
		for m := range e.zset.members {
			total += len(m) + 24
		}
	case kindStream:
		for _, se := range e.stream.entries {
			total += 32
			for _, f := range se.fields {
				total += len(f) + 16
			}
		}
	}
	return total
}

func cmdACL(conn *Connection, cmd *Command) RedisValue {
	switch strings.ToUpper(cmd.Args[0]) {
	case "WHOAMI":
		return bulkReply("default")
	case "LIST":
		return strArrayReply([]string{"user default on nopass sanitize-payload ~* &* +@all"})
	case "CAT":
		return strArrayReply([]string{"keyspace", "read", "write", "string", "list", "set",
			"sortedset", "hash", "stream", "pubsub", "transaction", "scripting", "connection", "admin"})
	case "GETUSER":
		if len(cmd.Args) == 2 && cmd.Args[1] == "default" {
			return mapReply(
				bulkReply("flags"), strArrayReply([]string{"on", "allkeys", "allchannels", "allcommands"}),
			)
		}
		return nilArrayReply()
	}
	return errReply(fmt.Sprintf("ERR Unknown ACL subcommand or wrong number of arguments for '%s'", cmd.Args[0]))
}

func cmdSlowlog(conn *Connection, cmd *Command) RedisValue {
	switch strings.ToUpper(cmd.Args[0]) {
	case "GET":
		return arrayReply()
	case "RESET":
		return okReply()
	case "LEN":
		return intReply(0)
	}
	return errReply(fmt.Sprintf("ERR Unknown SLOWLOG subcommand or wrong number of arguments for '%s'", cmd.Args[0]))
}

func cmdShutdown(conn *Connection, cmd *Command) RedisValue {
	s := conn.server
	conn.quit = true
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	}()
	return noReply()
}
