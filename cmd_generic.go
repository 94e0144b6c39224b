/*
Package fakeredis generic key-family handlers: existence, deletion,
renaming, copying, scanning, typing and the TTL surface.
*/
package fakeredis

import (
	"fmt"
	"strings"
)

func (s *Server) registerGenericHandlers() {
	s.register("DEL", -2, cmdDel)
	s.register("UNLINK", -2, cmdDel)
	s.register("EXISTS", -2, cmdExists)
	s.register("TYPE", 2, cmdType)
	s.register("KEYS", 2, cmdKeys)
	s.register("SCAN", -2, cmdScan)
	s.register("RANDOMKEY", 1, cmdRandomKey)
	s.register("RENAME", 3, cmdRename)
	s.register("RENAMENX", 3, cmdRenameNX)
	s.register("COPY", -3, cmdCopy)
	s.register("MOVE", 3, cmdMove)
	s.register("TOUCH", -2, cmdTouch)
	s.register("EXPIRE", -3, cmdExpire)
	s.register("PEXPIRE", -3, cmdPExpire)
	s.register("EXPIREAT", -3, cmdExpireAt)
	s.register("PEXPIREAT", -3, cmdPExpireAt)
	s.register("EXPIRETIME", 2, cmdExpireTime)
	s.register("PEXPIRETIME", 2, cmdPExpireTime)
	s.register("TTL", 2, cmdTTL)
	s.register("PTTL", 2, cmdPTTL)
	s.register("PERSIST", 2, cmdPersist)
	s.register("OBJECT", -2, cmdObject)
	s.register("DBSIZE", 1, cmdDBSize)
}

func cmdDel(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	var deleted int64
	for _, key := range cmd.Args {
		if db.remove(key) {
			db.srv.emitEvent(db.id, notifyGeneric, "del", key)
			deleted++
		}
	}
	return intReply(deleted)
}

func cmdExists(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	var count int64
	for _, key := range cmd.Args {
		if db.exists(key) {
			count++
		}
	}
	return intReply(count)
}

func cmdType(conn *Connection, cmd *Command) RedisValue {
	e := conn.database().lookup(cmd.Args[0])
	if e == nil {
		return statusReply("none")
	}
	return statusReply(e.kind.String())
}

func cmdKeys(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	out := []string{}
	for _, key := range db.keysLive() {
		if patternMatch(cmd.Args[0], key) {
			out = append(out, key)
		}
	}
	return strArrayReply(out)
}

func cmdScan(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	cursor, ok := parseInt(cmd.Args[0])
	if !ok || cursor < 0 {
		return errReply(msgInvalidCursor)
	}
	match, count, typeFilter := "", int64(10), ""
	args := cmd.Args[1:]
	for len(args) > 0 {
		switch strings.ToUpper(args[0]) {
		case "MATCH":
			if len(args) < 2 {
				return syntaxErrReply()
			}
			match = args[1]
			args = args[2:]
		case "COUNT":
			if len(args) < 2 {
				return syntaxErrReply()
			}
			n, ok := parseInt(args[1])
			if !ok || n <= 0 {
				return syntaxErrReply()
			}
			count = n
			args = args[2:]
		case "TYPE":
			if len(args) < 2 {
				return syntaxErrReply()
			}
			typeFilter = strings.ToLower(args[1])
			args = args[2:]
		default:
			return syntaxErrReply()
		}
	}

	keys := db.keysLive()
	if typeFilter != "" {
		filtered := keys[:0]
		for _, k := range keys {
			if e := db.keys[k]; e != nil && e.kind.String() == typeFilter {
				filtered = append(filtered, k)
			}
		}
		keys = filtered
	}
	next, page := scanStep(keys, cursor, count, match)
	return arrayReply(bulkReply(fmt.Sprintf("%d", next)), strArrayReply(page))
}

func cmdRandomKey(conn *Connection, cmd *Command) RedisValue {
	key := conn.database().randomKey()
	if key == "" {
		return nilReply()
	}
	return bulkReply(key)
}

func renameGeneric(conn *Connection, src, dst string, nx bool) RedisValue {
	db := conn.database()
	e := db.lookup(src)
	if e == nil {
		return errReply(msgNoSuchKey)
	}
	if src == dst {
		if nx {
			return intReply(0)
		}
		return okReply()
	}
	if nx && db.exists(dst) {
		return intReply(0)
	}
	delete(db.keys, src)
	db.keys[dst] = e
	db.touch(notifyGeneric, "rename_from", src)
	db.touch(notifyGeneric, "rename_to", dst)
	if nx {
		return intReply(1)
	}
	return okReply()
}

func cmdRename(conn *Connection, cmd *Command) RedisValue {
	return renameGeneric(conn, cmd.Args[0], cmd.Args[1], false)
}

func cmdRenameNX(conn *Connection, cmd *Command) RedisValue {
	return renameGeneric(conn, cmd.Args[0], cmd.Args[1], true)
}

func cmdCopy(conn *Connection, cmd *Command) RedisValue {
	s := conn.server
	src, dst := cmd.Args[0], cmd.Args[1]
	dstDB := conn.db
	replace := false
	args := cmd.Args[2:]
	for len(args) > 0 {
		switch strings.ToUpper(args[0]) {
		case "DB":
			if len(args) < 2 {
				return syntaxErrReply()
			}
			n, ok := parseInt(args[1])
			if !ok || n < 0 || n >= int64(len(s.dbs)) {
				return errReply(msgInvalidDBIdx)
			}
			dstDB = int(n)
			args = args[2:]
		case "REPLACE":
			replace = true
			args = args[1:]
		default:
			return syntaxErrReply()
		}
	}

	if dstDB == conn.db && src == dst {
		return errReply("ERR source and destination objects are the same")
	}
	srcEntry := conn.database().lookup(src)
	if srcEntry == nil {
		return intReply(0)
	}
	target := s.dbs[dstDB]
	if target.exists(dst) && !replace {
		return intReply(0)
	}
	target.keys[dst] = copyEntry(srcEntry)
	target.touch(notifyGeneric, "copy_to", dst)
	return intReply(1)
}

func cmdMove(conn *Connection, cmd *Command) RedisValue {
	s := conn.server
	n, ok := parseInt(cmd.Args[1])
	if !ok {
		return errReply(msgNotInt)
	}
	if n < 0 || n >= int64(len(s.dbs)) {
		return errReply(msgInvalidDBIdx)
	}
	if int(n) == conn.db {
		return errReply("ERR source and destination objects are the same")
	}
	db := conn.database()
	key := cmd.Args[0]
	e := db.lookup(key)
	if e == nil {
		return intReply(0)
	}
	target := s.dbs[n]
	if target.exists(key) {
		return intReply(0)
	}
	delete(db.keys, key)
	db.touch(notifyGeneric, "move_from", key)
	target.keys[key] = e
	target.touch(notifyGeneric, "move_to", key)
	return intReply(1)
}

func cmdTouch(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	var count int64
	for _, key := range cmd.Args {
		if db.exists(key) {
			count++
		}
	}
	return intReply(count)
}

/*
TTL Surface

EXPIRE and friends share a single generic: the argument is converted to
an absolute-millisecond deadline, the NX/XX/GT/LT flags filter against
the current TTL, and a deadline at or before now deletes the key
immediately (EXPIRE k 0 is a DEL).
*/

func expireGeneric(conn *Connection, cmd *Command, unitMs, absolute bool) RedisValue {
	db := conn.database()
	key := cmd.Args[0]
	n, ok := parseInt(cmd.Args[1])
	if !ok {
		return errReply(msgNotInt)
	}

	var nx, xx, gt, lt bool
	for _, f := range cmd.Args[2:] {
		switch strings.ToUpper(f) {
		case "NX":
			nx = true
		case "XX":
			xx = true
		case "GT":
			gt = true
		case "LT":
			lt = true
		default:
			return errReply(fmt.Sprintf("ERR Unsupported option %s", f))
		}
	}
	if nx && (xx || gt || lt) {
		return errReply("ERR NX and XX, GT or LT options at the same time are not compatible")
	}
	if gt && lt {
		return errReply("ERR GT and LT options at the same time are not compatible")
	}

	e := db.lookup(key)
	if e == nil {
		return intReply(0)
	}

	var when int64
	if absolute {
		when = n
	} else {
		when = db.nowMs() + n
	}
	if !unitMs {
		if absolute {
			when = n * 1000
		} else {
			when = db.nowMs() + n*1000
		}
	}

	switch {
	case nx && e.expireAt != 0:
		return intReply(0)
	case xx && e.expireAt == 0:
		return intReply(0)
	case gt && (e.expireAt == 0 || when <= e.expireAt):
		return intReply(0)
	case lt && e.expireAt != 0 && when >= e.expireAt:
		return intReply(0)
	}

	if when <= db.nowMs() {
		db.remove(key)
		db.srv.emitEvent(db.id, notifyGeneric, "del", key)
		return intReply(1)
	}
	db.setExpire(key, when)
	db.touch(notifyGeneric, "expire", key)
	return intReply(1)
}

func cmdExpire(conn *Connection, cmd *Command) RedisValue {
	return expireGeneric(conn, cmd, false, false)
}

func cmdPExpire(conn *Connection, cmd *Command) RedisValue {
	return expireGeneric(conn, cmd, true, false)
}

func cmdExpireAt(conn *Connection, cmd *Command) RedisValue {
	return expireGeneric(conn, cmd, false, true)
}

func cmdPExpireAt(conn *Connection, cmd *Command) RedisValue {
	return expireGeneric(conn, cmd, true, true)
}

func cmdExpireTime(conn *Connection, cmd *Command) RedisValue {
	e := conn.database().lookup(cmd.Args[0])
	if e == nil {
		return intReply(-2)
	}
	if e.expireAt == 0 {
		return intReply(-1)
	}
	return intReply(e.expireAt / 1000)
}

func cmdPExpireTime(conn *Connection, cmd *Command) RedisValue {
	e := conn.database().lookup(cmd.Args[0])
	if e == nil {
		return intReply(-2)
	}
	if e.expireAt == 0 {
		return intReply(-1)
	}
	return intReply(e.expireAt)
}

func cmdTTL(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	e := db.lookup(cmd.Args[0])
	if e == nil {
		return intReply(-2)
	}
	if e.expireAt == 0 {
		return intReply(-1)
	}
	return intReply((e.expireAt - db.nowMs() + 500) / 1000)
}

func cmdPTTL(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	e := db.lookup(cmd.Args[0])
	if e == nil {
		return intReply(-2)
	}
	if e.expireAt == 0 {
		return intReply(-1)
	}
	return intReply(e.expireAt - db.nowMs())
}

func cmdPersist(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]
	e := db.lookup(key)
	if e == nil || e.expireAt == 0 {
		return intReply(0)
	}
	e.expireAt = 0
	db.touch(notifyGeneric, "persist", key)
	return intReply(1)
}

func cmdDBSize(conn *Connection, cmd *Command) RedisValue {
	return intReply(int64(len(conn.database().keysLive())))
}

/*
OBJECT introspection. ENCODING derives the representation name from the
value shape and the listpack/intset thresholds in the config, matching
what a real server would report for equivalent data.
*/

func cmdObject(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	sub := strings.ToUpper(cmd.Args[0])
	if sub == "HELP" {
		return strArrayReply([]string{
			"OBJECT <subcommand> [<arg> [value] [opt] ...]. Subcommands are:",
			"ENCODING <key>", "FREQ <key>", "IDLETIME <key>", "REFCOUNT <key>",
		})
	}
	if len(cmd.Args) != 2 {
		return errReply(fmt.Sprintf("ERR Unknown subcommand or wrong number of arguments for '%s'. Try OBJECT HELP.", cmd.Args[0]))
	}
	e := db.lookup(cmd.Args[1])
	if e == nil {
		return errReply(msgNoSuchKey)
	}
	switch sub {
	case "ENCODING":
		return bulkReply(objectEncoding(conn.server, e))
	case "REFCOUNT":
		return intReply(1)
	case "IDLETIME":
		return intReply(0)
	case "FREQ":
		if !strings.Contains(conn.server.config["maxmemory-policy"], "lfu") {
			return errReply("ERR An LFU maxmemory policy is not selected, access frequency not tracked. Please note that when switching between maxmemory policies at runtime LFU and LRU data will take some time to adjust.")
		}
		return intReply(0)
	}
	return errReply(fmt.Sprintf("ERR Unknown subcommand or wrong number of arguments for '%s'. Try OBJECT HELP.", cmd.Args[0]))
}

// configInt reads a numeric config value with a fallback
func (s *Server) configInt(name string, def int) int {
	if v, ok := parseInt(s.config[name]); ok {
		return int(v)
	}
	return def
}

func objectEncoding(s *Server, e *entry) string {
	switch e.kind {
	case kindString:
		if isCanonicalInt(e.str) {
			return "int"
		}
		if len(e.str) <= 44 {
			return "embstr"
		}
		return "raw"
	case kindList:
		if len(e.list) <= s.configInt("list-max-listpack-size", 128) {
			return "listpack"
		}
		return "quicklist"
	case kindHash:
		if len(e.hash) <= s.configInt("hash-max-listpack-entries", 128) && hashValuesWithin(e.hash, s.configInt("hash-max-listpack-value", 64)) {
			return "listpack"
		}
		return "hashtable"
	case kindSet:
		allInt := true
		for m := range e.set {
			if !isCanonicalInt(m) {
				allInt = false
				break
			}
		}
		if allInt && len(e.set) <= s.configInt("set-max-intset-entries", 512) {
			return "intset"
		}
		if len(e.set) <= s.configInt("set-max-listpack-entries", 128) {
			return "listpack"
		}
		return "hashtable"
	case kindZSet:
		if e.zset.len() <= s.configInt("zset-max-listpack-entries", 128) {
			return "listpack"
		}
		return "skiplist"
	case kindStream:
		return "stream"
	}
	return "unknown"
}

func hashValuesWithin(h map[string]string, max int) bool {
	for f, v := range h {
		if len(f) > max || len(v) > max {
			return false
		}
	}
	return true
}
