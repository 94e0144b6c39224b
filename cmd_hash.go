/*
Package fakeredis hash-family handlers. Field iteration order is
unspecified; commands that expose pairs snapshot the field list sorted
so one command's output is internally consistent.
*/
package fakeredis

import (
	"strings"
)

func (s *Server) registerHashHandlers() {
	s.register("HSET", -4, cmdHSet)
	s.register("HMSET", -4, cmdHMSet)
	s.register("HSETNX", 4, cmdHSetNX)
	s.register("HGET", 3, cmdHGet)
	s.register("HMGET", -3, cmdHMGet)
	s.register("HGETALL", 2, cmdHGetAll)
	s.register("HDEL", -3, cmdHDel)
	s.register("HLEN", 2, cmdHLen)
	s.register("HEXISTS", 3, cmdHExists)
	s.register("HKEYS", 2, cmdHKeys)
	s.register("HVALS", 2, cmdHVals)
	s.register("HSTRLEN", 3, cmdHStrLen)
	s.register("HINCRBY", 4, cmdHIncrBy)
	s.register("HINCRBYFLOAT", 4, cmdHIncrByFloat)
	s.register("HRANDFIELD", -2, cmdHRandField)
	s.register("HSCAN", -3, cmdHScan)
}

func cmdHSet(conn *Connection, cmd *Command) RedisValue {
	if (len(cmd.Args)-1)%2 != 0 {
		return wrongArgsReply(strings.ToLower(cmd.Name))
	}
	db := conn.database()
	key := cmd.Args[0]
	e, ok := db.getOrCreate(key, kindHash)
	if !ok {
		return wrongTypeReply()
	}
	var added int64
	for i := 1; i < len(cmd.Args); i += 2 {
		if _, exists := e.hash[cmd.Args[i]]; !exists {
			added++
		}
		e.hash[cmd.Args[i]] = cmd.Args[i+1]
	}
	db.touch(notifyHash, "hset", key)
	if cmd.Name == "HMSET" {
		return okReply()
	}
	return intReply(added)
}

func cmdHMSet(conn *Connection, cmd *Command) RedisValue {
	return cmdHSet(conn, cmd)
}

func cmdHSetNX(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]
	e, ok := db.getOrCreate(key, kindHash)
	if !ok {
		return wrongTypeReply()
	}
	if _, exists := e.hash[cmd.Args[1]]; exists {
		db.removeIfEmpty(key)
		return intReply(0)
	}
	e.hash[cmd.Args[1]] = cmd.Args[2]
	db.touch(notifyHash, "hset", key)
	return intReply(1)
}

func cmdHGet(conn *Connection, cmd *Command) RedisValue {
	e := conn.database().lookup(cmd.Args[0])
	if wrongKind(e, kindHash) {
		return wrongTypeReply()
	}
	if e == nil {
		return nilReply()
	}
	v, ok := e.hash[cmd.Args[1]]
	if !ok {
		return nilReply()
	}
	return bulkReply(v)
}

func cmdHMGet(conn *Connection, cmd *Command) RedisValue {
	e := conn.database().lookup(cmd.Args[0])
	if wrongKind(e, kindHash) {
		return wrongTypeReply()
	}
	out := make([]RedisValue, len(cmd.Args)-1)
	for i, field := range cmd.Args[1:] {
		if e == nil {
			out[i] = nilReply()
			continue
		}
		if v, ok := e.hash[field]; ok {
			out[i] = bulkReply(v)
		} else {
			out[i] = nilReply()
		}
	}
	return arrayReply(out...)
}

func cmdHGetAll(conn *Connection, cmd *Command) RedisValue {
	e := conn.database().lookup(cmd.Args[0])
	if wrongKind(e, kindHash) {
		return wrongTypeReply()
	}
	pairs := []RedisValue{}
	if e != nil {
		for _, f := range sortedKeys(e.hash) {
			pairs = append(pairs, bulkReply(f), bulkReply(e.hash[f]))
		}
	}
	return mapReply(pairs...)
}

func cmdHDel(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]
	e := db.lookup(key)
	if wrongKind(e, kindHash) {
		return wrongTypeReply()
	}
	if e == nil {
		return intReply(0)
	}
	var deleted int64
	for _, field := range cmd.Args[1:] {
		if _, ok := e.hash[field]; ok {
			delete(e.hash, field)
			deleted++
		}
	}
	if deleted > 0 {
		db.touch(notifyHash, "hdel", key)
		db.removeIfEmpty(key)
	}
	return intReply(deleted)
}

func cmdHLen(conn *Connection, cmd *Command) RedisValue {
	e := conn.database().lookup(cmd.Args[0])
	if wrongKind(e, kindHash) {
		return wrongTypeReply()
	}
	if e == nil {
		return intReply(0)
	}
	return intReply(int64(len(e.hash)))
}

func cmdHExists(conn *Connection, cmd *Command) RedisValue {
	e := conn.database().lookup(cmd.Args[0])
	if wrongKind(e, kindHash) {
		return wrongTypeReply()
	}
	if e == nil {
		return intReply(0)
	}
	if _, ok := e.hash[cmd.Args[1]]; ok {
		return intReply(1)
	}
	return intReply(0)
}

func cmdHKeys(conn *Connection, cmd *Command) RedisValue {
	e := conn.database().lookup(cmd.Args[0])
	if wrongKind(e, kindHash) {
		return wrongTypeReply()
	}
	if e == nil {
		return strArrayReply(nil)
	}
	return strArrayReply(sortedKeys(e.hash))
}

func cmdHVals(conn *Connection, cmd *Command) RedisValue {
	e := conn.database().lookup(cmd.Args[0])
	if wrongKind(e, kindHash) {
		return wrongTypeReply()
	}
	if e == nil {
		return strArrayReply(nil)
	}
	out := make([]string, 0, len(e.hash))
	for _, f := range sortedKeys(e.hash) {
		out = append(out, e.hash[f])
	}
	return strArrayReply(out)
}

func cmdHStrLen(conn *Connection, cmd *Command) RedisValue {
	e := conn.database().lookup(cmd.Args[0])
	if wrongKind(e, kindHash) {
		return wrongTypeReply()
	}
	if e == nil {
		return intReply(0)
	}
	return intReply(int64(len(e.hash[cmd.Args[1]])))
}

func cmdHIncrBy(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]
	delta, ok := parseInt(cmd.Args[2])
	if !ok {
		return errReply(msgNotInt)
	}
	e, okKind := db.getOrCreate(key, kindHash)
	if !okKind {
		return wrongTypeReply()
	}
	cur := int64(0)
	if v, exists := e.hash[cmd.Args[1]]; exists {
		n, okInt := parseInt(v)
		if !okInt || !isCanonicalInt(v) {
			db.removeIfEmpty(key)
			return errReply("ERR hash value is not an integer")
		}
		cur = n
	}
	if addWouldOverflow(cur, delta) {
		db.removeIfEmpty(key)
		return errReply("ERR increment or decrement would overflow")
	}
	cur += delta
	e.hash[cmd.Args[1]] = formatInt(cur)
	db.touch(notifyHash, "hincrby", key)
	return intReply(cur)
}

func cmdHIncrByFloat(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]
	delta, ok := parseFloat(cmd.Args[2])
	if !ok {
		return errReply(msgNotFloat)
	}
	e, okKind := db.getOrCreate(key, kindHash)
	if !okKind {
		return wrongTypeReply()
	}
	cur := float64(0)
	if v, exists := e.hash[cmd.Args[1]]; exists {
		f, okF := parseFloat(v)
		if !okF {
			db.removeIfEmpty(key)
			return errReply("ERR hash value is not a float")
		}
		cur = f
	}
	cur += delta
	if isNonFinite(cur) {
		db.removeIfEmpty(key)
		return errReply("ERR increment would produce NaN or Infinity")
	}
	e.hash[cmd.Args[1]] = formatFloat(cur)
	db.touch(notifyHash, "hincrbyfloat", key)
	return bulkReply(e.hash[cmd.Args[1]])
}

func cmdHRandField(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	e := db.lookup(cmd.Args[0])
	if wrongKind(e, kindHash) {
		return wrongTypeReply()
	}

	withValues := false
	hasCount := len(cmd.Args) > 1
	count := int64(1)
	if hasCount {
		n, ok := parseInt(cmd.Args[1])
		if !ok {
			return errReply(msgNotInt)
		}
		count = n
		if len(cmd.Args) == 3 {
			if strings.ToUpper(cmd.Args[2]) != "WITHVALUES" {
				return syntaxErrReply()
			}
			withValues = true
		} else if len(cmd.Args) > 3 {
			return syntaxErrReply()
		}
	}

	if e == nil {
		if hasCount {
			return strArrayReply(nil)
		}
		return nilReply()
	}

	fields := sortedKeys(e.hash)
	if !hasCount {
		f := fields[db.srv.rng.Intn(len(fields))]
		return bulkReply(f)
	}

	picked := randomSample(db.srv, fields, count)
	if !withValues {
		return strArrayReply(picked)
	}
	out := []RedisValue{}
	for _, f := range picked {
		out = append(out, bulkReply(f), bulkReply(e.hash[f]))
	}
	return arrayReply(out...)
}

func cmdHScan(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	e := db.lookup(cmd.Args[0])
	if wrongKind(e, kindHash) {
		return wrongTypeReply()
	}
	cursor, match, count, noValues, errV := parseScanArgs(cmd.Args[1:], true)
	if errV.Type == ErrorReply {
		return errV
	}
	if e == nil {
		return arrayReply(bulkReply("0"), strArrayReply(nil))
	}
	next, fields := scanStep(sortedKeys(e.hash), cursor, count, match)
	out := []string{}
	for _, f := range fields {
		out = append(out, f)
		if !noValues {
			out = append(out, e.hash[f])
		}
	}
	return arrayReply(bulkReply(formatInt(next)), strArrayReply(out))
}
