/*
Package fakeredis string-family handlers.

Strings are raw byte payloads with parse-on-demand numeric
interpretation: integer commands demand canonical signed-64 content,
float commands accept doubles and reject NaN. SET carries the full
option grammar (EX/PX/EXAT/PXAT/KEEPTTL/NX/XX/GET).
*/
package fakeredis

import (
	"math"
	"strings"
)

func (s *Server) registerStringHandlers() {
	s.register("GET", 2, cmdGet)
	s.register("SET", -3, cmdSet)
	s.register("SETNX", 3, cmdSetNX)
	s.register("SETEX", 4, cmdSetEX)
	s.register("PSETEX", 4, cmdPSetEX)
	s.register("GETSET", 3, cmdGetSet)
	s.register("GETDEL", 2, cmdGetDel)
	s.register("GETEX", -2, cmdGetEx)
	s.register("MGET", -2, cmdMGet)
	s.register("MSET", -3, cmdMSet)
	s.register("MSETNX", -3, cmdMSetNX)
	s.register("APPEND", 3, cmdAppend)
	s.register("STRLEN", 2, cmdStrLen)
	s.register("INCR", 2, cmdIncr)
	s.register("DECR", 2, cmdDecr)
	s.register("INCRBY", 3, cmdIncrBy)
	s.register("DECRBY", 3, cmdDecrBy)
	s.register("INCRBYFLOAT", 3, cmdIncrByFloat)
	s.register("GETRANGE", 4, cmdGetRange)
	s.register("SUBSTR", 4, cmdGetRange)
	s.register("SETRANGE", 4, cmdSetRange)
	s.register("LCS", -3, cmdLCS)
}

// stringValue resolves key to its string content, distinguishing
// absent (ok, missing) from a type mismatch
func stringValue(db *DB, key string) (val string, missing bool, mismatch bool) {
	e := db.lookup(key)
	if e == nil {
		return "", true, false
	}
	if e.kind != kindString {
		return "", false, true
	}
	return e.str, false, false
}

func cmdGet(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	val, missing, mismatch := stringValue(db, cmd.Args[0])
	if mismatch {
		return wrongTypeReply()
	}
	if missing {
		conn.server.statKeyspaceMis.Add(1)
		conn.server.emitEvent(db.id, notifyKeyMiss, "keymiss", cmd.Args[0])
		return nilReply()
	}
	conn.server.statKeyspaceHit.Add(1)
	return bulkReply(val)
}

func cmdSet(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key, value := cmd.Args[0], cmd.Args[1]

	var nx, xx, keepTTL, withGet bool
	var expireAt int64 // 0 = clear TTL unless keepTTL
	args := cmd.Args[2:]
	for len(args) > 0 {
		switch strings.ToUpper(args[0]) {
		case "NX":
			nx = true
			args = args[1:]
		case "XX":
			xx = true
			args = args[1:]
		case "GET":
			withGet = true
			args = args[1:]
		case "KEEPTTL":
			keepTTL = true
			args = args[1:]
		case "EX", "PX", "EXAT", "PXAT":
			if len(args) < 2 {
				return syntaxErrReply()
			}
			n, ok := parseInt(args[1])
			if !ok {
				return errReply(msgNotInt)
			}
			switch strings.ToUpper(args[0]) {
			case "EX":
				if n <= 0 {
					return errReply("ERR invalid expire time in 'set' command")
				}
				expireAt = db.nowMs() + n*1000
			case "PX":
				if n <= 0 {
					return errReply("ERR invalid expire time in 'set' command")
				}
				expireAt = db.nowMs() + n
			case "EXAT":
				expireAt = n * 1000
			case "PXAT":
				expireAt = n
			}
			args = args[2:]
		default:
			return syntaxErrReply()
		}
	}
	if nx && xx {
		return syntaxErrReply()
	}

	old := db.lookup(key)
	var oldReply RedisValue
	if withGet {
		if old != nil && old.kind != kindString {
			return wrongTypeReply()
		}
		if old == nil {
			oldReply = nilReply()
		} else {
			oldReply = bulkReply(old.str)
		}
	}

	if (nx && old != nil) || (xx && old == nil) {
		if withGet {
			return oldReply
		}
		return nilReply()
	}

	db.setString(key, value, keepTTL)
	if expireAt != 0 {
		db.setExpire(key, expireAt)
	}
	db.touch(notifyString, "set", key)

	if withGet {
		return oldReply
	}
	return okReply()
}

func cmdSetNX(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]
	if db.exists(key) {
		return intReply(0)
	}
	db.setString(key, cmd.Args[1], false)
	db.touch(notifyString, "set", key)
	return intReply(1)
}

func setWithTTL(conn *Connection, cmd *Command, unitMs bool) RedisValue {
	db := conn.database()
	n, ok := parseInt(cmd.Args[1])
	if !ok {
		return errReply(msgNotInt)
	}
	if n <= 0 {
		return errReply("ERR invalid expire time in '" + strings.ToLower(cmd.Name) + "' command")
	}
	ms := n
	if !unitMs {
		ms = n * 1000
	}
	db.setString(cmd.Args[0], cmd.Args[2], false)
	db.setExpire(cmd.Args[0], db.nowMs()+ms)
	db.touch(notifyString, "set", cmd.Args[0])
	return okReply()
}

func cmdSetEX(conn *Connection, cmd *Command) RedisValue {
	return setWithTTL(conn, cmd, false)
}

func cmdPSetEX(conn *Connection, cmd *Command) RedisValue {
	return setWithTTL(conn, cmd, true)
}

func cmdGetSet(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]
	val, missing, mismatch := stringValue(db, key)
	if mismatch {
		return wrongTypeReply()
	}
	db.setString(key, cmd.Args[1], false)
	db.touch(notifyString, "set", key)
	if missing {
		return nilReply()
	}
	return bulkReply(val)
}

func cmdGetDel(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]
	val, missing, mismatch := stringValue(db, key)
	if mismatch {
		return wrongTypeReply()
	}
	if missing {
		return nilReply()
	}
	db.remove(key)
	db.srv.emitEvent(db.id, notifyGeneric, "del", key)
	return bulkReply(val)
}

func cmdGetEx(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]
	e := db.lookup(key)
	if wrongKind(e, kindString) {
		return wrongTypeReply()
	}
	if e == nil {
		return nilReply()
	}

	args := cmd.Args[1:]
	if len(args) == 0 {
		return bulkReply(e.str)
	}
	switch strings.ToUpper(args[0]) {
	case "PERSIST":
		if len(args) != 1 {
			return syntaxErrReply()
		}
		if e.expireAt != 0 {
			e.expireAt = 0
			db.touch(notifyGeneric, "persist", key)
		}
	case "EX", "PX", "EXAT", "PXAT":
		if len(args) != 2 {
			return syntaxErrReply()
		}
		n, ok := parseInt(args[1])
		if !ok {
			return errReply(msgNotInt)
		}
		var when int64
		switch strings.ToUpper(args[0]) {
		case "EX":
			when = db.nowMs() + n*1000
		case "PX":
			when = db.nowMs() + n
		case "EXAT":
			when = n * 1000
		case "PXAT":
			when = n
		}
		if when <= db.nowMs() {
			val := e.str
			db.remove(key)
			db.srv.emitEvent(db.id, notifyGeneric, "del", key)
			return bulkReply(val)
		}
		db.setExpire(key, when)
		db.touch(notifyGeneric, "expire", key)
	default:
		return syntaxErrReply()
	}
	return bulkReply(e.str)
}

func cmdMGet(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	out := make([]RedisValue, len(cmd.Args))
	for i, key := range cmd.Args {
		val, missing, mismatch := stringValue(db, key)
		if missing || mismatch {
			out[i] = nilReply()
			continue
		}
		out[i] = bulkReply(val)
	}
	return arrayReply(out...)
}

func cmdMSet(conn *Connection, cmd *Command) RedisValue {
	if len(cmd.Args)%2 != 0 {
		return wrongArgsReply("mset")
	}
	db := conn.database()
	for i := 0; i < len(cmd.Args); i += 2 {
		db.setString(cmd.Args[i], cmd.Args[i+1], false)
		db.touch(notifyString, "set", cmd.Args[i])
	}
	return okReply()
}

func cmdMSetNX(conn *Connection, cmd *Command) RedisValue {
	if len(cmd.Args)%2 != 0 {
		return wrongArgsReply("msetnx")
	}
	db := conn.database()
	for i := 0; i < len(cmd.Args); i += 2 {
		if db.exists(cmd.Args[i]) {
			return intReply(0)
		}
	}
	for i := 0; i < len(cmd.Args); i += 2 {
		db.setString(cmd.Args[i], cmd.Args[i+1], false)
		db.touch(notifyString, "set", cmd.Args[i])
	}
	return intReply(1)
}

func cmdAppend(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]
	e, ok := db.getOrCreate(key, kindString)
	if !ok {
		return wrongTypeReply()
	}
	e.str += cmd.Args[1]
	db.touch(notifyString, "append", key)
	return intReply(int64(len(e.str)))
}

func cmdStrLen(conn *Connection, cmd *Command) RedisValue {
	val, missing, mismatch := stringValue(conn.database(), cmd.Args[0])
	if mismatch {
		return wrongTypeReply()
	}
	if missing {
		return intReply(0)
	}
	return intReply(int64(len(val)))
}

// incrGeneric implements the shared integer increment path
func incrGeneric(conn *Connection, key string, delta int64) RedisValue {
	db := conn.database()
	e, ok := db.getOrCreate(key, kindString)
	if !ok {
		return wrongTypeReply()
	}
	cur := int64(0)
	if e.str != "" {
		n, okInt := parseInt(e.str)
		if !okInt || !isCanonicalInt(e.str) {
			return errReply(msgNotInt)
		}
		cur = n
	}
	if addWouldOverflow(cur, delta) {
		return errReply("ERR increment or decrement would overflow")
	}
	cur += delta
	e.str = formatInt(cur)
	event := "incrby"
	if delta < 0 {
		event = "decrby"
	}
	db.touch(notifyString, event, key)
	return intReply(cur)
}

func cmdIncr(conn *Connection, cmd *Command) RedisValue {
	return incrGeneric(conn, cmd.Args[0], 1)
}

func cmdDecr(conn *Connection, cmd *Command) RedisValue {
	return incrGeneric(conn, cmd.Args[0], -1)
}

func cmdIncrBy(conn *Connection, cmd *Command) RedisValue {
	n, ok := parseInt(cmd.Args[1])
	if !ok {
		return errReply(msgNotInt)
	}
	return incrGeneric(conn, cmd.Args[0], n)
}

func cmdDecrBy(conn *Connection, cmd *Command) RedisValue {
	n, ok := parseInt(cmd.Args[1])
	if !ok {
		return errReply(msgNotInt)
	}
	if n == math.MinInt64 {
		return errReply("ERR decrement would overflow")
	}
	return incrGeneric(conn, cmd.Args[0], -n)
}

func cmdIncrByFloat(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]
	delta, ok := parseFloat(cmd.Args[1])
	if !ok {
		return errReply(msgNotFloat)
	}
	e, okKind := db.getOrCreate(key, kindString)
	if !okKind {
		return wrongTypeReply()
	}
	cur := float64(0)
	if e.str != "" {
		f, okF := parseFloat(e.str)
		if !okF {
			return errReply(msgNotFloat)
		}
		cur = f
	}
	cur += delta
	if isNonFinite(cur) {
		return errReply("ERR increment would produce NaN or Infinity")
	}
	e.str = formatFloat(cur)
	db.touch(notifyString, "incrbyfloat", key)
	return bulkReply(e.str)
}

func cmdGetRange(conn *Connection, cmd *Command) RedisValue {
	val, _, mismatch := stringValue(conn.database(), cmd.Args[0])
	if mismatch {
		return wrongTypeReply()
	}
	start, okS := parseInt(cmd.Args[1])
	end, okE := parseInt(cmd.Args[2])
	if !okS || !okE {
		return errReply(msgNotInt)
	}
	n := int64(len(val))
	if start < 0 {
		start = n + start
	}
	if end < 0 {
		end = n + end
	}
	if start < 0 {
		start = 0
	}
	if end >= n {
		end = n - 1
	}
	if n == 0 || start > end {
		return bulkReply("")
	}
	return bulkReply(val[start : end+1])
}

func cmdSetRange(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]
	offset, ok := parseInt(cmd.Args[1])
	if !ok || offset < 0 {
		return errReply("ERR offset is out of range")
	}
	patch := cmd.Args[2]
	if offset+int64(len(patch)) > maxBulkSize {
		return errReply("ERR string exceeds maximum allowed size (proto-max-bulk-len)")
	}
	if len(patch) == 0 {
		val, _, mismatch := stringValue(db, key)
		if mismatch {
			return wrongTypeReply()
		}
		return intReply(int64(len(val)))
	}
	e, okKind := db.getOrCreate(key, kindString)
	if !okKind {
		return wrongTypeReply()
	}
	buf := []byte(e.str)
	if int64(len(buf)) < offset+int64(len(patch)) {
		grown := make([]byte, offset+int64(len(patch)))
		copy(grown, buf)
		buf = grown
	}
	copy(buf[offset:], patch)
	e.str = string(buf)
	db.touch(notifyString, "setrange", key)
	return intReply(int64(len(e.str)))
}

/*
LCS computes the longest common subsequence of two string keys with the
LEN, IDX, MINMATCHLEN and WITHMATCHLEN options.
*/

func cmdLCS(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	a, _, mismatchA := stringValue(db, cmd.Args[0])
	b, _, mismatchB := stringValue(db, cmd.Args[1])
	if mismatchA || mismatchB {
		return errReply("ERR The specified keys must contain string values")
	}

	var wantLen, wantIdx, withMatchLen bool
	minMatchLen := int64(0)
	args := cmd.Args[2:]
	for len(args) > 0 {
		switch strings.ToUpper(args[0]) {
		case "LEN":
			wantLen = true
			args = args[1:]
		case "IDX":
			wantIdx = true
			args = args[1:]
		case "MINMATCHLEN":
			if len(args) < 2 {
				return syntaxErrReply()
			}
			n, ok := parseInt(args[1])
			if !ok {
				return errReply(msgNotInt)
			}
			minMatchLen = n
			args = args[2:]
		case "WITHMATCHLEN":
			withMatchLen = true
			args = args[1:]
		default:
			return syntaxErrReply()
		}
	}
	if wantLen && wantIdx {
		return errReply("ERR If you want both the length and indexes, please just use IDX.")
	}

	// Standard DP table; fine at test scale.
	n, m := len(a), len(b)
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else if dp[i-1][j] >= dp[i][j-1] {
				dp[i][j] = dp[i-1][j]
			} else {
				dp[i][j] = dp[i][j-1]
			}
		}
	}

	if wantLen {
		return intReply(int64(dp[n][m]))
	}

	if !wantIdx {
		// Backtrack the subsequence itself.
		out := make([]byte, 0, dp[n][m])
		i, j := n, m
		for i > 0 && j > 0 {
			if a[i-1] == b[j-1] {
				out = append(out, a[i-1])
				i--
				j--
			} else if dp[i-1][j] >= dp[i][j-1] {
				i--
			} else {
				j--
			}
		}
		for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
			out[l], out[r] = out[r], out[l]
		}
		return bulkReply(string(out))
	}

	// IDX: walk back collecting contiguous match runs.
	matches := []RedisValue{}
	i, j := n, m
	for i > 0 && j > 0 {
		if a[i-1] == b[j-1] {
			endA, endB := i-1, j-1
			runLen := 0
			for i > 0 && j > 0 && a[i-1] == b[j-1] {
				i--
				j--
				runLen++
			}
			if int64(runLen) >= minMatchLen {
				fields := []RedisValue{
					arrayReply(intReply(int64(i)), intReply(int64(endA))),
					arrayReply(intReply(int64(j)), intReply(int64(endB))),
				}
				if withMatchLen {
					fields = append(fields, intReply(int64(runLen)))
				}
				matches = append(matches, arrayReply(fields...))
			}
		} else if dp[i-1][j] >= dp[i][j-1] {
			i--
		} else {
			j--
		}
	}
	return mapReply(
		bulkReply("matches"), arrayReply(matches...),
		bulkReply("len"), intReply(int64(dp[n][m])),
	)
}
