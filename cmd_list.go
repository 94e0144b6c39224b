/*
Package fakeredis list-family handlers, including the blocking pops.

Lists are deques of byte strings. Every mutation that empties a list
removes the key; every push signals blocked waiters on that key through
DB.touch.
*/
package fakeredis

import (
	"strings"
)

func (s *Server) registerListHandlers() {
	s.register("LPUSH", -3, cmdLPush)
	s.register("RPUSH", -3, cmdRPush)
	s.register("LPUSHX", -3, cmdLPushX)
	s.register("RPUSHX", -3, cmdRPushX)
	s.register("LPOP", -2, cmdLPop)
	s.register("RPOP", -2, cmdRPop)
	s.register("LLEN", 2, cmdLLen)
	s.register("LRANGE", 4, cmdLRange)
	s.register("LINDEX", 3, cmdLIndex)
	s.register("LSET", 4, cmdLSet)
	s.register("LINSERT", 5, cmdLInsert)
	s.register("LREM", 4, cmdLRem)
	s.register("LTRIM", 4, cmdLTrim)
	s.register("RPOPLPUSH", 3, cmdRPopLPush)
	s.register("LMOVE", 5, cmdLMove)
	s.register("LPOS", -3, cmdLPos)
	s.register("LMPOP", -4, cmdLMPop)
	s.register("BLPOP", -3, cmdBLPop)
	s.register("BRPOP", -3, cmdBRPop)
	s.register("BLMOVE", 6, cmdBLMove)
	s.register("BRPOPLPUSH", 4, cmdBRPopLPush)
}

func pushGeneric(conn *Connection, cmd *Command, left, xx bool) RedisValue {
	db := conn.database()
	key := cmd.Args[0]
	if xx {
		e := db.lookup(key)
		if wrongKind(e, kindList) {
			return wrongTypeReply()
		}
		if e == nil {
			return intReply(0)
		}
	}
	e, ok := db.getOrCreate(key, kindList)
	if !ok {
		return wrongTypeReply()
	}
	for _, v := range cmd.Args[1:] {
		if left {
			e.list = append([]string{v}, e.list...)
		} else {
			e.list = append(e.list, v)
		}
	}
	event := "rpush"
	if left {
		event = "lpush"
	}
	db.touch(notifyList, event, key)
	return intReply(int64(len(e.list)))
}

func cmdLPush(conn *Connection, cmd *Command) RedisValue {
	return pushGeneric(conn, cmd, true, false)
}

func cmdRPush(conn *Connection, cmd *Command) RedisValue {
	return pushGeneric(conn, cmd, false, false)
}

func cmdLPushX(conn *Connection, cmd *Command) RedisValue {
	return pushGeneric(conn, cmd, true, true)
}

func cmdRPushX(conn *Connection, cmd *Command) RedisValue {
	return pushGeneric(conn, cmd, false, true)
}

// popOne removes and returns one element; the caller has verified the
// list is non-empty
func popOne(db *DB, key string, e *entry, left bool) string {
	var v string
	if left {
		v = e.list[0]
		e.list = e.list[1:]
	} else {
		v = e.list[len(e.list)-1]
		e.list = e.list[:len(e.list)-1]
	}
	event := "rpop"
	if left {
		event = "lpop"
	}
	db.touch(notifyList, event, key)
	db.removeIfEmpty(key)
	return v
}

func popGeneric(conn *Connection, cmd *Command, left bool) RedisValue {
	db := conn.database()
	key := cmd.Args[0]

	hasCount := len(cmd.Args) == 2
	count := int64(1)
	if hasCount {
		n, ok := parseInt(cmd.Args[1])
		if !ok || n < 0 {
			return errReply("ERR value is out of range, must be positive")
		}
		count = n
	} else if len(cmd.Args) > 2 {
		return wrongArgsReply(strings.ToLower(cmd.Name))
	}

	e := db.lookup(key)
	if wrongKind(e, kindList) {
		return wrongTypeReply()
	}
	if e == nil {
		if hasCount {
			return nilArrayReply()
		}
		return nilReply()
	}

	if !hasCount {
		return bulkReply(popOne(db, key, e, left))
	}
	out := []string{}
	for count > 0 && len(e.list) > 0 {
		out = append(out, popOne(db, key, e, left))
		count--
	}
	return strArrayReply(out)
}

func cmdLPop(conn *Connection, cmd *Command) RedisValue {
	return popGeneric(conn, cmd, true)
}

func cmdRPop(conn *Connection, cmd *Command) RedisValue {
	return popGeneric(conn, cmd, false)
}

func cmdLLen(conn *Connection, cmd *Command) RedisValue {
	e := conn.database().lookup(cmd.Args[0])
	if wrongKind(e, kindList) {
		return wrongTypeReply()
	}
	if e == nil {
		return intReply(0)
	}
	return intReply(int64(len(e.list)))
}

// listWindow clamps a start/stop pair to valid indexes
func listWindow(start, stop, n int64) (int64, int64, bool) {
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return 0, 0, false
	}
	return start, stop, true
}

func cmdLRange(conn *Connection, cmd *Command) RedisValue {
	e := conn.database().lookup(cmd.Args[0])
	if wrongKind(e, kindList) {
		return wrongTypeReply()
	}
	start, okS := parseInt(cmd.Args[1])
	stop, okE := parseInt(cmd.Args[2])
	if !okS || !okE {
		return errReply(msgNotInt)
	}
	if e == nil {
		return strArrayReply(nil)
	}
	from, to, ok := listWindow(start, stop, int64(len(e.list)))
	if !ok {
		return strArrayReply(nil)
	}
	return strArrayReply(e.list[from : to+1])
}

func cmdLIndex(conn *Connection, cmd *Command) RedisValue {
	e := conn.database().lookup(cmd.Args[0])
	if wrongKind(e, kindList) {
		return wrongTypeReply()
	}
	idx, ok := parseInt(cmd.Args[1])
	if !ok {
		return errReply(msgNotInt)
	}
	if e == nil {
		return nilReply()
	}
	n := int64(len(e.list))
	if idx < 0 {
		idx = n + idx
	}
	if idx < 0 || idx >= n {
		return nilReply()
	}
	return bulkReply(e.list[idx])
}

func cmdLSet(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]
	e := db.lookup(key)
	if wrongKind(e, kindList) {
		return wrongTypeReply()
	}
	if e == nil {
		return errReply(msgNoSuchKey)
	}
	idx, ok := parseInt(cmd.Args[1])
	if !ok {
		return errReply(msgNotInt)
	}
	n := int64(len(e.list))
	if idx < 0 {
		idx = n + idx
	}
	if idx < 0 || idx >= n {
		return errReply(msgIndexRange)
	}
	e.list[idx] = cmd.Args[2]
	db.touch(notifyList, "lset", key)
	return okReply()
}

func cmdLInsert(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]
	var before bool
	switch strings.ToUpper(cmd.Args[1]) {
	case "BEFORE":
		before = true
	case "AFTER":
	default:
		return syntaxErrReply()
	}
	e := db.lookup(key)
	if wrongKind(e, kindList) {
		return wrongTypeReply()
	}
	if e == nil {
		return intReply(0)
	}
	pivot, element := cmd.Args[2], cmd.Args[3]
	for i, v := range e.list {
		if v != pivot {
			continue
		}
		at := i
		if !before {
			at = i + 1
		}
		e.list = append(e.list[:at], append([]string{element}, e.list[at:]...)...)
		db.touch(notifyList, "linsert", key)
		return intReply(int64(len(e.list)))
	}
	return intReply(-1)
}

func cmdLRem(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]
	count, ok := parseInt(cmd.Args[1])
	if !ok {
		return errReply(msgNotInt)
	}
	e := db.lookup(key)
	if wrongKind(e, kindList) {
		return wrongTypeReply()
	}
	if e == nil {
		return intReply(0)
	}
	target := cmd.Args[2]

	removed := int64(0)
	if count >= 0 {
		limit := count
		kept := e.list[:0]
		for _, v := range e.list {
			if v == target && (limit == 0 || removed < limit) {
				removed++
				continue
			}
			kept = append(kept, v)
		}
		e.list = kept
	} else {
		limit := -count
		kept := []string{}
		for i := len(e.list) - 1; i >= 0; i-- {
			v := e.list[i]
			if v == target && removed < limit {
				removed++
				continue
			}
			kept = append([]string{v}, kept...)
		}
		e.list = kept
	}
	if removed > 0 {
		db.touch(notifyList, "lrem", key)
		db.removeIfEmpty(key)
	}
	return intReply(removed)
}

func cmdLTrim(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]
	start, okS := parseInt(cmd.Args[1])
	stop, okE := parseInt(cmd.Args[2])
	if !okS || !okE {
		return errReply(msgNotInt)
	}
	e := db.lookup(key)
	if wrongKind(e, kindList) {
		return wrongTypeReply()
	}
	if e == nil {
		return okReply()
	}
	from, to, ok := listWindow(start, stop, int64(len(e.list)))
	if !ok {
		e.list = nil
	} else {
		e.list = append([]string{}, e.list[from:to+1]...)
	}
	db.touch(notifyList, "ltrim", key)
	db.removeIfEmpty(key)
	return okReply()
}

// lmoveGeneric atomically pops from src and pushes onto dst. Both type
// checks happen before any mutation.
func lmoveGeneric(conn *Connection, src, dst string, srcLeft, dstLeft bool) RedisValue {
	db := conn.database()
	srcE := db.lookup(src)
	if wrongKind(srcE, kindList) {
		return wrongTypeReply()
	}
	dstE := db.lookup(dst)
	if wrongKind(dstE, kindList) {
		return wrongTypeReply()
	}
	if srcE == nil {
		return nilReply()
	}

	v := popOne(db, src, srcE, srcLeft)
	dstE, _ = db.getOrCreate(dst, kindList)
	if dstLeft {
		dstE.list = append([]string{v}, dstE.list...)
	} else {
		dstE.list = append(dstE.list, v)
	}
	event := "rpush"
	if dstLeft {
		event = "lpush"
	}
	db.touch(notifyList, event, dst)
	return bulkReply(v)
}

func cmdRPopLPush(conn *Connection, cmd *Command) RedisValue {
	return lmoveGeneric(conn, cmd.Args[0], cmd.Args[1], false, true)
}

func parseSide(s string) (left bool, ok bool) {
	switch strings.ToUpper(s) {
	case "LEFT":
		return true, true
	case "RIGHT":
		return false, true
	}
	return false, false
}

func cmdLMove(conn *Connection, cmd *Command) RedisValue {
	srcLeft, okS := parseSide(cmd.Args[2])
	dstLeft, okD := parseSide(cmd.Args[3])
	if !okS || !okD {
		return syntaxErrReply()
	}
	return lmoveGeneric(conn, cmd.Args[0], cmd.Args[1], srcLeft, dstLeft)
}

func cmdLPos(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	e := db.lookup(cmd.Args[0])
	if wrongKind(e, kindList) {
		return wrongTypeReply()
	}
	target := cmd.Args[1]

	rank := int64(1)
	count := int64(-1) // -1: single-reply form
	maxLen := int64(0)
	args := cmd.Args[2:]
	for len(args) > 0 {
		if len(args) < 2 {
			return syntaxErrReply()
		}
		n, ok := parseInt(args[1])
		if !ok {
			return errReply(msgNotInt)
		}
		switch strings.ToUpper(args[0]) {
		case "RANK":
			if n == 0 {
				return errReply("ERR RANK can't be zero. Use 1 to start searching from the first matching element in the head of the list or a negative rank to start searching from the tail. A rank larger than 1 can be used to specify the Nth matching element.")
			}
			rank = n
		case "COUNT":
			if n < 0 {
				return errReply("ERR COUNT can't be negative")
			}
			count = n
		case "MAXLEN":
			if n < 0 {
				return errReply("ERR MAXLEN can't be negative")
			}
			maxLen = n
		default:
			return syntaxErrReply()
		}
		args = args[2:]
	}

	if e == nil {
		if count >= 0 {
			return strArrayReply(nil)
		}
		return nilReply()
	}

	found := []RedisValue{}
	skip := rank
	if skip < 0 {
		skip = -skip
	}
	scanned := int64(0)
	n := int64(len(e.list))
	idx := func(i int64) int64 {
		if rank > 0 {
			return i
		}
		return n - 1 - i
	}
	for i := int64(0); i < n; i++ {
		if maxLen > 0 && scanned >= maxLen {
			break
		}
		scanned++
		pos := idx(i)
		if e.list[pos] != target {
			continue
		}
		if skip > 1 {
			skip--
			continue
		}
		found = append(found, intReply(pos))
		if count < 0 || (count > 0 && int64(len(found)) >= count) {
			if count < 0 {
				return intReply(pos)
			}
			break
		}
	}

	if count < 0 {
		return nilReply()
	}
	return arrayReply(found...)
}

func cmdLMPop(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	numKeys, ok := parseInt(cmd.Args[0])
	if !ok || numKeys <= 0 || int64(len(cmd.Args)) < numKeys+2 {
		return syntaxErrReply()
	}
	keys := cmd.Args[1 : numKeys+1]
	rest := cmd.Args[numKeys+1:]
	left, okSide := parseSide(rest[0])
	if !okSide {
		return syntaxErrReply()
	}
	count := int64(1)
	if len(rest) == 3 && strings.ToUpper(rest[1]) == "COUNT" {
		n, okC := parseInt(rest[2])
		if !okC || n <= 0 {
			return errReply("ERR count should be greater than 0")
		}
		count = n
	} else if len(rest) != 1 {
		return syntaxErrReply()
	}

	for _, key := range keys {
		e := db.lookup(key)
		if wrongKind(e, kindList) {
			return wrongTypeReply()
		}
		if e == nil || len(e.list) == 0 {
			continue
		}
		out := []string{}
		for count > 0 && len(e.list) > 0 {
			out = append(out, popOne(db, key, e, left))
			count--
		}
		return arrayReply(bulkReply(key), strArrayReply(out))
	}
	return nilArrayReply()
}

/*
Blocking pops. The attempt closure runs under the execution lock; the
wait loop in blocking.go releases it while parked.
*/

func blockingPop(conn *Connection, cmd *Command, left bool) RedisValue {
	s := conn.server
	keys := cmd.Args[:len(cmd.Args)-1]
	timeout, ok := parseTimeout(cmd.Args[len(cmd.Args)-1])
	if !ok {
		return errReply(msgNegTimeout)
	}

	return s.blockOnKeys(conn, keys, timeout, nilArrayReply(), func() (RedisValue, bool) {
		db := conn.database()
		for _, key := range keys {
			e := db.lookup(key)
			if wrongKind(e, kindList) {
				return wrongTypeReply(), true
			}
			if e == nil || len(e.list) == 0 {
				continue
			}
			v := popOne(db, key, e, left)
			return arrayReply(bulkReply(key), bulkReply(v)), true
		}
		return RedisValue{}, false
	})
}

func cmdBLPop(conn *Connection, cmd *Command) RedisValue {
	return blockingPop(conn, cmd, true)
}

func cmdBRPop(conn *Connection, cmd *Command) RedisValue {
	return blockingPop(conn, cmd, false)
}

func blockingMove(conn *Connection, src, dst string, srcLeft, dstLeft bool, timeoutArg string) RedisValue {
	s := conn.server
	timeout, ok := parseTimeout(timeoutArg)
	if !ok {
		return errReply(msgNegTimeout)
	}
	return s.blockOnKeys(conn, []string{src}, timeout, nilReply(), func() (RedisValue, bool) {
		db := conn.database()
		e := db.lookup(src)
		if wrongKind(e, kindList) {
			return wrongTypeReply(), true
		}
		if e == nil || len(e.list) == 0 {
			return RedisValue{}, false
		}
		return lmoveGeneric(conn, src, dst, srcLeft, dstLeft), true
	})
}

func cmdBLMove(conn *Connection, cmd *Command) RedisValue {
	srcLeft, okS := parseSide(cmd.Args[2])
	dstLeft, okD := parseSide(cmd.Args[3])
	if !okS || !okD {
		return syntaxErrReply()
	}
	return blockingMove(conn, cmd.Args[0], cmd.Args[1], srcLeft, dstLeft, cmd.Args[4])
}

func cmdBRPopLPush(conn *Connection, cmd *Command) RedisValue {
	return blockingMove(conn, cmd.Args[0], cmd.Args[1], false, true, cmd.Args[2])
}
