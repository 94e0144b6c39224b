/*
Package fakeredis set-family handlers. Random sampling (SPOP,
SRANDMEMBER) goes through the server's seedable RNG.
*/
package fakeredis

import (
	"strings"
)

func (s *Server) registerSetHandlers() {
	s.register("SADD", -3, cmdSAdd)
	s.register("SREM", -3, cmdSRem)
	s.register("SMEMBERS", 2, cmdSMembers)
	s.register("SISMEMBER", 3, cmdSIsMember)
	s.register("SMISMEMBER", -3, cmdSMIsMember)
	s.register("SCARD", 2, cmdSCard)
	s.register("SPOP", -2, cmdSPop)
	s.register("SRANDMEMBER", -2, cmdSRandMember)
	s.register("SMOVE", 4, cmdSMove)
	s.register("SDIFF", -2, cmdSDiff)
	s.register("SDIFFSTORE", -3, cmdSDiffStore)
	s.register("SINTER", -2, cmdSInter)
	s.register("SINTERSTORE", -3, cmdSInterStore)
	s.register("SINTERCARD", -3, cmdSInterCard)
	s.register("SUNION", -2, cmdSUnion)
	s.register("SUNIONSTORE", -3, cmdSUnionStore)
	s.register("SSCAN", -3, cmdSScan)
}

// setMembers resolves a key to its member set; nil for missing keys
func setMembers(db *DB, key string) (map[string]struct{}, RedisValue, bool) {
	e := db.lookup(key)
	if wrongKind(e, kindSet) {
		return nil, wrongTypeReply(), false
	}
	if e == nil {
		return nil, RedisValue{}, true
	}
	return e.set, RedisValue{}, true
}

func cmdSAdd(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]
	e, ok := db.getOrCreate(key, kindSet)
	if !ok {
		return wrongTypeReply()
	}
	var added int64
	for _, m := range cmd.Args[1:] {
		if _, exists := e.set[m]; !exists {
			e.set[m] = struct{}{}
			added++
		}
	}
	if added > 0 {
		db.touch(notifySet, "sadd", key)
	} else {
		db.removeIfEmpty(key)
	}
	return intReply(added)
}

func cmdSRem(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]
	e := db.lookup(key)
	if wrongKind(e, kindSet) {
		return wrongTypeReply()
	}
	if e == nil {
		return intReply(0)
	}
	var removed int64
	for _, m := range cmd.Args[1:] {
		if _, exists := e.set[m]; exists {
			delete(e.set, m)
			removed++
		}
	}
	if removed > 0 {
		db.touch(notifySet, "srem", key)
		db.removeIfEmpty(key)
	}
	return intReply(removed)
}

func cmdSMembers(conn *Connection, cmd *Command) RedisValue {
	members, errV, ok := setMembers(conn.database(), cmd.Args[0])
	if !ok {
		return errV
	}
	return RedisValue{Type: SetReply, Array: strArrayReply(sortedKeys(members)).Array}
}

func cmdSIsMember(conn *Connection, cmd *Command) RedisValue {
	members, errV, ok := setMembers(conn.database(), cmd.Args[0])
	if !ok {
		return errV
	}
	if _, in := members[cmd.Args[1]]; in {
		return intReply(1)
	}
	return intReply(0)
}

func cmdSMIsMember(conn *Connection, cmd *Command) RedisValue {
	members, errV, ok := setMembers(conn.database(), cmd.Args[0])
	if !ok {
		return errV
	}
	out := make([]RedisValue, len(cmd.Args)-1)
	for i, m := range cmd.Args[1:] {
		if _, in := members[m]; in {
			out[i] = intReply(1)
		} else {
			out[i] = intReply(0)
		}
	}
	return arrayReply(out...)
}

func cmdSCard(conn *Connection, cmd *Command) RedisValue {
	members, errV, ok := setMembers(conn.database(), cmd.Args[0])
	if !ok {
		return errV
	}
	return intReply(int64(len(members)))
}

func cmdSPop(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]
	e := db.lookup(key)
	if wrongKind(e, kindSet) {
		return wrongTypeReply()
	}

	hasCount := len(cmd.Args) == 2
	count := int64(1)
	if hasCount {
		n, ok := parseInt(cmd.Args[1])
		if !ok || n < 0 {
			return errReply("ERR value is out of range, must be positive")
		}
		count = n
	} else if len(cmd.Args) > 2 {
		return wrongArgsReply("spop")
	}

	if e == nil {
		if hasCount {
			return strArrayReply(nil)
		}
		return nilReply()
	}

	picked := randomSample(db.srv, sortedKeys(e.set), count)
	for _, m := range picked {
		delete(e.set, m)
	}
	if len(picked) > 0 {
		db.touch(notifySet, "spop", key)
		db.removeIfEmpty(key)
	}
	if !hasCount {
		if len(picked) == 0 {
			return nilReply()
		}
		return bulkReply(picked[0])
	}
	return strArrayReply(picked)
}

func cmdSRandMember(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	members, errV, ok := setMembers(db, cmd.Args[0])
	if !ok {
		return errV
	}

	hasCount := len(cmd.Args) == 2
	count := int64(1)
	if hasCount {
		n, okC := parseInt(cmd.Args[1])
		if !okC {
			return errReply(msgNotInt)
		}
		count = n
	} else if len(cmd.Args) > 2 {
		return wrongArgsReply("srandmember")
	}

	if len(members) == 0 {
		if hasCount {
			return strArrayReply(nil)
		}
		return nilReply()
	}

	picked := randomSample(db.srv, sortedKeys(members), count)
	if !hasCount {
		return bulkReply(picked[0])
	}
	return strArrayReply(picked)
}

func cmdSMove(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	src, dst, member := cmd.Args[0], cmd.Args[1], cmd.Args[2]
	srcE := db.lookup(src)
	if wrongKind(srcE, kindSet) {
		return wrongTypeReply()
	}
	dstE := db.lookup(dst)
	if wrongKind(dstE, kindSet) {
		return wrongTypeReply()
	}
	if srcE == nil {
		return intReply(0)
	}
	if _, in := srcE.set[member]; !in {
		return intReply(0)
	}
	delete(srcE.set, member)
	db.touch(notifySet, "srem", src)
	db.removeIfEmpty(src)
	dstE, _ = db.getOrCreate(dst, kindSet)
	dstE.set[member] = struct{}{}
	db.touch(notifySet, "sadd", dst)
	return intReply(1)
}

// setAlgebra computes DIFF/INTER/UNION over the named keys
func setAlgebra(db *DB, op string, keys []string) (map[string]struct{}, RedisValue, bool) {
	sets := make([]map[string]struct{}, len(keys))
	for i, key := range keys {
		members, errV, ok := setMembers(db, key)
		if !ok {
			return nil, errV, false
		}
		sets[i] = members
	}

	out := make(map[string]struct{})
	switch op {
	case "DIFF":
		for m := range sets[0] {
			out[m] = struct{}{}
		}
		for _, s := range sets[1:] {
			for m := range s {
				delete(out, m)
			}
		}
	case "INTER":
		for m := range sets[0] {
			in := true
			for _, s := range sets[1:] {
				if _, ok := s[m]; !ok {
					in = false
					break
				}
			}
			if in {
				out[m] = struct{}{}
			}
		}
	case "UNION":
		for _, s := range sets {
			for m := range s {
				out[m] = struct{}{}
			}
		}
	}
	return out, RedisValue{}, true
}

func setAlgebraReply(conn *Connection, op string, keys []string) RedisValue {
	out, errV, ok := setAlgebra(conn.database(), op, keys)
	if !ok {
		return errV
	}
	return RedisValue{Type: SetReply, Array: strArrayReply(sortedKeys(out)).Array}
}

func setAlgebraStore(conn *Connection, op, dst string, keys []string) RedisValue {
	db := conn.database()
	out, errV, ok := setAlgebra(db, op, keys)
	if !ok {
		return errV
	}
	if len(out) == 0 {
		if db.remove(dst) {
			db.srv.emitEvent(db.id, notifyGeneric, "del", dst)
		}
		return intReply(0)
	}
	e := &entry{kind: kindSet, set: out}
	db.keys[dst] = e
	db.touch(notifySet, "s"+strings.ToLower(op)+"store", dst)
	return intReply(int64(len(out)))
}

func cmdSDiff(conn *Connection, cmd *Command) RedisValue {
	return setAlgebraReply(conn, "DIFF", cmd.Args)
}

func cmdSDiffStore(conn *Connection, cmd *Command) RedisValue {
	return setAlgebraStore(conn, "DIFF", cmd.Args[0], cmd.Args[1:])
}

func cmdSInter(conn *Connection, cmd *Command) RedisValue {
	return setAlgebraReply(conn, "INTER", cmd.Args)
}

func cmdSInterStore(conn *Connection, cmd *Command) RedisValue {
	return setAlgebraStore(conn, "INTER", cmd.Args[0], cmd.Args[1:])
}

func cmdSInterCard(conn *Connection, cmd *Command) RedisValue {
	numKeys, ok := parseInt(cmd.Args[0])
	if !ok || numKeys <= 0 || int64(len(cmd.Args)) < numKeys+1 {
		return errReply("ERR numkeys should be greater than 0")
	}
	keys := cmd.Args[1 : numKeys+1]
	limit := int64(0)
	rest := cmd.Args[numKeys+1:]
	if len(rest) == 2 && strings.ToUpper(rest[0]) == "LIMIT" {
		n, okL := parseInt(rest[1])
		if !okL || n < 0 {
			return errReply("ERR LIMIT can't be negative")
		}
		limit = n
	} else if len(rest) != 0 {
		return syntaxErrReply()
	}

	out, errV, okAlg := setAlgebra(conn.database(), "INTER", keys)
	if !okAlg {
		return errV
	}
	card := int64(len(out))
	if limit > 0 && card > limit {
		card = limit
	}
	return intReply(card)
}

func cmdSUnion(conn *Connection, cmd *Command) RedisValue {
	return setAlgebraReply(conn, "UNION", cmd.Args)
}

func cmdSUnionStore(conn *Connection, cmd *Command) RedisValue {
	return setAlgebraStore(conn, "UNION", cmd.Args[0], cmd.Args[1:])
}

func cmdSScan(conn *Connection, cmd *Command) RedisValue {
	members, errV, ok := setMembers(conn.database(), cmd.Args[0])
	if !ok {
		return errV
	}
	cursor, match, count, _, errScan := parseScanArgs(cmd.Args[1:], false)
	if errScan.Type == ErrorReply {
		return errScan
	}
	next, page := scanStep(sortedKeys(members), cursor, count, match)
	return arrayReply(bulkReply(formatInt(next)), strArrayReply(page))
}
