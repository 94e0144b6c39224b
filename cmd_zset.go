/*
Package fakeredis sorted-set handlers.

ZADD option precedence, the dual BYSCORE/BYLEX range grammar and the
store variants follow the documented contracts; score parsing rejects
NaN with the canonical error string.
*/
package fakeredis

import (
	"math"
	"strings"
)

func (s *Server) registerZSetHandlers() {
	s.register("ZADD", -4, cmdZAdd)
	s.register("ZSCORE", 3, cmdZScore)
	s.register("ZMSCORE", -3, cmdZMScore)
	s.register("ZCARD", 2, cmdZCard)
	s.register("ZCOUNT", 4, cmdZCount)
	s.register("ZLEXCOUNT", 4, cmdZLexCount)
	s.register("ZINCRBY", 4, cmdZIncrBy)
	s.register("ZRANK", -3, cmdZRank)
	s.register("ZREVRANK", -3, cmdZRevRank)
	s.register("ZRANGE", -4, cmdZRange)
	s.register("ZRANGESTORE", -5, cmdZRangeStore)
	s.register("ZRANGEBYSCORE", -4, cmdZRangeByScore)
	s.register("ZREVRANGEBYSCORE", -4, cmdZRevRangeByScore)
	s.register("ZRANGEBYLEX", -4, cmdZRangeByLex)
	s.register("ZREVRANGEBYLEX", -4, cmdZRevRangeByLex)
	s.register("ZREVRANGE", -4, cmdZRevRange)
	s.register("ZREM", -3, cmdZRem)
	s.register("ZREMRANGEBYRANK", 4, cmdZRemRangeByRank)
	s.register("ZREMRANGEBYSCORE", 4, cmdZRemRangeByScore)
	s.register("ZREMRANGEBYLEX", 4, cmdZRemRangeByLex)
	s.register("ZPOPMIN", -2, cmdZPopMin)
	s.register("ZPOPMAX", -2, cmdZPopMax)
	s.register("BZPOPMIN", -3, cmdBZPopMin)
	s.register("BZPOPMAX", -3, cmdBZPopMax)
	s.register("ZRANDMEMBER", -2, cmdZRandMember)
	s.register("ZUNION", -3, cmdZUnion)
	s.register("ZINTER", -3, cmdZInter)
	s.register("ZDIFF", -3, cmdZDiff)
	s.register("ZUNIONSTORE", -4, cmdZUnionStore)
	s.register("ZINTERSTORE", -4, cmdZInterStore)
	s.register("ZDIFFSTORE", -4, cmdZDiffStore)
	s.register("ZINTERCARD", -3, cmdZInterCard)
	s.register("ZSCAN", -3, cmdZScan)
}

// zsetValue resolves a key to its sorted set; nil for missing keys
func zsetValue(db *DB, key string) (*sortedSet, RedisValue, bool) {
	e := db.lookup(key)
	if wrongKind(e, kindZSet) {
		return nil, wrongTypeReply(), false
	}
	if e == nil {
		return nil, RedisValue{}, true
	}
	return e.zset, RedisValue{}, true
}

func cmdZAdd(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]

	var nx, xx, gt, lt, ch, incr bool
	args := cmd.Args[1:]
flagLoop:
	for len(args) > 0 {
		switch strings.ToUpper(args[0]) {
		case "NX":
			nx = true
		case "XX":
			xx = true
		case "GT":
			gt = true
		case "LT":
			lt = true
		case "CH":
			ch = true
		case "INCR":
			incr = true
		default:
			break flagLoop
		}
		args = args[1:]
	}

	if nx && xx {
		return errReply("ERR XX and NX options at the same time are not compatible")
	}
	if nx && (gt || lt) || (gt && lt) {
		return errReply("ERR GT, LT, and/or NX options at the same time are not compatible")
	}
	if len(args) == 0 || len(args)%2 != 0 {
		return syntaxErrReply()
	}
	if incr && len(args) != 2 {
		return errReply("ERR INCR option supports a single increment-element pair")
	}

	type pair struct {
		score  float64
		member string
	}
	pairs := make([]pair, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		score, ok := parseFloat(args[i])
		if !ok {
			return errReply(msgNotFloat)
		}
		pairs = append(pairs, pair{score, args[i+1]})
	}

	e, okKind := db.getOrCreate(key, kindZSet)
	if !okKind {
		return wrongTypeReply()
	}

	var added, changed int64
	var incrResult float64
	incrSkipped := false
	for _, p := range pairs {
		old, exists := e.zset.score(p.member)
		score := p.score
		if incr && exists {
			score = old + p.score
			if math.IsNaN(score) {
				db.removeIfEmpty(key)
				return errReply("ERR resulting score is not a number (NaN)")
			}
		}
		switch {
		case nx && exists, xx && !exists:
			incrSkipped = incr
			continue
		case gt && exists && score <= old:
			incrSkipped = incr
			continue
		case lt && exists && score >= old:
			incrSkipped = incr
			continue
		}
		e.zset.set(p.member, score)
		incrResult = score
		if !exists {
			added++
			changed++
		} else if score != old {
			changed++
		}
	}

	if added+changed > 0 {
		db.touch(notifyZset, "zadd", key)
	}
	db.removeIfEmpty(key)

	if incr {
		if incrSkipped {
			return nilReply()
		}
		return doubleReply(incrResult)
	}
	if ch {
		return intReply(changed)
	}
	return intReply(added)
}

func cmdZScore(conn *Connection, cmd *Command) RedisValue {
	z, errV, ok := zsetValue(conn.database(), cmd.Args[0])
	if !ok {
		return errV
	}
	if z == nil {
		return nilReply()
	}
	score, exists := z.score(cmd.Args[1])
	if !exists {
		return nilReply()
	}
	return doubleReply(score)
}

func cmdZMScore(conn *Connection, cmd *Command) RedisValue {
	z, errV, ok := zsetValue(conn.database(), cmd.Args[0])
	if !ok {
		return errV
	}
	out := make([]RedisValue, len(cmd.Args)-1)
	for i, m := range cmd.Args[1:] {
		out[i] = nilReply()
		if z != nil {
			if score, exists := z.score(m); exists {
				out[i] = doubleReply(score)
			}
		}
	}
	return arrayReply(out...)
}

func cmdZCard(conn *Connection, cmd *Command) RedisValue {
	z, errV, ok := zsetValue(conn.database(), cmd.Args[0])
	if !ok {
		return errV
	}
	if z == nil {
		return intReply(0)
	}
	return intReply(int64(z.len()))
}

func cmdZCount(conn *Connection, cmd *Command) RedisValue {
	z, errV, ok := zsetValue(conn.database(), cmd.Args[0])
	if !ok {
		return errV
	}
	min, okMin := parseScoreBound(cmd.Args[1])
	max, okMax := parseScoreBound(cmd.Args[2])
	if !okMin || !okMax {
		return errReply(msgScoreRange)
	}
	if z == nil {
		return intReply(0)
	}
	return intReply(int64(len(z.rangeByScore(min, max, false))))
}

func cmdZLexCount(conn *Connection, cmd *Command) RedisValue {
	z, errV, ok := zsetValue(conn.database(), cmd.Args[0])
	if !ok {
		return errV
	}
	min, okMin := parseLexBound(cmd.Args[1])
	max, okMax := parseLexBound(cmd.Args[2])
	if !okMin || !okMax {
		return errReply(msgLexRange)
	}
	if z == nil {
		return intReply(0)
	}
	return intReply(int64(len(z.rangeByLex(min, max, false))))
}

func cmdZIncrBy(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]
	delta, ok := parseFloat(cmd.Args[1])
	if !ok {
		return errReply(msgNotFloat)
	}
	e, okKind := db.getOrCreate(key, kindZSet)
	if !okKind {
		return wrongTypeReply()
	}
	old, _ := e.zset.score(cmd.Args[2])
	score := old + delta
	if math.IsNaN(score) {
		db.removeIfEmpty(key)
		return errReply("ERR resulting score is not a number (NaN)")
	}
	e.zset.set(cmd.Args[2], score)
	db.touch(notifyZset, "zincr", key)
	return doubleReply(score)
}

func rankGeneric(conn *Connection, cmd *Command, reverse bool) RedisValue {
	withScore := false
	if len(cmd.Args) == 3 {
		if !strings.EqualFold(cmd.Args[2], "WITHSCORE") {
			return syntaxErrReply()
		}
		withScore = true
	} else if len(cmd.Args) > 3 {
		return wrongArgsReply(strings.ToLower(cmd.Name))
	}
	z, errV, ok := zsetValue(conn.database(), cmd.Args[0])
	if !ok {
		return errV
	}
	if z == nil {
		if withScore {
			return nilArrayReply()
		}
		return nilReply()
	}
	rank, exists := z.rank(cmd.Args[1], reverse)
	if !exists {
		if withScore {
			return nilArrayReply()
		}
		return nilReply()
	}
	if withScore {
		score, _ := z.score(cmd.Args[1])
		return arrayReply(intReply(int64(rank)), doubleReply(score))
	}
	return intReply(int64(rank))
}

func cmdZRank(conn *Connection, cmd *Command) RedisValue {
	return rankGeneric(conn, cmd, false)
}

func cmdZRevRank(conn *Connection, cmd *Command) RedisValue {
	return rankGeneric(conn, cmd, true)
}

/*
ZRANGE grammar shared by ZRANGE, ZRANGESTORE and the legacy
(BY)SCORE/(BY)LEX commands.
*/

type zrangeArgs struct {
	start, stop string
	byScore     bool
	byLex       bool
	rev         bool
	withScores  bool
	hasLimit    bool
	offset      int64
	count       int64
}

func parseZRangeArgs(start, stop string, opts []string, allowWithScores bool) (zrangeArgs, RedisValue) {
	a := zrangeArgs{start: start, stop: stop, count: -1}
	for len(opts) > 0 {
		switch strings.ToUpper(opts[0]) {
		case "BYSCORE":
			a.byScore = true
			opts = opts[1:]
		case "BYLEX":
			a.byLex = true
			opts = opts[1:]
		case "REV":
			a.rev = true
			opts = opts[1:]
		case "WITHSCORES":
			if !allowWithScores {
				return a, syntaxErrReply()
			}
			a.withScores = true
			opts = opts[1:]
		case "LIMIT":
			if len(opts) < 3 {
				return a, syntaxErrReply()
			}
			off, okO := parseInt(opts[1])
			cnt, okC := parseInt(opts[2])
			if !okO || !okC {
				return a, errReply(msgNotInt)
			}
			a.hasLimit = true
			a.offset, a.count = off, cnt
			opts = opts[3:]
		default:
			return a, syntaxErrReply()
		}
	}
	if a.byScore && a.byLex {
		return a, syntaxErrReply()
	}
	if a.hasLimit && !a.byScore && !a.byLex {
		return a, errReply("ERR syntax error, LIMIT is only supported in combination with either BYSCORE or BYLEX")
	}
	if a.withScores && a.byLex {
		return a, errReply("ERR syntax error, WITHSCORES not supported in combination with BYLEX")
	}
	return a, RedisValue{}
}

// zrangeSelect evaluates the parsed grammar against one sorted set
func zrangeSelect(z *sortedSet, a zrangeArgs) ([]zMember, RedisValue) {
	if z == nil {
		return nil, RedisValue{}
	}
	switch {
	case a.byScore:
		lo, hi := a.start, a.stop
		if a.rev {
			lo, hi = a.stop, a.start
		}
		min, okMin := parseScoreBound(lo)
		max, okMax := parseScoreBound(hi)
		if !okMin || !okMax {
			return nil, errReply(msgScoreRange)
		}
		return applyLimit(z.rangeByScore(min, max, a.rev), a), RedisValue{}
	case a.byLex:
		lo, hi := a.start, a.stop
		if a.rev {
			lo, hi = a.stop, a.start
		}
		min, okMin := parseLexBound(lo)
		max, okMax := parseLexBound(hi)
		if !okMin || !okMax {
			return nil, errReply(msgLexRange)
		}
		return applyLimit(z.rangeByLex(min, max, a.rev), a), RedisValue{}
	default:
		start, okS := parseInt(a.start)
		stop, okE := parseInt(a.stop)
		if !okS || !okE {
			return nil, errReply(msgNotInt)
		}
		ordered := z.sorted()
		if a.rev {
			reverseMembers(ordered)
		}
		from, to, ok := listWindow(start, stop, int64(len(ordered)))
		if !ok {
			return nil, RedisValue{}
		}
		return ordered[from : to+1], RedisValue{}
	}
}

func applyLimit(ms []zMember, a zrangeArgs) []zMember {
	if !a.hasLimit {
		return ms
	}
	if a.offset < 0 {
		return nil
	}
	if a.offset >= int64(len(ms)) {
		return nil
	}
	ms = ms[a.offset:]
	if a.count >= 0 && int64(len(ms)) > a.count {
		ms = ms[:a.count]
	}
	return ms
}

// zMemberReply renders a member list, flat with scores when asked
func zMemberReply(ms []zMember, withScores bool) RedisValue {
	out := []RedisValue{}
	for _, m := range ms {
		out = append(out, bulkReply(m.member))
		if withScores {
			out = append(out, doubleReply(m.score))
		}
	}
	return arrayReply(out...)
}

func cmdZRange(conn *Connection, cmd *Command) RedisValue {
	a, errV := parseZRangeArgs(cmd.Args[1], cmd.Args[2], cmd.Args[3:], true)
	if errV.Type == ErrorReply {
		return errV
	}
	z, errK, ok := zsetValue(conn.database(), cmd.Args[0])
	if !ok {
		return errK
	}
	ms, errS := zrangeSelect(z, a)
	if errS.Type == ErrorReply {
		return errS
	}
	return zMemberReply(ms, a.withScores)
}

func cmdZRangeStore(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	dst, src := cmd.Args[0], cmd.Args[1]
	a, errV := parseZRangeArgs(cmd.Args[2], cmd.Args[3], cmd.Args[4:], false)
	if errV.Type == ErrorReply {
		return errV
	}
	z, errK, ok := zsetValue(db, src)
	if !ok {
		return errK
	}
	ms, errS := zrangeSelect(z, a)
	if errS.Type == ErrorReply {
		return errS
	}
	if len(ms) == 0 {
		if db.remove(dst) {
			db.srv.emitEvent(db.id, notifyGeneric, "del", dst)
		}
		return intReply(0)
	}
	out := newSortedSet()
	for _, m := range ms {
		out.set(m.member, m.score)
	}
	db.keys[dst] = &entry{kind: kindZSet, zset: out}
	db.touch(notifyZset, "zrangestore", dst)
	return intReply(int64(len(ms)))
}

func legacyZRangeByScore(conn *Connection, cmd *Command, rev bool) RedisValue {
	start, stop := cmd.Args[1], cmd.Args[2]
	if rev {
		start, stop = cmd.Args[2], cmd.Args[1]
	}
	opts := append([]string{"BYSCORE"}, cmd.Args[3:]...)
	if rev {
		opts = append(opts, "REV")
	}
	a, errV := parseZRangeArgs(start, stop, opts, true)
	if errV.Type == ErrorReply {
		return errV
	}
	z, errK, ok := zsetValue(conn.database(), cmd.Args[0])
	if !ok {
		return errK
	}
	ms, errS := zrangeSelect(z, a)
	if errS.Type == ErrorReply {
		return errS
	}
	return zMemberReply(ms, a.withScores)
}

func cmdZRangeByScore(conn *Connection, cmd *Command) RedisValue {
	return legacyZRangeByScore(conn, cmd, false)
}

func cmdZRevRangeByScore(conn *Connection, cmd *Command) RedisValue {
	return legacyZRangeByScore(conn, cmd, true)
}

func legacyZRangeByLex(conn *Connection, cmd *Command, rev bool) RedisValue {
	start, stop := cmd.Args[1], cmd.Args[2]
	if rev {
		start, stop = cmd.Args[2], cmd.Args[1]
	}
	opts := append([]string{"BYLEX"}, cmd.Args[3:]...)
	if rev {
		opts = append(opts, "REV")
	}
	a, errV := parseZRangeArgs(start, stop, opts, false)
	if errV.Type == ErrorReply {
		return errV
	}
	z, errK, ok := zsetValue(conn.database(), cmd.Args[0])
	if !ok {
		return errK
	}
	ms, errS := zrangeSelect(z, a)
	if errS.Type == ErrorReply {
		return errS
	}
	return zMemberReply(ms, false)
}

func cmdZRangeByLex(conn *Connection, cmd *Command) RedisValue {
	return legacyZRangeByLex(conn, cmd, false)
}

func cmdZRevRangeByLex(conn *Connection, cmd *Command) RedisValue {
	return legacyZRangeByLex(conn, cmd, true)
}

func cmdZRevRange(conn *Connection, cmd *Command) RedisValue {
	opts := append([]string{"REV"}, cmd.Args[3:]...)
	a, errV := parseZRangeArgs(cmd.Args[1], cmd.Args[2], opts, true)
	if errV.Type == ErrorReply {
		return errV
	}
	z, errK, ok := zsetValue(conn.database(), cmd.Args[0])
	if !ok {
		return errK
	}
	ms, errS := zrangeSelect(z, a)
	if errS.Type == ErrorReply {
		return errS
	}
	return zMemberReply(ms, a.withScores)
}

func cmdZRem(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]
	z, errV, ok := zsetValue(db, key)
	if !ok {
		return errV
	}
	if z == nil {
		return intReply(0)
	}
	var removed int64
	for _, m := range cmd.Args[1:] {
		if z.remove(m) {
			removed++
		}
	}
	if removed > 0 {
		db.touch(notifyZset, "zrem", key)
		db.removeIfEmpty(key)
	}
	return intReply(removed)
}

func zremRange(conn *Connection, key string, victims []zMember) RedisValue {
	db := conn.database()
	e := db.lookup(key)
	if e == nil {
		return intReply(0)
	}
	for _, m := range victims {
		e.zset.remove(m.member)
	}
	if len(victims) > 0 {
		db.touch(notifyZset, "zremrangebyscore", key)
		db.removeIfEmpty(key)
	}
	return intReply(int64(len(victims)))
}

func cmdZRemRangeByRank(conn *Connection, cmd *Command) RedisValue {
	z, errV, ok := zsetValue(conn.database(), cmd.Args[0])
	if !ok {
		return errV
	}
	start, okS := parseInt(cmd.Args[1])
	stop, okE := parseInt(cmd.Args[2])
	if !okS || !okE {
		return errReply(msgNotInt)
	}
	if z == nil {
		return intReply(0)
	}
	ordered := z.sorted()
	from, to, okW := listWindow(start, stop, int64(len(ordered)))
	if !okW {
		return intReply(0)
	}
	return zremRange(conn, cmd.Args[0], ordered[from:to+1])
}

func cmdZRemRangeByScore(conn *Connection, cmd *Command) RedisValue {
	z, errV, ok := zsetValue(conn.database(), cmd.Args[0])
	if !ok {
		return errV
	}
	min, okMin := parseScoreBound(cmd.Args[1])
	max, okMax := parseScoreBound(cmd.Args[2])
	if !okMin || !okMax {
		return errReply(msgScoreRange)
	}
	if z == nil {
		return intReply(0)
	}
	return zremRange(conn, cmd.Args[0], z.rangeByScore(min, max, false))
}

func cmdZRemRangeByLex(conn *Connection, cmd *Command) RedisValue {
	z, errV, ok := zsetValue(conn.database(), cmd.Args[0])
	if !ok {
		return errV
	}
	min, okMin := parseLexBound(cmd.Args[1])
	max, okMax := parseLexBound(cmd.Args[2])
	if !okMin || !okMax {
		return errReply(msgLexRange)
	}
	if z == nil {
		return intReply(0)
	}
	return zremRange(conn, cmd.Args[0], z.rangeByLex(min, max, false))
}

func zpopGeneric(conn *Connection, key string, count int64, max bool) ([]zMember, RedisValue) {
	db := conn.database()
	e := db.lookup(key)
	if wrongKind(e, kindZSet) {
		return nil, wrongTypeReply()
	}
	if e == nil {
		return nil, RedisValue{}
	}
	ordered := e.zset.sorted()
	if max {
		reverseMembers(ordered)
	}
	if count > int64(len(ordered)) {
		count = int64(len(ordered))
	}
	popped := ordered[:count]
	for _, m := range popped {
		e.zset.remove(m.member)
	}
	if len(popped) > 0 {
		event := "zpopmin"
		if max {
			event = "zpopmax"
		}
		db.touch(notifyZset, event, key)
		db.removeIfEmpty(key)
	}
	return popped, RedisValue{}
}

func zpopCommand(conn *Connection, cmd *Command, max bool) RedisValue {
	count := int64(1)
	if len(cmd.Args) == 2 {
		n, ok := parseInt(cmd.Args[1])
		if !ok || n < 0 {
			return errReply("ERR value is out of range, must be positive")
		}
		count = n
	} else if len(cmd.Args) > 2 {
		return wrongArgsReply(strings.ToLower(cmd.Name))
	}
	popped, errV := zpopGeneric(conn, cmd.Args[0], count, max)
	if errV.Type == ErrorReply {
		return errV
	}
	return zMemberReply(popped, true)
}

func cmdZPopMin(conn *Connection, cmd *Command) RedisValue {
	return zpopCommand(conn, cmd, false)
}

func cmdZPopMax(conn *Connection, cmd *Command) RedisValue {
	return zpopCommand(conn, cmd, true)
}

func blockingZPop(conn *Connection, cmd *Command, max bool) RedisValue {
	s := conn.server
	keys := cmd.Args[:len(cmd.Args)-1]
	timeout, ok := parseTimeout(cmd.Args[len(cmd.Args)-1])
	if !ok {
		return errReply(msgNegTimeout)
	}
	return s.blockOnKeys(conn, keys, timeout, nilArrayReply(), func() (RedisValue, bool) {
		for _, key := range keys {
			popped, errV := zpopGeneric(conn, key, 1, max)
			if errV.Type == ErrorReply {
				return errV, true
			}
			if len(popped) == 1 {
				return arrayReply(bulkReply(key), bulkReply(popped[0].member), doubleReply(popped[0].score)), true
			}
		}
		return RedisValue{}, false
	})
}

func cmdBZPopMin(conn *Connection, cmd *Command) RedisValue {
	return blockingZPop(conn, cmd, false)
}

func cmdBZPopMax(conn *Connection, cmd *Command) RedisValue {
	return blockingZPop(conn, cmd, true)
}

func cmdZRandMember(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	z, errV, ok := zsetValue(db, cmd.Args[0])
	if !ok {
		return errV
	}

	hasCount := len(cmd.Args) > 1
	count := int64(1)
	withScores := false
	if hasCount {
		n, okC := parseInt(cmd.Args[1])
		if !okC {
			return errReply(msgNotInt)
		}
		count = n
		if len(cmd.Args) == 3 {
			if !strings.EqualFold(cmd.Args[2], "WITHSCORES") {
				return syntaxErrReply()
			}
			withScores = true
		} else if len(cmd.Args) > 3 {
			return syntaxErrReply()
		}
	}

	if z == nil || z.len() == 0 {
		if hasCount {
			return strArrayReply(nil)
		}
		return nilReply()
	}

	picked := randomSample(db.srv, sortedKeys(z.members), count)
	if !hasCount {
		return bulkReply(picked[0])
	}
	if !withScores {
		return strArrayReply(picked)
	}
	out := []RedisValue{}
	for _, m := range picked {
		score, _ := z.score(m)
		out = append(out, bulkReply(m), doubleReply(score))
	}
	return arrayReply(out...)
}

/*
Multi-key algebra: ZUNION/ZINTER/ZDIFF and their STORE variants. Plain
sets participate with an implicit score of 1.
*/

func zsetOperand(db *DB, key string) (map[string]float64, RedisValue, bool) {
	e := db.lookup(key)
	if e == nil {
		return map[string]float64{}, RedisValue{}, true
	}
	switch e.kind {
	case kindZSet:
		out := make(map[string]float64, e.zset.len())
		for m, s := range e.zset.members {
			out[m] = s
		}
		return out, RedisValue{}, true
	case kindSet:
		out := make(map[string]float64, len(e.set))
		for m := range e.set {
			out[m] = 1
		}
		return out, RedisValue{}, true
	}
	return nil, wrongTypeReply(), false
}

func zsetAlgebra(conn *Connection, cmd *Command, op string, store bool) RedisValue {
	db := conn.database()
	args := cmd.Args
	dst := ""
	if store {
		dst = args[0]
		args = args[1:]
	}
	numKeys, ok := parseInt(args[0])
	if !ok || numKeys <= 0 || int64(len(args)) < numKeys+1 {
		return errReply("ERR at least 1 input key is needed for " + strings.ToUpper(cmd.Name))
	}
	keys := args[1 : numKeys+1]
	rest := args[numKeys+1:]

	weights := make([]float64, numKeys)
	for i := range weights {
		weights[i] = 1
	}
	aggregate := "SUM"
	withScores := false
	for len(rest) > 0 {
		switch strings.ToUpper(rest[0]) {
		case "WEIGHTS":
			if op == "DIFF" {
				return syntaxErrReply()
			}
			if int64(len(rest)) < numKeys+1 {
				return syntaxErrReply()
			}
			for i := int64(0); i < numKeys; i++ {
				w, okW := parseFloat(rest[1+i])
				if !okW {
					return errReply("ERR weight value is not a float")
				}
				weights[i] = w
			}
			rest = rest[numKeys+1:]
		case "AGGREGATE":
			if op == "DIFF" || len(rest) < 2 {
				return syntaxErrReply()
			}
			aggregate = strings.ToUpper(rest[1])
			switch aggregate {
			case "SUM", "MIN", "MAX":
			default:
				return syntaxErrReply()
			}
			rest = rest[2:]
		case "WITHSCORES":
			if store {
				return syntaxErrReply()
			}
			withScores = true
			rest = rest[1:]
		default:
			return syntaxErrReply()
		}
	}

	operands := make([]map[string]float64, numKeys)
	for i, key := range keys {
		operand, errV, okOp := zsetOperand(db, key)
		if !okOp {
			return errV
		}
		for m := range operand {
			operand[m] *= weights[i]
		}
		operands[i] = operand
	}

	result := make(map[string]float64)
	switch op {
	case "UNION":
		for _, operand := range operands {
			for m, s := range operand {
				if cur, exists := result[m]; exists {
					result[m] = aggregateScores(aggregate, cur, s)
				} else {
					result[m] = s
				}
			}
		}
	case "INTER":
		for m, s := range operands[0] {
			acc := s
			in := true
			for _, operand := range operands[1:] {
				other, exists := operand[m]
				if !exists {
					in = false
					break
				}
				acc = aggregateScores(aggregate, acc, other)
			}
			if in {
				result[m] = acc
			}
		}
	case "DIFF":
		for m, s := range operands[0] {
			result[m] = s
		}
		for _, operand := range operands[1:] {
			for m := range operand {
				delete(result, m)
			}
		}
	}

	if store {
		if len(result) == 0 {
			if db.remove(dst) {
				db.srv.emitEvent(db.id, notifyGeneric, "del", dst)
			}
			return intReply(0)
		}
		db.keys[dst] = &entry{kind: kindZSet, zset: &sortedSet{members: result}}
		db.touch(notifyZset, "z"+strings.ToLower(op)+"store", dst)
		return intReply(int64(len(result)))
	}

	view := &sortedSet{members: result}
	return zMemberReply(view.sorted(), withScores)
}

func cmdZUnion(conn *Connection, cmd *Command) RedisValue {
	return zsetAlgebra(conn, cmd, "UNION", false)
}

func cmdZInter(conn *Connection, cmd *Command) RedisValue {
	return zsetAlgebra(conn, cmd, "INTER", false)
}

func cmdZDiff(conn *Connection, cmd *Command) RedisValue {
	return zsetAlgebra(conn, cmd, "DIFF", false)
}

func cmdZUnionStore(conn *Connection, cmd *Command) RedisValue {
	return zsetAlgebra(conn, cmd, "UNION", true)
}

func cmdZInterStore(conn *Connection, cmd *Command) RedisValue {
	return zsetAlgebra(conn, cmd, "INTER", true)
}

func cmdZDiffStore(conn *Connection, cmd *Command) RedisValue {
	return zsetAlgebra(conn, cmd, "DIFF", true)
}

func cmdZInterCard(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	numKeys, ok := parseInt(cmd.Args[0])
	if !ok || numKeys <= 0 || int64(len(cmd.Args)) < numKeys+1 {
		return errReply("ERR numkeys should be greater than 0")
	}
	keys := cmd.Args[1 : numKeys+1]
	rest := cmd.Args[numKeys+1:]
	limit := int64(0)
	if len(rest) == 2 && strings.EqualFold(rest[0], "LIMIT") {
		n, okL := parseInt(rest[1])
		if !okL || n < 0 {
			return errReply("ERR LIMIT can't be negative")
		}
		limit = n
	} else if len(rest) != 0 {
		return syntaxErrReply()
	}

	first, errV, okOp := zsetOperand(db, keys[0])
	if !okOp {
		return errV
	}
	card := int64(0)
	for m := range first {
		in := true
		for _, key := range keys[1:] {
			operand, errK, okK := zsetOperand(db, key)
			if !okK {
				return errK
			}
			if _, exists := operand[m]; !exists {
				in = false
				break
			}
		}
		if in {
			card++
			if limit > 0 && card >= limit {
				return intReply(limit)
			}
		}
	}
	return intReply(card)
}

func cmdZScan(conn *Connection, cmd *Command) RedisValue {
	z, errV, ok := zsetValue(conn.database(), cmd.Args[0])
	if !ok {
		return errV
	}
	cursor, match, count, _, errScan := parseScanArgs(cmd.Args[1:], false)
	if errScan.Type == ErrorReply {
		return errScan
	}
	if z == nil {
		return arrayReply(bulkReply("0"), strArrayReply(nil))
	}
	next, page := scanStep(sortedKeys(z.members), cursor, count, match)
	out := []string{}
	for _, m := range page {
		score, _ := z.score(m)
		out = append(out, m, formatFloat(score))
	}
	return arrayReply(bulkReply(formatInt(next)), strArrayReply(out))
}
