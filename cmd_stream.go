/*
Package fakeredis stream-family handlers, including consumer groups and
the blocking XREAD forms.
*/
package fakeredis

import (
	"fmt"
	"strings"
)

func (s *Server) registerStreamHandlers() {
	s.register("XADD", -5, cmdXAdd)
	s.register("XLEN", 2, cmdXLen)
	s.register("XRANGE", -4, cmdXRange)
	s.register("XREVRANGE", -4, cmdXRevRange)
	s.register("XDEL", -3, cmdXDel)
	s.register("XTRIM", -4, cmdXTrim)
	s.register("XSETID", -3, cmdXSetID)
	s.register("XREAD", -4, cmdXRead)
	s.register("XGROUP", -2, cmdXGroup)
	s.register("XREADGROUP", -7, cmdXReadGroup)
	s.register("XACK", -4, cmdXAck)
	s.register("XPENDING", -3, cmdXPending)
	s.register("XCLAIM", -6, cmdXClaim)
	s.register("XAUTOCLAIM", -7, cmdXAutoClaim)
	s.register("XINFO", -2, cmdXInfo)
}

// streamValue resolves a key to its stream; nil when missing
func streamValue(db *DB, key string) (*stream, RedisValue, bool) {
	e := db.lookup(key)
	if wrongKind(e, kindStream) {
		return nil, wrongTypeReply(), false
	}
	if e == nil {
		return nil, RedisValue{}, true
	}
	return e.stream, RedisValue{}, true
}

// entryReply renders one stream entry as [id, [f, v, ...]]
func entryReply(e streamEntry) RedisValue {
	return arrayReply(bulkReply(e.id.String()), strArrayReply(e.fields))
}

func entriesReply(entries []streamEntry) RedisValue {
	out := make([]RedisValue, len(entries))
	for i, e := range entries {
		out[i] = entryReply(e)
	}
	return arrayReply(out...)
}

// parseTrimSpec consumes a MAXLEN/MINID clause; returns the remaining
// args. The approximation marker (~) is accepted and treated exactly.
func parseTrimSpec(args []string) (kind string, threshold string, rest []string, errV RedisValue) {
	kind = strings.ToUpper(args[0])
	if kind != "MAXLEN" && kind != "MINID" {
		return "", "", nil, syntaxErrReply()
	}
	args = args[1:]
	if len(args) > 0 && (args[0] == "=" || args[0] == "~") {
		args = args[1:]
	}
	if len(args) == 0 {
		return "", "", nil, syntaxErrReply()
	}
	threshold = args[0]
	args = args[1:]
	if len(args) >= 2 && strings.EqualFold(args[0], "LIMIT") {
		// LIMIT only matters for the approximate form; accepted and
		// ignored since trimming here is always exact.
		args = args[2:]
	}
	return kind, threshold, args, RedisValue{}
}

func applyTrim(db *DB, key string, st *stream, kind, threshold string) (int64, RedisValue) {
	switch kind {
	case "MAXLEN":
		n, ok := parseInt(threshold)
		if !ok || n < 0 {
			return 0, errReply(msgNotInt)
		}
		return st.trimMaxLen(n), RedisValue{}
	case "MINID":
		id, _, ok := parseStreamID(threshold, 0)
		if !ok {
			return 0, errReply("ERR Invalid stream ID specified as stream command argument")
		}
		return st.trimMinID(id), RedisValue{}
	}
	return 0, syntaxErrReply()
}

func cmdXAdd(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]

	args := cmd.Args[1:]
	noMkStream := false
	trimKind, trimThreshold := "", ""
	for len(args) > 0 {
		upper := strings.ToUpper(args[0])
		if upper == "NOMKSTREAM" {
			noMkStream = true
			args = args[1:]
			continue
		}
		if upper == "MAXLEN" || upper == "MINID" {
			var errV RedisValue
			trimKind, trimThreshold, args, errV = parseTrimSpec(args)
			if errV.Type == ErrorReply {
				return errV
			}
			continue
		}
		break
	}
	if len(args) < 3 || (len(args)-1)%2 != 0 {
		return wrongArgsReply("xadd")
	}
	idArg := args[0]
	fields := args[1:]

	e := db.lookup(key)
	if wrongKind(e, kindStream) {
		return wrongTypeReply()
	}
	if e == nil && noMkStream {
		return nilReply()
	}
	existed := e != nil
	e, _ = db.getOrCreate(key, kindStream)
	st := e.stream
	// A failed add must not leave behind a stream it just created.
	dropIfFresh := func() {
		if !existed {
			delete(db.keys, key)
		}
	}

	var id streamID
	if idArg == "*" {
		id = st.nextAutoID(db.nowMs())
	} else {
		parsed, starSeq, ok := parseStreamID(idArg, 0)
		if !ok {
			dropIfFresh()
			return errReply("ERR Invalid stream ID specified as stream command argument")
		}
		if starSeq && parsed.ms == st.lastID.ms {
			parsed.seq = st.lastID.seq + 1
		}
		id = parsed
		if !st.lastID.less(id) {
			dropIfFresh()
			return errReply("ERR The ID specified in XADD is equal or smaller than the target stream top item")
		}
	}

	st.add(id, append([]string{}, fields...))
	if trimKind != "" {
		if _, errV := applyTrim(db, key, st, trimKind, trimThreshold); errV.Type == ErrorReply {
			return errV
		}
	}
	db.touch(notifyStream, "xadd", key)
	return bulkReply(id.String())
}

func cmdXLen(conn *Connection, cmd *Command) RedisValue {
	st, errV, ok := streamValue(conn.database(), cmd.Args[0])
	if !ok {
		return errV
	}
	if st == nil {
		return intReply(0)
	}
	return intReply(int64(len(st.entries)))
}

func xrangeGeneric(conn *Connection, cmd *Command, rev bool) RedisValue {
	st, errV, ok := streamValue(conn.database(), cmd.Args[0])
	if !ok {
		return errV
	}
	startArg, endArg := cmd.Args[1], cmd.Args[2]
	if rev {
		startArg, endArg = cmd.Args[2], cmd.Args[1]
	}
	start, startExcl, okS := parseRangeID(startArg, 0)
	end, endExcl, okE := parseRangeID(endArg, ^uint64(0))
	if !okS || !okE {
		return errReply("ERR Invalid stream ID specified as stream command argument")
	}
	count := int64(0)
	if len(cmd.Args) > 3 {
		if len(cmd.Args) != 5 || !strings.EqualFold(cmd.Args[3], "COUNT") {
			return syntaxErrReply()
		}
		n, okC := parseInt(cmd.Args[4])
		if !okC {
			return errReply(msgNotInt)
		}
		count = n
	}
	if st == nil {
		return arrayReply()
	}
	return entriesReply(st.rangeEntries(start, end, startExcl, endExcl, count, rev))
}

func cmdXRange(conn *Connection, cmd *Command) RedisValue {
	return xrangeGeneric(conn, cmd, false)
}

func cmdXRevRange(conn *Connection, cmd *Command) RedisValue {
	return xrangeGeneric(conn, cmd, true)
}

func cmdXDel(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	st, errV, ok := streamValue(db, cmd.Args[0])
	if !ok {
		return errV
	}
	if st == nil {
		return intReply(0)
	}
	ids := make([]streamID, 0, len(cmd.Args)-1)
	for _, arg := range cmd.Args[1:] {
		id, _, okID := parseStreamID(arg, 0)
		if !okID {
			return errReply("ERR Invalid stream ID specified as stream command argument")
		}
		ids = append(ids, id)
	}
	removed := st.delete(ids)
	if removed > 0 {
		db.touch(notifyStream, "xdel", cmd.Args[0])
	}
	return intReply(removed)
}

func cmdXTrim(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	st, errV, ok := streamValue(db, cmd.Args[0])
	if !ok {
		return errV
	}
	kind, threshold, rest, errSpec := parseTrimSpec(cmd.Args[1:])
	if errSpec.Type == ErrorReply {
		return errSpec
	}
	if len(rest) != 0 {
		return syntaxErrReply()
	}
	if st == nil {
		return intReply(0)
	}
	removed, errTrim := applyTrim(db, cmd.Args[0], st, kind, threshold)
	if errTrim.Type == ErrorReply {
		return errTrim
	}
	if removed > 0 {
		db.touch(notifyStream, "xtrim", cmd.Args[0])
	}
	return intReply(removed)
}

func cmdXSetID(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	st, errV, ok := streamValue(db, cmd.Args[0])
	if !ok {
		return errV
	}
	if st == nil {
		return errReply("ERR The XSETID command requires the key to exist.")
	}
	id, _, okID := parseStreamID(cmd.Args[1], 0)
	if !okID {
		return errReply("ERR Invalid stream ID specified as stream command argument")
	}
	if len(st.entries) > 0 && id.less(st.entries[len(st.entries)-1].id) {
		return errReply("ERR The ID specified in XSETID is smaller than the target stream top item")
	}
	st.lastID = id
	db.touch(notifyStream, "xsetid", cmd.Args[0])
	return okReply()
}

/*
XREAD / XREADGROUP
*/

type xreadSpec struct {
	count    int64
	blockMs  int64
	hasBlock bool
	noAck    bool
	group    string
	consumer string
	keys     []string
	ids      []string
}

func parseXReadArgs(args []string, group bool) (xreadSpec, RedisValue) {
	spec := xreadSpec{}
	if group {
		if len(args) < 3 || !strings.EqualFold(args[0], "GROUP") {
			return spec, syntaxErrReply()
		}
		spec.group, spec.consumer = args[1], args[2]
		args = args[3:]
	}
	for len(args) > 0 {
		switch strings.ToUpper(args[0]) {
		case "COUNT":
			if len(args) < 2 {
				return spec, syntaxErrReply()
			}
			n, ok := parseInt(args[1])
			if !ok {
				return spec, errReply(msgNotInt)
			}
			spec.count = n
			args = args[2:]
		case "BLOCK":
			if len(args) < 2 {
				return spec, syntaxErrReply()
			}
			n, ok := parseInt(args[1])
			if !ok || n < 0 {
				return spec, errReply("ERR timeout is not an integer or out of range")
			}
			spec.blockMs = n
			spec.hasBlock = true
			args = args[2:]
		case "NOACK":
			if !group {
				return spec, syntaxErrReply()
			}
			spec.noAck = true
			args = args[1:]
		case "STREAMS":
			args = args[1:]
			if len(args) == 0 || len(args)%2 != 0 {
				return spec, errReply("ERR Unbalanced XREAD list of streams: for each stream key an ID or '$' must be specified.")
			}
			half := len(args) / 2
			spec.keys = args[:half]
			spec.ids = args[half:]
			return spec, RedisValue{}
		default:
			return spec, syntaxErrReply()
		}
	}
	return spec, syntaxErrReply()
}

func cmdXRead(conn *Connection, cmd *Command) RedisValue {
	s := conn.server
	spec, errV := parseXReadArgs(cmd.Args, false)
	if errV.Type == ErrorReply {
		return errV
	}

	// Resolve $ markers against the current tip so a blocking read only
	// sees entries added after this call. "+" is not a recognized marker
	// and fails as an invalid id.
	db := conn.database()
	from := make([]streamID, len(spec.keys))
	for i, key := range spec.keys {
		idArg := spec.ids[i]
		if idArg == "$" {
			st, errK, ok := streamValue(db, key)
			if !ok {
				return errK
			}
			if st != nil {
				from[i] = st.lastID
			}
			continue
		}
		id, _, ok := parseStreamID(idArg, 0)
		if !ok {
			return errReply("ERR Invalid stream ID specified as stream command argument")
		}
		from[i] = id
	}

	attempt := func() (RedisValue, bool) {
		results := []RedisValue{}
		for i, key := range spec.keys {
			st, errK, ok := streamValue(conn.database(), key)
			if !ok {
				return errK, true
			}
			if st == nil {
				continue
			}
			entries := st.after(from[i], spec.count)
			if len(entries) > 0 {
				results = append(results, arrayReply(bulkReply(key), entriesReply(entries)))
			}
		}
		if len(results) == 0 {
			return RedisValue{}, false
		}
		return arrayReply(results...), true
	}

	if !spec.hasBlock {
		if v, ok := attempt(); ok {
			return v
		}
		return nilArrayReply()
	}
	return s.blockOnKeys(conn, spec.keys, float64(spec.blockMs)/1000.0, nilArrayReply(), attempt)
}

func cmdXGroup(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	sub := strings.ToUpper(cmd.Args[0])
	args := cmd.Args[1:]

	switch sub {
	case "CREATE":
		if len(args) < 3 {
			return wrongArgsReply("xgroup")
		}
		key, group, startArg := args[0], args[1], args[2]
		mkStream := len(args) == 4 && strings.EqualFold(args[3], "MKSTREAM")
		st, errV, ok := streamValue(db, key)
		if !ok {
			return errV
		}
		if st == nil {
			if !mkStream {
				return errReply("ERR The XGROUP subcommand requires the key to exist. Note that for CREATE you may want to use the MKSTREAM option to create an empty stream automatically.")
			}
			e, _ := db.getOrCreate(key, kindStream)
			st = e.stream
			db.touch(notifyStream, "xgroup-create", key)
		}
		var start streamID
		if startArg == "$" {
			start = st.lastID
		} else {
			id, _, okID := parseStreamID(startArg, 0)
			if !okID {
				return errReply("ERR Invalid stream ID specified as stream command argument")
			}
			start = id
		}
		if _, exists := st.groups[group]; exists {
			return errReply(msgBusyGroup)
		}
		st.groups[group] = newConsumerGroup(start)
		return okReply()

	case "DESTROY":
		if len(args) != 2 {
			return wrongArgsReply("xgroup")
		}
		st, errV, ok := streamValue(db, args[0])
		if !ok {
			return errV
		}
		if st == nil {
			return intReply(0)
		}
		if _, exists := st.groups[args[1]]; !exists {
			return intReply(0)
		}
		delete(st.groups, args[1])
		return intReply(1)

	case "CREATECONSUMER":
		if len(args) != 3 {
			return wrongArgsReply("xgroup")
		}
		st, g, errV := lookupGroup(db, args[0], args[1])
		if errV.Type == ErrorReply {
			return errV
		}
		_ = st
		if _, exists := g.consumers[args[2]]; exists {
			return intReply(0)
		}
		g.ensureConsumer(args[2], db.nowMs())
		return intReply(1)

	case "DELCONSUMER":
		if len(args) != 3 {
			return wrongArgsReply("xgroup")
		}
		_, g, errV := lookupGroup(db, args[0], args[1])
		if errV.Type == ErrorReply {
			return errV
		}
		var pending int64
		for id, p := range g.pending {
			if p.consumer == args[2] {
				delete(g.pending, id)
				pending++
			}
		}
		delete(g.consumers, args[2])
		return intReply(pending)

	case "SETID":
		if len(args) < 3 {
			return wrongArgsReply("xgroup")
		}
		st, g, errV := lookupGroup(db, args[0], args[1])
		if errV.Type == ErrorReply {
			return errV
		}
		if args[2] == "$" {
			g.lastDelivered = st.lastID
			return okReply()
		}
		id, _, okID := parseStreamID(args[2], 0)
		if !okID {
			return errReply("ERR Invalid stream ID specified as stream command argument")
		}
		g.lastDelivered = id
		return okReply()
	}
	return errReply(fmt.Sprintf("ERR Unknown XGROUP subcommand or wrong number of arguments for '%s'", cmd.Args[0]))
}

// lookupGroup resolves a stream and one of its consumer groups,
// yielding the canonical NOGROUP error when either is missing
func lookupGroup(db *DB, key, group string) (*stream, *consumerGroup, RedisValue) {
	st, errV, ok := streamValue(db, key)
	if !ok {
		return nil, nil, errV
	}
	if st == nil {
		return nil, nil, errReply(fmt.Sprintf("NOGROUP No such key '%s' or consumer group '%s' in XREADGROUP with GROUP option", key, group))
	}
	g, exists := st.groups[group]
	if !exists {
		return nil, nil, errReply(fmt.Sprintf("NOGROUP No such key '%s' or consumer group '%s' in XREADGROUP with GROUP option", key, group))
	}
	return st, g, RedisValue{}
}

func cmdXReadGroup(conn *Connection, cmd *Command) RedisValue {
	s := conn.server
	spec, errV := parseXReadArgs(cmd.Args, true)
	if errV.Type == ErrorReply {
		return errV
	}

	attempt := func() (RedisValue, bool) {
		db := conn.database()
		now := db.nowMs()
		results := []RedisValue{}
		for i, key := range spec.keys {
			st, g, errG := lookupGroup(db, key, spec.group)
			if errG.Type == ErrorReply {
				return errG, true
			}
			g.ensureConsumer(spec.consumer, now)

			idArg := spec.ids[i]
			if idArg == ">" {
				entries := st.after(g.lastDelivered, spec.count)
				if len(entries) == 0 {
					continue
				}
				for _, e := range entries {
					g.lastDelivered = e.id
					if !spec.noAck {
						if p, exists := g.pending[e.id]; exists {
							p.consumer = spec.consumer
							p.deliveryTime = now
							p.deliveryCount++
						} else {
							g.pending[e.id] = &pendingEntry{id: e.id, consumer: spec.consumer, deliveryTime: now, deliveryCount: 1}
						}
					}
				}
				results = append(results, arrayReply(bulkReply(key), entriesReply(entries)))
				continue
			}

			// History replay: the consumer's own pending entries after
			// the given id. Never blocks.
			from, _, okID := parseStreamID(idArg, 0)
			if !okID {
				return errReply("ERR Invalid stream ID specified as stream command argument"), true
			}
			replay := []RedisValue{}
			for _, p := range g.pendingSorted() {
				if p.consumer != spec.consumer || !from.less(p.id) {
					continue
				}
				if e := st.entryAt(p.id); e != nil {
					replay = append(replay, entryReply(*e))
				} else {
					replay = append(replay, arrayReply(bulkReply(p.id.String()), nilArrayReply()))
				}
				if spec.count > 0 && int64(len(replay)) >= spec.count {
					break
				}
			}
			results = append(results, arrayReply(bulkReply(key), arrayReply(replay...)))
		}
		if len(results) == 0 {
			return RedisValue{}, false
		}
		return arrayReply(results...), true
	}

	if !spec.hasBlock {
		if v, ok := attempt(); ok {
			return v
		}
		return nilArrayReply()
	}
	return s.blockOnKeys(conn, spec.keys, float64(spec.blockMs)/1000.0, nilArrayReply(), attempt)
}

func cmdXAck(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	st, errV, ok := streamValue(db, cmd.Args[0])
	if !ok {
		return errV
	}
	if st == nil {
		return intReply(0)
	}
	g, exists := st.groups[cmd.Args[1]]
	if !exists {
		return intReply(0)
	}
	var acked int64
	for _, arg := range cmd.Args[2:] {
		id, _, okID := parseStreamID(arg, 0)
		if !okID {
			return errReply("ERR Invalid stream ID specified as stream command argument")
		}
		if _, pending := g.pending[id]; pending {
			delete(g.pending, id)
			acked++
		}
	}
	return intReply(acked)
}

func cmdXPending(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	st, g, errV := lookupGroup(db, cmd.Args[0], cmd.Args[1])
	if errV.Type == ErrorReply {
		return errV
	}
	_ = st

	if len(cmd.Args) == 2 {
		// Summary form: count, smallest id, greatest id, per-consumer counts.
		pel := g.pendingSorted()
		if len(pel) == 0 {
			return arrayReply(intReply(0), nilReply(), nilReply(), nilArrayReply())
		}
		perConsumer := map[string]int64{}
		for _, p := range pel {
			perConsumer[p.consumer]++
		}
		consumers := []RedisValue{}
		for _, name := range sortedKeys(perConsumer) {
			consumers = append(consumers, arrayReply(bulkReply(name), bulkReply(formatInt(perConsumer[name]))))
		}
		return arrayReply(
			intReply(int64(len(pel))),
			bulkReply(pel[0].id.String()),
			bulkReply(pel[len(pel)-1].id.String()),
			arrayReply(consumers...),
		)
	}

	// Extended form: [IDLE ms] start end count [consumer]
	args := cmd.Args[2:]
	idle := int64(0)
	if strings.EqualFold(args[0], "IDLE") {
		if len(args) < 2 {
			return syntaxErrReply()
		}
		n, okI := parseInt(args[1])
		if !okI {
			return errReply(msgNotInt)
		}
		idle = n
		args = args[2:]
	}
	if len(args) < 3 {
		return syntaxErrReply()
	}
	start, startExcl, okS := parseRangeID(args[0], 0)
	end, endExcl, okE := parseRangeID(args[1], ^uint64(0))
	count, okC := parseInt(args[2])
	if !okS || !okE || !okC {
		return errReply("ERR Invalid stream ID specified as stream command argument")
	}
	consumerFilter := ""
	if len(args) == 4 {
		consumerFilter = args[3]
	} else if len(args) > 4 {
		return syntaxErrReply()
	}

	now := db.nowMs()
	out := []RedisValue{}
	for _, p := range g.pendingSorted() {
		if p.id.less(start) || (startExcl && p.id == start) {
			continue
		}
		if end.less(p.id) || (endExcl && p.id == end) {
			continue
		}
		if consumerFilter != "" && p.consumer != consumerFilter {
			continue
		}
		if idle > 0 && now-p.deliveryTime < idle {
			continue
		}
		out = append(out, arrayReply(
			bulkReply(p.id.String()),
			bulkReply(p.consumer),
			intReply(now-p.deliveryTime),
			intReply(p.deliveryCount),
		))
		if int64(len(out)) >= count {
			break
		}
	}
	return arrayReply(out...)
}

func cmdXClaim(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	st, g, errV := lookupGroup(db, cmd.Args[0], cmd.Args[1])
	if errV.Type == ErrorReply {
		return errV
	}
	consumerName := cmd.Args[2]
	minIdle, ok := parseInt(cmd.Args[3])
	if !ok {
		return errReply(msgNotInt)
	}

	ids := []streamID{}
	args := cmd.Args[4:]
	for len(args) > 0 {
		id, _, okID := parseStreamID(args[0], 0)
		if !okID {
			break
		}
		ids = append(ids, id)
		args = args[1:]
	}
	if len(ids) == 0 {
		return errReply("ERR Invalid stream ID specified as stream command argument")
	}

	justID := false
	force := false
	now := db.nowMs()
	setIdle, setTime, setRetry := int64(-1), int64(-1), int64(-1)
	for len(args) > 0 {
		switch strings.ToUpper(args[0]) {
		case "JUSTID":
			justID = true
			args = args[1:]
		case "FORCE":
			force = true
			args = args[1:]
		case "IDLE", "TIME", "RETRYCOUNT":
			if len(args) < 2 {
				return syntaxErrReply()
			}
			n, okN := parseInt(args[1])
			if !okN {
				return errReply(msgNotInt)
			}
			switch strings.ToUpper(args[0]) {
			case "IDLE":
				setIdle = n
			case "TIME":
				setTime = n
			case "RETRYCOUNT":
				setRetry = n
			}
			args = args[2:]
		default:
			return syntaxErrReply()
		}
	}

	g.ensureConsumer(consumerName, now)
	out := []RedisValue{}
	for _, id := range ids {
		p, pending := g.pending[id]
		exists := st.entryAt(id) != nil
		if !pending {
			if !force || !exists {
				continue
			}
			p = &pendingEntry{id: id, consumer: consumerName, deliveryTime: now, deliveryCount: 0}
			g.pending[id] = p
		}
		if pending && now-p.deliveryTime < minIdle {
			continue
		}
		if !exists {
			// Claiming a deleted entry drops it from the PEL.
			delete(g.pending, id)
			continue
		}
		p.consumer = consumerName
		p.deliveryTime = now
		if setIdle >= 0 {
			p.deliveryTime = now - setIdle
		}
		if setTime >= 0 {
			p.deliveryTime = setTime
		}
		if setRetry >= 0 {
			p.deliveryCount = setRetry
		} else if !justID {
			p.deliveryCount++
		}
		if justID {
			out = append(out, bulkReply(id.String()))
		} else {
			out = append(out, entryReply(*st.entryAt(id)))
		}
	}
	return arrayReply(out...)
}

func cmdXAutoClaim(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	st, g, errV := lookupGroup(db, cmd.Args[0], cmd.Args[1])
	if errV.Type == ErrorReply {
		return errV
	}
	consumerName := cmd.Args[2]
	minIdle, ok := parseInt(cmd.Args[3])
	if !ok {
		return errReply(msgNotInt)
	}
	start, _, okS := parseRangeID(cmd.Args[4], 0)
	if !okS {
		return errReply("ERR Invalid stream ID specified as stream command argument")
	}

	count := int64(100)
	justID := false
	args := cmd.Args[5:]
	for len(args) > 0 {
		switch strings.ToUpper(args[0]) {
		case "COUNT":
			if len(args) < 2 {
				return syntaxErrReply()
			}
			n, okC := parseInt(args[1])
			if !okC || n <= 0 {
				return errReply(msgNotInt)
			}
			count = n
			args = args[2:]
		case "JUSTID":
			justID = true
			args = args[1:]
		default:
			return syntaxErrReply()
		}
	}

	now := db.nowMs()
	g.ensureConsumer(consumerName, now)
	claimed := []RedisValue{}
	deleted := []RedisValue{}
	cursor := streamID{}
	for _, p := range g.pendingSorted() {
		if p.id.less(start) {
			continue
		}
		if int64(len(claimed)) >= count {
			cursor = p.id
			break
		}
		if now-p.deliveryTime < minIdle {
			continue
		}
		e := st.entryAt(p.id)
		if e == nil {
			delete(g.pending, p.id)
			deleted = append(deleted, bulkReply(p.id.String()))
			continue
		}
		p.consumer = consumerName
		p.deliveryTime = now
		if !justID {
			p.deliveryCount++
		}
		if justID {
			claimed = append(claimed, bulkReply(p.id.String()))
		} else {
			claimed = append(claimed, entryReply(*e))
		}
	}
	return arrayReply(bulkReply(cursor.String()), arrayReply(claimed...), arrayReply(deleted...))
}

func cmdXInfo(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	sub := strings.ToUpper(cmd.Args[0])
	if len(cmd.Args) < 2 {
		return wrongArgsReply("xinfo")
	}
	key := cmd.Args[1]

	switch sub {
	case "STREAM":
		st, errV, ok := streamValue(db, key)
		if !ok {
			return errV
		}
		if st == nil {
			return errReply(msgNoSuchKey)
		}
		first, last := nilReply(), nilReply()
		if len(st.entries) > 0 {
			first = entryReply(st.entries[0])
			last = entryReply(st.entries[len(st.entries)-1])
		}
		return mapReply(
			bulkReply("length"), intReply(int64(len(st.entries))),
			bulkReply("last-generated-id"), bulkReply(st.lastID.String()),
			bulkReply("max-deleted-entry-id"), bulkReply(st.maxDeletedID.String()),
			bulkReply("entries-added"), intReply(int64(st.addedCount)),
			bulkReply("groups"), intReply(int64(len(st.groups))),
			bulkReply("first-entry"), first,
			bulkReply("last-entry"), last,
		)
	case "GROUPS":
		st, errV, ok := streamValue(db, key)
		if !ok {
			return errV
		}
		if st == nil {
			return errReply(msgNoSuchKey)
		}
		out := []RedisValue{}
		for _, name := range sortedKeys(st.groups) {
			g := st.groups[name]
			out = append(out, mapReply(
				bulkReply("name"), bulkReply(name),
				bulkReply("consumers"), intReply(int64(len(g.consumers))),
				bulkReply("pending"), intReply(int64(len(g.pending))),
				bulkReply("last-delivered-id"), bulkReply(g.lastDelivered.String()),
			))
		}
		return arrayReply(out...)
	case "CONSUMERS":
		if len(cmd.Args) != 3 {
			return wrongArgsReply("xinfo")
		}
		_, g, errV := lookupGroup(db, key, cmd.Args[2])
		if errV.Type == ErrorReply {
			return errV
		}
		now := db.nowMs()
		out := []RedisValue{}
		for _, name := range sortedKeys(g.consumers) {
			c := g.consumers[name]
			var pending int64
			for _, p := range g.pending {
				if p.consumer == name {
					pending++
				}
			}
			out = append(out, mapReply(
				bulkReply("name"), bulkReply(name),
				bulkReply("pending"), intReply(pending),
				bulkReply("idle"), intReply(now-c.seenTime),
			))
		}
		return arrayReply(out...)
	}
	return errReply(fmt.Sprintf("ERR Unknown XINFO subcommand or wrong number of arguments for '%s'", cmd.Args[0]))
}
