/*
Package fakeredis transaction handlers.

WATCH captures the per-key write version; EXEC compares the captured
versions under the execution lock, so the queued commands run as one
atomic unit with no interleaving from other connections. Runtime errors
inside EXEC land in their result slot; there is no rollback.
*/
package fakeredis

func (s *Server) registerTransactionHandlers() {
	s.register("MULTI", 1, cmdMulti)
	s.register("EXEC", 1, cmdExec)
	s.register("DISCARD", 1, cmdDiscard)
	s.register("WATCH", -2, cmdWatch)
	s.register("UNWATCH", 1, cmdUnwatch)
}

func cmdMulti(conn *Connection, cmd *Command) RedisValue {
	if conn.tx != txNone {
		return errReply("ERR MULTI calls can not be nested")
	}
	conn.tx = txQueuing
	conn.queued = nil
	return okReply()
}

func cmdExec(conn *Connection, cmd *Command) RedisValue {
	s := conn.server
	switch conn.tx {
	case txNone:
		return errReply("ERR EXEC without MULTI")
	case txDirty:
		conn.resetTx()
		return errReply("EXECABORT Transaction discarded because of previous errors.")
	}

	// Watched-key validation. A lazy expire between WATCH and EXEC
	// counts as a modification, so resolve each key first.
	for wk, captured := range conn.watches {
		db := s.dbs[wk.db]
		db.lookup(wk.key)
		if db.versions[wk.key] != captured {
			conn.resetTx()
			return nilArrayReply()
		}
	}

	queued := conn.queued
	conn.resetTx()
	conn.noBlock = true
	defer func() { conn.noBlock = false }()

	results := make([]RedisValue, len(queued))
	for i, qcmd := range queued {
		results[i] = s.execCommand(conn, qcmd)
	}
	return arrayReply(results...)
}

func cmdDiscard(conn *Connection, cmd *Command) RedisValue {
	if conn.tx == txNone {
		return errReply("ERR DISCARD without MULTI")
	}
	conn.resetTx()
	return okReply()
}

func cmdWatch(conn *Connection, cmd *Command) RedisValue {
	if conn.tx != txNone {
		return errReply("ERR WATCH inside MULTI is not allowed")
	}
	db := conn.database()
	if conn.watches == nil {
		conn.watches = make(map[watchKey]uint64)
	}
	for _, key := range cmd.Args {
		db.lookup(key) // settle lazy expiry before capturing
		conn.watches[watchKey{conn.db, key}] = db.versions[key]
	}
	return okReply()
}

func cmdUnwatch(conn *Connection, cmd *Command) RedisValue {
	conn.watches = nil
	return okReply()
}
