/*
Package fakeredis connection-family command handlers: PING, ECHO,
SELECT, SWAPDB, AUTH, HELLO, RESET, QUIT, CLIENT and the COMMAND
introspection stubs.
*/
package fakeredis

import (
	"fmt"
	"strings"
)

func (s *Server) registerConnectionHandlers() {
	s.register("PING", -1, cmdPing)
	s.register("ECHO", 2, cmdEcho)
	s.register("SELECT", 2, cmdSelect)
	s.register("SWAPDB", 3, cmdSwapDB)
	s.register("AUTH", -2, cmdAuth)
	s.register("HELLO", -1, cmdHello)
	s.register("RESET", 1, cmdReset)
	s.register("QUIT", -1, cmdQuit)
	s.register("CLIENT", -2, cmdClient)
	s.register("COMMAND", -1, cmdCommand)
	s.register("LOLWUT", -1, cmdLolwut)
}

func cmdPing(conn *Connection, cmd *Command) RedisValue {
	if len(cmd.Args) > 1 {
		return wrongArgsReply("ping")
	}
	if conn.protover() == 2 && conn.subscriptionCount() > 0 {
		// In subscribe mode the reply is a message-shaped array.
		payload := ""
		if len(cmd.Args) == 1 {
			payload = cmd.Args[0]
		}
		return arrayReply(bulkReply("pong"), bulkReply(payload))
	}
	if len(cmd.Args) == 1 {
		return bulkReply(cmd.Args[0])
	}
	return statusReply("PONG")
}

func cmdEcho(conn *Connection, cmd *Command) RedisValue {
	return bulkReply(cmd.Args[0])
}

func cmdSelect(conn *Connection, cmd *Command) RedisValue {
	idx, ok := parseInt(cmd.Args[0])
	if !ok {
		return errReply(msgNotInt)
	}
	if idx < 0 || idx >= int64(len(conn.server.dbs)) {
		return errReply(msgInvalidDBIdx)
	}
	conn.db = int(idx)
	return okReply()
}

func cmdSwapDB(conn *Connection, cmd *Command) RedisValue {
	s := conn.server
	a, okA := parseInt(cmd.Args[0])
	b, okB := parseInt(cmd.Args[1])
	if !okA || !okB {
		return errReply("ERR invalid first DB index")
	}
	if a < 0 || a >= int64(len(s.dbs)) || b < 0 || b >= int64(len(s.dbs)) {
		return errReply(msgInvalidDBIdx)
	}
	dbA, dbB := s.dbs[a], s.dbs[b]
	for k := range dbA.keys {
		dbA.bump(k)
	}
	for k := range dbB.keys {
		dbB.bump(k)
	}
	dbA.keys, dbB.keys = dbB.keys, dbA.keys
	for k := range dbA.keys {
		dbA.bump(k)
	}
	for k := range dbB.keys {
		dbB.bump(k)
	}
	return okReply()
}

func cmdAuth(conn *Connection, cmd *Command) RedisValue {
	s := conn.server
	if len(cmd.Args) > 2 {
		return wrongArgsReply("auth")
	}
	if s.Password == "" {
		return errReply("ERR Client sent AUTH, but no password is set. Did you mean AUTH <username> <password>?")
	}
	user, pass := "default", cmd.Args[0]
	if len(cmd.Args) == 2 {
		user, pass = cmd.Args[0], cmd.Args[1]
	}
	if user != "default" || pass != s.Password {
		return errReply("WRONGPASS invalid username-password pair or user is disabled.")
	}
	conn.authenticated = true
	return okReply()
}

func cmdHello(conn *Connection, cmd *Command) RedisValue {
	s := conn.server
	args := cmd.Args
	ver := conn.protover()
	if len(args) > 0 {
		n, ok := parseInt(args[0])
		if !ok || (n != 2 && n != 3) {
			return errReply("NOPROTO unsupported protocol version")
		}
		ver = int(n)
		args = args[1:]
	}

	for len(args) > 0 {
		switch strings.ToUpper(args[0]) {
		case "AUTH":
			if len(args) < 3 {
				return syntaxErrReply()
			}
			if r := cmdAuth(conn, &Command{Name: "AUTH", Args: []string{args[1], args[2]}}); r.Type == ErrorReply {
				return r
			}
			args = args[3:]
		case "SETNAME":
			if len(args) < 2 {
				return syntaxErrReply()
			}
			conn.name = args[1]
			args = args[2:]
		default:
			return syntaxErrReply()
		}
	}

	if s.Password != "" && !conn.authenticated {
		return errReply("NOAUTH HELLO must be called with the client already authenticated, otherwise the HELLO <proto> AUTH <user> <pass> option can be used to authenticate the client and select the RESP protocol version at the same time")
	}

	conn.resp = ver
	return mapReply(
		bulkReply("server"), bulkReply("redis"),
		bulkReply("version"), bulkReply(serverVersion),
		bulkReply("proto"), intReply(int64(ver)),
		bulkReply("id"), intReply(conn.id),
		bulkReply("mode"), bulkReply("standalone"),
		bulkReply("role"), bulkReply("master"),
		bulkReply("modules"), arrayReply(),
	)
}

func cmdReset(conn *Connection, cmd *Command) RedisValue {
	s := conn.server
	conn.resetTx()
	for ch := range conn.subs {
		s.unsubscribeChannel(conn, ch)
	}
	for pat := range conn.psubs {
		s.unsubscribePattern(conn, pat)
	}
	conn.replyMode = replyOn
	conn.db = 0
	conn.name = ""
	if s.Password != "" {
		conn.authenticated = false
	}
	return statusReply("RESET")
}

func cmdQuit(conn *Connection, cmd *Command) RedisValue {
	conn.quit = true
	return okReply()
}

func cmdClient(conn *Connection, cmd *Command) RedisValue {
	s := conn.server
	sub := strings.ToUpper(cmd.Args[0])
	args := cmd.Args[1:]

	switch sub {
	case "ID":
		return intReply(conn.id)
	case "GETNAME":
		return bulkReply(conn.name)
	case "SETNAME":
		if len(args) != 1 {
			return wrongArgsReply("client|setname")
		}
		if strings.ContainsAny(args[0], " \n") {
			return errReply("ERR Client names cannot contain spaces, newlines or special characters.")
		}
		conn.name = args[0]
		return okReply()
	case "SETINFO":
		if len(args) != 2 {
			return wrongArgsReply("client|setinfo")
		}
		return okReply()
	case "INFO":
		return bulkReply(clientLine(conn))
	case "LIST":
		var b strings.Builder
		s.mu.RLock()
		for c := range s.activeConns {
			b.WriteString(clientLine(c))
			b.WriteString("\n")
		}
		s.mu.RUnlock()
		return bulkReply(b.String())
	case "KILL":
		return clientKill(conn, args)
	case "NO-EVICT", "NO-TOUCH":
		if len(args) != 1 {
			return syntaxErrReply()
		}
		switch strings.ToUpper(args[0]) {
		case "ON", "OFF":
			return okReply()
		}
		return syntaxErrReply()
	case "UNPAUSE":
		return okReply()
	case "REPLY":
		if len(args) != 1 {
			return syntaxErrReply()
		}
		switch strings.ToUpper(args[0]) {
		case "ON":
			conn.replyMode = replyOn
			return okReply()
		case "OFF":
			conn.replyMode = replyOff
			return noReply()
		case "SKIP":
			// Suppresses this reply and the next command's reply.
			if conn.replyMode == replyOn {
				conn.replyMode = replySkip
			}
			return noReply()
		}
		return syntaxErrReply()
	}
	return errReply(fmt.Sprintf("ERR Unknown CLIENT subcommand or wrong number of arguments for '%s'", cmd.Args[0]))
}

// clientLine renders one CLIENT LIST row
func clientLine(c *Connection) string {
	return fmt.Sprintf("id=%d addr=%s laddr=%s name=%s db=%d sub=%d psub=%d multi=%d resp=%d",
		c.id, c.RemoteAddr(), c.LocalAddr(), c.name, c.db,
		len(c.subs), len(c.psubs), queuedLen(c), c.protover())
}

func queuedLen(c *Connection) int {
	if c.tx == txNone {
		return -1
	}
	return len(c.queued)
}

// clientKill closes the targeted connection cooperatively: the socket
// closes now, the victim's loop notices at its next command boundary.
func clientKill(conn *Connection, args []string) RedisValue {
	s := conn.server
	if len(args) == 1 {
		// Legacy form: CLIENT KILL addr:port
		s.mu.RLock()
		defer s.mu.RUnlock()
		for c := range s.activeConns {
			if c.RemoteAddr().String() == args[0] {
				c.Close()
				return okReply()
			}
		}
		return errReply("ERR No such client")
	}

	var killed int64
	var byID int64 = -1
	byAddr := ""
	for i := 0; i+1 < len(args); i += 2 {
		switch strings.ToUpper(args[i]) {
		case "ID":
			n, ok := parseInt(args[i+1])
			if !ok {
				return errReply("ERR client-id should be greater than 0")
			}
			byID = n
		case "ADDR":
			byAddr = args[i+1]
		case "LADDR", "TYPE", "USER", "MAXAGE":
			// Accepted filters with no effect in the emulator.
		case "SKIPME":
		default:
			return syntaxErrReply()
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.activeConns {
		if byID >= 0 && c.id != byID {
			continue
		}
		if byAddr != "" && c.RemoteAddr().String() != byAddr {
			continue
		}
		if byID < 0 && byAddr == "" {
			continue
		}
		c.Close()
		killed++
	}
	return intReply(killed)
}

func cmdCommand(conn *Connection, cmd *Command) RedisValue {
	s := conn.server
	if len(cmd.Args) == 0 {
		out := []RedisValue{}
		for _, spec := range s.handlers {
			out = append(out, commandInfoEntry(spec))
		}
		return arrayReply(out...)
	}
	switch strings.ToUpper(cmd.Args[0]) {
	case "COUNT":
		return intReply(int64(len(s.handlers)))
	case "DOCS":
		return mapReply()
	case "INFO":
		out := []RedisValue{}
		for _, name := range cmd.Args[1:] {
			if spec, ok := s.handlers[strings.ToUpper(name)]; ok {
				out = append(out, commandInfoEntry(spec))
			} else {
				out = append(out, nilArrayReply())
			}
		}
		return arrayReply(out...)
	}
	return errReply(fmt.Sprintf("ERR Unknown COMMAND subcommand or wrong number of arguments for '%s'", cmd.Args[0]))
}

func commandInfoEntry(spec *commandSpec) RedisValue {
	return arrayReply(
		bulkReply(strings.ToLower(spec.name)),
		intReply(int64(spec.arity)),
		arrayReply(),
		intReply(1), intReply(1), intReply(1),
	)
}

func cmdLolwut(conn *Connection, cmd *Command) RedisValue {
	return bulkReply("fakeredis ver. " + serverVersion + "\n")
}

// serverVersion is the compatibility version INFO and HELLO report
const serverVersion = "7.4.0"
