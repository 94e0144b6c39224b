/*
Package fakeredis scripting surface.

The evaluator itself is an external collaborator behind the
ScriptEngine interface; this file owns the SHA1 registry and the
EVAL/EVALSHA plumbing. An engine reenters the dispatcher through
Server.ScriptedCall, which bypasses AUTH, forbids blocking and runs in
the caller's database selection.
*/
package fakeredis

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

func (s *Server) registerScriptingHandlers() {
	s.register("EVAL", -3, cmdEval)
	s.register("EVAL_RO", -3, cmdEval)
	s.register("EVALSHA", -3, cmdEvalSHA)
	s.register("EVALSHA_RO", -3, cmdEvalSHA)
	s.register("SCRIPT", -2, cmdScript)
	s.register("FUNCTION", -2, cmdFunction)
}

func scriptSHA(body string) string {
	sum := sha1.Sum([]byte(body))
	return hex.EncodeToString(sum[:])
}

// evalBody runs a script body through the injected engine
func evalBody(conn *Connection, body string, args []string) RedisValue {
	s := conn.server
	if s.ScriptEngine == nil {
		return errReply("ERR Lua scripting is not available in this server")
	}
	numKeys, ok := parseInt(args[0])
	if !ok {
		return errReply(msgNotInt)
	}
	if numKeys < 0 {
		return errReply("ERR Number of keys can't be negative")
	}
	if numKeys > int64(len(args)-1) {
		return errReply("ERR Number of keys can't be greater than number of args")
	}
	keys := args[1 : numKeys+1]
	argv := args[numKeys+1:]

	prev := conn.noBlock
	conn.noBlock = true
	defer func() { conn.noBlock = prev }()

	result, err := s.ScriptEngine.Eval(conn, body, keys, argv)
	if err != nil {
		return errReply("ERR " + err.Error())
	}
	return result
}

func cmdEval(conn *Connection, cmd *Command) RedisValue {
	body := cmd.Args[0]
	s := conn.server
	s.scripts[scriptSHA(body)] = body
	return evalBody(conn, body, cmd.Args[1:])
}

func cmdEvalSHA(conn *Connection, cmd *Command) RedisValue {
	s := conn.server
	body, ok := s.scripts[strings.ToLower(cmd.Args[0])]
	if !ok {
		return errReply(msgNoScript)
	}
	return evalBody(conn, body, cmd.Args[1:])
}

func cmdScript(conn *Connection, cmd *Command) RedisValue {
	s := conn.server
	sub := strings.ToUpper(cmd.Args[0])
	args := cmd.Args[1:]

	switch sub {
	case "LOAD":
		if len(args) != 1 {
			return wrongArgsReply("script|load")
		}
		sha := scriptSHA(args[0])
		s.scripts[sha] = args[0]
		return bulkReply(sha)
	case "EXISTS":
		out := make([]RedisValue, len(args))
		for i, sha := range args {
			if _, ok := s.scripts[strings.ToLower(sha)]; ok {
				out[i] = intReply(1)
			} else {
				out[i] = intReply(0)
			}
		}
		return arrayReply(out...)
	case "FLUSH":
		if len(args) == 1 {
			switch strings.ToUpper(args[0]) {
			case "ASYNC", "SYNC":
			default:
				return errReply("ERR SCRIPT FLUSH only support SYNC|ASYNC option")
			}
		}
		s.scripts = make(map[string]string)
		return okReply()
	}
	return errReply(fmt.Sprintf("ERR Unknown SCRIPT subcommand or wrong number of arguments for '%s'", cmd.Args[0]))
}

func cmdFunction(conn *Connection, cmd *Command) RedisValue {
	switch strings.ToUpper(cmd.Args[0]) {
	case "LIST":
		return arrayReply()
	case "DUMP":
		return bulkReply("")
	case "STATS":
		return mapReply(
			bulkReply("running_script"), nilReply(),
			bulkReply("engines"), mapReply(),
		)
	case "FLUSH":
		return okReply()
	}
	return errReply("ERR Missing library meta")
}
