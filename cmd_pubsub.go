/*
Package fakeredis pub/sub command handlers. Subscription confirmations
and message deliveries are push frames on RESP3 and plain arrays on
RESP2; both are written directly to the connection, outside the normal
request/response cycle.
*/
package fakeredis

import (
	"fmt"
	"strings"
)

func (s *Server) registerPubSubHandlers() {
	s.register("SUBSCRIBE", -2, cmdSubscribe)
	s.register("UNSUBSCRIBE", -1, cmdUnsubscribe)
	s.register("PSUBSCRIBE", -2, cmdPSubscribe)
	s.register("PUNSUBSCRIBE", -1, cmdPUnsubscribe)
	s.register("PUBLISH", 3, cmdPublish)
	s.register("SPUBLISH", 3, cmdPublish)
	s.register("PUBSUB", -2, cmdPubSub)
}

// subscribeAck sends the confirmation frame for one (un)subscribe step
func subscribeAck(conn *Connection, verb, name string) {
	count := int64(conn.subscriptionCount())
	var nameV RedisValue
	if name == "" {
		nameV = nilReply()
	} else {
		nameV = bulkReply(name)
	}
	_ = conn.send(pushReply(bulkReply(verb), nameV, intReply(count)))
}

func cmdSubscribe(conn *Connection, cmd *Command) RedisValue {
	s := conn.server
	for _, ch := range cmd.Args {
		s.subscribeChannel(conn, ch)
		subscribeAck(conn, "subscribe", ch)
	}
	return noReply()
}

func cmdUnsubscribe(conn *Connection, cmd *Command) RedisValue {
	s := conn.server
	channels := cmd.Args
	if len(channels) == 0 {
		channels = sortedKeys(conn.subs)
	}
	if len(channels) == 0 {
		subscribeAck(conn, "unsubscribe", "")
		return noReply()
	}
	for _, ch := range channels {
		s.unsubscribeChannel(conn, ch)
		subscribeAck(conn, "unsubscribe", ch)
	}
	return noReply()
}

func cmdPSubscribe(conn *Connection, cmd *Command) RedisValue {
	s := conn.server
	for _, pat := range cmd.Args {
		s.subscribePattern(conn, pat)
		subscribeAck(conn, "psubscribe", pat)
	}
	return noReply()
}

func cmdPUnsubscribe(conn *Connection, cmd *Command) RedisValue {
	s := conn.server
	patterns := cmd.Args
	if len(patterns) == 0 {
		patterns = sortedKeys(conn.psubs)
	}
	if len(patterns) == 0 {
		subscribeAck(conn, "punsubscribe", "")
		return noReply()
	}
	for _, pat := range patterns {
		s.unsubscribePattern(conn, pat)
		subscribeAck(conn, "punsubscribe", pat)
	}
	return noReply()
}

func cmdPublish(conn *Connection, cmd *Command) RedisValue {
	return intReply(conn.server.publish(cmd.Args[0], cmd.Args[1]))
}

func cmdPubSub(conn *Connection, cmd *Command) RedisValue {
	s := conn.server
	sub := strings.ToUpper(cmd.Args[0])
	args := cmd.Args[1:]

	switch sub {
	case "CHANNELS":
		pattern := ""
		if len(args) == 1 {
			pattern = args[0]
		} else if len(args) > 1 {
			return wrongArgsReply("pubsub|channels")
		}
		out := []string{}
		for _, ch := range sortedKeys(s.channels) {
			if pattern == "" || patternMatch(pattern, ch) {
				out = append(out, ch)
			}
		}
		return strArrayReply(out)
	case "NUMSUB":
		out := []RedisValue{}
		for _, ch := range args {
			out = append(out, bulkReply(ch), intReply(int64(len(s.channels[ch]))))
		}
		return arrayReply(out...)
	case "NUMPAT":
		return intReply(int64(len(s.patterns)))
	}
	return errReply(fmt.Sprintf("ERR Unknown PUBSUB subcommand or wrong number of arguments for '%s'", cmd.Args[0]))
}
