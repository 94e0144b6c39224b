/*
Package fakeredis pub/sub registries and fan-out.

The server keeps one registry for exact channels and one for glob
patterns. A published message reaches every exact subscriber and every
pattern subscriber whose pattern matches; on RESP3 connections the
message travels as a push frame, on RESP2 as a multi-bulk array.
Delivery errors are swallowed and logged; nothing propagates across
connections.
*/
package fakeredis

import "go.uber.org/zap"

// subscribeChannel registers conn on an exact channel
func (s *Server) subscribeChannel(conn *Connection, ch string) {
	if conn.subs == nil {
		conn.subs = make(map[string]struct{})
	}
	conn.subs[ch] = struct{}{}
	set, ok := s.channels[ch]
	if !ok {
		set = make(map[*Connection]struct{})
		s.channels[ch] = set
	}
	set[conn] = struct{}{}
}

// unsubscribeChannel removes conn from an exact channel
func (s *Server) unsubscribeChannel(conn *Connection, ch string) {
	delete(conn.subs, ch)
	if set, ok := s.channels[ch]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(s.channels, ch)
		}
	}
}

// subscribePattern registers conn on a glob pattern
func (s *Server) subscribePattern(conn *Connection, pat string) {
	if conn.psubs == nil {
		conn.psubs = make(map[string]struct{})
	}
	conn.psubs[pat] = struct{}{}
	set, ok := s.patterns[pat]
	if !ok {
		set = make(map[*Connection]struct{})
		s.patterns[pat] = set
	}
	set[conn] = struct{}{}
}

// unsubscribePattern removes conn from a glob pattern
func (s *Server) unsubscribePattern(conn *Connection, pat string) {
	delete(conn.psubs, pat)
	if set, ok := s.patterns[pat]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(s.patterns, pat)
		}
	}
}

// publish fans a message out to channel and pattern subscribers,
// returning the number of clients that received it
func (s *Server) publish(channel, payload string) int64 {
	var receivers int64

	for conn := range s.channels[channel] {
		msg := pushReply(bulkReply("message"), bulkReply(channel), bulkReply(payload))
		if err := conn.send(msg); err != nil {
			s.Logger.Debug("pubsub delivery failed",
				zap.String("channel", channel), zap.Error(err))
			continue
		}
		receivers++
	}

	for pat, set := range s.patterns {
		if !patternMatch(pat, channel) {
			continue
		}
		for conn := range set {
			msg := pushReply(bulkReply("pmessage"), bulkReply(pat), bulkReply(channel), bulkReply(payload))
			if err := conn.send(msg); err != nil {
				s.Logger.Debug("pubsub delivery failed",
					zap.String("pattern", pat), zap.Error(err))
				continue
			}
			receivers++
		}
	}

	return receivers
}
