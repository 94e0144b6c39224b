/*
Package fakeredis keyspace-notification emission.

Mutating handlers report their event through DB.touch or emitEvent; the
notify-keyspace-events config decides whether it becomes a publish on
__keyspace@<db>__:<key> (class K) and/or __keyevent@<db>__:<event>
(class E).
*/
package fakeredis

import "fmt"

// Notification classes, one bit per flag character.
const (
	notifyKeyspace = 1 << iota // K
	notifyKeyevent             // E
	notifyGeneric              // g
	notifyString               // $
	notifyList                 // l
	notifySet                  // s
	notifyHash                 // h
	notifyZset                 // z
	notifyExpired              // x
	notifyEvicted              // e
	notifyStream               // t
	notifyKeyMiss              // m
	notifyNew                  // n

	notifyAll = notifyGeneric | notifyString | notifyList | notifySet |
		notifyHash | notifyZset | notifyExpired | notifyEvicted | notifyStream
)

// parseNotifyFlags turns a notify-keyspace-events value into a bitset.
// Returns false on an unknown flag character.
func parseNotifyFlags(s string) (int, bool) {
	flags := 0
	for _, c := range s {
		switch c {
		case 'K':
			flags |= notifyKeyspace
		case 'E':
			flags |= notifyKeyevent
		case 'g':
			flags |= notifyGeneric
		case '$':
			flags |= notifyString
		case 'l':
			flags |= notifyList
		case 's':
			flags |= notifySet
		case 'h':
			flags |= notifyHash
		case 'z':
			flags |= notifyZset
		case 'x':
			flags |= notifyExpired
		case 'e':
			flags |= notifyEvicted
		case 't':
			flags |= notifyStream
		case 'm':
			flags |= notifyKeyMiss
		case 'n':
			flags |= notifyNew
		case 'A':
			flags |= notifyAll
		default:
			return 0, false
		}
	}
	return flags, true
}

// formatNotifyFlags renders the bitset back to its flag string
func formatNotifyFlags(flags int) string {
	out := ""
	if flags&notifyKeyspace != 0 {
		out += "K"
	}
	if flags&notifyKeyevent != 0 {
		out += "E"
	}
	if flags&notifyAll == notifyAll {
		out += "A"
	} else {
		for _, p := range []struct {
			bit int
			ch  string
		}{
			{notifyGeneric, "g"}, {notifyString, "$"}, {notifyList, "l"},
			{notifySet, "s"}, {notifyHash, "h"}, {notifyZset, "z"},
			{notifyExpired, "x"}, {notifyEvicted, "e"}, {notifyStream, "t"},
		} {
			if flags&p.bit != 0 {
				out += p.ch
			}
		}
	}
	if flags&notifyKeyMiss != 0 {
		out += "m"
	}
	if flags&notifyNew != 0 {
		out += "n"
	}
	return out
}

// notifyFlags reads the current config bitset
func (s *Server) notifyFlags() int {
	flags, _ := parseNotifyFlags(s.config["notify-keyspace-events"])
	return flags
}

// emitEvent publishes a keyspace notification when the class is enabled
func (s *Server) emitEvent(db int, class int, event, key string) {
	flags := s.notifyFlags()
	if flags&class == 0 {
		return
	}
	if class == notifyNew {
		// The new-key class only produces keyevent notifications.
		s.publish(fmt.Sprintf("__keyevent@%d__:new", db), key)
		return
	}
	if flags&notifyKeyspace != 0 {
		s.publish(fmt.Sprintf("__keyspace@%d__:%s", db, key), event)
	}
	if flags&notifyKeyevent != 0 {
		s.publish(fmt.Sprintf("__keyevent@%d__:%s", db, event), key)
	}
}
