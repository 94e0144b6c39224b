/*
Package fakeredis HyperLogLog handlers.

The HLL overlay rides on string values the way the real structure does,
but the payload is exact instead of probabilistic: a magic-prefixed,
sorted list of 64-bit member hashes. PFCOUNT is therefore the true
cardinality, which test suites accept (it is within every documented
error bound), and PFMERGE is a set union.
*/
package fakeredis

import (
	"encoding/binary"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// hllMagic marks a string value as holding the HLL overlay
const hllMagic = "HYLL\x01"

// hllDecode unpacks the digest set; ok is false when the payload is not
// an HLL value
func hllDecode(s string) (map[uint64]struct{}, bool) {
	if !strings.HasPrefix(s, hllMagic) {
		return nil, false
	}
	body := s[len(hllMagic):]
	if len(body)%8 != 0 {
		return nil, false
	}
	out := make(map[uint64]struct{}, len(body)/8)
	for i := 0; i < len(body); i += 8 {
		out[binary.BigEndian.Uint64([]byte(body[i:i+8]))] = struct{}{}
	}
	return out, true
}

// hllEncode packs the digest set in sorted order so equal sets encode
// identically
func hllEncode(digests map[uint64]struct{}) string {
	sorted := make([]uint64, 0, len(digests))
	for d := range digests {
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	buf := make([]byte, len(hllMagic)+8*len(sorted))
	copy(buf, hllMagic)
	for i, d := range sorted {
		binary.BigEndian.PutUint64(buf[len(hllMagic)+i*8:], d)
	}
	return string(buf)
}

func (s *Server) registerHyperLogLogHandlers() {
	s.register("PFADD", -2, cmdPFAdd)
	s.register("PFCOUNT", -2, cmdPFCount)
	s.register("PFMERGE", -2, cmdPFMerge)
}

// hllLoad resolves a key to its digest set. mismatch covers both wrong
// kinds and strings that are not HLL payloads.
func hllLoad(db *DB, key string) (digests map[uint64]struct{}, missing bool, mismatch bool) {
	e := db.lookup(key)
	if e == nil {
		return nil, true, false
	}
	if e.kind != kindString {
		return nil, false, true
	}
	d, ok := hllDecode(e.str)
	if !ok {
		return nil, false, true
	}
	return d, false, false
}

func cmdPFAdd(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]
	digests, missing, mismatch := hllLoad(db, key)
	if mismatch {
		return errReply("WRONGTYPE Key is not a valid HyperLogLog string value.")
	}
	if missing {
		digests = make(map[uint64]struct{})
	}

	changed := missing && len(cmd.Args) == 1
	for _, member := range cmd.Args[1:] {
		d := xxhash.Sum64String(member)
		if _, ok := digests[d]; !ok {
			digests[d] = struct{}{}
			changed = true
		}
	}
	if !changed {
		return intReply(0)
	}
	db.setString(key, hllEncode(digests), true)
	db.touch(notifyString, "pfadd", key)
	return intReply(1)
}

func cmdPFCount(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	union := make(map[uint64]struct{})
	for _, key := range cmd.Args {
		digests, missing, mismatch := hllLoad(db, key)
		if mismatch {
			return errReply("WRONGTYPE Key is not a valid HyperLogLog string value.")
		}
		if missing {
			continue
		}
		for d := range digests {
			union[d] = struct{}{}
		}
	}
	return intReply(int64(len(union)))
}

func cmdPFMerge(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	dst := cmd.Args[0]
	union, _, mismatch := hllLoad(db, dst)
	if mismatch {
		return errReply("WRONGTYPE Key is not a valid HyperLogLog string value.")
	}
	if union == nil {
		union = make(map[uint64]struct{})
	}
	for _, key := range cmd.Args[1:] {
		digests, missing, srcMismatch := hllLoad(db, key)
		if srcMismatch {
			return errReply("WRONGTYPE Key is not a valid HyperLogLog string value.")
		}
		if missing {
			continue
		}
		for d := range digests {
			union[d] = struct{}{}
		}
	}
	db.setString(dst, hllEncode(union), true)
	db.touch(notifyString, "pfadd", dst)
	return okReply()
}
