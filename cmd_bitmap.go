/*
Package fakeredis bitmap handlers. Bitmaps are a structural overlay on
string values: bit 0 is the most significant bit of the first byte.
*/
package fakeredis

import (
	"math"
	"math/bits"
	"strings"
)

func (s *Server) registerBitmapHandlers() {
	s.register("SETBIT", 4, cmdSetBit)
	s.register("GETBIT", 3, cmdGetBit)
	s.register("BITCOUNT", -2, cmdBitCount)
	s.register("BITPOS", -3, cmdBitPos)
	s.register("BITOP", -4, cmdBitOp)
	s.register("BITFIELD", -2, cmdBitField)
	s.register("BITFIELD_RO", -2, cmdBitFieldRO)
}

// maxBitOffset caps SETBIT/GETBIT offsets at 4 Gib (512 MiB strings)
const maxBitOffset = int64(maxBulkSize) * 8

func cmdSetBit(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]
	offset, ok := parseInt(cmd.Args[1])
	if !ok || offset < 0 || offset >= maxBitOffset {
		return errReply(msgBitOffset)
	}
	bit, ok := parseInt(cmd.Args[2])
	if !ok || (bit != 0 && bit != 1) {
		return errReply(msgBitValue)
	}
	e, okKind := db.getOrCreate(key, kindString)
	if !okKind {
		return wrongTypeReply()
	}
	buf := []byte(e.str)
	byteIdx := offset / 8
	if int64(len(buf)) <= byteIdx {
		grown := make([]byte, byteIdx+1)
		copy(grown, buf)
		buf = grown
	}
	mask := byte(1 << (7 - offset%8))
	old := int64(0)
	if buf[byteIdx]&mask != 0 {
		old = 1
	}
	if bit == 1 {
		buf[byteIdx] |= mask
	} else {
		buf[byteIdx] &^= mask
	}
	e.str = string(buf)
	db.touch(notifyString, "setbit", key)
	return intReply(old)
}

func cmdGetBit(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	offset, ok := parseInt(cmd.Args[1])
	if !ok || offset < 0 || offset >= maxBitOffset {
		return errReply(msgBitOffset)
	}
	val, _, mismatch := stringValue(db, cmd.Args[0])
	if mismatch {
		return wrongTypeReply()
	}
	byteIdx := offset / 8
	if byteIdx >= int64(len(val)) {
		return intReply(0)
	}
	if val[byteIdx]&(1<<(7-offset%8)) != 0 {
		return intReply(1)
	}
	return intReply(0)
}

// bitRange resolves a [start end] pair against length n, in bytes or
// bits, returning the inclusive bit range
func bitRange(start, end, n int64, unitBit bool) (int64, int64, bool) {
	limit := n
	if unitBit {
		limit = n * 8
	}
	if start < 0 {
		start = limit + start
	}
	if end < 0 {
		end = limit + end
	}
	if start < 0 {
		start = 0
	}
	if end >= limit {
		end = limit - 1
	}
	if limit == 0 || start > end {
		return 0, 0, false
	}
	if unitBit {
		return start, end, true
	}
	return start * 8, end*8 + 7, true
}

func cmdBitCount(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	val, _, mismatch := stringValue(db, cmd.Args[0])
	if mismatch {
		return wrongTypeReply()
	}
	startBit, endBit := int64(0), int64(len(val))*8-1
	if len(cmd.Args) > 1 {
		if len(cmd.Args) != 3 && len(cmd.Args) != 4 {
			return syntaxErrReply()
		}
		start, okS := parseInt(cmd.Args[1])
		end, okE := parseInt(cmd.Args[2])
		if !okS || !okE {
			return errReply(msgNotInt)
		}
		unitBit := false
		if len(cmd.Args) == 4 {
			switch strings.ToUpper(cmd.Args[3]) {
			case "BYTE":
			case "BIT":
				unitBit = true
			default:
				return syntaxErrReply()
			}
		}
		var ok bool
		startBit, endBit, ok = bitRange(start, end, int64(len(val)), unitBit)
		if !ok {
			return intReply(0)
		}
	}
	if len(val) == 0 {
		return intReply(0)
	}
	var count int64
	for i := startBit; i <= endBit; {
		if i%8 == 0 && i+7 <= endBit {
			count += int64(bits.OnesCount8(val[i/8]))
			i += 8
			continue
		}
		if val[i/8]&(1<<(7-i%8)) != 0 {
			count++
		}
		i++
	}
	return intReply(count)
}

func cmdBitPos(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	bit, ok := parseInt(cmd.Args[1])
	if !ok || (bit != 0 && bit != 1) {
		return errReply("ERR The bit argument must be 1 or 0.")
	}
	val, _, mismatch := stringValue(db, cmd.Args[0])
	if mismatch {
		return wrongTypeReply()
	}

	rangeGiven := len(cmd.Args) > 2
	startBit, endBit := int64(0), int64(len(val))*8-1
	if rangeGiven {
		start, okS := parseInt(cmd.Args[2])
		if !okS {
			return errReply(msgNotInt)
		}
		end := int64(len(val)) - 1
		unitBit := false
		if len(cmd.Args) > 3 {
			e, okE := parseInt(cmd.Args[3])
			if !okE {
				return errReply(msgNotInt)
			}
			end = e
		}
		if len(cmd.Args) > 4 {
			switch strings.ToUpper(cmd.Args[4]) {
			case "BYTE":
			case "BIT":
				unitBit = true
			default:
				return syntaxErrReply()
			}
		}
		var okRange bool
		startBit, endBit, okRange = bitRange(start, end, int64(len(val)), unitBit)
		if !okRange {
			return intReply(-1)
		}
	}

	if len(val) == 0 {
		// Missing keys read as all-zeros.
		if bit == 0 {
			return intReply(0)
		}
		return intReply(-1)
	}
	for i := startBit; i <= endBit; i++ {
		cur := int64(0)
		if val[i/8]&(1<<(7-i%8)) != 0 {
			cur = 1
		}
		if cur == bit {
			return intReply(i)
		}
	}
	// Searching for 0 past the string's end: without an explicit range
	// the string is treated as padded with zeros.
	if bit == 0 && !rangeGiven {
		return intReply(int64(len(val)) * 8)
	}
	return intReply(-1)
}

func cmdBitOp(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	op := strings.ToUpper(cmd.Args[0])
	dst := cmd.Args[1]
	srcs := cmd.Args[2:]

	if op == "NOT" && len(srcs) != 1 {
		return errReply("ERR BITOP NOT must be called with a single source key.")
	}
	switch op {
	case "AND", "OR", "XOR", "NOT":
	default:
		return syntaxErrReply()
	}

	vals := make([][]byte, len(srcs))
	maxLen := 0
	for i, key := range srcs {
		v, _, mismatch := stringValue(db, key)
		if mismatch {
			return wrongTypeReply()
		}
		vals[i] = []byte(v)
		if len(v) > maxLen {
			maxLen = len(v)
		}
	}

	var out []byte
	if op == "NOT" {
		out = make([]byte, len(vals[0]))
		for i, b := range vals[0] {
			out[i] = ^b
		}
	} else {
		out = make([]byte, maxLen)
		for i := range out {
			var acc byte
			for j, v := range vals {
				var b byte
				if i < len(v) {
					b = v[i]
				}
				if j == 0 {
					acc = b
					continue
				}
				switch op {
				case "AND":
					acc &= b
				case "OR":
					acc |= b
				case "XOR":
					acc ^= b
				}
			}
			out[i] = acc
		}
	}

	if len(out) == 0 {
		if db.remove(dst) {
			db.srv.emitEvent(db.id, notifyGeneric, "del", dst)
		}
		return intReply(0)
	}
	db.setString(dst, string(out), false)
	db.touch(notifyString, "set", dst)
	return intReply(int64(len(out)))
}

/*
BITFIELD

Treats the string as a bit array and operates on arbitrary-width
integer fields (u1..u63, i1..i64) with per-call overflow control
(WRAP, SAT, FAIL).
*/

type bitFieldType struct {
	width    int64
	unsigned bool
}

func parseBitFieldType(s string) (bitFieldType, bool) {
	if len(s) < 2 {
		return bitFieldType{}, false
	}
	t := bitFieldType{}
	switch s[0] {
	case 'u', 'U':
		t.unsigned = true
	case 'i', 'I':
	default:
		return bitFieldType{}, false
	}
	w, ok := parseInt(s[1:])
	if !ok || w <= 0 || w > 64 || (t.unsigned && w > 63) {
		return bitFieldType{}, false
	}
	t.width = w
	return t, true
}

func parseBitFieldOffset(s string, width int64) (int64, bool) {
	mult := int64(1)
	if strings.HasPrefix(s, "#") {
		mult = width
		s = s[1:]
	}
	n, ok := parseInt(s)
	if !ok || n < 0 {
		return 0, false
	}
	off := n * mult
	if off+width > maxBitOffset {
		return 0, false
	}
	return off, true
}

func bitFieldGet(buf []byte, offset, width int64) uint64 {
	var v uint64
	for i := int64(0); i < width; i++ {
		v <<= 1
		bitIdx := offset + i
		byteIdx := bitIdx / 8
		if byteIdx < int64(len(buf)) && buf[byteIdx]&(1<<(7-bitIdx%8)) != 0 {
			v |= 1
		}
	}
	return v
}

func bitFieldSet(buf []byte, offset, width int64, v uint64) []byte {
	needed := (offset + width + 7) / 8
	if int64(len(buf)) < needed {
		grown := make([]byte, needed)
		copy(grown, buf)
		buf = grown
	}
	for i := int64(0); i < width; i++ {
		bitIdx := offset + i
		mask := byte(1 << (7 - bitIdx%8))
		if v&(1<<(width-1-i)) != 0 {
			buf[bitIdx/8] |= mask
		} else {
			buf[bitIdx/8] &^= mask
		}
	}
	return buf
}

// signExtend interprets raw as a width-bit signed value
func signExtend(raw uint64, width int64) int64 {
	if width == 64 {
		return int64(raw)
	}
	if raw&(1<<(width-1)) != 0 {
		return int64(raw | (^uint64(0) << width))
	}
	return int64(raw)
}

func bitFieldGeneric(conn *Connection, cmd *Command, readOnly bool) RedisValue {
	db := conn.database()
	key := cmd.Args[0]

	type op struct {
		kind     string // GET, SET, INCRBY
		t        bitFieldType
		offset   int64
		operand  int64
		overflow string
	}

	overflow := "WRAP"
	ops := []op{}
	wrote := false
	args := cmd.Args[1:]
	for len(args) > 0 {
		switch strings.ToUpper(args[0]) {
		case "OVERFLOW":
			if len(args) < 2 {
				return syntaxErrReply()
			}
			overflow = strings.ToUpper(args[1])
			switch overflow {
			case "WRAP", "SAT", "FAIL":
			default:
				return errReply("ERR Invalid OVERFLOW type specified")
			}
			args = args[2:]
		case "GET":
			if len(args) < 3 {
				return syntaxErrReply()
			}
			t, ok := parseBitFieldType(args[1])
			if !ok {
				return errReply("ERR Invalid bitfield type. Use something like i16 u8. Note that u64 is not supported but i64 is.")
			}
			off, ok := parseBitFieldOffset(args[2], t.width)
			if !ok {
				return errReply(msgBitOffset)
			}
			ops = append(ops, op{kind: "GET", t: t, offset: off})
			args = args[3:]
		case "SET", "INCRBY":
			if readOnly {
				return errReply("ERR BITFIELD_RO only supports the GET subcommand")
			}
			if len(args) < 4 {
				return syntaxErrReply()
			}
			t, ok := parseBitFieldType(args[1])
			if !ok {
				return errReply("ERR Invalid bitfield type. Use something like i16 u8. Note that u64 is not supported but i64 is.")
			}
			off, ok := parseBitFieldOffset(args[2], t.width)
			if !ok {
				return errReply(msgBitOffset)
			}
			operand, ok := parseInt(args[3])
			if !ok {
				return errReply(msgNotInt)
			}
			ops = append(ops, op{kind: strings.ToUpper(args[0]), t: t, offset: off, operand: operand, overflow: overflow})
			wrote = true
			args = args[4:]
		default:
			return syntaxErrReply()
		}
	}

	e := db.lookup(key)
	if wrongKind(e, kindString) {
		return wrongTypeReply()
	}
	var buf []byte
	if e != nil {
		buf = []byte(e.str)
	}

	out := make([]RedisValue, 0, len(ops))
	for _, o := range ops {
		switch o.kind {
		case "GET":
			raw := bitFieldGet(buf, o.offset, o.t.width)
			if o.t.unsigned {
				out = append(out, intReply(int64(raw)))
			} else {
				out = append(out, intReply(signExtend(raw, o.t.width)))
			}
		case "SET":
			raw := bitFieldGet(buf, o.offset, o.t.width)
			var old int64
			if o.t.unsigned {
				old = int64(raw)
			} else {
				old = signExtend(raw, o.t.width)
			}
			v, okF := bitFieldClamp(o.operand, o.t, o.overflow)
			if !okF {
				out = append(out, nilReply())
				continue
			}
			buf = bitFieldSet(buf, o.offset, o.t.width, uint64(v)&widthMask(o.t.width))
			out = append(out, intReply(old))
		case "INCRBY":
			raw := bitFieldGet(buf, o.offset, o.t.width)
			var cur int64
			if o.t.unsigned {
				cur = int64(raw)
			} else {
				cur = signExtend(raw, o.t.width)
			}
			res, okF := bitFieldIncr(cur, o.operand, o.t, o.overflow)
			if !okF {
				out = append(out, nilReply())
				continue
			}
			buf = bitFieldSet(buf, o.offset, o.t.width, uint64(res)&widthMask(o.t.width))
			out = append(out, intReply(res))
		}
	}

	if wrote {
		e, okKind := db.getOrCreate(key, kindString)
		if !okKind {
			return wrongTypeReply()
		}
		e.str = string(buf)
		db.touch(notifyString, "setbit", key)
	}
	return arrayReply(out...)
}

func widthMask(width int64) uint64 {
	if width == 64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}

// bitFieldClamp validates a SET operand against the field range
func bitFieldClamp(v int64, t bitFieldType, overflow string) (int64, bool) {
	lo, hi := fieldRange(t)
	if v >= lo && v <= hi {
		return v, true
	}
	switch overflow {
	case "FAIL":
		return 0, false
	case "SAT":
		if v < lo {
			return lo, true
		}
		return hi, true
	}
	// WRAP through the raw bit pattern.
	return signWrap(v, t), true
}

func bitFieldIncr(cur, delta int64, t bitFieldType, overflow string) (int64, bool) {
	lo, hi := fieldRange(t)
	sum := cur + delta
	overflowed := addWouldOverflow(cur, delta) || sum < lo || sum > hi
	if !overflowed {
		return sum, true
	}
	switch overflow {
	case "FAIL":
		return 0, false
	case "SAT":
		if delta > 0 {
			return hi, true
		}
		return lo, true
	}
	return signWrap(cur+delta, t), true
}

func fieldRange(t bitFieldType) (int64, int64) {
	if t.unsigned {
		return 0, int64(widthMask(t.width))
	}
	if t.width == 64 {
		return math.MinInt64, math.MaxInt64
	}
	hi := int64(1)<<(t.width-1) - 1
	return -hi - 1, hi
}

func signWrap(v int64, t bitFieldType) int64 {
	raw := uint64(v) & widthMask(t.width)
	if t.unsigned {
		return int64(raw)
	}
	return signExtend(raw, t.width)
}

func cmdBitField(conn *Connection, cmd *Command) RedisValue {
	return bitFieldGeneric(conn, cmd, false)
}

func cmdBitFieldRO(conn *Connection, cmd *Command) RedisValue {
	return bitFieldGeneric(conn, cmd, true)
}
