package fakeredis

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

/*
Numeric helpers shared across handler families. Integer commands demand
canonical base-10 signed-64 content; float commands accept IEEE-754
doubles with the documented inf spellings and reject NaN. Float replies
strip trailing zeros and the trailing dot.
*/

// parseInt parses a canonical base-10 signed 64-bit integer
func parseInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseFloat parses a double, accepting the inf spellings Redis does
// and rejecting NaN
func parseFloat(s string) (float64, bool) {
	switch strings.ToLower(s) {
	case "inf", "+inf", "infinity", "+infinity":
		return math.Inf(1), true
	case "-inf", "-infinity":
		return math.Inf(-1), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// formatFloat renders a double the way Redis replies do: shortest
// representation without a trailing dot, "inf"/"-inf" for infinities
func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// formatInt renders a signed 64-bit integer in base 10
func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}

// isNonFinite reports NaN or infinity
func isNonFinite(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}

// isCanonicalInt reports whether s would survive an
// integer-parse/format round trip unchanged
func isCanonicalInt(s string) bool {
	n, ok := parseInt(s)
	if !ok {
		return false
	}
	return strconv.FormatInt(n, 10) == s
}

// addWouldOverflow reports whether a+b overflows signed 64-bit
func addWouldOverflow(a, b int64) bool {
	if b > 0 && a > math.MaxInt64-b {
		return true
	}
	if b < 0 && a < math.MinInt64-b {
		return true
	}
	return false
}

/*
Cursor-based iteration shared by SCAN, HSCAN, SSCAN and ZSCAN. The
cursor is an index into a sorted snapshot of the element names: opaque
enough for clients, stable enough for a full iteration to terminate.
*/

// scanStep walks items from cursor, returning up to count matches and
// the next cursor (0 when the iteration is complete)
func scanStep(items []string, cursor, count int64, match string) (int64, []string) {
	if count <= 0 {
		count = 10
	}
	out := []string{}
	i := cursor
	for ; i < int64(len(items)) && int64(len(out)) < count; i++ {
		if match == "" || patternMatch(match, items[i]) {
			out = append(out, items[i])
		}
	}
	if i >= int64(len(items)) {
		return 0, out
	}
	return i, out
}

// parseScanArgs parses the cursor plus MATCH/COUNT (and NOVALUES for
// HSCAN) options shared by the scan family. The error value has
// ErrorReply type when the arguments are invalid.
func parseScanArgs(args []string, allowNoValues bool) (cursor int64, match string, count int64, noValues bool, errV RedisValue) {
	count = 10
	if len(args) == 0 {
		return 0, "", 0, false, errReply(msgInvalidCursor)
	}
	var ok bool
	cursor, ok = parseInt(args[0])
	if !ok || cursor < 0 {
		return 0, "", 0, false, errReply(msgInvalidCursor)
	}
	args = args[1:]
	for len(args) > 0 {
		switch {
		case equalFold(args[0], "MATCH") && len(args) >= 2:
			match = args[1]
			args = args[2:]
		case equalFold(args[0], "COUNT") && len(args) >= 2:
			n, okC := parseInt(args[1])
			if !okC || n <= 0 {
				return 0, "", 0, false, syntaxErrReply()
			}
			count = n
			args = args[2:]
		case allowNoValues && equalFold(args[0], "NOVALUES"):
			noValues = true
			args = args[1:]
		default:
			return 0, "", 0, false, syntaxErrReply()
		}
	}
	return cursor, match, count, noValues, RedisValue{}
}

func equalFold(a, b string) bool {
	return strings.EqualFold(a, b)
}

// randomSample picks count items: distinct when count is positive,
// with repetition when negative, mirroring the SRANDMEMBER contract
func randomSample(s *Server, items []string, count int64) []string {
	if len(items) == 0 || count == 0 {
		return []string{}
	}
	if count < 0 {
		out := make([]string, 0, -count)
		for i := int64(0); i < -count; i++ {
			out = append(out, items[s.rng.Intn(len(items))])
		}
		return out
	}
	if count >= int64(len(items)) {
		return append([]string{}, items...)
	}
	idx := s.rng.Perm(len(items))[:count]
	out := make([]string, 0, count)
	for _, i := range idx {
		out = append(out, items[i])
	}
	return out
}

// sortedKeys returns the map's keys in bytewise order
func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
