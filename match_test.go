package fakeredis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPatternMatch(t *testing.T) {
	cases := []struct {
		pattern, s string
		want       bool
	}{
		{"*", "anything", true},
		{"*", "", true},
		{"h?llo", "hello", true},
		{"h?llo", "hllo", false},
		{"h*llo", "heeeello", true},
		{"h[ae]llo", "hello", true},
		{"h[ae]llo", "hallo", true},
		{"h[ae]llo", "hillo", false},
		{"h[^e]llo", "hallo", true},
		{"h[^e]llo", "hello", false},
		{"h[a-c]llo", "hbllo", true},
		{"h[a-c]llo", "hdllo", false},
		{"news.*", "news.sport", true},
		{"news.*", "weather.today", false},
		{`\*`, "*", true},
		{`\*`, "x", false},
		{"", "", true},
		{"", "x", false},
		{"a*c", "abbbc", true},
		{"a*c", "abbb", false},
		{"**", "x", true},
	}
	for _, c := range cases {
		require.Equal(t, c.want, patternMatch(c.pattern, c.s),
			"pattern %q against %q", c.pattern, c.s)
	}
}

func TestFormatFloat(t *testing.T) {
	cases := map[float64]string{
		1:              "1",
		1.5:            "1.5",
		10.0:           "10",
		-0.25:          "-0.25",
		math.Inf(1):    "inf",
		math.Inf(-1):   "-inf",
		0:              "0",
		3.0000000001:   "3.0000000001",
		-9223372036854: "-9223372036854",
	}
	for in, want := range cases {
		require.Equal(t, want, formatFloat(in))
	}
}

func TestParseFloatRejectsNaN(t *testing.T) {
	_, ok := parseFloat("nan")
	require.False(t, ok)
	_, ok = parseFloat("NaN")
	require.False(t, ok)

	f, ok := parseFloat("+inf")
	require.True(t, ok)
	require.True(t, math.IsInf(f, 1))
	f, ok = parseFloat("-Infinity")
	require.True(t, ok)
	require.True(t, math.IsInf(f, -1))
}

func TestStreamIDParsing(t *testing.T) {
	id, star, ok := parseStreamID("5-3", 0)
	require.True(t, ok)
	require.False(t, star)
	require.Equal(t, streamID{5, 3}, id)

	id, _, ok = parseStreamID("7", 0)
	require.True(t, ok)
	require.Equal(t, streamID{7, 0}, id)

	id, star, ok = parseStreamID("7-*", 0)
	require.True(t, ok)
	require.True(t, star)
	require.Equal(t, uint64(7), id.ms)

	_, _, ok = parseStreamID("abc", 0)
	require.False(t, ok)

	require.True(t, streamID{1, 5}.less(streamID{2, 0}))
	require.True(t, streamID{2, 1}.less(streamID{2, 2}))
	require.False(t, streamID{2, 2}.less(streamID{2, 2}))
	require.Equal(t, streamID{3, 0}, streamID{2, math.MaxUint64}.next())
}

func TestRangeBounds(t *testing.T) {
	b, ok := parseScoreBound("(1.5")
	require.True(t, ok)
	require.True(t, b.excl)
	require.Equal(t, 1.5, b.val)

	b, ok = parseScoreBound("-inf")
	require.True(t, ok)
	require.True(t, math.IsInf(b.val, -1))

	_, ok = parseScoreBound("abc")
	require.False(t, ok)

	lb, ok := parseLexBound("[foo")
	require.True(t, ok)
	require.Equal(t, "foo", lb.val)
	require.False(t, lb.excl)

	lb, ok = parseLexBound("(foo")
	require.True(t, ok)
	require.True(t, lb.excl)

	lb, ok = parseLexBound("-")
	require.True(t, ok)
	require.True(t, lb.min)

	_, ok = parseLexBound("foo")
	require.False(t, ok)

	min, _ := parseLexBound("(a")
	max, _ := parseLexBound("[c")
	require.True(t, inLexRange("b", min, max))
	require.True(t, inLexRange("c", min, max))
	require.False(t, inLexRange("a", min, max))
	require.False(t, inLexRange("d", min, max))
}

func TestNotifyFlagRoundTrip(t *testing.T) {
	flags, ok := parseNotifyFlags("KEA")
	require.True(t, ok)
	require.NotZero(t, flags&notifyKeyspace)
	require.NotZero(t, flags&notifyKeyevent)
	require.NotZero(t, flags&notifyExpired)

	_, ok = parseNotifyFlags("Kq")
	require.False(t, ok)

	flags, ok = parseNotifyFlags("Ex")
	require.True(t, ok)
	require.Equal(t, "Ex", formatNotifyFlags(flags))
}

func TestBitFieldRanges(t *testing.T) {
	lo, hi := fieldRange(bitFieldType{width: 8, unsigned: true})
	require.Equal(t, int64(0), lo)
	require.Equal(t, int64(255), hi)

	lo, hi = fieldRange(bitFieldType{width: 8})
	require.Equal(t, int64(-128), lo)
	require.Equal(t, int64(127), hi)

	// WRAP semantics at the boundary.
	v, ok := bitFieldIncr(127, 1, bitFieldType{width: 8}, "WRAP")
	require.True(t, ok)
	require.Equal(t, int64(-128), v)
	v, ok = bitFieldIncr(127, 1, bitFieldType{width: 8}, "SAT")
	require.True(t, ok)
	require.Equal(t, int64(127), v)
	_, ok = bitFieldIncr(127, 1, bitFieldType{width: 8}, "FAIL")
	require.False(t, ok)
}

func TestGeoEncodeDecodeRoundTrip(t *testing.T) {
	lon, lat := 13.361389, 38.115556 // Palermo
	bits := geoEncode(lon, lat)
	gotLon, gotLat := geoDecode(bits)
	require.InDelta(t, lon, gotLon, 0.001)
	require.InDelta(t, lat, gotLat, 0.001)

	// Palermo to Catania is about 166 km.
	d := geoDistance(13.361389, 38.115556, 15.087269, 37.502669)
	require.InDelta(t, 166274, d, 500)
}
