/*
Package fakeredis geo-family handlers. Positions live in a sorted set
whose scores are 52-bit geohashes, so the generic zset commands (ZREM,
ZCARD, ...) work on geo keys unchanged.
*/
package fakeredis

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

func (s *Server) registerGeoHandlers() {
	s.register("GEOADD", -5, cmdGeoAdd)
	s.register("GEOPOS", -2, cmdGeoPos)
	s.register("GEODIST", -4, cmdGeoDist)
	s.register("GEOHASH", -2, cmdGeoHash)
	s.register("GEOSEARCH", -7, cmdGeoSearch)
	s.register("GEOSEARCHSTORE", -8, cmdGeoSearchStore)
}

func cmdGeoAdd(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	key := cmd.Args[0]

	var nx, xx, ch bool
	args := cmd.Args[1:]
flagLoop:
	for len(args) > 0 {
		switch strings.ToUpper(args[0]) {
		case "NX":
			nx = true
		case "XX":
			xx = true
		case "CH":
			ch = true
		default:
			break flagLoop
		}
		args = args[1:]
	}
	if nx && xx {
		return errReply("ERR XX and NX options at the same time are not compatible")
	}
	if len(args) == 0 || len(args)%3 != 0 {
		return syntaxErrReply()
	}

	type item struct {
		score  float64
		member string
	}
	items := []item{}
	for i := 0; i < len(args); i += 3 {
		lon, okLon := parseFloat(args[i])
		lat, okLat := parseFloat(args[i+1])
		if !okLon || !okLat {
			return errReply(msgNotFloat)
		}
		if lon < geoLonMin || lon > geoLonMax || lat < geoLatMin || lat > geoLatMax {
			return errReply(fmt.Sprintf("ERR invalid longitude,latitude pair %s,%s", args[i], args[i+1]))
		}
		items = append(items, item{score: float64(geoEncode(lon, lat)), member: args[i+2]})
	}

	e, ok := db.getOrCreate(key, kindZSet)
	if !ok {
		return wrongTypeReply()
	}
	var added, changed int64
	for _, it := range items {
		old, exists := e.zset.score(it.member)
		if (nx && exists) || (xx && !exists) {
			continue
		}
		e.zset.set(it.member, it.score)
		if !exists {
			added++
			changed++
		} else if old != it.score {
			changed++
		}
	}
	if added+changed > 0 {
		db.touch(notifyZset, "geoadd", key)
	}
	db.removeIfEmpty(key)
	if ch {
		return intReply(changed)
	}
	return intReply(added)
}

// geoCoord formats a coordinate at the precision GEOPOS uses
func geoCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', 17, 64)
}

func cmdGeoPos(conn *Connection, cmd *Command) RedisValue {
	z, errV, ok := zsetValue(conn.database(), cmd.Args[0])
	if !ok {
		return errV
	}
	out := make([]RedisValue, len(cmd.Args)-1)
	for i, member := range cmd.Args[1:] {
		out[i] = nilArrayReply()
		if z == nil {
			continue
		}
		if score, exists := z.score(member); exists {
			lon, lat := geoDecode(uint64(score))
			out[i] = arrayReply(bulkReply(geoCoord(lon)), bulkReply(geoCoord(lat)))
		}
	}
	return arrayReply(out...)
}

func cmdGeoDist(conn *Connection, cmd *Command) RedisValue {
	z, errV, ok := zsetValue(conn.database(), cmd.Args[0])
	if !ok {
		return errV
	}
	unit := "m"
	if len(cmd.Args) == 4 {
		unit = strings.ToLower(cmd.Args[3])
	} else if len(cmd.Args) > 4 {
		return syntaxErrReply()
	}
	toMeters, okUnit := geoUnitToMeters(unit)
	if !okUnit {
		return errReply("ERR unsupported unit provided. please use M, KM, FT, MI")
	}
	if z == nil {
		return nilReply()
	}
	s1, ok1 := z.score(cmd.Args[1])
	s2, ok2 := z.score(cmd.Args[2])
	if !ok1 || !ok2 {
		return nilReply()
	}
	lon1, lat1 := geoDecode(uint64(s1))
	lon2, lat2 := geoDecode(uint64(s2))
	d := geoDistance(lon1, lat1, lon2, lat2) / toMeters
	return bulkReply(strconv.FormatFloat(d, 'f', 4, 64))
}

func cmdGeoHash(conn *Connection, cmd *Command) RedisValue {
	z, errV, ok := zsetValue(conn.database(), cmd.Args[0])
	if !ok {
		return errV
	}
	out := make([]RedisValue, len(cmd.Args)-1)
	for i, member := range cmd.Args[1:] {
		out[i] = nilReply()
		if z == nil {
			continue
		}
		if score, exists := z.score(member); exists {
			lon, lat := geoDecode(uint64(score))
			out[i] = bulkReply(geohashString(lon, lat))
		}
	}
	return arrayReply(out...)
}

/*
GEOSEARCH / GEOSEARCHSTORE

The search origin is FROMMEMBER or FROMLONLAT; the area BYRADIUS or
BYBOX. Candidates are filtered by true haversine distance (or box
half-extents), then ordered ASC/DESC and capped by COUNT.
*/

type geoSearchArgs struct {
	fromMember string
	hasMember  bool
	lon, lat   float64
	hasLonLat  bool

	radius     float64 // meters; <0 when BYBOX
	boxW, boxH float64 // meters
	byBox      bool

	sortAsc  bool
	sortDesc bool
	count    int64
	any      bool

	withCoord, withDist, withHash bool
}

func parseGeoSearchArgs(args []string, allowWith bool) (geoSearchArgs, RedisValue) {
	a := geoSearchArgs{radius: -1}
	for len(args) > 0 {
		switch strings.ToUpper(args[0]) {
		case "FROMMEMBER":
			if len(args) < 2 {
				return a, syntaxErrReply()
			}
			a.fromMember = args[1]
			a.hasMember = true
			args = args[2:]
		case "FROMLONLAT":
			if len(args) < 3 {
				return a, syntaxErrReply()
			}
			lon, okLon := parseFloat(args[1])
			lat, okLat := parseFloat(args[2])
			if !okLon || !okLat {
				return a, errReply(msgNotFloat)
			}
			a.lon, a.lat = lon, lat
			a.hasLonLat = true
			args = args[3:]
		case "BYRADIUS":
			if len(args) < 3 {
				return a, syntaxErrReply()
			}
			r, okR := parseFloat(args[1])
			unitM, okU := geoUnitToMeters(strings.ToLower(args[2]))
			if !okR || !okU {
				return a, errReply("ERR unsupported unit provided. please use M, KM, FT, MI")
			}
			a.radius = r * unitM
			args = args[3:]
		case "BYBOX":
			if len(args) < 4 {
				return a, syntaxErrReply()
			}
			w, okW := parseFloat(args[1])
			h, okH := parseFloat(args[2])
			unitM, okU := geoUnitToMeters(strings.ToLower(args[3]))
			if !okW || !okH || !okU {
				return a, errReply("ERR unsupported unit provided. please use M, KM, FT, MI")
			}
			a.byBox = true
			a.boxW, a.boxH = w*unitM, h*unitM
			args = args[4:]
		case "ASC":
			a.sortAsc = true
			args = args[1:]
		case "DESC":
			a.sortDesc = true
			args = args[1:]
		case "COUNT":
			if len(args) < 2 {
				return a, syntaxErrReply()
			}
			n, okC := parseInt(args[1])
			if !okC || n <= 0 {
				return a, errReply("ERR COUNT must be > 0")
			}
			a.count = n
			args = args[2:]
			if len(args) > 0 && strings.EqualFold(args[0], "ANY") {
				a.any = true
				args = args[1:]
			}
		case "WITHCOORD":
			if !allowWith {
				return a, syntaxErrReply()
			}
			a.withCoord = true
			args = args[1:]
		case "WITHDIST":
			if !allowWith {
				return a, syntaxErrReply()
			}
			a.withDist = true
			args = args[1:]
		case "WITHHASH":
			if !allowWith {
				return a, syntaxErrReply()
			}
			a.withHash = true
			args = args[1:]
		case "STOREDIST":
			// Only meaningful for GEOSEARCHSTORE; handled by its caller.
			args = args[1:]
		default:
			return a, syntaxErrReply()
		}
	}
	if a.hasMember == a.hasLonLat {
		return a, syntaxErrReply()
	}
	if (a.radius < 0) == !a.byBox {
		return a, syntaxErrReply()
	}
	return a, RedisValue{}
}

type geoHit struct {
	member   string
	dist     float64
	lon, lat float64
	score    float64
}

func geoSearchExec(z *sortedSet, a geoSearchArgs) ([]geoHit, RedisValue) {
	if z == nil {
		return nil, RedisValue{}
	}
	originLon, originLat := a.lon, a.lat
	if a.hasMember {
		score, ok := z.score(a.fromMember)
		if !ok {
			return nil, errReply("ERR could not decode requested zset member")
		}
		originLon, originLat = geoDecode(uint64(score))
	}

	hits := []geoHit{}
	for member, score := range z.members {
		lon, lat := geoDecode(uint64(score))
		d := geoDistance(originLon, originLat, lon, lat)
		if a.byBox {
			// Half-extent check along each axis.
			dx := geoDistance(originLon, originLat, lon, originLat)
			dy := geoDistance(originLon, originLat, originLon, lat)
			if dx > a.boxW/2 || dy > a.boxH/2 {
				continue
			}
		} else if d > a.radius {
			continue
		}
		hits = append(hits, geoHit{member: member, dist: d, lon: lon, lat: lat, score: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if a.sortDesc {
			return hits[i].dist > hits[j].dist
		}
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].member < hits[j].member
	})
	if a.count > 0 && int64(len(hits)) > a.count {
		hits = hits[:a.count]
	}
	return hits, RedisValue{}
}

func cmdGeoSearch(conn *Connection, cmd *Command) RedisValue {
	a, errA := parseGeoSearchArgs(cmd.Args[1:], true)
	if errA.Type == ErrorReply {
		return errA
	}
	z, errV, ok := zsetValue(conn.database(), cmd.Args[0])
	if !ok {
		return errV
	}
	hits, errH := geoSearchExec(z, a)
	if errH.Type == ErrorReply {
		return errH
	}

	plain := !a.withCoord && !a.withDist && !a.withHash
	out := []RedisValue{}
	for _, h := range hits {
		if plain {
			out = append(out, bulkReply(h.member))
			continue
		}
		row := []RedisValue{bulkReply(h.member)}
		if a.withDist {
			row = append(row, bulkReply(strconv.FormatFloat(h.dist, 'f', 4, 64)))
		}
		if a.withHash {
			row = append(row, intReply(int64(h.score)))
		}
		if a.withCoord {
			row = append(row, arrayReply(bulkReply(geoCoord(h.lon)), bulkReply(geoCoord(h.lat))))
		}
		out = append(out, arrayReply(row...))
	}
	return arrayReply(out...)
}

func cmdGeoSearchStore(conn *Connection, cmd *Command) RedisValue {
	db := conn.database()
	dst, src := cmd.Args[0], cmd.Args[1]
	storeDist := false
	for _, arg := range cmd.Args[2:] {
		if strings.EqualFold(arg, "STOREDIST") {
			storeDist = true
		}
	}
	a, errA := parseGeoSearchArgs(cmd.Args[2:], false)
	if errA.Type == ErrorReply {
		return errA
	}
	z, errV, ok := zsetValue(db, src)
	if !ok {
		return errV
	}
	hits, errH := geoSearchExec(z, a)
	if errH.Type == ErrorReply {
		return errH
	}
	if len(hits) == 0 {
		if db.remove(dst) {
			db.srv.emitEvent(db.id, notifyGeneric, "del", dst)
		}
		return intReply(0)
	}
	out := newSortedSet()
	for _, h := range hits {
		if storeDist {
			out.set(h.member, h.dist)
		} else {
			out.set(h.member, h.score)
		}
	}
	db.keys[dst] = &entry{kind: kindZSet, zset: out}
	db.touch(notifyZset, "geosearchstore", dst)
	return intReply(int64(len(out.members)))
}
