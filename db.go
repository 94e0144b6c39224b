/*
Package fakeredis keyspace implementation.

A DB is one numbered database: a map from binary key to a tagged entry
holding exactly one value kind, an optional absolute-millisecond expiry
and a per-key write version used by WATCH.

Expiration is lazy at the single choke point that resolves a key to an
entry (lookup); the active sweep in server.go samples volatile keys so
TTL events also fire without access. A key exists iff its entry is live
and its expiry, if any, is in the future.

All methods assume the server execution lock is held.
*/
package fakeredis

import "sort"

// keyKind tags the value variant a key holds
type keyKind int

const (
	kindString keyKind = iota
	kindList
	kindHash
	kindSet
	kindZSet
	kindStream
)

// String returns the TYPE command's name for the kind
func (k keyKind) String() string {
	switch k {
	case kindString:
		return "string"
	case kindList:
		return "list"
	case kindHash:
		return "hash"
	case kindSet:
		return "set"
	case kindZSet:
		return "zset"
	case kindStream:
		return "stream"
	}
	return "none"
}

// entry is the tagged value variant. kind selects the live field; a
// key's kind is immutable for the key's lifetime.
type entry struct {
	kind     keyKind
	str      string
	list     []string
	hash     map[string]string
	set      map[string]struct{}
	zset     *sortedSet
	stream   *stream
	expireAt int64 // absolute unix milliseconds; 0 means no expiry
}

// size returns the aggregate cardinality (string length for strings,
// entry count for streams)
func (e *entry) size() int {
	switch e.kind {
	case kindString:
		return len(e.str)
	case kindList:
		return len(e.list)
	case kindHash:
		return len(e.hash)
	case kindSet:
		return len(e.set)
	case kindZSet:
		return e.zset.len()
	case kindStream:
		return len(e.stream.entries)
	}
	return 0
}

// wrongKind reports a live entry of a different kind (the single
// type-mismatch predicate handlers use)
func wrongKind(e *entry, k keyKind) bool {
	return e != nil && e.kind != k
}

// DB is one numbered database
type DB struct {
	srv      *Server
	id       int
	keys     map[string]*entry
	versions map[string]uint64
}

func newDB(srv *Server, id int) *DB {
	return &DB{
		srv:      srv,
		id:       id,
		keys:     make(map[string]*entry),
		versions: make(map[string]uint64),
	}
}

// nowMs reads the authoritative clock in unix milliseconds
func (db *DB) nowMs() int64 {
	return db.srv.clock.Now().UnixMilli()
}

// expireIfDue deletes key if its TTL has passed. Returns true when the
// key was expired by this call. Expiry counts as a write for WATCH and
// emits the "expired" notification.
func (db *DB) expireIfDue(key string) bool {
	e, ok := db.keys[key]
	if !ok {
		return false
	}
	if e.expireAt > 0 && e.expireAt <= db.nowMs() {
		delete(db.keys, key)
		db.bump(key)
		db.srv.signalKey(db.id, key)
		db.srv.statExpired.Add(1)
		db.srv.emitEvent(db.id, notifyExpired, "expired", key)
		return true
	}
	return false
}

// lookup resolves key to its live entry, applying lazy expiration.
// Returns nil for absent or stale keys.
func (db *DB) lookup(key string) *entry {
	db.expireIfDue(key)
	return db.keys[key]
}

// exists reports whether key is live
func (db *DB) exists(key string) bool {
	return db.lookup(key) != nil
}

// getOrCreate returns the live entry of the wanted kind, creating an
// empty one when the key is absent. The second result is false when the
// key holds a different kind.
func (db *DB) getOrCreate(key string, kind keyKind) (*entry, bool) {
	e := db.lookup(key)
	if e != nil {
		if e.kind != kind {
			return nil, false
		}
		return e, true
	}
	e = &entry{kind: kind}
	switch kind {
	case kindHash:
		e.hash = make(map[string]string)
	case kindSet:
		e.set = make(map[string]struct{})
	case kindZSet:
		e.zset = newSortedSet()
	case kindStream:
		e.stream = newStream()
	}
	db.keys[key] = e
	db.srv.emitEvent(db.id, notifyNew, "new", key)
	return e, true
}

// setString stores a string value, replacing whatever was there
func (db *DB) setString(key, value string, keepTTL bool) {
	old := db.lookup(key)
	e := &entry{kind: kindString, str: value}
	if keepTTL && old != nil {
		e.expireAt = old.expireAt
	}
	if old == nil {
		db.srv.emitEvent(db.id, notifyNew, "new", key)
	}
	db.keys[key] = e
}

// bump stamps the key with the next global write version
func (db *DB) bump(key string) {
	db.srv.version++
	db.versions[key] = db.srv.version
}

// touch finalizes a successful write on key: version stamp, wakeup of
// blocked waiters, keyspace notification.
func (db *DB) touch(class int, event, key string) {
	db.bump(key)
	db.srv.signalKey(db.id, key)
	db.srv.emitEvent(db.id, class, event, key)
}

// remove deletes key without emitting events. Returns whether a live
// key was removed.
func (db *DB) remove(key string) bool {
	if db.lookup(key) == nil {
		return false
	}
	delete(db.keys, key)
	db.bump(key)
	db.srv.signalKey(db.id, key)
	return true
}

// removeIfEmpty enforces the empty-aggregate invariant: a zero-length
// list/hash/set/zset may not exist. Streams persist after their last
// entry because consumer groups still reference them.
func (db *DB) removeIfEmpty(key string) {
	e, ok := db.keys[key]
	if !ok || e.kind == kindString || e.kind == kindStream {
		return
	}
	if e.size() == 0 {
		delete(db.keys, key)
		db.bump(key)
		db.srv.emitEvent(db.id, notifyGeneric, "del", key)
	}
}

// setExpire sets (or clears, with 0) the absolute-ms expiry on a live key
func (db *DB) setExpire(key string, atMs int64) {
	if e, ok := db.keys[key]; ok {
		e.expireAt = atMs
	}
}

// keysLive returns all live keys in bytewise order
func (db *DB) keysLive() []string {
	out := make([]string, 0, len(db.keys))
	for k := range db.keys {
		if e := db.keys[k]; e.expireAt > 0 && e.expireAt <= db.nowMs() {
			db.expireIfDue(k)
			continue
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// randomKey returns a uniformly random live key, or "" when empty
func (db *DB) randomKey() string {
	live := db.keysLive()
	if len(live) == 0 {
		return ""
	}
	return live[db.srv.rng.Intn(len(live))]
}

// flush drops every key, stamping each so watched transactions abort
func (db *DB) flush() {
	for k := range db.keys {
		db.bump(k)
	}
	db.keys = make(map[string]*entry)
}

// sweepExpired checks up to sample volatile keys for due TTLs
func (db *DB) sweepExpired(sample int) {
	checked := 0
	for key, e := range db.keys {
		if e.expireAt == 0 {
			continue
		}
		db.expireIfDue(key)
		checked++
		if checked >= sample {
			return
		}
	}
}
