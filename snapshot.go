/*
Package fakeredis persistence hook.

SAVE, BGSAVE, LASTSAVE and DEBUG RELOAD ride on an injected
Snapshotter whose contract is: produce an opaque snapshot of the entire
keyspace that can later be restored onto the same server. The default
implementation deep-copies the databases in memory, which is all the
emulator needs; a real persistence layer can be plugged in through the
Server.Snapshotter field.
*/
package fakeredis

// Snapshot is an opaque capture of server keyspace state
type Snapshot interface {
	// Restore replaces the server's keyspace with the captured state.
	// Called with the execution lock held.
	Restore(s *Server) error
}

// Snapshotter produces snapshots of the entire server state
type Snapshotter interface {
	// Save captures the current keyspace. Called with the execution
	// lock held.
	Save(s *Server) (Snapshot, error)
}

type memorySnapshotter struct{}

type memorySnapshot struct {
	dbs []map[string]*entry
}

// Save deep-copies every database
func (memorySnapshotter) Save(s *Server) (Snapshot, error) {
	snap := &memorySnapshot{dbs: make([]map[string]*entry, len(s.dbs))}
	for i, db := range s.dbs {
		copied := make(map[string]*entry, len(db.keys))
		for k, e := range db.keys {
			copied[k] = copyEntry(e)
		}
		snap.dbs[i] = copied
	}
	return snap, nil
}

// Restore swaps the captured databases back in, stamping every touched
// key so watched transactions abort
func (snap *memorySnapshot) Restore(s *Server) error {
	for i, db := range s.dbs {
		if i >= len(snap.dbs) {
			break
		}
		for k := range db.keys {
			db.bump(k)
		}
		db.keys = make(map[string]*entry, len(snap.dbs[i]))
		for k, e := range snap.dbs[i] {
			db.keys[k] = copyEntry(e)
			db.bump(k)
		}
	}
	return nil
}

// copyEntry clones an entry including its aggregate payload
func copyEntry(e *entry) *entry {
	out := &entry{kind: e.kind, str: e.str, expireAt: e.expireAt}
	switch e.kind {
	case kindList:
		out.list = append([]string{}, e.list...)
	case kindHash:
		out.hash = make(map[string]string, len(e.hash))
		for f, v := range e.hash {
			out.hash[f] = v
		}
	case kindSet:
		out.set = make(map[string]struct{}, len(e.set))
		for m := range e.set {
			out.set[m] = struct{}{}
		}
	case kindZSet:
		out.zset = newSortedSet()
		for m, score := range e.zset.members {
			out.zset.members[m] = score
		}
	case kindStream:
		st := newStream()
		st.entries = make([]streamEntry, len(e.stream.entries))
		for i, se := range e.stream.entries {
			st.entries[i] = streamEntry{id: se.id, fields: append([]string{}, se.fields...)}
		}
		st.lastID = e.stream.lastID
		st.maxDeletedID = e.stream.maxDeletedID
		st.addedCount = e.stream.addedCount
		for name, g := range e.stream.groups {
			ng := newConsumerGroup(g.lastDelivered)
			for id, p := range g.pending {
				ng.pending[id] = &pendingEntry{id: p.id, consumer: p.consumer, deliveryTime: p.deliveryTime, deliveryCount: p.deliveryCount}
			}
			for cn, c := range g.consumers {
				ng.consumers[cn] = &consumer{name: c.name, seenTime: c.seenTime}
			}
			st.groups[name] = ng
		}
		out.stream = st
	}
	return out
}
