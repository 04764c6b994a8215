package keyspace

import "time"

// SnapshotEntry is a flattened, package-external view of one Entry, used by
// RDB save/load and AOF rewrite so those packages never need to reach into
// the unexported container types (List, Hash, Set, SortedSet, ...).
type SnapshotEntry struct {
	Kind      Kind
	ExpiresAt time.Time

	Str    []byte
	List   [][]byte
	Hash   [][2][]byte
	Set    []string
	ZSet   []ZMember
	Bitmap []byte

	Stream       []StreamEntry
	StreamLastID StreamID

	Geo map[string]GeoPoint

	HLLRegisters []uint8
}

// Snapshot renders every live key into a flat, serialization-friendly form.
// Used by RDB save and by AOF BGREWRITE, both of which need a single
// consistent point-in-time view without exposing internal container types.
func (ks *Keyspace) Snapshot() map[string]SnapshotEntry {
	out := make(map[string]SnapshotEntry)
	ks.ForEachLive(func(key string, e *Entry) {
		se := SnapshotEntry{Kind: e.Kind, ExpiresAt: e.ExpiresAt}
		switch e.Kind {
		case KindString:
			sv := e.Value.(*StringValue)
			se.Str = append([]byte(nil), sv.Data...)
		case KindList:
			l := e.Value.(*List)
			for n := l.head; n != nil; n = n.next {
				se.List = append(se.List, append([]byte(nil), n.value...))
			}
		case KindHash:
			h := e.Value.(*Hash)
			for f, v := range h.fields {
				se.Hash = append(se.Hash, [2][]byte{[]byte(f), append([]byte(nil), v...)})
			}
		case KindSet:
			s := e.Value.(*Set)
			for m := range s.members {
				se.Set = append(se.Set, m)
			}
		case KindSortedSet:
			z := e.Value.(*SortedSet)
			for _, en := range z.ordered {
				se.ZSet = append(se.ZSet, ZMember{Score: en.score, Member: en.member})
			}
		case KindBitmap:
			b := e.Value.(*Bitmap)
			se.Bitmap = append([]byte(nil), b.bytes...)
		case KindStream:
			st := e.Value.(*Stream)
			se.Stream = append([]StreamEntry(nil), st.entries...)
			se.StreamLastID = st.lastID
		case KindGeo:
			g := e.Value.(*Geo)
			se.Geo = make(map[string]GeoPoint, len(g.points))
			for m, p := range g.points {
				se.Geo[m] = p
			}
		case KindHyperLogLog:
			h := e.Value.(*HyperLogLog)
			se.HLLRegisters = append([]uint8(nil), h.registers...)
		}
		out[key] = se
	})
	return out
}

// LoadSnapshot replaces the entire keyspace with the contents of snap,
// reconstructing each container type's internal representation directly.
// Used by RDB load at startup.
func (ks *Keyspace) LoadSnapshot(snap map[string]SnapshotEntry) {
	entries := make(map[string]*Entry, len(snap))
	for key, se := range snap {
		var e Entry
		e.Kind = se.Kind
		e.ExpiresAt = se.ExpiresAt
		switch se.Kind {
		case KindString:
			e.Value = &StringValue{Data: append([]byte(nil), se.Str...)}
		case KindList:
			l := newList()
			for _, v := range se.List {
				l.pushRight(v)
			}
			e.Value = l
		case KindHash:
			h := newHash()
			for _, kv := range se.Hash {
				h.fields[string(kv[0])] = kv[1]
			}
			e.Value = h
		case KindSet:
			s := newSet()
			for _, m := range se.Set {
				s.members[m] = struct{}{}
			}
			e.Value = s
		case KindSortedSet:
			z := newSortedSet()
			for _, zm := range se.ZSet {
				z.upsert(zm.Member, zm.Score)
			}
			e.Value = z
		case KindBitmap:
			e.Value = &Bitmap{bytes: append([]byte(nil), se.Bitmap...)}
		case KindStream:
			st := newStream()
			st.entries = append([]StreamEntry(nil), se.Stream...)
			st.lastID = se.StreamLastID
			e.Value = st
		case KindGeo:
			g := newGeo()
			for m, p := range se.Geo {
				g.points[m] = p
			}
			e.Value = g
		case KindHyperLogLog:
			h := newHyperLogLog()
			copy(h.registers, se.HLLRegisters)
			e.Value = h
		default:
			continue
		}
		entries[key] = &e
	}
	ks.Restore(entries)
}
