package keyspace

import (
	"math/rand"
	"sort"
)

// Set is an unordered collection of unique byte-slice members (generalized
// from the teacher's Set, which held the same shape via a map[string]struct{}).
type Set struct {
	members map[string]struct{}
}

func newSet() *Set { return &Set{members: make(map[string]struct{})} }

func (s *Set) clone() *Set {
	cp := newSet()
	for m := range s.members {
		cp.members[m] = struct{}{}
	}
	return cp
}

func asSet(e *Entry) (*Set, bool) {
	if e == nil {
		return nil, true
	}
	if e.Kind != KindSet {
		return nil, false
	}
	return e.Value.(*Set), true
}

// SAdd adds members, returning how many were newly added.
func (ks *Keyspace) SAdd(key string, members [][]byte) (added int, err error) {
	ks.withWrite(key, func(e *Entry, exists bool) {
		var s *Set
		if exists {
			var ok bool
			s, ok = asSet(e)
			if !ok {
				err = ErrWrongType
				return
			}
		} else {
			s = newSet()
			ks.storeLocked(key, &Entry{Kind: KindSet, Value: s})
		}
		for _, m := range members {
			member := string(m)
			if _, had := s.members[member]; !had {
				s.members[member] = struct{}{}
				added++
			}
		}
	})
	return added, err
}

// SRem removes members, returning how many actually existed.
func (ks *Keyspace) SRem(key string, members [][]byte) (removed int, err error) {
	ks.withWrite(key, func(e *Entry, exists bool) {
		if !exists {
			return
		}
		s, ok := asSet(e)
		if !ok {
			err = ErrWrongType
			return
		}
		for _, m := range members {
			k := string(m)
			if _, had := s.members[k]; had {
				delete(s.members, k)
				removed++
			}
		}
		ks.deleteIfEmptyLocked(key, len(s.members) == 0)
	})
	return removed, err
}

// SIsMember reports whether member is in the set at key.
func (ks *Keyspace) SIsMember(key string, member []byte) (yes bool, err error) {
	ks.withRead(key, func(e *Entry, exists bool) {
		if !exists {
			return
		}
		s, ok := asSet(e)
		if !ok {
			err = ErrWrongType
			return
		}
		_, yes = s.members[string(member)]
	})
	return yes, err
}

// SCard returns the number of members (0 if absent).
func (ks *Keyspace) SCard(key string) (n int, err error) {
	ks.withRead(key, func(e *Entry, exists bool) {
		if !exists {
			return
		}
		s, ok := asSet(e)
		if !ok {
			err = ErrWrongType
			return
		}
		n = len(s.members)
	})
	return n, err
}

// SMembers returns all members, sorted for deterministic responses.
func (ks *Keyspace) SMembers(key string) (members []string, err error) {
	ks.withRead(key, func(e *Entry, exists bool) {
		if !exists {
			return
		}
		s, ok := asSet(e)
		if !ok {
			err = ErrWrongType
			return
		}
		for m := range s.members {
			members = append(members, m)
		}
		sort.Strings(members)
	})
	return members, err
}

// readSet snapshots the live members of key as a map, or nil if absent.
// Used by the N-key combinators below.
func (ks *Keyspace) readSet(key string) (map[string]struct{}, error) {
	var out map[string]struct{}
	var opErr error
	ks.withRead(key, func(e *Entry, exists bool) {
		if !exists {
			return
		}
		s, ok := asSet(e)
		if !ok {
			opErr = ErrWrongType
			return
		}
		out = make(map[string]struct{}, len(s.members))
		for m := range s.members {
			out[m] = struct{}{}
		}
	})
	return out, opErr
}

// SUnion returns the union of the sets at keys.
func (ks *Keyspace) SUnion(keys []string) ([]string, error) {
	union := make(map[string]struct{})
	for _, k := range keys {
		s, err := ks.readSet(k)
		if err != nil {
			return nil, err
		}
		for m := range s {
			union[m] = struct{}{}
		}
	}
	return sortedKeys(union), nil
}

// SInter returns the intersection of the sets at keys (empty if any key is
// absent, matching Redis).
func (ks *Keyspace) SInter(keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	base, err := ks.readSet(keys[0])
	if err != nil {
		return nil, err
	}
	if base == nil {
		return nil, nil
	}
	result := base
	for _, k := range keys[1:] {
		s, err := ks.readSet(k)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, nil
		}
		next := make(map[string]struct{})
		for m := range result {
			if _, ok := s[m]; ok {
				next[m] = struct{}{}
			}
		}
		result = next
	}
	return sortedKeys(result), nil
}

// SDiff returns the members of the first set not present in any subsequent
// set.
func (ks *Keyspace) SDiff(keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	base, err := ks.readSet(keys[0])
	if err != nil {
		return nil, err
	}
	if base == nil {
		return nil, nil
	}
	result := make(map[string]struct{}, len(base))
	for m := range base {
		result[m] = struct{}{}
	}
	for _, k := range keys[1:] {
		s, err := ks.readSet(k)
		if err != nil {
			return nil, err
		}
		for m := range s {
			delete(result, m)
		}
	}
	return sortedKeys(result), nil
}

// storeSet replaces dst with the given member set, counting as a single
// mutation; an empty result deletes dst.
func (ks *Keyspace) storeSet(dst string, members []string) int {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if len(members) == 0 {
		if _, ok := ks.entries[dst]; ok {
			delete(ks.entries, dst)
			ks.bumpChanges()
		}
		return 0
	}
	s := newSet()
	for _, m := range members {
		s.members[m] = struct{}{}
	}
	ks.entries[dst] = &Entry{Kind: KindSet, Value: s}
	ks.bumpChanges()
	return len(members)
}

func (ks *Keyspace) SUnionStore(dst string, keys []string) (int, error) {
	members, err := ks.SUnion(keys)
	if err != nil {
		return 0, err
	}
	return ks.storeSet(dst, members), nil
}

func (ks *Keyspace) SInterStore(dst string, keys []string) (int, error) {
	members, err := ks.SInter(keys)
	if err != nil {
		return 0, err
	}
	return ks.storeSet(dst, members), nil
}

func (ks *Keyspace) SDiffStore(dst string, keys []string) (int, error) {
	members, err := ks.SDiff(keys)
	if err != nil {
		return 0, err
	}
	return ks.storeSet(dst, members), nil
}

// SPop removes and returns up to count random members.
func (ks *Keyspace) SPop(key string, count int) (popped []string, err error) {
	ks.withWrite(key, func(e *Entry, exists bool) {
		if !exists {
			return
		}
		s, ok := asSet(e)
		if !ok {
			err = ErrWrongType
			return
		}
		all := make([]string, 0, len(s.members))
		for m := range s.members {
			all = append(all, m)
		}
		rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
		if count > len(all) {
			count = len(all)
		}
		popped = all[:count]
		for _, m := range popped {
			delete(s.members, m)
		}
		ks.deleteIfEmptyLocked(key, len(s.members) == 0)
	})
	return popped, err
}

// SRandMember returns up to |count| random members without removing them.
// count<0 allows repeats and always returns exactly |count| picks; count>=0
// returns up to count distinct members.
func (ks *Keyspace) SRandMember(key string, count int) (picked []string, err error) {
	ks.withRead(key, func(e *Entry, exists bool) {
		if !exists {
			return
		}
		s, ok := asSet(e)
		if !ok {
			err = ErrWrongType
			return
		}
		all := make([]string, 0, len(s.members))
		for m := range s.members {
			all = append(all, m)
		}
		if len(all) == 0 {
			return
		}
		if count < 0 {
			n := -count
			picked = make([]string, n)
			for i := 0; i < n; i++ {
				picked[i] = all[rand.Intn(len(all))]
			}
			return
		}
		rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
		if count > len(all) {
			count = len(all)
		}
		picked = all[:count]
	})
	return picked, err
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
