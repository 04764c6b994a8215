// Package keyspace implements the typed in-memory data model and its
// operation semantics: strings, lists, hashes, sets, sorted sets, bitmaps,
// streams, geo indexes and HyperLogLog sketches, all addressed by a single
// string-keyed map protected by one read/write mutex.
package keyspace

import (
	"sort"
	"sync"
	"time"
)

// Kind tags the variant held by an Entry. The zero value is never used for a
// live entry.
type Kind uint8

const (
	KindNone Kind = iota
	KindString
	KindList
	KindHash
	KindSet
	KindSortedSet
	KindBitmap
	KindStream
	KindGeo
	KindHyperLogLog
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindHash:
		return "hash"
	case KindSet:
		return "set"
	case KindSortedSet:
		return "zset"
	case KindBitmap:
		return "string" // bitmaps share Redis's "string" TYPE reporting
	case KindStream:
		return "stream"
	case KindGeo:
		return "zset" // geo is exposed as a sorted-set-like structure
	case KindHyperLogLog:
		return "string"
	default:
		return "none"
	}
}

// Entry is a typed value plus an optional absolute expiration deadline.
// ExpiresAt.IsZero() means no expiry.
type Entry struct {
	Kind      Kind
	Value     any // *StringValue, *List, *Hash, *Set, *SortedSet, *Bitmap, *Stream, *Geo, *HyperLogLog
	ExpiresAt time.Time
}

func (e *Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// StringValue wraps a byte slice so String shares the same pointer-value
// shape as the container types, keeping Entry's type switches uniform
// across variants.
type StringValue struct {
	Data []byte
}

// Keyspace is the shared, mutex-protected mapping from key to Entry. A
// single sync.RWMutex guards the whole map: reads take a shared lock,
// mutations take an exclusive lock, and no network I/O ever happens while
// the lock is held.
type Keyspace struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	// changes counts every mutating operation, consulted by the background
	// RDB save loop's "enough dirty writes" trigger.
	changes uint64

	clock func() time.Time
}

// New creates an empty keyspace.
func New() *Keyspace {
	return &Keyspace{
		entries: make(map[string]*Entry),
		clock:   time.Now,
	}
}

func (ks *Keyspace) now() time.Time { return ks.clock() }

// Changes returns the monotonic mutation counter.
func (ks *Keyspace) Changes() uint64 {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.changes
}

// ResetChanges zeroes the mutation counter after a snapshot.
func (ks *Keyspace) ResetChanges() {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.changes = 0
}

func (ks *Keyspace) bumpChanges() { ks.changes++ }

// withRead runs fn holding a shared lock, first evicting key if it has
// lazily expired (which requires a brief exclusive lock upgrade).
func (ks *Keyspace) withRead(key string, fn func(e *Entry, exists bool)) {
	now := ks.now()

	ks.mu.RLock()
	e, ok := ks.entries[key]
	expired := ok && e.expired(now)
	ks.mu.RUnlock()

	if expired {
		ks.mu.Lock()
		if cur, ok := ks.entries[key]; ok && cur.expired(now) {
			delete(ks.entries, key)
			ks.bumpChanges()
		}
		ks.mu.Unlock()
		fn(nil, false)
		return
	}

	ks.mu.RLock()
	defer ks.mu.RUnlock()
	e, ok = ks.entries[key]
	if ok && e.expired(now) {
		ok = false
	}
	fn(e, ok)
}

// withWrite runs fn holding the exclusive lock, having first evicted key if
// expired. fn may mutate ks.entries[key] directly or call the delete/store
// helpers below.
func (ks *Keyspace) withWrite(key string, fn func(e *Entry, exists bool)) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	now := ks.now()
	e, ok := ks.entries[key]
	if ok && e.expired(now) {
		delete(ks.entries, key)
		ks.bumpChanges()
		e, ok = nil, false
	}
	fn(e, ok)
}

func (ks *Keyspace) storeLocked(key string, e *Entry) {
	ks.entries[key] = e
	ks.bumpChanges()
}

func (ks *Keyspace) deleteLocked(key string) bool {
	if _, ok := ks.entries[key]; ok {
		delete(ks.entries, key)
		ks.bumpChanges()
		return true
	}
	return false
}

// deleteIfEmptyLocked removes key once its container Entry has been emptied
// out by a pop/remove operation, so empty lists/hashes/sets never linger.
// Caller must already hold the write lock and have identified e as the
// entry for key.
func (ks *Keyspace) deleteIfEmptyLocked(key string, empty bool) {
	if empty {
		delete(ks.entries, key)
		ks.bumpChanges()
	}
}

// --- Generic key commands (type-agnostic) ---

// Exists reports whether key holds a live entry.
func (ks *Keyspace) Exists(key string) bool {
	var found bool
	ks.withRead(key, func(e *Entry, exists bool) { found = exists })
	return found
}

// Del removes key unconditionally (also backs UNLINK, which is semantically
// identical in this single-writer design).
func (ks *Keyspace) Del(key string) bool {
	var removed bool
	ks.withWrite(key, func(e *Entry, exists bool) {
		removed = ks.deleteLocked(key)
	})
	return removed
}

// Type returns the RESP TYPE string for key, or "none" if absent.
func (ks *Keyspace) Type(key string) string {
	kind := KindNone
	ks.withRead(key, func(e *Entry, exists bool) {
		if exists {
			kind = e.Kind
		}
	})
	return kind.String()
}

// Expire sets an absolute deadline ttl from now; ttl<=0 deletes the key
// immediately (matching Redis's EXPIRE-with-nonpositive-seconds behavior).
// Returns false if the key does not exist.
func (ks *Keyspace) Expire(key string, ttl time.Duration) bool {
	var ok bool
	ks.withWrite(key, func(e *Entry, exists bool) {
		if !exists {
			return
		}
		ok = true
		if ttl <= 0 {
			ks.deleteLocked(key)
			return
		}
		e.ExpiresAt = ks.now().Add(ttl)
	})
	return ok
}

// ExpireAt sets an absolute deadline. Returns false if the key does not exist.
func (ks *Keyspace) ExpireAt(key string, at time.Time) bool {
	var ok bool
	ks.withWrite(key, func(e *Entry, exists bool) {
		if !exists {
			return
		}
		ok = true
		if !at.After(ks.now()) {
			ks.deleteLocked(key)
			return
		}
		e.ExpiresAt = at
	})
	return ok
}

// Persist removes any expiration deadline from key. Returns true only if a
// deadline was actually present and removed.
func (ks *Keyspace) Persist(key string) bool {
	var changed bool
	ks.withWrite(key, func(e *Entry, exists bool) {
		if exists && !e.ExpiresAt.IsZero() {
			e.ExpiresAt = time.Time{}
			changed = true
		}
	})
	return changed
}

// TTL returns remaining seconds (-2 absent, -1 no expiry).
func (ks *Keyspace) TTL(key string) int64 {
	return ks.ttlDuration(key, time.Second)
}

// PTTL returns remaining milliseconds (-2 absent, -1 no expiry).
func (ks *Keyspace) PTTL(key string) int64 {
	return ks.ttlDuration(key, time.Millisecond)
}

func (ks *Keyspace) ttlDuration(key string, unit time.Duration) int64 {
	var result int64 = -2
	ks.withRead(key, func(e *Entry, exists bool) {
		if !exists {
			result = -2
			return
		}
		if e.ExpiresAt.IsZero() {
			result = -1
			return
		}
		remaining := e.ExpiresAt.Sub(ks.now())
		if remaining < 0 {
			remaining = 0
		}
		result = int64(remaining / unit)
	})
	return result
}

// Keys returns every live key matching glob pattern.
func (ks *Keyspace) Keys(pattern string) []string {
	now := ks.now()
	var expired []string
	var matched []string

	ks.mu.RLock()
	for k, e := range ks.entries {
		if e.expired(now) {
			expired = append(expired, k)
			continue
		}
		if MatchGlob(pattern, k) {
			matched = append(matched, k)
		}
	}
	ks.mu.RUnlock()

	if len(expired) > 0 {
		ks.mu.Lock()
		for _, k := range expired {
			if e, ok := ks.entries[k]; ok && e.expired(now) {
				delete(ks.entries, k)
				ks.bumpChanges()
			}
		}
		ks.mu.Unlock()
	}

	sort.Strings(matched)
	return matched
}

// Scan implements cursor-based iteration: keys are sorted for a stable
// iteration order and the cursor is the index into that order.
func (ks *Keyspace) Scan(cursor uint64, pattern string, count int) (nextCursor uint64, keys []string) {
	if count <= 0 {
		count = 10
	}
	all := ks.Keys("*")

	if cursor >= uint64(len(all)) {
		return 0, nil
	}
	end := cursor + uint64(count)
	if end >= uint64(len(all)) {
		end = uint64(len(all))
		nextCursor = 0
	} else {
		nextCursor = end
	}
	for _, k := range all[cursor:end] {
		if MatchGlob(pattern, k) {
			keys = append(keys, k)
		}
	}
	return nextCursor, keys
}

// Rename moves src's entry to dst unconditionally. Returns false if src does
// not exist.
func (ks *Keyspace) Rename(src, dst string) bool {
	if src == dst {
		return ks.Exists(src)
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()
	now := ks.now()
	e, ok := ks.entries[src]
	if !ok || e.expired(now) {
		return false
	}
	delete(ks.entries, src)
	ks.entries[dst] = e
	ks.bumpChanges()
	return true
}

// RenameNX renames src to dst only if dst does not already exist.
func (ks *Keyspace) RenameNX(src, dst string) (bool, bool) {
	if src == dst {
		return false, ks.Exists(src)
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()
	now := ks.now()
	e, ok := ks.entries[src]
	if !ok || e.expired(now) {
		return false, false
	}
	if d, ok := ks.entries[dst]; ok && !d.expired(now) {
		return false, true
	}
	delete(ks.entries, src)
	ks.entries[dst] = e
	ks.bumpChanges()
	return true, true
}

// Copy duplicates src's entry to dst. If replace is false and dst already
// exists, Copy is a no-op returning false.
func (ks *Keyspace) Copy(src, dst string, replace bool) bool {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	now := ks.now()
	e, ok := ks.entries[src]
	if !ok || e.expired(now) {
		return false
	}
	if d, ok := ks.entries[dst]; ok && !d.expired(now) && !replace {
		return false
	}
	clone := &Entry{Kind: e.Kind, Value: cloneValue(e.Kind, e.Value), ExpiresAt: e.ExpiresAt}
	ks.entries[dst] = clone
	ks.bumpChanges()
	return true
}

// RandomKey returns an arbitrary live key, or "" if the keyspace is empty.
func (ks *Keyspace) RandomKey() (string, bool) {
	now := ks.now()
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	for k, e := range ks.entries {
		if !e.expired(now) {
			return k, true
		}
	}
	return "", false
}

// Touch updates nothing observable (no LRU/LFU in this implementation) but
// reports how many of the given keys exist, matching Redis's TOUCH.
func (ks *Keyspace) Touch(keys []string) int {
	n := 0
	for _, k := range keys {
		if ks.Exists(k) {
			n++
		}
	}
	return n
}

// DBSize returns the number of live keys.
func (ks *Keyspace) DBSize() int {
	now := ks.now()
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	n := 0
	for _, e := range ks.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// FlushDB removes every key.
func (ks *Keyspace) FlushDB() {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.entries = make(map[string]*Entry)
	ks.bumpChanges()
}

// SweepExpired deletes every currently-expired entry and returns how many
// were removed. Expiry is otherwise lazy (checked on access); a sweep only
// reclaims space held by keys nobody has touched since they expired. The
// server does not call it, so such keys stay in memory until touched.
func (ks *Keyspace) SweepExpired() int {
	now := ks.now()
	ks.mu.Lock()
	defer ks.mu.Unlock()
	n := 0
	for k, e := range ks.entries {
		if e.expired(now) {
			delete(ks.entries, k)
			n++
		}
	}
	if n > 0 {
		ks.bumpChanges()
	}
	return n
}

// ForEachLive calls fn for every non-expired entry, holding the read lock
// for the duration — used by RDB save and AOF rewrite, which must see a
// single consistent point-in-time view.
func (ks *Keyspace) ForEachLive(fn func(key string, e *Entry)) {
	now := ks.now()
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	for k, e := range ks.entries {
		if !e.expired(now) {
			fn(k, e)
		}
	}
}

// Restore replaces the entire keyspace atomically, as RDB load does at
// startup.
func (ks *Keyspace) Restore(entries map[string]*Entry) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.entries = entries
	ks.changes = 0
}

// SetRaw installs an entry directly, used by AOF replay and RDB load to
// reconstruct typed values without going through the public command API's
// argument parsing.
func (ks *Keyspace) SetRaw(key string, e *Entry) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.entries[key] = e
	ks.bumpChanges()
}

func cloneValue(kind Kind, v any) any {
	switch kind {
	case KindString:
		sv := v.(*StringValue)
		cp := make([]byte, len(sv.Data))
		copy(cp, sv.Data)
		return &StringValue{Data: cp}
	case KindList:
		return v.(*List).clone()
	case KindHash:
		return v.(*Hash).clone()
	case KindSet:
		return v.(*Set).clone()
	case KindSortedSet:
		return v.(*SortedSet).clone()
	case KindBitmap:
		return v.(*Bitmap).clone()
	case KindStream:
		return v.(*Stream).clone()
	case KindGeo:
		return v.(*Geo).clone()
	case KindHyperLogLog:
		return v.(*HyperLogLog).clone()
	default:
		return v
	}
}
