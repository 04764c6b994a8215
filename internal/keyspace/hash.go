package keyspace

import (
	"math"
	"sort"
	"strconv"
)

// Hash is a field→value mapping (generalized from the teacher's Hash, which
// held the same shape for string fields/values).
type Hash struct {
	fields map[string][]byte
}

func newHash() *Hash { return &Hash{fields: make(map[string][]byte)} }

func (h *Hash) clone() *Hash {
	cp := newHash()
	for k, v := range h.fields {
		b := make([]byte, len(v))
		copy(b, v)
		cp.fields[k] = b
	}
	return cp
}

func asHash(e *Entry) (*Hash, bool) {
	if e == nil {
		return nil, true
	}
	if e.Kind != KindHash {
		return nil, false
	}
	return e.Value.(*Hash), true
}

// HSet stores field/value pairs and returns the number of fields newly
// created (existing fields are overwritten but don't count).
func (ks *Keyspace) HSet(key string, pairs [][2][]byte) (created int, err error) {
	ks.withWrite(key, func(e *Entry, exists bool) {
		var h *Hash
		if exists {
			var ok bool
			h, ok = asHash(e)
			if !ok {
				err = ErrWrongType
				return
			}
		} else {
			h = newHash()
			ks.storeLocked(key, &Entry{Kind: KindHash, Value: h})
		}
		for _, p := range pairs {
			field, val := string(p[0]), append([]byte(nil), p[1]...)
			if _, had := h.fields[field]; !had {
				created++
			}
			h.fields[field] = val
		}
	})
	return created, err
}

// HSetNX sets field only if it does not already exist. Returns false if it
// was already present.
func (ks *Keyspace) HSetNX(key, field string, val []byte) (set bool, err error) {
	ks.withWrite(key, func(e *Entry, exists bool) {
		var h *Hash
		if exists {
			var ok bool
			h, ok = asHash(e)
			if !ok {
				err = ErrWrongType
				return
			}
		} else {
			h = newHash()
			ks.storeLocked(key, &Entry{Kind: KindHash, Value: h})
		}
		if _, had := h.fields[field]; had {
			return
		}
		h.fields[field] = append([]byte(nil), val...)
		set = true
	})
	return set, err
}

// HGet returns the value of field, or found==false if absent.
func (ks *Keyspace) HGet(key, field string) (val []byte, found bool, err error) {
	ks.withRead(key, func(e *Entry, exists bool) {
		if !exists {
			return
		}
		h, ok := asHash(e)
		if !ok {
			err = ErrWrongType
			return
		}
		v, has := h.fields[field]
		if !has {
			return
		}
		val = append([]byte(nil), v...)
		found = true
	})
	return val, found, err
}

// HDel removes the given fields, returning how many actually existed.
func (ks *Keyspace) HDel(key string, fields []string) (removed int, err error) {
	ks.withWrite(key, func(e *Entry, exists bool) {
		if !exists {
			return
		}
		h, ok := asHash(e)
		if !ok {
			err = ErrWrongType
			return
		}
		for _, f := range fields {
			if _, has := h.fields[f]; has {
				delete(h.fields, f)
				removed++
			}
		}
		ks.deleteIfEmptyLocked(key, len(h.fields) == 0)
	})
	return removed, err
}

// HGetAll returns the full field/value mapping as a slice of
// {field, value} pairs, sorted by field so responses are
// deterministic for tests.
func (ks *Keyspace) HGetAll(key string) (out [][2][]byte, err error) {
	ks.withRead(key, func(e *Entry, exists bool) {
		if !exists {
			return
		}
		h, ok := asHash(e)
		if !ok {
			err = ErrWrongType
			return
		}
		keys := make([]string, 0, len(h.fields))
		for f := range h.fields {
			keys = append(keys, f)
		}
		sort.Strings(keys)
		for _, f := range keys {
			out = append(out, [2][]byte{[]byte(f), append([]byte(nil), h.fields[f]...)})
		}
	})
	return out, err
}

// HLen returns the number of fields (0 if absent).
func (ks *Keyspace) HLen(key string) (n int, err error) {
	ks.withRead(key, func(e *Entry, exists bool) {
		if !exists {
			return
		}
		h, ok := asHash(e)
		if !ok {
			err = ErrWrongType
			return
		}
		n = len(h.fields)
	})
	return n, err
}

// HExists reports whether field is present in the hash at key.
func (ks *Keyspace) HExists(key, field string) (exists bool, err error) {
	ks.withRead(key, func(e *Entry, present bool) {
		if !present {
			return
		}
		h, ok := asHash(e)
		if !ok {
			err = ErrWrongType
			return
		}
		_, exists = h.fields[field]
	})
	return exists, err
}

// HKeys returns all field names, sorted.
func (ks *Keyspace) HKeys(key string) (keys []string, err error) {
	all, herr := ks.HGetAll(key)
	if herr != nil {
		return nil, herr
	}
	for _, p := range all {
		keys = append(keys, string(p[0]))
	}
	return keys, nil
}

// HVals returns all values, ordered by field name.
func (ks *Keyspace) HVals(key string) (vals [][]byte, err error) {
	all, herr := ks.HGetAll(key)
	if herr != nil {
		return nil, herr
	}
	for _, p := range all {
		vals = append(vals, p[1])
	}
	return vals, nil
}

// HIncrBy adds delta to the integer stored in field (0 if absent).
func (ks *Keyspace) HIncrBy(key, field string, delta int64) (result int64, err error) {
	ks.withWrite(key, func(e *Entry, exists bool) {
		var h *Hash
		if exists {
			var ok bool
			h, ok = asHash(e)
			if !ok {
				err = ErrWrongType
				return
			}
		} else {
			h = newHash()
			ks.storeLocked(key, &Entry{Kind: KindHash, Value: h})
		}
		var cur int64
		if v, has := h.fields[field]; has {
			cur, err = parseInt(v)
			if err != nil {
				return
			}
		}
		sum := cur + delta
		if (delta > 0 && sum < cur) || (delta < 0 && sum > cur) {
			err = ErrOverflow
			return
		}
		result = sum
		h.fields[field] = []byte(strconv.FormatInt(result, 10))
	})
	return result, err
}

// HIncrByFloat adds delta to the float stored in field.
func (ks *Keyspace) HIncrByFloat(key, field string, delta float64) (result float64, err error) {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return 0, ErrNotFloat
	}
	ks.withWrite(key, func(e *Entry, exists bool) {
		var h *Hash
		if exists {
			var ok bool
			h, ok = asHash(e)
			if !ok {
				err = ErrWrongType
				return
			}
		} else {
			h = newHash()
			ks.storeLocked(key, &Entry{Kind: KindHash, Value: h})
		}
		var cur float64
		if v, has := h.fields[field]; has {
			cur, err = strconv.ParseFloat(string(v), 64)
			if err != nil {
				err = ErrNotFloat
				return
			}
		}
		result = cur + delta
		if math.IsNaN(result) || math.IsInf(result, 0) {
			err = ErrNotFloat
			return
		}
		h.fields[field] = []byte(strconv.FormatFloat(result, 'f', -1, 64))
	})
	return result, err
}

// HScan implements cursor-based iteration over a hash's fields, cursor
// semantics matching Keyspace.Scan.
func (ks *Keyspace) HScan(key string, cursor uint64, pattern string, count int) (nextCursor uint64, pairs [][2][]byte, err error) {
	all, herr := ks.HGetAll(key)
	if herr != nil {
		return 0, nil, herr
	}
	if count <= 0 {
		count = 10
	}
	if cursor >= uint64(len(all)) {
		return 0, nil, nil
	}
	end := cursor + uint64(count)
	if end >= uint64(len(all)) {
		end = uint64(len(all))
		nextCursor = 0
	} else {
		nextCursor = end
	}
	for _, p := range all[cursor:end] {
		if MatchGlob(pattern, string(p[0])) {
			pairs = append(pairs, p)
		}
	}
	return nextCursor, pairs, nil
}
