package keyspace

import (
	"math"
	"strconv"
	"time"
)

func asString(e *Entry) (*StringValue, bool) {
	if e == nil {
		return nil, true
	}
	if e.Kind != KindString {
		return nil, false
	}
	return e.Value.(*StringValue), true
}

// SetOpts controls the optional modifiers of SET.
type SetOpts struct {
	TTLMillis int64 // 0 means no expiry change requested
	HasTTL    bool
	NX        bool
	XX        bool
}

// Set stores v under key, honoring NX/XX and an optional TTL. ok is false
// when NX/XX precluded the write (in which case nothing changed).
func (ks *Keyspace) Set(key string, v []byte, opts SetOpts) (ok bool, err error) {
	ks.withWrite(key, func(e *Entry, exists bool) {
		// SET always overwrites regardless of the prior variant; NX/XX gate
		// only on "any value present", not on matching type.
		if opts.NX && exists {
			return
		}
		if opts.XX && !exists {
			return
		}
		data := make([]byte, len(v))
		copy(data, v)
		ne := &Entry{Kind: KindString, Value: &StringValue{Data: data}}
		if opts.HasTTL {
			ne.ExpiresAt = ks.now().Add(time.Duration(opts.TTLMillis) * time.Millisecond)
		}
		ks.storeLocked(key, ne)
		ok = true
	})
	return ok, nil
}

// Get returns the string at key. found is false if absent; err is
// TypeMismatch if key holds another variant.
func (ks *Keyspace) Get(key string) (val []byte, found bool, err error) {
	ks.withRead(key, func(e *Entry, exists bool) {
		if !exists {
			return
		}
		sv, ok := asString(e)
		if !ok {
			err = ErrWrongType
			return
		}
		val = append([]byte(nil), sv.Data...)
		found = true
	})
	return val, found, err
}

// GetSet atomically sets key to v and returns the previous value.
func (ks *Keyspace) GetSet(key string, v []byte) (prev []byte, hadPrev bool, err error) {
	ks.withWrite(key, func(e *Entry, exists bool) {
		if exists {
			sv, ok := asString(e)
			if !ok {
				err = ErrWrongType
				return
			}
			prev = append([]byte(nil), sv.Data...)
			hadPrev = true
		}
		data := make([]byte, len(v))
		copy(data, v)
		ks.storeLocked(key, &Entry{Kind: KindString, Value: &StringValue{Data: data}})
	})
	return prev, hadPrev, err
}

func parseInt(b []byte) (int64, error) {
	s := string(b)
	if s == "" {
		return 0, ErrNotInt
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ErrNotInt
	}
	return n, nil
}

// IncrBy adds delta to the integer stored at key (0 if absent) and stores
// the decimal result.
func (ks *Keyspace) IncrBy(key string, delta int64) (result int64, err error) {
	ks.withWrite(key, func(e *Entry, exists bool) {
		var cur int64
		if exists {
			sv, ok := asString(e)
			if !ok {
				err = ErrWrongType
				return
			}
			cur, err = parseInt(sv.Data)
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
		data := []byte(strconv.FormatInt(result, 10))
		if exists {
			e.Value.(*StringValue).Data = data
		} else {
			ks.storeLocked(key, &Entry{Kind: KindString, Value: &StringValue{Data: data}})
		}
	})
	return result, err
}

// IncrByFloat adds delta (a finite float) to the float stored at key.
func (ks *Keyspace) IncrByFloat(key string, delta float64) (result float64, err error) {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return 0, ErrNotFloat
	}
	ks.withWrite(key, func(e *Entry, exists bool) {
		var cur float64
		if exists {
			sv, ok := asString(e)
			if !ok {
				err = ErrWrongType
				return
			}
			cur, err = strconv.ParseFloat(string(sv.Data), 64)
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
		data := []byte(strconv.FormatFloat(result, 'f', -1, 64))
		if exists {
			e.Value.(*StringValue).Data = data
		} else {
			ks.storeLocked(key, &Entry{Kind: KindString, Value: &StringValue{Data: data}})
		}
	})
	return result, err
}

// Append appends v to the string at key (creating it if absent) and returns
// the new length.
func (ks *Keyspace) Append(key string, v []byte) (newLen int, err error) {
	ks.withWrite(key, func(e *Entry, exists bool) {
		if !exists {
			data := make([]byte, len(v))
			copy(data, v)
			ks.storeLocked(key, &Entry{Kind: KindString, Value: &StringValue{Data: data}})
			newLen = len(data)
			return
		}
		sv, ok := asString(e)
		if !ok {
			err = ErrWrongType
			return
		}
		sv.Data = append(sv.Data, v...)
		newLen = len(sv.Data)
	})
	return newLen, err
}

// StrLen returns the byte length of the string at key (0 if absent).
func (ks *Keyspace) StrLen(key string) (n int, err error) {
	ks.withRead(key, func(e *Entry, exists bool) {
		if !exists {
			return
		}
		sv, ok := asString(e)
		if !ok {
			err = ErrWrongType
			return
		}
		n = len(sv.Data)
	})
	return n, err
}

// GetRange returns the byte-indexed substring [start, end] inclusive, with
// negative indexes counting from the end.
func (ks *Keyspace) GetRange(key string, start, end int) (out []byte, err error) {
	ks.withRead(key, func(e *Entry, exists bool) {
		if !exists {
			return
		}
		sv, ok := asString(e)
		if !ok {
			err = ErrWrongType
			return
		}
		s, en, ok := clampRange(start, end, len(sv.Data))
		if !ok {
			return
		}
		out = append([]byte(nil), sv.Data[s:en+1]...)
	})
	return out, err
}

// SetRange overwrites the string at key at byte offset, extending and
// zero-padding as needed, and returns the new length.
func (ks *Keyspace) SetRange(key string, offset int, v []byte) (newLen int, err error) {
	if offset < 0 {
		err = ErrOutOfRangeOffset
		return 0, err
	}
	ks.withWrite(key, func(e *Entry, exists bool) {
		var sv *StringValue
		if exists {
			var ok bool
			sv, ok = asString(e)
			if !ok {
				err = ErrWrongType
				return
			}
		} else {
			sv = &StringValue{}
		}
		need := offset + len(v)
		if need > len(sv.Data) {
			grown := make([]byte, need)
			copy(grown, sv.Data)
			sv.Data = grown
		}
		copy(sv.Data[offset:], v)
		if !exists {
			ks.storeLocked(key, &Entry{Kind: KindString, Value: sv})
		}
		newLen = len(sv.Data)
	})
	return newLen, err
}

// ErrOutOfRangeOffset is returned by SETRANGE for a negative offset.
var ErrOutOfRangeOffset = OutOfRange("ERR offset is out of range")

// clampRange normalizes a [start, end] index pair (possibly negative) over
// a sequence of length n. ok is false when the resulting range is empty.
func clampRange(start, end, n int) (s, e int, ok bool) {
	if n == 0 {
		return 0, 0, false
	}
	if start < 0 {
		start += n
	}
	if end < 0 {
		end += n
	}
	if start < 0 {
		start = 0
	}
	if end >= n {
		end = n - 1
	}
	if start > end || start >= n {
		return 0, 0, false
	}
	return start, end, true
}
