package keyspace

import (
	"math"
	"sort"
)

// zsetEntry is one (member, score) pair held in the ordered index.
type zsetEntry struct {
	member string
	score  float64
}

// less orders entries by score ascending, breaking ties by member bytes
// ascending, per the lexicographic tiebreak rule.
func (a zsetEntry) less(b zsetEntry) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.member < b.member
}

// SortedSet is a dual index: a member→score map for O(1) score lookup, plus
// an ordered slice kept sorted by (score, member) for O(log n) rank queries
// and range scans. Every mutation removes then reinserts to keep the two
// views consistent (the dual-index invariant).
type SortedSet struct {
	scores  map[string]float64
	ordered []zsetEntry
}

func newSortedSet() *SortedSet {
	return &SortedSet{scores: make(map[string]float64)}
}

func (z *SortedSet) clone() *SortedSet {
	cp := newSortedSet()
	for m, s := range z.scores {
		cp.scores[m] = s
	}
	cp.ordered = append([]zsetEntry(nil), z.ordered...)
	return cp
}

func asSortedSet(e *Entry) (*SortedSet, bool) {
	if e == nil {
		return nil, true
	}
	if e.Kind != KindSortedSet {
		return nil, false
	}
	return e.Value.(*SortedSet), true
}

// indexOf returns the position of entry (member,score) in the ordered
// index, or -1 if not found. Uses binary search on score then a linear scan
// across ties (zsets rarely have many equal-score members).
func (z *SortedSet) indexOf(member string, score float64) int {
	i := sort.Search(len(z.ordered), func(i int) bool {
		return !z.ordered[i].less(zsetEntry{member, score})
	})
	for ; i < len(z.ordered) && z.ordered[i].score == score; i++ {
		if z.ordered[i].member == member {
			return i
		}
	}
	return -1
}

// insertionIndex returns where entry should be inserted to keep ordered sorted.
func (z *SortedSet) insertionIndex(entry zsetEntry) int {
	return sort.Search(len(z.ordered), func(i int) bool {
		return !z.ordered[i].less(entry)
	})
}

// upsert sets member's score, removing any prior ordered-index entry first.
func (z *SortedSet) upsert(member string, score float64) {
	if old, had := z.scores[member]; had {
		if idx := z.indexOf(member, old); idx >= 0 {
			z.ordered = append(z.ordered[:idx], z.ordered[idx+1:]...)
		}
	}
	z.scores[member] = score
	entry := zsetEntry{member, score}
	idx := z.insertionIndex(entry)
	z.ordered = append(z.ordered, zsetEntry{})
	copy(z.ordered[idx+1:], z.ordered[idx:])
	z.ordered[idx] = entry
}

func (z *SortedSet) remove(member string) bool {
	score, had := z.scores[member]
	if !had {
		return false
	}
	delete(z.scores, member)
	if idx := z.indexOf(member, score); idx >= 0 {
		z.ordered = append(z.ordered[:idx], z.ordered[idx+1:]...)
	}
	return true
}

func (z *SortedSet) len() int { return len(z.scores) }

// ZAddOpts controls ZADD's optional modifiers.
type ZAddOpts struct {
	NX, XX, CH, Incr bool
}

// ZMember is one (score, member) pair supplied to ZAdd.
type ZMember struct {
	Score  float64
	Member string
}

// ZAdd adds/updates (score, member) pairs. With Incr, exactly one pair is
// expected and the return is the new score; otherwise it returns the number
// of new members added (or, with CH, new-or-changed).
func (ks *Keyspace) ZAdd(key string, pairs []ZMember, opts ZAddOpts) (added int, incrResult float64, hasIncr bool, err error) {
	ks.withWrite(key, func(e *Entry, exists bool) {
		var z *SortedSet
		if exists {
			var ok bool
			z, ok = asSortedSet(e)
			if !ok {
				err = ErrWrongType
				return
			}
		} else {
			z = newSortedSet()
			ks.storeLocked(key, &Entry{Kind: KindSortedSet, Value: z})
		}
		for _, p := range pairs {
			if math.IsNaN(p.Score) {
				err = ErrNotFloat
				return
			}
			old, had := z.scores[p.Member]
			if opts.NX && had {
				continue
			}
			if opts.XX && !had {
				continue
			}
			newScore := p.Score
			if opts.Incr {
				if math.IsNaN(old + p.Score) {
					err = ErrNotFloat
					return
				}
				newScore = old + p.Score
				if !had {
					newScore = p.Score
				}
				z.upsert(p.Member, newScore)
				incrResult = newScore
				hasIncr = true
				return
			}
			z.upsert(p.Member, newScore)
			if !had {
				added++
			} else if opts.CH && old != newScore {
				added++
			}
		}
	})
	return added, incrResult, hasIncr, err
}

// ZScore returns the score of member, found==false if absent.
func (ks *Keyspace) ZScore(key, member string) (score float64, found bool, err error) {
	ks.withRead(key, func(e *Entry, exists bool) {
		if !exists {
			return
		}
		z, ok := asSortedSet(e)
		if !ok {
			err = ErrWrongType
			return
		}
		score, found = z.scores[member]
	})
	return score, found, err
}

// ZIncrBy adds delta to member's score (member created with score delta if
// absent).
func (ks *Keyspace) ZIncrBy(key string, delta float64, member string) (result float64, err error) {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return 0, ErrNotFloat
	}
	ks.withWrite(key, func(e *Entry, exists bool) {
		var z *SortedSet
		if exists {
			var ok bool
			z, ok = asSortedSet(e)
			if !ok {
				err = ErrWrongType
				return
			}
		} else {
			z = newSortedSet()
			ks.storeLocked(key, &Entry{Kind: KindSortedSet, Value: z})
		}
		cur := z.scores[member]
		result = cur + delta
		if math.IsNaN(result) {
			err = ErrNotFloat
			return
		}
		z.upsert(member, result)
	})
	return result, err
}

// ZRem removes members, returning how many actually existed.
func (ks *Keyspace) ZRem(key string, members []string) (removed int, err error) {
	ks.withWrite(key, func(e *Entry, exists bool) {
		if !exists {
			return
		}
		z, ok := asSortedSet(e)
		if !ok {
			err = ErrWrongType
			return
		}
		for _, m := range members {
			if z.remove(m) {
				removed++
			}
		}
		ks.deleteIfEmptyLocked(key, z.len() == 0)
	})
	return removed, err
}

// ZCard returns the number of members (0 if absent).
func (ks *Keyspace) ZCard(key string) (n int, err error) {
	ks.withRead(key, func(e *Entry, exists bool) {
		if !exists {
			return
		}
		z, ok := asSortedSet(e)
		if !ok {
			err = ErrWrongType
			return
		}
		n = z.len()
	})
	return n, err
}

// ZRangeMember pairs a member with its score for range-query results.
type ZRangeMember struct {
	Member string
	Score  float64
}

// ZRange returns members by rank in [start, stop] inclusive (negative
// indexes from the end). rev reverses iteration order (ZREVRANGE).
func (ks *Keyspace) ZRange(key string, start, stop int, rev bool) (out []ZRangeMember, err error) {
	ks.withRead(key, func(e *Entry, exists bool) {
		if !exists {
			return
		}
		z, ok := asSortedSet(e)
		if !ok {
			err = ErrWrongType
			return
		}
		n := z.len()
		s, en, ok2 := clampRange(start, stop, n)
		if !ok2 {
			return
		}
		if rev {
			for i := n - 1 - s; i >= n-1-en; i-- {
				e := z.ordered[i]
				out = append(out, ZRangeMember{e.member, e.score})
			}
		} else {
			for i := s; i <= en; i++ {
				e := z.ordered[i]
				out = append(out, ZRangeMember{e.member, e.score})
			}
		}
	})
	return out, err
}

// ScoreRange bounds a ZRANGEBYSCORE-style query; exclusive min/max mirror
// Redis's "(score" syntax.
type ScoreRange struct {
	Min, Max                   float64
	MinExclusive, MaxExclusive bool
}

// ZRangeByScore returns members with score in the given range, ascending
// unless rev is set. Ties break by member bytes ascending (descending when
// rev, to match ZREVRANGEBYSCORE).
func (ks *Keyspace) ZRangeByScore(key string, r ScoreRange, rev bool, limit int, offset int) (out []ZRangeMember, err error) {
	ks.withRead(key, func(e *Entry, exists bool) {
		if !exists {
			return
		}
		z, ok := asSortedSet(e)
		if !ok {
			err = ErrWrongType
			return
		}
		var matched []zsetEntry
		for _, en := range z.ordered {
			if en.score < r.Min || (r.MinExclusive && en.score == r.Min) {
				continue
			}
			if en.score > r.Max || (r.MaxExclusive && en.score == r.Max) {
				continue
			}
			matched = append(matched, en)
		}
		if rev {
			for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
				matched[i], matched[j] = matched[j], matched[i]
			}
		}
		if offset > 0 {
			if offset >= len(matched) {
				matched = nil
			} else {
				matched = matched[offset:]
			}
		}
		if limit >= 0 && limit < len(matched) {
			matched = matched[:limit]
		}
		for _, en := range matched {
			out = append(out, ZRangeMember{en.member, en.score})
		}
	})
	return out, err
}

// ZRank returns member's 0-based rank (ascending, or descending if rev),
// found==false if absent.
func (ks *Keyspace) ZRank(key, member string, rev bool) (rank int, found bool, err error) {
	ks.withRead(key, func(e *Entry, exists bool) {
		if !exists {
			return
		}
		z, ok := asSortedSet(e)
		if !ok {
			err = ErrWrongType
			return
		}
		score, has := z.scores[member]
		if !has {
			return
		}
		idx := z.indexOf(member, score)
		if idx < 0 {
			return
		}
		found = true
		if rev {
			rank = z.len() - 1 - idx
		} else {
			rank = idx
		}
	})
	return rank, found, err
}

// aggregateFunc combines per-source weighted scores for ZUNIONSTORE/ZINTERSTORE.
type aggregateFunc func(acc, v float64, first bool) float64

func aggSum(acc, v float64, first bool) float64 {
	if first {
		return v
	}
	return acc + v
}
func aggMin(acc, v float64, first bool) float64 {
	if first || v < acc {
		return v
	}
	return acc
}
func aggMax(acc, v float64, first bool) float64 {
	if first || v > acc {
		return v
	}
	return acc
}

// Aggregate names the SUM/MIN/MAX combination rule.
type Aggregate int

const (
	AggregateSum Aggregate = iota
	AggregateMin
	AggregateMax
)

func (a Aggregate) fn() aggregateFunc {
	switch a {
	case AggregateMin:
		return aggMin
	case AggregateMax:
		return aggMax
	default:
		return aggSum
	}
}

// ZUnionStore combines the sorted sets (or sets, treated as score 1) named
// by keys with per-source weights, storing the union under dst.
func (ks *Keyspace) ZUnionStore(dst string, keys []string, weights []float64, agg Aggregate) (int, error) {
	return ks.zCombine(dst, keys, weights, agg, false)
}

// ZInterStore combines like ZUnionStore but keeps only members present in
// every source.
func (ks *Keyspace) ZInterStore(dst string, keys []string, weights []float64, agg Aggregate) (int, error) {
	return ks.zCombine(dst, keys, weights, agg, true)
}

func (ks *Keyspace) zCombine(dst string, keys []string, weights []float64, agg Aggregate, intersect bool) (int, error) {
	sources := make([]map[string]float64, len(keys))
	for i, k := range keys {
		m, err := ks.readScored(k)
		if err != nil {
			return 0, err
		}
		sources[i] = m
	}
	if len(weights) == 0 {
		weights = make([]float64, len(keys))
		for i := range weights {
			weights[i] = 1
		}
	}

	fn := agg.fn()
	combined := make(map[string]float64)
	for i, src := range sources {
		for m, s := range src {
			weighted := s * weights[i]
			if _, seen := combined[m]; !seen {
				combined[m] = fn(0, weighted, true)
			} else {
				combined[m] = fn(combined[m], weighted, false)
			}
		}
	}
	if intersect {
		for m := range combined {
			for _, src := range sources {
				if _, ok := src[m]; !ok {
					delete(combined, m)
					break
				}
			}
		}
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	if len(combined) == 0 {
		if _, ok := ks.entries[dst]; ok {
			delete(ks.entries, dst)
			ks.bumpChanges()
		}
		return 0, nil
	}
	z := newSortedSet()
	for m, s := range combined {
		z.upsert(m, s)
	}
	ks.entries[dst] = &Entry{Kind: KindSortedSet, Value: z}
	ks.bumpChanges()
	return z.len(), nil
}

// readScored returns a member→score snapshot for a sorted set or set key
// (a plain set contributes score 1 per member, matching Redis's ZUNIONSTORE
// over non-zset sources).
func (ks *Keyspace) readScored(key string) (map[string]float64, error) {
	var out map[string]float64
	var opErr error
	ks.withRead(key, func(e *Entry, exists bool) {
		if !exists {
			out = map[string]float64{}
			return
		}
		switch e.Kind {
		case KindSortedSet:
			z := e.Value.(*SortedSet)
			out = make(map[string]float64, z.len())
			for m, s := range z.scores {
				out[m] = s
			}
		case KindSet:
			s := e.Value.(*Set)
			out = make(map[string]float64, len(s.members))
			for m := range s.members {
				out[m] = 1
			}
		default:
			opErr = ErrWrongType
		}
	})
	return out, opErr
}
