package keyspace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringSetGetIncr(t *testing.T) {
	ks := New()
	ok, err := ks.Set("counter", []byte("10"), SetOpts{})
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := ks.IncrBy("counter", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)

	n, err = ks.IncrBy("counter", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	v, found, err := ks.Get("counter")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "12", string(v))
}

func TestSetNXXX(t *testing.T) {
	ks := New()
	ok, _ := ks.Set("k", []byte("a"), SetOpts{NX: true})
	assert.True(t, ok)
	ok, _ = ks.Set("k", []byte("b"), SetOpts{NX: true})
	assert.False(t, ok)
	v, _, _ := ks.Get("k")
	assert.Equal(t, "a", string(v))

	ok, _ = ks.Set("missing", []byte("x"), SetOpts{XX: true})
	assert.False(t, ok)
}

func TestTypeMismatch(t *testing.T) {
	ks := New()
	_, err := ks.RPush("k", [][]byte{[]byte("a")})
	require.NoError(t, err)

	_, _, err = ks.Get("k")
	require.Error(t, err)
	assert.True(t, IsWrongType(err))

	// Entry at k must be unchanged by the failed operation.
	n, err := ks.LLen("k")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestListPushPopOrdering(t *testing.T) {
	ks := New()
	_, err := ks.RPush("mylist", [][]byte{[]byte("a"), []byte("b"), []byte("c")})
	require.NoError(t, err)

	out, err := ks.LRange("mylist", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, bytesToStrings(out))

	popped, ok, err := ks.LPop("mylist", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", string(popped[0]))

	popped, ok, err = ks.RPop("mylist", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "c", string(popped[0]))

	n, _ := ks.LLen("mylist")
	assert.Equal(t, 1, n)
}

func TestListLeftPushReversesArgumentOrder(t *testing.T) {
	ks := New()
	_, err := ks.LPush("l", [][]byte{[]byte("a"), []byte("b"), []byte("c")})
	require.NoError(t, err)
	out, _ := ks.LRange("l", 0, -1)
	// Last argument ends up at the head.
	assert.Equal(t, []string{"c", "b", "a"}, bytesToStrings(out))
}

func TestLMoveSingletonSameKeySurvives(t *testing.T) {
	ks := New()
	_, err := ks.RPush("l", [][]byte{[]byte("only")})
	require.NoError(t, err)

	val, ok, err := ks.LMove("l", "l", true, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "only", string(val))

	assert.True(t, ks.Exists("l"))
	n, err := ks.LLen("l")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	out, err := ks.LRange("l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, bytesToStrings(out))
}

func TestLInsertBeforeAndAfter(t *testing.T) {
	ks := New()
	_, err := ks.RPush("l", [][]byte{[]byte("a"), []byte("c")})
	require.NoError(t, err)

	n, err := ks.LInsert("l", true, []byte("c"), []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = ks.LInsert("l", false, []byte("a"), []byte("a2"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	out, err := ks.LRange("l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a2", "b", "c"}, bytesToStrings(out))
}

func TestLInsertMissingPivotOrKey(t *testing.T) {
	ks := New()
	n, err := ks.LInsert("absent", true, []byte("x"), []byte("y"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = ks.RPush("l", [][]byte{[]byte("a")})
	require.NoError(t, err)
	n, err = ks.LInsert("l", true, []byte("nope"), []byte("y"))
	require.NoError(t, err)
	assert.Equal(t, -1, n)
}

func TestEmptyContainerDeletion(t *testing.T) {
	ks := New()
	_, _ = ks.RPush("l", [][]byte{[]byte("only")})
	_, _, _ = ks.LPop("l", 1)
	assert.Equal(t, "none", ks.Type("l"))
	assert.False(t, ks.Exists("l"))
}

func TestSortedSetDualIndexInvariant(t *testing.T) {
	ks := New()
	_, _, _, err := ks.ZAdd("z", []ZMember{{1, "a"}, {2, "b"}, {3, "c"}}, ZAddOpts{})
	require.NoError(t, err)

	out, err := ks.ZRange("z", 0, -1, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, zMembersOf(out))

	result, err := ks.ZIncrBy("z", 2.5, "a")
	require.NoError(t, err)
	assert.InDelta(t, 3.5, result, 0.0001)

	out, err = ks.ZRange("z", 0, -1, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, zMembersOf(out))
}

func TestBitmapSetGetCount(t *testing.T) {
	ks := New()
	prev, err := ks.SetBit("bits", 7, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, prev)

	v, err := ks.GetBit("bits", 7)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = ks.GetBit("bits", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	n, err := ks.BitCount("bits", false, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBitPosZeroOnAllOnesReturnsBitLength(t *testing.T) {
	ks := New()
	for i := int64(0); i < 8; i++ {
		_, _ = ks.SetBit("ones", i, 1)
	}
	pos, err := ks.BitPos("ones", 0, false, 0, false, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(8), pos)
}

func TestGeoDistSicily(t *testing.T) {
	ks := New()
	_, err := ks.GeoAdd("sicily", map[string]GeoPoint{
		"Palermo": {Lon: 13.361389, Lat: 38.115556},
		"Catania": {Lon: 15.087269, Lat: 37.502669},
	})
	require.NoError(t, err)

	dist, found, err := ks.GeoDist("sicily", "Palermo", "Catania", GeoUnitKilometers)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, dist > 160 && dist < 170, "expected ~166km, got %f", dist)
}

func TestHyperLogLogApproximateCardinality(t *testing.T) {
	ks := New()
	changed, err := ks.PFAdd("h", [][]byte{[]byte("a"), []byte("b"), []byte("c")})
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = ks.PFAdd("h", [][]byte{[]byte("a")})
	require.NoError(t, err)
	assert.False(t, changed)

	n, err := ks.PFCount("h")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
}

func TestExpiryLazyAndTTL(t *testing.T) {
	clock := time.Unix(1000, 0)
	ks := New()
	ks.clock = func() time.Time { return clock }

	_, _ = ks.Set("k", []byte("v"), SetOpts{})
	assert.Equal(t, int64(-1), ks.TTL("k"))
	assert.Equal(t, int64(-2), ks.TTL("absent"))

	ok := ks.Expire("k", 10*time.Second)
	assert.True(t, ok)
	assert.Equal(t, int64(10), ks.TTL("k"))

	clock = clock.Add(11 * time.Second)
	assert.False(t, ks.Exists("k"))
}

func TestGlobMatching(t *testing.T) {
	cases := []struct {
		pattern, str string
		want         bool
	}{
		{"*", "anything", true},
		{"h?llo", "hello", true},
		{"h?llo", "hllo", false},
		{"user:[0-9]*", "user:42", true},
		{"user:[0-9]*", "user:ab", false},
		{"[!a-c]*", "dog", true},
		{"[!a-c]*", "cat", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, MatchGlob(c.pattern, c.str), "pattern=%q str=%q", c.pattern, c.str)
	}
}

func TestScanCursorExhaustsAllKeys(t *testing.T) {
	ks := New()
	for i := 0; i < 25; i++ {
		_, _ = ks.Set(string(rune('a'+i)), []byte("v"), SetOpts{})
	}
	var seen []string
	cursor := uint64(0)
	for {
		var page []string
		cursor, page = ks.Scan(cursor, "*", 10)
		seen = append(seen, page...)
		if cursor == 0 {
			break
		}
	}
	assert.Len(t, seen, 25)
}

func bytesToStrings(bs [][]byte) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = string(b)
	}
	return out
}

func zMembersOf(rs []ZRangeMember) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Member
	}
	return out
}
