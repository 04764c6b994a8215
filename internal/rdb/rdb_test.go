package rdb

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hexagondb/internal/keyspace"
)

func sampleSnapshot() map[string]keyspace.SnapshotEntry {
	return map[string]keyspace.SnapshotEntry{
		"str":  {Kind: keyspace.KindString, Str: []byte("hello")},
		"lst":  {Kind: keyspace.KindList, List: [][]byte{[]byte("a"), []byte("b")}},
		"set":  {Kind: keyspace.KindSet, Set: []string{"x", "y"}},
		"zset": {Kind: keyspace.KindSortedSet, ZSet: []keyspace.ZMember{{Score: 1.5, Member: "m1"}, {Score: 2, Member: "m2"}}},
		"hash": {Kind: keyspace.KindHash, Hash: [][2][]byte{{[]byte("f1"), []byte("v1")}}},
		"bm":   {Kind: keyspace.KindBitmap, Bitmap: []byte{0xFF, 0x00, 0x0F}},
		"geo": {Kind: keyspace.KindGeo, Geo: map[string]keyspace.GeoPoint{
			"place": {Lon: -122.42, Lat: 37.77},
		}},
		"stream": {
			Kind: keyspace.KindStream,
			Stream: []keyspace.StreamEntry{
				{ID: keyspace.StreamID{Ms: 1000, Seq: 0}, Fields: [][2][]byte{{[]byte("k"), []byte("v")}}},
			},
			StreamLastID: keyspace.StreamID{Ms: 1000, Seq: 0},
		},
		"hll": {Kind: keyspace.KindHyperLogLog, HLLRegisters: make([]uint8, hllRegisterCount)},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.rdb")
	snap := sampleSnapshot()

	require.NoError(t, Save(path, snap, 0))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded, len(snap))

	assert.Equal(t, []byte("hello"), loaded["str"].Str)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, loaded["lst"].List)
	assert.ElementsMatch(t, []string{"x", "y"}, loaded["set"].Set)
	assert.Equal(t, []byte{0xFF, 0x00, 0x0F}, loaded["bm"].Bitmap)
	assert.Len(t, loaded["hll"].HLLRegisters, hllRegisterCount)
}

func TestSaveLoadPreservesGeoLatBeforeLonPayloadOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.rdb")
	snap := sampleSnapshot()
	require.NoError(t, Save(path, snap, 0))

	loaded, err := Load(path)
	require.NoError(t, err)

	p := loaded["geo"].Geo["place"]
	assert.InDelta(t, -122.42, p.Lon, 0.0001)
	assert.InDelta(t, 37.77, p.Lat, 0.0001)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "place")
}

func TestSaveLoadExpiry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.rdb")
	snap := map[string]keyspace.SnapshotEntry{
		"ttl": {Kind: keyspace.KindString, Str: []byte("v"), ExpiresAt: time.Now().Add(time.Hour)},
	}
	require.NoError(t, Save(path, snap, 0))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Contains(t, loaded, "ttl")
	assert.WithinDuration(t, time.Now().Add(time.Hour), loaded["ttl"].ExpiresAt, 5*time.Second)
}

func TestSaveSkipsAlreadyExpiredKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.rdb")
	snap := map[string]keyspace.SnapshotEntry{
		"dead": {Kind: keyspace.KindString, Str: []byte("v"), ExpiresAt: time.Now().Add(-time.Second)},
	}
	require.NoError(t, Save(path, snap, 0))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.NotContains(t, loaded, "dead")
}

func TestLoadRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.rdb")
	require.NoError(t, os.WriteFile(path, []byte("not an rdb file"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestBackupRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.rdb")
	snap := sampleSnapshot()

	require.NoError(t, Save(path, snap, 2))
	require.NoError(t, Save(path, snap, 2))
	require.NoError(t, Save(path, snap, 2))

	assert.FileExists(t, path)
	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
}
