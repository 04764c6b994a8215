package aof

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hexagondb/internal/config"
	"hexagondb/internal/keyspace"
)

func TestAppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.aof")

	log, err := Open(path, config.AofFsyncAlways)
	require.NoError(t, err)

	require.NoError(t, log.Append([]string{"SET", "foo", "bar"}))
	require.NoError(t, log.Append([]string{"RPUSH", "mylist", "a", "b"}))
	require.NoError(t, log.Close())

	var replayed [][]string
	err = Replay(path, func(args []string) error {
		replayed = append(replayed, args)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, replayed, 2)
	assert.Equal(t, []string{"SET", "foo", "bar"}, replayed[0])
	assert.Equal(t, []string{"RPUSH", "mylist", "a", "b"}, replayed[1])
}

func TestReplayMissingFileIsNotError(t *testing.T) {
	err := Replay(filepath.Join(t.TempDir(), "missing.aof"), func(args []string) error {
		t.Fatal("should not be called")
		return nil
	})
	assert.NoError(t, err)
}

func TestReplayToleratesTruncatedTrailingFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.aof")
	log, err := Open(path, config.AofFsyncAlways)
	require.NoError(t, err)
	require.NoError(t, log.Append([]string{"SET", "a", "1"}))
	require.NoError(t, log.Close())

	// Simulate a crash mid-write: append a partial frame directly.
	raw, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = raw.Write([]byte("*2\r\n$3\r\nSET\r\n$1\r\nb")) // missing trailing CRLF + value
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	var replayed [][]string
	err = Replay(path, func(args []string) error {
		replayed = append(replayed, args)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, replayed, 1)
	assert.Equal(t, []string{"SET", "a", "1"}, replayed[0])
}

func TestRewriteProducesMinimalCommandsAndIsReplayable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.aof")

	snap := map[string]keyspace.SnapshotEntry{
		"str":  {Kind: keyspace.KindString, Str: []byte("v")},
		"lst":  {Kind: keyspace.KindList, List: [][]byte{[]byte("x"), []byte("y")}},
		"hll":  {Kind: keyspace.KindHyperLogLog, HLLRegisters: make([]uint8, 16384)},
		"gone": {Kind: keyspace.KindSet, Set: nil}, // empty container, no commands
	}

	require.NoError(t, Rewrite(path, snap, config.AofFsyncAlways))

	var cmds []string
	err := Replay(path, func(args []string) error {
		cmds = append(cmds, args[0])
		return nil
	})
	require.NoError(t, err)

	assert.Contains(t, cmds, "SET")
	assert.Contains(t, cmds, "RPUSH")
	// HyperLogLog registers cannot be replayed via element commands, so the
	// rewritten log must not contain a PFADD for "hll".
	assert.NotContains(t, cmds, "PFADD")
}

func TestAppendFsyncPolicies(t *testing.T) {
	for _, policy := range []config.AofFsync{config.AofFsyncAlways, config.AofFsyncEverySec, config.AofFsyncNo} {
		path := filepath.Join(t.TempDir(), "test.aof")
		log, err := Open(path, policy)
		require.NoError(t, err)
		require.NoError(t, log.Append([]string{"PING"}))
		require.NoError(t, log.Close())

		var n int
		require.NoError(t, Replay(path, func(args []string) error { n++; return nil }))
		assert.Equal(t, 1, n)
	}
}
