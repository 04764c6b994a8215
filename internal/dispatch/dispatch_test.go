package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hexagondb/internal/keyspace"
	"hexagondb/internal/metrics"
	"hexagondb/internal/pubsub"
)

type fakeAOF struct {
	appended [][]string
}

func (f *fakeAOF) Append(args []string) error {
	f.appended = append(f.appended, args)
	return nil
}

func newTestDispatcher() (*Dispatcher, *fakeAOF) {
	aof := &fakeAOF{}
	return &Dispatcher{
		KS:      keyspace.New(),
		Broker:  pubsub.New(),
		Metrics: metrics.NoopSink{},
		AOF:     aof,
	}, aof
}

func TestPingAndEcho(t *testing.T) {
	d, _ := newTestDispatcher()
	conn := &ConnState{}
	assert.Equal(t, "PONG", d.Dispatch(conn, []string{"PING"}).Str)
	assert.Equal(t, "hi", string(d.Dispatch(conn, []string{"ECHO", "hi"}).Bulk))
}

func TestWrongArity(t *testing.T) {
	d, _ := newTestDispatcher()
	conn := &ConnState{}
	v := d.Dispatch(conn, []string{"GET"})
	assert.Equal(t, "ERR wrong number of arguments for 'GET' command", v.Str)
}

func TestUnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher()
	conn := &ConnState{}
	v := d.Dispatch(conn, []string{"NOTACOMMAND"})
	assert.Contains(t, v.Str, "unknown command")
}

func TestNoAuthGating(t *testing.T) {
	d, _ := newTestDispatcher()
	d.Password = "secret"
	conn := &ConnState{}
	v := d.Dispatch(conn, []string{"GET", "k"})
	assert.Equal(t, "NOAUTH Authentication required", v.Str)

	v = d.Dispatch(conn, []string{"AUTH", "wrong"})
	assert.Contains(t, v.Str, "WRONGPASS")

	v = d.Dispatch(conn, []string{"AUTH", "secret"})
	assert.Equal(t, "OK", v.Str)
	require.True(t, conn.Authenticated)

	v = d.Dispatch(conn, []string{"GET", "k"})
	assert.True(t, v.Null)
}

func TestSetAppendsToAOFOnlyForWrites(t *testing.T) {
	d, aof := newTestDispatcher()
	conn := &ConnState{}

	d.Dispatch(conn, []string{"SET", "k", "v"})
	require.Len(t, aof.appended, 1)
	assert.Equal(t, []string{"SET", "k", "v"}, aof.appended[0])

	d.Dispatch(conn, []string{"GET", "k"})
	assert.Len(t, aof.appended, 1)
}

func TestReplayingSuppressesAOFAppend(t *testing.T) {
	d, aof := newTestDispatcher()
	d.Replaying = true
	conn := &ConnState{}
	d.Dispatch(conn, []string{"SET", "k", "v"})
	assert.Empty(t, aof.appended)
}

func TestIncrDecrAndTypeMismatch(t *testing.T) {
	d, _ := newTestDispatcher()
	conn := &ConnState{}
	d.Dispatch(conn, []string{"SET", "n", "10"})
	v := d.Dispatch(conn, []string{"INCRBY", "n", "5"})
	assert.Equal(t, int64(15), v.Int)

	d.Dispatch(conn, []string{"LPUSH", "alist", "a"})
	v = d.Dispatch(conn, []string{"GET", "alist"})
	assert.Equal(t, "WRONGTYPE Operation against a key holding the wrong kind of value", v.Str)
}

func TestListPushPopRoundTrip(t *testing.T) {
	d, _ := newTestDispatcher()
	conn := &ConnState{}
	d.Dispatch(conn, []string{"RPUSH", "l", "a", "b", "c"})
	v := d.Dispatch(conn, []string{"LRANGE", "l", "0", "-1"})
	require.Len(t, v.Array, 3)
	assert.Equal(t, "a", string(v.Array[0].Bulk))
	assert.Equal(t, "c", string(v.Array[2].Bulk))
}

func TestXAddAutoIDRewritesAOFArgs(t *testing.T) {
	d, aof := newTestDispatcher()
	conn := &ConnState{}
	v := d.Dispatch(conn, []string{"XADD", "s", "*", "field", "value"})
	require.NotEmpty(t, v.Bulk)
	require.Len(t, aof.appended, 1)
	assert.Equal(t, string(v.Bulk), aof.appended[0][2])
	assert.NotEqual(t, "*", aof.appended[0][2])
}

func TestListInsertBeforeAfterAndMissingPivot(t *testing.T) {
	d, _ := newTestDispatcher()
	conn := &ConnState{}
	d.Dispatch(conn, []string{"RPUSH", "l", "a", "c"})

	v := d.Dispatch(conn, []string{"LINSERT", "l", "BEFORE", "c", "b"})
	assert.Equal(t, int64(3), v.Int)

	v = d.Dispatch(conn, []string{"LRANGE", "l", "0", "-1"})
	require.Len(t, v.Array, 3)
	assert.Equal(t, "b", string(v.Array[1].Bulk))

	v = d.Dispatch(conn, []string{"LINSERT", "l", "AFTER", "nope", "x"})
	assert.Equal(t, int64(-1), v.Int)
}

func TestGeoSearchFromMember(t *testing.T) {
	d, _ := newTestDispatcher()
	conn := &ConnState{}
	d.Dispatch(conn, []string{"GEOADD", "sicily",
		"13.361389", "38.115556", "Palermo",
		"15.087269", "37.502669", "Catania",
	})

	v := d.Dispatch(conn, []string{"GEOSEARCH", "sicily", "FROMMEMBER", "Palermo", "BYRADIUS", "200", "km"})
	require.False(t, v.Null)
	members := make([]string, len(v.Array))
	for i, item := range v.Array {
		members[i] = string(item.Array[0].Bulk)
	}
	assert.Contains(t, members, "Palermo")
	assert.Contains(t, members, "Catania")

	v = d.Dispatch(conn, []string{"GEOSEARCH", "sicily", "FROMMEMBER", "Nowhere", "BYRADIUS", "200", "km"})
	assert.Contains(t, v.Str, "could not decode requested zset member")
}

func TestSubscribePublishRoundTrip(t *testing.T) {
	d, _ := newTestDispatcher()
	conn := &ConnState{}
	d.Dispatch(conn, []string{"SUBSCRIBE", "news"})
	require.Contains(t, conn.Channels, "news")

	n := d.Dispatch(&ConnState{}, []string{"PUBLISH", "news", "hello"})
	assert.Equal(t, int64(1), n.Int)

	select {
	case msg := <-conn.Channels["news"].C():
		assert.Equal(t, "hello", string(msg.Payload))
	default:
		t.Fatal("expected a buffered message")
	}
}
