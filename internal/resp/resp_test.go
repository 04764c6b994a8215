package resp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEncodeRoundTrip(t *testing.T) {
	cases := []Value{
		SimpleString("OK"),
		Error("ERR bad thing"),
		Integer(12345),
		Integer(-7),
		BulkString("hello"),
		NullBulk(),
		Array([]Value{BulkString("a"), BulkString("b"), Integer(3)}),
		NullArray(),
	}
	for _, v := range cases {
		encoded := Marshal(v)
		decoded, n, err := Decode(encoded)
		require.NoError(t, err)
		assert.Equal(t, len(encoded), n)
		assert.Equal(t, v, decoded)
	}
}

func TestDecodeNeedMore(t *testing.T) {
	_, _, err := Decode([]byte("$5\r\nhel"))
	assert.Equal(t, ErrNeedMore, err)

	_, _, err = Decode([]byte("*2\r\n$1\r\na\r\n"))
	assert.Equal(t, ErrNeedMore, err)
}

func TestDecodePipelining(t *testing.T) {
	buf := []byte("+OK\r\n:1\r\n$3\r\nfoo\r\n")
	var got []Value
	for len(buf) > 0 {
		v, n, err := Decode(buf)
		require.NoError(t, err)
		got = append(got, v)
		buf = buf[n:]
	}
	require.Len(t, got, 3)
	assert.Equal(t, "OK", got[0].Str)
	assert.Equal(t, int64(1), got[1].Int)
	assert.Equal(t, []byte("foo"), got[2].Bulk)
}

func TestDecodeInline(t *testing.T) {
	v, n, err := Decode([]byte("PING hello\r\n"))
	require.NoError(t, err)
	assert.Equal(t, len("PING hello\r\n"), n)
	args, err := AsStrings(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"PING", "hello"}, args)
}

func TestDecodeProtocolErrors(t *testing.T) {
	_, _, err := Decode([]byte("$abc\r\nhello\r\n"))
	require.Error(t, err)
	_, ok := err.(*ProtocolError)
	assert.True(t, ok)

	_, _, err = Decode([]byte(":notanumber\r\n"))
	require.Error(t, err)
}

func TestAsStringsRejectsNonArray(t *testing.T) {
	_, err := AsStrings(SimpleString("OK"))
	assert.Error(t, err)
}
