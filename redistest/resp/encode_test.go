package resp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	cases := []struct {
		val interface{}
		out string
	}{
		{OK{}, "+OK\r\n"},
		{Pong{}, "+PONG\r\n"},
		{true, ":1\r\n"},
		{false, ":0\r\n"},
		{SimpleString("cluster_state:ok"), "+cluster_state:ok\r\n"},
		{Error("ERR unknown command"), "-ERR unknown command\r\n"},
		{int64(0), ":0\r\n"},
		{int64(-16384), ":-16384\r\n"},
		{16383, ":16383\r\n"},
		{-1, ":-1\r\n"},
		{"", "$0\r\n\r\n"},
		{"a≠b", "$5\r\na≠b\r\n"},
		{BulkString("k\r\n"), "$3\r\nk\r\n\r\n"},
		{[]byte{}, "$0\r\n\r\n"},
		{[]byte{0, '\r', 0xff}, "$3\r\n\x00\r\xff\r\n"},
		{[]byte(nil), "$-1\r\n"},
		{nil, "$-1\r\n"},
		{[]string{}, "*0\r\n"},
		{[]string(nil), "*-1\r\n"},
		{[]string{"COMMAND", "GETKEYS"}, "*2\r\n$7\r\nCOMMAND\r\n$7\r\nGETKEYS\r\n"},
		{Array(nil), "*-1\r\n"},
		{[]interface{}{"get", 2, []byte("k")}, "*3\r\n$3\r\nget\r\n:2\r\n$1\r\nk\r\n"},
		// a CLUSTER SLOTS row
		{Array{0, 5460, Array{"127.0.0.1", int64(7000)}}, "*3\r\n:0\r\n:5460\r\n*2\r\n$9\r\n127.0.0.1\r\n:7000\r\n"},
	}

	var buf bytes.Buffer
	for _, c := range cases {
		buf.Reset()
		require.NoError(t, Encode(&buf, c.val), "%#v", c.val)
		assert.Equal(t, c.out, buf.String(), "%#v", c.val)
	}
}

func TestEncodeInvalid(t *testing.T) {
	for _, v := range []interface{}{
		int32(1),
		1.5,
		struct{}{},
		Array{"ok", uint(1)},
	} {
		var buf bytes.Buffer
		assert.ErrorIs(t, Encode(&buf, v), ErrInvalidValue, "%#v", v)
	}
}

func TestEncodeLargeBulkString(t *testing.T) {
	large := strings.Repeat("x", 1<<20)

	for _, v := range []interface{}{large, []byte(large)} {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, v))

		got, err := Decode(&buf)
		require.NoError(t, err)
		assert.Equal(t, large, got)
		assert.Zero(t, buf.Len())
	}
}

// failWriter fails on the n-th call to Write (counting from 0).
type failWriter struct {
	n     int
	calls int
}

var errWrite = errors.New("write failed")

func (w *failWriter) Write(p []byte) (int, error) {
	defer func() { w.calls++ }()
	if w.calls == w.n {
		return 0, errWrite
	}
	return len(p), nil
}

func TestEncodeWriteError(t *testing.T) {
	// length prefix, payload and trailing CRLF are three separate writes
	for n := 0; n < 3; n++ {
		for _, v := range []interface{}{"abc", []byte("abc")} {
			w := &failWriter{n: n}
			assert.ErrorIs(t, Encode(w, v), errWrite, "write %d of %T", n, v)
			assert.Equal(t, n+1, w.calls, "write %d of %T", n, v)
		}
	}

	// the array stops at the first failing element
	w := &failWriter{n: 2}
	assert.ErrorIs(t, Encode(w, []string{"a", "b"}), errWrite)
	assert.Equal(t, 3, w.calls)

	w = &failWriter{n: 0}
	assert.ErrorIs(t, Encode(w, 42), errWrite)
}

func TestEncodeDecodeRequests(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, []string{"CLUSTER", "SLOTS"}))
	require.NoError(t, Encode(&buf, Array{"SET", []byte("k"), BulkString("v")}))
	require.NoError(t, Encode(&buf, []interface{}{[]byte("COMMAND")}))

	reqs, err := DecodeRequests(&buf)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"CLUSTER", "SLOTS"}, {"SET", "k", "v"}, {"COMMAND"}}, reqs)
}

var benchValues = []interface{}{
	"SET",
	[]byte(strings.Repeat("v", 1024)),
	[]string{"CLUSTER", "SLOTS"},
	Array{0, 5460, Array{"127.0.0.1", int64(7000)}},
}

func BenchmarkEncode(b *testing.B) {
	for _, v := range benchValues {
		b.Run(fmt.Sprintf("%T", v), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if err := Encode(io.Discard, v); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
