package redislot

import (
	"bytes"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/gomodule/redigo/redis"
	"github.com/mna/redislot/redistest/resp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPackers(t testing.TB, enc *Encoder) map[string]*CommandPacker {
	fast := NewCommandPacker(enc, Options{Speedups: true})
	portable := NewCommandPacker(enc, Options{})
	require.False(t, portable.fast)
	return map[string]*CommandPacker{"speedups": fast, "portable": portable}
}

func TestPackCommand(t *testing.T) {
	cases := []struct {
		cmd  string
		args []interface{}
		out  string
	}{
		{"PING", nil, "*1\r\n$4\r\nPING\r\n"},
		{"GET", []interface{}{"k"}, "*2\r\n$3\r\nGET\r\n$1\r\nk\r\n"},
		{"SET", []interface{}{"k", ""}, "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$0\r\n\r\n"},
		{"SET", []interface{}{[]byte("k\r\n"), []byte{0, 255}}, "*3\r\n$3\r\nSET\r\n$3\r\nk\r\n\r\n$2\r\n\x00\xff\r\n"},
		{"SET", []interface{}{"a≠b", 12}, "*3\r\n$3\r\nSET\r\n$5\r\na≠b\r\n$2\r\n12\r\n"},
		{"INCRBYFLOAT", []interface{}{"k", 0.1}, "*3\r\n$11\r\nINCRBYFLOAT\r\n$1\r\nk\r\n$3\r\n0.1\r\n"},
		{"ZADD", []interface{}{"k", math.Inf(-1), "m"}, "*4\r\n$4\r\nZADD\r\n$1\r\nk\r\n$4\r\n-Inf\r\n$1\r\nm\r\n"},
		{"X", []interface{}{int8(-1), uint64(math.MaxUint64), float32(1.5)}, "*4\r\n$1\r\nX\r\n$2\r\n-1\r\n$20\r\n18446744073709551615\r\n$3\r\n1.5\r\n"},
		{"SET", []interface{}{"k", bytes.NewBufferString("buf")}, "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$3\r\nbuf\r\n"},
		{"SET", []interface{}{"k", argument{"arg"}}, "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$3\r\narg\r\n"},
		{"", nil, "*1\r\n$0\r\n\r\n"},
	}

	for name, p := range newTestPackers(t, nil) {
		t.Run(name, func(t *testing.T) {
			for _, c := range cases {
				got, err := p.PackCommand(c.cmd, c.args...)
				require.NoError(t, err, "%s %v", c.cmd, c.args)
				assert.Equal(t, c.out, string(got), "%s %v", c.cmd, c.args)
			}
		})
	}
}

func TestPackCommandInvalid(t *testing.T) {
	for name, p := range newTestPackers(t, nil) {
		t.Run(name, func(t *testing.T) {
			for _, args := range [][]interface{}{
				{nil},
				{true},
				{"k", struct{}{}},
				{"k", "\xff"},
				{"k", []interface{}{"nested"}},
			} {
				got, err := p.PackCommand("SET", args...)
				assert.ErrorIs(t, err, ErrInvalidValue, "%v", args)
				assert.Nil(t, got)

				var ce *CommandError
				if assert.ErrorAs(t, err, &ce) {
					assert.Equal(t, "SET", ce.Command)
				}
			}

			_, err := p.PackCommand("\xff")
			assert.ErrorIs(t, err, ErrInvalidValue)
		})
	}
}

func TestPackCommandRoundTrip(t *testing.T) {
	args := []interface{}{
		"text", "", "a≠b", []byte{0, 1, 2, '\r', '\n'}, bytes.NewBufferString("buffer"),
		-1, int8(2), int16(3), int32(4), int64(math.MaxInt64),
		uint(5), uint8(6), uint16(7), uint32(8), uint64(9),
		0.5, float32(-2.25), 1e100, argument{"arg"}, redis.Args{"x"}[0],
	}
	want := []string{
		"CMD", "text", "", "a≠b", "\x00\x01\x02\r\n", "buffer",
		"-1", "2", "3", "4", "9223372036854775807",
		"5", "6", "7", "8", "9",
		"0.5", "-2.25", "1e+100", "arg", "x",
	}

	for name, p := range newTestPackers(t, nil) {
		t.Run(name, func(t *testing.T) {
			b, err := p.PackCommand("CMD", args...)
			require.NoError(t, err)

			got, err := resp.DecodeRequest(bytes.NewBuffer(b))
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestAppendCommand(t *testing.T) {
	for name, p := range newTestPackers(t, nil) {
		t.Run(name, func(t *testing.T) {
			var buf []byte
			var err error
			buf, err = p.AppendCommand(buf, "MULTI")
			require.NoError(t, err)
			buf, err = p.AppendCommand(buf, "SET", "{a}1", 1)
			require.NoError(t, err)
			buf, err = p.AppendCommand(buf, "EXEC")
			require.NoError(t, err)

			reqs, err := resp.DecodeRequests(bytes.NewBuffer(buf))
			require.NoError(t, err)
			assert.Equal(t, [][]string{{"MULTI"}, {"SET", "{a}1", "1"}, {"EXEC"}}, reqs)

			// the prefix is kept as-is
			prefix := []byte("prefix")
			out, err := p.AppendCommand(prefix, "PING")
			require.NoError(t, err)
			assert.Equal(t, "prefix*1\r\n$4\r\nPING\r\n", string(out))
			assert.Equal(t, "prefix", string(prefix))
		})
	}
}

func TestPackCommandDoesNotModifyArgs(t *testing.T) {
	for name, p := range newTestPackers(t, nil) {
		t.Run(name, func(t *testing.T) {
			b := []byte("bytes")
			buf := bytes.NewBufferString("buffer")
			args := []interface{}{"k", b, buf, 1}

			frame, err := p.PackCommand("SET", args...)
			require.NoError(t, err)

			// mutating the frame does not change the arguments
			for i := range frame {
				frame[i] = 'x'
			}
			assert.Equal(t, "bytes", string(b))
			assert.Equal(t, "buffer", buf.String())
			assert.Equal(t, []interface{}{"k", b, buf, 1}, args)
		})
	}
}

func TestPackCommandLarge(t *testing.T) {
	large := strings.Repeat("0123456789abcdef", 32*1024) // 512KB
	for name, p := range newTestPackers(t, nil) {
		t.Run(name, func(t *testing.T) {
			b, err := p.PackCommand("SET", "k", large, []byte(large))
			require.NoError(t, err)

			got, err := resp.DecodeRequest(bytes.NewBuffer(b))
			require.NoError(t, err)
			require.Len(t, got, 4)
			assert.Equal(t, large, got[2])
			assert.Equal(t, large, got[3])
		})
	}
}

func TestPackCommandEncoding(t *testing.T) {
	latin, err := NewEncoder("iso-8859-1", Replace)
	require.NoError(t, err)

	for name, p := range newTestPackers(t, latin) {
		t.Run(name, func(t *testing.T) {
			assert.False(t, p.fast)
			assert.Same(t, latin, p.Encoder())

			b, err := p.PackCommand("SET", "café", "a≠b", []byte("é"), 1.5)
			require.NoError(t, err)
			assert.Equal(t, "*5\r\n$3\r\nSET\r\n$4\r\ncaf\xe9\r\n$3\r\na\x1ab\r\n$2\r\né\r\n$3\r\n1.5\r\n", string(b))
		})
	}
}

var packValues = []interface{}{
	"a", "", "{a}b", "a≠b", "\xfe", []byte{0xff}, []byte(""), bytes.NewBufferString("buf"),
	0, -1, 42, int64(math.MinInt64), uint8(3), uint64(math.MaxUint64),
	0.0, -0.5, 1e-7, math.MaxFloat64, float32(3.4e38), math.NaN(),
	argument{"x"}, argument{3}, true, nil,
}

func TestPackCommandSpeedupsEquivalence(t *testing.T) {
	fast := NewCommandPacker(nil, Options{Speedups: true})
	portable := NewCommandPacker(nil, Options{})

	r := rand.New(rand.NewPCG(5, 6))
	for i := 0; i < 5000; i++ {
		args := make([]interface{}, r.IntN(6))
		for j := range args {
			v := packValues[r.IntN(len(packValues))]
			if buf, ok := v.(*bytes.Buffer); ok {
				// a fresh buffer each time, it is shared otherwise
				v = bytes.NewBuffer(buf.Bytes())
			}
			args[j] = v
		}

		b1, err1 := fast.PackCommand("CMD", args...)
		b2, err2 := portable.PackCommand("CMD", args...)
		if err2 != nil {
			require.Error(t, err1, "%v", args)
			require.Equal(t, err2.Error(), err1.Error(), "%v", args)
			continue
		}
		require.NoError(t, err1, "%v", args)
		require.Equal(t, b2, b1, "%v", args)
	}
}

var benchFrame []byte

func BenchmarkPackCommand(b *testing.B) {
	value := strings.Repeat("x", 100*1024)
	for name, p := range newTestPackers(b, nil) {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				benchFrame, _ = p.PackCommand("SET", "{user1000}.a", value, "EX", 10)
			}
		})
	}
}
