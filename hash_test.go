package redislot

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var slotCases = []struct {
	in  string
	out int
}{
	{"", 0},
	{"a", 15495},
	{"b", 3300},
	{"ab", 13567},
	{"abc", 7638},
	{"a{b}", 3300},
	{"{a}b", 15495},
	{"{a}{b}", 15495},
	{"{}{a}{b}", 11267},
	{"a{b}c", 3300},
	{"{a}bc", 15495},
	{"{a}{b}{c}", 15495},
	{"{}{a}{b}{c}", 1044},
	{"a{bc}d", 12685},
	{"a{bcd}", 1872},
	{"{abcd}", 10294},
	{"abcd", 10294},
	{"{a", 10276},
	{"a}", 5921},
	{"123456789", 12739},
	{"a≠b", 11870},
	{"•", 97},
	{"a{}{b}c", 14872},
}

func TestSlot(t *testing.T) {
	for _, c := range slotCases {
		got := Slot(c.in)
		assert.Equal(t, c.out, got, c.in)
	}
}

func TestKeySlot(t *testing.T) {
	for _, speedups := range []bool{true, false} {
		s := NewKeySlotter(nil, Options{Speedups: speedups})
		assert.Equal(t, speedups, s.Speedups())

		for _, c := range slotCases {
			got, err := s.KeySlot(c.in)
			require.NoError(t, err, c.in)
			assert.Equal(t, c.out, got, "string %q, speedups=%t", c.in, speedups)

			got, err = s.KeySlot([]byte(c.in))
			require.NoError(t, err, c.in)
			assert.Equal(t, c.out, got, "bytes %q, speedups=%t", c.in, speedups)
		}
	}
}

func TestKeySlotHashTag(t *testing.T) {
	s := NewKeySlotter(nil, Options{Speedups: true})

	tag, err := s.KeySlot("{bar}")
	require.NoError(t, err)
	for _, k := range []string{"foo{bar}baz", "{bar}baz", "foo{bar}", "x{bar}{y}", "{bar}}"} {
		got, err := s.KeySlot(k)
		require.NoError(t, err)
		assert.Equal(t, tag, got, k)
	}

	// empty tag is ignored, the whole key is hashed
	got, err := s.KeySlot("foo{}baz")
	require.NoError(t, err)
	assert.Equal(t, int(crc16([]byte("foo{}baz"))%HashSlots), got)
}

func TestKeySlotValues(t *testing.T) {
	s := NewKeySlotter(nil, Options{Speedups: true})

	cases := []struct {
		in  interface{}
		out string
	}{
		{12, "12"},
		{int64(-3), "-3"},
		{uint16(7), "7"},
		{1.5, "1.5"},
		{float32(0.25), "0.25"},
	}
	for _, c := range cases {
		got, err := s.KeySlot(c.in)
		require.NoError(t, err, "%v", c.in)
		assert.Equal(t, Slot(c.out), got, "%v", c.in)
	}

	_, err := s.KeySlot(true)
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, err = s.KeySlot(nil)
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, err = s.KeySlot("\xff")
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestCRC16TableMatchesBitwise(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 1000; i++ {
		b := make([]byte, r.IntN(64))
		for j := range b {
			b[j] = byte(r.UintN(256))
		}
		require.Equal(t, crc16(b), crc16Table(b), "%x", b)
		require.Equal(t, crc16(b), crc16Table(string(b)), "%x", b)
	}

	// CRC-16/XMODEM check value
	assert.Equal(t, uint16(0x31c3), crc16([]byte("123456789")))
}

func TestHashTag(t *testing.T) {
	cases := []struct {
		in, out string
	}{
		{"", ""},
		{"abc", "abc"},
		{"{abc}", "abc"},
		{"a{b}c", "b"},
		{"{}abc", "{}abc"},
		{"a{b", "a{b"},
		{"a}b{", "a}b{"},
		{"{{a}}", "{a"},
		{"{}{a}", "{}{a}"},
	}
	for _, c := range cases {
		assert.Equal(t, c.out, hashTag(c.in), c.in)
		assert.Equal(t, []byte(c.out), hashTag([]byte(c.in)), c.in)
	}
}

var benchSlot int

func BenchmarkKeySlot(b *testing.B) {
	for _, speedups := range []bool{true, false} {
		s := NewKeySlotter(nil, Options{Speedups: speedups})
		name := "portable"
		if speedups {
			name = "speedups"
		}
		b.Run(name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				benchSlot, _ = s.KeySlot("{user1000}.following")
			}
		})
	}
}
