package redislot

import (
	"bytes"
	"slices"
	"strconv"
	"unicode/utf8"
)

// fastSlotter is the accelerated implementation of KeySlotter and
// CommandSlotter. It handles string and []byte keys with a UTF-8 encoder
// without allocating, and only the commands whose keys all map to the same
// slot. It reports false for anything else and the portable implementation
// is then used for that call, so that errors are always those of the
// portable implementation.
type fastSlotter struct {
	ok bool // false if the encoder transforms strings
}

func newFastSlotter(enc *Encoder) *fastSlotter {
	return &fastSlotter{ok: enc.enc == nil}
}

func (f *fastSlotter) keySlot(key interface{}) (int, bool) {
	if !f.ok {
		return -1, false
	}
	switch key := key.(type) {
	case string:
		if !utf8.ValidString(key) {
			return -1, false
		}
		return int(crc16Table(hashTag(key)) % HashSlots), true
	case []byte:
		return int(crc16Table(hashTag(key)) % HashSlots), true
	}
	return -1, false
}

func (f *fastSlotter) commandSlot(t *commandTable, command string, args []interface{}) (int, bool) {
	if !f.ok || t == nil || len(args) == 0 {
		return -1, false
	}
	r := t.resolve(command)
	if r.err != nil || r.special || (len(r.head) == 1 && t.isContainer(r)) {
		return -1, false
	}

	n := len(r.head) + len(args)
	switch r.spec.Kind {
	case SingleKey:
		if n < 2 {
			return -1, false
		}
		return f.keySlot(r.arg(args, 1))

	case KeyRange:
		slot := -1
		start, stop, step := r.spec.keyRange(n)
		for i := start; i < stop; i += step {
			s, ok := f.keySlot(r.arg(args, i))
			if !ok || (slot >= 0 && s != slot) {
				return -1, false
			}
			slot = s
		}
		return slot, slot >= 0
	}
	return -1, false
}

// appendCommandFast is the accelerated implementation of
// CommandPacker.AppendCommand for a UTF-8 encoder. It appends the whole
// frame to dst, growing it once, and reports false if an argument is not
// supported.
func appendCommandFast(dst []byte, command string, args []interface{}) ([]byte, bool) {
	size := 16 + len(command) + 16
	for _, arg := range args {
		switch arg := arg.(type) {
		case string:
			size += len(arg) + 16
		case []byte:
			size += len(arg) + 16
		case *bytes.Buffer:
			if arg != nil {
				size += arg.Len() + 16
			}
		default:
			size += 48
		}
	}
	dst = slices.Grow(dst, size)

	dst = appendLen(dst, '*', 1+len(args))
	dst, ok := appendArgFast(dst, command)
	if !ok {
		return nil, false
	}
	for _, arg := range args {
		if dst, ok = appendArgFast(dst, arg); !ok {
			return nil, false
		}
	}
	return dst, true
}

func appendArgFast(dst []byte, arg interface{}) ([]byte, bool) {
	var scratch [64]byte

	switch arg := arg.(type) {
	case string:
		if !utf8.ValidString(arg) {
			return dst, false
		}
		return appendBulk(dst, arg), true
	case []byte:
		return appendBulk(dst, arg), true
	case *bytes.Buffer:
		if arg == nil {
			return dst, false
		}
		return appendBulk(dst, arg.Bytes()), true
	case int:
		return appendBulk(dst, strconv.AppendInt(scratch[:0], int64(arg), 10)), true
	case int8:
		return appendBulk(dst, strconv.AppendInt(scratch[:0], int64(arg), 10)), true
	case int16:
		return appendBulk(dst, strconv.AppendInt(scratch[:0], int64(arg), 10)), true
	case int32:
		return appendBulk(dst, strconv.AppendInt(scratch[:0], int64(arg), 10)), true
	case int64:
		return appendBulk(dst, strconv.AppendInt(scratch[:0], arg, 10)), true
	case uint:
		return appendBulk(dst, strconv.AppendUint(scratch[:0], uint64(arg), 10)), true
	case uint8:
		return appendBulk(dst, strconv.AppendUint(scratch[:0], uint64(arg), 10)), true
	case uint16:
		return appendBulk(dst, strconv.AppendUint(scratch[:0], uint64(arg), 10)), true
	case uint32:
		return appendBulk(dst, strconv.AppendUint(scratch[:0], uint64(arg), 10)), true
	case uint64:
		return appendBulk(dst, strconv.AppendUint(scratch[:0], arg, 10)), true
	case float32:
		return appendBulk(dst, strconv.AppendFloat(scratch[:0], float64(arg), 'g', -1, 32)), true
	case float64:
		return appendBulk(dst, strconv.AppendFloat(scratch[:0], arg, 'g', -1, 64)), true
	}
	return dst, false
}

func appendBulk[T ~string | ~[]byte](dst []byte, b T) []byte {
	dst = appendLen(dst, '$', len(b))
	dst = append(dst, b...)
	return append(dst, '\r', '\n')
}

func appendLen(dst []byte, prefix byte, n int) []byte {
	dst = append(dst, prefix)
	dst = strconv.AppendInt(dst, int64(n), 10)
	return append(dst, '\r', '\n')
}
