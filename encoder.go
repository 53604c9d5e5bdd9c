package redislot

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gomodule/redigo/redis"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// ErrorPolicy defines how an Encoder handles text that cannot be
// represented in its encoding.
type ErrorPolicy string

// List of supported error policies.
const (
	// Strict fails the encoding with an error wrapping ErrInvalidValue.
	Strict ErrorPolicy = "strict"
	// Replace substitutes the encoding's replacement character.
	Replace ErrorPolicy = "replace"
)

// Encoder converts keys and arguments to the bytes sent to redis. The same
// Encoder must be used for slotting and packing so that both agree on the
// bytes of a key. An Encoder is immutable and safe for concurrent use.
type Encoder struct {
	name   string
	policy ErrorPolicy
	enc    encoding.Encoding // nil for UTF-8, which needs no transformation
}

// NewEncoder returns an Encoder for the named text encoding (an IANA name
// such as "utf-8" or "iso-8859-1") and error policy. An empty name means
// UTF-8 and an empty policy means Strict.
func NewEncoder(name string, policy ErrorPolicy) (*Encoder, error) {
	switch policy {
	case "":
		policy = Strict
	case Strict, Replace:
	default:
		return nil, fmt.Errorf("redislot: unknown encoding error policy %q", policy)
	}

	e := &Encoder{name: name, policy: policy}
	if isUTF8(name) {
		if e.name == "" {
			e.name = "utf-8"
		}
		return e, nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("redislot: unknown encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("redislot: unsupported encoding %q", name)
	}
	e.enc = enc
	return e, nil
}

// DefaultEncoder returns a strict UTF-8 Encoder.
func DefaultEncoder() *Encoder {
	return &Encoder{name: "utf-8", policy: Strict}
}

func isUTF8(name string) bool {
	return name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8")
}

// Name returns the name of the text encoding.
func (e *Encoder) Name() string { return e.name }

// Policy returns the error policy.
func (e *Encoder) Policy() ErrorPolicy { return e.policy }

// Encode returns the bytes for v. Strings are encoded with the text
// encoding, byte slices and the unread portion of a *bytes.Buffer are
// returned as-is (not copied), integers and floats are converted to their
// decimal representation and a redis.Argument is encoded using the value
// returned by its RedisArg method. Any other type is an error.
func (e *Encoder) Encode(v interface{}) ([]byte, error) {
	switch v := v.(type) {
	case string:
		return e.encodeString(v)
	case []byte:
		return v, nil
	case *bytes.Buffer:
		if v == nil {
			return nil, fmt.Errorf("%w: nil *bytes.Buffer", ErrInvalidValue)
		}
		return v.Bytes(), nil
	case int:
		return e.encodeDigits(strconv.AppendInt(nil, int64(v), 10))
	case int8:
		return e.encodeDigits(strconv.AppendInt(nil, int64(v), 10))
	case int16:
		return e.encodeDigits(strconv.AppendInt(nil, int64(v), 10))
	case int32:
		return e.encodeDigits(strconv.AppendInt(nil, int64(v), 10))
	case int64:
		return e.encodeDigits(strconv.AppendInt(nil, v, 10))
	case uint:
		return e.encodeDigits(strconv.AppendUint(nil, uint64(v), 10))
	case uint8:
		return e.encodeDigits(strconv.AppendUint(nil, uint64(v), 10))
	case uint16:
		return e.encodeDigits(strconv.AppendUint(nil, uint64(v), 10))
	case uint32:
		return e.encodeDigits(strconv.AppendUint(nil, uint64(v), 10))
	case uint64:
		return e.encodeDigits(strconv.AppendUint(nil, v, 10))
	case float32:
		return e.encodeDigits(strconv.AppendFloat(nil, float64(v), 'g', -1, 32))
	case float64:
		return e.encodeDigits(strconv.AppendFloat(nil, v, 'g', -1, 64))
	case redis.Argument:
		arg := v.RedisArg()
		if _, ok := arg.(redis.Argument); ok {
			return nil, fmt.Errorf("%w: nested redis.Argument %T", ErrInvalidValue, v)
		}
		return e.Encode(arg)
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalidValue, v)
	}
}

// encodeDigits encodes the ASCII representation of a number. Only
// encodings that are not ASCII-compatible need to transform it.
func (e *Encoder) encodeDigits(b []byte) ([]byte, error) {
	if e.enc == nil {
		return b, nil
	}
	return e.encodeString(string(b))
}

func (e *Encoder) encodeString(s string) ([]byte, error) {
	if e.enc == nil {
		if utf8.ValidString(s) {
			return []byte(s), nil
		}
		if e.policy == Replace {
			return []byte(strings.ToValidUTF8(s, "�")), nil
		}
		return nil, fmt.Errorf("%w: string %q is not valid utf-8", ErrInvalidValue, s)
	}

	enc := e.enc.NewEncoder()
	if e.policy == Replace {
		enc = encoding.ReplaceUnsupported(enc)
	}
	b, err := enc.Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot encode %q as %s: %v", ErrInvalidValue, s, e.name, err)
	}
	return b, nil
}
