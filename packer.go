package redislot

import (
	"bytes"
	"strconv"
)

// CommandPacker serializes commands in the redis protocol (RESP), as an
// array of bulk strings. It is safe for concurrent use.
type CommandPacker struct {
	enc     *Encoder
	fast    bool
	metrics *Metrics
}

// NewCommandPacker returns a CommandPacker that encodes strings with enc.
// If enc is nil, DefaultEncoder is used. The accelerated implementation is
// only available for UTF-8 encoders.
func NewCommandPacker(enc *Encoder, opts Options) *CommandPacker {
	if enc == nil {
		enc = DefaultEncoder()
	}
	return &CommandPacker{
		enc:     enc,
		fast:    opts.Speedups && enc.enc == nil,
		metrics: opts.Metrics,
	}
}

// Encoder returns the encoder used for strings.
func (p *CommandPacker) Encoder() *Encoder { return p.enc }

// PackCommand returns the RESP frame for the command and its arguments.
// See Encoder.Encode for the supported argument types.
func (p *CommandPacker) PackCommand(command string, args ...interface{}) ([]byte, error) {
	return p.AppendCommand(nil, command, args...)
}

// AppendCommand appends the RESP frame for the command and its arguments
// to dst and returns the extended slice. On error, the returned slice is
// nil. The arguments are never modified.
func (p *CommandPacker) AppendCommand(dst []byte, command string, args ...interface{}) ([]byte, error) {
	if p.fast {
		if b, ok := appendCommandFast(dst, command, args); ok {
			return b, nil
		}
		p.metrics.fallback(opPack)
	}

	b, err := p.appendCommand(dst, command, args)
	if err != nil {
		return nil, newCommandError(err, command, args)
	}
	return b, nil
}

func (p *CommandPacker) appendCommand(dst []byte, command string, args []interface{}) ([]byte, error) {
	buf := bytes.NewBuffer(dst)
	writeLen(buf, '*', 1+len(args))
	if err := p.writeArg(buf, command); err != nil {
		return nil, err
	}
	for _, arg := range args {
		if err := p.writeArg(buf, arg); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (p *CommandPacker) writeArg(buf *bytes.Buffer, arg interface{}) error {
	b, err := p.enc.Encode(arg)
	if err != nil {
		return err
	}
	writeLen(buf, '$', len(b))
	buf.Write(b)
	buf.WriteString("\r\n")
	return nil
}

func writeLen(buf *bytes.Buffer, prefix byte, n int) {
	buf.WriteByte(prefix)
	buf.WriteString(strconv.Itoa(n))
	buf.WriteString("\r\n")
}
