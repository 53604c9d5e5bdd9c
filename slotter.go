package redislot

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gomodule/redigo/redis"
)

// Options configures a KeySlotter, CommandSlotter or CommandPacker.
type Options struct {
	// Speedups enables the accelerated implementation. It produces the same
	// results as the portable one, which is used for any call that the
	// accelerated implementation cannot handle.
	Speedups bool

	// Logger receives debug events. Defaults to a logger that discards
	// everything.
	Logger *slog.Logger

	// Metrics records fallbacks and command table loads. May be nil.
	Metrics *Metrics
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// KeySlotter computes the hash slot of keys. It is safe for concurrent use.
type KeySlotter struct {
	enc     *Encoder
	fast    *fastSlotter // nil if speedups are disabled
	log     *slog.Logger
	metrics *Metrics
}

// NewKeySlotter returns a KeySlotter that encodes keys with enc. If enc is
// nil, DefaultEncoder is used.
func NewKeySlotter(enc *Encoder, opts Options) *KeySlotter {
	var s KeySlotter
	s.init(enc, opts)
	return &s
}

func (s *KeySlotter) init(enc *Encoder, opts Options) {
	if enc == nil {
		enc = DefaultEncoder()
	}
	s.enc = enc
	s.log = opts.logger()
	s.metrics = opts.Metrics
	if opts.Speedups {
		s.fast = newFastSlotter(enc)
	}
}

// Encoder returns the encoder used for keys.
func (s *KeySlotter) Encoder() *Encoder { return s.enc }

// Speedups returns true if the accelerated implementation is enabled.
func (s *KeySlotter) Speedups() bool { return s.fast != nil }

// KeySlot returns the hash slot of key. The key is encoded with the
// encoder, and if it contains a non-empty hash tag ({...}), only the tag
// is hashed.
func (s *KeySlotter) KeySlot(key interface{}) (int, error) {
	if s.fast != nil {
		if slot, ok := s.fast.keySlot(key); ok {
			return slot, nil
		}
		s.metrics.fallback(opKeySlot)
	}
	return s.keySlot(key)
}

func (s *KeySlotter) keySlot(key interface{}) (int, error) {
	b, err := s.enc.Encode(key)
	if err != nil {
		return -1, err
	}
	return int(crc16(hashTag(b)) % HashSlots), nil
}

// CommandSlotter resolves commands to the hash slot that must serve them,
// using the key positions reported by the cluster. Initialize must be
// called before commands other than EVAL, EVALSHA, FCALL, FCALL_RO and
// MovableKeysCommand can be resolved.
//
// It is safe for concurrent use, including concurrent calls to Initialize:
// the command table is replaced atomically, never modified in place.
type CommandSlotter struct {
	KeySlotter

	table      atomic.Pointer[commandTable]
	generation atomic.Uint64
}

// NewCommandSlotter returns a CommandSlotter that encodes keys with enc.
// If enc is nil, DefaultEncoder is used.
func NewCommandSlotter(enc *Encoder, opts Options) *CommandSlotter {
	var s CommandSlotter
	s.init(enc, opts)
	return &s
}

// Initialize loads the key positions of all commands from node, using the
// COMMAND command. The node is kept to resolve commands with movable keys.
// The command table is only replaced if the whole reply was successfully
// loaded.
func (s *CommandSlotter) Initialize(ctx context.Context, node Node) error {
	infos, err := parseCommandInfos(node.ExecuteCommand(ctx, "COMMAND"))
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	specs := make(map[string]CommandKeySpec, len(infos))
	containers := make(map[string]bool)
	addCommandSpecs(specs, containers, infos)

	t := newCommandTable(specs, containers, node, s.generation.Add(1))
	if !s.storeTable(t) {
		s.log.Debug("command table superseded", slog.Uint64("generation", t.generation))
		return nil
	}

	s.metrics.tableLoaded(len(specs))
	s.log.Debug("command table loaded", slog.Int("commands", len(specs)), slog.Uint64("generation", t.generation))
	return nil
}

// storeTable replaces the current table with t unless the current table
// was built by a later call to Initialize.
func (s *CommandSlotter) storeTable(t *commandTable) bool {
	for {
		cur := s.table.Load()
		if cur != nil && cur.generation > t.generation {
			return false
		}
		if s.table.CompareAndSwap(cur, t) {
			return true
		}
	}
}

// Initialized returns true if a command table is loaded.
func (s *CommandSlotter) Initialized() bool {
	return s.table.Load() != nil
}

// CommandSpec returns the key spec of the command, after the same name
// resolution as GetKeys. The name is resolved without arguments, so the
// subcommand of a container must be part of it (e.g. "MEMORY USAGE").
func (s *CommandSlotter) CommandSpec(command string) (CommandKeySpec, error) {
	t := s.table.Load()
	if t == nil {
		return CommandKeySpec{}, ErrNotInitialized
	}
	r := t.lookup(command)
	return r.spec, r.err
}

// GetKeys returns the keys in the command's arguments. It returns an error
// wrapping ErrMovableKeys if the keys can only be found by the server, in
// which case GetMovableKeys must be used.
func (s *CommandSlotter) GetKeys(command string, args ...interface{}) ([]interface{}, error) {
	keys, err := s.getKeys(s.table.Load(), command, args)
	if err != nil {
		return nil, newCommandError(err, command, args)
	}
	return keys, nil
}

func (s *CommandSlotter) getKeys(t *commandTable, command string, args []interface{}) ([]interface{}, error) {
	// COMMAND GETKEYS is buggy with EVAL/EVALSHA for redis < 7.0, and the
	// literal keys pseudo-command is not known to the server.
	switch name := strings.ToUpper(command); name {
	case "EVAL", "EVALSHA":
		// syntax: EVAL "script body" numkeys key [key ...] arg [arg ...]
		if len(args) < 2 {
			return nil, ErrInvalidArgs
		}
		n, err := numKeys(args[1])
		if err != nil {
			return nil, err
		}
		end := 2 + n
		if end > len(args) {
			end = len(args)
		}
		return args[2:end], nil

	case MovableKeysCommand:
		return args, nil

	case "FCALL", "FCALL_RO":
		if len(args) < 2 {
			// command has no keys in it
			return nil, nil
		}
	}

	if t == nil {
		return nil, ErrNotInitialized
	}
	r := t.subcommand(t.lookup(command), args)
	if r.err != nil {
		return nil, r.err
	}
	return r.spec.keys(r.fullArgs(args))
}

func numKeys(v interface{}) (int, error) {
	var n int64
	var err error

	switch v := v.(type) {
	case int:
		n = int64(v)
	case int8:
		n = int64(v)
	case int16:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case uint:
		if uint64(v) > math.MaxInt {
			return 0, ErrInvalidArgs
		}
		n = int64(v)
	case uint8:
		n = int64(v)
	case uint16:
		n = int64(v)
	case uint32:
		n = int64(v)
	case uint64:
		if v > math.MaxInt {
			return 0, ErrInvalidArgs
		}
		n = int64(v)
	case string:
		n, err = strconv.ParseInt(v, 10, 0)
	case []byte:
		n, err = strconv.ParseInt(string(v), 10, 0)
	case redis.Argument:
		arg := v.RedisArg()
		if _, ok := arg.(redis.Argument); ok {
			return 0, ErrInvalidArgs
		}
		return numKeys(arg)
	default:
		return 0, ErrInvalidArgs
	}
	if err != nil || n < 0 || n > math.MaxInt {
		return 0, ErrInvalidArgs
	}
	return int(n), nil
}

// CommandSlot returns the hash slot of the node that must serve the
// command. All keys of the command must map to the same slot.
//
// Commands without keys that can run on any node (scripting commands
// without keys, and commands that the server reports as having no keys,
// e.g. PING) get a random slot. Other commands without keys fail with
// ErrNoRoutableKey, and commands with movable keys fail with
// ErrMovableKeys.
func (s *CommandSlotter) CommandSlot(command string, args ...interface{}) (int, error) {
	t := s.table.Load()
	if s.fast != nil {
		if slot, ok := s.fast.commandSlot(t, command, args); ok {
			return slot, nil
		}
		s.metrics.fallback(opCommandSlot)
	}

	slot, err := s.commandSlot(t, command, args)
	if err != nil {
		return -1, newCommandError(err, command, args)
	}
	return slot, nil
}

func (s *CommandSlotter) commandSlot(t *commandTable, command string, args []interface{}) (int, error) {
	var keys []interface{}
	if len(args) > 0 {
		var err error
		if keys, err = s.getKeys(t, command, args); err != nil {
			return -1, err
		}
	}

	if len(keys) == 0 {
		if s.anyNode(t, command, args) {
			return rand.IntN(HashSlots), nil
		}
		return -1, ErrNoRoutableKey
	}

	slot, err := s.KeySlot(keys[0])
	if err != nil {
		return -1, err
	}
	for _, key := range keys[1:] {
		other, err := s.KeySlot(key)
		if err != nil {
			return -1, err
		}
		if other != slot {
			return -1, ErrCrossSlot
		}
	}
	return slot, nil
}

// anyNode returns true if the command without keys can be executed on any
// node.
func (s *CommandSlotter) anyNode(t *commandTable, command string, args []interface{}) bool {
	if isScriptingCommand(strings.ToUpper(command)) {
		return true
	}
	if t == nil {
		return false
	}
	r := t.subcommand(t.lookup(command), args)
	return r.err == nil && r.spec.Kind == NoKeys
}

// GetMovableKeys returns the hash slot of a command with movable keys. It
// asks the node used by Initialize for the keys of the command (COMMAND
// GETKEYS) and routes them as MovableKeysCommand does. If the server
// reports that the command has no keys, it fails with ErrNoRoutableKey;
// other errors from the node are returned unchanged.
func (s *CommandSlotter) GetMovableKeys(ctx context.Context, command string, args ...interface{}) (int, error) {
	t := s.table.Load()
	if t == nil {
		return -1, newCommandError(ErrNotInitialized, command, args)
	}

	words := strings.Fields(strings.ToUpper(command))
	getKeys := make([]interface{}, 0, 1+len(words)+len(args))
	getKeys = append(getKeys, "GETKEYS")
	for _, w := range words {
		getKeys = append(getKeys, w)
	}
	getKeys = append(getKeys, args...)

	keys, err := redis.Values(t.node.ExecuteCommand(ctx, "COMMAND", getKeys...))
	if err != nil {
		if !isNoKeysReply(err) {
			s.metrics.movableKeysLookup(false)
			return -1, err
		}
		s.log.Debug("server reported no keys", slog.String("command", command), slog.String("reply", err.Error()))
		keys = nil
	}
	s.metrics.movableKeysLookup(true)
	return s.CommandSlot(MovableKeysCommand, keys...)
}

// isNoKeysReply returns true if err is a redis error reply that means the
// command has no keys. The messages are matched here and nowhere else, in
// case they change in a future redis version.
func isNoKeysReply(err error) bool {
	var re redis.Error
	if !errors.As(err, &re) {
		return false
	}
	msg := strings.ToLower(string(re))
	return strings.Contains(msg, "invalid arguments") || strings.Contains(msg, "no key arguments")
}
