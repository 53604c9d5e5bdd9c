package redislot

import (
	"fmt"
	"strings"

	"github.com/gomodule/redigo/redis"
	"github.com/puzpuzpuz/xsync/v3"
)

// MovableKeysCommand is a pseudo-command whose arguments are all keys. It
// is used to route the keys returned by the server for a command with
// movable keys.
const MovableKeysCommand = "MOVABLE_KEYS"

// KeySpecKind identifies how the keys of a command are located in its
// arguments.
type KeySpecKind int

// List of key spec kinds.
const (
	// NoKeys is a command without keys, e.g. PING.
	NoKeys KeySpecKind = iota
	// SingleKey is a command with exactly one key, right after the
	// command name, e.g. GET.
	SingleKey
	// MovableKeys is a command whose keys can only be found by the
	// server, e.g. SORT or ZUNIONSTORE.
	MovableKeys
	// KeyRange is a command with keys at fixed, strided positions, e.g.
	// MSET.
	KeyRange
)

func (k KeySpecKind) String() string {
	switch k {
	case NoKeys:
		return "no-keys"
	case SingleKey:
		return "single-key"
	case MovableKeys:
		return "movable-keys"
	case KeyRange:
		return "key-range"
	default:
		return fmt.Sprintf("KeySpecKind(%d)", int(k))
	}
}

// CommandKeySpec describes where the keys of a command are. The positions
// are only meaningful for the KeyRange kind, they are indices in the full
// argument list where the command name is at position 0. A negative
// LastKeyPos is counted from the end of that list.
type CommandKeySpec struct {
	Kind        KeySpecKind
	FirstKeyPos int
	LastKeyPos  int
	StepCount   int
}

// CommandInfo is a command as described by the redis COMMAND reply.
type CommandInfo struct {
	Name        string
	Arity       int
	Flags       []string
	FirstKeyPos int
	LastKeyPos  int
	StepCount   int
	Subcommands []CommandInfo
}

// KeySpec classifies the command's key positions.
func (ci CommandInfo) KeySpec() CommandKeySpec {
	switch {
	case ci.hasFlag("movablekeys"):
		return CommandKeySpec{Kind: MovableKeys}
	case ci.FirstKeyPos == 0 && ci.LastKeyPos == 0:
		return CommandKeySpec{Kind: NoKeys}
	case ci.FirstKeyPos == 1 && ci.LastKeyPos == 1:
		return CommandKeySpec{Kind: SingleKey}
	default:
		return CommandKeySpec{
			Kind:        KeyRange,
			FirstKeyPos: ci.FirstKeyPos,
			LastKeyPos:  ci.LastKeyPos,
			StepCount:   ci.StepCount,
		}
	}
}

func (ci CommandInfo) hasFlag(flag string) bool {
	for _, f := range ci.Flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}

// parseCommandInfos parses the reply of the COMMAND command.
func parseCommandInfos(reply interface{}, err error) ([]CommandInfo, error) {
	rows, err := redis.Values(reply, err)
	if err != nil {
		return nil, err
	}

	infos := make([]CommandInfo, 0, len(rows))
	for _, row := range rows {
		ci, err := parseCommandInfo(row)
		if err != nil {
			return nil, err
		}
		infos = append(infos, ci)
	}
	return infos, nil
}

func parseCommandInfo(row interface{}) (CommandInfo, error) {
	var ci CommandInfo

	fields, err := redis.Values(row, nil)
	if err != nil {
		return ci, fmt.Errorf("redislot: invalid COMMAND reply: %w", err)
	}
	if len(fields) < 6 {
		return ci, fmt.Errorf("redislot: invalid COMMAND reply: %d fields, want at least 6", len(fields))
	}

	var flags []interface{}
	rest, err := redis.Scan(fields, &ci.Name, &ci.Arity, &flags, &ci.FirstKeyPos, &ci.LastKeyPos, &ci.StepCount)
	if err != nil {
		return ci, fmt.Errorf("redislot: invalid COMMAND reply: %w", err)
	}
	if ci.Flags, err = redis.Strings(flags, nil); err != nil {
		return ci, fmt.Errorf("redislot: invalid flags for command %s: %w", ci.Name, err)
	}

	// redis 7 adds ACL categories, tips, key specs and subcommands
	if len(rest) >= 4 && rest[3] != nil {
		subs, err := parseCommandInfos(rest[3], nil)
		if err != nil {
			return ci, err
		}
		ci.Subcommands = subs
	}
	return ci, nil
}

// addCommandSpecs adds the key specs of infos to specs, indexed by the
// upper-cased command name. Subcommands (e.g. "memory|usage") are indexed
// by the space-separated container and subcommand names ("MEMORY USAGE").
// The names of commands that have subcommands are added to containers.
func addCommandSpecs(specs map[string]CommandKeySpec, containers map[string]bool, infos []CommandInfo) {
	for _, ci := range infos {
		name := strings.ToUpper(strings.ReplaceAll(ci.Name, "|", " "))
		specs[name] = ci.KeySpec()
		if len(ci.Subcommands) > 0 {
			containers[name] = true
			addCommandSpecs(specs, containers, ci.Subcommands)
		}
	}
}

// maxResolved caps the number of distinct command names cached by a
// commandTable.
const maxResolved = 4096

// commandTable is an immutable snapshot of the command key specs, along
// with the node it was loaded from.
type commandTable struct {
	specs      map[string]CommandKeySpec
	containers map[string]bool
	node       Node
	generation uint64

	// resolved caches the lookups of the accelerated path, by raw command
	// name.
	resolved *xsync.MapOf[string, resolution]
}

func newCommandTable(specs map[string]CommandKeySpec, containers map[string]bool, node Node, generation uint64) *commandTable {
	return &commandTable{
		specs:      specs,
		containers: containers,
		node:       node,
		generation: generation,
		resolved:   xsync.NewMapOf[string, resolution](),
	}
}

// resolution is the result of looking up a command name in a commandTable.
type resolution struct {
	// name is the canonical name of the command, or of its first word for
	// a multi-word command.
	name string
	// head holds the words of the command name, they start the full
	// argument list.
	head []interface{}
	spec CommandKeySpec
	// special is set for the commands that are resolved without the
	// table, e.g. EVAL.
	special bool
	err     error
}

// lookup resolves command to its key spec. If the upper-cased name is not
// found as-is, it is split on whitespace and the container/subcommand pair
// is tried, followed by the first word alone.
func (t *commandTable) lookup(command string) resolution {
	name := strings.ToUpper(command)
	if spec, ok := t.specs[name]; ok && !strings.ContainsAny(name, " \t\r\n") {
		return resolution{name: name, head: []interface{}{name}, spec: spec, special: isSpecialCommand(name)}
	}

	words := strings.Fields(name)
	if len(words) == 0 {
		return resolution{name: name, err: ErrUnknownCommand}
	}
	head := make([]interface{}, len(words))
	for i, w := range words {
		head[i] = w
	}

	if len(words) > 1 {
		if spec, ok := t.specs[words[0]+" "+words[1]]; ok {
			return resolution{name: words[0], head: head, spec: spec}
		}
	}
	if spec, ok := t.specs[words[0]]; ok {
		return resolution{name: words[0], head: head, spec: spec, special: len(words) == 1 && isSpecialCommand(words[0])}
	}
	return resolution{name: words[0], err: fmt.Errorf("%w: %s", ErrUnknownCommand, words[0])}
}

// subcommand refines r when the command is a container (e.g. MEMORY) and
// its subcommand is the first argument. Only the key spec changes, the
// subcommand stays in args.
func (t *commandTable) subcommand(r resolution, args []interface{}) resolution {
	if len(r.head) != 1 || len(args) == 0 || !t.isContainer(r) {
		return r
	}

	var sub string
	switch v := args[0].(type) {
	case string:
		sub = v
	case []byte:
		sub = string(v)
	default:
		return r
	}
	if spec, ok := t.specs[r.name+" "+strings.ToUpper(sub)]; ok {
		r.spec = spec
	}
	return r
}

func (t *commandTable) isContainer(r resolution) bool {
	return r.err == nil && t.containers[r.name]
}

// resolve is like lookup but caches the result.
func (t *commandTable) resolve(command string) resolution {
	if r, ok := t.resolved.Load(command); ok {
		return r
	}
	r := t.lookup(command)
	if t.resolved.Size() < maxResolved {
		t.resolved.Store(command, r)
	}
	return r
}

// fullArgs returns the command name words followed by args.
func (r resolution) fullArgs(args []interface{}) []interface{} {
	full := make([]interface{}, 0, len(r.head)+len(args))
	full = append(full, r.head...)
	return append(full, args...)
}

// arg returns the argument at index i of the full argument list without
// building it.
func (r resolution) arg(args []interface{}, i int) interface{} {
	if i < len(r.head) {
		return r.head[i]
	}
	return args[i-len(r.head)]
}

// keyRange returns the start index, exclusive end index and step of the
// keys in a full argument list of length n.
func (s CommandKeySpec) keyRange(n int) (start, stop, step int) {
	last := s.LastKeyPos
	if last < 0 {
		last += n
	}
	start, stop, step = s.FirstKeyPos, last+1, s.StepCount
	if start < 0 {
		start = 0
	}
	if step < 1 {
		step = 1
	}
	if stop > n {
		stop = n
	}
	if stop < start {
		stop = start
	}
	return start, stop, step
}

// keys returns the keys in the full argument list.
func (s CommandKeySpec) keys(full []interface{}) ([]interface{}, error) {
	switch s.Kind {
	case SingleKey:
		if len(full) < 2 {
			return nil, nil
		}
		return full[1:2], nil
	case NoKeys:
		return nil, nil
	case MovableKeys:
		return nil, ErrMovableKeys
	}

	start, stop, step := s.keyRange(len(full))
	if start >= stop {
		return nil, nil
	}
	keys := make([]interface{}, 0, (stop-start+step-1)/step)
	for i := start; i < stop; i += step {
		keys = append(keys, full[i])
	}
	return keys, nil
}

func isScriptingCommand(name string) bool {
	switch name {
	case "EVAL", "EVALSHA", "FCALL", "FCALL_RO":
		return true
	}
	return false
}

func isSpecialCommand(name string) bool {
	return name == MovableKeysCommand || isScriptingCommand(name)
}
