package redistest

import (
	"net"
	"strconv"
	"strings"

	"github.com/mna/redislot/redistest/resp"
)

// CommandRow describes a command as returned by the redis COMMAND command.
type CommandRow struct {
	Name     string
	Arity    int64
	Flags    []string
	First    int64
	Last     int64
	Step     int64
	Subs     []CommandRow // encoded as redis 7 subcommands if not empty
	Redis7   bool         // encode the redis 7 fields even without subcommands
	noFields bool
}

// Reply returns the row in the shape expected by resp.Encode.
func (r CommandRow) Reply() resp.Array {
	flags := make(resp.Array, len(r.Flags))
	for i, f := range r.Flags {
		flags[i] = resp.SimpleString(f)
	}
	row := resp.Array{r.Name, r.Arity, flags, r.First, r.Last, r.Step}
	if r.noFields {
		return row[:3]
	}
	if len(r.Subs) == 0 && !r.Redis7 {
		return row
	}

	// acl categories, tips, key specs, subcommands
	subs := make(resp.Array, len(r.Subs))
	for i, sub := range r.Subs {
		subs[i] = sub.Reply()
	}
	return append(row, resp.Array{}, resp.Array{}, resp.Array{}, subs)
}

// TruncatedRow returns a malformed COMMAND row with only the name, arity
// and flags.
func TruncatedRow(name string) CommandRow {
	return CommandRow{Name: name, Arity: 1, noFields: true}
}

// CommandsReply returns the reply of the COMMAND command for rows.
func CommandsReply(rows []CommandRow) resp.Array {
	ar := make(resp.Array, len(rows))
	for i, r := range rows {
		ar[i] = r.Reply()
	}
	return ar
}

// DefaultCommands returns a representative subset of the commands of a
// redis 7 server, with each kind of key positions.
func DefaultCommands() []CommandRow {
	return []CommandRow{
		{Name: "get", Arity: 2, Flags: []string{"readonly", "fast"}, First: 1, Last: 1, Step: 1},
		{Name: "set", Arity: -3, Flags: []string{"write", "denyoom"}, First: 1, Last: 1, Step: 1},
		{Name: "incrby", Arity: 3, Flags: []string{"write", "denyoom", "fast"}, First: 1, Last: 1, Step: 1},
		{Name: "mset", Arity: -3, Flags: []string{"write", "denyoom"}, First: 1, Last: -1, Step: 2},
		{Name: "mget", Arity: -2, Flags: []string{"readonly", "fast"}, First: 1, Last: -1, Step: 1},
		{Name: "del", Arity: -2, Flags: []string{"write"}, First: 1, Last: -1, Step: 1},
		{Name: "rename", Arity: 3, Flags: []string{"write"}, First: 1, Last: 2, Step: 1},
		{Name: "blpop", Arity: -3, Flags: []string{"write", "noscript", "blocking"}, First: 1, Last: -2, Step: 1},
		{Name: "ping", Arity: -1, Flags: []string{"fast"}},
		{Name: "info", Arity: -1, Flags: []string{"loading", "stale"}},
		{Name: "eval", Arity: -3, Flags: []string{"noscript", "skip_monitor", "may_replicate", "no_mandatory_keys", "movablekeys"}},
		{Name: "evalsha", Arity: -3, Flags: []string{"noscript", "skip_monitor", "may_replicate", "no_mandatory_keys", "movablekeys"}},
		{Name: "fcall", Arity: -3, Flags: []string{"noscript", "skip_monitor", "may_replicate", "no_mandatory_keys", "movablekeys"}},
		{Name: "sort", Arity: -2, Flags: []string{"write", "denyoom", "movablekeys"}, First: 1, Last: 1, Step: 1},
		{Name: "zunionstore", Arity: -4, Flags: []string{"write", "denyoom", "movablekeys"}, First: 1, Last: 1, Step: 1},
		{Name: "memory", Arity: -2, Redis7: true, Subs: []CommandRow{
			{Name: "memory|usage", Arity: -3, Flags: []string{"readonly"}, First: 2, Last: 2, Step: 1, Redis7: true},
			{Name: "memory|stats", Arity: 2, Flags: []string{"loading", "stale"}, Redis7: true},
		}},
	}
}

// SlotRange is a range of hash slots served by a node, as returned by
// CLUSTER SLOTS. Start and End are inclusive.
type SlotRange struct {
	Start, End int
	Addr       string
}

// ClusterHandler is a MockServer handler that answers the commands used to
// load the slots mapping and the command table of a cluster.
type ClusterHandler struct {
	Slots    []SlotRange
	Commands []CommandRow

	// GetKeys is called for COMMAND GETKEYS with the command and its
	// arguments. If it is nil, an error reply is returned.
	GetKeys func(args ...string) interface{}

	// Fallback is called for all other commands. If it is nil, an error
	// reply is returned.
	Fallback func(cmd string, args ...string) interface{}
}

// Handle implements the MockServer handler function.
func (h ClusterHandler) Handle(cmd string, args ...string) interface{} {
	switch strings.ToUpper(cmd) {
	case "CLUSTER":
		if len(args) == 1 && strings.EqualFold(args[0], "SLOTS") {
			return h.slotsReply()
		}
	case "COMMAND":
		if len(args) == 0 {
			return CommandsReply(h.Commands)
		}
		if strings.EqualFold(args[0], "GETKEYS") && h.GetKeys != nil {
			return h.GetKeys(args[1:]...)
		}
	}

	if h.Fallback != nil {
		return h.Fallback(cmd, args...)
	}
	return resp.Error("ERR unknown command '" + cmd + "'")
}

func (h ClusterHandler) slotsReply() resp.Array {
	ar := make(resp.Array, len(h.Slots))
	for i, sr := range h.Slots {
		host, port, _ := net.SplitHostPort(sr.Addr)
		p, _ := strconv.Atoi(port)
		ar[i] = resp.Array{
			int64(sr.Start),
			int64(sr.End),
			resp.Array{host, int64(p), "node-" + port},
		}
	}
	return ar
}
