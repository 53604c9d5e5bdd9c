// Package redislot implements the routing and wire-packing core of a redis
// cluster client. It computes the hash slot that owns a command, using the
// key positions reported by the cluster at runtime, and serializes commands
// in the redis protocol. It builds on the redigo client package for the
// requests it makes to the cluster. See http://redis.io/topics/cluster-spec
// for details.
//
// Slots
//
// A KeySlotter computes the hash slot of a single key: the key is encoded
// with the Encoder, reduced to its hash tag if it has a non-empty one (the
// part between the first "{" and the next "}") and hashed with CRC16 modulo
// HashSlots. Keys that share a hash tag map to the same slot:
//
//     s := redislot.NewKeySlotter(nil, redislot.Options{})
//     s.KeySlot("{user1000}.following") // same slot as...
//     s.KeySlot("{user1000}.followers") // ...this one
//
// A CommandSlotter extends it to whole commands. Its Initialize method
// loads the key positions of all commands from a cluster node using the
// COMMAND command, after which CommandSlot returns the slot of a command's
// keys. All keys of a command must map to the same slot, otherwise an error
// that satisfies IsCrossSlot is returned. Scripting commands without keys
// and commands that have no keys (e.g. PING) get a random slot.
//
// The keys of some commands (e.g. SORT or ZUNIONSTORE) can only be found by
// the server. For those, CommandSlot returns an error that satisfies
// IsMovableKeys, and GetMovableKeys must be called to ask the node for the
// keys with COMMAND GETKEYS.
//
// Packing
//
// A CommandPacker serializes a command and its arguments in the redis
// protocol, as an array of bulk strings. Arguments may be strings, byte
// slices, *bytes.Buffer, integers, floats or values that implement
// redigo's redis.Argument interface.
//
// Speedups
//
// KeySlotter, CommandSlotter and CommandPacker have an accelerated
// implementation enabled by Options.Speedups. It returns the same results
// as the portable one and handles the common cases only, the portable
// implementation is used for any other call (including all calls that
// fail). The fallbacks are counted by Metrics.
//
// Cluster
//
// The Cluster type ties everything together: Refresh loads the mapping of
// hash slots to nodes and the command table, and Route returns the slot,
// the node address and the packed frame of a command, ready to be sent by
// the transport.
//
package redislot
