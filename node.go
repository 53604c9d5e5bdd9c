package redislot

import (
	"context"

	"github.com/gomodule/redigo/redis"
)

// Node executes commands on a cluster node. It is used by CommandSlotter
// to load the command table and to resolve commands with movable keys.
// Replies have the types returned by redigo's redis.Conn.
type Node interface {
	ExecuteCommand(ctx context.Context, command string, args ...interface{}) (interface{}, error)
}

// NodeFunc is an adapter to use an ordinary function as a Node.
type NodeFunc func(ctx context.Context, command string, args ...interface{}) (interface{}, error)

// ExecuteCommand calls fn.
func (fn NodeFunc) ExecuteCommand(ctx context.Context, command string, args ...interface{}) (interface{}, error) {
	return fn(ctx, command, args...)
}

// PoolNode is a Node that executes each command on a connection from
// Pool.
type PoolNode struct {
	Pool *redis.Pool
}

// ExecuteCommand gets a connection from the pool, executes the command and
// releases the connection. Both steps are bound by ctx.
func (n PoolNode) ExecuteCommand(ctx context.Context, command string, args ...interface{}) (interface{}, error) {
	conn, err := n.Pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return redis.DoContext(conn, ctx, command, args...)
}

// DialNode is a Node that dials a new connection to Addr for each command.
type DialNode struct {
	Addr    string
	Options []redis.DialOption
}

// ExecuteCommand dials the node, executes the command and closes the
// connection.
func (n DialNode) ExecuteCommand(ctx context.Context, command string, args ...interface{}) (interface{}, error) {
	conn, err := redis.DialContext(ctx, "tcp", n.Addr, n.Options...)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return redis.DoContext(conn, ctx, command, args...)
}
