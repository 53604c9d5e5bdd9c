package redislot

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"github.com/gomodule/redigo/redis"
)

// Cluster maps the hash slots of a redis cluster to its nodes and routes
// commands to them. If the CreatePool field is not nil, a redis.Pool is
// used for each node in the cluster, otherwise redis.Dial is used for each
// request made by the Cluster.
type Cluster struct {
	// StartupNodes is the list of initial nodes that make up
	// the cluster. The values are expected as "address:port"
	// (e.g.: "111.222.333.444:6379").
	StartupNodes []string

	// DialOptions is the list of options to set on each new connection.
	DialOptions []redis.DialOption

	// CreatePool is the function to call to create a redis.Pool for
	// the specified TCP address, using the provided options
	// as set in DialOptions.
	CreatePool func(address string, options ...redis.DialOption) (*redis.Pool, error)

	// Encoder encodes keys and arguments. Defaults to DefaultEncoder.
	Encoder *Encoder

	// Options configures the slotter and packer of the cluster.
	Options Options

	initOnce sync.Once
	slotter  *CommandSlotter
	packer   *CommandPacker

	mu      sync.Mutex             // protects following fields
	err     error                  // closed cluster error
	pools   map[string]*redis.Pool // created pools per node
	nodes   map[string]bool        // set of known active nodes, kept up-to-date
	mapping [HashSlots]string      // hash slot number to master server address
}

// Route is the outcome of routing a command: the slot and address of the
// node that must serve it, and the packed command to send.
type Route struct {
	Slot  int
	Addr  string
	Frame []byte
}

func (c *Cluster) init() {
	c.initOnce.Do(func() {
		c.slotter = NewCommandSlotter(c.Encoder, c.Options)
		c.packer = NewCommandPacker(c.Encoder, c.Options)
	})
}

// Slotter returns the CommandSlotter of the cluster. It is initialized by
// Refresh.
func (c *Cluster) Slotter() *CommandSlotter {
	c.init()
	return c.slotter
}

// Packer returns the CommandPacker of the cluster.
func (c *Cluster) Packer() *CommandPacker {
	c.init()
	return c.packer
}

// Refresh updates the cluster's mapping of hash slots to redis nodes and
// reloads the command table. It calls CLUSTER SLOTS and COMMAND on each
// known node until one of them succeeds.
func (c *Cluster) Refresh(ctx context.Context) error {
	c.mu.Lock()
	err := c.err
	c.mu.Unlock()
	if err != nil {
		return err
	}

	log := c.Options.logger()
	for _, addr := range c.getNodeAddrs() {
		node := c.Node(addr)
		m, err := getClusterSlots(ctx, node)
		if err == nil {
			err = c.Slotter().Initialize(ctx, node)
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			log.Debug("refresh failed", slog.String("addr", addr), slog.String("error", err.Error()))
			continue
		}

		c.mu.Lock()
		// mark all current nodes as false
		for k := range c.nodes {
			c.nodes[k] = false
		}
		for _, sm := range m {
			for ix := sm.start; ix <= sm.end; ix++ {
				c.mapping[ix] = sm.master
				c.nodes[sm.master] = true
			}
		}
		// remove all nodes that are gone from the cluster
		for k, ok := range c.nodes {
			if !ok {
				delete(c.nodes, k)
			}
		}
		c.mu.Unlock()

		log.Debug("cluster refreshed", slog.String("addr", addr), slog.Int("ranges", len(m)))
		return nil
	}

	return errors.New("redislot: all nodes failed")
}

type slotMapping struct {
	start, end int
	master     string
}

func getClusterSlots(ctx context.Context, node Node) ([]slotMapping, error) {
	vals, err := redis.Values(node.ExecuteCommand(ctx, "CLUSTER", "SLOTS"))
	if err != nil {
		return nil, err
	}

	m := make([]slotMapping, 0, len(vals))
	for len(vals) > 0 {
		var slotRange []interface{}
		vals, err = redis.Scan(vals, &slotRange)
		if err != nil {
			return nil, err
		}

		var start, end int
		var master []interface{}
		if _, err = redis.Scan(slotRange, &start, &end, &master); err != nil {
			return nil, err
		}
		if start < 0 || end >= HashSlots || start > end {
			return nil, errors.New("redislot: invalid slot range " + strconv.Itoa(start) + "-" + strconv.Itoa(end))
		}

		// the first node is the master, replicas follow and are ignored
		var addr string
		var port int
		if _, err = redis.Scan(master, &addr, &port); err != nil {
			return nil, err
		}
		m = append(m, slotMapping{start: start, end: end, master: addr + ":" + strconv.Itoa(port)})
	}
	return m, nil
}

// Node returns a Node that executes commands on the node at addr.
func (c *Cluster) Node(addr string) Node {
	return NodeFunc(func(ctx context.Context, command string, args ...interface{}) (interface{}, error) {
		conn, err := c.getConnForAddr(ctx, addr)
		if err != nil {
			return nil, err
		}
		defer conn.Close()
		return redis.DoContext(conn, ctx, command, args...)
	})
}

func (c *Cluster) getConnForAddr(ctx context.Context, addr string) (redis.Conn, error) {
	// non-pooled doesn't require a lock
	if c.CreatePool == nil {
		return redis.DialContext(ctx, "tcp", addr, c.DialOptions...)
	}

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}

	p := c.pools[addr]
	if p == nil {
		c.mu.Unlock()
		pool, err := c.CreatePool(addr, c.DialOptions...)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.pools == nil {
			c.pools = make(map[string]*redis.Pool, len(c.StartupNodes))
		}
		// another goroutine may have created a pool concurrently
		if existing := c.pools[addr]; existing != nil {
			pool.Close()
			pool = existing
		}
		c.pools[addr] = pool
		p = pool
	}
	c.mu.Unlock()

	return p.GetContext(ctx)
}

// SlotAddr returns the address of the master node that holds the slot, or
// an empty string if the slot is not mapped.
func (c *Cluster) SlotAddr(slot int) string {
	if slot < 0 || slot >= HashSlots {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mapping[slot]
}

var errNoNodeForSlot = errors.New("redislot: no node for slot")

// Route resolves the slot of the command, the node that holds it and
// packs the command. Commands with movable keys are resolved by asking
// the node used to load the command table.
func (c *Cluster) Route(ctx context.Context, command string, args ...interface{}) (Route, error) {
	s := c.Slotter()
	slot, err := s.CommandSlot(command, args...)
	if IsMovableKeys(err) {
		slot, err = s.GetMovableKeys(ctx, command, args...)
	}
	if err != nil {
		return Route{}, err
	}

	addr := c.SlotAddr(slot)
	if addr == "" {
		return Route{}, errNoNodeForSlot
	}

	frame, err := c.Packer().PackCommand(command, args...)
	if err != nil {
		return Route{}, err
	}
	return Route{Slot: slot, Addr: addr, Frame: frame}, nil
}

func (c *Cluster) getNodeAddrs() []string {
	c.mu.Lock()

	// populate nodes lazily, only once
	if c.nodes == nil {
		c.nodes = make(map[string]bool)
		for _, n := range c.StartupNodes {
			c.nodes[n] = true
		}
	}

	// grab a slice of addresses
	addrs := make([]string, 0, len(c.nodes))
	for addr := range c.nodes {
		addrs = append(addrs, addr)
	}
	c.mu.Unlock()

	return addrs
}

// Close releases the resources used by the cluster. It closes all the
// pools that were created, if any.
func (c *Cluster) Close() error {
	c.mu.Lock()
	err := c.err
	if err == nil {
		c.err = errors.New("redislot: closed")
		for _, p := range c.pools {
			if e := p.Close(); e != nil && err == nil {
				err = e
			}
		}
	}
	c.mu.Unlock()

	return err
}
