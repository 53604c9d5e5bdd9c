package redislot_test

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/mna/redislot"
	"github.com/prometheus/client_golang/prometheus"
)

// Create a cluster and route commands to its nodes.
func Example() {
	// create the cluster
	cluster := redislot.Cluster{
		StartupNodes: []string{":7000", ":7001", ":7002"},
		DialOptions:  []redis.DialOption{redis.DialConnectTimeout(5 * time.Second)},
		CreatePool:   createPool,
		Options: redislot.Options{
			Speedups: true,
			Logger:   slog.New(slog.NewTextHandler(os.Stderr, nil)),
			Metrics:  redislot.NewMetrics(prometheus.DefaultRegisterer),
		},
	}
	defer cluster.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// load the slots mapping and the command table
	if err := cluster.Refresh(ctx); err != nil {
		log.Fatalf("Refresh failed: %v", err)
	}

	// resolve the node and frame of a command
	route, err := cluster.Route(ctx, "MSET", "{user1000}.a", 1, "{user1000}.b", 2)
	if err != nil {
		log.Fatalf("Route failed: %v", err)
	}
	log.Printf("send %q to %s (slot %d)", route.Frame, route.Addr, route.Slot)
}

func createPool(addr string, opts ...redis.DialOption) (*redis.Pool, error) {
	return &redis.Pool{
		MaxIdle:     5,
		MaxActive:   10,
		IdleTimeout: time.Minute,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", addr, opts...)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			_, err := c.Do("PING")
			return err
		},
	}, nil
}

// Compute the hash slot of keys.
func ExampleKeySlotter_KeySlot() {
	s := redislot.NewKeySlotter(nil, redislot.Options{Speedups: true})

	for _, key := range []interface{}{"a", "{a}b", []byte("{}a"), 42} {
		slot, err := s.KeySlot(key)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(slot)
	}

	// Output:
	// 15495
	// 15495
	// 10875
	// 8000
}

// Find the slot of a command from the key positions of a node's commands.
func ExampleCommandSlotter() {
	s := redislot.NewCommandSlotter(nil, redislot.Options{})

	// scripting commands do not need the command table
	keys, err := s.GetKeys("EVAL", "return 1", 2, "k1", "k2", "extra")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(keys...)

	_, err = s.CommandSlot("GET", "k1")
	fmt.Println(err)

	// Output:
	// k1 k2
	// redislot: command table not initialized: (GET k1)
}

// Pack a command in the redis protocol.
func ExampleCommandPacker_PackCommand() {
	p := redislot.NewCommandPacker(nil, redislot.Options{Speedups: true})

	b, err := p.PackCommand("SET", "key", 1.5)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%q\n", b)

	// Output:
	// "*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$3\r\n1.5\r\n"
}
