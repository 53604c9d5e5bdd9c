// Command slotcli computes the hash slot of keys and commands, and the
// node of a redis cluster that serves them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/mna/mainer"
	"github.com/mna/redislot"
)

const binName = "slotcli"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] <command> [<arg>...]
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] <command> [<arg>...]
       %[1]s -h|--help

Resolve the hash slot and cluster node of a redis command.

Valid flag options are:
       -h --help                 Show this help and exit immediately.
       -a --addrs ADDRS          Comma-separated list of addresses of the
                                 cluster's nodes.
       --hash KEY                Compute and print the hash slot of KEY and
                                 exit immediately.
       -p --pack                 Print the command packed in the redis
                                 protocol. Does not require --addrs.
       -e --encoding NAME        Text encoding of keys and arguments
                                 (default: utf-8).
       --errors POLICY           Encoding error policy, strict or replace
                                 (default: strict).
       --no-speedups             Disable the accelerated implementation.
       -t --timeout DUR          Timeout of the requests to the cluster
                                 (default: 5s).
       -v --verbose              Print debug logs to stderr.

The <command> is the redis command to resolve, with the provided <arg>s.
`, binName)
)

const failure mainer.ExitCode = 1

type cmd struct {
	Help bool `flag:"h,help"`

	Addrs      string        `flag:"a,addrs"`
	Hash       string        `flag:"hash"`
	Pack       bool          `flag:"p,pack"`
	Encoding   string        `flag:"e,encoding"`
	Errors     string        `flag:"errors"`
	NoSpeedups bool          `flag:"no-speedups"`
	Timeout    time.Duration `flag:"t,timeout"`
	Verbose    bool          `flag:"v,verbose"`

	args []string
}

func (c *cmd) SetArgs(args []string) {
	c.args = args
}

func (c *cmd) Validate() error {
	if c.Help || c.Hash != "" {
		return nil
	}

	if c.Timeout < 0 {
		return errors.New("--timeout must be >= 0")
	}
	if len(c.args) == 0 {
		return errors.New("no redis command provided")
	}
	if c.Addrs == "" && !c.Pack {
		return errors.New("--addrs is required")
	}
	return nil
}

func (c *cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	var p mainer.Parser
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		fmt.Fprint(stdio.Stderr, shortUsage)
		return mainer.InvalidArgs
	}

	if c.Help {
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success
	}

	enc, err := redislot.NewEncoder(c.Encoding, redislot.ErrorPolicy(c.Errors))
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return mainer.InvalidArgs
	}
	opts := redislot.Options{
		Speedups: !c.NoSpeedups,
		Logger:   c.logger(stdio.Stderr),
	}

	if c.Hash != "" {
		slot, err := redislot.NewKeySlotter(enc, opts).KeySlot(c.Hash)
		if err != nil {
			fmt.Fprintln(stdio.Stderr, err)
			return failure
		}
		fmt.Fprintf(stdio.Stdout, "slot for %q: %d\n", c.Hash, slot)
		return mainer.Success
	}

	command, cmdArgs := c.command()
	if c.Addrs == "" {
		frame, err := redislot.NewCommandPacker(enc, opts).PackCommand(command, cmdArgs...)
		if err != nil {
			fmt.Fprintln(stdio.Stderr, err)
			return failure
		}
		fmt.Fprintf(stdio.Stdout, "%q\n", frame)
		return mainer.Success
	}

	if err := c.route(enc, opts, command, cmdArgs, stdio.Stdout); err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return failure
	}
	return mainer.Success
}

func (c *cmd) route(enc *redislot.Encoder, opts redislot.Options, command string, args []interface{}, w io.Writer) error {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cluster := &redislot.Cluster{
		StartupNodes: strings.Split(c.Addrs, ","),
		DialOptions:  []redis.DialOption{redis.DialConnectTimeout(timeout)},
		Encoder:      enc,
		Options:      opts,
	}
	defer cluster.Close()

	if err := cluster.Refresh(ctx); err != nil {
		return err
	}
	route, err := cluster.Route(ctx, command, args...)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "slot: %d\nnode: %s\n", route.Slot, route.Addr)
	if c.Pack {
		fmt.Fprintf(w, "%q\n", route.Frame)
	}
	return nil
}

func (c *cmd) command() (string, []interface{}) {
	args := make([]interface{}, len(c.args)-1)
	for i, arg := range c.args[1:] {
		args[i] = arg
	}
	return c.args[0], args
}

func (c *cmd) logger(w io.Writer) *slog.Logger {
	if !c.Verbose {
		return nil
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func main() {
	var c cmd
	os.Exit(int(c.Main(os.Args, mainer.CurrentStdio())))
}
