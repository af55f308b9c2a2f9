// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Program fibre is a command-line utility for serving and calling Fibre
// endpoints.
package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/creachadair/command"
	"github.com/creachadair/fibre"
	"github.com/creachadair/fibre/catalog"
	"github.com/creachadair/fibre/channel"
	"github.com/creachadair/fibre/codec"
	"github.com/creachadair/fibre/config"
	"github.com/creachadair/fibre/peers"
	"github.com/creachadair/flax"
	"go.uber.org/zap"
)

var serveFlags struct {
	Config string `flag:"config,Configuration file path (YAML)"`
	Listen string `flag:"listen,Listen address (overrides the configuration)"`
}

var callFlags struct {
	ChunkSize int  `flag:"chunk,Split call inputs into frames of at most this many bytes"`
	MaxFrame  int  `flag:"max-frame,Maximum frame payload accepted from the server"`
	Trace     bool `flag:"trace,Log every frame sent and received"`
}

var packFlags struct {
	Hex bool `flag:"hex,Write output as hexadecimal"`
}

func main() {
	root := &command.C{
		Name: filepath.Base(os.Args[0]),
		Help: "Utilities for serving and calling Fibre endpoints.",
		Commands: []*command.C{
			{
				Name:  "pack",
				Usage: "<codec>:<value> ...",
				Help: `Encode values into the Fibre wire format.

Each argument names a codec and a value separated by a colon, for example
"int32:-5" or "string:hello". The encoded values are concatenated in order and
written to stdout. Byte strings are given in hexadecimal.

Codecs:
  ` + strings.Join(codec.Default.Names(), ", "),
				SetFlags: command.Flags(flax.MustBind, &packFlags),
				Run:      runPack,
			},
			{
				Name:  "serve",
				Usage: "[--config path] [--listen addr]",
				Help: `Serve the demonstration catalog.

The server accepts connections on the listen address and serves each with a
node that exposes the endpoints of the demonstration catalog, along with the
built-in catalog description endpoints. An address of the form host:port is
TCP, anything else is a Unix-domain socket.`,
				SetFlags: command.Flags(flax.MustBind, &serveFlags),
				Run:      runServe,
			},
			{
				Name:     "describe",
				Usage:    "<addr>",
				Help:     "Print the JSON descriptors of the endpoints served at addr.",
				SetFlags: command.Flags(flax.MustBind, &callFlags),
				Run:      runDescribe,
			},
			{
				Name:     "list",
				Usage:    "<addr>",
				Help:     "Print the complete signatures of the endpoints served at addr.",
				SetFlags: command.Flags(flax.MustBind, &callFlags),
				Run:      runList,
			},
			{
				Name:  "call",
				Usage: "<addr> <function> <argument>...",
				Help: `Call a function served at addr.

The signature of the function is fetched from the server's catalog listing,
and each argument is parsed according to the codec of its input slot. Byte
strings are given in hexadecimal. The outputs and return values of the call
are printed one per line.`,
				SetFlags: command.Flags(flax.MustBind, &callFlags),
				Run:      runCall,
			},
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

func runPack(env *command.Env) error {
	if len(env.Args) == 0 {
		return env.Usagef("Missing values to pack")
	}
	var cs []codec.Codec
	var vs []any
	for _, arg := range env.Args {
		name, text, ok := strings.Cut(arg, ":")
		if !ok {
			return fmt.Errorf("invalid argument %q (want codec:value)", arg)
		}
		c, ok := codec.Default.Lookup(name)
		if !ok {
			return fmt.Errorf("unknown codec %q", name)
		}
		v, err := parseValue(c, text)
		if err != nil {
			return err
		}
		cs = append(cs, c)
		vs = append(vs, v)
	}
	var buf bytes.Buffer
	if _, err := codec.NewEncoderChain(cs...).Encode(&buf, vs); err != nil {
		return err
	}
	if packFlags.Hex {
		fmt.Println(hex.EncodeToString(buf.Bytes()))
		return nil
	}
	_, err := os.Stdout.Write(buf.Bytes())
	return err
}

func runServe(env *command.Env) error {
	if len(env.Args) != 0 {
		return env.Usagef("Extra arguments: %q", env.Args)
	}
	cfg := config.Default()
	if serveFlags.Config != "" {
		var err error
		cfg, err = config.Load(serveFlags.Config)
		if err != nil {
			return err
		}
	}
	if serveFlags.Listen != "" {
		cfg.Listen = serveFlags.Listen
	}

	log, err := cfg.Log.NewLogger()
	if err != nil {
		return err
	}
	defer log.Sync()
	fibre.SetLogger(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	ntype, addr := fibre.SplitAddress(cfg.Listen)
	lst, err := net.Listen(ntype, addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if ntype == "unix" {
		defer os.Remove(addr)
	}
	log.Info("serving",
		zap.String("network", ntype),
		zap.String("address", lst.Addr().String()),
		zap.Strings("endpoints", demoCatalog.Names()),
	)

	err = peers.Loop(ctx, peers.NetAccepter(lst, cfg.MaxPayload), func() *fibre.Node {
		n := cfg.Configure(fibre.NewNode())
		if err := demoCatalog.Bind(n).Serve(); err != nil {
			panic(err) // the demo catalog is static
		}
		return n.OnExit(func(err error) {
			if err != nil {
				log.Warn("peer exited", zap.Error(err))
			} else {
				log.Debug("peer exited")
			}
		})
	})
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info("server stopped", zap.Error(err))
	return err
}

func runDescribe(env *command.Env) error {
	if len(env.Args) != 1 {
		return env.Usagef("Wrong number of arguments")
	}
	return withNode(env.Args[0], func(ctx context.Context, n *fibre.Node) error {
		desc, err := catalog.Describe(ctx, n)
		if err != nil {
			return err
		}
		fmt.Println(desc)
		return nil
	})
}

func runList(env *command.Env) error {
	if len(env.Args) != 1 {
		return env.Usagef("Wrong number of arguments")
	}
	return withNode(env.Args[0], func(ctx context.Context, n *fibre.Node) error {
		lst, err := catalog.Fetch(ctx, n)
		if err != nil {
			return err
		}
		for _, e := range lst {
			fmt.Println(formatEntry(e))
		}
		return nil
	})
}

func runCall(env *command.Env) error {
	if len(env.Args) < 2 {
		return env.Usagef("Missing address or function name")
	}
	addr, name, args := env.Args[0], env.Args[1], env.Args[2:]
	return withNode(addr, func(ctx context.Context, n *fibre.Node) error {
		lst, err := catalog.Fetch(ctx, n)
		if err != nil {
			return fmt.Errorf("fetch listing: %w", err)
		}
		e, ok := lst.Find(name)
		if !ok {
			return fmt.Errorf("function %q is not served at %s", name, addr)
		}
		sig, err := e.Signature(codec.Default)
		if err != nil {
			return err
		}
		vals, err := parseInputs(sig, args)
		if err != nil {
			return err
		}
		out, err := n.Invoke(ctx, sig, vals...)
		if err != nil {
			return err
		}
		names := resultNames(sig)
		for i, v := range out {
			fmt.Printf("%s = %s\n", names[i], formatValue(v))
		}
		return nil
	})
}

// withNode dials addr, starts a client node on the connection, and calls run
// with that node. The node is stopped when run returns.
func withNode(addr string, run func(context.Context, *fibre.Node) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	ntype, address := fibre.SplitAddress(addr)
	conn, err := new(net.Dialer).DialContext(ctx, ntype, address)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	n := fibre.NewNode().SetChunkSize(callFlags.ChunkSize)
	if callFlags.Trace {
		n.LogFrames(func(f fibre.FrameInfo) { fmt.Fprintln(os.Stderr, f) })
	}
	n.Start(channel.IO(conn, conn).WithLimit(callFlags.MaxFrame))
	defer n.Stop()
	return run(ctx, n)
}
