// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Program chainrpc is a command-line utility for encoding values and calling
// chainrpc peers.
package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/gamefleet/chainrpc"
	"github.com/gamefleet/chainrpc/catalog"
	"github.com/gamefleet/chainrpc/channel"
	"github.com/gamefleet/chainrpc/peers"
	"github.com/gamefleet/chainrpc/registry"
	"github.com/gamefleet/chainrpc/value"
	"github.com/juju/loggo/v2"
	"golang.org/x/time/rate"
)

var globalFlags struct {
	Log string `flag:"log,Logger levels, e.g. chainrpc=DEBUG"`
}

var codecFlags struct {
	Hex bool `flag:"hex,Read and write encoded values as hexadecimal"`
}

var callFlags struct {
	Timeout time.Duration `flag:"timeout,default=5s,Wait this long for a reply"`
	Notify  bool          `flag:"notify,Send the chain without waiting for a reply"`
}

var serveFlags struct {
	Listen string  `flag:"listen,default=localhost:7070,Service address"`
	Rate   float64 `flag:"rate,Maximum inbound calls per second per peer (0 is unlimited)"`
	Burst  int     `flag:"burst,default=1,Inbound call burst size"`
}

func main() {
	root := &command.C{
		Name:     filepath.Base(os.Args[0]),
		Help:     "Utilities for chainrpc values and peers.",
		SetFlags: command.Flags(flax.MustBind, &globalFlags),
		Commands: []*command.C{
			{
				Name:  "encode",
				Usage: "<json-value>",
				Help: `Encode a value in binary format.

The value is given as JSON text. Integral numbers are encoded as ints and
other numbers as floats. JSON objects are not supported.
The encoding is written to stdout, as hexadecimal if --hex is set.`,
				SetFlags: command.Flags(flax.MustBind, &codecFlags),
				Run:      runEncode,
			},
			{
				Name:  "decode",
				Usage: "[hex-value]",
				Help: `Decode a value and print it.

If an argument is given, it is decoded as hexadecimal. Otherwise the encoding
is read from stdin, as hexadecimal if --hex is set.`,
				SetFlags: command.Flags(flax.MustBind, &codecFlags),
				Run:      runDecode,
			},
			{
				Name:  "call",
				Usage: "<address> <link> [<link>...]",
				Help: `Call a chain on a remote peer and print its result.

The address is host:port or a Unix socket path. The first link has the form
Class.method(args) or Class::method(args) for a static method. Each later link
has the form method(args), or ::method(args) for a static method. The args are
a comma-separated list of JSON values, and the parentheses may be omitted if
there are none. For example:

  chainrpc call localhost:7070 'Echo.echo("hi")'
  chainrpc call localhost:7070 'Echo.self()' 'reverse("olleh")'`,
				SetFlags: command.Flags(flax.MustBind, &callFlags),
				Run:      runCall,
			},
			{
				Name:  "serve",
				Help: `Serve a demonstration Echo target until interrupted.

The Echo class exposes echo(v), reverse(s), sleep(ms), and self(). The
service catalog is available under the Catalog class.`,
				SetFlags: command.Flags(flax.MustBind, &serveFlags),
				Run:      runServe,
			},
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

func configureLogging() error {
	if globalFlags.Log == "" {
		return nil
	}
	return loggo.ConfigureLoggers(globalFlags.Log)
}

func runEncode(env *command.Env) error {
	if len(env.Args) != 1 {
		return env.Usagef("Expected exactly one value")
	}
	v, err := parseValue(env.Args[0])
	if err != nil {
		return err
	}
	data, err := value.Encode(v)
	if err != nil {
		return err
	}
	if codecFlags.Hex {
		fmt.Println(hex.EncodeToString(data))
		return nil
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runDecode(env *command.Env) error {
	var data []byte
	switch len(env.Args) {
	case 0:
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		if codecFlags.Hex {
			raw, err = hex.DecodeString(strings.TrimSpace(string(raw)))
			if err != nil {
				return fmt.Errorf("invalid hex input: %w", err)
			}
		}
		data = raw
	case 1:
		raw, err := hex.DecodeString(env.Args[0])
		if err != nil {
			return fmt.Errorf("invalid hex argument: %w", err)
		}
		data = raw
	default:
		return env.Usagef("Expected at most one argument")
	}
	v, err := value.Decode(data)
	if err != nil {
		return err
	}
	fmt.Println(v)
	return nil
}

func runCall(env *command.Env) error {
	if len(env.Args) < 2 {
		return env.Usagef("Missing address or chain")
	} else if err := configureLogging(); err != nil {
		return err
	}
	c, err := parseChain(env.Args[1:])
	if err != nil {
		return err
	}

	conn, err := net.Dial(chainrpc.SplitAddress(env.Args[0]))
	if err != nil {
		return err
	}
	p := chainrpc.NewPeer().Timeout(callFlags.Timeout).Start(channel.IO(conn, conn))
	defer p.Stop()

	if callFlags.Notify {
		return p.Notify(c)
	}
	rsp, err := p.Call(env.Context(), c)
	if err != nil {
		return err
	}
	if rsp.Void {
		fmt.Println("(void)")
	} else {
		fmt.Println(rsp.Value)
	}
	return nil
}

func runServe(env *command.Env) error {
	if len(env.Args) != 0 {
		return env.Usagef("Extra arguments: %q", env.Args)
	} else if err := configureLogging(); err != nil {
		return err
	}
	et := echoType()
	cat := catalog.New().Class("Echo", et)
	if err := errors.Join(
		chainrpc.RegisterTarget("Echo", registry.Instance(et.Bind(echo{}))),
		chainrpc.RegisterTarget(catalog.ClassID, registry.Instance(cat.Target())),
	); err != nil {
		return err
	}

	lst, err := net.Listen(chainrpc.SplitAddress(serveFlags.Listen))
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Serving at %s\n", lst.Addr())

	ctx, cancel := signal.NotifyContext(env.Context(), os.Interrupt)
	defer cancel()
	return peers.Loop(ctx, peers.NetAccepter(lst), func() *chainrpc.Peer {
		p := chainrpc.NewPeer()
		if serveFlags.Rate > 0 {
			p.Throttle(rate.Limit(serveFlags.Rate), max(serveFlags.Burst, 1))
		}
		return p
	})
}
