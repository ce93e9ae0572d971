// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package peers_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"testing/synctest"
	"time"

	"github.com/creachadair/taskgroup"
	"github.com/fortytw2/leaktest"
	"github.com/gamefleet/chainrpc"
	"github.com/gamefleet/chainrpc/chain"
	"github.com/gamefleet/chainrpc/channel"
	"github.com/gamefleet/chainrpc/dispatch"
	"github.com/gamefleet/chainrpc/handler"
	"github.com/gamefleet/chainrpc/peers"
	"github.com/gamefleet/chainrpc/registry"
	"github.com/gamefleet/chainrpc/value"
)

func mustListen(t *testing.T) (_ net.Listener, addr string) {
	t.Helper()
	lst, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr = lst.Addr().String()
	t.Cleanup(func() { lst.Close() })
	t.Logf("Listening at %q", addr)
	return lst, addr
}

type fakeListener struct {
	net.Listener // stub for unused methods
	conns        chan net.Conn
	closed       chan struct{}
}

func (f fakeListener) push(c net.Conn) { f.conns <- c }

func (f fakeListener) Accept() (net.Conn, error) {
	select {
	case <-f.closed:
		return nil, net.ErrClosed
	case c := <-f.conns:
		return c, nil
	}
}

func (f fakeListener) Close() error {
	select {
	case <-f.closed:
		return net.ErrClosed
	default:
		close(f.closed)
		return nil
	}
}

func newFakeListener() fakeListener {
	return fakeListener{
		conns:  make(chan net.Conn),
		closed: make(chan struct{}),
	}
}

// fakeConn is a fake implementation of [net.Conn] that does not work but which
// satisfies the interface, for use in testing. Only the Close method can be
// called without panicking.
type fakeConn struct{ net.Conn }

func (fakeConn) Close() error { return nil }

func TestAccepter(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			lst := newFakeListener()
			acc := peers.NetAccepter(lst)

			time.AfterFunc(1*time.Second, func() { lst.push(fakeConn{}) })
			c, err := acc.Accept(t.Context())
			if err != nil {
				t.Fatalf("Accept: unexpected error: %v", err)
			}
			if _, ok := c.(channel.IOChannel); !ok {
				t.Errorf("Accept: got %[1]T %[1]v, want %T", c, channel.IOChannel{})
			}

			// The listener should not be closed.
			if err := lst.Close(); err != nil {
				t.Errorf("Close listener: unexpected error: %v", err)
			}
		})
	})

	t.Run("Cancel", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			lst := newFakeListener()
			acc := peers.NetAccepter(lst)
			ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
			defer cancel()

			ch, err := acc.Accept(ctx)
			if err == nil {
				t.Errorf("Accept: got %v, want error", ch)
			}

			// The listener should already be closed, so this should report that error.
			if err := lst.Close(); !errors.Is(err, net.ErrClosed) {
				t.Errorf("Close listener: got %v, want %v", err, net.ErrClosed)
			}
		})
	})
}

type echoer struct{}

func (echoer) echo(_ context.Context, s string) (string, error) {
	time.Sleep(7 * time.Millisecond)
	return s, nil
}

var echoType = dispatch.NewType("Echo").Method("echo", handler.Value1(echoer.echo))

func TestLocal(t *testing.T) {
	defer leaktest.Check(t)()

	loc := peers.NewLocal()
	defer loc.Stop()
	if err := loc.ATargets.Register("Echo", registry.Instance(echoType.Bind(echoer{}))); err != nil {
		t.Fatalf("Register: %v", err)
	}

	c := chain.Call("Echo", "echo", value.String("ping")).MustBuild()
	rsp, err := loc.B.Call(t.Context(), c)
	if err != nil {
		t.Fatalf("Call from B: %v", err)
	}
	if got, _ := rsp.Value.AsString(); got != "ping" {
		t.Errorf("Call from B: got %v, want ping", rsp.Value)
	}

	// B has no targets of its own, and the registries are not shared.
	if rsp, err := loc.A.Call(t.Context(), c); err == nil {
		t.Errorf("Call from A: got %v, want error", rsp)
	}
	if chainrpc.Targets().Has("Echo") {
		t.Error("Local targets leaked into the process-wide registry")
	}
}

func TestLoop(t *testing.T) {
	defer leaktest.Check(t)()

	lst, addr := mustListen(t)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	targets := registry.New[dispatch.Target]()
	if err := targets.Register("Echo", registry.Instance(echoType.Bind(echoer{}))); err != nil {
		t.Fatalf("Register: %v", err)
	}
	newPeer := func() *chainrpc.Peer { return chainrpc.NewPeer().WithTargets(targets) }
	loop := taskgroup.Go(func() error {
		return peers.Loop(ctx, peers.NetAccepter(lst), newPeer)
	})
	t.Log("Started peer loop...")

	const numClients = 5
	const numCalls = 5
	t.Logf("Clients: %d, calls per client: %d", numClients, numCalls)

	g := taskgroup.New(func(err error) {
		cancel()
		t.Errorf("Task error: %v", err)
	})
	for i := range numClients {
		g.Go(func() error {
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				return err
			}
			defer conn.Close()
			peer := chainrpc.NewPeer().Start(channel.IO(conn, conn))
			for j := range numCalls {
				arg := value.Int(int64(i*numCalls + j))
				c := chain.Call("Echo", "echo", value.String(arg.String())).MustBuild()
				rsp, err := peer.Call(t.Context(), c)
				if err != nil {
					t.Errorf("Call %d: %v", j+1, err)
				} else if got, _ := rsp.Value.AsString(); got != arg.String() {
					t.Errorf("Call %d: got %v, want %q", j+1, rsp.Value, arg.String())
				}
			}
			return peer.Stop()
		})
	}
	t.Logf("Clients finished, err=%v", g.Wait())
	t.Logf("Closed listener, err=%v", lst.Close())
	t.Logf("Loop exited, err=%v", loop.Wait())
}
