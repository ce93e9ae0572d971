// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

// Package peers provides support code for managing and testing peers.
package peers

import (
	"context"
	"errors"
	"net"

	"github.com/creachadair/taskgroup"
	"github.com/gamefleet/chainrpc"
	"github.com/gamefleet/chainrpc/channel"
	"github.com/gamefleet/chainrpc/dispatch"
	"github.com/gamefleet/chainrpc/registry"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("chainrpc.peers")

// Local is a pair of in-memory connected peers, suitable for testing.
//
// Each peer resolves the chains it receives in its own registry, so targets
// registered for a test do not leak into the process-wide table. Register
// targets on ATargets to make them callable from B, and vice versa.
type Local struct {
	A *chainrpc.Peer
	B *chainrpc.Peer

	ATargets *registry.Registry[dispatch.Target]
	BTargets *registry.Registry[dispatch.Target]
}

// Stop shuts down both the peers and blocks until both have exited.
func (p *Local) Stop() error {
	aerr := p.A.Stop()
	berr := p.B.Stop()
	if aerr != nil {
		return aerr
	}
	return berr
}

// NewLocal creates a pair of in-memory connected peers, that communicate via a
// direct channel without encoding.
func NewLocal() *Local {
	a2b, b2a := channel.Direct()
	loc := &Local{
		ATargets: registry.New[dispatch.Target](),
		BTargets: registry.New[dispatch.Target](),
	}
	loc.A = chainrpc.NewPeer().WithTargets(loc.ATargets).Start(a2b)
	loc.B = chainrpc.NewPeer().WithTargets(loc.BTargets).Start(b2a)
	return loc
}

// An Accepter accepts channels from remote peers.
type Accepter interface {
	Accept(context.Context) (chainrpc.Channel, error)
}

// Loop accepts connections from acc and starts a peer for each one in a
// goroutine. Each peer is created by newPeer and must not be started. Loop
// continues until acc closes or ctx ends.
//
// When ctx terminates, all running peers are stopped. When acc closes, the
// loop waits for running peers to exit before returning.
func Loop(ctx context.Context, acc Accepter, newPeer func() *chainrpc.Peer) error {
	g := taskgroup.New(nil)
	for {
		ch, err := acc.Accept(ctx)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				err = nil
			}
			logger.Debugf("accept loop exiting: %v", err)
			g.Wait()
			return err
		}

		g.Go(func() error {
			sctx, cancel := context.WithCancel(ctx)
			defer cancel()

			peer := newPeer().Start(ch)
			go func() { <-sctx.Done(); peer.Stop() }()
			if err := peer.Wait(); err != nil {
				logger.Warningf("peer exited: %v", err)
			}
			return nil
		})
	}
}

// NetAccepter adapts a net.Listener to the Accepter interface.
func NetAccepter(lst net.Listener) Accepter {
	return netAccepter{Listener: lst}
}

type netAccepter struct {
	net.Listener
}

func (n netAccepter) Accept(ctx context.Context) (chainrpc.Channel, error) {
	// A net.Listener does not obey a context, so simulate it by closing the
	// listener if ctx ends. The ok channel allows the context watcher to clean
	// up when we return before ctx ends.
	ok := make(chan struct{})
	defer close(ok)
	taskgroup.Go(func() error {
		select {
		case <-ctx.Done():
			n.Listener.Close()
		case <-ok:
			// release the waiter
		}
		return nil
	})

	conn, err := n.Listener.Accept()
	if err != nil {
		return nil, err
	}
	logger.Debugf("accepted connection")
	return channel.IO(conn, conn), nil
}
