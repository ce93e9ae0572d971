// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

// Package chainrpc implements a remote procedure call framework for the
// processes of a game-server fleet.
//
// A caller describes work as a call chain: a sequence of method invocations
// in which the first link names a registered class, and each later link is
// invoked on the object reference returned by the link before it. The whole
// chain travels in one request, and the remote peer executes it link by link
// and returns the result of the last link. This lets a caller navigate from
// a fleet to a node to a server and ask a question of it in one round trip.
//
// # Peers
//
// The core type defined by this package is the [Peer]. Peers concurrently
// send and execute chains with another peer over a [Channel].
//
// To create a new, unstarted peer:
//
//	p := chainrpc.NewPeer()
//
// To start the service routine, call the Start method with a channel connected
// to another peer:
//
//	p.Start(ch)
//
// The peer runs until [Peer.Stop] is called, the channel is closed by the
// remote peer, or a protocol fatal error occurs. Call [Peer.Wait] to wait for
// the peer to exit and return its status:
//
//	if err := p.Wait(); err != nil {
//	   log.Fatalf("Peer failed: %v", err)
//	}
//
// # Channels
//
// The [Channel] interface defines the ability to send and receive packets.
// A Channel implementation must allow concurrent use by one sender and one
// receiver. The channel package provides some basic implementations of this
// interface.
//
// # Targets
//
// The objects that chains can reach are described by method tables from the
// dispatch package, and the entry points are registered by class ID:
//
//	serverType := dispatch.NewType("Server").
//	   Method("players", handler.Value0((*Server).Players))
//
//	chainrpc.RegisterTarget("Server", registry.Keyed(func(id string) (dispatch.Target, error) {
//	   return serverType.Bind(servers[id]), nil
//	}))
//
// The first argument of the first link is the key passed to the resolver.
// Use [Peer.WithTargets] to give a peer its own registry instead of the
// process-wide one.
//
// # Calls
//
// Build a chain with the chain package, and send it with [Peer.Call]:
//
//	c := chain.Call("Fleet", "node", value.String("eu-west-3")).
//	   Then("server", value.Int(27015)).
//	   Then("players").
//	   MustBuild()
//
//	rsp, err := p.Call(ctx, c)
//
// A call ends when the response arrives, when ctx ends, or when the deadline
// set by [Peer.Timeout] passes, whichever is first. Timeouts are local to the
// caller: the remote peer is not told, and a response that arrives late is
// discarded. Failures reported by the remote peer are reconstructed as the
// error types of the fault package and wrapped in a [*CallError].
//
// To send a chain without waiting for or receiving a result, use
// [Peer.Notify]. Lower-level control is available through [Peer.Send].
//
// A method can call back to the peer that sent its chain by obtaining the
// peer from its context with [ContextPeer]. The stream package uses this to
// deliver a stream of values from a single chain.
//
// # Custom Packet Handlers
//
// To handle packet types other than those defined by the protocol, use
// [Peer.HandlePacket]. Packet types 0 to 127 are reserved; the remaining
// types are free for use by surrounding modules. Use [Peer.SendPacket] to
// send packets of these types.
//
// # Metrics
//
// Peers maintain counters of packets and calls, exported with the expvar
// package. Use [Peer.Metrics] to obtain the map.
package chainrpc
