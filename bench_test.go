// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package chainrpc_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/gamefleet/chainrpc"
	"github.com/gamefleet/chainrpc/chain"
	"github.com/gamefleet/chainrpc/channel"
	"github.com/gamefleet/chainrpc/dispatch"
	"github.com/gamefleet/chainrpc/peers"
	"github.com/gamefleet/chainrpc/registry"
	"github.com/gamefleet/chainrpc/value"
)

func BenchmarkCall(b *testing.B) {
	payload := value.String(strings.Repeat("fuzzy wuzzy was a bear\n", 4))
	deep := chain.Call("Fleet", "node", value.String("eu-west")).
		Then("server", value.Int(27015)).
		Then("self").
		Then("players").
		MustBuild()

	b.Run("Direct-echo", func(b *testing.B) {
		loc := newBenchLocal(b)
		runBench(b, loc.B, chain.Call("Echo", "echo", payload).MustBuild())
	})
	b.Run("Direct-depth4", func(b *testing.B) {
		loc := newBenchLocal(b)
		runBench(b, loc.B, deep)
	})

	b.Run("IO-echo", func(b *testing.B) {
		_, pb := pipePeers(b)
		runBench(b, pb, chain.Call("Echo", "echo", payload).MustBuild())
	})
	b.Run("IO-depth4", func(b *testing.B) {
		_, pb := pipePeers(b)
		runBench(b, pb, deep)
	})
}

func runBench(b *testing.B, peer *chainrpc.Peer, c chain.Chain) {
	b.Helper()
	ctx := context.Background()

	for b.Loop() {
		_, err := peer.Call(ctx, c)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func benchTargets() *registry.Registry[dispatch.Target] {
	r := registry.New[dispatch.Target]()
	r.Register("Fleet", registry.Instance(fleetType.Bind(newFleet())))
	r.Register("Echo", registry.Instance(echoType.Bind(echoer{})))
	return r
}

func newBenchLocal(tb testing.TB) *peers.Local {
	loc := peers.NewLocal()
	loc.A.WithTargets(benchTargets())
	tb.Cleanup(func() { loc.Stop() })
	return loc
}

func pipePeers(tb testing.TB) (pa, pb *chainrpc.Peer) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	pa = chainrpc.NewPeer().WithTargets(benchTargets()).Start(channel.IO(ar, aw))
	pb = chainrpc.NewPeer().Start(channel.IO(br, bw))
	tb.Cleanup(func() {
		if err := pa.Stop(); err != nil {
			tb.Errorf("A stop: %v", err)
		}
		if err := pb.Stop(); err != nil {
			tb.Errorf("B stop: %v", err)
		}
	})
	return
}
