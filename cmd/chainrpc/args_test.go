// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package main

import (
	"context"
	"testing"

	"github.com/fortytw2/leaktest"
	"github.com/gamefleet/chainrpc"
	"github.com/gamefleet/chainrpc/chain"
	"github.com/gamefleet/chainrpc/channel"
	"github.com/gamefleet/chainrpc/dispatch"
	"github.com/gamefleet/chainrpc/registry"
	"github.com/gamefleet/chainrpc/value"
	"github.com/google/go-cmp/cmp"
)

var valueComparer = cmp.Comparer(func(a, b value.Value) bool { return a.Equal(b) })

func TestParseValue(t *testing.T) {
	tests := []struct {
		input string
		want  value.Value
	}{
		{"null", value.Null()},
		{"true", value.Bool(true)},
		{"-12", value.Int(-12)},
		{"2.5", value.Float(2.5)},
		{"1e3", value.Float(1000)},
		{`"hi"`, value.String("hi")},
		{`[1, "a", [null]]`, value.List(value.Int(1), value.String("a"), value.List(value.Null()))},
		{"[]", value.List()},
	}
	for _, tc := range tests {
		got, err := parseValue(tc.input)
		if err != nil {
			t.Errorf("parseValue(%q): unexpected error: %v", tc.input, err)
		} else if !got.Equal(tc.want) {
			t.Errorf("parseValue(%q): got %v, want %v", tc.input, got, tc.want)
		}
	}

	for _, bad := range []string{"", "{}", "[1,", "1 2", "nope"} {
		if v, err := parseValue(bad); err == nil {
			t.Errorf("parseValue(%q): got %v, want error", bad, v)
		}
	}
}

func TestParseChain(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		got, err := parseChain([]string{`Fleet.node("eu-west")`, "server(27015, true)", "::count", "players"})
		if err != nil {
			t.Fatalf("parseChain: unexpected error: %v", err)
		}
		want := chain.Call("Fleet", "node", value.String("eu-west")).
			Then("server", value.Int(27015), value.Bool(true)).
			ThenStatic("count").
			Then("players").
			MustBuild()
		if diff := cmp.Diff(links(want), links(got), valueComparer); diff != "" {
			t.Errorf("parseChain (-want, +got):\n%s", diff)
		}
	})
	t.Run("Static", func(t *testing.T) {
		in, err := parseLink("Fleet::size()", true)
		if err != nil {
			t.Fatalf("parseLink: unexpected error: %v", err)
		}
		if in.Class != "Fleet" || in.Method != "size" || !in.Static || len(in.Args) != 0 {
			t.Errorf("parseLink: got %+v, want static Fleet.size", in)
		}
	})
	t.Run("Errors", func(t *testing.T) {
		for _, args := range [][]string{
			{},
			{"node"},
			{".node"},
			{"Fleet."},
			{"Fleet.node(1"},
			{"Fleet.node({})"},
			{"Fleet.node", "::"},
			{"Fleet.node", "server(,)"},
		} {
			if c, err := parseChain(args); err == nil {
				t.Errorf("parseChain(%q): got %v, want error", args, c)
			}
		}
	})
}

func links(c chain.Chain) []chain.Invocation {
	var out []chain.Invocation
	for _, in := range c.All() {
		out = append(out, in)
	}
	return out
}

func TestEchoType(t *testing.T) {
	defer leaktest.Check(t)()

	et := echoType()
	targets := registry.New[dispatch.Target]()
	if err := targets.Register("Echo", registry.Instance(et.Bind(echo{}))); err != nil {
		t.Fatalf("Register: %v", err)
	}

	a, b := channel.Direct()
	srv := chainrpc.NewPeer().WithTargets(targets).Start(a)
	cli := chainrpc.NewPeer().Start(b)
	defer func() {
		cli.Stop()
		srv.Stop()
	}()

	c, err := parseChain([]string{`Echo.self()`, `reverse("olleh")`})
	if err != nil {
		t.Fatalf("parseChain: %v", err)
	}
	rsp, err := cli.Call(context.Background(), c)
	if err != nil {
		t.Fatalf("Call %v: unexpected error: %v", c, err)
	}
	if got, _ := rsp.Value.AsString(); got != "hello" {
		t.Errorf("Call %v: got %v, want hello", c, rsp.Value)
	}

	c, err = parseChain([]string{`Echo.sleep(1)`})
	if err != nil {
		t.Fatalf("parseChain: %v", err)
	}
	if rsp, err := cli.Call(context.Background(), c); err != nil {
		t.Errorf("Call %v: unexpected error: %v", c, err)
	} else if !rsp.Void {
		t.Errorf("Call %v: got %v, want void", c, rsp.Value)
	}
}
