// Copyright (C) 2023 Michael J. Fromberger. All Rights Reserved.

package catalog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gamefleet/chainrpc/catalog"
	"github.com/gamefleet/chainrpc/chain"
	"github.com/gamefleet/chainrpc/dispatch"
	"github.com/gamefleet/chainrpc/fault"
	"github.com/gamefleet/chainrpc/handler"
	"github.com/gamefleet/chainrpc/peers"
	"github.com/gamefleet/chainrpc/registry"
	"github.com/gamefleet/chainrpc/value"
	"github.com/google/go-cmp/cmp"
)

type region struct{ name string }
type host struct{ addr string }

var (
	regionType = dispatch.NewType("Region")
	hostType   = dispatch.NewType("Host")
)

func init() {
	regionType.
		Method("host", handler.Ref1(hostType, func(r *region, _ context.Context, addr string) (*host, error) {
			return &host{addr: addr}, nil
		})).
		Method("name", handler.Value0(func(r *region, _ context.Context) (string, error) { return r.name, nil }))
	hostType.
		Method("addr", handler.Value0(func(h *host, _ context.Context) (string, error) { return h.addr, nil })).
		Method("reboot", handler.Void0(func(*host, context.Context) error { return nil }))
}

func initCat() catalog.Catalog {
	return catalog.New().Class("Region", regionType).Add(hostType)
}

func checkEqual(t *testing.T, got, want catalog.Catalog) {
	t.Helper()
	if diff := cmp.Diff(got, want, cmp.AllowUnexported(catalog.Catalog{})); diff != "" {
		t.Fatalf("Catalog: (-got, +want):\n%s", diff)
	}
}

func TestLookup(t *testing.T) {
	cat := initCat().Set("Extra", "ping", catalog.Entry{Returns: chain.Value})

	tests := []struct {
		typeName, method string
		ret              chain.Returns
		result           string
		ok               bool
	}{
		{"Region", "host", chain.Ref, "Host", true},
		{"Region", "name", chain.Value, "", true},
		{"Host", "reboot", chain.Void, "", true},
		{"Extra", "ping", chain.Value, "", true},
		{"Host", "nonesuch", chain.Unknown, "", false},
		{"Nonesuch", "addr", chain.Unknown, "", false},
	}
	for _, tc := range tests {
		ret, result, ok := cat.Lookup(tc.typeName, tc.method)
		if ret != tc.ret || result != tc.result || ok != tc.ok {
			t.Errorf("Lookup(%q, %q): got (%v, %q, %v), want (%v, %q, %v)",
				tc.typeName, tc.method, ret, result, ok, tc.ret, tc.result, tc.ok)
		}
	}

	if diff := cmp.Diff([]string{"Extra", "Host", "Region"}, cat.Types()); diff != "" {
		t.Errorf("Types (-want, +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"addr", "reboot"}, cat.Methods("Host")); diff != "" {
		t.Errorf("Methods (-want, +got):\n%s", diff)
	}
	if got := cat.TypeOf("Region"); got != "Region" {
		t.Errorf("TypeOf: got %q, want Region", got)
	}
}

func TestCheck(t *testing.T) {
	cat := initCat()
	name := value.String("eu")

	// A chain that is consistent with the catalog.
	if _, err := chain.Call("Region", "host", name).Then("addr").Check(cat).Build(); err != nil {
		t.Errorf("Build: unexpected error: %v", err)
	}

	// A non-terminal link that does not yield a reference.
	_, err := chain.Call("Region", "name", name).Then("addr").Check(cat).Build()
	var ice *fault.InvalidChainError
	if !errors.As(err, &ice) {
		t.Errorf("Build: got %v, want InvalidChainError", err)
	} else if ice.Link != 0 {
		t.Errorf("Build: error at link %d, want 0", ice.Link)
	}

	// Methods the catalog does not know are not checked.
	if _, err := chain.Call("Region", "mystery", name).Then("addr").Check(cat).Build(); err != nil {
		t.Errorf("Build: unexpected error: %v", err)
	}
}

func TestEncoding(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		want := initCat()
		enc := want.Encode()
		t.Logf("Encoded catalog: %q", enc)
		var got catalog.Catalog
		if err := got.Decode(enc); err != nil {
			t.Fatalf("Decode catalog: unexpected error: %v", err)
		}
		checkEqual(t, got, want)
	})

	t.Run("Empty", func(t *testing.T) {
		var got catalog.Catalog
		if err := got.Decode(catalog.New().Encode()); err != nil {
			t.Fatalf("Decode empty catalog: %v", err)
		}
		checkEqual(t, got, catalog.New())
	})

	t.Run("Errors", func(t *testing.T) {
		enc := initCat().Encode()
		for _, bad := range [][]byte{
			nil,
			enc[:len(enc)-1],
			append(enc, 0),
			{0x00, 0x04, 0x04, 'T', 0x04, 0x04, 'm', 9, 0x00}, // return kind 9
		} {
			var got catalog.Catalog
			if err := got.Decode(bad); err == nil {
				t.Errorf("Decode %q: got %+v, want error", bad, got)
			}
		}
	})
}

func TestFetch(t *testing.T) {
	loc := peers.NewLocal()
	defer loc.Stop()

	want := initCat()
	if err := loc.ATargets.Register(catalog.ClassID, registry.Instance(want.Target())); err != nil {
		t.Fatalf("Register: %v", err)
	}
	loc.ATargets.Register("Region", registry.Instance(regionType.Bind(&region{name: "eu"})))

	got, err := catalog.Fetch(t.Context(), loc.B, catalog.ClassID)
	if err != nil {
		t.Fatalf("Fetch: unexpected error: %v", err)
	}
	checkEqual(t, got, want)

	// Use the fetched catalog to check a chain before sending it.
	c, err := chain.Call("Region", "host", value.String("10.0.0.7")).Then("addr").Check(got).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	rsp, err := loc.B.Call(t.Context(), c)
	if err != nil {
		t.Fatalf("Call: %v", err)
	} else if s, _ := rsp.Value.AsString(); s != "10.0.0.7" {
		t.Errorf("Call: got %v, want 10.0.0.7", rsp.Value)
	}

	if _, err := catalog.Fetch(t.Context(), loc.A, catalog.ClassID); err == nil {
		t.Error("Fetch from a peer with no catalog: got nil, want error")
	}
}
