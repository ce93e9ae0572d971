// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package registry_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/creachadair/mds/mtest"
	"github.com/creachadair/taskgroup"
	"github.com/gamefleet/chainrpc/fault"
	"github.com/gamefleet/chainrpc/registry"
	"github.com/gamefleet/chainrpc/value"
	"github.com/google/go-cmp/cmp"
)

func TestRegistry(t *testing.T) {
	r := registry.New[string]()

	if err := r.Register("Node", registry.Instance("the node")); err != nil {
		t.Fatalf("Register Node: unexpected error: %v", err)
	}
	servers := map[int]string{1: "alpha", 2: "bravo"}
	if err := r.Register("Server", registry.Keyed(func(id int) (string, error) {
		if s, ok := servers[id]; ok {
			return s, nil
		}
		return "", fmt.Errorf("no server %d", id)
	})); err != nil {
		t.Fatalf("Register Server: unexpected error: %v", err)
	}

	t.Run("Duplicate", func(t *testing.T) {
		err := r.Register("Node", registry.Instance("other"))
		var dup *fault.DuplicateClassIDError
		if !errors.As(err, &dup) || dup.ClassID != "Node" {
			t.Errorf("Register duplicate: got %v, want DuplicateClassIDError", err)
		}
		// The original entry is unchanged.
		if got, err := r.Resolve("Node", value.Null()); err != nil || got != "the node" {
			t.Errorf("Resolve Node: got (%q, %v), want the node", got, err)
		}
	})

	t.Run("Resolve", func(t *testing.T) {
		got, err := r.Resolve("Server", value.Int(2))
		if err != nil || got != "bravo" {
			t.Errorf("Resolve Server 2: got (%q, %v), want bravo", got, err)
		}
	})

	t.Run("ResolveErrors", func(t *testing.T) {
		tests := []struct {
			class string
			key   value.Value
		}{
			{"Nonesuch", value.Null()},
			{"Server", value.Int(3)},
			{"Server", value.String("1")},
		}
		for _, tc := range tests {
			_, err := r.Resolve(tc.class, tc.key)
			var ute *fault.UnknownTargetError
			if !errors.As(err, &ute) || ute.ClassID != tc.class {
				t.Errorf("Resolve(%q, %v): got %v, want UnknownTargetError", tc.class, tc.key, err)
			}
		}
	})

	t.Run("Listing", func(t *testing.T) {
		if diff := cmp.Diff([]string{"Node", "Server"}, r.ClassIDs()); diff != "" {
			t.Errorf("ClassIDs (-want, +got):\n%s", diff)
		}
		if n := r.Len(); n != 2 {
			t.Errorf("Len: got %d, want 2", n)
		}
	})

	t.Run("Unregister", func(t *testing.T) {
		r.Unregister("Node")
		r.Unregister("Node") // idempotent
		if r.Has("Node") {
			t.Error("Has Node after Unregister: got true")
		}
		if err := r.Register("Node", registry.Instance("again")); err != nil {
			t.Errorf("Register after Unregister: unexpected error: %v", err)
		}
	})

	mtest.MustPanic(t, func() { r.Register("Bad", nil) })
}

func TestConcurrent(t *testing.T) {
	var r registry.Registry[int]
	r.Register("Fixed", registry.Instance(1))

	g := taskgroup.New(nil)
	for i := range 50 {
		id := fmt.Sprintf("Class%d", i)
		g.Go(func() error {
			if err := r.Register(id, registry.Instance(i)); err != nil {
				return err
			}
			for range 20 {
				if v, err := r.Resolve("Fixed", value.Null()); err != nil || v != 1 {
					return fmt.Errorf("Resolve Fixed: got (%d, %v)", v, err)
				}
			}
			r.Unregister(id)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if n := r.Len(); n != 1 {
		t.Errorf("Len: got %d, want 1", n)
	}
}
