// Copyright (C) 2023 Michael J. Fromberger. All Rights Reserved.

// Package catalog defines an exchangeable description of the methods that a
// peer exposes, for checking call chains before they are sent.
//
// Method names are sent on the wire as they are, and the peer executing a
// chain checks every link. A caller that holds a Catalog for the remote peer
// can also check a chain before sending it, and learn of a link that cannot
// yield a reference without a round trip.
//
// # Usage
//
// Construct a catalog from the method tables of a peer:
//
//	cat := catalog.New().
//	  Class("Fleet", fleetType).
//	  Add(nodeType, serverType)
//
// Class records the type that serves a class ID, so that the first link of a
// chain can be checked. Add records types reached by later links. Entries can
// also be set directly:
//
//	cat.Set("Server", "players", catalog.Entry{Returns: chain.Value})
//
// To check a chain against a catalog, pass it to the chain builder:
//
//	c, err := chain.Call("Fleet", "node", name).Then("players").Check(cat).Build()
//
// A peer can serve its catalog to callers as an ordinary call target:
//
//	chainrpc.RegisterTarget(catalog.ClassID, registry.Instance(cat.Target()))
//
// and a caller can then fetch it:
//
//	cat, err := catalog.Fetch(ctx, peer, catalog.ClassID)
package catalog

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/gamefleet/chainrpc"
	"github.com/gamefleet/chainrpc/chain"
	"github.com/gamefleet/chainrpc/dispatch"
	"github.com/gamefleet/chainrpc/handler"
	"github.com/gamefleet/chainrpc/packet"
	"github.com/gamefleet/chainrpc/value"
)

// ClassID is the conventional class ID for serving a catalog.
const ClassID = "Catalog"

// An Entry describes one exposed method.
type Entry struct {
	Returns chain.Returns
	Result  string // for chain.Ref, the type name of the yielded object
}

// A Catalog is a mapping from type names to the methods they expose, and from
// class IDs to the types that serve them. A Catalog implements the
// chain.Schema interface.
type Catalog struct {
	classes map[string]string           // class ID → type name
	types   map[string]map[string]Entry // type name → method name → entry
}

// New creates a new empty catalog. It is safe to copy the resulting value, all
// copies share a reference to the same mappings.
func New() Catalog {
	return Catalog{classes: make(map[string]string), types: make(map[string]map[string]Entry)}
}

// Set maps the named method of typeName to e, and returns c to allow
// chaining. If the method was already mapped in c, the existing mapping is
// replaced.
//
// The mappings of a catalog are shared among all copies of it. It is not
// safe to call Set while c is used concurrently by other goroutines without
// external synchronization.
func (c Catalog) Set(typeName, method string, e Entry) Catalog {
	m, ok := c.types[typeName]
	if !ok {
		m = make(map[string]Entry)
		c.types[typeName] = m
	}
	m[method] = e
	return c
}

// Add adds the exposed methods of each of the given types to c, and returns c
// to allow chaining.
func (c Catalog) Add(types ...*dispatch.Type) Catalog {
	for _, t := range types {
		if _, ok := c.types[t.Name()]; !ok {
			c.types[t.Name()] = make(map[string]Entry)
		}
		for _, m := range t.Methods() {
			c.Set(t.Name(), m.Name, Entry{Returns: m.Returns, Result: m.Result})
		}
	}
	return c
}

// Class records that classID is served by targets of type t, adds the
// methods of t to c, and returns c to allow chaining.
func (c Catalog) Class(classID string, t *dispatch.Type) Catalog {
	c.classes[classID] = t.Name()
	return c.Add(t)
}

// Lookup reports the entry for the named method of typeName, which may also
// be a class ID recorded by Class. It satisfies chain.Schema.
func (c Catalog) Lookup(typeName, method string) (chain.Returns, string, bool) {
	m, ok := c.types[typeName]
	if !ok {
		m, ok = c.types[c.classes[typeName]]
	}
	if !ok {
		return chain.Unknown, "", false
	}
	e, ok := m[method]
	return e.Returns, e.Result, ok
}

// Types returns the type names known to c in lexicographic order.
func (c Catalog) Types() []string { return slices.Sorted(maps.Keys(c.types)) }

// Methods returns the method names of typeName known to c in lexicographic
// order.
func (c Catalog) Methods(typeName string) []string { return slices.Sorted(maps.Keys(c.types[typeName])) }

// TypeOf reports the type name recorded for classID, or "".
func (c Catalog) TypeOf(classID string) string { return c.classes[classID] }

// Encode encodes c in binary format.
//
// The wire format of the catalog is a count of classes followed by each class
// ID and its type name, then a count of types followed by each type. A type is
// its name, a count of methods, and for each method its name, a byte giving
// its return kind, and its result type name. Counts are encoded as Vint30 and
// strings as length-prefixed bytes. Classes, types, and methods appear in
// lexicographic order, so equal catalogs have equal encodings.
func (c Catalog) Encode() []byte {
	var b packet.Builder
	b.Vint30(uint32(len(c.classes)))
	for _, id := range slices.Sorted(maps.Keys(c.classes)) {
		b.VPutString(id)
		b.VPutString(c.classes[id])
	}
	b.Vint30(uint32(len(c.types)))
	for _, name := range c.Types() {
		b.VPutString(name)
		m := c.types[name]
		b.Vint30(uint32(len(m)))
		for _, method := range c.Methods(name) {
			b.VPutString(method)
			b.Put(byte(m[method].Returns))
			b.VPutString(m[method].Result)
		}
	}
	return b.Bytes()
}

// Decode decodes data as a Catalog payload, replacing the contents of c.
func (c *Catalog) Decode(data []byte) error {
	out := New()
	s := packet.NewScanner(data)
	nc, err := s.Vint30()
	if err != nil {
		return fmt.Errorf("class count: %w", err)
	}
	for i := range nc {
		id, err := packet.VGet[string](s)
		if err != nil {
			return fmt.Errorf("class %d ID: %w", i, err)
		}
		name, err := packet.VGet[string](s)
		if err != nil {
			return fmt.Errorf("class %q type: %w", id, err)
		}
		out.classes[id] = name
	}

	nt, err := s.Vint30()
	if err != nil {
		return fmt.Errorf("type count: %w", err)
	}
	for i := range nt {
		name, err := packet.VGet[string](s)
		if err != nil {
			return fmt.Errorf("type %d name: %w", i, err)
		}
		nm, err := s.Vint30()
		if err != nil {
			return fmt.Errorf("type %q method count: %w", name, err)
		}
		methods := make(map[string]Entry)
		for range nm {
			method, err := packet.VGet[string](s)
			if err != nil {
				return fmt.Errorf("type %q method name: %w", name, err)
			}
			ret, err := s.Byte()
			if err != nil {
				return fmt.Errorf("method %s.%s returns: %w", name, method, err)
			} else if chain.Returns(ret) > chain.Ref {
				return fmt.Errorf("method %s.%s: invalid return kind %d", name, method, ret)
			}
			result, err := packet.VGet[string](s)
			if err != nil {
				return fmt.Errorf("method %s.%s result: %w", name, method, err)
			}
			methods[method] = Entry{Returns: chain.Returns(ret), Result: result}
		}
		out.types[name] = methods
	}
	if s.Len() != 0 {
		return fmt.Errorf("extra data after catalog (%d bytes)", s.Len())
	}
	*c = out
	return nil
}

// Type returns a method table for serving catalogs. Its "describe" method
// reports the encoding of the catalog as a byte string.
func (Catalog) Type() *dispatch.Type {
	return dispatch.NewType("Catalog").
		Method("describe", handler.Value0(func(cat Catalog, _ context.Context) ([]byte, error) {
			return cat.Encode(), nil
		}))
}

// Target returns a call target that serves c.
func (c Catalog) Target() dispatch.Target { return c.Type().Bind(c) }

// Fetch fetches the catalog served by the remote peer of p under classID.
func Fetch(ctx context.Context, p *chainrpc.Peer, classID string) (Catalog, error) {
	rsp, err := p.Call(ctx, chain.Call(classID, "describe").MustBuild())
	if err != nil {
		return Catalog{}, err
	}
	data, err := value.As[[]byte](rsp.Value)
	if err != nil {
		return Catalog{}, fmt.Errorf("catalog response: %w", err)
	}
	var cat Catalog
	if err := cat.Decode(data); err != nil {
		return Catalog{}, err
	}
	return cat, nil
}
