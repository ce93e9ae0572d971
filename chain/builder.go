// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package chain

import (
	"fmt"

	"github.com/gamefleet/chainrpc/fault"
	"github.com/gamefleet/chainrpc/value"
)

// A Schema reports what is known about the methods of a type.
// A [catalog.Catalog] implements this interface.
type Schema interface {
	// Lookup reports the return kind of the named method of typeName, and the
	// type name of the object it yields if it returns a reference. It reports
	// ok == false if the method is not known.
	Lookup(typeName, method string) (ret Returns, result string, ok bool)
}

// A Builder assembles a chain one link at a time. Methods of a Builder may be
// chained; construction errors are reported by Build.
type Builder struct {
	links  []Invocation
	schema Schema
}

// Call begins a chain whose first link calls method on the target of class,
// resolved with the first argument as its key.
func Call(class, method string, args ...value.Value) *Builder {
	return &Builder{links: []Invocation{{Class: class, Method: method, Args: args}}}
}

// CallStatic begins a chain whose first link calls a static method of class.
func CallStatic(class, method string, args ...value.Value) *Builder {
	return &Builder{links: []Invocation{{Class: class, Method: method, Static: true, Args: args}}}
}

// Then appends a link calling method on the result of the previous link.
func (b *Builder) Then(method string, args ...value.Value) *Builder {
	b.links = append(b.links, Invocation{Method: method, Args: args})
	return b
}

// ThenStatic appends a link calling a static method of the type of the
// previous result.
func (b *Builder) ThenStatic(method string, args ...value.Value) *Builder {
	b.links = append(b.links, Invocation{Method: method, Static: true, Args: args})
	return b
}

// Check arranges for Build to check the chain against s. The first link's
// class is looked up as a type name. Methods s does not know are not checked,
// nor is anything after them.
func (b *Builder) Check(s Schema) *Builder { b.schema = s; return b }

// Build returns the completed chain.
func (b *Builder) Build() (Chain, error) {
	c, err := New(b.links...)
	if err != nil {
		return Chain{}, err
	}
	if b.schema != nil {
		if err := check(c, b.schema); err != nil {
			return Chain{}, err
		}
	}
	return c, nil
}

// MustBuild returns the completed chain, or panics if it is invalid.
func (b *Builder) MustBuild() Chain {
	c, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("chain.Build: %v", err))
	}
	return c
}

func check(c Chain, s Schema) error {
	typeName := c.Class()
	for i, in := range c.links {
		ret, result, ok := s.Lookup(typeName, in.Method)
		if !ok {
			return nil
		}
		if i+1 < len(c.links) && ret != Ref && ret != Unknown {
			return &fault.InvalidChainError{
				Link:   i,
				Reason: fmt.Sprintf("%s.%s returns %v, not a reference", typeName, in.Method, ret),
			}
		}
		if result == "" {
			return nil
		}
		typeName = result
	}
	return nil
}
