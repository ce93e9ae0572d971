// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package chain defines call chains, the unit of work sent to a peer.
//
// A chain is an ordered, non-empty list of method invocations. The first link
// names a registered class and is applied to the target its registry entry
// resolves; each subsequent link is applied to the object returned by the
// link before it. The value of the last link is the result of the chain.
//
//	c, err := chain.Call("Node", "server", value.String("lobby-3")).
//	   Then("players").
//	   Build()
package chain

import (
	"fmt"
	"iter"
	"strings"

	mvalue "github.com/creachadair/mds/value"
	"github.com/gamefleet/chainrpc/fault"
	"github.com/gamefleet/chainrpc/value"
)

// MaxLinks is the maximum number of links in a chain.
const MaxLinks = 256

// Returns describes what a method returns.
type Returns byte

const (
	Unknown Returns = iota // not known to the caller
	Value                  // a value
	Void                   // nothing
	Ref                    // an object reference usable by a following link
)

func (r Returns) String() string {
	switch r {
	case Value:
		return "value"
	case Void:
		return "void"
	case Ref:
		return "ref"
	default:
		return "unknown"
	}
}

// An Invocation is a single link of a chain.
type Invocation struct {
	Class  string // set on the first link only
	Method string
	Static bool
	Args   []value.Value
}

func (in Invocation) String() string {
	var sb strings.Builder
	sb.WriteString(in.Class)
	sb.WriteString(mvalue.Cond(in.Static, "::", "."))
	sb.WriteString(in.Method)
	sb.WriteByte('(')
	for i, arg := range in.Args {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(arg.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

func (in Invocation) clone() Invocation {
	in.Args = append([]value.Value(nil), in.Args...)
	return in
}

// A Chain is an immutable, non-empty sequence of invocations. The zero Chain
// is not valid; use [New] or [Call] to construct one.
type Chain struct {
	links []Invocation
}

// New constructs a chain from the given links. It reports a
// *fault.InvalidChainError if there are no links, the first link has no
// class, a later link has a class, or a link has no method name.
func New(links ...Invocation) (Chain, error) {
	if len(links) == 0 {
		return Chain{}, &fault.InvalidChainError{Reason: "empty chain"}
	} else if len(links) > MaxLinks {
		return Chain{}, &fault.InvalidChainError{Link: MaxLinks, Reason: fmt.Sprintf("chain has %d links, limit is %d", len(links), MaxLinks)}
	}
	out := make([]Invocation, len(links))
	for i, in := range links {
		if i == 0 && in.Class == "" {
			return Chain{}, &fault.InvalidChainError{Reason: "first link has no class"}
		} else if i > 0 && in.Class != "" {
			return Chain{}, &fault.InvalidChainError{Link: i, Reason: fmt.Sprintf("class %q on a chained link", in.Class)}
		} else if in.Method == "" {
			return Chain{}, &fault.InvalidChainError{Link: i, Reason: "empty method name"}
		}
		out[i] = in.clone()
	}
	return Chain{links: out}, nil
}

// Len reports the number of links in c.
func (c Chain) Len() int { return len(c.links) }

// Class reports the class ID of the first link of c.
func (c Chain) Class() string {
	if len(c.links) == 0 {
		return ""
	}
	return c.links[0].Class
}

// Link returns a copy of the ith link of c. It panics if i is out of range.
func (c Chain) Link(i int) Invocation { return c.links[i].clone() }

// All iterates over copies of the links of c in order.
func (c Chain) All() iter.Seq2[int, Invocation] {
	return func(yield func(int, Invocation) bool) {
		for i, in := range c.links {
			if !yield(i, in.clone()) {
				return
			}
		}
	}
}

func (c Chain) String() string {
	ss := make([]string, len(c.links))
	for i, in := range c.links {
		ss[i] = in.String()
	}
	return strings.Join(ss, "")
}
