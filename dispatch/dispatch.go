// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package dispatch implements the receiver side of chainrpc: it resolves the
// links of a call chain against a class registry and explicit per-type method
// tables, and executes them.
//
// Each call target type has a [Type] listing its methods as closures:
//
//	var lobbyType = dispatch.NewType("Lobby").
//	   Method("join", dispatch.Method{Returns: chain.Value, Params: ..., Call: ...}).
//	   Method("server", dispatch.Method{Call: ...}.Yields(serverType))
//
// The handler package provides adapters that build a Method from an ordinary
// typed Go function. Targets are registered in a [registry.Registry] of
// [Target] values, and a [Dispatcher] executes chains against them.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/gamefleet/chainrpc/chain"
	"github.com/gamefleet/chainrpc/fault"
	"github.com/gamefleet/chainrpc/registry"
	"github.com/gamefleet/chainrpc/value"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("chainrpc.dispatch")

// Outcome is the result of a successfully executed chain.
type Outcome struct {
	Value value.Value
	Void  bool // the terminal method returned no value
}

// A Dispatcher executes call chains. It is safe for concurrent use by
// multiple goroutines; each chain is executed sequentially by the caller of
// Dispatch.
type Dispatcher struct {
	classes *registry.Registry[Target]
}

// New constructs a Dispatcher that resolves the first link of each chain in
// classes.
func New(classes *registry.Registry[Target]) *Dispatcher {
	return &Dispatcher{classes: classes}
}

// invocationKey is the context key for the link being executed.
type invocationKey struct{}

// ContextInvocation returns the chain link being executed by the method
// called with ctx, and reports whether there is one.
func ContextInvocation(ctx context.Context) (chain.Invocation, bool) {
	in, ok := ctx.Value(invocationKey{}).(chain.Invocation)
	return in, ok
}

// Dispatch executes c and returns the outcome of its terminal link.
// Errors have one of the concrete types of the fault package; a failure of
// the method itself, including a panic, is a *fault.InvocationFaultError.
// Execution stops at the first failing link.
func (d *Dispatcher) Dispatch(ctx context.Context, c chain.Chain) (Outcome, error) {
	if c.Len() == 0 {
		return Outcome{}, &fault.InvalidChainError{Reason: "empty chain"}
	}
	var cur Target
	last := c.Len() - 1
	for i, in := range c.All() {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		if i == 0 {
			key := value.Null()
			if len(in.Args) != 0 {
				key = in.Args[0]
			}
			t, err := d.classes.Resolve(in.Class, key)
			if err != nil {
				return Outcome{}, err
			} else if t.IsNil() {
				return Outcome{}, &fault.UnknownTargetError{ClassID: in.Class, Err: fmt.Errorf("resolved a nil target")}
			}
			cur = t
		}

		m := cur.Type.Lookup(in.Method, in.Static)
		if m == nil {
			return Outcome{}, &fault.NoSuchMethodError{Type: cur.Type.Name(), Method: in.Method, Static: in.Static}
		}
		if i < last && m.Returns != chain.Ref {
			return Outcome{}, &fault.InvalidChainError{
				Link:   i,
				Reason: fmt.Sprintf("%s.%s does not return a reference", cur.Type.Name(), in.Method),
			}
		}
		if err := checkArgs(m, in.Args); err != nil {
			return Outcome{}, err
		}

		res, err := invoke(context.WithValue(ctx, invocationKey{}, in), m, cur, in.Args)
		if err != nil {
			return Outcome{}, err
		}

		if i < last {
			if res.Target.IsNil() {
				return Outcome{}, &fault.InvalidChainError{
					Link:   i,
					Reason: fmt.Sprintf("%s.%s returned a nil reference", cur.Type.Name(), in.Method),
				}
			}
			cur = res.Target
			continue
		}
		return finish(i, cur.Type.Name(), m, res)
	}
	panic("unreachable")
}

// finish converts the result of the terminal method of a chain, at the given
// link of a target of the named type.
func finish(link int, typeName string, m *Method, res Result) (Outcome, error) {
	switch m.Returns {
	case chain.Void:
		return Outcome{Void: true}, nil
	case chain.Ref:
		// A terminal reference is returned as a value only when its receiver
		// can describe itself. A nil reference is null.
		if res.Target.IsNil() {
			return Outcome{Value: value.Null()}, nil
		}
		v, err := value.Of(res.Target.Recv)
		if err != nil {
			return Outcome{}, &fault.InvalidChainError{
				Link:   link,
				Reason: fmt.Sprintf("%s.%s yields a reference that cannot be encoded: %v", typeName, m.Name, err),
			}
		}
		return Outcome{Value: v}, nil
	default:
		return Outcome{Value: res.Value}, nil
	}
}

// checkArgs reports whether args fit the declared parameter kinds of m.
func checkArgs(m *Method, args []value.Value) error {
	if m.Params == nil {
		return nil
	} else if len(args) != len(m.Params) {
		return fault.Decodef("%s takes %d arguments, got %d", m.Name, len(m.Params), len(args))
	}
	for i, k := range m.Params {
		if !k.Accepts(args[i].Kind()) {
			return fault.Decodef("argument %d of %s: got %v, want %v", i, m.Name, args[i].Kind(), k)
		}
	}
	return nil
}

// invoke calls m on t, converting failures and panics into faults.
func invoke(ctx context.Context, m *Method, t Target, args []value.Value) (_ Result, err error) {
	defer func() {
		if x := recover(); x != nil {
			logger.Errorf("panic in %s.%s: %v\n%s", t.Type.Name(), m.Name, x, debug.Stack())
			err = &fault.InvocationFaultError{
				Method:  m.Name,
				Message: fmt.Sprintf("panic: %v", x),
				Err:     fmt.Errorf("panic: %v", x),
			}
		}
	}()
	res, err := m.Call(ctx, t.Recv, args)
	if err == nil {
		return res, nil
	}

	// Argument conversion failures reported by the method adapters are not
	// faults of the method.
	if ade, ok := err.(*fault.ArgumentDecodeError); ok {
		return Result{}, ade
	}
	logger.Debugf("%s.%s failed: %v", t.Type.Name(), m.Name, err)
	return Result{}, &fault.InvocationFaultError{Method: m.Name, Message: err.Error(), Err: err}
}
