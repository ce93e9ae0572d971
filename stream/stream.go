// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package stream provides helpers for implementing streaming methods, where a
// single chain yields a stream of values.
//
// The caller registers a temporary sink target under a random class ID (the
// capability) on its own peer, and passes the capability to the terminal
// method as an extra final argument. The method delivers each value by
// calling the sink's push method back through its peer, and the chain
// completes when the stream ends.
package stream

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"iter"
	"strings"

	"github.com/gamefleet/chainrpc"
	"github.com/gamefleet/chainrpc/chain"
	"github.com/gamefleet/chainrpc/dispatch"
	"github.com/gamefleet/chainrpc/fault"
	"github.com/gamefleet/chainrpc/handler"
	"github.com/gamefleet/chainrpc/registry"
	"github.com/gamefleet/chainrpc/value"
)

// A 24-byte random value acts as a capability when registered as a class ID.
// The value is not brute-forceable in reasonable time, and has negligible
// probability of collision.
const capabilityLen = 24

// capabilityPrefix marks the class IDs of stream sinks.
const capabilityPrefix = "stream:"

func mkCapability() string {
	var buf [capabilityLen]byte
	rand.Read(buf[:])
	return capabilityPrefix + base64.RawURLEncoding.EncodeToString(buf[:])
}

// sink receives the values pushed by the remote method for one stream.
type sink struct {
	ctx  context.Context // the caller's context
	vals chan<- value.Value
}

func (s *sink) push(callbackCtx context.Context, v value.Value) error {
	select {
	case s.vals <- v:
		return nil
	case <-s.ctx.Done():
		// The caller has stopped listening. This also turns away a method
		// that kept the capability after its stream ended.
		return s.ctx.Err()
	case <-callbackCtx.Done():
		return callbackCtx.Err()
	}
}

var sinkType = dispatch.NewType("StreamSink").
	Method("push", handler.Void1((*sink).push))

// Call sends c to the remote peer of p and yields the stream of values
// produced by its terminal method, which must be implemented with [Method].
// The stream ends at the remote method's discretion, or when ctx ends.
//
// The returned iterator yields zero or more (v, nil) pairs. If the call ends
// unsuccessfully, the iterator ends the stream with a final (null, err).
func Call(ctx context.Context, p *chainrpc.Peer, c chain.Chain) iter.Seq2[value.Value, error] {
	return func(yield func(value.Value, error) bool) {
		capability := mkCapability()
		sc, err := withCapability(c, capability)
		if err != nil {
			yield(value.Null(), err)
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		// The remote method pushes values by calling the sink, which runs in
		// a handler task of p. Hand them over to the iterator on a channel.
		vals := make(chan value.Value)
		targets := p.Targets()
		if err := targets.Register(capability, registry.Instance(sinkType.Bind(&sink{ctx: ctx, vals: vals}))); err != nil {
			yield(value.Null(), err)
			return
		}

		errc := make(chan error, 1)
		go func() {
			defer close(errc)
			_, err := p.Call(ctx, sc)

			// Unregister here rather than in the iterator, so the remote
			// method does not see an unknown target while the iterator shuts
			// down.
			targets.Unregister(capability)
			if ctx.Err() != nil {
				// Report a local cancellation as such, whether the call or a
				// refused push noticed it first.
				errc <- ctx.Err()
			} else {
				errc <- err
			}
		}()

		for {
			select {
			case v := <-vals:
				if !yield(v, nil) {
					return
				}
			case err := <-errc:
				if err != nil {
					yield(value.Null(), err)
				}
				return
			case <-ctx.Done():
				yield(value.Null(), ctx.Err())
				return
			}
		}
	}
}

// withCapability returns a copy of c with capability appended to the
// arguments of its terminal link.
func withCapability(c chain.Chain, capability string) (chain.Chain, error) {
	links := make([]chain.Invocation, 0, c.Len())
	for _, in := range c.All() {
		links = append(links, in)
	}
	if len(links) == 0 {
		return chain.Chain{}, &fault.InvalidChainError{Reason: "empty chain"}
	}
	last := &links[len(links)-1]
	last.Args = append(last.Args, value.String(capability))
	return chain.New(links...)
}

// A Func is a streaming method with receiver type R. It receives the
// arguments of its link, and yields a stream of values. The iterator should
// yield a non-nil error only as its final element.
type Func[R any] func(R, context.Context, []value.Value) iter.Seq2[value.Value, error]

// Method adapts f into a void method that must be invoked with [Call]. The
// method accepts any arguments, and reports an argument decoding error if the
// caller did not supply a capability.
func Method[R any](f Func[R]) dispatch.Method {
	return dispatch.Method{
		Returns: chain.Void,
		Call: func(ctx context.Context, recv any, args []value.Value) (dispatch.Result, error) {
			capability, ok := lastCapability(args)
			if !ok {
				return dispatch.Result{}, fault.Decodef("missing stream capability")
			}
			var r R
			if recv != nil {
				r, ok = recv.(R)
				if !ok {
					return dispatch.Result{}, fault.Decodef("receiver has type %T, want %T", recv, r)
				}
			}

			peer := chainrpc.ContextPeer(ctx)
			if peer == nil {
				return dispatch.Result{}, fault.Decodef("stream method called without a peer")
			}
			for v, err := range f(r, ctx, args[:len(args)-1]) {
				if err != nil {
					return dispatch.Result{}, err
				}
				// The iterator may not obey ctx itself.
				if err := ctx.Err(); err != nil {
					return dispatch.Result{}, err
				}
				if _, err := peer.Call(ctx, chain.Call(capability, "push", v).MustBuild()); err != nil {
					return dispatch.Result{}, err
				}
			}

			// An iterator that stopped early on cancellation without yielding
			// an error still ends the stream unsuccessfully.
			return dispatch.Result{}, ctx.Err()
		},
	}
}

func lastCapability(args []value.Value) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	s, ok := args[len(args)-1].AsString()
	if !ok || !strings.HasPrefix(s, capabilityPrefix) {
		return "", false
	}
	return s, true
}
