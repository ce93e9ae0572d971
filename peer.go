// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package chainrpc

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/creachadair/taskgroup"
	"github.com/gamefleet/chainrpc/chain"
	"github.com/gamefleet/chainrpc/dispatch"
	"github.com/gamefleet/chainrpc/fault"
	"github.com/gamefleet/chainrpc/pending"
	"github.com/gamefleet/chainrpc/registry"
	"github.com/gamefleet/chainrpc/value"
	"github.com/google/uuid"
	"github.com/juju/loggo/v2"
	"golang.org/x/time/rate"
)

var logger = loggo.GetLogger("chainrpc.peer")

// A Channel is a reliable ordered stream of packets shared by two peers.
//
// The methods of an implementation must be safe for concurrent use by one
// sender and one receiver.
type Channel interface {
	// Send the packet in binary format to the receiver.
	Send(*Packet) error

	// Receive the next available packet from the channel.
	Recv() (*Packet, error)

	// Close the channel, causing any pending send or receive operations to
	// terminate and report an error. After a channel is closed, all further
	// operations on it must report an error.
	Close() error
}

// A PacketHandler processes a packet from the remote peer. A packet handler
// can obtain the peer from its context argument using the ContextPeer helper.
// Any error reported by a packet handler is protocol fatal.
type PacketHandler func(context.Context, *Packet) error

// A PacketLogger logs a packet exchanged with the remote peer.
type PacketLogger func(pkt PacketInfo)

// A PacketInfo combines a packet and a flag indicating whether the packet was
// sent or received.
type PacketInfo struct {
	*Packet      // the packet being logged
	Sent    bool // whether the packet was sent (true) or received (false)
}

func (p PacketInfo) dir() string {
	if p.Sent {
		return "send"
	}
	return "recv"
}

func (p PacketInfo) String() string {
	return fmt.Sprintf("%v %v", p.dir(), p.Packet)
}

// Mode selects whether a call waits for a response.
type Mode int

const (
	// Awaited calls register a pending call and receive a response.
	Awaited Mode = iota

	// FireAndForget calls are sent without a pending call, and the remote
	// peer does not reply.
	FireAndForget
)

func (m Mode) String() string {
	if m == FireAndForget {
		return "fire-and-forget"
	}
	return "awaited"
}

// errNotRunning is reported for calls on a peer that has not been started.
var errNotRunning = errors.New("peer is not running")

// A Peer implements a chainrpc peer. A zero-valued Peer is ready for use, but
// must not be copied after any method has been called.
//
// Call Start with a channel to start the service routine for the peer. Once
// started, a peer runs until Stop is called, the channel closes, or a protocol
// fatal error occurs. Use Wait to wait for the peer to exit and report its
// status.
//
// A peer executes the chains sent by the remote peer against its targets,
// which default to the process-wide table (see RegisterTarget). Use Call,
// Notify, or Send to execute chains on the remote peer. These methods are safe
// for concurrent use by multiple goroutines.
//
// Calling Stop terminates all chains executing on behalf of the remote peer
// and fails all pending calls.
type Peer struct {
	in  interface{ Recv() (*Packet, error) }
	out struct {
		// Must hold the lock to send to or set ch.
		sync.Mutex
		ch Channel
	}
	tasks *taskgroup.Group

	μ sync.Mutex

	err     error                               // protocol fatal error
	calls   *pending.Tracker[*Response]         // outbound calls pending responses
	icall   map[uuid.UUID]func()                // requestID → cancel func
	pmux    map[PacketType]PacketHandler        // packetType → packet handler
	plog    PacketLogger                        // what it says on the tin
	base    func() context.Context              // return a new base context
	targets *registry.Registry[dispatch.Target] // nil means Targets()
	codec   *value.Codec                        // nil means value.Default
	timeout time.Duration                       // default call deadline, 0 for none
	limit   *rate.Limiter                       // inbound throttle, or nil

	onExit func(error)
}

// NewPeer constructs a new unstarted peer.
func NewPeer() *Peer { return new(Peer) }

// Start starts the peer running on the given channel. The peer runs until the
// channel closes or a protocol fatal error occurs. Start does not block; call
// Wait to wait for the peer to exit and report its status.
func (p *Peer) Start(ch Channel) *Peer {
	p.μ.Lock()
	defer p.μ.Unlock()
	if p.in != nil {
		panic("peer is already started")
	}

	g := taskgroup.New(nil)
	p.in = ch
	p.tasks = g
	p.out.Lock()
	p.out.ch = ch
	p.out.Unlock()
	p.err = nil
	p.calls = new(pending.Tracker[*Response])
	p.icall = make(map[uuid.UUID]func())
	if p.base == nil {
		p.base = context.Background
	}

	g.Go(func() error {
		for {
			pkt, err := ch.Recv()
			if err != nil {
				p.fail(err)
				return nil
			}
			rootMetrics.packetRecv.Add(1)
			if err := p.dispatchPacket(pkt); err != nil {
				p.fail(err)
				return nil
			}
		}
	})

	return p
}

// Metrics returns a metrics map for the peer. It is safe for the caller to add
// additional metrics to the map while the peer is active.
func (p *Peer) Metrics() *expvar.Map { return rootMetrics.emap }

// Stop closes the channel and terminates the peer. It blocks until the peer
// has exited and returns its status. After Stop completes it is safe to
// restart the peer with a new channel.
func (p *Peer) Stop() error { p.closeOut(); return p.Wait() }

func treatErrorAsSuccess(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

// waitTasks blocks until the service routines have finished, and reports
// whether the peer was running.
func (p *Peer) waitTasks() bool {
	p.μ.Lock()
	t := p.tasks
	p.μ.Unlock()
	if t == nil {
		return false
	}
	t.Wait()
	return true
}

// Wait blocks until p terminates and reports the error that cause it to stop.
// After Wait completes it is safe to restart the peer with a new channel.
//
// If p is not running, or has stopped because of a closed channel, Wait
// returns nil; otherwise it returns the error that triggered protocol failure.
func (p *Peer) Wait() error {
	if !p.waitTasks() {
		return nil // the peer is not running
	}

	// Clean up peer state so it can be garbage collected. The closed tracker
	// is kept so that late calls report the failure.
	p.μ.Lock()
	defer p.μ.Unlock()
	p.in = nil
	p.tasks = nil
	p.out.Lock()
	p.out.ch = nil
	p.out.Unlock()
	p.icall = nil

	if treatErrorAsSuccess(p.err) {
		return nil
	}
	return p.err
}

// Pending reports the number of awaited calls from p that have not yet
// settled.
func (p *Peer) Pending() int {
	p.μ.Lock()
	calls := p.calls
	p.μ.Unlock()
	if calls == nil {
		return 0
	}
	return calls.Len()
}

// SendPacket sends a packet to the remote peer. Any error is protocol fatal.
// Any packet type can be sent, including reserved types. The caller is
// responsible for ensuring such packets have a valid payload.
func (p *Peer) SendPacket(ptype PacketType, payload []byte) error {
	return p.sendOut(&Packet{
		Type:    ptype,
		Payload: payload,
	})
}

// Send sends c to the remote peer for execution and returns without waiting
// for the result.
//
// For an Awaited call, Send registers a pending call that settles when the
// response arrives, when deadline passes (if it is not zero), or when the
// caller cancels it; use its Wait method to obtain the response. For a
// FireAndForget call, no pending call is registered, the remote peer sends no
// response, and Send returns a nil *pending.Call once the request has been
// handed to the channel.
func (p *Peer) Send(c chain.Chain, mode Mode, deadline time.Time) (*pending.Call[*Response], error) {
	if c.Len() == 0 {
		return nil, &fault.InvalidChainError{Reason: "empty chain"}
	}
	p.μ.Lock()
	err, calls, vc := p.err, p.calls, p.codecLocked()
	p.μ.Unlock()
	if err != nil {
		return nil, err
	} else if calls == nil {
		return nil, errNotRunning
	}

	req := Request{NoReply: mode == FireAndForget, Chain: c}
	var pc *pending.Call[*Response]
	if req.NoReply {
		req.ID = uuid.New() // for tracing only
	} else {
		pc, err = calls.Add(deadline)
		if err != nil {
			return nil, err
		}
		req.ID = pc.ID()
	}

	payload, err := req.Encode(vc)
	if err == nil {
		// N.B. Do not hold the state lock here, as that will block the receiver
		// from dispatching packets.
		err = p.sendOut(&Packet{Type: PacketRequest, Payload: payload})
	}
	if err != nil {
		if pc != nil {
			pc.Cancel()
		}
		return nil, err
	}
	return pc, nil
}

// Call sends c to the remote peer and blocks until ctx ends or the response is
// received. The call gives up at the deadline of ctx, or after the timeout
// set by the Timeout method if that is sooner. A timeout is local to the
// caller: the remote peer is not told, and a late response is discarded.
//
// An error reported by Call has concrete type *CallError. Use errors.As to
// recover the fault reported by the remote peer.
func (p *Peer) Call(ctx context.Context, c chain.Chain) (_ *Response, err error) {
	rootMetrics.callOut.Add(1)
	defer func() {
		if err != nil {
			rootMetrics.callOutErr.Add(1)
			var tmo *fault.TimeoutError
			if errors.As(err, &tmo) {
				rootMetrics.callTimeout.Add(1)
			}
		}
	}()

	deadline, _ := ctx.Deadline()
	p.μ.Lock()
	timeout := p.timeout
	p.μ.Unlock()
	if timeout > 0 {
		if t := time.Now().Add(timeout); deadline.IsZero() || t.Before(deadline) {
			deadline = t
		}
	}

	pc, err := p.Send(c, Awaited, deadline)
	if err != nil {
		return nil, &CallError{Err: err}
	}
	rootMetrics.callPending.Add(1)
	defer rootMetrics.callPending.Add(-1)

	rsp, err := pc.Wait(ctx)
	if err != nil {
		return nil, &CallError{Err: err}
	} else if rsp.Status != StatusSuccess {
		return nil, &CallError{Err: rsp.Err(), Response: rsp}
	}
	return rsp, nil
}

// Notify sends c to the remote peer without waiting for, or receiving, a
// result. Failures on the remote peer are not reported to the caller.
func (p *Peer) Notify(c chain.Chain) error {
	if _, err := p.Send(c, FireAndForget, time.Time{}); err != nil {
		return err
	}
	rootMetrics.notifyOut.Add(1)
	return nil
}

// Exec executes c locally against the targets of p, without sending anything
// to the remote peer. The context passed to the methods of c carries p, as if
// the chain had been sent by the remote peer.
func (p *Peer) Exec(ctx context.Context, c chain.Chain) (dispatch.Outcome, error) {
	p.μ.Lock()
	d := dispatch.New(p.targetsLocked())
	p.μ.Unlock()
	return d.Dispatch(context.WithValue(ctx, peerContextKey{}, p), c)
}

// WithTargets sets the registry used to resolve the chains sent by the
// remote peer. If r == nil, the process-wide registry is used. WithTargets
// returns p to permit chaining.
func (p *Peer) WithTargets(r *registry.Registry[dispatch.Target]) *Peer {
	p.μ.Lock()
	defer p.μ.Unlock()
	p.targets = r
	return p
}

// Targets returns the registry p uses to resolve the chains sent by the
// remote peer.
func (p *Peer) Targets() *registry.Registry[dispatch.Target] {
	p.μ.Lock()
	defer p.μ.Unlock()
	return p.targetsLocked()
}

// WithCodec sets the codec used to encode and decode the values exchanged
// with the remote peer. If vc == nil, value.Default is used. Both peers must
// know the same object tags. WithCodec returns p to permit chaining.
func (p *Peer) WithCodec(vc *value.Codec) *Peer {
	p.μ.Lock()
	defer p.μ.Unlock()
	p.codec = vc
	return p
}

// Timeout sets a default deadline for calls made by the Call method, relative
// to the start of the call. If d <= 0, calls have no default deadline.
// Timeout returns p to permit chaining.
func (p *Peer) Timeout(d time.Duration) *Peer {
	p.μ.Lock()
	defer p.μ.Unlock()
	p.timeout = max(d, 0)
	return p
}

// Throttle limits the rate at which p begins executing chains sent by the
// remote peer to r per second, with bursts of up to burst chains. Requests
// over the limit are delayed, not dropped. If r <= 0 the limit is removed.
// Throttle returns p to permit chaining.
func (p *Peer) Throttle(r rate.Limit, burst int) *Peer {
	p.μ.Lock()
	defer p.μ.Unlock()
	if r <= 0 {
		p.limit = nil
	} else {
		p.limit = rate.NewLimiter(r, max(burst, 1))
	}
	return p
}

// HandlePacket registers a callback that will be invoked whenever the remote
// peer sends a packet with the specified type. This method will panic if a
// reserved packet type is specified. Passing a nil callback removes any
// handler for the specified packet type. HandlePacket returns p to permit
// chaining.
//
// Packet handlers are invoked synchronously with the processing of packets
// sent by the remote peer, and there will be at most one packet handler active
// at a time. If a packet handler panics or reports an error, it is protocol
// fatal and will terminate the peer.
func (p *Peer) HandlePacket(ptype PacketType, handler PacketHandler) *Peer {
	if ptype <= maxReservedType {
		panic(fmt.Sprintf("cannot handle reserved packet type %d", ptype))
	}

	p.μ.Lock()
	defer p.μ.Unlock()
	if p.pmux == nil {
		p.pmux = make(map[PacketType]PacketHandler)
	}
	if handler == nil {
		delete(p.pmux, ptype)
	} else {
		p.pmux[ptype] = handler
	}
	return p
}

// LogPackets registers a callback that will be invoked for each packet
// exchanged with the remote peer, regardless of type, including packets to be
// discarded.
//
// Passing a nil callback disables packet logging. The packet logger is invoked
// synchronously with dispatch, prior to sending or calling a packet handler.
func (p *Peer) LogPackets(log PacketLogger) *Peer {
	p.μ.Lock()
	defer p.μ.Unlock()
	p.plog = log
	return p
}

// OnExit registers a callback to be invoked when the peer terminates.  The
// callback is executed synchronously during shutdown, with the same error
// value that would be reported by the Wait method.
//
// Only one exit callback can be registered at a time; if f == nil the callback
// is removed.
func (p *Peer) OnExit(f func(error)) *Peer {
	p.μ.Lock()
	defer p.μ.Unlock()
	p.onExit = f
	return p
}

// NewContext registers a function that will be called to create a new base
// context for methods and packet handlers. This allows request-specific host
// resources to be plumbed into a method. If it is not set a background
// context is used.
func (p *Peer) NewContext(base func() context.Context) *Peer {
	p.μ.Lock()
	defer p.μ.Unlock()
	if base == nil {
		p.base = context.Background
	} else {
		p.base = base
	}
	return p
}

func (p *Peer) codecLocked() *value.Codec {
	if p.codec == nil {
		return value.Default
	}
	return p.codec
}

func (p *Peer) targetsLocked() *registry.Registry[dispatch.Target] {
	if p.targets == nil {
		return Targets()
	}
	return p.targets
}

// fail terminates all pending calls and updates the failure status.
func (p *Peer) fail(err error) {
	p.closeOut()

	p.μ.Lock()
	defer p.μ.Unlock()

	// Terminate all incomplete pending (outbound) calls.
	p.calls.Close(fmt.Errorf("call terminated: %w", err))

	// Terminate all incomplete active (inbound) calls.
	for _, stop := range p.icall {
		stop()
	}
	p.icall = nil

	p.err = err
	if p.onExit != nil {
		if treatErrorAsSuccess(err) {
			err = nil
		}
		p.onExit(err)
	}
}

// errorResponse constructs a response reporting err for the request id.
func errorResponse(id uuid.UUID, err error) *Response {
	var pe *fault.ProtocolError
	if errors.As(err, &pe) {
		return &Response{ID: id, Status: StatusProtocolError, Fault: fault.Describe(err)}
	}
	return &Response{ID: id, Status: StatusFault, Fault: fault.Describe(err)}
}

// sendRsp delivers a response to the remote peer, unless the peer has failed.
func (p *Peer) sendRsp(rsp *Response, vc *value.Codec) {
	p.μ.Lock()
	err := p.err
	p.μ.Unlock()
	if err != nil {
		return
	}

	payload, err := rsp.Encode(vc)
	if err != nil {
		// The result could not be encoded; report that instead.
		logger.Warningf("encoding result for %v: %v", rsp.ID, err)
		payload = errorResponse(rsp.ID, err).encodeFault()
	}
	if err := p.sendOut(&Packet{
		Type:    PacketResponse,
		Payload: payload,
	}); err != nil {
		p.closeOut()
	}
}

// replyLater sends rsp from a separate task, so that the receive loop does
// not wait on the channel.
func (p *Peer) replyLater(rsp *Response, vc *value.Codec) {
	p.tasks.Go(func() error { p.sendRsp(rsp, vc); return nil })
}

// dispatchRequestLocked starts executing an inbound request. A request that
// could not be decoded is reported back to the caller, if it expects a reply.
func (p *Peer) dispatchRequestLocked(req *Request, decodeErr error, vc *value.Codec) {
	rootMetrics.callIn.Add(1)

	if decodeErr != nil {
		rootMetrics.callInErr.Add(1)
		if req.NoReply {
			logger.Warningf("dropped invalid notification %v: %v", req.ID, decodeErr)
			return
		}
		p.replyLater(errorResponse(req.ID, decodeErr), vc)
		return
	}

	// Report duplicate request ID without failing the existing call.
	if _, ok := p.icall[req.ID]; ok {
		rootMetrics.callInErr.Add(1)
		if !req.NoReply {
			p.replyLater(errorResponse(req.ID, &fault.ProtocolError{
				Message: fmt.Sprintf("duplicate request ID %v", req.ID),
			}), vc)
		}
		return
	}

	// Start a task to execute the chain. The task handles cancellation and
	// response delivery.
	pctx := context.WithValue(p.base(), peerContextKey{}, p)
	ctx, cancel := context.WithCancel(pctx)
	p.icall[req.ID] = cancel
	rootMetrics.callActive.Add(1)

	d := dispatch.New(p.targetsLocked())
	limit := p.limit
	p.tasks.Go(func() error {
		defer cancel()
		defer rootMetrics.callActive.Add(-1)

		var out dispatch.Outcome
		err := func() error {
			if limit != nil {
				if err := limit.Wait(ctx); err != nil {
					return err
				}
			}
			var err error
			out, err = d.Dispatch(ctx, req.Chain)
			return err
		}()

		p.μ.Lock()
		delete(p.icall, req.ID)
		p.μ.Unlock()

		if err != nil {
			rootMetrics.callInErr.Add(1)
			if req.NoReply {
				logger.Warningf("notification %v failed: %v", req.Chain, err)
				return nil
			}
			p.sendRsp(errorResponse(req.ID, err), vc)
			return nil
		} else if req.NoReply {
			return nil
		}
		p.sendRsp(&Response{
			ID:     req.ID,
			Status: StatusSuccess,
			Void:   out.Void,
			Value:  out.Value,
		}, vc)
		return nil
	})
}

// dispatchPacket routes an inbound packet from the remote peer.
// Any error it reports is protocol fatal.
func (p *Peer) dispatchPacket(pkt *Packet) error {
	p.μ.Lock()
	plog, vc := p.plog, p.codecLocked()
	p.μ.Unlock()
	if plog != nil {
		plog(PacketInfo{Packet: pkt, Sent: false})
	}
	if pkt.Protocol != 0 {
		rootMetrics.packetDropped.Add(1)
		logger.Debugf("dropped packet with protocol version %d", pkt.Protocol)
		return nil
	}

	switch pkt.Type {
	case PacketRequest:
		var req Request
		err := req.Decode(pkt.Payload, vc)
		if err != nil && req.ID == uuid.Nil {
			// Without an ID there is nobody to tell.
			rootMetrics.packetDropped.Add(1)
			logger.Warningf("dropped invalid request packet: %v", err)
			return nil
		}
		p.μ.Lock()
		defer p.μ.Unlock()
		p.dispatchRequestLocked(&req, err, vc)

	case PacketResponse:
		var rsp Response
		if err := rsp.Decode(pkt.Payload, vc); err != nil {
			if rsp.ID == uuid.Nil || !p.calls.Fail(rsp.ID, err) {
				rootMetrics.packetDropped.Add(1)
				logger.Warningf("dropped invalid response packet: %v", err)
			}
			return nil
		}
		if !p.calls.Complete(rsp.ID, &rsp) {
			// The call already settled, for example by timing out.
			rootMetrics.packetDropped.Add(1)
			logger.Debugf("dropped response for unknown call %v", rsp.ID)
		}

	default:
		p.μ.Lock()
		handler, ok := p.pmux[pkt.Type]
		base := p.base
		p.μ.Unlock()
		if !ok {
			rootMetrics.packetDropped.Add(1)
			break // ignore the packet
		}

		pctx := context.WithValue(base(), peerContextKey{}, p)
		return func() (err error) {
			// Ensure a panic out of a packet handler is turned into a protocol fatal.
			defer func() {
				if x := recover(); x != nil && err == nil {
					err = fmt.Errorf("packet handler panicked (recovered): %v", x)
				}
			}()
			return handler(pctx, pkt)
		}()
	}
	return nil
}

func (p *Peer) sendOut(pkt *Packet) error {
	p.μ.Lock()
	plog := p.plog
	p.μ.Unlock()

	p.out.Lock()
	defer p.out.Unlock()
	if p.out.ch == nil {
		return errNotRunning
	}
	rootMetrics.packetSent.Add(1)
	if plog != nil {
		plog(PacketInfo{Packet: pkt, Sent: true})
	}
	return p.out.ch.Send(pkt)
}

func (p *Peer) closeOut() {
	p.out.Lock()
	defer p.out.Unlock()
	if p.out.ch != nil {
		p.out.ch.Close()
	}
}

// CallError is the concrete type of errors reported by the Call method of a
// Peer. For a fault reported by the remote peer, Err is the reconstructed
// fault (see package fault) and Response is the complete response message.
// Otherwise, Response is nil.
type CallError struct {
	Err      error
	Response *Response // set if the error came from a call response
}

// Unwrap reports the underlying error of c.
func (c *CallError) Unwrap() error { return c.Err }

// Error satisfies the error interface.
func (c *CallError) Error() string {
	if c.Response != nil {
		return fmt.Sprintf("call %v: %v", c.Response.ID, c.Err)
	}
	return c.Err.Error()
}

type peerContextKey struct{}

// ContextPeer returns the Peer associated with the given context, or nil if
// none is defined. The context passed to the methods of a chain sent by the
// remote peer has this value.
func ContextPeer(ctx context.Context) *Peer {
	if v := ctx.Value(peerContextKey{}); v != nil {
		return v.(*Peer)
	}
	return nil
}

// SplitAddress parses an address string to guess a network type and target.
//
// The assignment of a network type uses the following heuristics:
//
// If s does not have the form [host]:port, the network is assigned as "unix".
// The network "unix" is also assigned if port == "", port contains characters
// other than ASCII letters, digits, and "-", or if host contains a "/".
//
// Otherwise, the network is assigned as "tcp". Note that this function does
// not verify whether the address is lexically valid.
func SplitAddress(s string) (network, address string) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return "unix", s
	}
	host, port := s[:i], s[i+1:]
	if port == "" || !isServiceName(port) {
		return "unix", s
	} else if strings.IndexByte(host, '/') >= 0 {
		return "unix", s
	}
	return "tcp", s
}

// isServiceName reports whether s looks like a legal service name from the
// services(5) file. The grammar of such names is not well-defined, but for our
// purposes it includes letters, digits, and "-".
func isServiceName(s string) bool {
	for _, b := range s {
		if b >= '0' && b <= '9' || b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z' || b == '-' {
			continue
		}
		return false
	}
	return true
}
