// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

// Package channel provides implementations of the chainrpc.Channel interface.
package channel

import (
	"bufio"
	"fmt"
	"io"
	"net"

	"github.com/gamefleet/chainrpc"
)

// Direct constructs a connected pair of in-memory channels that pass packets
// directly without encoding into binary. Packets sent to A are received by B
// and vice versa. Payloads are subject to the same size limit as encoded
// packets.
func Direct() (A, B chainrpc.Channel) {
	a2b := make(chan *chainrpc.Packet)
	b2a := make(chan *chainrpc.Packet)
	A = direct{a2b: a2b, b2a: b2a}
	B = direct{a2b: b2a, b2a: a2b}
	return
}

type direct struct {
	a2b chan<- *chainrpc.Packet
	b2a <-chan *chainrpc.Packet
}

// Send implements a method of the [chainrpc.Channel] interface.
func (d direct) Send(pkt *chainrpc.Packet) (err error) {
	if err := checkSize(pkt); err != nil {
		return err
	}
	defer safeClose(&err)
	d.a2b <- pkt
	return nil
}

// Recv implements a method of the [chainrpc.Channel] interface.
func (d direct) Recv() (*chainrpc.Packet, error) {
	pkt, ok := <-d.b2a
	if !ok {
		return nil, net.ErrClosed
	}
	return pkt, nil
}

// Close implements a method of the [chainrpc.Channel] interface.
func (d direct) Close() (err error) {
	defer safeClose(&err)
	close(d.a2b)
	return nil
}

func safeClose(err *error) {
	if x := recover(); x != nil && *err == nil {
		*err = net.ErrClosed
	}
}

// checkSize reports an error if pkt is too large for a receiver to accept.
func checkSize(pkt *chainrpc.Packet) error {
	if pkt != nil && len(pkt.Payload) > chainrpc.MaxPayloadSize {
		return fmt.Errorf("payload too large (%d > %d bytes)", len(pkt.Payload), chainrpc.MaxPayloadSize)
	}
	return nil
}

// IO constructs a channel that receives from r and sends to wc.
func IO(r io.Reader, wc io.WriteCloser) IOChannel {
	// N.B. The bufio package will reuse existing buffers if possible.
	return IOChannel{r: bufio.NewReader(r), w: bufio.NewWriter(wc), c: wc}
}

// An IOChannel sends and receives packets on a reader and a writer.
type IOChannel struct {
	r *bufio.Reader
	w *bufio.Writer
	c io.Closer
}

// Send implements a method of the [chainrpc.Channel] interface.
func (c IOChannel) Send(pkt *chainrpc.Packet) error {
	if err := checkSize(pkt); err != nil {
		return err
	}
	if _, err := pkt.WriteTo(c.w); err != nil {
		return err
	}
	return c.w.Flush()
}

// Recv implements a method of the [chainrpc.Channel] interface.
func (c IOChannel) Recv() (*chainrpc.Packet, error) {
	var pkt chainrpc.Packet
	if _, err := pkt.ReadFrom(c.r); err != nil {
		return nil, err
	}
	return &pkt, nil
}

// Close implements a method of the [chainrpc.Channel] interface.
func (c IOChannel) Close() error { return c.c.Close() }
