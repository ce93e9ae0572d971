// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package chainrpc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// MaxPayloadSize is the largest packet payload a peer will read.
const MaxPayloadSize = 1 << 26

// Packet is the parsed format of a chainrpc transport packet.
type Packet struct {
	Protocol byte
	Type     PacketType
	Payload  []byte
}

// Encode encodes p in binary format.
func (p Packet) Encode() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, 8+len(p.Payload)))
	if _, err := p.WriteTo(buf); err != nil {
		panic(fmt.Errorf("encoding packet: %w", err))
	}
	return buf.Bytes()
}

// WriteTo writes the packet to w in binary format. It satisfies io.WriterTo.
func (p *Packet) WriteTo(w io.Writer) (int64, error) {
	buf := [8]byte{'C', 'R', p.Protocol, byte(p.Type)}
	binary.BigEndian.PutUint32(buf[4:], uint32(len(p.Payload)))
	nw, err := w.Write(buf[:])
	if err == nil && len(p.Payload) != 0 {
		var np int
		np, err = w.Write(p.Payload)
		nw += np
	}
	return int64(nw), err
}

// ReadFrom reads a packet from r in binary format. It satisfies io.ReaderFrom.
func (p *Packet) ReadFrom(r io.Reader) (int64, error) {
	var buf [8]byte
	nr, err := io.ReadFull(r, buf[:])
	if err != nil {
		return int64(nr), fmt.Errorf("short packet header: %w", err)
	}
	if p := string(buf[:3]); p != "CR\x00" {
		return int64(nr), fmt.Errorf("invalid protocol version %q", p)
	}

	p.Protocol = buf[2]
	p.Type = PacketType(buf[3])
	p.Payload = nil

	psize := binary.BigEndian.Uint32(buf[4:])
	if psize > MaxPayloadSize {
		return int64(nr), fmt.Errorf("payload too large (%d > %d bytes)", psize, MaxPayloadSize)
	} else if psize > 0 {
		p.Payload = make([]byte, int(psize))
		var np int
		np, err = io.ReadFull(r, p.Payload)
		nr += np
		if err != nil {
			err = fmt.Errorf("short payload: %w", err)
		}
	}

	return int64(nr), err
}

// String returns a human-friendly rendering of the packet.
func (p *Packet) String() string {
	var pay string
	switch p.Type {
	case PacketRequest, PacketResponse:
		if len(p.Payload) >= 17 {
			id, _ := uuid.FromBytes(p.Payload[:16])
			pay = fmt.Sprintf("ID=%v, %d bytes", id, len(p.Payload))
		}
	}
	if pay == "" {
		if len(p.Payload) > 16 {
			pay = fmt.Sprintf("%+v ...", p.Payload[:16])
		} else {
			pay = fmt.Sprint(p.Payload)
		}
	}
	return fmt.Sprintf("Packet(CR%v, %v, %s)", p.Protocol, p.Type, pay)
}

// PacketType describes the structure type of a packet.
//
// All packet type values from 0 to 127 inclusive are reserved by the protocol
// and MUST NOT be used for any other purpose. Packet type values from 128-255
// are available for use by surrounding modules.
type PacketType byte

const (
	PacketRequest  PacketType = 2 // A call chain to execute
	PacketResponse PacketType = 4 // The outcome of an awaited call

	maxReservedType = 127
)

func (p PacketType) String() string {
	switch p {
	case PacketRequest:
		return "REQUEST"
	case PacketResponse:
		return "RESPONSE"
	default:
		return fmt.Sprintf("TYPE:%d", byte(p))
	}
}
