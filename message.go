// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package chainrpc

import (
	"fmt"

	"github.com/gamefleet/chainrpc/chain"
	"github.com/gamefleet/chainrpc/fault"
	"github.com/gamefleet/chainrpc/packet"
	"github.com/gamefleet/chainrpc/value"
	"github.com/google/uuid"
)

// Request flag bits.
const (
	flagNoReply = 1 << 0 // fire-and-forget: the receiver sends no response

	knownFlags = flagNoReply
)

// Request is the payload format for a request packet.
//
// The encoding is the 16-byte correlation ID, a flags byte, and the wire form
// of the chain.
type Request struct {
	ID      uuid.UUID
	NoReply bool // fire-and-forget
	Chain   chain.Chain
}

// Encode encodes the request in binary format, encoding argument values with
// vc.
func (r Request) Encode(vc *value.Codec) ([]byte, error) {
	var b packet.Builder
	b.Put(r.ID[:]...)
	if r.NoReply {
		b.Put(flagNoReply)
	} else {
		b.Put(0)
	}
	if err := r.Chain.Encode(&b, vc); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Decode decodes data into a request payload, decoding argument values with
// vc. If the correlation ID could be read, r.ID is set even if Decode reports
// an error. A malformed header is reported as a *fault.ProtocolError;
// errors from the chain have the types reported by chain.Decode.
func (r *Request) Decode(data []byte, vc *value.Codec) error {
	*r = Request{}
	if len(data) < 17 { // 16 ID, 1 flags
		return &fault.ProtocolError{Message: fmt.Sprintf("short request payload (%d bytes)", len(data))}
	}
	copy(r.ID[:], data[:16])
	flags := data[16]
	if flags&^knownFlags != 0 {
		return &fault.ProtocolError{Message: fmt.Sprintf("unknown request flags %02x", flags)}
	}
	r.NoReply = flags&flagNoReply != 0

	s := packet.NewScanner(data[17:])
	c, err := chain.Decode(s, vc)
	if err != nil {
		return err
	} else if s.Len() != 0 {
		return fault.Decodef("extra data after chain (%d bytes)", s.Len())
	}
	r.Chain = c
	return nil
}

// String returns a human-friendly rendering of the request.
func (r Request) String() string {
	if r.NoReply {
		return fmt.Sprintf("Request(ID=%v, NoReply, %v)", r.ID, r.Chain)
	}
	return fmt.Sprintf("Request(ID=%v, %v)", r.ID, r.Chain)
}

// Status describes the outcome of a call.
type Status byte

const (
	StatusSuccess       Status = 0 // the chain completed
	StatusFault         Status = 1 // the chain failed
	StatusProtocolError Status = 2 // the request could not be understood
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFault:
		return "FAULT"
	case StatusProtocolError:
		return "PROTOCOL_ERROR"
	default:
		return fmt.Sprintf("status %d", byte(s))
	}
}

// Response is the payload format for a response packet.
//
// The encoding is the 16-byte correlation ID and a status byte. On success
// this is followed by a void flag byte and, unless void, the encoded value.
// Otherwise it is followed by the encoded fault description.
type Response struct {
	ID     uuid.UUID
	Status Status

	Void  bool        // on success, the terminal method returned nothing
	Value value.Value // on success, the result of the chain

	Fault fault.Description // on failure
}

// Err returns the error reported by r, or nil if r is a success.
func (r *Response) Err() error {
	if r.Status == StatusSuccess {
		return nil
	}
	return r.Fault.Err()
}

// Encode encodes the response in binary format, encoding the result value
// with vc.
func (r Response) Encode(vc *value.Codec) ([]byte, error) {
	if r.Status != StatusSuccess {
		return r.encodeFault(), nil
	}
	var b packet.Builder
	b.Put(r.ID[:]...)
	b.Put(byte(r.Status))
	b.Bool(r.Void)
	if !r.Void {
		if err := vc.Append(&b, r.Value); err != nil {
			return nil, err
		}
	}
	return b.Bytes(), nil
}

// encodeFault encodes a failed response. Unlike a result value, a fault
// description always has an encoding.
func (r Response) encodeFault() []byte {
	var b packet.Builder
	b.Put(r.ID[:]...)
	b.Put(byte(r.Status))
	r.Fault.Append(&b)
	return b.Bytes()
}

// Decode decodes data into a response payload, decoding the result value
// with vc. If the correlation ID could be read, r.ID is set even if Decode
// reports an error.
func (r *Response) Decode(data []byte, vc *value.Codec) error {
	*r = Response{}
	if len(data) < 17 { // 16 ID, 1 status
		return &fault.ProtocolError{Message: fmt.Sprintf("short response payload (%d bytes)", len(data))}
	}
	copy(r.ID[:], data[:16])
	r.Status = Status(data[16])
	s := packet.NewScanner(data[17:])

	switch r.Status {
	case StatusSuccess:
		void, err := s.Bool()
		if err != nil {
			return &fault.ProtocolError{Message: fmt.Sprintf("response void flag: %v", err)}
		}
		r.Void = void
		if !void {
			v, err := vc.Scan(s)
			if err != nil {
				return err
			}
			r.Value = v
		}
	case StatusFault, StatusProtocolError:
		if err := r.Fault.Scan(s); err != nil {
			return &fault.ProtocolError{Message: fmt.Sprintf("response fault: %v", err)}
		}
	default:
		return &fault.ProtocolError{Message: fmt.Sprintf("invalid response status %d", r.Status)}
	}
	if s.Len() != 0 {
		return &fault.ProtocolError{Message: fmt.Sprintf("extra data after response (%d bytes)", s.Len())}
	}
	return nil
}

// String returns a human-friendly rendering of the response.
func (r Response) String() string {
	switch {
	case r.Status != StatusSuccess:
		return fmt.Sprintf("Response(ID=%v, %v, %v)", r.ID, r.Status, r.Fault)
	case r.Void:
		return fmt.Sprintf("Response(ID=%v, void)", r.ID)
	default:
		return fmt.Sprintf("Response(ID=%v, %v)", r.ID, r.Value)
	}
}
