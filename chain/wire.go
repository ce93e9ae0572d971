// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package chain

import (
	"fmt"

	"github.com/gamefleet/chainrpc/fault"
	"github.com/gamefleet/chainrpc/packet"
	"github.com/gamefleet/chainrpc/value"
)

// Encode appends the binary encoding of c to b, encoding arguments with vc.
//
// The encoding is a Vint30 link count followed by each link in order: the
// class name (first link only), the method name, a static flag byte, a Vint30
// argument count, and the encoded arguments.
func (c Chain) Encode(b *packet.Builder, vc *value.Codec) error {
	if len(c.links) == 0 {
		return &fault.InvalidChainError{Reason: "empty chain"}
	}
	b.Vint30(uint32(len(c.links)))
	for i, in := range c.links {
		if i == 0 {
			b.VPutString(in.Class)
		}
		b.VPutString(in.Method)
		b.Bool(in.Static)
		if err := packet.CheckLen(len(in.Args)); err != nil {
			return fmt.Errorf("link %d arguments: %w", i, err)
		}
		b.Vint30(uint32(len(in.Args)))
		for j, arg := range in.Args {
			if err := vc.Append(b, arg); err != nil {
				return fmt.Errorf("link %d argument %d: %w", i, j, err)
			}
		}
	}
	return nil
}

// Decode decodes a chain from the head of s, decoding arguments with vc.
// Malformed input is reported as *fault.ArgumentDecodeError, and a decoded
// chain that violates the link rules as *fault.InvalidChainError.
func Decode(s *packet.Scanner, vc *value.Codec) (Chain, error) {
	n, err := s.Vint30()
	if err != nil {
		return Chain{}, fault.Decodef("chain length", err)
	} else if n == 0 || n > MaxLinks {
		return Chain{}, fault.Decodef("invalid chain length %d", n)
	}
	links := make([]Invocation, n)
	for i := range links {
		if i == 0 {
			links[i].Class, err = packet.VGet[string](s)
			if err != nil {
				return Chain{}, fault.Decodef("link %d class", i, err)
			}
		}
		links[i].Method, err = packet.VGet[string](s)
		if err != nil {
			return Chain{}, fault.Decodef("link %d method", i, err)
		}
		links[i].Static, err = s.Bool()
		if err != nil {
			return Chain{}, fault.Decodef("link %d static flag", i, err)
		}
		nargs, err := s.Vint30()
		if err != nil {
			return Chain{}, fault.Decodef("link %d argument count", i, err)
		} else if nargs > s.Len() {
			return Chain{}, fault.Decodef("link %d claims %d arguments, %d bytes remain", i, nargs, s.Len())
		}
		if nargs > 0 {
			links[i].Args = make([]value.Value, nargs)
		}
		for j := range nargs {
			links[i].Args[j], err = vc.Scan(s)
			if err != nil {
				return Chain{}, fault.Decodef("link %d argument %d", i, j, err)
			}
		}
	}
	return New(links...)
}
