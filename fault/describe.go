// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package fault

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gamefleet/chainrpc/packet"
)

// Code identifies the kind of a fault on the wire.
type Code byte

const (
	CodeUnknownTarget  Code = 1 // no registry entry for the class
	CodeNoSuchMethod   Code = 2 // the target lacks the named exposed method
	CodeArgumentDecode Code = 3 // malformed input or missing object codec
	CodeInvocation     Code = 4 // the target method failed
	CodeInvalidChain   Code = 5 // chain invariants violated
	CodeDuplicateClass Code = 6 // registry mutation conflict
	CodeTimeout        Code = 7 // caller-local, never sent by a receiver
	CodeProtocol       Code = 8 // anything else

	maxCode = CodeProtocol
)

func (c Code) String() string {
	switch c {
	case CodeUnknownTarget:
		return "UNKNOWN_TARGET"
	case CodeNoSuchMethod:
		return "NO_SUCH_METHOD"
	case CodeArgumentDecode:
		return "ARGUMENT_DECODE"
	case CodeInvocation:
		return "INVOCATION_FAULT"
	case CodeInvalidChain:
		return "INVALID_CHAIN"
	case CodeDuplicateClass:
		return "DUPLICATE_CLASS_ID"
	case CodeTimeout:
		return "TIMEOUT"
	case CodeProtocol:
		return "PROTOCOL_ERROR"
	default:
		return fmt.Sprintf("fault code %d", byte(c))
	}
}

// MaxMessageLen is the longest message carried by a Description. Longer
// messages are truncated at a UTF-8 boundary.
const MaxMessageLen = 65535

// Description is the wire format of a fault. Which of the fields are
// meaningful depends on Code.
type Description struct {
	Code    Code
	Link    int    // for CodeInvalidChain
	Target  string // class ID or type name
	Method  string
	Static  bool
	Message string
}

// Describe converts err into a Description. Errors that are not one of the
// types defined by this package are described as invocation faults.
func Describe(err error) Description {
	var (
		ute *UnknownTargetError
		nsm *NoSuchMethodError
		ade *ArgumentDecodeError
		ife *InvocationFaultError
		ice *InvalidChainError
		dup *DuplicateClassIDError
		tmo *TimeoutError
		pe  *ProtocolError
	)
	switch {
	case errors.As(err, &ife):
		return Description{Code: CodeInvocation, Method: ife.Method, Message: ife.Message}
	case errors.As(err, &ute):
		d := Description{Code: CodeUnknownTarget, Target: ute.ClassID}
		if ute.Err != nil {
			d.Message = ute.Err.Error()
		}
		return d
	case errors.As(err, &nsm):
		return Description{Code: CodeNoSuchMethod, Target: nsm.Type, Method: nsm.Method, Static: nsm.Static}
	case errors.As(err, &ade):
		msg := ade.Message
		if ade.Err != nil {
			msg += ": " + ade.Err.Error()
		}
		return Description{Code: CodeArgumentDecode, Message: msg}
	case errors.As(err, &ice):
		return Description{Code: CodeInvalidChain, Link: ice.Link, Message: ice.Reason}
	case errors.As(err, &dup):
		return Description{Code: CodeDuplicateClass, Target: dup.ClassID}
	case errors.As(err, &tmo):
		return Description{Code: CodeTimeout}
	case errors.As(err, &pe):
		return Description{Code: CodeProtocol, Message: pe.Message}
	default:
		return Description{Code: CodeInvocation, Message: err.Error()}
	}
}

// Err reconstructs an error equivalent to the one d was described from.
func (d Description) Err() error {
	switch d.Code {
	case CodeUnknownTarget:
		e := &UnknownTargetError{ClassID: d.Target}
		if d.Message != "" {
			e.Err = errors.New(d.Message)
		}
		return e
	case CodeNoSuchMethod:
		return &NoSuchMethodError{Type: d.Target, Method: d.Method, Static: d.Static}
	case CodeArgumentDecode:
		return &ArgumentDecodeError{Message: d.Message}
	case CodeInvocation:
		return &InvocationFaultError{Method: d.Method, Message: d.Message}
	case CodeInvalidChain:
		return &InvalidChainError{Link: d.Link, Reason: d.Message}
	case CodeDuplicateClass:
		return &DuplicateClassIDError{ClassID: d.Target}
	case CodeTimeout:
		return &TimeoutError{}
	case CodeProtocol:
		return &ProtocolError{Message: d.Message}
	default:
		return &ProtocolError{Message: fmt.Sprintf("%v: %s", d.Code, d.Message)}
	}
}

// Append appends the binary encoding of d to b.
func (d Description) Append(b *packet.Builder) {
	b.Put(byte(d.Code))
	b.Vint30(uint32(min(max(d.Link, 0), packet.MaxVint30)))
	b.VPutString(truncate(d.Target, MaxMessageLen))
	b.VPutString(truncate(d.Method, MaxMessageLen))
	b.Bool(d.Static)
	b.VPutString(truncate(strings.ToValidUTF8(d.Message, "\uFFFD"), MaxMessageLen))
}

// Encode encodes d in binary format.
func (d Description) Encode() []byte {
	var b packet.Builder
	d.Append(&b)
	return b.Bytes()
}

// Scan decodes a description from the head of s into d.
func (d *Description) Scan(s *packet.Scanner) error {
	code, err := s.Byte()
	if err != nil {
		return fmt.Errorf("fault code: %w", err)
	} else if code == 0 || Code(code) > maxCode {
		return fmt.Errorf("invalid fault code %d", code)
	}
	link, err := s.Vint30()
	if err != nil {
		return fmt.Errorf("fault link: %w", err)
	}
	target, err := packet.VGet[string](s)
	if err != nil {
		return fmt.Errorf("fault target: %w", err)
	}
	method, err := packet.VGet[string](s)
	if err != nil {
		return fmt.Errorf("fault method: %w", err)
	}
	static, err := s.Bool()
	if err != nil {
		return fmt.Errorf("fault static flag: %w", err)
	}
	msg, err := packet.VGet[string](s)
	if err != nil {
		return fmt.Errorf("fault message: %w", err)
	}
	if !utf8.ValidString(msg) {
		return errors.New("fault message is not valid UTF-8")
	}
	*d = Description{
		Code:    Code(code),
		Link:    link,
		Target:  target,
		Method:  method,
		Static:  static,
		Message: msg,
	}
	return nil
}

// UnmarshalBinary decodes data into d. It implements encoding.BinaryUnmarshaler.
func (d *Description) UnmarshalBinary(data []byte) error {
	s := packet.NewScanner(data)
	if err := d.Scan(s); err != nil {
		return err
	} else if s.Len() != 0 {
		return fmt.Errorf("extra data after fault description (%d bytes)", s.Len())
	}
	return nil
}

func (d Description) String() string {
	return fmt.Sprintf("Fault(%v, %v)", d.Code, d.Err())
}

// truncate returns a prefix of a UTF-8 string s, having length no greater than
// n bytes.  If s exceeds this length, it is truncated at a point ≤ n so that
// the result does not end in a partial UTF-8 encoding.
func truncate(s string, n int) string {
	if n >= len(s) {
		return s
	}

	// Back up until we find the beginning of a UTF-8 encoding.
	for n > 0 && s[n-1]&0xc0 == 0x80 { // 0x10... is a continuation byte
		n--
	}

	// If we're at the beginning of a multi-byte encoding, back up one more to
	// skip it. It's possible the value was already complete, but it's simpler
	// if we only have to check in one direction.
	if n > 0 && s[n-1]&0xc0 == 0xc0 { // 0x11... starts a multibyte encoding
		n--
	}
	return s[:n]
}
