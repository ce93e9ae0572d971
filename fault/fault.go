// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package fault defines the errors reported by the chainrpc framework, and
// their wire description.
//
// A failure that occurs while a chain executes on a remote peer is encoded as
// a [Description] and returned to the caller, where [Description.Err]
// reconstructs an error of the same concrete type. Callers should use
// [errors.As] to inspect them:
//
//	var nsm *fault.NoSuchMethodError
//	if errors.As(err, &nsm) {
//	   log.Printf("peer has no method %q on %s", nsm.Method, nsm.Type)
//	}
package fault

import (
	"context"
	"fmt"
	"time"
)

// UnknownTargetError reports that no registry entry matches a requested class
// identifier, or that its resolver could not produce a target.
type UnknownTargetError struct {
	ClassID string
	Err     error // the resolver failure, if any
}

func (e *UnknownTargetError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unknown target %q: %v", e.ClassID, e.Err)
	}
	return fmt.Sprintf("unknown target %q", e.ClassID)
}

func (e *UnknownTargetError) Unwrap() error { return e.Err }

// NoSuchMethodError reports that a resolved target does not expose a method
// with the requested name. A passing build check rules this out between
// processes built from the same source, so in practice it indicates version
// skew.
type NoSuchMethodError struct {
	Type   string
	Method string
	Static bool
}

func (e *NoSuchMethodError) Error() string {
	kind := "method"
	if e.Static {
		kind = "static method"
	}
	return fmt.Sprintf("%s has no exposed %s %q", e.Type, kind, e.Method)
}

// ArgumentDecodeError reports a malformed buffer, a value that does not fit
// the declared parameter shape of a method, or an object type with no
// registered codec.
type ArgumentDecodeError struct {
	Message string
	Err     error
}

func (e *ArgumentDecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s: %v", e.Message, e.Err)
	}
	return "decode: " + e.Message
}

func (e *ArgumentDecodeError) Unwrap() error { return e.Err }

// Decodef constructs an [ArgumentDecodeError] with a formatted message.
// If the last argument is an error, it becomes the wrapped error and is
// removed from the arguments.
func Decodef(msg string, args ...any) *ArgumentDecodeError {
	var err error
	if n := len(args); n != 0 {
		if e, ok := args[n-1].(error); ok {
			err, args = e, args[:n-1]
		}
	}
	return &ArgumentDecodeError{Message: fmt.Sprintf(msg, args...), Err: err}
}

// InvocationFaultError reports that the target method itself failed. On the
// receiving side Err holds the original error; on the calling side only the
// description survives, in Message.
type InvocationFaultError struct {
	Method  string
	Message string
	Err     error
}

func (e *InvocationFaultError) Error() string {
	return fmt.Sprintf("invoking %q: %s", e.Method, e.Message)
}

func (e *InvocationFaultError) Unwrap() error { return e.Err }

// InvalidChainError reports a chain that violates the link invariants, for
// example a non-terminal link whose method cannot yield a reference.
type InvalidChainError struct {
	Link   int
	Reason string
}

func (e *InvalidChainError) Error() string {
	return fmt.Sprintf("invalid chain at link %d: %s", e.Link, e.Reason)
}

// TimeoutError reports that an awaited call did not complete by its deadline.
// It is local to the caller; the receiver is not notified.
type TimeoutError struct {
	Deadline time.Time
}

func (e *TimeoutError) Error() string {
	if e.Deadline.IsZero() {
		return "call timed out"
	}
	return fmt.Sprintf("call timed out at %s", e.Deadline.Format(time.RFC3339Nano))
}

// Timeout reports true, following the net.Error convention.
func (*TimeoutError) Timeout() bool { return true }

// Unwrap allows errors.Is(err, context.DeadlineExceeded) to match.
func (*TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// DuplicateClassIDError reports an attempt to register a class identifier
// that is already present in a registry.
type DuplicateClassIDError struct {
	ClassID string
}

func (e *DuplicateClassIDError) Error() string {
	return fmt.Sprintf("class %q is already registered", e.ClassID)
}

// ProtocolError reports a response that could not be understood, or a fault
// description with an unrecognized code.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string { return "protocol error: " + e.Message }
