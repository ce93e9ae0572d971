// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package fault_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gamefleet/chainrpc/fault"
	"github.com/google/go-cmp/cmp"
)

func TestDescribeRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input error
		want  error
	}{
		{"UnknownTarget", &fault.UnknownTargetError{ClassID: "Lobby"}, &fault.UnknownTargetError{ClassID: "Lobby"}},
		{"UnknownTargetCause",
			&fault.UnknownTargetError{ClassID: "Lobby", Err: errors.New("no instance 7")},
			&fault.UnknownTargetError{ClassID: "Lobby", Err: errors.New("no instance 7")},
		},
		{"NoSuchMethod",
			&fault.NoSuchMethodError{Type: "Lobby", Method: "join", Static: true},
			&fault.NoSuchMethodError{Type: "Lobby", Method: "join", Static: true},
		},
		{"Decode",
			fault.Decodef("argument %d", 2, errors.New("want string")),
			&fault.ArgumentDecodeError{Message: "argument 2: want string"},
		},
		{"Invocation",
			&fault.InvocationFaultError{Method: "start", Message: "no capacity", Err: errors.New("no capacity")},
			&fault.InvocationFaultError{Method: "start", Message: "no capacity"},
		},
		{"InvalidChain",
			&fault.InvalidChainError{Link: 3, Reason: "nil reference"},
			&fault.InvalidChainError{Link: 3, Reason: "nil reference"},
		},
		{"DuplicateClass", &fault.DuplicateClassIDError{ClassID: "X"}, &fault.DuplicateClassIDError{ClassID: "X"}},
		{"Protocol", &fault.ProtocolError{Message: "huh"}, &fault.ProtocolError{Message: "huh"}},
		{"Plain", errors.New("kaboom"), &fault.InvocationFaultError{Message: "kaboom"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			enc := fault.Describe(tc.input).Encode()

			var got fault.Description
			if err := got.UnmarshalBinary(enc); err != nil {
				t.Fatalf("UnmarshalBinary: unexpected error: %v", err)
			}
			if diff := cmp.Diff(tc.want.Error(), got.Err().Error()); diff != "" {
				t.Errorf("Reconstructed error (-want, +got):\n%s", diff)
			}
		})
	}
}

func TestDescriptionErrorsAs(t *testing.T) {
	d := fault.Describe(&fault.NoSuchMethodError{Type: "Node", Method: "shutdown"})

	var nsm *fault.NoSuchMethodError
	if !errors.As(d.Err(), &nsm) {
		t.Fatalf("Err: got %T, want *NoSuchMethodError", d.Err())
	}
	if nsm.Type != "Node" || nsm.Method != "shutdown" {
		t.Errorf("Err: got %+v", nsm)
	}
}

func TestTimeoutError(t *testing.T) {
	err := error(&fault.TimeoutError{Deadline: time.Now()})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("TimeoutError does not match %v", context.DeadlineExceeded)
	}
	var te interface{ Timeout() bool }
	if !errors.As(err, &te) || !te.Timeout() {
		t.Errorf("TimeoutError does not report Timeout")
	}
}

func TestDescriptionDecodeErrors(t *testing.T) {
	tests := []struct {
		name, input string
	}{
		{"Empty", ""},
		{"ZeroCode", "\x00\x00\x00\x00\x00\x00"},
		{"BadCode", "\x63\x00\x00\x00\x00\x00"},
		{"ShortMessage", "\x04\x00\x00\x00\x00\x10ab"},
		{"BadUTF8", "\x04\x00\x00\x00\x00\x0cab\xc0"},
		{"Trailing", "\x04\x00\x00\x00\x00\x00extra"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var d fault.Description
			if err := d.UnmarshalBinary([]byte(tc.input)); err == nil {
				t.Errorf("UnmarshalBinary(%q): got %+v, want error", tc.input, d)
			} else {
				t.Logf("UnmarshalBinary: got expected error: %v", err)
			}
		})
	}
}

func TestLongMessage(t *testing.T) {
	long := strings.Repeat("é", fault.MaxMessageLen) // 2 bytes per rune
	d := fault.Describe(errors.New(long))

	var got fault.Description
	if err := got.UnmarshalBinary(d.Encode()); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if n := len(got.Message); n > fault.MaxMessageLen {
		t.Errorf("Message length %d exceeds %d", n, fault.MaxMessageLen)
	}
	if !strings.HasPrefix(long, got.Message) {
		t.Error("Truncated message is not a prefix of the original")
	}
}
