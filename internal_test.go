// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package chainrpc

import (
	"errors"
	"testing"
	"time"

	"github.com/gamefleet/chainrpc/chain"
	"github.com/gamefleet/chainrpc/fault"
	"github.com/gamefleet/chainrpc/value"
	"github.com/google/uuid"
)

func TestErrorResponse(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		err    error
		status Status
		code   fault.Code
	}{
		{&fault.ProtocolError{Message: "bad flags"}, StatusProtocolError, fault.CodeProtocol},
		{fault.Decodef("short value"), StatusFault, fault.CodeArgumentDecode},
		{&fault.NoSuchMethodError{Type: "Node", Method: "drain"}, StatusFault, fault.CodeNoSuchMethod},
		{errors.New("something else"), StatusFault, fault.CodeInvocation},
	}
	for _, tc := range tests {
		rsp := errorResponse(id, tc.err)
		if rsp.ID != id {
			t.Errorf("errorResponse(%v): got ID %v, want %v", tc.err, rsp.ID, id)
		}
		if rsp.Status != tc.status || rsp.Fault.Code != tc.code {
			t.Errorf("errorResponse(%v): got (%v, %v), want (%v, %v)",
				tc.err, rsp.Status, rsp.Fault.Code, tc.status, tc.code)
		}
		if rsp.Err() == nil {
			t.Errorf("errorResponse(%v): Err is nil", tc.err)
		}
	}
}

func TestSendNotRunning(t *testing.T) {
	p := NewPeer()
	c := chain.Call("Node", "drain").MustBuild()
	if pc, err := p.Send(c, Awaited, time.Time{}); !errors.Is(err, errNotRunning) {
		t.Errorf("Send: got (%v, %v), want %v", pc, err, errNotRunning)
	}
	if _, err := p.Send(chain.Chain{}, Awaited, time.Time{}); err == nil {
		t.Error("Send empty chain: got nil, want error")
	}
}

func TestUnencodableResult(t *testing.T) {
	id := uuid.New()
	rsp := &Response{ID: id, Status: StatusSuccess, Value: value.Object("no-such-tag", 1)}
	_, err := rsp.Encode(value.Default)
	if err == nil {
		t.Fatal("Encode: got nil, want error")
	}

	// The substitute fault response always encodes, and decodes cleanly.
	payload := errorResponse(id, err).encodeFault()
	var got Response
	if err := got.Decode(payload, value.Default); err != nil {
		t.Fatalf("Decode fault payload: %v", err)
	}
	if got.ID != id || got.Status != StatusFault || got.Fault.Code != fault.CodeArgumentDecode {
		t.Errorf("Fault response: got %v %v %v, want %v %v %v",
			got.ID, got.Status, got.Fault.Code, id, StatusFault, fault.CodeArgumentDecode)
	}
}
