// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package channel_test

import (
	"io"
	"testing"

	"github.com/creachadair/taskgroup"
	"github.com/gamefleet/chainrpc"
	"github.com/gamefleet/chainrpc/channel"
	"github.com/google/go-cmp/cmp"
)

func TestDirect(t *testing.T) {
	c, s := channel.Direct()

	g := taskgroup.New(nil)
	g.Go(func() error {
		pkt := &chainrpc.Packet{Type: chainrpc.PacketRequest, Payload: []byte("chain")}
		if err := c.Send(pkt); err != nil {
			t.Errorf("A Send: %v", err)
		}
		got, err := c.Recv()
		if err != nil {
			t.Errorf("A Recv: %v", err)
		}
		if got != pkt {
			t.Errorf("Packet: got %v, want %v", got, pkt)
		}
		return nil
	})
	g.Go(func() error {
		pkt, err := s.Recv()
		if err != nil {
			t.Errorf("B Recv: %v", err)
		}
		if err := s.Send(pkt); err != nil {
			t.Errorf("B Send: %v", err)
		}
		return nil
	})
	g.Wait()

	if err := c.Close(); err != nil {
		t.Errorf("c.Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("s.Close: %v", err)
	}

	if err := c.Send(nil); err == nil {
		t.Error("c.Send after close did not report an error")
	}
	if err := s.Send(nil); err == nil {
		t.Error("s.Send after close did not report an error")
	}
	if pkt, err := c.Recv(); err == nil {
		t.Errorf("c.Recv after close: got %+v", pkt)
	} else {
		t.Logf("Error OK: %v", err)
	}
	if pkt, err := s.Recv(); err == nil {
		t.Errorf("s.Recv after close: got %+v", pkt)
	} else {
		t.Logf("Error OK: %v", err)
	}
}

func TestIO(t *testing.T) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	a := channel.IO(ar, aw)
	b := channel.IO(br, bw)

	want := &chainrpc.Packet{Type: chainrpc.PacketResponse, Payload: []byte("some result bytes")}
	g := taskgroup.New(nil)
	g.Go(func() error {
		if err := a.Send(want); err != nil {
			t.Errorf("A Send: %v", err)
		}
		return nil
	})
	got, err := b.Recv()
	if err != nil {
		t.Fatalf("B Recv: %v", err)
	}
	g.Wait()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Packet (-want, +got):\n%s", diff)
	}

	big := &chainrpc.Packet{Type: 200, Payload: make([]byte, chainrpc.MaxPayloadSize+1)}
	if err := a.Send(big); err == nil {
		t.Error("Send oversize packet: got nil, want error")
	}

	a.Close()
	b.Close()
	if pkt, err := b.Recv(); err == nil {
		t.Errorf("Recv after close: got %+v", pkt)
	}
}
