// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package pending_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/creachadair/taskgroup"
	"github.com/fortytw2/leaktest"
	"github.com/gamefleet/chainrpc/fault"
	"github.com/gamefleet/chainrpc/pending"
	"github.com/google/uuid"
)

func TestComplete(t *testing.T) {
	defer leaktest.Check(t)()
	var tr pending.Tracker[string]

	c, err := tr.Add(time.Time{})
	if err != nil {
		t.Fatalf("Add: unexpected error: %v", err)
	}
	if tr.Len() != 1 {
		t.Errorf("Len: got %d, want 1", tr.Len())
	}
	if !tr.Complete(c.ID(), "ok") {
		t.Error("Complete: got false, want true")
	}
	if tr.Complete(c.ID(), "again") {
		t.Error("Complete again: got true, want false")
	}
	got, err := c.Wait(context.Background())
	if err != nil || got != "ok" {
		t.Errorf("Wait: got (%q, %v), want ok", got, err)
	}
	if tr.Len() != 0 {
		t.Errorf("Len: got %d, want 0", tr.Len())
	}
	if tr.Complete(uuid.New(), "stray") {
		t.Error("Complete unknown ID: got true, want false")
	}
}

func TestFail(t *testing.T) {
	var tr pending.Tracker[int]
	c, _ := tr.Add(time.Time{})
	boom := errors.New("boom")
	tr.Fail(c.ID(), boom)
	if _, err := c.Wait(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Wait: got %v, want %v", err, boom)
	}
}

func TestTimeout(t *testing.T) {
	defer leaktest.Check(t)()
	var tr pending.Tracker[string]

	deadline := time.Now().Add(20 * time.Millisecond)
	c, _ := tr.Add(deadline)

	start := time.Now()
	_, err := c.Wait(context.Background())
	var te *fault.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("Wait: got %v, want TimeoutError", err)
	}
	if !te.Deadline.Equal(deadline) {
		t.Errorf("Deadline: got %v, want %v", te.Deadline, deadline)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Wait blocked for %v", elapsed)
	}

	// A late response is dropped and does not change the outcome.
	if tr.Complete(c.ID(), "late") {
		t.Error("Complete after timeout: got true, want false")
	}
	if _, err := c.Wait(context.Background()); !errors.As(err, &te) {
		t.Errorf("Wait after late response: got %v, want TimeoutError", err)
	}
	if tr.Len() != 0 {
		t.Errorf("Len: got %d, want 0", tr.Len())
	}
}

func TestWaitContext(t *testing.T) {
	var tr pending.Tracker[string]

	t.Run("Deadline", func(t *testing.T) {
		c, _ := tr.Add(time.Time{})
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := c.Wait(ctx)
		var te *fault.TimeoutError
		if !errors.As(err, &te) {
			t.Errorf("Wait: got %v, want TimeoutError", err)
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Wait: got %v, want it to match %v", err, context.DeadlineExceeded)
		}
	})
	t.Run("Cancel", func(t *testing.T) {
		c, _ := tr.Add(time.Time{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := c.Wait(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Wait: got %v, want %v", err, context.Canceled)
		}
		if tr.Complete(c.ID(), "late") {
			t.Error("Complete after cancel: got true, want false")
		}
	})
	t.Run("CallCancel", func(t *testing.T) {
		c, _ := tr.Add(time.Now().Add(time.Hour))
		c.Cancel()
		if _, err := c.Wait(context.Background()); !errors.Is(err, context.Canceled) {
			t.Errorf("Wait: got %v, want %v", err, context.Canceled)
		}
	})
	if n := tr.Len(); n != 0 {
		t.Errorf("Len: got %d, want 0", n)
	}
}

func TestClose(t *testing.T) {
	var tr pending.Tracker[int]
	c1, _ := tr.Add(time.Time{})
	c2, _ := tr.Add(time.Now().Add(time.Hour))

	stop := errors.New("peer stopped")
	tr.Close(stop)
	for _, c := range []*pending.Call[int]{c1, c2} {
		if _, err := c.Wait(context.Background()); !errors.Is(err, stop) {
			t.Errorf("Wait: got %v, want %v", err, stop)
		}
	}
	if _, err := tr.Add(time.Time{}); !errors.Is(err, stop) {
		t.Errorf("Add after Close: got %v, want %v", err, stop)
	}
	tr.Close(nil) // idempotent
}

func TestConcurrent(t *testing.T) {
	defer leaktest.Check(t)()
	const numCalls = 200
	var tr pending.Tracker[string]

	calls := make([]*pending.Call[string], numCalls)
	for i := range calls {
		c, err := tr.Add(time.Now().Add(time.Minute))
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		calls[i] = c
	}

	// Complete the calls in a random order from separate goroutines, while
	// others wait for them.
	order := rand.Perm(numCalls)
	g := taskgroup.New(nil)
	for _, i := range order {
		g.Go(func() error {
			if !tr.Complete(calls[i].ID(), fmt.Sprint(i)) {
				return fmt.Errorf("call %d was not pending", i)
			}
			return nil
		})
	}
	for i, c := range calls {
		g.Go(func() error {
			got, err := c.Wait(context.Background())
			if err != nil {
				return err
			} else if want := fmt.Sprint(i); got != want {
				return fmt.Errorf("call %d: got result %q, want %q", i, got, want)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if n := tr.Len(); n != 0 {
		t.Errorf("Len: got %d, want 0", n)
	}
}
