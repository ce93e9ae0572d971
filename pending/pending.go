// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package pending implements the caller-side table of outstanding calls.
//
// A [Tracker] assigns each call a unique correlation ID and a one-shot
// completion cell. Exactly one of completion, failure, cancellation, or
// deadline expiry settles a call; the cell ignores every later attempt, and
// the call is removed from the table when it settles. A response that arrives
// after its call has been removed is dropped.
package pending

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gamefleet/chainrpc/fault"
	"github.com/google/uuid"
)

// ErrClosed is reported by Add after the tracker has been closed.
var ErrClosed = errors.New("tracker is closed")

// A Tracker is a concurrent table of pending calls with results of type T.
// A zero Tracker is ready for use.
type Tracker[T any] struct {
	μ      sync.Mutex
	calls  map[uuid.UUID]*Call[T]
	closed error
}

// Add registers a new pending call. If deadline is not zero, the call fails
// with a *fault.TimeoutError if it has not otherwise settled by then.
func (t *Tracker[T]) Add(deadline time.Time) (*Call[T], error) {
	c := &Call[T]{id: uuid.New(), deadline: deadline, done: make(chan struct{}), t: t}

	t.μ.Lock()
	defer t.μ.Unlock()
	if t.closed != nil {
		return nil, t.closed
	}
	if t.calls == nil {
		t.calls = make(map[uuid.UUID]*Call[T])
	}
	for t.calls[c.id] != nil {
		c.id = uuid.New()
	}
	t.calls[c.id] = c
	if !deadline.IsZero() {
		c.timer = time.AfterFunc(time.Until(deadline), func() {
			c.settle(outcome[T]{err: &fault.TimeoutError{Deadline: deadline}})
		})
	}
	return c, nil
}

// Complete settles the call with the given ID successfully with v. It reports
// false if there is no such pending call, for example because it already
// timed out; the result is then dropped.
func (t *Tracker[T]) Complete(id uuid.UUID, v T) bool {
	if c := t.take(id); c != nil {
		return c.settle(outcome[T]{value: v})
	}
	return false
}

// Fail settles the call with the given ID with err. It reports false if there
// is no such pending call.
func (t *Tracker[T]) Fail(id uuid.UUID, err error) bool {
	if c := t.take(id); c != nil {
		return c.settle(outcome[T]{err: err})
	}
	return false
}

// Cancel settles the call with the given ID with context.Canceled. It
// reports false if there is no such pending call.
func (t *Tracker[T]) Cancel(id uuid.UUID) bool { return t.Fail(id, context.Canceled) }

// Len reports the number of pending calls.
func (t *Tracker[T]) Len() int {
	t.μ.Lock()
	defer t.μ.Unlock()
	return len(t.calls)
}

// Close fails all pending calls with err, and causes subsequent calls to Add
// to report err. If err == nil, ErrClosed is used. Close is idempotent; only
// the first error is kept.
func (t *Tracker[T]) Close(err error) {
	if err == nil {
		err = ErrClosed
	}
	t.μ.Lock()
	if t.closed == nil {
		t.closed = err
	}
	calls := t.calls
	t.calls = nil
	t.μ.Unlock()

	for _, c := range calls {
		c.settle(outcome[T]{err: err})
	}
}

// take removes and returns the call with the given ID, or nil.
func (t *Tracker[T]) take(id uuid.UUID) *Call[T] {
	t.μ.Lock()
	defer t.μ.Unlock()
	c := t.calls[id]
	delete(t.calls, id)
	return c
}

// remove removes c from the table if it is still present.
func (t *Tracker[T]) remove(c *Call[T]) {
	t.μ.Lock()
	defer t.μ.Unlock()
	if t.calls[c.id] == c {
		delete(t.calls, c.id)
	}
}

type outcome[T any] struct {
	value T
	err   error
}

// A Call is a pending call with a result of type T.
type Call[T any] struct {
	id       uuid.UUID
	deadline time.Time
	t        *Tracker[T]
	timer    *time.Timer

	set    atomic.Bool
	result outcome[T]
	done   chan struct{}
}

// ID reports the correlation ID of c.
func (c *Call[T]) ID() uuid.UUID { return c.id }

// Deadline reports the deadline of c, or the zero time if it has none.
func (c *Call[T]) Deadline() time.Time { return c.deadline }

// Done returns a channel that is closed when c has settled.
func (c *Call[T]) Done() <-chan struct{} { return c.done }

// Wait blocks until c settles or ctx ends, and reports its result.
//
// If ctx ends first, the call is cancelled: Wait reports a
// *fault.TimeoutError if ctx passed its deadline, and otherwise the error
// from ctx. Cancellation does not retract a request already delivered.
func (c *Call[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-c.done:
	case <-ctx.Done():
		var err error = ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			dl, _ := ctx.Deadline()
			err = &fault.TimeoutError{Deadline: dl}
		}
		c.t.remove(c)
		c.settle(outcome[T]{err: err})
		<-c.done
	}
	return c.result.value, c.result.err
}

// Cancel settles c with context.Canceled if it has not already settled.
func (c *Call[T]) Cancel() {
	c.t.remove(c)
	c.settle(outcome[T]{err: context.Canceled})
}

// settle records o as the result of c if c is not already settled, and
// reports whether it did so.
func (c *Call[T]) settle(o outcome[T]) bool {
	if !c.set.CompareAndSwap(false, true) {
		return false
	}
	c.t.remove(c) // also orders this after Add has set the timer
	if c.timer != nil {
		c.timer.Stop()
	}
	c.result = o
	close(c.done)
	return true
}
