// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package main

import (
	"context"
	"slices"
	"time"

	"github.com/gamefleet/chainrpc/dispatch"
	"github.com/gamefleet/chainrpc/handler"
	"github.com/gamefleet/chainrpc/value"
)

// echo is the demonstration target served by the serve command.
type echo struct{}

func (echo) echo(_ context.Context, v value.Value) (value.Value, error) { return v, nil }

func (echo) reverse(_ context.Context, s string) (string, error) {
	rs := []rune(s)
	slices.Reverse(rs)
	return string(rs), nil
}

func (echo) sleep(ctx context.Context, ms int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return nil
	}
}

func (e echo) self(context.Context) (echo, error) { return e, nil }

func echoType() *dispatch.Type {
	t := dispatch.NewType("Echo")
	return t.
		Method("echo", handler.Value1(echo.echo)).
		Method("reverse", handler.Value1(echo.reverse)).
		Method("sleep", handler.Void1(echo.sleep)).
		Method("self", handler.Ref0(t, echo.self))
}
