// Copyright (C) 2023 Michael J. Fromberger. All Rights Reserved.

// Package handler provides adapters from ordinary typed Go functions to the
// dispatch.Method type.
//
// Each adapter takes a function whose first parameters are a receiver of type
// R and a context, followed by up to three method parameters, so that method
// expressions can be adapted directly. The
// parameter kinds of the resulting Method are derived from the parameter
// types with value.KindOf, and arguments are converted with value.As.
// Results are converted with value.Of, so a result type must be a scalar,
// string, byte slice, list, value.Value, or a value.Tagger.
//
// For static methods, the receiver is nil and R receives its zero value.
//
//	lobbyType.Method("join", handler.Value1((*Lobby).Join))
package handler

import (
	"context"
	"fmt"
	"reflect"

	"github.com/gamefleet/chainrpc/chain"
	"github.com/gamefleet/chainrpc/dispatch"
	"github.com/gamefleet/chainrpc/fault"
	"github.com/gamefleet/chainrpc/value"
)

// Value0 adapts a function f that takes no parameters and returns a result
// of type O and an error.
func Value0[R, O any](f func(R, context.Context) (O, error)) dispatch.Method {
	return dispatch.Method{
		Returns: chain.Value,
		Params:  []value.Kind{},
		Call: func(ctx context.Context, recv any, args []value.Value) (dispatch.Result, error) {
			r, err := receiver[R](recv)
			if err != nil {
				return dispatch.Result{}, err
			}
			return result[O](f(r, ctx))
		},
	}
}

// Value1 adapts a function f that takes one parameter of type P1 and returns
// a result of type O and an error.
func Value1[R, P1, O any](f func(R, context.Context, P1) (O, error)) dispatch.Method {
	return dispatch.Method{
		Returns: chain.Value,
		Params:  []value.Kind{value.KindOf[P1]()},
		Call: func(ctx context.Context, recv any, args []value.Value) (dispatch.Result, error) {
			r, err := receiver[R](recv)
			if err != nil {
				return dispatch.Result{}, err
			}
			p1, err := arg[P1](args, 0)
			if err != nil {
				return dispatch.Result{}, err
			}
			return result[O](f(r, ctx, p1))
		},
	}
}

// Value2 adapts a function f that takes two parameters and returns a result
// of type O and an error.
func Value2[R, P1, P2, O any](f func(R, context.Context, P1, P2) (O, error)) dispatch.Method {
	return dispatch.Method{
		Returns: chain.Value,
		Params:  []value.Kind{value.KindOf[P1](), value.KindOf[P2]()},
		Call: func(ctx context.Context, recv any, args []value.Value) (dispatch.Result, error) {
			r, err := receiver[R](recv)
			if err != nil {
				return dispatch.Result{}, err
			}
			p1, err := arg[P1](args, 0)
			if err != nil {
				return dispatch.Result{}, err
			}
			p2, err := arg[P2](args, 1)
			if err != nil {
				return dispatch.Result{}, err
			}
			return result[O](f(r, ctx, p1, p2))
		},
	}
}

// Value3 adapts a function f that takes three parameters and returns a
// result of type O and an error.
func Value3[R, P1, P2, P3, O any](f func(R, context.Context, P1, P2, P3) (O, error)) dispatch.Method {
	return dispatch.Method{
		Returns: chain.Value,
		Params:  []value.Kind{value.KindOf[P1](), value.KindOf[P2](), value.KindOf[P3]()},
		Call: func(ctx context.Context, recv any, args []value.Value) (dispatch.Result, error) {
			r, err := receiver[R](recv)
			if err != nil {
				return dispatch.Result{}, err
			}
			p1, err := arg[P1](args, 0)
			if err != nil {
				return dispatch.Result{}, err
			}
			p2, err := arg[P2](args, 1)
			if err != nil {
				return dispatch.Result{}, err
			}
			p3, err := arg[P3](args, 2)
			if err != nil {
				return dispatch.Result{}, err
			}
			return result[O](f(r, ctx, p1, p2, p3))
		},
	}
}

// Void0 adapts a function f that takes no parameters and returns only an
// error.
func Void0[R any](f func(R, context.Context) error) dispatch.Method {
	return dispatch.Method{
		Returns: chain.Void,
		Params:  []value.Kind{},
		Call: func(ctx context.Context, recv any, args []value.Value) (dispatch.Result, error) {
			r, err := receiver[R](recv)
			if err != nil {
				return dispatch.Result{}, err
			}
			return dispatch.Result{}, f(r, ctx)
		},
	}
}

// Void1 adapts a function f that takes one parameter and returns only an
// error.
func Void1[R, P1 any](f func(R, context.Context, P1) error) dispatch.Method {
	return dispatch.Method{
		Returns: chain.Void,
		Params:  []value.Kind{value.KindOf[P1]()},
		Call: func(ctx context.Context, recv any, args []value.Value) (dispatch.Result, error) {
			r, err := receiver[R](recv)
			if err != nil {
				return dispatch.Result{}, err
			}
			p1, err := arg[P1](args, 0)
			if err != nil {
				return dispatch.Result{}, err
			}
			return dispatch.Result{}, f(r, ctx, p1)
		},
	}
}

// Void2 adapts a function f that takes two parameters and returns only an
// error.
func Void2[R, P1, P2 any](f func(R, context.Context, P1, P2) error) dispatch.Method {
	return dispatch.Method{
		Returns: chain.Void,
		Params:  []value.Kind{value.KindOf[P1](), value.KindOf[P2]()},
		Call: func(ctx context.Context, recv any, args []value.Value) (dispatch.Result, error) {
			r, err := receiver[R](recv)
			if err != nil {
				return dispatch.Result{}, err
			}
			p1, err := arg[P1](args, 0)
			if err != nil {
				return dispatch.Result{}, err
			}
			p2, err := arg[P2](args, 1)
			if err != nil {
				return dispatch.Result{}, err
			}
			return dispatch.Result{}, f(r, ctx, p1, p2)
		},
	}
}

// Ref0 adapts a function f that takes no parameters and returns an object of
// type O, to a method yielding a reference to that object bound to t.
func Ref0[R, O any](t *dispatch.Type, f func(R, context.Context) (O, error)) dispatch.Method {
	return dispatch.Method{
		Params: []value.Kind{},
		Call: func(ctx context.Context, recv any, args []value.Value) (dispatch.Result, error) {
			r, err := receiver[R](recv)
			if err != nil {
				return dispatch.Result{}, err
			}
			return ref[O](t)(f(r, ctx))
		},
	}.Yields(t)
}

// Ref1 adapts a function f that takes one parameter and returns an object of
// type O, to a method yielding a reference to that object bound to t.
func Ref1[R, P1, O any](t *dispatch.Type, f func(R, context.Context, P1) (O, error)) dispatch.Method {
	return dispatch.Method{
		Params: []value.Kind{value.KindOf[P1]()},
		Call: func(ctx context.Context, recv any, args []value.Value) (dispatch.Result, error) {
			r, err := receiver[R](recv)
			if err != nil {
				return dispatch.Result{}, err
			}
			p1, err := arg[P1](args, 0)
			if err != nil {
				return dispatch.Result{}, err
			}
			return ref[O](t)(f(r, ctx, p1))
		},
	}.Yields(t)
}

// Ref2 adapts a function f that takes two parameters and returns an object of
// type O, to a method yielding a reference to that object bound to t.
func Ref2[R, P1, P2, O any](t *dispatch.Type, f func(R, context.Context, P1, P2) (O, error)) dispatch.Method {
	return dispatch.Method{
		Params: []value.Kind{value.KindOf[P1](), value.KindOf[P2]()},
		Call: func(ctx context.Context, recv any, args []value.Value) (dispatch.Result, error) {
			r, err := receiver[R](recv)
			if err != nil {
				return dispatch.Result{}, err
			}
			p1, err := arg[P1](args, 0)
			if err != nil {
				return dispatch.Result{}, err
			}
			p2, err := arg[P2](args, 1)
			if err != nil {
				return dispatch.Result{}, err
			}
			return ref[O](t)(f(r, ctx, p1, p2))
		},
	}.Yields(t)
}

// receiver converts recv to type R. A nil receiver is the zero R.
func receiver[R any](recv any) (R, error) {
	if recv == nil {
		var zero R
		return zero, nil
	}
	r, ok := recv.(R)
	if !ok {
		return r, fmt.Errorf("receiver has type %T, want %T", recv, r)
	}
	return r, nil
}

// arg converts the ith argument to type P.
func arg[P any](args []value.Value, i int) (P, error) {
	var v value.Value
	if i < len(args) {
		v = args[i]
	}
	p, err := value.As[P](v)
	if err != nil {
		return p, fault.Decodef("argument %d", i, err)
	}
	return p, nil
}

// result converts the output of a value method.
func result[O any](o O, err error) (dispatch.Result, error) {
	if err != nil {
		return dispatch.Result{}, err
	}
	v, err := value.From(o)
	if err != nil {
		return dispatch.Result{}, fmt.Errorf("result: %w", err)
	}
	return dispatch.Result{Value: v}, nil
}

// ref returns a function that converts the output of a reference method into
// a target bound to t. A nil object yields a nil target.
func ref[O any](t *dispatch.Type) func(O, error) (dispatch.Result, error) {
	return func(o O, err error) (dispatch.Result, error) {
		if err != nil {
			return dispatch.Result{}, err
		} else if isNil(o) {
			return dispatch.Result{}, nil
		}
		return dispatch.Result{Target: t.Bind(o)}, nil
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
