// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gamefleet/chainrpc/chain"
	"github.com/gamefleet/chainrpc/value"
)

// parseValue parses a JSON text into a value. Integral numbers become ints,
// other numbers become floats. JSON objects have no value equivalent.
func parseValue(s string) (value.Value, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return value.Value{}, fmt.Errorf("invalid value %q: %w", s, err)
	} else if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return value.Value{}, fmt.Errorf("extra input after value %q", s)
	}
	return jsonValue(v)
}

func jsonValue(v any) (value.Value, error) {
	switch t := v.(type) {
	case nil:
		return value.Null(), nil
	case bool:
		return value.Bool(t), nil
	case json.Number:
		if z, err := t.Int64(); err == nil {
			return value.Int(z), nil
		}
		f, err := t.Float64()
		if err != nil {
			return value.Value{}, err
		}
		return value.Float(f), nil
	case string:
		return value.String(t), nil
	case []any:
		list := make([]value.Value, len(t))
		for i, elt := range t {
			ev, err := jsonValue(elt)
			if err != nil {
				return value.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			list[i] = ev
		}
		return value.List(list...), nil
	default:
		return value.Value{}, fmt.Errorf("unsupported value of type %T", v)
	}
}

// parseLink parses one link of a chain. The first link has the form
// Class.method(args) or Class::method(args) for a static method; later links
// omit the class, with a leading "::" marking a static call. The argument
// list is a comma-separated sequence of JSON values, and may be omitted along
// with its parentheses.
func parseLink(s string, first bool) (chain.Invocation, error) {
	var in chain.Invocation
	name, args, hasArgs := strings.Cut(s, "(")
	if hasArgs {
		body, ok := strings.CutSuffix(args, ")")
		if !ok {
			return in, fmt.Errorf("link %q: missing close parenthesis", s)
		}
		list, err := parseValue("[" + body + "]")
		if err != nil {
			return in, fmt.Errorf("link %q arguments: %w", s, err)
		}
		in.Args, _ = list.AsList()
	}

	if first {
		if class, method, ok := strings.Cut(name, "::"); ok {
			in.Class, in.Method, in.Static = class, method, true
		} else if class, method, ok := strings.Cut(name, "."); ok {
			in.Class, in.Method = class, method
		} else {
			return in, fmt.Errorf("link %q: missing class name", s)
		}
		if in.Class == "" {
			return in, fmt.Errorf("link %q: empty class name", s)
		}
	} else {
		in.Method, in.Static = strings.CutPrefix(name, "::")
	}
	if in.Method == "" {
		return in, fmt.Errorf("link %q: empty method name", s)
	}
	return in, nil
}

// parseChain parses a sequence of link arguments into a chain.
func parseChain(args []string) (chain.Chain, error) {
	links := make([]chain.Invocation, len(args))
	for i, arg := range args {
		in, err := parseLink(arg, i == 0)
		if err != nil {
			return chain.Chain{}, err
		}
		links[i] = in
	}
	return chain.New(links...)
}
