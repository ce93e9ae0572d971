// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package dispatch

import (
	"context"
	"fmt"
	"regexp"

	"github.com/gamefleet/chainrpc/chain"
	"github.com/gamefleet/chainrpc/validate"
	"github.com/gamefleet/chainrpc/value"
)

// A Func is the closure that invokes a method. The recv is the receiver the
// target was bound to (nil for static methods of an unbound type). The args
// have already been checked against the declared parameter kinds of the
// method.
type Func func(ctx context.Context, recv any, args []value.Value) (Result, error)

// Result is the outcome of a successful method call. Exactly one of Value or
// Target is meaningful, according to the Returns of the method.
type Result struct {
	Value  value.Value
	Target Target
}

// A Target is a receiver bound to the method table of its type.
type Target struct {
	Type *Type
	Recv any
}

// IsNil reports whether t does not refer to a usable target.
func (t Target) IsNil() bool { return t.Type == nil }

// Method describes an exposed method of a type.
type Method struct {
	Name    string
	Static  bool
	Returns chain.Returns
	Params  []value.Kind // a nil slice accepts any arguments
	Result  string       // for Returns == Ref, the name of the yielded type
	Call    Func
}

// Yields sets the result type name of m to the name of t and returns m. The
// return kind of m is set to chain.Ref.
func (m Method) Yields(t *Type) Method {
	m.Returns = chain.Ref
	m.Result = t.name
	return m
}

// A Type is the method table of a call target type. Methods are declared with
// [Type.Method] and [Type.Static]; a method is exposed unless the exposure
// policy set by [Type.Expose] filters it out.
//
// A Type should be fully populated before it is used to dispatch calls; its
// methods are not safe for concurrent use with Dispatch.
type Type struct {
	name          string
	exclude       string
	excludeRE     *regexp.Regexp
	includeStatic bool

	decls   []*Method          // all declarations in order
	exposed map[string]*Method // exposed methods by name
}

// NewType constructs a new empty method table for the named type. By default
// all instance methods are exposed, and no static methods are.
func NewType(name string) *Type {
	return &Type{name: name, exposed: make(map[string]*Method)}
}

// Name reports the type name of t.
func (t *Type) Name() string { return t.name }

// Expose sets the exposure policy of t. If exclude != "", methods whose whole
// name matches it are not exposed. Static methods are exposed only if
// includeStatic is true. It panics if exclude is not a valid regexp.
func (t *Type) Expose(exclude string, includeStatic bool) *Type {
	t.exclude, t.excludeRE, t.includeStatic = exclude, nil, includeStatic
	if exclude != "" {
		t.excludeRE = regexp.MustCompile(`^(?:` + exclude + `)$`)
	}
	t.reindex()
	return t
}

// Method declares an instance method of t with the given name.
func (t *Type) Method(name string, m Method) *Type {
	m.Name, m.Static = name, false
	return t.declare(m)
}

// Static declares a static method of t with the given name.
func (t *Type) Static(name string, m Method) *Type {
	m.Name, m.Static = name, true
	return t.declare(m)
}

func (t *Type) declare(m Method) *Type {
	if m.Call == nil {
		panic(fmt.Sprintf("dispatch: nil Call for %s.%s", t.name, m.Name))
	}
	m.Params = append([]value.Kind(nil), m.Params...)
	t.decls = append(t.decls, &m)
	t.reindex()
	return t
}

// reindex rebuilds the exposed method index. When exposed names collide, the
// first declaration wins; Check reports such collisions.
func (t *Type) reindex() {
	clear(t.exposed)
	for _, m := range t.decls {
		if !validate.Exposed(validate.Member{Name: m.Name, Static: m.Static}, t.includeStatic, t.excludeRE) {
			continue
		}
		if _, ok := t.exposed[m.Name]; !ok {
			t.exposed[m.Name] = m
		}
	}
}

// Lookup returns the exposed method of t with the given name, or nil if there
// is none. A static lookup finds only static methods, and vice versa.
func (t *Type) Lookup(name string, static bool) *Method {
	m := t.exposed[name]
	if m == nil || m.Static != static {
		return nil
	}
	return m
}

// Bind returns a target that dispatches calls to recv through t.
func (t *Type) Bind(recv any) Target { return Target{Type: t, Recv: recv} }

// Methods returns copies of the exposed methods of t in declaration order.
func (t *Type) Methods() []Method {
	var out []Method
	for _, m := range t.decls {
		if t.exposed[m.Name] == m {
			out = append(out, *m)
		}
	}
	return out
}

// Surface reports the exposure spec of t and all its declared members, for
// use with a validate.Collector.
func (t *Type) Surface() (validate.Spec, []validate.Member) {
	spec := validate.Spec{TypeName: t.name, ExcludePattern: t.exclude, IncludeStatic: t.includeStatic}
	members := make([]validate.Member, len(t.decls))
	for i, m := range t.decls {
		members[i] = validate.Member{Name: m.Name, Static: m.Static}
	}
	return spec, members
}

// Check reports a *validate.DuplicateMethodNameError if any of the given
// types exposes two methods with the same name. A deployment should call
// Check over all its types in a test.
func Check(types ...*Type) error {
	var c validate.Collector
	for _, t := range types {
		spec, members := t.Surface()
		if err := c.Add(spec, members...); err != nil {
			return err
		}
	}
	return c.Check()
}
