// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package value implements the self-describing value encoding used for the
// arguments and results of chainrpc calls.
//
// A [Value] is a tagged union of null, Boolean, integer, floating-point,
// string, byte string, list, and object values. Scalars, strings, and lists
// are encoded directly. Objects carry a type tag, and their payload is
// produced by an [ObjectCodec] registered for that tag on a [Codec]:
//
//	value.Default.Register("player", value.MarshalCodec[Player]())
//
//	data, err := value.Encode(value.Object("player", &Player{Name: "alex"}))
//	...
//	v, err := value.Decode(data)
//
// No schema is needed to decode a value apart from the codecs for the object
// tags it contains.
package value

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Kind identifies the type of a Value.
type Kind byte

const (
	KindNull   Kind = iota // the null value
	KindBool               // true or false
	KindInt                // a signed 64-bit integer
	KindFloat              // a 64-bit IEEE 754 value
	KindString             // a string of bytes, usually UTF-8 text
	KindBytes              // an opaque byte string
	KindList               // an ordered list of values
	KindObject             // a tagged object with a registered codec

	// KindAny is not the kind of any value. It describes a parameter that
	// accepts values of every kind.
	KindAny Kind = 255
)

var kindNames = [...]string{
	KindNull:   "null",
	KindBool:   "bool",
	KindInt:    "int",
	KindFloat:  "float",
	KindString: "string",
	KindBytes:  "bytes",
	KindList:   "list",
	KindObject: "object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	} else if k == KindAny {
		return "any"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Accepts reports whether a parameter of kind k accepts a value of kind v.
// Objects and KindAny also accept null; no other kind does.
func (k Kind) Accepts(v Kind) bool {
	switch k {
	case KindAny:
		return true
	case KindObject:
		return v == KindObject || v == KindNull
	default:
		return k == v
	}
}

// A Value is an immutable encodable value. The zero Value is null.
type Value struct {
	kind Kind
	num  uint64 // bool, int, and float bits
	str  string // string, bytes, and object tags
	list []Value
	obj  any
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a Boolean value.
func Bool(b bool) Value {
	if b {
		return Value{kind: KindBool, num: 1}
	}
	return Value{kind: KindBool}
}

// Int returns an integer value.
func Int(z int64) Value { return Value{kind: KindInt, num: uint64(z)} }

// Float returns a floating-point value.
func Float(f float64) Value { return Value{kind: KindFloat, num: math.Float64bits(f)} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Bytes returns a byte string value holding a copy of data.
func Bytes(data []byte) Value { return Value{kind: KindBytes, str: string(data)} }

// List returns a list of the given values, in order.
func List(vs ...Value) Value {
	return Value{kind: KindList, list: append([]Value(nil), vs...)}
}

// Object returns an object value with the given tag. The obj is encoded by
// the codec registered for tag when the value is encoded.
func Object(tag string, obj any) Value { return Value{kind: KindObject, str: tag, obj: obj} }

// Kind reports the kind of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool reports the Boolean value of v, and whether v is a Boolean.
func (v Value) AsBool() (bool, bool) { return v.num != 0, v.kind == KindBool }

// AsInt reports the integer value of v, and whether v is an integer.
func (v Value) AsInt() (int64, bool) { return int64(v.num), v.kind == KindInt }

// AsFloat reports the floating-point value of v, and whether v is a float.
func (v Value) AsFloat() (float64, bool) { return math.Float64frombits(v.num), v.kind == KindFloat }

// AsString reports the string value of v, and whether v is a string.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// AsBytes reports a copy of the byte string value of v, and whether v is a
// byte string.
func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return []byte(v.str), true
}

// Len reports the number of elements of a list, or 0 for other kinds.
func (v Value) Len() int { return len(v.list) }

// Index returns the ith element of a list. It panics if v is not a list or
// if i is out of range.
func (v Value) Index(i int) Value {
	if v.kind != KindList {
		panic(fmt.Sprintf("Index of %v value", v.kind))
	}
	return v.list[i]
}

// AsList reports a copy of the elements of v, and whether v is a list.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return append([]Value(nil), v.list...), true
}

// Tag reports the type tag of an object value, or "" for other kinds.
func (v Value) Tag() string {
	if v.kind != KindObject {
		return ""
	}
	return v.str
}

// AsObject reports the object held by v, and whether v is an object.
func (v Value) AsObject() (any, bool) { return v.obj, v.kind == KindObject }

// Interface returns the natural Go representation of v: nil, bool, int64,
// float64, string, []byte, []Value, or the object.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.num != 0
	case KindInt:
		return int64(v.num)
	case KindFloat:
		return math.Float64frombits(v.num)
	case KindString:
		return v.str
	case KindBytes:
		return []byte(v.str)
	case KindList:
		return append([]Value(nil), v.list...)
	case KindObject:
		return v.obj
	default:
		return nil
	}
}

// Equal reports whether v and w are the same value. Floats are compared by
// their bits, so NaN equals itself. Objects are equal if their tags match and
// their objects are deeply equal.
func (v Value) Equal(w Value) bool {
	if v.kind != w.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool, KindInt, KindFloat:
		return v.num == w.num
	case KindString, KindBytes:
		return v.str == w.str
	case KindList:
		if len(v.list) != len(w.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(w.list[i]) {
				return false
			}
		}
		return true
	case KindObject:
		return v.str == w.str && reflect.DeepEqual(v.obj, w.obj)
	}
	return false
}

// String returns a human-friendly rendering of v.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.num != 0)
	case KindInt:
		return strconv.FormatInt(int64(v.num), 10)
	case KindFloat:
		return strconv.FormatFloat(math.Float64frombits(v.num), 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.str)
	case KindBytes:
		return fmt.Sprintf("bytes(%x)", v.str)
	case KindList:
		ss := make([]string, len(v.list))
		for i, elt := range v.list {
			ss[i] = elt.String()
		}
		return "[" + strings.Join(ss, ", ") + "]"
	case KindObject:
		return fmt.Sprintf("%s(%v)", v.str, v.obj)
	}
	return v.kind.String()
}
