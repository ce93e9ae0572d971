// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package value

import (
	"fmt"
	"math"
	"reflect"
)

// A Tagger is an object that knows its own object tag. [Of] and [From]
// convert a Tagger into an object value with that tag.
type Tagger interface {
	ValueTag() string
}

var valueType = reflect.TypeFor[Value]()

// KindOf reports the kind of value that converts to and from a Go value of
// type T. Types that are not scalars, strings, byte slices, or lists are
// objects. The interface type any and Value itself are [KindAny].
func KindOf[T any]() Kind { return kindOfType(reflect.TypeFor[T]()) }

func kindOfType(t reflect.Type) Kind {
	if t == valueType {
		return KindAny
	}
	switch t.Kind() {
	case reflect.Bool:
		return KindBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindInt
	case reflect.Float32, reflect.Float64:
		return KindFloat
	case reflect.String:
		return KindString
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return KindBytes
		} else if t.Elem() == valueType || t.Elem().Kind() == reflect.String {
			return KindList
		}
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return KindAny
		}
	}
	return KindObject
}

// As converts v to a Go value of type T. Integers convert to any integer type
// that can represent them exactly, and floats to float32 only when the value
// is exactly representable. Integers and floats never convert to each other.
// A null value converts to the zero value of an object type. When T is any,
// the result is v.Interface().
func As[T any](v Value) (out T, _ error) {
	switch p := any(&out).(type) {
	case *Value:
		*p = v
		return out, nil
	case *any:
		*p = v.Interface()
		return out, nil
	case *[]Value:
		if v.kind != KindList {
			return out, kindError(v, KindList)
		}
		*p = append([]Value(nil), v.list...)
		return out, nil
	}

	if v.kind == KindObject {
		obj, ok := v.obj.(T)
		if !ok {
			return out, fmt.Errorf("cannot convert %q object of type %T to %T", v.str, v.obj, out)
		}
		return obj, nil
	}

	rv := reflect.ValueOf(&out).Elem()
	want := kindOfType(rv.Type())
	if want == KindObject || want == KindAny {
		if v.kind == KindNull {
			return out, nil
		}
		return out, fmt.Errorf("cannot convert %v value to %T", v.kind, out)
	} else if v.kind != want {
		return out, kindError(v, want)
	}

	switch rv.Kind() {
	case reflect.Bool:
		rv.SetBool(v.num != 0)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if z := int64(v.num); rv.OverflowInt(z) {
			return out, fmt.Errorf("integer %d overflows %T", z, out)
		} else {
			rv.SetInt(z)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if z := int64(v.num); z < 0 || rv.OverflowUint(uint64(z)) {
			return out, fmt.Errorf("integer %d overflows %T", z, out)
		} else {
			rv.SetUint(uint64(z))
		}
	case reflect.Float32:
		f := math.Float64frombits(v.num)
		if float64(float32(f)) != f && !math.IsNaN(f) {
			return out, fmt.Errorf("float %v is not exact as %T", f, out)
		}
		rv.SetFloat(f)
	case reflect.Float64:
		rv.SetFloat(math.Float64frombits(v.num))
	case reflect.String:
		rv.SetString(v.str)
	case reflect.Slice:
		if want == KindBytes {
			rv.SetBytes([]byte(v.str))
			break
		}
		ss := reflect.MakeSlice(rv.Type(), len(v.list), len(v.list))
		for i, elt := range v.list {
			if rv.Type().Elem() == valueType {
				ss.Index(i).Set(reflect.ValueOf(elt))
				continue
			} else if elt.kind != KindString {
				return out, fmt.Errorf("list element %d: %w", i, kindError(elt, KindString))
			}
			ss.Index(i).SetString(elt.str)
		}
		rv.Set(ss)
	}
	return out, nil
}

func kindError(v Value, want Kind) error {
	return fmt.Errorf("got %v value, want %v", v.kind, want)
}

// From converts a Go value of type T to a Value. It is equivalent to Of(x).
func From[T any](x T) (Value, error) { return Of(x) }

// Of converts x to a Value. The nil interface is null. Scalars, strings, byte
// slices, and slices of values or strings convert directly; a [Tagger]
// becomes an object with its own tag. Other types report an error, since an
// object tag is required to encode them; use [Object] for those.
func Of(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case Tagger:
		if rv := reflect.ValueOf(t); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return Null(), nil
		}
		return Object(t.ValueTag(), t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case float64:
		return Float(t), nil
	case string:
		return String(t), nil
	case []byte:
		return Bytes(t), nil
	case []Value:
		return List(t...), nil
	}

	rv := reflect.ValueOf(x)
	switch kindOfType(rv.Type()) {
	case KindBool:
		return Bool(rv.Bool()), nil
	case KindInt:
		if rv.CanInt() {
			return Int(rv.Int()), nil
		} else if u := rv.Uint(); u <= math.MaxInt64 {
			return Int(int64(u)), nil
		}
		return Value{}, fmt.Errorf("integer %d overflows int64", rv.Uint())
	case KindFloat:
		return Float(rv.Float()), nil
	case KindString:
		return String(rv.String()), nil
	case KindBytes:
		return Bytes(rv.Bytes()), nil
	case KindList:
		list := make([]Value, rv.Len())
		for i := range list {
			if elt, ok := rv.Index(i).Interface().(Value); ok {
				list[i] = elt
			} else {
				list[i] = String(rv.Index(i).String())
			}
		}
		return Value{kind: KindList, list: list}, nil
	}
	return Value{}, fmt.Errorf("no value conversion for %T", x)
}
