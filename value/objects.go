// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package value

import (
	"encoding"
	"encoding/json"
	"fmt"
)

// Marshaler is the constraint satisfied by a pointer to T that supports either
// binary or text marshaling. Which interface is used is decided at run time;
// binary is preferred when both are present.
type Marshaler[T any] interface {
	*T
}

// MarshalCodec returns an [ObjectCodec] for values of type T whose pointer
// implements encoding.BinaryUnmarshaler or encoding.TextUnmarshaler, and
// whose value or pointer implements the corresponding marshaler. Decoded
// objects have type *T. Encoding accepts either T or *T.
func MarshalCodec[T any, P Marshaler[T]]() ObjectCodec { return marshalCodec[T, P]{} }

type marshalCodec[T any, P Marshaler[T]] struct{}

func (marshalCodec[T, P]) EncodeObject(obj any) ([]byte, error) {
	switch t := obj.(type) {
	case P:
		if t == nil {
			return nil, fmt.Errorf("nil %T", obj)
		}
		return marshal(t)
	case T:
		return marshal(P(&t))
	default:
		return nil, fmt.Errorf("cannot encode %T as %T", obj, P(nil))
	}
}

func (marshalCodec[T, P]) DecodeObject(data []byte) (any, error) {
	p := P(new(T))
	if err := unmarshal(data, p); err != nil {
		return nil, err
	}
	return p, nil
}

// unmarshal decodes data into v. The concrete type of v must implement either
// the encoding.BinaryUnmarshaler interface or the encoding.TextUnmarshaler
// interface. If v implements both, BinaryUnmarshaler is preferred.
func unmarshal(data []byte, v any) error {
	switch t := v.(type) {
	case encoding.BinaryUnmarshaler:
		return t.UnmarshalBinary(data)
	case encoding.TextUnmarshaler:
		return t.UnmarshalText(data)
	default:
		return fmt.Errorf("cannot unmarshal into %T", v)
	}
}

// marshal encodes v, which must implement either encoding.BinaryMarshaler or
// encoding.TextMarshaler.
func marshal(v any) ([]byte, error) {
	switch t := v.(type) {
	case encoding.BinaryMarshaler:
		return t.MarshalBinary()
	case encoding.TextMarshaler:
		return t.MarshalText()
	default:
		return nil, fmt.Errorf("cannot marshal %T", v)
	}
}

// JSONCodec returns an [ObjectCodec] that encodes values of type T as JSON.
// Decoded objects have type *T. Encoding accepts either T or *T.
func JSONCodec[T any]() ObjectCodec { return jsonCodec[T]{} }

type jsonCodec[T any] struct{}

func (jsonCodec[T]) EncodeObject(obj any) ([]byte, error) {
	switch t := obj.(type) {
	case *T:
		if t == nil {
			return nil, fmt.Errorf("nil %T", obj)
		}
		return json.Marshal(t)
	case T:
		return json.Marshal(t)
	default:
		return nil, fmt.Errorf("cannot encode %T as %T", obj, (*T)(nil))
	}
}

func (jsonCodec[T]) DecodeObject(data []byte) (any, error) {
	p := new(T)
	if err := json.Unmarshal(data, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Funcs is an [ObjectCodec] built from a pair of functions.
type Funcs struct {
	Encode func(obj any) ([]byte, error)
	Decode func(data []byte) (any, error)
}

func (f Funcs) EncodeObject(obj any) ([]byte, error)   { return f.Encode(obj) }
func (f Funcs) DecodeObject(data []byte) (any, error) { return f.Decode(data) }
