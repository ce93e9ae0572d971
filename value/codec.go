// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package value

import (
	"fmt"
	"sync"

	"github.com/gamefleet/chainrpc/fault"
	"github.com/gamefleet/chainrpc/packet"
)

// Wire tags for encoded values.
const (
	tagNull   = 0
	tagFalse  = 1
	tagTrue   = 2
	tagInt    = 3
	tagFloat  = 4
	tagString = 5
	tagBytes  = 6
	tagList   = 7
	tagObject = 8
)

// MaxDepth is the maximum nesting depth of lists accepted by a decoder.
const MaxDepth = 64

// An ObjectCodec converts the objects carried by object values for one type
// tag to and from their binary payload.
type ObjectCodec interface {
	EncodeObject(obj any) ([]byte, error)
	DecodeObject(data []byte) (any, error)
}

// A Codec encodes and decodes values. It holds the object codecs for the tags
// it knows. A zero Codec is ready for use and knows no object tags. A Codec is
// safe for concurrent use by multiple goroutines.
type Codec struct {
	μ       sync.RWMutex
	objects map[string]ObjectCodec
}

// Default is the process-wide codec used by the package-level functions.
var Default = new(Codec)

// Encode encodes v using the Default codec.
func Encode(v Value) ([]byte, error) { return Default.Encode(v) }

// Decode decodes data using the Default codec.
func Decode(data []byte) (Value, error) { return Default.Decode(data) }

// Register adds an object codec for tag to c. It reports an error if tag is
// empty or already has a codec.
func (c *Codec) Register(tag string, oc ObjectCodec) error {
	if tag == "" {
		return fmt.Errorf("empty object tag")
	} else if oc == nil {
		return fmt.Errorf("nil codec for object tag %q", tag)
	}
	c.μ.Lock()
	defer c.μ.Unlock()
	if _, ok := c.objects[tag]; ok {
		return fmt.Errorf("object tag %q is already registered", tag)
	}
	if c.objects == nil {
		c.objects = make(map[string]ObjectCodec)
	}
	c.objects[tag] = oc
	return nil
}

// Unregister removes the codec for tag, if any.
func (c *Codec) Unregister(tag string) {
	c.μ.Lock()
	defer c.μ.Unlock()
	delete(c.objects, tag)
}

func (c *Codec) object(tag string) (ObjectCodec, error) {
	c.μ.RLock()
	defer c.μ.RUnlock()
	oc, ok := c.objects[tag]
	if !ok {
		return nil, fault.Decodef("no codec for object tag %q", tag)
	}
	return oc, nil
}

// Encode encodes v in binary format.
func (c *Codec) Encode(v Value) ([]byte, error) {
	var b packet.Builder
	if err := c.Append(&b, v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Append appends the binary encoding of v to b. In case of error, the
// contents of b are unspecified.
func (c *Codec) Append(b *packet.Builder, v Value) error {
	switch v.kind {
	case KindNull:
		b.Put(tagNull)
	case KindBool:
		if v.num != 0 {
			b.Put(tagTrue)
		} else {
			b.Put(tagFalse)
		}
	case KindInt:
		b.Put(tagInt)
		b.Varint(int64(v.num))
	case KindFloat:
		b.Put(tagFloat)
		b.Uint64(v.num)
	case KindString, KindBytes:
		if err := packet.CheckLen(len(v.str)); err != nil {
			return fault.Decodef("%v value", v.kind, err)
		}
		b.Put(byte(tagString + v.kind - KindString))
		b.VPutString(v.str)
	case KindList:
		if err := packet.CheckLen(len(v.list)); err != nil {
			return fault.Decodef("list value", err)
		}
		b.Put(tagList)
		b.Vint30(uint32(len(v.list)))
		for i, elt := range v.list {
			if err := c.Append(b, elt); err != nil {
				return fmt.Errorf("list element %d: %w", i, err)
			}
		}
	case KindObject:
		oc, err := c.object(v.str)
		if err != nil {
			return err
		}
		data, err := encodeObject(oc, v.obj)
		if err != nil {
			return fault.Decodef("encoding %q object", v.str, err)
		} else if err := packet.CheckLen(len(data)); err != nil {
			return fault.Decodef("%q object", v.str, err)
		}
		b.Put(tagObject)
		b.VPutString(v.str)
		b.VPut(data)
	default:
		return fault.Decodef("invalid value kind %v", v.kind)
	}
	return nil
}

// Decode decodes a single value from data. The whole input must be consumed.
func (c *Codec) Decode(data []byte) (Value, error) {
	s := packet.NewScanner(data)
	v, err := c.Scan(s)
	if err != nil {
		return Value{}, err
	} else if s.Len() != 0 {
		return Value{}, fault.Decodef("extra data after value (%d bytes)", s.Len())
	}
	return v, nil
}

// Scan decodes a single value from the head of s. Errors have concrete type
// *fault.ArgumentDecodeError.
func (c *Codec) Scan(s *packet.Scanner) (Value, error) { return c.scan(s, 0) }

func (c *Codec) scan(s *packet.Scanner, depth int) (Value, error) {
	pos := s.Offset()
	tag, err := s.Byte()
	if err != nil {
		return Value{}, fault.Decodef("value tag at offset %d", pos, err)
	}
	switch tag {
	case tagNull:
		return Null(), nil
	case tagFalse, tagTrue:
		return Bool(tag == tagTrue), nil
	case tagInt:
		z, err := s.Varint()
		if err != nil {
			return Value{}, fault.Decodef("int at offset %d", pos, err)
		}
		return Int(z), nil
	case tagFloat:
		bits, err := s.Uint64()
		if err != nil {
			return Value{}, fault.Decodef("float at offset %d", pos, err)
		}
		return Value{kind: KindFloat, num: bits}, nil
	case tagString, tagBytes:
		str, err := packet.VGet[string](s)
		if err != nil {
			return Value{}, fault.Decodef("string at offset %d", pos, err)
		}
		return Value{kind: KindString + Kind(tag-tagString), str: str}, nil
	case tagList:
		if depth >= MaxDepth {
			return Value{}, fault.Decodef("list at offset %d nested more than %d deep", pos, MaxDepth)
		}
		n, err := s.Vint30()
		if err != nil {
			return Value{}, fault.Decodef("list length at offset %d", pos, err)
		} else if n > s.Len() {
			// Each element occupies at least one byte.
			return Value{}, fault.Decodef("list at offset %d claims %d elements, %d bytes remain", pos, n, s.Len())
		}
		list := make([]Value, n)
		for i := range list {
			elt, err := c.scan(s, depth+1)
			if err != nil {
				return Value{}, err
			}
			list[i] = elt
		}
		return Value{kind: KindList, list: list}, nil
	case tagObject:
		otag, err := packet.VGet[string](s)
		if err != nil {
			return Value{}, fault.Decodef("object tag at offset %d", pos, err)
		}
		data, err := packet.VGet[[]byte](s)
		if err != nil {
			return Value{}, fault.Decodef("object payload at offset %d", pos, err)
		}
		oc, err := c.object(otag)
		if err != nil {
			return Value{}, err
		}
		obj, err := decodeObject(oc, data)
		if err != nil {
			return Value{}, fault.Decodef("decoding %q object", otag, err)
		}
		return Object(otag, obj), nil
	default:
		return Value{}, fault.Decodef("invalid value tag %d at offset %d", tag, pos)
	}
}

// encodeObject calls oc.EncodeObject, reporting a panic as an error.
func encodeObject(oc ObjectCodec, obj any) (_ []byte, err error) {
	defer func() {
		if x := recover(); x != nil {
			err = fmt.Errorf("panic: %v", x)
		}
	}()
	return oc.EncodeObject(obj)
}

// decodeObject calls oc.DecodeObject, reporting a panic as an error. Object
// payloads come from the remote peer and may be anything.
func decodeObject(oc ObjectCodec, data []byte) (_ any, err error) {
	defer func() {
		if x := recover(); x != nil {
			err = fmt.Errorf("panic: %v", x)
		}
	}()
	return oc.DecodeObject(data)
}
