// Copyright (C) 2023 Michael J. Fromberger. All Rights Reserved.

package codec

import (
	"encoding"
	"fmt"
	"reflect"

	"github.com/creachadair/fibre/packet"
)

// Marshaled returns a codec with the given name for values of type T that
// know how to marshal themselves. A value is encoded with the same framing as
// [Bytes], with contents given by its marshaled form.
//
// The pointer type *T must implement encoding.BinaryMarshaler or
// encoding.TextMarshaler, and encoding.BinaryUnmarshaler or
// encoding.TextUnmarshaler. If a type implements both, the binary form is
// preferred. Marshaled panics if T does not satisfy these requirements.
func Marshaled[T any](name string) Codec {
	t := reflect.TypeFor[T]()
	pt := reflect.PointerTo(t)
	if !pt.Implements(binaryUnmarshalerType) && !pt.Implements(textUnmarshalerType) {
		panic(fmt.Sprintf("codec %q: cannot unmarshal into %v", name, pt))
	}
	if !pt.Implements(binaryMarshalerType) && !pt.Implements(textMarshalerType) {
		panic(fmt.Sprintf("codec %q: cannot marshal %v", name, t))
	}
	return marshaled[T]{name: name}
}

type marshaled[T any] struct{ name string }

func (m marshaled[T]) Name() string       { return m.name }
func (m marshaled[T]) Type() reflect.Type { return reflect.TypeFor[T]() }

func (m marshaled[T]) Decode(s *packet.Scanner) (any, error) {
	data, err := packet.LGet[[]byte](s)
	if err != nil {
		return nil, err
	}
	var v T
	if err := unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (m marshaled[T]) Append(b *packet.Builder, v any) error {
	t, ok := v.(T)
	if !ok {
		return badValue(m, v)
	}
	data, err := marshal(&t)
	if err != nil {
		return err
	}
	b.LPut(data)
	return nil
}

var (
	binaryMarshalerType   = reflect.TypeFor[encoding.BinaryMarshaler]()
	textMarshalerType     = reflect.TypeFor[encoding.TextMarshaler]()
	binaryUnmarshalerType = reflect.TypeFor[encoding.BinaryUnmarshaler]()
	textUnmarshalerType   = reflect.TypeFor[encoding.TextUnmarshaler]()
)

// unmarshal decodes data into v. If v implements both BinaryUnmarshaler and
// TextUnmarshaler, BinaryUnmarshaler is preferred.
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

// marshal encodes the value pointed to by p. The method set of the pointer
// includes methods with either receiver kind.
func marshal[T any](p *T) ([]byte, error) {
	switch t := any(p).(type) {
	case encoding.BinaryMarshaler:
		return t.MarshalBinary()
	case encoding.TextMarshaler:
		return t.MarshalText()
	}
	return nil, fmt.Errorf("cannot marshal %T", *p)
}
