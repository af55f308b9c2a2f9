// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package codec

import (
	"fmt"
	"reflect"

	"github.com/creachadair/fibre/packet"
)

// The built-in fixed-width codecs.
var (
	Int16 Codec = &fixed[int16]{
		name: "int16",
		get:  func(s *packet.Scanner) (int16, error) { v, err := s.Uint16(); return int16(v), err },
		put:  func(b *packet.Builder, v int16) { b.Uint16(uint16(v)) },
	}
	Int32 Codec = &fixed[int32]{
		name: "int32",
		get:  func(s *packet.Scanner) (int32, error) { v, err := s.Uint32(); return int32(v), err },
		put:  func(b *packet.Builder, v int32) { b.Uint32(uint32(v)) },
	}
	Int64 Codec = &fixed[int64]{
		name: "int64",
		get:  func(s *packet.Scanner) (int64, error) { v, err := s.Uint64(); return int64(v), err },
		put:  func(b *packet.Builder, v int64) { b.Uint64(uint64(v)) },
	}
	Uint8 Codec = &fixed[uint8]{
		name: "uint8",
		get:  (*packet.Scanner).Uint8,
		put:  (*packet.Builder).Uint8,
	}
	Uint16 Codec = &fixed[uint16]{
		name: "uint16",
		get:  (*packet.Scanner).Uint16,
		put:  (*packet.Builder).Uint16,
	}
	Uint32 Codec = &fixed[uint32]{
		name: "uint32",
		get:  (*packet.Scanner).Uint32,
		put:  (*packet.Builder).Uint32,
	}
	Uint64 Codec = &fixed[uint64]{
		name: "uint64",
		get:  (*packet.Scanner).Uint64,
		put:  (*packet.Builder).Uint64,
	}

	// Bool encodes a Boolean as a 4-byte value 0 or 1. Decoding any other
	// value reports [ErrInvalidBool].
	Bool Codec = &fixed[bool]{
		name: "bool",
		get:  getBool,
		put:  (*packet.Builder).Bool32,
	}
)

// fixed is a codec for a fixed-width value of type T.
type fixed[T any] struct {
	name string
	get  func(*packet.Scanner) (T, error)
	put  func(*packet.Builder, T)
}

func (f *fixed[T]) Name() string       { return f.name }
func (f *fixed[T]) Type() reflect.Type { return reflect.TypeFor[T]() }

func (f *fixed[T]) Decode(s *packet.Scanner) (any, error) {
	v, err := f.get(s)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (f *fixed[T]) Append(b *packet.Builder, v any) error {
	t, ok := v.(T)
	if !ok {
		return badValue(f, v)
	}
	f.put(b, t)
	return nil
}

func getBool(s *packet.Scanner) (bool, error) {
	v, err := s.Uint32()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: %d", ErrInvalidBool, v)
	}
}
