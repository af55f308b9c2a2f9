// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package codec defines the value codecs of the Fibre wire format, and the
// decoder and encoder chains that compose them.
//
// A [Codec] knows how to decode one value of a single category from the head
// of a buffer and how to append the encoding of such a value to a buffer. Each
// codec has a short canonical name (for example "uint32") that identifies its
// wire representation: two codecs with the same name encode values the same
// way.
//
// # Wire Format
//
// All fixed-width integers are encoded little-endian with no length prefix.
// A Boolean is a 4-byte unsigned integer whose only valid values are 0 and 1.
// Byte strings and strings are a 4-byte unsigned length followed by that many
// bytes. An object reference is an 8-byte token resolved by an [ObjectTable].
// A variant is the length-prefixed name of its active alternative followed by
// the encoding of that alternative.
//
// # Chains
//
// A [DecoderChain] decodes a fixed, ordered list of values from an input
// stream that may arrive in pieces. An [EncoderChain] writes a fixed, ordered
// list of values to an output sink.
package codec

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/creachadair/fibre/packet"
)

// A Codec decodes and encodes values of one category.
//
// Decode must report an error wrapping [io.ErrUnexpectedEOF] if, and only if,
// the input ends before a complete value is available. Any other error means
// the input is malformed.
type Codec interface {
	// Name reports the canonical type token for the codec.
	Name() string

	// Type reports the Go type of the values produced by Decode and accepted
	// by Append.
	Type() reflect.Type

	// Decode decodes a single value from the head of s.
	Decode(s *packet.Scanner) (any, error)

	// Append appends the encoding of v to b.
	Append(b *packet.Builder, v any) error
}

var (
	// ErrInvalidBool is reported when a Boolean has an encoding other than 0 or 1.
	ErrInvalidBool = errors.New("invalid boolean value")

	// ErrUnknownObject is reported when an object reference token does not
	// resolve to a live object of the expected type.
	ErrUnknownObject = errors.New("unknown object reference")

	// ErrUnknownVariant is reported when a variant names an alternative that
	// is not one of its declared alternatives.
	ErrUnknownVariant = errors.New("unknown variant alternative")

	// ErrIncomplete is reported when the values of a chain are requested
	// before every element has been decoded.
	ErrIncomplete = errors.New("decoding incomplete")
)

// DecodeError is the concrete type of errors reported when input values
// cannot be decoded.
type DecodeError struct {
	Index int    // offset of the element in its chain
	Codec string // the name of the codec for the element
	Err   error  // the underlying error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode argument %d (%s): %v", e.Index, e.Codec, e.Err)
}

// Unwrap reports the underlying error of e.
func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError is the concrete type of errors reported when output values
// cannot be encoded or written.
type EncodeError struct {
	Index int    // offset of the element in its chain
	Codec string // the name of the codec for the element
	Err   error  // the underlying error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode value %d (%s): %v", e.Index, e.Codec, e.Err)
}

// Unwrap reports the underlying error of e.
func (e *EncodeError) Unwrap() error { return e.Err }

// A Registry maps codec names and Go types to codecs. A Registry is safe for
// concurrent use by multiple goroutines.
type Registry struct {
	μ      sync.RWMutex
	byName map[string]Codec
	byType map[reflect.Type]Codec
}

// NewRegistry constructs a registry containing the specified codecs.
// It panics if two codecs have the same name.
func NewRegistry(cs ...Codec) *Registry {
	r := &Registry{
		byName: make(map[string]Codec),
		byType: make(map[reflect.Type]Codec),
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
	return r
}

// Default is a registry containing the built-in scalar and string codecs.
var Default = NewRegistry(Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64, Bool, Bytes, String)

// Register adds c to r. It reports an error if a codec with the same name is
// already registered. If no other codec is registered for the Go type of c,
// c also becomes the codec for that type.
func (r *Registry) Register(c Codec) error {
	r.μ.Lock()
	defer r.μ.Unlock()
	name := c.Name()
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("codec %q is already registered", name)
	}
	r.byName[name] = c
	if _, ok := r.byType[c.Type()]; !ok {
		r.byType[c.Type()] = c
	}
	return nil
}

// Lookup returns the codec registered for name, if any.
func (r *Registry) Lookup(name string) (Codec, bool) {
	r.μ.RLock()
	defer r.μ.RUnlock()
	c, ok := r.byName[name]
	return c, ok
}

// ForType returns the codec registered for Go type t, if any.
func (r *Registry) ForType(t reflect.Type) (Codec, bool) {
	r.μ.RLock()
	defer r.μ.RUnlock()
	c, ok := r.byType[t]
	return c, ok
}

// Names returns the names of all codecs in r, in lexicographic order.
func (r *Registry) Names() []string {
	r.μ.RLock()
	defer r.μ.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func badValue(c Codec, v any) error {
	return fmt.Errorf("%s: cannot encode value of type %T", c.Name(), v)
}
