// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package codec

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/creachadair/fibre/packet"
)

// An ObjectTable maps wire tokens to and from live objects. How tokens are
// assigned is up to the implementation.
type ObjectTable interface {
	// Resolve returns the object associated with token, if any.
	Resolve(token uint64) (any, bool)

	// Token returns the token associated with obj, if any.
	Token(obj any) (uint64, bool)
}

// ObjectRef returns a codec for references to objects of type T, which are
// encoded as fixed 8-byte tokens resolved by table. The name of the codec is
// the name of the object type as it is known to remote peers.
//
// Decoding a token that does not resolve, or that resolves to an object whose
// type is not T, reports [ErrUnknownObject]. Encoding an object that has no
// token in table reports an error.
func ObjectRef[T any](name string, table ObjectTable) Codec {
	return objectRef[T]{name: name, table: table}
}

type objectRef[T any] struct {
	name  string
	table ObjectTable
}

func (o objectRef[T]) Name() string       { return o.name }
func (o objectRef[T]) Type() reflect.Type { return reflect.TypeFor[T]() }

func (o objectRef[T]) Decode(s *packet.Scanner) (any, error) {
	tok, err := s.Uint64()
	if err != nil {
		return nil, err
	}
	obj, ok := o.table.Resolve(tok)
	if !ok {
		return nil, fmt.Errorf("%w: token %d", ErrUnknownObject, tok)
	}
	v, ok := obj.(T)
	if !ok {
		return nil, fmt.Errorf("%w: token %d has type %T", ErrUnknownObject, tok, obj)
	}
	return v, nil
}

func (o objectRef[T]) Append(b *packet.Builder, v any) error {
	if _, ok := v.(T); !ok {
		return badValue(o, v)
	}
	tok, ok := o.table.Token(v)
	if !ok {
		return fmt.Errorf("%s: object %v has no token", o.name, v)
	}
	b.Uint64(tok)
	return nil
}

// Objects is a simple [ObjectTable] that assigns sequential tokens to objects
// as they are added. Objects must be comparable. The zero value is ready for
// use. An *Objects is safe for concurrent use by multiple goroutines.
type Objects struct {
	μ      sync.Mutex
	next   uint64
	byTok  map[uint64]any
	tokFor map[any]uint64
}

// Add adds obj to the table if it is not already present, and returns its
// token. Tokens are positive; 0 is never assigned.
func (o *Objects) Add(obj any) uint64 {
	o.μ.Lock()
	defer o.μ.Unlock()
	if tok, ok := o.tokFor[obj]; ok {
		return tok
	}
	if o.byTok == nil {
		o.byTok = make(map[uint64]any)
		o.tokFor = make(map[any]uint64)
	}
	o.next++
	o.byTok[o.next] = obj
	o.tokFor[obj] = o.next
	return o.next
}

// Remove removes obj from the table, and reports whether it was present.
func (o *Objects) Remove(obj any) bool {
	o.μ.Lock()
	defer o.μ.Unlock()
	tok, ok := o.tokFor[obj]
	if ok {
		delete(o.tokFor, obj)
		delete(o.byTok, tok)
	}
	return ok
}

// Resolve implements a method of the [ObjectTable] interface.
func (o *Objects) Resolve(token uint64) (any, bool) {
	o.μ.Lock()
	defer o.μ.Unlock()
	obj, ok := o.byTok[token]
	return obj, ok
}

// Token implements a method of the [ObjectTable] interface.
func (o *Objects) Token(obj any) (uint64, bool) {
	o.μ.Lock()
	defer o.μ.Unlock()
	tok, ok := o.tokFor[obj]
	return tok, ok
}
