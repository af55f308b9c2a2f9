// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package codec

import (
	"reflect"

	"github.com/creachadair/fibre/packet"
)

// Bytes encodes a []byte as a 4-byte length followed by the contents.
// A nil slice encodes as length 0. Decoding never aliases the input buffer,
// and a length of 0 decodes as an empty, non-nil slice.
var Bytes Codec = bytesCodec{}

// String encodes a string with the same framing as [Bytes].
var String Codec = stringCodec{}

type bytesCodec struct{}

func (bytesCodec) Name() string       { return "bytes" }
func (bytesCodec) Type() reflect.Type { return reflect.TypeFor[[]byte]() }

func (bytesCodec) Decode(s *packet.Scanner) (any, error) {
	v, err := packet.LGet[[]byte](s)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (c bytesCodec) Append(b *packet.Builder, v any) error {
	switch t := v.(type) {
	case nil:
		b.Uint32(0)
	case []byte:
		b.LPut(t)
	default:
		return badValue(c, v)
	}
	return nil
}

type stringCodec struct{}

func (stringCodec) Name() string       { return "string" }
func (stringCodec) Type() reflect.Type { return reflect.TypeFor[string]() }

func (stringCodec) Decode(s *packet.Scanner) (any, error) {
	v, err := packet.LGet[string](s)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (c stringCodec) Append(b *packet.Builder, v any) error {
	switch t := v.(type) {
	case nil:
		b.Uint32(0)
	case string:
		b.LPutString(t)
	case *string:
		if t == nil {
			b.Uint32(0)
		} else {
			b.LPutString(*t)
		}
	default:
		return badValue(c, v)
	}
	return nil
}
