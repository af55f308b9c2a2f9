// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package packet provides support for encoding and decoding the primitive
// values of the Fibre wire format.
//
// All fixed-width integers are little-endian. Variable-length strings are
// framed by a 4-byte little-endian length prefix.
package packet

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/creachadair/mds/value"
)

// A Builder is a buffer that accumulates encoded values. The zero value is
// ready for use as an empty builder.
type Builder struct {
	buf []byte
}

// Bool32 appends a Boolean to b. The encoding is a 4-byte little-endian value
// 0 or 1.
func (b *Builder) Bool32(ok bool) { b.Uint32(value.Cond[uint32](ok, 1, 0)) }

// Put appends the specified bytes to b in order.
func (b *Builder) Put(vs ...byte) { b.buf = append(b.buf, vs...) }

// PutString appends the specified string to b without framing.
func (b *Builder) PutString(s string) { b.buf = append(b.buf, s...) }

// LPut appends a length-prefixed byte string to b. The length is encoded as a
// little-endian uint32. It panics if len(vs) does not fit in a uint32.
func (b *Builder) LPut(vs []byte) {
	b.Grow(LLen(len(vs)))
	b.Uint32(checkLen(len(vs)))
	b.buf = append(b.buf, vs...)
}

// LPutString appends a length-prefixed string to b. The length is encoded as a
// little-endian uint32. It panics if len(s) does not fit in a uint32.
func (b *Builder) LPutString(s string) {
	b.Grow(LLen(len(s)))
	b.Uint32(checkLen(len(s)))
	b.buf = append(b.buf, s...)
}

func checkLen(n int) uint32 {
	if uint64(n) > math.MaxUint32 {
		panic(fmt.Sprintf("length %d exceeds uint32", n))
	}
	return uint32(n)
}

// Uint8 appends v to b.
func (b *Builder) Uint8(v uint8) { b.buf = append(b.buf, v) }

// Uint16 appends v to b in little-endian order.
func (b *Builder) Uint16(v uint16) { b.buf = binary.LittleEndian.AppendUint16(b.buf, v) }

// Uint32 appends v to b in little-endian order.
func (b *Builder) Uint32(v uint32) { b.buf = binary.LittleEndian.AppendUint32(b.buf, v) }

// Uint64 appends v to b in little-endian order.
func (b *Builder) Uint64(v uint64) { b.buf = binary.LittleEndian.AppendUint64(b.buf, v) }

// Len reports the number of bytes currently in the buffer.
func (b *Builder) Len() int { return len(b.buf) }

// Bytes reports the current contents of the buffer. The builder retains ownership
// of the reported slice, and the caller must not retain or modify its contents
// unless b will no longer be accessed.
func (b *Builder) Bytes() []byte { return b.buf }

// Reset discards the contents of b and leaves it empty.
func (b *Builder) Reset() { b.buf = b.buf[:0] }

// Grow resizes the internal buffer of b if necessary to ensure that at least n
// more bytes can be added without triggering another allocation.
func (b *Builder) Grow(n int) {
	want := len(b.buf) + n
	if cap(b.buf) < want {
		r := make([]byte, len(b.buf), max(want, 2*cap(b.buf)))
		copy(r, b.buf)
		b.buf = r
	}
}

// LLen reports the encoded size in bytes of a length-prefixed encoding of an
// n-byte string.
func LLen(n int) int { return 4 + n }

// A Scanner reads encoded values from the contents of a buffer.
// The methods of a scanner report errors wrapping [io.ErrUnexpectedEOF] when
// the input ends before a value is complete.
type Scanner struct {
	rest   []byte
	offset int
}

// NewScanner constructs a [Scanner] that consumes data from input.
// The scanner does not modify the contents of input, but retain slices
// into it, so the caller should ensure it is not modified while the scanner
// is in use.
func NewScanner[Str ~string | ~[]byte](input Str) *Scanner {
	return &Scanner{rest: []byte(input)}
}

// take consumes n bytes from the head of the input.
func (s *Scanner) take(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid length %d", n)
	} else if len(s.rest) < n {
		return nil, fmt.Errorf("value truncated (%d < %d bytes): %w", len(s.rest), n, io.ErrUnexpectedEOF)
	}
	out := s.rest[:n]
	s.rest = s.rest[n:]
	s.offset += n
	return out, nil
}

// Uint8 scans a single byte from the head of the input.
func (s *Scanner) Uint8() (uint8, error) {
	b, err := s.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint16 parses a little-endian uint16 value from the head of the input.
func (s *Scanner) Uint16() (uint16, error) {
	b, err := s.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Uint32 parses a little-endian uint32 value from the head of the input.
func (s *Scanner) Uint32() (uint32, error) {
	b, err := s.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Uint64 parses a little-endian uint64 value from the head of the input.
func (s *Scanner) Uint64() (uint64, error) {
	b, err := s.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Len reports the number of remaining unconsumed input bytes in s.
func (s *Scanner) Len() int { return len(s.rest) }

// Offset reports the offset (0-based) of the next unconsumed input byte in s.
func (s *Scanner) Offset() int { return s.offset }

// Rest returns a slice of the remaining unconsumed input of s.
// The reported slice is only valid until the next call to a method of s,
// and the caller must not modify its contents.
func (s *Scanner) Rest() []byte { return s.rest }

// LGet parses a single length-prefixed string from the head of s.
// The length must be encoded as a little-endian uint32.
// When the result is a slice, the value aliases the input, and the caller must
// not modify its contents.
//
// If the input is truncated, s is left at the position following the length
// prefix; callers that need to retry should scan from a fresh Scanner.
func LGet[Str ~string | ~[]byte](s *Scanner) (out Str, err error) {
	n, err := s.Uint32()
	if err != nil {
		return out, err
	}
	b, err := s.take(int(n))
	if err != nil {
		return out, err
	}
	return Str(b), nil
}

// Get returns a string of exactly n bytes from the head of the input.
// When the result is a slice, the value aliases the input, and the caller must
// not modify its contents.
func Get[Str ~string | ~[]byte](s *Scanner, n int) (Str, error) {
	b, err := s.take(n)
	if err != nil {
		return Str(s.rest), err
	}
	return Str(b), nil
}
