// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/creachadair/fibre/packet"
)

// A DecoderChain decodes a fixed, ordered sequence of values from an input
// stream. Input may be delivered in any number of pieces by calling Feed; the
// chain retains a partially-received element between calls and resumes where
// it left off.
//
// A DecoderChain is not safe for concurrent use. Each in-flight call should
// have its own chain.
type DecoderChain struct {
	codecs  []Codec
	values  []any
	pending []byte // a prefix of the next element, not yet decodable
	nread   int64  // total bytes accepted
	err     error  // sticky failure
}

// NewDecoderChain constructs a decoder chain for the specified codecs.  A
// chain with no codecs is complete on construction.
func NewDecoderChain(codecs ...Codec) *DecoderChain {
	return &DecoderChain{codecs: codecs, values: make([]any, 0, len(codecs))}
}

// Len reports the number of elements expected by c.
func (c *DecoderChain) Len() int { return len(c.codecs) }

// Done reports whether every element of c has been decoded.
func (c *DecoderChain) Done() bool { return c.err == nil && len(c.values) == len(c.codecs) }

// Err reports the error that caused c to fail, or nil.
func (c *DecoderChain) Err() error { return c.err }

// Consumed reports the total number of input bytes accepted by c.
func (c *DecoderChain) Consumed() int64 { return c.nread }

// Feed delivers the next piece of input to c, and reports how many bytes of p
// were accepted. Feed accepts exactly as many bytes as the remaining elements
// require: if c becomes complete before the end of p, the excess is not
// accepted and the returned count is less than len(p). Once c is complete,
// Feed accepts nothing.
//
// If an element is malformed, Feed reports a *DecodeError and c fails. The
// failure is permanent, and no later elements are attempted.
func (c *DecoderChain) Feed(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	} else if c.Done() {
		return 0, nil
	}

	buf, held := p, len(c.pending)
	if held != 0 {
		buf = append(c.pending, p...)
	}
	var off int
	for len(c.values) < len(c.codecs) {
		i := len(c.values)
		s := packet.NewScanner(buf[off:])
		v, err := c.codecs[i].Decode(s)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			c.hold(buf, off, held)
			c.nread += int64(len(p))
			return len(p), nil
		} else if err != nil {
			c.err = &DecodeError{Index: i, Codec: c.codecs[i].Name(), Err: err}
			c.pending = nil
			return max(off-held, 0), c.err
		}
		c.values = append(c.values, v)
		off += s.Offset()
	}

	// Reaching here, the chain is complete. Any bytes held from before this
	// call were all consumed by the element they began.
	c.pending = nil
	c.nread += int64(off - held)
	return off - held, nil
}

// hold saves the undecoded tail of buf starting at off for the next call to Feed.
func (c *DecoderChain) hold(buf []byte, off, held int) {
	switch {
	case held == 0:
		c.pending = bytes.Clone(buf[off:]) // buf belongs to the caller
	case off == 0:
		c.pending = buf
	default:
		c.pending = append(c.pending[:0], buf[off:]...)
	}
}

// Finish reports that the input stream has ended. If c is not complete, it
// fails with a *DecodeError wrapping [io.ErrUnexpectedEOF].
func (c *DecoderChain) Finish() error {
	if c.err == nil && !c.Done() {
		i := len(c.values)
		c.err = &DecodeError{
			Index: i,
			Codec: c.codecs[i].Name(),
			Err:   fmt.Errorf("stream ended after %d bytes: %w", c.nread, io.ErrUnexpectedEOF),
		}
		c.pending = nil
	}
	return c.err
}

// Values returns the decoded values of c, in order. It reports
// [ErrIncomplete] if c is not yet complete, or the failure of c.
func (c *DecoderChain) Values() ([]any, error) {
	if c.err != nil {
		return nil, c.err
	} else if !c.Done() {
		return nil, ErrIncomplete
	}
	return c.values, nil
}

// An EncoderChain encodes a fixed, ordered sequence of values to an output
// sink. An EncoderChain has no per-call state, and is safe for concurrent use
// by multiple goroutines.
type EncoderChain struct {
	codecs []Codec
}

// NewEncoderChain constructs an encoder chain for the specified codecs.
func NewEncoderChain(codecs ...Codec) *EncoderChain { return &EncoderChain{codecs: codecs} }

// Len reports the number of values expected by c.
func (c *EncoderChain) Len() int { return len(c.codecs) }

var builderPool = sync.Pool{New: func() any { return new(packet.Builder) }}

// maxPooledBuilder is the largest buffer capacity returned to the pool.
const maxPooledBuilder = 64 << 10

// Encode encodes values to w in order, and reports the total number of bytes
// written. The values must match the codecs of c in number and type.
//
// Every value is encoded before anything is written, so a value that cannot
// be encoded leaves w untouched. Each value is then written to w in a single
// Write. If w reports an error or accepts fewer bytes than offered, Encode
// stops and reports a *EncodeError (for a short write, wrapping
// [io.ErrShortWrite]). Bytes already accepted by w are not retracted.
func (c *EncoderChain) Encode(w io.Writer, values []any) (int64, error) {
	if len(values) != len(c.codecs) {
		return 0, fmt.Errorf("encode: got %d values, want %d", len(values), len(c.codecs))
	} else if len(values) == 0 {
		return 0, nil
	}

	b := builderPool.Get().(*packet.Builder)
	defer func() {
		if cap(b.Bytes()) <= maxPooledBuilder {
			b.Reset()
			builderPool.Put(b)
		}
	}()
	b.Reset()

	ends := make([]int, len(values))
	for i, codec := range c.codecs {
		if err := codec.Append(b, values[i]); err != nil {
			return 0, &EncodeError{Index: i, Codec: codec.Name(), Err: err}
		}
		ends[i] = b.Len()
	}

	var nw int64
	var start int
	buf := b.Bytes()
	for i, end := range ends {
		chunk := buf[start:end]
		start = end
		n, err := w.Write(chunk)
		nw += int64(n)
		if err == nil && n < len(chunk) {
			err = io.ErrShortWrite
		}
		if err != nil {
			return nw, &EncodeError{Index: i, Codec: c.codecs[i].Name(), Err: err}
		}
	}
	return nw, nil
}
