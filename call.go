// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package fibre

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/creachadair/fibre/codec"
)

// Incoming is the interface to a per-call decoding context. An endpoint
// installs a decoder chain when a call begins, and later retrieves the same
// chain once the transport has fed it every input.
type Incoming interface {
	// Install sets the decoder chain for the call.
	Install(*codec.DecoderChain)

	// Chain returns the decoder chain installed for the call, or nil.
	Chain() *codec.DecoderChain
}

// A DecodeContext is an [Incoming] that tracks the input state of a single
// call. The zero value is ready for use. A DecodeContext is owned by one call
// and is not safe for concurrent use.
type DecodeContext struct {
	chain *codec.DecoderChain
}

// Install implements a method of the [Incoming] interface.
func (d *DecodeContext) Install(c *codec.DecoderChain) { d.chain = c }

// Chain implements a method of the [Incoming] interface.
func (d *DecodeContext) Chain() *codec.DecoderChain { return d.chain }

// Feed delivers the next piece of input to the installed chain, and reports
// how many bytes of p were accepted.
func (d *DecodeContext) Feed(p []byte) (int, error) {
	if d.chain == nil {
		return 0, errNotOpen
	}
	return d.chain.Feed(p)
}

// Discard drops the installed chain and any partial input it holds.
func (d *DecodeContext) Discard() { d.chain = nil }

// An EncodeContext tracks the output written by a single call to a sink.
// It implements io.Writer.
type EncodeContext struct {
	w io.Writer
	n int64
}

// NewEncodeContext constructs an encode context that writes to w.
func NewEncodeContext(w io.Writer) *EncodeContext { return &EncodeContext{w: w} }

// Write forwards p to the underlying sink, and records the number of bytes
// the sink accepted.
func (e *EncodeContext) Write(p []byte) (int, error) {
	n, err := e.w.Write(p)
	e.n += int64(n)
	return n, err
}

// Written reports the total number of bytes accepted by the sink.
func (e *EncodeContext) Written() int64 { return e.n }

// State is the state of an in-flight [Call].
type State byte

const (
	AwaitingInput  State = iota // waiting for more input bytes
	InputsComplete              // every input is decoded
	Invoking                    // the function is running
	OutputsReady                // the function has returned
	Encoding                    // results are being written
	Done                        // results were written successfully

	DecodeFailed // the input was malformed or truncated
	InvokeFailed // the function reported an error
	EncodeFailed // a result could not be encoded or written
	Aborted      // the call was abandoned
)

var stateName = [...]string{
	AwaitingInput:  "AwaitingInput",
	InputsComplete: "InputsComplete",
	Invoking:       "Invoking",
	OutputsReady:   "OutputsReady",
	Encoding:       "Encoding",
	Done:           "Done",
	DecodeFailed:   "DecodeFailed",
	InvokeFailed:   "InvokeFailed",
	EncodeFailed:   "EncodeFailed",
	Aborted:        "Aborted",
}

func (s State) String() string {
	if int(s) < len(stateName) {
		return stateName[s]
	}
	return fmt.Sprintf("State(%d)", byte(s))
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool { return s >= Done }

// ErrAborted is reported by the methods of a [Call] after it has been aborted.
var ErrAborted = errors.New("call aborted")

// A Call is a single in-flight call to an endpoint. It owns the decoding
// state for the call's inputs and moves through the states
//
//	AwaitingInput → InputsComplete → Invoking → OutputsReady → Encoding → Done
//
// Any failure moves the call to a terminal error state, after which the
// remaining steps are skipped. The function of the endpoint is never called
// unless every input has been decoded.
//
// A Call is not safe for concurrent use.
type Call struct {
	ep    *Endpoint
	dec   DecodeContext
	state State
	err   error

	results []any // set in OutputsReady
}

// NewCall begins a new call to e.
func (e *Endpoint) NewCall() *Call {
	c := &Call{ep: e}
	e.Open(&c.dec)
	if c.dec.chain.Done() {
		c.state = InputsComplete
	}
	return c
}

// State reports the current state of c.
func (c *Call) State() State { return c.state }

// Err reports the error that caused c to fail, or nil.
func (c *Call) Err() error { return c.err }

// Endpoint returns the endpoint c calls.
func (c *Call) Endpoint() *Endpoint { return c.ep }

// Feed delivers the next piece of input to c, and reports how many bytes of p
// were accepted. Once every input has been decoded, Feed accepts no further
// bytes. If the input is malformed, c fails with a *codec.DecodeError.
func (c *Call) Feed(p []byte) (int, error) {
	switch c.state {
	case AwaitingInput:
	case InputsComplete:
		return 0, nil
	default:
		return 0, c.stateErr()
	}
	n, err := c.dec.Feed(p)
	if err != nil {
		return n, c.fail(DecodeFailed, err)
	}
	if c.dec.chain.Done() {
		c.state = InputsComplete
	}
	return n, nil
}

// CloseInput reports that no more input will arrive for c. If the inputs are
// not yet complete, c fails with a *codec.DecodeError.
func (c *Call) CloseInput() error {
	switch c.state {
	case AwaitingInput:
		return c.fail(DecodeFailed, c.dec.chain.Finish())
	case InputsComplete:
		return nil
	}
	return c.stateErr()
}

// Abort abandons c. If the function has not yet been called, it will not be.
// Abort has no effect once c has begun invoking or has finished.
func (c *Call) Abort() {
	if c.state == AwaitingInput || c.state == InputsComplete {
		c.dec.Discard()
		c.state = Aborted
		c.err = ErrAborted
	}
}

// Invoke calls the function with the decoded inputs, and holds its results
// for Encode. Invoke fails without calling the function if the inputs are
// incomplete or c has been aborted.
func (c *Call) Invoke(ctx context.Context) error {
	if c.state != InputsComplete {
		if c.state == AwaitingInput {
			return fmt.Errorf("invoke: %w", codec.ErrIncomplete)
		}
		return c.stateErr()
	}
	inputs, err := c.dec.chain.Values()
	if err != nil {
		return c.fail(DecodeFailed, err)
	}
	c.dec.Discard()

	c.state = Invoking
	results, err := c.ep.invoke(ctx, inputs)
	if err != nil {
		return c.fail(InvokeFailed, err)
	}
	c.results = results
	c.state = OutputsReady
	return nil
}

// Encode writes the results held by c to w, and reports the number of bytes
// written. The call must have been invoked successfully.
func (c *Call) Encode(w io.Writer) (int64, error) {
	if c.state != OutputsReady {
		return 0, c.stateErr()
	}
	c.state = Encoding
	ec := NewEncodeContext(w)
	_, err := c.ep.enc.Encode(ec, c.results)
	c.results = nil
	if err != nil {
		return ec.Written(), c.fail(EncodeFailed, err)
	}
	c.state = Done
	return ec.Written(), nil
}

// Finish invokes c and encodes its results to w. It is shorthand for calling
// Invoke followed by Encode.
func (c *Call) Finish(ctx context.Context, w io.Writer) (int64, error) {
	if err := c.Invoke(ctx); err != nil {
		return 0, err
	}
	return c.Encode(w)
}

func (c *Call) fail(s State, err error) error {
	c.state, c.err = s, err
	c.dec.Discard()
	return err
}

func (c *Call) stateErr() error {
	if c.err != nil {
		return c.err
	}
	return fmt.Errorf("call is %v", c.state)
}
