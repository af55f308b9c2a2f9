// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package fibre_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/creachadair/fibre"
	"github.com/creachadair/fibre/codec"
	"github.com/google/go-cmp/cmp"
)

func TestCallLifecycle(t *testing.T) {
	ctx := context.Background()
	c := fibre.MustEndpoint(moveTo, moveSig).NewCall()
	if got := c.State(); got != fibre.AwaitingInput {
		t.Fatalf("Initial state: got %v, want %v", got, fibre.AwaitingInput)
	}
	input := encodeArgs(t, moveSig, int32(6), int32(8))

	// A partial element is held.
	if n, err := c.Feed(input[:3]); err != nil || n != 3 {
		t.Fatalf("Feed: got (%d, %v), want (3, nil)", n, err)
	}
	if got := c.State(); got != fibre.AwaitingInput {
		t.Errorf("State: got %v, want %v", got, fibre.AwaitingInput)
	}

	// Excess input after the last element is not accepted.
	rest := append(input[3:], "extra"...)
	if n, err := c.Feed(rest); err != nil || n != len(input)-3 {
		t.Fatalf("Feed: got (%d, %v), want (%d, nil)", n, err, len(input)-3)
	}
	if got := c.State(); got != fibre.InputsComplete {
		t.Errorf("State: got %v, want %v", got, fibre.InputsComplete)
	}
	if n, err := c.Feed([]byte("more")); err != nil || n != 0 {
		t.Errorf("Feed after complete: got (%d, %v), want (0, nil)", n, err)
	}
	if err := c.CloseInput(); err != nil {
		t.Errorf("CloseInput: unexpected error: %v", err)
	}

	if err := c.Invoke(ctx); err != nil {
		t.Fatalf("Invoke: unexpected error: %v", err)
	}
	if got := c.State(); got != fibre.OutputsReady {
		t.Errorf("State: got %v, want %v", got, fibre.OutputsReady)
	}

	var buf bytes.Buffer
	nw, err := c.Encode(&buf)
	if err != nil {
		t.Fatalf("Encode: unexpected error: %v", err)
	}
	if nw != 8 || buf.Len() != 8 {
		t.Errorf("Encode: wrote %d bytes (buffer has %d), want 8", nw, buf.Len())
	}
	if diff := cmp.Diff([]any{true, uint32(100)}, decodeOutputs(t, moveSig, buf.Bytes())); diff != "" {
		t.Errorf("Results (-want, +got):\n%s", diff)
	}
	if got := c.State(); got != fibre.Done || !got.Terminal() {
		t.Errorf("State: got %v, want terminal %v", got, fibre.Done)
	}
	if c.Err() != nil {
		t.Errorf("Err: got %v, want nil", c.Err())
	}

	// Once done, the call does not run again, and abort has no effect.
	if err := c.Invoke(ctx); err == nil {
		t.Error("Invoke after done: got nil, want error")
	}
	c.Abort()
	if got := c.State(); got != fibre.Done {
		t.Errorf("State after abort: got %v, want %v", got, fibre.Done)
	}
}

func TestCallZeroInputs(t *testing.T) {
	sig := fibre.MustSignature("now", fibre.Ret("tick", codec.Uint64))
	c := fibre.MustEndpoint(func() uint64 { return 1729 }, sig).NewCall()
	if got := c.State(); got != fibre.InputsComplete {
		t.Fatalf("Initial state: got %v, want %v", got, fibre.InputsComplete)
	}
	var buf bytes.Buffer
	if _, err := c.Finish(context.Background(), &buf); err != nil {
		t.Fatalf("Finish: unexpected error: %v", err)
	}
	if diff := cmp.Diff([]any{uint64(1729)}, decodeOutputs(t, sig, buf.Bytes())); diff != "" {
		t.Errorf("Results (-want, +got):\n%s", diff)
	}

	// With no outputs either, nothing is written.
	pinged := false
	ping := fibre.MustEndpoint(func() { pinged = true }, fibre.MustSignature("ping")).NewCall()
	if n, err := ping.Feed(nil); err != nil || n != 0 {
		t.Errorf("Feed: got (%d, %v), want (0, nil)", n, err)
	}
	nw, err := ping.Finish(context.Background(), &buf)
	if err != nil || nw != 0 {
		t.Errorf("Finish: got (%d, %v), want (0, nil)", nw, err)
	}
	if !pinged {
		t.Error("Function was not called")
	}
}

func TestCallInterleaved(t *testing.T) {
	ep := fibre.MustEndpoint(moveTo, moveSig)
	c1, c2 := ep.NewCall(), ep.NewCall()
	in1 := encodeArgs(t, moveSig, int32(3), int32(4))
	in2 := encodeArgs(t, moveSig, int32(-5), int32(12))

	// Alternate single bytes between the two calls.
	for i := range in1 {
		if _, err := c1.Feed(in1[i : i+1]); err != nil {
			t.Fatalf("Feed c1 byte %d: %v", i, err)
		}
		if _, err := c2.Feed(in2[i : i+1]); err != nil {
			t.Fatalf("Feed c2 byte %d: %v", i, err)
		}
	}

	ctx := context.Background()
	var b1, b2 bytes.Buffer
	if _, err := c2.Finish(ctx, &b2); err != nil {
		t.Fatalf("Finish c2: %v", err)
	}
	if _, err := c1.Finish(ctx, &b1); err != nil {
		t.Fatalf("Finish c1: %v", err)
	}
	if diff := cmp.Diff([]any{true, uint32(25)}, decodeOutputs(t, moveSig, b1.Bytes())); diff != "" {
		t.Errorf("Call 1 (-want, +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{true, uint32(169)}, decodeOutputs(t, moveSig, b2.Bytes())); diff != "" {
		t.Errorf("Call 2 (-want, +got):\n%s", diff)
	}
}

func TestCallFailures(t *testing.T) {
	ctx := context.Background()

	// probe returns an endpoint for flagSig that records whether it was called.
	probe := func(err error) (*fibre.Endpoint, *bool) {
		called := new(bool)
		return fibre.MustEndpoint(func(id uint32, on bool) error {
			*called = true
			return err
		}, flagSig), called
	}

	t.Run("AbortBeforeInvoke", func(t *testing.T) {
		ep, called := probe(nil)
		c := ep.NewCall()
		c.Feed(encodeArgs(t, flagSig, uint32(1), true))
		c.Abort()

		if err := c.Invoke(ctx); !errors.Is(err, fibre.ErrAborted) {
			t.Errorf("Invoke: got %v, want %v", err, fibre.ErrAborted)
		}
		if *called {
			t.Error("Function was called after abort")
		}
		if c.State() != fibre.Aborted || !errors.Is(c.Err(), fibre.ErrAborted) {
			t.Errorf("Call: got (%v, %v), want (%v, %v)", c.State(), c.Err(), fibre.Aborted, fibre.ErrAborted)
		}
		if _, err := c.Feed([]byte{0}); !errors.Is(err, fibre.ErrAborted) {
			t.Errorf("Feed: got %v, want %v", err, fibre.ErrAborted)
		}
	})

	t.Run("InvokeIncomplete", func(t *testing.T) {
		ep, called := probe(nil)
		c := ep.NewCall()
		c.Feed([]byte{1, 0})
		if err := c.Invoke(ctx); !errors.Is(err, codec.ErrIncomplete) {
			t.Errorf("Invoke: got %v, want %v", err, codec.ErrIncomplete)
		}
		if *called {
			t.Error("Function was called with incomplete input")
		}
		// The call is still waiting for input.
		if c.State() != fibre.AwaitingInput {
			t.Errorf("State: got %v, want %v", c.State(), fibre.AwaitingInput)
		}
	})

	t.Run("CloseIncomplete", func(t *testing.T) {
		ep, called := probe(nil)
		c := ep.NewCall()
		c.Feed([]byte{1, 0, 0, 0, 1, 0})

		err := c.CloseInput()
		var de *codec.DecodeError
		if !errors.As(err, &de) || !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Fatalf("CloseInput: got %v, want *DecodeError with %v", err, io.ErrUnexpectedEOF)
		}
		if de.Index != 1 || de.Codec != "bool" {
			t.Errorf("DecodeError: got index %d codec %q, want 1 bool", de.Index, de.Codec)
		}
		if c.State() != fibre.DecodeFailed {
			t.Errorf("State: got %v, want %v", c.State(), fibre.DecodeFailed)
		}
		if _, err := c.Finish(ctx, io.Discard); err == nil {
			t.Error("Finish: got nil, want error")
		}
		if *called {
			t.Error("Function was called after decode failure")
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		ep, called := probe(nil)
		c := ep.NewCall()
		_, err := c.Feed([]byte{1, 0, 0, 0, 2, 0, 0, 0})
		if !errors.Is(err, codec.ErrInvalidBool) {
			t.Fatalf("Feed: got %v, want %v", err, codec.ErrInvalidBool)
		}
		if c.State() != fibre.DecodeFailed {
			t.Errorf("State: got %v, want %v", c.State(), fibre.DecodeFailed)
		}

		// The failure is sticky.
		if _, err := c.Feed([]byte{0}); !errors.Is(err, codec.ErrInvalidBool) {
			t.Errorf("Feed again: got %v, want %v", err, codec.ErrInvalidBool)
		}
		if err := c.Invoke(ctx); !errors.Is(err, codec.ErrInvalidBool) {
			t.Errorf("Invoke: got %v, want %v", err, codec.ErrInvalidBool)
		}
		if *called {
			t.Error("Function was called after decode failure")
		}
	})

	t.Run("InvokeFails", func(t *testing.T) {
		errBad := errors.New("no such flag")
		ep, called := probe(errBad)
		c := ep.NewCall()
		c.Feed(encodeArgs(t, flagSig, uint32(5), false))

		var buf bytes.Buffer
		_, err := c.Finish(ctx, &buf)
		if !errors.Is(err, errBad) {
			t.Errorf("Finish: got %v, want %v", err, errBad)
		}
		if !*called {
			t.Error("Function was not called")
		}
		if c.State() != fibre.InvokeFailed {
			t.Errorf("State: got %v, want %v", c.State(), fibre.InvokeFailed)
		}
		if buf.Len() != 0 {
			t.Errorf("Finish wrote %d bytes, want 0", buf.Len())
		}
	})

	t.Run("EncodeFails", func(t *testing.T) {
		c := fibre.MustEndpoint(moveTo, moveSig).NewCall()
		c.Feed(encodeArgs(t, moveSig, int32(0), int32(2)))
		if err := c.Invoke(ctx); err != nil {
			t.Fatalf("Invoke: unexpected error: %v", err)
		}

		w := &shortWriter{room: 6}
		nw, err := c.Encode(w)
		if !errors.Is(err, io.ErrShortWrite) {
			t.Errorf("Encode: got %v, want %v", err, io.ErrShortWrite)
		}
		if nw != 6 {
			t.Errorf("Encode: wrote %d bytes, want 6", nw)
		}
		if c.State() != fibre.EncodeFailed {
			t.Errorf("State: got %v, want %v", c.State(), fibre.EncodeFailed)
		}
	})
}

func TestState(t *testing.T) {
	tests := []struct {
		state    fibre.State
		name     string
		terminal bool
	}{
		{fibre.AwaitingInput, "AwaitingInput", false},
		{fibre.InputsComplete, "InputsComplete", false},
		{fibre.Invoking, "Invoking", false},
		{fibre.OutputsReady, "OutputsReady", false},
		{fibre.Encoding, "Encoding", false},
		{fibre.Done, "Done", true},
		{fibre.DecodeFailed, "DecodeFailed", true},
		{fibre.InvokeFailed, "InvokeFailed", true},
		{fibre.EncodeFailed, "EncodeFailed", true},
		{fibre.Aborted, "Aborted", true},
		{fibre.State(99), "State(99)", true},
	}
	for _, tc := range tests {
		if got := tc.state.String(); got != tc.name {
			t.Errorf("String: got %q, want %q", got, tc.name)
		}
		if got := tc.state.Terminal(); got != tc.terminal {
			t.Errorf("%v.Terminal: got %v, want %v", tc.state, got, tc.terminal)
		}
	}
}

func TestEncodeContext(t *testing.T) {
	w := &shortWriter{room: 10}
	ec := fibre.NewEncodeContext(w)
	ec.Write([]byte("abcdef"))
	ec.Write([]byte("ghijkl"))
	if got := ec.Written(); got != 10 {
		t.Errorf("Written: got %d, want 10", got)
	}
	if got := w.buf.String(); got != "abcdefghij" {
		t.Errorf("Sink: got %q, want %q", got, "abcdefghij")
	}
}
