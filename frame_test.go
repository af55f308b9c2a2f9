// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package fibre_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/creachadair/fibre"
	"github.com/google/go-cmp/cmp"
)

func TestFrameRoundTrip(t *testing.T) {
	frames := []fibre.Frame{
		{Type: fibre.FrameCancel, Payload: fibre.CancelFrame{CallID: 12}.Encode()},
		{Type: fibre.FrameCall, Payload: fibre.CallFrame{
			CallID: 1, EndpointID: 0xdeadbeef, Flags: fibre.FlagFinal, Data: []byte("input"),
		}.Encode()},
		{Type: fibre.FrameData, Payload: fibre.DataFrame{CallID: 1, Data: []byte("more")}.Encode()},
		{Type: fibre.FrameResult, Payload: fibre.Result{CallID: 1, Code: fibre.CodeSuccess}.Encode()},
		{Version: 3, Type: 99},
	}
	var buf bytes.Buffer
	for _, f := range frames {
		nw, err := f.WriteTo(&buf)
		if err != nil {
			t.Fatalf("WriteTo %v: unexpected error: %v", f, err)
		} else if nw != int64(8+len(f.Payload)) {
			t.Errorf("WriteTo %v: wrote %d bytes, want %d", f, nw, 8+len(f.Payload))
		}
	}
	for _, want := range frames {
		var got fibre.Frame
		if _, err := got.ReadFrom(&buf); err != nil {
			t.Fatalf("ReadFrom: unexpected error: %v", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Frame (-want, +got):\n%s", diff)
		}
	}
	var extra fibre.Frame
	if _, err := extra.ReadFrom(&buf); !errors.Is(err, io.EOF) {
		t.Errorf("ReadFrom at end: got %v, want %v", err, io.EOF)
	}

	// Encode matches WriteTo.
	f := fibre.Frame{Type: fibre.FrameData, Payload: []byte{1, 2, 3, 4, 5}}
	if got, want := f.Encode(), []byte("FB\x00\x03\x05\x00\x00\x00\x01\x02\x03\x04\x05"); !bytes.Equal(got, want) {
		t.Errorf("Encode: got %q, want %q", got, want)
	}
}

func TestFrameReadErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{"Empty", "", 10, "short frame header"},
		{"ShortHeader", "FB\x00\x02\x00", 10, "short frame header"},
		{"BadMagic", "CP\x00\x02\x00\x00\x00\x00", 10, "invalid frame magic"},
		{"TooLong", "FB\x00\x02\x0b\x00\x00\x00", 10, "frame payload too long"},
		{"ShortPayload", "FB\x00\x02\x05\x00\x00\x00abc", 10, "short payload"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var f fibre.Frame
			_, err := f.ReadLimit(strings.NewReader(tc.input), tc.max)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("ReadLimit: got %v, want error containing %q", err, tc.want)
			}
		})
	}

	t.Run("AtLimit", func(t *testing.T) {
		var f fibre.Frame
		if _, err := f.ReadLimit(strings.NewReader("FB\x00\x03\x05\x00\x00\x00abcde"), 5); err != nil {
			t.Errorf("ReadLimit: unexpected error: %v", err)
		}
	})
}

func TestPayloadDecode(t *testing.T) {
	t.Run("Call", func(t *testing.T) {
		want := fibre.CallFrame{CallID: 7, EndpointID: 0x01020304, Flags: fibre.FlagFinal, Data: []byte{9}}
		var got fibre.CallFrame
		if err := got.Decode(want.Encode()); err != nil {
			t.Fatalf("Decode: unexpected error: %v", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("CallFrame (-want, +got):\n%s", diff)
		}

		// The wire layout is little-endian.
		const wire = "\x07\x00\x00\x00\x04\x03\x02\x01\x01\x09"
		if enc := want.Encode(); string(enc) != wire {
			t.Errorf("Encode: got %q, want %q", enc, wire)
		}
	})

	t.Run("Data", func(t *testing.T) {
		want := fibre.DataFrame{CallID: 300, Flags: 0}
		var got fibre.DataFrame
		if err := got.Decode(want.Encode()); err != nil {
			t.Fatalf("Decode: unexpected error: %v", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("DataFrame (-want, +got):\n%s", diff)
		}
	})

	t.Run("Result", func(t *testing.T) {
		want := fibre.Result{CallID: 5, Code: fibre.CodeDecodeFailed, Data: []byte("x")}
		var got fibre.Result
		if err := got.Decode(want.Encode()); err != nil {
			t.Fatalf("Decode: unexpected error: %v", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Result (-want, +got):\n%s", diff)
		}
	})

	tests := []struct {
		name   string
		decode func([]byte) error
		input  string
		want   string
	}{
		{"ShortCall", new(fibre.CallFrame).Decode, "\x01\x00\x00\x00\x02\x00\x00\x00", "short call payload"},
		{"ShortData", new(fibre.DataFrame).Decode, "\x01\x00\x00\x00", "short data payload"},
		{"ShortCancel", new(fibre.CancelFrame).Decode, "\x01\x00\x00", "invalid cancel payload"},
		{"LongCancel", new(fibre.CancelFrame).Decode, "\x01\x00\x00\x00\x00", "invalid cancel payload"},
		{"ShortResult", new(fibre.Result).Decode, "\x01\x00", "short result payload"},
		{"BadResultCode", new(fibre.Result).Decode, "\x01\x00\x00\x00\x08", "invalid result code"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.decode([]byte(tc.input))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Decode: got %v, want error containing %q", err, tc.want)
			}
		})
	}
}

func TestFrameString(t *testing.T) {
	tests := []struct {
		frame fibre.Frame
		want  string
	}{
		{fibre.Frame{Type: fibre.FrameCancel, Payload: fibre.CancelFrame{CallID: 3}.Encode()},
			"Frame(FB0, CANCEL, Cancel(ID=3))"},
		{fibre.Frame{Type: fibre.FrameCall, Payload: fibre.CallFrame{
			CallID: 1, EndpointID: 0xabc, Data: []byte{1, 2},
		}.Encode()}, "Frame(FB0, CALL, Call(ID=1, Endpoint=00000abc, Flags=0, Data=[1 2]))"},
		{fibre.Frame{Type: fibre.FrameData, Payload: fibre.DataFrame{CallID: 2, Flags: fibre.FlagFinal}.Encode()},
			"Frame(FB0, DATA, Data(ID=2, Flags=1, Data=[]))"},
		{fibre.Frame{Type: fibre.FrameResult, Payload: fibre.Result{
			CallID: 4, Code: fibre.CodeServiceError, Data: fibre.ErrorData{Code: 9, Message: "oops"}.Encode(),
		}.Encode()}, `Frame(FB0, RESULT, Result(ID=4, Code=SERVICE_ERROR, ErrorData(Code=9, [0 bytes], "oops")))`},
		{fibre.Frame{Version: 1, Type: 10, Payload: []byte{5}}, "Frame(FB1, TYPE:10, [5])"},
	}
	for _, tc := range tests {
		if got := tc.frame.String(); got != tc.want {
			t.Errorf("String:\ngot  %s\nwant %s", got, tc.want)
		}
	}
}

func TestResultCodeString(t *testing.T) {
	want := []string{
		"SUCCESS", "UNKNOWN_ENDPOINT", "DUPLICATE_CALL_ID", "CANCELED",
		"SERVICE_ERROR", "DECODE_FAILED", "ENCODE_FAILED", "PROTOCOL_ERROR",
	}
	for i, w := range want {
		if got := fibre.ResultCode(i).String(); got != w {
			t.Errorf("ResultCode(%d): got %q, want %q", i, got, w)
		}
	}
	if got := fibre.ResultCode(20).String(); got != "result code 20" {
		t.Errorf("ResultCode(20): got %q", got)
	}
}

func TestErrorData(t *testing.T) {
	want := fibre.ErrorData{Code: 17, Message: "hey", Data: []byte("stuff")}
	var got fibre.ErrorData
	if err := got.Decode(want.Encode()); err != nil {
		t.Fatalf("Decode: unexpected error: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ErrorData (-want, +got):\n%s", diff)
	}
	if got.Error() != "[code 17] hey" {
		t.Errorf("Error: got %q", got.Error())
	}

	// Empty data decodes as empty details.
	if err := got.Decode(nil); err != nil || !cmp.Equal(got, fibre.ErrorData{}) {
		t.Errorf("Decode empty: got (%+v, %v), want zero", got, err)
	}
}

func TestRegression(t *testing.T) {
	t.Run("ErrorDataSize", func(t *testing.T) {
		// The message length is larger than the data available.
		const input = "\x01\x00\x04\x00abc"
		var ed fibre.ErrorData
		if err := ed.Decode([]byte(input)); err == nil {
			t.Errorf("ErrorData: got %#v, wanted error", ed)
		} else {
			t.Logf("Decoding ErrorData: got expected error: %v", err)
		}
	})
	t.Run("ErrorDataUTF8", func(t *testing.T) {
		// The message is not valid UTF-8.
		const input = "\x02\x01\x04\x00abc\xc0----"
		var ed fibre.ErrorData
		if err := ed.Decode([]byte(input)); err == nil {
			t.Errorf("ErrorData: got %#v, wanted error", ed)
		} else {
			t.Logf("Decoding ErrorData: got expected error: %v", err)
		}
	})
	t.Run("ErrorDataShort", func(t *testing.T) {
		var ed fibre.ErrorData
		if err := ed.Decode([]byte{1}); err == nil {
			t.Errorf("ErrorData: got %#v, wanted error", ed)
		}
	})
}
