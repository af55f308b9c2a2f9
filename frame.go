// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package fibre

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/creachadair/fibre/packet"
)

// MaxPayload is the default limit on the payload size of a frame read from
// a stream.
const MaxPayload = 16 << 20

// Frame is the parsed format of a Fibre frame.
type Frame struct {
	Version byte
	Type    FrameType
	Payload []byte
}

// Encode encodes f in binary format.
func (f Frame) Encode() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, 8+len(f.Payload)))
	if _, err := f.WriteTo(buf); err != nil {
		panic(fmt.Errorf("encoding frame: %w", err))
	}
	return buf.Bytes()
}

// WriteTo writes the frame to w in binary format. It satisfies io.WriterTo.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	buf := [8]byte{'F', 'B', f.Version, byte(f.Type)}
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(f.Payload)))
	nw, err := w.Write(buf[:])
	if err == nil && len(f.Payload) != 0 {
		var np int
		np, err = w.Write(f.Payload)
		nw += np
	}
	return int64(nw), err
}

// ReadFrom reads a frame from r in binary format, with a payload of at most
// [MaxPayload] bytes. It satisfies io.ReaderFrom.
func (f *Frame) ReadFrom(r io.Reader) (int64, error) { return f.ReadLimit(r, MaxPayload) }

// ReadLimit reads a frame from r in binary format. It reports an error if the
// payload of the frame is longer than max bytes.
func (f *Frame) ReadLimit(r io.Reader, max int) (int64, error) {
	var buf [8]byte
	nr, err := io.ReadFull(r, buf[:])
	if err != nil {
		return int64(nr), fmt.Errorf("short frame header: %w", err)
	}
	if string(buf[:2]) != "FB" {
		return int64(nr), fmt.Errorf("invalid frame magic %q", buf[:2])
	}

	f.Version = buf[2]
	f.Type = FrameType(buf[3])
	f.Payload = nil

	if psize := binary.LittleEndian.Uint32(buf[4:]); psize > 0 {
		if uint64(psize) > uint64(max) {
			return int64(nr), fmt.Errorf("frame payload too long (%d > %d bytes)", psize, max)
		}
		f.Payload = make([]byte, int(psize))
		var np int
		np, err = io.ReadFull(r, f.Payload)
		nr += np
		if err != nil {
			err = fmt.Errorf("short payload: %w", err)
		}
	}
	return int64(nr), err
}

// String returns a human-friendly rendering of the frame.
func (f *Frame) String() string {
	var pay string
	switch f.Type {
	case FrameCall:
		var c CallFrame
		if c.Decode(f.Payload) == nil {
			pay = c.String()
		}
	case FrameData:
		var d DataFrame
		if d.Decode(f.Payload) == nil {
			pay = d.String()
		}
	case FrameCancel:
		var c CancelFrame
		if c.Decode(f.Payload) == nil {
			pay = c.String()
		}
	case FrameResult:
		var r Result
		if r.Decode(f.Payload) == nil {
			pay = r.String()
		}
	}
	if pay == "" {
		pay = fmt.Sprint(f.Payload)
	}
	return fmt.Sprintf("Frame(FB%v, %v, %s)", f.Version, f.Type, pay)
}

// FrameType describes the structure of a frame payload.
type FrameType byte

const (
	FrameCall   FrameType = 2 // the start of a call, with its first input bytes
	FrameData   FrameType = 3 // more input bytes for a call
	FrameCancel FrameType = 4 // a cancellation for a pending call
	FrameResult FrameType = 5 // the final result of a call
)

func (t FrameType) String() string {
	switch t {
	case FrameCall:
		return "CALL"
	case FrameData:
		return "DATA"
	case FrameCancel:
		return "CANCEL"
	case FrameResult:
		return "RESULT"
	default:
		return fmt.Sprintf("TYPE:%d", byte(t))
	}
}

// Flags are bits attached to a frame carrying call input.
type Flags byte

const (
	// FlagFinal marks the last frame of input for a call. If the inputs of
	// the call are not complete when this frame has been processed, the call
	// fails.
	FlagFinal Flags = 1
)

// CallFrame is the payload format of a call frame.
type CallFrame struct {
	CallID     uint32
	EndpointID ID
	Flags      Flags
	Data       []byte // the leading bytes of the encoded inputs
}

// Encode encodes the call in binary format.
func (c CallFrame) Encode() []byte {
	var b packet.Builder
	b.Grow(9 + len(c.Data)) // 4 call ID, 4 endpoint ID, 1 flags
	b.Uint32(c.CallID)
	b.Uint32(uint32(c.EndpointID))
	b.Uint8(byte(c.Flags))
	b.Put(c.Data...)
	return b.Bytes()
}

// Decode decodes data into a call payload.
func (c *CallFrame) Decode(data []byte) error {
	if len(data) < 9 {
		return fmt.Errorf("short call payload (%d bytes)", len(data))
	}
	s := packet.NewScanner(data)
	c.CallID, _ = s.Uint32()
	eid, _ := s.Uint32()
	flags, _ := s.Uint8()
	c.EndpointID, c.Flags = ID(eid), Flags(flags)
	c.Data = restOrNil(s)
	return nil
}

// String returns a human-friendly rendering of the call.
func (c CallFrame) String() string {
	return fmt.Sprintf("Call(ID=%v, Endpoint=%v, Flags=%d, Data=%s)", c.CallID, c.EndpointID, c.Flags, clip(c.Data))
}

// DataFrame is the payload format of a data frame.
type DataFrame struct {
	CallID uint32
	Flags  Flags
	Data   []byte // further bytes of the encoded inputs
}

// Encode encodes the data frame in binary format.
func (d DataFrame) Encode() []byte {
	var b packet.Builder
	b.Grow(5 + len(d.Data)) // 4 call ID, 1 flags
	b.Uint32(d.CallID)
	b.Uint8(byte(d.Flags))
	b.Put(d.Data...)
	return b.Bytes()
}

// Decode decodes data into a data frame payload.
func (d *DataFrame) Decode(data []byte) error {
	if len(data) < 5 {
		return fmt.Errorf("short data payload (%d bytes)", len(data))
	}
	s := packet.NewScanner(data)
	d.CallID, _ = s.Uint32()
	flags, _ := s.Uint8()
	d.Flags = Flags(flags)
	d.Data = restOrNil(s)
	return nil
}

// String returns a human-friendly rendering of the data frame.
func (d DataFrame) String() string {
	return fmt.Sprintf("Data(ID=%v, Flags=%d, Data=%s)", d.CallID, d.Flags, clip(d.Data))
}

// CancelFrame is the payload format of a cancel frame.
type CancelFrame struct {
	CallID uint32
}

// Encode encodes the cancellation in binary format.
func (c CancelFrame) Encode() []byte {
	var b packet.Builder
	b.Uint32(c.CallID)
	return b.Bytes()
}

// Decode decodes data into a cancel payload.
func (c *CancelFrame) Decode(data []byte) error {
	if len(data) != 4 {
		return fmt.Errorf("invalid cancel payload (%d bytes)", len(data))
	}
	c.CallID = binary.LittleEndian.Uint32(data)
	return nil
}

// String returns a human-friendly rendering of the cancellation.
func (c CancelFrame) String() string { return fmt.Sprintf("Cancel(ID=%v)", c.CallID) }

// Result is the payload format of a result frame.
type Result struct {
	CallID uint32
	Code   ResultCode
	Data   []byte // on success, the encoded outputs and return values
}

// Encode encodes the result in binary format.
func (r Result) Encode() []byte {
	var b packet.Builder
	b.Grow(5 + len(r.Data)) // 4 call ID, 1 code
	b.Uint32(r.CallID)
	b.Uint8(byte(r.Code))
	b.Put(r.Data...)
	return b.Bytes()
}

// Decode decodes data into a result payload.
func (r *Result) Decode(data []byte) error {
	if len(data) < 5 {
		return fmt.Errorf("short result payload (%d bytes)", len(data))
	}
	s := packet.NewScanner(data)
	r.CallID, _ = s.Uint32()
	code, _ := s.Uint8()
	r.Code = ResultCode(code)
	if r.Code > maxResultCode {
		return fmt.Errorf("invalid result code %d", r.Code)
	}
	r.Data = restOrNil(s)
	return nil
}

// String returns a human-friendly rendering of the result.
func (r Result) String() string {
	var data string
	if r.Code != CodeSuccess {
		var ed ErrorData
		if len(r.Data) != 0 && ed.Decode(r.Data) == nil {
			data = fmt.Sprintf("ErrorData(Code=%d, [%d bytes], %q)", ed.Code, len(ed.Data), ed.Message)
		}
	}
	if data == "" {
		data = "Data=" + clip(r.Data)
	}
	return fmt.Sprintf("Result(ID=%v, Code=%v, %s)", r.CallID, r.Code, data)
}

// ResultCode describes the result status of a completed call.
type ResultCode byte

const (
	CodeSuccess         ResultCode = 0 // Call completed successfully
	CodeUnknownEndpoint ResultCode = 1 // Requested an unknown endpoint
	CodeDuplicateID     ResultCode = 2 // Duplicate call ID
	CodeCanceled        ResultCode = 3 // Call was canceled
	CodeServiceError    ResultCode = 4 // The function reported an error
	CodeDecodeFailed    ResultCode = 5 // The inputs were malformed or truncated
	CodeEncodeFailed    ResultCode = 6 // The results could not be encoded
	CodeProtocolError   ResultCode = 7 // The call frames were invalid

	maxResultCode = CodeProtocolError
)

func (c ResultCode) String() string {
	switch c {
	case CodeSuccess:
		return "SUCCESS"
	case CodeUnknownEndpoint:
		return "UNKNOWN_ENDPOINT"
	case CodeDuplicateID:
		return "DUPLICATE_CALL_ID"
	case CodeCanceled:
		return "CANCELED"
	case CodeServiceError:
		return "SERVICE_ERROR"
	case CodeDecodeFailed:
		return "DECODE_FAILED"
	case CodeEncodeFailed:
		return "ENCODE_FAILED"
	case CodeProtocolError:
		return "PROTOCOL_ERROR"
	default:
		return fmt.Sprintf("result code %d", byte(c))
	}
}

// ErrorData is the result data format for an unsuccessful call.
type ErrorData struct {
	Code    uint16
	Message string
	Data    []byte
}

// Error implements the error interface, allowing an ErrorData value to be used
// as an error. A function bound to an endpoint can report an ErrorData to
// control the error code and auxiliary data reported to the caller.
func (e ErrorData) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("[code %d] %s", e.Code, e.Message)
	}
	return e.Message
}

// Encode encodes the error data in binary format.
func (e ErrorData) Encode() []byte {
	msg := truncate(e.Message, 65535)

	var b packet.Builder
	b.Grow(4 + len(msg) + len(e.Data)) // 2 code, 2 length
	b.Uint16(e.Code)
	b.Uint16(uint16(len(msg)))
	b.PutString(msg)
	b.Put(e.Data...)
	return b.Bytes()
}

// truncate returns a prefix of a UTF-8 string s, having length no greater than
// n bytes. If s exceeds this length, it is truncated at a point ≤ n so that
// the result does not end in a partial UTF-8 encoding.
func truncate(s string, n int) string {
	if n >= len(s) {
		return s
	}

	// Back up over continuation bytes (10xxxxxx).
	for n > 0 && s[n-1]&0xc0 == 0x80 {
		n--
	}

	// A leading byte (11xxxxxx) here begins the encoding we cut into.
	if n > 0 && s[n-1]&0xc0 == 0xc0 {
		n--
	}
	return s[:n]
}

// Decode decodes data into an error data payload.
func (e *ErrorData) Decode(data []byte) error {
	// An empty message is accepted as encoding empty details.
	if len(data) == 0 {
		*e = ErrorData{}
		return nil
	}
	s := packet.NewScanner(data)
	code, err := s.Uint16()
	if err != nil {
		return fmt.Errorf("invalid error data (%d bytes)", len(data))
	}
	mlen, err := s.Uint16()
	if err != nil {
		return fmt.Errorf("invalid error data (%d bytes)", len(data))
	}
	msg, err := packet.Get[string](s, int(mlen))
	if err != nil {
		return fmt.Errorf("error message truncated (%d > %d bytes)", 4+int(mlen), len(data))
	} else if !utf8.ValidString(msg) {
		return errors.New("error message is not valid UTF-8")
	}
	e.Code, e.Message = code, msg
	e.Data = restOrNil(s)
	return nil
}

func restOrNil(s *packet.Scanner) []byte {
	if s.Len() == 0 {
		return nil
	}
	return s.Rest()
}

// clip renders a prefix of data for display.
func clip(data []byte) string {
	if len(data) > 16 {
		return fmt.Sprintf("%+v ...", data[:16])
	}
	return fmt.Sprintf("%+v", data)
}
