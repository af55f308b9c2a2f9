// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package fibre

import (
	"errors"
	"fmt"
	"strings"

	"github.com/creachadair/fibre/codec"
)

// Mode describes the role of an argument slot in a function signature.
type Mode byte

const (
	Input       Mode = 1 // a value supplied by the caller
	Output      Mode = 2 // storage the function writes a result into
	ReturnValue Mode = 3 // a value returned by the function
)

func (m Mode) String() string {
	switch m {
	case Input:
		return "in"
	case Output:
		return "out"
	case ReturnValue:
		return "ret"
	default:
		return fmt.Sprintf("mode:%d", byte(m))
	}
}

// ParseMode parses the string representation of a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "in":
		return Input, nil
	case "out":
		return Output, nil
	case "ret":
		return ReturnValue, nil
	}
	return 0, fmt.Errorf("invalid mode %q", s)
}

// A Slot describes one argument of a function signature.
type Slot struct {
	Name  string
	Mode  Mode
	Codec codec.Codec
}

// In returns an Input slot with the given name and codec.
func In(name string, c codec.Codec) Slot { return Slot{Name: name, Mode: Input, Codec: c} }

// Out returns an Output slot with the given name and codec.
func Out(name string, c codec.Codec) Slot { return Slot{Name: name, Mode: Output, Codec: c} }

// Ret returns a ReturnValue slot with the given name and codec.
func Ret(name string, c codec.Codec) Slot { return Slot{Name: name, Mode: ReturnValue, Codec: c} }

// A Signature is the immutable description of a remotely callable function:
// its name and the ordered list of its argument slots.
//
// The slot order is the declaration order of the function. Input and Output
// slots together give the parameters of the function, in order; ReturnValue
// slots give its results, in order.
//
// A Signature is safe for concurrent use by multiple goroutines.
type Signature struct {
	name  string
	slots []Slot

	inputs  []codec.Codec // Input codecs in order
	outputs []codec.Codec // Output codecs, then ReturnValue codecs
	plan    []Mode        // modes of the non-ReturnValue slots
	nret    int
	desc    string // the descriptor, see JSON
	id      ID
}

// NewSignature constructs a signature for a function with the given name and
// argument slots.
//
// The function name and slot names must be non-empty, and may contain only
// letters, digits, and the punctuation "_.-/:". Input slot names must be
// distinct, and output and return slot names must be distinct, but an input
// may share its name with a result.
// Every slot must have a codec whose name contains no quotation marks,
// backslashes, or control characters.
func NewSignature(name string, slots ...Slot) (*Signature, error) {
	if err := checkName(name); err != nil {
		return nil, fmt.Errorf("signature: function %w", err)
	}
	sig := &Signature{name: name}
	// Input names are distinct from each other, and result names (outputs and
	// return values) are distinct from each other.
	seen := make(map[slotKey]bool)
	for i, s := range slots {
		key := slotKey{s.Name, s.Mode == Input}
		if err := checkName(s.Name); err != nil {
			return nil, fmt.Errorf("signature %q: slot %d %w", name, i, err)
		} else if seen[key] {
			return nil, fmt.Errorf("signature %q: duplicate slot name %q", name, s.Name)
		}
		seen[key] = true
		if s.Codec == nil {
			return nil, fmt.Errorf("signature %q: slot %q has no codec", name, s.Name)
		} else if !jsonSafe(s.Codec.Name()) {
			return nil, fmt.Errorf("signature %q: slot %q: invalid codec name %q", name, s.Name, s.Codec.Name())
		}

		switch s.Mode {
		case Input:
			sig.inputs = append(sig.inputs, s.Codec)
			sig.plan = append(sig.plan, Input)
		case Output:
			sig.outputs = append(sig.outputs, s.Codec)
			sig.plan = append(sig.plan, Output)
		case ReturnValue:
			sig.nret++
		default:
			return nil, fmt.Errorf("signature %q: slot %q has invalid %v", name, s.Name, s.Mode)
		}
	}
	for _, s := range slots {
		if s.Mode == ReturnValue {
			sig.outputs = append(sig.outputs, s.Codec)
		}
	}
	sig.slots = append([]Slot(nil), slots...)
	sig.desc = sig.buildDescriptor()
	sig.id = signatureID(sig)
	return sig, nil
}

type slotKey struct {
	name  string
	input bool
}

// MustSignature is as [NewSignature], but panics on error.
// It is intended for static registration.
func MustSignature(name string, slots ...Slot) *Signature {
	sig, err := NewSignature(name, slots...)
	if err != nil {
		panic(err)
	}
	return sig
}

// buildDescriptor renders the introspection descriptor for s. The names in s
// have been checked so that none of them requires escaping.
func (s *Signature) buildDescriptor() string {
	var sb strings.Builder
	sb.WriteString(`{"name":"`)
	sb.WriteString(s.name)
	sb.WriteString(`","in":[`)
	var n int
	for _, slot := range s.slots {
		if slot.Mode != Input {
			continue
		}
		if n > 0 {
			sb.WriteByte(',')
		}
		n++
		sb.WriteString(`{"name":"`)
		sb.WriteString(slot.Name)
		sb.WriteString(`","codec":"`)
		sb.WriteString(slot.Codec.Name())
		sb.WriteString(`"}`)
	}
	sb.WriteString(`]}`)
	return sb.String()
}

// Name reports the function name of s.
func (s *Signature) Name() string { return s.name }

// ID reports the endpoint identity derived from s.
func (s *Signature) ID() ID { return s.id }

// Slots returns a copy of the argument slots of s, in declaration order.
func (s *Signature) Slots() []Slot { return append([]Slot(nil), s.slots...) }

// Inputs returns the codecs of the Input slots of s, in order.
// The caller must not modify the returned slice.
func (s *Signature) Inputs() []codec.Codec { return s.inputs }

// Outputs returns the codecs of the Output slots of s, in order, followed by
// the codecs of the ReturnValue slots, in order. This is the order in which
// results are encoded. The caller must not modify the returned slice.
func (s *Signature) Outputs() []codec.Codec { return s.outputs }

// NumIn reports the number of Input slots in s.
func (s *Signature) NumIn() int { return len(s.inputs) }

// NumOut reports the number of Output slots in s.
func (s *Signature) NumOut() int { return len(s.outputs) - s.nret }

// NumRet reports the number of ReturnValue slots in s.
func (s *Signature) NumRet() int { return s.nret }

// JSON returns the introspection descriptor for s, which has the form
//
//	{"name":"<function>","in":[{"name":"<arg>","codec":"<codec>"},...]}
//
// The descriptor lists only the Input slots of s, in order, with no added
// whitespace. Output and ReturnValue slots are not described: the descriptor
// tells a client what to send, not what it will receive. Use the catalog
// listing for a complete description of the slots.
//
// The descriptor is computed once when s is constructed.
func (s *Signature) JSON() string { return s.desc }

func (s *Signature) String() string { return s.desc }

var errEmptyName = errors.New("name is empty")

// checkName reports an error if name is not a valid function or slot name.
func checkName(name string) error {
	if name == "" {
		return errEmptyName
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.ContainsRune("_.-/:", c):
		default:
			return fmt.Errorf("name %q: invalid character %q", name, c)
		}
	}
	return nil
}

// jsonSafe reports whether s can be written inside a JSON string without
// escaping.
func jsonSafe(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if c := s[i]; c < 0x20 || c == '"' || c == '\\' || c == 0x7f {
			return false
		}
	}
	return true
}
