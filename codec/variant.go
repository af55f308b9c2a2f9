// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package codec

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/creachadair/fibre/packet"
)

// A Choice is the value of a variant: the name of the active alternative and
// a value of that alternative's type.
type Choice struct {
	Name  string
	Value any
}

// Variant returns a codec for values that may have the type of any one of the
// given alternatives. Values are of type [Choice]. The alternatives must have
// distinct names.
//
// The name of the codec lists its alternatives, for example
// "variant(uint32|string)".
func Variant(alts ...Codec) Codec {
	names := make([]string, len(alts))
	for i, alt := range alts {
		names[i] = alt.Name()
		for _, prev := range names[:i] {
			if prev == names[i] {
				panic(fmt.Sprintf("duplicate variant alternative %q", prev))
			}
		}
	}
	return &variant{
		name: "variant(" + strings.Join(names, "|") + ")",
		alts: alts,
	}
}

type variant struct {
	name string
	alts []Codec
}

func (v *variant) Name() string       { return v.name }
func (v *variant) Type() reflect.Type { return reflect.TypeFor[Choice]() }

// find returns the alternative with the given name, or nil.
func (v *variant) find(name string) Codec {
	for _, alt := range v.alts {
		if alt.Name() == name {
			return alt
		}
	}
	return nil
}

func (v *variant) Decode(s *packet.Scanner) (any, error) {
	name, err := packet.LGet[string](s)
	if err != nil {
		return nil, err
	}
	alt := v.find(name)
	if alt == nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownVariant, name)
	}
	val, err := alt.Decode(s)
	if err != nil {
		return nil, err
	}
	return Choice{Name: name, Value: val}, nil
}

func (v *variant) Append(b *packet.Builder, val any) error {
	c, ok := val.(Choice)
	if !ok {
		return badValue(v, val)
	}
	alt := v.find(c.Name)
	if alt == nil {
		return fmt.Errorf("%s: %w %q", v.name, ErrUnknownVariant, c.Name)
	}
	b.LPutString(c.Name)
	return alt.Append(b, c.Value)
}
