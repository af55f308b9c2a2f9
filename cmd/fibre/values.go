// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package main

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/creachadair/fibre"
	"github.com/creachadair/fibre/catalog"
	"github.com/creachadair/fibre/codec"
)

// parseValue parses text as a value of the type produced by c.
func parseValue(c codec.Codec, text string) (any, error) {
	t := c.Type()
	var v reflect.Value
	switch t.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		z, err := strconv.ParseInt(text, 0, t.Bits())
		if err != nil {
			return nil, fmt.Errorf("invalid %s value: %w", c.Name(), err)
		}
		v = reflect.ValueOf(z)
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		z, err := strconv.ParseUint(text, 0, t.Bits())
		if err != nil {
			return nil, fmt.Errorf("invalid %s value: %w", c.Name(), err)
		}
		v = reflect.ValueOf(z)
	case reflect.Bool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value: %w", c.Name(), err)
		}
		v = reflect.ValueOf(b)
	case reflect.String:
		v = reflect.ValueOf(text)
	case reflect.Slice:
		if t.Elem().Kind() != reflect.Uint8 {
			return nil, fmt.Errorf("codec %q does not accept text input", c.Name())
		}
		b, err := hex.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value: %w", c.Name(), err)
		}
		v = reflect.ValueOf(b)
	default:
		return nil, fmt.Errorf("codec %q does not accept text input", c.Name())
	}
	return v.Convert(t).Interface(), nil
}

// parseInputs parses args as the input values of sig.
func parseInputs(sig *fibre.Signature, args []string) ([]any, error) {
	ins := sig.Inputs()
	if len(args) != len(ins) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", sig.Name(), len(ins), len(args))
	}
	vals := make([]any, len(args))
	for i, arg := range args {
		v, err := parseValue(ins[i], arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		vals[i] = v
	}
	return vals, nil
}

// resultNames returns the names of the output and return value slots of sig,
// in the order the values are reported by a call.
func resultNames(sig *fibre.Signature) []string {
	var outs, rets []string
	for _, s := range sig.Slots() {
		switch s.Mode {
		case fibre.Output:
			outs = append(outs, s.Name)
		case fibre.ReturnValue:
			rets = append(rets, s.Name)
		}
	}
	return append(outs, rets...)
}

// formatValue renders a decoded value for display.
func formatValue(v any) string {
	switch t := v.(type) {
	case []byte:
		return hex.EncodeToString(t)
	case string:
		return strconv.Quote(t)
	default:
		return fmt.Sprint(v)
	}
}

// formatEntry renders a listing entry in a compact form, for example
//
//	move_to(in x int32, in y int32, out moved bool) (ret dist uint32) [id 1a2b3c4d]
func formatEntry(e catalog.Entry) string {
	var args, rets []string
	for _, s := range e.Slots {
		text := s.Mode + " " + s.Name + " " + s.Codec
		if s.Mode == fibre.ReturnValue.String() {
			rets = append(rets, text)
		} else {
			args = append(args, text)
		}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s(%s)", e.Name, strings.Join(args, ", "))
	if len(rets) != 0 {
		fmt.Fprintf(&sb, " (%s)", strings.Join(rets, ", "))
	}
	fmt.Fprintf(&sb, " [id %v]", e.ID)
	return sb.String()
}
