// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package fibre

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/creachadair/fibre/codec"
)

// An Endpoint binds a Go function to the signature that describes it on the
// wire. An Endpoint holds no per-call state and is safe for concurrent use by
// multiple goroutines; the function it wraps must be safe to call
// concurrently if calls may overlap.
type Endpoint struct {
	sig *Signature
	fn  reflect.Value

	hasCtx   bool           // fn takes a leading context.Context
	hasErr   bool           // fn returns a trailing error
	inTypes  []reflect.Type // parameter types of Input slots
	outTypes []reflect.Type // element types of Output slots
	enc      *codec.EncoderChain
}

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// NewEndpoint constructs an endpoint that calls fn with the given signature.
//
// The parameters of fn must correspond in order to the Input and Output slots
// of sig, and the results of fn must correspond in order to its ReturnValue
// slots. An Input parameter must accept values of its codec's type. An Output
// parameter must be a pointer to a value of its codec's type, and a
// ReturnValue result must have exactly its codec's type.
//
// In addition, fn may take a context.Context as its first parameter and may
// return an error as its last result. These are not described by sig. If fn
// reports a non-nil error, the call fails and no results are encoded.
//
// If the number of parameters or results does not match sig, NewEndpoint
// reports an *ArityError.
func NewEndpoint(fn any, sig *Signature) (*Endpoint, error) {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func || fv.IsNil() {
		return nil, fmt.Errorf("endpoint %q: value of type %T is not a function", sig.Name(), fn)
	}
	ft := fv.Type()
	if ft.IsVariadic() {
		return nil, fmt.Errorf("endpoint %q: variadic functions are not supported", sig.Name())
	}
	ep := &Endpoint{sig: sig, fn: fv, enc: codec.NewEncoderChain(sig.Outputs()...)}

	params := make([]reflect.Type, ft.NumIn())
	for i := range params {
		params[i] = ft.In(i)
	}
	if len(params) != 0 && params[0] == contextType {
		ep.hasCtx = true
		params = params[1:]
	}
	results := make([]reflect.Type, ft.NumOut())
	for i := range results {
		results[i] = ft.Out(i)
	}
	if n := len(results); n != 0 && results[n-1] == errorType {
		ep.hasErr = true
		results = results[:n-1]
	}

	if want := len(sig.plan); len(params) != want {
		return nil, &ArityError{Name: sig.Name(), Kind: "parameters", Want: want, Got: len(params)}
	}
	if want := sig.NumRet(); len(results) != want {
		return nil, &ArityError{Name: sig.Name(), Kind: "results", Want: want, Got: len(results)}
	}

	var pi, ri int
	for _, s := range sig.slots {
		ct := s.Codec.Type()
		switch s.Mode {
		case Input:
			pt := params[pi]
			if !ct.AssignableTo(pt) {
				return nil, fmt.Errorf("endpoint %q: input %q has type %v, codec %q produces %v",
					sig.Name(), s.Name, pt, s.Codec.Name(), ct)
			}
			ep.inTypes = append(ep.inTypes, pt)
			pi++
		case Output:
			pt := params[pi]
			if pt.Kind() != reflect.Pointer || pt.Elem() != ct {
				return nil, fmt.Errorf("endpoint %q: output %q has type %v, want *%v",
					sig.Name(), s.Name, pt, ct)
			}
			ep.outTypes = append(ep.outTypes, ct)
			pi++
		case ReturnValue:
			if rt := results[ri]; rt != ct {
				return nil, fmt.Errorf("endpoint %q: result %q has type %v, want %v",
					sig.Name(), s.Name, rt, ct)
			}
			ri++
		}
	}
	return ep, nil
}

// MustEndpoint is as [NewEndpoint], but panics on error.
// It is intended for static registration.
func MustEndpoint(fn any, sig *Signature) *Endpoint {
	ep, err := NewEndpoint(fn, sig)
	if err != nil {
		panic(err)
	}
	return ep
}

// Signature returns the signature of e.
func (e *Endpoint) Signature() *Signature { return e.sig }

// Name returns the function name of e.
func (e *Endpoint) Name() string { return e.sig.name }

// ID returns the identity of e, derived from its signature.
func (e *Endpoint) ID() ID { return e.sig.id }

// Describe returns the introspection descriptor of e. See [Signature.JSON].
func (e *Endpoint) Describe() string { return e.sig.desc }

// Open installs a fresh decoder chain for the inputs of e onto in.
// It does not block.
func (e *Endpoint) Open(in Incoming) { in.Install(codec.NewDecoderChain(e.sig.inputs...)) }

var errNotOpen = errors.New("no decoder chain installed")

// Complete retrieves the decoded inputs from in, calls the function of e, and
// encodes its results to out: first the Output values in order, then the
// ReturnValue values in order. This is the only place the function is called.
//
// If the inputs of in are not completely decoded, Complete reports an error
// and the function is not called. If the function fails, Complete reports an
// *InvokeError and writes nothing. If a result cannot be encoded or written,
// Complete reports a *codec.EncodeError.
func (e *Endpoint) Complete(ctx context.Context, in Incoming, out io.Writer) error {
	chain := in.Chain()
	if chain == nil {
		return fmt.Errorf("endpoint %q: %w", e.Name(), errNotOpen)
	}
	inputs, err := chain.Values()
	if err != nil {
		return err
	}
	results, err := e.invoke(ctx, inputs)
	if err != nil {
		return err
	}
	_, err = e.enc.Encode(out, results)
	return err
}

// invoke calls the function of e with the given inputs, and returns the
// values of its outputs followed by its return values.
func (e *Endpoint) invoke(ctx context.Context, inputs []any) (_ []any, err error) {
	if len(inputs) != len(e.inTypes) {
		return nil, fmt.Errorf("endpoint %q: got %d inputs, want %d", e.Name(), len(inputs), len(e.inTypes))
	}
	ins := make([]reflect.Value, len(inputs))
	for i, v := range inputs {
		if v == nil {
			ins[i] = reflect.Zero(e.inTypes[i])
		} else {
			ins[i] = reflect.ValueOf(v)
		}
	}
	outs := make([]reflect.Value, len(e.outTypes))
	for i, t := range e.outTypes {
		outs[i] = reflect.New(t)
	}
	args, err := Merge(e.sig.plan, ins, outs)
	if err != nil {
		return nil, err
	}
	if e.hasCtx {
		if ctx == nil {
			ctx = context.Background()
		}
		args = append([]reflect.Value{reflect.ValueOf(ctx)}, args...)
	}

	defer func() {
		if x := recover(); x != nil {
			err = &InvokeError{Name: e.Name(), Err: fmt.Errorf("panic: %v", x)}
		}
	}()
	rs := e.fn.Call(args)
	if e.hasErr {
		last := rs[len(rs)-1]
		rs = rs[:len(rs)-1]
		if !last.IsNil() {
			return nil, &InvokeError{Name: e.Name(), Err: last.Interface().(error)}
		}
	}

	vals := make([]any, 0, len(outs)+len(rs))
	for _, o := range outs {
		vals = append(vals, o.Elem().Interface())
	}
	for _, r := range rs {
		vals = append(vals, r.Interface())
	}
	return vals, nil
}

// ArityError is reported by [NewEndpoint] when the number of parameters or
// results of a function does not match its signature.
type ArityError struct {
	Name string // the function name
	Kind string // "parameters" or "results"
	Want int    // the number required by the signature
	Got  int    // the number the function has
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("endpoint %q: signature describes %d %s, function has %d", e.Name, e.Want, e.Kind, e.Got)
}

// InvokeError is reported when the function of an endpoint fails, either by
// returning a non-nil error or by panicking.
type InvokeError struct {
	Name string // the function name
	Err  error  // the error reported by the function
}

func (e *InvokeError) Error() string { return fmt.Sprintf("invoke %q: %v", e.Name, e.Err) }

// Unwrap reports the underlying error of e.
func (e *InvokeError) Unwrap() error { return e.Err }
