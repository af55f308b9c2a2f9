// Copyright (C) 2023 Michael J. Fromberger. All Rights Reserved.

// Package catalog defines a mapping from function names to endpoints for use
// with a fibre.Node. Function names are not exchanged between nodes on the
// wire, but a node can serve a listing of its catalog so that a remote node
// can discover the endpoints it offers.
//
// # Usage
//
// Construct a catalog of endpoints:
//
//	cat := catalog.New(moveTo, lookup, reset)
//
// To serve the endpoints of a catalog on a node, bind it and call Serve:
//
//	if err := cat.Bind(node1).Serve(); err != nil {
//	   log.Fatalf("Serve: %v", err)
//	}
//
// Serve also registers two built-in endpoints: [DescribeSig] reports the JSON
// descriptors of the catalog, and [ListingSig] reports a CBOR [Listing] of
// its complete signatures.
//
// On a node that shares the catalog and wants to call its functions, use Call:
//
//	vals, err := cat.Bind(node2).Call(ctx, "move_to", int32(3), int32(4))
//
// A node that does not share the catalog can fetch the listing from the
// remote node and rebuild the signatures from it:
//
//	lst, err := catalog.Fetch(ctx, node2)
//	...
//	sigs, err := lst.Signatures(codec.Default)
package catalog

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/creachadair/fibre"
	"github.com/creachadair/fibre/codec"
)

// A Catalog associates a node with a mapping from function names to
// endpoints for use with that node.
type Catalog struct {
	node *fibre.Node
	eps  map[string]*fibre.Endpoint
}

// New creates a new unbound catalog containing the specified endpoints. It is
// safe to copy the resulting value, all copies share a reference to the same
// name to endpoint mapping. New will panic if two endpoints have the same
// name or ID.
func New(eps ...*fibre.Endpoint) Catalog {
	return Catalog{eps: make(map[string]*fibre.Endpoint)}.Add(eps...)
}

// Add adds the specified endpoints to c, and returns c to allow chaining.
// Add will panic if an endpoint has the same name or ID as a different
// endpoint already in c.
//
// The mapping of a catalog is shared among all copies of it. It is not safe
// to call Add while c is used concurrently by other goroutines without
// external synchronization.
func (c Catalog) Add(eps ...*fibre.Endpoint) Catalog {
	for _, ep := range eps {
		if old, ok := c.eps[ep.Name()]; ok && old != ep {
			panic(fmt.Sprintf("endpoint %q is already defined", ep.Name()))
		}
		for _, old := range c.eps {
			if old.ID() == ep.ID() && old != ep {
				panic(fmt.Sprintf("endpoint %q: ID %v is already used by %q", ep.Name(), ep.ID(), old.Name()))
			}
		}
		c.eps[ep.Name()] = ep
	}
	return c
}

// Bind returns a copy of c bound to the specified node.
func (c Catalog) Bind(node *fibre.Node) Catalog { return Catalog{node: node, eps: c.eps} }

// Node returns the node associated with c, or nil if c is unbound.
func (c Catalog) Node() *fibre.Node { return c.node }

// Len reports the number of endpoints in c.
func (c Catalog) Len() int { return len(c.eps) }

// Names returns the names of the endpoints in c in lexicographic order.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c.eps))
	for name := range c.eps {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Lookup returns the endpoint ID for name, and reports whether it was found.
func (c Catalog) Lookup(name string) (fibre.ID, bool) {
	if ep, ok := c.eps[name]; ok {
		return ep.ID(), true
	}
	return 0, false
}

// Endpoint returns the endpoint for name, or nil if none is defined.
func (c Catalog) Endpoint(name string) *fibre.Endpoint { return c.eps[name] }

// Serve registers every endpoint of c with the node associated with c, along
// with the built-in describe and listing endpoints.
// Serve will panic if c is not bound to a node.
func (c Catalog) Serve() error {
	for _, name := range c.Names() {
		if err := c.node.Handle(c.eps[name]); err != nil {
			return err
		}
	}
	if err := c.node.Handle(fibre.MustEndpoint(c.Describe, DescribeSig)); err != nil {
		return err
	}
	return c.node.Handle(fibre.MustEndpoint(c.Encode, ListingSig))
}

// Call calls the function bound to name on the remote node with the given
// input values, and returns its outputs followed by its return values.
// Call will panic if c is not bound to a node.
func (c Catalog) Call(ctx context.Context, name string, args ...any) ([]any, error) {
	ep, ok := c.eps[name]
	if !ok {
		return nil, fmt.Errorf("call: unknown function %q", name)
	}
	return c.node.Invoke(ctx, ep.Signature(), args...)
}

// Exec calls the function bound to name on the local node, without sending
// any frames to the remote node.
// Exec will panic if c is not bound to a node.
func (c Catalog) Exec(ctx context.Context, name string, args ...any) ([]any, error) {
	ep, ok := c.eps[name]
	if !ok {
		return nil, fmt.Errorf("exec: unknown function %q", name)
	}
	sig := ep.Signature()
	var buf bytes.Buffer
	if _, err := codec.NewEncoderChain(sig.Inputs()...).Encode(&buf, args); err != nil {
		return nil, fmt.Errorf("exec %q: %w", name, err)
	}
	data, err := c.node.Exec(ctx, ep.ID(), buf.Bytes())
	if err != nil {
		return nil, err
	}
	return fibre.DecodeResults(sig, data)
}

// Describe returns a JSON array of the descriptors of the endpoints in c, in
// lexicographic order by name.
func (c Catalog) Describe() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, name := range c.Names() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(c.eps[name].Describe())
	}
	sb.WriteByte(']')
	return sb.String()
}

var (
	// DescribeSig is the signature of the built-in endpoint that reports the
	// descriptors of a catalog.
	DescribeSig = fibre.MustSignature("fibre.describe", fibre.Ret("descriptors", codec.String))

	// ListingSig is the signature of the built-in endpoint that reports the
	// encoded listing of a catalog.
	ListingSig = fibre.MustSignature("fibre.catalog", fibre.Ret("listing", codec.Bytes))
)

// Describe calls the built-in describe endpoint of the remote node.
func Describe(ctx context.Context, node *fibre.Node) (string, error) {
	vals, err := node.Invoke(ctx, DescribeSig)
	if err != nil {
		return "", err
	}
	return vals[0].(string), nil
}

// Fetch calls the built-in listing endpoint of the remote node, and decodes
// the listing it reports.
func Fetch(ctx context.Context, node *fibre.Node) (Listing, error) {
	vals, err := node.Invoke(ctx, ListingSig)
	if err != nil {
		return nil, err
	}
	return DecodeListing(vals[0].([]byte))
}
